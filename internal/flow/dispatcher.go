package flow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/flowdesk/flowdesk/internal/models"
	"github.com/flowdesk/flowdesk/internal/odoo"
)

// Collaborators bundles the external capabilities a flow handler may call.
// Fields are nil when the tenant has not enabled the collaborator.
type Collaborators struct {
	Odoo odoo.Client
}

// Handler is the strategy a flow delegates non-built-in actions to.
// Input is the raw inbound text: an action id selected from a menu, or
// free text when the conversation is in one of the flow's text states.
// Implementations must map collaborator failures to a user-visible
// fallback result rather than failing the turn.
type Handler interface {
	Handle(ctx context.Context, convo *models.ConversationContext, def *models.FlowDefinition, input string, collab Collaborators) (models.DispatchResult, error)
}

// Dispatcher maps inbound input to a DispatchResult: built-in actions
// (HANDOFF, MAIN_MENU) first, then the flow's injected handler strategy
// for legacy flows, then the generic rule-table path.
type Dispatcher struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	generic  Handler
}

// NewDispatcher creates a Dispatcher with the generic rule-table handler
// as the default strategy.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]Handler),
		generic:  &GenericHandler{},
	}
}

// RegisterHandler injects a flow-specific handler strategy for legacy flows.
func (d *Dispatcher) RegisterHandler(flowID string, h Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[flowID] = h
	slog.Debug("Dispatcher handler registered", "flowID", flowID)
}

// handlerFor resolves the strategy for a flow definition.
func (d *Dispatcher) handlerFor(def *models.FlowDefinition) Handler {
	if def.UseLegacyHandler {
		d.mu.RLock()
		h, ok := d.handlers[def.ID]
		d.mu.RUnlock()
		if ok {
			return h
		}
		slog.Error("Dispatcher no legacy handler registered, using generic path", "flowID", def.ID)
	}
	return d.generic
}

// Dispatch resolves one inbound input for a conversation.
//
// Unknown action ids fail with models.ErrUnknownAction so the caller can
// re-render the current menu; raw text is exempt from that check while
// the conversation sits in one of the flow's declared text states.
func (d *Dispatcher) Dispatch(ctx context.Context, convo *models.ConversationContext, def *models.FlowDefinition, input string, collab Collaborators) (models.DispatchResult, error) {
	input = strings.TrimSpace(input)
	slog.Debug("Dispatcher dispatch", "tenantID", convo.TenantID, "userID", convo.UserID, "flowID", def.ID, "state", convo.CurrentState)

	// Free-text states route the raw body straight to the flow handler.
	if def.Config.IsTextState(convo.CurrentState) {
		return d.handlerFor(def).Handle(ctx, convo, def, input, collab)
	}

	// A bare number is a selection from the current menu: text-only
	// channels flatten menus to a numbered list, so users reply "1".
	if id, ok := def.RowForSelection(convo.CurrentState, input); ok {
		slog.Debug("Dispatcher numeric selection resolved", "flowID", def.ID, "state", convo.CurrentState, "action", id)
		input = string(id)
	}

	actionID := models.ActionID(input)
	if !def.HasAction(actionID) {
		slog.Info("Dispatcher unknown action", "flowID", def.ID, "state", convo.CurrentState, "input_length", len(input))
		return models.DispatchResult{}, fmt.Errorf("%w: %q in flow %s", models.ErrUnknownAction, input, def.ID)
	}
	convo.LastAction = actionID

	switch actionID {
	case models.ActionHandoff:
		return models.HandoffResult(def.Config.HandoffConfirmation), nil
	case models.ActionMainMenu:
		return models.TransitionResult(models.StateMainMenu), nil
	}

	return d.handlerFor(def).Handle(ctx, convo, def, input, collab)
}

// GenericHandler is the default declarative strategy: the flow's
// transition rule table maps an action directly to a named state, and
// anything unmatched falls through to re-rendering the main menu (or to
// handoff when the flow configures autoHandoff).
type GenericHandler struct{}

// Handle applies the rule table for one action.
func (g *GenericHandler) Handle(ctx context.Context, convo *models.ConversationContext, def *models.FlowDefinition, input string, collab Collaborators) (models.DispatchResult, error) {
	actionID := models.ActionID(input)
	if text, ok := def.Config.Replies[actionID]; ok {
		slog.Debug("GenericHandler static reply", "flowID", def.ID, "action", actionID)
		return models.ReplyResult(text), nil
	}
	if next, ok := def.Config.Transitions[actionID]; ok {
		slog.Debug("GenericHandler rule transition", "flowID", def.ID, "action", actionID, "next", next)
		if def.Config.IsTextState(next) && def.Config.AskIdentifierPrompt != "" {
			return models.TransitionWithTextResult(next, def.Config.AskIdentifierPrompt), nil
		}
		return models.TransitionResult(next), nil
	}

	if def.Config.AutoHandoff {
		slog.Debug("GenericHandler auto handoff", "flowID", def.ID, "action", actionID)
		return models.HandoffResult(def.Config.HandoffConfirmation), nil
	}

	slog.Debug("GenericHandler no rule matched, re-rendering main menu", "flowID", def.ID, "action", actionID)
	return models.RenderMenuResult(&def.MainMenu), nil
}
