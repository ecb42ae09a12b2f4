package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/flowdesk/flowdesk/internal/models"
	"github.com/flowdesk/flowdesk/internal/store"
)

// DefaultFlowID is the flow served when a tenant's configured flow is missing.
const DefaultFlowID = "flow_general"

// Built-in reply texts used when a flow does not configure its own.
const (
	// DefaultHandoffConfirmation confirms the transfer to a human agent.
	DefaultHandoffConfirmation = "🙋 Un agente se pondrá en contacto contigo en breve."
	// DefaultBusyReply is sent when the conversation lock cannot be acquired.
	DefaultBusyReply = "⏳ Seguimos procesando tu mensaje anterior. Intenta de nuevo en unos segundos."
	// DefaultErrorReply is sent when a turn fails after dispatch.
	DefaultErrorReply = "⚠️ Tuvimos un problema procesando tu mensaje. Intenta de nuevo."
)

// Interpreter drives the conversation state machine: one inbound message
// produces one state read, zero or more collaborator calls through the
// dispatcher, and one state write. Turns for the same (tenant, user) key
// are serialized through a keyed lock; different keys run in parallel.
type Interpreter struct {
	registry    *Registry
	store       store.ConversationStore
	locks       *store.KeyedLock
	dispatcher  *Dispatcher
	lockTimeout time.Duration
}

// InterpreterOption configures an Interpreter.
type InterpreterOption func(*Interpreter)

// WithLockTimeout overrides the per-conversation lock acquire timeout.
func WithLockTimeout(d time.Duration) InterpreterOption {
	return func(i *Interpreter) { i.lockTimeout = d }
}

// NewInterpreter creates an Interpreter over the given registry, store
// and dispatcher.
func NewInterpreter(registry *Registry, st store.ConversationStore, dispatcher *Dispatcher, opts ...InterpreterOption) *Interpreter {
	i := &Interpreter{
		registry:    registry,
		store:       st,
		locks:       store.NewKeyedLock(),
		dispatcher:  dispatcher,
		lockTimeout: store.DefaultLockTimeout,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// resolveFlow returns the tenant's flow, falling back to the default
// general flow when the configured one is not registered.
func (i *Interpreter) resolveFlow(tenant *models.Tenant) (*models.FlowDefinition, error) {
	def, err := i.registry.Get(tenant.FlowID)
	if err == nil {
		return def, nil
	}
	if errors.Is(err, models.ErrFlowNotFound) && tenant.FlowID != DefaultFlowID {
		slog.Warn("Interpreter tenant flow not registered, falling back to default", "tenantID", tenant.ID, "flowID", tenant.FlowID, "fallback", DefaultFlowID)
		return i.registry.Get(DefaultFlowID)
	}
	return nil, err
}

// HandleInbound processes one inbound message for a conversation and
// returns the outbound payload to deliver, or nil when the message is
// absorbed (terminal state owned by a human agent).
//
// Every per-turn failure degrades to a user-visible reply; only the
// returned error distinguishes a degraded turn for callers that track
// failures.
func (i *Interpreter) HandleInbound(ctx context.Context, tenant *models.Tenant, userID, body string, collab Collaborators) (*models.OutboundMessage, error) {
	def, err := i.resolveFlow(tenant)
	if err != nil {
		slog.Error("Interpreter flow resolution failed", "error", err, "tenantID", tenant.ID, "flowID", tenant.FlowID)
		return textMessage(DefaultErrorReply), err
	}

	key := tenant.ID + "|" + userID
	if err := i.locks.Acquire(ctx, key, i.lockTimeout); err != nil {
		busy := def.Config.BusyReply
		if busy == "" {
			busy = DefaultBusyReply
		}
		return textMessage(busy), err
	}
	defer i.locks.Release(key)

	convo, err := i.store.GetConversation(tenant.ID, userID)
	if err != nil {
		slog.Error("Interpreter conversation load failed", "error", err, "tenantID", tenant.ID, "userID", userID)
		return textMessage(DefaultErrorReply), err
	}
	if convo != nil && def.Config.SessionTTL > 0 && time.Since(convo.UpdatedAt) > def.Config.SessionTTL {
		slog.Info("Interpreter session expired, starting over", "tenantID", tenant.ID, "userID", userID, "idle", time.Since(convo.UpdatedAt))
		convo = nil
	}
	if convo == nil {
		now := time.Now()
		convo = &models.ConversationContext{
			ID:           uuid.NewString(),
			TenantID:     tenant.ID,
			UserID:       userID,
			FlowID:       def.ID,
			CurrentState: models.StateMainMenu,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		slog.Info("Interpreter conversation created", "tenantID", tenant.ID, "userID", userID, "flowID", def.ID)
	}

	// A handed-off conversation belongs to a human agent: absorb input
	// until the store is reset on handoff resolution.
	if convo.IsTerminal() {
		slog.Debug("Interpreter absorbing message in terminal state", "tenantID", tenant.ID, "userID", userID)
		return nil, nil
	}

	result, dispatchErr := i.dispatcher.Dispatch(ctx, convo, def, body, collab)
	if dispatchErr != nil {
		if errors.Is(dispatchErr, models.ErrUnknownAction) {
			// Fall back to re-rendering the current menu.
			result = models.RenderMenuResult(i.currentMenu(def, convo))
		} else {
			slog.Error("Interpreter dispatch failed", "error", dispatchErr, "tenantID", tenant.ID, "userID", userID)
			return textMessage(DefaultErrorReply), dispatchErr
		}
	}

	// Template variables combine tenant branding with identity captured
	// during dispatch (e.g. the patient's name).
	vars := tenant.TemplateVars()
	if convo.PatientName != "" {
		vars["patientName"] = convo.PatientName
	}

	payload := i.applyResult(convo, def, result, vars)

	convo.UpdatedAt = time.Now()
	if err := i.store.SaveConversation(*convo); err != nil {
		slog.Error("Interpreter conversation save failed", "error", err, "tenantID", tenant.ID, "userID", userID)
		return textMessage(DefaultErrorReply), err
	}

	if errors.Is(dispatchErr, models.ErrUnknownAction) {
		return payload, dispatchErr
	}
	return payload, nil
}

// applyResult maps a DispatchResult onto the conversation and builds the
// outbound payload.
func (i *Interpreter) applyResult(convo *models.ConversationContext, def *models.FlowDefinition, result models.DispatchResult, vars map[string]string) *models.OutboundMessage {
	switch result.Kind {
	case models.DispatchRenderMenu:
		menu := result.Menu
		if menu == nil {
			menu = &def.MainMenu
		}
		msg := RenderMenu(def, menu, vars)
		return &msg

	case models.DispatchReply:
		return textMessage(RenderText(def, result.Text, vars))

	case models.DispatchTransition:
		slog.Info("Interpreter state transition", "tenantID", convo.TenantID, "userID", convo.UserID, "from", convo.CurrentState, "to", result.NextState)
		convo.CurrentState = result.NextState
		menu := result.Menu
		if menu == nil {
			menu = def.MenuForState(result.NextState)
		}
		if menu == nil {
			return textMessage(RenderText(def, result.Text, vars))
		}
		msg := RenderMenu(def, menu, vars)
		if result.Text != "" {
			msg.Body = RenderText(def, result.Text, vars) + "\n\n" + msg.Body
		}
		return &msg

	case models.DispatchHandoff:
		slog.Info("Interpreter handoff", "tenantID", convo.TenantID, "userID", convo.UserID, "from", convo.CurrentState)
		convo.CurrentState = models.StateHandedOff
		text := result.Text
		if text == "" {
			text = DefaultHandoffConfirmation
		}
		return textMessage(RenderText(def, text, vars))

	case models.DispatchLookupPending:
		// The collaborator will answer out of band; acknowledge the turn.
		return textMessage(RenderText(def, result.Text, vars))

	default:
		slog.Error("Interpreter unexpected dispatch kind", "kind", result.Kind, "tenantID", convo.TenantID)
		msg := RenderMenu(def, &def.MainMenu, vars)
		return &msg
	}
}

// currentMenu returns the menu for the conversation's current state,
// defaulting to the main menu.
func (i *Interpreter) currentMenu(def *models.FlowDefinition, convo *models.ConversationContext) *models.MenuTemplate {
	if menu := def.MenuForState(convo.CurrentState); menu != nil {
		return menu
	}
	return &def.MainMenu
}

// Reset clears a conversation, used on handoff resolution or an explicit
// restart request.
func (i *Interpreter) Reset(ctx context.Context, tenantID, userID string) error {
	key := tenantID + "|" + userID
	if err := i.locks.Acquire(ctx, key, i.lockTimeout); err != nil {
		return err
	}
	defer i.locks.Release(key)
	if err := i.store.DeleteConversation(tenantID, userID); err != nil {
		return fmt.Errorf("failed to reset conversation: %w", err)
	}
	slog.Info("Interpreter conversation reset", "tenantID", tenantID, "userID", userID)
	return nil
}

func textMessage(text string) *models.OutboundMessage {
	return &models.OutboundMessage{Body: text}
}
