// Package models defines conversation state structures for FlowDesk.
package models

import "time"

// ConversationContext tracks one end user's progress through a tenant's
// flow. It is mutated exclusively by the flow interpreter and persisted
// by the conversation store.
type ConversationContext struct {
	ID                string    `json:"id"`
	TenantID          string    `json:"tenant_id"`
	UserID            string    `json:"user_id"`
	FlowID            string    `json:"flow_id"`
	CurrentState      StateType `json:"current_state"`
	LastAction        ActionID  `json:"last_action,omitempty"`
	PatientIdentifier string    `json:"patient_identifier,omitempty"`
	PatientName       string    `json:"patient_name,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// IsTerminal reports whether the conversation has been handed to a human agent.
func (c *ConversationContext) IsTerminal() bool {
	return c.CurrentState == StateHandedOff
}

// DispatchKind tags the variants of a DispatchResult.
type DispatchKind string

const (
	// DispatchRenderMenu re-renders a menu without changing state.
	DispatchRenderMenu DispatchKind = "render_menu"
	// DispatchReply sends a plain text reply without changing state.
	DispatchReply DispatchKind = "reply"
	// DispatchTransition moves the conversation to a new state.
	DispatchTransition DispatchKind = "transition"
	// DispatchHandoff hands the conversation to a human agent.
	DispatchHandoff DispatchKind = "handoff"
	// DispatchLookupPending signals an external lookup is still in
	// flight. Reserved for collaborators that answer out of band; the
	// built-in flows resolve lookups synchronously and never produce it.
	DispatchLookupPending DispatchKind = "lookup_pending"
)

// DispatchResult is the tagged variant returned by the action dispatcher.
// Exactly the fields relevant to Kind are set.
type DispatchResult struct {
	Kind DispatchKind
	// Menu is set for DispatchRenderMenu, and optionally for
	// DispatchTransition when the new state renders a specific menu.
	Menu *MenuTemplate
	// Text is set for DispatchReply and DispatchHandoff, and optionally
	// accompanies DispatchTransition as a preamble above the menu.
	Text string
	// NextState is set for DispatchTransition.
	NextState StateType
}

// RenderMenuResult builds a DispatchRenderMenu result.
func RenderMenuResult(menu *MenuTemplate) DispatchResult {
	return DispatchResult{Kind: DispatchRenderMenu, Menu: menu}
}

// ReplyResult builds a DispatchReply result.
func ReplyResult(text string) DispatchResult {
	return DispatchResult{Kind: DispatchReply, Text: text}
}

// TransitionResult builds a DispatchTransition result.
func TransitionResult(next StateType) DispatchResult {
	return DispatchResult{Kind: DispatchTransition, NextState: next}
}

// TransitionWithTextResult builds a DispatchTransition result carrying a
// text preamble (e.g. a prompt shown when entering a text-input state).
func TransitionWithTextResult(next StateType, text string) DispatchResult {
	return DispatchResult{Kind: DispatchTransition, NextState: next, Text: text}
}

// HandoffResult builds a DispatchHandoff result with a confirmation text.
func HandoffResult(text string) DispatchResult {
	return DispatchResult{Kind: DispatchHandoff, Text: text}
}
