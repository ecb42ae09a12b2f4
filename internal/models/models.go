// Package models defines the core data structures for FlowDesk.
//
// It includes flow definitions, conversation state, outbound payloads and
// the error taxonomy shared across modules.
package models

import (
	"errors"
	"strconv"
	"strings"
)

// Channel limits enforced when rendering outbound payloads.
const (
	// MaxMenuBodyLength defines the maximum allowed length for an interactive menu body
	MaxMenuBodyLength = 1024
	// MaxRowTitleLength defines the maximum allowed length for a menu row title
	MaxRowTitleLength = 24
	// MaxRowDescriptionLength defines the maximum allowed length for a menu row description
	MaxRowDescriptionLength = 72
	// DefaultMaxListRows defines the default row cap per section when a flow does not configure one
	DefaultMaxListRows = 10
)

// Error variables for the platform-wide error taxonomy.
var (
	// ErrInvalidFlowDefinition indicates a flow definition failed validation. Startup-fatal for that flow.
	ErrInvalidFlowDefinition = errors.New("invalid flow definition")
	// ErrFlowNotFound indicates no flow is registered under the requested id.
	ErrFlowNotFound = errors.New("flow not found")
	// ErrUnknownAction indicates an inbound action id is not declared by the flow.
	ErrUnknownAction = errors.New("unknown action")
	// ErrMissingTemplateVariable indicates a menu template referenced a variable with no value or default.
	ErrMissingTemplateVariable = errors.New("missing template variable")
	// ErrCollaboratorUnavailable indicates an external collaborator (ERP, channel) failed or timed out.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")
	// ErrConversationLockTimeout indicates the per-conversation lock could not be acquired in time.
	ErrConversationLockTimeout = errors.New("conversation lock timeout")
	// ErrTenantNotFound indicates no tenant is registered under the requested id or line.
	ErrTenantNotFound = errors.New("tenant not found")
)

// OutboundRow is a single selectable row in an outbound interactive message.
type OutboundRow struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// OutboundSection groups rows under an optional section title.
type OutboundSection struct {
	Title string        `json:"title,omitempty"`
	Rows  []OutboundRow `json:"rows"`
}

// OutboundMessage is the payload handed to a messaging delivery service.
// Sections may be empty, in which case the message is plain text.
type OutboundMessage struct {
	Body     string            `json:"body"`
	Button   string            `json:"button,omitempty"`
	Sections []OutboundSection `json:"sections,omitempty"`
}

// IsInteractive reports whether the message carries selectable rows.
func (m *OutboundMessage) IsInteractive() bool {
	for _, s := range m.Sections {
		if len(s.Rows) > 0 {
			return true
		}
	}
	return false
}

// FlattenText renders the message as numbered plain text for channels
// that cannot deliver interactive lists.
func (m *OutboundMessage) FlattenText() string {
	if !m.IsInteractive() {
		return m.Body
	}
	var sb strings.Builder
	sb.WriteString(m.Body)
	n := 0
	for _, sec := range m.Sections {
		if sec.Title != "" {
			sb.WriteString("\n\n*" + sec.Title + "*")
		}
		for _, row := range sec.Rows {
			n++
			sb.WriteString("\n")
			sb.WriteString(strconv.Itoa(n))
			sb.WriteString(". ")
			sb.WriteString(row.Title)
			if row.Description != "" {
				sb.WriteString(" - " + row.Description)
			}
		}
	}
	return sb.String()
}

// Response represents an incoming message from an end user.
// To carries the business line that received it, used for tenant routing.
type Response struct {
	From string `json:"from"`
	To   string `json:"to,omitempty"`
	Body string `json:"body"`
	Time int64  `json:"time"`
}

// MessageStatus represents the delivery status of an outbound message.
type MessageStatus string

const (
	// MessageStatusSent indicates the message was sent.
	MessageStatusSent MessageStatus = "sent"
	// MessageStatusDelivered indicates the message was delivered.
	MessageStatusDelivered MessageStatus = "delivered"
	// MessageStatusRead indicates the message was read.
	MessageStatusRead MessageStatus = "read"
	// MessageStatusFailed indicates the message failed to send.
	MessageStatusFailed MessageStatus = "failed"
)

// Receipt records a delivery status event for an outbound message.
type Receipt struct {
	To     string        `json:"to"`
	Status MessageStatus `json:"status"`
	Time   int64         `json:"time"`
}

// APIStatus represents the status of an API response.
type APIStatus string

const (
	// APIStatusOK indicates an API request completed successfully.
	APIStatusOK APIStatus = "ok"
	// APIStatusError indicates an API request failed with an error.
	APIStatusError APIStatus = "error"
)

// APIResponse represents a standard API response with a status and optional data.
type APIResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Result  interface{} `json:"result,omitempty"`
}

// Success creates a successful API response with optional result data.
func Success(result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Result: result}
}

// SuccessWithMessage creates a successful API response with a message and result data.
func SuccessWithMessage(message string, result interface{}) APIResponse {
	return APIResponse{Status: string(APIStatusOK), Message: message, Result: result}
}

// Error creates an error API response with a message.
func Error(message string) APIResponse {
	return APIResponse{Status: string(APIStatusError), Message: message}
}

// Tenant describes one customer-service tenant: branding, flow selection,
// channel line and optional ERP connection settings.
type Tenant struct {
	ID           string            `yaml:"id" json:"id"`
	BrandName    string            `yaml:"brand_name" json:"brand_name"`
	FlowID       string            `yaml:"flow_id" json:"flow_id"`
	Line         string            `yaml:"line" json:"line"` // WhatsApp business number receiving inbound messages
	HandoffQueue string            `yaml:"handoff_queue" json:"handoff_queue"`
	Odoo         OdooSettings      `yaml:"odoo" json:"odoo"`
	Vars         map[string]string `yaml:"vars" json:"vars,omitempty"` // extra template variables
}

// OdooSettings holds per-tenant ERP connection configuration.
type OdooSettings struct {
	Enabled bool   `yaml:"enabled" json:"enabled"`
	URL     string `yaml:"url" json:"url,omitempty"`
	DB      string `yaml:"db" json:"db,omitempty"`
	User    string `yaml:"user" json:"user,omitempty"`
	APIKey  string `yaml:"api_key" json:"-"`
}

// TemplateVars returns the variable map supplied to the menu renderer
// for this tenant.
func (t *Tenant) TemplateVars() map[string]string {
	vars := map[string]string{"brandName": t.BrandName}
	for k, v := range t.Vars {
		vars[k] = v
	}
	return vars
}

// Validate checks the tenant record for required fields.
func (t *Tenant) Validate() error {
	if t.ID == "" {
		return errors.New("tenant id cannot be empty")
	}
	if t.BrandName == "" {
		return errors.New("tenant brand_name cannot be empty")
	}
	if t.FlowID == "" {
		return errors.New("tenant flow_id cannot be empty")
	}
	if t.Odoo.Enabled && t.Odoo.URL == "" {
		return errors.New("tenant odoo.url required when odoo is enabled")
	}
	return nil
}
