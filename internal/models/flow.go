// Package models defines flow definition structures for FlowDesk.
package models

import (
	"fmt"
	"strconv"
	"time"
)

// StateType identifies a named point in a conversation's progress.
type StateType string

const (
	// StateMainMenu is the initial state of every flow.
	StateMainMenu StateType = "MAIN_MENU"
	// StateAskIdentifier waits for the user to type a patient identifier.
	StateAskIdentifier StateType = "ASK_CI"
	// StatePatientMenu presents patient-specific options after identification.
	StatePatientMenu StateType = "PATIENT_MENU"
	// StateHandedOff is the implicit terminal state: a human agent owns the conversation.
	StateHandedOff StateType = "HANDED_OFF"
)

// ActionID identifies a user-selectable choice or system-triggered transition.
type ActionID string

const (
	// ActionHandoff requests transfer to a human agent.
	ActionHandoff ActionID = "HANDOFF"
	// ActionMainMenu returns the conversation to the main menu.
	ActionMainMenu ActionID = "MAIN_MENU"
)

// MenuRow is one selectable row of a menu template.
type MenuRow struct {
	ID          ActionID `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
}

// MenuSection is an ordered group of rows under an optional title.
type MenuSection struct {
	Title string    `json:"title,omitempty"`
	Rows  []MenuRow `json:"rows"`
}

// MenuTemplate is the declarative description of an interactive menu.
// Body and section titles may contain {{name}} placeholder tokens.
type MenuTemplate struct {
	Body     string        `json:"body"`
	Button   string        `json:"button"`
	Sections []MenuSection `json:"sections"`
}

// MenuName selects one of a flow's menu templates.
type MenuName string

const (
	// MenuMain selects the flow's main menu template.
	MenuMain MenuName = "mainMenu"
	// MenuPatient selects the flow's patient menu template.
	MenuPatient MenuName = "patientMenu"
)

// FlowConfig holds flow-specific options. All fields are optional; zero
// values mean the feature is disabled or the built-in default applies.
type FlowConfig struct {
	RequiresOdoo bool `json:"requiresOdoo,omitempty"`
	AutoHandoff  bool `json:"autoHandoff,omitempty"`
	// MaxListRows caps rows per rendered section. Zero means DefaultMaxListRows.
	MaxListRows int `json:"maxListRows,omitempty"`
	// SessionTTL is how long an idle conversation survives before the sweeper clears it.
	SessionTTL time.Duration `json:"sessionTTL,omitempty"`
	// Transitions is the generic rule table mapping an action directly to a state.
	Transitions map[ActionID]StateType `json:"transitions,omitempty"`
	// Replies maps an action to a static text reply, for menu rows that
	// answer with fixed content instead of changing state.
	Replies map[ActionID]string `json:"replies,omitempty"`
	// TextStates lists states in which raw inbound text is handed to the
	// flow handler instead of being matched against declared actions.
	TextStates []StateType `json:"textStates,omitempty"`
	// StateMenus maps a state to the menu rendered on entering it.
	StateMenus map[StateType]MenuName `json:"stateMenus,omitempty"`
	// TemplateDefaults supplies fallback values for template variables.
	TemplateDefaults map[string]string `json:"templateDefaults,omitempty"`

	// Static reply texts.
	PricesFallback        string `json:"pricesFallback,omitempty"`
	ServicesFallback      string `json:"servicesFallback,omitempty"`
	BranchesFallback      string `json:"branchesFallback,omitempty"`
	HandoffConfirmation   string `json:"handoffConfirmation,omitempty"`
	AskIdentifierPrompt   string `json:"askIdentifierPrompt,omitempty"`
	UnknownPatient        string `json:"unknownPatient,omitempty"`
	PatientLookupFallback string `json:"patientLookupFallback,omitempty"`
	BusyReply             string `json:"busyReply,omitempty"`
}

// IsTextState reports whether raw inbound text is expected in the given state.
func (c *FlowConfig) IsTextState(s StateType) bool {
	for _, ts := range c.TextStates {
		if ts == s {
			return true
		}
	}
	return false
}

// FlowDefinition is an immutable declarative conversation definition,
// loaded and validated once at startup.
type FlowDefinition struct {
	ID               string        `json:"id"`
	Name             string        `json:"name"`
	Version          string        `json:"version"`
	States           []StateType   `json:"states"`
	Actions          []ActionID    `json:"actions"`
	MainMenu         MenuTemplate  `json:"mainMenu"`
	PatientMenu      *MenuTemplate `json:"patientMenu,omitempty"`
	Media            string        `json:"media,omitempty"` // optional header media URL
	Config           FlowConfig    `json:"config"`
	UseLegacyHandler bool          `json:"useLegacyHandler"`
}

// HasState reports whether the flow declares the given state.
// HANDED_OFF is implicit in every flow.
func (f *FlowDefinition) HasState(s StateType) bool {
	if s == StateHandedOff {
		return true
	}
	for _, st := range f.States {
		if st == s {
			return true
		}
	}
	return false
}

// HasAction reports whether the flow declares the given action id.
func (f *FlowDefinition) HasAction(a ActionID) bool {
	for _, act := range f.Actions {
		if act == a {
			return true
		}
	}
	return false
}

// Menu returns the named menu template, or nil if the flow does not define it.
func (f *FlowDefinition) Menu(name MenuName) *MenuTemplate {
	switch name {
	case MenuMain:
		return &f.MainMenu
	case MenuPatient:
		return f.PatientMenu
	default:
		return nil
	}
}

// MenuForState returns the menu rendered on entering the given state,
// following Config.StateMenus and defaulting to the main menu for MAIN_MENU.
func (f *FlowDefinition) MenuForState(s StateType) *MenuTemplate {
	if name, ok := f.Config.StateMenus[s]; ok {
		return f.Menu(name)
	}
	if s == StateMainMenu {
		return &f.MainMenu
	}
	return nil
}

// RowForSelection maps a bare numbered reply ("1", "2", ...) to the
// action id of the corresponding row of the state's menu. Text-only
// channels present menus as a numbered list, so the numbering follows
// OutboundMessage.FlattenText: continuous across sections, rows beyond
// the per-section cap not counted.
func (f *FlowDefinition) RowForSelection(s StateType, input string) (ActionID, bool) {
	n, err := strconv.Atoi(input)
	if err != nil || n < 1 {
		return "", false
	}
	menu := f.MenuForState(s)
	if menu == nil {
		menu = &f.MainMenu
	}
	max := f.MaxListRows()
	for _, sec := range menu.Sections {
		rows := sec.Rows
		if len(rows) > max {
			rows = rows[:max]
		}
		for _, row := range rows {
			n--
			if n == 0 {
				return row.ID, true
			}
		}
	}
	return "", false
}

// MaxListRows returns the configured per-section row cap.
func (f *FlowDefinition) MaxListRows() int {
	if f.Config.MaxListRows > 0 {
		return f.Config.MaxListRows
	}
	return DefaultMaxListRows
}

// Validate checks the definition's referential integrity: required fields,
// menu rows referencing declared actions, and transitions referencing
// declared states. All violations map to ErrInvalidFlowDefinition.
func (f *FlowDefinition) Validate() error {
	if f.ID == "" {
		return fmt.Errorf("%w: id cannot be empty", ErrInvalidFlowDefinition)
	}
	if f.Name == "" {
		return fmt.Errorf("%w: flow %s: name cannot be empty", ErrInvalidFlowDefinition, f.ID)
	}
	if len(f.States) == 0 {
		return fmt.Errorf("%w: flow %s: states cannot be empty", ErrInvalidFlowDefinition, f.ID)
	}
	if !f.HasState(StateMainMenu) {
		return fmt.Errorf("%w: flow %s: states must include %s", ErrInvalidFlowDefinition, f.ID, StateMainMenu)
	}
	if err := f.validateMenu("mainMenu", &f.MainMenu); err != nil {
		return err
	}
	if f.PatientMenu != nil {
		if err := f.validateMenu("patientMenu", f.PatientMenu); err != nil {
			return err
		}
	}
	for action, target := range f.Config.Transitions {
		if !f.HasAction(action) {
			return fmt.Errorf("%w: flow %s: transition source %s is not a declared action", ErrInvalidFlowDefinition, f.ID, action)
		}
		if !f.HasState(target) {
			return fmt.Errorf("%w: flow %s: transition target %s is not a declared state", ErrInvalidFlowDefinition, f.ID, target)
		}
	}
	for action := range f.Config.Replies {
		if !f.HasAction(action) {
			return fmt.Errorf("%w: flow %s: reply key %s is not a declared action", ErrInvalidFlowDefinition, f.ID, action)
		}
	}
	for _, ts := range f.Config.TextStates {
		if !f.HasState(ts) {
			return fmt.Errorf("%w: flow %s: text state %s is not a declared state", ErrInvalidFlowDefinition, f.ID, ts)
		}
	}
	for state, menu := range f.Config.StateMenus {
		if !f.HasState(state) {
			return fmt.Errorf("%w: flow %s: state menu key %s is not a declared state", ErrInvalidFlowDefinition, f.ID, state)
		}
		if f.Menu(menu) == nil {
			return fmt.Errorf("%w: flow %s: state %s references undefined menu %s", ErrInvalidFlowDefinition, f.ID, state, menu)
		}
	}
	return nil
}

func (f *FlowDefinition) validateMenu(name string, m *MenuTemplate) error {
	if m.Body == "" {
		return fmt.Errorf("%w: flow %s: %s body cannot be empty", ErrInvalidFlowDefinition, f.ID, name)
	}
	for si, sec := range m.Sections {
		if len(sec.Rows) == 0 {
			return fmt.Errorf("%w: flow %s: %s section %d has no rows", ErrInvalidFlowDefinition, f.ID, name, si)
		}
		for _, row := range sec.Rows {
			if row.ID == "" {
				return fmt.Errorf("%w: flow %s: %s has a row with empty action id", ErrInvalidFlowDefinition, f.ID, name)
			}
			if !f.HasAction(row.ID) {
				return fmt.Errorf("%w: flow %s: %s row %s is not a declared action", ErrInvalidFlowDefinition, f.ID, name, row.ID)
			}
			if row.Title == "" {
				return fmt.Errorf("%w: flow %s: %s row %s has an empty title", ErrInvalidFlowDefinition, f.ID, name, row.ID)
			}
		}
	}
	return nil
}
