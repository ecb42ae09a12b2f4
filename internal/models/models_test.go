package models

import (
	"errors"
	"strings"
	"testing"
)

func TestOutboundMessageIsInteractive(t *testing.T) {
	plain := OutboundMessage{Body: "hola"}
	if plain.IsInteractive() {
		t.Error("message without sections should not be interactive")
	}

	emptySection := OutboundMessage{Body: "hola", Sections: []OutboundSection{{Title: "x"}}}
	if emptySection.IsInteractive() {
		t.Error("message with only empty sections should not be interactive")
	}

	menu := OutboundMessage{
		Body:     "hola",
		Sections: []OutboundSection{{Rows: []OutboundRow{{ID: "A", Title: "Opción A"}}}},
	}
	if !menu.IsInteractive() {
		t.Error("message with rows should be interactive")
	}
}

func TestOutboundMessageFlattenText(t *testing.T) {
	plain := OutboundMessage{Body: "solo texto"}
	if got := plain.FlattenText(); got != "solo texto" {
		t.Errorf("expected plain body, got %q", got)
	}

	menu := OutboundMessage{
		Body: "Elige una opción:",
		Sections: []OutboundSection{
			{
				Title: "Información",
				Rows: []OutboundRow{
					{ID: "INFO_HOURS", Title: "Horarios", Description: "Horarios de atención"},
					{ID: "INFO_LOCATION", Title: "Ubicación"},
				},
			},
			{
				Rows: []OutboundRow{
					{ID: "HANDOFF", Title: "Agente"},
				},
			},
		},
	}
	flat := menu.FlattenText()

	if !strings.HasPrefix(flat, "Elige una opción:") {
		t.Errorf("flattened text should start with the body, got %q", flat)
	}
	if !strings.Contains(flat, "*Información*") {
		t.Errorf("flattened text should contain the section title, got %q", flat)
	}
	for _, want := range []string{"1. Horarios - Horarios de atención", "2. Ubicación", "3. Agente"} {
		if !strings.Contains(flat, want) {
			t.Errorf("flattened text missing %q:\n%s", want, flat)
		}
	}
}

func TestTenantValidate(t *testing.T) {
	tests := []struct {
		name    string
		tenant  Tenant
		wantErr bool
	}{
		{
			name:   "valid tenant",
			tenant: Tenant{ID: "acme", BrandName: "Acme", FlowID: "flow_general"},
		},
		{
			name:    "missing id",
			tenant:  Tenant{BrandName: "Acme", FlowID: "flow_general"},
			wantErr: true,
		},
		{
			name:    "missing brand name",
			tenant:  Tenant{ID: "acme", FlowID: "flow_general"},
			wantErr: true,
		},
		{
			name:    "missing flow id",
			tenant:  Tenant{ID: "acme", BrandName: "Acme"},
			wantErr: true,
		},
		{
			name:    "odoo enabled without url",
			tenant:  Tenant{ID: "acme", BrandName: "Acme", FlowID: "flow_podopie", Odoo: OdooSettings{Enabled: true}},
			wantErr: true,
		},
		{
			name: "odoo enabled with url",
			tenant: Tenant{ID: "acme", BrandName: "Acme", FlowID: "flow_podopie",
				Odoo: OdooSettings{Enabled: true, URL: "https://erp.example.com", DB: "prod"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.tenant.Validate()
			if tt.wantErr && err == nil {
				t.Error("expected validation error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected validation error: %v", err)
			}
		})
	}
}

func TestTenantTemplateVars(t *testing.T) {
	tenant := Tenant{
		ID:        "acme",
		BrandName: "Acme Clinic",
		FlowID:    "flow_general",
		Vars:      map[string]string{"city": "Montevideo"},
	}

	vars := tenant.TemplateVars()
	if vars["brandName"] != "Acme Clinic" {
		t.Errorf("expected brandName to be set, got %q", vars["brandName"])
	}
	if vars["city"] != "Montevideo" {
		t.Errorf("expected extra vars to be merged, got %q", vars["city"])
	}
}

func TestConversationIsTerminal(t *testing.T) {
	convo := ConversationContext{CurrentState: StateMainMenu}
	if convo.IsTerminal() {
		t.Error("MAIN_MENU should not be terminal")
	}
	convo.CurrentState = StateHandedOff
	if !convo.IsTerminal() {
		t.Error("HANDED_OFF should be terminal")
	}
}

func TestAPIResponseHelpers(t *testing.T) {
	ok := Success([]string{"a"})
	if ok.Status != string(APIStatusOK) {
		t.Errorf("expected ok status, got %q", ok.Status)
	}
	withMsg := SuccessWithMessage("done", nil)
	if withMsg.Message != "done" {
		t.Errorf("expected message to be carried, got %q", withMsg.Message)
	}
	fail := Error("boom")
	if fail.Status != string(APIStatusError) || fail.Message != "boom" {
		t.Errorf("unexpected error response: %+v", fail)
	}
}

func TestErrorTaxonomyIsDistinct(t *testing.T) {
	errs := []error{
		ErrInvalidFlowDefinition,
		ErrFlowNotFound,
		ErrUnknownAction,
		ErrMissingTemplateVariable,
		ErrCollaboratorUnavailable,
		ErrConversationLockTimeout,
		ErrTenantNotFound,
	}
	for i, a := range errs {
		for j, b := range errs {
			if i != j && errors.Is(a, b) {
				t.Errorf("sentinel errors %d and %d should be distinct", i, j)
			}
		}
	}
}
