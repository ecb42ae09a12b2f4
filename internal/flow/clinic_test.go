package flow

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/flowdesk/flowdesk/internal/models"
	"github.com/flowdesk/flowdesk/internal/odoo"
)

// fakeOdoo is an in-memory odoo.Client for handler tests. A non-nil err
// makes every call fail with it.
type fakeOdoo struct {
	patients  map[string]odoo.Patient
	payments  []odoo.Payment
	purchases []odoo.Purchase
	services  []odoo.Service
	branches  []odoo.Branch
	err       error
}

func (f *fakeOdoo) LookupPatientByIdentifier(ctx context.Context, identifier string) (*odoo.Patient, error) {
	if f.err != nil {
		return nil, f.err
	}
	if p, ok := f.patients[identifier]; ok {
		return &p, nil
	}
	return nil, nil
}

func (f *fakeOdoo) ListPendingPayments(ctx context.Context, patientID int) ([]odoo.Payment, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.payments, nil
}

func (f *fakeOdoo) ListRecentPurchases(ctx context.Context, patientID int) ([]odoo.Purchase, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.purchases, nil
}

func (f *fakeOdoo) ListServices(ctx context.Context) ([]odoo.Service, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.services, nil
}

func (f *fakeOdoo) ListBranches(ctx context.Context) ([]odoo.Branch, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.branches, nil
}

func clinicConvo(state models.StateType) *models.ConversationContext {
	return &models.ConversationContext{
		ID:           "c1",
		TenantID:     "podopie",
		UserID:       "59891234567",
		FlowID:       "flow_podopie",
		CurrentState: state,
	}
}

func TestClinicPriceList(t *testing.T) {
	handler := NewClinicHandler()
	def := ClinicFlow()
	ctx := context.Background()

	t.Run("formats services from the ERP", func(t *testing.T) {
		erp := &fakeOdoo{services: []odoo.Service{
			{ID: 1, Name: "Quiropodia", Price: 1200},
			{ID: 2, Name: "Plantillas", Price: 3500.50},
		}}
		res, err := handler.Handle(ctx, clinicConvo(models.StateMainMenu), def, string(ActionInfoPrices), Collaborators{Odoo: erp})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Kind != models.DispatchReply {
			t.Fatalf("expected reply, got %s", res.Kind)
		}
		for _, want := range []string{"Quiropodia", "$1200.00", "Plantillas", "$3500.50"} {
			if !strings.Contains(res.Text, want) {
				t.Errorf("price list missing %q:\n%s", want, res.Text)
			}
		}
	})

	t.Run("degrades to fallback when the ERP fails", func(t *testing.T) {
		erp := &fakeOdoo{err: fmt.Errorf("%w: connection refused", models.ErrCollaboratorUnavailable)}
		res, err := handler.Handle(ctx, clinicConvo(models.StateMainMenu), def, string(ActionInfoPrices), Collaborators{Odoo: erp})
		if err != nil {
			t.Fatalf("collaborator failure must not fail the turn: %v", err)
		}
		if res.Kind != models.DispatchReply || res.Text != def.Config.PricesFallback {
			t.Errorf("expected prices fallback, got %s %q", res.Kind, res.Text)
		}
	})

	t.Run("degrades to fallback without a collaborator", func(t *testing.T) {
		res, err := handler.Handle(ctx, clinicConvo(models.StateMainMenu), def, string(ActionInfoPrices), Collaborators{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Text != def.Config.PricesFallback {
			t.Errorf("expected prices fallback, got %q", res.Text)
		}
	})
}

func TestClinicBranchList(t *testing.T) {
	handler := NewClinicHandler()
	def := ClinicFlow()
	ctx := context.Background()

	erp := &fakeOdoo{branches: []odoo.Branch{
		{ID: 1, Name: "Centro", Address: "18 de Julio 1234"},
		{ID: 2, Name: "Carrasco"},
	}}
	res, err := handler.Handle(ctx, clinicConvo(models.StateMainMenu), def, string(ActionInfoBranches), Collaborators{Odoo: erp})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"Centro", "18 de Julio 1234", "Carrasco"} {
		if !strings.Contains(res.Text, want) {
			t.Errorf("branch list missing %q:\n%s", want, res.Text)
		}
	}

	erp.err = fmt.Errorf("%w: timeout", models.ErrCollaboratorUnavailable)
	res, err = handler.Handle(ctx, clinicConvo(models.StateMainMenu), def, string(ActionInfoBranches), Collaborators{Odoo: erp})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Text != def.Config.BranchesFallback {
		t.Errorf("expected branches fallback, got %q", res.Text)
	}
}

func TestClinicIdentifyPatient(t *testing.T) {
	handler := NewClinicHandler()
	def := ClinicFlow()
	ctx := context.Background()
	erp := &fakeOdoo{patients: map[string]odoo.Patient{
		"45678901": {ID: 7, Name: "Ana Pérez", Identifier: "45678901"},
	}}

	t.Run("match stores identity and moves to patient menu", func(t *testing.T) {
		convo := clinicConvo(models.StateAskIdentifier)
		res, err := handler.Handle(ctx, convo, def, "45678901", Collaborators{Odoo: erp})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Kind != models.DispatchTransition || res.NextState != models.StatePatientMenu {
			t.Fatalf("expected transition to PATIENT_MENU, got %+v", res)
		}
		if convo.PatientIdentifier != "45678901" || convo.PatientName != "Ana Pérez" {
			t.Errorf("identity not stored on conversation: %+v", convo)
		}
	})

	t.Run("no match re-prompts", func(t *testing.T) {
		convo := clinicConvo(models.StateAskIdentifier)
		res, err := handler.Handle(ctx, convo, def, "00000000", Collaborators{Odoo: erp})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Kind != models.DispatchReply || res.Text != def.Config.UnknownPatient {
			t.Errorf("expected unknown patient reply, got %+v", res)
		}
		if convo.PatientIdentifier != "" {
			t.Errorf("no identity should be stored on a miss")
		}
	})

	t.Run("lookup failure degrades", func(t *testing.T) {
		broken := &fakeOdoo{err: fmt.Errorf("%w: 503", models.ErrCollaboratorUnavailable)}
		res, err := handler.Handle(ctx, clinicConvo(models.StateAskIdentifier), def, "45678901", Collaborators{Odoo: broken})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Text != def.Config.PatientLookupFallback {
			t.Errorf("expected lookup fallback, got %q", res.Text)
		}
	})

	t.Run("blank input re-prompts", func(t *testing.T) {
		res, err := handler.Handle(ctx, clinicConvo(models.StateAskIdentifier), def, "   ", Collaborators{Odoo: erp})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Text != def.Config.AskIdentifierPrompt {
			t.Errorf("expected identifier prompt, got %q", res.Text)
		}
	})
}

func TestClinicPendingPayments(t *testing.T) {
	handler := NewClinicHandler()
	def := ClinicFlow()
	ctx := context.Background()
	erp := &fakeOdoo{
		patients: map[string]odoo.Patient{"45678901": {ID: 7, Name: "Ana Pérez", Identifier: "45678901"}},
		payments: []odoo.Payment{{ID: 1, Name: "FAC/2026/001", Amount: 800, DueDate: "2026-09-15"}},
	}

	t.Run("unidentified conversation is redirected to capture", func(t *testing.T) {
		convo := clinicConvo(models.StatePatientMenu)
		res, err := handler.Handle(ctx, convo, def, string(ActionPatientPayments), Collaborators{Odoo: erp})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Kind != models.DispatchTransition || res.NextState != models.StateAskIdentifier {
			t.Errorf("expected redirect to ASK_CI, got %+v", res)
		}
	})

	t.Run("identified patient sees pending invoices", func(t *testing.T) {
		convo := clinicConvo(models.StatePatientMenu)
		convo.PatientIdentifier = "45678901"
		res, err := handler.Handle(ctx, convo, def, string(ActionPatientPayments), Collaborators{Odoo: erp})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		for _, want := range []string{"FAC/2026/001", "$800.00", "2026-09-15"} {
			if !strings.Contains(res.Text, want) {
				t.Errorf("payments reply missing %q:\n%s", want, res.Text)
			}
		}
	})

	t.Run("stale identity is captured again", func(t *testing.T) {
		convo := clinicConvo(models.StatePatientMenu)
		convo.PatientIdentifier = "99999999"
		convo.PatientName = "Fantasma"
		res, err := handler.Handle(ctx, convo, def, string(ActionPatientPayments), Collaborators{Odoo: erp})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.Kind != models.DispatchTransition || res.NextState != models.StateAskIdentifier {
			t.Errorf("expected redirect to ASK_CI, got %+v", res)
		}
		if convo.PatientIdentifier != "" || convo.PatientName != "" {
			t.Errorf("stale identity should be cleared: %+v", convo)
		}
	})
}

func TestClinicRecentPurchases(t *testing.T) {
	handler := NewClinicHandler()
	def := ClinicFlow()
	ctx := context.Background()
	erp := &fakeOdoo{
		patients:  map[string]odoo.Patient{"45678901": {ID: 7, Name: "Ana Pérez", Identifier: "45678901"}},
		purchases: []odoo.Purchase{{ID: 3, Name: "SO042", Date: "2026-08-20", Tot: 2500}},
	}

	convo := clinicConvo(models.StatePatientMenu)
	convo.PatientIdentifier = "45678901"
	res, err := handler.Handle(context.Background(), convo, def, string(ActionPatientPurchases), Collaborators{Odoo: erp})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, want := range []string{"SO042", "$2500.00", "2026-08-20"} {
		if !strings.Contains(res.Text, want) {
			t.Errorf("purchases reply missing %q:\n%s", want, res.Text)
		}
	}

	erp.purchases = nil
	res, err = handler.Handle(ctx, convo, def, string(ActionPatientPurchases), Collaborators{Odoo: erp})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Kind != models.DispatchReply || res.Text == "" {
		t.Errorf("expected an empty-history reply, got %+v", res)
	}
}
