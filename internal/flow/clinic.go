package flow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/flowdesk/flowdesk/internal/models"
	"github.com/flowdesk/flowdesk/internal/odoo"
)

// Clinic flow action ids beyond the built-ins.
const (
	// ActionInfoPrices requests the service price list.
	ActionInfoPrices models.ActionID = "INFO_PRICES"
	// ActionInfoBranches requests the branch list.
	ActionInfoBranches models.ActionID = "INFO_BRANCHES"
	// ActionPatientEntry starts patient identification.
	ActionPatientEntry models.ActionID = "PATIENT_ENTRY"
	// ActionPatientPayments requests the identified patient's pending payments.
	ActionPatientPayments models.ActionID = "PATIENT_PAYMENTS"
	// ActionPatientPurchases requests the identified patient's recent purchases.
	ActionPatientPurchases models.ActionID = "PATIENT_PURCHASES"
)

// ClinicHandler is the legacy handler strategy for clinic flows: it owns
// the Odoo-backed actions (price list, branch list, patient
// identification, payment and purchase history) and falls back to the
// generic rule table for anything else.
type ClinicHandler struct {
	generic GenericHandler
}

// NewClinicHandler creates the clinic flow handler.
func NewClinicHandler() *ClinicHandler {
	return &ClinicHandler{}
}

// Handle resolves one clinic flow action or, in ASK_CI, one typed identifier.
func (h *ClinicHandler) Handle(ctx context.Context, convo *models.ConversationContext, def *models.FlowDefinition, input string, collab Collaborators) (models.DispatchResult, error) {
	if def.Config.IsTextState(convo.CurrentState) {
		return h.identifyPatient(ctx, convo, def, input, collab)
	}

	switch models.ActionID(input) {
	case ActionInfoPrices:
		return h.priceList(ctx, def, collab), nil
	case ActionInfoBranches:
		return h.branchList(ctx, def, collab), nil
	case ActionPatientEntry:
		return models.TransitionWithTextResult(models.StateAskIdentifier, def.Config.AskIdentifierPrompt), nil
	case ActionPatientPayments:
		return h.pendingPayments(ctx, convo, def, collab), nil
	case ActionPatientPurchases:
		return h.recentPurchases(ctx, convo, def, collab), nil
	}
	return h.generic.Handle(ctx, convo, def, input, collab)
}

// identifyPatient treats the raw input as a patient identifier and looks
// it up in the ERP. A match stores the identity on the conversation and
// moves to the patient menu; no match re-prompts.
func (h *ClinicHandler) identifyPatient(ctx context.Context, convo *models.ConversationContext, def *models.FlowDefinition, input string, collab Collaborators) (models.DispatchResult, error) {
	identifier := strings.TrimSpace(input)
	if identifier == "" {
		return models.ReplyResult(def.Config.AskIdentifierPrompt), nil
	}
	if collab.Odoo == nil {
		slog.Error("ClinicHandler identify without Odoo collaborator", "flowID", def.ID, "tenantID", convo.TenantID)
		return models.ReplyResult(def.Config.PatientLookupFallback), nil
	}

	patient, err := collab.Odoo.LookupPatientByIdentifier(ctx, identifier)
	if err != nil {
		slog.Error("ClinicHandler patient lookup failed", "error", err, "flowID", def.ID, "tenantID", convo.TenantID)
		return models.ReplyResult(def.Config.PatientLookupFallback), nil
	}
	if patient == nil {
		slog.Info("ClinicHandler patient not found", "flowID", def.ID, "tenantID", convo.TenantID)
		return models.ReplyResult(def.Config.UnknownPatient), nil
	}

	convo.PatientIdentifier = patient.Identifier
	convo.PatientName = patient.Name
	slog.Info("ClinicHandler patient identified", "flowID", def.ID, "tenantID", convo.TenantID, "patientID", patient.ID)
	return models.TransitionResult(models.StatePatientMenu), nil
}

// priceList fetches the service catalog, degrading to the configured
// static fallback when the ERP is unavailable.
func (h *ClinicHandler) priceList(ctx context.Context, def *models.FlowDefinition, collab Collaborators) models.DispatchResult {
	if collab.Odoo == nil {
		return models.ReplyResult(def.Config.PricesFallback)
	}
	services, err := collab.Odoo.ListServices(ctx)
	if err != nil {
		logCollaboratorFailure("price list", err, def)
		return models.ReplyResult(def.Config.PricesFallback)
	}
	if len(services) == 0 {
		return models.ReplyResult(def.Config.PricesFallback)
	}
	var sb strings.Builder
	sb.WriteString("💲 *Precios*")
	for _, svc := range services {
		fmt.Fprintf(&sb, "\n• %s: $%.2f", svc.Name, svc.Price)
	}
	return models.ReplyResult(sb.String())
}

// branchList fetches the branch directory with the same degrade policy.
func (h *ClinicHandler) branchList(ctx context.Context, def *models.FlowDefinition, collab Collaborators) models.DispatchResult {
	if collab.Odoo == nil {
		return models.ReplyResult(def.Config.BranchesFallback)
	}
	branches, err := collab.Odoo.ListBranches(ctx)
	if err != nil {
		logCollaboratorFailure("branch list", err, def)
		return models.ReplyResult(def.Config.BranchesFallback)
	}
	if len(branches) == 0 {
		return models.ReplyResult(def.Config.BranchesFallback)
	}
	var sb strings.Builder
	sb.WriteString("📍 *Sucursales*")
	for _, b := range branches {
		fmt.Fprintf(&sb, "\n• %s", b.Name)
		if b.Address != "" {
			fmt.Fprintf(&sb, " — %s", b.Address)
		}
	}
	return models.ReplyResult(sb.String())
}

// pendingPayments lists the identified patient's unpaid invoices. An
// unidentified conversation is redirected to identifier capture first.
func (h *ClinicHandler) pendingPayments(ctx context.Context, convo *models.ConversationContext, def *models.FlowDefinition, collab Collaborators) models.DispatchResult {
	patient, res, ok := h.requirePatient(ctx, convo, def, collab)
	if !ok {
		return res
	}
	payments, err := collab.Odoo.ListPendingPayments(ctx, patient.ID)
	if err != nil {
		logCollaboratorFailure("pending payments", err, def)
		return models.ReplyResult(def.Config.PatientLookupFallback)
	}
	if len(payments) == 0 {
		return models.ReplyResult("✅ No tienes pagos pendientes.")
	}
	var sb strings.Builder
	sb.WriteString("🧾 *Pagos pendientes*")
	for _, p := range payments {
		fmt.Fprintf(&sb, "\n• %s: $%.2f", p.Name, p.Amount)
		if p.DueDate != "" {
			fmt.Fprintf(&sb, " (vence %s)", p.DueDate)
		}
	}
	return models.ReplyResult(sb.String())
}

// recentPurchases lists the identified patient's latest orders.
func (h *ClinicHandler) recentPurchases(ctx context.Context, convo *models.ConversationContext, def *models.FlowDefinition, collab Collaborators) models.DispatchResult {
	patient, res, ok := h.requirePatient(ctx, convo, def, collab)
	if !ok {
		return res
	}
	purchases, err := collab.Odoo.ListRecentPurchases(ctx, patient.ID)
	if err != nil {
		logCollaboratorFailure("recent purchases", err, def)
		return models.ReplyResult(def.Config.PatientLookupFallback)
	}
	if len(purchases) == 0 {
		return models.ReplyResult("No encontramos compras recientes.")
	}
	var sb strings.Builder
	sb.WriteString("🛍 *Compras recientes*")
	for _, p := range purchases {
		fmt.Fprintf(&sb, "\n• %s: $%.2f", p.Name, p.Tot)
		if p.Date != "" {
			fmt.Fprintf(&sb, " (%s)", p.Date)
		}
	}
	return models.ReplyResult(sb.String())
}

// requirePatient resolves the ERP patient record for the conversation.
// The identifier stored on the context is re-resolved against the ERP so
// the context never has to persist ERP-internal ids.
func (h *ClinicHandler) requirePatient(ctx context.Context, convo *models.ConversationContext, def *models.FlowDefinition, collab Collaborators) (*odoo.Patient, models.DispatchResult, bool) {
	if convo.PatientIdentifier == "" {
		return nil, models.TransitionWithTextResult(models.StateAskIdentifier, def.Config.AskIdentifierPrompt), false
	}
	if collab.Odoo == nil {
		return nil, models.ReplyResult(def.Config.PatientLookupFallback), false
	}
	patient, err := collab.Odoo.LookupPatientByIdentifier(ctx, convo.PatientIdentifier)
	if err != nil {
		logCollaboratorFailure("patient resolve", err, def)
		return nil, models.ReplyResult(def.Config.PatientLookupFallback), false
	}
	if patient == nil {
		// Identity went stale in the ERP; capture it again.
		convo.PatientIdentifier = ""
		convo.PatientName = ""
		return nil, models.TransitionWithTextResult(models.StateAskIdentifier, def.Config.AskIdentifierPrompt), false
	}
	return patient, models.DispatchResult{}, true
}

func logCollaboratorFailure(op string, err error, def *models.FlowDefinition) {
	if errors.Is(err, models.ErrCollaboratorUnavailable) {
		slog.Warn("ClinicHandler collaborator unavailable", "op", op, "error", err, "flowID", def.ID)
		return
	}
	slog.Error("ClinicHandler collaborator call failed", "op", op, "error", err, "flowID", def.ID)
}
