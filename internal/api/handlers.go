package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/flowdesk/flowdesk/internal/flow"
	"github.com/flowdesk/flowdesk/internal/models"
)

// healthHandler reports liveness.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(map[string]string{"status": "healthy"}))
}

// listFlowsHandler returns the registered flow ids.
func (s *Server) listFlowsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(s.flows.IDs()))
}

// getFlowHandler returns one flow definition.
func (s *Server) getFlowHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	def, err := s.flows.Get(id)
	if err != nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("flow not found: "+id))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(def))
}

// listTenantsHandler returns the registered tenant ids.
func (s *Server) listTenantsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.Success(s.tenants.IDs()))
}

// listConversationsHandler returns a tenant's conversation contexts.
func (s *Server) listConversationsHandler(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenant"]
	if _, err := s.tenants.Get(tenantID); err != nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("tenant not found: "+tenantID))
		return
	}
	convos, err := s.convos.ListConversations(tenantID)
	if err != nil {
		slog.Error("API listConversations failed", "error", err, "tenantID", tenantID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("failed to list conversations"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(convos))
}

// getConversationHandler returns one conversation context.
func (s *Server) getConversationHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	tenantID, userID := vars["tenant"], vars["user"]
	convo, err := s.convos.GetConversation(tenantID, userID)
	if err != nil {
		slog.Error("API getConversation failed", "error", err, "tenantID", tenantID, "userID", userID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("failed to get conversation"))
		return
	}
	if convo == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("conversation not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(convo))
}

// resetConversationHandler clears a conversation, used on handoff
// resolution or an explicit restart.
func (s *Server) resetConversationHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	tenantID, userID := vars["tenant"], vars["user"]
	if err := s.interp.Reset(r.Context(), tenantID, userID); err != nil {
		slog.Error("API resetConversation failed", "error", err, "tenantID", tenantID, "userID", userID)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("failed to reset conversation"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("conversation reset", nil))
}

// inboundMessageRequest is the payload for injecting an inbound message.
type inboundMessageRequest struct {
	UserID string `json:"user_id"`
	Body   string `json:"body"`
}

// inboundMessageHandler runs one interpreter turn for a tenant and
// returns the outbound payload. It serves both manual simulation and
// channel webhooks.
func (s *Server) inboundMessageHandler(w http.ResponseWriter, r *http.Request) {
	tenantID := mux.Vars(r)["tenant"]
	t, err := s.tenants.Get(tenantID)
	if err != nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("tenant not found: "+tenantID))
		return
	}

	var req inboundMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("invalid JSON payload"))
		return
	}
	if req.UserID == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("user_id is required"))
		return
	}

	var collab flow.Collaborators
	if s.resolve != nil {
		collab = s.resolve(t)
	}

	payload, err := s.interp.HandleInbound(r.Context(), t, req.UserID, req.Body, collab)
	if err != nil && !errors.Is(err, models.ErrUnknownAction) {
		slog.Warn("API inbound turn degraded", "error", err, "tenantID", tenantID, "userID", req.UserID)
	}
	if payload == nil {
		writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("message absorbed", nil))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(payload))
}
