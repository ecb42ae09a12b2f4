package api_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flowdesk/flowdesk/internal/models"
	"github.com/flowdesk/flowdesk/internal/testutil"
)

func TestHealthEndpoint(t *testing.T) {
	server, _, _ := testutil.NewTestServer(t)
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, testutil.CreateHTTPRequest(t, http.MethodGet, "/health", nil))

	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "health")
	testutil.AssertJSONResponse(t, rr, "ok")
}

func TestListAndGetFlows(t *testing.T) {
	server, _, _ := testutil.NewTestServer(t)

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, testutil.CreateHTTPRequest(t, http.MethodGet, "/v1/flows", nil))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "list flows")
	resp := testutil.AssertJSONResponse(t, rr, "ok")
	ids, ok := resp["result"].([]interface{})
	if !ok || len(ids) != 2 {
		t.Fatalf("expected two built-in flows, got %v", resp["result"])
	}

	rr = httptest.NewRecorder()
	server.Router().ServeHTTP(rr, testutil.CreateHTTPRequest(t, http.MethodGet, "/v1/flows/flow_general", nil))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "get flow")

	rr = httptest.NewRecorder()
	server.Router().ServeHTTP(rr, testutil.CreateHTTPRequest(t, http.MethodGet, "/v1/flows/flow_ghost", nil))
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "get missing flow")
	testutil.AssertJSONResponse(t, rr, "error")
}

func TestListTenants(t *testing.T) {
	server, _, _ := testutil.NewTestServer(t)
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, testutil.CreateHTTPRequest(t, http.MethodGet, "/v1/tenants", nil))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "list tenants")
	resp := testutil.AssertJSONResponse(t, rr, "ok")
	ids, ok := resp["result"].([]interface{})
	if !ok || len(ids) != 1 || ids[0] != "acme" {
		t.Errorf("expected the test tenant, got %v", resp["result"])
	}
}

func TestInboundMessageTurn(t *testing.T) {
	server, st, _ := testutil.NewTestServer(t)

	rr := httptest.NewRecorder()
	body := map[string]string{"user_id": "59891234567", "body": "MAIN_MENU"}
	server.Router().ServeHTTP(rr, testutil.CreateHTTPRequest(t, http.MethodPost, "/v1/tenants/acme/messages", body))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "inbound turn")
	resp := testutil.AssertJSONResponse(t, rr, "ok")

	payload, ok := resp["result"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected an outbound payload, got %v", resp["result"])
	}
	if payload["body"] == "" {
		t.Error("outbound payload should carry a body")
	}
	testutil.AssertConversationState(t, st, "acme", "59891234567", models.StateMainMenu)
}

func TestInboundMessageAbsorbedAfterHandoff(t *testing.T) {
	server, st, _ := testutil.NewTestServer(t)

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, testutil.CreateHTTPRequest(t, http.MethodPost, "/v1/tenants/acme/messages",
		map[string]string{"user_id": "59891234567", "body": "HANDOFF"}))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "handoff turn")
	testutil.AssertConversationState(t, st, "acme", "59891234567", models.StateHandedOff)

	rr = httptest.NewRecorder()
	server.Router().ServeHTTP(rr, testutil.CreateHTTPRequest(t, http.MethodPost, "/v1/tenants/acme/messages",
		map[string]string{"user_id": "59891234567", "body": "hola?"}))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "absorbed turn")
	resp := testutil.AssertJSONResponse(t, rr, "ok")
	if resp["message"] != "message absorbed" {
		t.Errorf("expected absorption message, got %v", resp["message"])
	}
}

func TestInboundMessageValidation(t *testing.T) {
	server, _, _ := testutil.NewTestServer(t)

	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, testutil.CreateHTTPRequest(t, http.MethodPost, "/v1/tenants/ghost/messages",
		map[string]string{"user_id": "59891234567", "body": "MAIN_MENU"}))
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "unknown tenant")

	rr = httptest.NewRecorder()
	server.Router().ServeHTTP(rr, testutil.CreateHTTPRequest(t, http.MethodPost, "/v1/tenants/acme/messages",
		map[string]string{"body": "MAIN_MENU"}))
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "missing user_id")

	req := testutil.CreateHTTPRequest(t, http.MethodPost, "/v1/tenants/acme/messages", nil)
	rr = httptest.NewRecorder()
	server.Router().ServeHTTP(rr, req)
	testutil.AssertHTTPStatus(t, http.StatusBadRequest, rr.Code, "empty body")
}

func TestConversationEndpoints(t *testing.T) {
	server, _, _ := testutil.NewTestServer(t)

	// Seed a conversation through the message endpoint.
	rr := httptest.NewRecorder()
	server.Router().ServeHTTP(rr, testutil.CreateHTTPRequest(t, http.MethodPost, "/v1/tenants/acme/messages",
		map[string]string{"user_id": "59891234567", "body": "MAIN_MENU"}))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "seed turn")

	rr = httptest.NewRecorder()
	server.Router().ServeHTTP(rr, testutil.CreateHTTPRequest(t, http.MethodGet, "/v1/tenants/acme/conversations", nil))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "list conversations")
	resp := testutil.AssertJSONResponse(t, rr, "ok")
	list, ok := resp["result"].([]interface{})
	if !ok || len(list) != 1 {
		t.Fatalf("expected one conversation, got %v", resp["result"])
	}

	rr = httptest.NewRecorder()
	server.Router().ServeHTTP(rr, testutil.CreateHTTPRequest(t, http.MethodGet, "/v1/tenants/acme/conversations/59891234567", nil))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "get conversation")

	rr = httptest.NewRecorder()
	server.Router().ServeHTTP(rr, testutil.CreateHTTPRequest(t, http.MethodDelete, "/v1/tenants/acme/conversations/59891234567", nil))
	testutil.AssertHTTPStatus(t, http.StatusOK, rr.Code, "reset conversation")

	rr = httptest.NewRecorder()
	server.Router().ServeHTTP(rr, testutil.CreateHTTPRequest(t, http.MethodGet, "/v1/tenants/acme/conversations/59891234567", nil))
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "conversation gone after reset")

	rr = httptest.NewRecorder()
	server.Router().ServeHTTP(rr, testutil.CreateHTTPRequest(t, http.MethodGet, "/v1/tenants/ghost/conversations", nil))
	testutil.AssertHTTPStatus(t, http.StatusNotFound, rr.Code, "unknown tenant conversations")
}
