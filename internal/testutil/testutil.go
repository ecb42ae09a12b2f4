// Package testutil provides common test utilities and helpers for FlowDesk tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flowdesk/flowdesk/internal/api"
	"github.com/flowdesk/flowdesk/internal/flow"
	"github.com/flowdesk/flowdesk/internal/models"
	"github.com/flowdesk/flowdesk/internal/store"
	"github.com/flowdesk/flowdesk/internal/tenant"
)

// NewTestTenant returns a tenant on the general flow suitable for tests.
func NewTestTenant() *models.Tenant {
	return &models.Tenant{
		ID:        "acme",
		BrandName: "Acme Services",
		FlowID:    "flow_general",
		Line:      "15550000001",
	}
}

// NewTestServer creates a test API server with in-memory dependencies and
// the built-in flows registered. It returns the server plus the store and
// tenant registry for seeding and assertions.
func NewTestServer(t *testing.T) (*api.Server, store.ConversationStore, *tenant.Registry) {
	t.Helper()

	flows := flow.NewRegistry()
	dispatcher := flow.NewDispatcher()
	if err := flow.RegisterBuiltins(flows, dispatcher); err != nil {
		t.Fatalf("failed to register built-in flows: %v", err)
	}

	tenants := tenant.NewRegistry()
	if err := tenants.Register(NewTestTenant()); err != nil {
		t.Fatalf("failed to register test tenant: %v", err)
	}

	st := store.NewInMemoryStore()
	interp := flow.NewInterpreter(flows, st, dispatcher)
	return api.NewServer(flows, tenants, st, interp, nil), st, tenants
}

// AssertHTTPStatus checks the HTTP status code and fails the test if it doesn't match.
func AssertHTTPStatus(t *testing.T, expected, actual int, context string) {
	t.Helper()
	if actual != expected {
		t.Errorf("%s: expected status %d, got %d", context, expected, actual)
	}
}

// AssertJSONResponse decodes JSON response and validates the status field.
func AssertJSONResponse(t *testing.T, rr *httptest.ResponseRecorder, expectedStatus string) map[string]interface{} {
	t.Helper()
	var response map[string]interface{}
	if err := json.NewDecoder(rr.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode JSON response: %v", err)
	}

	if status, ok := response["status"].(string); ok {
		if status != expectedStatus {
			t.Errorf("expected status '%s', got '%s'", expectedStatus, status)
		}
	} else {
		t.Error("response missing or invalid 'status' field")
	}

	return response
}

// CreateHTTPRequest creates an HTTP request with optional JSON body for testing.
func CreateHTTPRequest(t *testing.T, method, url string, body interface{}) *http.Request {
	t.Helper()
	var reqBody *bytes.Buffer
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal request body: %v", err)
		}
		reqBody = bytes.NewBuffer(jsonData)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequest(method, url, reqBody)
	if err != nil {
		t.Fatalf("failed to create HTTP request: %v", err)
	}
	return req
}

// AssertConversationState fetches a conversation and checks its current state.
func AssertConversationState(t *testing.T, st store.ConversationStore, tenantID, userID string, expected models.StateType) {
	t.Helper()
	convo, err := st.GetConversation(tenantID, userID)
	if err != nil {
		t.Fatalf("failed to get conversation %s/%s: %v", tenantID, userID, err)
	}
	if convo == nil {
		t.Fatalf("conversation %s/%s does not exist", tenantID, userID)
	}
	if convo.CurrentState != expected {
		t.Errorf("conversation %s/%s: expected state %s, got %s", tenantID, userID, expected, convo.CurrentState)
	}
}

// MustMarshalJSON marshals an object to JSON and fails test on error.
func MustMarshalJSON(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to marshal JSON: %v", err)
	}
	return data
}

// MustUnmarshalJSON unmarshals JSON data into target and fails test on error.
func MustUnmarshalJSON(t *testing.T, data []byte, target interface{}) {
	t.Helper()
	if err := json.Unmarshal(data, target); err != nil {
		t.Fatalf("failed to unmarshal JSON: %v", err)
	}
}
