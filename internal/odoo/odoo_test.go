package odoo

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flowdesk/flowdesk/internal/models"
)

// fakeOdooServer serves the subset of the Odoo JSON-RPC protocol the
// client uses: common.authenticate plus object.execute_kw search_read.
func fakeOdooServer(t *testing.T, records map[string]interface{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/jsonrpc" {
			t.Errorf("unexpected path %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		var req struct {
			Params struct {
				Service string        `json:"service"`
				Method  string        `json:"method"`
				Args    []interface{} `json:"args"`
			} `json:"params"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("failed to decode request: %v", err)
			return
		}

		var result interface{}
		switch req.Params.Service {
		case "common":
			result = 2 // authenticated uid
		case "object":
			// args: db, uid, key, model, method, [domain], kwargs
			model, _ := req.Params.Args[3].(string)
			result = records[model]
			if result == nil {
				result = []interface{}{}
			}
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "result": result})
	}))
}

func newTestClient(t *testing.T, url string) *RPCClient {
	t.Helper()
	client, err := NewRPCClient(
		WithURL(url),
		WithDB("test"),
		WithCredentials("api@example.com", "key"),
	)
	if err != nil {
		t.Fatalf("failed to build client: %v", err)
	}
	return client
}

func TestLookupPatientByIdentifier(t *testing.T) {
	srv := fakeOdooServer(t, map[string]interface{}{
		"res.partner": []map[string]interface{}{
			{"id": 7, "name": "Ana Pérez", "ref": "45678901"},
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	patient, err := client.LookupPatientByIdentifier(context.Background(), "45678901")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if patient == nil || patient.ID != 7 || patient.Name != "Ana Pérez" || patient.Identifier != "45678901" {
		t.Errorf("unexpected patient: %+v", patient)
	}
}

func TestLookupPatientNoMatch(t *testing.T) {
	srv := fakeOdooServer(t, nil)
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	patient, err := client.LookupPatientByIdentifier(context.Background(), "00000000")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if patient != nil {
		t.Errorf("expected nil for no match, got %+v", patient)
	}
}

func TestListServicesAndBranches(t *testing.T) {
	srv := fakeOdooServer(t, map[string]interface{}{
		"product.product": []map[string]interface{}{
			{"id": 1, "name": "Quiropodia", "list_price": 1200.0},
		},
		"res.partner": []map[string]interface{}{
			{"id": 9, "name": "Centro", "street": "18 de Julio 1234"},
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	services, err := client.ListServices(context.Background())
	if err != nil {
		t.Fatalf("list services failed: %v", err)
	}
	if len(services) != 1 || services[0].Name != "Quiropodia" || services[0].Price != 1200 {
		t.Errorf("unexpected services: %+v", services)
	}

	branches, err := client.ListBranches(context.Background())
	if err != nil {
		t.Fatalf("list branches failed: %v", err)
	}
	if len(branches) != 1 || branches[0].Address != "18 de Julio 1234" {
		t.Errorf("unexpected branches: %+v", branches)
	}
}

func TestListPendingPaymentsAndPurchases(t *testing.T) {
	srv := fakeOdooServer(t, map[string]interface{}{
		"account.move": []map[string]interface{}{
			{"id": 4, "name": "FAC/2026/001", "amount_residual": 800.0, "invoice_date_due": "2026-09-15"},
		},
		"sale.order": []map[string]interface{}{
			{"id": 5, "name": "SO042", "date_order": "2026-08-20", "amount_total": 2500.0},
		},
	})
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	payments, err := client.ListPendingPayments(context.Background(), 7)
	if err != nil {
		t.Fatalf("list payments failed: %v", err)
	}
	if len(payments) != 1 || payments[0].Amount != 800 || payments[0].DueDate != "2026-09-15" {
		t.Errorf("unexpected payments: %+v", payments)
	}

	purchases, err := client.ListRecentPurchases(context.Background(), 7)
	if err != nil {
		t.Fatalf("list purchases failed: %v", err)
	}
	if len(purchases) != 1 || purchases[0].Tot != 2500 {
		t.Errorf("unexpected purchases: %+v", purchases)
	}
}

func TestTransportFailureMapsToCollaboratorUnavailable(t *testing.T) {
	client := newTestClient(t, "http://127.0.0.1:1") // nothing listening
	_, err := client.ListServices(context.Background())
	if !errors.Is(err, models.ErrCollaboratorUnavailable) {
		t.Errorf("expected ErrCollaboratorUnavailable, got %v", err)
	}
}

func TestRemoteErrorMapsToCollaboratorUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"jsonrpc": "2.0",
			"error":   map[string]interface{}{"code": 200, "message": "Odoo Server Error"},
		})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.ListServices(context.Background())
	if !errors.Is(err, models.ErrCollaboratorUnavailable) {
		t.Errorf("expected ErrCollaboratorUnavailable, got %v", err)
	}
}

func TestAuthenticationRejectedMapsToCollaboratorUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// authenticate returns false for bad credentials; it decodes to uid 0.
		json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "result": 0})
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	_, err := client.ListServices(context.Background())
	if !errors.Is(err, models.ErrCollaboratorUnavailable) {
		t.Errorf("expected ErrCollaboratorUnavailable, got %v", err)
	}
}

func TestNewRPCClientRequiresURLAndDB(t *testing.T) {
	t.Setenv("ODOO_URL", "")
	t.Setenv("ODOO_DB", "")
	if _, err := NewRPCClient(); err == nil {
		t.Error("expected error without URL and DB")
	}
}
