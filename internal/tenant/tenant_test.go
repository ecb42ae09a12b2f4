package tenant

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/flowdesk/flowdesk/internal/models"
)

func validTenant(id, line string) *models.Tenant {
	return &models.Tenant{
		ID:        id,
		BrandName: "Marca " + id,
		FlowID:    "flow_general",
		Line:      line,
	}
}

func TestRegistryRegisterAndGet(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(validTenant("acme", "15550000001")); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	got, err := registry.Get("acme")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.BrandName != "Marca acme" {
		t.Errorf("wrong tenant returned: %+v", got)
	}

	if _, err := registry.Get("ghost"); !errors.Is(err, models.ErrTenantNotFound) {
		t.Errorf("expected ErrTenantNotFound, got %v", err)
	}
}

func TestRegistryByLine(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(validTenant("acme", "15550000001")); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	got, err := registry.ByLine("15550000001")
	if err != nil {
		t.Fatalf("byLine failed: %v", err)
	}
	if got.ID != "acme" {
		t.Errorf("expected acme, got %s", got.ID)
	}

	if _, err := registry.ByLine("19990000000"); !errors.Is(err, models.ErrTenantNotFound) {
		t.Errorf("expected ErrTenantNotFound, got %v", err)
	}
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(validTenant("acme", "15550000001")); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if err := registry.Register(validTenant("acme", "15550000002")); err == nil {
		t.Error("duplicate tenant id should be rejected")
	}
	if err := registry.Register(validTenant("beta", "15550000001")); err == nil {
		t.Error("duplicate line should be rejected")
	}
}

func TestRegistryRejectsInvalidTenant(t *testing.T) {
	registry := NewRegistry()
	err := registry.Register(&models.Tenant{ID: "acme"})
	if err == nil {
		t.Error("tenant without brand and flow should be rejected")
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tenants.yaml")
	content := `tenants:
  - id: podopie
    brand_name: "Clínica Podopié"
    flow_id: flow_podopie
    line: "59891000001"
    handoff_queue: clinica
    odoo:
      enabled: true
      url: https://erp.example.com
      db: podopie_prod
      user: api@podopie.uy
      api_key: secret
  - id: acme
    brand_name: Acme
    flow_id: flow_general
    line: "59891000002"
    vars:
      city: Montevideo
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write tenants file: %v", err)
	}

	registry := NewRegistry()
	if err := LoadFile(registry, path); err != nil {
		t.Fatalf("load failed: %v", err)
	}

	clinic, err := registry.Get("podopie")
	if err != nil {
		t.Fatalf("tenant not loaded: %v", err)
	}
	if !clinic.Odoo.Enabled || clinic.Odoo.DB != "podopie_prod" || clinic.Odoo.APIKey != "secret" {
		t.Errorf("odoo settings not loaded: %+v", clinic.Odoo)
	}

	acme, _ := registry.Get("acme")
	if acme.Vars["city"] != "Montevideo" {
		t.Errorf("extra vars not loaded: %+v", acme.Vars)
	}
}

func TestLoadFileRejectsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tenants.yaml")
	if err := os.WriteFile(path, []byte("tenants: []\n"), 0644); err != nil {
		t.Fatalf("failed to write tenants file: %v", err)
	}
	if err := LoadFile(NewRegistry(), path); err == nil {
		t.Error("empty tenants file should be rejected")
	}
}

func TestLoadFileMissing(t *testing.T) {
	if err := LoadFile(NewRegistry(), "/nonexistent/tenants.yaml"); err == nil {
		t.Error("missing tenants file should be rejected")
	}
}
