// Package tenant provides the tenant registry for FlowDesk.
//
// Tenants are loaded once at startup from a YAML file and looked up by id
// or by the WhatsApp line that received an inbound message.
package tenant

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v2"

	"github.com/flowdesk/flowdesk/internal/models"
)

// Registry holds validated tenants keyed by id.
type Registry struct {
	mu      sync.RWMutex
	tenants map[string]*models.Tenant
	byLine  map[string]*models.Tenant
}

// NewRegistry creates an empty tenant registry.
func NewRegistry() *Registry {
	return &Registry{
		tenants: make(map[string]*models.Tenant),
		byLine:  make(map[string]*models.Tenant),
	}
}

// Register validates and adds a tenant.
func (r *Registry) Register(t *models.Tenant) error {
	if err := t.Validate(); err != nil {
		slog.Error("Tenant registry rejected tenant", "error", err, "tenantID", t.ID)
		return fmt.Errorf("invalid tenant %s: %w", t.ID, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tenants[t.ID]; exists {
		return fmt.Errorf("duplicate tenant id %s", t.ID)
	}
	if t.Line != "" {
		if other, exists := r.byLine[t.Line]; exists {
			return fmt.Errorf("tenant %s reuses line %s already owned by %s", t.ID, t.Line, other.ID)
		}
		r.byLine[t.Line] = t
	}
	r.tenants[t.ID] = t

	slog.Info("Tenant registered", "tenantID", t.ID, "brand", t.BrandName, "flowID", t.FlowID, "odoo_enabled", t.Odoo.Enabled)
	return nil
}

// Get retrieves a tenant by id.
func (r *Registry) Get(id string) (*models.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tenants[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrTenantNotFound, id)
	}
	return t, nil
}

// ByLine retrieves the tenant owning the given WhatsApp line.
func (r *Registry) ByLine(line string) (*models.Tenant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byLine[line]
	if !ok {
		return nil, fmt.Errorf("%w: line %s", models.ErrTenantNotFound, line)
	}
	return t, nil
}

// IDs returns the registered tenant ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.tenants))
	for id := range r.tenants {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// tenantsFile is the YAML document shape: a top-level tenants list.
type tenantsFile struct {
	Tenants []models.Tenant `yaml:"tenants"`
}

// LoadFile reads a YAML tenants file and registers every tenant in it.
func LoadFile(registry *Registry, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read tenants file %s: %w", path, err)
	}

	var file tenantsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse tenants file %s: %w", path, err)
	}
	if len(file.Tenants) == 0 {
		return fmt.Errorf("tenants file %s declares no tenants", path)
	}

	for i := range file.Tenants {
		if err := registry.Register(&file.Tenants[i]); err != nil {
			return err
		}
	}
	slog.Info("Tenants loaded", "path", path, "count", len(file.Tenants))
	return nil
}
