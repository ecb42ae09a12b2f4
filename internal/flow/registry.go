// Package flow implements the conversational flow engine: a registry of
// declarative flow definitions, a menu renderer, an action dispatcher with
// pluggable per-flow handlers, and the interpreter driving state
// transitions for each inbound message.
package flow

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/flowdesk/flowdesk/internal/models"
)

// Registry holds validated flow definitions keyed by id. It is populated
// at startup and read-only thereafter.
type Registry struct {
	mu    sync.RWMutex
	flows map[string]*models.FlowDefinition
}

// NewRegistry creates an empty flow registry.
func NewRegistry() *Registry {
	return &Registry{flows: make(map[string]*models.FlowDefinition)}
}

// Register validates the definition and adds it to the registry.
// Duplicate ids and any referential-integrity violation are rejected with
// models.ErrInvalidFlowDefinition.
func (r *Registry) Register(def *models.FlowDefinition) error {
	if err := def.Validate(); err != nil {
		slog.Error("Registry rejected flow definition", "error", err, "flowID", def.ID)
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.flows[def.ID]; exists {
		err := fmt.Errorf("%w: duplicate flow id %s", models.ErrInvalidFlowDefinition, def.ID)
		slog.Error("Registry rejected flow definition", "error", err, "flowID", def.ID)
		return err
	}
	r.flows[def.ID] = def

	slog.Info("Registry registered flow", "flowID", def.ID, "name", def.Name, "version", def.Version, "legacy", def.UseLegacyHandler)
	return nil
}

// Get retrieves the definition for the given flow id.
func (r *Registry) Get(id string) (*models.FlowDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.flows[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrFlowNotFound, id)
	}
	return def, nil
}

// IDs returns the registered flow ids in sorted order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make([]string, 0, len(r.flows))
	for id := range r.flows {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

var defaultRegistry = NewRegistry()

// Register adds a definition to the process-wide default registry.
func Register(def *models.FlowDefinition) error {
	return defaultRegistry.Register(def)
}

// Get retrieves a definition from the process-wide default registry.
func Get(id string) (*models.FlowDefinition, error) {
	return defaultRegistry.Get(id)
}

// Default returns the process-wide default registry.
func Default() *Registry {
	return defaultRegistry
}
