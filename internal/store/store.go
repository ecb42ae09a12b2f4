// Package store provides conversation persistence backends for FlowDesk.
//
// It includes an in-memory store for tests, and SQLite and PostgreSQL
// backed stores with embedded migrations for production use.
package store

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/flowdesk/flowdesk/internal/models"
)

// ConversationStore persists one ConversationContext per (tenant, user)
// pair. Saves are atomic upserts: a failed save leaves the previous
// context intact.
type ConversationStore interface {
	// GetConversation returns the stored context, or nil if none exists.
	GetConversation(tenantID, userID string) (*models.ConversationContext, error)
	// SaveConversation atomically inserts or replaces the context.
	SaveConversation(convo models.ConversationContext) error
	// DeleteConversation removes the context. Deleting a missing context is not an error.
	DeleteConversation(tenantID, userID string) error
	// ListConversations returns all contexts for a tenant, newest first.
	ListConversations(tenantID string) ([]models.ConversationContext, error)
	// DeleteExpired removes contexts not updated since the given time and
	// returns how many were removed.
	DeleteExpired(before time.Time) (int, error)
	// Close releases backend resources.
	Close() error
}

// Opts holds configuration options for persistent store backends.
type Opts struct {
	DSN string
}

// Option defines a configuration option for a store backend.
type Option func(*Opts)

// WithDSN sets the database connection string.
func WithDSN(dsn string) Option {
	return func(o *Opts) { o.DSN = dsn }
}

// DetectDSNType reports "postgres" for PostgreSQL connection strings and
// "sqlite" for everything else (file paths).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// InMemoryStore is a map-backed ConversationStore for tests and local runs.
type InMemoryStore struct {
	mu     sync.RWMutex
	convos map[string]models.ConversationContext
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{convos: make(map[string]models.ConversationContext)}
}

func convoKey(tenantID, userID string) string {
	return tenantID + "|" + userID
}

// GetConversation returns the stored context, or nil if none exists.
func (s *InMemoryStore) GetConversation(tenantID, userID string) (*models.ConversationContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	convo, ok := s.convos[convoKey(tenantID, userID)]
	if !ok {
		return nil, nil
	}
	return &convo, nil
}

// SaveConversation inserts or replaces the context.
func (s *InMemoryStore) SaveConversation(convo models.ConversationContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.convos[convoKey(convo.TenantID, convo.UserID)] = convo
	return nil
}

// DeleteConversation removes the context if present.
func (s *InMemoryStore) DeleteConversation(tenantID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.convos, convoKey(tenantID, userID))
	return nil
}

// ListConversations returns all of a tenant's contexts, newest first.
func (s *InMemoryStore) ListConversations(tenantID string) ([]models.ConversationContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.ConversationContext
	for _, convo := range s.convos {
		if convo.TenantID == tenantID {
			out = append(out, convo)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// DeleteExpired removes contexts not updated since before.
func (s *InMemoryStore) DeleteExpired(before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key, convo := range s.convos {
		if convo.UpdatedAt.Before(before) {
			delete(s.convos, key)
			removed++
		}
	}
	return removed, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error {
	return nil
}
