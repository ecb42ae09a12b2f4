// Package store provides storage backends for FlowDesk.
//
// This file implements the PostgreSQL-backed conversation store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/flowdesk/flowdesk/internal/models"
	_ "github.com/lib/pq"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore is a ConversationStore backed by PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store with the given DSN and
// runs migrations on open.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run Postgres migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// GetConversation returns the stored context, or nil if none exists.
func (s *PostgresStore) GetConversation(tenantID, userID string) (*models.ConversationContext, error) {
	row := s.db.QueryRow(
		`SELECT id, tenant_id, user_id, flow_id, current_state, last_action, patient_identifier, patient_name, created_at, updated_at
		 FROM conversations WHERE tenant_id = $1 AND user_id = $2`, tenantID, userID)
	convo, err := scanConversationRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetConversation failed", "error", err, "tenantID", tenantID, "userID", userID)
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return convo, nil
}

// SaveConversation atomically upserts the context.
func (s *PostgresStore) SaveConversation(convo models.ConversationContext) error {
	_, err := s.db.Exec(
		`INSERT INTO conversations (id, tenant_id, user_id, flow_id, current_state, last_action, patient_identifier, patient_name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (tenant_id, user_id) DO UPDATE SET
		   flow_id = EXCLUDED.flow_id,
		   current_state = EXCLUDED.current_state,
		   last_action = EXCLUDED.last_action,
		   patient_identifier = EXCLUDED.patient_identifier,
		   patient_name = EXCLUDED.patient_name,
		   updated_at = EXCLUDED.updated_at`,
		convo.ID, convo.TenantID, convo.UserID, convo.FlowID, convo.CurrentState,
		nilIfEmpty(string(convo.LastAction)), nilIfEmpty(convo.PatientIdentifier), nilIfEmpty(convo.PatientName),
		convo.CreatedAt, convo.UpdatedAt)
	if err != nil {
		slog.Error("PostgresStore SaveConversation failed", "error", err, "tenantID", convo.TenantID, "userID", convo.UserID)
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	slog.Debug("PostgresStore SaveConversation succeeded", "tenantID", convo.TenantID, "userID", convo.UserID, "state", convo.CurrentState)
	return nil
}

// DeleteConversation removes the context if present.
func (s *PostgresStore) DeleteConversation(tenantID, userID string) error {
	_, err := s.db.Exec(`DELETE FROM conversations WHERE tenant_id = $1 AND user_id = $2`, tenantID, userID)
	if err != nil {
		slog.Error("PostgresStore DeleteConversation failed", "error", err, "tenantID", tenantID, "userID", userID)
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

// ListConversations returns all of a tenant's contexts, newest first.
func (s *PostgresStore) ListConversations(tenantID string) ([]models.ConversationContext, error) {
	rows, err := s.db.Query(
		`SELECT id, tenant_id, user_id, flow_id, current_state, last_action, patient_identifier, patient_name, created_at, updated_at
		 FROM conversations WHERE tenant_id = $1 ORDER BY updated_at DESC`, tenantID)
	if err != nil {
		slog.Error("PostgresStore ListConversations query failed", "error", err, "tenantID", tenantID)
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()
	return collectConversations(rows)
}

// DeleteExpired removes contexts not updated since before.
func (s *PostgresStore) DeleteExpired(before time.Time) (int, error) {
	res, err := s.db.Exec(`DELETE FROM conversations WHERE updated_at < $1`, before)
	if err != nil {
		slog.Error("PostgresStore DeleteExpired failed", "error", err)
		return 0, fmt.Errorf("failed to delete expired conversations: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Close closes the database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
