// Package store provides storage backends for FlowDesk.
//
// This file implements the SQLite-backed conversation store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/flowdesk/flowdesk/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore is a ConversationStore backed by a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN (a file
// path). The parent directory is created if needed and migrations run on
// open.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(cfg.DSN)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}
	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// GetConversation returns the stored context, or nil if none exists.
func (s *SQLiteStore) GetConversation(tenantID, userID string) (*models.ConversationContext, error) {
	row := s.db.QueryRow(
		`SELECT id, tenant_id, user_id, flow_id, current_state, last_action, patient_identifier, patient_name, created_at, updated_at
		 FROM conversations WHERE tenant_id = ? AND user_id = ?`, tenantID, userID)
	convo, err := scanConversationRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetConversation failed", "error", err, "tenantID", tenantID, "userID", userID)
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return convo, nil
}

// SaveConversation atomically upserts the context.
func (s *SQLiteStore) SaveConversation(convo models.ConversationContext) error {
	_, err := s.db.Exec(
		`INSERT INTO conversations (id, tenant_id, user_id, flow_id, current_state, last_action, patient_identifier, patient_name, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(tenant_id, user_id) DO UPDATE SET
		   flow_id = excluded.flow_id,
		   current_state = excluded.current_state,
		   last_action = excluded.last_action,
		   patient_identifier = excluded.patient_identifier,
		   patient_name = excluded.patient_name,
		   updated_at = excluded.updated_at`,
		convo.ID, convo.TenantID, convo.UserID, convo.FlowID, convo.CurrentState,
		nilIfEmpty(string(convo.LastAction)), nilIfEmpty(convo.PatientIdentifier), nilIfEmpty(convo.PatientName),
		convo.CreatedAt, convo.UpdatedAt)
	if err != nil {
		slog.Error("SQLiteStore SaveConversation failed", "error", err, "tenantID", convo.TenantID, "userID", convo.UserID)
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	slog.Debug("SQLiteStore SaveConversation succeeded", "tenantID", convo.TenantID, "userID", convo.UserID, "state", convo.CurrentState)
	return nil
}

// DeleteConversation removes the context if present.
func (s *SQLiteStore) DeleteConversation(tenantID, userID string) error {
	_, err := s.db.Exec(`DELETE FROM conversations WHERE tenant_id = ? AND user_id = ?`, tenantID, userID)
	if err != nil {
		slog.Error("SQLiteStore DeleteConversation failed", "error", err, "tenantID", tenantID, "userID", userID)
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	return nil
}

// ListConversations returns all of a tenant's contexts, newest first.
func (s *SQLiteStore) ListConversations(tenantID string) ([]models.ConversationContext, error) {
	rows, err := s.db.Query(
		`SELECT id, tenant_id, user_id, flow_id, current_state, last_action, patient_identifier, patient_name, created_at, updated_at
		 FROM conversations WHERE tenant_id = ? ORDER BY updated_at DESC`, tenantID)
	if err != nil {
		slog.Error("SQLiteStore ListConversations query failed", "error", err, "tenantID", tenantID)
		return nil, fmt.Errorf("failed to query conversations: %w", err)
	}
	defer rows.Close()
	return collectConversations(rows)
}

// DeleteExpired removes contexts not updated since before.
func (s *SQLiteStore) DeleteExpired(before time.Time) (int, error) {
	res, err := s.db.Exec(`DELETE FROM conversations WHERE updated_at < ?`, before)
	if err != nil {
		slog.Error("SQLiteStore DeleteExpired failed", "error", err)
		return 0, fmt.Errorf("failed to delete expired conversations: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

// Close closes the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
