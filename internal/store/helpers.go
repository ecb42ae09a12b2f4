package store

import (
	"database/sql"
	"fmt"

	"github.com/flowdesk/flowdesk/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// scanConversationRow scans a ConversationContext from a single sql.Row.
func scanConversationRow(row *sql.Row) (*models.ConversationContext, error) {
	var c models.ConversationContext
	var lastAction, patientIdentifier, patientName sql.NullString
	err := row.Scan(
		&c.ID, &c.TenantID, &c.UserID, &c.FlowID, &c.CurrentState,
		&lastAction, &patientIdentifier, &patientName, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	c.LastAction = models.ActionID(lastAction.String)
	c.PatientIdentifier = patientIdentifier.String
	c.PatientName = patientName.String
	return &c, nil
}

// collectConversations scans all rows into ConversationContext values.
func collectConversations(rows *sql.Rows) ([]models.ConversationContext, error) {
	var out []models.ConversationContext
	for rows.Next() {
		var c models.ConversationContext
		var lastAction, patientIdentifier, patientName sql.NullString
		if err := rows.Scan(
			&c.ID, &c.TenantID, &c.UserID, &c.FlowID, &c.CurrentState,
			&lastAction, &patientIdentifier, &patientName, &c.CreatedAt, &c.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan conversation failed: %w", err)
		}
		c.LastAction = models.ActionID(lastAction.String)
		c.PatientIdentifier = patientIdentifier.String
		c.PatientName = patientName.String
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversation rows failed: %w", err)
	}
	return out, nil
}
