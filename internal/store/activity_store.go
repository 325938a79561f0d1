package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// Activity actions recorded on the ticket audit trail.
const (
	ActivityCreated       = "created"
	ActivityUpdated       = "updated"
	ActivityStatusChanged = "status_changed"
	ActivityAssigned      = "assigned"
	ActivityCommented     = "commented"
)

// Activity is one append-only audit entry for a ticket.
type Activity struct {
	ID           string    `json:"id"`
	TicketID     string    `json:"ticket_id"`
	UserID       string    `json:"user_id"`
	Action       string    `json:"action"`
	FieldChanged *string   `json:"field_changed,omitempty"`
	OldValue     *string   `json:"old_value,omitempty"`
	NewValue     *string   `json:"new_value,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// ActivityStore provides read access to ticket activity. Writes happen
// inside the mutating stores' transactions via recordActivity.
type ActivityStore struct {
	db *sql.DB
}

// NewActivityStore creates a new ActivityStore.
func NewActivityStore(db *sql.DB) *ActivityStore {
	return &ActivityStore{db: db}
}

// recordActivity appends an audit row using the caller's Querier so the
// entry commits or rolls back together with the mutation it records.
func recordActivity(ctx context.Context, q Querier, ticketID, userID, action string, fieldChanged, oldValue, newValue *string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO activities (ticket_id, user_id, action, field_changed, old_value, new_value)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		ticketID, userID, action,
		nullableString(fieldChanged), nullableString(oldValue), nullableString(newValue),
	)
	if err != nil {
		return fmt.Errorf("failed to record activity: %w", err)
	}
	return nil
}

// ListByTicket returns a ticket's audit trail, oldest first.
func (s *ActivityStore) ListByTicket(ctx context.Context, ticketID string) ([]Activity, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ticket_id, user_id, action, field_changed, old_value, new_value, created_at
		FROM activities
		WHERE ticket_id = $1
		ORDER BY created_at, id`,
		strings.TrimSpace(ticketID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list activities: %w", err)
	}
	defer rows.Close()

	activities := make([]Activity, 0)
	for rows.Next() {
		var a Activity
		if err := rows.Scan(&a.ID, &a.TicketID, &a.UserID, &a.Action, &a.FieldChanged, &a.OldValue, &a.NewValue, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		activities = append(activities, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading activities: %w", err)
	}
	return activities, nil
}
