package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Ticket statuses. No transition graph is enforced: any status may follow
// any other. Entering done stamps resolved_at; leaving done clears it.
const (
	StatusTodo       = "todo"
	StatusInProgress = "in_progress"
	StatusInReview   = "in_review"
	StatusDone       = "done"
	StatusCancelled  = "cancelled"
)

// maxKeyAttempts bounds the retry loop for ticket key allocation. The
// per-project sequence makes collisions near impossible; the retry is a
// backstop for the unique index on key.
const maxKeyAttempts = 3

// Ticket represents an issue scoped to a project.
type Ticket struct {
	ID               string     `json:"id"`
	Key              string     `json:"key"`
	ProjectID        string     `json:"project_id"`
	Type             string     `json:"type"`
	Status           string     `json:"status"`
	Priority         string     `json:"priority"`
	Resolution       *string    `json:"resolution,omitempty"`
	Title            string     `json:"title"`
	Description      *string    `json:"description,omitempty"`
	ReporterID       string     `json:"reporter_id"`
	AssigneeID       *string    `json:"assignee_id,omitempty"`
	DueDate          *time.Time `json:"due_date,omitempty"`
	ResolvedAt       *time.Time `json:"resolved_at,omitempty"`
	OrderIndex       float64    `json:"order_index"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
	ReporterUsername string     `json:"reporter_username,omitempty"`
	AssigneeUsername *string    `json:"assignee_username,omitempty"`
}

// TicketStore provides access to tickets.
type TicketStore struct {
	db *sql.DB
}

// NewTicketStore creates a new TicketStore.
func NewTicketStore(db *sql.DB) *TicketStore {
	return &TicketStore{db: db}
}

const ticketSelectColumns = `
	tickets.id,
	tickets.key,
	tickets.project_id,
	tickets.type,
	tickets.status,
	tickets.priority,
	tickets.resolution,
	tickets.title,
	tickets.description,
	tickets.reporter_id,
	tickets.assignee_id,
	tickets.due_date,
	tickets.resolved_at,
	tickets.order_index,
	tickets.created_at,
	tickets.updated_at
`

func scanTicket(row rowScanner) (Ticket, error) {
	var t Ticket
	err := row.Scan(
		&t.ID,
		&t.Key,
		&t.ProjectID,
		&t.Type,
		&t.Status,
		&t.Priority,
		&t.Resolution,
		&t.Title,
		&t.Description,
		&t.ReporterID,
		&t.AssigneeID,
		&t.DueDate,
		&t.ResolvedAt,
		&t.OrderIndex,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
	return t, err
}

func isValidTicketType(s string) bool {
	switch s {
	case "bug", "feature", "task", "improvement":
		return true
	}
	return false
}

func isValidTicketStatus(s string) bool {
	switch s {
	case StatusTodo, StatusInProgress, StatusInReview, StatusDone, StatusCancelled:
		return true
	}
	return false
}

func isValidPriority(s string) bool {
	switch s {
	case "low", "medium", "high", "critical":
		return true
	}
	return false
}

func isValidResolution(s string) bool {
	switch s {
	case "fixed", "wont_fix", "duplicate", "incomplete":
		return true
	}
	return false
}

// CreateTicketInput defines the input for creating a ticket. The project is
// resolved by name, matching what clients send.
type CreateTicketInput struct {
	ProjectName string
	Title       string
	Description *string
	Type        string
	Priority    string
	DueDate     *time.Time
	OrderIndex  float64
}

// Create creates a ticket with an auto-generated key "{PROJECT_KEY}-{N}".
// N comes from an atomic per-project sequence bumped inside the creation
// transaction, so concurrent creations in the same project cannot collide;
// keys are never reused after deletions. A bounded retry on the key's
// unique index is kept as a backstop.
func (s *TicketStore) Create(ctx context.Context, input CreateTicketInput, reporterID string) (*Ticket, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, validationErrorf("title is required")
	}
	ticketType := strings.TrimSpace(input.Type)
	if ticketType == "" {
		ticketType = "task"
	}
	if !isValidTicketType(ticketType) {
		return nil, validationErrorf("invalid ticket type %q", ticketType)
	}
	priority := strings.TrimSpace(input.Priority)
	if priority == "" {
		priority = "medium"
	}
	if !isValidPriority(priority) {
		return nil, validationErrorf("invalid priority %q", priority)
	}

	var lastErr error
	for attempt := 0; attempt < maxKeyAttempts; attempt++ {
		ticket, err := s.tryCreate(ctx, input.ProjectName, title, input.Description, ticketType, priority, input.DueDate, input.OrderIndex, reporterID)
		if err == nil {
			return ticket, nil
		}
		if !isUniqueViolation(err, "tickets_key_key") {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("%w: could not allocate a unique ticket key: %v", ErrConflict, lastErr)
}

func (s *TicketStore) tryCreate(ctx context.Context, projectName, title string, description *string, ticketType, priority string, dueDate *time.Time, orderIndex float64, reporterID string) (*Ticket, error) {
	tx, err := beginTx(ctx, s.db)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var projectID, projectKey string
	err = tx.QueryRowContext(ctx,
		"SELECT id, key FROM projects WHERE name = $1 AND is_archived = FALSE",
		strings.TrimSpace(projectName),
	).Scan(&projectID, &projectKey)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to resolve project: %w", err)
	}

	// Row lock on the project serializes concurrent key allocation.
	var seq int64
	err = tx.QueryRowContext(ctx,
		"UPDATE projects SET ticket_seq = ticket_seq + 1 WHERE id = $1 RETURNING ticket_seq",
		projectID,
	).Scan(&seq)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate ticket number: %w", err)
	}
	key := fmt.Sprintf("%s-%d", projectKey, seq)

	ticket, err := scanTicket(tx.QueryRowContext(ctx, `
		INSERT INTO tickets (key, project_id, type, priority, title, description, reporter_id, due_date, order_index)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+ticketSelectColumns,
		key,
		projectID,
		ticketType,
		priority,
		title,
		nullableString(description),
		strings.TrimSpace(reporterID),
		dueDate,
		orderIndex,
	))
	if err != nil {
		return nil, err
	}

	if err := recordActivity(ctx, tx, ticket.ID, reporterID, ActivityCreated, nil, nil, &ticket.Key); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit ticket create: %w", err)
	}
	return &ticket, nil
}

// GetByID retrieves a ticket by ID.
func (s *TicketStore) GetByID(ctx context.Context, id string) (*Ticket, error) {
	if !uuidRegex.MatchString(strings.TrimSpace(id)) {
		return nil, ErrNotFound
	}
	ticket, err := scanTicket(s.db.QueryRowContext(ctx,
		"SELECT "+ticketSelectColumns+" FROM tickets WHERE tickets.id = $1", strings.TrimSpace(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	return &ticket, nil
}

// UpdateTicketInput defines the mutable ticket detail fields.
type UpdateTicketInput struct {
	Title       *string
	Description *string
	Type        *string
	Priority    *string
	DueDate     *time.Time
	OrderIndex  *float64
}

// Update updates ticket details. Status, assignment, and resolution have
// dedicated operations.
func (s *TicketStore) Update(ctx context.Context, id string, input UpdateTicketInput, actorID string) (*Ticket, error) {
	if input.Title != nil && strings.TrimSpace(*input.Title) == "" {
		return nil, validationErrorf("title cannot be empty")
	}
	if input.Type != nil && !isValidTicketType(strings.TrimSpace(*input.Type)) {
		return nil, validationErrorf("invalid ticket type %q", *input.Type)
	}
	if input.Priority != nil && !isValidPriority(strings.TrimSpace(*input.Priority)) {
		return nil, validationErrorf("invalid priority %q", *input.Priority)
	}

	tx, err := beginTx(ctx, s.db)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	ticket, err := scanTicket(tx.QueryRowContext(ctx, `
		UPDATE tickets SET
			title = COALESCE($2, title),
			description = COALESCE($3, description),
			type = COALESCE($4, type),
			priority = COALESCE($5, priority),
			due_date = COALESCE($6, due_date),
			order_index = COALESCE($7, order_index),
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+ticketSelectColumns,
		strings.TrimSpace(id),
		nullableString(input.Title),
		nullableString(input.Description),
		nullableString(input.Type),
		nullableString(input.Priority),
		input.DueDate,
		input.OrderIndex,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update ticket: %w", err)
	}

	if err := recordActivity(ctx, tx, ticket.ID, actorID, ActivityUpdated, nil, nil, nil); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit ticket update: %w", err)
	}
	return &ticket, nil
}

// UpdateStatus transitions a ticket to any status. Entering done stamps
// resolved_at and stores the optional resolution; every transition to a
// non-done status clears both, keeping status == done ⇔ resolved_at set.
func (s *TicketStore) UpdateStatus(ctx context.Context, id, newStatus string, resolution *string, actorID string) (*Ticket, error) {
	newStatus = strings.TrimSpace(newStatus)
	if !isValidTicketStatus(newStatus) {
		return nil, validationErrorf("invalid status %q", newStatus)
	}
	if resolution != nil {
		if !isValidResolution(strings.TrimSpace(*resolution)) {
			return nil, validationErrorf("invalid resolution %q", *resolution)
		}
		if newStatus != StatusDone {
			return nil, validationErrorf("resolution can only be set when closing as done")
		}
	}
	if !uuidRegex.MatchString(strings.TrimSpace(id)) {
		return nil, ErrNotFound
	}

	tx, err := beginTx(ctx, s.db)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var oldStatus string
	err = tx.QueryRowContext(ctx,
		"SELECT status FROM tickets WHERE id = $1 FOR UPDATE", strings.TrimSpace(id)).Scan(&oldStatus)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load ticket status: %w", err)
	}

	var ticket Ticket
	if newStatus == StatusDone {
		ticket, err = scanTicket(tx.QueryRowContext(ctx, `
			UPDATE tickets SET
				status = $2,
				resolution = $3,
				resolved_at = NOW(),
				updated_at = NOW()
			WHERE id = $1
			RETURNING `+ticketSelectColumns,
			strings.TrimSpace(id), newStatus, nullableString(resolution)))
	} else {
		ticket, err = scanTicket(tx.QueryRowContext(ctx, `
			UPDATE tickets SET
				status = $2,
				resolution = NULL,
				resolved_at = NULL,
				updated_at = NOW()
			WHERE id = $1
			RETURNING `+ticketSelectColumns,
			strings.TrimSpace(id), newStatus))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update ticket status: %w", err)
	}

	field := "status"
	if err := recordActivity(ctx, tx, ticket.ID, actorID, ActivityStatusChanged, &field, &oldStatus, &newStatus); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit status update: %w", err)
	}
	return &ticket, nil
}

// Assign sets the ticket's assignee. Membership of the assignee in the
// ticket's project is checked by the caller.
func (s *TicketStore) Assign(ctx context.Context, id, assigneeID, actorID string) (*Ticket, error) {
	if !uuidRegex.MatchString(strings.TrimSpace(id)) {
		return nil, ErrNotFound
	}

	tx, err := beginTx(ctx, s.db)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	ticket, err := scanTicket(tx.QueryRowContext(ctx, `
		UPDATE tickets SET assignee_id = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING `+ticketSelectColumns,
		strings.TrimSpace(id), strings.TrimSpace(assigneeID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to assign ticket: %w", err)
	}

	field := "assignee"
	if err := recordActivity(ctx, tx, ticket.ID, actorID, ActivityAssigned, &field, nil, &assigneeID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit assignment: %w", err)
	}
	return &ticket, nil
}

// Delete permanently removes a ticket and its comments, attachments, and
// activity rows (by cascade). Distinct from project archiving.
func (s *TicketStore) Delete(ctx context.Context, id string) error {
	if !uuidRegex.MatchString(strings.TrimSpace(id)) {
		return ErrNotFound
	}
	result, err := s.db.ExecContext(ctx, "DELETE FROM tickets WHERE id = $1", strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("failed to delete ticket: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete ticket: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListByProject returns a project's tickets, newest first.
func (s *TicketStore) ListByProject(ctx context.Context, projectID string) ([]Ticket, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ticketSelectColumns+`, reporter.username, assignee.username
		FROM tickets
		JOIN users reporter ON reporter.id = tickets.reporter_id
		LEFT JOIN users assignee ON assignee.id = tickets.assignee_id
		WHERE tickets.project_id = $1
		ORDER BY tickets.created_at DESC`,
		strings.TrimSpace(projectID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	defer rows.Close()

	tickets := make([]Ticket, 0)
	for rows.Next() {
		var t Ticket
		if err := rows.Scan(
			&t.ID, &t.Key, &t.ProjectID, &t.Type, &t.Status, &t.Priority, &t.Resolution,
			&t.Title, &t.Description, &t.ReporterID, &t.AssigneeID, &t.DueDate,
			&t.ResolvedAt, &t.OrderIndex, &t.CreatedAt, &t.UpdatedAt,
			&t.ReporterUsername, &t.AssigneeUsername,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ticket: %w", err)
		}
		tickets = append(tickets, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading tickets: %w", err)
	}
	return tickets, nil
}
