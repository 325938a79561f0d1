package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

var labelColorRegex = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)

// Label is a project-scoped tag that can be attached to tickets.
type Label struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	Name        string    `json:"name"`
	Color       string    `json:"color"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// LabelStore provides access to labels and ticket label assignments.
type LabelStore struct {
	db *sql.DB
}

// NewLabelStore creates a new LabelStore.
func NewLabelStore(db *sql.DB) *LabelStore {
	return &LabelStore{db: db}
}

const labelSelectColumns = "id, project_id, name, color, description, created_at"

func scanLabel(row rowScanner) (Label, error) {
	var l Label
	err := row.Scan(&l.ID, &l.ProjectID, &l.Name, &l.Color, &l.Description, &l.CreatedAt)
	return l, err
}

// Create adds a label to a project. Names are unique per project.
func (s *LabelStore) Create(ctx context.Context, projectID, name, color string, description *string) (*Label, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, validationErrorf("label name is required")
	}
	color = strings.TrimSpace(color)
	if !labelColorRegex.MatchString(color) {
		return nil, validationErrorf("label color must be a hex value like #ff8800")
	}

	label, err := scanLabel(s.db.QueryRowContext(ctx, `
		INSERT INTO labels (project_id, name, color, description)
		VALUES ($1, $2, $3, $4)
		RETURNING `+labelSelectColumns,
		strings.TrimSpace(projectID), name, strings.ToLower(color), description))
	if err != nil {
		if isUniqueViolation(err, "unique_label_per_project") {
			return nil, conflictErrorf("a label named %q already exists in this project", name)
		}
		return nil, fmt.Errorf("failed to create label: %w", err)
	}
	return &label, nil
}

// GetByID retrieves a label by ID.
func (s *LabelStore) GetByID(ctx context.Context, id string) (*Label, error) {
	if !uuidRegex.MatchString(strings.TrimSpace(id)) {
		return nil, ErrNotFound
	}
	label, err := scanLabel(s.db.QueryRowContext(ctx,
		"SELECT "+labelSelectColumns+" FROM labels WHERE id = $1", strings.TrimSpace(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get label: %w", err)
	}
	return &label, nil
}

// ListByProject returns a project's labels ordered by name.
func (s *LabelStore) ListByProject(ctx context.Context, projectID string) ([]Label, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+labelSelectColumns+" FROM labels WHERE project_id = $1 ORDER BY name",
		strings.TrimSpace(projectID))
	if err != nil {
		return nil, fmt.Errorf("failed to list labels: %w", err)
	}
	defer rows.Close()

	labels := make([]Label, 0)
	for rows.Next() {
		l, err := scanLabel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan label: %w", err)
		}
		labels = append(labels, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading labels: %w", err)
	}
	return labels, nil
}

// Update changes a label's name, color, or description. Nil fields are
// left untouched.
func (s *LabelStore) Update(ctx context.Context, id string, name, color, description *string) (*Label, error) {
	if name != nil && strings.TrimSpace(*name) == "" {
		return nil, validationErrorf("label name cannot be empty")
	}
	if color != nil {
		trimmed := strings.TrimSpace(*color)
		if !labelColorRegex.MatchString(trimmed) {
			return nil, validationErrorf("label color must be a hex value like #ff8800")
		}
		lowered := strings.ToLower(trimmed)
		color = &lowered
	}

	label, err := scanLabel(s.db.QueryRowContext(ctx, `
		UPDATE labels SET
			name = COALESCE($2, name),
			color = COALESCE($3, color),
			description = COALESCE($4, description)
		WHERE id = $1
		RETURNING `+labelSelectColumns,
		strings.TrimSpace(id), nullableString(name), color, description))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		if isUniqueViolation(err, "unique_label_per_project") {
			return nil, conflictErrorf("a label with that name already exists in this project")
		}
		return nil, fmt.Errorf("failed to update label: %w", err)
	}
	return &label, nil
}

// Delete removes a label. Ticket assignments cascade with it.
func (s *LabelStore) Delete(ctx context.Context, id string) error {
	if !uuidRegex.MatchString(strings.TrimSpace(id)) {
		return ErrNotFound
	}
	result, err := s.db.ExecContext(ctx, "DELETE FROM labels WHERE id = $1", strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("failed to delete label: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete label: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// AttachToTicket assigns a label to a ticket. The label and ticket must
// belong to the same project.
func (s *LabelStore) AttachToTicket(ctx context.Context, ticketID, labelID string) error {
	ticketID = strings.TrimSpace(ticketID)
	labelID = strings.TrimSpace(labelID)
	if !uuidRegex.MatchString(ticketID) || !uuidRegex.MatchString(labelID) {
		return ErrNotFound
	}

	var ticketProject, labelProject string
	err := s.db.QueryRowContext(ctx, `
		SELECT tickets.project_id, labels.project_id
		FROM tickets, labels
		WHERE tickets.id = $1 AND labels.id = $2`,
		ticketID, labelID).Scan(&ticketProject, &labelProject)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to check label assignment: %w", err)
	}
	if ticketProject != labelProject {
		return validationErrorf("label belongs to a different project")
	}

	_, err = s.db.ExecContext(ctx,
		"INSERT INTO ticket_labels (ticket_id, label_id) VALUES ($1, $2)",
		ticketID, labelID)
	if err != nil {
		if isUniqueViolation(err, "unique_ticket_label") {
			return conflictErrorf("label is already attached to this ticket")
		}
		return fmt.Errorf("failed to attach label: %w", err)
	}
	return nil
}

// DetachFromTicket removes a label assignment from a ticket.
func (s *LabelStore) DetachFromTicket(ctx context.Context, ticketID, labelID string) error {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM ticket_labels WHERE ticket_id = $1 AND label_id = $2",
		strings.TrimSpace(ticketID), strings.TrimSpace(labelID))
	if err != nil {
		return fmt.Errorf("failed to detach label: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to detach label: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListForTicket returns the labels attached to a ticket ordered by name.
func (s *LabelStore) ListForTicket(ctx context.Context, ticketID string) ([]Label, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT labels.id, labels.project_id, labels.name, labels.color, labels.description, labels.created_at
		FROM labels
		JOIN ticket_labels ON ticket_labels.label_id = labels.id
		WHERE ticket_labels.ticket_id = $1
		ORDER BY labels.name`,
		strings.TrimSpace(ticketID))
	if err != nil {
		return nil, fmt.Errorf("failed to list ticket labels: %w", err)
	}
	defer rows.Close()

	labels := make([]Label, 0)
	for rows.Next() {
		l, err := scanLabel(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan label: %w", err)
		}
		labels = append(labels, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading ticket labels: %w", err)
	}
	return labels, nil
}
