package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Comment represents a comment on a ticket, optionally threaded via
// parent_id. A reply's parent must belong to the same ticket.
type Comment struct {
	ID             string    `json:"id"`
	TicketID       string    `json:"ticket_id"`
	AuthorID       string    `json:"author_id"`
	ParentID       *string   `json:"parent_id,omitempty"`
	Content        string    `json:"content"`
	IsEdited       bool      `json:"is_edited"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
	AuthorUsername string    `json:"author_username,omitempty"`
}

// CommentStore provides access to ticket comments.
type CommentStore struct {
	db *sql.DB
}

// NewCommentStore creates a new CommentStore.
func NewCommentStore(db *sql.DB) *CommentStore {
	return &CommentStore{db: db}
}

const commentSelectColumns = "id, ticket_id, author_id, parent_id, content, is_edited, created_at, updated_at"

func scanComment(row rowScanner) (Comment, error) {
	var c Comment
	err := row.Scan(
		&c.ID,
		&c.TicketID,
		&c.AuthorID,
		&c.ParentID,
		&c.Content,
		&c.IsEdited,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	return c, err
}

// CreateCommentInput defines the input for posting a comment.
type CreateCommentInput struct {
	TicketID string
	AuthorID string
	ParentID *string
	Content  string
}

// Create posts a comment and records the commented activity in the same
// transaction.
func (s *CommentStore) Create(ctx context.Context, input CreateCommentInput) (*Comment, error) {
	content := strings.TrimSpace(input.Content)
	if content == "" {
		return nil, validationErrorf("comment content is required")
	}
	ticketID := strings.TrimSpace(input.TicketID)
	if !uuidRegex.MatchString(ticketID) {
		return nil, ErrNotFound
	}

	tx, err := beginTx(ctx, s.db)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM tickets WHERE id = $1)", ticketID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check ticket: %w", err)
	}
	if !exists {
		return nil, ErrNotFound
	}

	if input.ParentID != nil && strings.TrimSpace(*input.ParentID) != "" {
		parentID := strings.TrimSpace(*input.ParentID)
		if !uuidRegex.MatchString(parentID) {
			return nil, validationErrorf("invalid parent comment id")
		}
		var parentTicketID string
		err := tx.QueryRowContext(ctx,
			"SELECT ticket_id FROM comments WHERE id = $1", parentID).Scan(&parentTicketID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, validationErrorf("parent comment not found")
			}
			return nil, fmt.Errorf("failed to check parent comment: %w", err)
		}
		if parentTicketID != ticketID {
			return nil, validationErrorf("parent comment belongs to a different ticket")
		}
		input.ParentID = &parentID
	} else {
		input.ParentID = nil
	}

	comment, err := scanComment(tx.QueryRowContext(ctx, `
		INSERT INTO comments (ticket_id, author_id, parent_id, content)
		VALUES ($1, $2, $3, $4)
		RETURNING `+commentSelectColumns,
		ticketID,
		strings.TrimSpace(input.AuthorID),
		input.ParentID,
		content,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create comment: %w", err)
	}

	if err := recordActivity(ctx, tx, ticketID, input.AuthorID, ActivityCommented, nil, nil, nil); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit comment create: %w", err)
	}
	return &comment, nil
}

// GetByID retrieves a comment by ID.
func (s *CommentStore) GetByID(ctx context.Context, id string) (*Comment, error) {
	if !uuidRegex.MatchString(strings.TrimSpace(id)) {
		return nil, ErrNotFound
	}
	comment, err := scanComment(s.db.QueryRowContext(ctx,
		"SELECT "+commentSelectColumns+" FROM comments WHERE id = $1", strings.TrimSpace(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get comment: %w", err)
	}
	return &comment, nil
}

// ListByTicket returns a ticket's comments oldest first, with author
// usernames for display.
func (s *CommentStore) ListByTicket(ctx context.Context, ticketID string) ([]Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT comments.id, comments.ticket_id, comments.author_id, comments.parent_id,
		       comments.content, comments.is_edited, comments.created_at, comments.updated_at,
		       users.username
		FROM comments
		JOIN users ON users.id = comments.author_id
		WHERE comments.ticket_id = $1
		ORDER BY comments.created_at, comments.id`,
		strings.TrimSpace(ticketID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	comments := make([]Comment, 0)
	for rows.Next() {
		var c Comment
		if err := rows.Scan(
			&c.ID, &c.TicketID, &c.AuthorID, &c.ParentID,
			&c.Content, &c.IsEdited, &c.CreatedAt, &c.UpdatedAt,
			&c.AuthorUsername,
		); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading comments: %w", err)
	}
	return comments, nil
}

// UpdateContent edits a comment's content and marks it edited. Authorship
// is checked by the caller.
func (s *CommentStore) UpdateContent(ctx context.Context, id, content string) (*Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, validationErrorf("comment content is required")
	}

	comment, err := scanComment(s.db.QueryRowContext(ctx, `
		UPDATE comments SET content = $2, is_edited = TRUE, updated_at = NOW()
		WHERE id = $1
		RETURNING `+commentSelectColumns,
		strings.TrimSpace(id), content))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update comment: %w", err)
	}
	return &comment, nil
}

// Delete removes a comment. Replies cascade with it.
func (s *CommentStore) Delete(ctx context.Context, id string) error {
	if !uuidRegex.MatchString(strings.TrimSpace(id)) {
		return ErrNotFound
	}
	result, err := s.db.ExecContext(ctx, "DELETE FROM comments WHERE id = $1", strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
