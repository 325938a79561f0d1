package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Attachment is a file attached to a ticket. The record points at a file
// on disk; file IO is handled by the API layer.
type Attachment struct {
	ID               string    `json:"id"`
	TicketID         string    `json:"ticket_id"`
	UploadedBy       string    `json:"uploaded_by"`
	Filename         string    `json:"filename"`
	OriginalFilename string    `json:"original_filename"`
	FilePath         string    `json:"file_path"`
	FileURL          *string   `json:"file_url,omitempty"`
	FileSize         int64     `json:"file_size"`
	MimeType         string    `json:"mime_type"`
	CreatedAt        time.Time `json:"created_at"`
}

// AttachmentStore provides access to attachment records.
type AttachmentStore struct {
	db *sql.DB
}

// NewAttachmentStore creates a new AttachmentStore.
func NewAttachmentStore(db *sql.DB) *AttachmentStore {
	return &AttachmentStore{db: db}
}

const attachmentSelectColumns = "id, ticket_id, uploaded_by, filename, original_filename, file_path, file_url, file_size, mime_type, created_at"

func scanAttachment(row rowScanner) (Attachment, error) {
	var a Attachment
	err := row.Scan(
		&a.ID,
		&a.TicketID,
		&a.UploadedBy,
		&a.Filename,
		&a.OriginalFilename,
		&a.FilePath,
		&a.FileURL,
		&a.FileSize,
		&a.MimeType,
		&a.CreatedAt,
	)
	return a, err
}

// CreateAttachmentInput defines the input for recording an uploaded file.
type CreateAttachmentInput struct {
	TicketID         string
	UploadedBy       string
	Filename         string
	OriginalFilename string
	FilePath         string
	FileURL          *string
	FileSize         int64
	MimeType         string
}

// Create records an attachment after its file has been written to disk.
func (s *AttachmentStore) Create(ctx context.Context, input CreateAttachmentInput) (*Attachment, error) {
	ticketID := strings.TrimSpace(input.TicketID)
	if !uuidRegex.MatchString(ticketID) {
		return nil, ErrNotFound
	}
	attachment, err := scanAttachment(s.db.QueryRowContext(ctx, `
		INSERT INTO attachments (ticket_id, uploaded_by, filename, original_filename, file_path, file_url, file_size, mime_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+attachmentSelectColumns,
		ticketID,
		strings.TrimSpace(input.UploadedBy),
		input.Filename,
		input.OriginalFilename,
		input.FilePath,
		input.FileURL,
		input.FileSize,
		input.MimeType,
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create attachment: %w", err)
	}
	return &attachment, nil
}

// GetByID retrieves an attachment record by ID.
func (s *AttachmentStore) GetByID(ctx context.Context, id string) (*Attachment, error) {
	if !uuidRegex.MatchString(strings.TrimSpace(id)) {
		return nil, ErrNotFound
	}
	attachment, err := scanAttachment(s.db.QueryRowContext(ctx,
		"SELECT "+attachmentSelectColumns+" FROM attachments WHERE id = $1", strings.TrimSpace(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get attachment: %w", err)
	}
	return &attachment, nil
}

// ListByTicket returns a ticket's attachments, newest first.
func (s *AttachmentStore) ListByTicket(ctx context.Context, ticketID string) ([]Attachment, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+attachmentSelectColumns+" FROM attachments WHERE ticket_id = $1 ORDER BY created_at DESC, id",
		strings.TrimSpace(ticketID))
	if err != nil {
		return nil, fmt.Errorf("failed to list attachments: %w", err)
	}
	defer rows.Close()

	attachments := make([]Attachment, 0)
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		attachments = append(attachments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading attachments: %w", err)
	}
	return attachments, nil
}

// Delete removes an attachment record. The caller is responsible for
// unlinking the file afterwards.
func (s *AttachmentStore) Delete(ctx context.Context, id string) error {
	if !uuidRegex.MatchString(strings.TrimSpace(id)) {
		return ErrNotFound
	}
	result, err := s.db.ExecContext(ctx, "DELETE FROM attachments WHERE id = $1", strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("failed to delete attachment: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete attachment: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
