package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pcorbett/issuedeck/internal/policy"
)

// Invitation statuses. Pending is the only non-terminal state.
const (
	InvitationPending  = "pending"
	InvitationAccepted = "accepted"
	InvitationDeclined = "declined"
	InvitationExpired  = "expired"
)

// Invitation represents a pending or settled project invitation.
type Invitation struct {
	ID          string             `json:"id"`
	ProjectID   string             `json:"project_id"`
	UserID      string             `json:"user_id"`
	InvitedBy   string             `json:"invited_by"`
	Role        policy.ProjectRole `json:"role"`
	Status      string             `json:"status"`
	CreatedAt   time.Time          `json:"created_at"`
	ExpiresAt   time.Time          `json:"expires_at"`
	ProjectName string             `json:"project_name,omitempty"`
	InviterName string             `json:"invited_by_username,omitempty"`
}

// InvitationStore provides access to project invitations.
type InvitationStore struct {
	db *sql.DB
}

// NewInvitationStore creates a new InvitationStore.
func NewInvitationStore(db *sql.DB) *InvitationStore {
	return &InvitationStore{db: db}
}

const invitationSelectColumns = "id, project_id, user_id, invited_by, role, status, created_at, expires_at"

func scanInvitation(row rowScanner) (Invitation, error) {
	var inv Invitation
	err := row.Scan(
		&inv.ID,
		&inv.ProjectID,
		&inv.UserID,
		&inv.InvitedBy,
		&inv.Role,
		&inv.Status,
		&inv.CreatedAt,
		&inv.ExpiresAt,
	)
	return inv, err
}

// Create issues an invitation. Fails with ErrConflict if the invitee is
// already a member or already has a pending invitation for the project, and
// ErrNotFound if the invitee does not exist.
func (s *InvitationStore) Create(ctx context.Context, projectID, inviteeID string, role policy.ProjectRole, invitedBy string, ttl time.Duration) (*Invitation, error) {
	if !policy.ValidInviteRole(string(role)) {
		return nil, validationErrorf("role must be admin, developer, or viewer")
	}
	inviteeID = strings.TrimSpace(inviteeID)
	if !uuidRegex.MatchString(inviteeID) {
		return nil, ErrNotFound
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx,
		"SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)", inviteeID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check invitee: %w", err)
	}
	if !exists {
		return nil, ErrNotFound
	}

	existingRole, err := memberRole(ctx, s.db, projectID, inviteeID)
	if err != nil {
		return nil, err
	}
	if existingRole != policy.RoleNone {
		return nil, conflictErrorf("user is already a member of this project")
	}

	var pending bool
	if err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM project_invitations
			WHERE project_id = $1 AND user_id = $2 AND status = 'pending'
		)`, projectID, inviteeID).Scan(&pending); err != nil {
		return nil, fmt.Errorf("failed to check pending invitations: %w", err)
	}
	if pending {
		return nil, conflictErrorf("user already has a pending invitation")
	}

	inv, err := scanInvitation(s.db.QueryRowContext(ctx, `
		INSERT INTO project_invitations (project_id, user_id, invited_by, role, expires_at)
		VALUES ($1, $2, $3, $4, NOW() + $5::interval)
		RETURNING `+invitationSelectColumns,
		strings.TrimSpace(projectID),
		inviteeID,
		strings.TrimSpace(invitedBy),
		string(role),
		fmt.Sprintf("%d seconds", int(ttl.Seconds())),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create invitation: %w", err)
	}
	return &inv, nil
}

// GetByID retrieves an invitation by ID.
func (s *InvitationStore) GetByID(ctx context.Context, id string) (*Invitation, error) {
	if !uuidRegex.MatchString(strings.TrimSpace(id)) {
		return nil, ErrNotFound
	}
	inv, err := scanInvitation(s.db.QueryRowContext(ctx,
		"SELECT "+invitationSelectColumns+" FROM project_invitations WHERE id = $1", strings.TrimSpace(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get invitation: %w", err)
	}
	return &inv, nil
}

// ListPendingForUser returns pending invitations addressed to the user, with
// project and inviter names for display. Rows past expires_at still read
// pending here; they are settled lazily at accept time.
func (s *InvitationStore) ListPendingForUser(ctx context.Context, userID string) ([]Invitation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.project_id, i.user_id, i.invited_by, i.role, i.status, i.created_at, i.expires_at,
		       p.name, u.username
		FROM project_invitations i
		JOIN projects p ON p.id = i.project_id
		JOIN users u ON u.id = i.invited_by
		WHERE i.user_id = $1 AND i.status = 'pending'
		ORDER BY i.created_at DESC`,
		strings.TrimSpace(userID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list invitations: %w", err)
	}
	defer rows.Close()

	invitations := make([]Invitation, 0)
	for rows.Next() {
		var inv Invitation
		if err := rows.Scan(
			&inv.ID, &inv.ProjectID, &inv.UserID, &inv.InvitedBy, &inv.Role,
			&inv.Status, &inv.CreatedAt, &inv.ExpiresAt,
			&inv.ProjectName, &inv.InviterName,
		); err != nil {
			return nil, fmt.Errorf("failed to scan invitation: %w", err)
		}
		invitations = append(invitations, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading invitations: %w", err)
	}
	return invitations, nil
}

// Accept settles a pending invitation: atomically inserts the membership
// with the invited role and flips the status to accepted. Both happen or
// neither does. Expiry is checked lazily here: a pending invitation past
// its expires_at transitions to expired and the accept fails with
// ErrConflict.
func (s *InvitationStore) Accept(ctx context.Context, invitationID, actingUserID string) (*ProjectMember, error) {
	if !uuidRegex.MatchString(strings.TrimSpace(invitationID)) {
		return nil, ErrNotFound
	}

	tx, err := beginTx(ctx, s.db)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	inv, err := scanInvitation(tx.QueryRowContext(ctx,
		"SELECT "+invitationSelectColumns+" FROM project_invitations WHERE id = $1 FOR UPDATE",
		strings.TrimSpace(invitationID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load invitation: %w", err)
	}

	if inv.UserID != strings.TrimSpace(actingUserID) {
		return nil, ErrForbidden
	}
	if inv.Status != InvitationPending {
		return nil, conflictErrorf("invitation is already %s", inv.Status)
	}
	if time.Now().After(inv.ExpiresAt) {
		if _, err := tx.ExecContext(ctx,
			"UPDATE project_invitations SET status = 'expired' WHERE id = $1", inv.ID); err != nil {
			return nil, fmt.Errorf("failed to expire invitation: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit invitation expiry: %w", err)
		}
		return nil, conflictErrorf("invitation has expired")
	}

	member, err := addMember(ctx, tx, inv.ProjectID, inv.UserID, inv.Role, inv.InvitedBy)
	if err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE project_invitations SET status = 'accepted' WHERE id = $1", inv.ID); err != nil {
		return nil, fmt.Errorf("failed to mark invitation accepted: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit invitation accept: %w", err)
	}
	return member, nil
}

// Decline settles a pending invitation as declined. No membership side
// effect.
func (s *InvitationStore) Decline(ctx context.Context, invitationID, actingUserID string) error {
	if !uuidRegex.MatchString(strings.TrimSpace(invitationID)) {
		return ErrNotFound
	}

	tx, err := beginTx(ctx, s.db)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	inv, err := scanInvitation(tx.QueryRowContext(ctx,
		"SELECT "+invitationSelectColumns+" FROM project_invitations WHERE id = $1 FOR UPDATE",
		strings.TrimSpace(invitationID)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to load invitation: %w", err)
	}

	if inv.UserID != strings.TrimSpace(actingUserID) {
		return ErrForbidden
	}
	if inv.Status != InvitationPending {
		return conflictErrorf("invitation is already %s", inv.Status)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE project_invitations SET status = 'declined' WHERE id = $1", inv.ID); err != nil {
		return fmt.Errorf("failed to mark invitation declined: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit invitation decline: %w", err)
	}
	return nil
}
