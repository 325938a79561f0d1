package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/pcorbett/issuedeck/internal/policy"
)

// Project represents a project entity.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Key         string    `json:"key"`
	Description *string   `json:"description,omitempty"`
	IsPrivate   bool      `json:"is_private"`
	IsArchived  bool      `json:"is_archived"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ProjectMember is the join entity granting a user a role within a project.
type ProjectMember struct {
	ID        string             `json:"id"`
	ProjectID string             `json:"project_id"`
	UserID    string             `json:"user_id"`
	Role      policy.ProjectRole `json:"role"`
	AddedBy   string             `json:"added_by"`
	JoinedAt  time.Time          `json:"joined_at"`
	Username  string             `json:"username"`
	Email     string             `json:"email"`
	FullName  *string            `json:"full_name,omitempty"`
}

// ProjectStore provides access to projects and their memberships.
type ProjectStore struct {
	db *sql.DB
}

// NewProjectStore creates a new ProjectStore.
func NewProjectStore(db *sql.DB) *ProjectStore {
	return &ProjectStore{db: db}
}

var projectKeyRegex = regexp.MustCompile(`^[A-Z0-9]{2,10}$`)

const projectSelectColumns = "id, name, key, description, is_private, is_archived, created_by, created_at, updated_at"

func scanProject(row rowScanner) (Project, error) {
	var p Project
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.Key,
		&p.Description,
		&p.IsPrivate,
		&p.IsArchived,
		&p.CreatedBy,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	return p, err
}

// CreateProjectInput defines the input for creating a new project.
type CreateProjectInput struct {
	Name        string
	Key         string
	Description *string
	IsPrivate   *bool
}

// Create creates a project, inserts the creator as owner, and promotes the
// creator's global role from viewer to admin, all in one transaction. A
// crash between steps must not leave a project without an owner.
func (s *ProjectStore) Create(ctx context.Context, input CreateProjectInput, createdBy string) (*Project, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, validationErrorf("project name is required")
	}
	key := strings.ToUpper(strings.TrimSpace(input.Key))
	if !projectKeyRegex.MatchString(key) {
		return nil, validationErrorf("project key must be 2-10 uppercase letters or digits")
	}

	isPrivate := true
	if input.IsPrivate != nil {
		isPrivate = *input.IsPrivate
	}

	tx, err := beginTx(ctx, s.db)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	project, err := scanProject(tx.QueryRowContext(ctx, `
		INSERT INTO projects (name, key, description, is_private, created_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+projectSelectColumns,
		name,
		key,
		nullableString(input.Description),
		isPrivate,
		createdBy,
	))
	if err != nil {
		if isUniqueViolation(err, "") {
			return nil, conflictErrorf("project key or name already exists")
		}
		return nil, fmt.Errorf("failed to create project: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO project_members (project_id, user_id, role, added_by)
		VALUES ($1, $2, 'owner', $2)`,
		project.ID, createdBy,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert owner membership: %w", err)
	}

	// First owned project promotes a viewer to global admin.
	result, err := tx.ExecContext(ctx,
		"UPDATE users SET role = 'admin', updated_at = NOW() WHERE id = $1 AND role = 'viewer'",
		createdBy,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to promote project creator: %w", err)
	}
	promoted, _ := result.RowsAffected()

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit project create: %w", err)
	}

	if promoted > 0 {
		log.Printf("promoted user %s to global admin on first project %s (%s)", createdBy, project.Key, project.ID)
	}

	return &project, nil
}

// GetByID retrieves a project by ID, archived or not.
func (s *ProjectStore) GetByID(ctx context.Context, id string) (*Project, error) {
	if !uuidRegex.MatchString(strings.TrimSpace(id)) {
		return nil, ErrNotFound
	}
	project, err := scanProject(s.db.QueryRowContext(ctx,
		"SELECT "+projectSelectColumns+" FROM projects WHERE id = $1", strings.TrimSpace(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &project, nil
}

// GetByName retrieves a non-archived project by exact name. Archived
// projects are hidden from every name-based lookup.
func (s *ProjectStore) GetByName(ctx context.Context, name string) (*Project, error) {
	project, err := scanProject(s.db.QueryRowContext(ctx,
		"SELECT "+projectSelectColumns+" FROM projects WHERE name = $1 AND is_archived = FALSE",
		strings.TrimSpace(name)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get project by name: %w", err)
	}
	return &project, nil
}

// ListForUser retrieves all non-archived projects where the user is a member.
func (s *ProjectStore) ListForUser(ctx context.Context, userID string) ([]Project, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+projectSelectColumns+`
		FROM projects
		JOIN project_members ON project_members.project_id = projects.id
		WHERE project_members.user_id = $1 AND projects.is_archived = FALSE
		ORDER BY projects.created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	projects := make([]Project, 0)
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, project)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading projects: %w", err)
	}
	return projects, nil
}

// UpdateProjectInput defines the input for updating a project.
type UpdateProjectInput struct {
	Name        *string
	Key         *string
	Description *string
	IsPrivate   *bool
}

// Update updates project fields. Nil fields are left untouched.
func (s *ProjectStore) Update(ctx context.Context, id string, input UpdateProjectInput) (*Project, error) {
	if input.Key != nil {
		key := strings.ToUpper(strings.TrimSpace(*input.Key))
		if !projectKeyRegex.MatchString(key) {
			return nil, validationErrorf("project key must be 2-10 uppercase letters or digits")
		}
		input.Key = &key
	}
	if input.Name != nil && strings.TrimSpace(*input.Name) == "" {
		return nil, validationErrorf("project name cannot be empty")
	}

	project, err := scanProject(s.db.QueryRowContext(ctx, `
		UPDATE projects SET
			name = COALESCE($2, name),
			key = COALESCE($3, key),
			description = COALESCE($4, description),
			is_private = COALESCE($5, is_private),
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+projectSelectColumns,
		strings.TrimSpace(id),
		nullableString(input.Name),
		nullableString(input.Key),
		nullableString(input.Description),
		input.IsPrivate,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		if isUniqueViolation(err, "") {
			return nil, conflictErrorf("project key or name already exists")
		}
		return nil, fmt.Errorf("failed to update project: %w", err)
	}
	return &project, nil
}

// Archive soft-deletes a project. Its tickets disappear from default
// listings because name-based lookups skip archived projects.
func (s *ProjectStore) Archive(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE projects SET is_archived = TRUE, updated_at = NOW() WHERE id = $1", strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("failed to archive project: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to archive project: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// MemberRole returns the user's role in a project, or policy.RoleNone when
// the user is not a member.
func (s *ProjectStore) MemberRole(ctx context.Context, projectID, userID string) (policy.ProjectRole, error) {
	return memberRole(ctx, s.db, projectID, userID)
}

func memberRole(ctx context.Context, q Querier, projectID, userID string) (policy.ProjectRole, error) {
	var role string
	err := q.QueryRowContext(ctx,
		"SELECT role FROM project_members WHERE project_id = $1 AND user_id = $2",
		projectID, userID,
	).Scan(&role)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return policy.RoleNone, nil
		}
		return policy.RoleNone, fmt.Errorf("failed to get member role: %w", err)
	}
	return policy.ProjectRole(role), nil
}

// IsMember reports whether a membership row exists for the pair.
func (s *ProjectStore) IsMember(ctx context.Context, projectID, userID string) (bool, error) {
	role, err := s.MemberRole(ctx, projectID, userID)
	if err != nil {
		return false, err
	}
	return role != policy.RoleNone, nil
}

const memberSelectColumns = `
	project_members.id,
	project_members.project_id,
	project_members.user_id,
	project_members.role,
	project_members.added_by,
	project_members.joined_at,
	users.username,
	users.email,
	users.full_name
`

func scanMember(row rowScanner) (ProjectMember, error) {
	var m ProjectMember
	err := row.Scan(
		&m.ID,
		&m.ProjectID,
		&m.UserID,
		&m.Role,
		&m.AddedBy,
		&m.JoinedAt,
		&m.Username,
		&m.Email,
		&m.FullName,
	)
	return m, err
}

// ListMembers returns all members of a project with user details.
func (s *ProjectStore) ListMembers(ctx context.Context, projectID string) ([]ProjectMember, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+memberSelectColumns+`
		FROM project_members
		JOIN users ON users.id = project_members.user_id
		WHERE project_members.project_id = $1
		ORDER BY project_members.joined_at`,
		strings.TrimSpace(projectID),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	members := make([]ProjectMember, 0)
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading members: %w", err)
	}
	return members, nil
}

// AddMember inserts a membership row. Exactly one membership may exist per
// (project, user) pair; duplicates surface as ErrConflict.
func (s *ProjectStore) AddMember(ctx context.Context, projectID, userID string, role policy.ProjectRole, addedBy string) (*ProjectMember, error) {
	if !policy.ValidInviteRole(string(role)) {
		return nil, validationErrorf("role must be admin, developer, or viewer")
	}

	return addMember(ctx, s.db, projectID, userID, role, addedBy)
}

func addMember(ctx context.Context, q Querier, projectID, userID string, role policy.ProjectRole, addedBy string) (*ProjectMember, error) {
	member, err := scanMember(q.QueryRowContext(ctx, `
		WITH inserted AS (
			INSERT INTO project_members (project_id, user_id, role, added_by)
			VALUES ($1, $2, $3, $4)
			RETURNING id, project_id, user_id, role, added_by, joined_at
		)
		SELECT inserted.id, inserted.project_id, inserted.user_id, inserted.role,
		       inserted.added_by, inserted.joined_at,
		       users.username, users.email, users.full_name
		FROM inserted
		JOIN users ON users.id = inserted.user_id`,
		strings.TrimSpace(projectID), strings.TrimSpace(userID), string(role), strings.TrimSpace(addedBy),
	))
	if err != nil {
		if isUniqueViolation(err, "unique_project_user") {
			return nil, conflictErrorf("user is already a member of this project")
		}
		return nil, fmt.Errorf("failed to add member: %w", err)
	}
	return &member, nil
}

// UpdateMemberRole changes an existing member's project role. The owner row
// cannot be demoted: a project must keep an owner at all times.
func (s *ProjectStore) UpdateMemberRole(ctx context.Context, projectID, userID string, role policy.ProjectRole) (*ProjectMember, error) {
	if !policy.ValidInviteRole(string(role)) {
		return nil, validationErrorf("role must be admin, developer, or viewer")
	}

	current, err := s.MemberRole(ctx, projectID, userID)
	if err != nil {
		return nil, err
	}
	if current == policy.RoleNone {
		return nil, ErrNotFound
	}
	if current == policy.RoleOwner {
		return nil, conflictErrorf("cannot change the owner's role")
	}

	member, err := scanMember(s.db.QueryRowContext(ctx, `
		WITH updated AS (
			UPDATE project_members SET role = $3
			WHERE project_id = $1 AND user_id = $2 AND role <> 'owner'
			RETURNING id, project_id, user_id, role, added_by, joined_at
		)
		SELECT updated.id, updated.project_id, updated.user_id, updated.role,
		       updated.added_by, updated.joined_at,
		       users.username, users.email, users.full_name
		FROM updated
		JOIN users ON users.id = updated.user_id`,
		strings.TrimSpace(projectID), strings.TrimSpace(userID), string(role),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update member role: %w", err)
	}
	return &member, nil
}

// RemoveMember deletes a membership row. The owner row can never be removed
// through this path; ownership transfer is a separate, explicit operation.
func (s *ProjectStore) RemoveMember(ctx context.Context, projectID, userID string) error {
	role, err := s.MemberRole(ctx, projectID, userID)
	if err != nil {
		return err
	}
	if role == policy.RoleNone {
		return ErrNotFound
	}
	if role == policy.RoleOwner {
		return conflictErrorf("cannot remove the project owner")
	}

	result, err := s.db.ExecContext(ctx,
		"DELETE FROM project_members WHERE project_id = $1 AND user_id = $2 AND role <> 'owner'",
		strings.TrimSpace(projectID), strings.TrimSpace(userID))
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
