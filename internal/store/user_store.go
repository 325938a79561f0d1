package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// User represents a registered account.
type User struct {
	ID           string     `json:"id"`
	Email        string     `json:"email"`
	Username     string     `json:"username"`
	PasswordHash string     `json:"-"`
	FullName     *string    `json:"full_name,omitempty"`
	AvatarURL    *string    `json:"avatar_url,omitempty"`
	Role         string     `json:"role"`
	Timezone     string     `json:"timezone"`
	IsActive     bool       `json:"is_active"`
	LastLogin    *time.Time `json:"last_login,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// UserStore provides access to user accounts.
type UserStore struct {
	db *sql.DB
}

// NewUserStore creates a new UserStore.
func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

const userSelectColumns = `
	id,
	email,
	username,
	password_hash,
	full_name,
	avatar_url,
	role,
	timezone,
	is_active,
	last_login,
	created_at,
	updated_at
`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (User, error) {
	var user User
	err := row.Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&user.PasswordHash,
		&user.FullName,
		&user.AvatarURL,
		&user.Role,
		&user.Timezone,
		&user.IsActive,
		&user.LastLogin,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

// CreateUserInput defines the input for registering a user.
type CreateUserInput struct {
	Email        string
	Username     string
	PasswordHash string
	FullName     *string
	Timezone     string
}

// Create registers a new user. New accounts start with the global viewer
// role; promotion happens when they create their first project.
func (s *UserStore) Create(ctx context.Context, input CreateUserInput) (*User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	username := strings.TrimSpace(input.Username)
	if email == "" || !strings.Contains(email, "@") {
		return nil, validationErrorf("a valid email is required")
	}
	if username == "" {
		return nil, validationErrorf("username is required")
	}
	if input.PasswordHash == "" {
		return nil, validationErrorf("password hash is required")
	}

	timezone := strings.TrimSpace(input.Timezone)
	if timezone == "" {
		timezone = "UTC"
	}

	user, err := scanUser(s.db.QueryRowContext(ctx, `
		INSERT INTO users (email, username, password_hash, full_name, timezone)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+userSelectColumns,
		email,
		username,
		input.PasswordHash,
		nullableString(input.FullName),
		timezone,
	))
	if err != nil {
		if isUniqueViolation(err, "") {
			return nil, conflictErrorf("email or username already taken")
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return &user, nil
}

// GetByID retrieves a user by ID.
func (s *UserStore) GetByID(ctx context.Context, id string) (*User, error) {
	if !uuidRegex.MatchString(strings.TrimSpace(id)) {
		return nil, ErrNotFound
	}
	user, err := scanUser(s.db.QueryRowContext(ctx,
		"SELECT "+userSelectColumns+" FROM users WHERE id = $1", strings.TrimSpace(id)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &user, nil
}

// GetByEmail retrieves a user by email (case-insensitive).
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx,
		"SELECT "+userSelectColumns+" FROM users WHERE email = lower($1)", strings.TrimSpace(email)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return &user, nil
}

// GetByUsername retrieves a user by exact username.
func (s *UserStore) GetByUsername(ctx context.Context, username string) (*User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx,
		"SELECT "+userSelectColumns+" FROM users WHERE username = $1", strings.TrimSpace(username)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user by username: %w", err)
	}
	return &user, nil
}

// List returns users ordered by username with pagination.
func (s *UserStore) List(ctx context.Context, skip, limit int) ([]User, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	if skip < 0 {
		skip = 0
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+userSelectColumns+" FROM users ORDER BY username LIMIT $1 OFFSET $2", limit, skip)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := make([]User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading users: %w", err)
	}
	return users, nil
}

// UpdateProfileInput defines the mutable profile fields.
type UpdateProfileInput struct {
	FullName  *string
	AvatarURL *string
	Timezone  *string
}

// UpdateProfile updates a user's own profile fields. Nil fields are left
// untouched.
func (s *UserStore) UpdateProfile(ctx context.Context, id string, input UpdateProfileInput) (*User, error) {
	user, err := scanUser(s.db.QueryRowContext(ctx, `
		UPDATE users SET
			full_name = COALESCE($2, full_name),
			avatar_url = COALESCE($3, avatar_url),
			timezone = COALESCE($4, timezone),
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+userSelectColumns,
		strings.TrimSpace(id),
		nullableString(input.FullName),
		nullableString(input.AvatarURL),
		nullableString(input.Timezone),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return &user, nil
}

// TouchLastLogin stamps last_login after a successful authentication.
func (s *UserStore) TouchLastLogin(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE users SET last_login = NOW() WHERE id = $1", strings.TrimSpace(id))
	if err != nil {
		return fmt.Errorf("failed to stamp last login: %w", err)
	}
	return nil
}
