package api

import (
	"context"
	"errors"
	"fmt"

	"github.com/pcorbett/issuedeck/internal/auth"
	"github.com/pcorbett/issuedeck/internal/middleware"
	"github.com/pcorbett/issuedeck/internal/store"
)

var errInactiveUser = errors.New("account is deactivated")

// IdentityResolver validates bearer tokens and loads the current user.
// It satisfies middleware.IdentityResolver.
type IdentityResolver struct {
	JWT   *auth.JWTService
	Users *store.UserStore
}

// Resolve validates the token and confirms the user still exists and is
// active. The global role comes from the database, not the token, so role
// changes take effect without waiting for token expiry.
func (r *IdentityResolver) Resolve(ctx context.Context, token string) (*middleware.Identity, error) {
	claims, err := r.JWT.ValidateToken(token)
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	user, err := r.Users.GetByID(ctx, claims.UserID)
	if err != nil {
		return nil, fmt.Errorf("resolve token user: %w", err)
	}
	if !user.IsActive {
		return nil, errInactiveUser
	}

	return &middleware.Identity{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		IsActive: user.IsActive,
	}, nil
}
