package api

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/pcorbett/issuedeck/internal/auth"
	"github.com/pcorbett/issuedeck/internal/middleware"
	"github.com/pcorbett/issuedeck/internal/store"
)

// AuthHandler serves registration and login.
type AuthHandler struct {
	Users *store.UserStore
	JWT   *auth.JWTService
}

type registerRequest struct {
	Email    string  `json:"email"`
	Username string  `json:"username"`
	Password string  `json:"password"`
	FullName *string `json:"full_name"`
	Timezone string  `json:"timezone"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresIn   int         `json:"expires_in"`
	User        *store.User `json:"user"`
}

// Register creates an account and returns a token so the client is logged
// in immediately.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	req.Username = strings.TrimSpace(req.Username)
	if req.Email == "" || req.Username == "" {
		sendError(w, http.StatusBadRequest, "email and username are required")
		return
	}
	if err := auth.ValidatePassword(req.Password); err != nil {
		sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		log.Printf("password hash failed: %v", err)
		sendError(w, http.StatusInternalServerError, "internal error")
		return
	}

	user, err := h.Users.Create(r.Context(), store.CreateUserInput{
		Email:        req.Email,
		Username:     req.Username,
		PasswordHash: hash,
		FullName:     req.FullName,
		Timezone:     strings.TrimSpace(req.Timezone),
	})
	if err != nil {
		handleStoreError(w, "register user", err)
		return
	}

	token, err := h.JWT.GenerateToken(user.ID, user.Username, user.Role)
	if err != nil {
		log.Printf("token generation failed for user %s: %v", user.ID, err)
		sendError(w, http.StatusInternalServerError, "internal error")
		return
	}

	sendJSON(w, http.StatusCreated, tokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int(h.JWT.TTL().Seconds()),
		User:        user,
	})
}

// Login verifies credentials and issues a token. Lookup and bcrypt failures
// share one response so the endpoint does not reveal which emails exist.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.Users.GetByEmail(r.Context(), strings.TrimSpace(req.Email))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			sendError(w, http.StatusUnauthorized, "invalid email or password")
			return
		}
		handleStoreError(w, "login lookup", err)
		return
	}

	if err := auth.CheckPassword(user.PasswordHash, req.Password); err != nil {
		sendError(w, http.StatusUnauthorized, "invalid email or password")
		return
	}
	if !user.IsActive {
		sendError(w, http.StatusForbidden, "account is deactivated")
		return
	}

	token, err := h.JWT.GenerateToken(user.ID, user.Username, user.Role)
	if err != nil {
		log.Printf("token generation failed for user %s: %v", user.ID, err)
		sendError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if err := h.Users.TouchLastLogin(r.Context(), user.ID); err != nil {
		log.Printf("failed to record last login for user %s: %v", user.ID, err)
	}

	sendJSON(w, http.StatusOK, tokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int(h.JWT.TTL().Seconds()),
		User:        user,
	})
}

// Me returns the authenticated user's record.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	user, err := h.Users.GetByID(r.Context(), identity.UserID)
	if err != nil {
		handleStoreError(w, "get current user", err)
		return
	}
	sendJSON(w, http.StatusOK, user)
}
