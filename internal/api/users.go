package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pcorbett/issuedeck/internal/middleware"
	"github.com/pcorbett/issuedeck/internal/store"
)

// UsersHandler serves user listing and profile updates.
type UsersHandler struct {
	Users *store.UserStore
}

func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	skip := parseIntParam(r, "skip", 0)
	limit := parseIntParam(r, "limit", 50)

	users, err := h.Users.List(r.Context(), skip, limit)
	if err != nil {
		handleStoreError(w, "list users", err)
		return
	}
	sendJSON(w, http.StatusOK, users)
}

func (h *UsersHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := h.Users.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleStoreError(w, "get user", err)
		return
	}
	sendJSON(w, http.StatusOK, user)
}

type updateProfileRequest struct {
	FullName  *string `json:"full_name"`
	AvatarURL *string `json:"avatar_url"`
	Timezone  *string `json:"timezone"`
}

// UpdateMe updates the caller's own profile.
func (h *UsersHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())

	var req updateProfileRequest
	if err := decodeJSON(r, &req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.Users.UpdateProfile(r.Context(), identity.UserID, store.UpdateProfileInput{
		FullName:  req.FullName,
		AvatarURL: req.AvatarURL,
		Timezone:  req.Timezone,
	})
	if err != nil {
		handleStoreError(w, "update profile", err)
		return
	}
	sendJSON(w, http.StatusOK, user)
}

func parseIntParam(r *http.Request, name string, fallback int) int {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
