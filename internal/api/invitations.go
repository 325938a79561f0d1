package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pcorbett/issuedeck/internal/middleware"
	"github.com/pcorbett/issuedeck/internal/policy"
	"github.com/pcorbett/issuedeck/internal/store"
)

// InvitationsHandler serves project invitations and the invitee's inbox.
type InvitationsHandler struct {
	Invitations *store.InvitationStore
	Projects    *store.ProjectStore
	TTL         time.Duration
}

type createInvitationRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

func (h *InvitationsHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	projectID := chi.URLParam(r, "id")

	role, err := h.Projects.MemberRole(r.Context(), projectID, identity.UserID)
	if err != nil {
		handleStoreError(w, "check membership", err)
		return
	}
	if !policy.CanInvite(role) {
		sendError(w, http.StatusForbidden, "insufficient role to invite members")
		return
	}

	var req createInvitationRequest
	if err := decodeJSON(r, &req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	invitation, err := h.Invitations.Create(
		r.Context(),
		projectID,
		strings.TrimSpace(req.UserID),
		policy.ProjectRole(strings.TrimSpace(req.Role)),
		identity.UserID,
		h.TTL,
	)
	if err != nil {
		handleStoreError(w, "create invitation", err)
		return
	}
	sendJSON(w, http.StatusCreated, invitation)
}

// ListMine returns the caller's pending invitations.
func (h *InvitationsHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())

	invitations, err := h.Invitations.ListPendingForUser(r.Context(), identity.UserID)
	if err != nil {
		handleStoreError(w, "list invitations", err)
		return
	}
	sendJSON(w, http.StatusOK, invitations)
}

func (h *InvitationsHandler) Accept(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())

	member, err := h.Invitations.Accept(r.Context(), chi.URLParam(r, "id"), identity.UserID)
	if err != nil {
		handleStoreError(w, "accept invitation", err)
		return
	}
	sendJSON(w, http.StatusOK, member)
}

func (h *InvitationsHandler) Decline(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())

	if err := h.Invitations.Decline(r.Context(), chi.URLParam(r, "id"), identity.UserID); err != nil {
		handleStoreError(w, "decline invitation", err)
		return
	}
	sendJSON(w, http.StatusOK, map[string]string{"status": store.InvitationDeclined})
}
