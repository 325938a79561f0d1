package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pcorbett/issuedeck/internal/middleware"
	"github.com/pcorbett/issuedeck/internal/policy"
	"github.com/pcorbett/issuedeck/internal/store"
)

// LabelsHandler serves project labels and their ticket assignments.
type LabelsHandler struct {
	Labels   *store.LabelStore
	Tickets  *store.TicketStore
	Projects *store.ProjectStore
}

type createLabelRequest struct {
	Name        string  `json:"name"`
	Color       string  `json:"color"`
	Description *string `json:"description"`
}

// Create handles POST /api/projects/{id}/labels.
func (h *LabelsHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	projectID := chi.URLParam(r, "id")

	role, err := h.Projects.MemberRole(r.Context(), projectID, identity.UserID)
	if err != nil {
		handleStoreError(w, "check membership", err)
		return
	}
	if !policy.CanManageLabels(role) {
		sendError(w, http.StatusForbidden, "insufficient role to manage labels")
		return
	}

	var req createLabelRequest
	if err := decodeJSON(r, &req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	label, err := h.Labels.Create(r.Context(), projectID, req.Name, req.Color, req.Description)
	if err != nil {
		handleStoreError(w, "create label", err)
		return
	}
	sendJSON(w, http.StatusCreated, label)
}

// ListByProject handles GET /api/projects/{id}/labels.
func (h *LabelsHandler) ListByProject(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	projectID := chi.URLParam(r, "id")

	isMember, err := h.Projects.IsMember(r.Context(), projectID, identity.UserID)
	if err != nil {
		handleStoreError(w, "check membership", err)
		return
	}
	if !isMember {
		sendError(w, http.StatusForbidden, "not a project member")
		return
	}

	labels, err := h.Labels.ListByProject(r.Context(), projectID)
	if err != nil {
		handleStoreError(w, "list labels", err)
		return
	}
	sendJSON(w, http.StatusOK, labels)
}

// Delete handles DELETE /api/labels/{id}.
func (h *LabelsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())

	label, err := h.Labels.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleStoreError(w, "get label", err)
		return
	}

	role, err := h.Projects.MemberRole(r.Context(), label.ProjectID, identity.UserID)
	if err != nil {
		handleStoreError(w, "check membership", err)
		return
	}
	if !policy.CanManageLabels(role) {
		sendError(w, http.StatusForbidden, "insufficient role to manage labels")
		return
	}

	if err := h.Labels.Delete(r.Context(), label.ID); err != nil {
		handleStoreError(w, "delete label", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Attach handles POST /api/tickets/{ref}/labels/{labelID}.
func (h *LabelsHandler) Attach(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())

	ticket, ok := h.memberTicket(w, r, identity.UserID)
	if !ok {
		return
	}

	if err := h.Labels.AttachToTicket(r.Context(), ticket.ID, chi.URLParam(r, "labelID")); err != nil {
		handleStoreError(w, "attach label", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Detach handles DELETE /api/tickets/{ref}/labels/{labelID}.
func (h *LabelsHandler) Detach(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())

	ticket, ok := h.memberTicket(w, r, identity.UserID)
	if !ok {
		return
	}

	if err := h.Labels.DetachFromTicket(r.Context(), ticket.ID, chi.URLParam(r, "labelID")); err != nil {
		handleStoreError(w, "detach label", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListForTicket handles GET /api/tickets/{ref}/labels.
func (h *LabelsHandler) ListForTicket(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())

	ticket, ok := h.memberTicket(w, r, identity.UserID)
	if !ok {
		return
	}

	labels, err := h.Labels.ListForTicket(r.Context(), ticket.ID)
	if err != nil {
		handleStoreError(w, "list ticket labels", err)
		return
	}
	sendJSON(w, http.StatusOK, labels)
}

func (h *LabelsHandler) memberTicket(w http.ResponseWriter, r *http.Request, userID string) (*store.Ticket, bool) {
	ticket, err := h.Tickets.GetByID(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		handleStoreError(w, "get ticket", err)
		return nil, false
	}
	isMember, err := h.Projects.IsMember(r.Context(), ticket.ProjectID, userID)
	if err != nil {
		handleStoreError(w, "check membership", err)
		return nil, false
	}
	if !isMember {
		sendError(w, http.StatusForbidden, "not a project member")
		return nil, false
	}
	return ticket, true
}
