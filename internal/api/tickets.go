package api

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pcorbett/issuedeck/internal/middleware"
	"github.com/pcorbett/issuedeck/internal/policy"
	"github.com/pcorbett/issuedeck/internal/store"
	"github.com/pcorbett/issuedeck/internal/ws"
)

// TicketsHandler serves the ticket lifecycle: creation, listing, search,
// updates, status transitions, assignment, and the activity trail.
type TicketsHandler struct {
	Tickets    *store.TicketStore
	Projects   *store.ProjectStore
	Users      *store.UserStore
	Activities *store.ActivityStore
	Hub        *ws.Hub
}

type createTicketRequest struct {
	ProjectName string     `json:"project_name"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	Type        string     `json:"type"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"due_date"`
	OrderIndex  float64    `json:"order_index"`
}

func (h *TicketsHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())

	var req createTicketRequest
	if err := decodeJSON(r, &req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	project, err := h.Projects.GetByName(r.Context(), req.ProjectName)
	if err != nil {
		handleStoreError(w, "resolve project", err)
		return
	}
	isMember, err := h.Projects.IsMember(r.Context(), project.ID, identity.UserID)
	if err != nil {
		handleStoreError(w, "check membership", err)
		return
	}
	if !isMember {
		sendError(w, http.StatusForbidden, "not a project member")
		return
	}

	ticket, err := h.Tickets.Create(r.Context(), store.CreateTicketInput{
		ProjectName: req.ProjectName,
		Title:       req.Title,
		Description: req.Description,
		Type:        req.Type,
		Priority:    req.Priority,
		DueDate:     req.DueDate,
		OrderIndex:  req.OrderIndex,
	}, identity.UserID)
	if err != nil {
		handleStoreError(w, "create ticket", err)
		return
	}

	h.publish(ws.MessageTicketCreated, ticket)
	sendJSON(w, http.StatusCreated, ticket)
}

// ListByProject handles GET /api/tickets/{ref} where ref is a project name.
func (h *TicketsHandler) ListByProject(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())

	project, err := h.memberProjectByName(w, r, chi.URLParam(r, "ref"), identity.UserID)
	if project == nil || err != nil {
		return
	}

	tickets, err := h.Tickets.ListByProject(r.Context(), project.ID)
	if err != nil {
		handleStoreError(w, "list tickets", err)
		return
	}
	sendJSON(w, http.StatusOK, tickets)
}

type searchResponse struct {
	Items []store.Ticket `json:"items"`
	Total int            `json:"total"`
	Skip  int            `json:"skip"`
	Limit int            `json:"limit"`
}

// Search handles GET /api/tickets/{ref}/search where ref is a project name.
func (h *TicketsHandler) Search(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())

	project, err := h.memberProjectByName(w, r, chi.URLParam(r, "ref"), identity.UserID)
	if project == nil || err != nil {
		return
	}

	query := r.URL.Query()
	filter := store.TicketFilter{
		Keyword:    query.Get("keyword"),
		Status:     query.Get("status"),
		Priority:   query.Get("priority"),
		Type:       query.Get("type"),
		AssigneeID: query.Get("assignee_id"),
		ReporterID: query.Get("reporter_id"),
		Skip:       parseIntParam(r, "skip", 0),
		Limit:      parseIntParam(r, "limit", 0),
		SortBy:     query.Get("sort_by"),
		SortOrder:  query.Get("sort_order"),
	}

	tickets, total, err := h.Tickets.Search(r.Context(), project.ID, filter)
	if err != nil {
		handleStoreError(w, "search tickets", err)
		return
	}
	sendJSON(w, http.StatusOK, searchResponse{
		Items: tickets,
		Total: total,
		Skip:  filter.Skip,
		Limit: filter.EffectiveLimit(),
	})
}

type updateTicketRequest struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Type        *string    `json:"type"`
	Priority    *string    `json:"priority"`
	DueDate     *time.Time `json:"due_date"`
	OrderIndex  *float64   `json:"order_index"`
}

func (h *TicketsHandler) Update(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())

	ticket, _, ok := h.editableTicket(w, r, identity)
	if !ok {
		return
	}

	var req updateTicketRequest
	if err := decodeJSON(r, &req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := h.Tickets.Update(r.Context(), ticket.ID, store.UpdateTicketInput{
		Title:       req.Title,
		Description: req.Description,
		Type:        req.Type,
		Priority:    req.Priority,
		DueDate:     req.DueDate,
		OrderIndex:  req.OrderIndex,
	}, identity.UserID)
	if err != nil {
		handleStoreError(w, "update ticket", err)
		return
	}

	h.publish(ws.MessageTicketUpdated, updated)
	sendJSON(w, http.StatusOK, updated)
}

type updateStatusRequest struct {
	Status     string  `json:"status"`
	Resolution *string `json:"resolution"`
}

func (h *TicketsHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())

	ticket, _, ok := h.editableTicket(w, r, identity)
	if !ok {
		return
	}

	var req updateStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := h.Tickets.UpdateStatus(r.Context(), ticket.ID, req.Status, req.Resolution, identity.UserID)
	if err != nil {
		handleStoreError(w, "update ticket status", err)
		return
	}

	h.publish(ws.MessageTicketStatusChanged, updated)
	sendJSON(w, http.StatusOK, updated)
}

type assignTicketRequest struct {
	AssigneeUsername string `json:"assignee_username"`
}

func (h *TicketsHandler) Assign(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())

	ticket, _, ok := h.editableTicket(w, r, identity)
	if !ok {
		return
	}

	var req assignTicketRequest
	if err := decodeJSON(r, &req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	assignee, err := h.Users.GetByUsername(r.Context(), strings.TrimSpace(req.AssigneeUsername))
	if err != nil {
		handleStoreError(w, "resolve assignee", err)
		return
	}

	isMember, err := h.Projects.IsMember(r.Context(), ticket.ProjectID, assignee.ID)
	if err != nil {
		handleStoreError(w, "check assignee membership", err)
		return
	}
	if !isMember {
		sendError(w, http.StatusBadRequest, "not a project member")
		return
	}

	updated, err := h.Tickets.Assign(r.Context(), ticket.ID, assignee.ID, identity.UserID)
	if err != nil {
		handleStoreError(w, "assign ticket", err)
		return
	}

	h.publish(ws.MessageTicketAssigned, updated)
	sendJSON(w, http.StatusOK, updated)
}

// Delete permanently removes a ticket along with its comments, attachment
// records, labels, and activity.
func (h *TicketsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())

	ticket, err := h.Tickets.GetByID(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		handleStoreError(w, "get ticket", err)
		return
	}

	role, err := h.Projects.MemberRole(r.Context(), ticket.ProjectID, identity.UserID)
	if err != nil {
		handleStoreError(w, "check membership", err)
		return
	}
	if !policy.RoleAtLeast(role, policy.RoleAdmin) {
		sendError(w, http.StatusForbidden, "insufficient role to delete tickets")
		return
	}

	if err := h.Tickets.Delete(r.Context(), ticket.ID); err != nil {
		handleStoreError(w, "delete ticket", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Activity returns a ticket's audit trail, oldest first.
func (h *TicketsHandler) Activity(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())

	ticket, _, ok := h.memberTicket(w, r, identity)
	if !ok {
		return
	}

	activities, err := h.Activities.ListByTicket(r.Context(), ticket.ID)
	if err != nil {
		handleStoreError(w, "list ticket activity", err)
		return
	}
	sendJSON(w, http.StatusOK, activities)
}

// memberProjectByName resolves a non-archived project by name and verifies
// the caller's membership, writing the error response itself on failure.
func (h *TicketsHandler) memberProjectByName(w http.ResponseWriter, r *http.Request, name, userID string) (*store.Project, error) {
	project, err := h.Projects.GetByName(r.Context(), name)
	if err != nil {
		handleStoreError(w, "resolve project", err)
		return nil, err
	}
	isMember, err := h.Projects.IsMember(r.Context(), project.ID, userID)
	if err != nil {
		handleStoreError(w, "check membership", err)
		return nil, err
	}
	if !isMember {
		sendError(w, http.StatusForbidden, "not a project member")
		return nil, errors.New("forbidden")
	}
	return project, nil
}

// memberTicket loads the {ref} ticket and requires the caller to be a
// member of its project.
func (h *TicketsHandler) memberTicket(w http.ResponseWriter, r *http.Request, identity *middleware.Identity) (*store.Ticket, policy.ProjectRole, bool) {
	ticket, err := h.Tickets.GetByID(r.Context(), chi.URLParam(r, "ref"))
	if err != nil {
		handleStoreError(w, "get ticket", err)
		return nil, policy.RoleNone, false
	}

	role, err := h.Projects.MemberRole(r.Context(), ticket.ProjectID, identity.UserID)
	if err != nil {
		handleStoreError(w, "check membership", err)
		return nil, policy.RoleNone, false
	}
	if role == policy.RoleNone {
		sendError(w, http.StatusForbidden, "not a project member")
		return nil, policy.RoleNone, false
	}
	return ticket, role, true
}

// editableTicket additionally requires edit permission: a developer-or-up
// role, or being the ticket's reporter or assignee.
func (h *TicketsHandler) editableTicket(w http.ResponseWriter, r *http.Request, identity *middleware.Identity) (*store.Ticket, policy.ProjectRole, bool) {
	ticket, role, ok := h.memberTicket(w, r, identity)
	if !ok {
		return nil, policy.RoleNone, false
	}
	if !policy.CanEditTicket(ticket.ReporterID, ticket.AssigneeID, identity.UserID, role) {
		sendError(w, http.StatusForbidden, "insufficient permission to edit this ticket")
		return nil, policy.RoleNone, false
	}
	return ticket, role, true
}

func (h *TicketsHandler) publish(messageType ws.MessageType, ticket *store.Ticket) {
	if h.Hub == nil || ticket == nil {
		return
	}
	h.Hub.Publish(ws.Event{
		Type:      messageType,
		ProjectID: ticket.ProjectID,
		Data:      ticket,
	})
}
