package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pcorbett/issuedeck/internal/middleware"
	"github.com/pcorbett/issuedeck/internal/policy"
	"github.com/pcorbett/issuedeck/internal/store"
	"github.com/pcorbett/issuedeck/internal/ws"
)

// CommentsHandler serves threaded ticket comments.
type CommentsHandler struct {
	Comments *store.CommentStore
	Tickets  *store.TicketStore
	Projects *store.ProjectStore
	Hub      *ws.Hub
}

type createCommentRequest struct {
	Content  string  `json:"content"`
	ParentID *string `json:"parent_id"`
}

// Create handles POST /api/tickets/{ref}/comments.
func (h *CommentsHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())

	ticket, ok := h.memberTicket(w, r, identity.UserID)
	if !ok {
		return
	}

	var req createCommentRequest
	if err := decodeJSON(r, &req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	comment, err := h.Comments.Create(r.Context(), store.CreateCommentInput{
		TicketID: ticket.ID,
		AuthorID: identity.UserID,
		ParentID: req.ParentID,
		Content:  req.Content,
	})
	if err != nil {
		handleStoreError(w, "create comment", err)
		return
	}

	if h.Hub != nil {
		h.Hub.Publish(ws.Event{
			Type:      ws.MessageCommentAdded,
			ProjectID: ticket.ProjectID,
			Data:      comment,
		})
	}
	sendJSON(w, http.StatusCreated, comment)
}

// List handles GET /api/tickets/{ref}/comments.
func (h *CommentsHandler) List(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())

	ticket, ok := h.memberTicket(w, r, identity.UserID)
	if !ok {
		return
	}

	comments, err := h.Comments.ListByTicket(r.Context(), ticket.ID)
	if err != nil {
		handleStoreError(w, "list comments", err)
		return
	}
	sendJSON(w, http.StatusOK, comments)
}

type updateCommentRequest struct {
	Content string `json:"content"`
}

// Update lets the author edit their own comment.
func (h *CommentsHandler) Update(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())

	comment, err := h.Comments.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleStoreError(w, "get comment", err)
		return
	}
	if comment.AuthorID != identity.UserID {
		sendError(w, http.StatusForbidden, "only the author can edit a comment")
		return
	}

	var req updateCommentRequest
	if err := decodeJSON(r, &req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := h.Comments.UpdateContent(r.Context(), comment.ID, req.Content)
	if err != nil {
		handleStoreError(w, "update comment", err)
		return
	}
	sendJSON(w, http.StatusOK, updated)
}

// Delete removes a comment. Allowed for the author, or project owner/admin.
func (h *CommentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())

	comment, err := h.Comments.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		handleStoreError(w, "get comment", err)
		return
	}

	ticket, err := h.Tickets.GetByID(r.Context(), comment.TicketID)
	if err != nil {
		handleStoreError(w, "get comment ticket", err)
		return
	}
	role, err := h.Projects.MemberRole(r.Context(), ticket.ProjectID, identity.UserID)
	if err != nil {
		handleStoreError(w, "check membership", err)
		return
	}
	if !policy.CanDeleteComment(comment.AuthorID, identity.UserID, role) {
		sendError(w, http.StatusForbidden, "insufficient permission to delete this comment")
		return
	}

	if err := h.Comments.Delete(r.Context(), comment.ID); err != nil {
		handleStoreError(w, "delete comment", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CommentsHandler) memberTicket(w http.ResponseWriter, r *http.Request, userID string) (*store.Ticket, bool) {
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
