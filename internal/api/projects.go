package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/pcorbett/issuedeck/internal/middleware"
	"github.com/pcorbett/issuedeck/internal/policy"
	"github.com/pcorbett/issuedeck/internal/store"
)

// ProjectsHandler serves project CRUD and membership management.
type ProjectsHandler struct {
	Projects *store.ProjectStore

	// DeleteRole is the minimum project role that may archive a project.
	DeleteRole policy.ProjectRole
}

type createProjectRequest struct {
	Name        string  `json:"name"`
	Key         string  `json:"key"`
	Description *string `json:"description"`
	IsPrivate   *bool   `json:"is_private"`
}

func (h *ProjectsHandler) Create(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())

	var req createProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	project, err := h.Projects.Create(r.Context(), store.CreateProjectInput{
		Name:        req.Name,
		Key:         req.Key,
		Description: req.Description,
		IsPrivate:   req.IsPrivate,
	}, identity.UserID)
	if err != nil {
		handleStoreError(w, "create project", err)
		return
	}
	sendJSON(w, http.StatusCreated, project)
}

func (h *ProjectsHandler) List(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())

	projects, err := h.Projects.ListForUser(r.Context(), identity.UserID)
	if err != nil {
		handleStoreError(w, "list projects", err)
		return
	}
	sendJSON(w, http.StatusOK, projects)
}

func (h *ProjectsHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	projectID := chi.URLParam(r, "id")

	project, err := h.Projects.GetByID(r.Context(), projectID)
	if err != nil {
		handleStoreError(w, "get project", err)
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
	sendJSON(w, http.StatusOK, project)
}

type updateProjectRequest struct {
	Name        *string `json:"name"`
	Key         *string `json:"key"`
	Description *string `json:"description"`
	IsPrivate   *bool   `json:"is_private"`
}

func (h *ProjectsHandler) Update(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	projectID := chi.URLParam(r, "id")

	role, err := h.Projects.MemberRole(r.Context(), projectID, identity.UserID)
	if err != nil {
		handleStoreError(w, "check membership", err)
		return
	}
	if role != policy.RoleOwner {
		sendError(w, http.StatusForbidden, "only the project owner can update the project")
		return
	}

	var req updateProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	project, err := h.Projects.Update(r.Context(), projectID, store.UpdateProjectInput{
		Name:        req.Name,
		Key:         req.Key,
		Description: req.Description,
		IsPrivate:   req.IsPrivate,
	})
	if err != nil {
		handleStoreError(w, "update project", err)
		return
	}
	sendJSON(w, http.StatusOK, project)
}

// Delete archives the project. Tickets are preserved but drop out of
// default listings along with the project.
func (h *ProjectsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	projectID := chi.URLParam(r, "id")

	role, err := h.Projects.MemberRole(r.Context(), projectID, identity.UserID)
	if err != nil {
		handleStoreError(w, "check membership", err)
		return
	}
	if !policy.CanDeleteProject(role, h.DeleteRole) {
		sendError(w, http.StatusForbidden, "insufficient role to delete the project")
		return
	}

	if err := h.Projects.Archive(r.Context(), projectID); err != nil {
		handleStoreError(w, "archive project", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ProjectsHandler) ListMembers(w http.ResponseWriter, r *http.Request) {
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

	members, err := h.Projects.ListMembers(r.Context(), projectID)
	if err != nil {
		handleStoreError(w, "list members", err)
		return
	}
	sendJSON(w, http.StatusOK, members)
}

type addMemberRequest struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
}

func (h *ProjectsHandler) AddMember(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	projectID := chi.URLParam(r, "id")

	role, err := h.Projects.MemberRole(r.Context(), projectID, identity.UserID)
	if err != nil {
		handleStoreError(w, "check membership", err)
		return
	}
	if !policy.CanAddMembers(role) {
		sendError(w, http.StatusForbidden, "insufficient role to add members")
		return
	}

	var req addMemberRequest
	if err := decodeJSON(r, &req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	newRole := strings.TrimSpace(req.Role)
	if !policy.ValidInviteRole(newRole) {
		sendError(w, http.StatusBadRequest, "role must be admin, developer, or viewer")
		return
	}

	member, err := h.Projects.AddMember(r.Context(), projectID, req.UserID, policy.ProjectRole(newRole), identity.UserID)
	if err != nil {
		handleStoreError(w, "add member", err)
		return
	}
	sendJSON(w, http.StatusCreated, member)
}

type updateMemberRequest struct {
	Role string `json:"role"`
}

func (h *ProjectsHandler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	projectID := chi.URLParam(r, "id")
	userID := chi.URLParam(r, "userID")

	role, err := h.Projects.MemberRole(r.Context(), projectID, identity.UserID)
	if err != nil {
		handleStoreError(w, "check membership", err)
		return
	}
	if !policy.CanManageMembers(role) {
		sendError(w, http.StatusForbidden, "only the project owner can change member roles")
		return
	}

	var req updateMemberRequest
	if err := decodeJSON(r, &req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	newRole := strings.TrimSpace(req.Role)
	if !policy.ValidInviteRole(newRole) {
		sendError(w, http.StatusBadRequest, "role must be admin, developer, or viewer")
		return
	}

	member, err := h.Projects.UpdateMemberRole(r.Context(), projectID, userID, policy.ProjectRole(newRole))
	if err != nil {
		handleStoreError(w, "update member role", err)
		return
	}
	sendJSON(w, http.StatusOK, member)
}

func (h *ProjectsHandler) RemoveMember(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	projectID := chi.URLParam(r, "id")
	userID := chi.URLParam(r, "userID")

	role, err := h.Projects.MemberRole(r.Context(), projectID, identity.UserID)
	if err != nil {
		handleStoreError(w, "check membership", err)
		return
	}
	if !policy.CanManageMembers(role) {
		sendError(w, http.StatusForbidden, "only the project owner can remove members")
		return
	}

	if err := h.Projects.RemoveMember(r.Context(), projectID, userID); err != nil {
		handleStoreError(w, "remove member", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
