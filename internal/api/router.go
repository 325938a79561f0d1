package api

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/pcorbett/issuedeck/internal/auth"
	"github.com/pcorbett/issuedeck/internal/config"
	"github.com/pcorbett/issuedeck/internal/middleware"
	"github.com/pcorbett/issuedeck/internal/policy"
	"github.com/pcorbett/issuedeck/internal/store"
	"github.com/pcorbett/issuedeck/internal/ws"
)

var startTime = time.Now()

type healthResponse struct {
	Status    string `json:"status"`
	Uptime    string `json:"uptime"`
	Timestamp string `json:"timestamp"`
}

// NewRouter wires stores, handlers, and the websocket hub into the HTTP
// surface.
func NewRouter(cfg config.Config, db *sql.DB) http.Handler {
	users := store.NewUserStore(db)
	projects := store.NewProjectStore(db)
	invitations := store.NewInvitationStore(db)
	tickets := store.NewTicketStore(db)
	comments := store.NewCommentStore(db)
	attachments := store.NewAttachmentStore(db)
	labels := store.NewLabelStore(db)
	activities := store.NewActivityStore(db)

	jwtService := auth.NewJWTService([]byte(cfg.JWTSecret), cfg.JWTTTL)
	resolver := &IdentityResolver{JWT: jwtService, Users: users}

	hub := ws.NewHub()
	go hub.Run()

	authHandler := &AuthHandler{Users: users, JWT: jwtService}
	usersHandler := &UsersHandler{Users: users}
	projectsHandler := &ProjectsHandler{
		Projects:   projects,
		DeleteRole: policy.ProjectRole(cfg.ProjectDeleteRole),
	}
	invitationsHandler := &InvitationsHandler{
		Invitations: invitations,
		Projects:    projects,
		TTL:         cfg.InvitationTTL,
	}
	ticketsHandler := &TicketsHandler{
		Tickets:    tickets,
		Projects:   projects,
		Users:      users,
		Activities: activities,
		Hub:        hub,
	}
	commentsHandler := &CommentsHandler{
		Comments: comments,
		Tickets:  tickets,
		Projects: projects,
		Hub:      hub,
	}
	attachmentsHandler := &AttachmentsHandler{
		Attachments: attachments,
		Tickets:     tickets,
		Projects:    projects,
		UploadsDir:  cfg.UploadsDir,
	}
	labelsHandler := &LabelsHandler{
		Labels:   labels,
		Tickets:  tickets,
		Projects: projects,
	}

	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", authHandler.Register)
		r.Post("/auth/login", authHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(resolver))

			r.Get("/users/me", authHandler.Me)
			r.Put("/users/me", usersHandler.UpdateMe)
			r.Get("/users", usersHandler.List)
			r.Get("/users/{id}", usersHandler.Get)

			r.Post("/projects", projectsHandler.Create)
			r.Get("/projects", projectsHandler.List)
			r.Get("/projects/{id}", projectsHandler.Get)
			r.Put("/projects/{id}", projectsHandler.Update)
			r.Delete("/projects/{id}", projectsHandler.Delete)
			r.Get("/projects/{id}/members", projectsHandler.ListMembers)
			r.Post("/projects/{id}/members", projectsHandler.AddMember)
			r.Patch("/projects/{id}/members/{userID}", projectsHandler.UpdateMember)
			r.Delete("/projects/{id}/members/{userID}", projectsHandler.RemoveMember)
			r.Post("/projects/{id}/invitations", invitationsHandler.Create)
			r.Get("/projects/{id}/labels", labelsHandler.ListByProject)
			r.Post("/projects/{id}/labels", labelsHandler.Create)
			r.Delete("/labels/{id}", labelsHandler.Delete)

			r.Get("/me/invitations", invitationsHandler.ListMine)
			r.Post("/me/invitations/{id}/accept", invitationsHandler.Accept)
			r.Post("/me/invitations/{id}/decline", invitationsHandler.Decline)

			r.Post("/tickets", ticketsHandler.Create)
			r.Get("/tickets/{ref}", ticketsHandler.ListByProject)
			r.Get("/tickets/{ref}/search", ticketsHandler.Search)
			r.Patch("/tickets/{ref}", ticketsHandler.Update)
			r.Patch("/tickets/{ref}/status", ticketsHandler.UpdateStatus)
			r.Patch("/tickets/{ref}/assign", ticketsHandler.Assign)
			r.Delete("/tickets/{ref}", ticketsHandler.Delete)
			r.Get("/tickets/{ref}/activity", ticketsHandler.Activity)
			r.Post("/tickets/{ref}/comments", commentsHandler.Create)
			r.Get("/tickets/{ref}/comments", commentsHandler.List)
			r.Get("/tickets/{ref}/labels", labelsHandler.ListForTicket)
			r.Post("/tickets/{ref}/labels/{labelID}", labelsHandler.Attach)
			r.Delete("/tickets/{ref}/labels/{labelID}", labelsHandler.Detach)

			r.Patch("/comments/{id}", commentsHandler.Update)
			r.Delete("/comments/{id}", commentsHandler.Delete)

			r.Post("/attachments/tickets/{id}/upload", attachmentsHandler.Upload)
			r.Get("/attachments/tickets/{id}", attachmentsHandler.List)
			r.Get("/attachments/{id}/download", attachmentsHandler.Download)
			r.Delete("/attachments/{id}", attachmentsHandler.Delete)
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.RequireAuth(resolver))
		r.Handle("/ws", &ws.Handler{
			Hub:            hub,
			Authorizer:     projects,
			AllowedOrigins: cfg.WSAllowedOrigins,
		})
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		Uptime:    time.Since(startTime).Round(time.Second).String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}
