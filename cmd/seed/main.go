package main

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/pcorbett/issuedeck/internal/auth"
	"github.com/pcorbett/issuedeck/internal/automigrate"
	"github.com/pcorbett/issuedeck/internal/config"
	"github.com/pcorbett/issuedeck/internal/policy"
	"github.com/pcorbett/issuedeck/internal/store"
)

const (
	demoOwnerEmail  = "demo@issuedeck.local"
	demoDevEmail    = "dev@issuedeck.local"
	demoPassword    = "demo-password"
	demoProjectName = "Demo Tracker"
	demoProjectKey  = "DEMO"
)

// Seeds a local database with a demo owner, a teammate, a project, and a
// handful of tickets. Safe to re-run: existing rows are reused.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	db, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := automigrate.Run(db, cfg.MigrationsDir); err != nil {
		log.Fatalf("migrations: %v", err)
	}

	ctx := context.Background()
	users := store.NewUserStore(db)
	projects := store.NewProjectStore(db)
	tickets := store.NewTicketStore(db)
	comments := store.NewCommentStore(db)
	labels := store.NewLabelStore(db)

	owner := ensureUser(ctx, users, demoOwnerEmail, "demo", "Demo Owner")
	dev := ensureUser(ctx, users, demoDevEmail, "devon", "Devon Developer")

	project, err := projects.GetByName(ctx, demoProjectName)
	if errors.Is(err, store.ErrNotFound) {
		project, err = projects.Create(ctx, store.CreateProjectInput{
			Name: demoProjectName,
			Key:  demoProjectKey,
		}, owner.ID)
	}
	if err != nil {
		log.Fatalf("seed project: %v", err)
	}

	if _, err := projects.AddMember(ctx, project.ID, dev.ID, policy.RoleDeveloper, owner.ID); err != nil && !errors.Is(err, store.ErrConflict) {
		log.Fatalf("seed member: %v", err)
	}

	if _, err := labels.Create(ctx, project.ID, "regression", "#dc2626", nil); err != nil && !errors.Is(err, store.ErrConflict) {
		log.Fatalf("seed label: %v", err)
	}

	existing, err := tickets.ListByProject(ctx, project.ID)
	if err != nil {
		log.Fatalf("list tickets: %v", err)
	}
	if len(existing) == 0 {
		seedTickets(ctx, tickets, comments, project.Name, owner.ID, dev.ID)
	}

	fmt.Printf("seeded project %q (%s) with owner %s\n", project.Name, project.Key, owner.Email)
}

func ensureUser(ctx context.Context, users *store.UserStore, email, username, fullName string) *store.User {
	user, err := users.GetByEmail(ctx, email)
	if err == nil {
		return user
	}
	if !errors.Is(err, store.ErrNotFound) {
		log.Fatalf("lookup %s: %v", email, err)
	}

	hash, err := auth.HashPassword(demoPassword)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	user, err = users.Create(ctx, store.CreateUserInput{
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		FullName:     &fullName,
		Timezone:     "UTC",
	})
	if err != nil {
		log.Fatalf("create %s: %v", email, err)
	}
	return user
}

func seedTickets(ctx context.Context, tickets *store.TicketStore, comments *store.CommentStore, projectName, ownerID, devID string) {
	samples := []store.CreateTicketInput{
		{ProjectName: projectName, Title: "Login page 500s on empty password", Type: "bug", Priority: "critical"},
		{ProjectName: projectName, Title: "Add CSV export for reports", Type: "feature", Priority: "medium"},
		{ProjectName: projectName, Title: "Upgrade postgres driver", Type: "task", Priority: "low"},
	}

	for i, input := range samples {
		reporter := ownerID
		if i%2 == 1 {
			reporter = devID
		}
		ticket, err := tickets.Create(ctx, input, reporter)
		if err != nil {
			log.Fatalf("seed ticket %q: %v", input.Title, err)
		}
		if i == 0 {
			_, err = comments.Create(ctx, store.CreateCommentInput{
				TicketID: ticket.ID,
				AuthorID: devID,
				Content:  "Reproduced locally, stack trace attached to the log.",
			})
			if err != nil {
				log.Fatalf("seed comment: %v", err)
			}
		}
	}
}
