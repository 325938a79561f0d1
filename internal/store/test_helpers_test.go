package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/pcorbett/issuedeck/internal/policy"
)

const testDBURLKey = "ISSUEDECK_TEST_DATABASE_URL"

func getTestDatabaseURL(t *testing.T) string {
	t.Helper()
	connStr := os.Getenv(testDBURLKey)
	if connStr == "" {
		t.Skipf("set %s to a dedicated test database", testDBURLKey)
	}
	return connStr
}

func getMigrationsDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.Abs(filepath.Join("..", "..", "migrations"))
	require.NoError(t, err)
	return dir
}

func setupTestDatabase(t *testing.T, connStr string) *sql.DB {
	t.Helper()
	db, err := sql.Open("postgres", connStr)
	require.NoError(t, err)

	_, err = db.Exec("CREATE EXTENSION IF NOT EXISTS pgcrypto")
	require.NoError(t, err)

	m, err := migrate.New("file://"+getMigrationsDir(t), connStr)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = m.Close()
	})

	err = m.Down()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		require.NoError(t, err)
	}

	err = m.Up()
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		require.NoError(t, err)
	}

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

var testUserSeq int

func createTestUser(t *testing.T, db *sql.DB, username string) *User {
	t.Helper()
	testUserSeq++
	users := NewUserStore(db)
	user, err := users.Create(context.Background(), CreateUserInput{
		Email:        fmt.Sprintf("%s-%d@example.com", username, testUserSeq),
		Username:     fmt.Sprintf("%s%d", username, testUserSeq),
		PasswordHash: "$2a$10$testhashtesthashtesthashtesthashtesthashtesthashtesth",
		Timezone:     "UTC",
	})
	require.NoError(t, err)
	return user
}

var testProjectSeq int

func createTestProject(t *testing.T, db *sql.DB, ownerID string) *Project {
	t.Helper()
	testProjectSeq++
	projects := NewProjectStore(db)
	project, err := projects.Create(context.Background(), CreateProjectInput{
		Name: fmt.Sprintf("Project %d", testProjectSeq),
		Key:  fmt.Sprintf("PRJ%d", testProjectSeq),
	}, ownerID)
	require.NoError(t, err)
	return project
}

func addTestMember(t *testing.T, db *sql.DB, projectID, userID string, role policy.ProjectRole) {
	t.Helper()
	projects := NewProjectStore(db)
	_, err := projects.AddMember(context.Background(), projectID, userID, role, userID)
	require.NoError(t, err)
}

func createTestTicket(t *testing.T, db *sql.DB, projectName, title, reporterID string) *Ticket {
	t.Helper()
	tickets := NewTicketStore(db)
	ticket, err := tickets.Create(context.Background(), CreateTicketInput{
		ProjectName: projectName,
		Title:       title,
	}, reporterID)
	require.NoError(t, err)
	return ticket
}

func backdateInvitation(t *testing.T, db *sql.DB, invitationID string, expiresAt time.Time) {
	t.Helper()
	_, err := db.Exec("UPDATE project_invitations SET expires_at = $2 WHERE id = $1", invitationID, expiresAt)
	require.NoError(t, err)
}
