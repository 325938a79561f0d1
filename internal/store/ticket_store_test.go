package store

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTicketStore_Create(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	owner := createTestUser(t, db, "tcowner")
	project := createTestProject(t, db, owner.ID)

	store := NewTicketStore(db)
	ctx := context.Background()

	desc := "something broke"
	ticket, err := store.Create(ctx, CreateTicketInput{
		ProjectName: project.Name,
		Title:       "First ticket",
		Description: &desc,
		Type:        "bug",
		Priority:    "high",
	}, owner.ID)
	require.NoError(t, err)
	require.NotNil(t, ticket)

	assert.Equal(t, project.Key+"-1", ticket.Key)
	assert.Equal(t, "bug", ticket.Type)
	assert.Equal(t, "high", ticket.Priority)
	assert.Equal(t, StatusTodo, ticket.Status)
	assert.Equal(t, owner.ID, ticket.ReporterID)
	assert.Nil(t, ticket.AssigneeID)
	assert.Nil(t, ticket.ResolvedAt)
}

func TestTicketStore_Create_Defaults(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	owner := createTestUser(t, db, "tdowner")
	project := createTestProject(t, db, owner.ID)

	store := NewTicketStore(db)

	ticket, err := store.Create(context.Background(), CreateTicketInput{
		ProjectName: project.Name,
		Title:       "Bare minimum",
	}, owner.ID)
	require.NoError(t, err)

	assert.Equal(t, "task", ticket.Type)
	assert.Equal(t, "medium", ticket.Priority)
}

func TestTicketStore_Create_ConcurrentKeysAreUnique(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	owner := createTestUser(t, db, "ccowner")
	project := createTestProject(t, db, owner.ID)

	store := NewTicketStore(db)
	ctx := context.Background()

	const workers = 10
	keys := make(chan string, workers)
	errs := make(chan error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			ticket, err := store.Create(ctx, CreateTicketInput{
				ProjectName: project.Name,
				Title:       fmt.Sprintf("Concurrent ticket %d", n),
			}, owner.ID)
			if err != nil {
				errs <- err
				return
			}
			keys <- ticket.Key
		}(i)
	}
	wg.Wait()
	close(keys)
	close(errs)

	for err := range errs {
		t.Fatalf("concurrent create failed: %v", err)
	}

	seen := make(map[string]bool, workers)
	for key := range keys {
		assert.False(t, seen[key], "key %s issued twice", key)
		seen[key] = true
	}
	require.Len(t, seen, workers)

	// The sequence must be gap free: exactly keys KEY-1 .. KEY-N.
	for i := 1; i <= workers; i++ {
		assert.True(t, seen[fmt.Sprintf("%s-%d", project.Key, i)], "missing key %s-%d", project.Key, i)
	}
}

func TestTicketStore_Create_KeysAreSequentialAndNeverReused(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	owner := createTestUser(t, db, "seqowner")
	project := createTestProject(t, db, owner.ID)

	store := NewTicketStore(db)
	ctx := context.Background()

	var tickets []*Ticket
	for i := 1; i <= 3; i++ {
		ticket, err := store.Create(ctx, CreateTicketInput{
			ProjectName: project.Name,
			Title:       fmt.Sprintf("Ticket %d", i),
		}, owner.ID)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("%s-%d", project.Key, i), ticket.Key)
		tickets = append(tickets, ticket)
	}

	// Deleting the latest ticket does not free its key.
	require.NoError(t, store.Delete(ctx, tickets[2].ID))

	next, err := store.Create(ctx, CreateTicketInput{
		ProjectName: project.Name,
		Title:       "After deletion",
	}, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, project.Key+"-4", next.Key)
}

func TestTicketStore_Create_PerProjectSequences(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	owner := createTestUser(t, db, "ppowner")
	projectA := createTestProject(t, db, owner.ID)
	projectB := createTestProject(t, db, owner.ID)

	store := NewTicketStore(db)
	ctx := context.Background()

	a1 := createTestTicket(t, db, projectA.Name, "A one", owner.ID)
	b1 := createTestTicket(t, db, projectB.Name, "B one", owner.ID)
	a2, err := store.Create(ctx, CreateTicketInput{ProjectName: projectA.Name, Title: "A two"}, owner.ID)
	require.NoError(t, err)

	assert.Equal(t, projectA.Key+"-1", a1.Key)
	assert.Equal(t, projectB.Key+"-1", b1.Key)
	assert.Equal(t, projectA.Key+"-2", a2.Key)
}

func TestTicketStore_Create_ArchivedProject(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	owner := createTestUser(t, db, "arcowner")
	project := createTestProject(t, db, owner.ID)
	require.NoError(t, NewProjectStore(db).Archive(context.Background(), project.ID))

	store := NewTicketStore(db)

	_, err := store.Create(context.Background(), CreateTicketInput{
		ProjectName: project.Name,
		Title:       "Into the void",
	}, owner.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTicketStore_Create_Validation(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	owner := createTestUser(t, db, "valowner")
	project := createTestProject(t, db, owner.ID)

	store := NewTicketStore(db)
	ctx := context.Background()

	_, err := store.Create(ctx, CreateTicketInput{ProjectName: project.Name, Title: "   "}, owner.ID)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = store.Create(ctx, CreateTicketInput{ProjectName: project.Name, Title: "Bad type", Type: "epic"}, owner.ID)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = store.Create(ctx, CreateTicketInput{ProjectName: project.Name, Title: "Bad prio", Priority: "blocker"}, owner.ID)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestTicketStore_Update(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	owner := createTestUser(t, db, "upowner")
	project := createTestProject(t, db, owner.ID)
	ticket := createTestTicket(t, db, project.Name, "Before", owner.ID)

	store := NewTicketStore(db)
	ctx := context.Background()

	title := "After"
	priority := "critical"
	due := time.Now().Add(72 * time.Hour).UTC().Truncate(time.Second)
	updated, err := store.Update(ctx, ticket.ID, UpdateTicketInput{
		Title:    &title,
		Priority: &priority,
		DueDate:  &due,
	}, owner.ID)
	require.NoError(t, err)

	assert.Equal(t, "After", updated.Title)
	assert.Equal(t, "critical", updated.Priority)
	require.NotNil(t, updated.DueDate)
	assert.WithinDuration(t, due, *updated.DueDate, time.Second)
	assert.Equal(t, ticket.Key, updated.Key, "keys are immutable")

	activities, err := NewActivityStore(db).ListByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	require.NotEmpty(t, activities)
	assert.Equal(t, ActivityUpdated, activities[len(activities)-1].Action)
}

func TestTicketStore_UpdateStatus_DoneSetsResolution(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	owner := createTestUser(t, db, "doneowner")
	project := createTestProject(t, db, owner.ID)
	ticket := createTestTicket(t, db, project.Name, "Fix me", owner.ID)

	store := NewTicketStore(db)
	ctx := context.Background()

	resolution := "fixed"
	done, err := store.UpdateStatus(ctx, ticket.ID, StatusDone, &resolution, owner.ID)
	require.NoError(t, err)

	assert.Equal(t, StatusDone, done.Status)
	require.NotNil(t, done.Resolution)
	assert.Equal(t, "fixed", *done.Resolution)
	assert.NotNil(t, done.ResolvedAt)

	// Leaving done clears both resolution and resolved_at.
	reopened, err := store.UpdateStatus(ctx, ticket.ID, StatusInProgress, nil, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, reopened.Status)
	assert.Nil(t, reopened.Resolution)
	assert.Nil(t, reopened.ResolvedAt)
}

func TestTicketStore_UpdateStatus_ResolutionOnlyWithDone(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	owner := createTestUser(t, db, "resowner")
	project := createTestProject(t, db, owner.ID)
	ticket := createTestTicket(t, db, project.Name, "No shortcuts", owner.ID)

	store := NewTicketStore(db)
	ctx := context.Background()

	resolution := "fixed"
	_, err := store.UpdateStatus(ctx, ticket.ID, StatusInProgress, &resolution, owner.ID)
	assert.ErrorIs(t, err, ErrValidation)

	bogus := "solved"
	_, err = store.UpdateStatus(ctx, ticket.ID, StatusDone, &bogus, owner.ID)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = store.UpdateStatus(ctx, ticket.ID, "paused", nil, owner.ID)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestTicketStore_UpdateStatus_RecordsTransition(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	owner := createTestUser(t, db, "trowner")
	project := createTestProject(t, db, owner.ID)
	ticket := createTestTicket(t, db, project.Name, "Audited", owner.ID)

	store := NewTicketStore(db)
	ctx := context.Background()

	_, err := store.UpdateStatus(ctx, ticket.ID, StatusInProgress, nil, owner.ID)
	require.NoError(t, err)

	activities, err := NewActivityStore(db).ListByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, activities, 2)
	assert.Equal(t, ActivityCreated, activities[0].Action)
	assert.Equal(t, ActivityStatusChanged, activities[1].Action)
	require.NotNil(t, activities[1].OldValue)
	require.NotNil(t, activities[1].NewValue)
	assert.Equal(t, StatusTodo, *activities[1].OldValue)
	assert.Equal(t, StatusInProgress, *activities[1].NewValue)
}

func TestTicketStore_Assign(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	owner := createTestUser(t, db, "asowner")
	dev := createTestUser(t, db, "asdev")
	project := createTestProject(t, db, owner.ID)
	ticket := createTestTicket(t, db, project.Name, "Needs hands", owner.ID)

	store := NewTicketStore(db)
	ctx := context.Background()

	assigned, err := store.Assign(ctx, ticket.ID, dev.ID, owner.ID)
	require.NoError(t, err)
	require.NotNil(t, assigned.AssigneeID)
	assert.Equal(t, dev.ID, *assigned.AssigneeID)

	activities, err := NewActivityStore(db).ListByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, ActivityAssigned, activities[len(activities)-1].Action)
}

func TestTicketStore_Delete(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	owner := createTestUser(t, db, "delowner")
	project := createTestProject(t, db, owner.ID)
	ticket := createTestTicket(t, db, project.Name, "Doomed", owner.ID)

	comments := NewCommentStore(db)
	_, err := comments.Create(context.Background(), CreateCommentInput{
		TicketID: ticket.ID, AuthorID: owner.ID, Content: "will cascade",
	})
	require.NoError(t, err)

	store := NewTicketStore(db)
	ctx := context.Background()

	require.NoError(t, store.Delete(ctx, ticket.ID))

	_, err = store.GetByID(ctx, ticket.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	remaining, err := comments.ListByTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Empty(t, remaining, "comments cascade with the ticket")

	err = store.Delete(ctx, ticket.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTicketStore_ListByProject(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	owner := createTestUser(t, db, "lpowner")
	project := createTestProject(t, db, owner.ID)
	other := createTestProject(t, db, owner.ID)

	createTestTicket(t, db, project.Name, "One", owner.ID)
	createTestTicket(t, db, project.Name, "Two", owner.ID)
	createTestTicket(t, db, other.Name, "Elsewhere", owner.ID)

	store := NewTicketStore(db)

	tickets, err := store.ListByProject(context.Background(), project.ID)
	require.NoError(t, err)
	require.Len(t, tickets, 2)
	for _, ticket := range tickets {
		assert.Equal(t, project.ID, ticket.ProjectID)
		assert.NotEmpty(t, ticket.ReporterUsername)
	}
}
