package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLabelStore_Create(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	owner := createTestUser(t, db, "lcowner")
	project := createTestProject(t, db, owner.ID)

	store := NewLabelStore(db)

	label, err := store.Create(context.Background(), project.ID, "backend", "#FF8800", nil)
	require.NoError(t, err)
	assert.Equal(t, "backend", label.Name)
	assert.Equal(t, "#ff8800", label.Color, "colors are stored lowercased")
}

func TestLabelStore_Create_DuplicatePerProject(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	owner := createTestUser(t, db, "ldowner")
	projectA := createTestProject(t, db, owner.ID)
	projectB := createTestProject(t, db, owner.ID)

	store := NewLabelStore(db)
	ctx := context.Background()

	_, err := store.Create(ctx, projectA.ID, "urgent", "#ff0000", nil)
	require.NoError(t, err)

	_, err = store.Create(ctx, projectA.ID, "urgent", "#00ff00", nil)
	assert.ErrorIs(t, err, ErrConflict)

	// The same name is fine in another project.
	_, err = store.Create(ctx, projectB.ID, "urgent", "#ff0000", nil)
	assert.NoError(t, err)
}

func TestLabelStore_Create_InvalidColor(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	owner := createTestUser(t, db, "icowner")
	project := createTestProject(t, db, owner.ID)

	store := NewLabelStore(db)
	ctx := context.Background()

	for _, color := range []string{"red", "#fff", "ff8800", "#ff88zz"} {
		_, err := store.Create(ctx, project.ID, "label-"+color, color, nil)
		assert.ErrorIs(t, err, ErrValidation, "color %q", color)
	}
}

func TestLabelStore_AttachToTicket(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	owner := createTestUser(t, db, "atowner")
	project := createTestProject(t, db, owner.ID)
	ticket := createTestTicket(t, db, project.Name, "Labeled", owner.ID)

	store := NewLabelStore(db)
	ctx := context.Background()

	label, err := store.Create(ctx, project.ID, "bug", "#cc0000", nil)
	require.NoError(t, err)

	require.NoError(t, store.AttachToTicket(ctx, ticket.ID, label.ID))

	attached, err := store.ListForTicket(ctx, ticket.ID)
	require.NoError(t, err)
	require.Len(t, attached, 1)
	assert.Equal(t, label.ID, attached[0].ID)

	err = store.AttachToTicket(ctx, ticket.ID, label.ID)
	assert.ErrorIs(t, err, ErrConflict, "double attach conflicts")
}

func TestLabelStore_AttachToTicket_CrossProject(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	owner := createTestUser(t, db, "cpowner")
	projectA := createTestProject(t, db, owner.ID)
	projectB := createTestProject(t, db, owner.ID)
	ticket := createTestTicket(t, db, projectA.Name, "Here", owner.ID)

	store := NewLabelStore(db)
	ctx := context.Background()

	foreign, err := store.Create(ctx, projectB.ID, "elsewhere", "#123456", nil)
	require.NoError(t, err)

	err = store.AttachToTicket(ctx, ticket.ID, foreign.ID)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestLabelStore_DetachFromTicket(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	owner := createTestUser(t, db, "dtowner")
	project := createTestProject(t, db, owner.ID)
	ticket := createTestTicket(t, db, project.Name, "Unlabeled", owner.ID)

	store := NewLabelStore(db)
	ctx := context.Background()

	label, err := store.Create(ctx, project.ID, "temp", "#abcdef", nil)
	require.NoError(t, err)
	require.NoError(t, store.AttachToTicket(ctx, ticket.ID, label.ID))

	require.NoError(t, store.DetachFromTicket(ctx, ticket.ID, label.ID))

	attached, err := store.ListForTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Empty(t, attached)

	err = store.DetachFromTicket(ctx, ticket.ID, label.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLabelStore_Delete_DetachesTickets(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	owner := createTestUser(t, db, "ddowner")
	project := createTestProject(t, db, owner.ID)
	ticket := createTestTicket(t, db, project.Name, "Cleanup", owner.ID)

	store := NewLabelStore(db)
	ctx := context.Background()

	label, err := store.Create(ctx, project.ID, "deprecated", "#999999", nil)
	require.NoError(t, err)
	require.NoError(t, store.AttachToTicket(ctx, ticket.ID, label.ID))

	require.NoError(t, store.Delete(ctx, label.ID))

	attached, err := store.ListForTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.Empty(t, attached)
}

func TestLabelStore_Update(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	owner := createTestUser(t, db, "luowner")
	project := createTestProject(t, db, owner.ID)

	store := NewLabelStore(db)
	ctx := context.Background()

	label, err := store.Create(ctx, project.ID, "frontend", "#00aaff", nil)
	require.NoError(t, err)

	newName := "ui"
	desc := "user-facing work"
	updated, err := store.Update(ctx, label.ID, &newName, nil, &desc)
	require.NoError(t, err)
	assert.Equal(t, "ui", updated.Name)
	assert.Equal(t, "#00aaff", updated.Color, "untouched fields keep their values")
	assert.Equal(t, desc, *updated.Description)
}
