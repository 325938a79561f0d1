package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pcorbett/issuedeck/internal/policy"
)

func TestProjectStore_Create(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	owner := createTestUser(t, db, "owner")
	store := NewProjectStore(db)

	project, err := store.Create(context.Background(), CreateProjectInput{
		Name: "Tracker",
		Key:  "trk",
	}, owner.ID)
	require.NoError(t, err)
	require.NotNil(t, project)

	assert.NotEmpty(t, project.ID)
	assert.Equal(t, "Tracker", project.Name)
	assert.Equal(t, "TRK", project.Key, "keys are stored uppercased")
	assert.False(t, project.IsArchived)
	assert.Equal(t, owner.ID, project.CreatedBy)
}

func TestProjectStore_Create_OwnerMembershipAndPromotion(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	owner := createTestUser(t, db, "promote")
	require.Equal(t, "viewer", owner.Role)

	store := NewProjectStore(db)
	ctx := context.Background()

	project, err := store.Create(ctx, CreateProjectInput{Name: "Promo", Key: "PROMO"}, owner.ID)
	require.NoError(t, err)

	role, err := store.MemberRole(ctx, project.ID, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, policy.RoleOwner, role)

	refreshed, err := NewUserStore(db).GetByID(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, "admin", refreshed.Role, "first project promotes a viewer to admin")
}

func TestProjectStore_Create_InvalidKey(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	owner := createTestUser(t, db, "badkey")
	store := NewProjectStore(db)
	ctx := context.Background()

	for _, key := range []string{"", "A", "TOOLONGKEY123", "WITH SPACE", "lower-key!"} {
		_, err := store.Create(ctx, CreateProjectInput{Name: "Bad " + key, Key: key}, owner.ID)
		assert.ErrorIs(t, err, ErrValidation, "key %q", key)
	}
}

func TestProjectStore_Create_DuplicateNameAndKey(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	owner := createTestUser(t, db, "dupproj")
	store := NewProjectStore(db)
	ctx := context.Background()

	_, err := store.Create(ctx, CreateProjectInput{Name: "Unique", Key: "UNQ"}, owner.ID)
	require.NoError(t, err)

	_, err = store.Create(ctx, CreateProjectInput{Name: "Unique", Key: "OTHER"}, owner.ID)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = store.Create(ctx, CreateProjectInput{Name: "Different", Key: "UNQ"}, owner.ID)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestProjectStore_GetByName_SkipsArchived(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	owner := createTestUser(t, db, "archiver")
	store := NewProjectStore(db)
	ctx := context.Background()

	project, err := store.Create(ctx, CreateProjectInput{Name: "Fading", Key: "FADE"}, owner.ID)
	require.NoError(t, err)

	found, err := store.GetByName(ctx, "Fading")
	require.NoError(t, err)
	assert.Equal(t, project.ID, found.ID)

	require.NoError(t, store.Archive(ctx, project.ID))

	_, err = store.GetByName(ctx, "Fading")
	assert.ErrorIs(t, err, ErrNotFound)

	// Archived projects also drop out of the member's listing.
	listed, err := store.ListForUser(ctx, owner.ID)
	require.NoError(t, err)
	assert.Empty(t, listed)
}

func TestProjectStore_ListForUser_OnlyMemberships(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	owner := createTestUser(t, db, "lister")
	outsider := createTestUser(t, db, "outsider")
	store := NewProjectStore(db)
	ctx := context.Background()

	mine, err := store.Create(ctx, CreateProjectInput{Name: "Mine", Key: "MINE"}, owner.ID)
	require.NoError(t, err)
	_, err = store.Create(ctx, CreateProjectInput{Name: "Theirs", Key: "THRS"}, outsider.ID)
	require.NoError(t, err)

	listed, err := store.ListForUser(ctx, owner.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, mine.ID, listed[0].ID)
}

func TestProjectStore_AddMember(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	owner := createTestUser(t, db, "addowner")
	joiner := createTestUser(t, db, "joiner")
	store := NewProjectStore(db)
	ctx := context.Background()

	project := createTestProject(t, db, owner.ID)

	member, err := store.AddMember(ctx, project.ID, joiner.ID, policy.RoleDeveloper, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, policy.RoleDeveloper, member.Role)
	assert.Equal(t, joiner.Username, member.Username)

	// Same user again violates the per-project uniqueness.
	_, err = store.AddMember(ctx, project.ID, joiner.ID, policy.RoleViewer, owner.ID)
	assert.ErrorIs(t, err, ErrConflict)
}

func TestProjectStore_MemberRole_NonMember(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	owner := createTestUser(t, db, "roleowner")
	stranger := createTestUser(t, db, "stranger")
	store := NewProjectStore(db)
	ctx := context.Background()

	project := createTestProject(t, db, owner.ID)

	role, err := store.MemberRole(ctx, project.ID, stranger.ID)
	require.NoError(t, err)
	assert.Equal(t, policy.RoleNone, role)

	isMember, err := store.IsMember(ctx, project.ID, stranger.ID)
	require.NoError(t, err)
	assert.False(t, isMember)
}

func TestProjectStore_UpdateMemberRole_ProtectsOwner(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	owner := createTestUser(t, db, "protowner")
	member := createTestUser(t, db, "protmember")
	store := NewProjectStore(db)
	ctx := context.Background()

	project := createTestProject(t, db, owner.ID)
	addTestMember(t, db, project.ID, member.ID, policy.RoleViewer)

	updated, err := store.UpdateMemberRole(ctx, project.ID, member.ID, policy.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, policy.RoleAdmin, updated.Role)

	_, err = store.UpdateMemberRole(ctx, project.ID, owner.ID, policy.RoleViewer)
	assert.ErrorIs(t, err, ErrConflict, "the owner's role cannot change")
}

func TestProjectStore_RemoveMember_ProtectsOwner(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	owner := createTestUser(t, db, "rmowner")
	member := createTestUser(t, db, "rmmember")
	store := NewProjectStore(db)
	ctx := context.Background()

	project := createTestProject(t, db, owner.ID)
	addTestMember(t, db, project.ID, member.ID, policy.RoleDeveloper)

	err := store.RemoveMember(ctx, project.ID, member.ID)
	require.NoError(t, err)

	isMember, err := store.IsMember(ctx, project.ID, member.ID)
	require.NoError(t, err)
	assert.False(t, isMember)

	err = store.RemoveMember(ctx, project.ID, owner.ID)
	assert.ErrorIs(t, err, ErrConflict, "the owner cannot be removed")

	err = store.RemoveMember(ctx, project.ID, member.ID)
	assert.ErrorIs(t, err, ErrNotFound, "already removed")
}

func TestProjectStore_ListMembers(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	owner := createTestUser(t, db, "lmowner")
	dev := createTestUser(t, db, "lmdev")
	store := NewProjectStore(db)
	ctx := context.Background()

	project := createTestProject(t, db, owner.ID)
	addTestMember(t, db, project.ID, dev.ID, policy.RoleDeveloper)

	members, err := store.ListMembers(ctx, project.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)

	byUser := map[string]policy.ProjectRole{}
	for _, m := range members {
		byUser[m.UserID] = m.Role
		assert.NotEmpty(t, m.Username)
	}
	assert.Equal(t, policy.RoleOwner, byUser[owner.ID])
	assert.Equal(t, policy.RoleDeveloper, byUser[dev.ID])
}

func TestProjectStore_Update(t *testing.T) {
	connStr := getTestDatabaseURL(t)
	db := setupTestDatabase(t, connStr)

	owner := createTestUser(t, db, "upowner")
	store := NewProjectStore(db)
	ctx := context.Background()

	project := createTestProject(t, db, owner.ID)

	newName := "Renamed"
	desc := "now with a description"
	updated, err := store.Update(ctx, project.ID, UpdateProjectInput{
		Name:        &newName,
		Description: &desc,
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)
	assert.Equal(t, desc, *updated.Description)
	assert.Equal(t, project.Key, updated.Key, "untouched fields keep their values")
}
