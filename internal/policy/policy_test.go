package policy

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func TestCanEditTicket(t *testing.T) {
	tests := []struct {
		name       string
		reporterID string
		assigneeID *string
		userID     string
		role       ProjectRole
		want       bool
	}{
		{"owner can edit", "r1", nil, "u1", RoleOwner, true},
		{"admin can edit", "r1", nil, "u1", RoleAdmin, true},
		{"developer can edit", "r1", nil, "u1", RoleDeveloper, true},
		{"viewer cannot edit", "r1", nil, "u1", RoleViewer, false},
		{"non-member cannot edit", "r1", nil, "u1", RoleNone, false},
		{"reporter viewer can edit own ticket", "u1", nil, "u1", RoleViewer, true},
		{"assignee viewer can edit assigned ticket", "r1", strPtr("u1"), "u1", RoleViewer, true},
		{"unassigned ticket ignores assignee rule", "r1", nil, "u1", RoleViewer, false},
		{"other assignee does not help", "r1", strPtr("u2"), "u1", RoleViewer, false},
		{"empty user never matches", "", nil, "", RoleNone, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CanEditTicket(tt.reporterID, tt.assigneeID, tt.userID, tt.role)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMemberManagementRules(t *testing.T) {
	// Adding members is open to owners and admins.
	assert.True(t, CanAddMembers(RoleOwner))
	assert.True(t, CanAddMembers(RoleAdmin))
	assert.False(t, CanAddMembers(RoleDeveloper))
	assert.False(t, CanAddMembers(RoleViewer))
	assert.False(t, CanAddMembers(RoleNone))

	// Role changes and removals are owner-only.
	assert.True(t, CanManageMembers(RoleOwner))
	assert.False(t, CanManageMembers(RoleAdmin))
	assert.False(t, CanManageMembers(RoleDeveloper))
	assert.False(t, CanManageMembers(RoleNone))
}

func TestCanInvite(t *testing.T) {
	assert.True(t, CanInvite(RoleOwner))
	assert.True(t, CanInvite(RoleAdmin))
	assert.False(t, CanInvite(RoleDeveloper))
	assert.False(t, CanInvite(RoleViewer))
}

func TestCanDeleteProject(t *testing.T) {
	// Default minimum is owner.
	assert.True(t, CanDeleteProject(RoleOwner, RoleOwner))
	assert.False(t, CanDeleteProject(RoleAdmin, RoleOwner))

	// Deployments may relax the minimum to admin.
	assert.True(t, CanDeleteProject(RoleAdmin, RoleAdmin))
	assert.True(t, CanDeleteProject(RoleOwner, RoleAdmin))
	assert.False(t, CanDeleteProject(RoleDeveloper, RoleAdmin))

	// Garbage configuration falls back to owner-only.
	assert.False(t, CanDeleteProject(RoleAdmin, ProjectRole("superuser")))
	assert.True(t, CanDeleteProject(RoleOwner, ProjectRole("superuser")))
}

func TestCanDeleteCommentAndAttachment(t *testing.T) {
	assert.True(t, CanDeleteComment("a1", "a1", RoleViewer))
	assert.True(t, CanDeleteComment("a1", "u2", RoleAdmin))
	assert.True(t, CanDeleteComment("a1", "u2", RoleOwner))
	assert.False(t, CanDeleteComment("a1", "u2", RoleDeveloper))

	assert.True(t, CanDeleteAttachment("a1", "a1", RoleNone))
	assert.True(t, CanDeleteAttachment("a1", "u2", RoleOwner))
	assert.False(t, CanDeleteAttachment("a1", "u2", RoleViewer))
}

func TestRoleValidation(t *testing.T) {
	assert.True(t, ValidProjectRole("owner"))
	assert.True(t, ValidProjectRole("viewer"))
	assert.False(t, ValidProjectRole("root"))
	assert.False(t, ValidProjectRole(""))

	assert.True(t, ValidInviteRole("developer"))
	assert.False(t, ValidInviteRole("owner"))
}

func TestRoleAtLeast(t *testing.T) {
	assert.True(t, RoleAtLeast(RoleOwner, RoleViewer))
	assert.True(t, RoleAtLeast(RoleDeveloper, RoleDeveloper))
	assert.False(t, RoleAtLeast(RoleViewer, RoleDeveloper))
	assert.False(t, RoleAtLeast(RoleNone, RoleViewer))
}
