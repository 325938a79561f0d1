// Package policy holds the pure authorization rules consulted before every
// mutating operation. Nothing here touches the database: callers look up the
// actor's project role and the target entity, then ask policy for a decision.
package policy

// GlobalRole is a user's system-wide permission level.
type GlobalRole string

const (
	GlobalAdmin     GlobalRole = "admin"
	GlobalDeveloper GlobalRole = "developer"
	GlobalViewer    GlobalRole = "viewer"
)

// ProjectRole is a user's permission level within one project.
type ProjectRole string

const (
	RoleOwner     ProjectRole = "owner"
	RoleAdmin     ProjectRole = "admin"
	RoleDeveloper ProjectRole = "developer"
	RoleViewer    ProjectRole = "viewer"
)

// RoleNone marks the absence of a membership.
const RoleNone ProjectRole = ""

// ValidProjectRole reports whether s is an assignable project role.
func ValidProjectRole(s string) bool {
	switch ProjectRole(s) {
	case RoleOwner, RoleAdmin, RoleDeveloper, RoleViewer:
		return true
	}
	return false
}

// ValidInviteRole reports whether s is a role that can be granted through an
// invitation or membership add. Ownership is only ever established at project
// creation, never granted afterwards.
func ValidInviteRole(s string) bool {
	switch ProjectRole(s) {
	case RoleAdmin, RoleDeveloper, RoleViewer:
		return true
	}
	return false
}

var projectRoleRank = map[ProjectRole]int{
	RoleViewer:    1,
	RoleDeveloper: 2,
	RoleAdmin:     3,
	RoleOwner:     4,
}

// RoleAtLeast reports whether role meets or exceeds min in the
// owner > admin > developer > viewer hierarchy. An absent membership never
// satisfies any minimum.
func RoleAtLeast(role, min ProjectRole) bool {
	r, ok := projectRoleRank[role]
	if !ok {
		return false
	}
	m, ok := projectRoleRank[min]
	if !ok {
		return false
	}
	return r >= m
}

// CanEditTicket decides whether a user may update, re-status, or assign a
// ticket. Any one condition is sufficient: a privileged project role, being
// the reporter, or being the assignee.
func CanEditTicket(reporterID string, assigneeID *string, userID string, role ProjectRole) bool {
	if RoleAtLeast(role, RoleDeveloper) {
		return true
	}
	if userID != "" && userID == reporterID {
		return true
	}
	if assigneeID != nil && userID != "" && userID == *assigneeID {
		return true
	}
	return false
}

// CanAddMembers decides whether a project role may add members directly.
func CanAddMembers(role ProjectRole) bool {
	return RoleAtLeast(role, RoleAdmin)
}

// CanManageMembers decides whether a project role may change member roles or
// remove members. Only owners qualify.
func CanManageMembers(role ProjectRole) bool {
	return role == RoleOwner
}

// CanInvite decides whether a project role may create invitations.
func CanInvite(role ProjectRole) bool {
	return RoleAtLeast(role, RoleAdmin)
}

// CanDeleteProject decides whether a project role may archive a project.
// The minimum role is deployment configuration, defaulting to owner.
func CanDeleteProject(role, configuredMin ProjectRole) bool {
	if _, ok := projectRoleRank[configuredMin]; !ok {
		configuredMin = RoleOwner
	}
	return RoleAtLeast(role, configuredMin)
}

// CanManageLabels decides whether a project role may create or delete labels.
func CanManageLabels(role ProjectRole) bool {
	return RoleAtLeast(role, RoleAdmin)
}

// CanDeleteComment decides whether a user may delete a comment: the author,
// or a project owner/admin.
func CanDeleteComment(authorID, userID string, role ProjectRole) bool {
	if userID != "" && userID == authorID {
		return true
	}
	return RoleAtLeast(role, RoleAdmin)
}

// CanDeleteAttachment decides whether a user may delete an attachment: the
// uploader, or a project owner/admin.
func CanDeleteAttachment(uploadedBy, userID string, role ProjectRole) bool {
	if userID != "" && userID == uploadedBy {
		return true
	}
	return RoleAtLeast(role, RoleAdmin)
}
