package schemekit

import "context"

// Checker answers role-membership questions for one user from a resolved
// snapshot, without further database round trips. It is typically created by
// the Service and stored in context for use in handlers.
type Checker struct {
	userID  string
	roles   *UserProjectRoles
	service *Service
}

// NewChecker creates a new Checker for a user.
func NewChecker(userID string, roles *UserProjectRoles, service *Service) *Checker {
	return &Checker{
		userID:  userID,
		roles:   roles,
		service: service,
	}
}

// UserID returns the user ID this checker is for.
func (c *Checker) UserID() string {
	return c.userID
}

// IsInRole checks if the user holds a role in a project.
//
// Example:
//
//	if checker.IsInRole(developersRoleID, projectID) {
//	    // User is a developer on this project
//	}
func (c *Checker) IsInRole(roleID, projectID int64) bool {
	return c.roles.HasRole(roleID, projectID)
}

// HasAnyRole checks if the user holds any of the given roles in a project.
//
// Example:
//
//	if checker.HasAnyRole([]int64{adminsRoleID, developersRoleID}, projectID) {
//	    // User is either an admin or a developer here
//	}
func (c *Checker) HasAnyRole(roleIDs []int64, projectID int64) bool {
	for _, id := range roleIDs {
		if c.roles.HasRole(id, projectID) {
			return true
		}
	}
	return false
}

// HasAllRoles checks if the user holds all of the given roles in a project.
func (c *Checker) HasAllRoles(roleIDs []int64, projectID int64) bool {
	for _, id := range roleIDs {
		if !c.roles.HasRole(id, projectID) {
			return false
		}
	}
	return true
}

// RoleIDs returns all role ids the user holds in a project.
//
// Example:
//
//	ids := checker.RoleIDs(projectID)
//	// ids might be [10002, 10005]
func (c *Checker) RoleIDs(projectID int64) []int64 {
	return c.roles.RoleIDs(projectID)
}

// ProjectsWithRole returns every project where the user holds the role.
//
// Example:
//
//	projectIDs := checker.ProjectsWithRole(developersRoleID)
func (c *Checker) ProjectsWithRole(roleID int64) []int64 {
	seen := make(map[int64]bool)
	var out []int64
	for _, m := range c.roles.Memberships {
		if m.ProjectRoleID == roleID && !seen[m.ProjectID] {
			seen[m.ProjectID] = true
			out = append(out, m.ProjectID)
		}
	}
	return out
}

// ProjectsWithAnyRole returns every project where the user holds at least
// one role.
func (c *Checker) ProjectsWithAnyRole() []int64 {
	seen := make(map[int64]bool)
	var out []int64
	for _, m := range c.roles.Memberships {
		if !seen[m.ProjectID] {
			seen[m.ProjectID] = true
			out = append(out, m.ProjectID)
		}
	}
	return out
}

// HasAuthority checks a scheme capability for the checker's user. Unlike the
// membership methods this goes to the database, since scheme entities may
// grant through actors the snapshot does not cover (reporter, custom kinds).
func (c *Checker) HasAuthority(ctx context.Context, schemeType, capability string, subject Subject) (bool, error) {
	return c.service.Schemes(schemeType).HasSchemeAuthority(ctx, capability, subject, c.userID, false)
}

// IsEmpty returns true if the user holds no role in any project.
func (c *Checker) IsEmpty() bool {
	return len(c.roles.Memberships) == 0
}
