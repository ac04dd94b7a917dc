package schemekit

import (
	"context"

	"github.com/fernandezvara/dbkit"
	"github.com/uptrace/bun"
)

// ============================================================================
// BULK CROSS-PROJECT QUERIES
// ============================================================================
//
// Browse screens routinely ask "which of these N projects does this principal
// affect". Answering that per project costs N round trips; these queries
// answer it in one. Results are always a subset of the caller-supplied
// project ids, in no particular order.

// ProjectIDToRoleIDsMap accumulates role ids per project. Add tolerates zero
// ids silently, so callers may feed it unvalidated rows without guarding.
type ProjectIDToRoleIDsMap struct {
	entries map[int64][]int64
}

// NewProjectIDToRoleIDsMap creates an empty map.
func NewProjectIDToRoleIDsMap() *ProjectIDToRoleIDsMap {
	return &ProjectIDToRoleIDsMap{entries: make(map[int64][]int64)}
}

// Add records that a project carries a role. A zero project or role id is a
// no-op, never an error.
func (m *ProjectIDToRoleIDsMap) Add(projectID, roleID int64) {
	if projectID == 0 || roleID == 0 {
		return
	}
	for _, id := range m.entries[projectID] {
		if id == roleID {
			return
		}
	}
	m.entries[projectID] = append(m.entries[projectID], roleID)
}

// RoleIDs returns the role ids recorded for a project, nil when none.
func (m *ProjectIDToRoleIDsMap) RoleIDs(projectID int64) []int64 {
	return m.entries[projectID]
}

// ProjectIDs returns every project with at least one recorded role.
func (m *ProjectIDToRoleIDsMap) ProjectIDs() []int64 {
	ids := make([]int64, 0, len(m.entries))
	for id := range m.entries {
		ids = append(ids, id)
	}
	return ids
}

// Len returns the number of projects in the map.
func (m *ProjectIDToRoleIDsMap) Len() int {
	return len(m.entries)
}

// IsEmpty reports whether nothing was recorded.
func (m *ProjectIDToRoleIDsMap) IsEmpty() bool {
	return len(m.entries) == 0
}

// RoleActorOfTypeExistsForProjects reports, per project, the actor
// parameters of the given kind assigned to the role. Only projects from the
// caller's list appear in the result, and only when at least one matching
// row exists.
func (m *ProjectRoleManager) RoleActorOfTypeExistsForProjects(ctx context.Context, projectIDs []int64, roleID int64, actorType, parameter string) (map[int64][]string, error) {
	if len(projectIDs) == 0 {
		return map[int64][]string{}, nil
	}
	if roleID == 0 {
		return nil, NewError(ErrNilArgument, "project role id is required")
	}

	var rows []RoleActorAssignment
	err := dbkit.WithErr1(m.conn(ctx).NewSelect().Model(&rows).
		Where("project_id IN (?)", bun.In(projectIDs)).
		Where("project_role_id = ?", roleID).
		Where("type = ?", actorType).
		Where("parameter = ?", parameter).
		Scan(ctx), "RoleActorOfTypeExistsForProjects").Err()
	if err != nil {
		return nil, err
	}

	out := make(map[int64][]string, len(rows))
	for _, row := range rows {
		out[*row.ProjectID] = append(out[*row.ProjectID], row.Parameter)
	}
	return out, nil
}

// GetProjectIdsForUserInGroupsBecauseOfRole reports, per project, the group
// names that put the user into the role. The directory is probed once per
// distinct group, not once per row.
func (m *ProjectRoleManager) GetProjectIdsForUserInGroupsBecauseOfRole(ctx context.Context, projectIDs []int64, roleID int64, actorType, userID string) (map[int64][]string, error) {
	if len(projectIDs) == 0 || userID == "" {
		return map[int64][]string{}, nil
	}
	if roleID == 0 {
		return nil, NewError(ErrNilArgument, "project role id is required")
	}

	var rows []RoleActorAssignment
	err := dbkit.WithErr1(m.conn(ctx).NewSelect().Model(&rows).
		Where("project_id IN (?)", bun.In(projectIDs)).
		Where("project_role_id = ?", roleID).
		Where("type = ?", actorType).
		Scan(ctx), "GetProjectIdsForUserInGroupsBecauseOfRole").Err()
	if err != nil {
		return nil, err
	}

	inGroup := make(map[string]bool)
	out := make(map[int64][]string)
	for _, row := range rows {
		member, seen := inGroup[row.Parameter]
		if !seen {
			var derr error
			member, derr = m.directory.UserInGroup(ctx, userID, row.Parameter)
			if derr != nil {
				return nil, derr
			}
			inGroup[row.Parameter] = member
		}
		if member {
			out[*row.ProjectID] = append(out[*row.ProjectID], row.Parameter)
		}
	}
	return out, nil
}

// GetProjectIdsContainingRoleActorByNameAndType maps each project from the
// caller's list to the role ids that reference the principal there.
func (m *ProjectRoleManager) GetProjectIdsContainingRoleActorByNameAndType(ctx context.Context, projectIDs []int64, actorType, parameter string) (*ProjectIDToRoleIDsMap, error) {
	result := NewProjectIDToRoleIDsMap()
	if len(projectIDs) == 0 {
		return result, nil
	}
	if actorType == "" || parameter == "" {
		return nil, NewError(ErrNilArgument, "actor type and parameter are required")
	}

	var rows []RoleActorAssignment
	err := dbkit.WithErr1(m.conn(ctx).NewSelect().Model(&rows).
		Where("project_id IN (?)", bun.In(projectIDs)).
		Where("type = ?", actorType).
		Where("parameter = ?", parameter).
		Scan(ctx), "GetProjectIdsContainingRoleActorByNameAndType").Err()
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		if row.ProjectID == nil {
			continue
		}
		result.Add(*row.ProjectID, row.ProjectRoleID)
	}
	return result, nil
}
