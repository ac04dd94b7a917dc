package schemekit

import (
	"context"
	"strconv"

	"github.com/fernandezvara/dbkit"
)

// ProjectRoleManager is the resolution façade for project roles: the role
// catalogue, the default actor templates, the per-project actor sets and the
// membership checks built on them.
type ProjectRoleManager struct {
	*Service
}

// NewProjectRoleManager creates the ProjectRoleManager.
func NewProjectRoleManager(service *Service) *ProjectRoleManager {
	return &ProjectRoleManager{Service: service}
}

// ============================================================================
// ROLE CATALOGUE
// ============================================================================

// CreateProjectRole persists a new role in the global catalogue. The id is
// filled in on success. The role starts with an empty default template.
func (m *ProjectRoleManager) CreateProjectRole(ctx context.Context, role *ProjectRole) error {
	if role == nil {
		return NewError(ErrNilArgument, "project role is required")
	}
	if role.Name == "" {
		return NewError(ErrInvalidArgument, "project role name is required")
	}

	result, err := m.conn(ctx).NewInsert().Model(role).Exec(ctx)
	err = dbkit.WithErr(result, err, "CreateProjectRole").Err()
	if err != nil {
		if dbkit.IsDuplicate(err) {
			return NewError(ErrRoleExists, "project role name already taken")
		}
		return err
	}
	return nil
}

// GetProjectRole retrieves a role by id. Returns nil without error when no
// such role exists.
func (m *ProjectRoleManager) GetProjectRole(ctx context.Context, id int64) (*ProjectRole, error) {
	var role ProjectRole
	err := dbkit.WithErr1(m.conn(ctx).NewSelect().Model(&role).
		Where("id = ?", id).Limit(1).Scan(ctx), "GetProjectRole").Err()
	if err != nil {
		if dbkit.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &role, nil
}

// GetProjectRoleByName retrieves a role by name. Returns nil without error
// when no such role exists.
func (m *ProjectRoleManager) GetProjectRoleByName(ctx context.Context, name string) (*ProjectRole, error) {
	var role ProjectRole
	err := dbkit.WithErr1(m.conn(ctx).NewSelect().Model(&role).
		Where("name = ?", name).Limit(1).Scan(ctx), "GetProjectRoleByName").Err()
	if err != nil {
		if dbkit.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &role, nil
}

// GetProjectRoles returns the whole role catalogue, name-ordered.
func (m *ProjectRoleManager) GetProjectRoles(ctx context.Context) ([]ProjectRole, error) {
	var roles []ProjectRole
	err := dbkit.WithErr1(m.conn(ctx).NewSelect().Model(&roles).
		Order("name ASC").Scan(ctx), "GetProjectRoles").Err()
	if err != nil {
		return nil, err
	}
	return roles, nil
}

// UpdateProjectRole updates a role's name and description.
func (m *ProjectRoleManager) UpdateProjectRole(ctx context.Context, role *ProjectRole) error {
	if role == nil || role.ID == 0 {
		return NewError(ErrNilArgument, "persisted project role is required")
	}
	result, err := m.conn(ctx).NewUpdate().Model(role).
		Column("name", "description").
		Where("id = ?", role.ID).Exec(ctx)
	return dbkit.WithErr(result, err, "UpdateProjectRole").Err()
}

// DeleteProjectRole removes a role, all of its actor rows (defaults and
// per-project) and every scheme entity referencing it.
func (m *ProjectRoleManager) DeleteProjectRole(ctx context.Context, id int64) error {
	if id == 0 {
		return NewError(ErrNilArgument, "project role id is required")
	}
	return m.Transaction(ctx, func(ctx context.Context) error {
		result, err := m.conn(ctx).NewDelete().Table("role_actors").
			Where("project_role_id = ?", id).Exec(ctx)
		if err := dbkit.WithErr(result, err, "DeleteRoleActors").Err(); err != nil {
			return err
		}
		result, err = m.conn(ctx).NewDelete().Table("scheme_entities").
			Where("type = ? AND parameter = ?", ActorTypeProjectRole, strconv.FormatInt(id, 10)).
			Exec(ctx)
		if err := dbkit.WithErr(result, err, "DeleteRoleSchemeEntities").Err(); err != nil {
			return err
		}
		result, err = m.conn(ctx).NewDelete().Table("project_roles").
			Where("id = ?", id).Exec(ctx)
		return dbkit.WithErr(result, err, "DeleteProjectRole").Err()
	})
}

// ============================================================================
// DEFAULT ROLE ACTORS
// ============================================================================

// GetDefaultRoleActors returns the template actor set for a role. Dangling
// actors (deleted principals) are skipped; the set only holds live actors.
func (m *ProjectRoleManager) GetDefaultRoleActors(ctx context.Context, roleID int64) (*DefaultRoleActors, error) {
	if roleID == 0 {
		return nil, NewError(ErrNilArgument, "project role id is required")
	}
	rows, err := m.actorRows(ctx, roleID, nil)
	if err != nil {
		return nil, err
	}
	actors, err := m.materializeActors(ctx, rows)
	if err != nil {
		return nil, err
	}
	return NewDefaultRoleActors(roleID, actors), nil
}

// AddDefaultRoleActor adds an actor reference to a role's template. The
// principal must exist: a dangling reference fails with
// ErrRoleActorDoesNotExist.
func (m *ProjectRoleManager) AddDefaultRoleActor(ctx context.Context, roleID int64, actorType, parameter string) error {
	return m.addActorRow(ctx, roleID, nil, actorType, parameter)
}

// RemoveDefaultRoleActor removes an actor reference from a role's template.
func (m *ProjectRoleManager) RemoveDefaultRoleActor(ctx context.Context, roleID int64, actorType, parameter string) error {
	return m.removeActorRow(ctx, roleID, nil, actorType, parameter)
}

// ============================================================================
// PROJECT ROLE ACTORS
// ============================================================================

// GetProjectRoleActors returns the materialized actor set for a role in a
// project. A project that was never configured yields an empty set, not nil.
func (m *ProjectRoleManager) GetProjectRoleActors(ctx context.Context, roleID, projectID int64) (*ProjectRoleActors, error) {
	if roleID == 0 || projectID == 0 {
		return nil, NewError(ErrNilArgument, "project role id and project id are required")
	}
	rows, err := m.actorRows(ctx, roleID, &projectID)
	if err != nil {
		return nil, err
	}
	actors, err := m.materializeActors(ctx, rows)
	if err != nil {
		return nil, err
	}
	return NewProjectRoleActors(projectID, roleID, actors), nil
}

// UpdateProjectRoleActors persists a full replace of a project's actor set
// for a role. Partial updates are rejected: the set must carry its project,
// its role and its actor list.
func (m *ProjectRoleManager) UpdateProjectRoleActors(ctx context.Context, actors *ProjectRoleActors) error {
	if actors == nil {
		return NewError(ErrNilArgument, "project role actors are required")
	}
	if actors.ProjectID() == 0 || actors.ProjectRoleID() == 0 {
		return NewError(ErrNilArgument, "project role actors must carry project and role").
			WithRole(actors.ProjectRoleID()).
			WithProject(actors.ProjectID())
	}

	projectID := actors.ProjectID()
	roleID := actors.ProjectRoleID()

	return m.Transaction(ctx, func(ctx context.Context) error {
		existing, err := m.actorRows(ctx, roleID, &projectID)
		if err != nil {
			return err
		}

		current := make(map[string]RoleActorAssignment, len(existing))
		for _, row := range existing {
			current[row.Type+"\x00"+row.Parameter] = row
		}
		wanted := make(map[string]RoleActor, actors.Len())
		for _, a := range actors.RoleActors() {
			wanted[actorKey(a)] = a
		}

		audit := GetAuditContext(ctx)

		for key, row := range current {
			if _, keep := wanted[key]; keep {
				continue
			}
			result, err := m.conn(ctx).NewDelete().Table("role_actors").
				Where("id = ?", row.ID).Exec(ctx)
			if err := dbkit.WithErr(result, err, "UpdateProjectRoleActorsDelete").Err(); err != nil {
				return err
			}
			_ = m.logAudit(ctx, &AuditEntry{
				ActorID:       audit.ActorID,
				Action:        AuditActionRemoved,
				ProjectRoleID: roleID,
				ProjectID:     &projectID,
				ActorType:     row.Type,
				Parameter:     row.Parameter,
				IPAddress:     audit.IPAddress,
				UserAgent:     audit.UserAgent,
				RequestID:     audit.RequestID,
			})
		}

		for key, actor := range wanted {
			if _, have := current[key]; have {
				continue
			}
			row := &RoleActorAssignment{
				ProjectRoleID: roleID,
				ProjectID:     &projectID,
				Type:          actor.Type(),
				Parameter:     actor.Parameter(),
			}
			result, err := m.conn(ctx).NewInsert().Model(row).Exec(ctx)
			if err := dbkit.WithErr(result, err, "UpdateProjectRoleActorsInsert").Err(); err != nil {
				return err
			}
			_ = m.logAudit(ctx, &AuditEntry{
				ActorID:       audit.ActorID,
				Action:        AuditActionAdded,
				ProjectRoleID: roleID,
				ProjectID:     &projectID,
				ActorType:     actor.Type(),
				Parameter:     actor.Parameter(),
				IPAddress:     audit.IPAddress,
				UserAgent:     audit.UserAgent,
				RequestID:     audit.RequestID,
			})
		}
		return nil
	})
}

// AddActorToProjectRole adds one actor reference to a role in a project.
func (m *ProjectRoleManager) AddActorToProjectRole(ctx context.Context, roleID, projectID int64, actorType, parameter string) error {
	if projectID == 0 {
		return NewError(ErrNilArgument, "project id is required")
	}
	return m.addActorRow(ctx, roleID, &projectID, actorType, parameter)
}

// RemoveActorFromProjectRole removes one actor reference from a role in a
// project.
func (m *ProjectRoleManager) RemoveActorFromProjectRole(ctx context.Context, roleID, projectID int64, actorType, parameter string) error {
	if projectID == 0 {
		return NewError(ErrNilArgument, "project id is required")
	}
	return m.removeActorRow(ctx, roleID, &projectID, actorType, parameter)
}

// ============================================================================
// DEFAULT PROPAGATION
// ============================================================================

// ApplyDefaultRolesToProject copies every role's default template into the
// project's actor sets. Actors already present on the project stay: the
// operation merges, it never replaces. Running it again on an already
// configured project changes nothing, so the project-creation flow may
// safely retry it.
func (m *ProjectRoleManager) ApplyDefaultRolesToProject(ctx context.Context, projectID int64) error {
	if projectID == 0 {
		return NewError(ErrNilArgument, "project id is required")
	}

	roles, err := m.GetProjectRoles(ctx)
	if err != nil {
		return err
	}

	return m.Transaction(ctx, func(ctx context.Context) error {
		audit := GetAuditContext(ctx)

		for _, role := range roles {
			defaults, err := m.actorRows(ctx, role.ID, nil)
			if err != nil {
				return err
			}
			if len(defaults) == 0 {
				continue
			}

			existing, err := m.actorRows(ctx, role.ID, &projectID)
			if err != nil {
				return err
			}
			present := make(map[string]bool, len(existing))
			for _, row := range existing {
				present[row.Type+"\x00"+row.Parameter] = true
			}

			for _, def := range defaults {
				if present[def.Type+"\x00"+def.Parameter] {
					continue
				}
				row := &RoleActorAssignment{
					ProjectRoleID: role.ID,
					ProjectID:     &projectID,
					Type:          def.Type,
					Parameter:     def.Parameter,
				}
				result, err := m.conn(ctx).NewInsert().Model(row).
					On("CONFLICT (project_role_id, COALESCE(project_id, 0), type, parameter) DO NOTHING").
					Exec(ctx)
				if err := dbkit.WithErr(result, err, "ApplyDefaultRolesToProject").Err(); err != nil {
					return err
				}
				_ = m.logAudit(ctx, &AuditEntry{
					ActorID:       audit.ActorID,
					Action:        AuditActionAdded,
					ProjectRoleID: role.ID,
					ProjectID:     &projectID,
					ActorType:     def.Type,
					Parameter:     def.Parameter,
					IPAddress:     audit.IPAddress,
					UserAgent:     audit.UserAgent,
					RequestID:     audit.RequestID,
					Metadata:      map[string]any{"source": "default_template"},
				})
			}
		}
		return nil
	})
}

// ============================================================================
// MEMBERSHIP CHECKS
// ============================================================================

// IsUserInProjectRole reports whether any actor of the role's set for the
// project contains the user. The actor set is optimized before probing. An
// empty user id (anonymous) is false, not an error.
func (m *ProjectRoleManager) IsUserInProjectRole(ctx context.Context, userID string, roleID, projectID int64) (bool, error) {
	if roleID == 0 || projectID == 0 {
		return false, NewError(ErrNilArgument, "project role id and project id are required")
	}
	if userID == "" {
		return false, nil
	}

	rows, err := m.actorRows(ctx, roleID, &projectID)
	if err != nil {
		return false, err
	}
	actors, err := m.materializeActors(ctx, rows)
	if err != nil {
		return false, err
	}
	for _, a := range m.optimizeActorSet(ctx, actors) {
		if a.Contains(ctx, userID) {
			return true, nil
		}
	}
	return false, nil
}

// GetUserProjectRoles resolves every project-role membership of a user
// across all projects in one pass. The snapshot backs the Checker.
func (m *ProjectRoleManager) GetUserProjectRoles(ctx context.Context, userID string) (*UserProjectRoles, error) {
	if userID == "" {
		return NewUserProjectRoles("", nil), nil
	}

	var rows []RoleActorAssignment
	err := dbkit.WithErr1(m.conn(ctx).NewSelect().Model(&rows).
		Where("project_id IS NOT NULL").
		Scan(ctx), "GetUserProjectRoles").Err()
	if err != nil {
		return nil, err
	}

	// One membership probe per distinct (kind, parameter) pair, not per row.
	probed := make(map[string]bool)
	var memberships []RoleMembership
	for _, row := range rows {
		key := row.Type + "\x00" + row.Parameter
		contained, seen := probed[key]
		if !seen {
			contained = m.rowContainsUser(ctx, row, userID)
			probed[key] = contained
		}
		if contained {
			memberships = append(memberships, RoleMembership{
				ProjectRoleID: row.ProjectRoleID,
				ProjectID:     *row.ProjectID,
				ActorType:     row.Type,
				Parameter:     row.Parameter,
			})
		}
	}
	return NewUserProjectRoles(userID, memberships), nil
}

// GetChecker creates a Checker for a user. This can be stored in context for
// efficient membership checking in handlers.
func (m *ProjectRoleManager) GetChecker(ctx context.Context, userID string) (*Checker, error) {
	roles, err := m.GetUserProjectRoles(ctx, userID)
	if err != nil {
		return nil, err
	}
	return NewChecker(userID, roles, m.Service), nil
}

// GetCheckerFromContext creates a Checker using the user ID from context.
func (m *ProjectRoleManager) GetCheckerFromContext(ctx context.Context) (*Checker, error) {
	userID := GetUserID(ctx)
	if userID == "" {
		return nil, ErrNoUserID
	}
	return m.GetChecker(ctx, userID)
}

// ============================================================================
// PRINCIPAL CLEANUP
// ============================================================================

// RemoveAllRoleActorsByProject deletes every actor row of a project. Called
// when the project itself is deleted.
func (m *ProjectRoleManager) RemoveAllRoleActorsByProject(ctx context.Context, projectID int64) error {
	if projectID == 0 {
		return NewError(ErrNilArgument, "project id is required")
	}
	result, err := m.conn(ctx).NewDelete().Table("role_actors").
		Where("project_id = ?", projectID).Exec(ctx)
	return dbkit.WithErr(result, err, "RemoveAllRoleActorsByProject").Err()
}

// RemoveAllRoleActorsByNameAndType deletes every actor row (defaults and
// per-project) referencing a principal. Called when the principal itself is
// deleted from the directory.
func (m *ProjectRoleManager) RemoveAllRoleActorsByNameAndType(ctx context.Context, parameter, actorType string) error {
	if parameter == "" || actorType == "" {
		return NewError(ErrNilArgument, "actor type and parameter are required")
	}
	result, err := m.conn(ctx).NewDelete().Table("role_actors").
		Where("type = ? AND parameter = ?", actorType, parameter).Exec(ctx)
	return dbkit.WithErr(result, err, "RemoveAllRoleActorsByNameAndType").Err()
}

// ============================================================================
// INTERNAL HELPERS
// ============================================================================

// actorRows loads the persisted actor rows of a role, for a project or for
// the default template (nil projectID).
func (m *ProjectRoleManager) actorRows(ctx context.Context, roleID int64, projectID *int64) ([]RoleActorAssignment, error) {
	var rows []RoleActorAssignment
	q := m.conn(ctx).NewSelect().Model(&rows).
		Where("project_role_id = ?", roleID)
	if projectID == nil {
		q = q.Where("project_id IS NULL")
	} else {
		q = q.Where("project_id = ?", *projectID)
	}
	err := dbkit.WithErr1(q.Scan(ctx), "GetRoleActorRows").Err()
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// materializeActors turns persisted rows into RoleActors through the
// registered factories. Rows of unregistered kinds and rows whose principal
// no longer exists contribute nothing.
func (m *ProjectRoleManager) materializeActors(ctx context.Context, rows []RoleActorAssignment) ([]RoleActor, error) {
	actors := make([]RoleActor, 0, len(rows))
	for _, row := range rows {
		factory := m.registry.FactoryFor(row.Type)
		if factory == nil {
			continue
		}
		var projectID int64
		if row.ProjectID != nil {
			projectID = *row.ProjectID
		}
		actor, err := factory.CreateRoleActor(ctx, row.ID, row.ProjectRoleID, projectID, row.Parameter)
		if err != nil {
			if IsRoleActorDoesNotExist(err) {
				continue
			}
			return nil, err
		}
		actors = append(actors, actor)
	}
	return actors, nil
}

// optimizeActorSet compacts the set kind by kind through the factories.
// The result answers every Contains exactly like the input.
func (m *ProjectRoleManager) optimizeActorSet(ctx context.Context, actors []RoleActor) []RoleActor {
	byType := make(map[string][]RoleActor)
	var order []string
	for _, a := range actors {
		if _, ok := byType[a.Type()]; !ok {
			order = append(order, a.Type())
		}
		byType[a.Type()] = append(byType[a.Type()], a)
	}

	out := make([]RoleActor, 0, len(actors))
	for _, t := range order {
		subset := byType[t]
		if factory := m.registry.FactoryFor(t); factory != nil {
			subset = factory.OptimizeRoleActorSet(ctx, subset)
		}
		out = append(out, subset...)
	}
	return out
}

// rowContainsUser probes one persisted actor row for a user.
func (m *ProjectRoleManager) rowContainsUser(ctx context.Context, row RoleActorAssignment, userID string) bool {
	factory := m.registry.FactoryFor(row.Type)
	if factory == nil {
		return false
	}
	var projectID int64
	if row.ProjectID != nil {
		projectID = *row.ProjectID
	}
	actor, err := factory.CreateRoleActor(ctx, row.ID, row.ProjectRoleID, projectID, row.Parameter)
	if err != nil {
		return false
	}
	return actor.Contains(ctx, userID)
}

// addActorRow validates the actor reference through its factory and inserts
// the row, for a project or for the default template (nil projectID).
func (m *ProjectRoleManager) addActorRow(ctx context.Context, roleID int64, projectID *int64, actorType, parameter string) error {
	if roleID == 0 {
		return NewError(ErrNilArgument, "project role id is required")
	}
	if parameter == "" {
		return NewError(ErrNilArgument, "actor parameter is required")
	}
	if err := m.registry.ValidateActorType(actorType); err != nil {
		return err
	}

	factory := m.registry.FactoryFor(actorType)
	if factory != nil {
		var pid int64
		if projectID != nil {
			pid = *projectID
		}
		if _, err := factory.CreateRoleActor(ctx, 0, roleID, pid, parameter); err != nil {
			return err
		}
	}

	row := &RoleActorAssignment{
		ProjectRoleID: roleID,
		ProjectID:     projectID,
		Type:          actorType,
		Parameter:     parameter,
	}
	result, err := m.conn(ctx).NewInsert().Model(row).
		On("CONFLICT (project_role_id, COALESCE(project_id, 0), type, parameter) DO NOTHING").
		Exec(ctx)
	if err := dbkit.WithErr(result, err, "AddRoleActor").Err(); err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		// Already present. Adding an actor twice is not an error.
		return nil
	}

	audit := GetAuditContext(ctx)
	_ = m.logAudit(ctx, &AuditEntry{
		ActorID:       audit.ActorID,
		Action:        AuditActionAdded,
		ProjectRoleID: roleID,
		ProjectID:     projectID,
		ActorType:     actorType,
		Parameter:     parameter,
		IPAddress:     audit.IPAddress,
		UserAgent:     audit.UserAgent,
		RequestID:     audit.RequestID,
	})
	return nil
}

// removeActorRow deletes one actor row, for a project or for the default
// template (nil projectID).
func (m *ProjectRoleManager) removeActorRow(ctx context.Context, roleID int64, projectID *int64, actorType, parameter string) error {
	if roleID == 0 {
		return NewError(ErrNilArgument, "project role id is required")
	}
	if parameter == "" {
		return NewError(ErrNilArgument, "actor parameter is required")
	}

	q := m.conn(ctx).NewDelete().Table("role_actors").
		Where("project_role_id = ? AND type = ? AND parameter = ?", roleID, actorType, parameter)
	if projectID == nil {
		q = q.Where("project_id IS NULL")
	} else {
		q = q.Where("project_id = ?", *projectID)
	}
	result, err := q.Exec(ctx)
	if err := dbkit.WithErr(result, err, "RemoveRoleActor").Err(); err != nil {
		return err
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil
	}

	audit := GetAuditContext(ctx)
	_ = m.logAudit(ctx, &AuditEntry{
		ActorID:       audit.ActorID,
		Action:        AuditActionRemoved,
		ProjectRoleID: roleID,
		ProjectID:     projectID,
		ActorType:     actorType,
		Parameter:     parameter,
		IPAddress:     audit.IPAddress,
		UserAgent:     audit.UserAgent,
		RequestID:     audit.RequestID,
	})
	return nil
}
