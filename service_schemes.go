package schemekit

import (
	"context"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/fernandezvara/dbkit"
)

// SchemeManager is the resolution façade for one scheme family: the
// "permission" manager, the "notification" manager, and so on. Families are
// open strings; a manager only ever sees schemes of its own family.
type SchemeManager struct {
	*Service
	schemeType string
}

// NewSchemeManager creates a SchemeManager bound to a scheme family.
func NewSchemeManager(service *Service, schemeType string) *SchemeManager {
	return &SchemeManager{Service: service, schemeType: schemeType}
}

// SchemeType returns the family this manager is bound to.
func (m *SchemeManager) SchemeType() string {
	return m.schemeType
}

// ============================================================================
// SCHEME CRUD
// ============================================================================

// CreateScheme persists a new scheme of this family together with its
// entities. The scheme's Type is set by the manager; ids are filled in on
// success.
func (m *SchemeManager) CreateScheme(ctx context.Context, scheme *Scheme) error {
	if scheme == nil {
		return NewError(ErrNilArgument, "scheme is required")
	}
	if scheme.Name == "" {
		return NewError(ErrInvalidArgument, "scheme name is required").
			WithScheme(m.schemeType, 0)
	}

	scheme.Type = m.schemeType
	return m.Transaction(ctx, func(ctx context.Context) error {
		result, err := m.conn(ctx).NewInsert().Model(scheme).Exec(ctx)
		err = dbkit.WithErr(result, err, "CreateScheme").Err()
		if err != nil {
			if dbkit.IsDuplicate(err) {
				return NewError(ErrSchemeExists, "scheme name already taken in this family").
					WithScheme(m.schemeType, 0)
			}
			return err
		}

		for i := range scheme.Entities {
			scheme.Entities[i].ID = 0
			scheme.Entities[i].SchemeID = scheme.ID
		}
		if len(scheme.Entities) > 0 {
			result, err = m.conn(ctx).NewInsert().Model(&scheme.Entities).Exec(ctx)
			if err := dbkit.WithErr(result, err, "CreateSchemeEntities").Err(); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetScheme retrieves a scheme of this family by id, entities included.
// Returns nil without error when no such scheme exists.
func (m *SchemeManager) GetScheme(ctx context.Context, id int64) (*Scheme, error) {
	var scheme Scheme
	err := dbkit.WithErr1(m.conn(ctx).NewSelect().Model(&scheme).
		Where("id = ? AND type = ?", id, m.schemeType).
		Limit(1).Scan(ctx), "GetScheme").Err()
	if err != nil {
		if dbkit.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if err := m.loadEntities(ctx, &scheme); err != nil {
		return nil, err
	}
	return &scheme, nil
}

// GetSchemeByName retrieves a scheme of this family by name, entities
// included. Returns nil without error when no such scheme exists.
func (m *SchemeManager) GetSchemeByName(ctx context.Context, name string) (*Scheme, error) {
	var scheme Scheme
	err := dbkit.WithErr1(m.conn(ctx).NewSelect().Model(&scheme).
		Where("name = ? AND type = ?", name, m.schemeType).
		Limit(1).Scan(ctx), "GetSchemeByName").Err()
	if err != nil {
		if dbkit.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	if err := m.loadEntities(ctx, &scheme); err != nil {
		return nil, err
	}
	return &scheme, nil
}

// UpdateScheme updates a scheme's name and description. Entities are managed
// through the entity operations, not through updates of the parent row.
func (m *SchemeManager) UpdateScheme(ctx context.Context, scheme *Scheme) error {
	if scheme == nil || scheme.ID == 0 {
		return NewError(ErrNilArgument, "persisted scheme is required")
	}
	result, err := m.conn(ctx).NewUpdate().Model(scheme).
		Column("name", "description").
		Where("id = ? AND type = ?", scheme.ID, m.schemeType).
		Exec(ctx)
	return dbkit.WithErr(result, err, "UpdateScheme").Err()
}

// DeleteScheme removes a scheme, its entities and its project associations.
func (m *SchemeManager) DeleteScheme(ctx context.Context, id int64) error {
	if id == 0 {
		return NewError(ErrNilArgument, "scheme id is required")
	}
	return m.Transaction(ctx, func(ctx context.Context) error {
		result, err := m.conn(ctx).NewDelete().Table("scheme_entities").
			Where("scheme_id = ?", id).Exec(ctx)
		if err := dbkit.WithErr(result, err, "DeleteSchemeEntities").Err(); err != nil {
			return err
		}
		result, err = m.conn(ctx).NewDelete().Table("project_scheme_associations").
			Where("scheme_id = ?", id).Exec(ctx)
		if err := dbkit.WithErr(result, err, "DeleteSchemeAssociations").Err(); err != nil {
			return err
		}
		result, err = m.conn(ctx).NewDelete().Table("schemes").
			Where("id = ? AND type = ?", id, m.schemeType).Exec(ctx)
		return dbkit.WithErr(result, err, "DeleteScheme").Err()
	})
}

// CopyScheme deep-copies a scheme: new id, copied entities, a free "Copy of"
// name, and no project associations. The copy starts unassociated and inert.
func (m *SchemeManager) CopyScheme(ctx context.Context, scheme *Scheme) (*Scheme, error) {
	if scheme == nil || scheme.ID == 0 {
		return nil, NewError(ErrNilArgument, "persisted scheme is required")
	}

	name, err := m.freeCopyName(ctx, scheme.Name)
	if err != nil {
		return nil, err
	}

	clone := &Scheme{
		Type:        m.schemeType,
		Name:        name,
		Description: scheme.Description,
		Entities:    make([]SchemeEntity, len(scheme.Entities)),
	}
	for i, e := range scheme.Entities {
		e.ID = 0
		e.SchemeID = 0
		clone.Entities[i] = e
	}

	if err := m.CreateScheme(ctx, clone); err != nil {
		return nil, err
	}
	return clone, nil
}

// freeCopyName finds the first unused "Copy of"/"Copy N of" variant.
func (m *SchemeManager) freeCopyName(ctx context.Context, base string) (string, error) {
	name := fmt.Sprintf("Copy of %s", base)
	for n := 2; ; n++ {
		existing, err := m.GetSchemeByName(ctx, name)
		if err != nil {
			return "", err
		}
		if existing == nil {
			return name, nil
		}
		name = fmt.Sprintf("Copy %d of %s", n, base)
	}
}

// ============================================================================
// PROJECT ASSOCIATIONS
// ============================================================================

// AssociateWithProject binds a scheme to a project. Binding an already-bound
// pair is a no-op.
func (m *SchemeManager) AssociateWithProject(ctx context.Context, projectID, schemeID int64) error {
	if projectID == 0 || schemeID == 0 {
		return NewError(ErrNilArgument, "project id and scheme id are required")
	}
	assoc := &ProjectSchemeAssociation{ProjectID: projectID, SchemeID: schemeID}
	result, err := m.conn(ctx).NewInsert().Model(assoc).
		On("CONFLICT (project_id, scheme_id) DO NOTHING").
		Exec(ctx)
	return dbkit.WithErr(result, err, "AssociateSchemeWithProject").Err()
}

// DissociateFromProject removes the binding of a scheme to a project.
func (m *SchemeManager) DissociateFromProject(ctx context.Context, projectID, schemeID int64) error {
	if projectID == 0 || schemeID == 0 {
		return NewError(ErrNilArgument, "project id and scheme id are required")
	}
	result, err := m.conn(ctx).NewDelete().Table("project_scheme_associations").
		Where("project_id = ? AND scheme_id = ?", projectID, schemeID).
		Exec(ctx)
	return dbkit.WithErr(result, err, "DissociateSchemeFromProject").Err()
}

// GetSchemesForProject returns the schemes of this family bound to a
// project, entities included.
func (m *SchemeManager) GetSchemesForProject(ctx context.Context, projectID int64) ([]Scheme, error) {
	if projectID == 0 {
		return nil, NewError(ErrNilArgument, "project id is required")
	}
	var schemes []Scheme
	err := dbkit.WithErr1(m.conn(ctx).NewSelect().Model(&schemes).
		Where("type = ?", m.schemeType).
		Where("EXISTS (SELECT 1 FROM project_scheme_associations psa WHERE psa.scheme_id = s.id AND psa.project_id = ?)", projectID).
		Order("name ASC").
		Scan(ctx), "GetSchemesForProject").Err()
	if err != nil {
		return nil, err
	}
	if err := m.loadEntitiesForAll(ctx, schemes); err != nil {
		return nil, err
	}
	return schemes, nil
}

// GetProjectsForScheme returns the ids of the projects a scheme is bound to.
func (m *SchemeManager) GetProjectsForScheme(ctx context.Context, schemeID int64) ([]int64, error) {
	if schemeID == 0 {
		return nil, NewError(ErrNilArgument, "scheme id is required")
	}
	var projectIDs []int64
	err := dbkit.WithErr1(m.conn(ctx).NewRaw(
		"SELECT project_id FROM project_scheme_associations WHERE scheme_id = ? ORDER BY project_id",
		schemeID).Scan(ctx, &projectIDs), "GetProjectsForScheme").Err()
	if err != nil {
		return nil, err
	}
	return projectIDs, nil
}

// GetAssociatedSchemes returns the schemes of this family bound to at least
// one project. With withEntitiesComparable, row identity is stripped off the
// entity lists so two structurally identical schemes compare equal through
// ContainsSameEntities.
func (m *SchemeManager) GetAssociatedSchemes(ctx context.Context, withEntitiesComparable bool) ([]Scheme, error) {
	var schemes []Scheme
	err := dbkit.WithErr1(m.conn(ctx).NewSelect().Model(&schemes).
		Where("type = ?", m.schemeType).
		Where("EXISTS (SELECT 1 FROM project_scheme_associations psa WHERE psa.scheme_id = s.id)").
		Order("name ASC").
		Scan(ctx), "GetAssociatedSchemes").Err()
	if err != nil {
		return nil, err
	}
	if err := m.loadEntitiesForAll(ctx, schemes); err != nil {
		return nil, err
	}
	if withEntitiesComparable {
		for i := range schemes {
			schemes[i].Entities = schemes[i].ComparableEntities()
		}
	}
	return schemes, nil
}

// GetUnassociatedSchemes returns the schemes of this family bound to no
// project at all.
func (m *SchemeManager) GetUnassociatedSchemes(ctx context.Context) ([]Scheme, error) {
	var schemes []Scheme
	err := dbkit.WithErr1(m.conn(ctx).NewSelect().Model(&schemes).
		Where("type = ?", m.schemeType).
		Where("NOT EXISTS (SELECT 1 FROM project_scheme_associations psa WHERE psa.scheme_id = s.id)").
		Order("name ASC").
		Scan(ctx), "GetUnassociatedSchemes").Err()
	if err != nil {
		return nil, err
	}
	if err := m.loadEntitiesForAll(ctx, schemes); err != nil {
		return nil, err
	}
	return schemes, nil
}

// ============================================================================
// SCHEME ENTITIES
// ============================================================================

// CreateSchemeEntity adds one binding row to a scheme. The actor kind must
// be registered. Duplicate rows are allowed: for notification schemes the
// same actor may appear once per template.
func (m *SchemeManager) CreateSchemeEntity(ctx context.Context, schemeID int64, entity SchemeEntity) (*SchemeEntity, error) {
	if schemeID == 0 {
		return nil, NewError(ErrNilArgument, "scheme id is required")
	}
	if err := m.registry.ValidateActorType(entity.Type); err != nil {
		return nil, err
	}

	entity.ID = 0
	entity.SchemeID = schemeID
	result, err := m.conn(ctx).NewInsert().Model(&entity).Exec(ctx)
	if err := dbkit.WithErr(result, err, "CreateSchemeEntity").Err(); err != nil {
		return nil, err
	}
	return &entity, nil
}

// GetEntities returns a scheme's binding rows in their natural
// (parameter-only) order.
func (m *SchemeManager) GetEntities(ctx context.Context, schemeID int64) ([]SchemeEntity, error) {
	if schemeID == 0 {
		return nil, NewError(ErrNilArgument, "scheme id is required")
	}
	var entities []SchemeEntity
	err := dbkit.WithErr1(m.conn(ctx).NewSelect().Model(&entities).
		Where("scheme_id = ?", schemeID).
		Scan(ctx), "GetSchemeEntities").Err()
	if err != nil {
		return nil, err
	}
	SortEntities(entities)
	return entities, nil
}

// GetEntitiesFiltered returns a scheme's binding rows passing the filter,
// multiplicity preserved.
func (m *SchemeManager) GetEntitiesFiltered(ctx context.Context, schemeID int64, filter EntityFilter) ([]SchemeEntity, error) {
	entities, err := m.GetEntities(ctx, schemeID)
	if err != nil {
		return nil, err
	}
	return FilterEntities(entities, filter), nil
}

// DeleteEntity removes one binding row.
func (m *SchemeManager) DeleteEntity(ctx context.Context, entityID int64) error {
	if entityID == 0 {
		return NewError(ErrNilArgument, "entity id is required")
	}
	result, err := m.conn(ctx).NewDelete().Table("scheme_entities").
		Where("id = ?", entityID).Exec(ctx)
	return dbkit.WithErr(result, err, "DeleteSchemeEntity").Err()
}

// RemoveEntities deletes every binding row referencing the given principal
// across ALL schemes of ALL families. This is the global cleanup hook
// invoked when the principal itself is deleted from the system. Returns the
// number of rows removed.
func (s *Service) RemoveEntities(ctx context.Context, actorType, parameter string) (int64, error) {
	if actorType == "" || parameter == "" {
		return 0, NewError(ErrNilArgument, "actor type and parameter are required")
	}
	result, err := s.conn(ctx).NewDelete().Table("scheme_entities").
		Where("type = ? AND parameter = ?", actorType, parameter).
		Exec(ctx)
	if err := dbkit.WithErr(result, err, "RemoveEntities").Err(); err != nil {
		return 0, err
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}

// ============================================================================
// INTERNAL HELPERS
// ============================================================================

func (m *SchemeManager) loadEntities(ctx context.Context, scheme *Scheme) error {
	entities, err := m.GetEntities(ctx, scheme.ID)
	if err != nil {
		return err
	}
	scheme.Entities = entities
	return nil
}

func (m *SchemeManager) loadEntitiesForAll(ctx context.Context, schemes []Scheme) error {
	if len(schemes) == 0 {
		return nil
	}

	ids := make([]int64, len(schemes))
	for i, s := range schemes {
		ids[i] = s.ID
	}

	var entities []SchemeEntity
	err := dbkit.WithErr1(m.conn(ctx).NewSelect().Model(&entities).
		Where("scheme_id IN (?)", bun.In(ids)).
		Scan(ctx), "GetSchemeEntitiesBulk").Err()
	if err != nil {
		return err
	}

	byScheme := make(map[int64][]SchemeEntity, len(schemes))
	for _, e := range entities {
		byScheme[e.SchemeID] = append(byScheme[e.SchemeID], e)
	}
	for i := range schemes {
		list := byScheme[schemes[i].ID]
		SortEntities(list)
		schemes[i].Entities = list
	}
	return nil
}
