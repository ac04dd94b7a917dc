package schemekit

import (
	"context"
	"time"

	"github.com/fernandezvara/dbkit"
)

// ============================================================================
// AUTHORITY RESOLUTION
// ============================================================================

// HasSchemeAuthority is the capability check: it resolves the schemes of
// this family bound to the subject's project, filters the entities granting
// the capability, and resolves each entity's actor reference through the
// registry. Access is granted if ANY entity grants it; there are no deny
// rows. Denial is a false return, never an error.
//
// userID may be empty for the anonymous user; issueCreation marks checks
// running before any issue exists (e.g. a create-issue screen), which
// changes how reporter-based grants resolve.
//
// Entities whose actor reference dangles (the principal has been deleted)
// contribute nothing; they never abort the check for unrelated entities.
//
// Example:
//
//	ok, err := permissions.HasSchemeAuthority(ctx, "10",
//	    schemekit.ProjectSubject(projectID), "fred", false)
func (m *SchemeManager) HasSchemeAuthority(ctx context.Context, capability string, subject Subject, userID string, issueCreation bool) (bool, error) {
	start := time.Now()
	granted, err := m.resolveAuthority(ctx, capability, subject, userID, issueCreation)
	m.monitor.recordAuthorityCheck(time.Since(start), granted)
	return granted, err
}

// HasSchemeAuthorityAnonymous evaluates the same entities against the
// anonymous user. Only actor kinds meaningful without a user can grant;
// none of the built-in kinds do.
func (m *SchemeManager) HasSchemeAuthorityAnonymous(ctx context.Context, capability string, subject Subject) (bool, error) {
	return m.HasSchemeAuthority(ctx, capability, subject, "", false)
}

func (m *SchemeManager) resolveAuthority(ctx context.Context, capability string, subject Subject, userID string, issueCreation bool) (bool, error) {
	if subject.ProjectID == 0 {
		return false, NewError(ErrNilArgument, "subject project is required").
			WithScheme(m.schemeType, 0)
	}

	entities, err := m.matchingEntities(ctx, capability, subject.ProjectID)
	if err != nil {
		return false, err
	}

	req := AuthorityRequest{
		UserID:        userID,
		ProjectID:     subject.ProjectID,
		Issue:         subject.Issue,
		IssueCreation: issueCreation,
	}

	for _, entity := range entities {
		grant := m.registry.GrantFor(entity.Type)
		if grant == nil {
			// Unregistered kinds contribute nothing. Rows of a kind whose
			// plugin was removed must not break checks for everyone else.
			continue
		}

		ok, err := grant(ctx, m.Service, entity, req)
		if err != nil {
			if IsRoleActorDoesNotExist(err) {
				continue
			}
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// matchingEntities loads, in one query, the entities of this family's
// schemes bound to the project that grant the capability (directly or
// through the wildcard).
func (m *SchemeManager) matchingEntities(ctx context.Context, capability string, projectID int64) ([]SchemeEntity, error) {
	var entities []SchemeEntity
	err := dbkit.WithErr1(m.conn(ctx).NewSelect().Model(&entities).
		Where("se.scheme_id IN (SELECT psa.scheme_id FROM project_scheme_associations psa JOIN schemes s ON s.id = psa.scheme_id WHERE psa.project_id = ? AND s.type = ?)",
			projectID, m.schemeType).
		Where("(se.entity_type_id = ? OR se.entity_type_id IS NULL)", capability).
		Scan(ctx), "GetMatchingSchemeEntities").Err()
	if err != nil {
		return nil, err
	}
	return entities, nil
}

// GetGrantingEntities returns, for admin screens, every entity of this
// family bound to the project that grants the capability, natural order.
func (m *SchemeManager) GetGrantingEntities(ctx context.Context, capability string, projectID int64) ([]SchemeEntity, error) {
	if projectID == 0 {
		return nil, NewError(ErrNilArgument, "project id is required")
	}
	entities, err := m.matchingEntities(ctx, capability, projectID)
	if err != nil {
		return nil, err
	}
	SortEntities(entities)
	return entities, nil
}
