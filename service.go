package schemekit

import (
	"context"

	"github.com/fernandezvara/dbkit"
)

// Service is the core of the authorization engine: it owns the database
// handle, the actor-kind registry and the directory collaborator, and hands
// out the two resolution façades (SchemeManager, ProjectRoleManager).
//
// Error Handling:
// All database operations use dbkit's chainable error wrapping to provide
// detailed context about failed operations. Lookups that find nothing return
// nil results without error; denial of access is a false result, never an
// error. Errors are reserved for environment and data-integrity problems.
//
// Example error handling:
//
//	scheme, err := manager.GetScheme(ctx, id)
//	if err != nil {
//	    // environment / data problem
//	}
//	if scheme == nil {
//	    // no such scheme — deliberate nil, not an error
//	}
type Service struct {
	db        dbkit.IDB
	registry  *Registry
	directory Directory
	monitor   *opMonitor
}

// NewService creates a new SchemeKit service.
//
// Example:
//
//	directory := myDirectoryAdapter{}
//	registry := schemekit.NewDefaultRegistry(directory)
//	db, _ := dbkit.New(dbkit.Config{URL: "postgres://..."})
//	service := schemekit.NewService(registry, directory, db)
func NewService(registry *Registry, directory Directory, db dbkit.IDB) *Service {
	return &Service{
		db:        db,
		registry:  registry,
		directory: directory,
		monitor:   newOpMonitor(),
	}
}

// Registry returns the actor-kind registry.
func (s *Service) Registry() *Registry {
	return s.registry
}

// Directory returns the user/group directory collaborator.
func (s *Service) Directory() Directory {
	return s.directory
}

// Schemes returns a SchemeManager bound to one scheme family.
//
// Example:
//
//	permissions := service.Schemes(schemekit.SchemeTypePermission)
func (s *Service) Schemes(schemeType string) *SchemeManager {
	return NewSchemeManager(s, schemeType)
}

// ProjectRoles returns the ProjectRoleManager.
func (s *Service) ProjectRoles() *ProjectRoleManager {
	return NewProjectRoleManager(s)
}

// conn returns the connection to run queries on: the transaction bound to
// the context when inside Transaction, the service handle otherwise.
func (s *Service) conn(ctx context.Context) dbkit.IDB {
	if tx := txFromContext(ctx); tx != nil {
		return tx
	}
	return s.db
}

// ============================================================================
// AUDIT LOG
// ============================================================================

// GetAuditLog retrieves role-actor audit log entries with optional filters.
func (s *Service) GetAuditLog(ctx context.Context, filter AuditLogFilter) ([]RoleActorAuditLog, error) {
	var logs []RoleActorAuditLog
	q := s.conn(ctx).NewSelect().Model(&logs)
	if filter.ActorID != "" {
		q = q.Where("actor_id = ?", filter.ActorID)
	}
	if filter.Action != "" {
		q = q.Where("action = ?", filter.Action)
	}
	if filter.ProjectRoleID != 0 {
		q = q.Where("project_role_id = ?", filter.ProjectRoleID)
	}
	if filter.DefaultsOnly {
		q = q.Where("project_id IS NULL")
	} else if filter.ProjectID != 0 {
		q = q.Where("project_id = ?", filter.ProjectID)
	}
	if filter.ActorType != "" {
		q = q.Where("actor_type = ?", filter.ActorType)
	}
	if filter.Parameter != "" {
		q = q.Where("parameter = ?", filter.Parameter)
	}
	if !filter.Since.IsZero() {
		q = q.Where("timestamp >= ?", filter.Since)
	}
	if !filter.Until.IsZero() {
		q = q.Where("timestamp <= ?", filter.Until)
	}

	limit := filter.Limit
	if limit == 0 {
		limit = 100 // Default limit
	}
	q = q.Limit(limit)

	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	q = q.Order("timestamp DESC")
	err := dbkit.WithErr1(q.Scan(ctx), "GetAuditLog").Err()
	if err != nil {
		return nil, err
	}

	return logs, nil
}

// logAudit writes one audit entry. Audit failures never fail the change that
// triggered them; callers ignore the returned error after logging intent.
func (s *Service) logAudit(ctx context.Context, entry *AuditEntry) error {
	_, err := s.conn(ctx).NewInsert().Model(entry.ToModel()).Exec(ctx)
	return dbkit.WithErr1(err, "LogAudit").Err()
}
