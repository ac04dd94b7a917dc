package schemekit

import (
	"context"

	"github.com/fernandezvara/dbkit"
)

// Database defines the database operations interface for dependency injection
type Database interface {
	dbkit.IDB
}

// AuthorityChecker is the capability-check surface of a SchemeManager. The
// middleware and web tiers depend on this, not on the concrete manager.
type AuthorityChecker interface {
	HasSchemeAuthority(ctx context.Context, capability string, subject Subject, userID string, issueCreation bool) (bool, error)
	HasSchemeAuthorityAnonymous(ctx context.Context, capability string, subject Subject) (bool, error)
}

// MembershipChecker is the role-membership surface of a ProjectRoleManager.
type MembershipChecker interface {
	IsUserInProjectRole(ctx context.Context, userID string, roleID, projectID int64) (bool, error)
}

// BulkQueries defines the cross-project queries that answer "which of these
// N projects does this principal affect" in one pass instead of N.
type BulkQueries interface {
	RoleActorOfTypeExistsForProjects(ctx context.Context, projectIDs []int64, roleID int64, actorType, parameter string) (map[int64][]string, error)
	GetProjectIdsForUserInGroupsBecauseOfRole(ctx context.Context, projectIDs []int64, roleID int64, actorType, userID string) (map[int64][]string, error)
	GetProjectIdsContainingRoleActorByNameAndType(ctx context.Context, projectIDs []int64, actorType, parameter string) (*ProjectIDToRoleIDsMap, error)
}

// TransactionManager defines the transaction management interface
type TransactionManager interface {
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
	TransactionWithOptions(ctx context.Context, opts dbkit.TxOptions, fn func(ctx context.Context) error) error
	ReadOnlyTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// MigrationManager defines the migration management interface
type MigrationManager interface {
	Migrations() []dbkit.Migration
}

// HealthMonitor defines the health monitoring interface
type HealthMonitor interface {
	Health(ctx context.Context) dbkit.HealthStatus
	IsHealthy(ctx context.Context) bool
	GetPoolStats() dbkit.PoolStats
}

// OperationMonitor defines the in-process metrics interface
type OperationMonitor interface {
	GetOperationMetrics() OperationMetrics
	ResetOperationMetrics()
	IsOperationHealthy() bool
}

// AuditLogger defines the audit logging interface
type AuditLogger interface {
	logAudit(ctx context.Context, entry *AuditEntry) error
}
