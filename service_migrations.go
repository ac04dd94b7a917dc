package schemekit

import (
	"github.com/fernandezvara/dbkit"
)

// MigrationService provides migration management functionality as an extension to Service
type MigrationService struct {
	*Service
}

// NewMigrationService creates a new migration service extension
func NewMigrationService(service *Service) *MigrationService {
	return &MigrationService{Service: service}
}

// Migrations returns all database migrations required for SchemeKit.
// Use dbkit.Migrate(ctx, service.Migrations()) to run migrations.
// Use dbkit.MigrationStatus(ctx, service.Migrations()) to check status.
func (ms *MigrationService) Migrations() []dbkit.Migration {
	return []dbkit.Migration{
		{
			ID:          "schemekit-001",
			Description: "Create schemes table",
			SQL: `
                CREATE TABLE IF NOT EXISTS schemes (
                    id BIGSERIAL PRIMARY KEY,
                    type TEXT NOT NULL,
                    name TEXT NOT NULL,
                    description TEXT,
                    created_at TIMESTAMPTZ DEFAULT current_timestamp,
                    updated_at TIMESTAMPTZ DEFAULT current_timestamp,
                    UNIQUE (type, name)
                )`,
		},
		{
			ID:          "schemekit-002",
			Description: "Create scheme_entities table",
			SQL: `
                CREATE TABLE IF NOT EXISTS scheme_entities (
                    id BIGSERIAL PRIMARY KEY,
                    scheme_id BIGINT NOT NULL REFERENCES schemes (id),
                    type TEXT NOT NULL,
                    parameter TEXT,
                    entity_type_id TEXT,
                    template_id BIGINT
                );
                CREATE INDEX IF NOT EXISTS idx_scheme_entities_scheme
                    ON scheme_entities (scheme_id);
                CREATE INDEX IF NOT EXISTS idx_scheme_entities_actor
                    ON scheme_entities (type, parameter)`,
		},
		{
			ID:          "schemekit-003",
			Description: "Create project_scheme_associations table",
			SQL: `
                CREATE TABLE IF NOT EXISTS project_scheme_associations (
                    id BIGSERIAL PRIMARY KEY,
                    project_id BIGINT NOT NULL,
                    scheme_id BIGINT NOT NULL REFERENCES schemes (id),
                    created_at TIMESTAMPTZ DEFAULT current_timestamp,
                    UNIQUE (project_id, scheme_id)
                )`,
		},
		{
			ID:          "schemekit-004",
			Description: "Create project_roles table",
			SQL: `
                CREATE TABLE IF NOT EXISTS project_roles (
                    id BIGSERIAL PRIMARY KEY,
                    name TEXT NOT NULL UNIQUE,
                    description TEXT
                )`,
		},
		{
			ID:          "schemekit-005",
			Description: "Create role_actors table",
			SQL: `
                CREATE TABLE IF NOT EXISTS role_actors (
                    id BIGSERIAL PRIMARY KEY,
                    project_role_id BIGINT NOT NULL REFERENCES project_roles (id),
                    project_id BIGINT,
                    type TEXT NOT NULL,
                    parameter TEXT NOT NULL
                );
                CREATE UNIQUE INDEX IF NOT EXISTS idx_role_actors_identity
                    ON role_actors (project_role_id, COALESCE(project_id, 0), type, parameter);
                CREATE INDEX IF NOT EXISTS idx_role_actors_project
                    ON role_actors (project_id);
                CREATE INDEX IF NOT EXISTS idx_role_actors_principal
                    ON role_actors (type, parameter)`,
		},
		{
			ID:          "schemekit-006",
			Description: "Create role_actor_audit_log table",
			SQL: `
                CREATE TABLE IF NOT EXISTS role_actor_audit_log (
                    id BIGSERIAL PRIMARY KEY,
                    timestamp TIMESTAMPTZ NOT NULL DEFAULT current_timestamp,
                    actor_id TEXT NOT NULL,
                    action TEXT NOT NULL,
                    project_role_id BIGINT NOT NULL,
                    project_id BIGINT,
                    actor_type TEXT NOT NULL,
                    parameter TEXT NOT NULL,
                    ip_address TEXT,
                    user_agent TEXT,
                    request_id TEXT,
                    metadata JSONB
                )`,
		},
	}
}
