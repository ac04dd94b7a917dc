package schemekit

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestMigrations tests the migration definitions
func TestMigrations(t *testing.T) {
	migrations := NewMigrationService(nil).Migrations()

	t.Run("All tables are covered", func(t *testing.T) {
		assert.Len(t, migrations, 6)

		all := make([]string, 0, len(migrations))
		for _, m := range migrations {
			all = append(all, m.SQL)
		}
		combined := strings.Join(all, "\n")

		for _, table := range []string{
			"schemes",
			"scheme_entities",
			"project_scheme_associations",
			"project_roles",
			"role_actors",
			"role_actor_audit_log",
		} {
			assert.Contains(t, combined, "CREATE TABLE IF NOT EXISTS "+table)
		}
	})

	t.Run("IDs are unique and ordered", func(t *testing.T) {
		seen := make(map[string]bool)
		prev := ""
		for _, m := range migrations {
			assert.False(t, seen[m.ID], "duplicate migration id %s", m.ID)
			seen[m.ID] = true
			assert.True(t, m.ID > prev, "migration ids must sort in apply order")
			prev = m.ID
		}
	})

	t.Run("Every migration is complete", func(t *testing.T) {
		for _, m := range migrations {
			assert.NotEmpty(t, m.ID)
			assert.NotEmpty(t, m.Description)
			assert.NotEmpty(t, m.SQL)
		}
	})

	t.Run("Role actor identity index handles default rows", func(t *testing.T) {
		var roleActors string
		for _, m := range migrations {
			if strings.Contains(m.SQL, "CREATE TABLE IF NOT EXISTS role_actors") {
				roleActors = m.SQL
			}
		}
		assert.Contains(t, roleActors, "COALESCE(project_id, 0)")
	})
}
