package schemekit

import "time"

// AuditLogFilter provides options for filtering audit log queries.
type AuditLogFilter struct {
	// Filter by administrator who performed the change
	ActorID string

	// Filter by change type ("added" or "removed")
	Action string

	// Filter by project role
	ProjectRoleID int64

	// Filter by project; DefaultsOnly limits to template changes instead
	ProjectID    int64
	DefaultsOnly bool

	// Filter by actor reference
	ActorType string
	Parameter string

	// Filter by time range
	Since time.Time
	Until time.Time

	// Pagination
	Limit  int
	Offset int
}

// EntityFilter provides options for filtering scheme entity listings.
type EntityFilter struct {
	// Filter by actor kind
	Type string

	// Filter by actor parameter
	Parameter string

	// Filter by granted capability. Wildcard entities match any capability.
	Capability string
}

// Matches reports whether an entity passes the filter.
func (f EntityFilter) Matches(e SchemeEntity) bool {
	if f.Type != "" && e.Type != f.Type {
		return false
	}
	if f.Parameter != "" && (e.Parameter == nil || *e.Parameter != f.Parameter) {
		return false
	}
	if f.Capability != "" && !e.GrantsCapability(f.Capability) {
		return false
	}
	return true
}

// FilterEntities returns the entities passing the filter, preserving order
// and multiplicity. Duplicate rows differing only in template id all pass:
// for notification schemes each one fires.
func FilterEntities(entities []SchemeEntity, f EntityFilter) []SchemeEntity {
	var out []SchemeEntity
	for _, e := range entities {
		if f.Matches(e) {
			out = append(out, e)
		}
	}
	return out
}
