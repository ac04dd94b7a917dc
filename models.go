package schemekit

import (
	"sort"
	"strconv"
	"time"

	"github.com/uptrace/bun"
)

// Well-known scheme families. Families are open strings: new families need
// no code change, these constants only cover the built-in ones.
const (
	SchemeTypePermission    = "permission"
	SchemeTypeNotification  = "notification"
	SchemeTypeIssueSecurity = "issuesecurity"
)

// Built-in actor kinds. Kinds are open strings registered in the Registry;
// these constants cover the kinds SchemeKit ships resolvers for.
const (
	ActorTypeUser        = "user"
	ActorTypeGroup       = "group"
	ActorTypeReporter    = "reporter"
	ActorTypeProjectRole = "projectrole"
)

// String returns a pointer to s, for the nullable model fields.
func String(s string) *string {
	return &s
}

// Int64 returns a pointer to i, for the nullable model fields.
func Int64(i int64) *int64 {
	return &i
}

// Scheme is a named, typed bundle of capability bindings. A scheme belongs to
// one family (Type) and is associated with zero or more projects; a scheme
// with no associations is inert.
type Scheme struct {
	bun.BaseModel `bun:"table:schemes,alias:s"`

	ID          int64  `bun:"id,pk,autoincrement"`
	Type        string `bun:"type,notnull"`
	Name        string `bun:"name,notnull"`
	Description string `bun:"description"`

	// Entities is loaded alongside the scheme row by the SchemeManager read
	// paths. It is not a bun relation: entity rows are managed explicitly.
	Entities []SchemeEntity `bun:"-"`
}

// ContainsSameEntities reports whether two schemes grant exactly the same
// things: the entity lists are compared as multisets under SchemeEntity
// equality, ignoring row identity and scheme ids. Used for scheme diffing.
func (s *Scheme) ContainsSameEntities(other *Scheme) bool {
	if other == nil {
		return false
	}
	if len(s.Entities) != len(other.Entities) {
		return false
	}

	counts := make(map[string]int, len(s.Entities))
	for _, e := range s.Entities {
		counts[e.identityKey()]++
	}
	for _, e := range other.Entities {
		key := e.identityKey()
		counts[key]--
		if counts[key] < 0 {
			return false
		}
	}
	return true
}

// ComparableEntities returns a copy of the scheme's entities with row
// identity (entity id and scheme id) stripped, so structurally identical
// schemes compare equal.
func (s *Scheme) ComparableEntities() []SchemeEntity {
	out := make([]SchemeEntity, len(s.Entities))
	for i, e := range s.Entities {
		e.ID = 0
		e.SchemeID = 0
		out[i] = e
	}
	return out
}

// SchemeEntity is one binding row inside a scheme: "actor reference of kind
// Type with Parameter may exercise capability EntityTypeID". TemplateID is
// only meaningful for notification schemes.
type SchemeEntity struct {
	bun.BaseModel `bun:"table:scheme_entities,alias:se"`

	ID       int64 `bun:"id,pk,autoincrement"`
	SchemeID int64 `bun:"scheme_id,notnull"`

	// Type names the actor kind ("group", "reporter", "projectrole", ...).
	Type string `bun:"type,notnull"`

	// Parameter is the kind-specific target, e.g. a group name or a project
	// role id rendered as a string. Some kinds ("reporter") take none.
	Parameter *string `bun:"parameter"`

	// EntityTypeID is the capability being granted (a permission id or a
	// notification event id, kept as an opaque string). Nil means the entity
	// applies to every capability; see IsWildcardCapability.
	EntityTypeID *string `bun:"entity_type_id"`

	// TemplateID selects the notification template. Notification-only.
	TemplateID *int64 `bun:"template_id"`
}

// Equal reports whether two entities describe the same binding. Row identity
// (ID, SchemeID) is excluded. A field that is nil on both sides compares
// equal; a nil against a value does not. This null-symmetric equality is
// load-bearing for scheme diffing and must not be "simplified".
func (e SchemeEntity) Equal(other SchemeEntity) bool {
	if e.Type != other.Type {
		return false
	}
	return equalStringPtr(e.Parameter, other.Parameter) &&
		equalStringPtr(e.EntityTypeID, other.EntityTypeID) &&
		equalInt64Ptr(e.TemplateID, other.TemplateID)
}

// identityKey renders the equality-relevant fields into a canonical string.
// Two entities are Equal exactly when their keys match: nil and the empty
// string map to distinct keys.
func (e SchemeEntity) identityKey() string {
	key := e.Type
	for _, p := range []*string{e.Parameter, e.EntityTypeID} {
		if p == nil {
			key += "\x00<nil>"
		} else {
			key += "\x00v" + *p
		}
	}
	if e.TemplateID == nil {
		key += "\x00<nil>"
	} else {
		key += "\x00v" + strconv.FormatInt(*e.TemplateID, 10)
	}
	return key
}

// IsWildcardCapability reports whether this entity applies to every
// capability of its scheme family. The historical convention was a null
// capability key; this predicate is the supported way to test for it.
func (e SchemeEntity) IsWildcardCapability() bool {
	return e.EntityTypeID == nil
}

// GrantsCapability reports whether this entity grants the given capability,
// honoring the wildcard case.
func (e SchemeEntity) GrantsCapability(capability string) bool {
	if e.IsWildcardCapability() {
		return true
	}
	return *e.EntityTypeID == capability
}

// Less orders entities by parameter only. Entities with nil parameters
// compare as ties; their relative order is undefined.
func (e SchemeEntity) Less(other SchemeEntity) bool {
	if e.Parameter == nil || other.Parameter == nil {
		return false
	}
	return *e.Parameter < *other.Parameter
}

// SortEntities sorts entities in place by their natural (parameter-only)
// ordering.
func SortEntities(entities []SchemeEntity) {
	sort.SliceStable(entities, func(i, j int) bool {
		return entities[i].Less(entities[j])
	})
}

func equalStringPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func equalInt64Ptr(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// ProjectSchemeAssociation links a project to a scheme. One row per binding.
type ProjectSchemeAssociation struct {
	bun.BaseModel `bun:"table:project_scheme_associations,alias:psa"`

	ID        int64 `bun:"id,pk,autoincrement"`
	ProjectID int64 `bun:"project_id,notnull"`
	SchemeID  int64 `bun:"scheme_id,notnull"`
}

// ProjectRole is a globally defined named role. Only its actor bindings are
// project-scoped, the role itself is a single catalogue entry.
type ProjectRole struct {
	bun.BaseModel `bun:"table:project_roles,alias:pr"`

	ID          int64  `bun:"id,pk,autoincrement"`
	Name        string `bun:"name,notnull"`
	Description string `bun:"description"`
}

// RoleActorAssignment is the persisted shape of one role actor: an actor
// reference bound to a project role, either for a concrete project or as a
// default template row (ProjectID nil).
type RoleActorAssignment struct {
	bun.BaseModel `bun:"table:role_actors,alias:ra"`

	ID            int64  `bun:"id,pk,autoincrement"`
	ProjectRoleID int64  `bun:"project_role_id,notnull"`
	ProjectID     *int64 `bun:"project_id"`
	Type          string `bun:"type,notnull"`
	Parameter     string `bun:"parameter,notnull"`
}

// IsDefault reports whether this row belongs to the role's default template
// rather than to a concrete project.
func (a RoleActorAssignment) IsDefault() bool {
	return a.ProjectID == nil
}

// RoleActorAuditLog records role-actor membership changes for compliance and
// debugging.
type RoleActorAuditLog struct {
	bun.BaseModel `bun:"table:role_actor_audit_log,alias:ral"`

	ID        int64     `bun:"id,pk,autoincrement"`
	Timestamp time.Time `bun:"timestamp,notnull,default:current_timestamp"`

	// Who performed the change
	ActorID string `bun:"actor_id,notnull"`

	// What changed
	Action        string `bun:"action,notnull"` // "added", "removed"
	ProjectRoleID int64  `bun:"project_role_id,notnull"`
	ProjectID     *int64 `bun:"project_id"` // nil for default template changes
	ActorType     string `bun:"actor_type,notnull"`
	Parameter     string `bun:"parameter,notnull"`

	// Request metadata for forensics
	IPAddress string `bun:"ip_address"`
	UserAgent string `bun:"user_agent"`
	RequestID string `bun:"request_id"`

	// Additional context (JSON)
	Metadata map[string]any `bun:"metadata,type:jsonb"`
}

// AuditAction represents the type of change in the audit log.
type AuditAction string

const (
	AuditActionAdded   AuditAction = "added"
	AuditActionRemoved AuditAction = "removed"
)

// AuditEntry is used to create new audit log entries.
type AuditEntry struct {
	ActorID       string
	Action        AuditAction
	ProjectRoleID int64
	ProjectID     *int64
	ActorType     string
	Parameter     string
	IPAddress     string
	UserAgent     string
	RequestID     string
	Metadata      map[string]any
}

// ToModel converts an AuditEntry to a RoleActorAuditLog model.
func (e *AuditEntry) ToModel() *RoleActorAuditLog {
	return &RoleActorAuditLog{
		ActorID:       e.ActorID,
		Action:        string(e.Action),
		ProjectRoleID: e.ProjectRoleID,
		ProjectID:     e.ProjectID,
		ActorType:     e.ActorType,
		Parameter:     e.Parameter,
		IPAddress:     e.IPAddress,
		UserAgent:     e.UserAgent,
		RequestID:     e.RequestID,
		Metadata:      e.Metadata,
		Timestamp:     time.Now(),
	}
}

// Issue is the slice of an issue the authorization engine needs: who reported
// it and which project it lives in.
type Issue struct {
	ID        int64
	ProjectID int64
	Reporter  string
}

// Subject is the target of an authority check: always a project, optionally
// narrowed to a concrete issue. Reporter-based grants need the issue.
type Subject struct {
	ProjectID int64
	Issue     *Issue
}

// ProjectSubject builds a Subject for a project-level check (no issue yet).
func ProjectSubject(projectID int64) Subject {
	return Subject{ProjectID: projectID}
}

// IssueSubject builds a Subject for a check against a concrete issue.
func IssueSubject(issue Issue) Subject {
	return Subject{ProjectID: issue.ProjectID, Issue: &issue}
}

// RoleMembership is one resolved membership of a user: the user belongs to
// ProjectRoleID in ProjectID because of the actor row (ActorType, Parameter).
type RoleMembership struct {
	ProjectRoleID int64
	ProjectID     int64
	ActorType     string
	Parameter     string
}

// UserProjectRoles holds all resolved project-role memberships for one user,
// indexed for fast lookup. It is a snapshot: build it once per request.
type UserProjectRoles struct {
	UserID      string
	Memberships []RoleMembership

	byProject map[int64][]int64 // project id -> role ids
}

// NewUserProjectRoles creates a UserProjectRoles from resolved memberships.
func NewUserProjectRoles(userID string, memberships []RoleMembership) *UserProjectRoles {
	upr := &UserProjectRoles{
		UserID:      userID,
		Memberships: memberships,
		byProject:   make(map[int64][]int64),
	}
	for _, m := range memberships {
		upr.byProject[m.ProjectID] = append(upr.byProject[m.ProjectID], m.ProjectRoleID)
	}
	return upr
}

// RoleIDs returns all role ids the user holds in a project.
func (upr *UserProjectRoles) RoleIDs(projectID int64) []int64 {
	return upr.byProject[projectID]
}

// HasRole checks if the user holds a role in a project.
func (upr *UserProjectRoles) HasRole(roleID, projectID int64) bool {
	for _, id := range upr.byProject[projectID] {
		if id == roleID {
			return true
		}
	}
	return false
}
