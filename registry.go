package schemekit

import (
	"context"
	"fmt"
	"strconv"
	"sync"
)

// GrantFunc decides whether one scheme entity of a given actor kind grants
// access to the subject of an authority check. It returns false for denial;
// errors are reserved for data problems. ErrRoleActorDoesNotExist results are
// treated by the managers as "contributes nothing".
type GrantFunc func(ctx context.Context, svc *Service, entity SchemeEntity, req AuthorityRequest) (bool, error)

// AuthorityRequest carries the resolved inputs of one authority check to the
// grant resolvers.
type AuthorityRequest struct {
	// UserID is the user being checked. Empty means anonymous.
	UserID string

	// ProjectID is the project the check runs against.
	ProjectID int64

	// Issue is set when the check targets a concrete issue. Reporter-based
	// grants need it.
	Issue *Issue

	// IssueCreation is true when the check runs before any issue exists,
	// e.g. on a create-issue screen.
	IssueCreation bool
}

// Anonymous reports whether the request runs without an authenticated user.
func (r AuthorityRequest) Anonymous() bool {
	return r.UserID == ""
}

// Registry holds all actor-kind definitions: for each open type string, how
// persisted rows become RoleActors and how scheme entities of that kind
// decide grants. It is created at startup and should be treated as immutable
// after initialization.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*ActorTypeDefinition
}

// ActorTypeDefinition defines one actor kind. Pure grant kinds ("reporter")
// carry no factory; pure membership kinds could in principle carry no grant.
type ActorTypeDefinition struct {
	name     string
	factory  RoleActorFactory
	grant    GrantFunc
	registry *Registry
}

// NewRegistry creates an empty actor-kind registry.
func NewRegistry() *Registry {
	return &Registry{
		types: make(map[string]*ActorTypeDefinition),
	}
}

// NewDefaultRegistry creates a registry with the built-in kinds wired to the
// given directory: "user", "group", "reporter" and "projectrole".
func NewDefaultRegistry(directory Directory) *Registry {
	r := NewRegistry()

	r.DefineActorType(ActorTypeUser).
		Factory(NewUserActorFactory(directory)).
		Grant(userGrant)

	r.DefineActorType(ActorTypeGroup).
		Factory(NewGroupActorFactory(directory)).
		Grant(groupGrant(directory))

	r.DefineActorType(ActorTypeReporter).
		Grant(reporterGrant)

	r.DefineActorType(ActorTypeProjectRole).
		Grant(projectRoleGrant)

	return r
}

// DefineActorType starts defining a new actor kind. Returns an
// ActorTypeDefinition builder for fluent configuration.
//
// Example:
//
//	registry.DefineActorType("ldap-ou").
//	    Factory(myOUFactory).
//	    Grant(myOUGrant)
func (r *Registry) DefineActorType(name string) *ActorTypeDefinition {
	r.mu.Lock()
	defer r.mu.Unlock()

	def := &ActorTypeDefinition{
		name:     name,
		registry: r,
	}
	r.types[name] = def
	return def
}

// ActorType returns the definition for an actor kind, or nil if the kind is
// not registered.
func (r *Registry) ActorType(name string) *ActorTypeDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.types[name]
}

// ActorTypes returns all registered kind names.
func (r *Registry) ActorTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	return names
}

// ValidateActorType checks if an actor kind is registered.
func (r *Registry) ValidateActorType(name string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, exists := r.types[name]; !exists {
		return fmt.Errorf("%w: actor type %q not registered", ErrUnknownActorType, name)
	}
	return nil
}

// FactoryFor returns the RoleActorFactory for a kind, or nil if the kind is
// not registered or carries no factory.
func (r *Registry) FactoryFor(name string) RoleActorFactory {
	def := r.ActorType(name)
	if def == nil {
		return nil
	}
	return def.factory
}

// GrantFor returns the GrantFunc for a kind, or nil if the kind is not
// registered or carries no grant resolver.
func (r *Registry) GrantFor(name string) GrantFunc {
	def := r.ActorType(name)
	if def == nil {
		return nil
	}
	return def.grant
}

// Factory sets the RoleActorFactory for this kind.
func (d *ActorTypeDefinition) Factory(f RoleActorFactory) *ActorTypeDefinition {
	d.factory = f
	return d
}

// Grant sets the grant resolver for this kind.
func (d *ActorTypeDefinition) Grant(fn GrantFunc) *ActorTypeDefinition {
	d.grant = fn
	return d
}

// DefineActorType continues defining kinds on the registry (fluent API).
func (d *ActorTypeDefinition) DefineActorType(name string) *ActorTypeDefinition {
	return d.registry.DefineActorType(name)
}

// Name returns the kind name.
func (d *ActorTypeDefinition) Name() string {
	return d.name
}

// ============================================================================
// BUILT-IN GRANT RESOLVERS
// ============================================================================

// userGrant: the entity names one user; access iff that user is asking.
func userGrant(_ context.Context, _ *Service, entity SchemeEntity, req AuthorityRequest) (bool, error) {
	if req.Anonymous() || entity.Parameter == nil {
		return false, nil
	}
	return *entity.Parameter == req.UserID, nil
}

// groupGrant: the entity names a group; access iff the user belongs to it.
func groupGrant(directory Directory) GrantFunc {
	return func(ctx context.Context, _ *Service, entity SchemeEntity, req AuthorityRequest) (bool, error) {
		if req.Anonymous() || entity.Parameter == nil {
			return false, nil
		}
		return directory.UserInGroup(ctx, req.UserID, *entity.Parameter)
	}
}

// reporterGrant: access iff the user is the issue's reporter. On issue
// creation no issue exists yet and the asking user is about to become the
// reporter, so the grant holds for any authenticated user.
func reporterGrant(_ context.Context, _ *Service, _ SchemeEntity, req AuthorityRequest) (bool, error) {
	if req.Anonymous() {
		return false, nil
	}
	if req.IssueCreation {
		return true, nil
	}
	if req.Issue == nil {
		return false, nil
	}
	return req.Issue.Reporter == req.UserID, nil
}

// projectRoleGrant: the entity's parameter is a project role id; access iff
// the user belongs to that role in the subject's project.
func projectRoleGrant(ctx context.Context, svc *Service, entity SchemeEntity, req AuthorityRequest) (bool, error) {
	if req.Anonymous() || entity.Parameter == nil {
		return false, nil
	}
	roleID, err := strconv.ParseInt(*entity.Parameter, 10, 64)
	if err != nil {
		return false, NewError(ErrInvalidArgument, "projectrole entity parameter is not a role id").
			WithActor(ActorTypeProjectRole, *entity.Parameter)
	}
	return svc.ProjectRoles().IsUserInProjectRole(ctx, req.UserID, roleID, req.ProjectID)
}
