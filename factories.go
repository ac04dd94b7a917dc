package schemekit

import (
	"context"
)

// RoleActorFactory is the only place role actor instances are materialized
// from persisted rows, and the extension point for compacting actor sets.
// One factory serves one actor kind; the Registry routes rows to it.
type RoleActorFactory interface {
	// CreateRoleActor builds the actor for a persisted row. projectID is 0
	// for default template rows. It returns ErrRoleActorDoesNotExist when
	// parameter no longer resolves to a real principal; callers skip the
	// dangling actor, they do not abort the resolution.
	CreateRoleActor(ctx context.Context, id, projectRoleID, projectID int64, parameter string) (RoleActor, error)

	// OptimizeRoleActorSet compacts a set of actors of this kind without
	// changing its meaning: for every user, membership in the returned set
	// must equal membership in the input set. The transform exists purely to
	// reduce the number of membership probes per query.
	OptimizeRoleActorSet(ctx context.Context, actors []RoleActor) []RoleActor
}

// UserActorFactory materializes single-user actors.
type UserActorFactory struct {
	directory Directory
}

// NewUserActorFactory creates a factory for "user" actors.
func NewUserActorFactory(directory Directory) *UserActorFactory {
	return &UserActorFactory{directory: directory}
}

// CreateRoleActor implements RoleActorFactory.
func (f *UserActorFactory) CreateRoleActor(ctx context.Context, id, projectRoleID, _ int64, parameter string) (RoleActor, error) {
	ok, err := f.directory.UserExists(ctx, parameter)
	if err != nil {
		return nil, NewError(ErrDatabaseError, "directory lookup failed").
			WithActor(ActorTypeUser, parameter)
	}
	if !ok {
		return nil, NewError(ErrRoleActorDoesNotExist, "user not found in directory").
			WithActor(ActorTypeUser, parameter).
			WithRole(projectRoleID)
	}
	return NewUserRoleActor(id, projectRoleID, parameter, f.directory), nil
}

// OptimizeRoleActorSet implements RoleActorFactory. User actors are already
// single membership comparisons; only duplicates are dropped.
func (f *UserActorFactory) OptimizeRoleActorSet(_ context.Context, actors []RoleActor) []RoleActor {
	seen := make(map[string]bool, len(actors))
	out := make([]RoleActor, 0, len(actors))
	for _, a := range actors {
		if seen[actorKey(a)] {
			continue
		}
		seen[actorKey(a)] = true
		out = append(out, a)
	}
	return out
}

// GroupActorFactory materializes group-backed actors.
type GroupActorFactory struct {
	directory Directory
}

// NewGroupActorFactory creates a factory for "group" actors.
func NewGroupActorFactory(directory Directory) *GroupActorFactory {
	return &GroupActorFactory{directory: directory}
}

// CreateRoleActor implements RoleActorFactory.
func (f *GroupActorFactory) CreateRoleActor(ctx context.Context, id, projectRoleID, _ int64, parameter string) (RoleActor, error) {
	ok, err := f.directory.GroupExists(ctx, parameter)
	if err != nil {
		return nil, NewError(ErrDatabaseError, "directory lookup failed").
			WithActor(ActorTypeGroup, parameter)
	}
	if !ok {
		return nil, NewError(ErrRoleActorDoesNotExist, "group not found in directory").
			WithActor(ActorTypeGroup, parameter).
			WithRole(projectRoleID)
	}
	return NewGroupRoleActor(id, projectRoleID, parameter, f.directory), nil
}

// OptimizeRoleActorSet implements RoleActorFactory. Two or more group actors
// of the same role collapse into one aggregated actor probing the combined
// group list, so a query runs one resolution instead of N.
func (f *GroupActorFactory) OptimizeRoleActorSet(_ context.Context, actors []RoleActor) []RoleActor {
	if len(actors) < 2 {
		return actors
	}

	var out []RoleActor
	var groupActors []RoleActor
	seen := make(map[string]bool, len(actors))
	roleID := actors[0].ProjectRoleID()

	for _, a := range actors {
		if a.Type() != ActorTypeGroup || a.ProjectRoleID() != roleID {
			// Foreign actors pass through untouched.
			out = append(out, a)
			continue
		}
		if seen[a.Parameter()] {
			continue
		}
		seen[a.Parameter()] = true
		groupActors = append(groupActors, a)
	}

	if len(groupActors) < 2 {
		return append(out, groupActors...)
	}
	groups := make([]string, len(groupActors))
	for i, a := range groupActors {
		groups[i] = a.Parameter()
	}
	return append(out, newAggregatedGroupActor(roleID, groups, f.directory))
}
