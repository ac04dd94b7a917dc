package schemekit

import (
	"context"
	"sort"
)

// DefaultRoleActors is the template actor set applied to every new project
// for a given role. It is immutable: AddRoleActor and RemoveRoleActor return
// new instances and never touch the receiver, so instances are safe to share
// and cache without synchronization. Concurrent updaters race on the
// published pointer, not on the collection.
type DefaultRoleActors struct {
	projectRoleID int64
	actors        []RoleActor
}

// NewDefaultRoleActors creates a template actor set. The actor slice is
// copied; later mutation of the caller's slice does not leak in.
func NewDefaultRoleActors(projectRoleID int64, actors []RoleActor) *DefaultRoleActors {
	return &DefaultRoleActors{
		projectRoleID: projectRoleID,
		actors:        append([]RoleActor(nil), actors...),
	}
}

// ProjectRoleID returns the role this set belongs to.
func (d *DefaultRoleActors) ProjectRoleID() int64 {
	return d.projectRoleID
}

// RoleActors returns the actors in this set. The returned slice is a copy.
func (d *DefaultRoleActors) RoleActors() []RoleActor {
	return append([]RoleActor(nil), d.actors...)
}

// Len returns the number of actors in the set.
func (d *DefaultRoleActors) Len() int {
	return len(d.actors)
}

// Contains reports whether the set already holds an actor with the same kind
// and parameter.
func (d *DefaultRoleActors) Contains(actor RoleActor) bool {
	key := actorKey(actor)
	for _, a := range d.actors {
		if actorKey(a) == key {
			return true
		}
	}
	return false
}

// ContainsReference reports whether the set holds an actor with the given
// kind and parameter, without needing a materialized RoleActor to compare
// against.
func (d *DefaultRoleActors) ContainsReference(actorType, parameter string) bool {
	key := actorType + "\x00" + parameter
	for _, a := range d.actors {
		if actorKey(a) == key {
			return true
		}
	}
	return false
}

// AddRoleActor returns a new set with the actor added. Adding an actor that
// is already present (same kind and parameter) yields an equal set; the
// receiver is never modified either way.
func (d *DefaultRoleActors) AddRoleActor(actor RoleActor) *DefaultRoleActors {
	actors := append([]RoleActor(nil), d.actors...)
	if !d.Contains(actor) {
		actors = append(actors, actor)
	}
	return &DefaultRoleActors{projectRoleID: d.projectRoleID, actors: actors}
}

// RemoveRoleActor returns a new set with the matching actor (same kind and
// parameter) removed. The receiver is never modified.
func (d *DefaultRoleActors) RemoveRoleActor(actor RoleActor) *DefaultRoleActors {
	key := actorKey(actor)
	actors := make([]RoleActor, 0, len(d.actors))
	for _, a := range d.actors {
		if actorKey(a) == key {
			continue
		}
		actors = append(actors, a)
	}
	return &DefaultRoleActors{projectRoleID: d.projectRoleID, actors: actors}
}

// ContainsUser reports whether any actor in the set covers the user. An
// empty user id (anonymous) is never covered.
func (d *DefaultRoleActors) ContainsUser(ctx context.Context, userID string) bool {
	if userID == "" {
		return false
	}
	for _, a := range d.actors {
		if a.Contains(ctx, userID) {
			return true
		}
	}
	return false
}

// ActorsByType returns the actors of one kind.
func (d *DefaultRoleActors) ActorsByType(actorType string) []RoleActor {
	var out []RoleActor
	for _, a := range d.actors {
		if a.Type() == actorType {
			out = append(out, a)
		}
	}
	return out
}

// Users returns the union of users covered by all actors, sorted and
// deduplicated.
func (d *DefaultRoleActors) Users(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var users []string
	for _, a := range d.actors {
		actorUsers, err := a.Users(ctx)
		if err != nil {
			return nil, err
		}
		for _, u := range actorUsers {
			if !seen[u] {
				seen[u] = true
				users = append(users, u)
			}
		}
	}
	sort.Strings(users)
	return users, nil
}

// ProjectRoleActors is the materialized, per-project actor set for a role:
// DefaultRoleActors narrowed to one project. Same immutability contract.
type ProjectRoleActors struct {
	DefaultRoleActors
	projectID int64
}

// NewProjectRoleActors creates a per-project actor set.
func NewProjectRoleActors(projectID, projectRoleID int64, actors []RoleActor) *ProjectRoleActors {
	return &ProjectRoleActors{
		DefaultRoleActors: *NewDefaultRoleActors(projectRoleID, actors),
		projectID:         projectID,
	}
}

// ProjectID returns the project this set is materialized for.
func (p *ProjectRoleActors) ProjectID() int64 {
	return p.projectID
}

// AddRoleActor returns a new per-project set with the actor added.
func (p *ProjectRoleActors) AddRoleActor(actor RoleActor) *ProjectRoleActors {
	return &ProjectRoleActors{
		DefaultRoleActors: *p.DefaultRoleActors.AddRoleActor(actor),
		projectID:         p.projectID,
	}
}

// RemoveRoleActor returns a new per-project set with the matching actor
// removed.
func (p *ProjectRoleActors) RemoveRoleActor(actor RoleActor) *ProjectRoleActors {
	return &ProjectRoleActors{
		DefaultRoleActors: *p.DefaultRoleActors.RemoveRoleActor(actor),
		projectID:         p.projectID,
	}
}
