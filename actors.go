package schemekit

import (
	"context"
	"fmt"
	"strings"
)

// RoleActor is a polymorphic, immutable membership-test object: a user, a
// group, or any custom principal aggregate bound to a project role. Caches
// key on actor identity assuming no mutation after construction, so
// implementations must be immutable.
type RoleActor interface {
	// ID is the persisted row id, or 0 for actors that were never persisted
	// (e.g. the product of set optimization).
	ID() int64

	// ProjectRoleID is the role this actor is bound to.
	ProjectRoleID() int64

	// Type is the actor kind ("user", "group", ...).
	Type() string

	// Parameter is the kind-specific target string, e.g. the group name.
	Parameter() string

	// Descriptor is a human-readable description for admin screens.
	Descriptor() string

	// Contains reports whether the user is covered by this actor. An empty
	// user id (anonymous) is never contained.
	Contains(ctx context.Context, userID string) bool

	// Users enumerates the users covered by this actor.
	Users(ctx context.Context) ([]string, error)

	// IsActive reports whether the actor's underlying principal still
	// exists. Inactive actors contribute nothing and should be surfaced to
	// admin remediation.
	IsActive(ctx context.Context) bool
}

// userRoleActor covers exactly one user.
type userRoleActor struct {
	id        int64
	roleID    int64
	userID    string
	directory Directory
}

// NewUserRoleActor creates a RoleActor covering a single user.
func NewUserRoleActor(id, projectRoleID int64, userID string, directory Directory) RoleActor {
	return &userRoleActor{id: id, roleID: projectRoleID, userID: userID, directory: directory}
}

func (a *userRoleActor) ID() int64            { return a.id }
func (a *userRoleActor) ProjectRoleID() int64 { return a.roleID }
func (a *userRoleActor) Type() string         { return ActorTypeUser }
func (a *userRoleActor) Parameter() string    { return a.userID }

func (a *userRoleActor) Descriptor() string {
	return fmt.Sprintf("user %s", a.userID)
}

func (a *userRoleActor) Contains(_ context.Context, userID string) bool {
	return userID != "" && userID == a.userID
}

func (a *userRoleActor) Users(context.Context) ([]string, error) {
	return []string{a.userID}, nil
}

func (a *userRoleActor) IsActive(ctx context.Context) bool {
	ok, err := a.directory.UserExists(ctx, a.userID)
	return err == nil && ok
}

// groupRoleActor covers every member of one directory group.
type groupRoleActor struct {
	id        int64
	roleID    int64
	group     string
	directory Directory
}

// NewGroupRoleActor creates a RoleActor covering the members of a group.
func NewGroupRoleActor(id, projectRoleID int64, group string, directory Directory) RoleActor {
	return &groupRoleActor{id: id, roleID: projectRoleID, group: group, directory: directory}
}

func (a *groupRoleActor) ID() int64            { return a.id }
func (a *groupRoleActor) ProjectRoleID() int64 { return a.roleID }
func (a *groupRoleActor) Type() string         { return ActorTypeGroup }
func (a *groupRoleActor) Parameter() string    { return a.group }

func (a *groupRoleActor) Descriptor() string {
	return fmt.Sprintf("group %s", a.group)
}

func (a *groupRoleActor) Contains(ctx context.Context, userID string) bool {
	if userID == "" {
		return false
	}
	ok, err := a.directory.UserInGroup(ctx, userID, a.group)
	return err == nil && ok
}

func (a *groupRoleActor) Users(ctx context.Context) ([]string, error) {
	return a.directory.GroupMembers(ctx, a.group)
}

func (a *groupRoleActor) IsActive(ctx context.Context) bool {
	ok, err := a.directory.GroupExists(ctx, a.group)
	return err == nil && ok
}

// aggregatedGroupActor is the product of optimizing several group actors of
// the same role into one: a single membership probe over the combined group
// list instead of one probe per actor. It is never persisted.
type aggregatedGroupActor struct {
	roleID    int64
	groups    []string
	directory Directory
}

func newAggregatedGroupActor(projectRoleID int64, groups []string, directory Directory) RoleActor {
	return &aggregatedGroupActor{roleID: projectRoleID, groups: groups, directory: directory}
}

func (a *aggregatedGroupActor) ID() int64            { return 0 }
func (a *aggregatedGroupActor) ProjectRoleID() int64 { return a.roleID }
func (a *aggregatedGroupActor) Type() string         { return ActorTypeGroup }

func (a *aggregatedGroupActor) Parameter() string {
	return strings.Join(a.groups, ",")
}

func (a *aggregatedGroupActor) Descriptor() string {
	return fmt.Sprintf("groups %s", strings.Join(a.groups, ", "))
}

func (a *aggregatedGroupActor) Contains(ctx context.Context, userID string) bool {
	if userID == "" {
		return false
	}
	for _, g := range a.groups {
		ok, err := a.directory.UserInGroup(ctx, userID, g)
		if err == nil && ok {
			return true
		}
	}
	return false
}

func (a *aggregatedGroupActor) Users(ctx context.Context) ([]string, error) {
	seen := make(map[string]bool)
	var users []string
	for _, g := range a.groups {
		members, err := a.directory.GroupMembers(ctx, g)
		if err != nil {
			return nil, err
		}
		for _, m := range members {
			if !seen[m] {
				seen[m] = true
				users = append(users, m)
			}
		}
	}
	return users, nil
}

func (a *aggregatedGroupActor) IsActive(ctx context.Context) bool {
	for _, g := range a.groups {
		ok, err := a.directory.GroupExists(ctx, g)
		if err != nil || !ok {
			return false
		}
	}
	return true
}

// actorKey identifies an actor inside a set: two actors with the same kind
// and parameter are the same binding regardless of row id.
func actorKey(a RoleActor) string {
	return a.Type() + "\x00" + a.Parameter()
}
