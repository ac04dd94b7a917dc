package schemekit

import (
	"context"
	"sort"
	"sync"
)

// Directory is the user/group collaborator: SchemeKit never stores principals
// itself, it asks the directory whether they exist and who belongs to whom.
// Implementations wrap whatever identity provider the application uses.
type Directory interface {
	// UserExists reports whether the user is a known principal.
	UserExists(ctx context.Context, userID string) (bool, error)

	// GroupExists reports whether the group is a known principal.
	GroupExists(ctx context.Context, group string) (bool, error)

	// UserInGroup reports whether the user belongs to the group.
	UserInGroup(ctx context.Context, userID, group string) (bool, error)

	// GroupMembers returns the user ids belonging to the group.
	GroupMembers(ctx context.Context, group string) ([]string, error)
}

// StaticDirectory is an in-memory Directory backed by a fixed group -> users
// mapping. It is meant for tests, examples and bootstrapping; production
// deployments wrap their identity provider instead.
type StaticDirectory struct {
	mu     sync.RWMutex
	groups map[string][]string
	users  map[string]bool
}

// NewStaticDirectory creates an empty StaticDirectory.
func NewStaticDirectory() *StaticDirectory {
	return &StaticDirectory{
		groups: make(map[string][]string),
		users:  make(map[string]bool),
	}
}

// AddUser registers a user without any group membership.
func (d *StaticDirectory) AddUser(userID string) *StaticDirectory {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[userID] = true
	return d
}

// AddGroup registers a group with the given members. Members are registered
// as users as well.
func (d *StaticDirectory) AddGroup(group string, members ...string) *StaticDirectory {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.groups[group] = append(d.groups[group], members...)
	for _, m := range members {
		d.users[m] = true
	}
	return d
}

// RemoveGroup deletes a group. Members stay registered as users.
func (d *StaticDirectory) RemoveGroup(group string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.groups, group)
}

// UserExists implements Directory.
func (d *StaticDirectory) UserExists(_ context.Context, userID string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.users[userID], nil
}

// GroupExists implements Directory.
func (d *StaticDirectory) GroupExists(_ context.Context, group string) (bool, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.groups[group]
	return ok, nil
}

// UserInGroup implements Directory.
func (d *StaticDirectory) UserInGroup(_ context.Context, userID, group string) (bool, error) {
	if userID == "" {
		return false, nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, m := range d.groups[group] {
		if m == userID {
			return true, nil
		}
	}
	return false, nil
}

// GroupMembers implements Directory.
func (d *StaticDirectory) GroupMembers(_ context.Context, group string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	members := append([]string(nil), d.groups[group]...)
	sort.Strings(members)
	return members, nil
}
