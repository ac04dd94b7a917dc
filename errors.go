package schemekit

import (
	"errors"
	"fmt"
)

// Sentinel errors for SchemeKit operations.
var (
	// ErrNilArgument is returned when a required argument is nil or zero.
	ErrNilArgument = errors.New("schemekit: nil required argument")

	// ErrInvalidArgument is returned when an argument is present but unusable.
	ErrInvalidArgument = errors.New("schemekit: invalid argument")

	// ErrRoleActorDoesNotExist is returned when a role actor's parameter does
	// not resolve to a real principal (e.g. a group that has been deleted).
	// This is an expected condition: callers materializing actor sets skip
	// the dangling actor instead of failing the whole resolution.
	ErrRoleActorDoesNotExist = errors.New("schemekit: role actor does not exist")

	// ErrUnknownActorType is returned when a scheme entity or role actor row
	// references an actor kind that is not registered.
	ErrUnknownActorType = errors.New("schemekit: unknown actor type")

	// ErrSchemeExists is returned when creating a scheme whose (type, name)
	// pair is already taken.
	ErrSchemeExists = errors.New("schemekit: scheme already exists")

	// ErrRoleExists is returned when creating a project role whose name is
	// already taken.
	ErrRoleExists = errors.New("schemekit: project role already exists")

	// ErrUnauthorized is returned by the middleware when an authority check
	// denies access. The managers themselves never return it: denial is a
	// false result, not an error.
	ErrUnauthorized = errors.New("schemekit: unauthorized")

	// ErrNoUserID is returned when a user ID is required but not found in
	// context.
	ErrNoUserID = errors.New("schemekit: no user ID in context")

	// ErrDatabaseError is returned when a database operation fails.
	ErrDatabaseError = errors.New("schemekit: database error")
)

// Error wraps a sentinel error with additional context.
type Error struct {
	Err        error  // Underlying sentinel error
	Message    string // Additional context
	SchemeType string // Scheme family involved
	SchemeID   int64  // Scheme involved (if applicable)
	ProjectID  int64  // Project involved (if applicable)
	RoleID     int64  // Project role involved (if applicable)
	ActorType  string // Actor kind involved (if applicable)
	Parameter  string // Actor parameter involved (if applicable)
	UserID     string // User involved (if applicable)
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is checks if the error matches a target error.
func (e *Error) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewError creates a new Error with context.
func NewError(err error, message string) *Error {
	return &Error{
		Err:     err,
		Message: message,
	}
}

// WithScheme adds scheme information to the error.
func (e *Error) WithScheme(schemeType string, schemeID int64) *Error {
	e.SchemeType = schemeType
	e.SchemeID = schemeID
	return e
}

// WithProject adds project information to the error.
func (e *Error) WithProject(projectID int64) *Error {
	e.ProjectID = projectID
	return e
}

// WithRole adds project-role information to the error.
func (e *Error) WithRole(roleID int64) *Error {
	e.RoleID = roleID
	return e
}

// WithActor adds actor reference information to the error.
func (e *Error) WithActor(actorType, parameter string) *Error {
	e.ActorType = actorType
	e.Parameter = parameter
	return e
}

// WithUser adds user information to the error.
func (e *Error) WithUser(userID string) *Error {
	e.UserID = userID
	return e
}

// IsRoleActorDoesNotExist checks if an error reports a dangling actor
// reference.
func IsRoleActorDoesNotExist(err error) bool {
	return errors.Is(err, ErrRoleActorDoesNotExist)
}

// IsUnknownActorType checks if an error reports an unregistered actor kind.
func IsUnknownActorType(err error) bool {
	return errors.Is(err, ErrUnknownActorType)
}

// IsUnauthorized checks if an error is an authorization error.
func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// IsNilArgument checks if an error reports a missing required argument.
func IsNilArgument(err error) bool {
	return errors.Is(err, ErrNilArgument)
}

// IsInvalidArgument checks if an error reports an unusable argument.
func IsInvalidArgument(err error) bool {
	return errors.Is(err, ErrInvalidArgument)
}
