package schemekit

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestError tests the Error wrapper
func TestError(t *testing.T) {
	t.Run("Message formatting", func(t *testing.T) {
		err := NewError(ErrNilArgument, "project id is required")
		assert.Equal(t, "schemekit: nil required argument: project id is required", err.Error())
	})

	t.Run("No message falls back to the sentinel", func(t *testing.T) {
		err := NewError(ErrUnauthorized, "")
		assert.Equal(t, ErrUnauthorized.Error(), err.Error())
	})

	t.Run("Unwrap exposes the sentinel", func(t *testing.T) {
		err := NewError(ErrRoleActorDoesNotExist, "group gone")
		assert.True(t, errors.Is(err, ErrRoleActorDoesNotExist))
		assert.False(t, errors.Is(err, ErrUnauthorized))
	})

	t.Run("Wrapped deeper still matches", func(t *testing.T) {
		err := fmt.Errorf("loading actors: %w", NewError(ErrRoleActorDoesNotExist, "gone"))
		assert.True(t, IsRoleActorDoesNotExist(err))
	})

	t.Run("Fluent context builders", func(t *testing.T) {
		err := NewError(ErrUnauthorized, "missing required role").
			WithScheme(SchemeTypePermission, 7).
			WithProject(10010).
			WithRole(42).
			WithActor(ActorTypeGroup, "jira-admins").
			WithUser("fred")

		assert.Equal(t, SchemeTypePermission, err.SchemeType)
		assert.Equal(t, int64(7), err.SchemeID)
		assert.Equal(t, int64(10010), err.ProjectID)
		assert.Equal(t, int64(42), err.RoleID)
		assert.Equal(t, ActorTypeGroup, err.ActorType)
		assert.Equal(t, "jira-admins", err.Parameter)
		assert.Equal(t, "fred", err.UserID)
	})

	t.Run("errors.As recovers the wrapper", func(t *testing.T) {
		var schemeErr *Error
		err := fmt.Errorf("outer: %w", NewError(ErrRoleExists, "taken").WithRole(42))
		assert.True(t, errors.As(err, &schemeErr))
		assert.Equal(t, int64(42), schemeErr.RoleID)
	})
}

// TestErrorHelpers tests the sentinel check helpers
func TestErrorHelpers(t *testing.T) {
	cases := []struct {
		name    string
		helper  func(error) bool
		matches error
		other   error
	}{
		{"IsRoleActorDoesNotExist", IsRoleActorDoesNotExist, ErrRoleActorDoesNotExist, ErrUnauthorized},
		{"IsUnknownActorType", IsUnknownActorType, ErrUnknownActorType, ErrNilArgument},
		{"IsUnauthorized", IsUnauthorized, ErrUnauthorized, ErrRoleExists},
		{"IsNilArgument", IsNilArgument, ErrNilArgument, ErrInvalidArgument},
		{"IsInvalidArgument", IsInvalidArgument, ErrInvalidArgument, ErrNilArgument},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.True(t, tc.helper(tc.matches))
			assert.True(t, tc.helper(NewError(tc.matches, "wrapped")))
			assert.False(t, tc.helper(tc.other))
			assert.False(t, tc.helper(nil))
		})
	}
}
