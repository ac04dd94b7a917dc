package schemekit

import (
	"context"
	"testing"
)

// TestTransactionDatabase tests transaction scoping with real database
func TestTransactionDatabase(t *testing.T) {
	helper := NewTestDataHelper(t)
	if helper == nil {
		return
	}
	defer helper.CleanupTestData()

	service := helper.GetService()
	ctx := helper.GetContext()
	roles := service.ProjectRoles()

	t.Run("Commit", func(t *testing.T) {
		role := helper.CreateTestRole("tx-commit")
		projectID := NextTestID()

		err := service.Transaction(ctx, func(ctx context.Context) error {
			if err := roles.AddActorToProjectRole(ctx, role.ID, projectID, ActorTypeUser, "carol"); err != nil {
				return err
			}
			return roles.AddActorToProjectRole(ctx, role.ID, projectID, ActorTypeGroup, "qa-team")
		})
		if err != nil {
			t.Fatalf("Transaction should commit: %v", err)
		}

		helper.AssertUserInRole("carol", role.ID, projectID)
		helper.AssertUserInRole("alice", role.ID, projectID)
	})

	t.Run("Rollback", func(t *testing.T) {
		role := helper.CreateTestRole("tx-rollback")
		projectID := NextTestID()

		err := service.Transaction(ctx, func(ctx context.Context) error {
			if err := roles.AddActorToProjectRole(ctx, role.ID, projectID, ActorTypeUser, "carol"); err != nil {
				return err
			}
			return NewError(ErrDatabaseError, "intentional failure")
		})
		if err == nil {
			t.Fatal("Transaction should fail")
		}

		helper.AssertUserNotInRole("carol", role.ID, projectID)
	})

	t.Run("Rollback covers scheme writes", func(t *testing.T) {
		permissions := service.Schemes(SchemeTypePermission)
		name := "tx-scheme-" + helper.CreateTestUser("suffix")

		err := service.Transaction(ctx, func(ctx context.Context) error {
			if err := permissions.CreateScheme(ctx, &Scheme{Name: name}); err != nil {
				return err
			}
			return NewError(ErrDatabaseError, "intentional failure")
		})
		if err == nil {
			t.Fatal("Transaction should fail")
		}

		scheme, err := permissions.GetSchemeByName(ctx, name)
		if err != nil {
			t.Fatalf("GetSchemeByName should succeed: %v", err)
		}
		if scheme != nil {
			t.Error("Rolled back scheme should not persist")
		}
	})

	t.Run("Nested transactions use savepoints", func(t *testing.T) {
		role := helper.CreateTestRole("tx-nested")
		projectID := NextTestID()

		err := service.Transaction(ctx, func(ctx context.Context) error {
			if err := roles.AddActorToProjectRole(ctx, role.ID, projectID, ActorTypeUser, "carol"); err != nil {
				return err
			}
			// Inner failure rolls back to the savepoint only
			inner := service.Transaction(ctx, func(ctx context.Context) error {
				if err := roles.AddActorToProjectRole(ctx, role.ID, projectID, ActorTypeUser, "dave"); err != nil {
					return err
				}
				return NewError(ErrDatabaseError, "inner failure")
			})
			if inner == nil {
				t.Error("Inner transaction should fail")
			}
			return nil
		})
		if err != nil {
			t.Fatalf("Outer transaction should commit: %v", err)
		}

		helper.AssertUserInRole("carol", role.ID, projectID)
		helper.AssertUserNotInRole("dave", role.ID, projectID)
	})

	t.Run("Read-only transaction", func(t *testing.T) {
		role := helper.CreateTestRole("tx-readonly")

		err := service.ReadOnlyTransaction(ctx, func(ctx context.Context) error {
			loaded, err := roles.GetProjectRole(ctx, role.ID)
			if err != nil {
				return err
			}
			if loaded == nil {
				t.Error("Read-only transaction should see committed data")
			}
			return nil
		})
		if err != nil {
			t.Errorf("Read-only transaction should succeed: %v", err)
		}
	})

	t.Run("Transaction metrics", func(t *testing.T) {
		service.ResetOperationMetrics()

		_ = service.Transaction(ctx, func(ctx context.Context) error { return nil })
		_ = service.Transaction(ctx, func(ctx context.Context) error {
			return NewError(ErrDatabaseError, "intentional failure")
		})

		metrics := service.GetOperationMetrics()
		if metrics.TotalTransactions < 2 {
			t.Errorf("Expected at least 2 transactions, got %d", metrics.TotalTransactions)
		}
		if metrics.FailedTransactions < 1 {
			t.Errorf("Expected at least 1 failed transaction, got %d", metrics.FailedTransactions)
		}
		if metrics.SuccessfulTransactions < 1 {
			t.Errorf("Expected at least 1 successful transaction, got %d", metrics.SuccessfulTransactions)
		}
	})
}
