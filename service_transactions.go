package schemekit

import (
	"context"
	"fmt"
	"time"

	"github.com/fernandezvara/dbkit"
)

type txContextKey struct{}

// contextWithTx binds a running transaction to the context so that every
// service call inside the transaction function runs on it.
func contextWithTx(ctx context.Context, tx *dbkit.Tx) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// txFromContext returns the transaction bound to the context, or nil.
func txFromContext(ctx context.Context) *dbkit.Tx {
	if v := ctx.Value(txContextKey{}); v != nil {
		if tx, ok := v.(*dbkit.Tx); ok {
			return tx
		}
	}
	return nil
}

// Transaction executes a function within a database transaction with
// automatic commit/rollback. If the function returns an error, the
// transaction is rolled back. Otherwise, it's committed. The function's
// context carries the transaction: service calls made with it participate.
// Nested calls use savepoints.
//
// Example:
//
//	err := service.Transaction(ctx, func(ctx context.Context) error {
//	    if err := roles.AddActorToProjectRole(ctx, roleID, projectID, schemekit.ActorTypeGroup, "qa-team"); err != nil {
//	        return err // This will cause a rollback
//	    }
//	    return roles.RemoveActorFromProjectRole(ctx, roleID, projectID, schemekit.ActorTypeGroup, "old-team")
//	})
func (s *Service) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := s.runInTransaction(ctx, fn)
	s.monitor.recordTransaction(time.Since(start), err == nil)
	return err
}

func (s *Service) runInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	// Already inside a transaction: nest via savepoint.
	if tx := txFromContext(ctx); tx != nil {
		return tx.Transaction(ctx, func(inner *dbkit.Tx) error {
			return fn(contextWithTx(ctx, inner))
		})
	}

	if db, ok := s.db.(*dbkit.DBKit); ok {
		return db.Transaction(ctx, func(tx *dbkit.Tx) error {
			return fn(contextWithTx(ctx, tx))
		})
	}

	return fmt.Errorf("transaction support requires a dbkit.DBKit or dbkit.Tx instance")
}

// TransactionWithOptions executes a function within a database transaction
// with custom options. Supports read-only transactions, isolation levels,
// and other transaction parameters.
//
// Example:
//
//	err := service.TransactionWithOptions(ctx, dbkit.SerializableTxOptions(), func(ctx context.Context) error {
//	    return roles.ApplyDefaultRolesToProject(ctx, projectID)
//	})
func (s *Service) TransactionWithOptions(ctx context.Context, opts dbkit.TxOptions, fn func(ctx context.Context) error) error {
	start := time.Now()
	var err error

	if tx := txFromContext(ctx); tx != nil {
		// Savepoints carry no options of their own.
		err = tx.Transaction(ctx, func(inner *dbkit.Tx) error {
			return fn(contextWithTx(ctx, inner))
		})
	} else if db, ok := s.db.(*dbkit.DBKit); ok {
		err = db.TransactionWithOptions(ctx, opts, func(tx *dbkit.Tx) error {
			return fn(contextWithTx(ctx, tx))
		})
	} else {
		err = fmt.Errorf("transaction support requires a dbkit.DBKit or dbkit.Tx instance")
	}

	s.monitor.recordTransaction(time.Since(start), err == nil)
	return err
}

// ReadOnlyTransaction executes a function within a read-only database
// transaction. Useful for bulk queries that want a consistent snapshot
// across several reads.
//
// Example:
//
//	err := service.ReadOnlyTransaction(ctx, func(ctx context.Context) error {
//	    exists, err := roles.RoleActorOfTypeExistsForProjects(ctx, projectIDs, roleID, schemekit.ActorTypeGroup, "qa-team")
//	    ...
//	    return err
//	})
func (s *Service) ReadOnlyTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return s.TransactionWithOptions(ctx, dbkit.ReadOnlyTxOptions(), fn)
}
