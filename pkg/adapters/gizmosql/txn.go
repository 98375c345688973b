package gizmosql

import (
	"context"
	"errors"
	"fmt"

	"github.com/flightbridge/flightbridge/pkg/adapter"
	"github.com/flightbridge/flightbridge/pkg/core"
)

// Transaction control is issued as SQL on the connection's server session.
// GizmoSQL binds one engine session per Flight connection, so BEGIN, COMMIT
// and ROLLBACK scope to exactly this connection. The client-side state
// machine enforces the legal transitions: idle -> active -> terminal -> idle.

func (c *conn) beginTxn(ctx context.Context, sql string) error {
	if c.txn == txnActive {
		return &core.TransactionError{State: c.txn.String(), Op: "begin"}
	}
	if _, err := c.execUpdate(ctx, sql); err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	c.txn = txnActive
	return nil
}

func (c *conn) commitTxn(ctx context.Context, sql string) error {
	if c.txn != txnActive {
		return &core.TransactionError{State: c.txn.String(), Op: "commit"}
	}
	if _, err := c.execUpdate(ctx, sql); err != nil {
		// Outcome unknown; the connection must not be reused.
		c.broken = true
		return fmt.Errorf("commit transaction: %w", err)
	}
	c.txn = txnIdle
	return nil
}

func (c *conn) rollbackTxn(ctx context.Context, sql string) error {
	if c.txn != txnActive {
		return &core.TransactionError{State: c.txn.String(), Op: "rollback"}
	}
	if _, err := c.execUpdate(ctx, sql); err != nil {
		c.broken = true
		return fmt.Errorf("rollback transaction: %w", err)
	}
	c.txn = txnIdle
	return nil
}

// WithTransaction runs fn inside a transaction scope on a single connection.
// Exactly one of commit or rollback happens before control returns: commit
// when fn succeeds, rollback otherwise. When rollback itself fails, both
// errors are reported; the rollback failure never masks the original one.
func (a *Adapter) WithTransaction(ctx context.Context, fn func(adapter.Session) error) error {
	c, err := a.pool.checkout(ctx)
	if err != nil {
		return err
	}
	defer a.pool.put(c)

	if err := a.syncCatalog(ctx, c); err != nil {
		return err
	}

	stmts := a.d.Statements
	if err := c.beginTxn(ctx, stmts.Begin); err != nil {
		return err
	}

	sess := &session{a: a, c: c}
	if err := fn(sess); err != nil {
		if rbErr := c.rollbackTxn(ctx, stmts.Rollback); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}

	return c.commitTxn(ctx, stmts.Commit)
}

// session is the transaction-scoped execution surface. All calls run on the
// connection that owns the transaction.
type session struct {
	a *Adapter
	c *conn
}

func (s *session) Exec(ctx context.Context, sql string) (int64, error) {
	return s.c.execUpdate(ctx, sql)
}

func (s *session) Query(ctx context.Context, sql string) (adapter.BatchStream, error) {
	info, err := s.c.execQuery(ctx, sql)
	if err != nil {
		return nil, err
	}
	// nil release: the transaction scope owns the connection.
	return newBatchStream(ctx, s.c, info, nil), nil
}

func (s *session) Execute(ctx context.Context, op core.Operation) (*adapter.Result, error) {
	switch op.(type) {
	case core.UseCatalog, core.CreateCatalog, core.DropCatalog:
		return nil, &core.CatalogError{
			Op:  op.Name(),
			Err: fmt.Errorf("catalog management is not available inside a transaction scope"),
		}
	}
	return s.a.executeOn(ctx, s.c, op)
}

func (s *session) Ingest(ctx context.Context, table string, src adapter.BatchSource) (int64, error) {
	return s.a.ingestOn(ctx, s.c, table, src)
}
