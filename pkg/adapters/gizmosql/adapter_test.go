package gizmosql

import (
	"context"
	"errors"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flightbridge/flightbridge/internal/testutil"
	"github.com/flightbridge/flightbridge/pkg/adapter"
	"github.com/flightbridge/flightbridge/pkg/core"
)

const (
	testUser     = "flight"
	testPassword = "secret"
)

// startAdapter spins up an in-process Flight SQL server backed by an
// in-memory DuckDB database and connects an adapter to it. Extra options
// overlay the plain-transport test defaults.
func startAdapter(t *testing.T, options map[string]string) *Adapter {
	t.Helper()

	srv, err := testutil.StartFlightServer(testUser, testPassword)
	require.NoError(t, err)
	t.Cleanup(srv.Close)
	require.NoError(t, testutil.WaitForPort(srv.Addr(), 5*time.Second))

	host, portStr, err := net.SplitHostPort(srv.Addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	opts := map[string]string{"use_encryption": "false"}
	for k, v := range options {
		opts[k] = v
	}

	a := New(testutil.NewTestLogger(t))
	err = a.Connect(context.Background(), adapter.Config{
		Type:     "gizmosql",
		Host:     host,
		Port:     port,
		Username: testUser,
		Password: testPassword,
		Options:  opts,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })

	return a
}

func countRows(t *testing.T, a *Adapter, table string) int64 {
	t.Helper()
	stream, err := a.Query(context.Background(), "SELECT COUNT(*) FROM "+table)
	require.NoError(t, err)
	defer func() { require.NoError(t, stream.Close()) }()

	require.True(t, stream.Next(), "count query returned no rows: %v", stream.Err())
	n, ok := stream.Batch().Value(0, 0).(int64)
	require.True(t, ok)
	return n
}

func TestAdapterRegistered(t *testing.T) {
	assert.True(t, adapter.IsRegistered("gizmosql"))
}

func TestConnectRejectsInvalidConfig(t *testing.T) {
	a := New(nil)
	err := a.Connect(context.Background(), adapter.Config{Type: "gizmosql"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "username is required")
}

func TestExecuteRoundTrip(t *testing.T) {
	a := startAdapter(t, nil)
	ctx := context.Background()

	res, err := a.Execute(ctx, core.CreateTable{
		Table: "events",
		Columns: []core.ColumnDef{
			{Name: "id", Type: core.TypeInteger},
			{Name: "name", Type: core.TypeString, Nullable: true},
			{Name: "at", Type: core.TypeTimestamp, Nullable: true},
		},
	})
	require.NoError(t, err)
	require.NotNil(t, res)

	ts := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	_, err = a.Execute(ctx, core.InsertRows{
		Table: "events",
		Batch: core.MustNewBatch(
			core.Column{Name: "id", Type: core.TypeInteger, Values: []any{int64(1), int64(2)}},
			core.Column{Name: "name", Type: core.TypeString, Values: []any{"first", nil}},
			core.Column{Name: "at", Type: core.TypeTimestamp, Values: []any{ts, ts.Add(time.Minute)}},
		),
	})
	require.NoError(t, err)

	stream, err := a.Query(ctx, "SELECT id, name, at FROM events ORDER BY id")
	require.NoError(t, err)
	defer func() { require.NoError(t, stream.Close()) }()

	require.True(t, stream.Next(), "query returned no rows: %v", stream.Err())
	b := stream.Batch()
	require.Equal(t, 2, b.NumRows())
	assert.Equal(t, int64(1), b.Value(0, 0))
	assert.Equal(t, "first", b.Value(0, 1))
	assert.Equal(t, ts, b.Value(0, 2))
	assert.Nil(t, b.Value(1, 1))
	assert.False(t, stream.Next())
	require.NoError(t, stream.Err())
}

func TestExecuteRawSQL(t *testing.T) {
	a := startAdapter(t, nil)
	ctx := context.Background()

	res, err := a.Execute(ctx, core.RawSQL{SQL: "CREATE TABLE nums (n BIGINT)"})
	require.NoError(t, err)
	require.Nil(t, res.Stream)

	_, err = a.Execute(ctx, core.RawSQL{SQL: "INSERT INTO nums VALUES (1), (2), (3)"})
	require.NoError(t, err)

	res, err = a.Execute(ctx, core.RawSQL{SQL: "SELECT n FROM nums ORDER BY n"})
	require.NoError(t, err)
	require.NotNil(t, res.Stream)
	defer func() { require.NoError(t, res.Stream.Close()) }()

	var got []int64
	for res.Stream.Next() {
		b := res.Stream.Batch()
		for i := 0; i < b.NumRows(); i++ {
			got = append(got, b.Value(i, 0).(int64))
		}
	}
	require.NoError(t, res.Stream.Err())
	assert.Equal(t, []int64{1, 2, 3}, got)
}

func TestQueryStreamIsForwardOnly(t *testing.T) {
	a := startAdapter(t, nil)
	ctx := context.Background()

	_, err := a.Exec(ctx, "CREATE TABLE t (n BIGINT)")
	require.NoError(t, err)
	_, err = a.Exec(ctx, "INSERT INTO t VALUES (1), (2)")
	require.NoError(t, err)

	stream, err := a.Query(ctx, "SELECT n FROM t ORDER BY n")
	require.NoError(t, err)
	for stream.Next() {
	}
	require.NoError(t, stream.Err())
	require.NoError(t, stream.Close())

	// Exhausted streams stay exhausted; a fresh read means a fresh query.
	assert.False(t, stream.Next())
}

func TestCancellationEvictsConnection(t *testing.T) {
	a := startAdapter(t, map[string]string{"concurrent_tasks": "1"})

	_, err := a.Exec(context.Background(), "CREATE TABLE big AS SELECT * FROM range(10000)")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	stream, err := a.Query(ctx, "SELECT * FROM big")
	require.NoError(t, err)
	require.True(t, stream.Next())

	// Abandon the read mid-flight. Protocol state on that connection is
	// unknown, so closing the stream must not return it to the pool.
	cancel()
	_ = stream.Close()

	bs := stream.(*batchStream)
	assert.True(t, bs.c.broken)

	a.pool.mu.Lock()
	idle := len(a.pool.idle)
	a.pool.mu.Unlock()
	assert.Zero(t, idle, "abandoned connection must be evicted, not pooled")

	// The slot was released and a fresh dial takes its place.
	n, err := a.Exec(context.Background(), "INSERT INTO big VALUES (-1)")
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
}

func TestWithTransactionCommit(t *testing.T) {
	a := startAdapter(t, nil)
	ctx := context.Background()

	_, err := a.Exec(ctx, "CREATE TABLE facts (id BIGINT, v DOUBLE)")
	require.NoError(t, err)

	batches := make([]*core.Batch, 2)
	for bi := range batches {
		ids := make([]any, 50)
		vals := make([]any, 50)
		for i := range ids {
			ids[i] = int64(bi*50 + i)
			vals[i] = float64(i) / 2
		}
		batches[bi] = core.MustNewBatch(
			core.Column{Name: "id", Type: core.TypeInteger, Values: ids},
			core.Column{Name: "v", Type: core.TypeFloat, Values: vals},
		)
	}

	err = a.WithTransaction(ctx, func(s adapter.Session) error {
		n, err := s.Ingest(ctx, "facts", adapter.NewSliceSource(batches...))
		if err != nil {
			return err
		}
		assert.Equal(t, int64(100), n)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, int64(100), countRows(t, a, "facts"))
}

func TestWithTransactionRollback(t *testing.T) {
	a := startAdapter(t, nil)
	ctx := context.Background()

	_, err := a.Exec(ctx, "CREATE TABLE staged (id BIGINT)")
	require.NoError(t, err)

	boom := errors.New("boom")
	err = a.WithTransaction(ctx, func(s adapter.Session) error {
		if _, err := s.Exec(ctx, "INSERT INTO staged VALUES (1)"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	assert.Equal(t, int64(0), countRows(t, a, "staged"))
}

func TestWithTransactionQuerySeesOwnWrites(t *testing.T) {
	a := startAdapter(t, nil)
	ctx := context.Background()

	_, err := a.Exec(ctx, "CREATE TABLE scratch (id BIGINT)")
	require.NoError(t, err)

	err = a.WithTransaction(ctx, func(s adapter.Session) error {
		if _, err := s.Exec(ctx, "INSERT INTO scratch VALUES (7)"); err != nil {
			return err
		}
		stream, err := s.Query(ctx, "SELECT COUNT(*) FROM scratch")
		if err != nil {
			return err
		}
		defer func() { _ = stream.Close() }()
		require.True(t, stream.Next())
		assert.Equal(t, int64(1), stream.Batch().Value(0, 0))
		return stream.Err()
	})
	require.NoError(t, err)
}

func TestWithTransactionRejectsCatalogOps(t *testing.T) {
	a := startAdapter(t, nil)
	ctx := context.Background()

	err := a.WithTransaction(ctx, func(s adapter.Session) error {
		_, err := s.Execute(ctx, core.UseCatalog{Catalog: "main"})
		return err
	})
	var catErr *core.CatalogError
	require.ErrorAs(t, err, &catErr)
}

func TestTransactionStateMachine(t *testing.T) {
	c := &conn{txn: txnActive}
	err := c.beginTxn(context.Background(), "BEGIN TRANSACTION")
	var txnErr *core.TransactionError
	require.ErrorAs(t, err, &txnErr)
	assert.Equal(t, "begin", txnErr.Op)

	c = &conn{}
	err = c.commitTxn(context.Background(), "COMMIT")
	require.ErrorAs(t, err, &txnErr)

	err = c.rollbackTxn(context.Background(), "ROLLBACK")
	require.ErrorAs(t, err, &txnErr)
}

func TestCatalogLifecycle(t *testing.T) {
	a := startAdapter(t, nil)
	ctx := context.Background()

	require.NoError(t, a.CreateCatalog(ctx, "tmp", false))

	err := a.CreateCatalog(ctx, "tmp", false)
	var catErr *core.CatalogError
	require.ErrorAs(t, err, &catErr)

	require.NoError(t, a.CreateCatalog(ctx, "tmp", true))

	require.NoError(t, a.UseCatalog(ctx, "tmp"))

	// The active catalog context cannot be dropped.
	err = a.DropCatalog(ctx, "tmp")
	require.ErrorAs(t, err, &catErr)
	assert.Contains(t, catErr.Error(), "active")

	require.NoError(t, a.UseCatalog(ctx, "main"))
	require.NoError(t, a.DropCatalog(ctx, "tmp"))
}

func TestUseCatalogFailureKeepsContext(t *testing.T) {
	a := startAdapter(t, nil)
	ctx := context.Background()

	require.NoError(t, a.UseCatalog(ctx, "main"))
	err := a.UseCatalog(ctx, "no_such_catalog")
	var catErr *core.CatalogError
	require.ErrorAs(t, err, &catErr)

	// The context only moves after the server accepted the switch.
	assert.Equal(t, "main", a.catalogContext())
}

func TestCatalogContextScopesTables(t *testing.T) {
	a := startAdapter(t, nil)
	ctx := context.Background()

	require.NoError(t, a.CreateCatalog(ctx, "sales", false))
	require.NoError(t, a.UseCatalog(ctx, "sales"))

	_, err := a.Execute(ctx, core.CreateTable{
		Table:   "orders",
		Columns: []core.ColumnDef{{Name: "id", Type: core.TypeInteger}},
	})
	require.NoError(t, err)
	_, err = a.Exec(ctx, "INSERT INTO orders VALUES (1)")
	require.NoError(t, err)

	assert.Equal(t, int64(1), countRows(t, a, "sales.orders"))
}

func TestIngestOutsideTransaction(t *testing.T) {
	a := startAdapter(t, nil)
	ctx := context.Background()

	_, err := a.Exec(ctx, "CREATE TABLE metrics (id BIGINT, ok BOOLEAN)")
	require.NoError(t, err)

	batch := core.MustNewBatch(
		core.Column{Name: "id", Type: core.TypeInteger, Values: []any{int64(1), int64(2), int64(3)}},
		core.Column{Name: "ok", Type: core.TypeBoolean, Values: []any{true, false, nil}},
	)
	n, err := a.Ingest(ctx, "metrics", adapter.NewSliceSource(batch))
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, int64(3), countRows(t, a, "metrics"))
}

func TestIngestMissingTable(t *testing.T) {
	a := startAdapter(t, nil)
	ctx := context.Background()

	batch := core.MustNewBatch(
		core.Column{Name: "id", Type: core.TypeInteger, Values: []any{int64(1)}},
	)
	_, err := a.Ingest(ctx, "absent", adapter.NewSliceSource(batch))
	require.Error(t, err)
}

func TestIngestSchemaMismatch(t *testing.T) {
	a := startAdapter(t, nil)
	ctx := context.Background()

	_, err := a.Exec(ctx, "CREATE TABLE typed (id BIGINT, label VARCHAR)")
	require.NoError(t, err)

	tests := []struct {
		name  string
		batch *core.Batch
	}{
		{
			name: "wrong column name",
			batch: core.MustNewBatch(
				core.Column{Name: "id", Type: core.TypeInteger, Values: []any{int64(1)}},
				core.Column{Name: "tag", Type: core.TypeString, Values: []any{"x"}},
			),
		},
		{
			name: "wrong column count",
			batch: core.MustNewBatch(
				core.Column{Name: "id", Type: core.TypeInteger, Values: []any{int64(1)}},
			),
		},
		{
			name: "wrong column type",
			batch: core.MustNewBatch(
				core.Column{Name: "id", Type: core.TypeInteger, Values: []any{int64(1)}},
				core.Column{Name: "label", Type: core.TypeBoolean, Values: []any{true}},
			),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Ingest(ctx, "typed", adapter.NewSliceSource(tt.batch))
			var mismatch *core.SchemaMismatch
			require.ErrorAs(t, err, &mismatch)
			assert.Equal(t, "typed", mismatch.Table)
		})
	}

	// No partial rows from rejected batches.
	assert.Equal(t, int64(0), countRows(t, a, "typed"))
}

func TestResourceExhaustedFailFast(t *testing.T) {
	a := startAdapter(t, map[string]string{
		"concurrent_tasks": "1",
		"checkout_wait":    "false",
	})
	ctx := context.Background()

	_, err := a.Exec(ctx, "CREATE TABLE one (n BIGINT)")
	require.NoError(t, err)

	// The open stream holds the single connection slot.
	stream, err := a.Query(ctx, "SELECT n FROM one")
	require.NoError(t, err)

	_, err = a.Query(ctx, "SELECT n FROM one")
	var exhausted *core.ResourceExhausted
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 1, exhausted.Limit)

	require.NoError(t, stream.Close())

	// The slot frees once the stream closes.
	stream, err = a.Query(ctx, "SELECT n FROM one")
	require.NoError(t, err)
	require.NoError(t, stream.Close())
}

func TestPrePingEvictsDeadConnection(t *testing.T) {
	a := startAdapter(t, map[string]string{
		"concurrent_tasks": "1",
		"pre_ping":         "true",
	})
	ctx := context.Background()

	_, err := a.Exec(ctx, "CREATE TABLE probe (n BIGINT)")
	require.NoError(t, err)

	a.pool.mu.Lock()
	require.Len(t, a.pool.idle, 1)
	dead := a.pool.idle[0]
	a.pool.mu.Unlock()

	// Kill the pooled connection's transport out from under the pool. The
	// pre-ping at the next checkout must evict it and dial a replacement.
	require.NoError(t, dead.cl.Close())

	_, err = a.Exec(ctx, "INSERT INTO probe VALUES (1)")
	require.NoError(t, err)
	assert.Equal(t, int64(1), countRows(t, a, "probe"))

	a.pool.mu.Lock()
	for _, c := range a.pool.idle {
		assert.NotSame(t, dead, c)
	}
	a.pool.mu.Unlock()
}

func TestCheckoutWaitQueues(t *testing.T) {
	a := startAdapter(t, map[string]string{"concurrent_tasks": "1"})
	ctx := context.Background()

	_, err := a.Exec(ctx, "CREATE TABLE q (n BIGINT)")
	require.NoError(t, err)

	// The open stream holds the single connection slot.
	stream, err := a.Query(ctx, "SELECT n FROM q")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := a.Exec(context.Background(), "INSERT INTO q VALUES (1)")
		done <- err
	}()

	select {
	case err := <-done:
		t.Fatalf("checkout should queue at the ceiling, but completed with %v", err)
	case <-time.After(200 * time.Millisecond):
	}

	require.NoError(t, stream.Close())

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("queued checkout never acquired the freed slot")
	}
	assert.Equal(t, int64(1), countRows(t, a, "q"))
}

func TestCommentOnRespectsRegisterComments(t *testing.T) {
	a := startAdapter(t, map[string]string{"register_comments": "false"})
	ctx := context.Background()

	// Disabled comment registration succeeds without touching the server,
	// even for tables that do not exist.
	res, err := a.Execute(ctx, core.CommentOn{Table: "absent", Comment: "nope"})
	require.NoError(t, err)
	assert.Nil(t, res.Stream)
}

func TestCommentOnExecutes(t *testing.T) {
	a := startAdapter(t, nil)
	ctx := context.Background()

	_, err := a.Exec(ctx, "CREATE TABLE documented (id BIGINT)")
	require.NoError(t, err)

	_, err = a.Execute(ctx, core.CommentOn{Table: "documented", Comment: "fact table"})
	require.NoError(t, err)

	_, err = a.Execute(ctx, core.CommentOn{Table: "documented", Column: "id", Comment: "surrogate key"})
	require.NoError(t, err)
}

func TestGetTableMetadata(t *testing.T) {
	a := startAdapter(t, nil)
	ctx := context.Background()

	_, err := a.Exec(ctx, "CREATE TABLE people (id BIGINT NOT NULL, name VARCHAR)")
	require.NoError(t, err)
	_, err = a.Exec(ctx, "INSERT INTO people VALUES (1, 'ada'), (2, 'grace')")
	require.NoError(t, err)

	meta, err := a.GetTableMetadata(ctx, "people")
	require.NoError(t, err)
	assert.Equal(t, "people", meta.Name)
	assert.Equal(t, int64(2), meta.RowCount)
	require.Len(t, meta.Columns, 2)
	assert.Equal(t, "id", meta.Columns[0].Name)
	assert.Equal(t, "BIGINT", meta.Columns[0].Type)
	assert.False(t, meta.Columns[0].Nullable)
	assert.Equal(t, "name", meta.Columns[1].Name)
	assert.True(t, meta.Columns[1].Nullable)

	_, err = a.GetTableMetadata(ctx, "absent")
	require.Error(t, err)
}

func TestAuthenticationFailure(t *testing.T) {
	srv, err := testutil.StartFlightServer(testUser, testPassword)
	require.NoError(t, err)
	t.Cleanup(srv.Close)
	require.NoError(t, testutil.WaitForPort(srv.Addr(), 5*time.Second))

	host, portStr, err := net.SplitHostPort(srv.Addr())
	require.NoError(t, err)
	port, _ := strconv.Atoi(portStr)

	a := New(testutil.NewTestLogger(t))
	err = a.Connect(context.Background(), adapter.Config{
		Type:     "gizmosql",
		Host:     host,
		Port:     port,
		Username: testUser,
		Password: "wrong",
		Options:  map[string]string{"use_encryption": "false"},
	})
	require.NoError(t, err, "connect is lazy and must not dial")

	// The bad credentials surface on first use.
	_, err = a.Exec(context.Background(), "SELECT 1")
	var connErr *core.ConnectionError
	require.ErrorAs(t, err, &connErr)

	_ = a.Close()
}
