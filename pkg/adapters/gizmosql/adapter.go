// Package gizmosql provides a GizmoSQL engine adapter for flightbridge.
//
// GizmoSQL is a database server that uses DuckDB as its execution engine and
// exposes an Arrow Flight SQL interface for remote connections. The adapter
// translates abstract operations into DuckDB SQL, manages connection and
// transaction lifecycle over the Flight protocol, and bulk-loads columnar
// batches through the protocol's native ingest path.
package gizmosql

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/flightbridge/flightbridge/pkg/adapter"
	"github.com/flightbridge/flightbridge/pkg/core"
	"github.com/flightbridge/flightbridge/pkg/dialect"
)

// Adapter implements the adapter.Adapter interface for GizmoSQL servers.
type Adapter struct {
	logger *slog.Logger
	desc   Descriptor
	d      *dialect.Dialect
	pool   *pool

	mu            sync.Mutex
	activeCatalog string
}

// New creates a new GizmoSQL adapter instance.
// If logger is nil, a discard logger is used.
func New(logger *slog.Logger) *Adapter {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Adapter{logger: logger}
}

// DialectName returns the SQL dialect for this adapter.
func (a *Adapter) DialectName() string {
	return "duckdb"
}

// Connect validates the configuration and prepares the connection pool.
// Connections to the server are opened lazily on first use.
func (a *Adapter) Connect(ctx context.Context, cfg adapter.Config) error {
	desc, err := DescriptorFromConfig(cfg)
	if err != nil {
		return err
	}

	d, ok := dialect.Get(a.DialectName())
	if !ok {
		return fmt.Errorf("dialect %q is not registered", a.DialectName())
	}

	a.desc = desc
	a.d = d
	a.pool = newPool(desc, d, a.logger)
	a.activeCatalog = desc.Database

	a.logger.Debug("configured gizmosql adapter",
		slog.String("endpoint", desc.URI()),
		slog.String("catalog", desc.Database),
		slog.Int("concurrent_tasks", desc.ConcurrentTasks))
	return nil
}

// Close tears down all pooled connections.
func (a *Adapter) Close() error {
	if a.pool == nil {
		return nil
	}
	return a.pool.close()
}

// Dialect returns the SQL dialect configuration for this adapter.
func (a *Adapter) Dialect() *dialect.Dialect { return a.d }

// Execute translates an abstract operation and runs it against the server.
func (a *Adapter) Execute(ctx context.Context, op core.Operation) (*adapter.Result, error) {
	switch o := op.(type) {
	case core.CreateCatalog:
		return &adapter.Result{}, a.CreateCatalog(ctx, o.Catalog, o.IfNotExists)
	case core.DropCatalog:
		return &adapter.Result{}, a.DropCatalog(ctx, o.Catalog)
	case core.UseCatalog:
		return &adapter.Result{}, a.UseCatalog(ctx, o.Catalog)
	}

	c, err := a.pool.checkout(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.syncCatalog(ctx, c); err != nil {
		a.pool.put(c)
		return nil, err
	}

	res, err := a.executeOn(ctx, c, op)
	if err != nil || res.Stream == nil {
		a.pool.put(c)
		return res, err
	}
	// The stream owns the connection until Close.
	return res, nil
}

// executeOn translates and runs an operation on a specific connection.
// Streams returned here do not release the connection; the caller decides
// ownership.
func (a *Adapter) executeOn(ctx context.Context, c *conn, op core.Operation) (*adapter.Result, error) {
	if o, ok := op.(core.CommentOn); ok && !a.desc.RegisterComments {
		a.logger.Debug("comment registration disabled, skipping", slog.String("table", o.Table))
		return &adapter.Result{}, nil
	}

	sql, err := a.d.Render(op, c.catalog)
	if err != nil {
		return nil, err
	}

	if _, raw := op.(core.RawSQL); raw && isQuery(sql) {
		info, err := c.execQuery(ctx, sql)
		if err != nil {
			return nil, fmt.Errorf("%s in catalog %q: %w", op.Name(), c.catalog, err)
		}
		release := func(done *conn) { a.pool.put(done) }
		if c.txn == txnActive {
			release = nil
		}
		return &adapter.Result{Stream: newBatchStream(ctx, c, info, release)}, nil
	}

	n, err := c.execUpdate(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("%s in catalog %q: %w", op.Name(), c.catalog, err)
	}
	return &adapter.Result{RowsAffected: n}, nil
}

// Exec executes pre-rendered SQL that returns no rows.
func (a *Adapter) Exec(ctx context.Context, sql string) (int64, error) {
	c, err := a.pool.checkout(ctx)
	if err != nil {
		return 0, err
	}
	defer a.pool.put(c)

	if err := a.syncCatalog(ctx, c); err != nil {
		return 0, err
	}
	return c.execUpdate(ctx, sql)
}

// Query executes pre-rendered SQL and lazily streams the result batches.
// The returned stream owns a pooled connection until Close.
func (a *Adapter) Query(ctx context.Context, sql string) (adapter.BatchStream, error) {
	c, err := a.pool.checkout(ctx)
	if err != nil {
		return nil, err
	}
	if err := a.syncCatalog(ctx, c); err != nil {
		a.pool.put(c)
		return nil, err
	}

	info, err := c.execQuery(ctx, sql)
	if err != nil {
		a.pool.put(c)
		return nil, fmt.Errorf("query in catalog %q: %w", c.catalog, err)
	}
	return newBatchStream(ctx, c, info, func(done *conn) { a.pool.put(done) }), nil
}

// GetTableMetadata retrieves metadata for a table in the active catalog.
func (a *Adapter) GetTableMetadata(ctx context.Context, table string) (*core.TableMetadata, error) {
	c, err := a.pool.checkout(ctx)
	if err != nil {
		return nil, err
	}
	defer a.pool.put(c)

	if err := a.syncCatalog(ctx, c); err != nil {
		return nil, err
	}
	return a.tableMetadataOn(ctx, c, table)
}

func (a *Adapter) tableMetadataOn(ctx context.Context, c *conn, table string) (*core.TableMetadata, error) {
	catalog, tableName := splitQualifiedName(table, c.catalog, a.d)

	catalogLit, err := a.d.Literal(catalog)
	if err != nil {
		return nil, err
	}
	tableLit, err := a.d.Literal(tableName)
	if err != nil {
		return nil, err
	}

	// Flight SQL statements carry no bind parameters here, so the two name
	// literals are rendered through the dialect's escaping rules.
	query := fmt.Sprintf(`SELECT column_name, data_type, is_nullable, ordinal_position
FROM information_schema.columns
WHERE table_schema = %s AND table_name = %s
ORDER BY ordinal_position`, catalogLit, tableLit)

	info, err := c.execQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query column metadata: %w", err)
	}

	var columns []core.ColumnMetadata
	stream := newBatchStream(ctx, c, info, nil)
	for stream.Next() {
		b := stream.Batch()
		names, _ := b.Column("column_name")
		types, _ := b.Column("data_type")
		nullables, _ := b.Column("is_nullable")
		positions, _ := b.Column("ordinal_position")
		for i := 0; i < b.NumRows(); i++ {
			col := core.ColumnMetadata{
				Name: names.Values[i].(string),
				Type: types.Values[i].(string),
			}
			if s, ok := nullables.Values[i].(string); ok {
				col.Nullable = strings.EqualFold(s, "YES")
			}
			if p, ok := positions.Values[i].(int64); ok {
				col.Position = int(p)
			}
			columns = append(columns, col)
		}
	}
	if err := stream.Close(); err != nil {
		return nil, fmt.Errorf("error iterating column metadata: %w", err)
	}

	if len(columns) == 0 {
		return nil, fmt.Errorf("table %s not found", table)
	}

	meta := &core.TableMetadata{Catalog: catalog, Schema: catalog, Name: tableName, Columns: columns}

	countQuery := "SELECT COUNT(*) FROM " + a.d.QualifyTable(table, c.catalog)
	if info, err := c.execQuery(ctx, countQuery); err == nil {
		stream := newBatchStream(ctx, c, info, nil)
		if stream.Next() {
			b := stream.Batch()
			if b.NumRows() > 0 && b.NumColumns() > 0 {
				if n, ok := b.Value(0, 0).(int64); ok {
					meta.RowCount = n
				}
			}
		}
		_ = stream.Close()
	}

	return meta, nil
}

// splitQualifiedName splits a table reference into catalog and name, falling
// back to the connection's catalog context, then the dialect default.
func splitQualifiedName(table, active string, d *dialect.Dialect) (catalog, name string) {
	if parts := strings.SplitN(table, ".", 2); len(parts) == 2 {
		return parts[0], parts[1]
	}
	if active != "" {
		return active, table
	}
	return d.DefaultCatalog, table
}

// isQuery reports whether a raw statement produces rows, deciding between the
// query and update execution paths.
func isQuery(sql string) bool {
	head := strings.ToUpper(strings.TrimSpace(sql))
	for _, prefix := range []string{"SELECT", "WITH", "SHOW", "DESCRIBE", "SUMMARIZE", "EXPLAIN", "FROM", "VALUES", "PRAGMA"} {
		if strings.HasPrefix(head, prefix) {
			return true
		}
	}
	return false
}

// Ensure Adapter implements adapter.Adapter interface
var _ adapter.Adapter = (*Adapter)(nil)
