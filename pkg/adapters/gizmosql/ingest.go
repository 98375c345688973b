package gizmosql

import (
	"context"
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/flight/flightsql"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/flightbridge/flightbridge/pkg/adapter"
	"github.com/flightbridge/flightbridge/pkg/core"
)

// Ingest streams columnar batches into a table through the protocol's native
// bulk-transfer path, bypassing row-wise INSERT. Batch order is preserved and
// each batch is applied atomically; cross-batch atomicity belongs to the
// caller via WithTransaction.
func (a *Adapter) Ingest(ctx context.Context, table string, src adapter.BatchSource) (int64, error) {
	c, err := a.pool.checkout(ctx)
	if err != nil {
		return 0, err
	}
	defer a.pool.put(c)

	if err := a.syncCatalog(ctx, c); err != nil {
		return 0, err
	}
	return a.ingestOn(ctx, c, table, src)
}

func (a *Adapter) ingestOn(ctx context.Context, c *conn, table string, src adapter.BatchSource) (int64, error) {
	meta, err := a.tableMetadataOn(ctx, c, table)
	if err != nil {
		return 0, fmt.Errorf("ingest into %s: %w", table, err)
	}

	var (
		total  int64
		schema *arrow.Schema
		index  int
	)
	for {
		batch, err := src.Next()
		if err != nil {
			return total, &core.IngestionError{Table: table, Batch: index, Catalog: c.catalog, Err: err}
		}
		if batch == nil {
			return total, nil
		}

		if err := checkBatchSchema(a, table, batch, meta); err != nil {
			return total, err
		}
		if schema == nil {
			if schema, err = batchSchema(batch); err != nil {
				return total, &core.IngestionError{Table: table, Batch: index, Catalog: c.catalog, Err: err}
			}
		}

		n, err := a.ingestBatch(ctx, c, table, schema, batch)
		if err != nil {
			c.noteFailure(ctx, err)
			return total, &core.IngestionError{Table: table, Batch: index, Catalog: c.catalog, Err: err}
		}
		total += n
		index++
	}
}

func (a *Adapter) ingestBatch(ctx context.Context, c *conn, table string, schema *arrow.Schema, batch *core.Batch) (int64, error) {
	rec, err := batchToRecord(memory.DefaultAllocator, schema, batch)
	if err != nil {
		return 0, err
	}
	defer rec.Release()

	rdr, err := array.NewRecordReader(schema, []arrow.Record{rec})
	if err != nil {
		return 0, err
	}
	defer rdr.Release()

	opts := &flightsql.ExecuteIngestOpts{
		TableDefinitionOptions: &flightsql.TableDefinitionOptions{
			IfNotExist: flightsql.TableDefinitionOptionsTableNotExistOptionFail,
			IfExists:   flightsql.TableDefinitionOptionsTableExistsOptionAppend,
		},
		Table: table,
	}
	if c.catalog != "" {
		catalog := c.catalog
		opts.Catalog = &catalog
	}

	n, err := c.cl.ExecuteIngest(ctx, rdr, opts)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		// Servers that do not report counts get the batch's own row count.
		n = int64(batch.NumRows())
	}
	return n, nil
}

// checkBatchSchema verifies the batch's column set against the target table
// before any rows move. Mismatches are surfaced, never coerced.
func checkBatchSchema(a *Adapter, table string, batch *core.Batch, meta *core.TableMetadata) error {
	columns := batch.Columns()
	if len(columns) != len(meta.Columns) {
		return &core.SchemaMismatch{
			Table:  table,
			Detail: fmt.Sprintf("batch has %d columns, table has %d", len(columns), len(meta.Columns)),
		}
	}

	byName := make(map[string]core.ColumnMetadata, len(meta.Columns))
	for _, col := range meta.Columns {
		byName[strings.ToLower(col.Name)] = col
	}

	for _, col := range columns {
		tableCol, ok := byName[strings.ToLower(col.Name)]
		if !ok {
			return &core.SchemaMismatch{
				Table:  table,
				Detail: fmt.Sprintf("batch column %q does not exist in table", col.Name),
			}
		}
		if col.Type == core.TypeNull {
			continue
		}
		native, ok := a.d.TypeName(col.Type)
		if !ok || typeFamily(native) != typeFamily(tableCol.Type) {
			return &core.SchemaMismatch{
				Table: table,
				Detail: fmt.Sprintf("batch column %q has type %s, table column is %s",
					col.Name, col.Type, tableCol.Type),
			}
		}
	}
	return nil
}

// typeFamily groups engine type names so that width variants of the same
// logical type (INTEGER vs BIGINT) compare equal.
func typeFamily(native string) string {
	t := strings.ToUpper(native)
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = t[:i]
	}
	switch t {
	case "TINYINT", "SMALLINT", "INTEGER", "INT", "BIGINT", "HUGEINT",
		"UTINYINT", "USMALLINT", "UINTEGER", "UBIGINT":
		return "integer"
	case "FLOAT", "REAL", "DOUBLE", "DECIMAL", "NUMERIC":
		return "float"
	case "VARCHAR", "TEXT", "STRING", "CHAR", "BPCHAR":
		return "string"
	case "BOOLEAN", "BOOL", "LOGICAL":
		return "boolean"
	case "TIMESTAMP", "DATETIME", "TIMESTAMP WITH TIME ZONE", "TIMESTAMPTZ", "DATE":
		return "timestamp"
	case "BLOB", "BYTEA", "BINARY", "VARBINARY":
		return "binary"
	default:
		return t
	}
}
