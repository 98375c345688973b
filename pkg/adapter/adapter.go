// Package adapter provides the engine adapter contract for flightbridge.
//
// This package contains the public interface that all engine adapters must
// implement. Concrete adapter implementations are in pkg/adapters/
// subdirectories and register themselves via init().
package adapter

import (
	"context"

	"github.com/flightbridge/flightbridge/pkg/core"
	"github.com/flightbridge/flightbridge/pkg/dialect"
)

// Config holds configuration for connecting to an engine. Adapter-specific
// options beyond the common fields travel in Options (string settings) and
// Params (structured settings).
type Config struct {
	Type     string
	Host     string
	Port     int
	Database string
	Username string
	Password string
	Options  map[string]string
	Params   map[string]any
}

// Result is the outcome of executing an abstract operation: a row count for
// DDL/DML, or a batch stream for reads. Exactly one of the two is meaningful;
// Stream is nil for statements that return no rows.
type Result struct {
	RowsAffected int64
	Stream       BatchStream
}

// BatchStream is a finite, forward-only sequence of columnar batches. It is
// restartable by reissuing the operation, not by rewinding. Close must be
// called once iteration ends, whether or not the stream was drained; it
// releases the underlying connection.
type BatchStream interface {
	// Next advances to the next batch. It returns false when the stream is
	// exhausted or an error occurred; Err distinguishes the two.
	Next() bool

	// Batch returns the current batch. Valid only after a true Next.
	Batch() *core.Batch

	// Err returns the first error encountered while streaming.
	Err() error

	// Close releases the stream's resources.
	Close() error
}

// BatchSource supplies columnar batches to the bulk ingestion path, in order.
// Next returns nil, nil when the source is exhausted.
type BatchSource interface {
	Next() (*core.Batch, error)
}

// Session is the surface available inside a transaction scope. All calls run
// on the single connection that owns the transaction.
type Session interface {
	// Exec executes a statement that returns no rows.
	Exec(ctx context.Context, sql string) (int64, error)

	// Query executes a read and returns its batches. The stream must be
	// closed before the next call on this session.
	Query(ctx context.Context, sql string) (BatchStream, error)

	// Execute translates and runs an abstract operation.
	Execute(ctx context.Context, op core.Operation) (*Result, error)

	// Ingest bulk-loads batches into a table within the transaction.
	Ingest(ctx context.Context, table string, src BatchSource) (int64, error)
}

// Adapter defines the interface that all engine adapters must implement. It
// provides operation execution, bulk ingestion, transaction scoping, catalog
// management and metadata retrieval against a remote engine.
type Adapter interface {
	// Connect validates the configuration and prepares the adapter.
	// Connections to the remote server are opened lazily on first use.
	Connect(ctx context.Context, cfg Config) error

	// Close tears down all pooled connections and releases resources.
	Close() error

	// Execute translates an abstract operation and runs it against the
	// server, returning either a row count or a batch stream.
	Execute(ctx context.Context, op core.Operation) (*Result, error)

	// Exec executes pre-rendered SQL that returns no rows.
	Exec(ctx context.Context, sql string) (int64, error)

	// Query executes pre-rendered SQL and streams the result batches.
	Query(ctx context.Context, sql string) (BatchStream, error)

	// Ingest bulk-loads batches into a table via the engine's columnar
	// transfer path, bypassing row-wise INSERT. Returns the ingested row
	// count.
	Ingest(ctx context.Context, table string, src BatchSource) (int64, error)

	// WithTransaction runs fn inside a transaction scope. Exactly one of
	// commit or rollback happens before WithTransaction returns: commit when
	// fn returns nil, rollback otherwise. A rollback failure is reported
	// alongside fn's error, never instead of it.
	WithTransaction(ctx context.Context, fn func(Session) error) error

	// CreateCatalog, DropCatalog and UseCatalog manage the catalog namespace
	// and the active catalog context.
	CreateCatalog(ctx context.Context, name string, ifNotExists bool) error
	DropCatalog(ctx context.Context, name string) error
	UseCatalog(ctx context.Context, name string) error

	// GetTableMetadata retrieves metadata for a table in the active catalog.
	GetTableMetadata(ctx context.Context, table string) (*core.TableMetadata, error)

	// Dialect returns the SQL dialect configuration for this adapter.
	Dialect() *dialect.Dialect
}

// SliceSource is a BatchSource over an in-memory batch slice.
type SliceSource struct {
	batches []*core.Batch
	pos     int
}

// NewSliceSource builds a BatchSource that yields the given batches in order.
func NewSliceSource(batches ...*core.Batch) *SliceSource {
	return &SliceSource{batches: batches}
}

// Next returns the next batch, or nil when exhausted.
func (s *SliceSource) Next() (*core.Batch, error) {
	if s.pos >= len(s.batches) {
		return nil, nil
	}
	b := s.batches[s.pos]
	s.pos++
	return b, nil
}
