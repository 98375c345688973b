package core

import "fmt"

// The error taxonomy surfaced by the adapter. Every failure names the
// operation that failed and, where meaningful, the catalog/connection context,
// and wraps the underlying transport error unmodified. The adapter never
// retries on the caller's behalf; the orchestration layer's retry policy
// decides what to resubmit.

// ConnectionError reports a network, authentication, or TLS failure while
// establishing or using a connection.
type ConnectionError struct {
	Endpoint string
	Op       string
	Err      error
}

func (e *ConnectionError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("connection to %s failed during %s: %v", e.Endpoint, e.Op, e.Err)
	}
	return fmt.Sprintf("connection to %s failed: %v", e.Endpoint, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// ResourceExhausted reports that the connection pool's concurrency ceiling
// was hit in fail-fast mode.
type ResourceExhausted struct {
	Limit int
}

func (e *ResourceExhausted) Error() string {
	return fmt.Sprintf("concurrency limit of %d connections reached", e.Limit)
}

// TransactionError reports an illegal transaction state transition, such as
// nesting begins or committing with no active transaction.
type TransactionError struct {
	State string
	Op    string
}

func (e *TransactionError) Error() string {
	return fmt.Sprintf("cannot %s: transaction is %s", e.Op, e.State)
}

// CatalogError reports a catalog existence or active-context violation.
type CatalogError struct {
	Catalog string
	Op      string
	Err     error
}

func (e *CatalogError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s %q: %v", e.Op, e.Catalog, e.Err)
	}
	return fmt.Sprintf("%s %q failed", e.Op, e.Catalog)
}

func (e *CatalogError) Unwrap() error { return e.Err }

// UnsupportedOperation reports that an abstract construct has no representable
// equivalent in the target dialect. It is surfaced, never silently
// approximated.
type UnsupportedOperation struct {
	Dialect string
	Op      string
	Detail  string
}

func (e *UnsupportedOperation) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("dialect %s cannot represent %s: %s", e.Dialect, e.Op, e.Detail)
	}
	return fmt.Sprintf("dialect %s cannot represent %s", e.Dialect, e.Op)
}

// SchemaMismatch reports that an ingestion batch's column set does not match
// the target table's schema. Values are never coerced silently.
type SchemaMismatch struct {
	Table  string
	Detail string
}

func (e *SchemaMismatch) Error() string {
	return fmt.Sprintf("batch schema does not match table %q: %s", e.Table, e.Detail)
}

// IngestionError reports a transport failure during a bulk load.
type IngestionError struct {
	Table   string
	Batch   int
	Catalog string
	Err     error
}

func (e *IngestionError) Error() string {
	if e.Catalog != "" {
		return fmt.Sprintf("ingest into %s.%s failed at batch %d: %v", e.Catalog, e.Table, e.Batch, e.Err)
	}
	return fmt.Sprintf("ingest into %s failed at batch %d: %v", e.Table, e.Batch, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }
