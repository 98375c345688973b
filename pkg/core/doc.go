// Package core defines the shared language of the flightbridge system.
//
// This package contains:
//   - The columnar batch model (ColumnType, Column, Batch)
//   - The abstract operation model consumed by dialect translators
//   - The error taxonomy surfaced to the orchestration layer
//   - Table metadata types
//
// The Golden Rule: pkg/core imports ONLY the standard library.
// All other packages depend on core, not the reverse.
package core
