package core

import (
	"fmt"
	"time"
)

// ColumnType identifies a logical column type in the adapter's type universe.
// Dialects map these to engine-native type names; the arrow bridge maps them
// to wire-level columnar types.
type ColumnType int

const (
	// TypeInteger is a 64-bit signed integer column.
	TypeInteger ColumnType = iota
	// TypeFloat is a 64-bit floating point column.
	TypeFloat
	// TypeString is a UTF-8 string column.
	TypeString
	// TypeBoolean is a boolean column.
	TypeBoolean
	// TypeTimestamp is a microsecond-precision timestamp column.
	TypeTimestamp
	// TypeBinary is an arbitrary byte-sequence column.
	TypeBinary
	// TypeNull is a column with no values, only nulls.
	TypeNull
)

// String returns the canonical lowercase name of the type.
func (t ColumnType) String() string {
	switch t {
	case TypeInteger:
		return "integer"
	case TypeFloat:
		return "float"
	case TypeString:
		return "string"
	case TypeBoolean:
		return "boolean"
	case TypeTimestamp:
		return "timestamp"
	case TypeBinary:
		return "binary"
	case TypeNull:
		return "null"
	default:
		return "unknown"
	}
}

// Column is a single named, typed column of values. A nil element represents
// SQL NULL. Non-nil elements must match the declared type: int64 for
// TypeInteger, float64 for TypeFloat, string for TypeString, bool for
// TypeBoolean, time.Time for TypeTimestamp and []byte for TypeBinary.
type Column struct {
	Name   string
	Type   ColumnType
	Values []any
}

// checkValue verifies that v is a legal element for the column type.
func (c Column) checkValue(i int, v any) error {
	if v == nil {
		return nil
	}
	var ok bool
	switch c.Type {
	case TypeInteger:
		_, ok = v.(int64)
	case TypeFloat:
		_, ok = v.(float64)
	case TypeString:
		_, ok = v.(string)
	case TypeBoolean:
		_, ok = v.(bool)
	case TypeTimestamp:
		_, ok = v.(time.Time)
	case TypeBinary:
		_, ok = v.([]byte)
	case TypeNull:
		ok = false
	}
	if !ok {
		return fmt.Errorf("column %q row %d: value %T is not valid for type %s", c.Name, i, v, c.Type)
	}
	return nil
}

// Batch is a set of named, typed columns of equal length. It is used both as
// bulk-ingestion input and as query-result output. A Batch is immutable once
// constructed via NewBatch.
type Batch struct {
	columns []Column
	numRows int
}

// NewBatch validates the columns and constructs a Batch. All columns must
// share the same length, names must be non-empty and unique, and every value
// must match its column's declared type.
func NewBatch(columns ...Column) (*Batch, error) {
	if len(columns) == 0 {
		return nil, fmt.Errorf("batch requires at least one column")
	}

	numRows := len(columns[0].Values)
	seen := make(map[string]struct{}, len(columns))
	for _, col := range columns {
		if col.Name == "" {
			return nil, fmt.Errorf("batch column has empty name")
		}
		if _, dup := seen[col.Name]; dup {
			return nil, fmt.Errorf("duplicate batch column %q", col.Name)
		}
		seen[col.Name] = struct{}{}

		if len(col.Values) != numRows {
			return nil, fmt.Errorf("column %q has %d rows, expected %d", col.Name, len(col.Values), numRows)
		}
		for i, v := range col.Values {
			if err := col.checkValue(i, v); err != nil {
				return nil, err
			}
		}
	}

	return &Batch{columns: columns, numRows: numRows}, nil
}

// MustNewBatch is NewBatch that panics on error. Intended for tests and
// literal batch construction.
func MustNewBatch(columns ...Column) *Batch {
	b, err := NewBatch(columns...)
	if err != nil {
		panic(err)
	}
	return b
}

// NumRows returns the shared row count of the batch.
func (b *Batch) NumRows() int { return b.numRows }

// NumColumns returns the number of columns in the batch.
func (b *Batch) NumColumns() int { return len(b.columns) }

// Columns returns the batch's columns in declaration order. The returned
// slice is a copy; the underlying value slices are shared and must not be
// mutated.
func (b *Batch) Columns() []Column {
	out := make([]Column, len(b.columns))
	copy(out, b.columns)
	return out
}

// Column returns the column with the given name.
func (b *Batch) Column(name string) (Column, bool) {
	for _, col := range b.columns {
		if col.Name == name {
			return col, true
		}
	}
	return Column{}, false
}

// Schema returns the batch's column definitions, in declaration order.
func (b *Batch) Schema() []ColumnDef {
	defs := make([]ColumnDef, len(b.columns))
	for i, col := range b.columns {
		defs[i] = ColumnDef{Name: col.Name, Type: col.Type, Nullable: true}
	}
	return defs
}

// Value returns the value at (row, col) position.
func (b *Batch) Value(row, col int) any {
	return b.columns[col].Values[row]
}
