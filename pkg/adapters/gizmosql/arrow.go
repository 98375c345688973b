package gizmosql

import (
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/flightbridge/flightbridge/pkg/core"
)

// arrowTypeFor maps the adapter's generic type universe onto wire-level
// arrow types.
func arrowTypeFor(t core.ColumnType) (arrow.DataType, error) {
	switch t {
	case core.TypeInteger:
		return arrow.PrimitiveTypes.Int64, nil
	case core.TypeFloat:
		return arrow.PrimitiveTypes.Float64, nil
	case core.TypeString:
		return arrow.BinaryTypes.String, nil
	case core.TypeBoolean:
		return arrow.FixedWidthTypes.Boolean, nil
	case core.TypeTimestamp:
		return arrow.FixedWidthTypes.Timestamp_us, nil
	case core.TypeBinary:
		return arrow.BinaryTypes.Binary, nil
	case core.TypeNull:
		return arrow.Null, nil
	default:
		return nil, fmt.Errorf("no arrow type for column type %s", t)
	}
}

// batchSchema builds the arrow schema for a batch.
func batchSchema(b *core.Batch) (*arrow.Schema, error) {
	columns := b.Columns()
	fields := make([]arrow.Field, len(columns))
	for i, col := range columns {
		dt, err := arrowTypeFor(col.Type)
		if err != nil {
			return nil, err
		}
		fields[i] = arrow.Field{Name: col.Name, Type: dt, Nullable: true}
	}
	return arrow.NewSchema(fields, nil), nil
}

// batchToRecord converts a batch into an arrow record on the given schema.
// The caller owns the returned record and must Release it.
func batchToRecord(alloc memory.Allocator, schema *arrow.Schema, b *core.Batch) (arrow.Record, error) {
	builder := array.NewRecordBuilder(alloc, schema)
	defer builder.Release()

	for i, col := range b.Columns() {
		if err := appendColumn(builder.Field(i), col); err != nil {
			return nil, err
		}
	}
	return builder.NewRecord(), nil
}

func appendColumn(fb array.Builder, col core.Column) error {
	for _, v := range col.Values {
		if v == nil {
			fb.AppendNull()
			continue
		}
		switch b := fb.(type) {
		case *array.Int64Builder:
			b.Append(v.(int64))
		case *array.Float64Builder:
			b.Append(v.(float64))
		case *array.StringBuilder:
			b.Append(v.(string))
		case *array.BooleanBuilder:
			b.Append(v.(bool))
		case *array.TimestampBuilder:
			b.Append(arrow.Timestamp(v.(time.Time).UnixMicro()))
		case *array.BinaryBuilder:
			b.Append(v.([]byte))
		default:
			return fmt.Errorf("column %q: unsupported builder %T", col.Name, fb)
		}
	}
	return nil
}

// recordToBatch converts an arrow record into a batch, copying values out of
// arrow memory so the batch outlives the record.
func recordToBatch(rec arrow.Record) (*core.Batch, error) {
	schema := rec.Schema()
	columns := make([]core.Column, rec.NumCols())

	for i := 0; i < int(rec.NumCols()); i++ {
		field := schema.Field(i)
		colType, values, err := columnValues(rec.Column(i))
		if err != nil {
			return nil, fmt.Errorf("column %q: %w", field.Name, err)
		}
		columns[i] = core.Column{Name: field.Name, Type: colType, Values: values}
	}
	return core.NewBatch(columns...)
}

//nolint:gocyclo // one case per arrow array type, each trivially simple
func columnValues(arr arrow.Array) (core.ColumnType, []any, error) {
	n := arr.Len()
	values := make([]any, n)

	fill := func(get func(int) any) {
		for i := 0; i < n; i++ {
			if arr.IsNull(i) {
				values[i] = nil
				continue
			}
			values[i] = get(i)
		}
	}

	switch a := arr.(type) {
	case *array.Int8:
		fill(func(i int) any { return int64(a.Value(i)) })
		return core.TypeInteger, values, nil
	case *array.Int16:
		fill(func(i int) any { return int64(a.Value(i)) })
		return core.TypeInteger, values, nil
	case *array.Int32:
		fill(func(i int) any { return int64(a.Value(i)) })
		return core.TypeInteger, values, nil
	case *array.Int64:
		fill(func(i int) any { return a.Value(i) })
		return core.TypeInteger, values, nil
	case *array.Uint8:
		fill(func(i int) any { return int64(a.Value(i)) })
		return core.TypeInteger, values, nil
	case *array.Uint16:
		fill(func(i int) any { return int64(a.Value(i)) })
		return core.TypeInteger, values, nil
	case *array.Uint32:
		fill(func(i int) any { return int64(a.Value(i)) })
		return core.TypeInteger, values, nil
	case *array.Float32:
		fill(func(i int) any { return float64(a.Value(i)) })
		return core.TypeFloat, values, nil
	case *array.Float64:
		fill(func(i int) any { return a.Value(i) })
		return core.TypeFloat, values, nil
	case *array.String:
		fill(func(i int) any { return a.Value(i) })
		return core.TypeString, values, nil
	case *array.LargeString:
		fill(func(i int) any { return a.Value(i) })
		return core.TypeString, values, nil
	case *array.Boolean:
		fill(func(i int) any { return a.Value(i) })
		return core.TypeBoolean, values, nil
	case *array.Timestamp:
		unit := a.DataType().(*arrow.TimestampType).Unit
		fill(func(i int) any { return a.Value(i).ToTime(unit).UTC() })
		return core.TypeTimestamp, values, nil
	case *array.Date32:
		fill(func(i int) any { return a.Value(i).ToTime().UTC() })
		return core.TypeTimestamp, values, nil
	case *array.Date64:
		fill(func(i int) any { return a.Value(i).ToTime().UTC() })
		return core.TypeTimestamp, values, nil
	case *array.Binary:
		fill(func(i int) any {
			v := a.Value(i)
			out := make([]byte, len(v))
			copy(out, v)
			return out
		})
		return core.TypeBinary, values, nil
	case *array.Null:
		fill(func(int) any { return nil })
		return core.TypeNull, values, nil
	default:
		return 0, nil, fmt.Errorf("unsupported arrow type %s", arr.DataType())
	}
}
