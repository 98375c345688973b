package dialect

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/flightbridge/flightbridge/pkg/core"
)

// Render translates an abstract operation into native SQL text under the
// given catalog context. Rendering is deterministic: identical operation plus
// identical catalog always yields byte-identical output.
//
// Operations with no representable equivalent in this dialect fail with
// *core.UnsupportedOperation; nothing is silently approximated.
func (d *Dialect) Render(op core.Operation, catalog string) (string, error) {
	switch o := op.(type) {
	case core.RawSQL:
		return o.SQL, nil
	case core.CreateTable:
		return d.renderCreateTable(o, catalog)
	case core.InsertRows:
		return d.renderInsertRows(o, catalog)
	case core.CreateCatalog:
		if o.IfNotExists {
			return fmt.Sprintf("CREATE %s IF NOT EXISTS %s", d.Statements.CatalogKeyword, d.QuoteIdent(o.Catalog)), nil
		}
		return fmt.Sprintf("CREATE %s %s", d.Statements.CatalogKeyword, d.QuoteIdent(o.Catalog)), nil
	case core.DropCatalog:
		return fmt.Sprintf("DROP %s %s", d.Statements.CatalogKeyword, d.QuoteIdent(o.Catalog)), nil
	case core.UseCatalog:
		return fmt.Sprintf("%s %s", d.Statements.UseKeyword, d.QuoteIdent(o.Catalog)), nil
	case core.CommentOn:
		return d.renderCommentOn(o, catalog)
	default:
		return "", &core.UnsupportedOperation{Dialect: d.Name, Op: op.Name(), Detail: "unknown operation variant"}
	}
}

func (d *Dialect) renderCreateTable(o core.CreateTable, catalog string) (string, error) {
	if o.OrReplace && !d.Statements.SupportsOrReplace {
		return "", &core.UnsupportedOperation{Dialect: d.Name, Op: o.Name(), Detail: "CREATE OR REPLACE is not available"}
	}
	if o.OrReplace && o.IfNotExists {
		return "", &core.UnsupportedOperation{Dialect: d.Name, Op: o.Name(), Detail: "OR REPLACE and IF NOT EXISTS are mutually exclusive"}
	}
	if len(o.Columns) == 0 {
		return "", &core.UnsupportedOperation{Dialect: d.Name, Op: o.Name(), Detail: "table requires at least one column"}
	}

	var sb strings.Builder
	sb.WriteString("CREATE ")
	if o.OrReplace {
		sb.WriteString("OR REPLACE ")
	}
	sb.WriteString("TABLE ")
	if o.IfNotExists {
		sb.WriteString("IF NOT EXISTS ")
	}
	sb.WriteString(d.QualifyTable(o.Table, catalog))
	sb.WriteString(" (")
	for i, col := range o.Columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		typeName, ok := d.TypeName(col.Type)
		if !ok {
			return "", &core.UnsupportedOperation{
				Dialect: d.Name,
				Op:      o.Name(),
				Detail:  fmt.Sprintf("no native type for column %q of type %s", col.Name, col.Type),
			}
		}
		sb.WriteString(d.QuoteIdent(col.Name))
		sb.WriteString(" ")
		sb.WriteString(typeName)
		if !col.Nullable {
			sb.WriteString(" NOT NULL")
		}
	}
	sb.WriteString(")")
	return sb.String(), nil
}

func (d *Dialect) renderInsertRows(o core.InsertRows, catalog string) (string, error) {
	if o.Batch == nil || o.Batch.NumRows() == 0 {
		return "", &core.UnsupportedOperation{Dialect: d.Name, Op: o.Name(), Detail: "insert requires a non-empty batch"}
	}

	columns := o.Batch.Columns()

	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(d.QualifyTable(o.Table, catalog))
	sb.WriteString(" (")
	for i, col := range columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(d.QuoteIdent(col.Name))
	}
	sb.WriteString(") VALUES ")

	for row := 0; row < o.Batch.NumRows(); row++ {
		if row > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for i, col := range columns {
			if i > 0 {
				sb.WriteString(", ")
			}
			lit, err := d.Literal(col.Values[row])
			if err != nil {
				return "", &core.UnsupportedOperation{Dialect: d.Name, Op: o.Name(), Detail: err.Error()}
			}
			sb.WriteString(lit)
		}
		sb.WriteString(")")
	}
	return sb.String(), nil
}

func (d *Dialect) renderCommentOn(o core.CommentOn, catalog string) (string, error) {
	if !d.Statements.SupportsComments {
		return "", &core.UnsupportedOperation{Dialect: d.Name, Op: o.Name(), Detail: "COMMENT ON is not available"}
	}
	comment, err := d.Literal(o.Comment)
	if err != nil {
		return "", err
	}
	target := d.QualifyTable(o.Table, catalog)
	if o.Column != "" {
		return fmt.Sprintf("COMMENT ON COLUMN %s.%s IS %s", target, d.QuoteIdent(o.Column), comment), nil
	}
	return fmt.Sprintf("COMMENT ON TABLE %s IS %s", target, comment), nil
}

// Literal renders a Go value as a SQL literal according to the dialect's
// literal rules. Supported value types follow the batch type universe.
func (d *Dialect) Literal(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return d.Literals.Null, nil
	case int64:
		return strconv.FormatInt(val, 10), nil
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return d.nonFiniteLiteral(val)
		}
		return strconv.FormatFloat(val, 'g', -1, 64), nil
	case string:
		escaped := strings.ReplaceAll(val, d.Literals.StringQuote, d.Literals.StringEscape)
		return d.Literals.StringQuote + escaped + d.Literals.StringQuote, nil
	case bool:
		if val {
			return d.Literals.True, nil
		}
		return d.Literals.False, nil
	case time.Time:
		return fmt.Sprintf(d.Literals.TimestampTemplate, val.UTC().Format(d.Literals.TimestampLayout)), nil
	case []byte:
		var hexed strings.Builder
		for _, b := range val {
			fmt.Fprintf(&hexed, `\x%02X`, b)
		}
		return fmt.Sprintf(d.Literals.BinaryTemplate, hexed.String()), nil
	default:
		return "", fmt.Errorf("no literal form for value of type %T", v)
	}
}

// nonFiniteLiteral renders NaN and the infinities through the dialect's cast
// template. Bare NaN/Inf tokens are not valid SQL.
func (d *Dialect) nonFiniteLiteral(val float64) (string, error) {
	if d.Literals.NonFiniteFloatTemplate == "" {
		return "", fmt.Errorf("no literal form for non-finite float %v", val)
	}
	switch {
	case math.IsInf(val, 1):
		return fmt.Sprintf(d.Literals.NonFiniteFloatTemplate, "Infinity"), nil
	case math.IsInf(val, -1):
		return fmt.Sprintf(d.Literals.NonFiniteFloatTemplate, "-Infinity"), nil
	default:
		return fmt.Sprintf(d.Literals.NonFiniteFloatTemplate, "NaN"), nil
	}
}
