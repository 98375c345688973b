// Package duckdb provides the DuckDB SQL dialect definition used when
// talking to GizmoSQL servers, whose execution engine is DuckDB.
//
// Import this package with a blank identifier to register the dialect:
//
//	import _ "github.com/flightbridge/flightbridge/pkg/dialects/duckdb"
package duckdb

import (
	"github.com/flightbridge/flightbridge/pkg/core"
	"github.com/flightbridge/flightbridge/pkg/dialect"
)

// DuckDB is the DuckDB dialect configuration.
var DuckDB = newDuckDB()

func newDuckDB() *dialect.Dialect {
	d := dialect.New("duckdb",
		"all", "analyse", "analyze", "and", "any", "array", "as", "asc",
		"both", "case", "cast", "check", "collate", "column", "constraint",
		"create", "default", "deferrable", "desc", "describe", "distinct",
		"do", "else", "end", "except", "false", "fetch", "for", "foreign",
		"from", "grant", "group", "having", "in", "initially", "intersect",
		"into", "lateral", "leading", "limit", "not", "null", "offset",
		"on", "only", "or", "order", "pivot", "placing", "primary",
		"qualify", "references", "returning", "select", "show", "some",
		"summarize", "table", "then", "to", "trailing", "true", "union",
		"unique", "unpivot", "using", "variadic", "when", "where", "window",
		"with",
	)

	d.DefaultCatalog = "main"

	d.Identifiers = dialect.IdentifierConfig{
		QuoteStart: `"`,
		QuoteEnd:   `"`,
		Escape:     `""`,
	}

	d.Literals = dialect.Literals{
		StringQuote:       "'",
		StringEscape:      "''",
		TimestampLayout:   "2006-01-02 15:04:05.000000",
		TimestampTemplate: "TIMESTAMP '%s'",
		BinaryTemplate:    "'%s'::BLOB",

		// DuckDB only accepts non-finite doubles as cast strings.
		NonFiniteFloatTemplate: "'%s'::DOUBLE",

		True:  "TRUE",
		False: "FALSE",
		Null:  "NULL",
	}

	d.Statements = dialect.Statements{
		CatalogKeyword:    "SCHEMA",
		UseKeyword:        "USE",
		Begin:             "BEGIN TRANSACTION",
		Commit:            "COMMIT",
		Rollback:          "ROLLBACK",
		SupportsOrReplace: true,
		SupportsComments:  true,
	}

	d.TypeNames = map[core.ColumnType]string{
		core.TypeInteger:   "BIGINT",
		core.TypeFloat:     "DOUBLE",
		core.TypeString:    "VARCHAR",
		core.TypeBoolean:   "BOOLEAN",
		core.TypeTimestamp: "TIMESTAMP",
		core.TypeBinary:    "BLOB",
		// TypeNull has no DDL spelling; creating a column of it is
		// unsupported by design.
	}

	return d
}

func init() {
	// Register the DuckDB dialect and set it as default
	dialect.Register(DuckDB)
	dialect.SetDefault(DuckDB)
}
