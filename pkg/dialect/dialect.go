// Package dialect provides SQL dialect configuration and deterministic
// rendering of abstract operations into engine-native SQL text.
//
// This package contains the public contract for dialect definitions used by
// the query executor and catalog manager. Concrete dialect implementations
// are registered from pkg/dialects/*/ packages.
//
// A dialect is data, not control flow: the type-name map, identifier quoting
// rules, and statement templates fully describe a target engine. Adding a new
// engine means supplying a new mapping, not new rendering logic.
package dialect

import (
	"strings"

	"github.com/flightbridge/flightbridge/pkg/core"
)

// IdentifierConfig defines how identifiers are quoted.
type IdentifierConfig struct {
	// QuoteStart and QuoteEnd delimit a quoted identifier.
	QuoteStart string
	QuoteEnd   string
	// Escape is the sequence that represents QuoteEnd inside a quoted
	// identifier.
	Escape string
}

// Literals defines how typed values are rendered as SQL literals.
type Literals struct {
	// StringQuote delimits string literals; StringEscape represents the
	// quote inside a literal.
	StringQuote  string
	StringEscape string
	// TimestampLayout is the time.Format layout for timestamp literals, and
	// TimestampTemplate wraps the formatted value ("TIMESTAMP '%s'").
	TimestampLayout   string
	TimestampTemplate string
	// BinaryTemplate wraps a hex-encoded byte sequence ("'%s'::BLOB" with
	// \x-escaped bytes).
	BinaryTemplate string
	// NonFiniteFloatTemplate wraps the NaN/Infinity/-Infinity spellings,
	// which most engines only accept as cast strings ("'%s'::DOUBLE").
	// Empty means the dialect has no representation for non-finite floats.
	NonFiniteFloatTemplate string
	// True and False are the boolean literal spellings.
	True  string
	False string
	// Null is the null literal spelling.
	Null string
}

// Statements holds the dialect's statement-level vocabulary.
type Statements struct {
	// CatalogKeyword is the object keyword for catalog DDL ("SCHEMA" or
	// "DATABASE").
	CatalogKeyword string
	// UseKeyword introduces a catalog switch ("USE").
	UseKeyword string
	// Begin, Commit and Rollback are the transaction-control statements.
	Begin    string
	Commit   string
	Rollback string
	// SupportsOrReplace reports whether CREATE OR REPLACE TABLE is legal.
	SupportsOrReplace bool
	// SupportsComments reports whether COMMENT ON is legal.
	SupportsComments bool
}

// Dialect represents a SQL dialect configuration.
type Dialect struct {
	Name        string
	Identifiers IdentifierConfig
	Literals    Literals
	Statements  Statements

	// DefaultCatalog is the catalog assumed when none is configured
	// ("main" for DuckDB).
	DefaultCatalog string

	// TypeNames maps the adapter's generic type universe to engine-native
	// type names. A missing entry means the type is not representable.
	TypeNames map[core.ColumnType]string

	// reservedWords holds keywords that must be quoted as identifiers.
	reservedWords map[string]struct{}
}

// New constructs a Dialect with the given name and reserved words.
func New(name string, reserved ...string) *Dialect {
	d := &Dialect{
		Name:          name,
		reservedWords: make(map[string]struct{}, len(reserved)),
	}
	for _, w := range reserved {
		d.reservedWords[strings.ToLower(w)] = struct{}{}
	}
	return d
}

// IsReserved reports whether word must be quoted when used as an identifier.
func (d *Dialect) IsReserved(word string) bool {
	_, ok := d.reservedWords[strings.ToLower(word)]
	return ok
}

// QuoteIdent quotes an identifier when quoting is required: when it contains
// characters outside the safe set, starts with a digit, or is a reserved
// word. Plain lowercase identifiers pass through unquoted so rendered SQL
// stays readable and byte-stable.
func (d *Dialect) QuoteIdent(ident string) string {
	if d.identNeedsQuoting(ident) {
		escaped := strings.ReplaceAll(ident, d.Identifiers.QuoteEnd, d.Identifiers.Escape)
		return d.Identifiers.QuoteStart + escaped + d.Identifiers.QuoteEnd
	}
	return ident
}

func (d *Dialect) identNeedsQuoting(ident string) bool {
	if ident == "" || d.IsReserved(ident) {
		return true
	}
	for i, r := range ident {
		switch {
		case r >= 'a' && r <= 'z':
		case r == '_':
		case r >= '0' && r <= '9':
			if i == 0 {
				return true
			}
		default:
			return true
		}
	}
	return false
}

// QualifyTable qualifies an unqualified table reference with the active
// catalog. Already-qualified references ("cat.tbl") are quoted part by part
// and left otherwise untouched.
func (d *Dialect) QualifyTable(table, catalog string) string {
	if strings.Contains(table, ".") {
		parts := strings.Split(table, ".")
		for i, p := range parts {
			parts[i] = d.QuoteIdent(p)
		}
		return strings.Join(parts, ".")
	}
	if catalog == "" {
		return d.QuoteIdent(table)
	}
	return d.QuoteIdent(catalog) + "." + d.QuoteIdent(table)
}

// TypeName maps a generic column type to the engine-native type name.
func (d *Dialect) TypeName(t core.ColumnType) (string, bool) {
	name, ok := d.TypeNames[t]
	return name, ok
}
