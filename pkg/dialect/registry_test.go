package dialect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	d := New("testdb")
	Register(d)

	got, ok := Get("testdb")
	require.True(t, ok)
	assert.Same(t, d, got)

	// Lookup is case-insensitive.
	got, ok = Get("TestDB")
	require.True(t, ok)
	assert.Same(t, d, got)

	_, ok = Get("no-such-dialect")
	assert.False(t, ok)

	assert.Contains(t, List(), "testdb")
}

func TestQuoteIdent(t *testing.T) {
	d := New("q", "select")
	d.Identifiers = IdentifierConfig{QuoteStart: `"`, QuoteEnd: `"`, Escape: `""`}

	tests := []struct {
		name  string
		ident string
		want  string
	}{
		{"plain lowercase passes through", "orders", "orders"},
		{"underscore passes through", "order_items", "order_items"},
		{"uppercase is quoted", "Orders", `"Orders"`},
		{"space is quoted", "order items", `"order items"`},
		{"leading digit is quoted", "1st", `"1st"`},
		{"reserved word is quoted", "select", `"select"`},
		{"embedded quote is escaped", `we"ird`, `"we""ird"`},
		{"empty is quoted", "", `""`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, d.QuoteIdent(tt.ident))
		})
	}
}

func TestQualifyTable(t *testing.T) {
	d := New("q")
	d.Identifiers = IdentifierConfig{QuoteStart: `"`, QuoteEnd: `"`, Escape: `""`}

	assert.Equal(t, "analytics.orders", d.QualifyTable("orders", "analytics"))
	assert.Equal(t, "orders", d.QualifyTable("orders", ""))
	// Already-qualified references keep their own catalog.
	assert.Equal(t, "raw.orders", d.QualifyTable("raw.orders", "analytics"))
	assert.Equal(t, `"My Cat".orders`, d.QualifyTable("My Cat.orders", ""))
}
