package core

// ColumnMetadata describes one column of an existing table, as reported by
// the engine's information schema.
type ColumnMetadata struct {
	Name     string
	Type     string
	Nullable bool
	Position int
}

// TableMetadata holds metadata about a database table.
type TableMetadata struct {
	Catalog  string
	Schema   string
	Name     string
	Columns  []ColumnMetadata
	RowCount int64
}
