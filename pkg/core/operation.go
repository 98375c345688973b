package core

// Operation is a dialect-neutral description of a SQL-level intent. Operations
// are produced by the orchestration layer and consumed by a dialect
// translator; they carry no engine-specific syntax.
//
// The set of operations is open-ended: integrating a new orchestration
// construct means adding a new variant here plus a rendering rule in the
// dialect, not new executor control flow.
type Operation interface {
	// Name returns a stable identifier for the operation kind, used in error
	// context and logging.
	Name() string

	isOperation()
}

// ColumnDef describes one column of a table being created.
type ColumnDef struct {
	Name     string
	Type     ColumnType
	Nullable bool
}

// CreateTable creates a table with the given columns.
type CreateTable struct {
	Table       string
	Columns     []ColumnDef
	IfNotExists bool
	OrReplace   bool
}

// InsertRows inserts the rows of a batch into a table using row-wise DML.
// For large loads the bulk ingestion path should be used instead.
type InsertRows struct {
	Table string
	Batch *Batch
}

// RawSQL executes pre-rendered SQL text as-is. The catalog qualification and
// quoting rules of the dialect do not apply; the text is the caller's
// responsibility.
type RawSQL struct {
	SQL string
}

// CreateCatalog creates a catalog (database/schema namespace). When
// IfNotExists is false, creating an existing catalog is an error.
type CreateCatalog struct {
	Catalog     string
	IfNotExists bool
}

// DropCatalog drops a catalog. Dropping the active catalog of the issuing
// connection is rejected before reaching the server.
type DropCatalog struct {
	Catalog string
}

// UseCatalog switches the active catalog context for subsequent statements.
type UseCatalog struct {
	Catalog string
}

// CommentOn attaches a comment to a table, or to one of its columns when
// Column is non-empty.
type CommentOn struct {
	Table   string
	Column  string
	Comment string
}

func (CreateTable) Name() string   { return "create table" }
func (InsertRows) Name() string    { return "insert" }
func (RawSQL) Name() string        { return "sql" }
func (CreateCatalog) Name() string { return "create catalog" }
func (DropCatalog) Name() string   { return "drop catalog" }
func (UseCatalog) Name() string    { return "use catalog" }
func (CommentOn) Name() string     { return "comment" }

func (CreateTable) isOperation()   {}
func (InsertRows) isOperation()    {}
func (RawSQL) isOperation()        {}
func (CreateCatalog) isOperation() {}
func (DropCatalog) isOperation()   {}
func (UseCatalog) isOperation()    {}
func (CommentOn) isOperation()     {}
