package ddl

// ColumnDef describes a single column.
//
// Fields:
//   - Name: logical column name (unquoted; quoting happens at render time)
//   - Kind: logical type ("text", "int", ...) mapped per dialect
//   - SQLType: explicit SQL type; overrides Kind when set
//   - Nullable: whether NULL is allowed
//   - PrimaryKey: whether the column is part of the primary key
//   - Default: raw default expression
type ColumnDef struct {
	Name       string
	Kind       string
	SQLType    string
	Nullable   bool
	PrimaryKey bool
	Default    string
}

// TableDef holds the table name (FQN, dotted form such as "schema.table") and
// an ordered list of columns.
type TableDef struct {
	FQN     string
	Columns []ColumnDef
}

// TextTable returns a table of NOT NULL text columns in the given order. The
// users table is built this way.
func TextTable(fqn string, columns []string) TableDef {
	cols := make([]ColumnDef, len(columns))
	for i, c := range columns {
		cols[i] = ColumnDef{Name: c, Kind: "text"}
	}
	return TableDef{FQN: fqn, Columns: cols}
}
