package storage

// Capabilities are the dialect-gated feature flags the schema manager
// consults before issuing DDL.
type Capabilities struct {
	// AlterColumnType reports whether the backend supports in-place
	// column type changes.
	AlterColumnType bool
	// AddNotNullColumn reports whether the backend can add a NOT NULL
	// column to an existing table (with a default).
	AddNotNullColumn bool
	// ConcurrentWrites reports whether the backend supports write
	// transactions from multiple connections at once. Single-writer
	// engines must not be written to from parallel workers.
	ConcurrentWrites bool
}

// Dialect abstracts the DDL differences between database backends. Row
// access goes through GORM and needs no dialect hooks; only structural
// statements and identifier quoting differ per engine.
type Dialect interface {
	Name() string
	Capabilities() Capabilities

	// QuoteIdentifier quotes a table or column name for safe interpolation
	// into DDL statements.
	QuoteIdentifier(name string) string

	// AddColumnSQL builds the statement adding a column. When the backend
	// cannot honor NOT NULL on added columns the dialect downgrades to a
	// nullable column.
	AddColumnSQL(table, column, sqlType string, nullable bool) string

	// AlterColumnTypeSQL builds the statement widening a column's type.
	// ok is false when the backend has no in-place type change.
	AlterColumnTypeSQL(table, column, sqlType string) (sql string, ok bool)
}

// ForDB picks the dialect matching a GORM connection by driver name.
func ForDB(driverName string) Dialect {
	switch driverName {
	case "postgres":
		return PostgresDialect{}
	default:
		return SQLiteDialect{}
	}
}
