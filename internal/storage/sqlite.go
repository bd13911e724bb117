package storage

import (
	"fmt"
	"strings"
)

// SQLiteDialect covers the embedded backend used for tests and local
// scraping runs. SQLite cannot change a column's type in place, cannot add
// NOT NULL columns without table rebuilds, and allows only one writer at a
// time, so all three capabilities are off.
type SQLiteDialect struct{}

func (SQLiteDialect) Name() string { return "sqlite" }

func (SQLiteDialect) Capabilities() Capabilities {
	return Capabilities{
		AlterColumnType:  false,
		AddNotNullColumn: false,
		ConcurrentWrites: false,
	}
}

func (SQLiteDialect) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d SQLiteDialect) AddColumnSQL(table, column, sqlType string, nullable bool) string {
	// Added columns are always nullable here; NOT NULL requires a rebuild.
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
		d.QuoteIdentifier(table), d.QuoteIdentifier(column), sqlType)
}

func (SQLiteDialect) AlterColumnTypeSQL(table, column, sqlType string) (string, bool) {
	return "", false
}
