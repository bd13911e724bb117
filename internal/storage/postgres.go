package storage

import (
	"fmt"

	"github.com/lib/pq"
)

// PostgresDialect issues standard PostgreSQL DDL.
type PostgresDialect struct{}

func (PostgresDialect) Name() string { return "postgres" }

func (PostgresDialect) Capabilities() Capabilities {
	return Capabilities{
		AlterColumnType:  true,
		AddNotNullColumn: true,
		ConcurrentWrites: true,
	}
}

func (PostgresDialect) QuoteIdentifier(name string) string {
	return pq.QuoteIdentifier(name)
}

func (d PostgresDialect) AddColumnSQL(table, column, sqlType string, nullable bool) string {
	constraint := "NULL"
	if !nullable {
		// Existing rows need a value, so a NOT NULL add carries a
		// type-appropriate default.
		constraint = "NOT NULL DEFAULT " + defaultLiteralFor(sqlType)
	}
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s %s",
		d.QuoteIdentifier(table), d.QuoteIdentifier(column), sqlType, constraint)
}

func defaultLiteralFor(sqlType string) string {
	switch sqlType {
	case "INTEGER", "FLOAT":
		return "0"
	case "BOOLEAN":
		return "FALSE"
	case "DATE", "TIMESTAMP":
		return "now()"
	default:
		return "''"
	}
}

func (d PostgresDialect) AlterColumnTypeSQL(table, column, sqlType string) (string, bool) {
	return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s USING %s::%s",
		d.QuoteIdentifier(table), d.QuoteIdentifier(column), sqlType,
		d.QuoteIdentifier(column), sqlType), true
}
