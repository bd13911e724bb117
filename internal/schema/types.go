package schema

import (
	"fmt"
	"time"
)

// Record is a single extracted row: column name to scalar value.
// A nil value means the source page had no value for that column.
type Record map[string]interface{}

// ColumnType is the semantic type inferred for a column.
type ColumnType int

// Type ranks form a total order from most specific to most permissive.
// Widening two types picks the higher rank, so a single string-valued
// sample forces the whole column to string.
const (
	TypeBoolean ColumnType = iota
	TypeInteger
	TypeFloat
	TypeDate
	TypeDateTime
	TypeString
)

// String returns the canonical name for the type.
func (t ColumnType) String() string {
	switch t {
	case TypeBoolean:
		return "boolean"
	case TypeInteger:
		return "integer"
	case TypeFloat:
		return "float"
	case TypeDate:
		return "date"
	case TypeDateTime:
		return "datetime"
	default:
		return "string"
	}
}

// Widen returns the more permissive of the two types.
func Widen(a, b ColumnType) ColumnType {
	if a > b {
		return a
	}
	return b
}

// ColumnDescriptor describes the inferred shape of one column across a
// batch of records. Descriptors are derived fresh per detection pass and
// never persisted directly.
type ColumnDescriptor struct {
	Name              string     `json:"name"`
	Type              ColumnType `json:"-"`
	TypeName          string     `json:"type"`
	Nullable          bool       `json:"nullable"`
	MaxObservedLength int        `json:"max_observed_length"`
	SQLType           string     `json:"sql_type"`
}

// Change operations produced by the detector.
const (
	OpAdd    = "add"
	OpModify = "modify"
	OpRemove = "remove"
)

// ChangeRecord is one structural change derived from comparing inferred
// descriptors against a live table. Remove operations are never
// auto-applied; they are only surfaced for manual confirmation.
type ChangeRecord struct {
	Operation     string            `json:"operation"`
	TableName     string            `json:"table_name"`
	ColumnName    string            `json:"column_name"`
	OldDefinition *ColumnDescriptor `json:"old_definition,omitempty"`
	NewDefinition *ColumnDescriptor `json:"new_definition,omitempty"`
	Reason        string            `json:"reason"`
	AppliedAt     *time.Time        `json:"applied_at,omitempty"`
	Error         string            `json:"error,omitempty"`
}

func (c ChangeRecord) String() string {
	return fmt.Sprintf("%s %s.%s", c.Operation, c.TableName, c.ColumnName)
}
