package schema

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ksred/hoopstats/internal/storage"
)

// upgrades maps a normalized live column type to the set of required types
// that represent a strict widening. Anything not listed is same-or-narrower
// and produces no change.
var upgrades = map[string][]string{
	"INTEGER": {"FLOAT", "TEXT"},
	"VARCHAR": {"TEXT"},
	"FLOAT":   {"TEXT"},
	"DATE":    {"TIMESTAMP", "TEXT"},
	"BOOLEAN": {"TEXT"},
}

// Detector diffs a table's live column set against the columns required by
// a batch of incoming records.
type Detector struct {
	store     *storage.Store
	inference *InferenceEngine
	logger    zerolog.Logger
}

// NewDetector creates a detector using the given store for introspection.
func NewDetector(store *storage.Store, inference *InferenceEngine, logger zerolog.Logger) *Detector {
	if inference == nil {
		inference = NewInferenceEngine(0)
	}
	return &Detector{store: store, inference: inference, logger: logger}
}

// Detect compares the records' inferred columns with the live schema and
// returns the structural changes needed. An empty batch is a no-op. A table
// that cannot be introspected degrades to "no existing columns", so every
// required column surfaces as an add.
func (d *Detector) Detect(ctx context.Context, tableName string, records []Record) []ChangeRecord {
	if len(records) == 0 {
		return nil
	}

	existing := d.existingColumns(ctx, tableName)
	required := d.inference.InferColumns(records)

	names := make([]string, 0, len(required))
	for name := range required {
		names = append(names, name)
	}
	sort.Strings(names)

	var changes []ChangeRecord

	for _, name := range names {
		if _, ok := existing[name]; ok {
			continue
		}
		changes = append(changes, ChangeRecord{
			Operation:     OpAdd,
			TableName:     tableName,
			ColumnName:    name,
			NewDefinition: required[name],
			Reason:        "found in scraped data but not in existing schema",
		})
	}

	for _, name := range names {
		live, ok := existing[name]
		if !ok {
			continue
		}
		col := required[name]
		liveType := normalizeSQLType(live.Type)
		requiredType := normalizeSQLType(col.SQLType)
		if !isUpgrade(liveType, requiredType) {
			continue
		}
		old := &ColumnDescriptor{
			Name:     name,
			Nullable: live.Nullable,
			SQLType:  live.Type,
		}
		changes = append(changes, ChangeRecord{
			Operation:     OpModify,
			TableName:     tableName,
			ColumnName:    name,
			OldDefinition: old,
			NewDefinition: col,
			Reason:        fmt.Sprintf("type upgrade needed: %s -> %s", liveType, requiredType),
		})
	}

	return changes
}

func (d *Detector) existingColumns(ctx context.Context, tableName string) map[string]storage.ColumnInfo {
	columns, err := d.store.ListColumns(ctx, tableName)
	if err != nil {
		d.logger.Warn().Err(err).Str("table", tableName).Msg("could not inspect table")
		return nil
	}
	byName := make(map[string]storage.ColumnInfo, len(columns))
	for _, col := range columns {
		byName[col.Name] = col
	}
	return byName
}

func isUpgrade(liveType, requiredType string) bool {
	for _, target := range upgrades[liveType] {
		if target == requiredType {
			return true
		}
	}
	return false
}

// normalizeSQLType collapses dialect-specific type names onto the
// vocabulary used by the upgrade table.
func normalizeSQLType(sqlType string) string {
	t := strings.ToUpper(strings.TrimSpace(sqlType))
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = t[:i]
	}
	t = strings.TrimSpace(t)

	switch t {
	case "INT", "INT2", "INT4", "INT8", "SMALLINT", "BIGINT", "SERIAL", "BIGSERIAL", "INTEGER":
		return "INTEGER"
	case "VARCHAR", "CHARACTER VARYING", "CHARACTER", "CHAR", "NVARCHAR":
		return "VARCHAR"
	case "FLOAT", "FLOAT4", "FLOAT8", "REAL", "DOUBLE", "DOUBLE PRECISION", "NUMERIC", "DECIMAL":
		return "FLOAT"
	case "BOOL", "BOOLEAN":
		return "BOOLEAN"
	case "TIMESTAMP", "TIMESTAMPTZ", "DATETIME", "TIMESTAMP WITH TIME ZONE", "TIMESTAMP WITHOUT TIME ZONE":
		return "TIMESTAMP"
	case "DATE":
		return "DATE"
	case "TEXT", "CLOB":
		return "TEXT"
	default:
		return t
	}
}
