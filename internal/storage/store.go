package storage

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// ColumnInfo is one live column as reported by introspection.
type ColumnInfo struct {
	Name     string
	Type     string
	Nullable bool
	Default  *string
}

// Store is the backend-agnostic persistence adapter for dynamic tables:
// introspection, structural changes, and row access against table names and
// column sets that are not statically known.
type Store struct {
	db      *gorm.DB
	dialect Dialect
}

// NewStore wraps a GORM connection with the matching dialect.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, dialect: ForDB(db.Dialector.Name())}
}

// NewStoreWithDialect wraps a GORM connection with an explicit dialect.
func NewStoreWithDialect(db *gorm.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect}
}

// WithTx returns a Store bound to the given transaction.
func (s *Store) WithTx(tx *gorm.DB) *Store {
	return &Store{db: tx, dialect: s.dialect}
}

// DB exposes the underlying connection for transaction management.
func (s *Store) DB() *gorm.DB { return s.db }

// Dialect returns the active dialect.
func (s *Store) Dialect() Dialect { return s.dialect }

// HasTable reports whether the table exists.
func (s *Store) HasTable(table string) bool {
	return s.db.Migrator().HasTable(table)
}

// ListColumns introspects the live column set of a table. A missing table
// degrades to an empty column list, never an error.
func (s *Store) ListColumns(ctx context.Context, table string) ([]ColumnInfo, error) {
	db := s.db.WithContext(ctx)
	if !db.Migrator().HasTable(table) {
		return nil, nil
	}

	types, err := db.Migrator().ColumnTypes(table)
	if err != nil {
		return nil, nil
	}

	columns := make([]ColumnInfo, 0, len(types))
	for _, ct := range types {
		info := ColumnInfo{
			Name: ct.Name(),
			Type: ct.DatabaseTypeName(),
		}
		if nullable, ok := ct.Nullable(); ok {
			info.Nullable = nullable
		}
		if def, ok := ct.DefaultValue(); ok {
			info.Default = &def
		}
		columns = append(columns, info)
	}
	return columns, nil
}

// AddColumn issues the dialect's additive column change.
func (s *Store) AddColumn(ctx context.Context, table, column, sqlType string, nullable bool) error {
	sql := s.dialect.AddColumnSQL(table, column, sqlType, nullable)
	if err := s.db.WithContext(ctx).Exec(sql).Error; err != nil {
		return fmt.Errorf("add column %s.%s: %w", table, column, err)
	}
	return nil
}

// AlterColumnType issues the dialect's in-place type widening. The caller
// is expected to consult Dialect().Capabilities() first.
func (s *Store) AlterColumnType(ctx context.Context, table, column, sqlType string) error {
	sql, ok := s.dialect.AlterColumnTypeSQL(table, column, sqlType)
	if !ok {
		return fmt.Errorf("backend %s does not support column type changes", s.dialect.Name())
	}
	if err := s.db.WithContext(ctx).Exec(sql).Error; err != nil {
		return fmt.Errorf("alter column %s.%s: %w", table, column, err)
	}
	return nil
}

// CountRows counts the rows matching the filter. Slice values in the
// filter become IN clauses.
func (s *Store) CountRows(ctx context.Context, table string, filter map[string]interface{}) (int64, error) {
	var count int64
	query := s.db.WithContext(ctx).Table(table)
	if len(filter) > 0 {
		query = query.Where(filter)
	}
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count rows in %s: %w", table, err)
	}
	return count, nil
}

// SelectBatch fetches one offset-addressed slice of rows ordered by id, so
// batch partitions are stable across a run.
func (s *Store) SelectBatch(ctx context.Context, table string, filter map[string]interface{}, limit, offset int) ([]map[string]interface{}, error) {
	var rows []map[string]interface{}
	query := s.db.WithContext(ctx).Table(table)
	if len(filter) > 0 {
		query = query.Where(filter)
	}
	err := query.Order(s.dialect.QuoteIdentifier("id")).
		Limit(limit).Offset(offset).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("select batch from %s: %w", table, err)
	}
	return rows, nil
}

// UpdateRowColumns writes the given column values onto one row by id.
func (s *Store) UpdateRowColumns(ctx context.Context, table string, id interface{}, values map[string]interface{}) error {
	if len(values) == 0 {
		return nil
	}
	err := s.db.WithContext(ctx).Table(table).
		Where("id = ?", id).
		Updates(values).Error
	if err != nil {
		return fmt.Errorf("update row %v in %s: %w", id, table, err)
	}
	return nil
}

// InsertRows appends rows with dynamic column sets to a table.
func (s *Store) InsertRows(ctx context.Context, table string, rows []map[string]interface{}) error {
	if len(rows) == 0 {
		return nil
	}
	if err := s.db.WithContext(ctx).Table(table).Create(rows).Error; err != nil {
		return fmt.Errorf("insert %d rows into %s: %w", len(rows), table, err)
	}
	return nil
}

// CopyTable snapshots src into a new table dst, rows and all.
func (s *Store) CopyTable(ctx context.Context, src, dst string) error {
	sql := fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM %s",
		s.dialect.QuoteIdentifier(dst), s.dialect.QuoteIdentifier(src))
	if err := s.db.WithContext(ctx).Exec(sql).Error; err != nil {
		return fmt.Errorf("copy table %s to %s: %w", src, dst, err)
	}
	return nil
}

// DropTable removes a table.
func (s *Store) DropTable(ctx context.Context, table string) error {
	sql := fmt.Sprintf("DROP TABLE %s", s.dialect.QuoteIdentifier(table))
	if err := s.db.WithContext(ctx).Exec(sql).Error; err != nil {
		return fmt.Errorf("drop table %s: %w", table, err)
	}
	return nil
}

// RenameTable renames a table in place.
func (s *Store) RenameTable(ctx context.Context, from, to string) error {
	sql := fmt.Sprintf("ALTER TABLE %s RENAME TO %s",
		s.dialect.QuoteIdentifier(from), s.dialect.QuoteIdentifier(to))
	if err := s.db.WithContext(ctx).Exec(sql).Error; err != nil {
		return fmt.Errorf("rename table %s to %s: %w", from, to, err)
	}
	return nil
}
