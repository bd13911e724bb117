package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/ksred/hoopstats/internal/models"
	"github.com/ksred/hoopstats/internal/storage"
)

// ApplyResult classifies each attempted change. Changes are attempted
// independently, so one failure never aborts its siblings; the caller
// decides from the aggregate whether the owning pipeline halts.
type ApplyResult struct {
	Applied []ChangeRecord `json:"applied"`
	Failed  []ChangeRecord `json:"failed"`
	Skipped []ChangeRecord `json:"skipped"`
}

// Manager applies detected schema changes as DDL against the live store
// and archives every applied change for audit.
type Manager struct {
	store  *storage.Store
	logger zerolog.Logger
}

// NewManager creates a schema migration manager over the given store.
func NewManager(store *storage.Store, logger zerolog.Logger) *Manager {
	return &Manager{store: store, logger: logger}
}

// Apply executes the given changes. Remove operations are never
// auto-applied and always land in Skipped. The returned error is non-nil
// only when archiving the applied changes failed; per-change DDL failures
// are reported through the result.
func (m *Manager) Apply(ctx context.Context, changes []ChangeRecord) (*ApplyResult, error) {
	result := &ApplyResult{}
	caps := m.store.Dialect().Capabilities()

	for _, change := range changes {
		switch change.Operation {
		case OpAdd:
			if err := m.addColumn(ctx, change); err != nil {
				m.logger.Error().Err(err).Stringer("change", change).Msg("failed to apply schema change")
				change.Error = err.Error()
				result.Failed = append(result.Failed, change)
				continue
			}
			now := time.Now().UTC()
			change.AppliedAt = &now
			result.Applied = append(result.Applied, change)

		case OpModify:
			if !caps.AlterColumnType {
				m.logger.Warn().Stringer("change", change).
					Str("backend", m.store.Dialect().Name()).
					Msg("backend does not support column type changes, skipping")
				change.Reason = fmt.Sprintf("%s (unsupported on %s)", change.Reason, m.store.Dialect().Name())
				result.Skipped = append(result.Skipped, change)
				continue
			}
			if err := m.modifyColumn(ctx, change); err != nil {
				m.logger.Error().Err(err).Stringer("change", change).Msg("failed to apply schema change")
				change.Error = err.Error()
				result.Failed = append(result.Failed, change)
				continue
			}
			now := time.Now().UTC()
			change.AppliedAt = &now
			result.Applied = append(result.Applied, change)

		case OpRemove:
			m.logger.Warn().Stringer("change", change).Msg("column removal requires manual confirmation, skipping")
			result.Skipped = append(result.Skipped, change)

		default:
			m.logger.Warn().Str("operation", change.Operation).Msg("unknown schema change operation, skipping")
			result.Skipped = append(result.Skipped, change)
		}
	}

	if err := m.archive(ctx, result.Applied); err != nil {
		return result, fmt.Errorf("failed to archive applied schema changes: %w", err)
	}

	return result, nil
}

func (m *Manager) addColumn(ctx context.Context, change ChangeRecord) error {
	def := change.NewDefinition
	if def == nil {
		return fmt.Errorf("add change for %s.%s has no definition", change.TableName, change.ColumnName)
	}

	m.logger.Info().
		Str("table", change.TableName).
		Str("column", change.ColumnName).
		Str("type", def.SQLType).
		Msg("adding column")
	return m.store.AddColumn(ctx, change.TableName, change.ColumnName, def.SQLType, def.Nullable)
}

func (m *Manager) modifyColumn(ctx context.Context, change ChangeRecord) error {
	def := change.NewDefinition
	if def == nil {
		return fmt.Errorf("modify change for %s.%s has no definition", change.TableName, change.ColumnName)
	}

	m.logger.Info().
		Str("table", change.TableName).
		Str("column", change.ColumnName).
		Str("type", def.SQLType).
		Msg("widening column type")
	return m.store.AlterColumnType(ctx, change.TableName, change.ColumnName, def.SQLType)
}

// archive writes the applied changes into the audit table in a single
// transaction.
func (m *Manager) archive(ctx context.Context, applied []ChangeRecord) error {
	if len(applied) == 0 {
		return nil
	}

	return m.store.DB().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, change := range applied {
			record := &models.SchemaChange{
				TableName:  change.TableName,
				ColumnName: change.ColumnName,
				Operation:  change.Operation,
				Reason:     change.Reason,
				AppliedAt:  *change.AppliedAt,
			}
			if change.OldDefinition != nil {
				raw, err := json.Marshal(change.OldDefinition)
				if err != nil {
					return err
				}
				record.OldDefinition = raw
			}
			if change.NewDefinition != nil {
				raw, err := json.Marshal(change.NewDefinition)
				if err != nil {
					return err
				}
				record.NewDefinition = raw
			}
			if err := tx.Create(record).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
