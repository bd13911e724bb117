package schema

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/ksred/hoopstats/internal/storage"
)

// Options configures the dynamic column system.
type Options struct {
	// AutoMigrate applies detected changes instead of only reporting them.
	AutoMigrate bool
	// PauseOnChanges halts ingestion whenever changes are detected,
	// regardless of AutoMigrate.
	PauseOnChanges bool
	// SampleSize caps how many records a detection pass inspects.
	SampleSize int
	// Observer receives change notifications; nil means log only.
	Observer Observer
}

// ProcessResult is returned to the ingestion pipeline for every batch.
type ProcessResult struct {
	ChangesDetected   int            `json:"changes_detected"`
	Changes           []ChangeRecord `json:"changes"`
	MigrationApplied  bool           `json:"migration_applied"`
	MigrationResult   *ApplyResult   `json:"migration_result,omitempty"`
	ContinueIngestion bool           `json:"continue_ingestion"`
}

// System orchestrates detection, feedback, and migration per ingestion
// batch. It is the single entry point the pipeline consumes.
type System struct {
	detector    *Detector
	feedback    *FeedbackController
	manager     *Manager
	autoMigrate bool
	logger      zerolog.Logger
}

// NewSystem wires the dynamic column components over one store.
func NewSystem(store *storage.Store, opts Options, logger zerolog.Logger) *System {
	inference := NewInferenceEngine(opts.SampleSize)
	return &System{
		detector:    NewDetector(store, inference, logger),
		feedback:    NewFeedbackController(opts.PauseOnChanges, opts.Observer, logger),
		manager:     NewManager(store, logger),
		autoMigrate: opts.AutoMigrate,
		logger:      logger,
	}
}

// Process runs detection for one scraped batch and decides whether
// ingestion continues. A failed migration always halts the pipeline, even
// when the feedback policy said to proceed.
func (s *System) Process(ctx context.Context, tableName string, records []Record, sourceName string) ProcessResult {
	changes := s.detector.Detect(ctx, tableName, records)

	result := ProcessResult{
		ChangesDetected:   len(changes),
		Changes:           changes,
		ContinueIngestion: true,
	}
	if len(changes) == 0 {
		return result
	}

	result.ContinueIngestion = s.feedback.OnChangesDetected(changes, sourceName)

	if s.autoMigrate && result.ContinueIngestion {
		applyResult, err := s.manager.Apply(ctx, changes)
		result.MigrationResult = applyResult
		result.MigrationApplied = applyResult != nil && len(applyResult.Applied) > 0

		if err != nil {
			s.logger.Error().Err(err).Str("table", tableName).Msg("schema migration failed")
			result.ContinueIngestion = false
		} else if len(applyResult.Failed) > 0 {
			s.logger.Error().
				Int("failed", len(applyResult.Failed)).
				Str("table", tableName).
				Msg("some schema changes failed to apply")
			result.ContinueIngestion = false
		}
	}

	return result
}
