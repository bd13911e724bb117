package schema

import (
	"github.com/rs/zerolog"
)

// Observer is notified when schema changes are detected for a source.
// Notification is best effort: an observer error is logged and never
// propagated into the ingestion path.
type Observer interface {
	NotifySchemaChanges(changes []ChangeRecord, sourceName string) error
}

// LogObserver is the default observer; it only writes the changes to the log.
type LogObserver struct {
	Logger zerolog.Logger
}

func (o LogObserver) NotifySchemaChanges(changes []ChangeRecord, sourceName string) error {
	for _, change := range changes {
		o.Logger.Info().
			Str("source", sourceName).
			Str("operation", change.Operation).
			Str("table", change.TableName).
			Str("column", change.ColumnName).
			Msg("schema change detected")
	}
	return nil
}

// FeedbackController decides whether ingestion continues when schema
// changes are detected.
type FeedbackController struct {
	pauseOnChanges bool
	observer       Observer
	logger         zerolog.Logger
}

// NewFeedbackController creates a controller. A nil observer falls back to
// the log observer.
func NewFeedbackController(pauseOnChanges bool, observer Observer, logger zerolog.Logger) *FeedbackController {
	if observer == nil {
		observer = LogObserver{Logger: logger}
	}
	return &FeedbackController{
		pauseOnChanges: pauseOnChanges,
		observer:       observer,
		logger:         logger,
	}
}

// OnChangesDetected reports detected changes and returns whether ingestion
// should continue. No changes means continue with no side effects.
func (f *FeedbackController) OnChangesDetected(changes []ChangeRecord, sourceName string) bool {
	if len(changes) == 0 {
		return true
	}

	for _, change := range changes {
		f.logger.Warn().
			Str("source", sourceName).
			Str("operation", change.Operation).
			Str("table", change.TableName).
			Str("column", change.ColumnName).
			Str("reason", change.Reason).
			Msg("schema change detected")
	}

	if err := f.observer.NotifySchemaChanges(changes, sourceName); err != nil {
		f.logger.Error().Err(err).Str("source", sourceName).Msg("schema change notification failed")
	}

	if f.pauseOnChanges {
		f.logger.Warn().
			Str("source", sourceName).
			Int("changes", len(changes)).
			Msg("ingestion paused pending schema change review")
		return false
	}

	return true
}
