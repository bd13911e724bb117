package migration

import (
	"time"

	"github.com/ksred/hoopstats/internal/schema"
)

// TransformFunc rewrites one record. It must be a pure function of the
// record: no cross-row state, so parallel and sequential execution produce
// identical results.
type TransformFunc func(record schema.Record) (schema.Record, error)

// Function is a named, versioned transform applied to existing rows to
// backfill or recompute derived columns. Version and ContentHash are
// supplied by the caller and together identify the transform's logic;
// re-registering the same pair under the same name is idempotent, while a
// differing pair under the same name is rejected so modified logic cannot
// silently run under an old name.
type Function struct {
	Name          string
	Description   string
	Transform     TransformFunc
	TargetColumns []string
	SourceColumns []string
	Version       string
	ContentHash   string
	CreatedAt     time.Time
}

// sameIdentity reports whether two registrations carry identical logic.
func (f Function) sameIdentity(other Function) bool {
	return f.Version == other.Version && f.ContentHash == other.ContentHash
}
