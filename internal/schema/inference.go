package schema

import (
	"regexp"
	"time"
)

// Storage width tiers for inferred string columns. Widths are padded past
// the observed maximum so small growth on future pages does not force a
// re-migration.
const (
	varcharSmall = "VARCHAR(100)"
	varcharLarge = "VARCHAR(500)"
	textType     = "TEXT"
)

// maxSampleSize caps how many records a detection pass inspects per column.
const maxSampleSize = 100

var (
	datePatterns = []*regexp.Regexp{
		regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`),
		regexp.MustCompile(`^\d{2}/\d{2}/\d{4}$`),
		regexp.MustCompile(`^\d{1,2}/\d{1,2}/\d{4}$`),
	}
	datetimePatterns = []*regexp.Regexp{
		regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}`),
		regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}`),
	}
)

// InferenceEngine derives column descriptors from sampled record values.
type InferenceEngine struct {
	sampleSize int
}

// NewInferenceEngine returns an engine sampling at most sampleSize records
// per pass. Zero or negative means the default cap of 100.
func NewInferenceEngine(sampleSize int) *InferenceEngine {
	if sampleSize <= 0 {
		sampleSize = maxSampleSize
	}
	return &InferenceEngine{sampleSize: sampleSize}
}

// InferColumns analyzes a batch of records and returns one descriptor per
// column seen in the sample, keyed by column name.
func (e *InferenceEngine) InferColumns(records []Record) map[string]*ColumnDescriptor {
	columns := make(map[string]*ColumnDescriptor)
	if len(records) == 0 {
		return columns
	}

	sample := records
	if len(sample) > e.sampleSize {
		sample = sample[:e.sampleSize]
	}

	seen := make(map[string]bool)
	for _, record := range sample {
		for name, value := range record {
			col, ok := columns[name]
			if !ok {
				col = &ColumnDescriptor{Name: name}
				columns[name] = col
			}

			// Absent values only affect nullability, never the type rank.
			if isNull(value) {
				col.Nullable = true
				continue
			}

			inferred := InferValueType(value)
			if !seen[name] {
				col.Type = inferred
				seen[name] = true
			} else {
				col.Type = Widen(col.Type, inferred)
			}

			if s, ok := value.(string); ok && len(s) > col.MaxObservedLength {
				col.MaxObservedLength = len(s)
			}
		}
	}

	// Columns missing from some sampled records are nullable too.
	for name, col := range columns {
		if !col.Nullable {
			for _, record := range sample {
				if _, present := record[name]; !present {
					col.Nullable = true
					break
				}
			}
		}
		if !seen[name] {
			// Only nulls observed for this column.
			col.Type = TypeString
		}
		col.TypeName = col.Type.String()
		col.SQLType = sqlTypeFor(col)
	}

	return columns
}

// InferValueType maps a single non-null value to its most specific type.
// Anything that cannot be parsed more specifically falls through to string.
func InferValueType(value interface{}) ColumnType {
	switch v := value.(type) {
	case bool:
		return TypeBoolean
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return TypeInteger
	case float32:
		return TypeFloat
	case float64:
		return TypeFloat
	case time.Time:
		return TypeDateTime
	case string:
		if looksLikeDate(v) {
			return TypeDate
		}
		if looksLikeDateTime(v) {
			return TypeDateTime
		}
		return TypeString
	default:
		return TypeString
	}
}

func isNull(value interface{}) bool {
	if value == nil {
		return true
	}
	if s, ok := value.(string); ok && s == "" {
		return true
	}
	return false
}

func looksLikeDate(s string) bool {
	for _, p := range datePatterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

func looksLikeDateTime(s string) bool {
	for _, p := range datetimePatterns {
		if p.MatchString(s) {
			return true
		}
	}
	return false
}

func sqlTypeFor(col *ColumnDescriptor) string {
	switch col.Type {
	case TypeBoolean:
		return "BOOLEAN"
	case TypeInteger:
		return "INTEGER"
	case TypeFloat:
		return "FLOAT"
	case TypeDate:
		return "DATE"
	case TypeDateTime:
		return "TIMESTAMP"
	default:
		switch {
		case col.MaxObservedLength <= 50:
			return varcharSmall
		case col.MaxObservedLength <= 255:
			return varcharLarge
		default:
			return textType
		}
	}
}
