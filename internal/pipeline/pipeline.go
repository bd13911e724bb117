package pipeline

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ksred/hoopstats/internal/schema"
	"github.com/ksred/hoopstats/internal/storage"
)

// Fetcher downloads one page of raw HTML. Rate limiting, caching, and
// retries live behind this interface.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Extractor turns raw HTML into records, one per table row.
type Extractor interface {
	Extract(html string) ([]schema.Record, error)
}

// Source identifies one scraped page and its target table.
type Source struct {
	Name  string
	URL   string
	Table string
}

// Result summarizes one ingestion pass for a source.
type Result struct {
	Source          string               `json:"source"`
	RecordsFetched  int                  `json:"records_fetched"`
	RecordsInserted int                  `json:"records_inserted"`
	Schema          schema.ProcessResult `json:"schema"`
	Halted          bool                 `json:"halted"`
}

// Pipeline drives fetch, extract, schema reconciliation, and persistence
// for scraped batches.
type Pipeline struct {
	fetcher   Fetcher
	extractor Extractor
	columns   *schema.System
	store     *storage.Store
	logger    zerolog.Logger
}

// New assembles a pipeline. Fetcher and extractor are injected; the
// pipeline owns nothing about how pages are downloaded or parsed.
func New(fetcher Fetcher, extractor Extractor, columns *schema.System, store *storage.Store, logger zerolog.Logger) *Pipeline {
	return &Pipeline{
		fetcher:   fetcher,
		extractor: extractor,
		columns:   columns,
		store:     store,
		logger:    logger,
	}
}

// Ingest processes one source end to end. When schema reconciliation
// halts ingestion, the fetched records are not persisted and the result
// reports the halt.
func (p *Pipeline) Ingest(ctx context.Context, source Source) (*Result, error) {
	html, err := p.fetcher.Fetch(ctx, source.URL)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", source.URL, err)
	}

	records, err := p.extractor.Extract(html)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", source.Name, err)
	}

	result := &Result{
		Source:         source.Name,
		RecordsFetched: len(records),
	}
	if len(records) == 0 {
		return result, nil
	}

	result.Schema = p.columns.Process(ctx, source.Table, records, source.Name)
	if !result.Schema.ContinueIngestion {
		result.Halted = true
		p.logger.Warn().
			Str("source", source.Name).
			Int("changes", result.Schema.ChangesDetected).
			Msg("ingestion halted by schema reconciliation")
		return result, nil
	}

	rows := make([]map[string]interface{}, len(records))
	for i, record := range records {
		rows[i] = map[string]interface{}(record)
	}
	if err := p.store.InsertRows(ctx, source.Table, rows); err != nil {
		return result, fmt.Errorf("persist %s: %w", source.Name, err)
	}
	result.RecordsInserted = len(rows)

	p.logger.Info().
		Str("source", source.Name).
		Str("table", source.Table).
		Int("records", len(rows)).
		Msg("batch ingested")
	return result, nil
}
