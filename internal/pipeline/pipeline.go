package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/backyonatan-alt/conflictwatch/internal/cache"
	"github.com/backyonatan-alt/conflictwatch/internal/fetcher"
	"github.com/backyonatan-alt/conflictwatch/internal/metrics"
	"github.com/backyonatan-alt/conflictwatch/internal/model"
	"github.com/backyonatan-alt/conflictwatch/internal/store"
)

// Fetcher is the pair of independent fetch runs the pipeline orchestrates.
type Fetcher interface {
	FetchACLED(ctx context.Context) (model.RunResult, error)
	FetchVIIRS(ctx context.Context) (model.RunResult, error)
}

// Pipeline orchestrates: fetch ACLED -> fetch VIIRS, recording each run.
// store and cache are optional.
type Pipeline struct {
	store   store.Store
	cache   *cache.Cache
	fetcher Fetcher
	metrics *metrics.Metrics
}

func New(store store.Store, cache *cache.Cache, fetcher Fetcher, m *metrics.Metrics) *Pipeline {
	return &Pipeline{store: store, cache: cache, fetcher: fetcher, metrics: m}
}

// Run fetches ACLED then VIIRS, once each. A failure stops the sequence.
func (p *Pipeline) Run(ctx context.Context) error {
	slog.Info("pipeline run starting")
	start := time.Now()

	if _, err := p.RunACLED(ctx); err != nil {
		return err
	}
	if _, err := p.RunVIIRS(ctx); err != nil {
		return err
	}

	slog.Info("all data sources have been fetched and saved", "duration", time.Since(start).Round(time.Millisecond))
	return nil
}

// RunACLED runs only the event fetcher.
func (p *Pipeline) RunACLED(ctx context.Context) (model.RunResult, error) {
	return p.run(ctx, model.SourceACLED, p.fetcher.FetchACLED)
}

// RunVIIRS runs only the snapshot fetcher.
func (p *Pipeline) RunVIIRS(ctx context.Context) (model.RunResult, error) {
	return p.run(ctx, model.SourceVIIRS, p.fetcher.FetchVIIRS)
}

func (p *Pipeline) run(ctx context.Context, source string, fetch func(context.Context) (model.RunResult, error)) (model.RunResult, error) {
	start := time.Now()
	res, err := fetch(ctx)
	p.metrics.ObserveRun(source, time.Since(start), err)

	if err != nil {
		logFailure(source, err)
	} else if res.Written {
		p.refreshCache(source, res.Path)
	}
	p.recordRun(ctx, source, res, err)

	if err != nil {
		return res, fmt.Errorf("%s: %w", source, err)
	}
	return res, nil
}

func (p *Pipeline) refreshCache(source, path string) {
	if p.cache == nil {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		slog.Warn("failed to load output into cache", "source", source, "error", err)
		return
	}
	p.cache.Set(source, data)
}

// recordRun writes the ledger row. Ledger failures are logged only.
func (p *Pipeline) recordRun(ctx context.Context, source string, res model.RunResult, runErr error) {
	if p.store == nil {
		return
	}
	rec := model.RunRecord{
		ID:         res.RunID,
		Source:     source,
		Status:     model.RunStatusOK,
		Records:    res.Records,
		Pages:      res.Pages,
		Path:       res.Path,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
	}
	switch {
	case runErr != nil:
		rec.Status = model.RunStatusFailed
		rec.Error = runErr.Error()
	case !res.Written:
		rec.Status = model.RunStatusEmpty
	}
	if rec.FinishedAt.IsZero() {
		rec.FinishedAt = time.Now()
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = rec.FinishedAt
	}

	// The run may have been cancelled; the ledger row is still wanted.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := p.store.RecordRun(ctx, rec); err != nil {
		slog.Error("failed to record run", "source", source, "run_id", rec.ID, "error", err)
	}
}

// logFailure logs err together with the last response body when there is one.
func logFailure(source string, err error) {
	attrs := []any{"source", source, "error", err}
	var te *fetcher.TransportError
	if errors.As(err, &te) {
		attrs = append(attrs, "status", te.StatusCode, "url", te.URL)
		if te.Body != "" {
			attrs = append(attrs, "body", te.Body)
		}
	}
	slog.Error("fetch failed", attrs...)
}
