package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/blanzp/protest-tracker/metrics"
	"github.com/blanzp/protest-tracker/store"
)

// SourceError is one failed adapter's entry in the run report.
type SourceError struct {
	Source  string `json:"source"`
	Message string `json:"message"`
}

// Report summarizes one orchestration cycle across all adapters.
type Report struct {
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Errors    []SourceError `json:"errors,omitempty"`
}

// Runner executes the adapter set. One adapter's failure (including a
// hang cut off by the per-adapter timeout) never aborts the run.
type Runner struct {
	store          *store.Store
	adapters       []Adapter
	adapterTimeout time.Duration
	logger         *slog.Logger
}

// NewRunner creates a Runner. adapterTimeout bounds each adapter's
// execution; <= 0 defaults to 5 minutes.
func NewRunner(st *store.Store, adapters []Adapter, adapterTimeout time.Duration, logger *slog.Logger) *Runner {
	if adapterTimeout <= 0 {
		adapterTimeout = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{store: st, adapters: adapters, adapterTimeout: adapterTimeout, logger: logger}
}

// Run executes every adapter in order and aggregates the report.
// Disabled adapters are recorded as skipped without touching their
// health records. Enabled adapters get their health row upserted before
// running; success stamps last_scraped, failure records the error and
// the run continues with the next adapter.
func (r *Runner) Run(ctx context.Context) Report {
	report := Report{Total: len(r.adapters)}

	for _, a := range r.adapters {
		log := r.logger.With("source", a.Name())

		if !a.Enabled() {
			log.Info("scrape: skipping (not configured)")
			report.Skipped++
			continue
		}

		if err := r.store.UpsertDataSource(ctx, a.Name(), a.SourceType(), a.URL()); err != nil {
			log.Error("scrape: upsert health record", "error", err)
			report.Failed++
			report.Errors = append(report.Errors, SourceError{Source: a.Name(), Message: err.Error()})
			continue
		}

		actx, cancel := context.WithTimeout(ctx, r.adapterTimeout)
		stats, err := runAdapter(actx, a)
		cancel()

		if err != nil {
			log.Error("scrape: adapter failed", "error", err)
			metrics.ScrapeFailuresTotal.WithLabelValues(a.Name()).Inc()
			if derr := r.store.RecordScrapeError(ctx, a.Name(), err.Error()); derr != nil {
				log.Error("scrape: record error", "error", derr)
			}
			report.Failed++
			report.Errors = append(report.Errors, SourceError{Source: a.Name(), Message: err.Error()})
			continue
		}

		if derr := r.store.RecordScrapeSuccess(ctx, a.Name()); derr != nil {
			log.Error("scrape: record success", "error", derr)
		}
		log.Info("scrape: completed",
			"fetched", stats.Fetched, "inserted", stats.Inserted,
			"skipped", stats.Skipped, "dropped", stats.Dropped)
		report.Succeeded++
	}
	return report
}

// runAdapter converts an adapter panic into a run error so a broken
// adapter cannot take down the scrape loop.
func runAdapter(ctx context.Context, a Adapter) (stats Stats, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%s: panic: %v", a.Name(), rec)
		}
	}()
	return a.Run(ctx)
}
