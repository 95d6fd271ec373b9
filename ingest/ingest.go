// Package ingest pulls raw items from external providers, extracts
// candidate events from them, and writes survivors through the store's
// dedup boundary. One Adapter per provider; the Runner executes the set
// with per-adapter failure isolation.
package ingest

import (
	"context"
	"log/slog"

	"github.com/blanzp/protest-tracker/broadcast"
	"github.com/blanzp/protest-tracker/geocode"
	"github.com/blanzp/protest-tracker/metrics"
	"github.com/blanzp/protest-tracker/store"
)

// Fixed per-source confidence scores.
const (
	ConfidencePermit = 0.9
	ConfidenceUser   = 0.8
	ConfidenceNews   = 0.7
	ConfidenceSocial = 0.6
)

// Adapter is one provider's fetch-extract-store cycle.
type Adapter interface {
	// Name is the unique health-record key for this adapter.
	Name() string
	// SourceType is the store.Source* constant this adapter produces.
	SourceType() string
	// URL identifies the upstream endpoint, recorded on the health row.
	URL() string
	// Enabled reports whether the adapter has the configuration it
	// needs. Disabled adapters are skipped, never failed.
	Enabled() bool
	// Run performs one scrape cycle.
	Run(ctx context.Context) (Stats, error)
}

// Stats summarizes one adapter run.
type Stats struct {
	Fetched  int // raw items received from the provider
	Inserted int // candidates written to the store
	Skipped  int // candidates deduplicated away
	Dropped  int // candidates rejected during extraction
}

// Deps are the shared collaborators handed to each adapter.
type Deps struct {
	Store       *store.Store
	Geo         *geocode.Resolver
	Broadcaster *broadcast.Broadcaster
	Logger      *slog.Logger
}

func (d *Deps) logger() *slog.Logger {
	if d.Logger == nil {
		return slog.Default()
	}
	return d.Logger
}

// add inserts a candidate through the dedup boundary, broadcasting
// new_event and counting metrics when the row is new. Duplicate
// candidates are a silent skip, never an error.
func (d *Deps) add(ctx context.Context, ev *store.Event, stats *Stats) error {
	inserted, err := d.Store.InsertEvent(ctx, ev)
	if err != nil {
		return err
	}
	if !inserted {
		stats.Skipped++
		return nil
	}
	stats.Inserted++
	metrics.EventsIngestedTotal.WithLabelValues(ev.SourceType).Inc()
	if d.Broadcaster != nil {
		d.Broadcaster.Publish(broadcast.Message{Type: broadcast.TypeNewEvent, Data: ev})
		metrics.BroadcastsTotal.WithLabelValues(broadcast.TypeNewEvent).Inc()
	}
	return nil
}

// drop counts a candidate rejected during extraction.
func drop(stats *Stats, sourceType, reason string) {
	stats.Dropped++
	metrics.CandidatesDroppedTotal.WithLabelValues(sourceType, reason).Inc()
}
