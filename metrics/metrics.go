// Package metrics registers the tracker's prometheus collectors on the
// default registry, served at /metrics by the API router.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsIngestedTotal counts events actually inserted, per source type.
	EventsIngestedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Name:      "events_ingested_total",
		Help:      "Events inserted into the canonical store",
	}, []string{"source"})

	// CandidatesDroppedTotal counts candidates dropped before insertion
	// (not protest-relevant, no location, unresolvable address).
	CandidatesDroppedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Name:      "candidates_dropped_total",
		Help:      "Candidate events dropped during extraction",
	}, []string{"source", "reason"})

	// ScrapeFailuresTotal counts failed adapter runs, per adapter name.
	ScrapeFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Name:      "scrape_failures_total",
		Help:      "Adapter runs that ended in error",
	}, []string{"source"})

	// TransitionsTotal counts applied lifecycle transitions, per new status.
	TransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Name:      "lifecycle_transitions_total",
		Help:      "Event status transitions applied",
	}, []string{"to"})

	// GeocodeLookupsTotal counts resolutions per outcome: hit,
	// negative_hit, resolved, no_result, error.
	GeocodeLookupsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Name:      "geocode_lookups_total",
		Help:      "Address resolutions by outcome",
	}, []string{"outcome"})

	// BroadcastsTotal counts messages handed to the broadcaster, per type.
	BroadcastsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "tracker",
		Name:      "broadcast_messages_total",
		Help:      "Messages published to subscribers",
	}, []string{"type"})
)
