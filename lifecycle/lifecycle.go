// Package lifecycle advances event status over time.
//
// The state machine is the pure ComputeTransitions function; Scheduler is
// the thin clock-driven wrapper that reads pending events, applies the
// computed batch through the store, and emits one status_update per row
// actually changed.
package lifecycle

import (
	"context"
	"log/slog"
	"time"

	"github.com/blanzp/protest-tracker/broadcast"
	"github.com/blanzp/protest-tracker/metrics"
	"github.com/blanzp/protest-tracker/store"
)

// ComputeTransitions evaluates the state machine for every event against
// now. Events past their start become active; active events past their
// end (or past start + defaultDuration when no end is set) become ended.
// An event whose whole window elapsed between two ticks goes straight
// from planned to ended in one transition.
func ComputeTransitions(events []*store.Event, now time.Time, defaultDuration time.Duration) []store.Transition {
	var out []store.Transition
	for _, ev := range events {
		target := targetStatus(ev, now, defaultDuration)
		if target == ev.Status {
			continue
		}
		out = append(out, store.Transition{
			EventID:   ev.ID,
			Title:     ev.Title,
			OldStatus: ev.Status,
			NewStatus: target,
		})
	}
	return out
}

func targetStatus(ev *store.Event, now time.Time, defaultDuration time.Duration) string {
	switch ev.Status {
	case store.StatusPlanned, store.StatusActive:
	default:
		return ev.Status // ended is terminal
	}
	if now.Before(ev.StartTime) {
		return ev.Status
	}
	end := ev.StartTime.Add(defaultDuration)
	if ev.EndTime != nil {
		end = *ev.EndTime
	}
	if !now.Before(end) {
		return store.StatusEnded
	}
	return store.StatusActive
}

// Config configures the Scheduler.
type Config struct {
	// TickInterval is how often statuses are re-evaluated. Default: 1 minute.
	TickInterval time.Duration
	// DefaultDuration ends events with no end_time this long after their
	// start. Default: 4 hours.
	DefaultDuration time.Duration
}

func (c *Config) defaults() {
	if c.TickInterval <= 0 {
		c.TickInterval = time.Minute
	}
	if c.DefaultDuration <= 0 {
		c.DefaultDuration = 4 * time.Hour
	}
}

// Scheduler drives lifecycle evaluation on a wall-clock ticker.
type Scheduler struct {
	store       *store.Store
	broadcaster *broadcast.Broadcaster
	config      Config
	logger      *slog.Logger
}

// New creates a Scheduler.
func New(st *store.Store, b *broadcast.Broadcaster, cfg Config, logger *slog.Logger) *Scheduler {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{store: st, broadcaster: b, config: cfg, logger: logger}
}

// Run ticks until ctx is cancelled, with one immediate tick on start so
// a restart catches up right away.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.config.TickInterval)
	defer ticker.Stop()

	s.Tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs one evaluation cycle and returns the transitions applied.
func (s *Scheduler) Tick(ctx context.Context) []store.Transition {
	events, err := s.store.LifecyclePending(ctx)
	if err != nil {
		s.logger.Error("lifecycle: load pending events", "error", err)
		return nil
	}

	batch := ComputeTransitions(events, time.Now().UTC(), s.config.DefaultDuration)
	applied, err := s.store.ApplyTransitions(ctx, batch)
	if err != nil {
		s.logger.Error("lifecycle: apply transitions", "error", err)
		return nil
	}

	for _, tr := range applied {
		metrics.TransitionsTotal.WithLabelValues(tr.NewStatus).Inc()
		if s.broadcaster != nil {
			s.broadcaster.Publish(broadcast.Message{
				Type: broadcast.TypeStatusUpdate,
				Data: tr,
			})
			metrics.BroadcastsTotal.WithLabelValues(broadcast.TypeStatusUpdate).Inc()
		}
	}
	if len(applied) > 0 {
		s.logger.Info("lifecycle: statuses updated", "count", len(applied))
	}
	return applied
}
