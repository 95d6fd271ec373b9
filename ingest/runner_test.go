package ingest

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/blanzp/protest-tracker/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := store.ApplySchema(db); err != nil {
		t.Fatalf("schema: %v", err)
	}
	return store.NewStore(db)
}

// fakeAdapter is a scriptable adapter for orchestration tests.
type fakeAdapter struct {
	name    string
	enabled bool
	stats   Stats
	err     error
	block   bool // ignore everything but ctx cancellation
	panics  bool
	ran     bool
}

func (f *fakeAdapter) Name() string       { return f.name }
func (f *fakeAdapter) SourceType() string { return store.SourceNews }
func (f *fakeAdapter) URL() string        { return "https://example.com/" + f.name }
func (f *fakeAdapter) Enabled() bool      { return f.enabled }

func (f *fakeAdapter) Run(ctx context.Context) (Stats, error) {
	f.ran = true
	if f.panics {
		var ev *store.Event
		_ = ev.Title
	}
	if f.block {
		<-ctx.Done()
		return Stats{}, ctx.Err()
	}
	return f.stats, f.err
}

func TestRunner_FailureIsolation(t *testing.T) {
	// WHAT: With three adapters where the second fails, the report reads
	// {total:3, succeeded:2, failed:1, skipped:0}, the failed adapter's
	// health record shows the error, and the other two show last_scraped.
	// WHY: One broken provider must never cost the events the others found.
	s := openTestStore(t)
	ctx := context.Background()

	a1 := &fakeAdapter{name: "one", enabled: true, stats: Stats{Fetched: 3, Inserted: 3}}
	a2 := &fakeAdapter{name: "two", enabled: true, err: errors.New("http 500")}
	a3 := &fakeAdapter{name: "three", enabled: true, stats: Stats{Fetched: 1, Inserted: 1}}

	report := NewRunner(s, []Adapter{a1, a2, a3}, time.Minute, nil).Run(ctx)

	if report.Total != 3 || report.Succeeded != 2 || report.Failed != 1 || report.Skipped != 0 {
		t.Fatalf("report = %+v", report)
	}
	if len(report.Errors) != 1 || report.Errors[0].Source != "two" || report.Errors[0].Message != "http 500" {
		t.Errorf("errors = %+v", report.Errors)
	}
	if !a3.ran {
		t.Error("adapter after the failure never ran")
	}

	failed, err := s.GetDataSource(ctx, "two")
	if err != nil {
		t.Fatalf("get failed source: %v", err)
	}
	if failed.Status != "error" || failed.ErrorMessage == "" || failed.LastErrorAt == nil {
		t.Errorf("failed health = %+v", failed)
	}

	for _, name := range []string{"one", "three"} {
		ds, err := s.GetDataSource(ctx, name)
		if err != nil {
			t.Fatalf("get %s: %v", name, err)
		}
		if ds.Status != "active" || ds.LastScraped == nil {
			t.Errorf("%s health = %+v", name, ds)
		}
	}
}

func TestRunner_DisabledAdapterSkipped(t *testing.T) {
	// WHAT: A disabled adapter is counted as skipped, never run, and gets no
	// health record.
	// WHY: Missing credentials are a configuration state, not a failure.
	s := openTestStore(t)
	ctx := context.Background()

	off := &fakeAdapter{name: "off", enabled: false}
	on := &fakeAdapter{name: "on", enabled: true}

	report := NewRunner(s, []Adapter{off, on}, time.Minute, nil).Run(ctx)
	if report.Total != 2 || report.Succeeded != 1 || report.Skipped != 1 || report.Failed != 0 {
		t.Fatalf("report = %+v", report)
	}
	if off.ran {
		t.Error("disabled adapter was run")
	}

	ds, err := s.GetDataSource(ctx, "off")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ds != nil {
		t.Errorf("disabled adapter has a health record: %+v", ds)
	}
}

func TestRunner_HangingAdapterTimesOut(t *testing.T) {
	// WHAT: An adapter that never returns is cut off by the per-adapter
	// timeout and counted as a failure; the run proceeds.
	// WHY: A wedged provider must not block the whole scrape cycle.
	s := openTestStore(t)

	hang := &fakeAdapter{name: "hang", enabled: true, block: true}
	after := &fakeAdapter{name: "after", enabled: true}

	start := time.Now()
	report := NewRunner(s, []Adapter{hang, after}, 50*time.Millisecond, nil).Run(context.Background())
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("run took %v, timeout did not bite", elapsed)
	}

	if report.Failed != 1 || report.Succeeded != 1 {
		t.Fatalf("report = %+v", report)
	}
	if !after.ran {
		t.Error("adapter after the hang never ran")
	}
}

func TestRunner_PanickingAdapterIsolated(t *testing.T) {
	// WHAT: An adapter that panics is counted as a failure with the panic
	// message in its health record; the run proceeds to the next adapter.
	// WHY: A nil dereference inside one provider must not unwind the scrape
	// loop and take the process down with it.
	s := openTestStore(t)
	ctx := context.Background()

	bad := &fakeAdapter{name: "bad", enabled: true, panics: true}
	after := &fakeAdapter{name: "after", enabled: true}

	report := NewRunner(s, []Adapter{bad, after}, time.Minute, nil).Run(ctx)

	if report.Failed != 1 || report.Succeeded != 1 {
		t.Fatalf("report = %+v", report)
	}
	if len(report.Errors) != 1 || report.Errors[0].Source != "bad" {
		t.Fatalf("errors = %+v", report.Errors)
	}
	if !after.ran {
		t.Error("adapter after the panic never ran")
	}

	ds, err := s.GetDataSource(ctx, "bad")
	if err != nil || ds == nil {
		t.Fatalf("health record: %v %v", ds, err)
	}
	if ds.ErrorMessage == "" {
		t.Error("panic not recorded in health record")
	}
}

func TestDeps_Add_CountsInsertAndSkip(t *testing.T) {
	// WHAT: add counts a fresh insert and a deduplicated skip separately.
	// WHY: The run stats distinguish new events from already-known ones.
	s := openTestStore(t)
	d := Deps{Store: s}
	ctx := context.Background()

	ev := func() *store.Event {
		return &store.Event{
			Title:      "Rally",
			Cause:      "other",
			Address:    "Main St",
			StartTime:  time.Date(2025, 7, 1, 18, 0, 0, 0, time.UTC),
			SourceType: store.SourceNews,
			Confidence: 0.7,
		}
	}

	var stats Stats
	if err := d.add(ctx, ev(), &stats); err != nil {
		t.Fatalf("add: %v", err)
	}
	if err := d.add(ctx, ev(), &stats); err != nil {
		t.Fatalf("add dup: %v", err)
	}
	if stats.Inserted != 1 || stats.Skipped != 1 {
		t.Errorf("stats = %+v", stats)
	}
}
