package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/blanzp/protest-tracker/geocode"
	"github.com/blanzp/protest-tracker/store"
)

// staticLookup resolves every address to the same point, or to nothing.
type staticLookup struct {
	point *geocode.Point
}

func (s staticLookup) Lookup(ctx context.Context, address string) ([]geocode.Point, error) {
	if s.point == nil {
		return nil, nil
	}
	return []geocode.Point{*s.point}, nil
}

func permitServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("$where") == "" {
			t.Error("missing $where date window")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPermitAdapter_Run(t *testing.T) {
	// WHAT: Protest-relevant permits are stored with payload coordinates,
	// permit confidence, and approved permit status; non-protest permits
	// are dropped as candidates, not errors.
	// WHY: The registry mixes street fairs with marches; only the latter
	// belong in the store, and their own coordinates outrank geocoding.
	srv := permitServer(t, `[
		{
			"event_id": "p1",
			"event_name": "Climate Justice March",
			"event_details": "Annual climate march through downtown",
			"event_location": "Foley Square, New York",
			"start_date_time": "2025-07-04T10:00:00.000",
			"end_date_time": "2025-07-04T14:00:00.000",
			"latitude": "40.7143",
			"longitude": "-74.0027"
		},
		{
			"event_id": "p2",
			"event_name": "Annual Street Fair",
			"event_details": "Food vendors and live music",
			"event_location": "5th Avenue",
			"start_date_time": "2025-07-05T09:00:00.000"
		}
	]`)

	s := openTestStore(t)
	a := NewPermitAdapter(PermitConfig{Enabled: true, URL: srv.URL}, Deps{Store: s})

	stats, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Fetched != 2 || stats.Inserted != 1 || stats.Dropped != 1 {
		t.Fatalf("stats = %+v", stats)
	}

	events, err := s.ListEvents(context.Background(), store.Filter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events", len(events))
	}
	ev := events[0]
	if ev.Title != "Climate Justice March" || ev.Cause != "climate" {
		t.Errorf("title=%q cause=%q", ev.Title, ev.Cause)
	}
	if ev.SourceType != store.SourcePermit || ev.Confidence != ConfidencePermit {
		t.Errorf("source=%q confidence=%v", ev.SourceType, ev.Confidence)
	}
	if ev.PermitStatus != "approved" {
		t.Errorf("permit_status = %q", ev.PermitStatus)
	}
	if ev.Latitude == nil || *ev.Latitude != 40.7143 {
		t.Errorf("latitude = %v", ev.Latitude)
	}
	if ev.EndTime == nil || !ev.EndTime.Equal(time.Date(2025, 7, 4, 14, 0, 0, 0, time.UTC)) {
		t.Errorf("end_time = %v", ev.EndTime)
	}
}

func TestPermitAdapter_GeocodeFailureKeepsEvent(t *testing.T) {
	// WHAT: A permit without payload coordinates whose address does not
	// resolve is still stored, just without coordinates.
	// WHY: The permit itself is authoritative; losing it over a geocoding
	// miss would drop a confirmed event.
	srv := permitServer(t, `[
		{
			"event_id": "p1",
			"event_name": "Workers Rights Rally",
			"event_details": "union rally",
			"event_location": "An Unresolvable Address",
			"start_date_time": "2025-07-04T10:00:00.000"
		}
	]`)

	s := openTestStore(t)
	geo := geocode.New(staticLookup{}, geocode.Config{Backoff: time.Millisecond}, nil)
	a := NewPermitAdapter(PermitConfig{Enabled: true, URL: srv.URL}, Deps{Store: s, Geo: geo})

	stats, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Inserted != 1 {
		t.Fatalf("stats = %+v", stats)
	}

	events, _ := s.ListEvents(context.Background(), store.Filter{})
	if len(events) != 1 {
		t.Fatalf("got %d events", len(events))
	}
	if events[0].Latitude != nil || events[0].Longitude != nil {
		t.Errorf("coordinates = %v, %v, want none", events[0].Latitude, events[0].Longitude)
	}
}

func TestPermitAdapter_HTTPErrorFailsRun(t *testing.T) {
	// WHAT: A non-200 registry response fails the whole adapter run.
	// WHY: The orchestrator records it on the health record; silent empties
	// would look like a quiet day instead of an outage.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	a := NewPermitAdapter(PermitConfig{Enabled: true, URL: srv.URL}, Deps{Store: openTestStore(t)})
	if _, err := a.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
