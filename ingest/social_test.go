package ingest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/blanzp/protest-tracker/geocode"
	"github.com/blanzp/protest-tracker/store"
)

func TestSocialAdapter_DisabledWithoutToken(t *testing.T) {
	// WHAT: Without a bearer token the adapter reports itself disabled.
	// WHY: The orchestrator skips unconfigured adapters instead of failing.
	if NewSocialAdapter(SocialConfig{}, Deps{}).Enabled() {
		t.Error("enabled without token")
	}
	if !NewSocialAdapter(SocialConfig{BearerToken: "t"}, Deps{}).Enabled() {
		t.Error("disabled with token")
	}
}

func TestSocialAdapter_Run(t *testing.T) {
	// WHAT: A post with a resolvable location becomes an event titled by its
	// first sentence, carrying its hashtags; a post without a location is
	// dropped.
	// WHY: Posts are the lowest-trust source; location resolution is the
	// gate that keeps rumors off the map.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"data": [
				{
					"id": "1001",
					"text": "Rally at Union Square tomorrow! Bring signs. #ClimateStrike #resist",
					"created_at": "2025-07-01T08:00:00.000Z"
				},
				{
					"id": "1002",
					"text": "so angry about everything #protest",
					"created_at": "2025-07-01T09:00:00.000Z"
				}
			]
		}`))
	}))
	t.Cleanup(srv.Close)

	s := openTestStore(t)
	geo := geocode.New(staticLookup{point: &geocode.Point{Latitude: 40.73, Longitude: -73.99}}, geocode.Config{}, nil)
	a := NewSocialAdapter(SocialConfig{BearerToken: "test-token", URL: srv.URL}, Deps{Store: s, Geo: geo})

	stats, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Fetched != 2 || stats.Inserted != 1 || stats.Dropped != 1 {
		t.Fatalf("stats = %+v", stats)
	}

	events, _ := s.ListEvents(context.Background(), store.Filter{})
	if len(events) != 1 {
		t.Fatalf("got %d events", len(events))
	}
	ev := events[0]
	if ev.Title != "Rally at Union Square tomorrow!" {
		t.Errorf("title = %q", ev.Title)
	}
	if ev.SourceType != store.SourceSocial || ev.Confidence != ConfidenceSocial {
		t.Errorf("source=%q confidence=%v", ev.SourceType, ev.Confidence)
	}
	if len(ev.Hashtags) != 2 || ev.Hashtags[0] != "ClimateStrike" || ev.Hashtags[1] != "resist" {
		t.Errorf("hashtags = %v", ev.Hashtags)
	}
	if ev.SourceURL != "https://twitter.com/i/web/status/1001" {
		t.Errorf("source_url = %q", ev.SourceURL)
	}
}

func TestSocialAdapter_NoResolverDropsCandidate(t *testing.T) {
	// WHAT: With no resolver configured a located post is dropped like any
	// other geocode failure, and the run still succeeds.
	// WHY: Running without a maps key is a supported configuration; it must
	// degrade to fewer events, not crash the adapter.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"data": [
				{
					"id": "1001",
					"text": "Rally at Union Square tomorrow! #ClimateStrike",
					"created_at": "2025-07-01T08:00:00.000Z"
				}
			]
		}`))
	}))
	t.Cleanup(srv.Close)

	s := openTestStore(t)
	a := NewSocialAdapter(SocialConfig{BearerToken: "test-token", URL: srv.URL}, Deps{Store: s})

	stats, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Inserted != 0 || stats.Dropped != 1 {
		t.Errorf("stats = %+v", stats)
	}
}
