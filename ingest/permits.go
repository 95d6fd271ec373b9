package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/blanzp/protest-tracker/store"
	"github.com/blanzp/protest-tracker/textparse"
)

const defaultPermitsURL = "https://data.cityofnewyork.us/resource/tvpp-9vvx.json"

// PermitConfig configures the city permit registry adapter.
type PermitConfig struct {
	Enabled    bool          `yaml:"enabled"`
	URL        string        `yaml:"url"`
	WindowDays int           `yaml:"window_days"` // permits +/- this many days around now
	Limit      int           `yaml:"limit"`
	Timeout    time.Duration `yaml:"-"`
}

func (c *PermitConfig) defaults() {
	if c.URL == "" {
		c.URL = defaultPermitsURL
	}
	if c.WindowDays <= 0 {
		c.WindowDays = 30
	}
	if c.Limit <= 0 {
		c.Limit = 1000
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

// PermitAdapter ingests permitted events from an open-data registry
// (Socrata JSON). Permits are the highest-trust source: the address is
// authoritative, so an unresolvable one keeps the event, just without
// coordinates.
type PermitAdapter struct {
	config PermitConfig
	deps   Deps
	client *http.Client

	now func() time.Time // test hook
}

// NewPermitAdapter creates the permit adapter.
func NewPermitAdapter(cfg PermitConfig, deps Deps) *PermitAdapter {
	cfg.defaults()
	return &PermitAdapter{
		config: cfg,
		deps:   deps,
		client: &http.Client{Timeout: cfg.Timeout},
		now:    time.Now,
	}
}

func (a *PermitAdapter) Name() string       { return "NYC Permits" }
func (a *PermitAdapter) SourceType() string { return store.SourcePermit }
func (a *PermitAdapter) URL() string        { return a.config.URL }
func (a *PermitAdapter) Enabled() bool      { return a.config.Enabled }

type permitRecord struct {
	EventID       string `json:"event_id"`
	EventName     string `json:"event_name"`
	EventDetails  string `json:"event_details"`
	EventLocation string `json:"event_location"`
	StartDateTime string `json:"start_date_time"`
	EndDateTime   string `json:"end_date_time"`
	Latitude      string `json:"latitude"`
	Longitude     string `json:"longitude"`
}

// Run fetches the permit window and stores every protest-relevant permit.
func (a *PermitAdapter) Run(ctx context.Context) (Stats, error) {
	var stats Stats
	now := a.now().UTC()
	window := time.Duration(a.config.WindowDays) * 24 * time.Hour

	q := url.Values{}
	q.Set("$where", fmt.Sprintf("start_date_time >= '%s' AND start_date_time <= '%s'",
		now.Add(-window).Format("2006-01-02"), now.Add(window).Format("2006-01-02")))
	q.Set("$limit", strconv.Itoa(a.config.Limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.config.URL+"?"+q.Encode(), nil)
	if err != nil {
		return stats, fmt.Errorf("permits: new request: %w", err)
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return stats, fmt.Errorf("permits: fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return stats, fmt.Errorf("permits: http %d", resp.StatusCode)
	}

	var permits []permitRecord
	if err := json.NewDecoder(resp.Body).Decode(&permits); err != nil {
		return stats, fmt.Errorf("permits: decode: %w", err)
	}
	stats.Fetched = len(permits)

	for _, p := range permits {
		if p.EventName == "" || p.StartDateTime == "" || p.EventLocation == "" {
			drop(&stats, store.SourcePermit, "missing_fields")
			continue
		}
		text := p.EventName + " " + p.EventDetails
		if !textparse.IsProtestEvent(text) {
			drop(&stats, store.SourcePermit, "not_protest")
			continue
		}
		start, err := parsePermitTime(p.StartDateTime)
		if err != nil {
			drop(&stats, store.SourcePermit, "bad_start_time")
			continue
		}
		var endTime *time.Time
		if p.EndDateTime != "" {
			if end, err := parsePermitTime(p.EndDateTime); err == nil && !end.Before(start) {
				endTime = &end
			}
		}

		ev := &store.Event{
			Title:        p.EventName,
			Description:  p.EventDetails,
			Cause:        textparse.CategorizeEvent(text),
			Address:      p.EventLocation,
			StartTime:    start,
			EndTime:      endTime,
			Status:       store.StatusPlanned,
			SourceType:   store.SourcePermit,
			SourceURL:    a.config.URL + "/" + p.EventID,
			Confidence:   ConfidencePermit,
			PermitStatus: "approved",
		}

		if lat, lng, ok := parseCoords(p.Latitude, p.Longitude); ok {
			ev.Latitude, ev.Longitude = &lat, &lng
		} else if a.deps.Geo != nil {
			if point, found, err := a.deps.Geo.Resolve(ctx, p.EventLocation); err == nil && found {
				ev.Latitude, ev.Longitude = &point.Latitude, &point.Longitude
			}
		}

		if err := a.deps.add(ctx, ev, &stats); err != nil {
			// Per-record store errors don't abort the batch.
			a.deps.logger().Warn("permits: insert failed", "title", p.EventName, "error", err)
		}
	}
	return stats, nil
}

// permitTimeLayouts covers the floating timestamps Socrata emits plus
// RFC3339 for providers that include an offset.
var permitTimeLayouts = []string{
	"2006-01-02T15:04:05.000",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006-01-02",
}

func parsePermitTime(s string) (time.Time, error) {
	for _, layout := range permitTimeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}

func parseCoords(latStr, lngStr string) (float64, float64, bool) {
	if latStr == "" || lngStr == "" {
		return 0, 0, false
	}
	lat, err1 := strconv.ParseFloat(latStr, 64)
	lng, err2 := strconv.ParseFloat(lngStr, 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return lat, lng, true
}
