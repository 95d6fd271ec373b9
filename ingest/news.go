package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"

	"github.com/blanzp/protest-tracker/store"
	"github.com/blanzp/protest-tracker/textparse"
)

const defaultNewsURL = "https://newsapi.org/v2/everything"

// NewsConfig configures the news article adapter. The adapter is
// disabled until an API key is set.
type NewsConfig struct {
	APIKey   string        `yaml:"api_key"`
	URL      string        `yaml:"url"`
	Query    string        `yaml:"query"`
	Sources  []string      `yaml:"sources"`
	PageSize int           `yaml:"page_size"`
	Timeout  time.Duration `yaml:"-"`
}

func (c *NewsConfig) defaults() {
	if c.URL == "" {
		c.URL = defaultNewsURL
	}
	if c.Query == "" {
		c.Query = "protest OR demonstration OR rally OR march"
	}
	if len(c.Sources) == 0 {
		c.Sources = []string{"reuters", "associated-press", "bbc-news", "cnn", "the-guardian-uk"}
	}
	if c.PageSize <= 0 {
		c.PageSize = 50
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

// NewsAdapter extracts upcoming events from news articles. Articles are
// free text, so date and location both come out of the extraction
// cascades; a candidate that fails either one is dropped rather than
// stored half-resolved.
type NewsAdapter struct {
	config    NewsConfig
	deps      Deps
	client    *http.Client
	sanitizer *bluemonday.Policy

	now func() time.Time // test hook
}

// NewNewsAdapter creates the news adapter.
func NewNewsAdapter(cfg NewsConfig, deps Deps) *NewsAdapter {
	cfg.defaults()
	return &NewsAdapter{
		config:    cfg,
		deps:      deps,
		client:    &http.Client{Timeout: cfg.Timeout},
		sanitizer: bluemonday.StrictPolicy(),
		now:       time.Now,
	}
}

func (a *NewsAdapter) Name() string       { return "News API" }
func (a *NewsAdapter) SourceType() string { return store.SourceNews }
func (a *NewsAdapter) URL() string        { return a.config.URL }
func (a *NewsAdapter) Enabled() bool      { return a.config.APIKey != "" }

type newsArticle struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Content     string `json:"content"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
}

type newsResponse struct {
	Status   string        `json:"status"`
	Message  string        `json:"message"`
	Articles []newsArticle `json:"articles"`
}

// Run fetches recent articles and extracts protest events from them.
func (a *NewsAdapter) Run(ctx context.Context) (Stats, error) {
	var stats Stats

	q := url.Values{}
	q.Set("q", a.config.Query)
	q.Set("sources", strings.Join(a.config.Sources, ","))
	q.Set("sortBy", "publishedAt")
	q.Set("pageSize", strconv.Itoa(a.config.PageSize))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.config.URL+"?"+q.Encode(), nil)
	if err != nil {
		return stats, fmt.Errorf("news: new request: %w", err)
	}
	req.Header.Set("X-Api-Key", a.config.APIKey)

	resp, err := a.client.Do(req)
	if err != nil {
		return stats, fmt.Errorf("news: fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return stats, fmt.Errorf("news: http %d", resp.StatusCode)
	}

	var body newsResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return stats, fmt.Errorf("news: decode: %w", err)
	}
	if body.Status != "ok" {
		return stats, fmt.Errorf("news: api status %q: %s", body.Status, body.Message)
	}
	stats.Fetched = len(body.Articles)

	now := a.now().UTC()
	for _, art := range body.Articles {
		title := strings.TrimSpace(a.sanitizer.Sanitize(art.Title))
		desc := strings.TrimSpace(a.sanitizer.Sanitize(art.Description))
		content := strings.TrimSpace(a.sanitizer.Sanitize(art.Content))
		text := title + " " + desc + " " + content

		if title == "" {
			drop(&stats, store.SourceNews, "missing_fields")
			continue
		}
		if !textparse.IsProtestEvent(text) {
			drop(&stats, store.SourceNews, "not_protest")
			continue
		}

		address := textparse.ExtractLocation(text)
		if address == "" {
			drop(&stats, store.SourceNews, "no_location")
			continue
		}
		if a.deps.Geo == nil {
			drop(&stats, store.SourceNews, "geocode_failed")
			continue
		}
		point, found, err := a.deps.Geo.Resolve(ctx, address)
		if err != nil || !found {
			drop(&stats, store.SourceNews, "geocode_failed")
			continue
		}

		start, ok := textparse.ExtractDate(text, now)
		if !ok {
			if start, err = parseISOTime(art.PublishedAt); err != nil {
				drop(&stats, store.SourceNews, "no_date")
				continue
			}
		}

		ev := &store.Event{
			Title:       title,
			Description: desc,
			Cause:       textparse.CategorizeEvent(text),
			Address:     address,
			Latitude:    &point.Latitude,
			Longitude:   &point.Longitude,
			StartTime:   start,
			Status:      store.StatusPlanned,
			SourceType:  store.SourceNews,
			SourceURL:   art.URL,
			Confidence:  ConfidenceNews,
		}
		if err := a.deps.add(ctx, ev, &stats); err != nil {
			a.deps.logger().Warn("news: insert failed", "title", title, "error", err)
		}
	}
	return stats, nil
}

func parseISOTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}
