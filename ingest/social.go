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

	"github.com/blanzp/protest-tracker/store"
	"github.com/blanzp/protest-tracker/textparse"
)

const defaultSocialURL = "https://api.twitter.com/2/tweets/search/recent"

// SocialConfig configures the social media adapter. The adapter is
// disabled until a bearer token is set.
type SocialConfig struct {
	BearerToken string        `yaml:"bearer_token"`
	URL         string        `yaml:"url"`
	Hashtags    []string      `yaml:"hashtags"`
	MaxResults  int           `yaml:"max_results"`
	Timeout     time.Duration `yaml:"-"`
}

func (c *SocialConfig) defaults() {
	if c.URL == "" {
		c.URL = defaultSocialURL
	}
	if len(c.Hashtags) == 0 {
		c.Hashtags = []string{"#protest", "#rally", "#march", "#demonstration", "#strike"}
	}
	if c.MaxResults <= 0 {
		c.MaxResults = 100
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
}

// SocialAdapter extracts events from social media posts. Posts are the
// lowest-trust source: a candidate survives only when both a location
// resolves and the post reads as a protest announcement.
type SocialAdapter struct {
	config SocialConfig
	deps   Deps
	client *http.Client

	now func() time.Time // test hook
}

// NewSocialAdapter creates the social media adapter.
func NewSocialAdapter(cfg SocialConfig, deps Deps) *SocialAdapter {
	cfg.defaults()
	return &SocialAdapter{
		config: cfg,
		deps:   deps,
		client: &http.Client{Timeout: cfg.Timeout},
		now:    time.Now,
	}
}

func (a *SocialAdapter) Name() string       { return "Twitter" }
func (a *SocialAdapter) SourceType() string { return store.SourceSocial }
func (a *SocialAdapter) URL() string        { return a.config.URL }
func (a *SocialAdapter) Enabled() bool      { return a.config.BearerToken != "" }

type socialPost struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	CreatedAt string `json:"created_at"`
}

type socialResponse struct {
	Data []socialPost `json:"data"`
}

// Run searches recent posts by hashtag and extracts events from them.
func (a *SocialAdapter) Run(ctx context.Context) (Stats, error) {
	var stats Stats

	q := url.Values{}
	q.Set("query", strings.Join(a.config.Hashtags, " OR ")+" -is:retweet")
	q.Set("max_results", strconv.Itoa(a.config.MaxResults))
	q.Set("tweet.fields", "created_at")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.config.URL+"?"+q.Encode(), nil)
	if err != nil {
		return stats, fmt.Errorf("social: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.config.BearerToken)

	resp, err := a.client.Do(req)
	if err != nil {
		return stats, fmt.Errorf("social: fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return stats, fmt.Errorf("social: http %d", resp.StatusCode)
	}

	var body socialResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return stats, fmt.Errorf("social: decode: %w", err)
	}
	stats.Fetched = len(body.Data)

	now := a.now().UTC()
	for _, post := range body.Data {
		if !textparse.IsProtestEvent(post.Text) {
			drop(&stats, store.SourceSocial, "not_protest")
			continue
		}

		address := textparse.ExtractLocation(post.Text)
		if address == "" {
			drop(&stats, store.SourceSocial, "no_location")
			continue
		}
		if a.deps.Geo == nil {
			drop(&stats, store.SourceSocial, "geocode_failed")
			continue
		}
		point, found, err := a.deps.Geo.Resolve(ctx, address)
		if err != nil || !found {
			drop(&stats, store.SourceSocial, "geocode_failed")
			continue
		}

		start, ok := textparse.ExtractDate(post.Text, now)
		if !ok {
			if start, err = parseISOTime(post.CreatedAt); err != nil {
				drop(&stats, store.SourceSocial, "no_date")
				continue
			}
		}

		ev := &store.Event{
			Title:       textparse.FirstSentence(post.Text),
			Description: post.Text,
			Cause:       textparse.CategorizeEvent(post.Text),
			Address:     address,
			Latitude:    &point.Latitude,
			Longitude:   &point.Longitude,
			StartTime:   start,
			Status:      store.StatusPlanned,
			SourceType:  store.SourceSocial,
			SourceURL:   "https://twitter.com/i/web/status/" + post.ID,
			Confidence:  ConfidenceSocial,
			Hashtags:    textparse.ExtractHashtags(post.Text),
		}
		if err := a.deps.add(ctx, ev, &stats); err != nil {
			a.deps.logger().Warn("social: insert failed", "post", post.ID, "error", err)
		}
	}
	return stats, nil
}
