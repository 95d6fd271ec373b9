package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const defaultGoogleURL = "https://maps.googleapis.com/maps/api/geocode/json"

// GoogleClient implements Lookup against the Google Maps geocoding API.
type GoogleClient struct {
	APIKey  string
	BaseURL string // override for tests
	Client  *http.Client
}

// NewGoogleClient creates a client with a sane default HTTP timeout.
// Per-call deadlines are still enforced by the Resolver's context.
func NewGoogleClient(apiKey string) *GoogleClient {
	return &GoogleClient{
		APIKey:  apiKey,
		BaseURL: defaultGoogleURL,
		Client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type googleResponse struct {
	Status  string `json:"status"`
	Results []struct {
		Geometry struct {
			Location struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
	} `json:"results"`
	ErrorMessage string `json:"error_message"`
}

// Lookup queries the geocoding API. ZERO_RESULTS yields an empty slice;
// OVER_QUERY_LIMIT and HTTP 429 yield ErrRateLimited; other non-OK
// statuses are permanent errors.
func (g *GoogleClient) Lookup(ctx context.Context, address string) ([]Point, error) {
	base := g.BaseURL
	if base == "" {
		base = defaultGoogleURL
	}
	q := url.Values{}
	q.Set("address", address)
	q.Set("key", g.APIKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("geocode: new request: %w", err)
	}
	client := g.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode: http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocode: http %d", resp.StatusCode)
	}

	var body googleResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("geocode: decode response: %w", err)
	}

	switch body.Status {
	case "OK":
		points := make([]Point, 0, len(body.Results))
		for _, res := range body.Results {
			points = append(points, Point{
				Latitude:  res.Geometry.Location.Lat,
				Longitude: res.Geometry.Location.Lng,
			})
		}
		return points, nil
	case "ZERO_RESULTS":
		return nil, nil
	case "OVER_QUERY_LIMIT":
		return nil, ErrRateLimited
	default:
		return nil, fmt.Errorf("geocode: status %s: %s", body.Status, body.ErrorMessage)
	}
}
