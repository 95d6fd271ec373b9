package store

import "time"

// Event lifecycle states. Transitions only move forward:
// planned -> active -> ended.
const (
	StatusPlanned = "planned"
	StatusActive  = "active"
	StatusEnded   = "ended"
)

// Source types with their fixed confidence scores.
const (
	SourcePermit = "permit"
	SourceUser   = "user"
	SourceNews   = "news"
	SourceSocial = "social"
)

// Event is a canonical protest event record.
type Event struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Cause        string     `json:"cause"`
	Address      string     `json:"address"`
	Latitude     *float64   `json:"latitude"`
	Longitude    *float64   `json:"longitude"`
	StartTime    time.Time  `json:"start_time"`
	EndTime      *time.Time `json:"end_time"`
	Status       string     `json:"status"`
	SourceType   string     `json:"source_type"`
	SourceURL    string     `json:"source_url"`
	Confidence   float64    `json:"confidence_score"`
	ExpectedSize *int       `json:"expected_size,omitempty"`
	PermitStatus string     `json:"permit_status,omitempty"`
	Organizers   []string   `json:"organizers"`
	Hashtags     []string   `json:"hashtags"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	// DistanceKm is populated by proximity queries, never persisted.
	DistanceKm *float64 `json:"distance_km,omitempty"`
}

// Transition records one event's status change.
type Transition struct {
	EventID   string    `json:"eventId"`
	Title     string    `json:"title"`
	OldStatus string    `json:"oldStatus"`
	NewStatus string    `json:"newStatus"`
	Timestamp time.Time `json:"timestamp"`
}

// LatLng is a WGS84 coordinate pair.
type LatLng struct {
	Lat float64
	Lng float64
}

// Filter restricts ListEvents. Empty slices mean "no restriction".
// With a Center, results carry DistanceKm and are ordered nearest-first;
// otherwise they are ordered by start_time ascending.
type Filter struct {
	Statuses []string
	Causes   []string
	Center   *LatLng
	RadiusKm float64
}

// CauseCount is one row of the cause aggregation (planned + active events).
type CauseCount struct {
	Cause string `json:"cause"`
	Count int    `json:"count"`
}

// DataSource is the health record of one named adapter.
type DataSource struct {
	Name         string     `json:"name"`
	Type         string     `json:"type"`
	URL          string     `json:"url"`
	Status       string     `json:"status"`
	LastScraped  *time.Time `json:"last_scraped"`
	ErrorMessage string     `json:"error_message"`
	LastErrorAt  *time.Time `json:"last_error_at"`
}
