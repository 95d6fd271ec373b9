package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const eventColumns = `id, title, description, cause, address, latitude, longitude,
	start_time, end_time, status, source_type, source_url, confidence_score,
	expected_size, permit_status, organizers, hashtags, created_at, updated_at`

// DedupKey derives the uniqueness key for a candidate event: normalized
// title + normalized address + start time truncated to the minute. Two
// reports of the same gathering from different providers collapse to one
// row even when their source URLs differ.
func DedupKey(title, address string, start time.Time) string {
	norm := func(s string) string {
		return strings.Join(strings.Fields(strings.ToLower(s)), " ")
	}
	h := sha256.New()
	fmt.Fprintf(h, "%s\n%s\n%s", norm(title), norm(address),
		start.UTC().Truncate(time.Minute).Format(time.RFC3339))
	return fmt.Sprintf("%x", h.Sum(nil))
}

// InsertEvent inserts a candidate event, skipping silently when a row
// with the same dedup key already exists. It reports whether the row was
// actually inserted. ID, status, and timestamps are filled in when unset.
func (s *Store) InsertEvent(ctx context.Context, ev *Event) (bool, error) {
	now := time.Now().UTC()
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Status == "" {
		ev.Status = StatusPlanned
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = now
	}
	if ev.UpdatedAt.IsZero() {
		ev.UpdatedAt = now
	}
	organizers, err := json.Marshal(emptyIfNil(ev.Organizers))
	if err != nil {
		return false, fmt.Errorf("marshal organizers: %w", err)
	}
	hashtags, err := json.Marshal(emptyIfNil(ev.Hashtags))
	if err != nil {
		return false, fmt.Errorf("marshal hashtags: %w", err)
	}

	var lat, lng any
	if ev.Latitude != nil {
		lat = *ev.Latitude
	}
	if ev.Longitude != nil {
		lng = *ev.Longitude
	}
	var size any
	if ev.ExpectedSize != nil {
		size = *ev.ExpectedSize
	}

	res, err := s.DB.ExecContext(ctx,
		`INSERT INTO events (id, dedup_key, title, description, cause, address,
		latitude, longitude, start_time, end_time, status, source_type, source_url,
		confidence_score, expected_size, permit_status, organizers, hashtags,
		created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(dedup_key) DO NOTHING`,
		ev.ID, DedupKey(ev.Title, ev.Address, ev.StartTime),
		ev.Title, ev.Description, ev.Cause, ev.Address,
		lat, lng, ev.StartTime.UnixMilli(), timeToNull(ev.EndTime),
		ev.Status, ev.SourceType, ev.SourceURL, ev.Confidence,
		size, ev.PermitStatus, string(organizers), string(hashtags),
		ev.CreatedAt.UnixMilli(), ev.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("insert event: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetEvent retrieves an event by ID, or nil when not found.
func (s *Store) GetEvent(ctx context.Context, id string) (*Event, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+eventColumns+` FROM events WHERE id = ?`, id)
	ev, err := scanEvent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return ev, err
}

// ListEvents returns events matching the filter. With a center point the
// result set is restricted to the radius (km), carries DistanceKm, and is
// ordered nearest-first; otherwise ordering is start_time ascending.
func (s *Store) ListEvents(ctx context.Context, f Filter) ([]*Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE 1=1`
	var args []any
	if len(f.Statuses) > 0 {
		query += ` AND status IN (` + placeholders(len(f.Statuses)) + `)`
		for _, st := range f.Statuses {
			args = append(args, st)
		}
	}
	if len(f.Causes) > 0 {
		query += ` AND cause IN (` + placeholders(len(f.Causes)) + `)`
		for _, c := range f.Causes {
			args = append(args, c)
		}
	}
	query += ` ORDER BY start_time ASC`

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if f.Center == nil {
		return events, nil
	}
	return proximityFilter(events, *f.Center, f.RadiusKm), nil
}

// proximityFilter keeps events with resolved coordinates inside the
// radius and orders them by distance ascending.
func proximityFilter(events []*Event, center LatLng, radiusKm float64) []*Event {
	var near []*Event
	for _, ev := range events {
		if ev.Latitude == nil || ev.Longitude == nil {
			continue
		}
		d := haversineKm(center.Lat, center.Lng, *ev.Latitude, *ev.Longitude)
		if radiusKm > 0 && d > radiusKm {
			continue
		}
		dist := d
		ev.DistanceKm = &dist
		near = append(near, ev)
	}
	sort.SliceStable(near, func(i, j int) bool {
		return *near[i].DistanceKm < *near[j].DistanceKm
	})
	return near
}

const earthRadiusKm = 6371.0

func haversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	rad := func(deg float64) float64 { return deg * math.Pi / 180 }
	dLat := rad(lat2 - lat1)
	dLng := rad(lng2 - lng1)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(lat1))*math.Cos(rad(lat2))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(a))
}

// CauseCounts aggregates planned and active events per cause,
// most frequent first.
func (s *Store) CauseCounts(ctx context.Context) ([]CauseCount, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT cause, COUNT(*) AS count FROM events
		WHERE status IN ('planned', 'active')
		GROUP BY cause ORDER BY count DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []CauseCount
	for rows.Next() {
		var cc CauseCount
		if err := rows.Scan(&cc.Cause, &cc.Count); err != nil {
			return nil, err
		}
		counts = append(counts, cc)
	}
	return counts, rows.Err()
}

// LifecyclePending returns all events still subject to lifecycle
// transitions (planned or active).
func (s *Store) LifecyclePending(ctx context.Context) ([]*Event, error) {
	rows, err := s.DB.QueryContext(ctx,
		`SELECT `+eventColumns+` FROM events
		WHERE status IN ('planned', 'active') ORDER BY start_time ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

// ApplyTransitions applies a batch of status changes in one transaction,
// stamping updated_at. Each row is guarded on its expected old status, so
// a transition raced by another writer is simply not counted. Returns the
// transitions actually applied, with their timestamps set.
func (s *Store) ApplyTransitions(ctx context.Context, batch []Transition) ([]Transition, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	now := time.Now().UTC()
	var applied []Transition
	err := s.runTx(ctx, func(tx *sql.Tx) error {
		applied = applied[:0]
		for _, tr := range batch {
			res, err := tx.ExecContext(ctx,
				`UPDATE events SET status = ?, updated_at = ?
				WHERE id = ? AND status = ?`,
				tr.NewStatus, now.UnixMilli(), tr.EventID, tr.OldStatus)
			if err != nil {
				return fmt.Errorf("transition %s: %w", tr.EventID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			if n > 0 {
				tr.Timestamp = now
				applied = append(applied, tr)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return applied, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*Event, error) {
	var ev Event
	var lat, lng sql.NullFloat64
	var endTime, size sql.NullInt64
	var startMs, createdMs, updatedMs int64
	var organizers, hashtags string
	err := row.Scan(
		&ev.ID, &ev.Title, &ev.Description, &ev.Cause, &ev.Address,
		&lat, &lng, &startMs, &endTime, &ev.Status, &ev.SourceType,
		&ev.SourceURL, &ev.Confidence, &size, &ev.PermitStatus,
		&organizers, &hashtags, &createdMs, &updatedMs,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scan event: %w", err)
	}
	if lat.Valid {
		ev.Latitude = &lat.Float64
	}
	if lng.Valid {
		ev.Longitude = &lng.Float64
	}
	ev.StartTime = msToTime(startMs)
	ev.EndTime = nullToTime(endTime)
	if size.Valid {
		n := int(size.Int64)
		ev.ExpectedSize = &n
	}
	ev.CreatedAt = msToTime(createdMs)
	ev.UpdatedAt = msToTime(updatedMs)
	if err := json.Unmarshal([]byte(organizers), &ev.Organizers); err != nil {
		ev.Organizers = nil
	}
	if err := json.Unmarshal([]byte(hashtags), &ev.Hashtags); err != nil {
		ev.Hashtags = nil
	}
	return &ev, nil
}
