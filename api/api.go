// Package api serves the HTTP surface: event queries, user
// submissions, source health, and the live WebSocket feed.
package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blanzp/protest-tracker/broadcast"
	"github.com/blanzp/protest-tracker/ingest"
	"github.com/blanzp/protest-tracker/metrics"
	"github.com/blanzp/protest-tracker/store"
	"github.com/blanzp/protest-tracker/textparse"
)

const defaultRadiusKm = 10

// Service wires the HTTP handlers to their collaborators.
type Service struct {
	store       *store.Store
	broadcaster *broadcast.Broadcaster
	logger      *slog.Logger
}

// NewService creates the API service.
func NewService(st *store.Store, b *broadcast.Broadcaster, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: st, broadcaster: b, logger: logger}
}

// Router builds the chi router with all routes registered.
func (s *Service) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	s.RegisterHTTP(r)
	return r
}

// RegisterHTTP registers all endpoints on r.
func (s *Service) RegisterHTTP(r chi.Router) {
	r.Get("/api/events", s.handleListEvents)
	r.Post("/api/events", s.handleCreateEvent)
	r.Get("/api/events/{id}", s.handleGetEvent)
	r.Get("/api/causes", s.handleCauses)
	r.Get("/api/data-sources", s.handleDataSources)
	r.Get("/api/ws", s.handleWebSocket)
	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
}

// handleListEvents serves GET /api/events.
// Query params: status (csv, default active), cause (csv), lat+lng+radius.
// With a center, results come back nearest first with distance_km set;
// otherwise by start_time ascending.
func (s *Service) handleListEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := store.Filter{
		Statuses: splitCSV(q.Get("status")),
		Causes:   splitCSV(q.Get("cause")),
	}
	if len(filter.Statuses) == 0 {
		filter.Statuses = []string{store.StatusActive}
	}
	for _, st := range filter.Statuses {
		switch st {
		case store.StatusPlanned, store.StatusActive, store.StatusEnded:
		default:
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown status %q", st))
			return
		}
	}

	if latStr, lngStr := q.Get("lat"), q.Get("lng"); latStr != "" || lngStr != "" {
		lat, err1 := strconv.ParseFloat(latStr, 64)
		lng, err2 := strconv.ParseFloat(lngStr, 64)
		if err1 != nil || err2 != nil {
			writeError(w, http.StatusBadRequest, "lat and lng must both be valid numbers")
			return
		}
		radius := float64(defaultRadiusKm)
		if rs := q.Get("radius"); rs != "" {
			radius, err1 = strconv.ParseFloat(rs, 64)
			if err1 != nil || radius <= 0 {
				writeError(w, http.StatusBadRequest, "radius must be a positive number")
				return
			}
		}
		filter.Center = &store.LatLng{Lat: lat, Lng: lng}
		filter.RadiusKm = radius
	}

	events, err := s.store.ListEvents(r.Context(), filter)
	if err != nil {
		s.logger.Error("api: list events", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if events == nil {
		events = []*store.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

// handleGetEvent serves GET /api/events/{id}.
func (s *Service) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ev, err := s.store.GetEvent(r.Context(), id)
	if err != nil {
		s.logger.Error("api: get event", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if ev == nil {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// CreateEventRequest is the body for POST /api/events.
type CreateEventRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Cause       string     `json:"cause"`
	Address     string     `json:"address"`
	Latitude    *float64   `json:"latitude"`
	Longitude   *float64   `json:"longitude"`
	StartTime   time.Time  `json:"start_time"`
	EndTime     *time.Time `json:"end_time"`
	SourceURL   string     `json:"source_url"`
	Organizers  []string   `json:"organizers"`
	Hashtags    []string   `json:"hashtags"`
}

// handleCreateEvent serves POST /api/events: user-submitted events. An
// unrecognized cause falls back to keyword classification; a duplicate
// of an already-stored event is a 409, not a second row.
func (s *Service) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var req CreateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Title = strings.TrimSpace(req.Title)
	req.Address = strings.TrimSpace(req.Address)
	if req.Title == "" || req.Address == "" || req.StartTime.IsZero() {
		writeError(w, http.StatusBadRequest, "title, address and start_time are required")
		return
	}
	if req.EndTime != nil && req.EndTime.Before(req.StartTime) {
		writeError(w, http.StatusBadRequest, "end_time must not precede start_time")
		return
	}

	cause := req.Cause
	if !textparse.ValidCause(cause) {
		cause = textparse.CategorizeEvent(req.Title + " " + req.Description)
	}

	ev := &store.Event{
		Title:       req.Title,
		Description: req.Description,
		Cause:       cause,
		Address:     req.Address,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		StartTime:   req.StartTime.UTC(),
		EndTime:     req.EndTime,
		Status:      store.StatusPlanned,
		SourceType:  store.SourceUser,
		SourceURL:   strings.TrimSpace(req.SourceURL),
		Confidence:  ingest.ConfidenceUser,
		Organizers:  req.Organizers,
		Hashtags:    req.Hashtags,
	}

	inserted, err := s.store.InsertEvent(r.Context(), ev)
	if err != nil {
		s.logger.Error("api: create event", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if !inserted {
		writeError(w, http.StatusConflict, "duplicate event")
		return
	}

	metrics.EventsIngestedTotal.WithLabelValues(store.SourceUser).Inc()
	if s.broadcaster != nil {
		s.broadcaster.Publish(broadcast.Message{Type: broadcast.TypeNewEvent, Data: ev})
		metrics.BroadcastsTotal.WithLabelValues(broadcast.TypeNewEvent).Inc()
	}
	writeJSON(w, http.StatusCreated, ev)
}

// handleCauses serves GET /api/causes: every known cause with its count
// of upcoming and active events.
func (s *Service) handleCauses(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.CauseCounts(r.Context())
	if err != nil {
		s.logger.Error("api: cause counts", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	byCause := make(map[string]int, len(counts))
	for _, c := range counts {
		byCause[c.Cause] = c.Count
	}
	out := make([]store.CauseCount, 0, len(textparse.Causes()))
	for _, cause := range textparse.Causes() {
		out = append(out, store.CauseCount{Cause: cause, Count: byCause[cause]})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleDataSources serves GET /api/data-sources.
func (s *Service) handleDataSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.store.ListDataSources(r.Context())
	if err != nil {
		s.logger.Error("api: list data sources", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if sources == nil {
		sources = []*store.DataSource{}
	}
	writeJSON(w, http.StatusOK, sources)
}

// handleHealth serves GET /health.
func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"subscribers": s.broadcaster.Count(),
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
