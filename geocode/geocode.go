// Package geocode resolves free-text addresses to coordinates through a
// shared, caching, rate-limited resolver.
//
// The cache keys on the lowercased, trimmed address and remembers both
// positive results and definitive "no match" answers, so an address that
// will never resolve is asked about exactly once. Failed lookups (after
// retry) are not cached and may be retried by a later call.
package geocode

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/blanzp/protest-tracker/metrics"
)

// ErrRateLimited marks a provider rate-limit response. Retryable.
var ErrRateLimited = errors.New("geocode: provider rate limit")

// Point is a resolved WGS84 coordinate pair.
type Point struct {
	Latitude  float64
	Longitude float64
}

// Lookup performs the raw address lookup. Implementations return matched
// candidates in provider order; an empty result means a definitive
// "no such address", not a failure.
type Lookup interface {
	Lookup(ctx context.Context, address string) ([]Point, error)
}

// Config configures a Resolver.
type Config struct {
	CacheLimit int           // max cached addresses. Default: 1000.
	PerSecond  int           // lookups allowed per rolling second. Default: 10.
	Timeout    time.Duration // per-lookup deadline. Default: 5s.
	MaxRetries int           // attempts on transient failure. Default: 3.
	Backoff    time.Duration // initial retry backoff, doubled each attempt. Default: 1s.
}

func (c *Config) defaults() {
	if c.CacheLimit <= 0 {
		c.CacheLimit = 1000
	}
	if c.PerSecond <= 0 {
		c.PerSecond = 10
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.Backoff <= 0 {
		c.Backoff = time.Second
	}
}

// cacheEntry holds one resolution outcome. ok=false is the negative
// sentinel: the address definitively has no coordinates.
type cacheEntry struct {
	point Point
	ok    bool
}

// Resolver is a concurrency-safe caching resolver. Cache and insertion
// order are guarded by mu; the network call runs outside the lock.
type Resolver struct {
	lookup  Lookup
	config  Config
	limiter *windowLimiter
	logger  *slog.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry
	order []string // insertion order, for bounded eviction (not LRU)

	hits   int64
	misses int64
}

// New creates a Resolver around the given lookup backend.
func New(lookup Lookup, cfg Config, logger *slog.Logger) *Resolver {
	cfg.defaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		lookup:  lookup,
		config:  cfg,
		limiter: newWindowLimiter(cfg.PerSecond),
		logger:  logger,
		cache:   make(map[string]cacheEntry),
	}
}

// Resolve returns the coordinates for an address. ok is false (with a
// nil error) when the address definitively has no match; a non-nil error
// means resolution failed and may succeed later.
func (r *Resolver) Resolve(ctx context.Context, address string) (Point, bool, error) {
	key := strings.ToLower(strings.TrimSpace(address))
	if key == "" {
		return Point{}, false, nil
	}

	r.mu.Lock()
	if entry, cached := r.cache[key]; cached {
		r.hits++
		r.mu.Unlock()
		if entry.ok {
			metrics.GeocodeLookupsTotal.WithLabelValues("hit").Inc()
		} else {
			metrics.GeocodeLookupsTotal.WithLabelValues("negative_hit").Inc()
		}
		return entry.point, entry.ok, nil
	}
	r.misses++
	r.mu.Unlock()

	if err := r.limiter.Wait(ctx); err != nil {
		return Point{}, false, err
	}

	points, err := r.lookupWithRetry(ctx, address)
	if err != nil {
		// Not cached: a later call gets another chance.
		metrics.GeocodeLookupsTotal.WithLabelValues("error").Inc()
		return Point{}, false, err
	}
	if len(points) == 0 {
		r.store(key, cacheEntry{})
		metrics.GeocodeLookupsTotal.WithLabelValues("no_result").Inc()
		return Point{}, false, nil
	}
	entry := cacheEntry{point: points[0], ok: true}
	r.store(key, entry)
	metrics.GeocodeLookupsTotal.WithLabelValues("resolved").Inc()
	return entry.point, true, nil
}

// lookupWithRetry performs the lookup with exponential backoff on
// transient failures (1s, 2s, 4s by default). Permanent errors propagate
// immediately.
func (r *Resolver) lookupWithRetry(ctx context.Context, address string) ([]Point, error) {
	var lastErr error
	for attempt := 0; attempt < r.config.MaxRetries; attempt++ {
		cctx, cancel := context.WithTimeout(ctx, r.config.Timeout)
		points, err := r.lookup.Lookup(cctx, address)
		cancel()
		if err == nil {
			return points, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, lastErr
		}
		if !isTransient(err) {
			return nil, err
		}
		if attempt < r.config.MaxRetries-1 {
			wait := r.config.Backoff * (1 << uint(attempt))
			r.logger.Warn("geocode: retrying lookup",
				"attempt", attempt+1, "backoff_ms", wait.Milliseconds(), "error", err)
			select {
			case <-ctx.Done():
				return nil, lastErr
			case <-time.After(wait):
			}
		}
	}
	return nil, fmt.Errorf("geocode: retries exhausted: %w", lastErr)
}

// isTransient reports whether a lookup error is worth retrying:
// provider rate limits and network-level failures including timeouts.
func isTransient(err error) bool {
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// store inserts a cache entry, evicting the oldest-inserted entry when
// the cache is full. Insertion order, deliberately not access order.
func (r *Resolver) store(key string, entry cacheEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.cache[key]; !exists {
		if len(r.order) >= r.config.CacheLimit {
			oldest := r.order[0]
			r.order = r.order[1:]
			delete(r.cache, oldest)
		}
		r.order = append(r.order, key)
	}
	r.cache[key] = entry
}

// Stats reports cache occupancy and hit/miss counters.
type Stats struct {
	Size   int
	Limit  int
	Hits   int64
	Misses int64
}

// CacheStats returns a snapshot of the resolver's cache counters.
func (r *Resolver) CacheStats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{Size: len(r.cache), Limit: r.config.CacheLimit, Hits: r.hits, Misses: r.misses}
}
