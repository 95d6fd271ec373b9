package geocode

import (
	"context"
	"sync"
	"time"
)

// windowLimiter caps lookups per rolling one-second window. When the
// window's counter is at capacity, Wait blocks the caller until the
// window rolls over, then admits it. A fixed window, not a token bucket:
// at most `limit` admissions between any reset and the next.
type windowLimiter struct {
	mu          sync.Mutex
	limit       int
	count       int
	windowStart time.Time

	now func() time.Time // test hook
}

func newWindowLimiter(limit int) *windowLimiter {
	return &windowLimiter{limit: limit, now: time.Now}
}

// Wait blocks until the caller is admitted or ctx is done.
func (l *windowLimiter) Wait(ctx context.Context) error {
	for {
		l.mu.Lock()
		now := l.now()
		if now.Sub(l.windowStart) >= time.Second {
			l.windowStart = now
			l.count = 0
		}
		if l.count < l.limit {
			l.count++
			l.mu.Unlock()
			return nil
		}
		wait := l.windowStart.Add(time.Second).Sub(now)
		l.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}
