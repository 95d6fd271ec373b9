package geocode

import (
	"context"
	"testing"
	"time"
)

func TestWindowLimiter_AdmitsUpToLimit(t *testing.T) {
	// WHAT: The first `limit` callers in a window are admitted without blocking.
	// WHY: The limiter must not slow traffic that is under the cap.
	base := time.Unix(1000, 0)
	l := newWindowLimiter(3)
	l.now = func() time.Time { return base }

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := l.Wait(ctx); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}
	if l.count != 3 {
		t.Errorf("count = %d, want 3", l.count)
	}
}

func TestWindowLimiter_WindowRollover_ResetsCount(t *testing.T) {
	// WHAT: Once a full second elapses the counter resets and admissions resume.
	// WHY: The cap is per rolling window, not a lifetime total.
	base := time.Unix(1000, 0)
	now := base
	l := newWindowLimiter(2)
	l.now = func() time.Time { return now }

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := l.Wait(ctx); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}

	now = base.Add(time.Second)
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("wait after rollover: %v", err)
	}
	if l.count != 1 {
		t.Errorf("count = %d, want 1 (fresh window)", l.count)
	}
}

func TestWindowLimiter_FullWindow_BlocksUntilRollover(t *testing.T) {
	// WHAT: A caller hitting a full window blocks and is admitted after the
	// window rolls over.
	// WHY: Excess lookups are delayed, never dropped.
	l := newWindowLimiter(1)

	ctx := context.Background()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	start := time.Now()
	if err := l.Wait(ctx); err != nil {
		t.Fatalf("second wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 500*time.Millisecond {
		t.Errorf("second wait returned after %v, want a blocking wait near 1s", elapsed)
	}
}

func TestWindowLimiter_ContextCancel_Unblocks(t *testing.T) {
	// WHAT: A blocked Wait returns the context error when cancelled.
	// WHY: A stalled resolver must not wedge an adapter past its deadline.
	l := newWindowLimiter(1)

	if err := l.Wait(context.Background()); err != nil {
		t.Fatalf("first wait: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); err != context.DeadlineExceeded {
		t.Fatalf("err = %v, want context.DeadlineExceeded", err)
	}
}
