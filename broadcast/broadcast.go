// Package broadcast fans lifecycle and creation messages out to live
// subscribers, best-effort. No delivery guarantee, no queuing beyond each
// subscription's buffer: a subscriber that is not draining its channel
// loses messages without slowing anyone else down.
package broadcast

import "sync"

// Message kinds flowing through the broadcaster.
const (
	TypeNewEvent     = "new_event"
	TypeStatusUpdate = "status_update"
)

// Message is the broadcast envelope sent to every subscriber.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Broadcaster owns the subscriber set. Subscriptions created after a
// publish never see it.
type Broadcaster struct {
	mu     sync.RWMutex
	subs   map[*Subscription]struct{}
	buffer int
}

// Subscription is one subscriber's receive side. Messages arrive on C.
type Subscription struct {
	C chan Message
	b *Broadcaster

	once sync.Once
}

// New creates a Broadcaster. buffer is the per-subscription channel
// capacity; <= 0 uses a default of 16.
func New(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = 16
	}
	return &Broadcaster{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
	}
}

// Subscribe registers a new subscriber. Callers must Close it when done.
func (b *Broadcaster) Subscribe() *Subscription {
	sub := &Subscription{C: make(chan Message, b.buffer), b: b}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Close unregisters the subscription and closes its channel. Safe to
// call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.b.mu.Lock()
		delete(s.b.subs, s)
		s.b.mu.Unlock()
		close(s.C)
	})
}

// Publish delivers msg to every current subscriber without blocking.
// A subscriber whose buffer is full is skipped, not waited on.
func (b *Broadcaster) Publish(msg Message) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		select {
		case sub.C <- msg:
		default:
		}
	}
}

// Count returns the number of active subscriptions.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
