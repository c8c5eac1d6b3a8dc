// Package throttle provides keyed sliding-window rate limits.
package throttle

import (
	"sync"
	"time"
)

const (
	defaultLimit  = 10
	defaultWindow = time.Minute
)

// Limiter counts events per key over a sliding window.
type Limiter struct {
	mu     sync.Mutex
	events map[string][]time.Time
	limit  int
	window time.Duration
}

// New constructs a Limiter with safe defaults when inputs are invalid.
func New(limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = defaultLimit
	}
	if window <= 0 {
		window = defaultWindow
	}
	return &Limiter{
		events: make(map[string][]time.Time),
		limit:  limit,
		window: window,
	}
}

// Limit returns the per-window allowance.
func (l *Limiter) Limit() int { return l.limit }

// Window returns the window length.
func (l *Limiter) Window() time.Duration { return l.window }

// Allow records an event for key at now when under the limit.
// When blocked it returns the time until the oldest counted event leaves the window.
func (l *Limiter) Allow(key string, now time.Time) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kept := l.prune(key, now)
	if len(kept) >= l.limit {
		retry := kept[0].Add(l.window).Sub(now)
		if retry < time.Second {
			retry = time.Second
		}
		return false, retry
	}
	l.events[key] = append(kept, now)
	return true, 0
}

// Reset forgets all events for key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.events, key)
}

// Sweep drops keys with no events inside the window and reports how many remain.
func (l *Limiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key := range l.events {
		l.prune(key, now)
	}
	return len(l.events)
}

// prune must be called with l.mu held.
func (l *Limiter) prune(key string, now time.Time) []time.Time {
	cut := now.Add(-l.window)
	events := l.events[key]
	dst := events[:0]
	for _, t := range events {
		if t.After(cut) {
			dst = append(dst, t)
		}
	}
	if len(dst) == 0 {
		delete(l.events, key)
		return nil
	}
	l.events[key] = dst
	return dst
}
