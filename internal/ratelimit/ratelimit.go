// Package ratelimit implements a per-identity sliding window limiter.
package ratelimit

import (
	"sync"
	"time"
)

const (
	// DefaultLimit is the number of events allowed per window
	DefaultLimit = 10
	// DefaultPeriod is the window length
	DefaultPeriod = time.Minute

	highWater   = 1000
	staleFactor = 5
)

// Limiter counts recent events per identity
type Limiter struct {
	mu     sync.Mutex
	limit  int
	period time.Duration
	events map[int64][]time.Time
}

// New creates a limiter allowing limit events per period.
// Non-positive arguments fall back to the defaults.
func New(limit int, period time.Duration) *Limiter {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if period <= 0 {
		period = DefaultPeriod
	}
	return &Limiter{
		limit:  limit,
		period: period,
		events: make(map[int64][]time.Time),
	}
}

// Allow records an event for id at now and reports whether it is within the limit.
// Rejected events are not recorded.
func (l *Limiter) Allow(id int64, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	recent := l.events[id][:0]
	for _, ts := range l.events[id] {
		if now.Sub(ts) < l.period {
			recent = append(recent, ts)
		}
	}

	if len(recent) >= l.limit {
		l.events[id] = recent
		return false
	}
	l.events[id] = append(recent, now)

	if len(l.events) > highWater {
		l.prune(now)
	}
	return true
}

// Tracked returns the number of identities currently held
func (l *Limiter) Tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}

// prune drops identities whose newest event is older than five periods
func (l *Limiter) prune(now time.Time) {
	cutoff := staleFactor * l.period
	for id, events := range l.events {
		if len(events) == 0 || now.Sub(events[len(events)-1]) > cutoff {
			delete(l.events, id)
		}
	}
}
