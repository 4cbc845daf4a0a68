// Package ratelimit throttles chat and name changes per identity.
package ratelimit

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const window = time.Minute

// Limiter allows each identity perMinute events in any one-minute window.
// Refused events are not recorded.
type Limiter struct {
	mu        sync.Mutex
	clock     clockwork.Clock
	perMinute int
	events    map[string][]time.Time

	// refusals samples the refusal log.
	refusals rate.Sometimes
}

// New returns a limiter reading time from clock. A non-positive perMinute
// disables limiting.
func New(clock clockwork.Clock, perMinute int) *Limiter {
	return &Limiter{
		clock:     clock,
		perMinute: perMinute,
		events:    make(map[string][]time.Time),
		refusals:  rate.Sometimes{First: 1, Interval: 10 * time.Second},
	}
}

// Allow records one event for id and reports whether it is within budget.
func (l *Limiter) Allow(id string) bool {
	if l.perMinute <= 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	recent := live(l.events[id], now)
	if len(recent) >= l.perMinute {
		l.events[id] = recent
		l.refusals.Do(func() {
			log.Debug().Str("identity", id).Int("per_minute", l.perMinute).Msg("rate limited")
		})
		return false
	}
	l.events[id] = append(recent, now)
	return true
}

// live drops the events that fell out of the window ending at now.
func live(events []time.Time, now time.Time) []time.Time {
	i := 0
	for i < len(events) && now.Sub(events[i]) >= window {
		i++
	}
	return events[i:]
}

// Prune forgets identities with no event inside the window. It returns how
// many were dropped.
func (l *Limiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	dropped := 0
	for id, events := range l.events {
		if len(events) == 0 || now.Sub(events[len(events)-1]) >= window {
			delete(l.events, id)
			dropped++
		}
	}
	return dropped
}

// Len is the number of tracked identities.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.events)
}
