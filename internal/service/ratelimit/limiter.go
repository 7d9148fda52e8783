// Package ratelimit keeps one token bucket per key.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type entry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// Limiter allows requests events per window for each key with a full bucket
// as burst. Keys idle for longer than the window are forgotten.
type Limiter struct {
	mu     sync.Mutex
	m      map[string]*entry
	limit  rate.Limit
	burst  int
	window time.Duration
	now    func() time.Time
	swept  time.Time
}

func New(requests int, window time.Duration) *Limiter {
	if requests <= 0 {
		requests = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		m:      make(map[string]*entry),
		limit:  rate.Limit(float64(requests) / window.Seconds()),
		burst:  requests,
		window: window,
		now:    time.Now,
	}
}

// Allow returns true if one token can be consumed for key.
func (l *Limiter) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.m[key]
	if !ok {
		e = &entry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.m[key] = e
	}
	e.lastSeen = now
	l.sweep(now)
	return e.limiter.AllowN(now, 1)
}

// Len returns the number of tracked keys.
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}

func (l *Limiter) sweep(now time.Time) {
	if now.Sub(l.swept) < l.window {
		return
	}
	l.swept = now
	for k, e := range l.m {
		if now.Sub(e.lastSeen) > l.window {
			delete(l.m, k)
		}
	}
}
