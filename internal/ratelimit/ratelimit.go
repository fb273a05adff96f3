// Package ratelimit implements the per-source token bucket shared by
// Ingest (§4.9) and any subscriber endpoint requiring a per-caller limit
// (§4.13), with an idle-entry cleanup sweep.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter keys independent token buckets by an arbitrary string (typically
// X-Source). Idle buckets are swept periodically to bound memory.
type Limiter struct {
	r     rate.Limit
	burst int

	mu      sync.Mutex
	buckets map[string]*bucket
}

type bucket struct {
	limiter  *rate.Limiter
	lastUsed time.Time
}

// New builds a Limiter with the given per-key refill rate (events/sec) and
// burst capacity.
func New(eventsPerSecond float64, burst int) *Limiter {
	return &Limiter{
		r:       rate.Limit(eventsPerSecond),
		burst:   burst,
		buckets: make(map[string]*bucket),
	}
}

// Allow reports whether an event from key is permitted right now, consuming
// one token if so.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{limiter: rate.NewLimiter(l.r, l.burst)}
		l.buckets[key] = b
	}
	b.lastUsed = time.Now()
	limiter := b.limiter
	l.mu.Unlock()

	return limiter.Allow()
}

// RetryAfter returns a whole-seconds duration a caller should wait before
// retrying, suitable for the 429 Retry-After header.
func (l *Limiter) RetryAfter(key string) time.Duration {
	l.mu.Lock()
	b, ok := l.buckets[key]
	l.mu.Unlock()
	if !ok {
		return 0
	}
	reservation := b.limiter.Reserve()
	delay := reservation.Delay()
	reservation.Cancel()
	if delay < time.Second {
		return time.Second
	}
	return delay.Round(time.Second)
}

// CleanupIdle removes buckets that have not been used within idleAfter.
// Intended to run on a periodic tick (default 30s per §4.13).
func (l *Limiter) CleanupIdle(idleAfter time.Duration) {
	cutoff := time.Now().Add(-idleAfter)
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if b.lastUsed.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}

// Run sweeps idle buckets every interval, blocking until stop is closed;
// callers run it on its own goroutine.
func (l *Limiter) Run(stop <-chan struct{}, interval, idleAfter time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			l.CleanupIdle(idleAfter)
		}
	}
}
