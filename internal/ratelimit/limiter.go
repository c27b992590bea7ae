package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter wraps rate.Limiter with a name for logging/debugging.
type Limiter struct {
	limiter *rate.Limiter
	name    string
}

// New creates a new rate limiter with the given requests per second.
// The burst size equals the rate, allowing short bursts up to the rate limit.
// A non-positive rate yields a limiter that never blocks.
func New(name string, requestsPerSecond int) *Limiter {
	return NewWithBurst(name, requestsPerSecond, requestsPerSecond)
}

// NewWithBurst creates a new rate limiter with custom burst size.
func NewWithBurst(name string, requestsPerSecond, burst int) *Limiter {
	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}
	if burst < 1 {
		burst = 1
	}
	return &Limiter{
		limiter: rate.NewLimiter(limit, burst),
		name:    name,
	}
}

// Wait blocks until the rate limiter allows a request to proceed.
// Returns an error if the context is cancelled.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", l.name, err)
	}
	return nil
}

// Allow reports whether a request can proceed without blocking.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// Name returns the name of this rate limiter.
func (l *Limiter) Name() string {
	return l.name
}

// Set hands out one limiter per key, typically per remote host, so that a
// slow mirror cannot starve requests to the other sources.
type Set struct {
	mu     sync.Mutex
	perKey map[string]*Limiter
	rps    int
	burst  int
}

// NewSet creates a Set whose limiters all share the same rate and burst.
func NewSet(requestsPerSecond, burst int) *Set {
	return &Set{
		perKey: make(map[string]*Limiter),
		rps:    requestsPerSecond,
		burst:  burst,
	}
}

// Get returns the limiter for key, creating it on first use.
func (s *Set) Get(key string) *Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.perKey[key]; ok {
		return l
	}
	l := NewWithBurst(key, s.rps, s.burst)
	s.perKey[key] = l
	return l
}

// Wait blocks on the limiter for key.
func (s *Set) Wait(ctx context.Context, key string) error {
	return s.Get(key).Wait(ctx)
}
