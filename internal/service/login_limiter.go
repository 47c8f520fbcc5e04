package service

import (
	"context"
	"math"
	"sync"
	"time"
)

// Login lockout policy.
const (
	LoginWindow      = 15 * time.Minute
	LoginMaxAttempts = 5
)

// LoginLimiter tracks failed login attempts per client key in a sliding window.
// State is process-local and lost on restart.
type LoginLimiter struct {
	mu       sync.Mutex
	attempts map[string][]time.Time
	window   time.Duration
	max      int
	now      func() time.Time
}

// NewLoginLimiter creates a limiter with the default policy.
func NewLoginLimiter() *LoginLimiter {
	return NewLoginLimiterWithClock(LoginWindow, LoginMaxAttempts, time.Now)
}

// NewLoginLimiterWithClock creates a limiter with an explicit policy and clock.
func NewLoginLimiterWithClock(window time.Duration, max int, now func() time.Time) *LoginLimiter {
	return &LoginLimiter{
		attempts: make(map[string][]time.Time),
		window:   window,
		max:      max,
		now:      now,
	}
}

// Allow reports whether key may attempt a login. A denied check is not
// counted as an attempt.
func (l *LoginLimiter) Allow(key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	recent := l.prune(key, now)
	if len(recent) < l.max {
		return nil
	}

	remaining := l.window - now.Sub(recent[0])
	minutes := int(math.Ceil(remaining.Minutes()))
	if minutes < 1 {
		minutes = 1
	}
	return &RateLimitedError{RetryAfterMinutes: minutes}
}

// RecordFailure appends a failed attempt for key.
func (l *LoginLimiter) RecordFailure(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.attempts[key] = append(l.prune(key, now), now)
}

// Clear forgets all attempts for key.
func (l *LoginLimiter) Clear(key string) {
	l.mu.Lock()
	delete(l.attempts, key)
	l.mu.Unlock()
}

// Sweep drops keys whose attempts have all left the window.
func (l *LoginLimiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key := range l.attempts {
		l.prune(key, now)
	}
}

// Run sweeps every interval until ctx is cancelled.
func (l *LoginLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Sweep()
		}
	}
}

// Len returns the number of tracked keys.
func (l *LoginLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.attempts)
}

// prune must be called with mu held. It stores and returns the attempts
// still inside the window, deleting the key when none remain.
func (l *LoginLimiter) prune(key string, now time.Time) []time.Time {
	list := l.attempts[key]
	i := 0
	for i < len(list) && now.Sub(list[i]) >= l.window {
		i++
	}
	list = list[i:]
	if len(list) == 0 {
		delete(l.attempts, key)
		return nil
	}
	l.attempts[key] = list
	return list
}
