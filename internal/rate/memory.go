package rate

import (
	"context"
	"sync"
	"time"
)

// NowTimeFunc returns the current time. Overridable in tests.
var NowTimeFunc = time.Now

type windowCounter struct {
	start time.Time
	hits  int64
}

// MemoryLimiter is a fixed-window limiter held in process memory. It covers
// single-instance deployments where no Redis is configured; counters reset
// when the process restarts.
type MemoryLimiter struct {
	max     int64
	window  time.Duration
	mu      sync.Mutex
	windows map[string]windowCounter
}

func NewMemoryLimiter(max int, window time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		max:     int64(max),
		window:  window,
		windows: make(map[string]windowCounter),
	}
}

var _ Limiter = (*MemoryLimiter)(nil)

func (l *MemoryLimiter) Allow(ctx context.Context, key string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	now := NowTimeFunc().UTC()
	winStart := now.Truncate(l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	counter, exists := l.windows[key]
	if !exists || !counter.start.Equal(winStart) {
		counter = windowCounter{start: winStart}
	}
	counter.hits++
	l.windows[key] = counter

	allowed := counter.hits <= l.max
	remaining := l.max - counter.hits
	if remaining < 0 {
		remaining = 0
	}
	windowTTL := winStart.Add(l.window).Sub(now)

	res := Result{
		Allowed:     allowed,
		Remaining:   remaining,
		CurrentHits: counter.hits,
		WindowTTL:   windowTTL,
	}
	if !allowed {
		res.RetryAfter = windowTTL
	}
	return res, nil
}

// Cleanup removes windows that have already closed. Callers may run it
// periodically to bound memory on long-lived processes.
func (l *MemoryLimiter) Cleanup() {
	now := NowTimeFunc().UTC()

	l.mu.Lock()
	defer l.mu.Unlock()

	for key, counter := range l.windows {
		if now.After(counter.start.Add(l.window)) {
			delete(l.windows, key)
		}
	}
}
