package ratelimit

import (
	"context"
	"sync"
	"time"
)

const defaultSweepInterval = 5 * time.Minute

type window struct {
	count   int
	resetAt time.Time
}

// Local is an in-process fixed-window limiter. Counters are not shared
// between processes, so it is best-effort under horizontal scaling.
type Local struct {
	now           func() time.Time
	sweepInterval time.Duration

	mu      sync.Mutex
	windows map[string]*window
}

// Option configures a Local limiter.
type Option func(*Local)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Local) {
		l.now = now
	}
}

// WithSweepInterval changes how often Run drops expired windows.
func WithSweepInterval(d time.Duration) Option {
	return func(l *Local) {
		l.sweepInterval = d
	}
}

// NewLocal returns an empty in-memory limiter.
func NewLocal(opts ...Option) *Local {
	l := &Local{
		now:           time.Now,
		sweepInterval: defaultSweepInterval,
		windows:       make(map[string]*window),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Check implements Limiter.Check.
func (l *Local) Check(_ context.Context, identifier string, rule Rule) (Decision, error) {
	now := l.now()
	k := key(identifier, rule)

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.windows[k]
	if !ok || now.After(w.resetAt) {
		l.windows[k] = &window{count: 1, resetAt: now.Add(rule.Window)}
		return Decision{Allowed: true, Remaining: rule.Max - 1}, nil
	}

	w.count++
	if w.count > rule.Max {
		return Decision{RetryAfter: w.resetAt.Sub(now)}, nil
	}
	return Decision{Allowed: true, Remaining: rule.Max - w.count}, nil
}

// Sweep drops every window whose reset time has passed.
func (l *Local) Sweep() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	for k, w := range l.windows {
		if now.After(w.resetAt) {
			delete(l.windows, k)
		}
	}
}

// Len returns the number of tracked windows.
func (l *Local) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.windows)
}

// Run sweeps on an interval until ctx is done.
func (l *Local) Run(ctx context.Context) {
	ticker := time.NewTicker(l.sweepInterval)
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
