// Package ratelimit admits or rejects requests per identifier using fixed
// windows: a counter and a reset time per identifier.
package ratelimit

import (
	"context"
	"math"
	"time"
)

// Rule is a window length and the number of requests admitted per window.
type Rule struct {
	Name   string
	Window time.Duration
	Max    int
}

var (
	// General guards every API route.
	General = Rule{Name: "general", Window: time.Minute, Max: 20}

	// Moderate guards invoice creation.
	Moderate = Rule{Name: "moderate", Window: time.Minute, Max: 10}

	// Strict guards receipt sending.
	Strict = Rule{Name: "strict", Window: time.Minute, Max: 5}
)

// Decision is the outcome of a check. A rejection is not an error.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds for the
// Retry-After header. A rejection always asks for at least one second.
func (d Decision) RetryAfterSeconds() int {
	if d.RetryAfter <= 0 {
		if d.Allowed {
			return 0
		}
		return 1
	}
	return int(math.Ceil(d.RetryAfter.Seconds()))
}

// Limiter limits operations based on a provided identifier.
type Limiter interface {
	Check(ctx context.Context, identifier string, rule Rule) (Decision, error)
}

// Identifier scopes a client address to a resource, so every endpoint gets
// its own budget.
func Identifier(clientIP, resource string) string {
	return clientIP + ":" + resource
}

func key(identifier string, rule Rule) string {
	return rule.Name + "|" + identifier
}

// NoLimiter admits everything.
type NoLimiter struct{}

// Check implements Limiter.Check.
func (NoLimiter) Check(_ context.Context, _ string, rule Rule) (Decision, error) {
	return Decision{Allowed: true, Remaining: rule.Max}, nil
}
