package middleware

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"ln-donations/internal/metrics"
	"ln-donations/internal/ratelimit"
)

// RateLimit rejects requests over rule with 429 and a Retry-After header.
// Budgets are per client IP and per resource. When resource is empty the
// matched route template is used. Limiter failures let the request through,
// and a nil limiter admits everything.
func RateLimit(limiter ratelimit.Limiter, rule ratelimit.Rule, resource string, log *logrus.Entry) gin.HandlerFunc {
	if limiter == nil {
		limiter = ratelimit.NoLimiter{}
	}
	log = log.WithFields(logrus.Fields{
		"method": "RateLimit",
		"rule":   rule.Name,
	})

	return func(c *gin.Context) {
		target := resource
		if target == "" {
			target = c.FullPath()
		}

		decision, err := limiter.Check(c.Request.Context(), ratelimit.Identifier(c.ClientIP(), target), rule)
		if err != nil {
			log.WithError(err).Warn("rate limiter unavailable, admitting request")
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(rule.Max))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))

		if !decision.Allowed {
			metrics.RateLimited.WithLabelValues(rule.Name).Inc()
			c.Header("Retry-After", strconv.Itoa(decision.RetryAfterSeconds()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":      "Too many requests, please try again later",
				"retryAfter": decision.RetryAfterSeconds(),
			})
			return
		}

		c.Next()
	}
}
