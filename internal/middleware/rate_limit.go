package middleware

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/obralink/oraculo/internal/metrics"
	"github.com/obralink/oraculo/internal/ratelimit"
	"github.com/obralink/oraculo/pkg/config"

	"github.com/gin-gonic/gin"
)

// RateLimitValidate throttles document validation per credential. Validation
// fans out to paid OCR/NER providers, so it gets its own bucket.
func RateLimitValidate(lim ratelimit.Limiter, cfg *config.Config) gin.HandlerFunc {
	return rateLimitCredential(lim, "validate", "validate_document", cfg.RateLimit.Validate)
}

func rateLimitCredential(lim ratelimit.Limiter, scope string, operation string, bcfg config.RateLimitBucketConfig) gin.HandlerFunc {
	bucket := ratelimit.Bucket{RequestsPerMinute: bcfg.RequestsPerMinute, BurstSize: bcfg.BurstSize}
	return func(c *gin.Context) {
		if lim == nil || !bucket.Enabled() {
			c.Next()
			return
		}

		cred := clientCredential(c)
		if cred == "" {
			// Auth middleware will reject; don't rate limit unauthenticated requests here.
			c.Next()
			return
		}

		dec, err := lim.Allow(c.Request.Context(), scope, cred, bucket)
		if err != nil {
			// Fail open to avoid turning Redis hiccups into outages.
			slog.Default().Warn("rate limit check failed", "scope", scope, "op", operation, "err", err)
			c.Next()
			return
		}
		if dec.Allowed {
			c.Next()
			return
		}

		retryAfterSeconds := int(dec.RetryAfter.Seconds())
		if retryAfterSeconds <= 0 {
			retryAfterSeconds = 1
		}
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
		metrics.RateLimitHitsTotal.WithLabelValues(scope, operation).Inc()
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":             "rate limit exceeded",
			"scope":             scope,
			"operation":         operation,
			"retryAfterSeconds": retryAfterSeconds,
		})
	}
}
