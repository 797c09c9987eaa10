package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/obralink/oraculo/internal/ratelimit"
	"github.com/obralink/oraculo/pkg/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

func TestRateLimitValidate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := &config.Config{}
	cfg.RateLimit.Validate = config.RateLimitBucketConfig{RequestsPerMinute: 60, BurstSize: 1}
	lim := ratelimit.NewTokenBucketLimiter(rdb)

	r := gin.New()
	r.POST("/validate", RateLimitValidate(lim, cfg), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	do := func(key string) int {
		req := httptest.NewRequest(http.MethodPost, "/validate", nil)
		req.Header.Set("X-API-Key", key)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	if code := do("client-a"); code != http.StatusOK {
		t.Fatalf("first request = %d, want 200", code)
	}
	if code := do("client-a"); code != http.StatusTooManyRequests {
		t.Fatalf("second request = %d, want 429", code)
	}
	// Buckets are per credential.
	if code := do("client-b"); code != http.StatusOK {
		t.Fatalf("other client = %d, want 200", code)
	}
}

func TestRateLimitDisabledBucketPassesThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{}

	r := gin.New()
	r.POST("/validate", RateLimitValidate(nil, cfg), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodPost, "/validate", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
}
