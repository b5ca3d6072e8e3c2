package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestRateLimiter_AllowAndDeny(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := now
	rl := NewRateLimiterWithNow(2, time.Minute, func() time.Time { return clock })
	defer rl.Stop()

	if !rl.Allow("ip") {
		t.Fatalf("expected allow")
	}
	if !rl.Allow("ip") {
		t.Fatalf("expected allow")
	}
	if rl.Allow("ip") {
		t.Fatalf("expected deny")
	}
	if !rl.Allow("other") {
		t.Fatalf("expected separate budget per key")
	}

	clock = clock.Add(time.Minute + time.Second)
	if !rl.Allow("ip") {
		t.Fatalf("expected allow after window")
	}
}

func TestRateLimitMiddleware_DeniedHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)
	rl := NewRateLimiter(1, time.Minute)
	defer rl.Stop()

	r := gin.New()
	r.POST("/login", RateLimitMiddleware(rl, func(c *gin.Context) {
		c.String(http.StatusTooManyRequests, "slow down")
	}), func(c *gin.Context) { c.Status(http.StatusOK) })

	first := httptest.NewRecorder()
	r.ServeHTTP(first, httptest.NewRequest(http.MethodPost, "/login", nil))
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", first.Code)
	}

	second := httptest.NewRecorder()
	r.ServeHTTP(second, httptest.NewRequest(http.MethodPost, "/login", nil))
	if second.Code != http.StatusTooManyRequests || second.Body.String() != "slow down" {
		t.Fatalf("expected custom 429, got %d %q", second.Code, second.Body.String())
	}
}
