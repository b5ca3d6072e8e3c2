package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type RateLimiter struct {
	mu       sync.Mutex
	requests map[string]*requestInfo
	limit    int
	window   time.Duration
	now      func() time.Time
	done     chan struct{}
	stopOnce sync.Once
}

type requestInfo struct {
	count   int
	resetAt time.Time
}

func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return NewRateLimiterWithNow(limit, window, time.Now)
}

func NewRateLimiterWithNow(limit int, window time.Duration, now func() time.Time) *RateLimiter {
	rl := &RateLimiter{
		requests: make(map[string]*requestInfo),
		limit:    limit,
		window:   window,
		now:      now,
		done:     make(chan struct{}),
	}
	go rl.cleanup()
	return rl
}

func (rl *RateLimiter) cleanup() {
	if rl.window <= 0 {
		return
	}

	ticker := time.NewTicker(rl.window)
	defer ticker.Stop()

	for {
		select {
		case <-rl.done:
			return
		case <-ticker.C:
			rl.mu.Lock()
			now := rl.now()
			for key, info := range rl.requests {
				if now.After(info.resetAt) {
					delete(rl.requests, key)
				}
			}
			rl.mu.Unlock()
		}
	}
}

// Stop ends the background cleanup.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.done) })
}

// Done is closed once Stop has been called.
func (rl *RateLimiter) Done() <-chan struct{} {
	return rl.done
}

func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	info, exists := rl.requests[key]
	if !exists || now.After(info.resetAt) {
		rl.requests[key] = &requestInfo{count: 1, resetAt: now.Add(rl.window)}
		return true
	}

	if info.count >= rl.limit {
		return false
	}

	info.count++
	return true
}

const MsgTooManyAttempts = "Too many login attempts. Please wait a minute and try again."

// RateLimitMiddleware limits requests per client IP. Denied is called for rejected
// requests; nil answers with a plain 429.
func RateLimitMiddleware(rl *RateLimiter, denied gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if rl.Allow(key) {
			c.Next()
			return
		}
		LoggerFromContext(c).Warn("rate limited", zap.String("client_ip", key), zap.String("path", c.FullPath()))
		if denied != nil {
			denied(c)
			c.Abort()
			return
		}
		if WantsJSON(c) {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": MsgTooManyAttempts})
		} else {
			c.String(http.StatusTooManyRequests, MsgTooManyAttempts)
		}
		c.Abort()
	}
}
