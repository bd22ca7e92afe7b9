package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/makemykankotri/kankotri/pkg/config"
	"github.com/makemykankotri/kankotri/pkg/observability"
)

// RateLimiter keeps one token bucket per client address
type RateLimiter struct {
	limiters map[string]*rateLimiterEntry
	mu       sync.RWMutex
	config   config.RateLimitConfig
	logger   observability.Logger
	metrics  observability.MetricsClient
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// rateLimiterEntry holds a rate limiter and its last access time
type rateLimiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// DefaultRateLimitConfig returns default rate limit configuration
func DefaultRateLimitConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		Enabled:    true,
		Limit:      20,
		Burst:      40,
		Expiration: 10 * time.Minute,
	}
}

// NewRateLimiter creates a new rate limiter and starts its cleanup loop.
// Call Stop to end the loop.
func NewRateLimiter(cfg config.RateLimitConfig, logger observability.Logger, metrics observability.MetricsClient) *RateLimiter {
	defaults := DefaultRateLimitConfig()
	if cfg.Limit <= 0 {
		cfg.Limit = defaults.Limit
	}
	if cfg.Burst <= 0 {
		cfg.Burst = defaults.Burst
	}
	if cfg.Expiration <= 0 {
		cfg.Expiration = defaults.Expiration
	}
	if logger == nil {
		logger = observability.NewNoopLogger()
	}
	if metrics == nil {
		metrics = observability.NewNoopMetricsClient()
	}

	rl := &RateLimiter{
		limiters: make(map[string]*rateLimiterEntry),
		config:   cfg,
		logger:   logger.WithPrefix("rate-limiter"),
		metrics:  metrics,
		now:      time.Now,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	go rl.cleanupRoutine()

	return rl
}

// Handler limits requests per client IP. Disabled limiters pass everything through.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	limit := fmt.Sprintf("%g", rl.config.Limit)

	return func(c *gin.Context) {
		if !rl.config.Enabled {
			c.Next()
			return
		}

		limiter := rl.getLimiter(c.ClientIP())
		if !limiter.Allow() {
			rl.recordRateLimitHit(c.FullPath())
			c.Header("X-RateLimit-Limit", limit)
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", rl.now().Add(time.Second).Unix()))
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error":       "rate limit exceeded",
				"retry_after": 1,
			})
			return
		}

		c.Header("X-RateLimit-Limit", limit)
		c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", int(limiter.Tokens())))

		c.Next()
	}
}

// getLimiter gets or creates a rate limiter for a key
func (rl *RateLimiter) getLimiter(key string) *rate.Limiter {
	rl.mu.RLock()
	entry, exists := rl.limiters[key]
	rl.mu.RUnlock()

	if exists {
		rl.mu.Lock()
		entry.lastAccess = rl.now()
		rl.mu.Unlock()
		return entry.limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	// Double-check after acquiring write lock
	if entry, exists := rl.limiters[key]; exists {
		entry.lastAccess = rl.now()
		return entry.limiter
	}

	limiter := rate.NewLimiter(rate.Limit(rl.config.Limit), rl.config.Burst)
	rl.limiters[key] = &rateLimiterEntry{
		limiter:    limiter,
		lastAccess: rl.now(),
	}

	return limiter
}

func (rl *RateLimiter) cleanupRoutine() {
	defer close(rl.done)

	ticker := time.NewTicker(rl.config.Expiration / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stop:
			return
		}
	}
}

// cleanup drops limiters that have been idle longer than the expiration
func (rl *RateLimiter) cleanup() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	removed := 0
	for key, entry := range rl.limiters {
		if now.Sub(entry.lastAccess) > rl.config.Expiration {
			delete(rl.limiters, key)
			removed++
		}
	}

	rl.logger.Debug("Rate limiter cleanup completed", map[string]interface{}{
		"removed":            removed,
		"remaining_limiters": len(rl.limiters),
	})
	return removed
}

// Stop ends the cleanup loop. Safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		close(rl.stop)
	})
	<-rl.done
}

// Len returns the number of tracked clients
func (rl *RateLimiter) Len() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.limiters)
}

func (rl *RateLimiter) recordRateLimitHit(path string) {
	if path == "" {
		path = "unmatched"
	}
	rl.metrics.RecordCounter("rate_limit_hits_total", 1, map[string]string{
		"path": path,
	})
}
