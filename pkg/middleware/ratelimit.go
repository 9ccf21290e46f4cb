package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/passkeyhq/passkey-backend/pkg/config"
)

// RateLimiter throttles ceremony endpoints per client to slow down
// credential guessing and challenge flooding. Each client gets a token
// bucket; exhausting it triggers a lockout for the configured duration.
type RateLimiter struct {
	cfg    config.RateLimitConfig
	logger *zap.Logger

	mu       sync.Mutex
	clients  map[string]*clientLimiter
	lastSwep time.Time
}

type clientLimiter struct {
	limiter    *rate.Limiter
	lastSeen   time.Time
	lockoutEnd time.Time
}

// NewRateLimiter creates a rate limiter from configuration.
func NewRateLimiter(cfg config.RateLimitConfig, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{
		cfg:      cfg,
		logger:   logger.Named("ratelimit"),
		clients:  make(map[string]*clientLimiter),
		lastSwep: time.Now(),
	}
}

func (r *RateLimiter) client(id string) *clientLimiter {
	if time.Since(r.lastSwep) > 10*time.Minute {
		cutoff := time.Now().Add(-30 * time.Minute)
		for key, c := range r.clients {
			if c.lastSeen.Before(cutoff) {
				delete(r.clients, key)
			}
		}
		r.lastSwep = time.Now()
	}

	c, exists := r.clients[id]
	if exists {
		c.lastSeen = time.Now()
		return c
	}

	limit := rate.Limit(float64(r.cfg.MaxAttempts) / float64(r.cfg.WindowSeconds))
	burst := r.cfg.MaxAttempts
	if burst < 1 {
		burst = 1
	}
	c = &clientLimiter{
		limiter:  rate.NewLimiter(limit, burst),
		lastSeen: time.Now(),
	}
	r.clients[id] = c
	return c
}

// Allow reports whether a request from the identified client may proceed.
func (r *RateLimiter) Allow(id string) bool {
	if !r.cfg.Enabled {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.client(id)
	if time.Now().Before(c.lockoutEnd) {
		return false
	}

	if !c.limiter.Allow() {
		c.lockoutEnd = time.Now().Add(time.Duration(r.cfg.LockoutSeconds) * time.Second)
		r.logger.Warn("rate limit exceeded",
			zap.String("client", id),
			zap.Int("lockout_seconds", r.cfg.LockoutSeconds))
		return false
	}
	return true
}

// RateLimit returns a middleware that throttles requests by client IP.
func RateLimit(r *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !r.Allow(c.ClientIP()) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"error": "too many attempts, try again later",
			})
			return
		}
		c.Next()
	}
}
