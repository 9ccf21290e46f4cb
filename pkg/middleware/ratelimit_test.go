package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/passkeyhq/passkey-backend/pkg/config"
)

func TestRateLimiter_Disabled(t *testing.T) {
	rl := NewRateLimiter(config.RateLimitConfig{Enabled: false}, zap.NewNop())

	for i := 0; i < 100; i++ {
		assert.True(t, rl.Allow("client"))
	}
}

func TestRateLimiter_LockoutAfterBurst(t *testing.T) {
	rl := NewRateLimiter(config.RateLimitConfig{
		Enabled:        true,
		MaxAttempts:    3,
		WindowSeconds:  60,
		LockoutSeconds: 300,
	}, zap.NewNop())

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("client"), "attempt %d should pass", i)
	}

	// Burst exhausted: locked out, and it stays locked out.
	assert.False(t, rl.Allow("client"))
	assert.False(t, rl.Allow("client"))
}

func TestRateLimiter_ClientsIsolated(t *testing.T) {
	rl := NewRateLimiter(config.RateLimitConfig{
		Enabled:        true,
		MaxAttempts:    2,
		WindowSeconds:  60,
		LockoutSeconds: 300,
	}, zap.NewNop())

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))

	// A different client has its own bucket.
	assert.True(t, rl.Allow("b"))
}

func TestRateLimitMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	rl := NewRateLimiter(config.RateLimitConfig{
		Enabled:        true,
		MaxAttempts:    1,
		WindowSeconds:  60,
		LockoutSeconds: 300,
	}, zap.NewNop())

	router := gin.New()
	router.Use(RateLimit(rl))
	router.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}
