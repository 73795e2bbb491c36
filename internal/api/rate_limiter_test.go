package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_BurstThenThrottle(t *testing.T) {
	rl := NewRateLimiter(1, 3)

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("client-a"), "request %d should fit the burst", i)
	}
	assert.False(t, rl.Allow("client-a"))
}

func TestRateLimiter_ClientsAreIndependent(t *testing.T) {
	rl := NewRateLimiter(1, 1)

	assert.True(t, rl.Allow("client-a"))
	assert.False(t, rl.Allow("client-a"))

	// A different client has its own untouched budget.
	assert.True(t, rl.Allow("client-b"))
}

func TestRateLimiter_ZeroBurstCoercedToOne(t *testing.T) {
	rl := NewRateLimiter(1, 0)
	assert.True(t, rl.Allow("client-a"))
	assert.False(t, rl.Allow("client-a"))
}

func TestRateLimitMiddleware_Returns429(t *testing.T) {
	limiter := NewRateLimiter(1, 1)
	handler := RateLimitMiddleware(limiter)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:55555"

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "RATE_LIMIT_EXCEEDED")
}
