package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRateLimiterAllow(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute, zap.NewNop().Sugar())
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("alice"), "request %d should pass", i)
	}
	assert.False(t, rl.Allow("alice"), "fourth request must be limited")
	assert.True(t, rl.Allow("bob"), "limits are per client")
}

func TestRateLimiterMiddleware(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute, zap.NewNop().Sugar())
	defer rl.Stop()

	handler := rl.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/reminders", nil)
		req.Header.Set("X-User-ID", "usr1")
		handler.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/reminders", nil)
	req.Header.Set("X-User-ID", "usr1")
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)

	// A different user is unaffected
	w = httptest.NewRecorder()
	req = httptest.NewRequest("GET", "/reminders", nil)
	req.Header.Set("X-User-ID", "usr2")
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestResponseCacheServesHit(t *testing.T) {
	rc := NewResponseCache(time.Minute)
	defer rc.Stop()

	var calls atomic.Int64
	handler := rc.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"call":%d}`, n)
	}))

	get := func(userID string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/analytics/summary", nil)
		req.Header.Set("X-User-ID", userID)
		handler.ServeHTTP(w, req)
		return w
	}

	first := get("usr1")
	require.Equal(t, http.StatusOK, first.Code)
	second := get("usr1")
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, int64(1), calls.Load(), "second request must be served from cache")

	// Cache keys are per user
	get("usr2")
	assert.Equal(t, int64(2), calls.Load())
}

func TestResponseCacheSkipsNonGET(t *testing.T) {
	rc := NewResponseCache(time.Minute)
	defer rc.Stop()

	var calls atomic.Int64
	handler := rc.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, httptest.NewRequest("POST", "/reminders", nil))
	}
	assert.Equal(t, int64(2), calls.Load())
}

func TestResponseCacheInvalidate(t *testing.T) {
	rc := NewResponseCache(time.Minute)
	defer rc.Stop()

	var calls atomic.Int64
	handler := rc.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))

	get := func() {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/streaks", nil)
		req.Header.Set("X-User-ID", "usr1")
		handler.ServeHTTP(w, req)
	}

	get()
	get()
	require.Equal(t, int64(1), calls.Load())

	rc.Invalidate("usr1")
	get()
	assert.Equal(t, int64(2), calls.Load())
}

func TestResponseCacheSkipsErrors(t *testing.T) {
	rc := NewResponseCache(time.Minute)
	defer rc.Stop()

	var calls atomic.Int64
	handler := rc.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/streaks", nil)
		req.Header.Set("X-User-ID", "usr1")
		handler.ServeHTTP(w, req)
	}
	assert.Equal(t, int64(2), calls.Load(), "error responses are never cached")
}
