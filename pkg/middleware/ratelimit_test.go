package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimit_PerSession(t *testing.T) {
	var buf bytes.Buffer
	h := RateLimit(RateLimitConfig{RPS: 0.001, Burst: 2}, newTestLogger(&buf))(okHandler())

	send := func(session string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/shopper/cart/items", nil)
		req.Header.Set(SessionIDHeader, session)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, send("a"))
	assert.Equal(t, http.StatusOK, send("a"))
	assert.Equal(t, http.StatusTooManyRequests, send("a"))
	assert.Equal(t, http.StatusOK, send("b"), "sessions have separate buckets")
	assert.Contains(t, buf.String(), "rate limit exceeded")
}

func TestRateLimit_Disabled(t *testing.T) {
	var buf bytes.Buffer
	h := RateLimit(RateLimitConfig{}, newTestLogger(&buf))(okHandler())

	for i := 0; i < 100; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestRateLimit_RejectionBody(t *testing.T) {
	var buf bytes.Buffer
	h := RateLimit(RateLimitConfig{RPS: 0.001, Burst: 1}, newTestLogger(&buf))(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "RATE_LIMITED")
}

func TestBuckets_SweepsIdleEntries(t *testing.T) {
	clock := time.Unix(1_700_000_000, 0)
	b := newBuckets(RateLimitConfig{RPS: 1, Burst: 1, IdleTTL: time.Minute})
	b.now = func() time.Time { return clock }

	b.allow("a")
	b.allow("b")
	assert.Equal(t, 2, b.len())

	clock = clock.Add(2 * time.Minute)
	b.allow("c")
	assert.Equal(t, 1, b.len())
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"forwarded chain", map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"}, "10.0.0.2:1", "203.0.113.9"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.4"}, "10.0.0.2:1", "198.51.100.4"},
		{"bad forwarded", map[string]string{"X-Forwarded-For": "nonsense"}, "10.0.0.2:1", "10.0.0.2"},
		{"remote only", nil, "192.0.2.5:8080", "192.0.2.5"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, clientIP(req))
		})
	}
}
