package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
}

func TestRateLimiterSlidingWindow(t *testing.T) {
	clk := clock.NewMock()
	rl := NewRateLimiter(2, time.Minute, clk)

	require.True(t, rl.Allow("1.2.3.4"))
	require.True(t, rl.Allow("1.2.3.4"))
	require.False(t, rl.Allow("1.2.3.4"))
	require.True(t, rl.Allow("5.6.7.8"), "keys are independent")

	clk.Add(61 * time.Second)
	require.True(t, rl.Allow("1.2.3.4"))
}

func TestRateLimiterEvictsIdleKeys(t *testing.T) {
	clk := clock.NewMock()
	rl := NewRateLimiter(5, time.Minute, clk)
	rl.Allow("a")
	rl.Allow("b")
	require.Equal(t, 2, rl.keys())

	clk.Add(2 * time.Minute)
	rl.evict()
	require.Equal(t, 0, rl.keys())
}

func TestRateLimiterMiddleware(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute, clock.NewMock())
	h := rl.Middleware(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/api/widget/messages", nil)
	req.RemoteAddr = "203.0.113.9:5555"

	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	require.Equal(t, "60", w.Header().Get("Retry-After"))
}

func TestCORS(t *testing.T) {
	h := CORS([]string{"https://app.example.com"})(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	wild := CORS([]string{"*"})(okHandler())
	req = httptest.NewRequest(http.MethodOptions, "/api/me", nil)
	req.Header.Set("Origin", "https://anywhere.example.com")
	w = httptest.NewRecorder()
	wild.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "https://anywhere.example.com", w.Header().Get("Access-Control-Allow-Origin"))
	require.Empty(t, w.Header().Get("Access-Control-Allow-Credentials"))
}

func TestPublicCORS(t *testing.T) {
	h := PublicCORS(okHandler())
	req := httptest.NewRequest(http.MethodOptions, "/api/widget/messages", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	require.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-Visitor-ID")
}
