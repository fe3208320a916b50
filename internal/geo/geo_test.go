package geo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ashureev/supportdesk/internal/domain"
)

func newTestLocator(t *testing.T, handler http.HandlerFunc) (*HTTPLocator, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	loc, err := NewHTTPLocator(Config{Endpoint: srv.URL + "/json", Timeout: time.Second, CacheSize: 8}, nil)
	require.NoError(t, err)
	loc.client.SetRetryCount(0)
	return loc, &calls
}

func TestLookupResolvesAndCaches(t *testing.T) {
	loc, calls := newTestLocator(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/json/8.8.8.8") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","country":"United States"}`))
	})

	require.Equal(t, "United States", loc.Lookup(context.Background(), "8.8.8.8"))
	require.Equal(t, "United States", loc.Lookup(context.Background(), "8.8.8.8"))
	require.Equal(t, int32(1), calls.Load())
}

func TestLookupFailureFallsBackToUnknown(t *testing.T) {
	loc, calls := newTestLocator(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"fail","message":"reserved range"}`))
	})

	require.Equal(t, domain.UnknownCountry, loc.Lookup(context.Background(), "1.1.1.1"))
	require.Equal(t, domain.UnknownCountry, loc.Lookup(context.Background(), "1.1.1.1"))
	require.Equal(t, int32(2), calls.Load(), "failures are not cached")
}

func TestLookupServerErrorFallsBackToUnknown(t *testing.T) {
	loc, _ := newTestLocator(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	require.Equal(t, domain.UnknownCountry, loc.Lookup(context.Background(), "1.1.1.1"))
}

func TestLookupSkipsPrivateAddresses(t *testing.T) {
	loc, calls := newTestLocator(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("private addresses must not reach the endpoint")
	})

	for _, ip := range []string{"127.0.0.1", "10.1.2.3", "192.168.0.4", "::1", "not-an-ip", ""} {
		require.Equal(t, domain.UnknownCountry, loc.Lookup(context.Background(), ip), ip)
	}
	require.Equal(t, int32(0), calls.Load())
}

func TestStatic(t *testing.T) {
	require.Equal(t, "France", Static("France").Lookup(context.Background(), "8.8.8.8"))
	require.Equal(t, domain.UnknownCountry, Static("").Lookup(context.Background(), "8.8.8.8"))
}
