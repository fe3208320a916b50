// Package geo resolves client IP addresses to a country name.
package geo

import (
	"context"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	lru "github.com/hashicorp/golang-lru"

	"github.com/ashureev/supportdesk/internal/domain"
	"github.com/ashureev/supportdesk/internal/metrics"
)

//go:generate mockgen -destination=../mocks/locator_mock.go -package=mocks . Locator

// Locator maps an IP to a country. Implementations never fail: an unresolvable
// address yields domain.UnknownCountry.
type Locator interface {
	Lookup(ctx context.Context, ip string) string
}

// Config configures an HTTP locator.
type Config struct {
	Endpoint  string
	Timeout   time.Duration
	CacheSize int
}

// HTTPLocator queries an ip-api.com compatible endpoint: GET {endpoint}/{ip}
// returning {"status":"success","country":"..."}.
type HTTPLocator struct {
	client   *resty.Client
	endpoint string
	cache    *lru.Cache
	logger   *slog.Logger
}

type lookupResponse struct {
	Status  string `json:"status"`
	Country string `json:"country"`
	Message string `json:"message"`
}

// NewHTTPLocator creates a locator with a bounded result cache.
func NewHTTPLocator(cfg Config, logger *slog.Logger) (*HTTPLocator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 1024
	}
	cache, err := lru.New(cfg.CacheSize)
	if err != nil {
		return nil, err
	}

	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(1).
		SetRetryWaitTime(100 * time.Millisecond)

	return &HTTPLocator{
		client:   client,
		endpoint: strings.TrimRight(cfg.Endpoint, "/"),
		cache:    cache,
		logger:   logger.With("component", "geo"),
	}, nil
}

// Lookup returns the country for ip, or domain.UnknownCountry.
// Failures are not cached so a transient outage does not stick.
func (l *HTTPLocator) Lookup(ctx context.Context, ip string) string {
	if !routable(ip) {
		metrics.GeoLookups.WithLabelValues("private").Inc()
		return domain.UnknownCountry
	}
	if v, ok := l.cache.Get(ip); ok {
		metrics.GeoLookups.WithLabelValues("cache_hit").Inc()
		return v.(string)
	}

	var out lookupResponse
	resp, err := l.client.R().
		SetContext(ctx).
		SetPathParam("ip", ip).
		SetResult(&out).
		Get(l.endpoint + "/{ip}")
	if err != nil {
		metrics.GeoLookups.WithLabelValues("error").Inc()
		l.logger.Warn("Geolocation request failed", "ip", ip, "error", err)
		return domain.UnknownCountry
	}
	if resp.IsError() || out.Status != "success" || out.Country == "" {
		metrics.GeoLookups.WithLabelValues("unresolved").Inc()
		l.logger.Debug("Geolocation unresolved", "ip", ip, "status_code", resp.StatusCode(), "message", out.Message)
		return domain.UnknownCountry
	}

	metrics.GeoLookups.WithLabelValues("resolved").Inc()
	l.cache.Add(ip, out.Country)
	return out.Country
}

func routable(ip string) bool {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return false
	}
	return !(parsed.IsLoopback() || parsed.IsPrivate() || parsed.IsUnspecified() ||
		parsed.IsLinkLocalUnicast() || parsed.IsLinkLocalMulticast())
}

// Static always returns the same country. Useful for offline development.
type Static string

// Lookup returns the fixed country.
func (s Static) Lookup(context.Context, string) string {
	if s == "" {
		return domain.UnknownCountry
	}
	return string(s)
}
