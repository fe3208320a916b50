// Package identity resolves who is calling: a verified agent or an anonymous visitor.
package identity

import (
	"context"
	"net"
	"net/http"
	"regexp"
	"strings"
)

// VisitorHeaderName carries the widget's visitor token.
const VisitorHeaderName = "X-Visitor-ID"

// AgentTypingToken is the participant token agents use in typing events.
const AgentTypingToken = "agent"

type contextKey int

const (
	userIDKey contextKey = iota
	claimsKey
)

var visitorIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// UserIDFromContext extracts the verified agent ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(userIDKey).(string); ok {
		return v
	}
	return ""
}

// ClaimsFromContext returns the verified token claims, if any.
func ClaimsFromContext(ctx context.Context) *Claims {
	if v, ok := ctx.Value(claimsKey).(*Claims); ok {
		return v
	}
	return nil
}

// WithClaims returns a context carrying an authenticated agent.
func WithClaims(ctx context.Context, c *Claims) context.Context {
	ctx = context.WithValue(ctx, userIDKey, c.Subject)
	return context.WithValue(ctx, claimsKey, c)
}

// ValidVisitorID reports whether id is an acceptable visitor token.
// The agent sentinel is reserved so visitors cannot impersonate agent typing.
func ValidVisitorID(id string) bool {
	return id != AgentTypingToken && visitorIDPattern.MatchString(id)
}

// VisitorIDFromRequest reads the visitor token from the header or query string.
// Returns "" when absent or malformed.
func VisitorIDFromRequest(r *http.Request) string {
	id := strings.TrimSpace(r.Header.Get(VisitorHeaderName))
	if id == "" {
		id = strings.TrimSpace(r.URL.Query().Get("visitorId"))
	}
	if !ValidVisitorID(id) {
		return ""
	}
	return id
}

// IPFromRequest returns a normalized remote IP. chi's RealIP middleware has
// already replaced RemoteAddr with the forwarded client address.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
