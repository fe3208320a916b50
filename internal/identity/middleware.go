package identity

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/ashureev/supportdesk/internal/domain"
)

// UserStore is the persistence the middleware needs to keep agent records fresh.
type UserStore interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	UpsertUser(ctx context.Context, user *domain.User) error
}

func ensureUser(ctx context.Context, repo UserStore, c *Claims) error {
	user, err := repo.GetUser(ctx, c.Subject)
	if err != nil {
		return err
	}
	if user != nil && (c.Name == "" || c.Name == user.Name) && (c.Email == "" || c.Email == user.Email) {
		return nil
	}

	now := time.Now()
	created := now
	if user != nil {
		created = user.CreatedAt
	}
	return repo.UpsertUser(ctx, &domain.User{
		ID:        c.Subject,
		Name:      c.Name,
		Email:     c.Email,
		CreatedAt: created,
		UpdatedAt: now,
	})
}

// Middleware verifies an optional agent bearer token. A valid token puts the
// agent in the request context; an invalid one is rejected with 401. Requests
// without a token continue anonymously (widget traffic).
func Middleware(repo UserStore, verifier Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r.Header.Get("Authorization"))
			if token == "" {
				token = r.URL.Query().Get("access_token")
			}
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := verifier.Verify(r.Context(), token)
			if err != nil {
				slog.Debug("Rejected bearer token", "error", err, "path", r.URL.Path)
				writeJSONError(w, http.StatusUnauthorized, "invalid token")
				return
			}

			if err := ensureUser(r.Context(), repo, claims); err != nil {
				slog.Error("Failed to record agent", "user_id", claims.Subject, "error", err)
				writeJSONError(w, http.StatusInternalServerError, "failed to initialize user")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
		})
	}
}

// RequireAgent rejects requests that did not carry a verified agent token.
func RequireAgent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserIDFromContext(r.Context()) == "" {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
