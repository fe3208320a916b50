// Package api provides the HTTP surface of the support desk: widget routes for
// anonymous visitors and agent routes for authenticated dashboard users.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/ashureev/supportdesk/internal/chat"
	"github.com/ashureev/supportdesk/internal/store"
)

const maxJSONBody = 1 << 20

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Handler provides common handler utilities.
type Handler struct {
	svc    *chat.Service
	repo   store.Repository
	logger *slog.Logger
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(svc *chat.Service, repo store.Repository, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, repo: repo, logger: logger.With("component", "api")}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// writeError maps service errors to HTTP statuses. Unclassified errors are
// logged and reported as 500 without detail.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var status int
	switch chat.CodeOf(err) {
	case chat.ErrorUnauthorized:
		status = http.StatusUnauthorized
	case chat.ErrorNotFound:
		status = http.StatusNotFound
	case chat.ErrorValidation:
		status = http.StatusBadRequest
	case chat.ErrorDownstream:
		status = http.StatusBadGateway
	default:
		h.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		Error(w, http.StatusInternalServerError, "internal server error")
		return
	}

	msg := strings.ToLower(string(chat.CodeOf(err)))
	var ce *chat.Error
	if errors.As(err, &ce) && ce.Reason != "" {
		msg = ce.Reason
	}
	Error(w, status, msg)
}

// decodeJSON reads and validates a JSON body. An empty body is accepted when
// optional is set and leaves v untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any, optional bool) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		if !(optional && errors.Is(err, io.EOF)) {
			return fmt.Errorf("invalid request body: %w", err)
		}
	}
	if err := validate.Struct(v); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	return fmt.Errorf("%s failed %q validation", fe.Field(), fe.Tag())
}
