// Package chat is the conversation delivery core: it resolves conversations,
// persists messages and fans events out to realtime channels.
package chat

import (
	"log/slog"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/ashureev/supportdesk/internal/blob"
	"github.com/ashureev/supportdesk/internal/domain"
	"github.com/ashureev/supportdesk/internal/geo"
	"github.com/ashureev/supportdesk/internal/realtime"
	"github.com/ashureev/supportdesk/internal/store"
)

// TranscriptWriter records persisted messages outside the store.
type TranscriptWriter interface {
	Append(conversationID string, msg *domain.Message)
}

// Config holds the optional collaborators and tuning of a Service.
type Config struct {
	// PublishTimeout bounds each fan-out send. Fan-out runs detached from the
	// request context so a disconnecting client cannot cancel it.
	PublishTimeout time.Duration
	Uploader       *blob.Uploader
	Transcript     TranscriptWriter
	Clock          clock.Clock
	Logger         *slog.Logger
}

// Service implements the conversation delivery operations.
type Service struct {
	repo       store.Repository
	publisher  realtime.Publisher
	locator    geo.Locator
	uploader   *blob.Uploader
	transcript TranscriptWriter
	clock      clock.Clock
	timeout    time.Duration
	logger     *slog.Logger
}

// NewService creates a chat service.
func NewService(repo store.Repository, publisher realtime.Publisher, locator geo.Locator, cfg Config) *Service {
	if locator == nil {
		locator = geo.Static(domain.UnknownCountry)
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.New()
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Service{
		repo:       repo,
		publisher:  publisher,
		locator:    locator,
		uploader:   cfg.Uploader,
		transcript: cfg.Transcript,
		clock:      cfg.Clock,
		timeout:    cfg.PublishTimeout,
		logger:     cfg.Logger.With("component", "chat"),
	}
}

// Uploader returns the attachment uploader, or nil when uploads are disabled.
func (s *Service) Uploader() *blob.Uploader { return s.uploader }

// now returns the service clock time in UTC.
func (s *Service) now() time.Time {
	return s.clock.Now().UTC()
}
