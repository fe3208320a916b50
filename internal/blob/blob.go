// Package blob stores chat attachments and validates them before upload.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/ashureev/supportdesk/internal/domain"
	"github.com/ashureev/supportdesk/internal/metrics"
)

//go:generate mockgen -destination=../mocks/blob_store_mock.go -package=mocks . Store

// Store persists an object and returns the URL clients use to fetch it.
type Store interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
	Health(ctx context.Context) error
}

// Validation errors. Callers surface these as client errors.
var (
	ErrEmptyFile       = errors.New("file is empty")
	ErrFileTooLarge    = errors.New("file exceeds size limit")
	ErrUnsupportedType = errors.New("file type not allowed")
)

// DefaultMaxBytes is the attachment size limit.
const DefaultMaxBytes int64 = 5 << 20

// AllowedTypes lists the accepted attachment content types.
var AllowedTypes = []string{
	"image/jpeg",
	"image/png",
	"image/gif",
	"application/pdf",
	"text/plain",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// Uploader validates files and writes them to a Store under
// {websiteId}/{visitorId}/{random}{ext}.
type Uploader struct {
	store    Store
	maxBytes int64
}

// NewUploader creates an uploader. maxBytes <= 0 means DefaultMaxBytes.
func NewUploader(store Store, maxBytes int64) *Uploader {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Uploader{store: store, maxBytes: maxBytes}
}

// MaxBytes returns the size limit.
func (u *Uploader) MaxBytes() int64 { return u.maxBytes }

// Upload reads the file, checks its size and sniffed type, and stores it.
// The declared filename is kept for display only; the type comes from content.
func (u *Uploader) Upload(ctx context.Context, websiteID, visitorID, filename string, r io.Reader) (*domain.Attachment, error) {
	data, err := io.ReadAll(io.LimitReader(r, u.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	if int64(len(data)) > u.maxBytes {
		metrics.UploadsTotal.WithLabelValues("", "too_large").Inc()
		return nil, fmt.Errorf("%w (%d bytes max)", ErrFileTooLarge, u.maxBytes)
	}

	detected := mimetype.Detect(data)
	contentType, ok := allowed(detected)
	if !ok {
		metrics.UploadsTotal.WithLabelValues(detected.String(), "rejected").Inc()
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, detected.String())
	}

	key := strings.Join([]string{websiteID, visitorID, uuid.NewString() + detected.Extension()}, "/")
	url, err := u.store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), contentType)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues(contentType, "failed").Inc()
		return nil, fmt.Errorf("store upload: %w", err)
	}

	metrics.UploadsTotal.WithLabelValues(contentType, "stored").Inc()
	metrics.UploadBytesTotal.Add(float64(len(data)))

	name := filepath.Base(strings.TrimSpace(filename))
	if name == "." || name == "/" || name == "" {
		name = filepath.Base(key)
	}
	return &domain.Attachment{
		URL:         url,
		ContentType: contentType,
		Filename:    name,
		Size:        int64(len(data)),
	}, nil
}

func allowed(m *mimetype.MIME) (string, bool) {
	for _, t := range AllowedTypes {
		if m.Is(t) {
			return t, true
		}
	}
	return "", false
}
