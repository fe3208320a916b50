package chat

import (
	"context"
	"errors"
	"io"

	"github.com/ashureev/supportdesk/internal/blob"
	"github.com/ashureev/supportdesk/internal/domain"
)

func (s *Service) upload(ctx context.Context, websiteID, visitorID, filename string, r io.Reader) (*domain.Attachment, error) {
	att, err := s.uploader.Upload(ctx, websiteID, visitorID, filename, r)
	switch {
	case err == nil:
		return att, nil
	case errors.Is(err, blob.ErrEmptyFile), errors.Is(err, blob.ErrFileTooLarge), errors.Is(err, blob.ErrUnsupportedType):
		return nil, newError(ErrorValidation, err.Error(), err)
	default:
		s.logger.Error("Attachment upload failed", "website_id", websiteID, "visitor_id", visitorID, "error", err)
		return nil, newError(ErrorDownstream, "attachment upload failed", err)
	}
}

// SendVisitorMessageWithFile uploads the file, then sends the message with the
// stored attachment. An upload failure aborts the send before anything is persisted.
func (s *Service) SendVisitorMessageWithFile(ctx context.Context, in VisitorMessage, filename string, file io.Reader) (*domain.Message, error) {
	att, err := s.UploadVisitorFile(ctx, in.WebsiteID, in.VisitorID, filename, file)
	if err != nil {
		return nil, err
	}
	in.Attachment = att
	return s.SendVisitorMessage(ctx, in)
}
