package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ashureev/supportdesk/internal/domain"
)

type rowScanner interface {
	Scan(dest ...any) error
}

type convRow struct {
	id, websiteID, visitorID, status, title string
	ipAddress, country                      sql.NullString
	createdAt, updatedAt                    int64
}

func (r *convRow) dest() []any {
	return []any{
		&r.id, &r.websiteID, &r.visitorID, &r.status, &r.title,
		&r.ipAddress, &r.country, &r.createdAt, &r.updatedAt,
	}
}

func (r *convRow) toDomain() *domain.Conversation {
	return &domain.Conversation{
		ID:        r.id,
		WebsiteID: r.websiteID,
		VisitorID: r.visitorID,
		Status:    domain.ConversationStatus(r.status),
		Title:     r.title,
		IPAddress: r.ipAddress.String,
		Country:   r.country.String,
		CreatedAt: time.Unix(0, r.createdAt),
		UpdatedAt: time.Unix(0, r.updatedAt),
	}
}

func scanConversationRow(row rowScanner) (*domain.Conversation, error) {
	var r convRow
	err := row.Scan(r.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan conversation row: %w", err)
	}
	return r.toDomain(), nil
}

type websiteRow struct {
	id, ownerID, name, domain string
	createdAt                 int64
}

func (r *websiteRow) dest() []any {
	return []any{&r.id, &r.ownerID, &r.name, &r.domain, &r.createdAt}
}

func (r *websiteRow) toDomain() *domain.Website {
	return &domain.Website{
		ID:        r.id,
		OwnerID:   r.ownerID,
		Name:      r.name,
		Domain:    r.domain,
		CreatedAt: time.Unix(0, r.createdAt),
	}
}

func scanWebsite(row rowScanner) (*domain.Website, error) {
	var r websiteRow
	if err := row.Scan(r.dest()...); err != nil {
		return nil, err
	}
	return r.toDomain(), nil
}

// messageColumns selects a message joined with its agent author (alias u).
const messageColumns = `m.id, m.conversation_id, m.content, m.sender_type, m.sender_id, m.visitor_id,
	m.attachment_url, m.attachment_type, m.attachment_name, m.attachment_size,
	m.client_message_id, m.created_at, m.read_at, u.name, u.email`

// messageRow uses nullable columns throughout so it can scan LEFT JOINed rows.
type messageRow struct {
	id, conversationID, content, senderType sql.NullString
	senderID, visitorID                     sql.NullString
	attURL, attType, attName                sql.NullString
	attSize                                 sql.NullInt64
	clientMessageID                         sql.NullString
	createdAt, readAt                       sql.NullInt64
	userName, userEmail                     sql.NullString
}

func (r *messageRow) dest() []any {
	return []any{
		&r.id, &r.conversationID, &r.content, &r.senderType, &r.senderID, &r.visitorID,
		&r.attURL, &r.attType, &r.attName, &r.attSize,
		&r.clientMessageID, &r.createdAt, &r.readAt, &r.userName, &r.userEmail,
	}
}

func (r *messageRow) toDomain() *domain.Message {
	if !r.id.Valid {
		return nil
	}
	msg := &domain.Message{
		ID:              r.id.String,
		ConversationID:  r.conversationID.String,
		Content:         r.content.String,
		SenderType:      domain.SenderType(r.senderType.String),
		SenderID:        r.senderID.String,
		VisitorID:       r.visitorID.String,
		ClientMessageID: r.clientMessageID.String,
		CreatedAt:       time.Unix(0, r.createdAt.Int64),
	}
	if r.attURL.Valid {
		msg.Attachment = &domain.Attachment{
			URL:         r.attURL.String,
			ContentType: r.attType.String,
			Filename:    r.attName.String,
			Size:        r.attSize.Int64,
		}
	}
	if r.readAt.Valid {
		ts := time.Unix(0, r.readAt.Int64)
		msg.ReadAt = &ts
	}
	if msg.SenderType == domain.SenderUser {
		u := domain.User{Name: r.userName.String, Email: r.userEmail.String}
		msg.SenderName = u.DisplayName()
	}
	return msg
}

func scanMessageRow(row rowScanner) (*domain.Message, error) {
	var r messageRow
	err := row.Scan(r.dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan message row: %w", err)
	}
	return r.toDomain(), nil
}
