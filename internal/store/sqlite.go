package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ashureev/supportdesk/internal/domain"
	"github.com/ashureev/supportdesk/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
// Timestamps are stored as unix nanoseconds so that messages created in the
// same second keep their order.
type SQLiteStore struct {
	db    *sql.DB
	retry shared.RetryPolicy
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// modernc.org/sqlite takes connection pragmas as _pragma parameters.
	dsn := "file:" + dbPath +
		"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, retry: shared.DefaultRetryPolicy}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		email TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS websites (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		name TEXT NOT NULL,
		domain TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_websites_owner ON websites(owner_id);

	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		website_id TEXT NOT NULL REFERENCES websites(id) ON DELETE CASCADE,
		visitor_id TEXT NOT NULL,
		status TEXT NOT NULL,
		title TEXT NOT NULL,
		ip_address TEXT,
		country TEXT,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_visitor ON conversations(website_id, visitor_id, status, updated_at);

	CREATE TABLE IF NOT EXISTS conversation_members (
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL,
		PRIMARY KEY (conversation_id, user_id)
	);
	CREATE INDEX IF NOT EXISTS idx_conversation_members_user ON conversation_members(user_id);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		content TEXT NOT NULL,
		sender_type TEXT NOT NULL,
		sender_id TEXT,
		visitor_id TEXT,
		attachment_url TEXT,
		attachment_type TEXT,
		attachment_name TEXT,
		attachment_size INTEGER,
		client_message_id TEXT,
		created_at INTEGER NOT NULL,
		read_at INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_messages_client_id
		ON messages(conversation_id, sender_type, COALESCE(sender_id, visitor_id), client_message_id);

	CREATE TABLE IF NOT EXISTS notifications (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		website_id TEXT,
		type TEXT NOT NULL,
		message TEXT NOT NULL,
		read INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_notifications_user ON notifications(user_id, created_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// UpsertUser creates or refreshes an agent record.
func (s *SQLiteStore) UpsertUser(ctx context.Context, user *domain.User) error {
	query := `
	INSERT INTO users (id, name, email, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = CASE WHEN excluded.name != '' THEN excluded.name ELSE users.name END,
		email = CASE WHEN excluded.email != '' THEN excluded.email ELSE users.email END,
		updated_at = excluded.updated_at`

	return shared.RetryOnConflict(ctx, s.retry, "upsert user", func() error {
		_, err := s.db.ExecContext(ctx, query,
			user.ID, user.Name, user.Email,
			user.CreatedAt.UnixNano(), user.UpdatedAt.UnixNano(),
		)
		return err
	})
}

// GetUser retrieves an agent by ID.
func (s *SQLiteStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, created_at, updated_at FROM users WHERE id = ?`, userID)

	var user domain.User
	var createdAt, updatedAt int64
	err := row.Scan(&user.ID, &user.Name, &user.Email, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}
	user.CreatedAt = time.Unix(0, createdAt)
	user.UpdatedAt = time.Unix(0, updatedAt)
	return &user, nil
}

// CreateWebsite inserts a website. A duplicate ID returns ErrAlreadyExists.
func (s *SQLiteStore) CreateWebsite(ctx context.Context, website *domain.Website) error {
	err := shared.RetryOnConflict(ctx, s.retry, "create website", func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO websites (id, owner_id, name, domain, created_at) VALUES (?, ?, ?, ?, ?)`,
			website.ID, website.OwnerID, website.Name, website.Domain, website.CreatedAt.UnixNano(),
		)
		return err
	})
	if shared.IsSQLiteConstraintError(err) {
		return fmt.Errorf("website %s: %w", website.ID, ErrAlreadyExists)
	}
	return err
}

// GetWebsite retrieves a website by ID.
func (s *SQLiteStore) GetWebsite(ctx context.Context, websiteID string) (*domain.Website, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, name, domain, created_at FROM websites WHERE id = ?`, websiteID)
	w, err := scanWebsite(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan website row: %w", err)
	}
	return w, nil
}

// ListWebsitesByOwner returns the websites owned by a user.
func (s *SQLiteStore) ListWebsitesByOwner(ctx context.Context, ownerID string) ([]*domain.Website, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, name, domain, created_at FROM websites WHERE owner_id = ? ORDER BY created_at`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("query websites: %w", err)
	}
	defer closeRows(rows, "websites")

	var websites []*domain.Website
	for rows.Next() {
		w, err := scanWebsite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan website row: %w", err)
		}
		websites = append(websites, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate websites: %w", err)
	}
	return websites, nil
}

// AddConversationMember grants a user direct access to a conversation.
func (s *SQLiteStore) AddConversationMember(ctx context.Context, conversationID, userID string) error {
	return shared.RetryOnConflict(ctx, s.retry, "add conversation member", func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO conversation_members (conversation_id, user_id) VALUES (?, ?) ON CONFLICT DO NOTHING`,
			conversationID, userID)
		return err
	})
}

// CanAccessWebsite reports whether the user owns the website or belongs to one of its conversations.
func (s *SQLiteStore) CanAccessWebsite(ctx context.Context, userID, websiteID string) (bool, error) {
	query := `
	SELECT EXISTS (
		SELECT 1 FROM websites WHERE id = ? AND owner_id = ?
		UNION ALL
		SELECT 1 FROM conversation_members m
		JOIN conversations c ON c.id = m.conversation_id
		WHERE c.website_id = ? AND m.user_id = ?
	)`
	var ok bool
	if err := s.db.QueryRowContext(ctx, query, websiteID, userID, websiteID, userID).Scan(&ok); err != nil {
		return false, fmt.Errorf("check website access: %w", err)
	}
	return ok, nil
}

// CanAccessConversation reports whether the user owns the conversation's website or is a member.
func (s *SQLiteStore) CanAccessConversation(ctx context.Context, userID, conversationID string) (bool, error) {
	query := `
	SELECT EXISTS (
		SELECT 1 FROM conversations c
		JOIN websites w ON w.id = c.website_id
		WHERE c.id = ? AND w.owner_id = ?
		UNION ALL
		SELECT 1 FROM conversation_members WHERE conversation_id = ? AND user_id = ?
	)`
	var ok bool
	if err := s.db.QueryRowContext(ctx, query, conversationID, userID, conversationID, userID).Scan(&ok); err != nil {
		return false, fmt.Errorf("check conversation access: %w", err)
	}
	return ok, nil
}

// CreateConversation inserts a conversation.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	query := `
	INSERT INTO conversations (id, website_id, visitor_id, status, title, ip_address, country, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	return shared.RetryOnConflict(ctx, s.retry, "create conversation", func() error {
		_, err := s.db.ExecContext(ctx, query,
			conv.ID, conv.WebsiteID, conv.VisitorID, string(conv.Status), conv.Title,
			nullString(conv.IPAddress), nullString(conv.Country),
			conv.CreatedAt.UnixNano(), conv.UpdatedAt.UnixNano(),
		)
		return err
	})
}

const conversationColumns = `c.id, c.website_id, c.visitor_id, c.status, c.title, c.ip_address, c.country, c.created_at, c.updated_at`

// GetConversation retrieves a conversation by ID.
func (s *SQLiteStore) GetConversation(ctx context.Context, conversationID string) (*domain.Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+conversationColumns+` FROM conversations c WHERE c.id = ?`, conversationID)
	return scanConversationRow(row)
}

// FindActiveConversation returns the most recently updated ACTIVE conversation for the pair.
func (s *SQLiteStore) FindActiveConversation(ctx context.Context, websiteID, visitorID string) (*domain.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+conversationColumns+` FROM conversations c
		WHERE c.website_id = ? AND c.visitor_id = ? AND c.status = ?
		ORDER BY c.updated_at DESC, c.rowid DESC
		LIMIT 1`,
		websiteID, visitorID, string(domain.StatusActive))
	return scanConversationRow(row)
}

// FindLatestConversation returns the ACTIVE conversation for the pair, else the most recent one.
func (s *SQLiteStore) FindLatestConversation(ctx context.Context, websiteID, visitorID string) (*domain.Conversation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+conversationColumns+` FROM conversations c
		WHERE c.website_id = ? AND c.visitor_id = ?
		ORDER BY (c.status = ?) DESC, c.updated_at DESC, c.rowid DESC
		LIMIT 1`,
		websiteID, visitorID, string(domain.StatusActive))
	return scanConversationRow(row)
}

// UpdateConversationLocation stores a new client address and country.
func (s *SQLiteStore) UpdateConversationLocation(ctx context.Context, conversationID, ipAddress, country string, at time.Time) error {
	return s.execAffectingOne(ctx, "update conversation location",
		`UPDATE conversations SET ip_address = ?, country = ?, updated_at = ? WHERE id = ?`,
		nullString(ipAddress), nullString(country), at.UnixNano(), conversationID)
}

// UpdateConversationStatus sets the status of a conversation.
func (s *SQLiteStore) UpdateConversationStatus(ctx context.Context, conversationID string, status domain.ConversationStatus, at time.Time) error {
	return s.execAffectingOne(ctx, "update conversation status",
		`UPDATE conversations SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), at.UnixNano(), conversationID)
}

// ListConversationsForUser returns conversations visible to the user, most recently updated first.
func (s *SQLiteStore) ListConversationsForUser(ctx context.Context, userID string) ([]*domain.ConversationSummary, error) {
	query := `
	SELECT ` + conversationColumns + `,
	       w.id, w.owner_id, w.name, w.domain, w.created_at,
	       ` + messageColumns + `
	FROM conversations c
	JOIN websites w ON w.id = c.website_id
	LEFT JOIN messages m ON m.id = (
		SELECT id FROM messages WHERE conversation_id = c.id
		ORDER BY created_at DESC, rowid DESC LIMIT 1
	)
	LEFT JOIN users u ON u.id = m.sender_id
	WHERE w.owner_id = ?
	   OR EXISTS (SELECT 1 FROM conversation_members cm WHERE cm.conversation_id = c.id AND cm.user_id = ?)
	ORDER BY c.updated_at DESC, c.rowid DESC`

	rows, err := s.db.QueryContext(ctx, query, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer closeRows(rows, "conversations")

	var out []*domain.ConversationSummary
	for rows.Next() {
		var conv convRow
		var web websiteRow
		var msg messageRow
		dest := append(conv.dest(), web.dest()...)
		dest = append(dest, msg.dest()...)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan conversation row: %w", err)
		}
		out = append(out, &domain.ConversationSummary{
			Conversation: *conv.toDomain(),
			Website:      web.toDomain(),
			LastMessage:  msg.toDomain(),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return out, nil
}

// AppendMessage persists msg and bumps the conversation's updated_at.
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *domain.Message) (bool, error) {
	var duplicate bool
	err := shared.RetryOnConflict(ctx, s.retry, "append message", func() error {
		var err error
		duplicate, err = s.appendMessageOnce(ctx, msg)
		return err
	})
	return duplicate, err
}

func (s *SQLiteStore) appendMessageOnce(ctx context.Context, msg *domain.Message) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var attURL, attType, attName sql.NullString
	var attSize sql.NullInt64
	if a := msg.Attachment; a != nil {
		attURL = sql.NullString{String: a.URL, Valid: true}
		attType = sql.NullString{String: a.ContentType, Valid: true}
		attName = sql.NullString{String: a.Filename, Valid: true}
		attSize = sql.NullInt64{Int64: a.Size, Valid: true}
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO messages (
			id, conversation_id, content, sender_type, sender_id, visitor_id,
			attachment_url, attachment_type, attachment_name, attachment_size,
			client_message_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT DO NOTHING`,
		msg.ID, msg.ConversationID, msg.Content, string(msg.SenderType),
		nullString(msg.SenderID), nullString(msg.VisitorID),
		attURL, attType, attName, attSize,
		nullString(msg.ClientMessageID), msg.CreatedAt.UnixNano(),
	)
	if err != nil {
		return false, fmt.Errorf("insert message: %w", err)
	}
	inserted, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}

	var stored *domain.Message
	if inserted == 0 {
		row := tx.QueryRowContext(ctx, `
			SELECT `+messageColumns+` FROM messages m
			LEFT JOIN users u ON u.id = m.sender_id
			WHERE m.conversation_id = ? AND m.sender_type = ?
				AND COALESCE(m.sender_id, m.visitor_id) = ? AND m.client_message_id = ?`,
			msg.ConversationID, string(msg.SenderType), senderKey(msg), msg.ClientMessageID)
		stored, err = scanMessageRow(row)
	} else {
		if _, err = tx.ExecContext(ctx,
			`UPDATE conversations SET updated_at = MAX(updated_at, ?) WHERE id = ?`,
			msg.CreatedAt.UnixNano(), msg.ConversationID); err != nil {
			return false, fmt.Errorf("touch conversation: %w", err)
		}
		row := tx.QueryRowContext(ctx, `
			SELECT `+messageColumns+` FROM messages m
			LEFT JOIN users u ON u.id = m.sender_id
			WHERE m.id = ?`, msg.ID)
		stored, err = scanMessageRow(row)
	}
	if err != nil {
		return false, err
	}
	if stored == nil {
		return false, fmt.Errorf("reload message %s: %w", msg.ID, ErrNotFound)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit message: %w", err)
	}
	*msg = *stored
	return inserted == 0, nil
}

// senderKey is the id that scopes a clientMessageId: the agent for USER
// messages, the visitor token for VISITOR messages.
func senderKey(msg *domain.Message) string {
	if msg.SenderType == domain.SenderUser {
		return msg.SenderID
	}
	return msg.VisitorID
}

// ListMessages returns all messages of a conversation in ascending creation order.
// Rows created at the same instant keep their insertion order.
func (s *SQLiteStore) ListMessages(ctx context.Context, conversationID string) ([]*domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+` FROM messages m
		LEFT JOIN users u ON u.id = m.sender_id
		WHERE m.conversation_id = ?
		ORDER BY m.created_at ASC, m.rowid ASC`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer closeRows(rows, "messages")

	messages := make([]*domain.Message, 0)
	for rows.Next() {
		var r messageRow
		if err := rows.Scan(r.dest()...); err != nil {
			return nil, fmt.Errorf("scan message row: %w", err)
		}
		messages = append(messages, r.toDomain())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

// MarkMessagesRead sets read_at on unread VISITOR messages within scope and returns the updated IDs.
func (s *SQLiteStore) MarkMessagesRead(ctx context.Context, scope ReadScope, at time.Time) ([]string, error) {
	if scope.WebsiteID == "" {
		return nil, fmt.Errorf("mark messages read: website scope required")
	}

	var b strings.Builder
	args := []any{at.UnixNano(), string(domain.SenderVisitor)}
	b.WriteString(`UPDATE messages SET read_at = ? WHERE sender_type = ? AND read_at IS NULL`)
	if len(scope.MessageIDs) > 0 {
		b.WriteString(` AND id IN (` + placeholders(len(scope.MessageIDs)) + `)`)
		for _, id := range scope.MessageIDs {
			args = append(args, id)
		}
	}
	b.WriteString(` AND conversation_id IN (SELECT id FROM conversations WHERE website_id = ?`)
	args = append(args, scope.WebsiteID)
	if scope.VisitorID != "" {
		b.WriteString(` AND visitor_id = ?`)
		args = append(args, scope.VisitorID)
	}
	if scope.ConversationID != "" {
		b.WriteString(` AND id = ?`)
		args = append(args, scope.ConversationID)
	}
	b.WriteString(`) RETURNING id`)

	var ids []string
	err := shared.RetryOnConflict(ctx, s.retry, "mark messages read", func() error {
		ids = ids[:0]
		rows, err := s.db.QueryContext(ctx, b.String(), args...)
		if err != nil {
			return err
		}
		defer closeRows(rows, "mark read")
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				return err
			}
			ids = append(ids, id)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// CreateNotification inserts a notification.
func (s *SQLiteStore) CreateNotification(ctx context.Context, n *domain.Notification) error {
	return shared.RetryOnConflict(ctx, s.retry, "create notification", func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO notifications (id, user_id, website_id, type, message, read, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			n.ID, n.UserID, nullString(n.WebsiteID), n.Type, n.Message, n.Read, n.CreatedAt.UnixNano())
		return err
	})
}

// ListNotifications returns a user's notifications, newest first.
func (s *SQLiteStore) ListNotifications(ctx context.Context, userID string, limit int) ([]*domain.Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, website_id, type, message, read, created_at
		FROM notifications WHERE user_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer closeRows(rows, "notifications")

	notifications := make([]*domain.Notification, 0)
	for rows.Next() {
		var n domain.Notification
		var websiteID sql.NullString
		var createdAt int64
		if err := rows.Scan(&n.ID, &n.UserID, &websiteID, &n.Type, &n.Message, &n.Read, &createdAt); err != nil {
			return nil, fmt.Errorf("scan notification row: %w", err)
		}
		n.WebsiteID = websiteID.String
		n.CreatedAt = time.Unix(0, createdAt)
		notifications = append(notifications, &n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate notifications: %w", err)
	}
	return notifications, nil
}

// MarkNotificationsRead marks the given notifications read for their owner only.
func (s *SQLiteStore) MarkNotificationsRead(ctx context.Context, userID string, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, userID)
	for _, id := range ids {
		args = append(args, id)
	}

	var affected int64
	err := shared.RetryOnConflict(ctx, s.retry, "mark notifications read", func() error {
		result, err := s.db.ExecContext(ctx,
			`UPDATE notifications SET read = 1 WHERE user_id = ? AND read = 0 AND id IN (`+placeholders(len(ids))+`)`,
			args...)
		if err != nil {
			return err
		}
		affected, err = result.RowsAffected()
		return err
	})
	return affected, err
}

func (s *SQLiteStore) execAffectingOne(ctx context.Context, op, query string, args ...any) error {
	var rows int64
	err := shared.RetryOnConflict(ctx, s.retry, op, func() error {
		result, err := s.db.ExecContext(ctx, query, args...)
		if err != nil {
			return err
		}
		rows, err = result.RowsAffected()
		return err
	})
	if err != nil {
		return err
	}
	if rows == 0 {
		slog.Warn("Update affected 0 rows", "op", op)
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return nil
}

func closeRows(rows *sql.Rows, what string) {
	if err := rows.Close(); err != nil {
		slog.Warn("failed to close rows", "query", what, "error", err)
	}
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
