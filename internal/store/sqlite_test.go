package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/supportdesk/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedWebsite(t *testing.T, s *SQLiteStore, ownerID string) *domain.Website {
	t.Helper()
	w := &domain.Website{ID: uuid.NewString(), OwnerID: ownerID, Name: "Acme", Domain: "acme.test", CreatedAt: time.Now()}
	require.NoError(t, s.CreateWebsite(context.Background(), w))
	return w
}

func seedConversation(t *testing.T, s *SQLiteStore, websiteID, visitorID string, status domain.ConversationStatus, at time.Time) *domain.Conversation {
	t.Helper()
	c := &domain.Conversation{
		ID: uuid.NewString(), WebsiteID: websiteID, VisitorID: visitorID,
		Status: status, Title: domain.DefaultConversationTitle,
		CreatedAt: at, UpdatedAt: at,
	}
	require.NoError(t, s.CreateConversation(context.Background(), c))
	return c
}

func visitorMessage(convID, visitorID, content string, at time.Time) *domain.Message {
	return &domain.Message{
		ID: uuid.NewString(), ConversationID: convID, Content: content,
		SenderType: domain.SenderVisitor, VisitorID: visitorID, CreatedAt: at,
	}
}

func TestUpsertUserKeepsNameWhenEmpty(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, s.UpsertUser(ctx, &domain.User{ID: "u1", Name: "Alice", Email: "a@x.io", CreatedAt: now, UpdatedAt: now}))
	require.NoError(t, s.UpsertUser(ctx, &domain.User{ID: "u1", CreatedAt: now, UpdatedAt: now.Add(time.Second)}))

	u, err := s.GetUser(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "Alice", u.Name)
	require.Equal(t, "a@x.io", u.Email)

	missing, err := s.GetUser(ctx, "nobody")
	require.NoError(t, err)
	require.Nil(t, missing)
}

func TestFindActiveConversationPrefersMostRecentlyUpdated(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	w := seedWebsite(t, s, "owner")
	base := time.Now()

	older := seedConversation(t, s, w.ID, "v1", domain.StatusActive, base)
	newer := seedConversation(t, s, w.ID, "v1", domain.StatusActive, base.Add(time.Minute))
	seedConversation(t, s, w.ID, "v1", domain.StatusClosed, base.Add(2*time.Minute))

	got, err := s.FindActiveConversation(ctx, w.ID, "v1")
	require.NoError(t, err)
	require.Equal(t, newer.ID, got.ID)

	require.NoError(t, s.UpdateConversationLocation(ctx, older.ID, "1.2.3.4", "FR", base.Add(3*time.Minute)))
	got, err = s.FindActiveConversation(ctx, w.ID, "v1")
	require.NoError(t, err)
	require.Equal(t, older.ID, got.ID)
	require.Equal(t, "FR", got.Country)

	none, err := s.FindActiveConversation(ctx, w.ID, "other")
	require.NoError(t, err)
	require.Nil(t, none)
}

func TestFindLatestConversationFallsBackToClosed(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	w := seedWebsite(t, s, "owner")

	closed := seedConversation(t, s, w.ID, "v1", domain.StatusClosed, time.Now())
	got, err := s.FindLatestConversation(ctx, w.ID, "v1")
	require.NoError(t, err)
	require.Equal(t, closed.ID, got.ID)

	active := seedConversation(t, s, w.ID, "v1", domain.StatusActive, time.Now().Add(-time.Hour))
	got, err = s.FindLatestConversation(ctx, w.ID, "v1")
	require.NoError(t, err)
	require.Equal(t, active.ID, got.ID)
}

func TestUpdateConversationStatusNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.UpdateConversationStatus(context.Background(), "missing", domain.StatusClosed, time.Now())
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestAppendMessageOrderingAndSenderJoin(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()
	w := seedWebsite(t, s, "agent-1")
	require.NoError(t, s.UpsertUser(ctx, &domain.User{ID: "agent-1", Name: "Ana", CreatedAt: now, UpdatedAt: now}))
	conv := seedConversation(t, s, w.ID, "v1", domain.StatusActive, now)

	// Same timestamp: insertion order must win.
	first := visitorMessage(conv.ID, "v1", "first", now)
	second := visitorMessage(conv.ID, "v1", "second", now)
	reply := &domain.Message{
		ID: uuid.NewString(), ConversationID: conv.ID, Content: "hi",
		SenderType: domain.SenderUser, SenderID: "agent-1", CreatedAt: now.Add(time.Millisecond),
	}
	for _, m := range []*domain.Message{first, second, reply} {
		dup, err := s.AppendMessage(ctx, m)
		require.NoError(t, err)
		require.False(t, dup)
	}
	require.Equal(t, "Ana", reply.SenderName)

	msgs, err := s.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.Equal(t, "first", msgs[0].Content)
	require.Equal(t, "second", msgs[1].Content)
	require.Equal(t, "hi", msgs[2].Content)
	require.Equal(t, "v1", msgs[0].VisitorID)
	require.Empty(t, msgs[0].SenderID)
	require.Equal(t, "Ana", msgs[2].SenderName)

	updated, err := s.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.Equal(t, reply.CreatedAt.UnixNano(), updated.UpdatedAt.UnixNano())
}

func TestAppendMessageClientIDIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	w := seedWebsite(t, s, "owner")
	conv := seedConversation(t, s, w.ID, "v1", domain.StatusActive, time.Now())

	m1 := visitorMessage(conv.ID, "v1", "hello", time.Now())
	m1.ClientMessageID = "c-1"
	dup, err := s.AppendMessage(ctx, m1)
	require.NoError(t, err)
	require.False(t, dup)

	m2 := visitorMessage(conv.ID, "v1", "hello again", time.Now())
	m2.ClientMessageID = "c-1"
	dup, err = s.AppendMessage(ctx, m2)
	require.NoError(t, err)
	require.True(t, dup)
	require.Equal(t, m1.ID, m2.ID)
	require.Equal(t, "hello", m2.Content)

	msgs, err := s.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
}

func TestAppendMessageClientIDPerSender(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	w := seedWebsite(t, s, "owner")
	conv := seedConversation(t, s, w.ID, "v1", domain.StatusActive, time.Now())

	fromVisitor := visitorMessage(conv.ID, "v1", "hi", time.Now())
	fromVisitor.ClientMessageID = "c-1"
	_, err := s.AppendMessage(ctx, fromVisitor)
	require.NoError(t, err)

	fromAgent := &domain.Message{
		ID: uuid.NewString(), ConversationID: conv.ID, Content: "reply",
		SenderType: domain.SenderUser, SenderID: "owner", ClientMessageID: "c-1", CreatedAt: time.Now(),
	}
	dup, err := s.AppendMessage(ctx, fromAgent)
	require.NoError(t, err)
	require.False(t, dup)
	require.Equal(t, "reply", fromAgent.Content)

	msgs, err := s.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
}

func TestCreateWebsiteDuplicateID(t *testing.T) {
	s := newTestStore(t)
	w := seedWebsite(t, s, "owner")

	err := s.CreateWebsite(context.Background(), &domain.Website{ID: w.ID, OwnerID: "other", Name: "Copy", CreatedAt: time.Now()})
	require.ErrorIs(t, err, ErrAlreadyExists)

	got, err := s.GetWebsite(context.Background(), w.ID)
	require.NoError(t, err)
	require.Equal(t, "owner", got.OwnerID)
}

func TestAppendMessageWithAttachment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	w := seedWebsite(t, s, "owner")
	conv := seedConversation(t, s, w.ID, "v1", domain.StatusActive, time.Now())

	m := visitorMessage(conv.ID, "v1", "", time.Now())
	m.Attachment = &domain.Attachment{URL: "https://cdn/x.png", ContentType: "image/png", Filename: "x.png", Size: 42}
	_, err := s.AppendMessage(ctx, m)
	require.NoError(t, err)

	msgs, err := s.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Equal(t, m.Attachment, msgs[0].Attachment)
}

func TestMarkMessagesReadScopesAndIsWriteOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()
	w := seedWebsite(t, s, "owner")
	other := seedWebsite(t, s, "owner-2")
	conv := seedConversation(t, s, w.ID, "v1", domain.StatusActive, now)
	foreign := seedConversation(t, s, other.ID, "v1", domain.StatusActive, now)

	a := visitorMessage(conv.ID, "v1", "a", now)
	b := visitorMessage(conv.ID, "v1", "b", now)
	c := visitorMessage(foreign.ID, "v1", "c", now)
	agent := &domain.Message{ID: uuid.NewString(), ConversationID: conv.ID, Content: "x", SenderType: domain.SenderUser, SenderID: "owner", CreatedAt: now}
	for _, m := range []*domain.Message{a, b, c, agent} {
		_, err := s.AppendMessage(ctx, m)
		require.NoError(t, err)
	}

	readAt := now.Add(time.Second)
	ids, err := s.MarkMessagesRead(ctx, ReadScope{WebsiteID: w.ID, VisitorID: "v1", MessageIDs: []string{a.ID, c.ID, agent.ID}}, readAt)
	require.NoError(t, err)
	require.Equal(t, []string{a.ID}, ids)

	ids, err = s.MarkMessagesRead(ctx, ReadScope{WebsiteID: w.ID, VisitorID: "v1", MessageIDs: []string{a.ID, b.ID}}, readAt.Add(time.Second))
	require.NoError(t, err)
	require.Equal(t, []string{b.ID}, ids)

	msgs, err := s.ListMessages(ctx, conv.ID)
	require.NoError(t, err)
	require.Equal(t, readAt.UnixNano(), msgs[0].ReadAt.UnixNano(), "read_at is write-once")
	require.Nil(t, msgs[2].ReadAt)

	ids, err = s.MarkMessagesRead(ctx, ReadScope{WebsiteID: other.ID, ConversationID: foreign.ID}, readAt)
	require.NoError(t, err)
	require.Equal(t, []string{c.ID}, ids)
}

func TestAccessChecks(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	w := seedWebsite(t, s, "owner")
	conv := seedConversation(t, s, w.ID, "v1", domain.StatusActive, time.Now())

	ok, err := s.CanAccessWebsite(ctx, "owner", w.ID)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.CanAccessConversation(ctx, "helper", conv.ID)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.AddConversationMember(ctx, conv.ID, "helper"))
	require.NoError(t, s.AddConversationMember(ctx, conv.ID, "helper"))

	ok, err = s.CanAccessConversation(ctx, "helper", conv.ID)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.CanAccessWebsite(ctx, "helper", w.ID)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestListConversationsForUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()
	w := seedWebsite(t, s, "owner")
	elsewhere := seedWebsite(t, s, "someone-else")

	quiet := seedConversation(t, s, w.ID, "v1", domain.StatusActive, now)
	busy := seedConversation(t, s, w.ID, "v2", domain.StatusActive, now)
	shared := seedConversation(t, s, elsewhere.ID, "v3", domain.StatusActive, now)
	seedConversation(t, s, elsewhere.ID, "v4", domain.StatusActive, now)
	require.NoError(t, s.AddConversationMember(ctx, shared.ID, "owner"))

	_, err := s.AppendMessage(ctx, visitorMessage(busy.ID, "v2", "one", now.Add(time.Second)))
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, visitorMessage(busy.ID, "v2", "two", now.Add(2*time.Second)))
	require.NoError(t, err)

	list, err := s.ListConversationsForUser(ctx, "owner")
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, busy.ID, list[0].ID)
	require.Equal(t, "two", list[0].LastMessage.Content)
	require.Equal(t, "Acme", list[0].Website.Name)

	var sawQuiet bool
	for _, c := range list {
		if c.ID == quiet.ID {
			sawQuiet = true
			require.Nil(t, c.LastMessage)
		}
	}
	require.True(t, sawQuiet)
}

func TestNotificationsAreUserScoped(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	mine := &domain.Notification{ID: uuid.NewString(), UserID: "u1", Type: domain.NotificationNewConversation, Message: "new", CreatedAt: now}
	theirs := &domain.Notification{ID: uuid.NewString(), UserID: "u2", Type: domain.NotificationNewConversation, Message: "new", CreatedAt: now}
	require.NoError(t, s.CreateNotification(ctx, mine))
	require.NoError(t, s.CreateNotification(ctx, theirs))

	n, err := s.MarkNotificationsRead(ctx, "u1", []string{mine.ID, theirs.ID})
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	list, err := s.ListNotifications(ctx, "u2", 10)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.False(t, list[0].Read)

	list, err = s.ListNotifications(ctx, "u1", 10)
	require.NoError(t, err)
	require.True(t, list[0].Read)
}
