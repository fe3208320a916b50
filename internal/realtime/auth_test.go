package realtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeAccess struct {
	allowed map[string]bool // userID + "/" + websiteID
	err     error
}

func (f *fakeAccess) CanAccessWebsite(_ context.Context, userID, websiteID string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.allowed[userID+"/"+websiteID], nil
}

func newTestAuthorizer() *Authorizer {
	return NewAuthorizer(&fakeAccess{allowed: map[string]bool{"agent-1/site-1": true}}, "test-secret", time.Minute)
}

func TestParseChannel(t *testing.T) {
	tests := []struct {
		name string
		kind ChannelKind
		id   string
	}{
		{"private-admin-site-1", ChannelAdmin, "site-1"},
		{"chat-site-1", ChannelVisitor, "site-1"},
		{"private-user-u1", ChannelUser, "u1"},
		{"private-admin-", ChannelUnknown, ""},
		{"presence-x", ChannelUnknown, ""},
	}
	for _, tt := range tests {
		kind, id := ParseChannel(tt.name)
		require.Equal(t, tt.kind, kind, tt.name)
		require.Equal(t, tt.id, id, tt.name)
	}
	require.Equal(t, "private-admin-s", AdminChannel("s"))
	require.Equal(t, "chat-s", VisitorChannel("s"))
	require.Equal(t, "private-user-u", UserChannel("u"))
	require.True(t, IsPrivate(AdminChannel("s")))
	require.False(t, IsPrivate(VisitorChannel("s")))
}

func TestAuthorizeAdminChannel(t *testing.T) {
	auth := newTestAuthorizer()
	ctx := context.Background()

	grant, err := auth.Authorize(ctx, "agent-1", "sock-1", AdminChannel("site-1"))
	require.NoError(t, err)
	require.NotEmpty(t, grant)
	require.NoError(t, auth.VerifySubscription(grant, "sock-1", AdminChannel("site-1")))

	require.ErrorIs(t, auth.VerifySubscription(grant, "sock-2", AdminChannel("site-1")), ErrInvalidGrant, "grant is bound to the socket")
	require.ErrorIs(t, auth.VerifySubscription(grant, "sock-1", AdminChannel("site-2")), ErrInvalidGrant, "grant is bound to the channel")

	_, err = auth.Authorize(ctx, "agent-2", "sock-1", AdminChannel("site-1"))
	require.ErrorIs(t, err, ErrForbidden)
	_, err = auth.Authorize(ctx, "", "sock-1", AdminChannel("site-1"))
	require.ErrorIs(t, err, ErrForbidden)
}

func TestAuthorizeUserChannel(t *testing.T) {
	auth := newTestAuthorizer()
	ctx := context.Background()

	grant, err := auth.Authorize(ctx, "agent-1", "s", UserChannel("agent-1"))
	require.NoError(t, err)
	require.NoError(t, auth.VerifySubscription(grant, "s", UserChannel("agent-1")))

	_, err = auth.Authorize(ctx, "agent-1", "s", UserChannel("agent-2"))
	require.ErrorIs(t, err, ErrForbidden)
}

func TestAuthorizePublicAndUnknown(t *testing.T) {
	auth := newTestAuthorizer()
	grant, err := auth.Authorize(context.Background(), "agent-1", "s", VisitorChannel("site-9"))
	require.NoError(t, err)
	require.Empty(t, grant)
	require.NoError(t, auth.VerifySubscription("", "s", VisitorChannel("site-9")))

	_, err = auth.Authorize(context.Background(), "agent-1", "s", "bogus")
	require.ErrorIs(t, err, ErrUnknownChan)
	require.ErrorIs(t, auth.VerifySubscription("", "s", "bogus"), ErrUnknownChan)
	require.ErrorIs(t, auth.VerifySubscription("", "s", AdminChannel("site-1")), ErrInvalidGrant)
}

func TestAuthorizeAccessError(t *testing.T) {
	auth := NewAuthorizer(&fakeAccess{err: errors.New("db down")}, "k", time.Minute)
	_, err := auth.Authorize(context.Background(), "agent-1", "s", AdminChannel("site-1"))
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrForbidden))
}

func TestGrantExpires(t *testing.T) {
	auth := newTestAuthorizer()
	now := time.Now()
	auth.now = func() time.Time { return now }

	grant, err := auth.Authorize(context.Background(), "agent-1", "s", UserChannel("agent-1"))
	require.NoError(t, err)

	auth.now = func() time.Time { return now.Add(2 * time.Minute) }
	require.ErrorIs(t, auth.VerifySubscription(grant, "s", UserChannel("agent-1")), ErrInvalidGrant)

	other := NewAuthorizer(&fakeAccess{}, "different-secret", time.Minute)
	_, err = other.GrantChannel(grant)
	require.ErrorIs(t, err, ErrInvalidGrant)
}
