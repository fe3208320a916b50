package realtime

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestRedisBrokerRelaysIntoHub(t *testing.T) {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		t.Skip("REDIS_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	hub := NewHub(HubConfig{}, nil)
	prefix := "supportdesk-test-" + uuid.NewString() + ":"
	broker, err := NewRedisBroker(ctx, redisURL, prefix, hub, nil)
	require.NoError(t, err)
	defer broker.Close()
	require.NoError(t, broker.Ping(ctx))

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- broker.Run(runCtx) }()

	sub := hub.NewSubscriber()
	hub.Join(sub, "chat-site-1", 0)

	// The pattern subscription is asynchronous; publish until it is relayed.
	require.Eventually(t, func() bool {
		_ = broker.Publish(ctx, "chat-site-1", EventMessage, map[string]string{"content": "relayed"})
		select {
		case env := <-sub.C:
			return env.Event == EventMessage && env.ID > 0
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 50*time.Millisecond)

	stop()
	require.NoError(t, <-done)
}
