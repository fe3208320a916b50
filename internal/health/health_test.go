package health

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func TestCheckerAggregates(t *testing.T) {
	c := NewChecker(time.Second)
	c.Register("database", func(context.Context) error { return nil })
	res := c.Check(context.Background())
	require.True(t, res.Healthy())
	require.Equal(t, map[string]string{"database": "ok"}, res.Checks)

	c.Register("broker", func(context.Context) error { return errors.New("connection refused") })
	res = c.Check(context.Background())
	require.False(t, res.Healthy())
	require.Equal(t, "degraded", res.Status)
	require.Equal(t, "connection refused", res.Checks["broker"])
}

func TestCheckerBoundsSlowChecks(t *testing.T) {
	c := NewChecker(20 * time.Millisecond)
	c.Register("slow", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	res := c.Check(context.Background())
	require.Equal(t, context.DeadlineExceeded.Error(), res.Checks["slow"])
}

func TestGRPCServerReportsStatus(t *testing.T) {
	var healthy atomic.Bool
	healthy.Store(true)
	c := NewChecker(time.Second)
	c.Register("database", func(context.Context) error {
		if healthy.Load() {
			return nil
		}
		return errors.New("down")
	})

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	srv := NewGRPCServer(c, time.Hour, nil)
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ServeListener(ctx, lis) }()

	conn, err := grpc.NewClient(lis.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer func() { _ = conn.Close() }()
	client := healthpb.NewHealthClient(conn)

	require.Eventually(t, func() bool {
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
		return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
	}, 5*time.Second, 20*time.Millisecond)

	healthy.Store(false)
	srv.Sync(ctx)
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	require.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.GetStatus())

	cancel()
	require.NoError(t, <-errCh)
}
