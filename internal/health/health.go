// Package health aggregates dependency checks for the HTTP and gRPC health endpoints.
package health

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"sync"
	"time"

	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
)

// CheckFunc probes one dependency.
type CheckFunc func(ctx context.Context) error

// Result is the outcome of a full check run.
type Result struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Healthy reports whether every check passed.
func (r Result) Healthy() bool { return r.Status == "ok" }

// Checker runs named dependency checks.
type Checker struct {
	mu      sync.RWMutex
	checks  map[string]CheckFunc
	timeout time.Duration
}

// NewChecker creates a checker whose individual checks are bounded by timeout.
func NewChecker(timeout time.Duration) *Checker {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Checker{checks: make(map[string]CheckFunc), timeout: timeout}
}

// Register adds or replaces a named check.
func (c *Checker) Register(name string, fn CheckFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.checks[name] = fn
}

// Check runs all checks concurrently.
func (c *Checker) Check(ctx context.Context) Result {
	c.mu.RLock()
	names := make([]string, 0, len(c.checks))
	for name := range c.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	fns := make([]CheckFunc, len(names))
	for i, name := range names {
		fns[i] = c.checks[name]
	}
	c.mu.RUnlock()

	statuses := make([]string, len(names))
	var wg sync.WaitGroup
	for i, fn := range fns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, c.timeout)
			defer cancel()
			if err := fn(cctx); err != nil {
				statuses[i] = err.Error()
				return
			}
			statuses[i] = "ok"
		}()
	}
	wg.Wait()

	res := Result{Status: "ok", Checks: make(map[string]string, len(names))}
	for i, name := range names {
		res.Checks[name] = statuses[i]
		if statuses[i] != "ok" {
			res.Status = "degraded"
		}
	}
	return res
}

// GRPCServer serves the standard grpc.health.v1 service and mirrors the
// checker's state into it on an interval.
type GRPCServer struct {
	checker  *Checker
	server   *grpc.Server
	health   *grpchealth.Server
	interval time.Duration
	logger   *slog.Logger
}

// NewGRPCServer creates the gRPC health server.
func NewGRPCServer(checker *Checker, interval time.Duration, logger *slog.Logger) *GRPCServer {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	srv := grpc.NewServer(grpc.KeepaliveParams(keepalive.ServerParameters{
		Time:    2 * time.Minute,
		Timeout: 10 * time.Second,
	}))
	hs := grpchealth.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	return &GRPCServer{
		checker:  checker,
		server:   srv,
		health:   hs,
		interval: interval,
		logger:   logger.With("component", "grpc_health"),
	}
}

// Sync runs the checker once and updates the serving status.
func (g *GRPCServer) Sync(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	res := g.checker.Check(ctx)
	if !res.Healthy() {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		g.logger.Warn("Dependency check failed", "checks", res.Checks)
	}
	g.health.SetServingStatus("", status)
}

// Serve listens on addr until ctx is done.
func (g *GRPCServer) Serve(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return g.ServeListener(ctx, lis)
}

// ServeListener serves on an existing listener until ctx is done.
func (g *GRPCServer) ServeListener(ctx context.Context, lis net.Listener) error {
	g.Sync(ctx)
	go func() {
		ticker := time.NewTicker(g.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				g.health.Shutdown()
				g.server.GracefulStop()
				return
			case <-ticker.C:
				g.Sync(ctx)
			}
		}
	}()

	g.logger.Info("gRPC health server listening", "addr", lis.Addr().String())
	if err := g.server.Serve(lis); err != nil && err != grpc.ErrServerStopped {
		return fmt.Errorf("serve grpc health: %w", err)
	}
	return nil
}
