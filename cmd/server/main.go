// Support desk real-time delivery server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ashureev/supportdesk/internal/api"
	"github.com/ashureev/supportdesk/internal/blob"
	"github.com/ashureev/supportdesk/internal/chat"
	"github.com/ashureev/supportdesk/internal/config"
	"github.com/ashureev/supportdesk/internal/geo"
	"github.com/ashureev/supportdesk/internal/health"
	"github.com/ashureev/supportdesk/internal/identity"
	"github.com/ashureev/supportdesk/internal/middleware"
	"github.com/ashureev/supportdesk/internal/realtime"
	"github.com/ashureev/supportdesk/internal/store"
	"github.com/ashureev/supportdesk/internal/transcript"
)

func main() {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}
	level.Set(cfg.SlogLevel())

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped successfully")
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initialize database: %w", err)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()
	if err := repo.Ping(ctx); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	slog.Info("Database connected")

	checker := health.NewChecker(5 * time.Second)
	checker.Register("database", repo.Ping)

	verifier, closeVerifier, err := newVerifier(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeVerifier()

	hub := realtime.NewHub(realtime.HubConfig{
		ReplaySize:       cfg.Realtime.ReplaySize,
		SubscriberBuffer: cfg.Realtime.SubscriberBuffer,
	}, logger)
	var publisher realtime.Publisher = hub
	if cfg.Redis.URL != "" {
		broker, err := realtime.NewRedisBroker(ctx, cfg.Redis.URL, cfg.Redis.ChannelPrefix, hub, logger)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer func() { _ = broker.Close() }()
		publisher = broker
		checker.Register("redis", broker.Ping)
		go func() {
			if err := broker.Run(ctx); err != nil {
				slog.Error("Redis relay stopped", "error", err)
			}
		}()
		slog.Info("Redis relay enabled", "prefix", cfg.Redis.ChannelPrefix)
	}
	realtime.StartJanitor(ctx, hub, cfg.Realtime.IdleChannelTTL)

	locator, err := geo.NewHTTPLocator(geo.Config{
		Endpoint:  cfg.Geo.Endpoint,
		Timeout:   cfg.Geo.Timeout,
		CacheSize: cfg.Geo.CacheSize,
	}, logger)
	if err != nil {
		return fmt.Errorf("initialize geolocation: %w", err)
	}

	blobStore, uploadsDir, err := newBlobStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	checker.Register("blob", blobStore.Health)

	svcCfg := chat.Config{
		PublishTimeout: cfg.Realtime.PublishTimeout,
		Uploader:       blob.NewUploader(blobStore, cfg.Blob.MaxUploadBytes),
		Logger:         logger,
	}
	if cfg.Transcript.Enabled {
		tw, err := transcript.NewWriter(transcript.Config{Dir: cfg.Transcript.Dir, QueueSize: cfg.Transcript.QueueSize}, logger)
		if err != nil {
			return fmt.Errorf("initialize transcript log: %w", err)
		}
		defer func() { _ = tw.Close() }()
		svcCfg.Transcript = tw
		slog.Info("Transcript logging enabled", "dir", cfg.Transcript.Dir)
	}
	svc := chat.NewService(repo, publisher, locator, svcCfg)
	if cfg.Seed.Enabled() {
		website, err := svc.RegisterWebsite(ctx, chat.WebsiteRegistration{
			ID:        cfg.Seed.WebsiteID,
			Name:      cfg.Seed.WebsiteName,
			Domain:    cfg.Seed.Domain,
			OwnerID:   cfg.Seed.OwnerID,
			OwnerName: cfg.Seed.OwnerName,
		})
		if err != nil {
			return fmt.Errorf("register seed website: %w", err)
		}
		slog.Info("Seed website ready", "website_id", website.ID, "owner_id", website.OwnerID)
	}

	authorizer := realtime.NewAuthorizer(repo, cfg.Realtime.SigningSecret, cfg.Realtime.TokenTTL)
	rtHandler := realtime.NewHandler(hub, authorizer, realtime.HandlerConfig{
		KeepaliveInterval: cfg.Realtime.KeepaliveInterval,
		RetryDelay:        cfg.Realtime.RetryDelay,
		AllowedOrigins:    cfg.AllowedOrigins,
	}, logger)

	limiter := middleware.NewRateLimiter(cfg.RateLimit.WidgetRequests, cfg.RateLimit.WidgetWindow, nil)
	limiter.StartEviction(ctx)

	router := api.NewRouter(api.RouterConfig{
		Service:        svc,
		Repo:           repo,
		Verifier:       verifier,
		Realtime:       rtHandler,
		Checker:        checker,
		RateLimiter:    limiter,
		AllowedOrigins: cfg.AllowedOrigins,
		UploadsDir:     uploadsDir,
		UploadsPath:    cfg.Blob.LocalStorageBaseURL,
		Logger:         logger,
	})

	if cfg.GRPCHealthPort != "" {
		grpcHealth := health.NewGRPCServer(checker, 15*time.Second, logger)
		go func() {
			if err := grpcHealth.Serve(ctx, ":"+cfg.GRPCHealthPort); err != nil {
				slog.Error("gRPC health server failed", "error", err)
			}
		}()
	}

	// SSE and WebSocket connections are long-lived, so there is no WriteTimeout.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	}

	slog.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("forced shutdown: %w", err)
	}
	return nil
}

func newVerifier(ctx context.Context, cfg *config.Config, logger *slog.Logger) (identity.Verifier, func(), error) {
	if cfg.Auth.JWKSURL == "" {
		slog.Info("Agent tokens verified with shared secret")
		return identity.NewHMACVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer), func() {}, nil
	}
	jwks, err := identity.FetchJWKS(ctx, cfg.Auth.JWKSURL, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch jwks: %w", err)
	}
	v := identity.NewJWKSVerifier(jwks, cfg.Auth.Issuer)
	slog.Info("Agent tokens verified with JWKS", "url", cfg.Auth.JWKSURL)
	return v, v.Close, nil
}

// newBlobStore returns the configured store and, for the local backend, the
// directory to serve uploads from.
func newBlobStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (blob.Store, string, error) {
	if cfg.Blob.Backend == "s3" {
		s3Store, err := blob.NewS3Store(ctx, blob.S3Config{
			Bucket:          cfg.Blob.S3Bucket,
			Region:          cfg.Blob.S3Region,
			Endpoint:        cfg.Blob.S3Endpoint,
			AccessKeyID:     cfg.Blob.S3AccessKeyID,
			SecretAccessKey: cfg.Blob.S3SecretKey,
			UsePathStyle:    cfg.Blob.S3UsePathStyle,
			PublicBaseURL:   cfg.Blob.S3PublicBaseURL,
		}, logger)
		if err != nil {
			return nil, "", fmt.Errorf("initialize s3 storage: %w", err)
		}
		slog.Info("Attachments stored in S3", "bucket", cfg.Blob.S3Bucket)
		return s3Store, "", nil
	}

	local, err := blob.NewLocalStore(cfg.Blob.LocalStoragePath, cfg.Blob.LocalStorageBaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("initialize local storage: %w", err)
	}
	slog.Info("Attachments stored on local disk", "path", local.Dir())
	return local, local.Dir(), nil
}
