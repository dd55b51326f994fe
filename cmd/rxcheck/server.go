package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/rxcheck/rxcheck/internal/config"
	"github.com/rxcheck/rxcheck/internal/domain/analysis"
	"github.com/rxcheck/rxcheck/internal/domain/profile"
	"github.com/rxcheck/rxcheck/internal/domain/retention"
	"github.com/rxcheck/rxcheck/internal/domain/upload"
	"github.com/rxcheck/rxcheck/internal/platform/auth"
	"github.com/rxcheck/rxcheck/internal/platform/blobstore"
	"github.com/rxcheck/rxcheck/internal/platform/db"
	"github.com/rxcheck/rxcheck/internal/platform/errtrack"
	"github.com/rxcheck/rxcheck/internal/platform/firebase"
	"github.com/rxcheck/rxcheck/internal/platform/llm"
	"github.com/rxcheck/rxcheck/internal/platform/middleware"
	"github.com/rxcheck/rxcheck/internal/platform/voicecall"
)

const version = "0.1.0"

// store is the selected profile backend plus whatever must be closed with it.
type store struct {
	repo    profile.Repository
	pinger  db.Pinger
	fb      *firebase.App
	closers []func()
}

func (s *store) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openStore opens the configured profile backend. A Firebase app is created
// when the backend is Firestore or when withAuth asks for token verification.
func openStore(ctx context.Context, cfg *config.Config, withAuth bool, logger zerolog.Logger) (*store, error) {
	st := &store{}

	if cfg.StoreBackend == "firestore" || withAuth {
		app, err := firebase.NewApp(ctx, firebase.Config{
			ProjectID:       cfg.FirebaseProjectID,
			CredentialsFile: cfg.FirebaseCredentialsFile,
		}, logger)
		if err != nil {
			return nil, err
		}
		st.fb = app
	}

	switch cfg.StoreBackend {
	case "firestore":
		client, err := st.fb.Firestore(ctx)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, func() { client.Close() })
		st.repo = profile.NewFirestoreRepo(client)
		st.pinger = st.repo
	case "postgres":
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		st.closers = append(st.closers, pool.Close)
		st.repo = profile.NewPGRepo(pool)
		st.pinger = pool
	default:
		st.repo = profile.NewMemoryRepo()
		st.pinger = st.repo
	}

	logger.Info().Str("backend", cfg.StoreBackend).Msg("profile store ready")
	return st, nil
}

func openBlobStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (blobstore.BlobStore, error) {
	if cfg.UploadBackend != "minio" {
		return blobstore.NewInMemoryBlobStore(fmt.Sprintf("http://localhost:%s", cfg.Port)), nil
	}
	ms, err := blobstore.NewMinIOStore(blobstore.MinIOConfig{
		Endpoint:  cfg.MinioEndpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    cfg.MinioBucket,
		UseSSL:    cfg.MinioUseSSL,
	}, logger)
	if err != nil {
		return nil, err
	}
	if err := ms.EnsureBucket(ctx); err != nil {
		return nil, err
	}
	return ms, nil
}

// serverOption adjusts how buildServer wires dependencies.
type serverOption func(*serverDeps)

type serverDeps struct {
	verifier auth.TokenVerifier
}

// withVerifier replaces the Firebase token verifier.
func withVerifier(v auth.TokenVerifier) serverOption {
	return func(d *serverDeps) { d.verifier = v }
}

// server is a fully wired API instance.
type server struct {
	echo    *echo.Echo
	store   *store
	trigger *retention.Trigger
	sweeper *retention.Sweeper
	tracker *errtrack.Tracker
}

func buildServer(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts ...serverOption) (*server, error) {
	var deps serverDeps
	for _, o := range opts {
		o(&deps)
	}
	tracker := errtrack.New(cfg.SentryDSN, cfg.SentryEnvironment, logger)

	authOn := cfg.AuthMode == "firebase"
	st, err := openStore(ctx, cfg, authOn && deps.verifier == nil, logger)
	if err != nil {
		return nil, err
	}

	blobs, err := openBlobStore(ctx, cfg, logger)
	if err != nil {
		st.Close()
		return nil, err
	}

	gemini, err := llm.NewGemini(ctx, cfg.GeminiAPIKey, cfg.GeminiModel, logger)
	if err != nil {
		st.Close()
		return nil, err
	}
	retell := voicecall.NewRetellClient(cfg.RetellAPIKey, logger, voicecall.WithBaseURL(cfg.RetellBaseURL))

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(logger, tracker)

	// Global middleware
	e.Use(middleware.Recovery(logger, tracker))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(middleware.BodyLimit("1M", map[string]string{"/upload": cfg.BodyLimit}))

	e.Use(middleware.RequestTimeout(cfg.RequestTimeout, "/health", "/health/db"))

	if authOn {
		verifier := deps.verifier
		if verifier == nil {
			client, err := st.fb.Auth(ctx)
			if err != nil {
				st.Close()
				return nil, err
			}
			verifier = client
		}
		e.Use(auth.FirebaseMiddleware(verifier, auth.AuthSkipper, logger))
	}

	// Runs after auth so signed-in callers are keyed by uid.
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	e.Use(middleware.RateLimit(rateLimitCfg))

	// Retention
	pruner := retention.NewPruner(st.repo, cfg.ReportsToKeep, logger)
	trigger := retention.NewTrigger(pruner, logger)
	var sweeper *retention.Sweeper
	if interval := cfg.RetentionSweepInterval(); interval > 0 {
		sweeper = retention.NewSweeper(pruner, interval, logger)
	}

	// Domains
	api := e.Group("")

	profileSvc := profile.NewService(st.repo, logger)
	profile.NewHandler(profileSvc).RegisterRoutes(api)

	analysisSvc := analysis.NewService(profileSvc, gemini, retell, trigger, analysis.Config{
		AgentID:         cfg.RetellAgentID,
		EscalationGuard: cfg.EscalationGuardWindow(),
	}, logger)
	analysis.NewHandler(analysisSvc, analysis.HandlerConfig{
		WebhookSecret:   cfg.RetellWebhookSecret,
		RetellAPIKeySet: cfg.RetellAPIKey != "",
		RetellAgentSet:  cfg.RetellAgentID != "",
	}, logger).RegisterRoutes(api)

	uploadSvc := upload.NewService(blobs, gemini, cfg.OCRMaxDimension, logger)
	upload.NewHandler(uploadSvc, logger).RegisterRoutes(api)
	if _, ok := blobs.(*blobstore.InMemoryBlobStore); ok {
		blobstore.NewBlobHandler(blobs).RegisterRoutes(e)
	}

	// Health
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(cfg.StoreBackend, st.pinger))

	return &server{echo: e, store: st, trigger: trigger, sweeper: sweeper, tracker: tracker}, nil
}

func runServer(migrate bool) error {
	logger := newLogger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if migrate && cfg.StoreBackend == "postgres" {
		migrator, closePool, err := openPool(ctx, cfg)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to database")
		}
		n, err := migrator.Up(ctx)
		closePool()
		if err != nil {
			logger.Fatal().Err(err).Msg("migration failed")
		}
		logger.Info().Int("applied", n).Msg("migrations applied")
	}

	srv, err := buildServer(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise server")
	}
	defer srv.store.Close()

	srv.trigger.Start(ctx)
	if srv.sweeper != nil {
		if err := srv.sweeper.Start(); err != nil {
			logger.Fatal().Err(err).Msg("failed to start retention sweeper")
		}
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := srv.echo.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.echo.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	if srv.sweeper != nil {
		srv.sweeper.Stop()
	}
	srv.trigger.Stop()
	srv.tracker.Flush(2 * time.Second)
	logger.Info().Msg("server stopped")
	return nil
}
