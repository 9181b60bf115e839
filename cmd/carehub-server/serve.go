package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/carehub/carehub/internal/config"
	"github.com/carehub/carehub/internal/domain/access"
	"github.com/carehub/carehub/internal/domain/records"
	"github.com/carehub/carehub/internal/platform/auth"
	"github.com/carehub/carehub/internal/platform/db"
	"github.com/carehub/carehub/internal/platform/metrics"
	"github.com/carehub/carehub/internal/platform/middleware"
	"github.com/carehub/carehub/internal/platform/notification"
	"github.com/carehub/carehub/internal/platform/snapshot"
)

// app is the wired server before it starts listening.
type app struct {
	echo    *echo.Echo
	store   *records.Store
	service *access.Service
	writer  *snapshot.Writer
	metrics *metrics.Metrics
	backend *backend
}

// buildApp loads the store from the configured backend and assembles the
// HTTP server around it.
func buildApp(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*app, error) {
	b, err := openBackend(ctx, cfg, cfg.StorageBackend)
	if err != nil {
		return nil, err
	}
	if err := applySchema(ctx, b, logger); err != nil {
		b.Close()
		return nil, err
	}

	m := metrics.New()
	writer := snapshot.NewWriter(b.adapter,
		snapshot.WithLogger(logger.With().Str("component", "snapshot").Logger()),
		snapshot.WithDebounce(cfg.SnapshotDebounce),
		snapshot.WithObserver(m),
		snapshot.WithBackend(b.name),
	)
	store := records.NewStore(records.WithSink(writer))
	writer.Bind(store)

	seeded, err := store.Load(ctx, b.adapter, cfg.SeedDemoData)
	if err != nil {
		b.Close()
		return nil, err
	}
	logger.Info().
		Str("backend", b.name).
		Bool("seeded", seeded).
		Int("users", store.Users().Len()).
		Msg("record store loaded")

	svc := access.NewService(store,
		access.WithLogger(logger.With().Str("component", "access").Logger()),
		access.WithRecorder(m),
		access.WithTemplates(notification.NewTemplateEngine()),
	)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(m.Middleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(cfg.BodyLimit))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader, auth.DevUserHeader},
	}))

	// Auth middleware
	jwtCfg := auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		SigningKey: []byte(cfg.AuthSigningKey),
		Skipper:    auth.AuthSkipper,
	}
	if cfg.ResolvedAuthMode() == config.AuthModeDevelopment {
		e.Use(auth.DevAuthMiddleware(svc, cfg.DevDefaultUser, jwtCfg))
	} else {
		e.Use(auth.JWTMiddleware(jwtCfg))
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok", "backend": b.name})
	})
	if b.pool != nil {
		e.GET("/health/db", db.HealthHandler(b.pool))
	}
	e.GET("/metrics", m.Handler())

	access.NewHandler(svc).RegisterRoutes(e.Group("/api/v1"))

	return &app{echo: e, store: store, service: svc, writer: writer, metrics: m, backend: b}, nil
}

func runServer(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}
	if cfg.ResolvedAuthMode() == config.AuthModeDevelopment {
		logger.Warn().Msg("Server is running in DEVELOPMENT mode (ENV=development).")
		logger.Warn().Msgf("The acting user comes from the %s header, defaulting to user %s.", auth.DevUserHeader, cfg.DevDefaultUser)
		logger.Warn().Msg("Do NOT use this configuration in production.")
	}

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to start")
		return err
	}
	defer a.backend.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := a.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return a.writer.Run(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return a.echo.Shutdown(shutdownCtx)
	})

	runErr := g.Wait()

	flushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	err = multierr.Combine(runErr, a.writer.Flush(flushCtx))
	if err != nil {
		logger.Error().Err(err).Msg("server stopped with errors")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}
