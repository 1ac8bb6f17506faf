// Command server runs the WhatsApp gateway: the pairing/commands HTTP API,
// the realtime dashboard channel, and the per-session connection managers.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tbourn/go-wa-gateway/internal/commands"
	"github.com/tbourn/go-wa-gateway/internal/commands/builtin"
	"github.com/tbourn/go-wa-gateway/internal/config"
	"github.com/tbourn/go-wa-gateway/internal/domain"
	httpapi "github.com/tbourn/go-wa-gateway/internal/http"
	"github.com/tbourn/go-wa-gateway/internal/http/handlers"
	"github.com/tbourn/go-wa-gateway/internal/http/ws"
	"github.com/tbourn/go-wa-gateway/internal/observability"
	"github.com/tbourn/go-wa-gateway/internal/repo"
	"github.com/tbourn/go-wa-gateway/internal/services"
	"github.com/tbourn/go-wa-gateway/internal/sysutil"
	"github.com/tbourn/go-wa-gateway/internal/wa"
)

const shutdownTimeout = 15 * time.Second

func main() {
	start := time.Now()

	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	logger := log.With().Str("service", cfg.OTEL.ServiceName).Logger()

	gin.SetMode(cfg.GinMode)

	version := sysutil.FirstNonEmpty(os.Getenv("BUILD_VERSION"), "dev")

	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// Tracing.
	shutdownOTel, err := observability.SetupOTel(rootCtx, cfg.OTEL, version)
	if err != nil {
		logger.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(ctx); err != nil {
			logger.Warn().Err(err).Msg("otel shutdown failed")
		}
	}()

	// Durable store.
	db, err := repo.Open(rootCtx, cfg.MongoURI, cfg.MongoDB)
	if err != nil {
		logger.Fatal().Err(err).Msg("mongo connect failed")
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := db.Client().Disconnect(ctx); err != nil {
			logger.Warn().Err(err).Msg("mongo disconnect failed")
		}
	}()
	if err := repo.EnsureIndexes(rootCtx, db); err != nil {
		logger.Fatal().Err(err).Msg("mongo index creation failed")
	}
	store := repo.NewStore(db)

	// Realtime channel.
	hub := ws.NewHub(logger.With().Str("component", "ws").Logger())
	go hub.Run()

	// Services.
	settings := services.NewSettingsService(store, services.SettingsDefaults{
		Prefix: cfg.Prefix,
		AutoStatus: domain.AutoStatus{
			Seen:  cfg.AutoStatus.Seen,
			React: cfg.AutoStatus.React,
			Reply: cfg.AutoStatus.Reply,
		},
		Channels: cfg.ChannelJIDs,
	}, logger.With().Str("component", "settings").Logger())

	stats := services.NewStatsService(store, hub, cfg.Lifecycle.SnapshotInterval,
		logger.With().Str("component", "stats").Logger())
	go stats.Run(rootCtx)

	registry := commands.NewRegistry(logger.With().Str("component", "registry").Logger())
	registry.Load(builtin.All(start)...)

	dispatcher := services.NewDispatcher(registry, settings, cfg.BotName, cfg.OwnerName,
		logger.With().Str("component", "dispatcher").Logger())

	factory := &wa.MeowFactory{
		Dir: cfg.WADBPath,
		Log: logger.With().Str("component", "wa").Logger(),
	}
	manager := services.NewManager(factory, store, settings, dispatcher, stats,
		cfg.Lifecycle, cfg.BotName, logger.With().Str("component", "lifecycle").Logger())

	// Resume in the background so the HTTP surface is up immediately.
	go manager.ResumeActive(rootCtx)

	// HTTP surface.
	h := handlers.New(manager, registry, stats, store)
	router := gin.New()
	httpapi.RegisterRoutes(router, h, hub, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Str("version", version).Msg("http server listening")
		errCh <- srv.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("http server failed")
		}
	}

	// Drain HTTP first so no new pairings start, then close the sessions.
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn().Err(err).Msg("http shutdown incomplete")
	}
	manager.Shutdown(ctx)
	rootCancel()

	logger.Info().Msg("bye")
}
