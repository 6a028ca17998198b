package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	router "github.com/dkeye/Tree/internal/adapters/http"
	"github.com/dkeye/Tree/internal/adapters/media"
	"github.com/dkeye/Tree/internal/app"
	"github.com/dkeye/Tree/internal/config"
	"github.com/dkeye/Tree/internal/core"
	"github.com/dkeye/Tree/internal/domain"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg)

	if err := run(ctx, cfg); err != nil {
		log.Error().Err(err).Msg("server error")
		os.Exit(1)
	}
	log.Info().Msg("Server exited gracefully")
}

func setupLogger(cfg *config.Config) {
	if cfg.Mode == "release" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func run(ctx context.Context, cfg *config.Config) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := app.NewMetrics(reg)

	store := core.NewStore(
		core.WithCapacity(cfg.MaxDecorations),
		core.WithCooldown(cfg.MessageCooldown),
		core.WithEvictHook(func(domain.Decoration) { metrics.DecorationEvicted() }),
	)
	hub := app.NewHub(store, app.HubOptions{
		Policy:         app.SimplePolicy{},
		Metrics:        metrics,
		RejectFeedback: cfg.RejectFeedback,
		SharedCooldown: cfg.SharedCooldown,
	})

	var mediaCache *media.Cache
	if cfg.MediaURL != "" {
		mediaCache = media.NewCache(cfg.MediaURL, cfg.MediaContentType, cfg.MediaTimeout)
	}

	r := router.SetupRouter(ctx, cfg, router.Deps{Hub: hub, Media: mediaCache, Gatherer: reg})
	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	if mediaCache != nil {
		g.Go(func() error {
			mediaCache.Preload(gctx)
			return nil
		})
	}
	g.Go(func() error {
		log.Info().Str("addr", addr).Msg("Tree server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("Shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Server forced to shutdown")
		}
		return nil
	})
	return g.Wait()
}
