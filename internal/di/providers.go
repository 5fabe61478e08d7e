package di

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"

	"github.com/coah80/pastvoices/internal/alerts"
	"github.com/coah80/pastvoices/internal/backup"
	"github.com/coah80/pastvoices/internal/cache"
	"github.com/coah80/pastvoices/internal/catalog"
	"github.com/coah80/pastvoices/internal/config"
	"github.com/coah80/pastvoices/internal/logging"
	"github.com/coah80/pastvoices/internal/media"
	"github.com/coah80/pastvoices/internal/metrics"
	"github.com/coah80/pastvoices/internal/middleware"
	"github.com/coah80/pastvoices/internal/services"
	"github.com/coah80/pastvoices/internal/tasks"
	"github.com/coah80/pastvoices/internal/transcode"
)

const queueDrainTimeout = 30 * time.Second

func ProvideLogger(cfg *config.Config) zerolog.Logger {
	return logging.New(cfg)
}

// ProvideMetrics uses a private registry so building the graph twice in one
// process does not trip duplicate registration.
func ProvideMetrics(cfg *config.Config) metrics.Metrics {
	reg := prometheus.NewRegistry()
	if cfg.Metrics.Enabled {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return metrics.New(cfg.Metrics, reg)
}

func ProvideCache(cfg *config.Config, logger zerolog.Logger) cache.Cache {
	return cache.New(cfg.Cache, logging.Component(logger, "cache"))
}

func ProvideLibrary(cfg *config.Config) *media.Library {
	return media.NewLibrary(cfg.ContentRoot)
}

func ProvideStore(ctx context.Context, cfg *config.Config, lib *media.Library, logger zerolog.Logger) (catalog.Store, func(), error) {
	store, err := catalog.NewStoreFromConfig(ctx, cfg, lib.Probe, logging.Component(logger, "catalog"))
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close catalog")
		}
	}
	return store, cleanup, nil
}

// ProvideQueue starts the workers; cleanup waits for running tasks.
func ProvideQueue(cfg *config.Config, m metrics.Metrics, logger zerolog.Logger) (*tasks.Queue, func()) {
	q := tasks.New(cfg.Tasks, m, logging.Component(logger, "tasks"))
	q.Start()
	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), queueDrainTimeout)
		defer cancel()
		if err := q.Close(ctx); err != nil {
			logger.Warn().Err(err).Msg("Task queue did not drain")
		}
	}
	return q, cleanup
}

func ProvideAlerts(cfg *config.Config, logger zerolog.Logger) (*alerts.Discord, error) {
	return alerts.NewDiscord(cfg.Discord, logging.Component(logger, "alerts"))
}

func ProvideMirror(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (backup.Mirror, error) {
	return backup.New(ctx, cfg.Backup, logging.Component(logger, "backup"))
}

func ProvideOptimizer(cfg *config.Config, lib *media.Library, logger zerolog.Logger) *transcode.Optimizer {
	return transcode.NewOptimizer(lib, cfg.Optimizer, logging.Component(logger, "optimizer"))
}

func ProvideThumbnailer(cfg *config.Config, lib *media.Library, logger zerolog.Logger) *transcode.Thumbnailer {
	return transcode.NewThumbnailer(lib, cfg.Thumbnails, cfg.Optimizer.FFmpegPath, logging.Component(logger, "thumbnails"))
}

func ProvideMaintainer(cfg *config.Config, lib *media.Library, store catalog.Store, logger zerolog.Logger) *media.Maintainer {
	return media.NewMaintainer(lib, store, cfg.Media.MaintenanceGrace, logging.Component(logger, "maintenance"))
}

func ProvideOpenAI(cfg *config.Config) *services.OpenAIClient {
	return services.NewOpenAIClient(cfg.OpenAI)
}

func ProvideElevenLabs(cfg *config.Config, lib *media.Library, logger zerolog.Logger) *services.ElevenLabsClient {
	return services.NewElevenLabsClient(cfg.ElevenLabs, lib, logging.Component(logger, "tts"))
}

func ProvideRateLimiter(cfg *config.Config) *middleware.RateLimiter {
	return middleware.NewRateLimiter(cfg.RateLimit)
}
