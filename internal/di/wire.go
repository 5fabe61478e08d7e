//go:build wireinject
// +build wireinject

package di

import (
	"context"

	"github.com/google/wire"

	"github.com/coah80/pastvoices/internal/alerts"
	"github.com/coah80/pastvoices/internal/config"
	"github.com/coah80/pastvoices/internal/media"
	"github.com/coah80/pastvoices/internal/server"
	"github.com/coah80/pastvoices/internal/services"
	"github.com/coah80/pastvoices/internal/tasks"
	"github.com/coah80/pastvoices/internal/transcode"
)

var mediaSet = wire.NewSet(
	ProvideLibrary,
	ProvideOptimizer,
	ProvideThumbnailer,
	ProvideMaintainer,
	ProvideMirror,
	wire.Bind(new(services.VideoOptimizer), new(*transcode.Optimizer)),
	wire.Bind(new(services.ThumbnailGenerator), new(*transcode.Thumbnailer)),
	wire.Bind(new(services.StorageMaintainer), new(*media.Maintainer)),
	wire.Bind(new(services.TaskRunner), new(*tasks.Queue)),
	wire.Bind(new(services.Alerter), new(*alerts.Discord)),
)

func InitApp(ctx context.Context, cfg *config.Config) (*App, func(), error) {
	wire.Build(
		ProvideLogger,
		ProvideMetrics,
		ProvideCache,
		ProvideStore,
		ProvideQueue,
		ProvideAlerts,
		ProvideOpenAI,
		ProvideElevenLabs,
		ProvideRateLimiter,
		mediaSet,

		services.NewPersonaService,
		services.NewChatService,
		services.NewMediaService,
		server.New,
		NewApp,
	)
	return nil, nil, nil
}
