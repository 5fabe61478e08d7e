package di

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/coah80/pastvoices/internal/alerts"
	"github.com/coah80/pastvoices/internal/catalog"
	"github.com/coah80/pastvoices/internal/config"
	"github.com/coah80/pastvoices/internal/media"
	"github.com/coah80/pastvoices/internal/middleware"
	"github.com/coah80/pastvoices/internal/services"
	"github.com/coah80/pastvoices/internal/tasks"
)

// App is everything a command needs once the graph is built. The cleanup
// returned alongside it drains the queue and closes the store.
type App struct {
	Config     *config.Config
	Logger     zerolog.Logger
	Server     *http.Server
	Queue      *tasks.Queue
	Store      catalog.Store
	Library    *media.Library
	Media      *services.MediaService
	Maintainer *media.Maintainer
	Limiter    *middleware.RateLimiter
	Alerts     *alerts.Discord
}

func NewApp(
	cfg *config.Config,
	logger zerolog.Logger,
	srv *http.Server,
	queue *tasks.Queue,
	store catalog.Store,
	lib *media.Library,
	mediaSvc *services.MediaService,
	maint *media.Maintainer,
	limiter *middleware.RateLimiter,
	discord *alerts.Discord,
) *App {
	return &App{
		Config:     cfg,
		Logger:     logger,
		Server:     srv,
		Queue:      queue,
		Store:      store,
		Library:    lib,
		Media:      mediaSvc,
		Maintainer: maint,
		Limiter:    limiter,
		Alerts:     discord,
	}
}
