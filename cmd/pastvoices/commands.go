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

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/coah80/pastvoices/internal/catalog"
	"github.com/coah80/pastvoices/internal/catalog/migrations"
	"github.com/coah80/pastvoices/internal/config"
	"github.com/coah80/pastvoices/internal/di"
	"github.com/coah80/pastvoices/internal/logging"
	"github.com/coah80/pastvoices/internal/server"
	"github.com/coah80/pastvoices/internal/util"
)

const shutdownTimeout = 15 * time.Second

var configPath string

// loadConfig reads the config, creates the content directories and turns
// off the ffmpeg-backed features when the binary is missing.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}
	if !util.CheckFFmpeg(cfg.Optimizer.FFmpegPath, logging.New(cfg)) {
		cfg.Optimizer.Enabled = false
		cfg.Thumbnails.Enabled = false
	}
	return cfg, nil
}

// newApp builds the application graph. The caller must defer cleanup.
func newApp(ctx context.Context) (*di.App, func(), error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	app, cleanup, err := di.InitApp(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("initializing app: %w", err)
	}
	return app, cleanup, nil
}

func printJSON(v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

var rootCmd = &cobra.Command{
	Use:          config.AppName,
	Short:        "Chat with historical figures, with a managed video library",
	SilenceUsage: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		app, cleanup, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer cleanup()
		logger := app.Logger

		if app.Limiter != nil {
			go app.Limiter.Run(ctx)
		}

		server.PrintBanner()
		serverErr := make(chan error, 1)
		go func() {
			logger.Info().Str("addr", app.Server.Addr).Str("env", app.Config.Env).Msg("Listening")
			if err := app.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
		app.Alerts.ServerStarted(app.Server.Addr)

		select {
		case <-ctx.Done():
			logger.Info().Msg("Shutdown signal received")
		case err := <-serverErr:
			return fmt.Errorf("server error: %w", err)
		}

		app.Alerts.ServerStopping()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := app.Server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Server forced to shutdown")
		}
		logger.Info().Msg("Server stopped")
		return nil
	},
}

var optimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Re-encode every unoptimized video in the content root",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, cleanup, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		res, err := app.Media.OptimizeAll(cmd.Context())
		if res != nil {
			if perr := printJSON(res); perr != nil {
				return perr
			}
		}
		return err
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete media files no persona references",
	RunE: func(cmd *cobra.Command, args []string) error {
		full, _ := cmd.Flags().GetBool("full")

		app, cleanup, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		if full {
			res, err := app.Media.Maintenance(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(res)
		}
		res, err := app.Maintainer.Cleanup(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

var reorganizeCmd = &cobra.Command{
	Use:   "reorganize",
	Short: "Sort loose files in the content root into category folders",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, cleanup, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		res, err := app.Maintainer.Reorganize(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(res)
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print storage statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, cleanup, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		st, err := app.Media.StorageStats(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(st)
	},
}

var thumbnailsCmd = &cobra.Command{
	Use:   "thumbnails",
	Short: "Generate a thumbnail for every stored video",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, cleanup, err := newApp(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		if !app.Config.Thumbnails.Enabled {
			return errors.New("thumbnails are disabled")
		}
		res, err := app.Media.GenerateThumbnails(cmd.Context())
		if res != nil {
			if perr := printJSON(res); perr != nil {
				return perr
			}
		}
		return err
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply catalog schema migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		if cfg.Store.Type != "sqlite" {
			return fmt.Errorf("store type %q has no schema", cfg.Store.Type)
		}
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return fmt.Errorf("creating data dir: %w", err)
		}

		db, err := catalog.OpenConnection(cfg.Store.Path)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := migrations.MigrateUp(db); err != nil {
			return err
		}
		version, dirty, err := migrations.Version(db)
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
		fmt.Printf("Schema at version %d (dirty: %v) in %s\n", version, dirty, cfg.Store.Path)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML or TOML config file")
	cleanupCmd.Flags().Bool("full", false, "also reorganize loose files after cleanup")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(optimizeCmd)
	rootCmd.AddCommand(cleanupCmd)
	rootCmd.AddCommand(reorganizeCmd)
	rootCmd.AddCommand(statsCmd)
	rootCmd.AddCommand(thumbnailsCmd)
	rootCmd.AddCommand(migrateCmd)
}
