package catalog

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/coah80/pastvoices/internal/config"
)

// FileProbe reports the size of the file behind an /uploads url and whether
// it exists.
type FileProbe func(url string) (int64, bool)

// NewStoreFromConfig opens the store selected by cfg.Store.Type and seeds it
// when empty. The memory store also replays the video url record so uploaded
// videos survive a restart.
func NewStoreFromConfig(ctx context.Context, cfg *config.Config, probe FileProbe, logger zerolog.Logger) (Store, error) {
	switch cfg.Store.Type {
	case "sqlite":
		if cfg.Store.Path == "" {
			return nil, fmt.Errorf("store path required for sqlite store")
		}
		s, err := NewSQLiteStore(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		seeded, err := Seed(ctx, s)
		if err != nil {
			s.Close()
			return nil, err
		}
		if seeded > 0 {
			logger.Info().Int("personas", seeded).Msg("Seeded catalog")
		}
		return s, nil

	case "memory":
		s := NewMemoryStore(NewVideoURLRecord(cfg.VideoURLRecordPath()), logger)
		seeded, err := Seed(ctx, s)
		if err != nil {
			return nil, err
		}
		logger.Info().Int("personas", seeded).Msg("Seeded catalog")
		if _, err := s.Replay(probe, cfg.Media.LargeAssetBytes); err != nil {
			logger.Error().Err(err).Msg("Failed to replay video url record")
		}
		return s, nil

	default:
		return nil, fmt.Errorf("unknown store type: %s", cfg.Store.Type)
	}
}
