package media

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/coah80/pastvoices/internal/config"
	"github.com/coah80/pastvoices/internal/models"
	"github.com/coah80/pastvoices/internal/util"
)

// Catalog is the slice of the persona store maintenance needs.
type Catalog interface {
	VideoURLs(ctx context.Context) (map[int64]string, error)
	ListPersonas(ctx context.Context) ([]models.Persona, error)
	UpdateMedia(ctx context.Context, id int64, u models.MediaUpdate) (*models.Persona, error)
}

type CleanupResult struct {
	TotalFiles      int    `json:"totalFiles"`
	UsedFiles       int    `json:"usedFiles"`
	DeletedFiles    int    `json:"deletedFiles"`
	SavedSpace      int64  `json:"savedSpace"`
	SavedSpaceHuman string `json:"savedSpaceHuman"`
	Errors          int    `json:"errors"`
}

type ReorganizeResult struct {
	MoveCount      int `json:"moveCount"`
	DuplicateCount int `json:"duplicateCount"`
	RepointCount   int `json:"repointCount"`
	ErrorCount     int `json:"errorCount"`
}

type MaintenanceResult struct {
	Cleanup    CleanupResult    `json:"cleanupStats"`
	Reorganize ReorganizeResult `json:"reorganizeStats"`
}

// Maintainer runs the storage jobs against a Library.
type Maintainer struct {
	lib     *Library
	catalog Catalog
	logger  zerolog.Logger

	// MinAge shields files modified more recently than this from both jobs,
	// so uploads and transcodes still being written are not touched.
	MinAge time.Duration
	now    func() time.Time
}

func NewMaintainer(lib *Library, catalog Catalog, minAge time.Duration, logger zerolog.Logger) *Maintainer {
	return &Maintainer{
		lib:     lib,
		catalog: catalog,
		logger:  logger,
		MinAge:  minAge,
		now:     time.Now,
	}
}

// referenced collects the basenames in use: every url in the durable video
// record plus the media fields of live personas.
func (m *Maintainer) referenced(ctx context.Context) (map[string]struct{}, error) {
	urls, err := m.catalog.VideoURLs(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading video urls: %w", err)
	}
	personas, err := m.catalog.ListPersonas(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing personas: %w", err)
	}

	used := make(map[string]struct{})
	add := func(u string) {
		if u != "" {
			used[Basename(u)] = struct{}{}
		}
	}
	for _, u := range urls {
		add(u)
	}
	for _, p := range personas {
		add(models.Deref(p.VideoURL))
		add(models.Deref(p.AvatarURL))
		add(models.Deref(p.VoiceFile))
	}
	return used, nil
}

func isMedia(name string) bool {
	return config.Contains(config.MediaExtensions, strings.ToLower(filepath.Ext(name)))
}

func (m *Maintainer) settled(info os.FileInfo) bool {
	return m.MinAge <= 0 || m.now().Sub(info.ModTime()) >= m.MinAge
}

// Cleanup deletes media files in the content root and the scanned
// subdirectories whose basename nothing references.
func (m *Maintainer) Cleanup(ctx context.Context) (*CleanupResult, error) {
	used, err := m.referenced(ctx)
	if err != nil {
		return nil, err
	}

	dirs := []string{m.lib.Root()}
	for _, sub := range config.CleanupScanDirs {
		dirs = append(dirs, m.lib.Path(sub))
	}

	res := &CleanupResult{UsedFiles: len(used)}
	for _, dir := range dirs {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("reading %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() || !isMedia(e.Name()) {
				continue
			}
			res.TotalFiles++
			if _, ok := used[e.Name()]; ok {
				continue
			}

			info, err := e.Info()
			if err != nil {
				res.Errors++
				continue
			}
			if !m.settled(info) {
				continue
			}

			p := filepath.Join(dir, e.Name())
			if err := os.Remove(p); err != nil {
				m.logger.Error().Err(err).Str("file", p).Msg("Failed to delete unused file")
				res.Errors++
				continue
			}
			res.DeletedFiles++
			res.SavedSpace += info.Size()
			m.logger.Info().Str("file", p).Int64("bytes", info.Size()).Msg("Deleted unused file")
		}
	}

	res.SavedSpaceHuman = util.FormatBytes(res.SavedSpace)
	m.logger.Info().
		Int("total", res.TotalFiles).
		Int("used", res.UsedFiles).
		Int("deleted", res.DeletedFiles).
		Int64("saved_bytes", res.SavedSpace).
		Msg("Cleanup complete")
	return res, nil
}

func categoryFor(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	for _, dir := range config.CategoryOrder {
		if config.Contains(config.CategoryExtensions[dir], ext) {
			return dir
		}
	}
	return config.TempDir
}

// Reorganize moves loose files in the content root into category
// subdirectories. A name that already exists at the destination is treated
// as a duplicate and the loose copy removed. Personas pointing at a moved
// file are repointed to its new url.
func (m *Maintainer) Reorganize(ctx context.Context) (*ReorganizeResult, error) {
	if err := m.lib.EnsureDirs(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(m.lib.Root())
	if err != nil {
		return nil, fmt.Errorf("reading content root: %w", err)
	}

	res := &ReorganizeResult{}
	moved := make(map[string]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			res.ErrorCount++
			continue
		}
		if !m.settled(info) {
			continue
		}

		name := e.Name()
		dir := categoryFor(name)
		src := m.lib.Path(name)
		dst := m.lib.Path(dir, name)

		if _, err := os.Stat(dst); err == nil {
			if err := os.Remove(src); err != nil {
				m.logger.Error().Err(err).Str("file", src).Msg("Failed to remove duplicate")
				res.ErrorCount++
				continue
			}
			res.DuplicateCount++
		} else {
			if err := os.Rename(src, dst); err != nil {
				m.logger.Error().Err(err).Str("file", src).Msg("Failed to move file")
				res.ErrorCount++
				continue
			}
			res.MoveCount++
			m.logger.Debug().Str("file", name).Str("dir", dir).Msg("Moved file")
		}
		moved[config.UploadsURLPrefix+"/"+name] = config.UploadsURLPrefix + "/" + dir + "/" + name
	}

	if len(moved) > 0 {
		n, err := m.repoint(ctx, moved)
		res.RepointCount = n
		if err != nil {
			return res, err
		}
	}

	m.logger.Info().
		Int("moved", res.MoveCount).
		Int("duplicates", res.DuplicateCount).
		Int("repointed", res.RepointCount).
		Int("errors", res.ErrorCount).
		Msg("Reorganize complete")
	return res, nil
}

func (m *Maintainer) repoint(ctx context.Context, moved map[string]string) (int, error) {
	personas, err := m.catalog.ListPersonas(ctx)
	if err != nil {
		return 0, fmt.Errorf("listing personas: %w", err)
	}

	count := 0
	for _, p := range personas {
		var u models.MediaUpdate
		changed := false
		if to, ok := moved[models.Deref(p.VideoURL)]; ok {
			u.VideoURL = models.StringPtr(to)
			changed = true
		}
		if to, ok := moved[models.Deref(p.AvatarURL)]; ok {
			u.AvatarURL = models.StringPtr(to)
			changed = true
		}
		if to, ok := moved[models.Deref(p.VoiceFile)]; ok {
			u.VoiceFile = models.StringPtr(to)
			changed = true
		}
		if !changed {
			continue
		}
		if _, err := m.catalog.UpdateMedia(ctx, p.ID, u); err != nil {
			return count, fmt.Errorf("repointing persona %d: %w", p.ID, err)
		}
		count++
	}
	return count, nil
}

// FullMaintenance runs cleanup then reorganize.
func (m *Maintainer) FullMaintenance(ctx context.Context) (*MaintenanceResult, error) {
	m.logger.Info().Msg("Starting full storage maintenance")
	cleanup, err := m.Cleanup(ctx)
	if err != nil {
		return nil, fmt.Errorf("cleanup: %w", err)
	}
	reorg, err := m.Reorganize(ctx)
	if err != nil {
		return nil, fmt.Errorf("reorganize: %w", err)
	}
	return &MaintenanceResult{Cleanup: *cleanup, Reorganize: *reorg}, nil
}
