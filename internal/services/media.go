package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/coah80/pastvoices/internal/backup"
	"github.com/coah80/pastvoices/internal/cache"
	"github.com/coah80/pastvoices/internal/catalog"
	"github.com/coah80/pastvoices/internal/config"
	"github.com/coah80/pastvoices/internal/media"
	"github.com/coah80/pastvoices/internal/metrics"
	"github.com/coah80/pastvoices/internal/models"
	"github.com/coah80/pastvoices/internal/tasks"
	"github.com/coah80/pastvoices/internal/transcode"
)

// Task kinds.
const (
	TaskOptimize           = "optimize"
	TaskOptimizeAll        = "optimize-videos"
	TaskThumbnail          = "thumbnail"
	TaskGenerateThumbnails = "generate-thumbnails"
	TaskMaintenance        = "cleanup-storage"
	TaskBackup             = "backup"
)

const lowDiskGB = 1.0

type Alerter interface {
	OptimizationFailed(personaID int64, file string, err error)
	MaintenanceFailed(job string, err error)
	MaintenanceFinished(deleted int, reclaimed string, moved int)
	LowDiskSpace(availGB float64)
}

type VideoOptimizer interface {
	Optimize(ctx context.Context, input string) (*transcode.Result, error)
	OptimizeAll(ctx context.Context) (*transcode.BatchResult, error)
}

type ThumbnailGenerator interface {
	Generate(ctx context.Context, video string) (string, error)
	GenerateAll(ctx context.Context) (*transcode.ThumbnailBatch, error)
}

type StorageMaintainer interface {
	FullMaintenance(ctx context.Context) (*media.MaintenanceResult, error)
}

type TaskRunner interface {
	Enqueue(kind string, maxAttempts int, fn tasks.Func) (string, error)
}

// MediaService owns the upload lifecycle: store the file, point the persona
// at it, then hand the slow work to the task queue.
type MediaService struct {
	store     catalog.Store
	lib       *media.Library
	optimizer VideoOptimizer
	thumbs    ThumbnailGenerator
	maint     StorageMaintainer
	queue     TaskRunner
	alerts    Alerter
	mirror    backup.Mirror
	metrics   metrics.Metrics
	cache     cache.Cache
	logger    zerolog.Logger

	largeAt    int64
	dataDir    string
	optimize   bool
	thumbnails bool

	// serializes compare-and-set on persona video urls
	mu sync.Mutex
}

func NewMediaService(
	cfg *config.Config,
	store catalog.Store,
	lib *media.Library,
	optimizer VideoOptimizer,
	thumbs ThumbnailGenerator,
	maint StorageMaintainer,
	queue TaskRunner,
	alerts Alerter,
	mirror backup.Mirror,
	m metrics.Metrics,
	c cache.Cache,
	logger zerolog.Logger,
) *MediaService {
	return &MediaService{
		store:      store,
		lib:        lib,
		optimizer:  optimizer,
		thumbs:     thumbs,
		maint:      maint,
		queue:      queue,
		alerts:     alerts,
		mirror:     mirror,
		metrics:    m,
		cache:      c,
		logger:     logger,
		largeAt:    cfg.Media.LargeAssetBytes,
		dataDir:    cfg.DataDir,
		optimize:   cfg.Optimizer.Enabled,
		thumbnails: cfg.Thumbnails.Enabled,
	}
}

// UploadPart is the located multipart part, not yet read.
type UploadPart struct {
	Filename    string
	ContentType string
	Body        io.Reader
}

// StorageError wraps a disk failure while saving an upload.
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string { return e.Err.Error() }
func (e *StorageError) Unwrap() error { return e.Err }

// CheckPersona reports catalog.ErrNotFound before any upload byte is read.
func (s *MediaService) CheckPersona(ctx context.Context, id int64) error {
	_, err := s.store.GetPersona(ctx, id)
	return err
}

// Upload stores part for persona id and updates the matching media field.
// For videos the returned persona carries the original url; optimization and
// thumbnail tasks are queued afterwards.
func (s *MediaService) Upload(ctx context.Context, id int64, kind media.Kind, part UploadPart) (*models.Persona, error) {
	if _, err := s.store.GetPersona(ctx, id); err != nil {
		return nil, err
	}
	if part.Body == nil {
		return nil, media.ErrNoFile
	}
	if err := media.CheckContentType(kind, part.ContentType); err != nil {
		return nil, err
	}

	stored, err := s.lib.Save(kind, part.Filename, part.Body)
	if err != nil {
		return nil, &StorageError{Err: err}
	}
	s.logger.Info().
		Int64("sub", id).
		Str("file", stored.Name).
		Int64("size", stored.Size).
		Str("kind", string(kind)).
		Msg("File uploaded successfully")
	s.metrics.IncUploads(string(kind))

	var update models.MediaUpdate
	switch kind {
	case media.KindVoice:
		update.VoiceFile = &stored.URL
	default:
		large := stored.Size >= s.largeAt
		update.VideoURL = &stored.URL
		update.VideoBytes = &stored.Size
		update.LargeAsset = &large
	}

	s.mu.Lock()
	p, err := s.store.UpdateMedia(ctx, id, update)
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	s.invalidate()
	s.logger.Info().Int64("sub", id).Str("url", stored.URL).Msgf("Updated %s", kind.Field())

	s.enqueueBackup(stored.Path, stored.URL)
	if kind == media.KindVideo {
		s.enqueueVideoTasks(id, stored)
	}
	return p, nil
}

func (s *MediaService) enqueueVideoTasks(id int64, stored *media.StoredFile) {
	if s.optimize {
		if _, err := s.queue.Enqueue(TaskOptimize, 1, func(ctx context.Context) (any, error) {
			return s.optimizeUpload(ctx, id, stored)
		}); err != nil {
			s.logger.Error().Err(err).Int64("sub", id).Msg("Could not queue optimization")
		}
	}
	if s.thumbnails {
		if _, err := s.queue.Enqueue(TaskThumbnail, 2, func(ctx context.Context) (any, error) {
			return s.thumbnailUpload(ctx, id, stored)
		}); err != nil {
			s.logger.Error().Err(err).Int64("sub", id).Msg("Could not queue thumbnail")
		}
	}
}

func (s *MediaService) enqueueBackup(path, url string) {
	if !s.mirror.Enabled() {
		return
	}
	key := strings.TrimPrefix(url, config.UploadsURLPrefix+"/")
	if _, err := s.queue.Enqueue(TaskBackup, 3, func(ctx context.Context) (any, error) {
		return key, s.mirror.Mirror(ctx, path, key)
	}); err != nil {
		s.logger.Error().Err(err).Str("key", key).Msg("Could not queue backup")
	}
}

// optimizeUpload transcodes one upload. A failure leaves the persona on the
// original file.
func (s *MediaService) optimizeUpload(ctx context.Context, id int64, stored *media.StoredFile) (*transcode.Result, error) {
	res, err := s.optimizer.Optimize(ctx, stored.Path)
	if err != nil {
		s.metrics.IncOptimizations("failed")
		s.logger.Error().Err(err).Int64("sub", id).Str("file", stored.Name).Msg("Optimization failed, keeping original")
		s.alerts.OptimizationFailed(id, stored.Name, err)
		return nil, err
	}
	s.metrics.IncOptimizations("succeeded")

	ok, err := s.repointIfCurrent(ctx, id, stored.URL, res)
	if err != nil {
		return nil, err
	}
	if !ok {
		s.logger.Info().Int64("sub", id).Msg("Video changed during optimization, not repointing")
	}
	s.enqueueBackup(res.Output, res.URL)
	return res, nil
}

// repointIfCurrent moves persona id onto the optimized file only while it
// still references source.
func (s *MediaService) repointIfCurrent(ctx context.Context, id int64, source string, res *transcode.Result) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.store.GetPersona(ctx, id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if models.Deref(p.VideoURL) != source {
		return false, nil
	}

	large := res.OptimizedBytes >= s.largeAt
	if _, err := s.store.UpdateMedia(ctx, id, models.MediaUpdate{
		VideoURL:   &res.URL,
		VideoBytes: &res.OptimizedBytes,
		LargeAsset: &large,
	}); err != nil {
		return false, fmt.Errorf("repointing sub %d: %w", id, err)
	}
	s.invalidate()
	s.logger.Info().Int64("sub", id).Str("url", res.URL).Msg("Switched to optimized video")
	return true, nil
}

func (s *MediaService) thumbnailUpload(ctx context.Context, id int64, stored *media.StoredFile) (string, error) {
	url, err := s.thumbs.Generate(ctx, stored.Path)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.store.GetPersona(ctx, id)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return url, nil
		}
		return "", err
	}
	if p.AvatarURL == nil {
		if _, err := s.store.UpdateMedia(ctx, id, models.MediaUpdate{AvatarURL: &url}); err != nil {
			return "", err
		}
		s.invalidate()
	}
	return url, nil
}

// OptimizeAllTask queues a batch optimization and returns its task id.
func (s *MediaService) OptimizeAllTask() (string, error) {
	return s.queue.Enqueue(TaskOptimizeAll, 1, func(ctx context.Context) (any, error) {
		return s.OptimizeAll(ctx)
	})
}

// OptimizeAll runs the batch optimizer and repoints every persona whose
// video was one of the optimized originals.
func (s *MediaService) OptimizeAll(ctx context.Context) (*transcode.BatchResult, error) {
	res, err := s.optimizer.OptimizeAll(ctx)
	if res == nil {
		return nil, err
	}

	for _, f := range res.Failed {
		s.metrics.IncOptimizations("failed")
		s.alerts.OptimizationFailed(0, f.Source, errors.New(f.Error))
	}
	if len(res.Optimized) == 0 {
		return res, err
	}

	personas, lerr := s.store.ListPersonas(ctx)
	if lerr != nil {
		return res, fmt.Errorf("listing personas: %w", lerr)
	}
	for i := range res.Optimized {
		r := &res.Optimized[i]
		s.metrics.IncOptimizations("succeeded")
		for _, p := range personas {
			if models.Deref(p.VideoURL) != r.SourceURL {
				continue
			}
			if _, rerr := s.repointIfCurrent(ctx, p.ID, r.SourceURL, r); rerr != nil {
				s.logger.Error().Err(rerr).Int64("sub", p.ID).Msg("Repoint after batch optimization failed")
			}
		}
	}
	return res, err
}

func (s *MediaService) MaintenanceTask() (string, error) {
	return s.queue.Enqueue(TaskMaintenance, 3, func(ctx context.Context) (any, error) {
		return s.Maintenance(ctx)
	})
}

// Maintenance runs cleanup then reorganize and reports the outcome.
func (s *MediaService) Maintenance(ctx context.Context) (*media.MaintenanceResult, error) {
	res, err := s.maint.FullMaintenance(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Storage maintenance failed")
		s.alerts.MaintenanceFailed(TaskMaintenance, err)
		return nil, err
	}
	s.invalidate()
	s.cache.Delete(cache.KeyStorageStats)
	s.metrics.AddBytesReclaimed(res.Cleanup.SavedSpace)

	s.logger.Info().
		Int("deleted", res.Cleanup.DeletedFiles).
		Str("reclaimed", res.Cleanup.SavedSpaceHuman).
		Int("moved", res.Reorganize.MoveCount).
		Int("duplicates", res.Reorganize.DuplicateCount).
		Msg("Storage maintenance complete")
	s.alerts.MaintenanceFinished(res.Cleanup.DeletedFiles, res.Cleanup.SavedSpaceHuman, res.Reorganize.MoveCount)
	return res, nil
}

func (s *MediaService) GenerateThumbnailsTask() (string, error) {
	return s.queue.Enqueue(TaskGenerateThumbnails, 1, func(ctx context.Context) (any, error) {
		return s.GenerateThumbnails(ctx)
	})
}

// GenerateThumbnails renders a poster frame for every stored video.
func (s *MediaService) GenerateThumbnails(ctx context.Context) (*transcode.ThumbnailBatch, error) {
	res, err := s.thumbs.GenerateAll(ctx)
	if res != nil && len(res.Generated) > 0 {
		s.cache.Delete(cache.KeyStorageStats)
	}
	return res, err
}

// StorageStats returns the storage report, cached for the configured TTL.
func (s *MediaService) StorageStats(ctx context.Context) (*media.StorageStats, error) {
	if raw, ok := s.cache.Get(cache.KeyStorageStats); ok {
		var st media.StorageStats
		if err := json.Unmarshal(raw, &st); err == nil {
			s.metrics.IncCacheHits()
			return &st, nil
		}
	}
	s.metrics.IncCacheMisses()

	st, err := s.lib.Stats(s.dataDir)
	if err != nil {
		return nil, err
	}
	if st.Disk != nil {
		if availGB := float64(st.Disk.AvailBytes) / (1 << 30); availGB < lowDiskGB {
			s.alerts.LowDiskSpace(availGB)
		}
	}
	if raw, err := json.Marshal(st); err == nil {
		s.cache.Set(cache.KeyStorageStats, raw)
	}
	return st, nil
}

func (s *MediaService) invalidate() {
	s.cache.Delete(cache.KeyPersonas)
}
