package services

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

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

type queued struct {
	kind        string
	maxAttempts int
	fn          tasks.Func
}

type fakeQueue struct {
	mu    sync.Mutex
	tasks []queued
}

func (q *fakeQueue) Enqueue(kind string, maxAttempts int, fn tasks.Func) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.tasks = append(q.tasks, queued{kind: kind, maxAttempts: maxAttempts, fn: fn})
	return fmt.Sprintf("task-%d", len(q.tasks)), nil
}

func (q *fakeQueue) kinds() []string {
	var out []string
	for _, t := range q.tasks {
		out = append(out, t.kind)
	}
	return out
}

func (q *fakeQueue) run(t *testing.T, kind string) (any, error) {
	t.Helper()
	for _, task := range q.tasks {
		if task.kind == kind {
			return task.fn(context.Background())
		}
	}
	t.Fatalf("no %s task queued", kind)
	return nil, nil
}

type fakeOptimizer struct {
	lib    *media.Library
	err    error
	inputs []string
	batch  *transcode.BatchResult
}

func (o *fakeOptimizer) Optimize(_ context.Context, input string) (*transcode.Result, error) {
	o.inputs = append(o.inputs, input)
	if o.err != nil {
		return nil, o.err
	}
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	out := o.lib.Path(config.OptimizedDir, "optimized-"+base+".mp4")
	if err := os.WriteFile(out, []byte("small"), 0644); err != nil {
		return nil, err
	}
	url, _ := o.lib.URL(out)
	src, _ := o.lib.URL(input)
	return &transcode.Result{Source: input, SourceURL: src, Output: out, URL: url, OptimizedBytes: 5}, nil
}

func (o *fakeOptimizer) OptimizeAll(context.Context) (*transcode.BatchResult, error) {
	return o.batch, nil
}

type fakeThumbs struct {
	url string
	err error
}

func (f *fakeThumbs) Generate(context.Context, string) (string, error) { return f.url, f.err }
func (f *fakeThumbs) GenerateAll(context.Context) (*transcode.ThumbnailBatch, error) {
	return &transcode.ThumbnailBatch{Generated: []string{f.url}}, f.err
}

type fakeMaintainer struct {
	res *media.MaintenanceResult
	err error
}

func (f *fakeMaintainer) FullMaintenance(context.Context) (*media.MaintenanceResult, error) {
	return f.res, f.err
}

type fakeAlerts struct {
	optimizerFailures []string
	maintenanceFailed int
	maintenanceDone   int
}

func (a *fakeAlerts) OptimizationFailed(id int64, file string, _ error) {
	a.optimizerFailures = append(a.optimizerFailures, fmt.Sprintf("%d:%s", id, file))
}
func (a *fakeAlerts) MaintenanceFailed(string, error)      { a.maintenanceFailed++ }
func (a *fakeAlerts) MaintenanceFinished(int, string, int) { a.maintenanceDone++ }
func (a *fakeAlerts) LowDiskSpace(float64)                 {}

type mediaFixture struct {
	svc    *MediaService
	store  *catalog.MemoryStore
	lib    *media.Library
	queue  *fakeQueue
	opt    *fakeOptimizer
	thumbs *fakeThumbs
	maint  *fakeMaintainer
	alerts *fakeAlerts
	record string
}

func newMediaFixture(t *testing.T, personas int) *mediaFixture {
	t.Helper()
	root := t.TempDir()
	dataDir := t.TempDir()
	lib := media.NewLibrary(root)
	require.NoError(t, lib.EnsureDirs())

	recordPath := filepath.Join(dataDir, "video-urls.json")
	store := catalog.NewMemoryStore(catalog.NewVideoURLRecord(recordPath), zerolog.Nop())
	for i := 1; i <= personas; i++ {
		_, err := store.CreatePersona(context.Background(), models.InsertPersona{
			Name: fmt.Sprintf("Figure %d", i), Title: "t", Bio: "b", Prompt: "p",
		})
		require.NoError(t, err)
	}

	cfg := &config.Config{
		DataDir:    dataDir,
		Media:      config.MediaConfig{LargeAssetBytes: 10},
		Optimizer:  config.OptimizerConfig{Enabled: true},
		Thumbnails: config.ThumbnailConfig{Enabled: true},
	}
	f := &mediaFixture{
		store:  store,
		lib:    lib,
		queue:  &fakeQueue{},
		opt:    &fakeOptimizer{lib: lib},
		thumbs: &fakeThumbs{url: "/uploads/thumbnails/x.jpg"},
		maint:  &fakeMaintainer{},
		alerts: &fakeAlerts{},
		record: recordPath,
	}
	f.svc = NewMediaService(cfg, store, lib, f.opt, f.thumbs, f.maint, f.queue, f.alerts,
		backup.Noop{}, metrics.New(config.MetricsConfig{}, nil),
		cache.New(config.CacheConfig{Enabled: true, SizeMB: 1, TTL: 60}, zerolog.Nop()), zerolog.Nop())
	return f
}

func readRecord(t *testing.T, path string) map[string]string {
	t.Helper()
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var m map[string]string
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func TestUpload_VideoScenario(t *testing.T) {
	f := newMediaFixture(t, 7)
	ctx := context.Background()

	p, err := f.svc.Upload(ctx, 7, media.KindVideo, UploadPart{
		Filename:    "clip.mp4",
		ContentType: "video/mp4",
		Body:        strings.NewReader("0123456789abcdef"),
	})
	require.NoError(t, err)

	url := models.Deref(p.VideoURL)
	assert.True(t, strings.HasPrefix(url, "/uploads/"))
	assert.True(t, strings.HasSuffix(url, "-clip.mp4"))
	assert.Equal(t, int64(16), p.VideoBytes)
	assert.True(t, p.IsLargeAsset)

	size, ok := f.lib.Probe(url)
	require.True(t, ok)
	assert.Equal(t, int64(16), size)

	assert.Equal(t, url, readRecord(t, f.record)["7"], "record is written before Upload returns")
	assert.Equal(t, []string{TaskOptimize, TaskThumbnail}, f.queue.kinds())
	assert.Equal(t, 1, f.queue.tasks[0].maxAttempts)

	_, err = f.queue.run(t, TaskOptimize)
	require.NoError(t, err)

	after, err := f.store.GetPersona(ctx, 7)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(models.Deref(after.VideoURL), "/uploads/optimized/optimized-"))
	assert.Equal(t, int64(5), after.VideoBytes)
	assert.False(t, after.IsLargeAsset)
	assert.Equal(t, models.Deref(after.VideoURL), readRecord(t, f.record)["7"])

	_, err = f.queue.run(t, TaskThumbnail)
	require.NoError(t, err)
	after, _ = f.store.GetPersona(ctx, 7)
	assert.Equal(t, "/uploads/thumbnails/x.jpg", models.Deref(after.AvatarURL))
}

func TestUpload_OptimizationFailsOpen(t *testing.T) {
	f := newMediaFixture(t, 2)
	f.opt.err = errors.New("ffmpeg exited with code 1")
	ctx := context.Background()

	p, err := f.svc.Upload(ctx, 2, media.KindVideo, UploadPart{Filename: "a.mp4", ContentType: "video/mp4", Body: strings.NewReader("abc")})
	require.NoError(t, err)

	_, err = f.queue.run(t, TaskOptimize)
	require.Error(t, err)

	after, err := f.store.GetPersona(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, models.Deref(p.VideoURL), models.Deref(after.VideoURL))
	require.Len(t, f.alerts.optimizerFailures, 1)
	assert.True(t, strings.HasPrefix(f.alerts.optimizerFailures[0], "2:"))
}

func TestUpload_SupersededVideoIsNotRepointed(t *testing.T) {
	f := newMediaFixture(t, 1)
	ctx := context.Background()

	_, err := f.svc.Upload(ctx, 1, media.KindVideo, UploadPart{Filename: "first.mp4", ContentType: "video/mp4", Body: strings.NewReader("1")})
	require.NoError(t, err)
	second, err := f.svc.Upload(ctx, 1, media.KindVideo, UploadPart{Filename: "second.mp4", ContentType: "video/mp4", Body: strings.NewReader("2")})
	require.NoError(t, err)

	_, err = f.queue.tasks[0].fn(ctx)
	require.NoError(t, err)

	after, _ := f.store.GetPersona(ctx, 1)
	assert.Equal(t, models.Deref(second.VideoURL), models.Deref(after.VideoURL))
}

func TestUpload_Rejections(t *testing.T) {
	f := newMediaFixture(t, 1)
	ctx := context.Background()

	_, err := f.svc.Upload(ctx, 99, media.KindVideo, UploadPart{Filename: "a.mp4", ContentType: "video/mp4", Body: strings.NewReader("x")})
	assert.ErrorIs(t, err, catalog.ErrNotFound)

	_, err = f.svc.Upload(ctx, 1, media.KindVideo, UploadPart{Filename: "a.txt", ContentType: "text/plain", Body: strings.NewReader("x")})
	assert.ErrorIs(t, err, media.ErrUnsupportedType)

	_, err = f.svc.Upload(ctx, 1, media.KindVoice, UploadPart{Filename: "a.mp4", ContentType: "video/mp4", Body: strings.NewReader("x")})
	assert.ErrorIs(t, err, media.ErrUnsupportedType)

	_, err = f.svc.Upload(ctx, 1, media.KindVideo, UploadPart{Filename: "a.mp4", ContentType: "video/mp4"})
	assert.ErrorIs(t, err, media.ErrNoFile)

	entries, err := os.ReadDir(f.lib.Root())
	require.NoError(t, err)
	for _, e := range entries {
		assert.True(t, e.IsDir(), "rejected upload wrote %s", e.Name())
	}
	assert.Empty(t, f.queue.tasks)
}

func TestUpload_Voice(t *testing.T) {
	f := newMediaFixture(t, 1)

	p, err := f.svc.Upload(context.Background(), 1, media.KindVoice, UploadPart{Filename: "v.mp3", ContentType: "audio/mpeg", Body: strings.NewReader("mp3")})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(models.Deref(p.VoiceFile), "/uploads/voices/"))
	assert.Nil(t, p.VideoURL)
	assert.Empty(t, f.queue.tasks)
}

func TestOptimizeAll_RepointsPersonas(t *testing.T) {
	f := newMediaFixture(t, 2)
	ctx := context.Background()
	_, err := f.store.UpdateMedia(ctx, 1, models.MediaUpdate{VideoURL: models.StringPtr("/uploads/old.mp4")})
	require.NoError(t, err)

	f.opt.batch = &transcode.BatchResult{
		Found: 2,
		Optimized: []transcode.Result{
			{SourceURL: "/uploads/old.mp4", URL: "/uploads/optimized/optimized-old.mp4", OptimizedBytes: 3},
		},
		Failed: []transcode.Failure{{Source: "broken.mp4", Error: "exit 1"}},
	}

	id, err := f.svc.OptimizeAllTask()
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	_, err = f.queue.run(t, TaskOptimizeAll)
	require.NoError(t, err)

	p, _ := f.store.GetPersona(ctx, 1)
	assert.Equal(t, "/uploads/optimized/optimized-old.mp4", models.Deref(p.VideoURL))
	assert.Equal(t, int64(3), p.VideoBytes)
	assert.Equal(t, []string{"0:broken.mp4"}, f.alerts.optimizerFailures)
}

func TestMaintenance_Alerts(t *testing.T) {
	f := newMediaFixture(t, 1)

	f.maint.res = &media.MaintenanceResult{Cleanup: media.CleanupResult{DeletedFiles: 1, SavedSpace: 10}}
	_, err := f.svc.MaintenanceTask()
	require.NoError(t, err)
	assert.Equal(t, 3, f.queue.tasks[0].maxAttempts)

	_, err = f.queue.run(t, TaskMaintenance)
	require.NoError(t, err)
	assert.Equal(t, 1, f.alerts.maintenanceDone)

	f.maint.err = errors.New("disk gone")
	_, err = f.svc.Maintenance(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, f.alerts.maintenanceFailed)
}

func TestStorageStats_Cached(t *testing.T) {
	f := newMediaFixture(t, 1)
	require.NoError(t, os.WriteFile(f.lib.Path("a.mp4"), []byte("12345"), 0644))

	first, err := f.svc.StorageStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, first.Uploads.TotalFiles)

	require.NoError(t, os.WriteFile(f.lib.Path("b.mp4"), []byte("12345"), 0644))
	second, err := f.svc.StorageStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, second.Uploads.TotalFiles, "served from cache")

	f.maint.res = &media.MaintenanceResult{}
	_, err = f.svc.Maintenance(context.Background())
	require.NoError(t, err)

	third, err := f.svc.StorageStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, third.Uploads.TotalFiles)
}
