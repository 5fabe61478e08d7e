package media

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coah80/pastvoices/internal/models"
)

type fakeCatalog struct {
	mu       sync.Mutex
	personas map[int64]*models.Persona
	record   map[int64]string
}

func newFakeCatalog(videos map[int64]string) *fakeCatalog {
	c := &fakeCatalog{personas: map[int64]*models.Persona{}, record: map[int64]string{}}
	for id, url := range videos {
		c.personas[id] = &models.Persona{ID: id, Name: "p", VideoURL: models.StringPtr(url)}
		c.record[id] = url
	}
	return c
}

func (c *fakeCatalog) VideoURLs(context.Context) (map[int64]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[int64]string, len(c.record))
	for k, v := range c.record {
		out[k] = v
	}
	return out, nil
}

func (c *fakeCatalog) ListPersonas(context.Context) ([]models.Persona, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []models.Persona
	for _, p := range c.personas {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (c *fakeCatalog) UpdateMedia(_ context.Context, id int64, u models.MediaUpdate) (*models.Persona, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.personas[id]
	u.Apply(p)
	if u.VideoURL != nil {
		c.record[id] = models.Deref(p.VideoURL)
	}
	cp := *p
	return &cp, nil
}

func (c *fakeCatalog) videoURL(id int64) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return models.Deref(c.personas[id].VideoURL)
}

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, make([]byte, size), 0644))
}

func newTestMaintainer(t *testing.T, videos map[int64]string) (*Maintainer, *fakeCatalog, string) {
	t.Helper()
	root := t.TempDir()
	cat := newFakeCatalog(videos)
	return NewMaintainer(NewLibrary(root), cat, 0, zerolog.Nop()), cat, root
}

func TestCleanup_DeletesOnlyUnreferenced(t *testing.T) {
	m, _, root := newTestMaintainer(t, map[int64]string{
		1: "/uploads/a.mp4",
		2: "/uploads/b.mp4",
	})
	writeFile(t, filepath.Join(root, "a.mp4"), 10)
	writeFile(t, filepath.Join(root, "b.mp4"), 20)
	writeFile(t, filepath.Join(root, "c.mp4"), 30)

	res, err := m.Cleanup(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, res.TotalFiles)
	assert.Equal(t, 2, res.UsedFiles)
	assert.Equal(t, 1, res.DeletedFiles)
	assert.Equal(t, int64(30), res.SavedSpace)

	assert.FileExists(t, filepath.Join(root, "a.mp4"))
	assert.FileExists(t, filepath.Join(root, "b.mp4"))
	assert.NoFileExists(t, filepath.Join(root, "c.mp4"))
}

func TestCleanup_Idempotent(t *testing.T) {
	m, _, root := newTestMaintainer(t, map[int64]string{1: "/uploads/optimized/optimized-a.mp4"})
	writeFile(t, filepath.Join(root, "a.mp4"), 100)
	writeFile(t, filepath.Join(root, "optimized", "optimized-a.mp4"), 40)
	writeFile(t, filepath.Join(root, "videos", "old.webm"), 7)

	first, err := m.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, first.DeletedFiles)
	assert.Equal(t, int64(107), first.SavedSpace)

	second, err := m.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, second.DeletedFiles)
	assert.Equal(t, int64(0), second.SavedSpace)
	assert.Equal(t, 1, second.TotalFiles)
	assert.FileExists(t, filepath.Join(root, "optimized", "optimized-a.mp4"))
}

func TestCleanup_RecordProtectsFilesWithoutLivePersona(t *testing.T) {
	m, cat, root := newTestMaintainer(t, map[int64]string{1: "/uploads/a.mp4"})
	// the persona is gone but the record still names the file
	delete(cat.personas, 1)
	writeFile(t, filepath.Join(root, "a.mp4"), 10)

	res, err := m.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.DeletedFiles)
	assert.FileExists(t, filepath.Join(root, "a.mp4"))
}

func TestCleanup_SkipsNonMediaAndAudioCache(t *testing.T) {
	m, cat, root := newTestMaintainer(t, nil)
	cat.personas[3] = &models.Persona{ID: 3, VoiceFile: models.StringPtr("/uploads/voice.mp3")}
	writeFile(t, filepath.Join(root, "notes.txt"), 5)
	writeFile(t, filepath.Join(root, "voice.mp3"), 5)
	writeFile(t, filepath.Join(root, "audio", "cached.mp3"), 5)

	res, err := m.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.DeletedFiles)
	assert.Equal(t, 1, res.TotalFiles)
	assert.FileExists(t, filepath.Join(root, "notes.txt"))
	assert.FileExists(t, filepath.Join(root, "audio", "cached.mp3"))
}

func TestCleanup_MinAgeProtectsFreshFiles(t *testing.T) {
	m, _, root := newTestMaintainer(t, nil)
	m.MinAge = time.Hour
	writeFile(t, filepath.Join(root, "uploading.mp4"), 10)

	res, err := m.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.DeletedFiles)
	assert.FileExists(t, filepath.Join(root, "uploading.mp4"))

	m.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	res, err = m.Cleanup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.DeletedFiles)
}

func TestReorganize_MovesAndRepoints(t *testing.T) {
	m, cat, root := newTestMaintainer(t, map[int64]string{1: "/uploads/a.mp4"})
	cat.personas[1].VoiceFile = models.StringPtr("/uploads/v.mp3")
	writeFile(t, filepath.Join(root, "a.mp4"), 10)
	writeFile(t, filepath.Join(root, "v.mp3"), 10)
	writeFile(t, filepath.Join(root, "face.PNG"), 10)
	writeFile(t, filepath.Join(root, "readme"), 10)

	res, err := m.Reorganize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, res.MoveCount)
	assert.Equal(t, 1, res.RepointCount)
	assert.Equal(t, 0, res.ErrorCount)

	assert.FileExists(t, filepath.Join(root, "videos", "a.mp4"))
	assert.FileExists(t, filepath.Join(root, "audio", "v.mp3"))
	assert.FileExists(t, filepath.Join(root, "images", "face.PNG"))
	assert.FileExists(t, filepath.Join(root, "temp", "readme"))

	assert.Equal(t, "/uploads/videos/a.mp4", cat.videoURL(1))
	assert.Equal(t, "/uploads/audio/v.mp3", models.Deref(cat.personas[1].VoiceFile))
	urls, _ := cat.VideoURLs(context.Background())
	assert.Equal(t, "/uploads/videos/a.mp4", urls[1])

	again, err := m.Reorganize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ReorganizeResult{}, *again)
}

func TestReorganize_DuplicateRemovesLooseCopy(t *testing.T) {
	m, cat, root := newTestMaintainer(t, map[int64]string{1: "/uploads/a.mp4"})
	writeFile(t, filepath.Join(root, "a.mp4"), 10)
	writeFile(t, filepath.Join(root, "videos", "a.mp4"), 99)

	res, err := m.Reorganize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, res.MoveCount)
	assert.Equal(t, 1, res.DuplicateCount)
	assert.NoFileExists(t, filepath.Join(root, "a.mp4"))

	info, err := os.Stat(filepath.Join(root, "videos", "a.mp4"))
	require.NoError(t, err)
	assert.Equal(t, int64(99), info.Size())
	assert.Equal(t, "/uploads/videos/a.mp4", cat.videoURL(1))
}

func TestFullMaintenance_KeepsReferencedFilesReachable(t *testing.T) {
	m, cat, root := newTestMaintainer(t, map[int64]string{
		1: "/uploads/a.mp4",
		2: "/uploads/optimized/optimized-b.mp4",
	})
	writeFile(t, filepath.Join(root, "a.mp4"), 10)
	writeFile(t, filepath.Join(root, "b.mp4"), 50)
	writeFile(t, filepath.Join(root, "optimized", "optimized-b.mp4"), 20)
	writeFile(t, filepath.Join(root, "c.mp4"), 5)

	res, err := m.FullMaintenance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Cleanup.DeletedFiles)
	assert.Equal(t, 1, res.Reorganize.MoveCount)

	lib := NewLibrary(root)
	for _, id := range []int64{1, 2} {
		_, ok := lib.Probe(cat.videoURL(id))
		assert.True(t, ok, "persona %d video must exist", id)
	}

	again, err := m.FullMaintenance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, again.Cleanup.DeletedFiles)
	assert.Equal(t, 0, again.Reorganize.MoveCount)
}
