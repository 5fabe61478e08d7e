package transcode

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/coah80/pastvoices/internal/config"
	"github.com/coah80/pastvoices/internal/media"
	"github.com/coah80/pastvoices/internal/util"
)

type ThumbnailBatch struct {
	Generated []string `json:"generated"`
	Failed    int      `json:"failed"`
}

// Thumbnailer grabs a poster frame from a video into thumbnails/.
type Thumbnailer struct {
	lib     *media.Library
	cfg     config.ThumbnailConfig
	ffmpeg  string
	logger  zerolog.Logger
	command commandFunc
}

func NewThumbnailer(lib *media.Library, cfg config.ThumbnailConfig, ffmpeg string, logger zerolog.Logger) *Thumbnailer {
	return &Thumbnailer{lib: lib, cfg: cfg, ffmpeg: ffmpeg, logger: logger, command: exec.CommandContext}
}

func (t *Thumbnailer) outputPath(video string) string {
	base := strings.TrimSuffix(filepath.Base(video), filepath.Ext(video))
	return t.lib.Path(config.ThumbnailsDir, base+".jpg")
}

// Generate writes the thumbnail for video and returns its url.
func (t *Thumbnailer) Generate(ctx context.Context, video string) (string, error) {
	if _, ok := util.FileSize(video); !ok {
		return "", fmt.Errorf("video file not found: %s", video)
	}
	out := t.outputPath(video)
	if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
		return "", fmt.Errorf("creating thumbnails dir: %w", err)
	}

	args := util.ThumbnailArgs(video, out, util.ThumbnailParams{
		Timestamp: t.cfg.Timestamp,
		Size:      t.cfg.Size,
		Quality:   t.cfg.Quality,
	})
	if err := run(ctx, t.command, t.ffmpeg, args); err != nil {
		os.Remove(out)
		return "", err
	}
	t.logger.Debug().Str("thumbnail", out).Msg("Generated thumbnail")
	return t.lib.URL(out)
}

// URLFor returns the existing thumbnail url for a video url.
func (t *Thumbnailer) URLFor(videoURL string) (string, bool) {
	if videoURL == "" {
		return "", false
	}
	out := t.outputPath(media.Basename(videoURL))
	if _, ok := util.FileSize(out); !ok {
		return "", false
	}
	url, err := t.lib.URL(out)
	return url, err == nil
}

// GenerateAll runs Generate over every video in the content root and videos/,
// one at a time.
func (t *Thumbnailer) GenerateAll(ctx context.Context) (*ThumbnailBatch, error) {
	res := &ThumbnailBatch{Generated: []string{}}
	for _, dir := range []string{t.lib.Root(), t.lib.Path(config.VideosDir)} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("reading %s: %w", dir, err)
		}
		for _, e := range entries {
			ext := strings.ToLower(filepath.Ext(e.Name()))
			if e.IsDir() || (ext != ".mp4" && ext != ".webm") {
				continue
			}
			if err := ctx.Err(); err != nil {
				return res, err
			}
			url, err := t.Generate(ctx, filepath.Join(dir, e.Name()))
			if err != nil {
				t.logger.Error().Err(err).Str("file", e.Name()).Msg("Thumbnail generation failed")
				res.Failed++
				continue
			}
			res.Generated = append(res.Generated, url)
		}
	}
	t.logger.Info().Int("generated", len(res.Generated)).Int("failed", res.Failed).Msg("Thumbnail generation complete")
	return res, nil
}
