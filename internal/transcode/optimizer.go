package transcode

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/coah80/pastvoices/internal/config"
	"github.com/coah80/pastvoices/internal/media"
	"github.com/coah80/pastvoices/internal/util"
)

// Result describes one finished optimization.
type Result struct {
	Source         string  `json:"source"`
	SourceURL      string  `json:"sourceUrl"`
	Output         string  `json:"-"`
	URL            string  `json:"url"`
	OriginalBytes  int64   `json:"originalBytes"`
	OptimizedBytes int64   `json:"optimizedBytes"`
	Reduction      float64 `json:"reductionPercent"`
	Deleted        bool    `json:"originalDeleted"`
}

type Failure struct {
	Source string `json:"source"`
	Error  string `json:"error"`
}

type BatchResult struct {
	Found     int       `json:"found"`
	Skipped   int       `json:"skipped"`
	Optimized []Result  `json:"optimized"`
	Failed    []Failure `json:"failed"`
}

// Optimizer re-encodes uploads into the optimized directory with ffmpeg.
type Optimizer struct {
	lib     *media.Library
	cfg     config.OptimizerConfig
	logger  zerolog.Logger
	command commandFunc
}

func NewOptimizer(lib *media.Library, cfg config.OptimizerConfig, logger zerolog.Logger) *Optimizer {
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 3
	}
	return &Optimizer{lib: lib, cfg: cfg, logger: logger, command: exec.CommandContext}
}

// OutputPath is where input's optimized copy is written.
func (o *Optimizer) OutputPath(input string) string {
	base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	return o.lib.Path(config.OptimizedDir, "optimized-"+base+"."+o.cfg.Format)
}

// Optimize transcodes input. On failure the partial output is removed and
// the original is left untouched.
func (o *Optimizer) Optimize(ctx context.Context, input string) (*Result, error) {
	originalSize, ok := util.FileSize(input)
	if !ok {
		return nil, fmt.Errorf("video file not found: %s", input)
	}

	output := o.OutputPath(input)
	if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
		return nil, fmt.Errorf("creating optimized dir: %w", err)
	}

	args := util.OptimizeArgs(input, output, util.OptimizeParams{
		MaxWidth:     o.cfg.MaxWidth,
		VideoBitrate: o.cfg.VideoBitrate,
		AudioBitrate: o.cfg.AudioBitrate,
		Preset:       o.cfg.Preset,
	})

	name := filepath.Base(input)
	o.logger.Info().Str("file", name).Strs("args", args).Msg("Optimizing video")

	if err := run(ctx, o.command, o.cfg.FFmpegPath, args); err != nil {
		os.Remove(output)
		o.logger.Error().Err(err).Str("file", name).Msg("Video optimization failed")
		return nil, err
	}

	optimizedSize, ok := util.FileSize(output)
	if !ok {
		return nil, fmt.Errorf("ffmpeg produced no output for %s", name)
	}

	url, err := o.lib.URL(output)
	if err != nil {
		return nil, err
	}
	sourceURL, _ := o.lib.URL(input)

	res := &Result{
		Source:         input,
		SourceURL:      sourceURL,
		Output:         output,
		URL:            url,
		OriginalBytes:  originalSize,
		OptimizedBytes: optimizedSize,
		Reduction:      util.ReductionPercent(originalSize, optimizedSize),
	}

	o.logger.Info().
		Str("file", name).
		Str("original", util.FormatBytes(originalSize)).
		Str("optimized", util.FormatBytes(optimizedSize)).
		Float64("saved_percent", res.Reduction).
		Msg("Video optimization complete")

	if o.cfg.DeleteOriginal {
		if err := os.Remove(input); err != nil {
			o.logger.Warn().Err(err).Str("file", name).Msg("Failed to delete original")
		} else {
			res.Deleted = true
		}
	}
	return res, nil
}

// Candidates lists .mp4 files in the content root and videos/ that have no
// optimized copy yet, and how many were skipped because one exists.
func (o *Optimizer) Candidates() ([]string, int, error) {
	var out []string
	skipped := 0
	for _, dir := range []string{o.lib.Root(), o.lib.Path(config.VideosDir)} {
		entries, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, 0, fmt.Errorf("reading %s: %w", dir, err)
		}
		for _, e := range entries {
			if e.IsDir() || strings.ToLower(filepath.Ext(e.Name())) != ".mp4" {
				continue
			}
			p := filepath.Join(dir, e.Name())
			if _, exists := util.FileSize(o.OutputPath(p)); exists {
				skipped++
				continue
			}
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out, skipped, nil
}

// OptimizeAll runs Optimize over every candidate, BatchSize at a time. A
// failing file is recorded and does not stop the batch.
func (o *Optimizer) OptimizeAll(ctx context.Context) (*BatchResult, error) {
	files, skipped, err := o.Candidates()
	if err != nil {
		return nil, err
	}

	res := &BatchResult{Found: len(files), Skipped: skipped, Optimized: []Result{}, Failed: []Failure{}}
	o.logger.Info().Int("videos", len(files)).Int("already_optimized", skipped).Msg("Starting batch optimization")

	var mu sync.Mutex
	for i := 0; i < len(files); i += o.cfg.BatchSize {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		end := min(i+o.cfg.BatchSize, len(files))
		batch := files[i:end]

		var g errgroup.Group
		for _, f := range batch {
			g.Go(func() error {
				r, err := o.Optimize(ctx, f)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					res.Failed = append(res.Failed, Failure{Source: filepath.Base(f), Error: err.Error()})
					return nil
				}
				res.Optimized = append(res.Optimized, *r)
				return nil
			})
		}
		g.Wait()

		o.logger.Info().
			Int("batch", i/o.cfg.BatchSize+1).
			Int("done", len(res.Optimized)+len(res.Failed)).
			Int("total", len(files)).
			Msg("Batch finished")
	}

	sort.Slice(res.Optimized, func(i, j int) bool { return res.Optimized[i].Source < res.Optimized[j].Source })
	o.logger.Info().Int("optimized", len(res.Optimized)).Int("failed", len(res.Failed)).Msg("Batch optimization complete")
	return res, nil
}
