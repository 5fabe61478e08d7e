package util

import (
	"os/exec"

	"github.com/rs/zerolog"
)

// CheckFFmpeg resolves the ffmpeg binary. Optimization and thumbnails are
// disabled by the caller when it is missing; uploads keep working.
func CheckFFmpeg(path string, logger zerolog.Logger) bool {
	resolved, err := exec.LookPath(path)
	if err != nil {
		logger.Warn().Str("ffmpeg", path).Msg("ffmpeg not found, video optimization and thumbnails disabled")
		return false
	}
	logger.Info().Str("ffmpeg", resolved).Msg("ffmpeg found")
	return true
}
