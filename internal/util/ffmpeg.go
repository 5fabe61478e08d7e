package util

import (
	"fmt"
	"strconv"
	"strings"
)

type OptimizeParams struct {
	MaxWidth     int
	VideoBitrate string
	AudioBitrate string
	Preset       string
}

// OptimizeArgs builds the H.264/AAC transcode: width capped at MaxWidth
// keeping aspect (even height), CRF 23 with a bitrate target, faststart.
func OptimizeArgs(input, output string, p OptimizeParams) []string {
	return []string{
		"-i", input,
		"-vf", fmt.Sprintf("scale='min(%d,iw)':-2", p.MaxWidth),
		"-c:v", "libx264",
		"-crf", "23",
		"-preset", p.Preset,
		"-b:v", p.VideoBitrate,
		"-c:a", "aac",
		"-b:a", p.AudioBitrate,
		"-movflags", "+faststart",
		"-y",
		output,
	}
}

type ThumbnailParams struct {
	Timestamp string
	Size      string
	Quality   int
}

// ThumbnailArgs grabs a single frame at Timestamp scaled to Size.
func ThumbnailArgs(input, output string, p ThumbnailParams) []string {
	return []string{
		"-i", input,
		"-ss", p.Timestamp,
		"-vframes", "1",
		"-vf", "scale=" + p.Size,
		"-q:v", strconv.Itoa(p.Quality),
		"-y",
		output,
	}
}

// StderrTail keeps the last n bytes of ffmpeg's stderr for error messages.
func StderrTail(stderr []byte, n int) string {
	s := strings.TrimSpace(string(stderr))
	if len(s) > n {
		s = s[len(s)-n:]
	}
	return s
}

// ReductionPercent is how much smaller after is than before, in percent.
func ReductionPercent(before, after int64) float64 {
	if before <= 0 {
		return 0
	}
	return float64(before-after) / float64(before) * 100
}
