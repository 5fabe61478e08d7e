package util

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOptimizeArgs(t *testing.T) {
	args := OptimizeArgs("in.mp4", "out.mp4", OptimizeParams{
		MaxWidth:     720,
		VideoBitrate: "1M",
		AudioBitrate: "128k",
		Preset:       "medium",
	})

	want := "-i in.mp4 -vf scale='min(720,iw)':-2 -c:v libx264 -crf 23 -preset medium -b:v 1M -c:a aac -b:a 128k -movflags +faststart -y out.mp4"
	assert.Equal(t, want, strings.Join(args, " "))
}

func TestThumbnailArgs(t *testing.T) {
	args := ThumbnailArgs("in.mp4", "thumb.jpg", ThumbnailParams{Timestamp: "00:00:01", Size: "320x180", Quality: 2})
	assert.Equal(t, "-i in.mp4 -ss 00:00:01 -vframes 1 -vf scale=320x180 -q:v 2 -y thumb.jpg", strings.Join(args, " "))
}

func TestStderrTail(t *testing.T) {
	assert.Equal(t, "abc", StderrTail([]byte("  abc\n"), 10))
	assert.Equal(t, "789", StderrTail([]byte("0123456789"), 3))
}

func TestReductionPercent(t *testing.T) {
	assert.InDelta(t, 75.0, ReductionPercent(400, 100), 0.001)
	assert.Equal(t, 0.0, ReductionPercent(0, 100))
}
