package config

const (
	UploadsURLPrefix = "/uploads"

	OptimizedDir  = "optimized"
	VoicesDir     = "voices"
	AudioDir      = "audio"
	ThumbnailsDir = "thumbnails"
	VideosDir     = "videos"
	ImagesDir     = "images"
	TempDir       = "temp"
)

var ContentSubdirs = []string{OptimizedDir, VoicesDir, AudioDir, ThumbnailsDir, VideosDir, ImagesDir, TempDir}

var ContainerMIMEs = map[string]string{
	"mp4":  "video/mp4",
	"webm": "video/webm",
	"mkv":  "video/x-matroska",
	"mov":  "video/quicktime",
}

var AudioMIMEs = map[string]string{
	"mp3":  "audio/mpeg",
	"m4a":  "audio/mp4",
	"opus": "audio/opus",
	"wav":  "audio/wav",
	"ogg":  "audio/ogg",
}

// Extension tables used by reorganize. Order of CategoryOrder decides which
// table wins; anything unmatched lands in TempDir.
var CategoryExtensions = map[string][]string{
	VideosDir: {".mp4", ".webm", ".mov", ".avi"},
	AudioDir:  {".mp3", ".wav", ".ogg", ".m4a"},
	ImagesDir: {".jpg", ".jpeg", ".png", ".gif", ".svg", ".webp"},
}

var CategoryOrder = []string{VideosDir, AudioDir, ImagesDir}

// Extensions cleanup treats as managed media.
var MediaExtensions = []string{".mp4", ".webm", ".mov", ".avi", ".mp3", ".wav", ".ogg", ".m4a"}

// Subdirectories cleanup scans in addition to the content root.
var CleanupScanDirs = []string{OptimizedDir, VideosDir}

func Contains(slice []string, val string) bool {
	for _, s := range slice {
		if s == val {
			return true
		}
	}
	return false
}
