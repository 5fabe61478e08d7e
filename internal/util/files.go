package util

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

var unsafeFilenameRe = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f#%&{}$!'@+=` + "`" + `]`)
var multiSpaceRe = regexp.MustCompile(`\s+`)

// SanitizeFilename strips path separators and characters that need escaping
// in a url path. Whitespace runs collapse to a single underscore.
func SanitizeFilename(filename string) string {
	s := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	s = strings.ToValidUTF8(s, "_")
	s = unsafeFilenameRe.ReplaceAllString(s, "_")
	s = strings.TrimSpace(s)
	s = multiSpaceRe.ReplaceAllString(s, "_")
	if len(s) > 200 {
		ext := filepath.Ext(s)
		if len(ext) > 16 {
			ext = ""
		}
		s = truncateUTF8(s, 200-len(ext)) + ext
	}
	if s == "" || s == "." || s == ".." {
		s = "file"
	}
	return s
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// UniqueFilename builds "<unixMillis>-<random>-<sanitized original>".
func UniqueFilename(original string, now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
	return fmt.Sprintf("%d-%s-%s", now.UnixMilli(), suffix, SanitizeFilename(original))
}

// FileSize returns the size of a regular file and whether it exists.
func FileSize(path string) (int64, bool) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return 0, false
	}
	return info.Size(), true
}

// FormatBytes renders n using 1024-based units.
func FormatBytes(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	units := []string{"B", "KB", "MB", "GB", "TB"}
	v := float64(n)
	i := 0
	for v >= 1024 && i < len(units)-1 {
		v /= 1024
		i++
	}
	if i == 0 {
		return fmt.Sprintf("%d B", n)
	}
	return strings.TrimSuffix(strings.TrimSuffix(fmt.Sprintf("%.2f", v), "0"), ".0") + " " + units[i]
}
