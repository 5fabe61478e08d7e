package media

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/coah80/pastvoices/internal/config"
	"github.com/coah80/pastvoices/internal/util"
)

var (
	ErrNoFile          = errors.New("no file uploaded")
	ErrUnsupportedType = errors.New("unsupported media type")
)

// Kind selects the multipart field, accepted MIME family and destination
// directory of an upload.
type Kind string

const (
	KindVideo Kind = "video"
	KindVoice Kind = "voice"
)

func (k Kind) Field() string {
	return string(k)
}

func (k Kind) mimePrefix() string {
	if k == KindVoice {
		return "audio/"
	}
	return "video/"
}

func (k Kind) subdir() string {
	if k == KindVoice {
		return config.VoicesDir
	}
	return ""
}

// CheckContentType rejects a part whose MIME type is outside the kind's
// family. It runs before anything is written.
func CheckContentType(k Kind, contentType string) error {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	if !strings.HasPrefix(ct, k.mimePrefix()) {
		return fmt.Errorf("%w: only %s* files are allowed for %s uploads", ErrUnsupportedType, k.mimePrefix(), k)
	}
	return nil
}

// Library maps the content root on disk to the /uploads url space.
type Library struct {
	root string
	now  func() time.Time
}

func NewLibrary(root string) *Library {
	return &Library{root: root, now: time.Now}
}

func (l *Library) Root() string {
	return l.root
}

// Path joins rel onto the content root.
func (l *Library) Path(rel ...string) string {
	return filepath.Join(append([]string{l.root}, rel...)...)
}

// URL returns the public url for a path under the content root.
func (l *Library) URL(absPath string) (string, error) {
	rel, err := filepath.Rel(l.root, absPath)
	if err != nil {
		return "", err
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%s is outside the content root", absPath)
	}
	return config.UploadsURLPrefix + "/" + filepath.ToSlash(rel), nil
}

// Resolve maps an /uploads url back to its file. Urls that are not under the
// prefix or that climb out of the root are rejected.
func (l *Library) Resolve(url string) (string, bool) {
	if !strings.HasPrefix(url, config.UploadsURLPrefix+"/") {
		return "", false
	}
	rel := path.Clean("/" + strings.TrimPrefix(url, config.UploadsURLPrefix+"/"))
	if rel == "/" {
		return "", false
	}
	return filepath.Join(l.root, filepath.FromSlash(strings.TrimPrefix(rel, "/"))), true
}

// Probe reports the size of the file behind url and whether it exists.
func (l *Library) Probe(url string) (int64, bool) {
	p, ok := l.Resolve(url)
	if !ok {
		return 0, false
	}
	return util.FileSize(p)
}

// StoredFile describes a saved upload.
type StoredFile struct {
	Name     string
	Original string
	Path     string
	URL      string
	Size     int64
}

// Save streams src to a fresh collision-resistant name for the given kind.
// A failed copy leaves the partial file behind for cleanup.
func (l *Library) Save(k Kind, original string, src io.Reader) (*StoredFile, error) {
	dir := l.Path(k.subdir())
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating %s: %w", dir, err)
	}

	name := util.UniqueFilename(original, l.now())
	dst := filepath.Join(dir, name)
	f, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("creating upload file: %w", err)
	}

	n, err := io.Copy(f, src)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("writing upload file: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("closing upload file: %w", err)
	}

	url, err := l.URL(dst)
	if err != nil {
		return nil, err
	}
	return &StoredFile{
		Name:     name,
		Original: original,
		Path:     dst,
		URL:      url,
		Size:     n,
	}, nil
}

// EnsureDirs creates the category subdirectories under the root.
func (l *Library) EnsureDirs() error {
	for _, sub := range config.ContentSubdirs {
		if err := os.MkdirAll(l.Path(sub), 0755); err != nil {
			return fmt.Errorf("creating %s: %w", sub, err)
		}
	}
	return nil
}

// Basename is the last segment of a url or path.
func Basename(ref string) string {
	ref = strings.TrimRight(filepath.ToSlash(ref), "/")
	if i := strings.LastIndex(ref, "/"); i >= 0 {
		return ref[i+1:]
	}
	return ref
}
