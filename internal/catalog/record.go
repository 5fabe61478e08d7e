package catalog

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	json "github.com/goccy/go-json"
)

// VideoURLRecord is the flat {"<id>": "<url>"} document that lets video
// paths survive a restart of the in-memory catalog. Every mutation rewrites
// the whole file.
type VideoURLRecord struct {
	mu   sync.Mutex
	path string
}

func NewVideoURLRecord(path string) *VideoURLRecord {
	return &VideoURLRecord{path: path}
}

func (r *VideoURLRecord) Path() string {
	return r.path
}

// Load returns the current mapping. A missing file is an empty mapping.
func (r *VideoURLRecord) Load() (map[int64]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.read()
}

// Set rewrites the record with id mapped to url; an empty url removes it.
func (r *VideoURLRecord) Set(id int64, url string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, err := r.read()
	if err != nil {
		return err
	}
	if url == "" {
		delete(current, id)
	} else {
		current[id] = url
	}
	return r.write(current)
}

func (r *VideoURLRecord) read() (map[int64]string, error) {
	out := make(map[int64]string)
	data, err := os.ReadFile(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("reading video url record: %w", err)
	}
	if len(data) == 0 {
		return out, nil
	}

	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing video url record: %w", err)
	}
	for k, v := range raw {
		id, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			continue
		}
		out[id] = v
	}
	return out, nil
}

func (r *VideoURLRecord) write(m map[int64]string) error {
	raw := make(map[string]string, len(m))
	for id, url := range m {
		raw[strconv.FormatInt(id, 10)] = url
	}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(r.path), 0755); err != nil {
		return fmt.Errorf("creating record dir: %w", err)
	}

	tmpFile := r.path + ".tmp"
	file, err := os.Create(tmpFile)
	if err != nil {
		return err
	}
	if _, err = file.Write(data); err != nil {
		file.Close()
		os.Remove(tmpFile)
		return err
	}
	if err = file.Sync(); err != nil {
		file.Close()
		os.Remove(tmpFile)
		return err
	}
	if err = file.Close(); err != nil {
		os.Remove(tmpFile)
		return err
	}
	return os.Rename(tmpFile, r.path)
}
