package media

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/coah80/pastvoices/internal/util"
)

type SizeStat struct {
	Size       int64   `json:"size"`
	SizeHuman  string  `json:"sizeHuman"`
	Percentage float64 `json:"percentage"`
}

type TypeStat struct {
	Count      int     `json:"count"`
	Size       int64   `json:"size"`
	SizeHuman  string  `json:"sizeHuman"`
	Percentage float64 `json:"percentage"`
}

type UploadStats struct {
	TotalFiles     int                 `json:"totalFiles"`
	TotalSize      int64               `json:"totalSize"`
	TotalSizeHuman string              `json:"totalSizeHuman"`
	FileTypes      map[string]TypeStat `json:"fileTypes"`
}

type DiskStats struct {
	AvailBytes uint64 `json:"availBytes"`
	TotalBytes uint64 `json:"totalBytes"`
	AvailHuman string `json:"availHuman"`
	TotalHuman string `json:"totalHuman"`
}

type StorageStats struct {
	Total struct {
		Size      int64  `json:"size"`
		SizeHuman string `json:"sizeHuman"`
	} `json:"total"`
	Directories map[string]SizeStat `json:"directories"`
	Uploads     UploadStats         `json:"uploads"`
	Disk        *DiskStats          `json:"disk,omitempty"`
}

// Stats walks the content root and dataDir. Directory sizes are recursive;
// percentages are relative to the combined total.
func (l *Library) Stats(dataDir string) (*StorageStats, error) {
	types := map[string]*TypeStat{}
	dirSizes := map[string]int64{}

	var uploadsTotal int64
	var uploadsFiles int
	err := filepath.WalkDir(l.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) && p == l.root {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		size := info.Size()
		uploadsTotal += size
		uploadsFiles++

		ext := strings.ToLower(filepath.Ext(d.Name()))
		if ext == "" {
			ext = "no-extension"
		}
		ts, ok := types[ext]
		if !ok {
			ts = &TypeStat{}
			types[ext] = ts
		}
		ts.Count++
		ts.Size += size

		if rel, err := filepath.Rel(l.root, p); err == nil {
			if parts := strings.SplitN(filepath.ToSlash(rel), "/", 2); len(parts) == 2 {
				dirSizes["uploads/"+parts[0]] += size
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	dataSize := dirSize(dataDir)
	total := uploadsTotal + dataSize

	out := &StorageStats{Directories: map[string]SizeStat{}}
	out.Total.Size = total
	out.Total.SizeHuman = util.FormatBytes(total)

	out.Directories["uploads"] = sizeStat(uploadsTotal, total)
	out.Directories["data"] = sizeStat(dataSize, total)
	for name, size := range dirSizes {
		out.Directories[name] = sizeStat(size, total)
	}

	out.Uploads = UploadStats{
		TotalFiles:     uploadsFiles,
		TotalSize:      uploadsTotal,
		TotalSizeHuman: util.FormatBytes(uploadsTotal),
		FileTypes:      make(map[string]TypeStat, len(types)),
	}
	for ext, ts := range types {
		ts.SizeHuman = util.FormatBytes(ts.Size)
		ts.Percentage = percent(ts.Size, uploadsTotal)
		out.Uploads.FileTypes[ext] = *ts
	}

	if ds, err := util.GetDiskSpace(l.root); err == nil {
		out.Disk = &DiskStats{
			AvailBytes: ds.AvailBytes,
			TotalBytes: ds.TotalBytes,
			AvailHuman: util.FormatBytes(int64(ds.AvailBytes)),
			TotalHuman: util.FormatBytes(int64(ds.TotalBytes)),
		}
	}
	return out, nil
}

// Extensions lists the file types seen, largest first.
func (s *StorageStats) Extensions() []string {
	exts := make([]string, 0, len(s.Uploads.FileTypes))
	for ext := range s.Uploads.FileTypes {
		exts = append(exts, ext)
	}
	sort.Slice(exts, func(i, j int) bool {
		a, b := s.Uploads.FileTypes[exts[i]], s.Uploads.FileTypes[exts[j]]
		if a.Size == b.Size {
			return exts[i] < exts[j]
		}
		return a.Size > b.Size
	})
	return exts
}

func dirSize(dir string) int64 {
	var total int64
	filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			total += info.Size()
		}
		return nil
	})
	return total
}

func sizeStat(size, total int64) SizeStat {
	return SizeStat{Size: size, SizeHuman: util.FormatBytes(size), Percentage: percent(size, total)}
}

func percent(part, whole int64) float64 {
	if whole <= 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}
