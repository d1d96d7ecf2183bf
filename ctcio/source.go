package ctcio

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/LdDl/ctc-tracker-go/celltrack"
	"github.com/pkg/errors"
)

// Prefixes of CTC segmentation files, in lookup order
var maskPrefixes = []string{"mask", "seg"}

// DirSource is a celltrack.FrameSource over a directory of per-frame TIFF
// masks. Frames are read lazily in the order of their numeric suffix.
type DirSource struct {
	dir     string
	paths   []string
	indices []int
}

// OpenDir lists mask*.tif or seg*.tif files of the directory
func OpenDir(dir string) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "list %s", dir)
	}
	for _, prefix := range maskPrefixes {
		type frameFile struct {
			name  string
			index int
		}
		files := make([]frameFile, 0)
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			index, ok := parseFrameName(entry.Name(), prefix)
			if !ok {
				continue
			}
			files = append(files, frameFile{name: entry.Name(), index: index})
		}
		if len(files) == 0 {
			continue
		}
		sort.Slice(files, func(i, j int) bool {
			if files[i].index != files[j].index {
				return files[i].index < files[j].index
			}
			return files[i].name < files[j].name
		})
		src := &DirSource{
			dir:     dir,
			paths:   make([]string, len(files)),
			indices: make([]int, len(files)),
		}
		for i, f := range files {
			src.paths[i] = filepath.Join(dir, f.name)
			src.indices[i] = f.index
		}
		return src, nil
	}
	return nil, errors.Wrapf(celltrack.ErrNoFrames, "no mask*.tif or seg*.tif files in %s", dir)
}

// parseFrameName extracts frame number of names like mask012.tif
func parseFrameName(name, prefix string) (int, bool) {
	lower := strings.ToLower(name)
	ext := filepath.Ext(lower)
	if ext != ".tif" && ext != ".tiff" {
		return 0, false
	}
	if !strings.HasPrefix(lower, prefix) {
		return 0, false
	}
	digits := strings.TrimSuffix(strings.TrimPrefix(lower, prefix), ext)
	if digits == "" {
		return 0, false
	}
	index, err := strconv.Atoi(digits)
	if err != nil || index < 0 {
		return 0, false
	}
	return index, true
}

// Len returns number of frames
func (src *DirSource) Len() int {
	return len(src.paths)
}

// Frame reads i-th mask
func (src *DirSource) Frame(ctx context.Context, i int) (*celltrack.LabelImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if i < 0 || i >= len(src.paths) {
		return nil, errors.Errorf("frame %d out of range [0, %d)", i, len(src.paths))
	}
	return ReadMask(src.paths[i])
}

// Paths returns mask file paths in frame order
func (src *DirSource) Paths() []string {
	return src.paths
}

// FirstIndex returns frame number encoded in the name of the first file
func (src *DirSource) FirstIndex() int {
	if len(src.indices) == 0 {
		return 0
	}
	return src.indices[0]
}

// Contiguous reports whether file numbers have no gaps
func (src *DirSource) Contiguous() bool {
	for i := 1; i < len(src.indices); i++ {
		if src.indices[i] != src.indices[i-1]+1 {
			return false
		}
	}
	return true
}
