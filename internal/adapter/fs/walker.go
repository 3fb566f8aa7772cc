package fs

import (
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
)

// Walker resolves doublestar include/exclude patterns against a root directory.
type Walker struct {
	includes []string
	excludes []string
}

func NewWalker(includes, excludes []string) *Walker {
	if len(includes) == 0 {
		includes = []string{"**/*.json"}
	}
	return &Walker{
		includes: includes,
		excludes: excludes,
	}
}

type FileInfo struct {
	Path    string
	ModTime int64
	Size    int64
}

// Walk returns the regular files under root matching any include pattern and
// no exclude pattern, sorted by path with duplicates removed.
func (w *Walker) Walk(root string) ([]FileInfo, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var files []FileInfo

	for _, pattern := range w.includes {
		base := root
		pattern = filepath.ToSlash(pattern)
		if filepath.IsAbs(pattern) {
			base, pattern = doublestar.SplitPattern(pattern)
		}
		if !doublestar.ValidatePattern(pattern) {
			return nil, fmt.Errorf("invalid pattern: %s", pattern)
		}

		fsys := os.DirFS(base)
		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return nil, fmt.Errorf("failed to glob %s: %w", pattern, err)
		}

		for _, rel := range matches {
			path := filepath.Join(base, filepath.FromSlash(rel))
			if seen[path] || w.shouldExclude(rel) {
				continue
			}
			info, err := iofs.Stat(fsys, rel)
			if err != nil {
				return nil, err
			}
			if info.IsDir() {
				continue
			}
			seen[path] = true
			files = append(files, FileInfo{
				Path:    path,
				ModTime: info.ModTime().Unix(),
				Size:    info.Size(),
			})
		}
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

func (w *Walker) shouldExclude(path string) bool {
	for _, pattern := range w.excludes {
		matched, err := doublestar.Match(pattern, path)
		if err == nil && matched {
			return true
		}
	}
	return false
}

func ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}
