package scan

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"conform/internal/convert"
)

// Candidate is a library file eligible for a conformance pass.
type Candidate struct {
	Path      string
	SizeBytes int64
	MtimeNs   int64
}

// Filter controls which files a walk yields.
type Filter struct {
	// Extensions are accepted file extensions including the dot, compared
	// case-insensitively. Empty means accept nothing.
	Extensions []string
	// MinSizeBytes excludes files below the threshold, typically samples
	// and extras not worth conforming.
	MinSizeBytes int64
}

func (f Filter) accepts(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range f.Extensions {
		if ext == strings.ToLower(allowed) {
			return true
		}
	}
	return false
}

// Walk traverses root and returns candidates in deterministic path order.
// Hidden files and directories are skipped, as are in-progress conversion
// temporaries from a previous crashed run.
func Walk(root string, filter Filter) ([]Candidate, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("scan root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan root %q is not a directory", root)
	}

	var candidates []Candidate
	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			// An unreadable subtree should not abort the pass; the root
			// itself was already checked above.
			if entry != nil && entry.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		name := entry.Name()
		if entry.IsDir() {
			if path != root && strings.HasPrefix(name, ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(name, ".") || convert.IsTempPath(name) {
			return nil
		}
		if !filter.accepts(name) {
			return nil
		}
		fileInfo, err := entry.Info()
		if err != nil {
			// File vanished between readdir and stat; not a candidate.
			return nil
		}
		if fileInfo.Size() < filter.MinSizeBytes {
			return nil
		}
		candidates = append(candidates, Candidate{
			Path:      path,
			SizeBytes: fileInfo.Size(),
			MtimeNs:   fileInfo.ModTime().UnixNano(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", root, err)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Path < candidates[j].Path
	})
	return candidates, nil
}
