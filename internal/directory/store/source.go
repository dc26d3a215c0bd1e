package store

import (
	"fmt"
	"os"
	"path/filepath"

	apperrors "github.com/Adithya-Monish-Kumar-K/Business-Directory-Service/pkg/errors"
)

// ResolveSource returns the first candidate that is an existing regular file.
// Relative candidates are taken relative to baseDir. When none qualifies the
// error is a SourceNotFound listing every path tried.
func ResolveSource(baseDir string, candidates []string) (string, os.FileInfo, error) {
	tried := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c == "" {
			continue
		}
		path := c
		if !filepath.IsAbs(path) {
			path = filepath.Join(baseDir, path)
		}
		path = filepath.Clean(path)
		tried = append(tried, path)

		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		return path, info, nil
	}
	return "", nil, apperrors.SourceNotFound(tried)
}

func cacheKey(path string, info os.FileInfo, generation uint64) string {
	return fmt.Sprintf("%s:%d#%d", path, info.ModTime().UnixNano(), generation)
}
