// Package filesystem discovers archive files under a folder tree.
package filesystem

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/DanielSnd/zaudiobrowser/internal/config"
)

// Walker walks a folder tree and collects archive files to index.
type Walker struct {
	config  *config.Config
	logger  *zap.Logger
	exclude map[string]bool
}

// NewWalker creates a new archive discovery walker.
func NewWalker(cfg *config.Config, logger *zap.Logger) *Walker {
	exclude := make(map[string]bool)
	for _, dir := range cfg.Exclude {
		exclude[dir] = true
	}
	return &Walker{config: cfg, logger: logger, exclude: exclude}
}

// FindArchives resolves an input path to the archives it covers: a single
// archive file yields itself, a folder is walked recursively. Results are
// returned with stable lexical ordering so merge order is deterministic.
func (w *Walker) FindArchives(root string) ([]string, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}

	if !info.IsDir() {
		if !w.config.IsArchive(info.Name()) {
			return nil, fmt.Errorf("%s is not a supported archive", root)
		}
		return []string{root}, nil
	}

	maxSize := ParseSize(w.config.MaxArchiveSize)
	var found []string
	err = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			w.logger.Warn("Error accessing path", zap.String("path", path), zap.Error(err))
			return nil // Continue walking
		}
		if info.IsDir() {
			if w.shouldExclude(info.Name()) {
				w.logger.Debug("Skipping excluded directory", zap.String("path", path))
				return filepath.SkipDir
			}
			return nil
		}
		if !w.config.IsArchive(info.Name()) {
			return nil
		}
		if maxSize > 0 && info.Size() > maxSize {
			w.logger.Debug("Archive too large, skipping",
				zap.String("path", path), zap.Int64("size", info.Size()))
			return nil
		}
		found = append(found, path)
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Strings(found)
	return found, nil
}

// MountFor derives the merge mount point for an archive discovered under
// root: its path relative to root, minus the archive extension. A direct
// archive open mounts at the tree root.
func MountFor(root, archivePath string) string {
	if root == archivePath {
		return ""
	}
	rel, err := filepath.Rel(root, archivePath)
	if err != nil {
		rel = filepath.Base(archivePath)
	}
	rel = filepath.ToSlash(rel)
	ext := filepath.Ext(rel)
	return strings.TrimSuffix(rel, ext)
}

// shouldExclude checks if a directory should be excluded
func (w *Walker) shouldExclude(name string) bool {
	return w.exclude[name] || isHidden(name)
}

// isHidden checks if a file is hidden
func isHidden(name string) bool {
	return len(name) > 1 && name[0] == '.'
}

// GetExtension returns the file extension without dot, lowercased.
func GetExtension(path string) string {
	ext := filepath.Ext(path)
	if len(ext) > 0 && ext[0] == '.' {
		ext = ext[1:]
	}
	return strings.ToLower(ext)
}

// ParseSize parses size string (e.g., "650K", "1M") to bytes
func ParseSize(sizeStr string) int64 {
	if len(sizeStr) == 0 {
		return 0
	}

	last := sizeStr[len(sizeStr)-1]
	var multiplier int64 = 1

	switch last {
	case 'K', 'k':
		multiplier = 1024
		sizeStr = sizeStr[:len(sizeStr)-1]
	case 'M', 'm':
		multiplier = 1024 * 1024
		sizeStr = sizeStr[:len(sizeStr)-1]
	case 'G', 'g':
		multiplier = 1024 * 1024 * 1024
		sizeStr = sizeStr[:len(sizeStr)-1]
	}

	var size int64
	fmt.Sscanf(sizeStr, "%d", &size)

	return size * multiplier
}
