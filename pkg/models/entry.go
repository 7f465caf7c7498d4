package models

import (
	"path"
	"strings"
	"time"
)

// Locator identifies one entry inside an archive so it can be re-opened
// later without re-scanning the directory. Index is the position in the
// archive's central directory; Name guards against the archive having been
// rewritten underneath us.
type Locator struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
}

// EntryRecord describes one file stored inside an archive. Immutable once
// read from the archive directory.
type EntryRecord struct {
	Path             string    `json:"path"`
	UncompressedSize int64     `json:"size"`
	CompressedSize   int64     `json:"compressed_size"`
	CRC32            uint32    `json:"crc32"`
	Modified         time.Time `json:"modified"`
	Locator          Locator   `json:"locator"`
}

// Segments splits the entry path into its path components.
func (e EntryRecord) Segments() []string {
	return SplitPath(e.Path)
}

// Name returns the final path segment of the entry.
func (e EntryRecord) Name() string {
	return path.Base(e.Path)
}

// FileRef points a merged tree node back at the archive entry it came from.
type FileRef struct {
	Source  string  `json:"source"`
	Locator Locator `json:"locator"`
	Size    int64   `json:"size"`
}

// SplitPath splits a slash-separated entry path into non-empty segments.
// Backslashes are normalized; some archivers emit them.
func SplitPath(p string) []string {
	p = strings.ReplaceAll(p, `\`, "/")
	parts := strings.Split(p, "/")
	segs := make([]string, 0, len(parts))
	for _, s := range parts {
		if s != "" && s != "." {
			segs = append(segs, s)
		}
	}
	return segs
}

// JoinPath is the inverse of SplitPath.
func JoinPath(segs []string) string {
	return strings.Join(segs, "/")
}
