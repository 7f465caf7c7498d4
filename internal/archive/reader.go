package archive

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"

	"github.com/DanielSnd/zaudiobrowser/pkg/models"
)

// Handle is an open archive container. It holds one file descriptor; callers
// must release it with Close on all exit paths.
type Handle struct {
	path    string
	rc      *zip.ReadCloser
	entries []models.EntryRecord
}

// Open opens an archive and parses its entry directory once. The context
// bounds the open; local filesystem I/O that hangs (dead network mount,
// spun-down disk) surfaces as a context error instead of blocking forever.
func Open(ctx context.Context, path string) (*Handle, error) {
	type opened struct {
		rc  *zip.ReadCloser
		err error
	}
	ch := make(chan opened, 1)
	go func() {
		rc, err := zip.OpenReader(path)
		ch <- opened{rc: rc, err: err}
	}()

	select {
	case <-ctx.Done():
		// Reap the descriptor if the open eventually completes.
		go func() {
			if o := <-ch; o.rc != nil {
				o.rc.Close()
			}
		}()
		return nil, fmt.Errorf("open %s: %w", path, ctx.Err())
	case o := <-ch:
		if o.err != nil {
			if errors.Is(o.err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s: no such file", ErrUnreadableArchive, path)
			}
			return nil, fmt.Errorf("%w: %s: %v", ErrUnreadableArchive, path, o.err)
		}
		h := &Handle{path: path, rc: o.rc}
		h.entries = parseEntries(o.rc.File)
		return h, nil
	}
}

// parseEntries derives entry records from the parsed central directory.
// Pure function of the directory; no cursor state survives between calls.
func parseEntries(files []*zip.File) []models.EntryRecord {
	entries := make([]models.EntryRecord, 0, len(files))
	for i, f := range files {
		if f.FileInfo().IsDir() || isJunkEntry(f.Name) || isUnsafeName(f.Name) {
			continue
		}
		entries = append(entries, models.EntryRecord{
			Path:             f.Name,
			UncompressedSize: int64(f.UncompressedSize64),
			CompressedSize:   int64(f.CompressedSize64),
			CRC32:            f.CRC32,
			Modified:         f.Modified,
			Locator:          models.Locator{Index: i, Name: f.Name},
		})
	}
	return entries
}

// isJunkEntry filters macOS resource forks and similar packaging noise.
func isJunkEntry(name string) bool {
	if strings.HasPrefix(name, "__MACOSX") {
		return true
	}
	base := name
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		base = name[i+1:]
	}
	return strings.HasPrefix(base, "._") || base == ".DS_Store"
}

// isUnsafeName rejects entry names that would resolve outside an extraction
// root: absolute paths and names with ".." segments.
func isUnsafeName(name string) bool {
	if strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) {
		return true
	}
	for _, seg := range models.SplitPath(name) {
		if seg == ".." {
			return true
		}
	}
	return false
}

// Path returns the archive's filesystem location.
func (h *Handle) Path() string { return h.path }

// Entries returns the entry records in the archive's own directory order.
// The directory is parsed once per open; each call returns a fresh slice.
func (h *Handle) Entries() []models.EntryRecord {
	out := make([]models.EntryRecord, len(h.entries))
	copy(out, h.entries)
	return out
}

// OpenEntry returns a reader over one entry's decompressed bytes. The
// checksum is verified as the stream is consumed; a mismatch surfaces as
// ErrCorruptEntry from Read.
func (h *Handle) OpenEntry(loc models.Locator) (io.ReadCloser, error) {
	if loc.Index < 0 || loc.Index >= len(h.rc.File) {
		return nil, fmt.Errorf("%w: %s[%d]", ErrEntryNotFound, loc.Name, loc.Index)
	}
	f := h.rc.File[loc.Index]
	if f.Name != loc.Name {
		return nil, fmt.Errorf("%w: %s moved (directory now has %s at %d)",
			ErrEntryNotFound, loc.Name, f.Name, loc.Index)
	}
	r, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptEntry, loc.Name, err)
	}
	return &entryReader{name: loc.Name, rc: r}, nil
}

// Close releases the archive's file descriptor.
func (h *Handle) Close() error {
	if h.rc == nil {
		return nil
	}
	err := h.rc.Close()
	h.rc = nil
	return err
}

// entryReader translates the stdlib's checksum and format errors into the
// engine's entry-level taxonomy.
type entryReader struct {
	name string
	rc   io.ReadCloser
}

func (r *entryReader) Read(p []byte) (int, error) {
	n, err := r.rc.Read(p)
	if err != nil && err != io.EOF {
		if errors.Is(err, zip.ErrChecksum) || errors.Is(err, zip.ErrFormat) || errors.Is(err, zip.ErrAlgorithm) {
			return n, fmt.Errorf("%w: %s: %v", ErrCorruptEntry, r.name, err)
		}
	}
	return n, err
}

func (r *entryReader) Close() error { return r.rc.Close() }
