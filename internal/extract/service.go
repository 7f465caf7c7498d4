// Package extract streams decompressed entry payloads out of archives to
// caller-supplied sinks, one entry at a time, without materializing whole
// archives.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"

	"github.com/DanielSnd/zaudiobrowser/internal/archive"
	"github.com/DanielSnd/zaudiobrowser/internal/metrics"
	"github.com/DanielSnd/zaudiobrowser/internal/tree"
	"github.com/DanielSnd/zaudiobrowser/pkg/models"
)

// ErrNotAFile is returned for batch paths that resolve to folders or to
// nothing at all.
var ErrNotAFile = errors.New("extract: path is not a file entry")

// Sink receives one decompressed stream per extracted entry. Implementations
// decide where the bytes go: a file on disk, a playback buffer, a test
// recorder.
type Sink interface {
	Entry(path string, size int64) (io.WriteCloser, error)
}

// Result reports the outcome for one entry of a batch. A failed entry never
// aborts the rest of the batch.
type Result struct {
	Path  string
	Bytes int64
	Err   error
}

const (
	defaultChunkSize  = 64 * 1024
	defaultShareLimit = 8 * 1024 * 1024
)

// Service extracts entries from the archives referenced by a tree. Handles
// are opened lazily per source and reused; Close releases them all.
//
// Concurrent extractions of the same entry do not decompress twice: entries
// up to shareLimit are decompressed once and fanned out to every waiter,
// larger ones serialize behind a per-entry lock.
type Service struct {
	logger     *zap.Logger
	chunkSize  int
	shareLimit int64

	mu      sync.Mutex
	handles map[string]*archive.Handle
	flights map[string]*flight
	locks   map[string]*sync.Mutex
}

type flight struct {
	done chan struct{}
	data []byte
	err  error
}

// Option adjusts service construction.
type Option func(*Service)

// WithChunkSize bounds the per-entry copy buffer.
func WithChunkSize(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.chunkSize = n
		}
	}
}

// WithShareLimit caps how large an entry may be and still have one in-flight
// decompression shared across concurrent requests.
func WithShareLimit(n int64) Option {
	return func(s *Service) {
		if n >= 0 {
			s.shareLimit = n
		}
	}
}

// NewService creates an extraction service.
func NewService(logger *zap.Logger, opts ...Option) *Service {
	s := &Service{
		logger:     logger,
		chunkSize:  defaultChunkSize,
		shareLimit: defaultShareLimit,
		handles:    make(map[string]*archive.Handle),
		flights:    make(map[string]*flight),
		locks:      make(map[string]*sync.Mutex),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Extract streams each listed file node to the sink. Entries are processed
// independently: one corrupt entry reports a failure for that entry only.
// Cancelling the context stops the batch after the in-flight entry.
func (s *Service) Extract(ctx context.Context, t *tree.Tree, paths []string, sink Sink) []Result {
	results := make([]Result, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			results = append(results, Result{Path: p, Err: err})
			continue
		}
		n, err := s.extractOne(ctx, t, p, sink)
		metrics.RecordExtraction(n, err)
		if err != nil {
			s.logger.Warn("Entry extraction failed", zap.String("path", p), zap.Error(err))
		}
		results = append(results, Result{Path: p, Bytes: n, Err: err})
	}
	return results
}

func (s *Service) extractOne(ctx context.Context, t *tree.Tree, path string, sink Sink) (int64, error) {
	node, ok := t.Resolve(path)
	if !ok || node.Kind != tree.KindFile {
		return 0, fmt.Errorf("%w: %s", ErrNotAFile, path)
	}
	ref := *node.Ref

	w, err := sink.Entry(path, ref.Size)
	if err != nil {
		return 0, fmt.Errorf("open sink for %s: %w", path, err)
	}

	n, err := s.writeEntry(ctx, ref, w)
	if err != nil {
		// Discard partial output where the sink supports it, so a corrupt
		// entry never leaves a truncated file behind.
		abortEntry(w)
		return n, err
	}
	return n, w.Close()
}

func (s *Service) writeEntry(ctx context.Context, ref models.FileRef, w io.Writer) (int64, error) {
	key := ref.Source + "\x00" + ref.Locator.Name
	if ref.Size <= s.shareLimit {
		data, err := s.sharedRead(ctx, key, ref)
		if err != nil {
			return 0, err
		}
		return s.copyChunks(ctx, w, bytes.NewReader(data))
	}

	// Large entry: stream directly, at most one decompression at a time.
	lock := s.entryLock(key)
	lock.Lock()
	defer lock.Unlock()

	h, err := s.handle(ctx, ref.Source)
	if err != nil {
		return 0, err
	}
	r, err := h.OpenEntry(ref.Locator)
	if err != nil {
		return 0, err
	}
	defer r.Close()
	return s.copyChunks(ctx, w, r)
}

func abortEntry(w io.WriteCloser) {
	if a, ok := w.(interface{ Abort() error }); ok {
		a.Abort()
		return
	}
	w.Close()
}

// sharedRead decompresses an entry once and shares the buffer with any
// concurrent request for the same entry still in flight.
func (s *Service) sharedRead(ctx context.Context, key string, ref models.FileRef) ([]byte, error) {
	s.mu.Lock()
	if f, ok := s.flights[key]; ok {
		s.mu.Unlock()
		select {
		case <-f.done:
			return f.data, f.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f := &flight{done: make(chan struct{})}
	s.flights[key] = f
	s.mu.Unlock()

	f.data, f.err = s.readAll(ctx, ref)
	close(f.done)

	s.mu.Lock()
	delete(s.flights, key)
	s.mu.Unlock()
	return f.data, f.err
}

func (s *Service) readAll(ctx context.Context, ref models.FileRef) ([]byte, error) {
	h, err := s.handle(ctx, ref.Source)
	if err != nil {
		return nil, err
	}
	r, err := h.OpenEntry(ref.Locator)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	var buf bytes.Buffer
	if ref.Size > 0 {
		buf.Grow(int(ref.Size))
	}
	if _, err := s.copyChunks(ctx, &nopWriteCloser{&buf}, r); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// copyChunks streams in bounded-size chunks so peak memory stays flat for
// large entries, checking for cancellation between chunks.
func (s *Service) copyChunks(ctx context.Context, w io.Writer, r io.Reader) (int64, error) {
	buf := make([]byte, s.chunkSize)
	var total int64
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		n, rerr := r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return total, werr
			}
			total += int64(n)
		}
		if rerr == io.EOF {
			return total, nil
		}
		if rerr != nil {
			return total, rerr
		}
	}
}

// handle returns an open archive handle for the source, opening it lazily.
func (s *Service) handle(ctx context.Context, source string) (*archive.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if h, ok := s.handles[source]; ok {
		return h, nil
	}
	h, err := archive.Open(ctx, source)
	if err != nil {
		return nil, err
	}
	s.handles[source] = h
	return h, nil
}

func (s *Service) entryLock(key string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// Close releases every archive handle held by the service.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var first error
	for src, h := range s.handles {
		if err := h.Close(); err != nil && first == nil {
			first = err
		}
		delete(s.handles, src)
	}
	return first
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
