// Package cache persists serialized tree snapshots keyed by archive
// fingerprint, so re-opening an unmodified archive skips re-scanning.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/DanielSnd/zaudiobrowser/internal/metrics"
	"github.com/DanielSnd/zaudiobrowser/internal/tree"
	"github.com/DanielSnd/zaudiobrowser/pkg/models"
)

// SchemaVersion tags every record. A mismatch on read is a miss, never an
// in-place upgrade.
const SchemaVersion = 1

var (
	// ErrCacheMiss is returned by Lookup when no usable record exists for
	// a fingerprint. Corrupt and stale records surface as misses too.
	ErrCacheMiss = errors.New("cache: miss")

	// ErrCachePersist is returned by Store when a record could not be
	// written. Non-fatal: the in-memory tree stays authoritative.
	ErrCachePersist = errors.New("cache: persist failed")
)

// record is the on-disk shape, one file per fingerprint. Filter captures the
// entry filter the snapshot was built under; a record written with a
// different filter describes a different tree and must not be served.
type record struct {
	SchemaVersion int                `json:"schema_version"`
	Fingerprint   models.Fingerprint `json:"fingerprint"`
	Filter        string             `json:"filter,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	Tree          *tree.Tree         `json:"tree"`
}

// Store is an explicit cache instance bound to one directory. Sessions and
// tests each get their own; there is no ambient global store.
type Store struct {
	dir    string
	logger *zap.Logger

	mu    sync.Mutex
	locks map[models.Fingerprint]*sync.Mutex
}

// NewStore opens (and creates if needed) a cache directory.
func NewStore(dir string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Store{
		dir:    dir,
		logger: logger,
		locks:  make(map[models.Fingerprint]*sync.Mutex),
	}, nil
}

// Dir returns the store's directory.
func (s *Store) Dir() string { return s.dir }

// keyLock serializes writers per fingerprint. Operations on different keys
// never block each other.
func (s *Store) keyLock(fp models.Fingerprint) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[fp]
	if !ok {
		l = &sync.Mutex{}
		s.locks[fp] = l
	}
	return l
}

func (s *Store) recordPath(fp models.Fingerprint) string {
	return filepath.Join(s.dir, fp.String()+".json")
}

// Lookup returns the cached tree for a fingerprint and entry filter, or
// ErrCacheMiss. A corrupt, schema-mismatched, or differently-filtered
// record is removed and reported as a miss rather than a fatal error.
// The per-key lock keeps the read-validate-drop sequence from racing a
// concurrent Store of a fresh record; lookups on other keys never block.
func (s *Store) Lookup(fp models.Fingerprint, filter string) (*tree.Tree, error) {
	lock := s.keyLock(fp)
	lock.Lock()
	defer lock.Unlock()

	data, err := os.ReadFile(s.recordPath(fp))
	if err != nil {
		metrics.RecordCacheLookup(false)
		return nil, ErrCacheMiss
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		s.logger.Warn("Discarding corrupt cache record",
			zap.String("fingerprint", fp.String()), zap.Error(err))
		s.drop(fp)
		metrics.RecordCacheLookup(false)
		return nil, ErrCacheMiss
	}
	if rec.SchemaVersion != SchemaVersion || rec.Fingerprint != fp || rec.Filter != filter ||
		rec.Tree == nil || rec.Tree.Root == nil {
		s.logger.Debug("Discarding stale cache record",
			zap.String("fingerprint", fp.String()),
			zap.Int("schema_version", rec.SchemaVersion),
			zap.String("filter", rec.Filter))
		s.drop(fp)
		metrics.RecordCacheLookup(false)
		return nil, ErrCacheMiss
	}

	metrics.RecordCacheLookup(true)
	return rec.Tree, nil
}

// Store persists a tree snapshot for a fingerprint and entry filter. The
// record is written to a temp file and renamed into place, so a concurrent
// reader never observes a partial record. Records are replaced wholesale.
func (s *Store) Store(fp models.Fingerprint, filter string, t *tree.Tree) error {
	lock := s.keyLock(fp)
	lock.Lock()
	defer lock.Unlock()

	data, err := json.Marshal(record{
		SchemaVersion: SchemaVersion,
		Fingerprint:   fp,
		Filter:        filter,
		CreatedAt:     time.Now().UTC(),
		Tree:          t,
	})
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrCachePersist, fp, err)
	}

	tmp, err := os.CreateTemp(s.dir, fp.String()+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCachePersist, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %v", ErrCachePersist, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %v", ErrCachePersist, err)
	}
	if err := os.Rename(tmp.Name(), s.recordPath(fp)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("%w: %v", ErrCachePersist, err)
	}
	return nil
}

// Invalidate removes the record for a fingerprint, if present.
func (s *Store) Invalidate(fp models.Fingerprint) {
	lock := s.keyLock(fp)
	lock.Lock()
	defer lock.Unlock()
	s.drop(fp)
}

func (s *Store) drop(fp models.Fingerprint) {
	if err := os.Remove(s.recordPath(fp)); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("Failed to remove cache record",
			zap.String("fingerprint", fp.String()), zap.Error(err))
	}
}

// List returns the fingerprints with a record on disk.
func (s *Store) List() ([]models.Fingerprint, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var fps []models.Fingerprint
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		fps = append(fps, models.Fingerprint(strings.TrimSuffix(name, ".json")))
	}
	return fps, nil
}

// Size returns the total on-disk size of all records in bytes.
func (s *Store) Size() (int64, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		if info, err := e.Info(); err == nil {
			total += info.Size()
		}
	}
	return total, nil
}

// Clear removes every record in the store.
func (s *Store) Clear() error {
	fps, err := s.List()
	if err != nil {
		return err
	}
	for _, fp := range fps {
		s.Invalidate(fp)
	}
	return nil
}
