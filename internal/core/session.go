// Package core orchestrates the archive index engine: discovery,
// fingerprint-gated scanning, tree merging, search, selection, and
// extraction for one browsing session.
package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DanielSnd/zaudiobrowser/internal/archive"
	"github.com/DanielSnd/zaudiobrowser/internal/cache"
	"github.com/DanielSnd/zaudiobrowser/internal/config"
	"github.com/DanielSnd/zaudiobrowser/internal/extract"
	"github.com/DanielSnd/zaudiobrowser/internal/filesystem"
	"github.com/DanielSnd/zaudiobrowser/internal/metrics"
	"github.com/DanielSnd/zaudiobrowser/internal/search"
	"github.com/DanielSnd/zaudiobrowser/internal/selection"
	"github.com/DanielSnd/zaudiobrowser/internal/tree"
	"github.com/DanielSnd/zaudiobrowser/pkg/models"
)

// ProgressCallback is called to report indexing progress
type ProgressCallback func(phase string, current, total int, message string)

// Engine builds browsing sessions. The cache store is an explicit
// dependency so isolated sessions and tests never share state.
type Engine struct {
	config           *config.Config
	logger           *zap.Logger
	store            *cache.Store
	progressCallback ProgressCallback
}

// NewEngine creates a new engine instance
func NewEngine(cfg *config.Config, logger *zap.Logger, store *cache.Store) *Engine {
	return &Engine{config: cfg, logger: logger, store: store}
}

// SetProgressCallback sets the progress callback function
func (e *Engine) SetProgressCallback(cb ProgressCallback) {
	e.progressCallback = cb
}

func (e *Engine) reportProgress(phase string, current, total int, message string) {
	if e.progressCallback != nil {
		e.progressCallback(phase, current, total, message)
	}
}

// Session is one browsing session over a set of archives. It exclusively
// owns its tree; the search index and selection tracker are derived from
// that tree and replaced together with it.
type Session struct {
	ID    uuid.UUID
	input string
	units []scanUnit

	engine    *Engine
	tree      *tree.Tree
	index     *search.Index
	selection *selection.Tracker
	extractor *extract.Service
	sources   []models.SourceStatus
}

// scanUnit is one archive's indexing job.
type scanUnit struct {
	idx   int
	path  string
	mount string
}

// scanOutcome carries one unit's result back from the worker pool.
type scanOutcome struct {
	idx     int
	status  models.SourceStatus
	subtree *tree.Tree
}

// Open indexes a single archive or a folder of archives and returns a
// session over the merged virtual tree. Individual source failures are
// reported per source; Open fails only when no source could be indexed.
func (e *Engine) Open(ctx context.Context, path string) (*Session, error) {
	walker := filesystem.NewWalker(e.config, e.logger)
	archives, err := walker.FindArchives(path)
	if err != nil {
		return nil, err
	}
	if len(archives) == 0 {
		return nil, fmt.Errorf("no archives found under %s", path)
	}

	units := make([]scanUnit, len(archives))
	for i, a := range archives {
		units[i] = scanUnit{idx: i, path: a, mount: filesystem.MountFor(path, a)}
	}
	return e.open(ctx, path, units)
}

// OpenAll indexes an explicit list of archives merged at the tree root, in
// the given order. Later archives shadow earlier ones on path collisions.
func (e *Engine) OpenAll(ctx context.Context, paths []string) (*Session, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("no archives given")
	}
	units := make([]scanUnit, len(paths))
	for i, p := range paths {
		units[i] = scanUnit{idx: i, path: p}
	}
	return e.open(ctx, fmt.Sprintf("%d archives", len(paths)), units)
}

func (e *Engine) open(ctx context.Context, input string, units []scanUnit) (*Session, error) {
	start := time.Now()
	e.logger.Info("Opening session",
		zap.String("input", input),
		zap.Int("archives", len(units)))

	outcomes := e.scanAll(ctx, units)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Merge in caller order. Each source's subtree was built atomically by
	// its worker; the merge itself is single-threaded and deterministic.
	merged := tree.New()
	sources := make([]models.SourceStatus, len(outcomes))
	okCount := 0
	for i, out := range outcomes {
		sources[i] = out.status
		if out.status.Err != nil {
			e.logger.Warn("Source failed",
				zap.String("source", out.status.Source),
				zap.Error(out.status.Err))
			continue
		}
		merged.Merge(out.status.Mount, out.subtree, out.status.Source)
		okCount++
	}
	if okCount == 0 {
		return nil, fmt.Errorf("all %d sources failed (first: %w)", len(units), firstErr(sources))
	}

	folders, files := merged.Count()
	metrics.SetTreeSize(folders + files)

	s := &Session{
		ID:        uuid.New(),
		input:     input,
		units:     units,
		engine:    e,
		tree:      merged,
		index:     search.NewIndex(merged),
		selection: selection.NewTracker(merged),
		extractor: extract.NewService(e.logger,
			extract.WithChunkSize(e.config.ChunkSize),
			extract.WithShareLimit(filesystem.ParseSize(e.config.ShareLimit))),
		sources: sources,
	}

	e.logger.Info("Session ready",
		zap.String("session", s.ID.String()),
		zap.Int("sources_ok", okCount),
		zap.Int("sources_failed", len(units)-okCount),
		zap.Int("folders", folders),
		zap.Int("files", files),
		zap.Int("collisions", len(merged.Collisions)),
		zap.Duration("duration", time.Since(start)))
	return s, nil
}

// scanAll runs one scan unit per archive on a bounded worker pool and
// returns outcomes re-ordered to caller order.
func (e *Engine) scanAll(ctx context.Context, units []scanUnit) []scanOutcome {
	workers := e.config.Workers
	if workers <= 0 {
		workers = 4
	}
	if workers > len(units) {
		workers = len(units)
	}

	unitChan := make(chan scanUnit, workers*2)
	resultChan := make(chan scanOutcome, workers*2)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go e.worker(ctx, &wg, unitChan, resultChan)
	}

	go func() {
		defer close(unitChan)
		for _, u := range units {
			select {
			case <-ctx.Done():
				return
			case unitChan <- u:
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	outcomes := make([]scanOutcome, len(units))
	for i := range outcomes {
		outcomes[i] = scanOutcome{
			idx: i,
			status: models.SourceStatus{
				Source: units[i].path,
				Mount:  units[i].mount,
				Err:    fmt.Errorf("scan aborted: %w", context.Canceled),
			},
		}
	}
	done := 0
	for out := range resultChan {
		outcomes[out.idx] = out
		done++
		e.reportProgress("scanning", done, len(units), out.status.Source)
	}
	return outcomes
}

// worker processes scan units from the channel
func (e *Engine) worker(ctx context.Context, wg *sync.WaitGroup, unitChan <-chan scanUnit, resultChan chan<- scanOutcome) {
	defer wg.Done()

	for unit := range unitChan {
		select {
		case <-ctx.Done():
			return
		default:
			resultChan <- e.scanOne(ctx, unit)
		}
	}
}

// scanOne indexes a single archive: fingerprint, cache gate, and on a miss
// a full directory scan, tree build, and snapshot store. Cache persistence
// failures are logged and swallowed; the in-memory tree is authoritative.
func (e *Engine) scanOne(ctx context.Context, unit scanUnit) scanOutcome {
	start := time.Now()
	status := models.SourceStatus{Source: unit.path, Mount: unit.mount}
	defer func() { status.Duration = time.Since(start) }()

	fail := func(err error) scanOutcome {
		metrics.RecordArchiveFailed()
		status.Err = err
		status.Duration = time.Since(start)
		return scanOutcome{idx: unit.idx, status: status}
	}

	fp, err := archive.Fingerprint(unit.path)
	if err != nil {
		return fail(err)
	}
	status.Fingerprint = fp

	filter := e.config.ExtensionFilter()
	if !e.config.SkipCache {
		if cached, err := e.store.Lookup(fp, filter); err == nil {
			_, files := cached.Count()
			status.FromCache = true
			status.Entries = files
			status.Duration = time.Since(start)
			e.logger.Debug("Cache hit",
				zap.String("source", unit.path),
				zap.String("fingerprint", fp.String()))
			return scanOutcome{idx: unit.idx, status: status, subtree: cached}
		}
	}

	openCtx := ctx
	if e.config.OpenTimeout > 0 {
		var cancel context.CancelFunc
		openCtx, cancel = context.WithTimeout(ctx, e.config.OpenTimeout)
		defer cancel()
	}
	h, err := archive.Open(openCtx, unit.path)
	if err != nil {
		return fail(err)
	}
	defer h.Close()

	entries := h.Entries()
	kept := entries[:0]
	for _, entry := range entries {
		if e.config.ShouldIndexEntry(filesystem.GetExtension(entry.Path)) {
			kept = append(kept, entry)
		}
	}

	subtree := tree.Build([]tree.Source{{ID: unit.path, Entries: kept}})
	status.Entries = len(kept)
	metrics.RecordArchiveScanned(len(kept), time.Since(start).Seconds())

	if err := e.store.Store(fp, filter, subtree); err != nil {
		e.logger.Warn("Cache persist failed, continuing with in-memory tree",
			zap.String("source", unit.path),
			zap.Error(err))
	}

	status.Duration = time.Since(start)
	return scanOutcome{idx: unit.idx, status: status, subtree: subtree}
}

func firstErr(sources []models.SourceStatus) error {
	for _, s := range sources {
		if s.Err != nil {
			return s.Err
		}
	}
	return nil
}

// Tree exposes the session's merged tree for read-only traversal.
func (s *Session) Tree() *tree.Tree { return s.tree }

// Sources returns the per-source open statuses in caller order.
func (s *Session) Sources() []models.SourceStatus {
	out := make([]models.SourceStatus, len(s.sources))
	copy(out, s.sources)
	return out
}

// Collisions returns the path collisions recorded during the merge.
func (s *Session) Collisions() []tree.Collision { return s.tree.Collisions }

// Search runs a ranked substring query against the session's index.
func (s *Session) Search(text string) []search.Match {
	return s.index.Query(text, false)
}

// SearchCase is Search with case-sensitive matching.
func (s *Session) SearchCase(text string) []search.Match {
	return s.index.Query(text, true)
}

// Toggle flips selection state for a node, propagating through folders.
func (s *Session) Toggle(path string) error { return s.selection.Toggle(path) }

// StateOf reports a node's selection state.
func (s *Session) StateOf(path string) (selection.State, error) {
	return s.selection.StateOf(path)
}

// SelectedLeaves returns the selected file paths.
func (s *Session) SelectedLeaves() []string { return s.selection.SelectedLeaves() }

// Extract streams the given file nodes to a sink with per-entry results.
func (s *Session) Extract(ctx context.Context, paths []string, sink extract.Sink) []extract.Result {
	return s.extractor.Extract(ctx, s.tree, paths, sink)
}

// ExtractSelected streams every selected leaf to the sink.
func (s *Session) ExtractSelected(ctx context.Context, sink extract.Sink) []extract.Result {
	return s.Extract(ctx, s.SelectedLeaves(), sink)
}

// Reload re-indexes the session's sources, replaces the tree and index, and
// rebinds the selection by path. Unchanged archives hit the snapshot cache.
func (s *Session) Reload(ctx context.Context) error {
	fresh, err := s.engine.open(ctx, s.input, s.units)
	if err != nil {
		return err
	}
	s.extractor.Close()
	s.tree = fresh.tree
	s.index = fresh.index
	s.extractor = fresh.extractor
	s.sources = fresh.sources
	s.selection.Rebind(fresh.tree)
	return nil
}

// Close releases the session's archive handles.
func (s *Session) Close() error { return s.extractor.Close() }
