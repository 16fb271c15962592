// Package syncer keeps the vector index consistent with the documents folder.
//
// Each sync compares the files on disk with the snapshot derived from the
// index and applies the smallest set of deletions and insertions that makes
// them agree. Change detection is by modification time only.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/ziadkadry99/docqa/internal/chunker"
	"github.com/ziadkadry99/docqa/internal/loader"
	"github.com/ziadkadry99/docqa/internal/metrics"
	"github.com/ziadkadry99/docqa/internal/vectordb"
	"github.com/ziadkadry99/docqa/internal/walker"
)

var tracer = otel.Tracer("github.com/ziadkadry99/docqa/internal/syncer")

// ProgressFunc is called after each new or modified file is processed.
type ProgressFunc func(processed int, total int, currentFile string)

// Engine synchronizes one documents folder with one index. Syncs are
// serialized, and searches wait for an in-progress sync to finish.
type Engine struct {
	mu       sync.RWMutex
	index    vectordb.Index
	loader   loader.Loader
	splitter *chunker.Splitter
	scan     walker.Config
	logger   *zap.Logger
	metrics  *metrics.Collector

	onProgress ProgressFunc

	// Guarded by mu.
	reported map[string]bool      // unsupported files already logged
	empty    map[string]time.Time // files that produced no text, by mtime
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithMetrics records sync outcomes and search latency in c.
func WithMetrics(c *metrics.Collector) Option {
	return func(e *Engine) { e.metrics = c }
}

// WithLoader replaces the file loader.
func WithLoader(l loader.Loader) Option {
	return func(e *Engine) { e.loader = l }
}

// WithSplitter sets the chunk splitter. The default is chunker.Default().
func WithSplitter(s *chunker.Splitter) Option {
	return func(e *Engine) { e.splitter = s }
}

// New creates an Engine for the folder described by scan, creating the
// folder if needed.
func New(index vectordb.Index, scan walker.Config, opts ...Option) (*Engine, error) {
	abs, err := filepath.Abs(scan.RootDir)
	if err != nil {
		return nil, fmt.Errorf("resolve documents directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("creating documents directory: %w", err)
	}
	root, err := walker.ResolveRoot(abs)
	if err != nil {
		return nil, fmt.Errorf("resolve documents directory: %w", err)
	}
	scan.RootDir = root

	e := &Engine{
		index:    index,
		loader:   loader.New(),
		splitter: chunker.Default(),
		scan:     scan,
		logger:   zap.NewNop(),
		reported: make(map[string]bool),
		empty:    make(map[string]time.Time),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Root returns the absolute path of the documents folder.
func (e *Engine) Root() string {
	return e.scan.RootDir
}

// SetProgressFunc sets the progress callback used by subsequent syncs.
func (e *Engine) SetProgressFunc(fn ProgressFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onProgress = fn
}

// Sync brings the index in line with the folder. Load and write failures are
// confined to their file and listed in the report; a failed deletion aborts
// the sync with a *vectordb.IndexDeleteError.
func (e *Engine) Sync(ctx context.Context) (report *Report, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	start := time.Now()
	ctx, span := tracer.Start(ctx, "syncer.Sync")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
		e.observe(report, err, time.Since(start))
	}()

	current, err := e.current()
	if err != nil {
		return nil, err
	}

	metas, err := e.index.AllMetadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading index snapshot: %w", err)
	}
	stored := SnapshotOf(metas)

	e.forgetEmpty(current, stored)
	plan := Diff(current, stored)
	plan.New = slices.DeleteFunc(plan.New, func(p string) bool {
		mtime, ok := e.empty[p]
		return ok && mtime.Equal(current[p])
	})

	report = &Report{
		Added:    len(plan.New),
		Modified: len(plan.Modified),
		Deleted:  len(plan.Deleted),
	}
	report.Unchanged = len(current) - report.Added - report.Modified
	span.SetAttributes(
		attribute.Int("sync.added", report.Added),
		attribute.Int("sync.modified", report.Modified),
		attribute.Int("sync.deleted", report.Deleted),
	)

	if plan.Empty() {
		report.Duration = time.Since(start)
		e.logger.Debug("index up to date", zap.Int("files", len(current)))
		return report, nil
	}

	if len(plan.Deleted) > 0 {
		if err := e.index.DeleteWhere(ctx, plan.Deleted); err != nil {
			return nil, err
		}
		for _, p := range plan.Deleted {
			e.logger.Info("removed from index", zap.String("path", p))
		}
	}
	if len(plan.Modified) > 0 {
		if err := e.index.DeleteWhere(ctx, plan.Modified); err != nil {
			return nil, err
		}
	}

	changed := append(slices.Clone(plan.New), plan.Modified...)
	slices.Sort(changed)
	for i, path := range changed {
		if err := ctx.Err(); err != nil {
			report.Duration = time.Since(start)
			return report, err
		}

		if err := e.indexFile(ctx, path, current[path]); err != nil {
			report.Failed = append(report.Failed, FileFailure{Path: path, Err: err})
			e.logger.Warn("file not indexed, will retry on next sync", zap.String("path", path), zap.Error(err))
		} else {
			e.logger.Info("indexed", zap.String("path", path))
		}

		if e.onProgress != nil {
			e.onProgress(i+1, len(changed), filepath.Base(path))
		}
	}

	report.Duration = time.Since(start)
	e.logger.Info("sync finished",
		zap.Int("added", report.Added),
		zap.Int("modified", report.Modified),
		zap.Int("deleted", report.Deleted),
		zap.Int("failed", len(report.Failed)),
		zap.Duration("duration", report.Duration),
	)
	return report, nil
}

// current scans the folder. Unsupported files are left out of the result and
// logged the first time they are seen.
func (e *Engine) current() (Snapshot, error) {
	files, err := walker.Scan(e.scan)
	if err != nil {
		return nil, fmt.Errorf("scanning documents: %w", err)
	}

	current := make(Snapshot, len(files))
	for _, f := range files {
		if !f.Supported {
			if !e.reported[f.Path] {
				e.reported[f.Path] = true
				_, err := loader.FormatOf(f.Path)
				e.logger.Warn("skipping file", zap.String("path", f.Path), zap.Error(err))
			}
			continue
		}
		current[f.Path] = f.ModTime
	}
	return current, nil
}

// forgetEmpty drops remembered text-less files that changed or vanished.
func (e *Engine) forgetEmpty(current, stored Snapshot) {
	for p, mtime := range e.empty {
		now, ok := current[p]
		if _, indexed := stored[p]; !ok || indexed || !now.Equal(mtime) {
			delete(e.empty, p)
		}
	}
}

// indexFile loads, chunks and inserts a single file. scanned is the mtime
// the file had when the folder was scanned.
func (e *Engine) indexFile(ctx context.Context, path string, scanned time.Time) error {
	segments, err := e.loader.Load(path)
	if err != nil {
		return err
	}

	chunks := e.splitter.Collect(segments)
	if len(chunks) == 0 {
		// Nothing to store. Remember the scanned mtime so the file is not
		// reloaded until it changes; an edit made after the scan shows up
		// as a newer mtime on the next sync.
		e.empty[path] = scanned
		e.logger.Warn("no extractable text", zap.String("path", path))
		return nil
	}

	// A file touched between scan and load carries its newer mtime in every
	// chunk, which keeps the records of one path on a single mtime.
	return e.index.Insert(ctx, chunks)
}

func (e *Engine) observe(report *Report, err error, elapsed time.Duration) {
	if e.metrics == nil {
		return
	}
	result := "ok"
	var delErr *vectordb.IndexDeleteError
	switch {
	case errors.As(err, &delErr):
		result = "delete_failed"
	case err != nil:
		result = "error"
	case report != nil && len(report.Failed) > 0:
		result = "partial"
	}
	e.metrics.SyncRuns.WithLabelValues(result).Inc()
	e.metrics.SyncDuration.Observe(elapsed.Seconds())

	if report != nil {
		e.metrics.SyncFiles.WithLabelValues("added").Add(float64(report.Added))
		e.metrics.SyncFiles.WithLabelValues("modified").Add(float64(report.Modified))
		e.metrics.SyncFiles.WithLabelValues("deleted").Add(float64(report.Deleted))
		e.metrics.SyncFiles.WithLabelValues("failed").Add(float64(len(report.Failed)))
	}
	if n, err := e.index.Count(context.Background()); err == nil {
		e.metrics.IndexRecords.Set(float64(n))
	}
}

// Search runs a similarity search. It waits for any in-progress sync so
// results never mix old and new records of a file.
func (e *Engine) Search(ctx context.Context, query string, k int) ([]vectordb.SearchResult, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	start := time.Now()
	results, err := e.index.SimilaritySearch(ctx, query, k)
	if e.metrics != nil {
		e.metrics.SearchDuration.Observe(time.Since(start).Seconds())
	}
	return results, err
}

// Document is a file in the documents folder together with its index state.
type Document struct {
	Name      string
	Path      string
	Size      int64
	ModTime   time.Time
	Supported bool
	// Indexed is true when the index holds records for the file's current
	// modification time.
	Indexed bool
	Chunks  int
}

// Documents lists the files in the folder and their index state.
func (e *Engine) Documents(ctx context.Context) ([]Document, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	files, err := walker.Scan(e.scan)
	if err != nil {
		return nil, fmt.Errorf("scanning documents: %w", err)
	}
	metas, err := e.index.AllMetadata(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading index snapshot: %w", err)
	}

	chunks := make(map[string]int)
	for _, m := range metas {
		chunks[m.SourcePath]++
	}
	stored := SnapshotOf(metas)

	docs := make([]Document, 0, len(files))
	for _, f := range files {
		mtime, ok := stored[f.Path]
		docs = append(docs, Document{
			Name:      f.Name,
			Path:      f.Path,
			Size:      f.Size,
			ModTime:   f.ModTime,
			Supported: f.Supported,
			Indexed:   ok && !f.ModTime.After(mtime),
			Chunks:    chunks[f.Path],
		})
	}
	return docs, nil
}
