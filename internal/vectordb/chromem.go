package vectordb

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ziadkadry99/docqa/internal/chunker"
	"github.com/ziadkadry99/docqa/internal/db"
	"github.com/ziadkadry99/docqa/internal/embeddings"
)

const collectionName = "documents"

var tracer = otel.Tracer("github.com/ziadkadry99/docqa/internal/vectordb")

// ChromemStore implements Index with a chromem-go collection and the SQLite
// record catalog.
type ChromemStore struct {
	db         *chromem.DB
	collection *chromem.Collection
	catalog    *db.DB
	embedder   embeddings.Embedder
	logger     *zap.Logger

	mu      sync.Mutex
	nextSeq int64
}

// Option configures a ChromemStore.
type Option func(*ChromemStore)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(s *ChromemStore) { s.logger = l }
}

// Open opens the persisted index under dataDir/vectors. An empty directory
// yields an empty index.
func Open(dataDir string, catalog *db.DB, embedder embeddings.Embedder, opts ...Option) (*ChromemStore, error) {
	cdb, err := chromem.NewPersistentDB(filepath.Join(dataDir, "vectors"), true)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}
	return newStore(cdb, catalog, embedder, opts)
}

// OpenMemory creates an index that keeps its vectors in memory.
func OpenMemory(catalog *db.DB, embedder embeddings.Embedder, opts ...Option) (*ChromemStore, error) {
	return newStore(chromem.NewDB(), catalog, embedder, opts)
}

func newStore(cdb *chromem.DB, catalog *db.DB, embedder embeddings.Embedder, opts []Option) (*ChromemStore, error) {
	col, err := cdb.GetOrCreateCollection(collectionName, nil, embeddings.ToChromemFunc(embedder))
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	var maxSeq int64
	if err := catalog.QueryRow(`SELECT COALESCE(MAX(seq), 0) FROM records`).Scan(&maxSeq); err != nil {
		return nil, fmt.Errorf("read record catalog: %w", err)
	}

	s := &ChromemStore{
		db:         cdb,
		collection: col,
		catalog:    catalog,
		embedder:   embedder,
		logger:     zap.NewNop(),
		nextSeq:    maxSeq + 1,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *ChromemStore) SimilaritySearch(ctx context.Context, query string, k int) ([]SearchResult, error) {
	ctx, span := tracer.Start(ctx, "vectordb.SimilaritySearch", trace.WithAttributes(attribute.Int("k", k)))
	defer span.End()

	if k <= 0 {
		return []SearchResult{}, nil
	}
	n := s.collection.Count()
	if n == 0 {
		return []SearchResult{}, nil
	}

	// Rank the whole collection so equal similarities can be ordered by
	// insertion sequence rather than chromem's heap order.
	results, err := s.collection.Query(ctx, query, n, nil, nil)
	if err != nil {
		fail(span, err)
		return nil, fmt.Errorf("chromem query: %w", err)
	}

	seqs, err := s.sequences(ctx)
	if err != nil {
		fail(span, err)
		return nil, err
	}

	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		seq, ok := seqs[r.ID]
		if !ok {
			// Vectors without a catalog row belong to an insert that never
			// committed.
			continue
		}
		out = append(out, SearchResult{
			Record: Record{
				ID:  r.ID,
				Seq: seq,
				Chunk: chunker.Chunk{
					Text:     r.Content,
					Metadata: mapToMetadata(r.Metadata),
				},
			},
			Similarity: r.Similarity,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].Seq < out[j].Seq
	})
	if len(out) > k {
		out = out[:k]
	}
	span.SetAttributes(attribute.Int("results", len(out)))
	return out, nil
}

func (s *ChromemStore) sequences(ctx context.Context) (map[string]int64, error) {
	rows, err := s.catalog.QueryContext(ctx, `SELECT id, seq FROM records`)
	if err != nil {
		return nil, fmt.Errorf("read record catalog: %w", err)
	}
	defer rows.Close()

	seqs := make(map[string]int64)
	for rows.Next() {
		var id string
		var seq int64
		if err := rows.Scan(&id, &seq); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		seqs[id] = seq
	}
	return seqs, rows.Err()
}

func (s *ChromemStore) AllMetadata(ctx context.Context) ([]chunker.Metadata, error) {
	rows, err := s.catalog.QueryContext(ctx,
		`SELECT source_path, display_name, last_modified, page, start_offset FROM records ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("read record catalog: %w", err)
	}
	defer rows.Close()

	var out []chunker.Metadata
	for rows.Next() {
		var m chunker.Metadata
		var nanos int64
		if err := rows.Scan(&m.SourcePath, &m.DisplayName, &nanos, &m.Page, &m.StartOffset); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		m.LastModified = unixNano(nanos)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (s *ChromemStore) DeleteWhere(ctx context.Context, sourcePaths []string) (err error) {
	if len(sourcePaths) == 0 {
		return nil
	}
	ctx, span := tracer.Start(ctx, "vectordb.DeleteWhere", trace.WithAttributes(attribute.Int("paths", len(sourcePaths))))
	defer func() {
		if err != nil {
			fail(span, err)
			err = &IndexDeleteError{Paths: sourcePaths, Err: err}
		}
		span.End()
	}()

	// Vectors go first: if the catalog delete then fails, the snapshot still
	// lists the paths and the next sync deletes them again.
	for _, p := range sourcePaths {
		if err := s.collection.Delete(ctx, map[string]string{keySourcePath: p}, nil); err != nil {
			return fmt.Errorf("delete vectors of %s: %w", p, err)
		}
	}

	tx, err := s.catalog.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin catalog delete: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `DELETE FROM records WHERE source_path = ?`)
	if err != nil {
		return fmt.Errorf("prepare catalog delete: %w", err)
	}
	defer stmt.Close()

	for _, p := range sourcePaths {
		if _, err := stmt.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("delete catalog rows of %s: %w", p, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit catalog delete: %w", err)
	}

	s.logger.Debug("deleted records", zap.Strings("paths", sourcePaths))
	return nil
}

func (s *ChromemStore) Insert(ctx context.Context, chunks []chunker.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	ctx, span := tracer.Start(ctx, "vectordb.Insert", trace.WithAttributes(attribute.Int("chunks", len(chunks))))
	defer span.End()

	writeErr := func(c chunker.Chunk, err error) error {
		fail(span, err)
		return &IndexWriteError{SourcePath: c.Metadata.SourcePath, StartOffset: c.Metadata.StartOffset, Err: err}
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		at := 0
		var batchErr *embeddings.BatchError
		if errors.As(err, &batchErr) && batchErr.Offset < len(chunks) {
			at = batchErr.Offset
		}
		return writeErr(chunks[at], fmt.Errorf("embed: %w", err))
	}
	if len(vectors) < len(chunks) {
		return writeErr(chunks[len(vectors)], fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(chunks)))
	}
	for i, v := range vectors[:len(chunks)] {
		if len(v) == 0 {
			return writeErr(chunks[i], errors.New("embedder returned an empty vector"))
		}
	}

	if err := s.dropUncommitted(ctx, chunks); err != nil {
		return writeErr(chunks[0], err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	docs := make([]chromem.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = chromem.Document{
			ID:        RecordID(c.Metadata),
			Metadata:  metadataToMap(c.Metadata),
			Embedding: vectors[i],
			Content:   c.Text,
		}
	}
	if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
		return writeErr(chunks[0], fmt.Errorf("store vectors: %w", err))
	}

	if err := s.commit(ctx, chunks, docs); err != nil {
		return writeErr(chunks[0], err)
	}
	return nil
}

// dropUncommitted removes vectors left behind by an earlier insert that
// failed before its catalog rows committed.
func (s *ChromemStore) dropUncommitted(ctx context.Context, chunks []chunker.Chunk) error {
	seen := make(map[string]bool)
	for _, c := range chunks {
		p := c.Metadata.SourcePath
		if seen[p] {
			continue
		}
		seen[p] = true

		var n int
		if err := s.catalog.QueryRowContext(ctx, `SELECT COUNT(*) FROM records WHERE source_path = ?`, p).Scan(&n); err != nil {
			return fmt.Errorf("read record catalog: %w", err)
		}
		if n > 0 {
			continue
		}
		if err := s.collection.Delete(ctx, map[string]string{keySourcePath: p}, nil); err != nil {
			return fmt.Errorf("drop stale vectors of %s: %w", p, err)
		}
	}
	return nil
}

// commit writes the catalog rows in one transaction. Callers hold s.mu.
func (s *ChromemStore) commit(ctx context.Context, chunks []chunker.Chunk, docs []chromem.Document) error {
	tx, err := s.catalog.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin catalog insert: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO records (id, seq, source_path, display_name, last_modified, page, start_offset)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("prepare catalog insert: %w", err)
	}
	defer stmt.Close()

	seq := s.nextSeq
	for i, c := range chunks {
		m := c.Metadata
		if _, err := stmt.ExecContext(ctx, docs[i].ID, seq, m.SourcePath, m.DisplayName,
			m.LastModified.UnixNano(), m.Page, m.StartOffset); err != nil {
			return fmt.Errorf("insert catalog row: %w", err)
		}
		seq++
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit catalog insert: %w", err)
	}
	s.nextSeq = seq
	return nil
}

func (s *ChromemStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.catalog.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count records: %w", err)
	}
	return n, nil
}

// Close releases nothing itself: chromem persists on every write and the
// catalog is owned by the caller.
func (s *ChromemStore) Close() error {
	return nil
}

func fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

var _ Index = (*ChromemStore)(nil)
