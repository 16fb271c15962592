package syncer

import (
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ziadkadry99/docqa/internal/chunker"
	"github.com/ziadkadry99/docqa/internal/db"
	"github.com/ziadkadry99/docqa/internal/loader"
	"github.com/ziadkadry99/docqa/internal/vectordb"
	"github.com/ziadkadry99/docqa/internal/walker"
)

// mockEmbedder returns deterministic, normalized bag-of-characters vectors.
type mockEmbedder struct{}

func (mockEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, 32)
		for j, ch := range text {
			vec[(int(ch)+j)%32]++
		}
		var norm float64
		for _, v := range vec {
			norm += float64(v * v)
		}
		norm = math.Sqrt(norm)
		for j := range vec {
			if norm > 0 {
				vec[j] = float32(float64(vec[j]) / norm)
			}
		}
		out[i] = vec
	}
	return out, nil
}

func (mockEmbedder) Dimensions() int { return 32 }
func (mockEmbedder) Name() string    { return "mock" }

// recordingIndex counts writes and injects failures into a real index.
type recordingIndex struct {
	vectordb.Index

	mu         sync.Mutex
	inserts    int
	deletes    int
	failInsert map[string]int // path -> remaining failures
	failDelete error
}

func (r *recordingIndex) Insert(ctx context.Context, chunks []chunker.Chunk) error {
	r.mu.Lock()
	r.inserts++
	if len(chunks) > 0 {
		p := chunks[0].Metadata.SourcePath
		if r.failInsert[p] > 0 {
			r.failInsert[p]--
			r.mu.Unlock()
			return &vectordb.IndexWriteError{SourcePath: p, Err: errors.New("disk full")}
		}
	}
	r.mu.Unlock()
	return r.Index.Insert(ctx, chunks)
}

func (r *recordingIndex) DeleteWhere(ctx context.Context, paths []string) error {
	r.mu.Lock()
	r.deletes++
	failErr := r.failDelete
	r.mu.Unlock()
	if failErr != nil {
		return &vectordb.IndexDeleteError{Paths: paths, Err: failErr}
	}
	return r.Index.DeleteWhere(ctx, paths)
}

func (r *recordingIndex) writes() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.inserts + r.deletes
}

type fixture struct {
	dir    string
	index  *recordingIndex
	engine *Engine
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	catalog, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { catalog.Close() })

	store, err := vectordb.OpenMemory(catalog, mockEmbedder{})
	require.NoError(t, err)

	dir := t.TempDir()
	idx := &recordingIndex{Index: store, failInsert: map[string]int{}}
	e, err := New(idx, walker.Config{RootDir: dir}, opts...)
	require.NoError(t, err)
	return &fixture{dir: e.Root(), index: idx, engine: e}
}

var base = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

// write creates or replaces a file with n characters and the given mtime.
func (f *fixture) write(t *testing.T, name string, n int, mtime time.Time) string {
	t.Helper()
	var sb strings.Builder
	for i := 0; i < n; i++ {
		sb.WriteByte(byte('a' + (i*7+len(name))%26))
	}
	return f.writeText(t, name, sb.String(), mtime)
}

func (f *fixture) writeText(t *testing.T, name, text string, mtime time.Time) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	require.NoError(t, os.WriteFile(path, []byte(text), 0o644))
	require.NoError(t, os.Chtimes(path, mtime, mtime))
	return path
}

func (f *fixture) sync(t *testing.T) *Report {
	t.Helper()
	r, err := f.engine.Sync(context.Background())
	require.NoError(t, err)
	return r
}

func (f *fixture) metadata(t *testing.T) []chunker.Metadata {
	t.Helper()
	metas, err := f.index.AllMetadata(context.Background())
	require.NoError(t, err)
	return metas
}

func (f *fixture) count(t *testing.T, path string) int {
	t.Helper()
	n := 0
	for _, m := range f.metadata(t) {
		if path == "" || m.SourcePath == path {
			n++
		}
	}
	return n
}

func counts(r *Report) [3]int {
	return [3]int{r.Added, r.Modified, r.Deleted}
}

func TestSync_EndToEndScenario(t *testing.T) {
	f := newFixture(t)
	a := f.write(t, "a.txt", 600, base)

	r := f.sync(t)
	assert.Equal(t, [3]int{1, 0, 0}, counts(r))
	assert.Equal(t, 2, f.count(t, a))

	b := f.write(t, "b.txt", 100, base)
	r = f.sync(t)
	assert.Equal(t, [3]int{1, 0, 0}, counts(r))
	assert.Equal(t, 3, f.count(t, ""))

	require.NoError(t, os.Remove(a))
	r = f.sync(t)
	assert.Equal(t, [3]int{0, 0, 1}, counts(r))
	assert.Equal(t, 1, f.count(t, ""))
	assert.Equal(t, 1, f.count(t, b))

	content, err := os.ReadFile(b)
	require.NoError(t, err)
	results, err := f.engine.Search(context.Background(), string(content), 5)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(results), 1)
	require.Len(t, results, 1)
	assert.Equal(t, b, results[0].Chunk.Metadata.SourcePath)
}

func TestSync_IdempotentWithZeroWrites(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.txt", 1000, base)
	f.write(t, "b.txt", 300, base.Add(time.Hour))

	f.sync(t)
	writes := f.index.writes()

	r := f.sync(t)
	assert.Equal(t, [3]int{0, 0, 0}, counts(r))
	assert.Empty(t, r.Failed)
	assert.Equal(t, 2, r.Unchanged)
	assert.False(t, r.Changed())
	assert.Equal(t, writes, f.index.writes(), "a no-op sync must not write to the index")
}

func TestSync_UnchangedFilesKeepIdenticalRecords(t *testing.T) {
	f := newFixture(t)
	a := f.write(t, "a.txt", 900, base)
	f.write(t, "b.txt", 300, base)
	f.sync(t)

	before, err := f.engine.Search(context.Background(), "abc", 100)
	require.NoError(t, err)

	f.write(t, "b.txt", 500, base.Add(time.Minute))
	f.write(t, "c.txt", 50, base)
	f.sync(t)

	after, err := f.engine.Search(context.Background(), "abc", 100)
	require.NoError(t, err)

	pick := func(results []vectordb.SearchResult) map[string]chunker.Chunk {
		out := make(map[string]chunker.Chunk)
		for _, r := range results {
			if r.Chunk.Metadata.SourcePath == a {
				out[r.ID] = r.Chunk
			}
		}
		return out
	}
	beforeA, afterA := pick(before), pick(after)
	require.Len(t, beforeA, 3)
	require.Equal(t, len(beforeA), len(afterA))
	for id, c := range beforeA {
		got, ok := afterA[id]
		require.True(t, ok, "record %s of an unchanged file was replaced", id)
		assert.Equal(t, c.Text, got.Text)
		assert.Equal(t, c.Metadata.StartOffset, got.Metadata.StartOffset)
		assert.True(t, c.Metadata.LastModified.Equal(got.Metadata.LastModified))
	}
}

func TestSync_DeletionIsComplete(t *testing.T) {
	f := newFixture(t)
	a := f.write(t, "a.txt", 2000, base)
	f.write(t, "keep.txt", 100, base)
	f.sync(t)
	require.Equal(t, 7, f.count(t, a))

	require.NoError(t, os.Remove(a))
	r := f.sync(t)
	assert.Equal(t, 1, r.Deleted)
	assert.Zero(t, f.count(t, a))

	results, err := f.engine.Search(context.Background(), "abcdefg", 50)
	require.NoError(t, err)
	for _, res := range results {
		assert.NotEqual(t, a, res.Chunk.Metadata.SourcePath)
	}
}

func TestSync_ModificationReplacesRecords(t *testing.T) {
	f := newFixture(t)
	a := f.writeText(t, "a.txt", "the old contract terms", base)
	f.sync(t)

	later := base.Add(2 * time.Hour)
	f.writeText(t, "a.txt", "the new contract terms, revised", later)
	r := f.sync(t)
	assert.Equal(t, [3]int{0, 1, 0}, counts(r))

	metas := f.metadata(t)
	require.Len(t, metas, 1)
	assert.True(t, metas[0].LastModified.Equal(later))

	results, err := f.engine.Search(context.Background(), "contract", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "the new contract terms, revised", results[0].Chunk.Text)
	assert.Equal(t, a, results[0].Chunk.Metadata.SourcePath)
}

func TestSync_OlderMtimeIsUnchanged(t *testing.T) {
	f := newFixture(t)
	f.writeText(t, "a.txt", "current text", base)
	f.sync(t)

	f.writeText(t, "a.txt", "restored from backup", base.Add(-24*time.Hour))
	r := f.sync(t)
	assert.Equal(t, [3]int{0, 0, 0}, counts(r))

	results, err := f.engine.Search(context.Background(), "text", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "current text", results[0].Chunk.Text)
}

func TestSync_LoadFailureDoesNotBlockOthers(t *testing.T) {
	f := newFixture(t)
	good := f.write(t, "good.txt", 600, base)
	bad := filepath.Join(f.dir, "bad.txt")
	require.NoError(t, os.WriteFile(bad, []byte{0xff, 0xfe, 0x00}, 0o644))

	r := f.sync(t)
	assert.Equal(t, 2, r.Added)
	require.Len(t, r.Failed, 1)
	assert.Equal(t, bad, r.Failed[0].Path)
	var loadErr *loader.LoadError
	assert.ErrorAs(t, r.Failed[0].Err, &loadErr)
	assert.Equal(t, 2, f.count(t, good))

	// Still broken: retried and reported again.
	r = f.sync(t)
	assert.Equal(t, 1, r.Added)
	assert.Len(t, r.Failed, 1)

	f.writeText(t, "bad.txt", "fixed now", base.Add(time.Hour))
	r = f.sync(t)
	assert.Equal(t, 1, r.Added)
	assert.Empty(t, r.Failed)
	assert.Equal(t, 1, f.count(t, bad))
}

func TestSync_WriteFailureIsRetried(t *testing.T) {
	f := newFixture(t)
	a := f.write(t, "a.txt", 600, base)
	b := f.write(t, "b.txt", 100, base)
	f.index.failInsert[a] = 1

	r := f.sync(t)
	require.Len(t, r.Failed, 1)
	assert.Equal(t, a, r.Failed[0].Path)
	var writeErr *vectordb.IndexWriteError
	assert.ErrorAs(t, r.Failed[0].Err, &writeErr)
	assert.Zero(t, f.count(t, a))
	assert.Equal(t, 1, f.count(t, b))

	r = f.sync(t)
	assert.Equal(t, [3]int{1, 0, 0}, counts(r))
	assert.Empty(t, r.Failed)
	assert.Equal(t, 2, f.count(t, a))
}

func TestSync_DeleteFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	a := f.write(t, "a.txt", 100, base)
	f.sync(t)

	require.NoError(t, os.Remove(a))
	c := f.write(t, "c.txt", 100, base)
	f.index.failDelete = errors.New("catalog locked")

	_, err := f.engine.Sync(context.Background())
	var delErr *vectordb.IndexDeleteError
	require.ErrorAs(t, err, &delErr)
	assert.Equal(t, []string{a}, delErr.Paths)
	assert.Zero(t, f.count(t, c), "no inserts after a failed delete")

	f.index.failDelete = nil
	r := f.sync(t)
	assert.Equal(t, [3]int{1, 0, 1}, counts(r))
	assert.Zero(t, f.count(t, a))
	assert.Equal(t, 1, f.count(t, c))
}

func TestSync_UnsupportedFilesAreSkippedAndReportedOnce(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	f := newFixture(t, WithLogger(zap.New(core)))
	f.writeText(t, "photo.png", "not text", base)
	f.writeText(t, "notes.txt", "some notes", base)

	r := f.sync(t)
	assert.Equal(t, [3]int{1, 0, 0}, counts(r))
	r = f.sync(t)
	assert.Equal(t, [3]int{0, 0, 0}, counts(r))

	skipped := logs.FilterMessage("skipping file").All()
	require.Len(t, skipped, 1)
	assert.Contains(t, skipped[0].ContextMap()["path"], "photo.png")
}

func TestSync_EmptyFileIsNotReprocessed(t *testing.T) {
	f := newFixture(t)
	f.writeText(t, "empty.txt", "", base)

	r := f.sync(t)
	assert.Equal(t, 1, r.Added)
	assert.Empty(t, r.Failed)

	writes := f.index.writes()
	r = f.sync(t)
	assert.Equal(t, [3]int{0, 0, 0}, counts(r))
	assert.Equal(t, writes, f.index.writes())

	f.writeText(t, "empty.txt", "now it has text", base.Add(time.Hour))
	r = f.sync(t)
	assert.Equal(t, 1, r.Added)
	assert.Equal(t, 1, f.count(t, ""))
}

func TestSync_ConcurrentCallersAreSerialized(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.txt", 1500, base)

	var wg sync.WaitGroup
	reports := make([]*Report, 4)
	for i := range reports {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := f.engine.Sync(context.Background())
			assert.NoError(t, err)
			reports[i] = r
		}(i)
	}
	wg.Wait()

	added := 0
	for _, r := range reports {
		added += r.Added
	}
	assert.Equal(t, 1, added)
	assert.Equal(t, chunker.Default().Count(1500), f.count(t, ""))
}

func TestSync_ProgressCallback(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.txt", 10, base)
	f.write(t, "b.txt", 10, base)

	var seen []string
	f.engine.SetProgressFunc(func(done, total int, name string) {
		assert.Equal(t, 2, total)
		seen = append(seen, name)
	})
	f.sync(t)
	assert.Equal(t, []string{"a.txt", "b.txt"}, seen)
}

func TestDocuments(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.txt", 600, base)
	f.writeText(t, "scan.png", "x", base)
	f.sync(t)
	f.write(t, "b.txt", 10, base)

	docs, err := f.engine.Documents(context.Background())
	require.NoError(t, err)
	require.Len(t, docs, 3)

	byName := map[string]Document{}
	for _, d := range docs {
		byName[d.Name] = d
	}
	assert.True(t, byName["a.txt"].Indexed)
	assert.Equal(t, 2, byName["a.txt"].Chunks)
	assert.False(t, byName["b.txt"].Indexed)
	assert.False(t, byName["scan.png"].Supported)
}

func TestSync_CancelledContext(t *testing.T) {
	f := newFixture(t)
	f.write(t, "a.txt", 10, base)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := f.engine.Sync(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, f.count(t, ""))

	r := f.sync(t)
	assert.Equal(t, 1, r.Added)
}

func TestSync_SymlinkedDocumentsFolder(t *testing.T) {
	catalog, err := db.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { catalog.Close() })
	store, err := vectordb.OpenMemory(catalog, mockEmbedder{})
	require.NoError(t, err)

	target := t.TempDir()
	link := filepath.Join(t.TempDir(), "docs")
	require.NoError(t, os.Symlink(target, link))
	resolved, err := filepath.EvalSymlinks(target)
	require.NoError(t, err)

	f := &fixture{dir: resolved, index: &recordingIndex{Index: store, failInsert: map[string]int{}}}
	f.engine, err = New(f.index, walker.Config{RootDir: link})
	require.NoError(t, err)
	assert.Equal(t, resolved, f.engine.Root())

	a := f.write(t, "a.txt", 600, base)
	r := f.sync(t)
	assert.Equal(t, [3]int{1, 0, 0}, counts(r))
	assert.Equal(t, 2, f.count(t, a))

	// A fresh engine opened through the link sees the same paths.
	again, err := New(f.index, walker.Config{RootDir: link})
	require.NoError(t, err)
	r, err = again.Sync(context.Background())
	require.NoError(t, err)
	assert.Equal(t, [3]int{0, 0, 0}, counts(r))
	assert.Equal(t, 1, r.Unchanged)
}

// touchingLoader finds no text and moves the file's mtime forward on the
// first load, like an edit that lands right after the file was read.
type touchingLoader struct {
	loads int
	bump  time.Time
}

func (l *touchingLoader) Load(path string) ([]loader.Segment, error) {
	l.loads++
	if l.loads == 1 {
		_ = os.Chtimes(path, l.bump, l.bump)
	}
	return nil, nil
}

func TestSync_EmptyFileRemembersScannedMtime(t *testing.T) {
	l := &touchingLoader{bump: base.Add(time.Hour)}
	f := newFixture(t, WithLoader(l))
	f.writeText(t, "a.txt", "text", base)

	r := f.sync(t)
	assert.Equal(t, 1, r.Added)
	assert.Equal(t, 1, l.loads)

	// The edit after the load is picked up instead of being taken as
	// already known to be empty.
	r = f.sync(t)
	assert.Equal(t, 1, r.Added)
	assert.Equal(t, 2, l.loads)

	r = f.sync(t)
	assert.Zero(t, r.Added)
	assert.Equal(t, 2, l.loads)
}
