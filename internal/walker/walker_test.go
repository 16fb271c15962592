package walker

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/docqa/internal/loader"
)

func touch(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func relPaths(files []FileInfo) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.RelPath
	}
	return out
}

func TestScan_TopLevelByDefault(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "b.txt", "b")
	touch(t, dir, "a.pdf", "a")
	touch(t, dir, "notes.csv", "x,y")
	touch(t, dir, "sub/deep.txt", "deep")

	files, err := Scan(Config{RootDir: dir})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.pdf", "b.txt", "notes.csv"}, relPaths(files))

	for _, f := range files {
		assert.True(t, filepath.IsAbs(f.Path))
		assert.Equal(t, f.Name, filepath.Base(f.Path))
	}
	assert.True(t, files[0].Supported)
	assert.False(t, files[2].Supported)
}

func TestScan_Recursive(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "top.txt", "t")
	touch(t, dir, "sub/deep.txt", "d")
	touch(t, dir, ".git/config.txt", "git")
	touch(t, dir, ".docqa/state.txt", "state")

	files, err := Scan(Config{RootDir: dir, Recursive: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"sub/deep.txt", "top.txt"}, relPaths(files))
}

func TestScan_ModTimeAndSize(t *testing.T) {
	dir := t.TempDir()
	path := touch(t, dir, "a.txt", "hello")
	mtime := time.Date(2024, 1, 2, 3, 4, 5, 600, time.UTC)
	require.NoError(t, os.Chtimes(path, mtime, mtime))

	files, err := Scan(Config{RootDir: dir})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.True(t, files[0].ModTime.Equal(mtime))
	assert.Equal(t, int64(5), files[0].Size)
}

func TestScan_SkipsScratchFiles(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "report.docx", "r")
	touch(t, dir, "~$report.docx", "lock")
	touch(t, dir, ".upload-123", "partial")
	touch(t, dir, ".hidden.txt", "h")

	files, err := Scan(Config{RootDir: dir})
	require.NoError(t, err)
	assert.Equal(t, []string{"report.docx"}, relPaths(files))
}

func TestScan_IncludeExclude(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.txt", "a")
	touch(t, dir, "b.pdf", "b")
	touch(t, dir, "drafts/c.txt", "c")

	files, err := Scan(Config{RootDir: dir, Recursive: true, Include: []string{"*.txt"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "drafts/c.txt"}, relPaths(files))

	files, err = Scan(Config{RootDir: dir, Recursive: true, Exclude: []string{"drafts/**"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.pdf"}, relPaths(files))
}

func TestScan_SkipsLargeFiles(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "small.txt", "tiny")
	touch(t, dir, "large.txt", strings.Repeat("x", 200))

	files, err := Scan(Config{RootDir: dir, MaxFileSize: 100})
	require.NoError(t, err)
	assert.Equal(t, []string{"small.txt"}, relPaths(files))
}

func TestScan_IgnoreFile(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, IgnoreFile, "# drafts\n*.bak.txt\narchive/\n")
	touch(t, dir, "keep.txt", "k")
	touch(t, dir, "old.bak.txt", "o")
	touch(t, dir, "archive/2019.txt", "a")

	files, err := Scan(Config{RootDir: dir, Recursive: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"keep.txt"}, relPaths(files))
}

func TestScan_MissingRoot(t *testing.T) {
	_, err := Scan(Config{RootDir: filepath.Join(t.TempDir(), "missing")})
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestMatchesIncludeExclude(t *testing.T) {
	assert.True(t, MatchesInclude("anything.txt", nil))
	assert.True(t, MatchesInclude("main.txt", []string{"*.txt"}))
	assert.False(t, MatchesInclude("main.pdf", []string{"*.txt"}))
	assert.True(t, MatchesInclude("src/reports/q1.pdf", []string{"**/*.pdf"}))

	assert.False(t, MatchesExclude("anything.txt", nil))
	assert.True(t, MatchesExclude("debug.txt", []string{"debug.*"}))
}

func TestSaveUpload(t *testing.T) {
	dir := t.TempDir()

	path, err := SaveUpload(dir, "memo.txt", strings.NewReader("uploaded"), 0)
	require.NoError(t, err)
	assert.Equal(t, "memo.txt", filepath.Base(path))

	data, err := os.ReadFile(filepath.Join(dir, "memo.txt"))
	require.NoError(t, err)
	assert.Equal(t, "uploaded", string(data))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestSaveUpload_Rejects(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"", "../escape.txt", "sub/file.txt", ".hidden.txt", "..", `a\b.txt`} {
		_, err := SaveUpload(dir, name, strings.NewReader("x"), 0)
		assert.ErrorIs(t, err, ErrInvalidName, name)
	}

	_, err := SaveUpload(dir, "image.png", strings.NewReader("x"), 0)
	var unsupported *loader.UnsupportedFormatError
	assert.ErrorAs(t, err, &unsupported)

	_, err = SaveUpload(dir, "big.txt", strings.NewReader(strings.Repeat("x", 11)), 10)
	assert.ErrorIs(t, err, ErrTooLarge)
	_, statErr := os.Stat(filepath.Join(dir, "big.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestRemove(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.txt", "a")

	require.NoError(t, Remove(dir, "a.txt"))
	_, err := os.Stat(filepath.Join(dir, "a.txt"))
	assert.True(t, os.IsNotExist(err))

	assert.ErrorIs(t, Remove(dir, "a.txt"), os.ErrNotExist)
	assert.ErrorIs(t, Remove(dir, "../a.txt"), ErrInvalidName)
}

func TestScan_SymlinkedRoot(t *testing.T) {
	target := t.TempDir()
	touch(t, target, "a.txt", "hello")
	link := filepath.Join(t.TempDir(), "docs")
	require.NoError(t, os.Symlink(target, link))

	files, err := Scan(Config{RootDir: link})
	require.NoError(t, err)
	require.Len(t, files, 1)

	resolved, err := filepath.EvalSymlinks(target)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(resolved, "a.txt"), files[0].Path)

	root, err := ResolveRoot(link)
	require.NoError(t, err)
	assert.Equal(t, resolved, root)
}

func TestScan_SymlinkedEntries(t *testing.T) {
	outside := t.TempDir()
	src := touch(t, outside, "linked.txt", "linked content")
	touch(t, outside, "subdir/inner.txt", "inner")

	dir := t.TempDir()
	touch(t, dir, "plain.txt", "p")
	require.NoError(t, os.Symlink(src, filepath.Join(dir, "linked.txt")))
	require.NoError(t, os.Symlink(filepath.Join(outside, "subdir"), filepath.Join(dir, "subdir")))
	require.NoError(t, os.Symlink(filepath.Join(outside, "gone.txt"), filepath.Join(dir, "dangling.txt")))

	files, err := Scan(Config{RootDir: dir, Recursive: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"linked.txt", "plain.txt"}, relPaths(files))
	assert.Equal(t, int64(len("linked content")), files[0].Size)
}

func TestScan_HiddenDirectoriesFollowExcludeList(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, ".notes/a.txt", "a")
	touch(t, dir, ".Trash/b.txt", "b")

	files, err := Scan(Config{RootDir: dir, Recursive: true})
	require.NoError(t, err)
	assert.Equal(t, []string{".notes/a.txt"}, relPaths(files))

	assert.True(t, IsExcludedDir(".git"))
	assert.True(t, IsExcludedDir(".DOCQA"))
	assert.False(t, IsExcludedDir(".notes"))
}
