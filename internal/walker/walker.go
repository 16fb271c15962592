// Package walker enumerates the documents folder and manages the files in it.
package walker

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ziadkadry99/docqa/internal/loader"
)

// DefaultMaxFileSize is the maximum file size to process (64 MB).
const DefaultMaxFileSize int64 = 64 << 20

// FileInfo describes a file found in the documents folder.
type FileInfo struct {
	Path    string    // Absolute, cleaned path. Identifies the file in the index.
	RelPath string    // Path relative to the root directory, slash separated.
	Name    string    // Base name shown to users.
	ModTime time.Time // Modification time as reported by the filesystem.
	Size    int64
	// Supported is false for files the loader has no extractor for.
	Supported bool
}

// Config controls the behaviour of Scan.
type Config struct {
	RootDir     string   // Root directory to scan.
	Recursive   bool     // Descend into subdirectories.
	Include     []string // Glob patterns; only matching files are returned.
	Exclude     []string // Glob patterns; matching files are skipped.
	MaxFileSize int64    // Files larger than this are skipped (0 = use default).
}

// ResolveRoot returns the absolute path of dir with symbolic links
// resolved, so a linked documents folder yields the same paths on every run.
func ResolveRoot(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return "", fmt.Errorf("resolve root: %w", err)
	}
	return resolved, nil
}

// Scan lists the regular files under config.RootDir that pass filtering,
// sorted by path. Unsupported files are included with Supported unset so the
// caller can report them.
func Scan(config Config) ([]FileInfo, error) {
	root, err := ResolveRoot(config.RootDir)
	if err != nil {
		return nil, fmt.Errorf("walker: %w", err)
	}
	if info, err := os.Stat(root); err != nil {
		return nil, fmt.Errorf("walker: %w", err)
	} else if !info.IsDir() {
		return nil, fmt.Errorf("walker: %s is not a directory", root)
	}

	maxSize := config.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	ignorePatterns := loadIgnore(filepath.Join(root, IgnoreFile))

	var files []FileInfo
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			// Skip entries we cannot read instead of aborting.
			return nil
		}

		name := d.Name()
		if d.IsDir() {
			if path == root {
				return nil
			}
			if !config.Recursive || IsExcludedDir(name) {
				return filepath.SkipDir
			}
			return nil
		}
		if isScratchFile(name) {
			return nil
		}
		if !d.Type().IsRegular() && d.Type()&fs.ModeSymlink == 0 {
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		if matchesIgnore(relPath, ignorePatterns) {
			return nil
		}
		if !MatchesInclude(relPath, config.Include) || MatchesExclude(relPath, config.Exclude) {
			return nil
		}

		// Links to regular files count as files; linked directories are
		// not followed.
		info, err := os.Stat(path)
		if err != nil || !info.Mode().IsRegular() {
			return nil
		}
		if info.Size() > maxSize {
			return nil
		}

		files = append(files, FileInfo{
			Path:      filepath.Clean(path),
			RelPath:   filepath.ToSlash(relPath),
			Name:      name,
			ModTime:   info.ModTime(),
			Size:      info.Size(),
			Supported: loader.IsSupported(name),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walker: traversal: %w", err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}
