package walker

import (
	"os"
	"path/filepath"
	"strings"
)

// IgnoreFile is read from the root of the documents folder. It lists one
// gitignore-style pattern per line.
const IgnoreFile = ".docqaignore"

// loadIgnore returns the non-empty, non-comment lines of an ignore file.
func loadIgnore(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var patterns []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	return patterns
}

// matchesIgnore checks a relative path against ignore patterns. Patterns
// without a slash match any path component; a trailing slash limits a
// pattern to directories.
func matchesIgnore(relPath string, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}

	parts := strings.Split(filepath.ToSlash(relPath), "/")
	for _, pattern := range patterns {
		dirOnly := strings.HasSuffix(pattern, "/")
		pattern = strings.TrimSuffix(pattern, "/")

		if strings.Contains(pattern, "/") {
			if matched, _ := filepath.Match(strings.TrimPrefix(pattern, "/"), filepath.ToSlash(relPath)); matched {
				return true
			}
			continue
		}

		candidates := parts
		if dirOnly {
			candidates = parts[:len(parts)-1]
		}
		for _, part := range candidates {
			if matched, _ := filepath.Match(pattern, part); matched {
				return true
			}
		}
	}
	return false
}
