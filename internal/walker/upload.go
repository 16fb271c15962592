package walker

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ziadkadry99/docqa/internal/loader"
)

// ErrInvalidName is returned for file names that are empty, hidden or
// contain path separators.
var ErrInvalidName = errors.New("invalid file name")

// ErrTooLarge is returned when an upload exceeds the size limit.
var ErrTooLarge = errors.New("file too large")

// validName rejects anything that could resolve outside the folder.
func validName(name string) error {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) || isScratchFile(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// SaveUpload writes r to dir/name. The content is streamed to a hidden
// temporary file and renamed into place, so a scan never sees a partial
// upload. maxSize <= 0 means DefaultMaxFileSize.
func SaveUpload(dir, name string, r io.Reader, maxSize int64) (string, error) {
	if err := validName(name); err != nil {
		return "", err
	}
	if !loader.IsSupported(name) {
		_, err := loader.FormatOf(name)
		return "", err
	}
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating documents directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, io.LimitReader(r, maxSize+1))
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("writing upload: %w", err)
	}
	if n > maxSize {
		return "", fmt.Errorf("%w: limit is %d bytes", ErrTooLarge, maxSize)
	}

	dest := filepath.Join(dir, name)
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", fmt.Errorf("moving upload into place: %w", err)
	}
	abs, err := filepath.Abs(dest)
	if err != nil {
		return dest, nil
	}
	return abs, nil
}

// Remove deletes dir/name.
func Remove(dir, name string) error {
	if err := validName(name); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("removing %s: %w", name, err)
	}
	return nil
}
