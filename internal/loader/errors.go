package loader

import "fmt"

// UnsupportedFormatError is returned for files whose extension is not one of
// SupportedExtensions. Such files are skipped permanently.
type UnsupportedFormatError struct {
	Path string
	Ext  string
}

func (e *UnsupportedFormatError) Error() string {
	if e.Ext == "" {
		return fmt.Sprintf("unsupported file format: %s (no extension)", e.Path)
	}
	return fmt.Sprintf("unsupported file format %q: %s", e.Ext, e.Path)
}

// LoadError wraps a failure to read or parse a supported file. The file is
// skipped for the current sync and retried on the next one.
type LoadError struct {
	Path string
	Err  error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Path, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}
