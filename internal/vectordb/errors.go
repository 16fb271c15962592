package vectordb

import (
	"fmt"
	"strings"
)

// IndexWriteError reports a chunk that could not be embedded or stored.
// None of the file's records are visible in the catalog afterwards, so the
// file is picked up again by the next sync.
type IndexWriteError struct {
	SourcePath  string
	StartOffset int
	Err         error
}

func (e *IndexWriteError) Error() string {
	return fmt.Sprintf("index write %s at offset %d: %v", e.SourcePath, e.StartOffset, e.Err)
}

func (e *IndexWriteError) Unwrap() error {
	return e.Err
}

// IndexDeleteError reports a failed removal. The index may still hold
// records for Paths.
type IndexDeleteError struct {
	Paths []string
	Err   error
}

func (e *IndexDeleteError) Error() string {
	return fmt.Sprintf("index delete [%s]: %v", strings.Join(e.Paths, ", "), e.Err)
}

func (e *IndexDeleteError) Unwrap() error {
	return e.Err
}
