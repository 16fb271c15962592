// Package loader extracts raw text from the document formats docqa indexes.
package loader

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Format is one of the closed set of document formats docqa can read.
type Format int

const (
	FormatPDF Format = iota + 1
	FormatDOCX
	FormatTXT
)

func (f Format) String() string {
	switch f {
	case FormatPDF:
		return "pdf"
	case FormatDOCX:
		return "docx"
	case FormatTXT:
		return "txt"
	default:
		return "unknown"
	}
}

var formatsByExt = map[string]Format{
	".pdf":  FormatPDF,
	".docx": FormatDOCX,
	".txt":  FormatTXT,
}

// SupportedExtensions returns the file extensions Load accepts, with leading dots.
func SupportedExtensions() []string {
	return []string{".pdf", ".docx", ".txt"}
}

// FormatOf resolves the format of path from its extension (case-insensitive).
func FormatOf(path string) (Format, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if f, ok := formatsByExt[ext]; ok {
		return f, nil
	}
	return 0, &UnsupportedFormatError{Path: path, Ext: ext}
}

// IsSupported reports whether path has an extension Load understands.
func IsSupported(path string) bool {
	_, err := FormatOf(path)
	return err == nil
}

// Segment is one unit of raw text extracted from a file: a page for PDFs,
// the whole body for DOCX and TXT.
type Segment struct {
	Text         string
	SourcePath   string
	DisplayName  string
	LastModified time.Time
	// Page is the 1-based page number for PDFs and 0 otherwise.
	Page int
}

// Loader turns a file on disk into text segments.
type Loader interface {
	Load(path string) ([]Segment, error)
}

// FileLoader is the default Loader, dispatching on file extension.
type FileLoader struct{}

// New returns a FileLoader.
func New() *FileLoader {
	return &FileLoader{}
}

// extracted is the text of one segment before metadata is attached.
type extracted struct {
	text string
	page int
}

// Load extracts the segments of path. It returns *UnsupportedFormatError for
// unknown extensions and *LoadError when the file cannot be read or parsed.
// The modification time is read once and shared by every segment.
func (l *FileLoader) Load(path string) ([]Segment, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	if !info.Mode().IsRegular() {
		return nil, &LoadError{Path: path, Err: fmt.Errorf("not a regular file")}
	}
	modTime := info.ModTime()

	var parts []extracted
	switch format {
	case FormatPDF:
		parts, err = extractPDF(path)
	case FormatDOCX:
		parts, err = extractDOCX(path)
	case FormatTXT:
		parts, err = extractTXT(path)
	}
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}

	name := filepath.Base(path)
	segments := make([]Segment, 0, len(parts))
	for _, p := range parts {
		segments = append(segments, Segment{
			Text:         p.text,
			SourcePath:   path,
			DisplayName:  name,
			LastModified: modTime,
			Page:         p.page,
		})
	}
	return segments, nil
}
