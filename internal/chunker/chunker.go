// Package chunker splits document segments into fixed-size overlapping chunks.
package chunker

import (
	"fmt"
	"iter"
	"slices"
	"time"

	"github.com/ziadkadry99/docqa/internal/loader"
)

const (
	DefaultSize    = 512
	DefaultOverlap = 256
)

// Metadata travels with a chunk into the vector index.
type Metadata struct {
	SourcePath   string
	DisplayName  string
	LastModified time.Time
	// Page is copied from the parent segment (1-based for PDFs, 0 otherwise).
	Page int
	// StartOffset is the character (rune) offset of the chunk in its segment.
	StartOffset int
}

// Chunk is a bounded substring of a segment, the unit stored and retrieved
// by the vector index.
type Chunk struct {
	Text     string
	Metadata Metadata
}

// Splitter cuts text into windows of Size characters, each starting
// Size-Overlap characters after the previous one.
type Splitter struct {
	size    int
	overlap int
}

// New returns a Splitter. overlap must be non-negative and smaller than size.
func New(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	return &Splitter{size: size, overlap: overlap}, nil
}

// Default returns a Splitter with DefaultSize and DefaultOverlap.
func Default() *Splitter {
	return &Splitter{size: DefaultSize, overlap: DefaultOverlap}
}

func (s *Splitter) Size() int    { return s.size }
func (s *Splitter) Overlap() int { return s.overlap }

// Split yields the chunks of every segment in order. Chunks never span two
// segments. The sequence is lazy and can be ranged over more than once.
func (s *Splitter) Split(segments []loader.Segment) iter.Seq[Chunk] {
	return func(yield func(Chunk) bool) {
		for _, seg := range segments {
			for offset, text := range s.SplitText(seg.Text) {
				c := Chunk{
					Text: text,
					Metadata: Metadata{
						SourcePath:   seg.SourcePath,
						DisplayName:  seg.DisplayName,
						LastModified: seg.LastModified,
						Page:         seg.Page,
						StartOffset:  offset,
					},
				}
				if !yield(c) {
					return
				}
			}
		}
	}
}

// Collect materialises Split(segments).
func (s *Splitter) Collect(segments []loader.Segment) []Chunk {
	return slices.Collect(s.Split(segments))
}

// SplitText yields (start offset, chunk text) pairs for a single text.
// Empty text yields nothing; text no longer than Size yields itself.
func (s *Splitter) SplitText(text string) iter.Seq2[int, string] {
	return func(yield func(int, string) bool) {
		runes := []rune(text)
		n := len(runes)
		if n == 0 {
			return
		}
		step := s.size - s.overlap
		for start := 0; ; start += step {
			end := min(start+s.size, n)
			if !yield(start, string(runes[start:end])) {
				return
			}
			if end == n {
				return
			}
		}
	}
}

// Count returns how many chunks SplitText yields for a text of n characters.
func (s *Splitter) Count(n int) int {
	if n <= 0 {
		return 0
	}
	if n <= s.size {
		return 1
	}
	step := s.size - s.overlap
	return (n - s.overlap + step - 1) / step
}
