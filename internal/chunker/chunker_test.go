package chunker

import (
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/docqa/internal/loader"
)

// numbered builds a text of n characters where neighbouring characters differ,
// so misplaced windows show up in comparisons.
func numbered(n int) string {
	var sb strings.Builder
	for i := 0; i < n; i++ {
		sb.WriteByte(byte('a' + i%26))
	}
	return sb.String()
}

func TestNew_Validation(t *testing.T) {
	_, err := New(0, 0)
	assert.Error(t, err)
	_, err = New(10, 10)
	assert.Error(t, err)
	_, err = New(10, -1)
	assert.Error(t, err)

	s, err := New(10, 3)
	require.NoError(t, err)
	assert.Equal(t, 10, s.Size())
	assert.Equal(t, 3, s.Overlap())
}

func TestSplitText_OverlapInvariant(t *testing.T) {
	s := Default()

	for _, n := range []int{513, 600, 768, 769, 1000, 1024, 4096, 5000} {
		text := numbered(n)

		var offsets []int
		var chunks []string
		for off, c := range s.SplitText(text) {
			offsets = append(offsets, off)
			chunks = append(chunks, c)
		}

		// ceil((L-256)/256) for L > 512.
		want := (n - 256 + 255) / 256
		require.Len(t, chunks, want, "length %d", n)
		assert.Equal(t, want, s.Count(n))

		for i, c := range chunks {
			assert.LessOrEqual(t, len(c), DefaultSize)
			assert.Equal(t, text[offsets[i]:offsets[i]+len(c)], c)
			if i > 0 {
				assert.Greater(t, offsets[i], offsets[i-1])
			}
			if i < len(chunks)-1 {
				assert.Len(t, c, DefaultSize)
				next := chunks[i+1]
				assert.Equal(t, c[len(c)-DefaultOverlap:], next[:DefaultOverlap],
					"chunk %d/%d of length %d does not overlap its successor", i, len(chunks), n)
			}
		}
		last := chunks[len(chunks)-1]
		assert.Equal(t, n, offsets[len(offsets)-1]+len(last), "last chunk must end at the text end")
	}
}

func TestSplitText_ShortAndEmpty(t *testing.T) {
	s := Default()

	empty := 0
	for range s.SplitText("") {
		empty++
	}
	assert.Zero(t, empty)
	assert.Zero(t, s.Count(0))

	for _, n := range []int{1, 100, 512} {
		var chunks []string
		for off, c := range s.SplitText(numbered(n)) {
			assert.Zero(t, off)
			chunks = append(chunks, c)
		}
		require.Len(t, chunks, 1)
		assert.Len(t, chunks[0], n)
	}
}

func TestSplitText_CountsRunes(t *testing.T) {
	s, err := New(4, 2)
	require.NoError(t, err)

	var chunks []string
	var offsets []int
	for off, c := range s.SplitText("héllo wörld") {
		chunks = append(chunks, c)
		offsets = append(offsets, off)
	}
	assert.Equal(t, []string{"héll", "llo ", "o wö", "wörl", "rld"}, chunks[:5])
	assert.Equal(t, []int{0, 2, 4, 6, 8}, offsets[:5])
}

func TestSplit_MetadataAndSegmentBoundaries(t *testing.T) {
	mtime := time.Date(2025, 1, 2, 3, 4, 5, 6, time.UTC)
	segments := []loader.Segment{
		{Text: numbered(600), SourcePath: "/docs/a.txt", DisplayName: "a.txt", LastModified: mtime},
		{Text: numbered(100), SourcePath: "/docs/b.pdf", DisplayName: "b.pdf", LastModified: mtime, Page: 3},
	}

	chunks := slices.Collect(Default().Split(segments))
	require.Len(t, chunks, 3)

	assert.Equal(t, "/docs/a.txt", chunks[0].Metadata.SourcePath)
	assert.Equal(t, 0, chunks[0].Metadata.StartOffset)
	assert.Equal(t, "/docs/a.txt", chunks[1].Metadata.SourcePath)
	assert.Equal(t, 256, chunks[1].Metadata.StartOffset)
	assert.Len(t, chunks[1].Text, 600-256)

	b := chunks[2]
	assert.Equal(t, "/docs/b.pdf", b.Metadata.SourcePath)
	assert.Equal(t, "b.pdf", b.Metadata.DisplayName)
	assert.Equal(t, 3, b.Metadata.Page)
	assert.Equal(t, 0, b.Metadata.StartOffset)
	assert.True(t, b.Metadata.LastModified.Equal(mtime))
}

func TestSplit_Restartable(t *testing.T) {
	segments := []loader.Segment{{Text: numbered(2000), SourcePath: "x.txt"}}
	seq := Default().Split(segments)

	first := slices.Collect(seq)
	second := slices.Collect(seq)
	assert.Equal(t, first, second)

	// Stopping early must not panic or leak.
	count := 0
	for range seq {
		count++
		if count == 2 {
			break
		}
	}
	assert.Equal(t, 2, count)
}

func TestCollect(t *testing.T) {
	segments := []loader.Segment{{Text: numbered(1000), SourcePath: "x.txt"}}
	s := Default()
	assert.Equal(t, slices.Collect(s.Split(segments)), s.Collect(segments))
	assert.Empty(t, s.Collect(nil))
}
