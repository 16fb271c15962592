package vectordb

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"

	"github.com/ziadkadry99/docqa/internal/chunker"
)

// Record is one stored chunk.
type Record struct {
	ID    string
	Seq   int64
	Chunk chunker.Chunk
}

// SearchResult pairs a record with its similarity to the query.
type SearchResult struct {
	Record
	Similarity float32
}

// RecordID derives the ID of a chunk from its source path, modification
// time, page and offset. Re-inserting an unchanged file yields the same IDs.
func RecordID(m chunker.Metadata) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%d\x00%d\x00%d", m.SourcePath, m.LastModified.UnixNano(), m.Page, m.StartOffset)
	return hex.EncodeToString(h.Sum(nil))[:32]
}

const (
	keySourcePath   = "source_path"
	keyDisplayName  = "display_name"
	keyLastModified = "last_modified"
	keyPage         = "page"
	keyStartOffset  = "start_offset"
)

// metadataToMap converts chunk metadata to the flat map chromem stores.
func metadataToMap(m chunker.Metadata) map[string]string {
	return map[string]string{
		keySourcePath:   m.SourcePath,
		keyDisplayName:  m.DisplayName,
		keyLastModified: strconv.FormatInt(m.LastModified.UnixNano(), 10),
		keyPage:         strconv.Itoa(m.Page),
		keyStartOffset:  strconv.Itoa(m.StartOffset),
	}
}

// mapToMetadata converts a flat chromem map back to chunk metadata.
func mapToMetadata(m map[string]string) chunker.Metadata {
	nanos, _ := strconv.ParseInt(m[keyLastModified], 10, 64)
	page, _ := strconv.Atoi(m[keyPage])
	offset, _ := strconv.Atoi(m[keyStartOffset])

	return chunker.Metadata{
		SourcePath:   m[keySourcePath],
		DisplayName:  m[keyDisplayName],
		LastModified: unixNano(nanos),
		Page:         page,
		StartOffset:  offset,
	}
}

func unixNano(n int64) time.Time {
	return time.Unix(0, n)
}
