// Package vectordb persists chunk embeddings and answers similarity queries.
//
// Vectors live in a chromem-go collection. A SQLite record catalog holds one
// row per record and is the source of truth for which records exist: it is
// written after the vectors and read for snapshots, counts and tie-breaking.
package vectordb

import (
	"context"

	"github.com/ziadkadry99/docqa/internal/chunker"
)

// Index is the vector index consumed by the sync engine and the retrievers.
type Index interface {
	// SimilaritySearch returns at most k records ranked by cosine similarity
	// to query, most similar first. Ties keep insertion order.
	SimilaritySearch(ctx context.Context, query string, k int) ([]SearchResult, error)

	// AllMetadata returns the metadata of every stored record.
	AllMetadata(ctx context.Context) ([]chunker.Metadata, error)

	// DeleteWhere removes every record whose source path is in sourcePaths.
	// Failures are reported as *IndexDeleteError.
	DeleteWhere(ctx context.Context, sourcePaths []string) error

	// Insert embeds and stores chunks. Failures are reported as
	// *IndexWriteError.
	Insert(ctx context.Context, chunks []chunker.Chunk) error

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	Close() error
}
