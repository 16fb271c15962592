package mcp

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/docqa/internal/chunker"
	"github.com/ziadkadry99/docqa/internal/syncer"
	"github.com/ziadkadry99/docqa/internal/vectordb"
)

// mockEngine implements Engine for testing.
type mockEngine struct {
	results  []vectordb.SearchResult
	report   *syncer.Report
	docs     []syncer.Document
	err      error
	gotLimit int
}

func (m *mockEngine) Search(_ context.Context, _ string, k int) ([]vectordb.SearchResult, error) {
	m.gotLimit = k
	if m.err != nil {
		return nil, m.err
	}
	if len(m.results) > k {
		return m.results[:k], nil
	}
	return m.results, nil
}

func (m *mockEngine) Sync(context.Context) (*syncer.Report, error) {
	return m.report, m.err
}

func (m *mockEngine) Documents(context.Context) ([]syncer.Document, error) {
	return m.docs, m.err
}

type mockAnswerer struct{}

func (mockAnswerer) Answer(_ context.Context, question string) (string, []vectordb.SearchResult, error) {
	return "It is $40.", []vectordb.SearchResult{result("invoice.pdf", "total $40", 2)}, nil
}

func result(name, text string, page int) vectordb.SearchResult {
	return vectordb.SearchResult{
		Record: vectordb.Record{Chunk: chunker.Chunk{
			Text:     text,
			Metadata: chunker.Metadata{SourcePath: "/docs/" + name, DisplayName: name, Page: page},
		}},
		Similarity: 0.9,
	}
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	var sb strings.Builder
	for _, c := range res.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	return sb.String()
}

func call(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func TestToolDefinitions(t *testing.T) {
	for _, tool := range []mcp.Tool{searchDocumentsTool, syncDocumentsTool, listDocumentsTool, askDocumentsTool} {
		assert.NotEmpty(t, tool.Name)
		assert.NotEmpty(t, tool.Description, tool.Name)
	}
	assert.Equal(t, []string{"query"}, searchDocumentsTool.InputSchema.Required)
}

func TestNewServer(t *testing.T) {
	srv := NewServer(&mockEngine{}, nil)
	require.NotNil(t, srv.mcp)
	assert.Nil(t, srv.answerer)
}

func TestHandleSearchDocuments(t *testing.T) {
	engine := &mockEngine{results: []vectordb.SearchResult{
		result("a.txt", "alpha text", 0),
		result("b.pdf", "beta text", 3),
	}}
	srv := NewServer(engine, nil)
	ctx := context.Background()

	t.Run("basic search", func(t *testing.T) {
		res, err := srv.handleSearchDocuments(ctx, call(map[string]any{"query": "alpha"}))
		require.NoError(t, err)
		require.False(t, res.IsError)

		text := resultText(t, res)
		assert.Contains(t, text, "Found 2 result(s)")
		assert.Contains(t, text, "File: /docs/b.pdf (page 3)")
		assert.Contains(t, text, "alpha text")
		assert.Equal(t, defaultLimit, engine.gotLimit)
	})

	t.Run("limit", func(t *testing.T) {
		res, err := srv.handleSearchDocuments(ctx, call(map[string]any{"query": "alpha", "limit": float64(1)}))
		require.NoError(t, err)
		assert.Contains(t, resultText(t, res), "Found 1 result(s)")
		assert.Equal(t, 1, engine.gotLimit)
	})

	t.Run("missing query", func(t *testing.T) {
		res, err := srv.handleSearchDocuments(ctx, call(map[string]any{}))
		require.NoError(t, err)
		assert.True(t, res.IsError)
	})

	t.Run("empty index", func(t *testing.T) {
		empty := NewServer(&mockEngine{}, nil)
		res, err := empty.handleSearchDocuments(ctx, call(map[string]any{"query": "anything"}))
		require.NoError(t, err)
		assert.False(t, res.IsError)
		assert.Contains(t, resultText(t, res), "sync_documents")
	})

	t.Run("search failure", func(t *testing.T) {
		failing := NewServer(&mockEngine{err: errors.New("embedder offline")}, nil)
		res, err := failing.handleSearchDocuments(ctx, call(map[string]any{"query": "x"}))
		require.NoError(t, err)
		assert.True(t, res.IsError)
	})
}

func TestHandleSyncDocuments(t *testing.T) {
	engine := &mockEngine{report: &syncer.Report{
		Added:  2,
		Failed: []syncer.FileFailure{{Path: "/docs/bad.pdf", Err: errors.New("malformed pdf")}},
	}}
	res, err := NewServer(engine, nil).handleSyncDocuments(context.Background(), call(nil))
	require.NoError(t, err)
	require.False(t, res.IsError)

	text := resultText(t, res)
	assert.Contains(t, text, "2 added, 0 modified, 0 deleted, 1 failed")
	assert.Contains(t, text, "/docs/bad.pdf: malformed pdf")

	failing := NewServer(&mockEngine{err: errors.New("delete failed")}, nil)
	res, err = failing.handleSyncDocuments(context.Background(), call(nil))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestHandleListDocuments(t *testing.T) {
	mtime := time.Date(2025, 5, 1, 9, 30, 0, 0, time.UTC)
	engine := &mockEngine{docs: []syncer.Document{
		{Name: "a.txt", Size: 10, ModTime: mtime, Supported: true, Indexed: true, Chunks: 2},
		{Name: "b.txt", Size: 20, ModTime: mtime, Supported: true},
		{Name: "c.png", Size: 30, ModTime: mtime},
	}}
	res, err := NewServer(engine, nil).handleListDocuments(context.Background(), call(nil))
	require.NoError(t, err)

	text := resultText(t, res)
	assert.Contains(t, text, "3 document(s)")
	assert.Contains(t, text, "a.txt (10 bytes, modified 2025-05-01 09:30): indexed, 2 chunk(s)")
	assert.Contains(t, text, "b.txt (20 bytes, modified 2025-05-01 09:30): not indexed")
	assert.Contains(t, text, "c.png (30 bytes, modified 2025-05-01 09:30): unsupported format")

	res, err = NewServer(&mockEngine{}, nil).handleListDocuments(context.Background(), call(nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, res), "empty")
}

func TestHandleAskDocuments(t *testing.T) {
	srv := NewServer(&mockEngine{}, mockAnswerer{})

	res, err := srv.handleAskDocuments(context.Background(), call(map[string]any{"question": "What is the total?"}))
	require.NoError(t, err)
	require.False(t, res.IsError)
	assert.Equal(t, "It is $40.\n\nSources: invoice.pdf", resultText(t, res))

	res, err = srv.handleAskDocuments(context.Background(), call(map[string]any{}))
	require.NoError(t, err)
	assert.True(t, res.IsError)
}
