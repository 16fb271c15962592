package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ziadkadry99/docqa/internal/vectordb"
)

const defaultLimit = 5

// handleSearchDocuments performs semantic search over the document index.
func (s *Server) handleSearchDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: query"), nil
	}

	limit := request.GetInt("limit", defaultLimit)
	if limit <= 0 {
		limit = defaultLimit
	}

	results, err := s.engine.Search(ctx, query, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}

	if len(results) == 0 {
		return mcp.NewToolResultText("No results found. The documents may not be indexed yet. Call sync_documents first."), nil
	}

	return mcp.NewToolResultText(formatSearchResults(results)), nil
}

// handleSyncDocuments runs a sync and reports what changed.
func (s *Server) handleSyncDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	report, err := s.engine.Sync(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("sync failed: %v", err)), nil
	}

	var sb strings.Builder
	sb.WriteString(report.String())
	sb.WriteString("\n")
	for _, f := range report.Failed {
		sb.WriteString(fmt.Sprintf("- failed: %s: %v\n", f.Path, f.Err))
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// handleListDocuments lists the documents folder.
func (s *Server) handleListDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	docs, err := s.engine.Documents(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("listing documents: %v", err)), nil
	}
	if len(docs) == 0 {
		return mcp.NewToolResultText("The documents folder is empty."), nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d document(s):\n", len(docs)))
	for _, d := range docs {
		state := "not indexed"
		switch {
		case !d.Supported:
			state = "unsupported format"
		case d.Indexed:
			state = fmt.Sprintf("indexed, %d chunk(s)", d.Chunks)
		}
		sb.WriteString(fmt.Sprintf("- %s (%d bytes, modified %s): %s\n",
			d.Name, d.Size, d.ModTime.Format("2006-01-02 15:04"), state))
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// handleAskDocuments answers a question from the documents.
func (s *Server) handleAskDocuments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: question"), nil
	}

	answer, results, err := s.answerer.Answer(ctx, question)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("answering question: %v", err)), nil
	}

	text := answer
	if sources := vectordb.Sources(results); len(sources) > 0 {
		text += "\n\nSources: " + strings.Join(sources, ", ")
	}
	return mcp.NewToolResultText(text), nil
}

// formatSearchResults converts search results into a rich text format optimized
// for AI agent consumption.
func formatSearchResults(results []vectordb.SearchResult) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d result(s):\n", len(results)))

	for i, r := range results {
		m := r.Chunk.Metadata
		sb.WriteString(fmt.Sprintf("\n--- Result %d ---\n", i+1))

		location := m.SourcePath
		if m.Page > 0 {
			location += fmt.Sprintf(" (page %d)", m.Page)
		}
		sb.WriteString(fmt.Sprintf("File: %s\n", location))
		sb.WriteString(fmt.Sprintf("Offset: %d\n", m.StartOffset))
		sb.WriteString(fmt.Sprintf("Similarity: %.1f%%\n", r.Similarity*100))

		// Content
		sb.WriteString("\n")
		sb.WriteString(r.Chunk.Text)
		sb.WriteString("\n")
	}

	return sb.String()
}
