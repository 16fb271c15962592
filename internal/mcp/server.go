// Package mcp exposes the document index to AI agents over the Model
// Context Protocol.
package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"github.com/ziadkadry99/docqa/internal/syncer"
	"github.com/ziadkadry99/docqa/internal/vectordb"
)

// Version is set via ldflags at build time.
var Version = "dev"

// Engine is the part of the sync engine the tools use.
type Engine interface {
	Search(ctx context.Context, query string, k int) ([]vectordb.SearchResult, error)
	Sync(ctx context.Context) (*syncer.Report, error)
	Documents(ctx context.Context) ([]syncer.Document, error)
}

// Answerer answers a question from the indexed documents.
type Answerer interface {
	Answer(ctx context.Context, question string) (string, []vectordb.SearchResult, error)
}

// Server wraps an MCP server that exposes document search tools.
type Server struct {
	engine   Engine
	answerer Answerer
	mcp      *server.MCPServer
}

// NewServer creates a new MCP server. answerer may be nil, in which case
// the ask_documents tool is not offered.
func NewServer(engine Engine, answerer Answerer) *Server {
	s := &Server{
		engine:   engine,
		answerer: answerer,
	}

	s.mcp = server.NewMCPServer(
		"docqa",
		Version,
		server.WithToolCapabilities(false),
	)

	s.registerTools()

	return s
}

// registerTools adds all tool definitions and their handlers to the MCP server.
func (s *Server) registerTools() {
	s.mcp.AddTool(searchDocumentsTool, s.handleSearchDocuments)
	s.mcp.AddTool(syncDocumentsTool, s.handleSyncDocuments)
	s.mcp.AddTool(listDocumentsTool, s.handleListDocuments)
	if s.answerer != nil {
		s.mcp.AddTool(askDocumentsTool, s.handleAskDocuments)
	}
}

// Serve starts the MCP server on stdio. Stdout is used for MCP protocol
// messages; all logging must go to stderr.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}
