package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	mcpserver "github.com/ziadkadry99/docqa/internal/mcp"
)

var serveNoAsk bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP server for AI agent integration",
	Long:  `Starts a Model Context Protocol (MCP) server on stdio, exposing document search, sync and question answering tools for AI agents.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// stdout carries the protocol; logs go to stderr.
		a, err := openApp(false)
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.engine.Sync(context.Background())
		if err != nil {
			return fmt.Errorf("initial sync: %w", err)
		}
		a.logger.Info("initial sync finished", zap.Stringer("report", report))

		var answerer mcpserver.Answerer
		if !serveNoAsk {
			assistant, err := a.assistant()
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: ask_documents disabled: %v\n", err)
			} else {
				answerer = assistant
			}
		}

		mcpserver.Version = Version

		fmt.Fprintf(os.Stderr, "docqa MCP server started on stdio (documents=%s)\n", a.engine.Root())

		srv := mcpserver.NewServer(a.engine, answerer)
		return srv.Serve()
	},
}

func init() {
	serveCmd.Flags().BoolVar(&serveNoAsk, "no-ask", false, "do not expose the ask_documents tool")
	rootCmd.AddCommand(serveCmd)
}
