package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/docqa/internal/vectordb"
)

var queryCmd = &cobra.Command{
	Use:   "query [text]",
	Short: "Semantically search the indexed documents",
	Long:  `Searches the vector index using natural language and prints the closest passages with their source file.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().Int("limit", 0, "maximum number of results (default: top_k from config)")
	queryCmd.Flags().Bool("json", false, "output results as JSON")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	queryText := args[0]

	limit, _ := cmd.Flags().GetInt("limit")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.Close()

	if limit <= 0 {
		limit = a.cfg.TopK
	}

	results, err := a.engine.Search(ctx, queryText, limit)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if jsonOutput {
		return printQueryResultsJSON(results)
	}

	if len(results) == 0 {
		fmt.Println("No results found. Run `docqa sync` to index the documents folder.")
		return nil
	}
	printQueryResultsTable(results)
	return nil
}

type queryResultJSON struct {
	Rank        int     `json:"rank"`
	Similarity  float64 `json:"similarity"`
	Source      string  `json:"source"`
	Path        string  `json:"path"`
	Page        int     `json:"page,omitempty"`
	StartOffset int     `json:"start_offset"`
	Text        string  `json:"text"`
}

func printQueryResultsJSON(results []vectordb.SearchResult) error {
	out := make([]queryResultJSON, 0, len(results))
	for i, r := range results {
		m := r.Chunk.Metadata
		out = append(out, queryResultJSON{
			Rank:        i + 1,
			Similarity:  float64(r.Similarity),
			Source:      m.DisplayName,
			Path:        m.SourcePath,
			Page:        m.Page,
			StartOffset: m.StartOffset,
			Text:        r.Chunk.Text,
		})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func printQueryResultsTable(results []vectordb.SearchResult) {
	fmt.Printf("Found %d results:\n\n", len(results))
	for i, r := range results {
		m := r.Chunk.Metadata
		location := m.DisplayName
		if m.Page > 0 {
			location = fmt.Sprintf("%s, page %d", location, m.Page)
		}

		fmt.Printf("  %d. [%.1f%%] %s\n", i+1, r.Similarity*100, location)
		fmt.Printf("     %s\n\n", truncate(r.Chunk.Text, 120))
	}
}

// truncate shortens s to max characters on a single line.
func truncate(s string, max int) string {
	runes := []rune(s)
	for i, r := range runes {
		if r == '\n' || r == '\r' || r == '\t' {
			runes[i] = ' '
		}
	}
	if len(runes) <= max {
		return string(runes)
	}
	return string(runes[:max]) + "..."
}
