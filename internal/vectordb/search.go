package vectordb

import (
	"fmt"
	"strings"
)

// FormatResults renders search results as human-readable text.
func FormatResults(results []SearchResult) string {
	if len(results) == 0 {
		return "No results found."
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d result(s):\n\n", len(results)))

	for i, r := range results {
		m := r.Chunk.Metadata
		sb.WriteString(fmt.Sprintf("--- Result %d (similarity: %.4f) ---\n", i+1, r.Similarity))

		location := m.DisplayName
		if m.Page > 0 {
			location += fmt.Sprintf(", page %d", m.Page)
		}
		sb.WriteString(fmt.Sprintf("Source: %s\n", location))
		sb.WriteString(fmt.Sprintf("Path: %s\n", m.SourcePath))

		sb.WriteString("\n")
		sb.WriteString(r.Chunk.Text)
		sb.WriteString("\n\n")
	}

	return sb.String()
}

// Sources returns the distinct display names of results in rank order.
func Sources(results []SearchResult) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range results {
		name := r.Chunk.Metadata.DisplayName
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}
