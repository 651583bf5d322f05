// Package cli provides CLI utilities for Tansa.
package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/okibi/tansa/internal/models"
)

// OutputFormat is the format for query result output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// WriteQueryResults writes query results to w in the given format.
// Use OutputJSON for parseable output consumable by other apps.
func WriteQueryResults(w io.Writer, response *models.QueryResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(response)
	default:
		writeQueryResultsText(w, response)
		return nil
	}
}

func writeQueryResultsText(w io.Writer, response *models.QueryResponse) {
	fmt.Fprintf(w, "\nFound %d matching documents\n\n", len(response.Sources))
	for i, src := range response.Sources {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "Rank: %d | Score: %.4f\n", i+1, src.Score)
		fmt.Fprintf(w, "Doc: %s (chunk id %d)\n", src.DocID, src.ChunkID)
		if len(src.Metadata) > 0 {
			if meta, err := json.Marshal(src.Metadata); err == nil {
				fmt.Fprintf(w, "Metadata: %s\n", meta)
			}
		}
		if src.Text != "" {
			fmt.Fprintf(w, "\n%s\n", Truncate(src.Text, 200))
		}
		fmt.Fprintln(w)
	}
}

// Truncate truncates s to maxLen and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
