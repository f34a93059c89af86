// Package cli provides CLI output utilities for Rehydra.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/rehydra/rehydra/internal/models"
)

// OutputFormat is the format for CLI output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// WriteAnonymizeResult writes an anonymization result to w in the given
// format. JSON output carries the anonymized text and entity metadata but
// never the raw PII map.
func WriteAnonymizeResult(w io.Writer, sessionID string, result *models.DetectionResult, format OutputFormat) error {
	switch format {
	case OutputJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			SessionID string `json:"session_id"`
			*models.DetectionResult
		}{SessionID: sessionID, DetectionResult: result})
	default:
		writeAnonymizeResultText(w, sessionID, result)
		return nil
	}
}

func writeAnonymizeResultText(w io.Writer, sessionID string, result *models.DetectionResult) {
	fmt.Fprintf(w, "session: %s\n", sessionID)
	if result.ModelVersion != "" {
		fmt.Fprintf(w, "model:   %s\n", result.ModelVersion)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, result.AnonymizedText)
	if len(result.Entities) == 0 {
		return
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "%d entit%s found:\n", len(result.Entities), pluralY(len(result.Entities)))
	for _, e := range result.Entities {
		fmt.Fprintf(w, "  %-14s id=%-3d [%d:%d] %s\n",
			e.Type, e.ID, e.Start, e.End, Truncate(e.Text, 40))
	}
	counts := result.EntityCounts()
	types := make([]string, 0, len(counts))
	for t := range counts {
		types = append(types, t)
	}
	sort.Strings(types)
	parts := make([]string, 0, len(types))
	for _, t := range types {
		parts = append(parts, fmt.Sprintf("%s=%d", t, counts[t]))
	}
	fmt.Fprintf(w, "counts: %s\n", strings.Join(parts, " "))
}

func pluralY(n int) string {
	if n == 1 {
		return "y"
	}
	return "ies"
}

// Truncate truncates s to maxLen and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
