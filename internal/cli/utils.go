// Package cli formats command output for the contentdb binary.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/hyperjump/contentdb/internal/models"
)

// OutputFormat selects how command results are written.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is indented JSON for other programs.
	OutputJSON OutputFormat = "json"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case OutputText, OutputJSON:
		return f, nil
	case "":
		return OutputText, nil
	default:
		return "", fmt.Errorf("unknown output format %q (want text or json)", s)
	}
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteRow writes the non-zero cells of a matrix row.
func WriteRow(w io.Writer, row *models.RowResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, row)
	}
	fmt.Fprintf(w, "Row %d: %d non-zero cells\n", row.ID, len(row.Cells))
	for _, c := range row.Cells {
		fmt.Fprintf(w, "  %6d  %-32s %.6g\n", c.Column, Truncate(c.Label, 32), c.Value)
	}
	return nil
}

// WriteCandidates writes the ids matching a candidate query.
func WriteCandidates(w io.Writer, resp *models.CandidatesResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "Found %d candidates in %dms", resp.Total, resp.QueryTime)
	if resp.Query != "" {
		fmt.Fprintf(w, " for %s", resp.Query)
	}
	fmt.Fprintln(w)
	if len(resp.IDs) > 0 {
		ids := make([]string, len(resp.IDs))
		for i, id := range resp.IDs {
			ids[i] = fmt.Sprint(id)
		}
		fmt.Fprintln(w, strings.Join(ids, " "))
	}
	return nil
}

// WriteSimilar writes ranked similarity or recommendation results.
func WriteSimilar(w io.Writer, resp *models.SimilarResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintf(w, "%d results for entity %d in %dms\n", len(resp.Results), resp.ID, resp.QueryTime)
	for _, r := range resp.Results {
		fmt.Fprintf(w, "  %3d. %-8d %.4f\n", r.Rank, r.ID, r.Score)
	}
	return nil
}

// WriteStatus writes database counts and disk usage.
func WriteStatus(w io.Writer, s *models.StatusResponse, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, s)
	}
	fmt.Fprintf(w, "Entities:   %d\n", s.Entities)
	fmt.Fprintf(w, "Sources:    %d\n", s.Sources)
	fmt.Fprintf(w, "Indexed:    %d\n", s.Indexed)
	fmt.Fprintf(w, "Vectors:    %d\n", s.Vectors)
	fmt.Fprintf(w, "Matrix:     %d x %d (%d segments)\n", s.Rows, s.Cols, s.Segments)
	fmt.Fprintf(w, "Disk usage: %s\n", FormatBytes(s.DiskUsageBytes))
	return nil
}

// FormatBytes renders n with a binary unit suffix.
func FormatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

// Truncate truncates s to maxLen runes and appends "..." if truncated.
func Truncate(s string, maxLen int) string {
	r := []rune(s)
	if maxLen <= 0 || len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen]) + "..."
}
