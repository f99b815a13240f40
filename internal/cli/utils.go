// Package cli formats broker answers and history for the terminal.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/hyperjump/shirabe/internal/history"
	"github.com/hyperjump/shirabe/internal/models"
	"github.com/hyperjump/shirabe/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

// ParseFormat returns the format named s, defaulting to text.
func ParseFormat(s string) OutputFormat {
	if strings.EqualFold(s, string(OutputJSON)) {
		return OutputJSON
	}
	return OutputText
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteAnswer writes a query response. Text output is the answer followed by
// a one-line summary; verbose adds the per-subquery dispatch report.
func WriteAnswer(w io.Writer, resp *models.QueryResponse, format OutputFormat, verbose bool) error {
	if format == OutputJSON {
		return writeJSON(w, resp)
	}
	fmt.Fprintln(w, resp.Answer)
	fmt.Fprintln(w)
	cached := ""
	if resp.Cached {
		cached = ", cached"
	}
	fmt.Fprintf(w, "(%s query, %d part(s), %dms%s)\n", resp.Classification, len(resp.Subqueries), resp.QueryTime, cached)
	if !verbose {
		return nil
	}
	for _, sq := range resp.Subqueries {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "#%d %q", sq.Index+1, sq.Text)
		if sq.Resolved != sq.Text {
			fmt.Fprintf(w, " -> %q", sq.Resolved)
		}
		fmt.Fprintln(w)
		if sq.Cached {
			fmt.Fprintln(w, "  served from cache")
			continue
		}
		writeIDs(w, "valid", sq.Report.Valid, sq.Report.ElapsedMs)
		writeIDs(w, "timed out", sq.Report.TimedOut, sq.Report.ElapsedMs)
		writeIDs(w, "errored", sq.Report.Errored, sq.Report.ElapsedMs)
		writeIDs(w, "invalid", sq.Report.Invalid, sq.Report.ElapsedMs)
	}
	return nil
}

func writeIDs(w io.Writer, label string, ids []string, elapsed map[string]int64) {
	if len(ids) == 0 {
		return
	}
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%s (%dms)", id, elapsed[id])
	}
	fmt.Fprintf(w, "  %-10s %s\n", label+":", strings.Join(parts, ", "))
}

// WriteHistory writes cached entries, newest first as given.
func WriteHistory(w io.Writer, entries []*models.CacheEntry, total int64, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, map[string]interface{}{"entries": entries, "total": total})
	}
	fmt.Fprintf(w, "\n%d of %d cached answers\n\n", len(entries), total)
	for _, e := range entries {
		fmt.Fprintf(w, "─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(w, "%s  %s\n", e.CreatedAt.Local().Format(time.DateTime), e.Query)
		fmt.Fprintf(w, "Key: %s\n", e.Key)
		fmt.Fprintf(w, "\n%s\n\n", utils.Truncate(e.Answer, 200))
	}
	return nil
}

// WriteHits writes history search hits. suggestion is shown when non-empty.
func WriteHits(w io.Writer, q string, hits []*history.Hit, suggestion string, format OutputFormat) error {
	if format == OutputJSON {
		out := map[string]interface{}{"query": q, "hits": hits}
		if suggestion != "" {
			out["did_you_mean"] = suggestion
		}
		return writeJSON(w, out)
	}
	fmt.Fprintf(w, "\nFound %d past queries matching %q\n\n", len(hits), q)
	for i, h := range hits {
		fmt.Fprintf(w, "%2d. [%.3f] %s\n", i+1, h.Score, h.Query)
	}
	if len(hits) == 0 && suggestion != "" {
		fmt.Fprintf(w, "Did you mean: %s\n", suggestion)
	}
	return nil
}

// WriteSources writes the declared sources in priority order.
func WriteSources(w io.Writer, sources []models.SourceDescriptor, skipped []string, format OutputFormat) error {
	if format == OutputJSON {
		return writeJSON(w, map[string]interface{}{"sources": sources, "skipped": skipped})
	}
	for i, s := range sources {
		groups := make([]string, len(s.Groups))
		for j, g := range s.Groups {
			groups[j] = string(g)
		}
		fmt.Fprintf(w, "%d. %-14s %-16s class=%s groups=%s timeout=%s\n",
			i+1, s.ID, s.Label, s.Class, strings.Join(groups, ","), s.Timeout)
	}
	if len(skipped) > 0 {
		fmt.Fprintf(w, "\nSkipped (disabled or missing API key): %s\n", strings.Join(skipped, ", "))
	}
	return nil
}
