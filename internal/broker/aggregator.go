package broker

import (
	"fmt"
	"strings"

	"github.com/hyperjump/shirabe/internal/models"
)

const (
	// SimpleBanner opens the combined answer of a simple query.
	SimpleBanner = "=== Combined Results from All Sources ===\n\n"
	// ComplexBanner opens the combined answer of a complex query.
	ComplexBanner = "=== Combined Results ===\n\n"
	// CachedPrefix opens an answer served from the cache.
	CachedPrefix = "Cached Result:\n"

	noResultsPrefix = "No valid results found, because:"
)

// NoSourcesMessage is the answer when selection yields no source.
const NoSourcesMessage = noResultsPrefix + " no sources were selected for this query."

// AggregateBatch formats the valid replies as labelled blocks in the declared
// order of sources, whatever order responses arrive in, and reports every
// source's outcome. blocks is empty when no reply is valid.
func AggregateBatch(sources []models.SourceDescriptor, responses []*models.SourceResponse) (blocks string, report models.DispatchReport) {
	byID := make(map[string]*models.SourceResponse, len(responses))
	for _, r := range responses {
		if r != nil {
			byID[r.SourceID] = r
		}
	}
	var parts []string
	for _, src := range sources {
		r, ok := byID[src.ID]
		if !ok {
			continue
		}
		report.Record(src.ID, r.Outcome, r.ElapsedMs)
		if r.Outcome == models.OutcomeOK {
			parts = append(parts, fmt.Sprintf("[%s Result]\n%s", src.Label, strings.TrimSpace(r.Text)))
		}
	}
	return strings.Join(parts, "\n\n"), report
}

// Diagnostic explains why a batch produced no valid reply.
func Diagnostic(sources []models.SourceDescriptor, report models.DispatchReport) string {
	labels := make(map[string]string, len(sources))
	for _, s := range sources {
		labels[s.ID] = s.Label
	}
	named := func(ids []string) string {
		out := make([]string, len(ids))
		for i, id := range ids {
			if l, ok := labels[id]; ok && l != "" {
				out[i] = l
			} else {
				out[i] = id
			}
		}
		return strings.Join(out, ", ")
	}

	var b strings.Builder
	b.WriteString(noResultsPrefix)
	if len(report.TimedOut) > 0 {
		b.WriteString("\n- timed out: " + named(report.TimedOut))
	}
	if len(report.Errored) > 0 {
		b.WriteString("\n- errored: " + named(report.Errored))
	}
	if len(report.Invalid) > 0 {
		b.WriteString("\n- filtered as invalid: " + named(report.Invalid))
	}
	if len(report.TimedOut)+len(report.Errored)+len(report.Invalid) == 0 {
		return NoSourcesMessage
	}
	return b.String()
}

// CombineSimple wraps the blocks of a simple query in its banner.
func CombineSimple(blocks string) string {
	return SimpleBanner + blocks
}

// CombineComplex wraps per-subquery answers, in subquery order, in the complex banner.
func CombineComplex(results []models.SubqueryResult) string {
	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = subqueryBlock(r.Text, r.Answer)
	}
	return ComplexBanner + strings.Join(parts, "\n\n")
}

func subqueryBlock(text, body string) string {
	return "• " + text + ":\n" + body
}
