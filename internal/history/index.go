// Package history keeps a full-text index of every cached answer so past
// queries can be searched by what was asked and what was answered.
package history

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	blevequery "github.com/blevesearch/bleve/v2/search/query"
	"github.com/hyperjump/shirabe/internal/models"
)

// Matches in the asked question outrank matches in the answer body.
const queryBoost = 3.0

// Hit is one history match.
type Hit struct {
	Key       string    `json:"key"`
	Query     string    `json:"query"`
	Score     float64   `json:"score"`
	CreatedAt time.Time `json:"created_at"`
}

// SearchOptions tunes history search. Nil means exact term matching.
type SearchOptions struct {
	Fuzzy     bool
	Fuzziness int
}

type document struct {
	Query     string    `json:"query"`
	Answer    string    `json:"answer"`
	CreatedAt time.Time `json:"created_at"`
}

// Index is a Bleve index of cache entries keyed by cache key.
type Index struct {
	index bleve.Index
}

// Standard analyzer: lowercase and tokenize, no stemming, so names match as typed.
func newMapping() *mapping.IndexMappingImpl {
	im := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()
	text := bleve.NewTextFieldMapping()
	text.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt("query", text)
	docMapping.AddFieldMappingsAt("answer", text)
	docMapping.AddFieldMappingsAt("created_at", bleve.NewDateTimeFieldMapping())
	im.AddDocumentMapping("entry", docMapping)
	im.DefaultType = "entry"
	im.DefaultMapping = docMapping
	return im
}

// NewIndex creates or opens the history index at path. An existing index is
// reused; remove the directory after changing the mapping.
func NewIndex(path string) (*Index, error) {
	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open history index: %w", openErr)
		}
		return &Index{index: index}, nil
	}
	index, err := bleve.New(path, newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create history index: %w", err)
	}
	return &Index{index: index}, nil
}

// NewMemoryIndex creates an index that lives only in memory.
func NewMemoryIndex() (*Index, error) {
	index, err := bleve.NewMemOnly(newMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create history index: %w", err)
	}
	return &Index{index: index}, nil
}

// Index adds or replaces the document for entry.
func (x *Index) Index(entry *models.CacheEntry) error {
	if entry == nil || entry.Key == "" {
		return fmt.Errorf("history entry has no key")
	}
	return x.index.Index(entry.Key, document{Query: entry.Query, Answer: entry.Answer, CreatedAt: entry.CreatedAt})
}

// Rebuild indexes entries in one batch, replacing documents with the same key.
func (x *Index) Rebuild(ctx context.Context, entries []*models.CacheEntry) error {
	batch := x.index.NewBatch()
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := batch.Index(e.Key, document{Query: e.Query, Answer: e.Answer, CreatedAt: e.CreatedAt}); err != nil {
			return fmt.Errorf("failed to batch %q: %w", e.Key, err)
		}
	}
	if err := x.index.Batch(batch); err != nil {
		return fmt.Errorf("failed to rebuild history index: %w", err)
	}
	return nil
}

// Search returns up to limit entries matching q, best first.
func (x *Index) Search(ctx context.Context, q string, limit int, opts *SearchOptions) ([]*Hit, error) {
	if limit <= 0 {
		limit = 10
	}
	fuzzy, fuzziness := false, 2
	if opts != nil {
		fuzzy = opts.Fuzzy
		if opts.Fuzziness > 0 {
			fuzziness = opts.Fuzziness
		}
	}

	req := bleve.NewSearchRequest(bleve.NewDisjunctionQuery(
		fieldQuery(q, "query", queryBoost, fuzzy, fuzziness),
		fieldQuery(q, "answer", 1, fuzzy, fuzziness),
	))
	req.Size = limit
	req.Fields = []string{"query", "created_at"}
	res, err := x.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("history search failed: %w", err)
	}

	out := make([]*Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hit := &Hit{Key: h.ID, Score: h.Score}
		if v, ok := h.Fields["query"].(string); ok {
			hit.Query = v
		}
		if v, ok := h.Fields["created_at"].(string); ok {
			hit.CreatedAt, _ = time.Parse(time.RFC3339, v)
		}
		out = append(out, hit)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out, nil
}

// fieldQuery matches q against field, term by term when fuzzy.
func fieldQuery(q, field string, boost float64, fuzzy bool, fuzziness int) blevequery.Query {
	terms := strings.Fields(strings.ToLower(q))
	if !fuzzy || len(terms) == 0 {
		mq := bleve.NewMatchQuery(q)
		mq.SetField(field)
		mq.SetBoost(boost)
		return mq
	}
	parts := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		fq.SetFuzziness(fuzziness)
		fq.SetField(field)
		fq.SetBoost(boost)
		parts = append(parts, fq)
	}
	return bleve.NewDisjunctionQuery(parts...)
}

// Delete removes the entry with key.
func (x *Index) Delete(key string) error {
	return x.index.Delete(key)
}

// DocCount returns the number of indexed entries.
func (x *Index) DocCount() (uint64, error) {
	return x.index.DocCount()
}

// Terms returns every distinct term in the query and answer fields.
func (x *Index) Terms() ([]string, error) {
	seen := make(map[string]struct{})
	var terms []string
	for _, field := range []string{"query", "answer"} {
		dict, err := x.index.FieldDict(field)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s terms: %w", field, err)
		}
		for {
			entry, err := dict.Next()
			if err != nil || entry == nil {
				break
			}
			if _, ok := seen[entry.Term]; !ok {
				seen[entry.Term] = struct{}{}
				terms = append(terms, entry.Term)
			}
		}
		_ = dict.Close()
	}
	return terms, nil
}

// Close closes the index.
func (x *Index) Close() error {
	return x.index.Close()
}
