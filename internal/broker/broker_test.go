package broker

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/shirabe/internal/config"
	"github.com/hyperjump/shirabe/internal/metrics"
	"github.com/hyperjump/shirabe/internal/models"
	"github.com/hyperjump/shirabe/internal/sources"
	"github.com/hyperjump/shirabe/internal/storage"
	"go.uber.org/goleak"
)

// recorder answers every query and remembers what each source was asked.
type recorder struct {
	mu      sync.Mutex
	queries map[string][]string
}

func newRecorder() *recorder {
	return &recorder{queries: make(map[string][]string)}
}

func (r *recorder) connector(id string, answer func(q string) (string, error)) sources.Connector {
	return sources.Func(func(ctx context.Context, q string) (string, error) {
		r.mu.Lock()
		r.queries[id] = append(r.queries[id], q)
		r.mu.Unlock()
		return answer(q)
	})
}

func (r *recorder) asked(id string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.queries[id]...)
}

func (r *recorder) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, qs := range r.queries {
		n += len(qs)
	}
	return n
}

func echo(q string) (string, error) {
	return "Encyclopedia entry describing " + q + " in detail.", nil
}

func baseEntry(id, label string, c sources.Connector) sources.Entry {
	return sources.Entry{
		Descriptor: models.SourceDescriptor{
			ID: id, Label: label, Class: models.ClassKnowledge,
			Groups: []models.Group{models.GroupBase}, Timeout: time.Second,
		},
		Connector: c,
	}
}

// counterValue sums the samples of counter name carrying labelValue.
func counterValue(t *testing.T, m *metrics.Metrics, name, labelValue string) float64 {
	t.Helper()
	families, err := m.Gatherer().Gather()
	if err != nil {
		t.Fatal(err)
	}
	var sum float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, l := range metric.GetLabel() {
				if l.GetValue() == labelValue {
					sum += metric.GetCounter().GetValue()
				}
			}
		}
	}
	return sum
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Broker.SimpleBatchTimeoutMs = 2000
	cfg.Broker.SubqueryBatchTimeoutMs = 2000
	return cfg
}

func newTestCache(t *testing.T) *storage.SQLiteCache {
	t.Helper()
	c, err := storage.NewSQLiteCache(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestBroker_SimpleQueryIsCached(t *testing.T) {
	rec := newRecorder()
	reg := sources.NewStaticRegistry(
		baseEntry("wikipedia", "Wikipedia", rec.connector("wikipedia", echo)),
		baseEntry("wikidata", "Wikidata", rec.connector("wikidata", echo)),
	)
	cache := newTestCache(t)
	m := metrics.New()
	b := New(reg, cache, testConfig(), WithMetrics(m))
	ctx := context.Background()

	first, err := b.Submit(ctx, &models.QueryRequest{Query: "What is the capital of France?"})
	if err != nil {
		t.Fatal(err)
	}
	if first.Classification != models.Simple {
		t.Fatalf("classification = %s", first.Classification)
	}
	want := SimpleBanner +
		"[Wikipedia Result]\nEncyclopedia entry describing the capital of France in detail." +
		"\n\n[Wikidata Result]\nEncyclopedia entry describing the capital of France in detail."
	if first.Answer != want {
		t.Errorf("answer = %q, want %q", first.Answer, want)
	}
	if first.Cached {
		t.Error("first answer should not be cached")
	}
	calls := rec.calls()

	second, err := b.Submit(ctx, &models.QueryRequest{Query: "  what is the capital of  france? "})
	if err != nil {
		t.Fatal(err)
	}
	if !second.Cached || !strings.HasPrefix(second.Answer, CachedPrefix) {
		t.Fatalf("second answer not served from cache: %q", second.Answer)
	}
	if !strings.Contains(second.Answer, "[Wikipedia Result]") {
		t.Errorf("cached answer lost its blocks: %q", second.Answer)
	}
	if rec.calls() != calls {
		t.Errorf("sources called again on a cache hit")
	}
	if v := counterValue(t, m, "shirabe_cache_lookups_total", "hit"); v != 1 {
		t.Errorf("cache hits = %v, want 1", v)
	}

	n, err := cache.Count(ctx)
	if err != nil || n != 1 {
		t.Errorf("Count() = %d, %v, want 1", n, err)
	}
}

func TestBroker_NoCacheBypassesLookup(t *testing.T) {
	rec := newRecorder()
	reg := sources.NewStaticRegistry(baseEntry("wikipedia", "Wikipedia", rec.connector("wikipedia", echo)))
	b := New(reg, newTestCache(t), testConfig())
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		resp, err := b.Submit(ctx, &models.QueryRequest{Query: "What is Go?", NoCache: true})
		if err != nil {
			t.Fatal(err)
		}
		if resp.Cached {
			t.Fatalf("run %d served from cache", i)
		}
	}
	if got := len(rec.asked("wikipedia")); got != 2 {
		t.Errorf("wikipedia asked %d times, want 2", got)
	}
}

func TestBroker_PartialFailure(t *testing.T) {
	rec := newRecorder()
	reg := sources.NewStaticRegistry(
		baseEntry("wikipedia", "Wikipedia", rec.connector("wikipedia", echo)),
		baseEntry("broken", "Broken", rec.connector("broken", func(string) (string, error) {
			return "", errors.New("connection refused")
		})),
		baseEntry("rude", "Rude", rec.connector("rude", func(string) (string, error) {
			return "No result", nil
		})),
	)
	b := New(reg, nil, testConfig())

	resp, err := b.Submit(context.Background(), &models.QueryRequest{Query: "What is Go?"})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(resp.Answer, "[Broken Result]") || strings.Contains(resp.Answer, "[Rude Result]") {
		t.Errorf("failed sources leaked into answer: %q", resp.Answer)
	}
	if !strings.Contains(resp.Answer, "[Wikipedia Result]") {
		t.Errorf("valid source missing: %q", resp.Answer)
	}
	report := resp.Subqueries[0].Report
	if len(report.Errored) != 1 || report.Errored[0] != "broken" {
		t.Errorf("errored = %v", report.Errored)
	}
	if len(report.Invalid) != 1 || report.Invalid[0] != "rude" {
		t.Errorf("invalid = %v", report.Invalid)
	}
}

func TestBroker_NoValidResultsIsNotCached(t *testing.T) {
	reg := sources.NewStaticRegistry(
		baseEntry("broken", "Broken", sources.Func(func(context.Context, string) (string, error) {
			return "", errors.New("boom")
		})),
	)
	cache := newTestCache(t)
	b := New(reg, cache, testConfig())
	ctx := context.Background()

	resp, err := b.Submit(ctx, &models.QueryRequest{Query: "What is Go?"})
	if err != nil {
		t.Fatal(err)
	}
	want := "No valid results found, because:\n- errored: Broken"
	if resp.Answer != want {
		t.Errorf("answer = %q, want %q", resp.Answer, want)
	}
	if n, _ := cache.Count(ctx); n != 0 {
		t.Errorf("diagnostic was cached (%d entries)", n)
	}
}

func TestBroker_NoSourcesSelected(t *testing.T) {
	reg := sources.NewStaticRegistry(sources.Entry{
		Descriptor: models.SourceDescriptor{ID: "wolfram", Label: "Wolfram", Class: models.ClassCalculator, Groups: []models.Group{models.GroupMath}},
		Connector:  sources.Static("4"),
	})
	b := New(reg, nil, testConfig())
	if got := b.SubmitQuery(context.Background(), "Who wrote Hamlet?"); got != NoSourcesMessage {
		t.Errorf("SubmitQuery() = %q", got)
	}
}

func TestBroker_EmptyQuery(t *testing.T) {
	b := New(sources.NewStaticRegistry(), nil, testConfig())
	if _, err := b.Submit(context.Background(), &models.QueryRequest{Query: " \t"}); !errors.Is(err, models.ErrEmptyQuery) {
		t.Errorf("err = %v, want ErrEmptyQuery", err)
	}
	if got := b.SubmitQuery(context.Background(), ""); got != "No valid results found, because: query cannot be empty." {
		t.Errorf("SubmitQuery() = %q", got)
	}
}

func TestBroker_ComplexQuery(t *testing.T) {
	rec := newRecorder()
	reg := sources.NewStaticRegistry(baseEntry("wikipedia", "Wikipedia", rec.connector("wikipedia", echo)))
	cache := newTestCache(t)
	b := New(reg, cache, testConfig())
	ctx := context.Background()

	resp, err := b.Submit(ctx, &models.QueryRequest{Query: "Who was Albert Einstein and when was he born?"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Classification != models.Complex {
		t.Fatalf("classification = %s", resp.Classification)
	}
	if len(resp.Subqueries) != 2 {
		t.Fatalf("got %d subqueries", len(resp.Subqueries))
	}
	if got := resp.Subqueries[1].Resolved; got != "when was Albert Einstein born?" {
		t.Errorf("resolved = %q", got)
	}

	want := ComplexBanner +
		"• Who was Albert Einstein:\n[Wikipedia Result]\nEncyclopedia entry describing Albert Einstein in detail." +
		"\n\n• when was he born?:\n[Wikipedia Result]\nEncyclopedia entry describing Albert Einstein born in detail."
	if resp.Answer != want {
		t.Errorf("answer = %q\nwant   %q", resp.Answer, want)
	}

	again, err := b.Submit(ctx, &models.QueryRequest{Query: "Who was Albert Einstein and when was he born?"})
	if err != nil {
		t.Fatal(err)
	}
	if !again.Cached || !strings.HasPrefix(again.Answer, CachedPrefix+"• Who was Albert Einstein:") {
		t.Errorf("complex answer not cached as a whole: %q", again.Answer)
	}
}

func TestBroker_LaterSubjectDoesNotLeakBackwards(t *testing.T) {
	defer goleak.VerifyNone(t)
	rec := newRecorder()
	reg := sources.NewStaticRegistry(baseEntry("wikipedia", "Wikipedia", rec.connector("wikipedia", echo)))
	b := New(reg, nil, testConfig())

	resp, err := b.Submit(context.Background(), &models.QueryRequest{Query: "When was it built, and who designed Grace Hopper?"})
	if err != nil {
		t.Fatal(err)
	}
	if got := resp.Subqueries[0].Resolved; got != "When was it built" {
		t.Errorf("first part resolved to %q, want it untouched", got)
	}
}

func TestBroker_ContextIsRequestScoped(t *testing.T) {
	rec := newRecorder()
	reg := sources.NewStaticRegistry(baseEntry("wikipedia", "Wikipedia", rec.connector("wikipedia", echo)))
	b := New(reg, nil, testConfig())
	ctx := context.Background()

	if _, err := b.Submit(ctx, &models.QueryRequest{Query: "Who was Albert Einstein?"}); err != nil {
		t.Fatal(err)
	}
	resp, err := b.Submit(ctx, &models.QueryRequest{Query: "When was he born?"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Classification != models.Simple {
		t.Errorf("classification = %s, want simple", resp.Classification)
	}
	for _, q := range rec.asked("wikipedia") {
		if strings.Contains(q, "born") && strings.Contains(q, "Einstein") {
			t.Errorf("pronoun resolved across requests: %q", q)
		}
	}
}

// failingCache fails every operation.
type failingCache struct{}

var errDisk = errors.New("disk I/O error")

func (failingCache) Lookup(context.Context, string) (*models.CacheEntry, error) {
	return nil, errDisk
}

func (failingCache) Upsert(context.Context, *models.CacheEntry) (bool, error) {
	return false, errDisk
}

func (failingCache) Delete(context.Context, string) error {
	return errDisk
}

func (failingCache) List(context.Context, int, int) ([]*models.CacheEntry, error) {
	return nil, errDisk
}

func (failingCache) Entries(context.Context) ([]*models.CacheEntry, error) {
	return nil, errDisk
}

func (failingCache) Count(context.Context) (int64, error) {
	return 0, errDisk
}

func (failingCache) Close() error {
	return nil
}

func TestBroker_CacheFailuresAreSwallowed(t *testing.T) {
	reg := sources.NewStaticRegistry(baseEntry("wikipedia", "Wikipedia", sources.Func(func(_ context.Context, q string) (string, error) {
		return echo(q)
	})))
	m := metrics.New()
	b := New(reg, failingCache{}, testConfig(), WithMetrics(m))

	got := b.SubmitQuery(context.Background(), "What is Go?")
	if !strings.HasPrefix(got, SimpleBanner) {
		t.Errorf("SubmitQuery() = %q", got)
	}
	if v := counterValue(t, m, "shirabe_cache_lookups_total", "error"); v != 1 {
		t.Errorf("cache errors = %v, want 1", v)
	}
}

type historyRecorder struct {
	mu      sync.Mutex
	entries []*models.CacheEntry
}

func (h *historyRecorder) Index(e *models.CacheEntry) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries = append(h.entries, e)
	return nil
}

func TestBroker_IndexesCachedAnswers(t *testing.T) {
	reg := sources.NewStaticRegistry(baseEntry("wikipedia", "Wikipedia", sources.Func(func(_ context.Context, q string) (string, error) {
		return echo(q)
	})))
	h := &historyRecorder{}
	b := New(reg, newTestCache(t), testConfig(), WithHistory(h))

	b.SubmitQuery(context.Background(), "What is Go?")
	if len(h.entries) != 1 || h.entries[0].Key != "what is go?" {
		t.Fatalf("history entries = %+v", h.entries)
	}
}

func TestBroker_SubjectInCacheKey(t *testing.T) {
	reg := sources.NewStaticRegistry(baseEntry("wikipedia", "Wikipedia", sources.Func(func(_ context.Context, q string) (string, error) {
		return echo(q)
	})))
	cfg := testConfig()
	cfg.Cache.KeyWithSubject = true
	cache := newTestCache(t)
	b := New(reg, cache, cfg)
	ctx := context.Background()

	b.SubmitQuery(ctx, "Who was Albert Einstein?")
	if _, err := cache.Lookup(ctx, "who was albert einstein?|albert einstein"); err != nil {
		t.Errorf("Lookup() = %v", err)
	}
}
