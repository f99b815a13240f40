// Package broker answers free-text queries by fanning them out to sources,
// validating and combining the replies, and caching successful answers.
package broker

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/shirabe/internal/analysis"
	"github.com/hyperjump/shirabe/internal/config"
	"github.com/hyperjump/shirabe/internal/metrics"
	"github.com/hyperjump/shirabe/internal/models"
	"github.com/hyperjump/shirabe/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SourceSet is the declared, ordered set of sources the broker can consult.
type SourceSet interface {
	Descriptors() []models.SourceDescriptor
	Fetch(ctx context.Context, sourceID, query string) (string, error)
}

// HistoryIndexer receives every answer written to the cache.
type HistoryIndexer interface {
	Index(entry *models.CacheEntry) error
}

// Broker coordinates classification, dispatch, validation, aggregation and caching.
type Broker struct {
	sources    SourceSet
	cache      storage.CacheStore
	history    HistoryIndexer
	classifier *analysis.Classifier
	selector   *analysis.Selector
	dispatcher *Dispatcher
	validator  *Validator
	config     config.BrokerConfig
	keySubject bool
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// Option configures a Broker.
type Option func(*Broker)

// WithLogger sets the broker logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Broker) { b.logger = l }
}

// WithMetrics records source, cache and query outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Broker) { b.metrics = m }
}

// WithHistory indexes every cached answer in h.
func WithHistory(h HistoryIndexer) Option {
	return func(b *Broker) { b.history = h }
}

// New creates a broker. cache may be nil to disable caching.
func New(sources SourceSet, cache storage.CacheStore, cfg *config.Config, opts ...Option) *Broker {
	b := &Broker{
		sources:    sources,
		cache:      cache,
		classifier: analysis.NewClassifier(),
		selector:   analysis.NewSelector(sources.Descriptors()),
		validator:  NewValidator(cfg.Validation),
		config:     cfg.Broker,
		keySubject: cfg.Cache.KeyWithSubject,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.logger == nil {
		b.logger = zap.NewNop()
	}
	b.dispatcher = NewDispatcher(sources, b.logger)
	return b
}

// Sources returns the declared sources in priority order.
func (b *Broker) Sources() []models.SourceDescriptor {
	return b.sources.Descriptors()
}

// SubmitQuery answers text. It always returns explanatory text, never an empty string.
func (b *Broker) SubmitQuery(ctx context.Context, text string) string {
	resp, err := b.Submit(ctx, &models.QueryRequest{Query: text})
	if err != nil {
		return fmt.Sprintf("%s %v.", noResultsPrefix, err)
	}
	return resp.Answer
}

// subquery carries a subquery with the subject in effect when it was resolved.
type subquery struct {
	models.Subquery
	subject string
}

// Submit answers req. The only error returned is models.ErrEmptyQuery; source
// and cache failures are reported in the answer text and the per-subquery reports.
func (b *Broker) Submit(ctx context.Context, req *models.QueryRequest) (*models.QueryResponse, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	requestID := uuid.NewString()
	logger := b.logger.With(zap.String("request_id", requestID))

	// Context never outlives one top-level request.
	tracker := analysis.NewTracker(b.config.KnownSubjects)
	tracker.UpdateFromQuery(req.Query)
	class := b.classifier.Classify(req.Query, tracker)
	b.metrics.ObserveQuery(string(class))
	logger.Debug("query classified",
		zap.String("query", req.Query),
		zap.String("classification", string(class)),
		zap.String("cue", b.classifier.ComplexCue(req.Query, tracker)),
	)

	resp := &models.QueryResponse{
		RequestID:      requestID,
		Query:          req.Query,
		Classification: class,
	}
	if class == models.Simple {
		b.answerSimple(ctx, logger, tracker, req, resp)
	} else {
		b.answerComplex(ctx, logger, tracker, req, resp)
	}
	resp.QueryTime = time.Since(start).Milliseconds()
	logger.Info("query answered",
		zap.String("classification", string(class)),
		zap.Bool("cached", resp.Cached),
		zap.Int("subqueries", len(resp.Subqueries)),
		zap.Int64("query_time_ms", resp.QueryTime),
	)
	return resp, nil
}

func (b *Broker) answerSimple(ctx context.Context, logger *zap.Logger, tracker *analysis.Tracker, req *models.QueryRequest, resp *models.QueryResponse) {
	sq := subquery{
		Subquery: models.Subquery{Text: req.Query, Resolved: tracker.ResolvePronouns(req.Query)},
		subject:  tracker.Subject(),
	}
	result, blocks := b.runSimple(ctx, logger, tracker, sq, b.config.SimpleBatchTimeout(), req.NoCache)
	resp.Subqueries = []models.SubqueryResult{result}
	resp.Cached = result.Cached
	if blocks != "" {
		resp.Answer = CombineSimple(blocks)
	} else {
		resp.Answer = result.Answer
	}
}

func (b *Broker) answerComplex(ctx context.Context, logger *zap.Logger, tracker *analysis.Tracker, req *models.QueryRequest, resp *models.QueryResponse) {
	key := b.cacheKey(req.Query, tracker.Subject())
	if !req.NoCache {
		if entry, ok := b.lookup(ctx, logger, key); ok {
			resp.Cached = true
			resp.Answer = CachedPrefix + entry.Answer
			return
		}
	}

	parts := analysis.Decompose(req.Query)
	if limit := b.config.MaxSubqueries; limit > 0 && len(parts) > limit {
		logger.Warn("subqueries truncated", zap.Int("found", len(parts)), zap.Int("kept", limit))
		parts = parts[:limit]
	}

	// A subject named late in the query must not resolve pronouns in earlier
	// parts, so subjects are re-established part by part, in order.
	tracker.Reset()
	subs := make([]subquery, len(parts))
	for i, p := range parts {
		resolved := tracker.ResolvePronouns(p)
		tracker.UpdateFromQuery(resolved)
		subs[i] = subquery{
			Subquery: models.Subquery{Index: i, Text: p, Resolved: resolved},
			subject:  tracker.Subject(),
		}
	}

	results := make([]models.SubqueryResult, len(subs))
	contents := make([]string, len(subs))
	var g errgroup.Group
	for i, sq := range subs {
		i, sq := i, sq
		g.Go(func() error {
			result, blocks := b.runSimple(ctx, logger, tracker, sq, b.config.SubqueryBatchTimeout(), req.NoCache)
			results[i] = result
			switch {
			case blocks != "":
				contents[i] = blocks
			case result.Cached:
				contents[i] = strings.TrimPrefix(result.Answer, CachedPrefix)
			}
			return nil
		})
	}
	_ = g.Wait()

	resp.Subqueries = results
	resp.Answer = CombineComplex(results)

	var stored []string
	for i, c := range contents {
		if c != "" {
			stored = append(stored, subqueryBlock(subs[i].Text, c))
		}
	}
	if len(stored) > 0 {
		b.store(ctx, logger, key, req.Query, strings.Join(stored, "\n\n"))
	}
}

// runSimple answers one (sub)query. blocks holds the validated replies when
// any source answered; it is empty for cache hits and diagnostics.
func (b *Broker) runSimple(ctx context.Context, logger *zap.Logger, tracker *analysis.Tracker, sq subquery, batchTimeout time.Duration, noCache bool) (models.SubqueryResult, string) {
	result := models.SubqueryResult{Subquery: sq.Subquery}
	key := b.cacheKey(sq.Resolved, sq.subject)
	if !noCache {
		if entry, ok := b.lookup(ctx, logger, key); ok {
			result.Cached = true
			result.Answer = CachedPrefix + entry.Answer
			return result, ""
		}
	}

	selected := b.selector.Select(sq.Resolved)
	if len(selected) == 0 {
		logger.Warn("no sources selected", zap.String("query", sq.Resolved))
		result.Answer = NoSourcesMessage
		return result, ""
	}
	reqs := make([]SourceRequest, len(selected))
	for i, src := range selected {
		result.Sources = append(result.Sources, src.ID)
		reqs[i] = SourceRequest{Source: src, Query: analysis.Preprocess(sq.Resolved, src.Class)}
	}

	responses := b.dispatcher.Dispatch(ctx, reqs, batchTimeout)
	for i, r := range responses {
		if r.Outcome == models.OutcomeOK {
			outcome, reason := b.validator.Judge(r.Text, selected[i])
			if outcome != models.OutcomeOK {
				r.Outcome = outcome
				r.Err = reason
			} else {
				tracker.UpdateFromResponse(r.Text)
			}
		}
		b.metrics.ObserveSource(r.SourceID, string(r.Outcome), time.Duration(r.ElapsedMs)*time.Millisecond)
	}

	blocks, report := AggregateBatch(selected, responses)
	result.Report = report
	if blocks == "" {
		logger.Info("no valid results",
			zap.String("query", sq.Resolved),
			zap.Strings("timed_out", report.TimedOut),
			zap.Strings("errored", report.Errored),
			zap.Strings("invalid", report.Invalid),
		)
		result.Answer = Diagnostic(selected, report)
		return result, ""
	}
	result.Answer = blocks
	b.store(ctx, logger, key, sq.Resolved, blocks)
	return result, blocks
}

func (b *Broker) cacheKey(query, subject string) string {
	if !b.keySubject {
		subject = ""
	}
	return storage.CacheKey(query, subject)
}

// lookup reports a hit for key. Cache failures are logged and treated as misses.
func (b *Broker) lookup(ctx context.Context, logger *zap.Logger, key string) (*models.CacheEntry, bool) {
	if b.cache == nil {
		return nil, false
	}
	entry, err := b.cache.Lookup(ctx, key)
	switch {
	case err == nil:
		b.metrics.ObserveCache("hit")
		logger.Debug("cache hit", zap.String("key", key))
		return entry, true
	case errors.Is(err, storage.ErrNotFound):
		b.metrics.ObserveCache("miss")
	default:
		b.metrics.ObserveCache("error")
		logger.Warn("cache lookup failed", zap.String("key", key), zap.Error(err))
	}
	return nil, false
}

// store writes answer to the cache and history. Failures are logged, never returned.
func (b *Broker) store(ctx context.Context, logger *zap.Logger, key, query, answer string) {
	if b.cache == nil {
		return
	}
	entry := &models.CacheEntry{Key: key, Query: query, Answer: answer}
	ok, err := b.cache.Upsert(ctx, entry)
	if err != nil {
		logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
		return
	}
	if !ok {
		logger.Debug("cache write rejected", zap.String("key", key))
		return
	}
	if b.history != nil {
		if err := b.history.Index(entry); err != nil {
			logger.Warn("history index failed", zap.String("key", key), zap.Error(err))
		}
	}
}
