package broker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hyperjump/shirabe/internal/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultSourceTimeout = 10 * time.Second

// Fetcher fetches an answer from a declared source.
type Fetcher interface {
	Fetch(ctx context.Context, sourceID, query string) (string, error)
}

// SourceRequest is one preprocessed query for one source.
type SourceRequest struct {
	Source models.SourceDescriptor
	Query  string
}

// Dispatcher fans a batch of source requests out concurrently.
type Dispatcher struct {
	fetcher Fetcher
	logger  *zap.Logger
}

// NewDispatcher creates a dispatcher over fetcher.
func NewDispatcher(fetcher Fetcher, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{fetcher: fetcher, logger: logger}
}

// Dispatch sends every request concurrently and returns one response per
// request, in request order. Each source is bounded by its own timeout and the
// whole batch by batchTimeout; sources that have not replied when the batch
// deadline passes are reported as timed out and their calls are cancelled.
// Replies are never validated here, so OutcomeOK only means a reply arrived.
func (d *Dispatcher) Dispatch(ctx context.Context, reqs []SourceRequest, batchTimeout time.Duration) []*models.SourceResponse {
	start := time.Now()
	batchCtx, cancel := context.WithTimeout(ctx, batchTimeout)
	defer cancel()

	var (
		mu      sync.Mutex
		closed  bool
		results = make([]*models.SourceResponse, len(reqs))
	)
	g, gctx := errgroup.WithContext(batchCtx)
	for i, req := range reqs {
		i, req := i, req
		g.Go(func() error {
			resp := d.fetchOne(gctx, req)
			mu.Lock()
			if !closed {
				results[i] = resp
			}
			mu.Unlock()
			return nil
		})
	}

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-batchCtx.Done():
	}
	cancel()

	mu.Lock()
	closed = true
	out := make([]*models.SourceResponse, len(results))
	copy(out, results)
	mu.Unlock()

	for i, resp := range out {
		if resp == nil {
			out[i] = &models.SourceResponse{
				SourceID:  reqs[i].Source.ID,
				Outcome:   models.OutcomeTimeout,
				Err:       "batch deadline exceeded",
				ElapsedMs: time.Since(start).Milliseconds(),
			}
		}
		d.logger.Debug("source reply",
			zap.String("source", out[i].SourceID),
			zap.String("outcome", string(out[i].Outcome)),
			zap.Int64("elapsed_ms", out[i].ElapsedMs),
			zap.String("error", out[i].Err),
		)
	}
	return out
}

func (d *Dispatcher) fetchOne(ctx context.Context, req SourceRequest) *models.SourceResponse {
	start := time.Now()
	timeout := req.Source.Timeout
	if timeout <= 0 {
		timeout = defaultSourceTimeout
	}
	sctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type reply struct {
		text string
		err  error
	}
	ch := make(chan reply, 1)
	go func() {
		text, err := d.fetcher.Fetch(sctx, req.Source.ID, req.Query)
		ch <- reply{text: text, err: err}
	}()

	resp := &models.SourceResponse{SourceID: req.Source.ID}
	select {
	case r := <-ch:
		switch {
		case r.err == nil:
			resp.Text = r.text
			resp.Outcome = models.OutcomeOK
		case errors.Is(r.err, context.DeadlineExceeded):
			resp.Err = r.err.Error()
			resp.Outcome = models.OutcomeTimeout
		default:
			resp.Err = r.err.Error()
			resp.Outcome = models.OutcomeError
		}
	case <-sctx.Done():
		// A connector that ignores cancellation must not hold the batch.
		resp.Err = sctx.Err().Error()
		resp.Outcome = models.OutcomeTimeout
		if errors.Is(sctx.Err(), context.Canceled) {
			resp.Outcome = models.OutcomeError
		}
	}
	resp.ElapsedMs = time.Since(start).Milliseconds()
	return resp
}
