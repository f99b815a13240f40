package watcher

import (
	"context"
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/hyperjump/shirabe/internal/models"
	"github.com/hyperjump/shirabe/internal/storage"
	"go.uber.org/zap"
)

// HistoryIndexer receives every imported entry.
type HistoryIndexer interface {
	Index(entry *models.CacheEntry) error
}

// ImportResult summarizes one knowledge-base import.
type ImportResult struct {
	Path     string `json:"path"`
	Imported int    `json:"imported"`
	Skipped  int    `json:"skipped"`
}

// Importer loads knowledge-base files into the cache and the history index.
type Importer struct {
	store   storage.CacheStore
	history HistoryIndexer
	logger  *zap.Logger
}

// NewImporter creates an importer. history may be nil.
func NewImporter(store storage.CacheStore, history HistoryIndexer, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{store: store, history: history, logger: logger}
}

// ImportFile imports the knowledge base at path. Records with blank or
// error-marked responses are skipped, not failed.
func (im *Importer) ImportFile(ctx context.Context, path string) (*ImportResult, error) {
	entries, skipped, err := storage.ImportKnowledgeFile(ctx, im.store, path)
	res := &ImportResult{Path: path, Imported: len(entries), Skipped: skipped}
	if err != nil {
		return res, fmt.Errorf("import %s: %w", path, err)
	}
	if im.history != nil {
		var errs error
		for _, e := range entries {
			if ierr := im.history.Index(e); ierr != nil {
				errs = multierror.Append(errs, ierr)
			}
		}
		if errs != nil {
			return res, fmt.Errorf("index %s: %w", path, errs)
		}
	}
	return res, nil
}

// Handle imports path in the background of a watcher callback, logging the outcome.
func (im *Importer) Handle(path string) {
	res, err := im.ImportFile(context.Background(), path)
	if err != nil {
		im.logger.Warn("knowledge import failed", zap.String("path", path), zap.Error(err))
		return
	}
	im.logger.Info("knowledge imported",
		zap.String("path", path),
		zap.Int("imported", res.Imported),
		zap.Int("skipped", res.Skipped),
	)
}
