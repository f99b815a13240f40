package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hyperjump/shirabe/internal/history"
	"github.com/hyperjump/shirabe/internal/models"
	"github.com/hyperjump/shirabe/internal/storage"
	"go.uber.org/zap"
)

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req models.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("query request", zap.String("query", req.Query), zap.Bool("no_cache", req.NoCache))
	resp, err := s.broker.Submit(r.Context(), &req)
	if err != nil {
		if errors.Is(err, models.ErrEmptyQuery) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("query failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSources(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"sources": s.broker.Sources()})
}

func (s *Server) handleHistoryList(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		s.respondError(w, http.StatusNotImplemented, "cache not enabled")
		return
	}
	offset := intParam(r, "offset", 0)
	limit := intParam(r, "limit", 20)
	entries, err := s.cache.List(r.Context(), offset, limit)
	if err != nil {
		s.logger.Error("history list failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	total, err := s.cache.Count(r.Context())
	if err != nil {
		s.logger.Error("history count failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"entries": entries,
		"total":   total,
		"offset":  offset,
		"limit":   limit,
	})
}

func (s *Server) handleHistorySearch(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.respondError(w, http.StatusNotImplemented, "history not enabled")
		return
	}
	q := r.URL.Query().Get("q")
	if q == "" {
		s.respondError(w, http.StatusBadRequest, "q is required")
		return
	}
	opts := &history.SearchOptions{Fuzzy: r.URL.Query().Get("fuzzy") == "true"}
	hits, err := s.history.Search(r.Context(), q, intParam(r, "limit", 10), opts)
	if err != nil {
		s.logger.Error("history search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{"query": q, "hits": hits}
	if len(hits) == 0 {
		if corrected, changed, err := s.history.Correct(q); err == nil && changed {
			resp["did_you_mean"] = corrected
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHistoryDelete(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		s.respondError(w, http.StatusNotImplemented, "cache not enabled")
		return
	}
	key, err := url.PathUnescape(chi.URLParam(r, "key"))
	if err != nil || key == "" {
		s.respondError(w, http.StatusBadRequest, "invalid key")
		return
	}
	s.logger.Debug("delete history request", zap.String("key", key))
	if err := s.cache.Delete(r.Context(), key); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "entry not found")
			return
		}
		s.logger.Error("deletion failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.history != nil {
		if err := s.history.Delete(key); err != nil {
			s.logger.Warn("history index delete failed", zap.String("key", key), zap.Error(err))
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"key": key, "status": "deleted"})
}

type importRequest struct {
	Path string `json:"path"`
}

func (s *Server) handleKnowledgeImport(w http.ResponseWriter, r *http.Request) {
	if s.importer == nil {
		s.respondError(w, http.StatusNotImplemented, "knowledge import not enabled")
		return
	}
	var req importRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	res, err := s.importer.ImportFile(r.Context(), req.Path)
	if err != nil {
		s.logger.Error("knowledge import failed", zap.String("path", req.Path), zap.Error(err))
		s.respondError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, res)
}

func (s *Server) handleKnowledgeExport(w http.ResponseWriter, r *http.Request) {
	if s.cache == nil {
		s.respondError(w, http.StatusNotImplemented, "cache not enabled")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := storage.ExportKnowledge(r.Context(), s.cache, w); err != nil {
		s.logger.Error("knowledge export failed", zap.Error(err))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	resp := map[string]interface{}{
		"uptime_seconds": int64(time.Since(s.startedAt).Seconds()),
		"sources":        len(s.broker.Sources()),
	}
	if s.cache != nil {
		n, err := s.cache.Count(ctx)
		if err != nil {
			s.logger.Error("status: count cache entries failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		resp["cache_entries"] = n
	}
	if s.history != nil {
		if n, err := s.history.DocCount(); err == nil {
			resp["history_documents"] = n
		}
	}
	if s.watch != nil {
		resp["knowledge_directories"] = s.watch.Directories()
	}
	if s.config != nil {
		paths := append(storage.CacheFiles(s.config.Storage.CachePath), s.config.Storage.HistoryIndexPath)
		if bytes, err := storage.DiskUsageBytes(paths...); err == nil {
			resp["disk_usage_bytes"] = bytes
		}
		resp["config"] = map[string]interface{}{
			"cache_path":                s.config.Storage.CachePath,
			"history_index_path":        s.config.Storage.HistoryIndexPath,
			"simple_batch_timeout_ms":   s.config.Broker.SimpleBatchTimeoutMs,
			"subquery_batch_timeout_ms": s.config.Broker.SubqueryBatchTimeoutMs,
			"cache_key_with_subject":    s.config.Cache.KeyWithSubject,
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func intParam(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
