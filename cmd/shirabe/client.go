package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hyperjump/shirabe/internal/cli"
	"github.com/hyperjump/shirabe/internal/config"
	"github.com/hyperjump/shirabe/internal/history"
	"github.com/hyperjump/shirabe/internal/models"
	"github.com/hyperjump/shirabe/internal/storage"
	"github.com/hyperjump/shirabe/internal/watcher"
)

// apiClient talks to a running shirabe server. Used instead of opening
// storage directly so the CLI does not fight the server for Bleve/SQLite locks.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(serverURL string) *apiClient {
	return &apiClient{
		baseURL: serverURL,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

// do sends body as JSON (when non-nil) and decodes the reply into out.
// Any status other than want is an error carrying the response body.
func (c *apiClient) do(method, path string, body, out interface{}, want int) error {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, c.baseURL+path, r)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *apiClient) ask(req *models.QueryRequest) (*models.QueryResponse, error) {
	var resp models.QueryResponse
	if err := c.do(http.MethodPost, "/api/v1/query", req, &resp, http.StatusOK); err != nil {
		return nil, err
	}
	return &resp, nil
}

type historyListResponse struct {
	Entries []*models.CacheEntry `json:"entries"`
	Total   int64                `json:"total"`
}

func (c *apiClient) history(offset, limit int) ([]*models.CacheEntry, int64, error) {
	v := url.Values{}
	v.Set("offset", strconv.Itoa(offset))
	v.Set("limit", strconv.Itoa(limit))
	var resp historyListResponse
	if err := c.do(http.MethodGet, "/api/v1/history?"+v.Encode(), nil, &resp, http.StatusOK); err != nil {
		return nil, 0, err
	}
	return resp.Entries, resp.Total, nil
}

type historySearchResponse struct {
	Hits       []*history.Hit `json:"hits"`
	DidYouMean string         `json:"did_you_mean"`
}

func (c *apiClient) searchHistory(q string, limit int, fuzzy bool) ([]*history.Hit, string, error) {
	v := url.Values{}
	v.Set("q", q)
	v.Set("limit", strconv.Itoa(limit))
	if fuzzy {
		v.Set("fuzzy", "true")
	}
	var resp historySearchResponse
	if err := c.do(http.MethodGet, "/api/v1/history/search?"+v.Encode(), nil, &resp, http.StatusOK); err != nil {
		return nil, "", err
	}
	return resp.Hits, resp.DidYouMean, nil
}

func (c *apiClient) deleteHistory(key string) error {
	return c.do(http.MethodDelete, "/api/v1/history/"+url.PathEscape(key), nil, nil, http.StatusOK)
}

func (c *apiClient) importKnowledge(path string) (*watcher.ImportResult, error) {
	var res watcher.ImportResult
	body := map[string]string{"path": path}
	if err := c.do(http.MethodPost, "/api/v1/knowledge/import", body, &res, http.StatusCreated); err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *apiClient) status() (*statusResponse, error) {
	var s statusResponse
	if err := c.do(http.MethodGet, "/api/v1/status", nil, &s, http.StatusOK); err != nil {
		return nil, err
	}
	return &s, nil
}

// statusConfigResponse holds configuration info returned by status.
type statusConfigResponse struct {
	CachePath              string `json:"cache_path,omitempty"`
	HistoryIndexPath       string `json:"history_index_path,omitempty"`
	SimpleBatchTimeoutMs   int    `json:"simple_batch_timeout_ms,omitempty"`
	SubqueryBatchTimeoutMs int    `json:"subquery_batch_timeout_ms,omitempty"`
	CacheKeyWithSubject    bool   `json:"cache_key_with_subject"`
}

// statusResponse is the shape of GET /api/v1/status response.
type statusResponse struct {
	UptimeSeconds        int64                 `json:"uptime_seconds,omitempty"`
	Sources              int                   `json:"sources"`
	CacheEntries         int64                 `json:"cache_entries"`
	HistoryDocuments     uint64                `json:"history_documents"`
	KnowledgeDirectories []string              `json:"knowledge_directories,omitempty"`
	DiskUsageBytes       *int64                `json:"disk_usage_bytes,omitempty"`
	Config               *statusConfigResponse `json:"config,omitempty"`
}

func localStatus(ctx context.Context, cfg *config.Config, c *Components) (statusResponse, error) {
	entries, err := c.Cache.Count(ctx)
	if err != nil {
		return statusResponse{}, fmt.Errorf("count cache entries: %w", err)
	}
	docs, err := c.History.DocCount()
	if err != nil {
		return statusResponse{}, fmt.Errorf("count history documents: %w", err)
	}
	status := statusResponse{
		Sources:              len(c.Registry.Descriptors()),
		CacheEntries:         entries,
		HistoryDocuments:     docs,
		KnowledgeDirectories: cfg.Knowledge.ImportDirs,
		Config: &statusConfigResponse{
			CachePath:              cfg.Storage.CachePath,
			HistoryIndexPath:       cfg.Storage.HistoryIndexPath,
			SimpleBatchTimeoutMs:   cfg.Broker.SimpleBatchTimeoutMs,
			SubqueryBatchTimeoutMs: cfg.Broker.SubqueryBatchTimeoutMs,
			CacheKeyWithSubject:    cfg.Cache.KeyWithSubject,
		},
	}
	paths := append(storage.CacheFiles(cfg.Storage.CachePath), cfg.Storage.HistoryIndexPath)
	if diskBytes, err := storage.DiskUsageBytes(paths...); err == nil {
		status.DiskUsageBytes = &diskBytes
	}
	return status, nil
}

func writeStatus(w io.Writer, status *statusResponse, format cli.OutputFormat) error {
	if format == cli.OutputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}
	if status.UptimeSeconds > 0 {
		fmt.Fprintf(w, "uptime_seconds:     %d\n", status.UptimeSeconds)
	}
	fmt.Fprintf(w, "sources:            %d   # registered sources\n", status.Sources)
	fmt.Fprintf(w, "cache_entries:      %d   # cached answers\n", status.CacheEntries)
	fmt.Fprintf(w, "history_documents:  %d   # searchable history entries\n", status.HistoryDocuments)
	if status.DiskUsageBytes != nil {
		fmt.Fprintf(w, "disk_usage_bytes:   %d   # cache + history index on disk\n", *status.DiskUsageBytes)
	}
	for _, dir := range status.KnowledgeDirectories {
		fmt.Fprintf(w, "knowledge_dir:      %s\n", dir)
	}
	if status.Config != nil {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "# configuration")
		if status.Config.CachePath != "" {
			fmt.Fprintf(w, "cache_path:         %s\n", status.Config.CachePath)
		}
		if status.Config.HistoryIndexPath != "" {
			fmt.Fprintf(w, "history_index_path: %s\n", status.Config.HistoryIndexPath)
		}
		if status.Config.SimpleBatchTimeoutMs > 0 {
			fmt.Fprintf(w, "simple_timeout_ms:  %d\n", status.Config.SimpleBatchTimeoutMs)
		}
		if status.Config.SubqueryBatchTimeoutMs > 0 {
			fmt.Fprintf(w, "subquery_timeout_ms: %d\n", status.Config.SubqueryBatchTimeoutMs)
		}
		fmt.Fprintf(w, "key_with_subject:   %t\n", status.Config.CacheKeyWithSubject)
	}
	return nil
}
