package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/shirabe/internal/models"
)

// SQLiteCache implements CacheStore on SQLite. Every entry is loaded into
// memory when the cache is opened; lookups read memory only and writes go
// through to the database before memory is updated.
type SQLiteCache struct {
	db         *sql.DB
	mu         sync.RWMutex
	entries    map[string]*models.CacheEntry
	maxAge     time.Duration
	maxEntries int
	onEvict    func(key string)
	now        func() time.Time
}

// CacheOption configures a SQLiteCache.
type CacheOption func(*SQLiteCache)

// WithMaxAge makes lookups treat entries older than d as missing. Zero disables expiry.
func WithMaxAge(d time.Duration) CacheOption {
	return func(c *SQLiteCache) { c.maxAge = d }
}

// WithMaxEntries deletes the oldest entries beyond n after each upsert. Zero disables eviction.
func WithMaxEntries(n int) CacheOption {
	return func(c *SQLiteCache) { c.maxEntries = n }
}

// WithEvictHook is called with the key of every entry removed by eviction.
func WithEvictHook(fn func(key string)) CacheOption {
	return func(c *SQLiteCache) { c.onEvict = fn }
}

// NewSQLiteCache opens or creates a SQLite cache at dbPath and loads all entries.
// Parent directories are created if they do not exist.
func NewSQLiteCache(dbPath string, opts ...CacheOption) (*SQLiteCache, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	c := &SQLiteCache{
		db:      db,
		entries: make(map[string]*models.CacheEntry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.load(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to load cache: %w", err)
	}
	return c, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS cache_entries (
		key TEXT PRIMARY KEY,
		query TEXT NOT NULL,
		answer TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cache_entries_created_at ON cache_entries(created_at);
	`
	_, err := db.Exec(schema)
	return err
}

func (c *SQLiteCache) load() error {
	rows, err := c.db.Query(`SELECT key, query, answer, created_at FROM cache_entries`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return err
		}
		c.entries[entry.Key] = entry
	}
	return rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (*models.CacheEntry, error) {
	var entry models.CacheEntry
	var createdMs int64
	if err := s.Scan(&entry.Key, &entry.Query, &entry.Answer, &createdMs); err != nil {
		return nil, fmt.Errorf("failed to scan cache entry: %w", err)
	}
	entry.CreatedAt = time.UnixMilli(createdMs)
	return &entry, nil
}

// Lookup returns a copy of the live entry for key from memory.
func (c *SQLiteCache) Lookup(ctx context.Context, key string) (*models.CacheEntry, error) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if c.maxAge > 0 && c.now().Sub(entry.CreatedAt) > c.maxAge {
		return nil, fmt.Errorf("%w: %s (expired)", ErrNotFound, key)
	}
	cp := *entry
	return &cp, nil
}

// Upsert writes entry through to the database and then to memory.
// Blank answers and answers carrying error markers are rejected.
func (c *SQLiteCache) Upsert(ctx context.Context, entry *models.CacheEntry) (bool, error) {
	if strings.TrimSpace(entry.Answer) == "" || ContainsErrorMarker(entry.Answer) {
		return false, nil
	}
	stored := *entry
	if stored.Key == "" {
		stored.Key = NormalizeKey(stored.Query)
	}
	if stored.Key == "" {
		return false, nil
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = c.now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO cache_entries (key, query, answer, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET query = excluded.query, answer = excluded.answer, created_at = excluded.created_at`,
		stored.Key, stored.Query, stored.Answer, stored.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to upsert cache entry: %w", err)
	}
	c.entries[stored.Key] = &stored
	entry.Key = stored.Key
	entry.CreatedAt = stored.CreatedAt

	if c.maxEntries > 0 && len(c.entries) > c.maxEntries {
		if err := c.evictLocked(ctx); err != nil {
			return true, err
		}
	}
	return true, nil
}

func (c *SQLiteCache) evictLocked(ctx context.Context) error {
	rows, err := c.db.QueryContext(ctx,
		`SELECT key FROM cache_entries ORDER BY created_at DESC, key LIMIT -1 OFFSET ?`, c.maxEntries)
	if err != nil {
		return fmt.Errorf("failed to select evictions: %w", err)
	}
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan eviction key: %w", err)
		}
		keys = append(keys, k)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	for _, k := range keys {
		if _, err := c.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, k); err != nil {
			return fmt.Errorf("failed to evict %s: %w", k, err)
		}
		delete(c.entries, k)
		if c.onEvict != nil {
			c.onEvict(k)
		}
	}
	return nil
}

// Delete removes the entry for key.
func (c *SQLiteCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, err := c.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete cache entry: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	delete(c.entries, key)
	return nil
}

// List returns entries newest first.
func (c *SQLiteCache) List(ctx context.Context, offset, limit int) ([]*models.CacheEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	rows, err := c.db.QueryContext(ctx,
		`SELECT key, query, answer, created_at FROM cache_entries ORDER BY created_at DESC, key LIMIT ? OFFSET ?`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list cache entries: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

// Entries returns every entry oldest first.
func (c *SQLiteCache) Entries(ctx context.Context) ([]*models.CacheEntry, error) {
	rows, err := c.db.QueryContext(ctx,
		`SELECT key, query, answer, created_at FROM cache_entries ORDER BY created_at ASC, key`)
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entries: %w", err)
	}
	defer rows.Close()
	return collectEntries(rows)
}

func collectEntries(rows *sql.Rows) ([]*models.CacheEntry, error) {
	var out []*models.CacheEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// Count returns the number of persisted entries.
func (c *SQLiteCache) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cache entries: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
