// Package config provides configuration loading and structs for the Shirabe broker.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug      bool             `yaml:"debug"`
	Server     ServerConfig     `yaml:"server"`
	Storage    StorageConfig    `yaml:"storage"`
	Cache      CacheConfig      `yaml:"cache"`
	Broker     BrokerConfig     `yaml:"broker"`
	Validation ValidationConfig `yaml:"validation"`
	Knowledge  KnowledgeConfig  `yaml:"knowledge"`
	Sources    []SourceConfig   `yaml:"sources"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the cache database and the history index.
type StorageConfig struct {
	CachePath        string `yaml:"cache_path"`
	HistoryIndexPath string `yaml:"history_index_path"`
}

// CacheConfig holds cache keying and retention settings. Zero limits mean unbounded.
type CacheConfig struct {
	KeyWithSubject bool `yaml:"key_with_subject"`
	MaxAgeHours    int  `yaml:"max_age_hours"`
	MaxEntries     int  `yaml:"max_entries"`
}

// MaxAge returns the configured entry lifetime, or 0 when entries never expire.
func (c *CacheConfig) MaxAge() time.Duration {
	return time.Duration(c.MaxAgeHours) * time.Hour
}

// BrokerConfig holds dispatch deadlines and context tracking settings.
type BrokerConfig struct {
	SimpleBatchTimeoutMs   int      `yaml:"simple_batch_timeout_ms"`
	SubqueryBatchTimeoutMs int      `yaml:"subquery_batch_timeout_ms"`
	MaxSubqueries          int      `yaml:"max_subqueries"`
	KnownSubjects          []string `yaml:"known_subjects"`
}

// SimpleBatchTimeout bounds the total wait for a simple query.
func (b *BrokerConfig) SimpleBatchTimeout() time.Duration {
	return time.Duration(b.SimpleBatchTimeoutMs) * time.Millisecond
}

// SubqueryBatchTimeout bounds the total wait for each subquery of a complex query.
func (b *BrokerConfig) SubqueryBatchTimeout() time.Duration {
	return time.Duration(b.SubqueryBatchTimeoutMs) * time.Millisecond
}

// ValidationConfig holds minimum reply lengths per source class.
type ValidationConfig struct {
	MinLength               int `yaml:"min_length"`
	MinLengthBook           int `yaml:"min_length_book"`
	MinLengthSnippet        int `yaml:"min_length_snippet"`
	MinLengthConversational int `yaml:"min_length_conversational"`
	SnippetMinLines         int `yaml:"snippet_min_lines"`
}

// KnowledgeConfig holds directories watched for knowledge-base JSON files.
type KnowledgeConfig struct {
	ImportDirs []string `yaml:"import_dirs"`
	Recursive  *bool    `yaml:"recursive"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (k *KnowledgeConfig) RecursiveOrDefault() bool {
	if k.Recursive != nil {
		return *k.Recursive
	}
	return true
}

// SourceConfig declares one source. The order of the sources list is the
// priority order of blocks in combined answers.
type SourceConfig struct {
	ID            string   `yaml:"id"`
	Label         string   `yaml:"label"`
	Kind          string   `yaml:"kind"`
	Class         string   `yaml:"class,omitempty"`
	Groups        []string `yaml:"groups"`
	Endpoint      string   `yaml:"endpoint,omitempty"`
	APIKey        string   `yaml:"api_key,omitempty"`
	APIKeyEnv     string   `yaml:"api_key_env,omitempty"`
	Model         string   `yaml:"model,omitempty"`
	TimeoutMs     int      `yaml:"timeout_ms,omitempty"`
	RatePerSecond float64  `yaml:"rate_per_second,omitempty"`
	Burst         int      `yaml:"burst,omitempty"`
	Disabled      bool     `yaml:"disabled,omitempty"`
	Text          string   `yaml:"text,omitempty"`
}

// Timeout returns the per-source reply deadline.
func (s *SourceConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

// ResolveAPIKey returns the inline key, or the value of APIKeyEnv when no inline key is set.
func (s *SourceConfig) ResolveAPIKey() string {
	if s.APIKey != "" {
		return s.APIKey
	}
	if s.APIKeyEnv != "" {
		return os.Getenv(s.APIKeyEnv)
	}
	return ""
}

// Load reads and parses the config file at path, applies defaults, expands paths and validates.
// Returns an error if the file cannot be read or parsed, or if validation fails.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.CachePath = expandPath(cfg.Storage.CachePath, configDir)
	cfg.Storage.HistoryIndexPath = expandPath(cfg.Storage.HistoryIndexPath, configDir)
	for i := range cfg.Knowledge.ImportDirs {
		cfg.Knowledge.ImportDirs[i] = expandPath(cfg.Knowledge.ImportDirs[i], configDir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Save writes the config to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

var validClasses = map[string]bool{
	"knowledge": true, "book": true, "calculator": true,
	"conversational": true, "search": true, "other": true,
}

var validGroups = map[string]bool{
	"base": true, "book": true, "math": true, "conversational": true,
	"excluded-from-specialty-expansion": true,
}

// Validate reports every problem found in cfg as one error.
func (cfg *Config) Validate() error {
	var result *multierror.Error
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("server.port %d out of range", cfg.Server.Port))
	}
	if cfg.Broker.SimpleBatchTimeoutMs <= 0 {
		result = multierror.Append(result, fmt.Errorf("broker.simple_batch_timeout_ms must be positive"))
	}
	if cfg.Broker.SubqueryBatchTimeoutMs <= 0 {
		result = multierror.Append(result, fmt.Errorf("broker.subquery_batch_timeout_ms must be positive"))
	}
	if cfg.Cache.MaxAgeHours < 0 || cfg.Cache.MaxEntries < 0 {
		result = multierror.Append(result, fmt.Errorf("cache limits must not be negative"))
	}
	seen := make(map[string]bool, len(cfg.Sources))
	for i, s := range cfg.Sources {
		if s.ID == "" {
			result = multierror.Append(result, fmt.Errorf("sources[%d]: id is required", i))
			continue
		}
		if seen[s.ID] {
			result = multierror.Append(result, fmt.Errorf("sources[%d]: duplicate id %q", i, s.ID))
		}
		seen[s.ID] = true
		if s.Kind == "" {
			result = multierror.Append(result, fmt.Errorf("source %q: kind is required", s.ID))
		}
		if !validClasses[s.Class] {
			result = multierror.Append(result, fmt.Errorf("source %q: unknown class %q", s.ID, s.Class))
		}
		for _, g := range s.Groups {
			if !validGroups[g] {
				result = multierror.Append(result, fmt.Errorf("source %q: unknown group %q", s.ID, g))
			}
		}
		if s.TimeoutMs <= 0 {
			result = multierror.Append(result, fmt.Errorf("source %q: timeout_ms must be positive", s.ID))
		}
	}
	return result.ErrorOrNil()
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
