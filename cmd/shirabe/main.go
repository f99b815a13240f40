// Package main is the Shirabe CLI entry point.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/shirabe/internal/broker"
	"github.com/hyperjump/shirabe/internal/cli"
	"github.com/hyperjump/shirabe/internal/config"
	"github.com/hyperjump/shirabe/internal/history"
	"github.com/hyperjump/shirabe/internal/metrics"
	"github.com/hyperjump/shirabe/internal/models"
	"github.com/hyperjump/shirabe/internal/server"
	"github.com/hyperjump/shirabe/internal/sources"
	"github.com/hyperjump/shirabe/internal/storage"
	"github.com/hyperjump/shirabe/internal/watcher"
	"github.com/hyperjump/shirabe/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/shirabe/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, config.yaml in
// the current directory wins if present, and a missing default file yields the
// built-in defaults. Returns the config and the path actually loaded ("" for
// built-in defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			cfg := &config.Config{}
			config.ApplyDefaults(cfg)
			if err := cfg.Validate(); err != nil {
				return nil, "", err
			}
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ask":
		runAsk()
	case "history":
		runHistory()
	case "import":
		runImport()
	case "export":
		runExport()
	case "sources":
		runSources()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("shirabe version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (source replies, cache decisions, knowledge imports)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	watchSvc := watcher.NewWatcher(
		cfg.Knowledge.ImportDirs,
		cfg.Knowledge.RecursiveOrDefault(),
		components.Importer.Handle,
		watcher.WithLogger(logger),
	)
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if len(cfg.Knowledge.ImportDirs) > 0 {
		if err := watchSvc.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start knowledge watcher", zap.Error(err))
		}
		defer watchSvc.Stop()
		watchSvc.SyncExisting()
	}

	srv := server.NewServer(components.Broker, components.Cache, cfg, logger,
		server.WithHistory(components.History),
		server.WithImporter(components.Importer),
		server.WithWatch(watchSvc),
		server.WithMetrics(components.Metrics),
	)
	go func() {
		if err := srv.Start(); err != nil {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// printAskUsage prints ask subcommand usage.
func printAskUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: shirabe ask [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Questions joined by "and", commas or several question marks are split and answered part by part.
  • Use --no-cache to ask the sources again even when an answer is cached.
  • Use --verbose to see which sources answered, timed out, errored or were filtered.

Examples:
  shirabe ask who was Albert Einstein
  shirabe ask "Who was Albert Einstein and when was he born?"
  shirabe ask --output json what is 12 * 7
  shirabe ask --server "" --verbose capital of France   # no server needed
`)
}

// buildQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// argsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = answer in-process without a server)")
	noCache := fs.Bool("no-cache", false, "skip the cache lookup")
	verbose := fs.Bool("verbose", false, "print the per-source dispatch report")
	debug := fs.Bool("debug", false, "enable debug logging on stderr (direct mode)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() { printAskUsage(fs) }
	_ = fs.Parse(argsReorder(os.Args[2:]))

	queryStr := buildQuery(fs.Args())
	if queryStr == "" {
		printAskUsage(fs)
		os.Exit(1)
	}
	format := cli.ParseFormat(*outputFormat)
	req := &models.QueryRequest{Query: queryStr, NoCache: *noCache}

	var resp *models.QueryResponse
	if *serverURL != "" {
		// Use the HTTP API when the server is running (avoids Bleve/SQLite lock conflict).
		r, err := newAPIClient(*serverURL).ask(req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
			os.Exit(1)
		}
		resp = r
	} else {
		components, _, logger := directComponents(*configPath, *debug)
		defer logger.Sync()
		defer components.Close()
		r, err := components.Broker.Submit(context.Background(), req)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
			os.Exit(1)
		}
		resp = r
	}
	if err := cli.WriteAnswer(os.Stdout, resp, format, *verbose); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runHistory() {
	sub := "list"
	args := os.Args[2:]
	if len(args) > 0 && (args[0] == "list" || args[0] == "search" || args[0] == "delete") {
		sub, args = args[0], args[1:]
	}
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage)")
	limit := fs.Int("limit", 20, "number of entries")
	offset := fs.Int("offset", 0, "entries to skip (list)")
	fuzzy := fs.Bool("fuzzy", false, "typo-tolerant matching (search)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(argsReorder(args))
	format := cli.ParseFormat(*outputFormat)

	var client *apiClient
	var components *Components
	if *serverURL != "" {
		client = newAPIClient(*serverURL)
	} else {
		c, _, logger := directComponents(*configPath, false)
		defer logger.Sync()
		defer c.Close()
		components = c
	}
	ctx := context.Background()

	switch sub {
	case "list":
		var (
			entries []*models.CacheEntry
			total   int64
			err     error
		)
		if client != nil {
			entries, total, err = client.history(*offset, *limit)
		} else {
			entries, err = components.Cache.List(ctx, *offset, *limit)
			if err == nil {
				total, err = components.Cache.Count(ctx)
			}
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "History failed: %v\n", err)
			os.Exit(1)
		}
		_ = cli.WriteHistory(os.Stdout, entries, total, format)
	case "search":
		q := buildQuery(fs.Args())
		if q == "" {
			fmt.Println("Usage: shirabe history search [flags] <terms>")
			os.Exit(1)
		}
		var (
			hits       []*history.Hit
			suggestion string
			err        error
		)
		if client != nil {
			hits, suggestion, err = client.searchHistory(q, *limit, *fuzzy)
		} else {
			hits, err = components.History.Search(ctx, q, *limit, &history.SearchOptions{Fuzzy: *fuzzy})
			if err == nil && len(hits) == 0 {
				if corrected, changed, cerr := components.History.Correct(q); cerr == nil && changed {
					suggestion = corrected
				}
			}
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "History search failed: %v\n", err)
			os.Exit(1)
		}
		_ = cli.WriteHits(os.Stdout, q, hits, suggestion, format)
	case "delete":
		key := buildQuery(fs.Args())
		if key == "" {
			fmt.Println("Usage: shirabe history delete [flags] <key>")
			os.Exit(1)
		}
		var err error
		if client != nil {
			err = client.deleteHistory(key)
		} else if err = components.Cache.Delete(ctx, key); err == nil {
			err = components.History.Delete(key)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Delete failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Deleted: %s\n", key)
	}
}

func runImport() {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage)")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if fs.NArg() < 1 {
		fmt.Println("Usage: shirabe import [flags] <knowledge.json>...")
		os.Exit(1)
	}
	var importFile func(path string) (*watcher.ImportResult, error)
	if *serverURL != "" {
		client := newAPIClient(*serverURL)
		importFile = client.importKnowledge
	} else {
		components, _, logger := directComponents(*configPath, false)
		defer logger.Sync()
		defer components.Close()
		importFile = func(path string) (*watcher.ImportResult, error) {
			return components.Importer.ImportFile(context.Background(), path)
		}
	}

	failed := false
	for _, arg := range fs.Args() {
		path, _ := filepath.Abs(arg)
		res, err := importFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Import failed: %v\n", err)
			failed = true
			continue
		}
		fmt.Printf("Imported %d entr(ies) from %s (%d skipped)\n", res.Imported, path, res.Skipped)
	}
	if failed {
		os.Exit(1)
	}
}

func runExport() {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	out := fs.String("out", "", "output file (default: stdout)")
	_ = fs.Parse(os.Args[2:])

	components, _, logger := directComponents(*configPath, false)
	defer logger.Sync()
	defer components.Close()

	w := os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Export failed: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		w = f
	}
	n, err := storage.ExportKnowledge(context.Background(), components.Cache, w)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Export failed: %v\n", err)
		os.Exit(1)
	}
	if *out != "" {
		fmt.Printf("Exported %d entr(ies) to %s\n", n, *out)
	}
}

func runSources() {
	fs := flag.NewFlagSet("sources", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	reg, err := sources.NewRegistry(cfg.Sources)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid sources: %v\n", err)
		os.Exit(1)
	}
	_ = cli.WriteSources(os.Stdout, reg.Descriptors(), reg.Skipped(), cli.ParseFormat(*outputFormat))
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = use direct storage)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	var status statusResponse
	if *serverURL != "" {
		res, err := newAPIClient(*serverURL).status()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		status = *res
	} else {
		components, cfg, logger := directComponents(*configPath, false)
		defer logger.Sync()
		defer components.Close()
		var err error
		status, err = localStatus(context.Background(), cfg, components)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
	}
	if err := writeStatus(os.Stdout, &status, cli.ParseFormat(*outputFormat)); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// directComponents loads config and opens local storage for commands that run
// without a server. It exits on failure.
func directComponents(configPath string, debug bool) (*Components, *config.Config, *zap.Logger) {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewCLILogger(cfg.Debug || debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	components, err := initializeComponents(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	return components, cfg, logger
}

// Components holds initialized services.
type Components struct {
	Cache    *storage.SQLiteCache
	History  *history.Index
	Registry *sources.Registry
	Metrics  *metrics.Metrics
	Broker   *broker.Broker
	Importer *watcher.Importer
}

func (c *Components) Close() {
	if c.Cache != nil {
		_ = c.Cache.Close()
	}
	if c.History != nil {
		_ = c.History.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	for _, p := range []string{cfg.Storage.CachePath, cfg.Storage.HistoryIndexPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	hist, err := history.NewIndex(cfg.Storage.HistoryIndexPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize history index: %w", err)
	}
	cache, err := storage.NewSQLiteCache(cfg.Storage.CachePath,
		storage.WithMaxAge(cfg.Cache.MaxAge()),
		storage.WithMaxEntries(cfg.Cache.MaxEntries),
		storage.WithEvictHook(func(key string) {
			if err := hist.Delete(key); err != nil {
				logger.Warn("history delete after eviction failed", zap.String("key", key), zap.Error(err))
			}
		}),
	)
	if err != nil {
		_ = hist.Close()
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}
	if err := syncHistory(context.Background(), cache, hist, logger); err != nil {
		logger.Warn("history sync failed", zap.Error(err))
	}

	reg, err := sources.NewRegistry(cfg.Sources, sources.WithLogger(logger))
	if err != nil {
		_ = cache.Close()
		_ = hist.Close()
		return nil, fmt.Errorf("failed to initialize sources: %w", err)
	}
	logger.Info("sources registered",
		zap.Int("count", len(reg.Descriptors())),
		zap.Strings("skipped", reg.Skipped()),
	)

	m := metrics.New()
	b := broker.New(reg, cache, cfg,
		broker.WithLogger(logger),
		broker.WithMetrics(m),
		broker.WithHistory(hist),
	)
	return &Components{
		Cache:    cache,
		History:  hist,
		Registry: reg,
		Metrics:  m,
		Broker:   b,
		Importer: watcher.NewImporter(cache, hist, logger),
	}, nil
}

// syncHistory rebuilds the history index from the cache when their sizes disagree.
func syncHistory(ctx context.Context, cache storage.CacheStore, hist *history.Index, logger *zap.Logger) error {
	cached, err := cache.Count(ctx)
	if err != nil {
		return err
	}
	indexed, err := hist.DocCount()
	if err != nil {
		return err
	}
	if uint64(cached) == indexed {
		return nil
	}
	entries, err := cache.Entries(ctx)
	if err != nil {
		return err
	}
	logger.Info("rebuilding history index", zap.Int64("cached", cached), zap.Uint64("indexed", indexed))
	return hist.Rebuild(ctx, entries)
}

func printUsage() {
	fmt.Println(`shirabe - Query broker that asks many sources and merges their answers

Usage:
  shirabe server [flags]                  Start the HTTP server
  shirabe ask [flags] <query>             Answer a query
  shirabe history [list|search|delete]    Browse, search or delete cached answers
  shirabe import [flags] <file.json>...   Import knowledge-base files into the cache
  shirabe export [flags]                  Export the cache as a knowledge-base file
  shirabe sources [flags]                 List configured sources in priority order
  shirabe status [flags]                  Show cache/history/source status
  shirabe version                         Show version
  shirabe help                            Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/shirabe/config.yaml)
  --debug            Enable debug logging (source replies, cache decisions, knowledge imports)

Ask Flags:
  --server string    Server URL (default: http://localhost:8080). Use --server "" to answer in-process.
  --config string    Config file path (in-process mode)
  --no-cache         Skip the cache lookup
  --verbose          Print which sources answered, timed out, errored or were filtered
  --output string    Output format: text or json (default: text)

History Flags:
  --server string    Server URL (default: http://localhost:8080). Use --server "" for direct storage.
  --limit int        Number of entries (default: 20)
  --offset int       Entries to skip when listing
  --fuzzy            Typo-tolerant search
  --output string    Output format: text or json

Examples:
  shirabe server
  shirabe ask "Who was Albert Einstein and when was he born?"
  shirabe ask --server "" --verbose what is 2 + 2
  shirabe history search einstein
  shirabe history delete "what is 2 + 2"
  shirabe import ./knowledge_base.json
  shirabe export --out backup.json
  shirabe status --output json`)
}
