package config

// Default per-class source timeouts in milliseconds. Conversational sources get the longest.
var defaultClassTimeoutMs = map[string]int{
	"knowledge":      5000,
	"book":           5000,
	"search":         8000,
	"calculator":     10000,
	"conversational": 15000,
	"other":          5000,
}

var defaultKindClass = map[string]string{
	"wikipedia":    "knowledge",
	"duckduckgo":   "knowledge",
	"wikidata":     "knowledge",
	"googlebooks":  "book",
	"wolframalpha": "calculator",
	"langsearch":   "search",
	"openai":       "conversational",
	"static":       "other",
}

// DefaultSources returns the declared source list used when none is configured,
// in priority order.
func DefaultSources() []SourceConfig {
	return []SourceConfig{
		{ID: "wikipedia", Label: "Wikipedia", Kind: "wikipedia", Groups: []string{"base"}},
		{ID: "duckduckgo", Label: "DuckDuckGo", Kind: "duckduckgo", Groups: []string{"base"}},
		{ID: "googlebooks", Label: "BookSearch", Kind: "googlebooks", Groups: []string{"book"}},
		{
			ID: "openrouter", Label: "OpenRouter", Kind: "openai",
			Groups:    []string{"base", "conversational"},
			Endpoint:  "https://openrouter.ai/api/v1",
			APIKeyEnv: "OPENROUTER_API_KEY",
			Model:     "mistralai/mistral-7b-instruct",
		},
		{ID: "wikidata", Label: "Wikidata", Kind: "wikidata", Groups: []string{"base"}},
		{ID: "langsearch", Label: "LangSearch", Kind: "langsearch", Groups: []string{"base"}, APIKeyEnv: "LANGSEARCH_API_KEY"},
		{ID: "wolframalpha", Label: "WolframAlpha", Kind: "wolframalpha", Groups: []string{"math"}, APIKeyEnv: "WOLFRAM_APP_ID"},
	}
}

// DefaultKnownSubjects seeds the context tracker's proper-noun allow-list.
func DefaultKnownSubjects() []string {
	return []string{
		"Einstein", "Newton", "Darwin", "Curie", "Tesla", "Edison", "Galileo",
		"Shakespeare", "Napoleon", "Aristotle", "Plato", "Socrates", "Gandhi",
		"Lincoln", "Mozart", "Beethoven", "Picasso",
	}
}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Storage.CachePath == "" {
		cfg.Storage.CachePath = "/usr/local/var/shirabe/data/db/cache.db"
	}
	if cfg.Storage.HistoryIndexPath == "" {
		cfg.Storage.HistoryIndexPath = "/usr/local/var/shirabe/data/indices/history"
	}
	if cfg.Broker.SimpleBatchTimeoutMs == 0 {
		cfg.Broker.SimpleBatchTimeoutMs = 20000
	}
	if cfg.Broker.SubqueryBatchTimeoutMs == 0 {
		cfg.Broker.SubqueryBatchTimeoutMs = 15000
	}
	if cfg.Broker.MaxSubqueries == 0 {
		cfg.Broker.MaxSubqueries = 8
	}
	if cfg.Broker.KnownSubjects == nil {
		cfg.Broker.KnownSubjects = DefaultKnownSubjects()
	}
	if cfg.Validation.MinLength == 0 {
		cfg.Validation.MinLength = 10
	}
	if cfg.Validation.MinLengthBook == 0 {
		cfg.Validation.MinLengthBook = 20
	}
	if cfg.Validation.MinLengthSnippet == 0 {
		cfg.Validation.MinLengthSnippet = 30
	}
	if cfg.Validation.MinLengthConversational == 0 {
		cfg.Validation.MinLengthConversational = 50
	}
	if cfg.Validation.SnippetMinLines == 0 {
		cfg.Validation.SnippetMinLines = 3
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Knowledge.ImportDirs) > 0 && cfg.Knowledge.Recursive == nil {
		t := true
		cfg.Knowledge.Recursive = &t
	}
	if len(cfg.Sources) == 0 {
		cfg.Sources = DefaultSources()
	}
	for i := range cfg.Sources {
		applySourceDefaults(&cfg.Sources[i])
	}
}

func applySourceDefaults(s *SourceConfig) {
	if s.Label == "" {
		s.Label = s.ID
	}
	if s.Class == "" {
		if c, ok := defaultKindClass[s.Kind]; ok {
			s.Class = c
		} else {
			s.Class = "other"
		}
	}
	if s.TimeoutMs == 0 {
		if ms, ok := defaultClassTimeoutMs[s.Class]; ok {
			s.TimeoutMs = ms
		} else {
			s.TimeoutMs = 5000
		}
	}
	if s.RatePerSecond == 0 {
		s.RatePerSecond = 5
	}
	if s.Burst == 0 {
		s.Burst = 1
	}
}
