package sources

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hyperjump/shirabe/internal/config"
	"github.com/hyperjump/shirabe/internal/models"
	"go.uber.org/zap"
)

// Kinds with a connector.
const (
	KindWikipedia    = "wikipedia"
	KindDuckDuckGo   = "duckduckgo"
	KindWikidata     = "wikidata"
	KindGoogleBooks  = "googlebooks"
	KindWolframAlpha = "wolframalpha"
	KindLangSearch   = "langsearch"
	KindOpenAI       = "openai"
	KindStatic       = "static"
)

var keyRequired = map[string]bool{
	KindWolframAlpha: true,
	KindLangSearch:   true,
	KindOpenAI:       true,
}

// Entry pairs a source descriptor with its connector.
type Entry struct {
	Descriptor models.SourceDescriptor
	Connector  Connector
}

// Registry holds the declared sources in priority order.
type Registry struct {
	entries []Entry
	byID    map[string]int
	skipped []string
	client  *http.Client
	logger  *zap.Logger
}

// RegistryOption configures a Registry built from configuration.
type RegistryOption func(*Registry)

// WithLogger sets a logger for registry construction messages.
func WithLogger(l *zap.Logger) RegistryOption {
	return func(r *Registry) { r.logger = l }
}

// WithHTTPClient sets the client shared by HTTP connectors.
func WithHTTPClient(c *http.Client) RegistryOption {
	return func(r *Registry) { r.client = c }
}

// NewRegistry builds connectors for every enabled source in cfgs, keeping their order.
// Sources whose kind needs an API key are skipped when none is configured.
func NewRegistry(cfgs []config.SourceConfig, opts ...RegistryOption) (*Registry, error) {
	r := &Registry{
		byID:   make(map[string]int),
		client: &http.Client{Timeout: 30 * time.Second},
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	for i := range cfgs {
		sc := &cfgs[i]
		if sc.Disabled {
			r.skip(sc.ID, "disabled")
			continue
		}
		key := sc.ResolveAPIKey()
		if keyRequired[sc.Kind] && key == "" {
			r.skip(sc.ID, "missing api key")
			continue
		}
		conn, err := r.newConnector(sc, key)
		if err != nil {
			return nil, fmt.Errorf("source %q: %w", sc.ID, err)
		}
		r.add(Entry{Descriptor: descriptorFromConfig(sc), Connector: conn})
	}
	return r, nil
}

// NewStaticRegistry builds a registry from ready-made entries, in the given order.
func NewStaticRegistry(entries ...Entry) *Registry {
	r := &Registry{byID: make(map[string]int), logger: zap.NewNop()}
	for _, e := range entries {
		r.add(e)
	}
	return r
}

func (r *Registry) add(e Entry) {
	r.byID[e.Descriptor.ID] = len(r.entries)
	r.entries = append(r.entries, e)
}

func (r *Registry) skip(id, reason string) {
	r.skipped = append(r.skipped, id)
	r.logger.Info("source skipped", zap.String("source", id), zap.String("reason", reason))
}

func descriptorFromConfig(sc *config.SourceConfig) models.SourceDescriptor {
	groups := make([]models.Group, 0, len(sc.Groups))
	for _, g := range sc.Groups {
		groups = append(groups, models.Group(g))
	}
	return models.SourceDescriptor{
		ID:      sc.ID,
		Label:   sc.Label,
		Kind:    sc.Kind,
		Class:   models.SourceClass(sc.Class),
		Groups:  groups,
		Timeout: sc.Timeout(),
	}
}

func (r *Registry) newConnector(sc *config.SourceConfig, key string) (Connector, error) {
	doer := newHTTPDoer(r.client, sc.RatePerSecond, sc.Burst, key)
	endpoint := func(def string) string {
		if sc.Endpoint != "" {
			return sc.Endpoint
		}
		return def
	}
	switch sc.Kind {
	case KindWikipedia:
		return &Wikipedia{endpoint: endpoint(defaultWikipediaEndpoint), http: doer}, nil
	case KindDuckDuckGo:
		return &DuckDuckGo{endpoint: endpoint(defaultDuckDuckGoEndpoint), http: doer}, nil
	case KindWikidata:
		return &Wikidata{endpoint: endpoint(defaultWikidataEndpoint), http: doer}, nil
	case KindGoogleBooks:
		return &GoogleBooks{endpoint: endpoint(defaultGoogleBooksEndpoint), apiKey: key, http: doer}, nil
	case KindWolframAlpha:
		return &WolframAlpha{endpoint: endpoint(defaultWolframAlphaEndpoint), appID: key, http: doer}, nil
	case KindLangSearch:
		return &LangSearch{endpoint: endpoint(defaultLangSearchEndpoint), http: doer}, nil
	case KindOpenAI:
		if sc.Endpoint == "" || sc.Model == "" {
			return nil, fmt.Errorf("openai kind needs endpoint and model")
		}
		return &Chat{endpoint: sc.Endpoint, model: sc.Model, http: doer}, nil
	case KindStatic:
		return Static(sc.Text), nil
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownKind, sc.Kind)
}

// Descriptors returns the declared sources in priority order.
func (r *Registry) Descriptors() []models.SourceDescriptor {
	out := make([]models.SourceDescriptor, len(r.entries))
	for i, e := range r.entries {
		out[i] = e.Descriptor
	}
	return out
}

// Descriptor returns the descriptor for id.
func (r *Registry) Descriptor(id string) (models.SourceDescriptor, bool) {
	i, ok := r.byID[id]
	if !ok {
		return models.SourceDescriptor{}, false
	}
	return r.entries[i].Descriptor, true
}

// Skipped returns the ids of configured sources that were not registered.
func (r *Registry) Skipped() []string {
	return append([]string(nil), r.skipped...)
}

// Fetch asks source id for an answer to query. Connector failures are
// reported as "error fetching from <label>".
func (r *Registry) Fetch(ctx context.Context, id, query string) (string, error) {
	i, ok := r.byID[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownSource, id)
	}
	e := r.entries[i]
	text, err := e.Connector.Fetch(ctx, query)
	if err != nil {
		return "", fmt.Errorf("error fetching from %s: %w", e.Descriptor.Label, err)
	}
	return text, nil
}
