// Package panel composes one history panel session: the REST client, the
// item cache, the fetch coalescer, the event bus, the item store and the
// history collection.
package panel

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"sync"

	"github.com/Project-Sylos/Chronicle/internal/cachefs"
	"github.com/Project-Sylos/Chronicle/internal/client"
	"github.com/Project-Sylos/Chronicle/internal/config"
	"github.com/Project-Sylos/Chronicle/internal/events"
	"github.com/Project-Sylos/Chronicle/internal/history"
	"github.com/Project-Sylos/Chronicle/internal/items"
	"github.com/Project-Sylos/Chronicle/internal/logging"
	"github.com/Project-Sylos/Chronicle/internal/metrics"
	"github.com/Project-Sylos/Chronicle/internal/queue"
	"github.com/Project-Sylos/Chronicle/internal/store"
	"github.com/Project-Sylos/Chronicle/internal/types"
)

// Panel is one session's client-side history state
type Panel struct {
	cfg         *types.Config
	client      *client.Client
	cache       store.Store
	bus         *events.Broadcaster
	items       *items.Store
	histories   *history.HistoryCollection
	historyOpts history.Options

	mu      sync.Mutex
	watched map[string]*history.History
	closed  bool
}

// Option customizes a Panel
type Option func(*settings)

type settings struct {
	scheduler  history.Scheduler
	httpClient *http.Client
}

// WithScheduler replaces the timer used by refresh loops
func WithScheduler(s history.Scheduler) Option {
	return func(o *settings) { o.scheduler = s }
}

// WithHTTPClient replaces the HTTP client used for the REST API
func WithHTTPClient(c *http.Client) Option {
	return func(o *settings) { o.httpClient = c }
}

// New creates a panel from a config file
func New(configPath string, opts ...Option) (*Panel, error) {
	cfg, err := config.LoadFromFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return NewFromConfig(cfg, opts...)
}

// NewFromConfig creates a panel from a validated config
func NewFromConfig(cfg *types.Config, opts ...Option) (*Panel, error) {
	if cfg == nil {
		return nil, errors.New("configuration cannot be nil")
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	s := settings{scheduler: history.RealScheduler{}}
	for _, opt := range opts {
		opt(&s)
	}

	api := client.New(client.Config{
		BaseURL:    cfg.Server.BaseURL,
		APIKey:     cfg.Server.APIKey,
		Timeout:    config.Timeout(cfg),
		HTTPClient: s.httpClient,
	})

	cache, err := store.New(cfg.Cache)
	if err != nil {
		return nil, err
	}

	bus := events.NewBroadcaster()
	q := queue.New[items.Page]()
	q.OnSuperseded = metrics.RecordSuperseded
	itemStore := items.New(api, cache, q, items.NotifierFunc(func(historyID string) {
		bus.Publish(events.Event{Type: events.EventChangedItems, HistoryID: historyID})
	}))

	historyOpts := history.Options{
		API:         api,
		Bus:         bus,
		Scheduler:   s.scheduler,
		UpdateDelay: config.UpdateDelay(cfg),
		NewContents: func(historyID string) history.Contents {
			return history.NewHistoryContents(api, itemStore, historyID)
		},
	}

	histories, err := history.NewHistoryCollection(api, historyOpts, history.CollectionOptions{
		Order:             cfg.Collection.Order,
		LimitOnFirstFetch: cfg.Collection.LimitOnFirstFetch,
		LimitPerFetch:     cfg.Collection.LimitPerFetch,
		IncludeDeleted:    cfg.Collection.IncludeDeleted,
		CurrentHistoryID:  cfg.Collection.CurrentHistoryID,
	})
	if err != nil {
		cache.Close()
		return nil, err
	}

	logging.Named("panel").Info("panel session created",
		logging.String("base_url", cfg.Server.BaseURL),
		logging.String("cache_backend", cfg.Cache.Backend),
	)

	return &Panel{
		cfg:         cfg,
		client:      api,
		cache:       cache,
		bus:         bus,
		items:       itemStore,
		histories:   histories,
		historyOpts: historyOpts,
		watched:     make(map[string]*history.History),
	}, nil
}

// Config returns the session configuration
func (p *Panel) Config() *types.Config {
	return p.cfg
}

// Bus returns the session's event bus
func (p *Panel) Bus() *events.Broadcaster {
	return p.bus
}

// Client returns the REST client
func (p *Panel) Client() *client.Client {
	return p.client
}

// Histories returns the history collection
func (p *Panel) Histories() *history.HistoryCollection {
	return p.histories
}

// FetchHistoryItems fetches one contents page through the coalescer
func (p *Panel) FetchHistoryItems(ctx context.Context, req types.FetchItemsRequest) error {
	return p.items.FetchHistoryItems(ctx, req)
}

// GetHistoryItems returns the filtered, most-recent-first view of cached items
func (p *Panel) GetHistoryItems(req types.ItemsViewRequest) ([]types.Item, error) {
	return p.items.GetHistoryItems(req)
}

// History returns the history with id, fetching it if it is not in the collection
func (p *Panel) History(ctx context.Context, id string) (*history.History, error) {
	if id == "" {
		return nil, history.ErrNoID
	}
	if h, ok := p.histories.Get(id); ok {
		return h, nil
	}

	attrs := types.DefaultHistory()
	attrs.ID = id
	h := history.New(attrs, p.historyOpts)
	if err := h.Fetch(ctx); err != nil {
		return nil, err
	}
	p.histories.Add(h)
	return h, nil
}

// Watch loads a history's first contents page and starts its refresh loop.
// The loop runs until the history is ready, a request fails, ctx is done or
// Unwatch is called.
func (p *Panel) Watch(ctx context.Context, id string) (*history.History, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil, errors.New("panel is closed")
	}
	p.mu.Unlock()

	h, err := p.History(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := h.FetchContents(ctx); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.watched[id] = h
	p.mu.Unlock()

	if err := h.CheckForUpdates(ctx); err != nil {
		return nil, err
	}
	return h, nil
}

// Unwatch cancels a history's pending refresh
func (p *Panel) Unwatch(id string) {
	p.mu.Lock()
	h, ok := p.watched[id]
	delete(p.watched, id)
	p.mu.Unlock()
	if ok {
		h.ClearUpdateTimeout()
	}
}

// Watched returns the ids of watched histories
func (p *Panel) Watched() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	ids := make([]string, 0, len(p.watched))
	for id := range p.watched {
		ids = append(ids, id)
	}
	return ids
}

// GetTableInfo returns the cached item count per history
func (p *Panel) GetTableInfo() ([]types.TableInfo, error) {
	return p.cache.GetTableInfo()
}

// AsFS returns a read-only file system view of the item cache
func (p *Panel) AsFS() fs.FS {
	return cachefs.New(p.cache)
}

// Reset drops every cached item
func (p *Panel) Reset() error {
	return p.items.Reset()
}

// Close stops every refresh loop and closes the cache
func (p *Panel) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.watched = make(map[string]*history.History)
	p.mu.Unlock()

	for _, h := range p.histories.Models() {
		h.ClearUpdateTimeout()
	}
	p.histories.Close()
	return p.cache.Close()
}
