package sdk

import (
	"context"
	"fmt"
	"io/fs"

	"github.com/Project-Sylos/Chronicle/internal/config"
	"github.com/Project-Sylos/Chronicle/internal/events"
	"github.com/Project-Sylos/Chronicle/internal/history"
	"github.com/Project-Sylos/Chronicle/internal/panel"
	"github.com/Project-Sylos/Chronicle/internal/queue"
	"github.com/Project-Sylos/Chronicle/internal/types"
)

// Chronicle is the public SDK interface for one history panel session
// This wraps the internal implementation to provide a clean public API
type Chronicle struct {
	impl *panel.Panel
}

// New creates a new Chronicle session using the specified config file
func New(configPath string, opts ...Option) (*Chronicle, error) {
	impl, err := panel.New(configPath, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Chronicle: %w", err)
	}
	return &Chronicle{impl: impl}, nil
}

// NewFromConfig creates a new Chronicle session from an in-memory configuration
func NewFromConfig(cfg *Config, opts ...Option) (*Chronicle, error) {
	impl, err := panel.NewFromConfig(cfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Chronicle: %w", err)
	}
	return &Chronicle{impl: impl}, nil
}

// NewWithDefaults creates a session against baseURL using the default configuration
func NewWithDefaults(baseURL string, opts ...Option) (*Chronicle, error) {
	cfg := config.DefaultConfig()
	cfg.Server.BaseURL = baseURL
	return NewFromConfig(&cfg, opts...)
}

// Option customizes a session
type Option = panel.Option

var (
	// WithScheduler replaces the timer used by refresh loops
	WithScheduler = panel.WithScheduler
	// WithHTTPClient replaces the HTTP client used for the REST API
	WithHTTPClient = panel.WithHTTPClient
)

// Ping checks that the remote API answers
func (c *Chronicle) Ping(ctx context.Context) error {
	return c.impl.Client().Ping(ctx)
}

// FetchHistoryItems fetches one page of a history's contents into the cache.
// Returns ErrSuperseded when a newer fetch was issued before this one completed.
func (c *Chronicle) FetchHistoryItems(ctx context.Context, req FetchItemsRequest) error {
	return c.impl.FetchHistoryItems(ctx, req)
}

// GetHistoryItems returns the cached items of a history, filtered and most recent first
func (c *Chronicle) GetHistoryItems(req ItemsViewRequest) ([]Item, error) {
	return c.impl.GetHistoryItems(req)
}

// Histories returns the session's history collection
func (c *Chronicle) Histories() *HistoryCollection {
	return c.impl.Histories()
}

// History returns the history with id, fetching it when it is not loaded yet
func (c *Chronicle) History(ctx context.Context, id string) (*History, error) {
	return c.impl.History(ctx, id)
}

// Watch loads a history's contents and keeps refreshing them until the history is ready
func (c *Chronicle) Watch(ctx context.Context, id string) (*History, error) {
	return c.impl.Watch(ctx, id)
}

// Unwatch stops refreshing a history
func (c *Chronicle) Unwatch(id string) {
	c.impl.Unwatch(id)
}

// Watched returns the ids of the histories being refreshed
func (c *Chronicle) Watched() []string {
	return c.impl.Watched()
}

// Subscribe returns a channel receiving every event of the session.
// The caller must call Unsubscribe when done.
func (c *Chronicle) Subscribe() chan Event {
	return c.impl.Bus().Subscribe()
}

// Unsubscribe closes a channel returned by Subscribe
func (c *Chronicle) Unsubscribe(ch chan Event) {
	c.impl.Bus().Unsubscribe(ch)
}

// Listen calls fn synchronously for every event and returns a function removing it
func (c *Chronicle) Listen(fn func(Event)) func() {
	return c.impl.Bus().Listen(fn)
}

// GetConfig returns the current configuration
func (c *Chronicle) GetConfig() *Config {
	return c.impl.Config()
}

// GetTableInfo returns the number of cached items per history
func (c *Chronicle) GetTableInfo() ([]TableInfo, error) {
	return c.impl.GetTableInfo()
}

// AsFS returns the item cache as an fs.FS with one directory per history
// and one JSON file per item, e.g. "f2db41e1fa331b3e/12.json". Every Open
// reads the current cache.
func (c *Chronicle) AsFS() fs.FS {
	return c.impl.AsFS()
}

// Reset drops every cached item
func (c *Chronicle) Reset() error {
	return c.impl.Reset()
}

// Close stops all refresh loops and closes the item cache.
// Always call this method during shutdown.
func (c *Chronicle) Close() error {
	return c.impl.Close()
}

// Re-export types for convenience
type (
	Config            = types.Config
	Item              = types.Item
	HistoryAttributes = types.History
	ContentsActive    = types.ContentsActive
	User              = types.User
	TableInfo         = types.TableInfo
	APIResponse       = types.APIResponse

	History           = history.History
	HistoryCollection = history.HistoryCollection
	CopyOptions       = history.CopyOptions
	PollState         = history.PollState
	Scheduler         = history.Scheduler
	Timer             = history.Timer

	Event = events.Event
)

// Re-export request models
type (
	FetchItemsRequest = types.FetchItemsRequest
	ItemsViewRequest  = types.ItemsViewRequest
)

// Re-export constants
const (
	PollIdle             = history.PollIdle
	PollAwaitingContents = history.PollAwaitingContents
	PollAwaitingSummary  = history.PollAwaitingSummary
	PollReady            = history.PollReady

	EventChangedItems    = events.EventChangedItems
	EventReady           = events.EventReady
	EventError           = events.EventError
	EventCopied          = events.EventCopied
	EventSetAsCurrent    = events.EventSetAsCurrent
	EventNewCurrent      = events.EventNewCurrent
	EventNoLongerCurrent = events.EventNoLongerCurrent
	EventChangeDeleted   = events.EventChangeDeleted
	EventChangePurged    = events.EventChangePurged
	EventChangeName      = events.EventChangeName
	EventSort            = events.EventSort

	BackendMemory = types.BackendMemory
	BackendDuckDB = types.BackendDuckDB
)

// Re-export errors
var (
	ErrSuperseded = queue.ErrSuperseded
	ErrNoID       = history.ErrNoID
)
