package history

import (
	"context"
	"fmt"
	"sync"

	"github.com/Project-Sylos/Chronicle/internal/client"
	"github.com/Project-Sylos/Chronicle/internal/events"
	"github.com/Project-Sylos/Chronicle/internal/filter"
	"github.com/Project-Sylos/Chronicle/internal/logging"
	"github.com/Project-Sylos/Chronicle/internal/types"
)

// CollectionAPI is the part of the REST client the history collection uses
type CollectionAPI interface {
	API
	ListHistories(ctx context.Context, q types.HistoryQuery) ([]types.History, error)
	CreateNewCurrent(ctx context.Context) (*types.History, error)
}

// CollectionOptions configures a HistoryCollection
type CollectionOptions struct {
	Order             string
	LimitOnFirstFetch int
	LimitPerFetch     int
	IncludeDeleted    bool
	CurrentHistoryID  string
}

var searchable = filter.Search[*History]{
	Attributes: map[string]func(*History) []string{
		"name":       func(h *History) []string { return []string{h.Name()} },
		"annotation": func(h *History) []string { return []string{h.Attributes().Annotation} },
		"tags":       func(h *History) []string { return h.Attributes().Tags },
	},
	Aliases: map[string]string{"title": "name", "tag": "tags"},
}

// MatchesSearch reports whether every term of text matches the history's
// name, annotation or tags
func (h *History) MatchesSearch(text string) bool {
	return searchable.MatchesAll(h, text)
}

// HistoryComparators are the base comparators plus name and size orders
func HistoryComparators() map[string]Comparator[*History] {
	comparators := BaseComparators[*History]()
	name := func(h *History) string { return h.Name() }
	size := func(h *History) int64 { return h.Size() }
	comparators["name"] = ByKey(name, true)
	comparators["name-dsc"] = ByKey(name, false)
	comparators["size"] = ByKey(size, false)
	comparators["size-asc"] = ByKey(size, true)
	return comparators
}

// HistoryCollection is the user's ordered list of histories. The current
// history is kept at the front whenever the list is sorted.
type HistoryCollection struct {
	api        CollectionAPI
	bus        *events.Broadcaster
	newHistory func(types.History) *History
	models     *Collection[*History]
	unlisten   func()

	mu             sync.RWMutex
	currentID      string
	includeDeleted bool
}

// NewHistoryCollection creates an empty collection and subscribes it to the bus
func NewHistoryCollection(api CollectionAPI, historyOpts Options, opts CollectionOptions) (*HistoryCollection, error) {
	if historyOpts.Bus == nil {
		historyOpts.Bus = events.NewBroadcaster()
	}
	if historyOpts.API == nil {
		historyOpts.API = api
	}

	c := &HistoryCollection{
		api:            api,
		bus:            historyOpts.Bus,
		newHistory:     historyOpts.Factory(),
		currentID:      opts.CurrentHistoryID,
		includeDeleted: opts.IncludeDeleted,
	}

	models, err := NewCollection(CollectionConfig[*History]{
		Fetch:             c.fetchPage,
		Comparators:       HistoryComparators(),
		Order:             opts.Order,
		LimitOnFirstFetch: opts.LimitOnFirstFetch,
		LimitPerFetch:     opts.LimitPerFetch,
		View:              client.ViewDetailed,
		Filters:           c.fetchFilters,
	})
	if err != nil {
		return nil, err
	}
	c.models = models
	c.unlisten = c.bus.Listen(c.handleEvent)
	return c, nil
}

// Close detaches the collection from the bus
func (c *HistoryCollection) Close() {
	c.unlisten()
}

func (c *HistoryCollection) fetchFilters() map[string]string {
	if c.IncludeDeleted() {
		return nil
	}
	return map[string]string{
		"deleted": filter.BoolParam(false),
		"purged":  filter.BoolParam(false),
	}
}

// fetchPage lists histories, updating models already in the collection
func (c *HistoryCollection) fetchPage(ctx context.Context, q types.HistoryQuery) ([]*History, error) {
	page, err := c.api.ListHistories(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("failed to list histories: %w", err)
	}
	models := make([]*History, 0, len(page))
	for _, attrs := range page {
		models = append(models, c.modelFor(attrs))
	}
	return models, nil
}

// modelFor returns the model with attrs' id updated to attrs, or a new one
func (c *HistoryCollection) modelFor(attrs types.History) *History {
	if existing, ok := c.models.Get(attrs.ID); ok && attrs.ID != "" {
		existing.Set(attrs)
		return existing
	}
	return c.newHistory(attrs)
}

func (c *HistoryCollection) handleEvent(e events.Event) {
	switch e.Type {
	case events.EventChangeDeleted:
		if c.IncludeDeleted() {
			return
		}
		if h, ok := c.models.Get(e.HistoryID); ok && h.Deleted() {
			c.models.Remove(e.HistoryID)
		}
	case events.EventCopied:
		switch copied := e.Data.(type) {
		case *History:
			c.SetCurrent(copied)
		case types.History:
			c.SetCurrent(c.modelFor(copied))
		}
	case events.EventSetAsCurrent:
		c.mu.Lock()
		previous := c.currentID
		c.currentID = e.HistoryID
		c.mu.Unlock()
		c.bus.Publish(events.Event{Type: events.EventNoLongerCurrent, HistoryID: previous})
	}
}

// FetchFirst loads the first page and sorts
func (c *HistoryCollection) FetchFirst(ctx context.Context) ([]*History, error) {
	page, err := c.models.FetchFirst(ctx)
	if err != nil {
		return nil, err
	}
	c.Sort()
	return page, nil
}

// FetchMore loads the next page and sorts
func (c *HistoryCollection) FetchMore(ctx context.Context) ([]*History, error) {
	page, err := c.models.FetchMore(ctx)
	if err != nil {
		return nil, err
	}
	if len(page) > 0 {
		c.Sort()
	}
	return page, nil
}

// AllFetched reports whether every page has been loaded
func (c *HistoryCollection) AllFetched() bool {
	return c.models.AllFetched()
}

// Sort orders the histories with the current history pinned first
func (c *HistoryCollection) Sort() {
	c.models.Sort(c.CurrentID())
	c.bus.Publish(events.Event{Type: events.EventSort, Message: c.models.Order()})
}

// SetOrder switches the comparator and re-sorts
func (c *HistoryCollection) SetOrder(order string) error {
	if err := c.models.SetOrder(order); err != nil {
		return err
	}
	c.Sort()
	return nil
}

// Order returns the active comparator name
func (c *HistoryCollection) Order() string {
	return c.models.Order()
}

// Orders lists the comparator names
func (c *HistoryCollection) Orders() []string {
	return c.models.Orders()
}

// SetCurrent puts h at the front and records it as current
func (c *HistoryCollection) SetCurrent(h *History) {
	c.models.Unshift(h)
	c.mu.Lock()
	c.currentID = h.ID()
	c.mu.Unlock()

	logging.Named("history").Info("current history changed", logging.HistoryID(h.ID()))
	c.bus.Publish(events.Event{Type: events.EventNewCurrent, HistoryID: h.ID()})
}

// Create makes a new empty current history on the server
func (c *HistoryCollection) Create(ctx context.Context) (*History, error) {
	created, err := c.api.CreateNewCurrent(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create history: %w", err)
	}
	h := c.newHistory(*created)
	c.SetCurrent(h)
	return h, nil
}

// CurrentID returns the id of the current history
func (c *HistoryCollection) CurrentID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.currentID
}

// Current returns the current history if it is in the collection
func (c *HistoryCollection) Current() (*History, bool) {
	id := c.CurrentID()
	if id == "" {
		return nil, false
	}
	return c.models.Get(id)
}

// IncludeDeleted reports whether deleted histories are listed
func (c *HistoryCollection) IncludeDeleted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.includeDeleted
}

// SetIncludeDeleted toggles listing of deleted histories; takes effect on the next fetch
func (c *HistoryCollection) SetIncludeDeleted(include bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.includeDeleted = include
}

// Get returns the history with id
func (c *HistoryCollection) Get(id string) (*History, bool) {
	return c.models.Get(id)
}

// Add adds histories, replacing those with the same id
func (c *HistoryCollection) Add(histories ...*History) {
	c.models.Add(histories...)
}

// Remove drops the history with id
func (c *HistoryCollection) Remove(id string) (*History, bool) {
	return c.models.Remove(id)
}

// Models returns the histories in order
func (c *HistoryCollection) Models() []*History {
	return c.models.Models()
}

// Len returns the number of histories
func (c *HistoryCollection) Len() int {
	return c.models.Len()
}

// Search returns the histories matching text, in order
func (c *HistoryCollection) Search(text string) []*History {
	var matched []*History
	for _, h := range c.models.Models() {
		if h.MatchesSearch(text) {
			matched = append(matched, h)
		}
	}
	return matched
}

func (c *HistoryCollection) String() string {
	return fmt.Sprintf("HistoryCollection(%d,current:%s)", c.Len(), c.CurrentID())
}
