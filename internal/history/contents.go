package history

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/Project-Sylos/Chronicle/internal/filter"
	"github.com/Project-Sylos/Chronicle/internal/items"
	"github.com/Project-Sylos/Chronicle/internal/logging"
	"github.com/Project-Sylos/Chronicle/internal/types"
)

// ContentsAPI is the part of the REST client the contents use
type ContentsAPI interface {
	ListContents(ctx context.Context, historyID string, query url.Values) ([]types.Item, time.Time, error)
}

// HistoryContents is the item list of one history, cached in the shared item store.
type HistoryContents struct {
	api   ContentsAPI
	items *items.Store

	mu             sync.RWMutex
	historyID      string
	includeDeleted bool
	includeHidden  bool
	allFetched     bool
}

// NewHistoryContents creates the contents of historyID
func NewHistoryContents(api ContentsAPI, store *items.Store, historyID string) *HistoryContents {
	return &HistoryContents{
		api:       api,
		items:     store,
		historyID: historyID,
	}
}

func (c *HistoryContents) HistoryID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.historyID
}

func (c *HistoryContents) SetHistoryID(historyID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.historyID = historyID
	c.allFetched = false
}

func (c *HistoryContents) IncludeDeleted() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.includeDeleted
}

func (c *HistoryContents) SetIncludeDeleted(include bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.includeDeleted = include
}

func (c *HistoryContents) IncludeHidden() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.includeHidden
}

func (c *HistoryContents) SetIncludeHidden(include bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.includeHidden = include
}

// AllFetched reports whether the last first-page fetch returned every item
func (c *HistoryContents) AllFetched() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.allFetched
}

// FetchUpdated fetches the contents updated at or after since and merges
// them. A zero since fetches the first page. Returns the server's time.
func (c *HistoryContents) FetchUpdated(ctx context.Context, since time.Time) (time.Time, error) {
	id := c.HistoryID()
	if id == "" {
		return time.Time{}, ErrNoID
	}

	var query url.Values
	if since.IsZero() {
		query = items.BaseQuery(0, items.PageSize)
	} else {
		query = items.BaseQuery(0, 0)
		query.Add("q", "update_time-ge")
		query.Add("qv", since.UTC().Format(types.TimestampLayout))
	}

	page, serverTime, err := c.api.ListContents(ctx, id, query)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to fetch updated contents of history %s: %w", id, err)
	}
	if err := c.items.Save(id, page); err != nil {
		return time.Time{}, err
	}

	c.mu.Lock()
	c.allFetched = false
	c.mu.Unlock()

	logging.WithContext(ctx).Named("history").Debug("fetched updated contents",
		logging.HistoryID(id),
		logging.Int("updated", len(page)),
	)
	return serverTime, nil
}

// FetchFirst fetches the first page of contents honoring the
// include-deleted and include-hidden toggles
func (c *HistoryContents) FetchFirst(ctx context.Context) error {
	id := c.HistoryID()
	if id == "" {
		return ErrNoID
	}

	query := items.BaseQuery(0, items.PageSize)
	if !c.IncludeDeleted() {
		query.Add("q", "deleted")
		query.Add("qv", filter.BoolParam(false))
	}
	if !c.IncludeHidden() {
		query.Add("q", "visible")
		query.Add("qv", filter.BoolParam(true))
	}

	page, _, err := c.api.ListContents(ctx, id, query)
	if err != nil {
		return fmt.Errorf("failed to fetch contents of history %s: %w", id, err)
	}
	if err := c.items.Save(id, page); err != nil {
		return err
	}

	c.mu.Lock()
	c.allFetched = len(page) < items.PageSize
	c.mu.Unlock()
	return nil
}

// RunningAndActive returns the visible, non-deleted cached contents whose
// state still has work outstanding
func (c *HistoryContents) RunningAndActive() []types.Item {
	id := c.HistoryID()
	if id == "" {
		return nil
	}
	cached, err := c.items.Cached(id)
	if err != nil {
		logging.Named("history").Warn("failed to read cached contents",
			logging.HistoryID(id),
			logging.Err(err),
		)
		return nil
	}

	var running []types.Item
	for _, item := range cached {
		if item.Visible && !item.Deleted && types.RunningStates[item.State] {
			running = append(running, item)
		}
	}
	return running
}

// nopContents is used by histories built without contents
type nopContents struct{}

func (nopContents) SetHistoryID(string) {}

func (nopContents) FetchUpdated(context.Context, time.Time) (time.Time, error) {
	return time.Time{}, nil
}

func (nopContents) FetchFirst(context.Context) error { return nil }

func (nopContents) RunningAndActive() []types.Item { return nil }

func (nopContents) IncludeDeleted() bool { return false }

func (nopContents) IncludeHidden() bool { return false }
