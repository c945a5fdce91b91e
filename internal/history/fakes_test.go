package history

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/Project-Sylos/Chronicle/internal/types"
)

// fakeAPI serves scripted summary responses and records mutations.
type fakeAPI struct {
	mu        sync.Mutex
	summaries []map[string]any // consumed one per keys-restricted GetHistory
	full      map[string]any
	getErr    error
	updates   []map[string]any
	copies    []types.CopyRequest
	current   []string
	histories []types.History
	queries   []types.HistoryQuery
	created   types.History
}

func (f *fakeAPI) GetHistory(ctx context.Context, historyID string, keys []string, view string, into *types.History) (time.Time, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return time.Time{}, f.getErr
	}
	body := f.full
	if len(keys) > 0 {
		if len(f.summaries) == 0 {
			return time.Time{}, errors.New("unexpected summary fetch")
		}
		body = f.summaries[0]
		f.summaries = f.summaries[1:]
	}
	data, err := json.Marshal(body)
	if err != nil {
		return time.Time{}, err
	}
	return time.Now(), json.Unmarshal(data, into)
}

func (f *fakeAPI) UpdateHistory(ctx context.Context, historyID string, changes map[string]any) (*types.History, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, changes)
	return &types.History{ID: historyID}, nil
}

func (f *fakeAPI) CopyHistory(ctx context.Context, req types.CopyRequest) (*types.History, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.copies = append(f.copies, req)
	h := types.DefaultHistory()
	h.ID = "copy-of-" + req.HistoryID
	h.Name = "Copy"
	return &h, nil
}

func (f *fakeAPI) SetAsCurrent(ctx context.Context, historyID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.current = append(f.current, historyID)
	return nil
}

func (f *fakeAPI) ListHistories(ctx context.Context, q types.HistoryQuery) ([]types.History, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if q.Offset >= len(f.histories) {
		return []types.History{}, nil
	}
	end := min(q.Offset+q.Limit, len(f.histories))
	return f.histories[q.Offset:end], nil
}

func (f *fakeAPI) CreateNewCurrent(ctx context.Context) (*types.History, error) {
	created := f.created
	return &created, nil
}

// fakeContents reports a scripted number of running items per refresh.
type fakeContents struct {
	mu        sync.Mutex
	historyID string
	running   []int // consumed one per FetchUpdated
	current   int
	fetches   []time.Time
	err       error
	deleted   bool
	hidden    bool
}

func (c *fakeContents) SetHistoryID(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.historyID = id
}

func (c *fakeContents) FetchUpdated(ctx context.Context, since time.Time) (time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetches = append(c.fetches, since)
	if c.err != nil {
		return time.Time{}, c.err
	}
	if len(c.running) > 0 {
		c.current = c.running[0]
		c.running = c.running[1:]
	}
	return time.Date(2024, 5, 1, 12, 0, len(c.fetches), 0, time.UTC), nil
}

func (c *fakeContents) FetchFirst(ctx context.Context) error { return nil }

func (c *fakeContents) RunningAndActive() []types.Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return make([]types.Item, c.current)
}

func (c *fakeContents) IncludeDeleted() bool { return c.deleted }

func (c *fakeContents) IncludeHidden() bool { return c.hidden }

func (c *fakeContents) fetchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.fetches)
}
