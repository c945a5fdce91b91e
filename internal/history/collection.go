package history

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Project-Sylos/Chronicle/internal/types"
)

// Entity is anything a Collection can hold
type Entity interface {
	Key() string
	UpdateTime() time.Time
	CreateTime() time.Time
}

// PageFetcher loads one page of entities
type PageFetcher[E Entity] func(ctx context.Context, q types.HistoryQuery) ([]E, error)

// Comparator orders two entities the way cmp.Compare does
type Comparator[E Entity] func(a, b E) int

// ByKey builds a comparator over one attribute
func ByKey[E Entity, V cmp.Ordered](get func(E) V, ascending bool) Comparator[E] {
	return func(a, b E) int {
		if ascending {
			return cmp.Compare(get(a), get(b))
		}
		return cmp.Compare(get(b), get(a))
	}
}

// ByTime builds a comparator over a timestamp attribute
func ByTime[E Entity](get func(E) time.Time, ascending bool) Comparator[E] {
	return func(a, b E) int {
		if ascending {
			return get(a).Compare(get(b))
		}
		return get(b).Compare(get(a))
	}
}

// BaseComparators returns the comparators every collection supports
func BaseComparators[E Entity]() map[string]Comparator[E] {
	updated := func(e E) time.Time { return e.UpdateTime() }
	created := func(e E) time.Time { return e.CreateTime() }
	return map[string]Comparator[E]{
		"update_time":     ByTime(updated, false),
		"update_time-asc": ByTime(updated, true),
		"create_time":     ByTime(created, false),
		"create_time-asc": ByTime(created, true),
	}
}

// CollectionConfig configures a Collection
type CollectionConfig[E Entity] struct {
	Fetch             PageFetcher[E]
	Comparators       map[string]Comparator[E] // nil uses BaseComparators
	Order             string
	LimitOnFirstFetch int
	LimitPerFetch     int
	View              string
	Filters           func() map[string]string
}

// Collection is an ordered, paginated set of entities keyed by Key.
type Collection[E Entity] struct {
	cfg CollectionConfig[E]

	mu         sync.RWMutex
	models     []E
	order      string
	fetched    int
	allFetched bool
}

// NewCollection creates an empty collection
func NewCollection[E Entity](cfg CollectionConfig[E]) (*Collection[E], error) {
	if cfg.Comparators == nil {
		cfg.Comparators = BaseComparators[E]()
	}
	if cfg.Order == "" {
		cfg.Order = "update_time"
	}
	if _, ok := cfg.Comparators[cfg.Order]; !ok {
		return nil, fmt.Errorf("unknown order: %s", cfg.Order)
	}
	if cfg.LimitOnFirstFetch <= 0 {
		cfg.LimitOnFirstFetch = 10
	}
	if cfg.LimitPerFetch <= 0 {
		cfg.LimitPerFetch = 10
	}
	return &Collection[E]{cfg: cfg, order: cfg.Order}, nil
}

func (c *Collection[E]) query(offset, limit int) types.HistoryQuery {
	q := types.HistoryQuery{
		Offset: offset,
		Limit:  limit,
		Order:  c.Order(),
		View:   c.cfg.View,
	}
	if c.cfg.Filters != nil {
		q.Filters = c.cfg.Filters()
	}
	return q
}

// FetchFirst replaces the models with the first page
func (c *Collection[E]) FetchFirst(ctx context.Context) ([]E, error) {
	limit := c.cfg.LimitOnFirstFetch
	page, err := c.cfg.Fetch(ctx, c.query(0, limit))
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.models = nil
	c.fetched = len(page)
	c.allFetched = len(page) < limit
	c.mu.Unlock()

	c.Add(page...)
	return page, nil
}

// FetchMore appends the next page. It is a no-op once a short page was seen.
func (c *Collection[E]) FetchMore(ctx context.Context) ([]E, error) {
	c.mu.RLock()
	offset, done := c.fetched, c.allFetched
	c.mu.RUnlock()
	if done {
		return nil, nil
	}

	limit := c.cfg.LimitPerFetch
	page, err := c.cfg.Fetch(ctx, c.query(offset, limit))
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.fetched += len(page)
	c.allFetched = len(page) < limit
	c.mu.Unlock()

	c.Add(page...)
	return page, nil
}

// AllFetched reports whether the last page was short
func (c *Collection[E]) AllFetched() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.allFetched
}

// Add replaces models with a known key and appends the rest
func (c *Collection[E]) Add(models ...E) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range models {
		if i := c.indexLocked(m.Key()); i >= 0 {
			c.models[i] = m
			continue
		}
		c.models = append(c.models, m)
	}
}

// Unshift moves or inserts m at the front
func (c *Collection[E]) Unshift(m E) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if i := c.indexLocked(m.Key()); i >= 0 {
		c.models = slices.Delete(c.models, i, i+1)
	}
	c.models = slices.Insert(c.models, 0, m)
}

// Remove drops the model with key
func (c *Collection[E]) Remove(key string) (E, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.indexLocked(key)
	if i < 0 {
		var zero E
		return zero, false
	}
	m := c.models[i]
	c.models = slices.Delete(c.models, i, i+1)
	return m, true
}

// Get returns the model with key
func (c *Collection[E]) Get(key string) (E, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i := c.indexLocked(key); i >= 0 {
		return c.models[i], true
	}
	var zero E
	return zero, false
}

func (c *Collection[E]) indexLocked(key string) int {
	return slices.IndexFunc(c.models, func(m E) bool { return m.Key() == key })
}

// Models returns the models in collection order
func (c *Collection[E]) Models() []E {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.models)
}

func (c *Collection[E]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.models)
}

// Order returns the name of the active comparator
func (c *Collection[E]) Order() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order
}

// SetOrder switches the comparator and re-sorts
func (c *Collection[E]) SetOrder(order string) error {
	if _, ok := c.cfg.Comparators[order]; !ok {
		return fmt.Errorf("unknown order: %s", order)
	}
	c.mu.Lock()
	c.order = order
	c.mu.Unlock()
	c.Sort("")
	return nil
}

// Orders lists the supported comparator names
func (c *Collection[E]) Orders() []string {
	names := make([]string, 0, len(c.cfg.Comparators))
	for name := range c.cfg.Comparators {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Sort orders the models by the active comparator. The model with key
// pinned, if present, is kept at the front.
func (c *Collection[E]) Sort(pinned string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var head []E
	if pinned != "" {
		if i := c.indexLocked(pinned); i >= 0 {
			head = append(head, c.models[i])
			c.models = slices.Delete(c.models, i, i+1)
		}
	}
	slices.SortStableFunc(c.models, c.cfg.Comparators[c.order])
	c.models = append(head, c.models...)
}
