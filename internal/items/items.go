// Package items fetches history contents page by page and serves the
// filtered view over the cached pages.
package items

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/Project-Sylos/Chronicle/internal/filter"
	"github.com/Project-Sylos/Chronicle/internal/logging"
	"github.com/Project-Sylos/Chronicle/internal/metrics"
	"github.com/Project-Sylos/Chronicle/internal/queue"
	"github.com/Project-Sylos/Chronicle/internal/store"
	"github.com/Project-Sylos/Chronicle/internal/types"
)

// PageSize is the number of items requested per contents page
const PageSize = 100

// ValidFields are the fields free-text filtering may constrain
var ValidFields = filter.NewFieldSet(
	filter.FieldName,
	filter.FieldHistoryContentType,
	filter.FieldType,
	filter.FieldFormat,
	filter.FieldExtension,
	filter.FieldState,
	filter.FieldHID,
	filter.FieldTags,
)

// Fetcher loads one page of a history's contents
type Fetcher interface {
	ListContents(ctx context.Context, historyID string, query url.Values) ([]types.Item, time.Time, error)
}

// ChangeNotifier is told a fetch for a history is about to start
type ChangeNotifier interface {
	StartChangedItems(historyID string)
}

// NotifierFunc adapts a function to ChangeNotifier
type NotifierFunc func(historyID string)

// StartChangedItems calls f(historyID)
func (f NotifierFunc) StartChangedItems(historyID string) {
	f(historyID)
}

// Page is one contents response
type Page struct {
	Items      []types.Item
	ServerTime time.Time
}

// Store fetches contents pages through a last-wins queue and merges them
// into the item cache.
type Store struct {
	fetcher  Fetcher
	cache    store.Store
	queue    *queue.LastQueue[Page]
	notifier ChangeNotifier
}

// New creates an item store. A nil queue gets a private one and a nil
// notifier is ignored.
func New(fetcher Fetcher, cache store.Store, q *queue.LastQueue[Page], notifier ChangeNotifier) *Store {
	if q == nil {
		q = queue.New[Page]()
	}
	if notifier == nil {
		notifier = NotifierFunc(func(string) {})
	}
	return &Store{
		fetcher:  fetcher,
		cache:    cache,
		queue:    q,
		notifier: notifier,
	}
}

// BaseQuery returns the paging parameters shared by every contents request
func BaseQuery(offset, limit int) url.Values {
	values := url.Values{}
	values.Set("v", "dev")
	values.Set("order", "hid")
	values.Set("offset", strconv.Itoa(offset))
	if limit > 0 {
		values.Set("limit", strconv.Itoa(limit))
	}
	return values
}

// QueryValues builds the full contents query for a fetch request
func QueryValues(req types.FetchItemsRequest) url.Values {
	values := BaseQuery(req.Offset, PageSize)
	filters := filter.ParseFilterText(req.FilterText, ValidFields)
	for key, vals := range filters.QueryValues(req.ShowDeleted, req.ShowHidden) {
		values[key] = vals
	}
	return values
}

// FetchHistoryItems fetches one page of a history's contents and merges it
// into the cache. If a newer fetch was issued while this one was in flight
// nothing is merged and queue.ErrSuperseded is returned. The merge happens
// before any newer fetch is issued.
func (s *Store) FetchHistoryItems(ctx context.Context, req types.FetchItemsRequest) error {
	if req.HistoryID == "" {
		return errors.New("history id is required")
	}
	s.notifier.StartChangedItems(req.HistoryID)

	log := logging.WithContext(ctx).Named("items")
	query := QueryValues(req)
	_, err := s.queue.EnqueueApply(ctx, func(ctx context.Context) (Page, error) {
		items, serverTime, err := s.fetcher.ListContents(ctx, req.HistoryID, query)
		if err != nil {
			return Page{}, fmt.Errorf("failed to fetch contents of history %s: %w", req.HistoryID, err)
		}
		return Page{Items: items, ServerTime: serverTime}, nil
	}, func(page Page) error {
		return s.Save(req.HistoryID, page.Items)
	})
	if errors.Is(err, queue.ErrSuperseded) {
		log.Warn("dropping superseded contents page",
			logging.HistoryID(req.HistoryID),
			logging.Int("offset", req.Offset),
		)
	}
	return err
}

// Save merges a payload into the history's cached items
func (s *Store) Save(historyID string, payload []types.Item) error {
	cached, err := s.cache.Merge(historyID, payload)
	if err != nil {
		return fmt.Errorf("failed to merge items of history %s: %w", historyID, err)
	}
	metrics.RecordMerge(historyID, len(payload), cached)
	logging.Named("items").Debug("merged contents page",
		logging.HistoryID(historyID),
		logging.Int("merged", len(payload)),
		logging.Int("cached", cached),
	)
	return nil
}

// Cached returns the history's items in stored order, unfiltered
func (s *Store) Cached(historyID string) ([]types.Item, error) {
	return s.cache.Items(historyID)
}

// GetHistoryItems returns the cached items matching the view, most recent
// first. It is recomputed on every call.
func (s *Store) GetHistoryItems(req types.ItemsViewRequest) ([]types.Item, error) {
	cached, err := s.cache.Items(req.HistoryID)
	if err != nil {
		return nil, err
	}

	filters := filter.ParseFilterText(req.FilterText, ValidFields)
	result := make([]types.Item, 0, len(cached))
	for i := len(cached) - 1; i >= 0; i-- {
		if filter.Matches(cached[i], filters, req.ShowDeleted, req.ShowHidden) {
			result = append(result, cached[i])
		}
	}
	return result, nil
}

// Reset drops every cached item
func (s *Store) Reset() error {
	if err := s.cache.Reset(); err != nil {
		return err
	}
	metrics.ResetCached()
	return nil
}
