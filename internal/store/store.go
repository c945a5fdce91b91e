// Package store holds the per-history item cache.
package store

import (
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/Project-Sylos/Chronicle/internal/db"
	"github.com/Project-Sylos/Chronicle/internal/types"
)

// Store maps a history id to its ordered items.
// Merge updates items whose key is already cached and appends new keys
// in payload order; nothing is removed except by Reset.
type Store interface {
	Merge(historyID string, items []types.Item) (int, error)
	Items(historyID string) ([]types.Item, error)
	GetTableInfo() ([]types.TableInfo, error)
	Reset() error
	Close() error
}

// New opens the backend selected by cfg
func New(cfg types.CacheConfig) (Store, error) {
	switch cfg.Backend {
	case "", types.BackendMemory:
		return NewMemory(), nil
	case types.BackendDuckDB:
		database, err := db.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open item cache: %w", err)
		}
		return database, nil
	default:
		return nil, fmt.Errorf("unknown cache backend: %s", cfg.Backend)
	}
}

// Memory is the in-process Store
type Memory struct {
	mu    sync.RWMutex
	items map[string][]types.Item
	index map[string]map[int]int // history id -> hid -> position
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{
		items: make(map[string][]types.Item),
		index: make(map[string]map[int]int),
	}
}

// Merge merges a page into the history's list and returns the cached count
func (m *Memory) Merge(historyID string, payload []types.Item) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.items[historyID]
	positions, ok := m.index[historyID]
	if !ok {
		positions = make(map[int]int)
		m.index[historyID] = positions
	}

	for _, item := range payload {
		item.Tags = slices.Clone(item.Tags)
		if pos, exists := positions[item.HID]; exists {
			list[pos] = item
			continue
		}
		positions[item.HID] = len(list)
		list = append(list, item)
	}

	m.items[historyID] = list
	return len(list), nil
}

// Items returns a copy of the history's items in stored order
func (m *Memory) Items(historyID string) ([]types.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := m.items[historyID]
	out := make([]types.Item, len(list))
	for i, item := range list {
		item.Tags = slices.Clone(item.Tags)
		out[i] = item
	}
	return out, nil
}

// GetTableInfo returns the cached item count per history, ordered by history id
func (m *Memory) GetTableInfo() ([]types.TableInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tables := []types.TableInfo{}
	for historyID, list := range m.items {
		tables = append(tables, types.TableInfo{Name: historyID, RowCount: len(list)})
	}
	sort.Slice(tables, func(i, j int) bool { return tables[i].Name < tables[j].Name })
	return tables, nil
}

// Reset drops every cached item
func (m *Memory) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = make(map[string][]types.Item)
	m.index = make(map[string]map[int]int)
	return nil
}

// Close is a no-op for the in-memory store
func (m *Memory) Close() error {
	return nil
}
