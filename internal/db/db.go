package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/Project-Sylos/Chronicle/internal/types"
	_ "github.com/marcboeker/go-duckdb"
)

// DB wraps a DuckDB connection holding the history item cache
type DB struct {
	conn *sql.DB
	mu   sync.Mutex // Serializes merges so seq allocation stays consistent
}

// MemoryPath keeps the cache for the lifetime of the process only
const MemoryPath = ":memory:"

// New opens a DuckDB database and initializes the schema.
// An empty path or MemoryPath opens an in-memory database.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("duckdb", dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open DuckDB connection: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.InitializeSchema(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return db, nil
}

// dsn maps a cache path to a go-duckdb DSN. The driver parses DSNs as URLs,
// so the in-memory database is the empty DSN.
func dsn(dbPath string) string {
	if dbPath == MemoryPath {
		return ""
	}
	return dbPath
}

// InitializeSchema creates the item cache table if needed
func (db *DB) InitializeSchema() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, err := db.conn.Exec(itemsTableSQL); err != nil {
		return fmt.Errorf("failed to create %s table: %w", tableItems, err)
	}
	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// Merge upserts a page of items for a history and returns the cached count.
// Existing hids keep their position; new hids are appended in payload order.
func (db *DB) Merge(historyID string, payload []types.Item) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	tx, err := db.conn.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin merge: %w", err)
	}
	defer tx.Rollback()

	var next int64
	err = tx.QueryRow("SELECT COALESCE(MAX(seq), 0) FROM history_items WHERE history_id = ?", historyID).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to read sequence for %s: %w", historyID, err)
	}

	stmt, err := tx.Prepare(upsertItemSQL)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare merge: %w", err)
	}
	defer stmt.Close()

	for _, item := range dedupe(payload) {
		data, err := json.Marshal(item)
		if err != nil {
			return 0, fmt.Errorf("failed to marshal item %d: %w", item.HID, err)
		}
		next++
		if _, err := stmt.Exec(historyID, item.HID, next, item.Name, item.State, item.Deleted, item.Visible, string(data)); err != nil {
			return 0, fmt.Errorf("failed to merge item %d of %s: %w", item.HID, historyID, err)
		}
	}

	var count int
	if err := tx.QueryRow("SELECT COUNT(*) FROM history_items WHERE history_id = ?", historyID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count items of %s: %w", historyID, err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit merge: %w", err)
	}
	return count, nil
}

// dedupe keeps the first position and the last value of repeated hids
func dedupe(payload []types.Item) []types.Item {
	positions := make(map[int]int, len(payload))
	out := make([]types.Item, 0, len(payload))
	for _, item := range payload {
		if pos, ok := positions[item.HID]; ok {
			out[pos] = item
			continue
		}
		positions[item.HID] = len(out)
		out = append(out, item)
	}
	return out
}

// Items returns the cached items of a history in first-seen order
func (db *DB) Items(historyID string) ([]types.Item, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.conn.Query("SELECT payload FROM history_items WHERE history_id = ? ORDER BY seq", historyID)
	if err != nil {
		return nil, fmt.Errorf("failed to query items of %s: %w", historyID, err)
	}
	defer rows.Close()

	items := make([]types.Item, 0)
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		var item types.Item
		if err := json.Unmarshal([]byte(payload), &item); err != nil {
			return nil, fmt.Errorf("failed to unmarshal item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating items: %w", err)
	}
	return items, nil
}

// Reset removes every cached item
func (db *DB) Reset() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, err := db.conn.Exec("DELETE FROM history_items"); err != nil {
		return fmt.Errorf("failed to delete from %s table: %w", tableItems, err)
	}
	return nil
}

// ItemCount returns the number of cached items of a history
func (db *DB) ItemCount(historyID string) (int, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var count int
	err := db.conn.QueryRow("SELECT COUNT(*) FROM history_items WHERE history_id = ?", historyID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to get item count for %s: %w", historyID, err)
	}
	return count, nil
}

// GetTableInfo returns per-history row counts
func (db *DB) GetTableInfo() ([]types.TableInfo, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	rows, err := db.conn.Query("SELECT history_id, COUNT(*) FROM history_items GROUP BY history_id ORDER BY history_id")
	if err != nil {
		return nil, fmt.Errorf("failed to query table info: %w", err)
	}
	defer rows.Close()

	tables := []types.TableInfo{}
	for rows.Next() {
		var info types.TableInfo
		if err := rows.Scan(&info.Name, &info.RowCount); err != nil {
			return nil, fmt.Errorf("failed to scan table info: %w", err)
		}
		tables = append(tables, info)
	}
	return tables, rows.Err()
}
