package db

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/Project-Sylos/Chronicle/internal/types"
)

// TestNewDB tests opening file-backed and in-memory databases
func TestNewDB(t *testing.T) {
	tests := []struct {
		name   string
		dbPath func(t *testing.T) string
	}{
		{
			name:   "in-memory database",
			dbPath: func(t *testing.T) string { return ":memory:" },
		},
		{
			name:   "empty path is in-memory",
			dbPath: func(t *testing.T) string { return "" },
		},
		{
			name:   "temporary file database",
			dbPath: func(t *testing.T) string { return filepath.Join(t.TempDir(), "cache.db") },
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, err := New(tt.dbPath(t))
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			defer db.Close()

			if db.conn == nil {
				t.Errorf("Expected database connection but got nil")
			}

			// Schema initialization is repeatable
			if err := db.InitializeSchema(); err != nil {
				t.Errorf("Unexpected error re-initializing schema: %v", err)
			}
		})
	}
}

// TestMemoryDatabasesAreIsolated tests that each in-memory cache starts empty
func TestMemoryDatabasesAreIsolated(t *testing.T) {
	first, err := New(MemoryPath)
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}
	defer first.Close()

	if _, err := first.Merge("h1", []types.Item{{HID: 1, Name: "a", Visible: true}, {HID: 2, Name: "b", Visible: true}}); err != nil {
		t.Fatalf("Unexpected error merging: %v", err)
	}
	if _, err := first.Merge("h1", []types.Item{{HID: 1, Name: "a2", Visible: true}, {HID: 3, Name: "c", Visible: true}}); err != nil {
		t.Fatalf("Unexpected error merging: %v", err)
	}
	items, err := first.Items("h1")
	if err != nil {
		t.Fatalf("Unexpected error reading items: %v", err)
	}
	var names []string
	for _, it := range items {
		names = append(names, it.Name)
	}
	if len(names) != 3 || names[0] != "a2" || names[1] != "b" || names[2] != "c" {
		t.Errorf("Expected [a2 b c], got %v", names)
	}

	second, err := New(MemoryPath)
	if err != nil {
		t.Fatalf("Failed to open second in-memory database: %v", err)
	}
	defer second.Close()

	count, err := second.ItemCount("h1")
	if err != nil {
		t.Fatalf("Unexpected error counting: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected a fresh in-memory cache, got %d items", count)
	}
}

// TestDBMethods tests the cache operations against one database
func TestDBMethods(t *testing.T) {
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	defer db.Close()

	updated := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	first := []types.Item{
		{HID: 1, Name: "reads.fastq", State: types.StateOK, Visible: true, Tags: []string{"name:reads"}, UpdateTime: types.Timestamp{Time: updated}},
		{HID: 2, Name: "ref.fa", State: types.StateQueued, Visible: true},
	}

	t.Run("Merge", func(t *testing.T) {
		count, err := db.Merge("h1", first)
		if err != nil {
			t.Fatalf("Unexpected error merging: %v", err)
		}
		if count != 2 {
			t.Errorf("Expected 2 cached items, got %d", count)
		}
	})

	t.Run("Items round trip", func(t *testing.T) {
		items, err := db.Items("h1")
		if err != nil {
			t.Fatalf("Unexpected error reading items: %v", err)
		}
		if len(items) != 2 {
			t.Fatalf("Expected 2 items, got %d", len(items))
		}
		if items[0].Name != "reads.fastq" || items[0].Tags[0] != "name:reads" {
			t.Errorf("Unexpected first item: %+v", items[0])
		}
		if !items[0].UpdateTime.Equal(updated) {
			t.Errorf("Expected update time %s, got %s", updated, items[0].UpdateTime)
		}
	})

	t.Run("ItemCount", func(t *testing.T) {
		count, err := db.ItemCount("h1")
		if err != nil {
			t.Fatalf("Unexpected error counting: %v", err)
		}
		if count != 2 {
			t.Errorf("Expected 2, got %d", count)
		}
	})

	t.Run("GetTableInfo", func(t *testing.T) {
		if _, err := db.Merge("h2", []types.Item{{HID: 1, Name: "x", Visible: true}}); err != nil {
			t.Fatalf("Unexpected error merging: %v", err)
		}
		tables, err := db.GetTableInfo()
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if len(tables) != 2 {
			t.Fatalf("Expected 2 histories, got %d", len(tables))
		}
		if tables[0].Name != "h1" || tables[0].RowCount != 2 {
			t.Errorf("Unexpected table info: %+v", tables[0])
		}
	})

	t.Run("Reset", func(t *testing.T) {
		if err := db.Reset(); err != nil {
			t.Fatalf("Unexpected error resetting: %v", err)
		}
		count, err := db.ItemCount("h1")
		if err != nil {
			t.Fatalf("Unexpected error counting: %v", err)
		}
		if count != 0 {
			t.Errorf("Expected empty cache after reset, got %d", count)
		}
	})
}
