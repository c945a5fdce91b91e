package sdk

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/Project-Sylos/Chronicle/internal/galaxytest"
)

// writeConfig writes a config file pointing at baseURL and returns its path
func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// TestNew tests the New function with various configurations
func TestNew(t *testing.T) {
	srv := galaxytest.NewDefault()
	defer srv.Close()

	tests := []struct {
		name        string
		configPath  func(t *testing.T) string
		expectError bool
	}{
		{
			name: "valid minimal config",
			configPath: func(t *testing.T) string {
				return writeConfig(t, `{"server": {"base_url": "`+srv.URL+`"}}`)
			},
		},
		{
			name: "duckdb cache",
			configPath: func(t *testing.T) string {
				return writeConfig(t, `{"server": {"base_url": "`+srv.URL+`"}, "cache": {"backend": "duckdb"}}`)
			},
		},
		{
			name:        "nonexistent config file",
			configPath:  func(t *testing.T) string { return "nonexistent.json" },
			expectError: true,
		},
		{
			name: "invalid JSON config",
			configPath: func(t *testing.T) string {
				return writeConfig(t, `{"invalid": json}`)
			},
			expectError: true,
		},
		{
			name: "missing base url",
			configPath: func(t *testing.T) string {
				return writeConfig(t, `{"poll": {"update_delay_ms": 1000}}`)
			},
			expectError: true,
		},
		{
			name: "unknown cache backend",
			configPath: func(t *testing.T) string {
				return writeConfig(t, `{"server": {"base_url": "`+srv.URL+`"}, "cache": {"backend": "redis"}}`)
			},
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.configPath(t))
			if tt.expectError {
				if err == nil {
					c.Close()
					t.Fatal("Expected error but got none")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			defer c.Close()

			if c.GetConfig().Poll.UpdateDelayMS != 4000 {
				t.Errorf("Expected default update delay 4000, got %d", c.GetConfig().Poll.UpdateDelayMS)
			}
		})
	}
}

func TestPing(t *testing.T) {
	srv := galaxytest.NewDefault()
	defer srv.Close()

	c, err := NewWithDefaults(srv.URL)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	defer c.Close()

	if err := c.Ping(context.Background()); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
}

func TestItems(t *testing.T) {
	srv := galaxytest.NewDefault()
	defer srv.Close()

	c, err := NewWithDefaults(srv.URL)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	defer c.Close()

	ctx := context.Background()
	id := srv.Histories()[0].ID

	req := FetchItemsRequest{HistoryID: id}
	if err := c.FetchHistoryItems(ctx, req); err != nil {
		t.Fatalf("FetchHistoryItems failed: %v", err)
	}

	view, err := c.GetHistoryItems(req.View())
	if err != nil {
		t.Fatalf("GetHistoryItems failed: %v", err)
	}
	for _, item := range view {
		if item.Deleted || !item.Visible {
			t.Errorf("Item %d should have been filtered out", item.HID)
		}
	}

	tables, err := c.GetTableInfo()
	if err != nil {
		t.Fatalf("GetTableInfo failed: %v", err)
	}
	if len(tables) != 1 || tables[0].Name != id {
		t.Errorf("Expected one table for %s, got %+v", id, tables)
	}

	if err := c.Reset(); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	tables, err = c.GetTableInfo()
	if err != nil {
		t.Fatalf("GetTableInfo failed: %v", err)
	}
	if len(tables) != 0 {
		t.Errorf("Expected no tables after reset, got %d", len(tables))
	}
}

func TestFetchWithoutHistoryID(t *testing.T) {
	srv := galaxytest.NewDefault()
	defer srv.Close()

	c, err := NewWithDefaults(srv.URL)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	defer c.Close()

	if err := c.FetchHistoryItems(context.Background(), FetchItemsRequest{}); err == nil {
		t.Error("Expected error for a request without history id")
	}
}

func TestHistoriesAndEvents(t *testing.T) {
	srv := galaxytest.NewDefault()
	defer srv.Close()

	c, err := NewWithDefaults(srv.URL)
	if err != nil {
		t.Fatalf("Failed to create session: %v", err)
	}
	defer c.Close()

	var seen []string
	stop := c.Listen(func(e Event) { seen = append(seen, e.Type) })
	defer stop()

	ctx := context.Background()
	if _, err := c.Histories().FetchFirst(ctx); err != nil {
		t.Fatalf("FetchFirst failed: %v", err)
	}
	if c.Histories().Len() != len(srv.Histories()) {
		t.Errorf("Expected %d histories, got %d", len(srv.Histories()), c.Histories().Len())
	}

	created, err := c.Histories().Create(ctx)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if c.Histories().CurrentID() != created.ID() {
		t.Errorf("Expected %s to be current, got %s", created.ID(), c.Histories().CurrentID())
	}
	if srv.CurrentID() != created.ID() {
		t.Errorf("Server current is %s, want %s", srv.CurrentID(), created.ID())
	}

	want := []string{EventSort, EventNewCurrent}
	if len(seen) != len(want) {
		t.Fatalf("Expected events %v, got %v", want, seen)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Errorf("Event %d = %s, want %s", i, seen[i], want[i])
		}
	}

	if _, err := c.History(ctx, ""); !errors.Is(err, ErrNoID) {
		t.Errorf("Expected ErrNoID, got %v", err)
	}
}
