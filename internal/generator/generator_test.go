package generator

import (
	"reflect"
	"testing"

	"github.com/Project-Sylos/Chronicle/internal/types"
)

// TestRNG tests the random number generator functionality
func TestRNG(t *testing.T) {
	rng1 := NewRNG(42)
	rng2 := NewRNG(42)

	for i := 0; i < 100; i++ {
		val1 := rng1.Intn(1000)
		val2 := rng2.Intn(1000)
		if val1 != val2 {
			t.Errorf("Same seed should produce same sequence. Iteration %d: got %d and %d", i, val1, val2)
		}
	}
}

func TestNewIDDeterministic(t *testing.T) {
	a, err := NewID(NewRNG(7))
	if err != nil {
		t.Fatalf("NewID failed: %v", err)
	}
	b, _ := NewID(NewRNG(7))
	if a != b {
		t.Errorf("Same seed should produce same id: %s vs %s", a, b)
	}
	if len(a) != 16 {
		t.Errorf("Expected 16 character id, got %q", a)
	}
}

func TestGenerateDeterministic(t *testing.T) {
	cfg := DefaultConfig()

	first, err := Generate(cfg)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	second, err := Generate(cfg)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if !reflect.DeepEqual(first, second) {
		t.Errorf("Same config should produce the same dataset")
	}

	cfg.Seed = 43
	third, _ := Generate(cfg)
	if reflect.DeepEqual(first, third) {
		t.Errorf("Different seeds should produce different datasets")
	}
}

func TestGenerateShape(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Histories = 4
	cfg.MinItems = 3
	cfg.MaxItems = 6

	ds, err := Generate(cfg)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(ds.Histories) != 4 {
		t.Fatalf("Expected 4 histories, got %d", len(ds.Histories))
	}

	for _, h := range ds.Histories {
		items := ds.Items[h.ID]
		if len(items) < 3 || len(items) > 6 {
			t.Errorf("History %s has %d items, want 3..6", h.ID, len(items))
		}
		for i, item := range items {
			if item.HID != i+1 {
				t.Errorf("Expected hid %d, got %d", i+1, item.HID)
			}
			if item.HistoryID != h.ID {
				t.Errorf("Item %d belongs to %s, want %s", item.HID, item.HistoryID, h.ID)
			}
		}
		total := h.ContentsActive.Active + h.ContentsActive.Deleted + h.ContentsActive.Hidden
		if total != len(items) || h.Count != len(items) {
			t.Errorf("Summary counts %d/%d do not match %d items", total, h.Count, len(items))
		}
		if h.HidCounter != len(items)+1 {
			t.Errorf("Expected hid counter %d, got %d", len(items)+1, h.HidCounter)
		}
	}
}

func TestGenerateRunning(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RunningRatio = 1
	cfg.DeletedRatio = 0
	cfg.HiddenRatio = 0

	ds, err := Generate(cfg)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	for _, h := range ds.Histories {
		if h.State != types.StateRunning {
			t.Errorf("Expected running history, got %s", h.State)
		}
		for _, item := range ds.Items[h.ID] {
			if !types.RunningStates[item.State] {
				t.Errorf("Expected running item, got %s", item.State)
			}
		}
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(*Config) {}, false},
		{"negative histories", func(c *Config) { c.Histories = -1 }, true},
		{"inverted range", func(c *Config) { c.MinItems = 5; c.MaxItems = 2 }, true},
		{"ratio above one", func(c *Config) { c.DeletedRatio = 1.5 }, true},
		{"negative ratio", func(c *Config) { c.RunningRatio = -0.1 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := ValidateConfig(cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
