// Package generator produces deterministic synthetic histories and contents
// for fixtures and demos.
package generator

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/Project-Sylos/Chronicle/internal/types"
	"github.com/google/uuid"
)

// RNG wraps math/rand.Rand for seeded random generation
type RNG struct {
	*rand.Rand
}

// NewRNG creates a new seeded random number generator
func NewRNG(seed int64) *RNG {
	return &RNG{
		Rand: rand.New(rand.NewSource(seed)),
	}
}

// Config controls the shape of the generated data
type Config struct {
	Seed         int64
	Histories    int
	MinItems     int
	MaxItems     int
	DeletedRatio float64 // share of items soft-deleted
	HiddenRatio  float64 // share of items hidden
	RunningRatio float64 // share of items still in a running state
	UserID       string
	Epoch        time.Time // update times are spread after Epoch
}

// DefaultConfig returns a small, mostly finished data set
func DefaultConfig() Config {
	return Config{
		Seed:         42,
		Histories:    3,
		MinItems:     5,
		MaxItems:     20,
		DeletedRatio: 0.1,
		HiddenRatio:  0.1,
		RunningRatio: 0.0,
		UserID:       "f2db41e1fa331b3e",
		Epoch:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// ValidateConfig validates the generator configuration
func ValidateConfig(cfg Config) error {
	if cfg.Histories < 0 {
		return fmt.Errorf("histories must not be negative")
	}
	if cfg.MinItems < 0 || cfg.MaxItems < cfg.MinItems {
		return fmt.Errorf("invalid item count range: min=%d, max=%d", cfg.MinItems, cfg.MaxItems)
	}
	for name, ratio := range map[string]float64{
		"deleted_ratio": cfg.DeletedRatio,
		"hidden_ratio":  cfg.HiddenRatio,
		"running_ratio": cfg.RunningRatio,
	} {
		if ratio < 0 || ratio > 1 {
			return fmt.Errorf("%s must be between 0 and 1, got %f", name, ratio)
		}
	}
	return nil
}

// Dataset is a generated set of histories with their contents
type Dataset struct {
	Histories []types.History
	Items     map[string][]types.Item // history id -> contents in hid order
}

var (
	words      = []string{"reads", "alignment", "variants", "counts", "peaks", "genome", "sample", "control", "trimmed", "merged"}
	extensions = []string{"txt", "fastqsanger", "bam", "tabular", "vcf", "bed"}
	tagPool    = []string{"name:qc", "group:a", "group:b", "rna", "dna"}
	runningSet = []string{types.StateQueued, types.StateRunning, types.StateNew, types.StateSettingMetadata}
)

// Generate builds a dataset from cfg. The same config always yields the
// same dataset.
func Generate(cfg Config) (*Dataset, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	rng := NewRNG(cfg.Seed)

	ds := &Dataset{Items: make(map[string][]types.Item)}
	for i := 0; i < cfg.Histories; i++ {
		history, err := GenerateHistory(rng, i+1, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to generate history %d: %w", i+1, err)
		}

		count := rng.Intn(cfg.MaxItems-cfg.MinItems+1) + cfg.MinItems
		items, err := GenerateItems(rng, history.ID, count, cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to generate items of history %s: %w", history.ID, err)
		}
		Summarize(history, items)

		ds.Histories = append(ds.Histories, *history)
		ds.Items[history.ID] = items
	}
	return ds, nil
}

// NewID returns a 16 hex digit encoded id drawn from rng
func NewID(rng *RNG) (string, error) {
	id, err := uuid.NewRandomFromReader(rng)
	if err != nil {
		return "", err
	}
	return strings.ReplaceAll(id.String(), "-", "")[:16], nil
}

// GenerateHistory creates one empty history
func GenerateHistory(rng *RNG, index int, cfg Config) (*types.History, error) {
	id, err := NewID(rng)
	if err != nil {
		return nil, err
	}

	h := types.DefaultHistory()
	h.ID = id
	word := words[rng.Intn(len(words))]
	h.Name = fmt.Sprintf("%s%s analysis %d", strings.ToUpper(word[:1]), word[1:], index)
	h.UserID = cfg.UserID
	h.State = types.StateOK
	h.CreateTime = types.Timestamp{Time: cfg.Epoch.Add(time.Duration(index) * time.Hour)}
	h.UpdateTime = types.Timestamp{Time: cfg.Epoch.Add(time.Duration(index)*time.Hour + time.Duration(rng.Intn(3600))*time.Second)}
	h.Tags = pickTags(rng)
	h.NonReadyJobs = []string{}
	return &h, nil
}

// GenerateItems creates count contents for historyID with hids 1..count
func GenerateItems(rng *RNG, historyID string, count int, cfg Config) ([]types.Item, error) {
	items := make([]types.Item, 0, count)
	for hid := 1; hid <= count; hid++ {
		id, err := NewID(rng)
		if err != nil {
			return nil, err
		}
		ext := extensions[rng.Intn(len(extensions))]

		item := types.Item{
			ID:                 id,
			HID:                hid,
			HistoryID:          historyID,
			Name:               fmt.Sprintf("%s_%s_%d.%s", words[rng.Intn(len(words))], words[rng.Intn(len(words))], hid, ext),
			HistoryContentType: types.ContentTypeDataset,
			Type:               "file",
			Format:             ext,
			Extension:          ext,
			State:              types.StateOK,
			Tags:               pickTags(rng),
			Visible:            rng.Float64() >= cfg.HiddenRatio,
			Deleted:            rng.Float64() < cfg.DeletedRatio,
			UpdateTime:         types.Timestamp{Time: cfg.Epoch.Add(time.Duration(hid) * time.Minute)},
		}
		if rng.Intn(10) == 0 {
			item.HistoryContentType = types.ContentTypeCollection
			item.Type = "list"
			item.Format = ""
			item.Extension = ""
		}
		if rng.Float64() < cfg.RunningRatio {
			item.State = runningSet[rng.Intn(len(runningSet))]
		}
		items = append(items, item)
	}
	return items, nil
}

func pickTags(rng *RNG) []string {
	tags := []string{}
	for _, tag := range tagPool {
		if rng.Intn(4) == 0 {
			tags = append(tags, tag)
		}
	}
	return tags
}

// Summarize recomputes the summary attributes of h from its contents
func Summarize(h *types.History, items []types.Item) {
	var active types.ContentsActive
	states := map[string]int{}
	var size int64
	for _, item := range items {
		states[item.State]++
		switch {
		case item.Deleted:
			active.Deleted++
		case !item.Visible:
			active.Hidden++
		default:
			active.Active++
		}
		if !item.Deleted && item.HistoryContentType == types.ContentTypeDataset {
			size += int64(1000 + 137*item.HID)
		}
	}

	h.ContentsActive = active
	h.ContentsStates = states
	h.Count = len(items)
	h.HidCounter = len(items) + 1
	h.Size = size
	h.State = types.StateOK
	for _, item := range items {
		if types.RunningStates[item.State] {
			h.State = types.StateRunning
			break
		}
	}
}
