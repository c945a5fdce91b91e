package types

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Config represents the complete configuration for Chronicle
type Config struct {
	Server     ServerConfig     `json:"server"`
	Cache      CacheConfig      `json:"cache"`
	Poll       PollConfig       `json:"poll"`
	Collection CollectionConfig `json:"collection"`
	API        APIConfig        `json:"api"`
	Log        LogConfig        `json:"log"`
}

// ServerConfig points the client at the remote history API
type ServerConfig struct {
	BaseURL   string `json:"base_url"`
	APIKey    string `json:"api_key,omitempty"` // Forwarded verbatim as x-api-key
	TimeoutMS int    `json:"timeout_ms"`
}

// CacheConfig selects the item cache backend
type CacheConfig struct {
	Backend string `json:"backend"` // "memory" or "duckdb"
	DBPath  string `json:"db_path"`
}

// PollConfig configures the history refresh loop
type PollConfig struct {
	UpdateDelayMS int `json:"update_delay_ms"`
}

// CollectionConfig configures the paginated history collection
type CollectionConfig struct {
	Order             string `json:"order"`
	LimitOnFirstFetch int    `json:"limit_on_first_fetch"`
	LimitPerFetch     int    `json:"limit_per_fetch"`
	IncludeDeleted    bool   `json:"include_deleted"`
	CurrentHistoryID  string `json:"current_history_id,omitempty"`
}

// APIConfig represents the local panel HTTP configuration
type APIConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// LogConfig represents the logging configuration
type LogConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
	Output string `json:"output,omitempty"`
}

// TimestampLayout is the server's zone-less UTC timestamp format
const TimestampLayout = "2006-01-02T15:04:05.999999"

// Timestamp decodes the server's zone-less ISO timestamps
type Timestamp struct {
	time.Time
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	TimestampLayout,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
}

// UnmarshalJSON accepts RFC3339 and the server's naive UTC format
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	var lastErr error
	for _, layout := range timestampLayouts {
		parsed, err := time.ParseInLocation(layout, s, time.UTC)
		if err == nil {
			t.Time = parsed
			return nil
		}
		lastErr = err
	}
	return lastErr
}

// MarshalJSON writes the timestamp in the server's naive UTC format
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format(TimestampLayout))
}

// Item represents one history content (dataset or collection) as returned by the contents API
type Item struct {
	ID                 string    `json:"id"`
	HID                int       `json:"hid"`                  // Stable per-history key
	HistoryID          string    `json:"history_id"`
	Name               string    `json:"name"`
	HistoryContentType string    `json:"history_content_type"` // "dataset" or "dataset_collection"
	Type               string    `json:"type,omitempty"`
	Format             string    `json:"format,omitempty"`
	Extension          string    `json:"extension,omitempty"`
	State              string    `json:"state"`
	Tags               []string  `json:"tags"`
	Deleted            bool      `json:"deleted"`
	Visible            bool      `json:"visible"`
	Purged             bool      `json:"purged"`
	UpdateTime         Timestamp `json:"update_time"`
}

// Key returns the merge key of the item
func (i Item) Key() string {
	return strconv.Itoa(i.HID)
}

// ContentsActive holds the per-history active/deleted/hidden counters
type ContentsActive struct {
	Active  int `json:"active"`
	Deleted int `json:"deleted"`
	Hidden  int `json:"hidden"`
}

// History represents the attributes of one history as returned by the histories API
type History struct {
	ModelClass     string         `json:"model_class,omitempty"`
	ID             string         `json:"id"`
	Name           string         `json:"name"`
	State          string         `json:"state"`
	Deleted        bool           `json:"deleted"`
	Purged         bool           `json:"purged"`
	Size           int64          `json:"size"`
	NonReadyJobs   []string       `json:"non_ready_jobs"`
	ContentsActive ContentsActive `json:"contents_active"`
	ContentsStates map[string]int `json:"contents_states,omitempty"`
	HidCounter     int            `json:"hid_counter"`
	UserID         string         `json:"user_id,omitempty"`
	Annotation     string         `json:"annotation,omitempty"`
	Tags           []string       `json:"tags"`
	Count          int            `json:"count"`
	CreateTime     Timestamp      `json:"create_time"`
	UpdateTime     Timestamp      `json:"update_time"`
}

// DefaultHistory returns the attribute defaults of a fresh history
func DefaultHistory() History {
	return History{
		ModelClass:     "History",
		Name:           "Unnamed History",
		State:          StateNew,
		ContentsStates: map[string]int{},
	}
}

// User identifies the session user for ownership checks
type User struct {
	ID        string `json:"id"`
	Anonymous bool   `json:"anonymous"`
}

// APIResponse represents a generic API response
type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// TableInfo represents information about a cache table
type TableInfo struct {
	Name     string `json:"name"`
	RowCount int    `json:"row_count"`
}

// Content type constants
const (
	ContentTypeDataset    = "dataset"
	ContentTypeCollection = "dataset_collection"
)

// Item / history state constants
const (
	StateNew             = "new"
	StateUpload          = "upload"
	StateQueued          = "queued"
	StateRunning         = "running"
	StateSettingMetadata = "setting_metadata"
	StateOK              = "ok"
	StateError           = "error"
	StatePaused          = "paused"
	StateEmpty           = "empty"
)

// RunningStates lists the states that still have work outstanding
var RunningStates = map[string]bool{
	StateNew:             true,
	StateUpload:          true,
	StateQueued:          true,
	StateRunning:         true,
	StateSettingMetadata: true,
}

// Cache backend constants
const (
	BackendMemory = "memory"
	BackendDuckDB = "duckdb"
)
