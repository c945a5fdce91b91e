// Package history models histories: one history's attributes with its
// self-driving refresh loop, and the ordered collection of histories with
// a distinguished current history.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Project-Sylos/Chronicle/internal/client"
	"github.com/Project-Sylos/Chronicle/internal/events"
	"github.com/Project-Sylos/Chronicle/internal/logging"
	"github.com/Project-Sylos/Chronicle/internal/types"
)

// ErrNoID is returned by operations that need the history to have an id
var ErrNoID = errors.New("history id is not set")

// UpdateDelay is the default wait between refreshes while work is outstanding
const UpdateDelay = 4000 * time.Millisecond

// summaryKeys are the content-related attributes re-fetched once no shown
// contents are running
var summaryKeys = []string{"size", "non_ready_jobs", "contents_active", "hid_counter"}

// API is the part of the REST client a history uses
type API interface {
	GetHistory(ctx context.Context, historyID string, keys []string, view string, into *types.History) (time.Time, error)
	UpdateHistory(ctx context.Context, historyID string, changes map[string]any) (*types.History, error)
	CopyHistory(ctx context.Context, req types.CopyRequest) (*types.History, error)
	SetAsCurrent(ctx context.Context, historyID string) error
}

// Contents is what a history needs from its item list
type Contents interface {
	SetHistoryID(historyID string)
	FetchUpdated(ctx context.Context, since time.Time) (time.Time, error)
	FetchFirst(ctx context.Context) error
	RunningAndActive() []types.Item
	IncludeDeleted() bool
	IncludeHidden() bool
}

// Options are the collaborators shared by every history of a session
type Options struct {
	API         API
	Bus         *events.Broadcaster
	Scheduler   Scheduler
	UpdateDelay time.Duration

	// NewContents builds the item list of a history; nil means no contents
	NewContents func(historyID string) Contents
}

// CopyOptions controls History.Copy
type CopyOptions struct {
	MakeCurrent bool
	Name        string
	AllDatasets bool
}

// History is one history's attributes plus its contents and refresh loop.
type History struct {
	opts     Options
	contents Contents

	mu             sync.RWMutex
	attrs          types.History
	poll           PollState
	lastUpdateTime time.Time
	timer          Timer
	timerGen       uint64
}

// New creates a history model from attributes
func New(attrs types.History, opts Options) *History {
	if opts.Bus == nil {
		opts.Bus = events.NewBroadcaster()
	}
	if opts.Scheduler == nil {
		opts.Scheduler = RealScheduler{}
	}
	if opts.UpdateDelay <= 0 {
		opts.UpdateDelay = UpdateDelay
	}

	h := &History{opts: opts, attrs: cloneAttrs(attrs)}
	if opts.NewContents != nil {
		h.contents = opts.NewContents(attrs.ID)
	} else {
		h.contents = nopContents{}
	}
	return h
}

// Factory returns a constructor that builds histories sharing opts
func (o Options) Factory() func(types.History) *History {
	return func(attrs types.History) *History {
		return New(attrs, o)
	}
}

func cloneAttrs(a types.History) types.History {
	a.NonReadyJobs = slices.Clone(a.NonReadyJobs)
	a.Tags = slices.Clone(a.Tags)
	if a.ContentsStates != nil {
		states := make(map[string]int, len(a.ContentsStates))
		for k, v := range a.ContentsStates {
			states[k] = v
		}
		a.ContentsStates = states
	}
	return a
}

// Attributes returns a copy of the current attributes
func (h *History) Attributes() types.History {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return cloneAttrs(h.attrs)
}

// Set replaces the attributes, as after a full fetch
func (h *History) Set(attrs types.History) {
	h.mu.Lock()
	oldID := h.attrs.ID
	h.attrs = cloneAttrs(attrs)
	h.mu.Unlock()
	if attrs.ID != oldID {
		h.contents.SetHistoryID(attrs.ID)
	}
}

// ID returns the history id
func (h *History) ID() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.attrs.ID
}

// Key returns the collection key, the history id
func (h *History) Key() string {
	return h.ID()
}

func (h *History) Name() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.attrs.Name
}

func (h *History) Size() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.attrs.Size
}

func (h *History) Deleted() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.attrs.Deleted
}

func (h *History) Purged() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.attrs.Purged
}

func (h *History) UpdateTime() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.attrs.UpdateTime.Time
}

func (h *History) CreateTime() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.attrs.CreateTime.Time
}

// Contents returns the history's item list
func (h *History) Contents() Contents {
	return h.contents
}

// ContentsShown counts the active contents plus deleted and hidden ones when
// the contents include them.
func (h *History) ContentsShown() int {
	h.mu.RLock()
	active := h.attrs.ContentsActive
	h.mu.RUnlock()

	shown := active.Active
	if h.contents.IncludeDeleted() {
		shown += active.Deleted
	}
	if h.contents.IncludeHidden() {
		shown += active.Hidden
	}
	return shown
}

// NiceSize renders the size in decimal units
func (h *History) NiceSize() string {
	return NiceSize(h.Size())
}

// NiceSize renders bytes in decimal units with two decimals: 1500000 -> "1.50 MB"
func NiceSize(size int64) string {
	units := []struct {
		threshold int64
		name      string
	}{
		{1_000_000_000_000, "TB"},
		{1_000_000_000, "GB"},
		{1_000_000, "MB"},
		{1_000, "KB"},
	}
	for _, u := range units {
		if size >= u.threshold {
			return fmt.Sprintf("%.2f %s", float64(size)/float64(u.threshold), u.name)
		}
	}
	if size < 0 {
		size = 0
	}
	return fmt.Sprintf("%d b", size)
}

// NumOfUnfinishedJobs counts the jobs the server reports as not ready
func (h *History) NumOfUnfinishedJobs() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.attrs.NonReadyJobs)
}

// NumOfUnfinishedShownContents counts visible, non-deleted contents still running
func (h *History) NumOfUnfinishedShownContents() int {
	return len(h.contents.RunningAndActive())
}

// OwnedBy reports whether user is the registered owner of the history
func (h *History) OwnedBy(user *types.User) bool {
	if user == nil || user.Anonymous {
		return false
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return user.ID != "" && user.ID == h.attrs.UserID
}

func (h *History) String() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return fmt.Sprintf("History(%s,%s)", h.attrs.ID, h.attrs.Name)
}

// MarshalJSON serializes the attributes plus nice_size
func (h *History) MarshalJSON() ([]byte, error) {
	attrs := h.Attributes()
	return json.Marshal(struct {
		types.History
		NiceSize string `json:"nice_size"`
	}{attrs, NiceSize(attrs.Size)})
}

// fetchAttributes fetches keys (all when empty) and merges them into the
// attributes. Attributes absent from the response are kept.
func (h *History) fetchAttributes(ctx context.Context, keys []string, view string) (time.Time, error) {
	h.mu.RLock()
	id := h.attrs.ID
	next := cloneAttrs(h.attrs)
	h.mu.RUnlock()

	if id == "" {
		return time.Time{}, ErrNoID
	}
	serverTime, err := h.opts.API.GetHistory(ctx, id, keys, view, &next)
	if err != nil {
		return time.Time{}, err
	}

	h.mu.Lock()
	h.attrs = next
	h.mu.Unlock()

	if next.ID != id {
		h.contents.SetHistoryID(next.ID)
	}
	return serverTime, nil
}

// Fetch re-reads every attribute of the history
func (h *History) Fetch(ctx context.Context) error {
	if _, err := h.fetchAttributes(ctx, nil, client.ViewDetailed); err != nil {
		return h.fail(ctx, err)
	}
	return nil
}

// FetchWithContents fetches the detailed attributes, then the first page of contents
func (h *History) FetchWithContents(ctx context.Context) error {
	if err := h.Fetch(ctx); err != nil {
		return err
	}
	h.contents.SetHistoryID(h.ID())
	return h.FetchContents(ctx)
}

// FetchContents fetches the first page of contents and resets the refresh mark
func (h *History) FetchContents(ctx context.Context) error {
	h.mu.Lock()
	h.lastUpdateTime = time.Now()
	h.mu.Unlock()

	if err := h.contents.FetchFirst(ctx); err != nil {
		return h.fail(ctx, err)
	}
	return nil
}

// save sends changes to the server and applies them locally on success
func (h *History) save(ctx context.Context, changes map[string]any, apply func(*types.History)) error {
	id := h.ID()
	if id == "" {
		return ErrNoID
	}
	updated, err := h.opts.API.UpdateHistory(ctx, id, changes)
	if err != nil {
		return h.fail(ctx, fmt.Errorf("failed to update history %s: %w", id, err))
	}

	h.mu.Lock()
	apply(&h.attrs)
	if updated != nil && !updated.UpdateTime.IsZero() {
		h.attrs.UpdateTime = updated.UpdateTime
	}
	h.mu.Unlock()
	return nil
}

// Delete soft-deletes the history. Already deleted histories are left alone.
func (h *History) Delete(ctx context.Context) error {
	if h.Deleted() {
		return nil
	}
	err := h.save(ctx, map[string]any{"deleted": true}, func(a *types.History) {
		a.Deleted = true
	})
	if err != nil {
		return err
	}
	h.publish(events.EventChangeDeleted, nil)
	return nil
}

// Purge deletes the history and its data permanently
func (h *History) Purge(ctx context.Context) error {
	if h.Purged() {
		return nil
	}
	wasDeleted := h.Deleted()
	err := h.save(ctx, map[string]any{"deleted": true, "purged": true}, func(a *types.History) {
		a.Deleted = true
		a.Purged = true
	})
	if err != nil {
		return err
	}
	if !wasDeleted {
		h.publish(events.EventChangeDeleted, nil)
	}
	h.publish(events.EventChangePurged, nil)
	return nil
}

// Undelete restores a soft-deleted history
func (h *History) Undelete(ctx context.Context) error {
	if !h.Deleted() {
		return nil
	}
	err := h.save(ctx, map[string]any{"deleted": false}, func(a *types.History) {
		a.Deleted = false
	})
	if err != nil {
		return err
	}
	h.publish(events.EventChangeDeleted, nil)
	return nil
}

// Rename changes the history name
func (h *History) Rename(ctx context.Context, name string) error {
	if name == "" {
		return errors.New("history name must not be empty")
	}
	if name == h.Name() {
		return nil
	}
	err := h.save(ctx, map[string]any{"name": name}, func(a *types.History) {
		a.Name = name
	})
	if err != nil {
		return err
	}
	h.publish(events.EventChangeName, nil)
	return nil
}

// Copy creates a copy of the history on the server. Unless AllDatasets is
// set only active datasets are copied. With MakeCurrent the copy becomes
// the current history before the copied event is published.
func (h *History) Copy(ctx context.Context, opts CopyOptions) (*History, error) {
	id := h.ID()
	if id == "" {
		return nil, ErrNoID
	}

	req := types.CopyRequest{
		HistoryID: id,
		Current:   opts.MakeCurrent,
		Name:      opts.Name,
		View:      client.ViewDetailed,
	}
	if !opts.AllDatasets {
		all := false
		req.AllDatasets = &all
	}

	created, err := h.opts.API.CopyHistory(ctx, req)
	if err != nil {
		return nil, h.fail(ctx, fmt.Errorf("failed to copy history %s: %w", id, err))
	}

	copied := New(*created, h.opts)
	if opts.MakeCurrent {
		if err := copied.SetAsCurrent(ctx); err != nil {
			return nil, err
		}
	}

	logging.WithContext(ctx).Named("history").Info("history copied",
		logging.HistoryID(id),
		logging.String("copy_id", copied.ID()),
	)
	h.publish(events.EventCopied, copied)
	return copied, nil
}

// SetAsCurrent makes this the session's current history
func (h *History) SetAsCurrent(ctx context.Context) error {
	id := h.ID()
	if id == "" {
		return ErrNoID
	}
	if err := h.opts.API.SetAsCurrent(ctx, id); err != nil {
		return h.fail(ctx, fmt.Errorf("failed to set history %s as current: %w", id, err))
	}
	h.publish(events.EventSetAsCurrent, nil)
	return nil
}

func (h *History) publish(eventType string, data any) {
	h.opts.Bus.Publish(events.Event{
		Type:      eventType,
		HistoryID: h.ID(),
		Data:      data,
	})
}
