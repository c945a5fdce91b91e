package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Project-Sylos/Chronicle/internal/events"
	"github.com/Project-Sylos/Chronicle/internal/types"
)

type pollFixture struct {
	api       *fakeAPI
	contents  *fakeContents
	scheduler *fakeScheduler
	bus       *events.Broadcaster
	events    []events.Event
	history   *History
}

func newPollFixture(t *testing.T) *pollFixture {
	t.Helper()
	f := &pollFixture{
		api:       &fakeAPI{},
		contents:  &fakeContents{},
		scheduler: &fakeScheduler{},
		bus:       events.NewBroadcaster(),
	}
	f.bus.Listen(func(e events.Event) { f.events = append(f.events, e) })

	attrs := types.DefaultHistory()
	attrs.ID = "h1"
	f.history = New(attrs, Options{
		API:         f.api,
		Bus:         f.bus,
		Scheduler:   f.scheduler,
		NewContents: func(string) Contents { return f.contents },
	})
	return f
}

func (f *pollFixture) eventTypes() []string {
	var out []string
	for _, e := range f.events {
		out = append(out, e.Type)
	}
	return out
}

func jobs(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = "job"
	}
	return out
}

func TestPollUnfinishedJobsThenReady(t *testing.T) {
	f := newPollFixture(t)
	f.api.summaries = []map[string]any{
		{"non_ready_jobs": jobs(2), "size": 10},
		{"non_ready_jobs": jobs(0), "size": 2048},
	}

	require.NoError(t, f.history.CheckForUpdates(context.Background()))
	assert.Equal(t, []time.Duration{4000 * time.Millisecond}, f.scheduler.Pending())
	assert.Equal(t, PollIdle, f.history.PollState())
	assert.Equal(t, 2, f.history.NumOfUnfinishedJobs())
	assert.Empty(t, f.events)

	f.scheduler.Advance(3999 * time.Millisecond)
	assert.Equal(t, 0, f.contents.fetchCount())

	f.scheduler.Advance(time.Millisecond)
	assert.Equal(t, 1, f.contents.fetchCount())
	assert.Empty(t, f.scheduler.Pending())
	assert.False(t, f.history.HasPendingUpdate())
	assert.Equal(t, PollReady, f.history.PollState())
	assert.Equal(t, []string{events.EventReady}, f.eventTypes())
	assert.Equal(t, int64(2048), f.history.Size())
}

func TestPollRunningContentsSkipSummary(t *testing.T) {
	f := newPollFixture(t)
	f.contents.running = []int{3, 0}
	f.api.summaries = []map[string]any{{"non_ready_jobs": jobs(0)}}

	require.NoError(t, f.history.Refresh(context.Background()))
	assert.Len(t, f.scheduler.Pending(), 1)
	assert.Len(t, f.api.summaries, 1, "summary not fetched while contents run")
	assert.True(t, f.contents.fetches[0].IsZero())

	first := f.history.LastUpdateTime()
	assert.False(t, first.IsZero())

	f.scheduler.Advance(UpdateDelay)
	assert.Equal(t, first, f.contents.fetches[1], "refresh asks for contents updated since the last server time")
	assert.Empty(t, f.api.summaries)
	assert.Equal(t, PollReady, f.history.PollState())
	assert.Empty(t, f.scheduler.Pending())
}

func TestPollErrorClearsTimer(t *testing.T) {
	f := newPollFixture(t)
	f.contents.running = []int{1}

	require.NoError(t, f.history.Refresh(context.Background()))
	require.True(t, f.history.HasPendingUpdate())

	f.contents.err = errors.New("connection reset")
	f.scheduler.Advance(UpdateDelay)

	assert.False(t, f.history.HasPendingUpdate())
	assert.Empty(t, f.scheduler.Pending())
	assert.Equal(t, PollIdle, f.history.PollState())
	require.Len(t, f.events, 1)
	assert.Equal(t, events.EventError, f.events[0].Type)
	assert.Contains(t, f.events[0].Message, "connection reset")

	// Fail-stop: nothing fires later
	f.scheduler.Advance(10 * UpdateDelay)
	assert.Equal(t, 2, f.contents.fetchCount())
}

func TestPollSummaryErrorClearsTimer(t *testing.T) {
	f := newPollFixture(t)
	f.api.getErr = errors.New("500")

	err := f.history.CheckForUpdates(context.Background())
	require.Error(t, err)
	assert.Empty(t, f.scheduler.Pending())
	assert.Equal(t, []string{events.EventError}, f.eventTypes())
}

func TestPollSingleTimer(t *testing.T) {
	f := newPollFixture(t)
	f.contents.current = 1

	require.NoError(t, f.history.CheckForUpdates(context.Background()))
	require.NoError(t, f.history.CheckForUpdates(context.Background()))
	assert.Len(t, f.scheduler.Pending(), 1)

	f.history.ClearUpdateTimeout()
	assert.Empty(t, f.scheduler.Pending())
	f.scheduler.Advance(UpdateDelay)
	assert.Equal(t, 0, f.contents.fetchCount())
}

func TestPollWithoutID(t *testing.T) {
	h := New(types.DefaultHistory(), Options{Scheduler: &fakeScheduler{}})
	assert.NoError(t, h.CheckForUpdates(context.Background()))
	assert.ErrorIs(t, h.Refresh(context.Background()), ErrNoID)
}

func TestPollCancelledContext(t *testing.T) {
	f := newPollFixture(t)
	f.contents.current = 1
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, f.history.CheckForUpdates(ctx))
	cancel()
	f.scheduler.Advance(UpdateDelay)

	assert.Equal(t, 0, f.contents.fetchCount())
	assert.Equal(t, PollIdle, f.history.PollState())
}

func TestPollStateString(t *testing.T) {
	assert.Equal(t, "awaiting-contents", PollAwaitingContents.String())
	assert.Equal(t, "awaiting-summary", PollAwaitingSummary.String())
	assert.Equal(t, "ready", PollReady.String())
	assert.Equal(t, "idle", PollIdle.String())
}
