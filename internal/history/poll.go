package history

import (
	"context"
	"time"

	"github.com/Project-Sylos/Chronicle/internal/events"
	"github.com/Project-Sylos/Chronicle/internal/logging"
	"github.com/Project-Sylos/Chronicle/internal/metrics"
)

// PollState is the position of a history in its refresh loop
type PollState int

const (
	PollIdle PollState = iota
	PollAwaitingContents
	PollAwaitingSummary
	PollReady
)

func (s PollState) String() string {
	switch s {
	case PollIdle:
		return "idle"
	case PollAwaitingContents:
		return "awaiting-contents"
	case PollAwaitingSummary:
		return "awaiting-summary"
	case PollReady:
		return "ready"
	default:
		return "unknown"
	}
}

// MarshalText renders the state name
func (s PollState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// PollState returns the current refresh loop state
func (h *History) PollState() PollState {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.poll
}

func (h *History) setPollState(s PollState) {
	h.mu.Lock()
	h.poll = s
	h.mu.Unlock()
}

// LastUpdateTime is the server time of the last contents refresh
func (h *History) LastUpdateTime() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.lastUpdateTime
}

// HasPendingUpdate reports whether a refresh is scheduled
func (h *History) HasPendingUpdate() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.timer != nil
}

// Refresh fetches the contents updated since the last refresh, records the
// server's response time and checks whether another refresh is needed.
func (h *History) Refresh(ctx context.Context) error {
	if h.ID() == "" {
		return ErrNoID
	}
	h.setPollState(PollAwaitingContents)

	serverTime, err := h.contents.FetchUpdated(ctx, h.LastUpdateTime())
	if err != nil {
		return h.fail(ctx, err)
	}
	if serverTime.IsZero() {
		serverTime = time.Now()
	}

	h.mu.Lock()
	h.lastUpdateTime = serverTime
	h.mu.Unlock()

	return h.CheckForUpdates(ctx)
}

// CheckForUpdates schedules another refresh while shown contents are running.
// Once none are, it fetches the summary attributes and either schedules a
// refresh for the remaining unfinished jobs or becomes ready.
func (h *History) CheckForUpdates(ctx context.Context) error {
	id := h.ID()
	if id == "" {
		return nil
	}
	log := logging.WithContext(ctx).Named("history")

	if running := h.NumOfUnfinishedShownContents(); running > 0 {
		log.Debug("contents still running",
			logging.HistoryID(id),
			logging.Int("running", running),
		)
		h.scheduleRefresh(ctx)
		return nil
	}

	h.setPollState(PollAwaitingSummary)
	if _, err := h.fetchAttributes(ctx, summaryKeys, ""); err != nil {
		return h.fail(ctx, err)
	}

	if jobs := h.NumOfUnfinishedJobs(); jobs > 0 {
		log.Debug("jobs still unfinished",
			logging.HistoryID(id),
			logging.Int("jobs", jobs),
		)
		h.scheduleRefresh(ctx)
		return nil
	}

	h.setPollState(PollReady)
	metrics.RecordPollCycle(metrics.PollReady)
	log.Info("history ready", logging.HistoryID(id))
	h.publish(events.EventReady, nil)
	return nil
}

// scheduleRefresh replaces any pending refresh with one after the update delay
func (h *History) scheduleRefresh(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.stopTimerLocked()
	gen := h.timerGen
	h.timer = h.opts.Scheduler.AfterFunc(h.opts.UpdateDelay, func() {
		h.mu.Lock()
		if h.timerGen != gen {
			h.mu.Unlock()
			return
		}
		h.timer = nil
		h.mu.Unlock()

		if ctx.Err() != nil {
			h.setPollState(PollIdle)
			return
		}
		// Failures are logged and published by Refresh
		_ = h.Refresh(ctx)
	})
	h.poll = PollIdle
	metrics.RecordPollCycle(metrics.PollRescheduled)
}

// ClearUpdateTimeout cancels the pending refresh, if any
func (h *History) ClearUpdateTimeout() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopTimerLocked()
}

func (h *History) stopTimerLocked() {
	h.timerGen++
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
}

// fail stops the refresh loop and reports err. It is never retried.
func (h *History) fail(ctx context.Context, err error) error {
	h.mu.Lock()
	h.stopTimerLocked()
	h.poll = PollIdle
	h.mu.Unlock()

	metrics.RecordPollCycle(metrics.PollError)
	logging.WithContext(ctx).Named("history").Error("history request failed",
		logging.HistoryID(h.ID()),
		logging.Err(err),
	)
	h.opts.Bus.Publish(events.Event{
		Type:      events.EventError,
		HistoryID: h.ID(),
		Message:   err.Error(),
	})
	return err
}
