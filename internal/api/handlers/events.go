package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/Project-Sylos/Chronicle/internal/logging"
	"github.com/Project-Sylos/Chronicle/sdk"
)

// EventHandler streams session events as server-sent events
type EventHandler struct {
	BaseHandler
	c *sdk.Chronicle
}

// NewEventHandler creates a new event handler
func NewEventHandler(c *sdk.Chronicle) *EventHandler {
	return &EventHandler{
		c: c,
	}
}

// Stream sends every event until the client disconnects. ?history_id=
// restricts the stream to one history.
func (h *EventHandler) Stream(w http.ResponseWriter, req *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		h.sendError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}
	only := req.URL.Query().Get("history_id")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := h.c.Subscribe()
	defer h.c.Unsubscribe(ch)

	log := logging.WithContext(req.Context()).Named("api")
	log.Debug("event stream connected", logging.String("remote_addr", req.RemoteAddr))

	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-req.Context().Done():
			log.Debug("event stream disconnected", logging.String("remote_addr", req.RemoteAddr))
			return
		case event, ok := <-ch:
			if !ok {
				return
			}
			if only != "" && event.HistoryID != only {
				continue
			}
			data, err := json.Marshal(event)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
		}
	}
}
