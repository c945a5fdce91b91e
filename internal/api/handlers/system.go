package handlers

import (
	"fmt"
	"net/http"

	"github.com/Project-Sylos/Chronicle/sdk"
	"github.com/go-chi/chi/v5"
)

// SystemHandler handles system-related endpoints
type SystemHandler struct {
	BaseHandler
	c *sdk.Chronicle
}

// NewSystemHandler creates a new system handler
func NewSystemHandler(c *sdk.Chronicle) *SystemHandler {
	return &SystemHandler{
		c: c,
	}
}

// Reset handles the reset endpoint
func (h *SystemHandler) Reset(w http.ResponseWriter, req *http.Request) {
	if err := h.c.Reset(); err != nil {
		h.sendError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to reset item cache: %v", err))
		return
	}

	h.sendSuccess(w, "Item cache reset successfully", nil)
}

// GetTables handles the get tables endpoint
func (h *SystemHandler) GetTables(w http.ResponseWriter, req *http.Request) {
	tables, err := h.c.GetTableInfo()
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to get table info: %v", err))
		return
	}

	h.sendSuccess(w, "Tables retrieved successfully", tables)
}

// GetTableCount handles the cached item count of one history
func (h *SystemHandler) GetTableCount(w http.ResponseWriter, req *http.Request) {
	historyID := chi.URLParam(req, "id")
	if historyID == "" {
		h.sendError(w, http.StatusBadRequest, "history id is required")
		return
	}

	tables, err := h.c.GetTableInfo()
	if err != nil {
		h.sendError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to get table count: %v", err))
		return
	}

	count := 0
	for _, table := range tables {
		if table.Name == historyID {
			count = table.RowCount
		}
	}

	response := map[string]any{
		"history_id": historyID,
		"count":      count,
	}

	h.sendSuccess(w, "Table count retrieved successfully", response)
}

// GetConfig handles the get config endpoint. The API key is never echoed.
func (h *SystemHandler) GetConfig(w http.ResponseWriter, req *http.Request) {
	config := *h.c.GetConfig()
	if config.Server.APIKey != "" {
		config.Server.APIKey = "***"
	}
	h.sendSuccess(w, "Config retrieved successfully", config)
}

// GetStatus reports whether the remote API answers and which histories are watched
func (h *SystemHandler) GetStatus(w http.ResponseWriter, req *http.Request) {
	status := map[string]any{
		"remote_ok": true,
		"watched":   h.c.Watched(),
	}
	if err := h.c.Ping(req.Context()); err != nil {
		status["remote_ok"] = false
		status["remote_error"] = err.Error()
	}

	h.sendSuccess(w, "Status retrieved successfully", status)
}
