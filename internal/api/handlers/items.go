package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/Project-Sylos/Chronicle/internal/api/models"
	"github.com/Project-Sylos/Chronicle/sdk"
	"github.com/go-chi/chi/v5"
)

// ItemHandler handles the history items endpoints
type ItemHandler struct {
	BaseHandler
	c *sdk.Chronicle
}

// NewItemHandler creates a new item handler
func NewItemHandler(c *sdk.Chronicle) *ItemHandler {
	return &ItemHandler{
		c: c,
	}
}

// GetItems returns the cached items of a history, most recent first.
// Query parameters: filter, show_deleted, show_hidden.
func (h *ItemHandler) GetItems(w http.ResponseWriter, req *http.Request) {
	q := req.URL.Query()
	showDeleted, _ := strconv.ParseBool(q.Get("show_deleted"))
	showHidden, _ := strconv.ParseBool(q.Get("show_hidden"))

	items, err := h.c.GetHistoryItems(sdk.ItemsViewRequest{
		HistoryID:   chi.URLParam(req, "id"),
		FilterText:  q.Get("filter"),
		ShowDeleted: showDeleted,
		ShowHidden:  showHidden,
	})
	if err != nil {
		h.sendFailure(w, req, "Failed to get items", err)
		return
	}
	if items == nil {
		items = []sdk.Item{}
	}
	h.sendSuccess(w, "Items retrieved successfully", items)
}

// FetchItems fetches one page of a history's items into the cache. A fetch
// overtaken by a newer one answers 409.
func (h *ItemHandler) FetchItems(w http.ResponseWriter, req *http.Request) {
	var request models.FetchItemsRequest
	if !h.decode(w, req, &request) {
		return
	}
	if request.Offset < 0 {
		h.sendError(w, http.StatusBadRequest, "offset must not be negative")
		return
	}

	fetch := sdk.FetchItemsRequest{
		HistoryID:   chi.URLParam(req, "id"),
		Offset:      request.Offset,
		FilterText:  request.FilterText,
		ShowDeleted: request.ShowDeleted,
		ShowHidden:  request.ShowHidden,
	}
	if err := h.c.FetchHistoryItems(req.Context(), fetch); err != nil {
		h.sendFailure(w, req, "Failed to fetch items", err)
		return
	}

	items, err := h.c.GetHistoryItems(fetch.View())
	if err != nil {
		h.sendFailure(w, req, "Failed to get items", err)
		return
	}
	if items == nil {
		items = []sdk.Item{}
	}
	h.sendSuccess(w, "Items fetched successfully", items)
}

// detach keeps the request's values but not its cancellation
func detach(req *http.Request) context.Context {
	return context.WithoutCancel(req.Context())
}
