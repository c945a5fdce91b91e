package handlers

import (
	"net/http"
	"strings"

	"github.com/Project-Sylos/Chronicle/internal/api/models"
	"github.com/Project-Sylos/Chronicle/sdk"
	"github.com/go-chi/chi/v5"
)

// HistoryHandler handles the history collection and single history endpoints
type HistoryHandler struct {
	BaseHandler
	c *sdk.Chronicle
}

// NewHistoryHandler creates a new history handler
func NewHistoryHandler(c *sdk.Chronicle) *HistoryHandler {
	return &HistoryHandler{
		c: c,
	}
}

// collectionView is the collection as returned by list endpoints
type collectionView struct {
	Order      string         `json:"order"`
	CurrentID  string         `json:"current_id,omitempty"`
	AllFetched bool           `json:"all_fetched"`
	Histories  []*sdk.History `json:"histories"`
}

func (h *HistoryHandler) view(histories []*sdk.History) collectionView {
	if histories == nil {
		histories = []*sdk.History{}
	}
	col := h.c.Histories()
	return collectionView{
		Order:      col.Order(),
		CurrentID:  col.CurrentID(),
		AllFetched: col.AllFetched(),
		Histories:  histories,
	}
}

// ListHistories returns the loaded histories in collection order, optionally
// narrowed by ?search=
func (h *HistoryHandler) ListHistories(w http.ResponseWriter, req *http.Request) {
	col := h.c.Histories()
	if search := strings.TrimSpace(req.URL.Query().Get("search")); search != "" {
		h.sendSuccess(w, "Histories retrieved successfully", h.view(col.Search(search)))
		return
	}
	h.sendSuccess(w, "Histories retrieved successfully", h.view(col.Models()))
}

// FetchFirst loads the first page of histories
func (h *HistoryHandler) FetchFirst(w http.ResponseWriter, req *http.Request) {
	if _, err := h.c.Histories().FetchFirst(req.Context()); err != nil {
		h.sendFailure(w, req, "Failed to fetch histories", err)
		return
	}
	h.sendSuccess(w, "Histories fetched successfully", h.view(h.c.Histories().Models()))
}

// FetchMore loads the next page of histories
func (h *HistoryHandler) FetchMore(w http.ResponseWriter, req *http.Request) {
	page, err := h.c.Histories().FetchMore(req.Context())
	if err != nil {
		h.sendFailure(w, req, "Failed to fetch more histories", err)
		return
	}
	h.sendSuccess(w, "Histories fetched successfully", h.view(page))
}

// Sort changes the collection order
func (h *HistoryHandler) Sort(w http.ResponseWriter, req *http.Request) {
	var request models.SortRequest
	if !h.decode(w, req, &request) {
		return
	}
	if request.Order == "" {
		h.sendError(w, http.StatusBadRequest, "order is required")
		return
	}
	if err := h.c.Histories().SetOrder(request.Order); err != nil {
		h.sendError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.sendSuccess(w, "Histories sorted successfully", h.view(h.c.Histories().Models()))
}

// SetIncludeDeleted toggles whether deleted histories are listed
func (h *HistoryHandler) SetIncludeDeleted(w http.ResponseWriter, req *http.Request) {
	var request models.IncludeDeletedRequest
	if !h.decode(w, req, &request) {
		return
	}
	h.c.Histories().SetIncludeDeleted(request.IncludeDeleted)
	h.sendSuccess(w, "Collection updated successfully", nil)
}

// Create makes a new empty history and makes it current
func (h *HistoryHandler) Create(w http.ResponseWriter, req *http.Request) {
	created, err := h.c.Histories().Create(req.Context())
	if err != nil {
		h.sendFailure(w, req, "Failed to create history", err)
		return
	}
	h.sendJSON(w, http.StatusCreated, sdkResponse("History created successfully", created))
}

// history resolves the {id} URL parameter
func (h *HistoryHandler) history(w http.ResponseWriter, req *http.Request) (*sdk.History, bool) {
	id := chi.URLParam(req, "id")
	if id == "" {
		h.sendError(w, http.StatusBadRequest, "history id is required")
		return nil, false
	}
	found, err := h.c.History(req.Context(), id)
	if err != nil {
		h.sendFailure(w, req, "Failed to get history", err)
		return nil, false
	}
	return found, true
}

// GetHistory returns one history
func (h *HistoryHandler) GetHistory(w http.ResponseWriter, req *http.Request) {
	found, ok := h.history(w, req)
	if !ok {
		return
	}
	h.sendSuccess(w, "History retrieved successfully", found)
}

// Rename changes a history's name
func (h *HistoryHandler) Rename(w http.ResponseWriter, req *http.Request) {
	var request models.RenameHistoryRequest
	if !h.decode(w, req, &request) {
		return
	}
	if strings.TrimSpace(request.Name) == "" {
		h.sendError(w, http.StatusBadRequest, "name is required")
		return
	}
	found, ok := h.history(w, req)
	if !ok {
		return
	}
	if err := found.Rename(req.Context(), request.Name); err != nil {
		h.sendFailure(w, req, "Failed to rename history", err)
		return
	}
	h.sendSuccess(w, "History renamed successfully", found)
}

// Copy copies a history
func (h *HistoryHandler) Copy(w http.ResponseWriter, req *http.Request) {
	var request models.CopyHistoryRequest
	if !h.decode(w, req, &request) {
		return
	}
	found, ok := h.history(w, req)
	if !ok {
		return
	}
	copied, err := found.Copy(req.Context(), sdk.CopyOptions{
		MakeCurrent: request.MakeCurrent,
		Name:        request.Name,
		AllDatasets: request.AllDatasets,
	})
	if err != nil {
		h.sendFailure(w, req, "Failed to copy history", err)
		return
	}
	h.sendJSON(w, http.StatusCreated, sdkResponse("History copied successfully", copied))
}

// Delete soft-deletes a history
func (h *HistoryHandler) Delete(w http.ResponseWriter, req *http.Request) {
	found, ok := h.history(w, req)
	if !ok {
		return
	}
	if err := found.Delete(req.Context()); err != nil {
		h.sendFailure(w, req, "Failed to delete history", err)
		return
	}
	h.sendSuccess(w, "History deleted successfully", found)
}

// Purge permanently deletes a history
func (h *HistoryHandler) Purge(w http.ResponseWriter, req *http.Request) {
	found, ok := h.history(w, req)
	if !ok {
		return
	}
	if err := found.Purge(req.Context()); err != nil {
		h.sendFailure(w, req, "Failed to purge history", err)
		return
	}
	h.sendSuccess(w, "History purged successfully", found)
}

// Undelete restores a soft-deleted history
func (h *HistoryHandler) Undelete(w http.ResponseWriter, req *http.Request) {
	found, ok := h.history(w, req)
	if !ok {
		return
	}
	if err := found.Undelete(req.Context()); err != nil {
		h.sendFailure(w, req, "Failed to undelete history", err)
		return
	}
	h.sendSuccess(w, "History undeleted successfully", found)
}

// SetCurrent makes a history the session's current history
func (h *HistoryHandler) SetCurrent(w http.ResponseWriter, req *http.Request) {
	found, ok := h.history(w, req)
	if !ok {
		return
	}
	if err := found.SetAsCurrent(req.Context()); err != nil {
		h.sendFailure(w, req, "Failed to set current history", err)
		return
	}
	h.sendSuccess(w, "Current history set successfully", found)
}

// Watch starts refreshing a history until it is ready
func (h *HistoryHandler) Watch(w http.ResponseWriter, req *http.Request) {
	id := chi.URLParam(req, "id")
	// The refresh loop outlives the request
	watched, err := h.c.Watch(detach(req), id)
	if err != nil {
		h.sendFailure(w, req, "Failed to watch history", err)
		return
	}
	h.sendSuccess(w, "History watched successfully", map[string]any{
		"history":            watched,
		"poll_state":         watched.PollState(),
		"has_pending_update": watched.HasPendingUpdate(),
	})
}

// Unwatch stops refreshing a history
func (h *HistoryHandler) Unwatch(w http.ResponseWriter, req *http.Request) {
	h.c.Unwatch(chi.URLParam(req, "id"))
	h.sendSuccess(w, "History unwatched successfully", nil)
}

func sdkResponse(message string, data any) sdk.APIResponse {
	return sdk.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	}
}
