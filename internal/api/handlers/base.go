package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Project-Sylos/Chronicle/internal/client"
	"github.com/Project-Sylos/Chronicle/internal/logging"
	"github.com/Project-Sylos/Chronicle/internal/types"
	"github.com/Project-Sylos/Chronicle/sdk"
)

// BaseHandler provides common functionality for all API handlers
type BaseHandler struct{}

// sendJSON sends a JSON response with the given status code and data
func (h *BaseHandler) sendJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// sendError sends an error response with the given status code and message
func (h *BaseHandler) sendError(w http.ResponseWriter, statusCode int, message string) {
	h.sendJSON(w, statusCode, types.APIResponse{
		Success: false,
		Message: message,
	})
}

// sendSuccess sends a success response with the given data
func (h *BaseHandler) sendSuccess(w http.ResponseWriter, message string, data any) {
	h.sendJSON(w, http.StatusOK, types.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// sendFailure maps err to a status code and logs it
func (h *BaseHandler) sendFailure(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		logging.WithContext(r.Context()).Named("api").Error(message, logging.Err(err))
	}
	h.sendError(w, status, message+": "+err.Error())
}

// decode reads a JSON body into v; an empty body leaves v unchanged
func (h *BaseHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		h.sendError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

func statusFor(err error) int {
	var apiErr *client.APIError
	switch {
	case errors.Is(err, sdk.ErrNoID):
		return http.StatusBadRequest
	case errors.Is(err, sdk.ErrSuperseded):
		return http.StatusConflict
	case client.IsNotFound(err):
		return http.StatusNotFound
	case errors.As(err, &apiErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
