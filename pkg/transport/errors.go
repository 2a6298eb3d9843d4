package transport

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rhuss/steward/pkg/api"
	"github.com/rhuss/steward/pkg/confirm"
	"github.com/rhuss/steward/pkg/storage"
	"github.com/rhuss/steward/pkg/tools"
)

// HTTPStatusFromError maps an APIError type to an HTTP status code.
func HTTPStatusFromError(err *api.APIError) int {
	switch err.Type {
	case api.ErrorTypeInvalidRequest:
		return http.StatusBadRequest
	case api.ErrorTypeNotFound:
		return http.StatusNotFound
	case api.ErrorTypeForbidden:
		return http.StatusForbidden
	case api.ErrorTypeConflict:
		return http.StatusConflict
	case api.ErrorTypeTooManyRequests:
		return http.StatusTooManyRequests
	case api.ErrorTypeModelError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ToAPIError normalizes an error returned by a Service operation.
// Unrecognized errors become a generic server error; their text is logged
// by the caller, not returned.
func ToAPIError(err error) *api.APIError {
	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	var handlerErr *tools.HandlerError
	switch {
	case errors.Is(err, tools.ErrNotFound):
		return api.NewNotFoundError(err.Error())
	case errors.Is(err, tools.ErrForbidden):
		return api.NewForbiddenError(err.Error())
	case errors.Is(err, tools.ErrInvalidArguments):
		return api.NewInvalidRequestError("arguments", err.Error())
	case errors.Is(err, confirm.ErrAlreadyPending):
		return api.NewConflictError(err.Error())
	case errors.Is(err, confirm.ErrInvalidConfirmation),
		errors.Is(err, storage.ErrEmptyConversationID),
		errors.Is(err, storage.ErrInvalidRole):
		return api.NewInvalidRequestError("", err.Error())
	case errors.As(err, &handlerErr):
		return &api.APIError{Type: api.ErrorTypeServerError, Code: "handler_error", Message: handlerErr.Error(), Cause: err}
	case errors.Is(err, context.Canceled):
		return &api.APIError{Type: api.ErrorTypeServerError, Code: "cancelled", Message: "request was cancelled", Cause: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &api.APIError{Type: api.ErrorTypeServerError, Code: "timeout", Message: "request timed out", Cause: err}
	}
	return &api.APIError{Type: api.ErrorTypeServerError, Message: "internal server error", Cause: err}
}

// WriteErrorResponse writes apiErr with the given status.
func WriteErrorResponse(w http.ResponseWriter, apiErr *api.APIError, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(api.ErrorResponse{Error: apiErr}); err != nil {
		slog.Debug("writing error response", "error", err)
	}
}

// WriteAPIError writes apiErr with the status derived from its type.
func WriteAPIError(w http.ResponseWriter, apiErr *api.APIError) {
	WriteErrorResponse(w, apiErr, HTTPStatusFromError(apiErr))
}

// WriteError normalizes err and writes it.
func WriteError(w http.ResponseWriter, err error) {
	WriteAPIError(w, ToAPIError(err))
}

// WriteJSON writes v as a JSON body with status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("writing response", "error", err)
	}
}
