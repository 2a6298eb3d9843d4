package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/rhuss/steward/pkg/api"
)

// MapHTTPError converts an HTTP response with a non-2xx status code into
// an APIError. Rate limits keep their own type so callers can back off;
// everything else is a model_error.
func MapHTTPError(resp *http.Response) *api.APIError {
	message := ExtractErrorMessage(resp.Body)

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if message == "" {
			message = "backend rate limit exceeded"
		}
		return api.NewTooManyRequestsError(message)

	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		if message == "" {
			message = "backend authentication failed"
		}

	case resp.StatusCode == http.StatusBadRequest:
		if message == "" {
			message = "backend rejected the request"
		}

	case resp.StatusCode == http.StatusNotFound:
		if message == "" {
			message = "backend model or endpoint not found"
		}

	default:
		if message == "" {
			message = fmt.Sprintf("backend error (HTTP %d)", resp.StatusCode)
		}
	}
	return api.NewModelError(message, fmt.Errorf("HTTP %d", resp.StatusCode))
}

// MapNetworkError converts a network-level error (connection refused, timeout,
// DNS resolution failure) into a model_error. Context cancellation is
// returned unchanged so callers can tell it apart.
func MapNetworkError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return api.NewModelError(fmt.Sprintf("backend connection error: %s", err.Error()), err)
}

// ExtractErrorMessage tries to parse the response body as a ChatErrorResponse
// and returns the error message if found.
func ExtractErrorMessage(body io.Reader) string {
	if body == nil {
		return ""
	}

	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return ""
	}

	var errResp ChatErrorResponse
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		return errResp.Error.Message
	}

	return ""
}
