package tools

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound indicates an unknown tool name or resource uri.
	ErrNotFound = errors.New("not found")

	// ErrForbidden indicates the caller level does not satisfy the
	// descriptor's visibility.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidArguments indicates arguments that are not valid JSON or
	// violate the tool's input schema.
	ErrInvalidArguments = errors.New("invalid arguments")

	// ErrInvalidDescriptor indicates a descriptor that cannot be registered.
	ErrInvalidDescriptor = errors.New("invalid descriptor")

	// ErrDuplicate indicates a name or uri that is already registered
	// when the registry rejects duplicates.
	ErrDuplicate = errors.New("already registered")
)

// HandlerError reports a failure inside the owning component. The message
// is preserved verbatim so the model and the caller see what the component
// said.
type HandlerError struct {
	Tool    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *HandlerError) Error() string {
	return fmt.Sprintf("tool %s failed: %s", e.Tool, e.Message)
}

// Unwrap returns the underlying error, if any.
func (e *HandlerError) Unwrap() error {
	return e.Err
}

// NewHandlerError wraps err as a HandlerError for tool. If err already is a
// HandlerError it is returned unchanged.
func NewHandlerError(tool string, err error) *HandlerError {
	var he *HandlerError
	if errors.As(err, &he) {
		return he
	}
	return &HandlerError{Tool: tool, Message: err.Error(), Err: err}
}

// IsRecoverable reports whether err is one of the tool-level failures that
// are fed back to the model instead of aborting a turn.
func IsRecoverable(err error) bool {
	var he *HandlerError
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, ErrInvalidArguments) ||
		errors.As(err, &he)
}
