package bus

import (
	"context"
	"errors"
	"time"

	"github.com/rhuss/steward/pkg/tools"
)

// DefaultTimeout bounds how long Request waits for a response when the
// caller's context has no earlier deadline.
const DefaultTimeout = 30 * time.Second

var (
	// ErrNoSubscriber indicates no component is subscribed for the owner.
	ErrNoSubscriber = errors.New("no subscriber for owner")

	// ErrOwnerGone indicates the owner unsubscribed while a request was
	// outstanding.
	ErrOwnerGone = errors.New("owner unsubscribed")

	// ErrTimeout indicates no response arrived within the timeout.
	ErrTimeout = errors.New("bus request timed out")

	// ErrDuplicateID indicates a correlation id that is already pending.
	ErrDuplicateID = errors.New("duplicate request id")

	// ErrUnknownRequest indicates a response whose id is not pending,
	// usually because the caller already gave up.
	ErrUnknownRequest = errors.New("unknown or expired request id")

	// ErrClosed indicates the bus or subscription was closed.
	ErrClosed = errors.New("bus closed")

	// ErrAlreadySubscribed indicates a second subscription for one owner.
	ErrAlreadySubscribed = errors.New("owner already subscribed")
)

// Bus is the caller side of the request/response contract.
type Bus interface {
	// Request sends req to its owner and waits for the correlated response.
	Request(ctx context.Context, req *Request) (*Response, error)

	// WatchProgress delivers progress updates published for token to fn
	// until the returned function is called.
	WatchProgress(token string, fn func(tools.Progress)) (stop func())
}
