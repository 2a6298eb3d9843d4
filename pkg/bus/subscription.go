package bus

import (
	"context"
	"sync"

	"github.com/rhuss/steward/pkg/tools"
)

// Subscription is the owner side of a Local bus: it receives the requests
// addressed to one owner and sends back their responses.
type Subscription struct {
	owner   string
	bus     *Local
	mailbox chan *Request

	closeOnce sync.Once
	done      chan struct{}
}

// Owner returns the owner id this subscription answers for.
func (s *Subscription) Owner() string {
	return s.owner
}

// Requests returns the channel of incoming requests. It is never closed;
// select on Done to detect the end of the subscription.
func (s *Subscription) Requests() <-chan *Request {
	return s.mailbox
}

// Done is closed when the subscription ends.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Respond sends the response for a received request.
func (s *Subscription) Respond(resp *Response) error {
	return s.bus.respond(s.owner, resp)
}

// ReportProgress publishes a progress update for a request's token.
func (s *Subscription) ReportProgress(token string, p tools.Progress) {
	s.bus.publishProgress(token, p)
}

// Close ends the subscription. Requests still waiting for this owner fail
// with ErrOwnerGone.
func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		s.bus.unsubscribe(s)
		close(s.done)
	})
}

func (s *Subscription) deliver(ctx context.Context, req *Request) error {
	select {
	case <-s.done:
		return ErrOwnerGone
	default:
	}
	select {
	case s.mailbox <- req:
		return nil
	case <-s.done:
		return ErrOwnerGone
	case <-ctx.Done():
		return ctx.Err()
	}
}

// HandlerFunc answers one request. The returned response's ID is set by
// Serve.
type HandlerFunc func(ctx context.Context, req *Request) *Response

// Serve answers requests from sub with h until ctx is cancelled or the
// subscription closes. Each request runs in its own goroutine bounded by
// the request deadline; Serve waits for running handlers before returning.
func Serve(ctx context.Context, sub *Subscription, h HandlerFunc) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sub.Done():
			return ErrClosed
		case req := <-sub.Requests():
			wg.Add(1)
			go func(req *Request) {
				defer wg.Done()

				reqCtx := ctx
				if !req.Deadline.IsZero() {
					var cancel context.CancelFunc
					reqCtx, cancel = context.WithDeadline(ctx, req.Deadline)
					defer cancel()
				}

				resp := safeHandle(reqCtx, h, req)
				resp.ID = req.ID
				_ = sub.Respond(resp)
			}(req)
		}
	}
}

// ProgressReporter returns a sink that publishes updates for req over sub.
// It returns nil when the caller did not ask for progress.
func ProgressReporter(sub *Subscription, req *Request) tools.ProgressSink {
	if req.ProgressToken == "" {
		return nil
	}
	token := req.ProgressToken
	return tools.ProgressFunc(func(_ context.Context, p tools.Progress) {
		sub.ReportProgress(token, p)
	})
}

func safeHandle(ctx context.Context, h HandlerFunc, req *Request) (resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			resp = Failure("internal error: handler panicked")
		}
	}()
	resp = h(ctx, req)
	if resp == nil {
		resp = Failure("handler returned no response")
	}
	return resp
}
