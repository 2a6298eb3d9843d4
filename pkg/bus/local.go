package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/rhuss/steward/pkg/tools"
)

var (
	busRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "steward_bus_requests_total",
			Help: "Bus requests by owner and outcome",
		},
		[]string{"owner", "outcome"},
	)

	busRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "steward_bus_request_duration_seconds",
			Help:    "Time from sending a bus request to receiving its response",
			Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"owner"},
	)

	busPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "steward_bus_pending_requests",
			Help: "Bus requests awaiting a response",
		},
	)
)

func init() {
	prometheus.MustRegister(busRequests, busRequestDuration, busPending)
}

// DefaultMailboxSize is the request buffer of a subscription.
const DefaultMailboxSize = 64

// Local is an in-process Bus. It is safe for concurrent use.
type Local struct {
	timeout     time.Duration
	mailboxSize int
	logger      *slog.Logger

	mu     sync.RWMutex
	owners map[string]*Subscription
	closed bool

	pendingMu sync.Mutex
	pending   map[string]chan *Response

	watchMu  sync.RWMutex
	watchers map[string]func(tools.Progress)
}

// Option configures a Local bus.
type Option func(*Local)

// WithTimeout sets the default request timeout.
func WithTimeout(d time.Duration) Option {
	return func(b *Local) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithMailboxSize sets the per-owner request buffer.
func WithMailboxSize(n int) Option {
	return func(b *Local) {
		if n > 0 {
			b.mailboxSize = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Local) { b.logger = l }
}

// NewLocal creates an in-process bus.
func NewLocal(opts ...Option) *Local {
	b := &Local{
		timeout:     DefaultTimeout,
		mailboxSize: DefaultMailboxSize,
		logger:      slog.Default(),
		owners:      make(map[string]*Subscription),
		pending:     make(map[string]chan *Response),
		watchers:    make(map[string]func(tools.Progress)),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

var _ Bus = (*Local)(nil)

// Subscribe registers the caller as the component answering requests for
// owner.
func (b *Local) Subscribe(owner string) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}
	if _, ok := b.owners[owner]; ok {
		return nil, fmt.Errorf("%w: %s", ErrAlreadySubscribed, owner)
	}

	sub := &Subscription{
		owner:   owner,
		bus:     b,
		mailbox: make(chan *Request, b.mailboxSize),
		done:    make(chan struct{}),
	}
	b.owners[owner] = sub
	b.logger.Debug("bus subscription added", "owner", owner)
	return sub, nil
}

// Request sends req to its owner and waits for the correlated response.
func (b *Local) Request(ctx context.Context, req *Request) (*Response, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	b.mu.RLock()
	sub, ok := b.owners[req.Owner]
	b.mu.RUnlock()
	if !ok {
		busRequests.WithLabelValues(req.Owner, "no_subscriber").Inc()
		return nil, fmt.Errorf("%w: %s", ErrNoSubscriber, req.Owner)
	}

	respCh, err := b.createPending(req.ID)
	if err != nil {
		return nil, err
	}
	defer b.closePending(req.ID)

	waitCtx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()
	if deadline, ok := waitCtx.Deadline(); ok {
		req.Deadline = deadline
	}

	start := time.Now()
	if err := sub.deliver(waitCtx, req); err != nil {
		err = b.waitError(ctx, req, err)
		busRequests.WithLabelValues(req.Owner, outcomeOf(err)).Inc()
		return nil, err
	}

	b.logger.Debug("bus request sent", "owner", req.Owner, "op", req.Op, "target", req.Target, "request_id", req.ID)

	select {
	case resp := <-respCh:
		busRequestDuration.WithLabelValues(req.Owner).Observe(time.Since(start).Seconds())
		outcome := "success"
		if !resp.Success {
			outcome = "failure"
		}
		busRequests.WithLabelValues(req.Owner, outcome).Inc()
		return resp, nil
	case <-sub.done:
		busRequests.WithLabelValues(req.Owner, "owner_gone").Inc()
		return nil, fmt.Errorf("%w: %s", ErrOwnerGone, req.Owner)
	case <-waitCtx.Done():
		err := b.waitError(ctx, req, waitCtx.Err())
		busRequests.WithLabelValues(req.Owner, outcomeOf(err)).Inc()
		return nil, err
	}
}

// waitError distinguishes a caller cancellation from the bus timeout.
func (b *Local) waitError(parent context.Context, req *Request, err error) error {
	if errors.Is(err, ErrOwnerGone) {
		return fmt.Errorf("%w: %s", err, req.Owner)
	}
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		b.logger.Warn("bus request timed out",
			"owner", req.Owner,
			"target", req.Target,
			"request_id", req.ID,
			"timeout", b.timeout,
		)
		return fmt.Errorf("%w after %s: %s %s", ErrTimeout, b.timeout, req.Op, req.Target)
	}
	return err
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	case errors.Is(err, ErrOwnerGone):
		return "owner_gone"
	default:
		return "error"
	}
}

// respond routes a response to the waiting caller.
func (b *Local) respond(owner string, resp *Response) error {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()

	ch, ok := b.pending[resp.ID]
	if !ok {
		b.logger.Warn("dropping bus response for unknown request",
			"owner", owner,
			"request_id", resp.ID,
		)
		return fmt.Errorf("%w: %s", ErrUnknownRequest, resp.ID)
	}

	// The channel has capacity one and only one response is accepted.
	select {
	case ch <- resp:
		return nil
	default:
		b.logger.Warn("dropping duplicate bus response", "owner", owner, "request_id", resp.ID)
		return fmt.Errorf("%w: %s", ErrDuplicateID, resp.ID)
	}
}

func (b *Local) createPending(id string) (chan *Response, error) {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()

	if _, exists := b.pending[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	ch := make(chan *Response, 1)
	b.pending[id] = ch
	busPending.Inc()
	return ch, nil
}

func (b *Local) closePending(id string) {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()

	if _, ok := b.pending[id]; ok {
		delete(b.pending, id)
		busPending.Dec()
	}
}

// PendingCount returns the number of requests awaiting a response.
func (b *Local) PendingCount() int {
	b.pendingMu.Lock()
	defer b.pendingMu.Unlock()
	return len(b.pending)
}

// WatchProgress delivers progress published for token to fn.
func (b *Local) WatchProgress(token string, fn func(tools.Progress)) func() {
	b.watchMu.Lock()
	b.watchers[token] = fn
	b.watchMu.Unlock()

	return func() {
		b.watchMu.Lock()
		delete(b.watchers, token)
		b.watchMu.Unlock()
	}
}

func (b *Local) publishProgress(token string, p tools.Progress) {
	if token == "" {
		return
	}
	b.watchMu.RLock()
	fn, ok := b.watchers[token]
	b.watchMu.RUnlock()
	if ok {
		fn(p)
	}
}

func (b *Local) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.owners[sub.owner] == sub {
		delete(b.owners, sub.owner)
	}
}

// Close closes every subscription. Outstanding requests fail with
// ErrOwnerGone and new subscriptions are refused.
func (b *Local) Close() {
	b.mu.Lock()
	b.closed = true
	subs := make([]*Subscription, 0, len(b.owners))
	for _, sub := range b.owners {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	b.logger.Info("bus closed", "subscriptions", len(subs))
}
