package coordinator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"k8s.io/utils/clock"

	"github.com/roach88/boarding/internal/lease"
	"github.com/roach88/boarding/internal/model"
	"github.com/roach88/boarding/internal/pool"
	"github.com/roach88/boarding/internal/queue"
	"github.com/roach88/boarding/internal/store"
)

// Coordinator orchestrates queue admission and reservations.
//
// Thread-safety: all methods are safe for concurrent use. Mutations are
// applied in the order they acquire mu.
type Coordinator struct {
	mu sync.Mutex

	store  *store.Store
	queue  *queue.Queue
	pool   *pool.Pool
	leases *lease.Manager
	clock  clock.WithTicker
	ids    IDGenerator
	logger *slog.Logger

	window   int
	timeout  time.Duration
	maxQueue int
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithClock sets the time source. Default: clock.RealClock{}.
func WithClock(c clock.WithTicker) Option {
	return func(co *Coordinator) {
		if c != nil {
			co.clock = c
		}
	}
}

// WithIDGenerator sets the reservation id generator. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(co *Coordinator) {
		if g != nil {
			co.ids = g
		}
	}
}

// WithLogger sets the logger. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(co *Coordinator) {
		if l != nil {
			co.logger = l
		}
	}
}

// WithWindowSize sets the admission window size K. Default: 20.
func WithWindowSize(k int) Option {
	return func(co *Coordinator) {
		co.window = k
	}
}

// WithLeaseTimeout sets the lease duration. Default: 300s.
func WithLeaseTimeout(d time.Duration) Option {
	return func(co *Coordinator) {
		co.timeout = d
	}
}

// WithMaxQueueSize caps the number of queued subjects. Default: 0 (no cap).
func WithMaxQueueSize(n int) Option {
	return func(co *Coordinator) {
		co.maxQueue = n
	}
}

// New creates a Coordinator over an open store.
func New(s *store.Store, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:   s,
		pool:    pool.New(s),
		clock:   clock.RealClock{},
		ids:     UUIDv7Generator{},
		logger:  slog.Default(),
		window:  lease.DefaultWindow,
		timeout: lease.DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.queue = queue.New(s, queue.WithLimit(c.maxQueue))
	c.maxQueue = c.queue.Limit()
	c.leases = lease.NewManager(c.window, c.timeout)
	c.window = c.leases.Window()
	c.timeout = c.leases.Timeout()
	return c
}

// WindowSize returns the admission window size K.
func (c *Coordinator) WindowSize() int { return c.window }

// LeaseTimeout returns the lease duration.
func (c *Coordinator) LeaseTimeout() time.Duration { return c.timeout }

// MaxQueueSize returns the queue size cap, or 0 when unbounded.
func (c *Coordinator) MaxQueueSize() int { return c.maxQueue }

// Clock returns the coordinator's time source.
func (c *Coordinator) Clock() clock.WithTicker { return c.clock }

// mutate runs fn under the serialization point: the coordinator mutex,
// then one immediate transaction. now is sampled after the lock is held so
// lease checks see the time at which the mutation actually applies.
//
// fn may run more than once if the database is busy; it must derive all
// results from tx and now.
func (c *Coordinator) mutate(ctx context.Context, fn func(tx *store.Tx, now time.Time) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.store.WithTx(ctx, func(tx *store.Tx) error {
		return fn(tx, c.clock.Now())
	})
}

// removeFromQueue deletes subject's entry, compacts, and leases every
// entry that moved into the window. Returns the position subject held.
func (c *Coordinator) removeFromQueue(ctx context.Context, tx *store.Tx, subject string, now time.Time) (int, []string, error) {
	position, err := c.queue.Leave(ctx, tx, subject)
	if err != nil {
		return 0, nil, err
	}
	admitted, err := c.leases.Grant(ctx, tx, now)
	if err != nil {
		return 0, nil, err
	}
	return position, admitted, nil
}

func (c *Coordinator) logAdmitted(admitted []string) {
	for _, subject := range admitted {
		c.logger.Info("lease granted", "subject", subject, "timeout", c.timeout)
	}
}

// rejected logs a business rejection at debug and returns err unchanged.
func (c *Coordinator) rejected(op string, err error) error {
	if model.IsBusinessError(err) {
		c.logger.Debug("operation rejected", "op", op, "code", model.CodeOf(err), "error", err)
	}
	return err
}
