package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// DefaultSweepInterval is how often the sweeper looks for expired leases.
const DefaultSweepInterval = 10 * time.Second

// ErrSweeperRunning is returned by Start when the sweeper is already running.
var ErrSweeperRunning = errors.New("sweeper already running")

// Sweeper periodically evicts queue entries whose lease has expired.
//
// A Sweeper does nothing until Start is called. Each run reads the expired
// entries and evicts them one at a time through the coordinator, which
// re-checks expiry at commit time.
//
// Thread-safety: Start, Stop and RunOnce are safe for concurrent use.
type Sweeper struct {
	coord    *Coordinator
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweepInterval sets the run interval. Default: 10s.
func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithSweeperLogger sets the logger. Default: the coordinator's logger.
func WithSweeperLogger(l *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSweeper creates a stopped Sweeper for c.
func NewSweeper(c *Coordinator, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		coord:    c,
		interval: DefaultSweepInterval,
		logger:   c.logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Interval returns the run interval.
func (s *Sweeper) Interval() time.Duration { return s.interval }

// Start launches the sweep loop. The ticker is registered before Start
// returns, so a fake clock advanced right after Start drives the loop.
// The loop exits when ctx is cancelled or Stop is called.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		return ErrSweeperRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	ticker := s.coord.clock.NewTicker(s.interval)
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done

	s.logger.Info("sweeper starting", "interval", s.interval)
	go s.loop(ctx, ticker, done)
	return nil
}

// Stop halts the loop and waits for an in-flight run to finish. Stopping
// a stopped sweeper is a no-op.
func (s *Sweeper) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.logger.Info("sweeper stopped")
}

// Running reports whether the loop is active.
func (s *Sweeper) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancel != nil
}

func (s *Sweeper) loop(ctx context.Context, ticker clock.Ticker, done chan struct{}) {
	defer close(done)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("sweep failed", "error", err)
			}
		}
	}
}

// RunOnce performs one sweep and returns how many entries were evicted.
// An entry that books or leaves between the read and its eviction is
// skipped.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	c := s.coord
	expired, err := c.leases.Expired(ctx, c.store, c.clock.Now())
	if err != nil {
		return 0, err
	}

	evicted := 0
	var errs []error
	for _, e := range expired {
		ok, err := c.evictIfExpired(ctx, e.SubjectID)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			evicted++
		}
	}

	if evicted > 0 {
		s.logger.Info("sweep evicted expired leases", "evicted", evicted)
	}
	return evicted, errors.Join(errs...)
}
