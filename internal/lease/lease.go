// Package lease manages booking leases for entries in the admission window.
//
// A lease is granted the first time an entry's position is at or inside
// the window and is anchored to that moment: the deadline is now+timeout
// and is never moved afterwards. Leases are revoked by removing the entry
// from the queue, which deletes the deadline with the row, or by Reconcile
// when the window has shrunk since the leases were issued.
package lease

import (
	"context"
	"time"

	"github.com/roach88/boarding/internal/model"
	"github.com/roach88/boarding/internal/store"
)

const (
	// DefaultWindow is the number of front positions eligible to book.
	DefaultWindow = 20

	// DefaultTimeout is how long an admitted entry has to book.
	DefaultTimeout = 300 * time.Second
)

// Granter is the transactional surface used to issue leases. *store.Tx
// implements it.
type Granter interface {
	GrantLeases(ctx context.Context, window int, expiresAt time.Time) ([]string, error)
}

// Reconciler is the transactional surface used to realign stored leases
// with the current window. *store.Tx implements it.
type Reconciler interface {
	Granter
	RevokeLeasesBeyond(ctx context.Context, window int) ([]string, error)
}

var (
	_ Granter    = (*store.Tx)(nil)
	_ Reconciler = (*store.Tx)(nil)
)

// Manager issues leases and computes their remaining time.
//
// Manager holds no mutable state; all lease data lives in the store.
type Manager struct {
	window  int
	timeout time.Duration
}

// NewManager creates a Manager. Non-positive arguments fall back to
// DefaultWindow and DefaultTimeout.
func NewManager(window int, timeout time.Duration) *Manager {
	if window <= 0 {
		window = DefaultWindow
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Manager{window: window, timeout: timeout}
}

// Window returns the admission window size K.
func (m *Manager) Window() int { return m.window }

// Timeout returns the lease duration.
func (m *Manager) Timeout() time.Duration { return m.timeout }

// InWindow reports whether position is inside the admission window.
func (m *Manager) InWindow(position int) bool {
	return position >= 1 && position <= m.window
}

// Grant issues a lease expiring at now+timeout to every window entry that
// does not hold one yet. Call it after any change that can move entries
// into the window. Returns the newly admitted subjects in position order.
func (m *Manager) Grant(ctx context.Context, g Granter, now time.Time) ([]string, error) {
	return g.GrantLeases(ctx, m.window, now.Add(m.timeout))
}

// Reconcile makes stored leases match the window: entries beyond it lose
// their lease, and window entries without one are granted a fresh lease
// from now. Leases already held inside the window keep their deadline.
// Run it once per process, before any other mutation, since the window
// may differ from the one the database was last written with.
func (m *Manager) Reconcile(ctx context.Context, r Reconciler, now time.Time) (revoked, granted []string, err error) {
	revoked, err = r.RevokeLeasesBeyond(ctx, m.window)
	if err != nil {
		return nil, nil, err
	}
	granted, err = m.Grant(ctx, r, now)
	if err != nil {
		return nil, nil, err
	}
	return revoked, granted, nil
}

// TimeRemaining returns max(0, deadline-now). ok is false when the entry
// is outside the window or holds no lease.
func (m *Manager) TimeRemaining(e model.QueueEntry, now time.Time) (remaining time.Duration, ok bool) {
	if !m.InWindow(e.Position) || e.LeaseExpiresAt == nil {
		return 0, false
	}
	remaining = e.LeaseExpiresAt.Sub(now)
	if remaining < 0 {
		remaining = 0
	}
	return remaining, true
}

// Info computes the timeout view of e at now. Nothing is cached: callers
// get a fresh value derived from the persisted deadline on every call.
func (m *Manager) Info(e model.QueueEntry, now time.Time) model.TimeoutInfo {
	info := model.TimeoutInfo{
		SubjectID: e.SubjectID,
		Position:  e.Position,
		InWindow:  m.InWindow(e.Position),
	}
	if remaining, ok := m.TimeRemaining(e, now); ok {
		info.TimeRemaining = remaining
		info.LeaseExpiresAt = e.LeaseExpiresAt
	}
	return info
}

// Admitted reports whether e may book at now: inside the window with an
// unexpired lease.
func (m *Manager) Admitted(e model.QueueEntry, now time.Time) bool {
	return m.InWindow(e.Position) && e.HasLease() && !e.LeaseExpired(now)
}

// Expired returns window entries whose lease has run out at now, in
// position order.
func (m *Manager) Expired(ctx context.Context, db *store.Store, now time.Time) ([]model.QueueEntry, error) {
	return db.ExpiredLeases(ctx, m.window, now)
}
