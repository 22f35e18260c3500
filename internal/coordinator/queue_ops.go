package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/boarding/internal/model"
	"github.com/roach88/boarding/internal/store"
)

// JoinQueue appends subject to the queue and returns its entry. If the
// new position is inside the window the entry already carries its lease.
//
// Errors: AlreadyInQueue, AlreadyReserved (subject already booked),
// QueueFull, InvalidSubject.
func (c *Coordinator) JoinQueue(ctx context.Context, subject string) (model.QueueEntry, error) {
	subject, err := model.NormalizeID(subject)
	if err != nil {
		return model.QueueEntry{}, err
	}

	var entry model.QueueEntry
	err = c.mutate(ctx, func(tx *store.Tx, now time.Time) error {
		if _, reserved, err := tx.Reservation(ctx, subject); err != nil {
			return err
		} else if reserved {
			return model.Errorf(model.CodeAlreadyReserved, subject, "subject already holds a reservation")
		}

		if _, err := c.queue.Join(ctx, tx, subject, now); err != nil {
			return err
		}
		if _, err := c.leases.Grant(ctx, tx, now); err != nil {
			return err
		}

		var ok bool
		entry, ok, err = tx.QueueEntry(ctx, subject)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("join %s: entry missing after insert", subject)
		}
		return nil
	})
	if err != nil {
		return model.QueueEntry{}, c.rejected("join", err)
	}

	c.logger.Info("subject joined queue",
		"subject", subject,
		"position", entry.Position,
		"leased", entry.HasLease(),
	)
	return entry, nil
}

// MoveToEnd sends subject to the back of the queue: it leaves, the entries
// behind it move up, and it rejoins at the new last position with a fresh
// join time. Its old lease goes with the old entry; it is leased again
// only if the last position is inside the window. Returns the new entry.
//
// Errors: NotInQueue (nothing changes), InvalidSubject.
func (c *Coordinator) MoveToEnd(ctx context.Context, subject string) (model.QueueEntry, error) {
	subject, err := model.NormalizeID(subject)
	if err != nil {
		return model.QueueEntry{}, err
	}

	var (
		entry    model.QueueEntry
		from     int
		admitted []string
	)
	err = c.mutate(ctx, func(tx *store.Tx, now time.Time) error {
		var err error
		from, err = c.queue.Leave(ctx, tx, subject)
		if err != nil {
			return err
		}
		if _, err := c.queue.Join(ctx, tx, subject, now); err != nil {
			return err
		}
		admitted, err = c.leases.Grant(ctx, tx, now)
		if err != nil {
			return err
		}

		var ok bool
		entry, ok, err = tx.QueueEntry(ctx, subject)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("move %s: entry missing after rejoin", subject)
		}
		return nil
	})
	if err != nil {
		return model.QueueEntry{}, c.rejected("rejoin", err)
	}

	c.logger.Info("subject moved to end of queue",
		"subject", subject,
		"from", from,
		"position", entry.Position,
	)
	c.logAdmitted(admitted)
	return entry, nil
}

// ReconcileLeases aligns stored leases with the configured window. A
// database written under a different window size can hold leases beyond
// the window or window entries without one; the first are cleared and the
// second are leased from now. Callers run it once after opening, before
// serving requests.
func (c *Coordinator) ReconcileLeases(ctx context.Context) error {
	var revoked, granted []string
	err := c.mutate(ctx, func(tx *store.Tx, now time.Time) error {
		var err error
		revoked, granted, err = c.leases.Reconcile(ctx, tx, now)
		return err
	})
	if err != nil {
		return fmt.Errorf("reconcile leases: %w", err)
	}

	for _, subject := range revoked {
		c.logger.Info("lease revoked", "subject", subject, "reason", "outside window", "window", c.window)
	}
	c.logAdmitted(granted)
	return nil
}

// LeaveQueue removes subject from the queue. Entries behind it move up one
// position and any that enter the window receive a lease.
//
// Errors: NotInQueue (nothing else changes), InvalidSubject.
func (c *Coordinator) LeaveQueue(ctx context.Context, subject string) error {
	return c.leave(ctx, subject, "leave")
}

// ForceLeave evicts subject with the same structural effect as LeaveQueue.
// reason is recorded in the log.
func (c *Coordinator) ForceLeave(ctx context.Context, subject, reason string) error {
	if reason == "" {
		reason = "forced"
	}
	return c.leave(ctx, subject, reason)
}

func (c *Coordinator) leave(ctx context.Context, subject, reason string) error {
	subject, err := model.NormalizeID(subject)
	if err != nil {
		return err
	}

	var (
		position int
		admitted []string
	)
	err = c.mutate(ctx, func(tx *store.Tx, now time.Time) error {
		var err error
		position, admitted, err = c.removeFromQueue(ctx, tx, subject, now)
		return err
	})
	if err != nil {
		return c.rejected(reason, err)
	}

	c.logger.Info("subject left queue", "subject", subject, "position", position, "reason", reason)
	c.logAdmitted(admitted)
	return nil
}

// evictIfExpired removes subject only if, at commit time, it still sits in
// the window with an expired lease. Returns false when the entry has
// meanwhile booked or left, so the sweeper never evicts on stale data.
func (c *Coordinator) evictIfExpired(ctx context.Context, subject string) (bool, error) {
	var (
		evicted  bool
		position int
		admitted []string
	)
	err := c.mutate(ctx, func(tx *store.Tx, now time.Time) error {
		evicted = false
		entry, ok, err := tx.QueueEntry(ctx, subject)
		if err != nil || !ok {
			return err
		}
		if !c.leases.InWindow(entry.Position) || !entry.LeaseExpired(now) {
			return nil
		}
		position, admitted, err = c.removeFromQueue(ctx, tx, subject, now)
		if err != nil {
			return err
		}
		evicted = true
		return nil
	})
	if err != nil || !evicted {
		return false, err
	}

	c.logger.Info("subject left queue", "subject", subject, "position", position, "reason", "lease expired")
	c.logAdmitted(admitted)
	return true, nil
}

// GetPosition returns subject's current position. ok is false when the
// subject is not queued.
func (c *Coordinator) GetPosition(ctx context.Context, subject string) (position int, ok bool, err error) {
	subject, err = model.NormalizeID(subject)
	if err != nil {
		return 0, false, err
	}
	return c.queue.PositionOf(ctx, subject)
}

// ListQueue returns every entry in position order.
func (c *Coordinator) ListQueue(ctx context.Context) ([]model.QueueEntry, error) {
	return c.queue.List(ctx)
}

// GetTimeoutInfo returns subject's lease view computed from the persisted
// deadline and the current time. ok is false when the subject is not queued.
func (c *Coordinator) GetTimeoutInfo(ctx context.Context, subject string) (model.TimeoutInfo, bool, error) {
	subject, err := model.NormalizeID(subject)
	if err != nil {
		return model.TimeoutInfo{}, false, err
	}
	entry, ok, err := c.queue.Entry(ctx, subject)
	if err != nil || !ok {
		return model.TimeoutInfo{}, false, err
	}
	return c.leases.Info(entry, c.clock.Now()), true, nil
}

// ListTimeouts returns the lease view of every queued entry in position order.
func (c *Coordinator) ListTimeouts(ctx context.Context) ([]model.TimeoutInfo, error) {
	entries, err := c.queue.List(ctx)
	if err != nil {
		return nil, err
	}
	now := c.clock.Now()
	out := make([]model.TimeoutInfo, len(entries))
	for i, e := range entries {
		out[i] = c.leases.Info(e, now)
	}
	return out, nil
}

// QueueSize returns the number of queued subjects.
func (c *Coordinator) QueueSize(ctx context.Context) (int, error) {
	return c.queue.Size(ctx)
}

// AdmittedCount returns how many queued subjects sit inside the window.
func (c *Coordinator) AdmittedCount(ctx context.Context) (int, error) {
	size, err := c.queue.Size(ctx)
	if err != nil {
		return 0, err
	}
	return min(size, c.window), nil
}

// Stats summarizes the queue.
func (c *Coordinator) Stats(ctx context.Context) (model.QueueStats, error) {
	size, err := c.queue.Size(ctx)
	if err != nil {
		return model.QueueStats{}, err
	}
	return model.QueueStats{
		Size:     size,
		Admitted: min(size, c.window),
		Window:   c.window,
		MaxSize:  c.maxQueue,
		Full:     c.queue.Full(size),
	}, nil
}
