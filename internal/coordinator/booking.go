package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/boarding/internal/model"
	"github.com/roach88/boarding/internal/store"
)

// CreateReservation books one unit of resourceID for subject.
//
// subject must be queued inside the admission window with an unexpired
// lease and must not already hold a reservation. On success the
// reservation is recorded, subject leaves the queue, and entries that
// shift into the window are leased, all in one transaction.
//
// The lease is checked at commit time. If it has already expired the
// entry is evicted (and that eviction is committed) before
// AdmissionDenied is returned. Any other rejection changes nothing.
//
// Errors: AdmissionDenied, ResourceFull, ResourceNotFound, AlreadyReserved,
// InvalidSubject.
func (c *Coordinator) CreateReservation(ctx context.Context, subject, resourceID string) (model.Reservation, error) {
	subject, err := model.NormalizeID(subject)
	if err != nil {
		return model.Reservation{}, err
	}
	resourceID, err = model.NormalizeID(resourceID)
	if err != nil {
		return model.Reservation{}, err
	}

	var (
		res      model.Reservation
		expired  bool
		position int
		admitted []string
		id       string
	)
	err = c.mutate(ctx, func(tx *store.Tx, now time.Time) error {
		expired = false

		if _, ok, err := tx.Reservation(ctx, subject); err != nil {
			return err
		} else if ok {
			return model.Errorf(model.CodeAlreadyReserved, subject, "subject already holds a reservation")
		}

		entry, ok, err := tx.QueueEntry(ctx, subject)
		if err != nil {
			return err
		}
		if !ok {
			return model.Errorf(model.CodeAdmissionDenied, subject, "subject is not in the queue")
		}
		if !c.leases.Admitted(entry, now) {
			if !c.leases.InWindow(entry.Position) || !entry.LeaseExpired(now) {
				return model.Errorf(model.CodeAdmissionDenied, subject,
					"position %d is outside the admission window of %d", entry.Position, c.window)
			}
			position, admitted, err = c.removeFromQueue(ctx, tx, subject, now)
			if err != nil {
				return err
			}
			expired = true
			return nil
		}

		if err := c.pool.TryReserve(ctx, tx, resourceID, subject); err != nil {
			return err
		}

		if id == "" {
			id = c.ids.Generate()
		}
		res = model.Reservation{
			ReservationID: id,
			SubjectID:     subject,
			ResourceID:    resourceID,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.InsertReservation(ctx, res); err != nil {
			return fmt.Errorf("create reservation: %w", err)
		}

		position, admitted, err = c.removeFromQueue(ctx, tx, subject, now)
		return err
	})
	if err != nil {
		return model.Reservation{}, c.rejected("reserve", err)
	}

	if expired {
		c.logger.Info("subject left queue", "subject", subject, "position", position, "reason", "lease expired")
		c.logAdmitted(admitted)
		return model.Reservation{}, c.rejected("reserve", &model.Error{
			Code:     model.CodeAdmissionDenied,
			Message:  "lease expired",
			Subject:  subject,
			Resource: resourceID,
		})
	}

	c.logger.Info("reservation created",
		"subject", subject,
		"resource", resourceID,
		"reservation", res.ReservationID,
		"position", position,
	)
	c.logAdmitted(admitted)
	return res, nil
}

// ChangeReservation moves subject's reservation to newResourceID. The new
// unit is claimed before the old one is released, all in one transaction,
// so a failed change leaves the original reservation untouched. Changing
// to the current resource succeeds without doing anything.
//
// Errors: NotReserved, ResourceFull, ResourceNotFound, InvalidSubject.
func (c *Coordinator) ChangeReservation(ctx context.Context, subject, newResourceID string) (model.Reservation, error) {
	subject, err := model.NormalizeID(subject)
	if err != nil {
		return model.Reservation{}, err
	}
	newResourceID, err = model.NormalizeID(newResourceID)
	if err != nil {
		return model.Reservation{}, err
	}

	var (
		res  model.Reservation
		from string
	)
	err = c.mutate(ctx, func(tx *store.Tx, now time.Time) error {
		current, ok, err := tx.Reservation(ctx, subject)
		if err != nil {
			return err
		}
		if !ok {
			return model.Errorf(model.CodeNotReserved, subject, "subject holds no reservation")
		}
		from = current.ResourceID
		res = current
		if current.ResourceID == newResourceID {
			return nil
		}

		if err := c.pool.TryReserve(ctx, tx, newResourceID, subject); err != nil {
			return err
		}
		if err := c.pool.Release(ctx, tx, current.ResourceID, subject); err != nil {
			return err
		}
		if err := tx.MoveReservation(ctx, subject, newResourceID, now); err != nil {
			return err
		}
		res.ResourceID = newResourceID
		res.UpdatedAt = now
		return nil
	})
	if err != nil {
		return model.Reservation{}, c.rejected("change", err)
	}

	if from != newResourceID {
		c.logger.Info("reservation changed", "subject", subject, "from", from, "to", newResourceID)
	}
	return res, nil
}

// CancelReservation releases subject's reservation. The subject is not
// re-enqueued.
//
// Errors: NotReserved, InvalidSubject.
func (c *Coordinator) CancelReservation(ctx context.Context, subject string) error {
	subject, err := model.NormalizeID(subject)
	if err != nil {
		return err
	}

	var resourceID string
	err = c.mutate(ctx, func(tx *store.Tx, _ time.Time) error {
		var (
			ok  bool
			err error
		)
		resourceID, ok, err = tx.DeleteReservation(ctx, subject)
		if err != nil {
			return err
		}
		if !ok {
			return model.Errorf(model.CodeNotReserved, subject, "subject holds no reservation")
		}
		return c.pool.Release(ctx, tx, resourceID, subject)
	})
	if err != nil {
		return c.rejected("cancel", err)
	}

	c.logger.Info("reservation cancelled", "subject", subject, "resource", resourceID)
	return nil
}

// GetReservation returns subject's reservation.
//
// Errors: NotReserved, InvalidSubject.
func (c *Coordinator) GetReservation(ctx context.Context, subject string) (model.Reservation, error) {
	subject, err := model.NormalizeID(subject)
	if err != nil {
		return model.Reservation{}, err
	}
	res, ok, err := c.store.Reservation(ctx, subject)
	if err != nil {
		return model.Reservation{}, err
	}
	if !ok {
		return model.Reservation{}, model.Errorf(model.CodeNotReserved, subject, "subject holds no reservation")
	}
	return res, nil
}

// ListResources returns every resource with its occupancy level.
func (c *Coordinator) ListResources(ctx context.Context) ([]model.ResourceStatus, error) {
	return c.pool.Statuses(ctx)
}

// Passengers returns the reservations on resourceID ordered by creation.
//
// Errors: ResourceNotFound.
func (c *Coordinator) Passengers(ctx context.Context, resourceID string) ([]model.Reservation, error) {
	resourceID, err := model.NormalizeID(resourceID)
	if err != nil {
		return nil, err
	}
	if _, err := c.pool.Get(ctx, resourceID); err != nil {
		return nil, err
	}
	return c.store.ListReservations(ctx, resourceID)
}

// SyncDirectory installs the external resource directory. Identifiers are
// normalized the same way subjects are.
func (c *Coordinator) SyncDirectory(ctx context.Context, resources []model.Resource) error {
	normalized := make([]model.Resource, len(resources))
	for i, r := range resources {
		id, err := model.NormalizeID(r.ResourceID)
		if err != nil {
			return fmt.Errorf("directory entry %d: %w", i, err)
		}
		r.ResourceID = id
		r.ReservedCount = 0
		normalized[i] = r
	}

	err := c.mutate(ctx, func(tx *store.Tx, _ time.Time) error {
		return c.pool.Sync(ctx, tx, normalized)
	})
	if err != nil {
		return fmt.Errorf("sync directory: %w", err)
	}
	c.logger.Info("resource directory synced", "resources", len(normalized))
	return nil
}
