// Package pool tracks fixed-capacity resources and their reserved counts.
package pool

import (
	"context"
	"fmt"

	"github.com/roach88/boarding/internal/model"
	"github.com/roach88/boarding/internal/store"
)

// Writer is the transactional surface the pool mutates. *store.Tx
// implements it.
type Writer interface {
	Resource(ctx context.Context, id string) (model.Resource, bool, error)
	IncrementReserved(ctx context.Context, id string) (bool, error)
	DecrementReserved(ctx context.Context, id string) (bool, error)
	UpsertResource(ctx context.Context, r model.Resource) error
}

var _ Writer = (*store.Tx)(nil)

// Pool is the resource directory with its live reservation counts.
type Pool struct {
	db *store.Store
}

// New creates a Pool over db.
func New(db *store.Store) *Pool {
	return &Pool{db: db}
}

// TryReserve claims one unit of resourceID for subject.
//
// The capacity check and the increment are one conditional UPDATE, so
// concurrent callers can never push reserved_count past capacity. When
// the update matches nothing the resource is looked up once more only to
// tell ResourceFull from ResourceNotFound.
func (p *Pool) TryReserve(ctx context.Context, w Writer, resourceID, subject string) error {
	ok, err := w.IncrementReserved(ctx, resourceID)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}

	r, found, err := w.Resource(ctx, resourceID)
	if err != nil {
		return err
	}
	if !found {
		return &model.Error{
			Code:     model.CodeResourceNotFound,
			Message:  "resource not found",
			Subject:  subject,
			Resource: resourceID,
		}
	}
	return &model.Error{
		Code:     model.CodeResourceFull,
		Message:  fmt.Sprintf("resource is full (%d/%d)", r.ReservedCount, r.Capacity),
		Subject:  subject,
		Resource: resourceID,
	}
}

// Release returns one unit of resourceID. The caller has already removed
// subject's reservation in the same transaction; a count that is already
// zero means the two tables disagree and is reported as an error.
func (p *Pool) Release(ctx context.Context, w Writer, resourceID, subject string) error {
	ok, err := w.DecrementReserved(ctx, resourceID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("release %s for %s: no reserved unit to release", resourceID, subject)
	}
	return nil
}

// Sync installs a resource directory. New resources are inserted, known
// ones get their name and capacity updated. Resources missing from the
// directory are left in place since reservations may still reference them.
//
// Lowering a capacity below the current reserved count is rejected.
func (p *Pool) Sync(ctx context.Context, w Writer, resources []model.Resource) error {
	for _, r := range resources {
		if r.Capacity < 0 {
			return fmt.Errorf("resource %s: negative capacity %d", r.ResourceID, r.Capacity)
		}
		current, found, err := w.Resource(ctx, r.ResourceID)
		if err != nil {
			return err
		}
		if found && r.Capacity < current.ReservedCount {
			return fmt.Errorf("resource %s: capacity %d is below %d existing reservations",
				r.ResourceID, r.Capacity, current.ReservedCount)
		}
		if err := w.UpsertResource(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

// Get returns the committed resource or model.ErrResourceNotFound.
func (p *Pool) Get(ctx context.Context, resourceID string) (model.Resource, error) {
	r, ok, err := p.db.Resource(ctx, resourceID)
	if err != nil {
		return model.Resource{}, err
	}
	if !ok {
		return model.Resource{}, &model.Error{
			Code:     model.CodeResourceNotFound,
			Message:  "resource not found",
			Resource: resourceID,
		}
	}
	return r, nil
}

// Statuses returns every resource with its occupancy level.
func (p *Pool) Statuses(ctx context.Context) ([]model.ResourceStatus, error) {
	resources, err := p.db.ListResources(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]model.ResourceStatus, len(resources))
	for i, r := range resources {
		out[i] = model.StatusOf(r)
	}
	return out, nil
}
