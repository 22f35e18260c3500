// Package queue maintains the ordered waiting line.
//
// Positions are 1-based and dense. Every structural change runs inside a
// caller-supplied store transaction so that joining, leaving and the
// compaction that follows a removal commit together or not at all.
package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/roach88/boarding/internal/model"
	"github.com/roach88/boarding/internal/store"
)

// Writer is the transactional surface the queue mutates. *store.Tx
// implements it.
type Writer interface {
	QueueEntry(ctx context.Context, subject string) (model.QueueEntry, bool, error)
	QueueSize(ctx context.Context) (int, error)
	InsertQueueEntry(ctx context.Context, subject string, position int, joinedAt time.Time) error
	DeleteQueueEntry(ctx context.Context, subject string) (int, bool, error)
	CompactAfter(ctx context.Context, removed int) (int64, error)
}

var _ Writer = (*store.Tx)(nil)

// Queue reads committed queue state and applies mutations through a Writer.
type Queue struct {
	db    *store.Store
	limit int
}

// Option configures a Queue.
type Option func(*Queue)

// WithLimit caps the number of queued entries. Zero or less means
// unbounded, which is the default.
func WithLimit(n int) Option {
	return func(q *Queue) {
		if n > 0 {
			q.limit = n
		}
	}
}

// New creates a Queue over db.
func New(db *store.Store, opts ...Option) *Queue {
	q := &Queue{db: db}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Limit returns the configured size cap, or 0 when unbounded.
func (q *Queue) Limit() int { return q.limit }

// Full reports whether a queue of size entries accepts no more joins.
func (q *Queue) Full(size int) bool {
	return q.limit > 0 && size >= q.limit
}

// Join appends subject at position size+1.
//
// Returns model.ErrAlreadyInQueue if subject already has an entry and
// model.ErrQueueFull if the queue is at its limit. Two concurrent joins
// cannot share a position: the caller serializes writers and
// UNIQUE(position) rejects anything that slips through.
func (q *Queue) Join(ctx context.Context, w Writer, subject string, at time.Time) (int, error) {
	if _, ok, err := w.QueueEntry(ctx, subject); err != nil {
		return 0, err
	} else if ok {
		return 0, model.Errorf(model.CodeAlreadyInQueue, subject, "subject already in queue")
	}

	size, err := w.QueueSize(ctx)
	if err != nil {
		return 0, err
	}
	if q.Full(size) {
		return 0, model.Errorf(model.CodeQueueFull, subject, "queue is full (%d entries)", q.limit)
	}
	position := size + 1
	if err := w.InsertQueueEntry(ctx, subject, position, at); err != nil {
		return 0, fmt.Errorf("join %s: %w", subject, err)
	}
	return position, nil
}

// Leave removes subject and closes the gap it leaves behind. Returns the
// position subject held, or model.ErrNotInQueue.
func (q *Queue) Leave(ctx context.Context, w Writer, subject string) (int, error) {
	position, ok, err := w.DeleteQueueEntry(ctx, subject)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, model.Errorf(model.CodeNotInQueue, subject, "subject not in queue")
	}
	if _, err := w.CompactAfter(ctx, position); err != nil {
		return 0, fmt.Errorf("leave %s: %w", subject, err)
	}
	return position, nil
}

// PositionOf returns subject's committed position. ok is false if absent.
func (q *Queue) PositionOf(ctx context.Context, subject string) (position int, ok bool, err error) {
	entry, ok, err := q.db.QueueEntry(ctx, subject)
	if err != nil || !ok {
		return 0, false, err
	}
	return entry.Position, true, nil
}

// Entry returns subject's committed entry.
func (q *Queue) Entry(ctx context.Context, subject string) (model.QueueEntry, bool, error) {
	return q.db.QueueEntry(ctx, subject)
}

// List returns every committed entry in position order.
func (q *Queue) List(ctx context.Context) ([]model.QueueEntry, error) {
	return q.db.ListQueue(ctx)
}

// Size returns the committed queue length.
func (q *Queue) Size(ctx context.Context) (int, error) {
	return q.db.QueueSize(ctx)
}
