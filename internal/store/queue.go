package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/roach88/boarding/internal/model"
)

// QueueEntry returns the entry for subject. ok is false if absent.
func (t *Tx) QueueEntry(ctx context.Context, subject string) (entry model.QueueEntry, ok bool, err error) {
	return queueEntry(ctx, t.tx, subject)
}

// QueueEntry returns the committed entry for subject.
func (s *Store) QueueEntry(ctx context.Context, subject string) (entry model.QueueEntry, ok bool, err error) {
	return queueEntry(ctx, s.db, subject)
}

// QueueSize returns the number of queued entries.
func (t *Tx) QueueSize(ctx context.Context) (int, error) {
	return queueSize(ctx, t.tx)
}

// QueueSize returns the committed number of queued entries.
func (s *Store) QueueSize(ctx context.Context) (int, error) {
	return queueSize(ctx, s.db)
}

// ListQueue returns all entries ordered by position.
func (t *Tx) ListQueue(ctx context.Context) ([]model.QueueEntry, error) {
	return listQueue(ctx, t.tx)
}

// ListQueue returns all committed entries ordered by position.
// Returns an empty slice (not nil) when the queue is empty.
func (s *Store) ListQueue(ctx context.Context) ([]model.QueueEntry, error) {
	return listQueue(ctx, s.db)
}

// InsertQueueEntry appends an entry at the given position. The caller is
// responsible for choosing size+1; the UNIQUE(position) index rejects
// anything else that collides.
func (t *Tx) InsertQueueEntry(ctx context.Context, subject string, position int, joinedAt time.Time) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO queue_entries (subject_id, position, joined_at, lease_expires_at)
		VALUES (?, ?, ?, NULL)
	`, subject, position, toMillis(joinedAt))
	if err != nil {
		return fmt.Errorf("insert queue entry: %w", err)
	}
	return nil
}

// DeleteQueueEntry removes subject's entry and returns the position it
// held. ok is false if the subject was not queued. Positions are NOT
// compacted; callers follow up with CompactAfter in the same transaction.
func (t *Tx) DeleteQueueEntry(ctx context.Context, subject string) (position int, ok bool, err error) {
	err = t.tx.QueryRowContext(ctx, `
		DELETE FROM queue_entries WHERE subject_id = ? RETURNING position
	`, subject).Scan(&position)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("delete queue entry: %w", err)
	}
	return position, true, nil
}

// CompactAfter decrements every position greater than removed by one.
//
// The shift is done as negate-then-flip: the first statement moves the
// affected rows into negative space (already decremented), the second
// flips them back. Neither statement can collide with an existing
// positive position, so UNIQUE(position) holds row by row.
func (t *Tx) CompactAfter(ctx context.Context, removed int) (shifted int64, err error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE queue_entries SET position = -(position - 1) WHERE position > ?
	`, removed)
	if err != nil {
		return 0, fmt.Errorf("compact positions: %w", err)
	}
	shifted, err = res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("compact positions: rows affected: %w", err)
	}

	if _, err := t.tx.ExecContext(ctx, `
		UPDATE queue_entries SET position = -position WHERE position < 0
	`); err != nil {
		return 0, fmt.Errorf("compact positions: flip: %w", err)
	}
	return shifted, nil
}

// GrantLeases sets lease_expires_at for every entry with position <= window
// that does not already hold a lease. Returns the subjects that received a
// new lease, in position order. Existing leases are never touched.
func (t *Tx) GrantLeases(ctx context.Context, window int, expiresAt time.Time) ([]string, error) {
	rows, err := t.tx.QueryContext(ctx, `
		UPDATE queue_entries SET lease_expires_at = ?
		WHERE position <= ? AND lease_expires_at IS NULL
		RETURNING subject_id, position
	`, toMillis(expiresAt), window)
	if err != nil {
		return nil, fmt.Errorf("grant leases: %w", err)
	}
	subjects, err := subjectsByPosition(rows)
	if err != nil {
		return nil, fmt.Errorf("grant leases: %w", err)
	}
	return subjects, nil
}

// subjectsByPosition drains (subject_id, position) rows from a RETURNING
// clause and returns the subjects sorted by position. RETURNING order is
// unspecified.
func subjectsByPosition(rows *sql.Rows) ([]string, error) {
	defer rows.Close()

	type row struct {
		subject  string
		position int
	}
	var out []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.subject, &r.position); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate: %w", err)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].position < out[j].position })
	subjects := make([]string, len(out))
	for i, r := range out {
		subjects[i] = r.subject
	}
	return subjects, nil
}

// RevokeLeasesBeyond clears the lease of every entry positioned after
// window. Returns the affected subjects in position order. Only needed
// when the window shrinks between runs; normal operation never leases an
// entry outside the window.
func (t *Tx) RevokeLeasesBeyond(ctx context.Context, window int) ([]string, error) {
	rows, err := t.tx.QueryContext(ctx, `
		UPDATE queue_entries SET lease_expires_at = NULL
		WHERE position > ? AND lease_expires_at IS NOT NULL
		RETURNING subject_id, position
	`, window)
	if err != nil {
		return nil, fmt.Errorf("revoke leases: %w", err)
	}
	subjects, err := subjectsByPosition(rows)
	if err != nil {
		return nil, fmt.Errorf("revoke leases: %w", err)
	}
	return subjects, nil
}

// ExpiredLeases returns window entries whose lease deadline is at or
// before now, ordered by position.
func (s *Store) ExpiredLeases(ctx context.Context, window int, now time.Time) ([]model.QueueEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT subject_id, position, joined_at, lease_expires_at
		FROM queue_entries
		WHERE position <= ? AND lease_expires_at IS NOT NULL AND lease_expires_at <= ?
		ORDER BY position ASC
	`, window, toMillis(now))
	if err != nil {
		return nil, fmt.Errorf("query expired leases: %w", err)
	}
	return scanQueueRows(rows)
}

func queueEntry(ctx context.Context, q querier, subject string) (model.QueueEntry, bool, error) {
	row := q.QueryRowContext(ctx, `
		SELECT subject_id, position, joined_at, lease_expires_at
		FROM queue_entries WHERE subject_id = ?
	`, subject)
	entry, err := scanQueueEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.QueueEntry{}, false, nil
	}
	if err != nil {
		return model.QueueEntry{}, false, fmt.Errorf("query queue entry: %w", err)
	}
	return entry, true, nil
}

func queueSize(ctx context.Context, q querier) (int, error) {
	var n int
	if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM queue_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count queue entries: %w", err)
	}
	return n, nil
}

func listQueue(ctx context.Context, q querier) ([]model.QueueEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT subject_id, position, joined_at, lease_expires_at
		FROM queue_entries
		ORDER BY position ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query queue: %w", err)
	}
	return scanQueueRows(rows)
}

// rowScanner is implemented by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanQueueEntry(r rowScanner) (model.QueueEntry, error) {
	var (
		e        model.QueueEntry
		joinedMs int64
		leaseMs  sql.NullInt64
	)
	if err := r.Scan(&e.SubjectID, &e.Position, &joinedMs, &leaseMs); err != nil {
		return model.QueueEntry{}, err
	}
	e.JoinedAt = fromMillis(joinedMs)
	if leaseMs.Valid {
		deadline := fromMillis(leaseMs.Int64)
		e.LeaseExpiresAt = &deadline
	}
	return e, nil
}

func scanQueueRows(rows *sql.Rows) ([]model.QueueEntry, error) {
	defer rows.Close()

	entries := []model.QueueEntry{}
	for rows.Next() {
		e, err := scanQueueEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queue entries: %w", err)
	}
	return entries, nil
}
