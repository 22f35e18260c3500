package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/roach88/boarding/internal/model"
)

// Reservation returns subject's reservation. ok is false if none.
func (t *Tx) Reservation(ctx context.Context, subject string) (r model.Reservation, ok bool, err error) {
	return reservation(ctx, t.tx, subject)
}

// Reservation returns subject's committed reservation.
func (s *Store) Reservation(ctx context.Context, subject string) (r model.Reservation, ok bool, err error) {
	return reservation(ctx, s.db, subject)
}

// InsertReservation records a reservation. The subject_id primary key
// rejects a second reservation for the same subject.
func (t *Tx) InsertReservation(ctx context.Context, r model.Reservation) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO reservations (subject_id, reservation_id, resource_id, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
	`, r.SubjectID, r.ReservationID, r.ResourceID, toMillis(r.CreatedAt), toMillis(r.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

// MoveReservation points subject's reservation at a different resource.
func (t *Tx) MoveReservation(ctx context.Context, subject, resourceID string, at time.Time) error {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE reservations SET resource_id = ?, updated_at = ?
		WHERE subject_id = ?
	`, resourceID, toMillis(at), subject)
	if err != nil {
		return fmt.Errorf("move reservation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("move reservation: rows affected: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("move reservation: %d rows updated for subject %s", n, subject)
	}
	return nil
}

// DeleteReservation removes subject's reservation and returns the
// resource it referenced. ok is false if there was none.
func (t *Tx) DeleteReservation(ctx context.Context, subject string) (resourceID string, ok bool, err error) {
	err = t.tx.QueryRowContext(ctx, `
		DELETE FROM reservations WHERE subject_id = ? RETURNING resource_id
	`, subject).Scan(&resourceID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("delete reservation: %w", err)
	}
	return resourceID, true, nil
}

// ListReservations returns the reservations on one resource ordered by
// creation time, then subject.
func (s *Store) ListReservations(ctx context.Context, resourceID string) ([]model.Reservation, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT reservation_id, subject_id, resource_id, created_at, updated_at
		FROM reservations
		WHERE resource_id = ?
		ORDER BY created_at ASC, subject_id COLLATE BINARY ASC
	`, resourceID)
	if err != nil {
		return nil, fmt.Errorf("query reservations: %w", err)
	}
	return scanReservationRows(rows)
}

// ListAllReservations returns every reservation ordered by subject.
func (t *Tx) ListAllReservations(ctx context.Context) ([]model.Reservation, error) {
	rows, err := t.tx.QueryContext(ctx, `
		SELECT reservation_id, subject_id, resource_id, created_at, updated_at
		FROM reservations
		ORDER BY subject_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query reservations: %w", err)
	}
	return scanReservationRows(rows)
}

func reservation(ctx context.Context, q querier, subject string) (model.Reservation, bool, error) {
	row := q.QueryRowContext(ctx, `
		SELECT reservation_id, subject_id, resource_id, created_at, updated_at
		FROM reservations WHERE subject_id = ?
	`, subject)
	r, err := scanReservation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Reservation{}, false, nil
	}
	if err != nil {
		return model.Reservation{}, false, fmt.Errorf("query reservation: %w", err)
	}
	return r, true, nil
}

func scanReservation(r rowScanner) (model.Reservation, error) {
	var (
		res                  model.Reservation
		createdMs, updatedMs int64
	)
	if err := r.Scan(&res.ReservationID, &res.SubjectID, &res.ResourceID, &createdMs, &updatedMs); err != nil {
		return model.Reservation{}, err
	}
	res.CreatedAt = fromMillis(createdMs)
	res.UpdatedAt = fromMillis(updatedMs)
	return res, nil
}

func scanReservationRows(rows *sql.Rows) ([]model.Reservation, error) {
	defer rows.Close()

	out := []model.Reservation{}
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reservations: %w", err)
	}
	return out, nil
}
