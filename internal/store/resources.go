package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/boarding/internal/model"
)

// Resource returns one resource. ok is false if the id is unknown.
func (t *Tx) Resource(ctx context.Context, id string) (r model.Resource, ok bool, err error) {
	return resource(ctx, t.tx, id)
}

// Resource returns one committed resource.
func (s *Store) Resource(ctx context.Context, id string) (r model.Resource, ok bool, err error) {
	return resource(ctx, s.db, id)
}

// ListResources returns every resource ordered by id.
func (s *Store) ListResources(ctx context.Context) ([]model.Resource, error) {
	return listResources(ctx, s.db)
}

// ListResources returns every resource ordered by id.
func (t *Tx) ListResources(ctx context.Context) ([]model.Resource, error) {
	return listResources(ctx, t.tx)
}

// UpsertResource inserts a resource or updates its name and capacity.
// reserved_count is never written here; the CHECK constraint rejects a
// capacity below the current reserved count.
func (t *Tx) UpsertResource(ctx context.Context, r model.Resource) error {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO resources (resource_id, name, capacity, reserved_count)
		VALUES (?, ?, ?, 0)
		ON CONFLICT(resource_id) DO UPDATE SET
			name = excluded.name,
			capacity = excluded.capacity
	`, r.ResourceID, r.Name, r.Capacity)
	if err != nil {
		return fmt.Errorf("upsert resource %s: %w", r.ResourceID, err)
	}
	return nil
}

// IncrementReserved atomically claims one unit of capacity. Returns false
// without changing anything when the resource is full or unknown; the
// check and the increment are a single statement.
func (t *Tx) IncrementReserved(ctx context.Context, id string) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE resources SET reserved_count = reserved_count + 1
		WHERE resource_id = ? AND reserved_count < capacity
	`, id)
	if err != nil {
		return false, fmt.Errorf("increment reserved: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("increment reserved: rows affected: %w", err)
	}
	return n == 1, nil
}

// DecrementReserved releases one unit of capacity. Returns false if the
// resource is unknown or already at zero.
func (t *Tx) DecrementReserved(ctx context.Context, id string) (bool, error) {
	res, err := t.tx.ExecContext(ctx, `
		UPDATE resources SET reserved_count = reserved_count - 1
		WHERE resource_id = ? AND reserved_count > 0
	`, id)
	if err != nil {
		return false, fmt.Errorf("decrement reserved: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("decrement reserved: rows affected: %w", err)
	}
	return n == 1, nil
}

func resource(ctx context.Context, q querier, id string) (model.Resource, bool, error) {
	var r model.Resource
	err := q.QueryRowContext(ctx, `
		SELECT resource_id, name, capacity, reserved_count
		FROM resources WHERE resource_id = ?
	`, id).Scan(&r.ResourceID, &r.Name, &r.Capacity, &r.ReservedCount)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Resource{}, false, nil
	}
	if err != nil {
		return model.Resource{}, false, fmt.Errorf("query resource: %w", err)
	}
	return r, true, nil
}

func listResources(ctx context.Context, q querier) ([]model.Resource, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT resource_id, name, capacity, reserved_count
		FROM resources
		ORDER BY resource_id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query resources: %w", err)
	}
	defer rows.Close()

	resources := []model.Resource{}
	for rows.Next() {
		var r model.Resource
		if err := rows.Scan(&r.ResourceID, &r.Name, &r.Capacity, &r.ReservedCount); err != nil {
			return nil, fmt.Errorf("scan resource: %w", err)
		}
		resources = append(resources, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate resources: %w", err)
	}
	return resources, nil
}
