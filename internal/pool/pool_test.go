package pool

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/boarding/internal/model"
	"github.com/roach88/boarding/internal/store"
	"github.com/roach88/boarding/internal/testutil"
)

func reserve(db *store.Store, p *Pool, resourceID, subject string) error {
	return db.WithTx(context.Background(), func(tx *store.Tx) error {
		return p.TryReserve(context.Background(), tx, resourceID, subject)
	})
}

func TestTryReserve_FullAndNotFound(t *testing.T) {
	db := testutil.OpenStore(t)
	testutil.SeedResources(t, db, testutil.Buses()...)
	p := New(db)

	require.NoError(t, reserve(db, p, "bus-2", "a"))

	err := reserve(db, p, "bus-2", "b")
	require.ErrorIs(t, err, model.ErrResourceFull)

	err = reserve(db, p, "bus-3", "b")
	require.ErrorIs(t, err, model.ErrResourceFull, "zero capacity is always full")

	err = reserve(db, p, "bus-9", "b")
	require.ErrorIs(t, err, model.ErrResourceNotFound)

	r, err := p.Get(context.Background(), "bus-2")
	require.NoError(t, err)
	assert.Equal(t, 1, r.ReservedCount)
}

func TestTryReserve_ConcurrentNeverOverbooks(t *testing.T) {
	db := testutil.OpenStore(t)
	testutil.SeedResources(t, db, model.Resource{ResourceID: "r", Capacity: 3})
	p := New(db)

	const workers = 20
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		full      int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := reserve(db, p, "r", "s")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case model.CodeOf(err) == model.CodeResourceFull:
				full++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, successes)
	assert.Equal(t, workers-3, full)

	r, err := p.Get(context.Background(), "r")
	require.NoError(t, err)
	assert.Equal(t, 3, r.ReservedCount)
}

func TestRelease(t *testing.T) {
	db := testutil.OpenStore(t)
	testutil.SeedResources(t, db, model.Resource{ResourceID: "r", Capacity: 1})
	p := New(db)
	ctx := context.Background()

	require.NoError(t, reserve(db, p, "r", "a"))
	err := db.WithTx(ctx, func(tx *store.Tx) error { return p.Release(ctx, tx, "r", "a") })
	require.NoError(t, err)

	err = db.WithTx(ctx, func(tx *store.Tx) error { return p.Release(ctx, tx, "r", "a") })
	require.Error(t, err)
}

func TestSync(t *testing.T) {
	db := testutil.OpenStore(t)
	p := New(db)
	ctx := context.Background()

	install := func(resources ...model.Resource) error {
		return db.WithTx(ctx, func(tx *store.Tx) error { return p.Sync(ctx, tx, resources) })
	}

	require.NoError(t, install(testutil.Buses()...))
	require.NoError(t, reserve(db, p, "bus-1", "a"))
	require.NoError(t, reserve(db, p, "bus-1", "b"))

	err := install(model.Resource{ResourceID: "bus-1", Capacity: 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "below 2 existing reservations")

	require.NoError(t, install(model.Resource{ResourceID: "bus-1", Name: "North Line", Capacity: 4}))

	statuses, err := p.Statuses(ctx)
	require.NoError(t, err)
	require.Len(t, statuses, 3)
	assert.Equal(t, "bus-1", statuses[0].ResourceID)
	assert.Equal(t, 2, statuses[0].Available)
	assert.Equal(t, model.OccupancyModerate, statuses[0].Occupancy)
	assert.Equal(t, model.OccupancyUnknown, statuses[2].Occupancy)

	err = install(model.Resource{ResourceID: "neg", Capacity: -1})
	require.Error(t, err)
}
