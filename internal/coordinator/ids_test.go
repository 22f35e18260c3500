package coordinator

import (
	"context"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDv7Generator_Version(t *testing.T) {
	id := UUIDv7Generator{}.Generate()

	parsed, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), parsed.Version())
	assert.Regexp(t, `^[0-9a-f]{8}-[0-9a-f]{4}-7[0-9a-f]{3}-[0-9a-f]{4}-[0-9a-f]{12}$`, id)
}

func TestUUIDv7Generator_SortsByCreation(t *testing.T) {
	gen := UUIDv7Generator{}
	ids := make([]string, 200)
	for i := range ids {
		ids[i] = gen.Generate()
	}
	assert.True(t, sort.StringsAreSorted(ids), "UUIDv7 ids should be monotonic within a process")
}

func TestUUIDv7Generator_ConcurrentUnique(t *testing.T) {
	gen := UUIDv7Generator{}
	const goroutines = 64

	ids := make(chan string, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids <- gen.Generate()
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, goroutines)
}

func TestFixedGenerator(t *testing.T) {
	gen := NewFixedGenerator("r-1", "r-2")

	assert.Equal(t, "r-1", gen.Generate())
	assert.Equal(t, "r-2", gen.Generate())
	assert.Panics(t, func() { gen.Generate() }, "should panic when ids are exhausted")
}

func TestFixedGenerator_DrivesReservationIDs(t *testing.T) {
	f := newFixture(t, 2, WithIDGenerator(NewFixedGenerator("first", "second")))
	ctx := context.Background()
	f.joinAll(t, "alice", "bob")

	res, err := f.coord.CreateReservation(ctx, "alice", "bus-1")
	require.NoError(t, err)
	assert.Equal(t, "first", res.ReservationID)

	res, err = f.coord.CreateReservation(ctx, "bob", "bus-1")
	require.NoError(t, err)
	assert.Equal(t, "second", res.ReservationID)
}
