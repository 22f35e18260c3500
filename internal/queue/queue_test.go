package queue

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/boarding/internal/model"
	"github.com/roach88/boarding/internal/store"
	"github.com/roach88/boarding/internal/testutil"
)

var now = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

func join(t *testing.T, db *store.Store, q *Queue, subject string) (int, error) {
	t.Helper()
	var pos int
	err := db.WithTx(context.Background(), func(tx *store.Tx) error {
		var err error
		pos, err = q.Join(context.Background(), tx, subject, now)
		return err
	})
	return pos, err
}

func leave(t *testing.T, db *store.Store, q *Queue, subject string) (int, error) {
	t.Helper()
	var pos int
	err := db.WithTx(context.Background(), func(tx *store.Tx) error {
		var err error
		pos, err = q.Leave(context.Background(), tx, subject)
		return err
	})
	return pos, err
}

// assertDense checks positions form 1..N with no gaps or duplicates.
func assertDense(t *testing.T, entries []model.QueueEntry) {
	t.Helper()
	for i, e := range entries {
		assert.Equal(t, i+1, e.Position, "entry %s", e.SubjectID)
	}
}

func TestJoin_AppendsInOrder(t *testing.T) {
	db := testutil.OpenStore(t)
	q := New(db)

	for i, s := range []string{"a", "b", "c"} {
		pos, err := join(t, db, q, s)
		require.NoError(t, err)
		assert.Equal(t, i+1, pos)
	}

	size, err := q.Size(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, size)
}

func TestJoin_AlreadyInQueue(t *testing.T) {
	db := testutil.OpenStore(t)
	q := New(db)

	_, err := join(t, db, q, "a")
	require.NoError(t, err)

	_, err = join(t, db, q, "a")
	require.ErrorIs(t, err, model.ErrAlreadyInQueue)

	size, err := q.Size(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, size)
}

func TestJoin_RespectsLimit(t *testing.T) {
	db := testutil.OpenStore(t)
	q := New(db, WithLimit(2))
	assert.Equal(t, 2, q.Limit())

	for _, s := range []string{"a", "b"} {
		_, err := join(t, db, q, s)
		require.NoError(t, err)
	}
	assert.True(t, q.Full(2))

	_, err := join(t, db, q, "c")
	require.ErrorIs(t, err, model.ErrQueueFull)

	// A duplicate is reported as such even when the queue is full.
	_, err = join(t, db, q, "a")
	require.ErrorIs(t, err, model.ErrAlreadyInQueue)

	_, err = leave(t, db, q, "a")
	require.NoError(t, err)
	pos, err := join(t, db, q, "c")
	require.NoError(t, err)
	assert.Equal(t, 2, pos)
}

func TestNew_UnboundedByDefault(t *testing.T) {
	q := New(testutil.OpenStore(t), WithLimit(0))
	assert.Equal(t, 0, q.Limit())
	assert.False(t, q.Full(1_000_000))
}

func TestLeave_CompactsPositions(t *testing.T) {
	db := testutil.OpenStore(t)
	q := New(db)
	for _, s := range []string{"a", "b", "c", "d"} {
		_, err := join(t, db, q, s)
		require.NoError(t, err)
	}

	pos, err := leave(t, db, q, "b")
	require.NoError(t, err)
	assert.Equal(t, 2, pos)

	entries, err := q.List(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assertDense(t, entries)
	assert.Equal(t, "c", entries[1].SubjectID)

	p, ok, err := q.PositionOf(context.Background(), "d")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 3, p)
}

func TestLeave_NotInQueueLeavesOthersAlone(t *testing.T) {
	db := testutil.OpenStore(t)
	q := New(db)
	for _, s := range []string{"a", "b"} {
		_, err := join(t, db, q, s)
		require.NoError(t, err)
	}

	_, err := leave(t, db, q, "ghost")
	require.ErrorIs(t, err, model.ErrNotInQueue)

	entries, err := q.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a", entries[0].SubjectID)
	assert.Equal(t, "b", entries[1].SubjectID)
	assertDense(t, entries)
}

func TestPositionOf_Absent(t *testing.T) {
	db := testutil.OpenStore(t)
	q := New(db)

	_, ok, err := q.PositionOf(context.Background(), "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestRandomJoinLeave_PositionsStayDense drives a random sequence of joins
// and leaves and checks density after every step.
func TestRandomJoinLeave_PositionsStayDense(t *testing.T) {
	db := testutil.OpenStore(t)
	q := New(db)
	rng := rand.New(rand.NewSource(42))

	present := map[string]bool{}
	for step := 0; step < 200; step++ {
		subject := fmt.Sprintf("s%02d", rng.Intn(30))
		if present[subject] {
			_, err := leave(t, db, q, subject)
			require.NoError(t, err)
			delete(present, subject)
		} else {
			_, err := join(t, db, q, subject)
			require.NoError(t, err)
			present[subject] = true
		}

		entries, err := q.List(context.Background())
		require.NoError(t, err)
		require.Len(t, entries, len(present))
		assertDense(t, entries)
	}
}
