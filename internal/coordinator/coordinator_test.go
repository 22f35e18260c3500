package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/roach88/boarding/internal/model"
	"github.com/roach88/boarding/internal/store"
	"github.com/roach88/boarding/internal/testutil"
)

var t0 = time.Date(2026, 5, 4, 8, 0, 0, 0, time.UTC)

type fixture struct {
	coord *Coordinator
	clock *testingclock.FakeClock
	store *store.Store
	ids   *testutil.SequentialIDs
}

func newFixture(t *testing.T, window int, opts ...Option) *fixture {
	t.Helper()
	db := testutil.OpenStore(t)
	fc := testingclock.NewFakeClock(t0)
	ids := testutil.NewSequentialIDs("res")

	base := []Option{
		WithClock(fc),
		WithIDGenerator(ids),
		WithWindowSize(window),
		WithLeaseTimeout(300 * time.Second),
	}
	c := New(db, append(base, opts...)...)
	require.NoError(t, c.SyncDirectory(context.Background(), testutil.Buses()))
	return &fixture{coord: c, clock: fc, store: db, ids: ids}
}

func (f *fixture) joinAll(t *testing.T, subjects ...string) {
	t.Helper()
	for _, s := range subjects {
		_, err := f.coord.JoinQueue(context.Background(), s)
		require.NoError(t, err, "join %s", s)
	}
}

func (f *fixture) entry(t *testing.T, subject string) model.QueueEntry {
	t.Helper()
	e, ok, err := f.store.QueueEntry(context.Background(), subject)
	require.NoError(t, err)
	require.True(t, ok, "subject %s should be queued", subject)
	return e
}

func (f *fixture) requireConsistent(t *testing.T) {
	t.Helper()
	require.NoError(t, f.coord.Verify(context.Background()))
}

func TestNew_Defaults(t *testing.T) {
	c := New(testutil.OpenStore(t))
	assert.Equal(t, 20, c.WindowSize())
	assert.Equal(t, 300*time.Second, c.LeaseTimeout())
}

func TestJoinQueue_PositionsAndLeases(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	for i, s := range []string{"A", "B", "C", "D"} {
		e, err := f.coord.JoinQueue(ctx, s)
		require.NoError(t, err)
		assert.Equal(t, i+1, e.Position)
		assert.Equal(t, i < 2, e.HasLease(), "subject %s", s)
	}
	f.requireConsistent(t)
}

func TestJoinQueue_AdmittedLeaseWithinTimeout(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	_, err := f.coord.JoinQueue(ctx, "A")
	require.NoError(t, err)
	f.clock.Step(time.Second)

	info, ok, err := f.coord.GetTimeoutInfo(ctx, "A")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, info.InWindow)
	assert.Greater(t, info.TimeRemaining, time.Duration(0))
	assert.LessOrEqual(t, info.TimeRemaining, f.coord.LeaseTimeout())
	assert.Equal(t, 299*time.Second, info.TimeRemaining)
}

func TestJoinQueue_Errors(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	f.joinAll(t, "A")

	_, err := f.coord.JoinQueue(ctx, "A")
	assert.ErrorIs(t, err, model.ErrAlreadyInQueue)

	_, err = f.coord.JoinQueue(ctx, "  ")
	assert.ErrorIs(t, err, model.ErrInvalidSubject)

	_, err = f.coord.CreateReservation(ctx, "A", "bus-1")
	require.NoError(t, err)

	_, err = f.coord.JoinQueue(ctx, "A")
	assert.ErrorIs(t, err, model.ErrAlreadyReserved)
	f.requireConsistent(t)
}

func TestJoinQueue_NormalizesSubject(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()

	_, err := f.coord.JoinQueue(ctx, "cafe\u0301")
	require.NoError(t, err)

	pos, ok, err := f.coord.GetPosition(ctx, " caf\u00e9 ")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 1, pos)

	_, err = f.coord.JoinQueue(ctx, "caf\u00e9")
	assert.ErrorIs(t, err, model.ErrAlreadyInQueue)
}

func TestLeaveQueue_CompactsAndAdmits(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	f.joinAll(t, "A", "B", "C")

	f.clock.Step(time.Minute)
	require.NoError(t, f.coord.LeaveQueue(ctx, "A"))

	b, c := f.entry(t, "B"), f.entry(t, "C")
	assert.Equal(t, 1, b.Position)
	assert.Equal(t, t0.Add(300*time.Second), *b.LeaseExpiresAt, "existing lease kept")
	assert.Equal(t, 2, c.Position)
	require.NotNil(t, c.LeaseExpiresAt)
	assert.Equal(t, t0.Add(time.Minute+300*time.Second), *c.LeaseExpiresAt, "anchored to window entry")
	f.requireConsistent(t)
}

func TestLeaveQueue_NotInQueueIsHarmless(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	f.joinAll(t, "A", "B", "C")

	before, err := f.coord.ListQueue(ctx)
	require.NoError(t, err)

	err = f.coord.LeaveQueue(ctx, "Z")
	require.ErrorIs(t, err, model.ErrNotInQueue)

	after, err := f.coord.ListQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestForceLeave(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()
	f.joinAll(t, "A", "B")

	require.NoError(t, f.coord.ForceLeave(ctx, "A", "admin"))

	_, ok, err := f.coord.GetPosition(ctx, "A")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, f.entry(t, "B").HasLease())

	assert.ErrorIs(t, f.coord.ForceLeave(ctx, "A", ""), model.ErrNotInQueue)
}

func TestListTimeoutsAndStats(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	f.joinAll(t, "A", "B", "C")
	f.clock.Step(30 * time.Second)

	infos, err := f.coord.ListTimeouts(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 3)
	assert.Equal(t, 270*time.Second, infos[0].TimeRemaining)
	assert.True(t, infos[1].InWindow)
	assert.False(t, infos[2].InWindow)
	assert.Nil(t, infos[2].LeaseExpiresAt)

	stats, err := f.coord.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStats{Size: 3, Admitted: 2, Window: 2}, stats)

	size, err := f.coord.QueueSize(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, size)

	admitted, err := f.coord.AdmittedCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, admitted)

	_, ok, err := f.coord.GetTimeoutInfo(ctx, "nobody")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestJoinQueue_MaxQueueSize(t *testing.T) {
	f := newFixture(t, 1, WithMaxQueueSize(2))
	ctx := context.Background()
	assert.Equal(t, 2, f.coord.MaxQueueSize())
	f.joinAll(t, "A", "B")

	stats, err := f.coord.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStats{Size: 2, Admitted: 1, Window: 1, MaxSize: 2, Full: true}, stats)

	_, err = f.coord.JoinQueue(ctx, "C")
	require.ErrorIs(t, err, model.ErrQueueFull)
	assert.True(t, model.IsBusinessError(err))

	require.NoError(t, f.coord.LeaveQueue(ctx, "A"))
	_, err = f.coord.JoinQueue(ctx, "C")
	require.NoError(t, err)

	stats, err = f.coord.Stats(ctx)
	require.NoError(t, err)
	assert.True(t, stats.Full)
	f.requireConsistent(t)
}

func TestMoveToEnd(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	f.joinAll(t, "A", "B", "C", "D")

	f.clock.Step(time.Minute)
	e, err := f.coord.MoveToEnd(ctx, " A ")
	require.NoError(t, err)
	assert.Equal(t, "A", e.SubjectID)
	assert.Equal(t, 4, e.Position)
	assert.Equal(t, t0.Add(time.Minute), e.JoinedAt)
	assert.False(t, e.HasLease(), "old lease does not follow the subject")

	entries, err := f.coord.ListQueue(ctx)
	require.NoError(t, err)
	order := make([]string, len(entries))
	for i, e := range entries {
		order[i] = e.SubjectID
	}
	assert.Equal(t, []string{"B", "C", "D", "A"}, order)

	c := f.entry(t, "C")
	require.NotNil(t, c.LeaseExpiresAt)
	assert.Equal(t, t0.Add(time.Minute+300*time.Second), *c.LeaseExpiresAt)
	f.requireConsistent(t)

	_, err = f.coord.MoveToEnd(ctx, "Z")
	require.ErrorIs(t, err, model.ErrNotInQueue)
	after, err := f.coord.ListQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, entries, after)
}

func TestMoveToEnd_ShortQueueReleases(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	f.joinAll(t, "A", "B")

	f.clock.Step(time.Minute)
	e, err := f.coord.MoveToEnd(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, 2, e.Position)
	require.NotNil(t, e.LeaseExpiresAt)
	assert.Equal(t, t0.Add(time.Minute+300*time.Second), *e.LeaseExpiresAt, "leased again from the rejoin")
	assert.Equal(t, 1, f.entry(t, "B").Position)
	f.requireConsistent(t)
}

func TestMoveToEnd_AllowedWhenFull(t *testing.T) {
	f := newFixture(t, 1, WithMaxQueueSize(2))
	ctx := context.Background()
	f.joinAll(t, "A", "B")

	e, err := f.coord.MoveToEnd(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, 2, e.Position)
	f.requireConsistent(t)
}

// TestReconcileLeases_WindowChangeAcrossRestarts reopens one database with
// the window growing from 2 to 3 and then shrinking to 1.
func TestReconcileLeases_WindowChangeAcrossRestarts(t *testing.T) {
	f := newFixture(t, 2)
	ctx := context.Background()
	f.joinAll(t, "A", "B", "C", "D")

	reopen := func(window int) *Coordinator {
		t.Helper()
		c := New(f.store,
			WithClock(f.clock),
			WithIDGenerator(f.ids),
			WithWindowSize(window),
			WithLeaseTimeout(300*time.Second),
		)
		require.NoError(t, c.ReconcileLeases(ctx))
		require.NoError(t, c.Verify(ctx))
		return c
	}

	f.clock.Step(time.Minute)
	wider := reopen(3)
	cEntry := f.entry(t, "C")
	require.NotNil(t, cEntry.LeaseExpiresAt)
	assert.Equal(t, t0.Add(time.Minute+300*time.Second), *cEntry.LeaseExpiresAt)
	assert.Equal(t, t0.Add(300*time.Second), *f.entry(t, "A").LeaseExpiresAt, "held lease keeps its deadline")

	res, err := wider.CreateReservation(ctx, "C", "bus-2")
	require.NoError(t, err)
	assert.Equal(t, "C", res.SubjectID)
	require.NoError(t, wider.Verify(ctx))

	// Queue is now A, B, D.
	narrower := reopen(1)
	assert.True(t, f.entry(t, "A").HasLease())
	assert.False(t, f.entry(t, "B").HasLease())
	assert.False(t, f.entry(t, "D").HasLease())

	_, err = narrower.CreateReservation(ctx, "B", "bus-2")
	require.ErrorIs(t, err, model.ErrAdmissionDenied)

	// Reconciling an aligned database changes nothing.
	before, err := narrower.ListQueue(ctx)
	require.NoError(t, err)
	require.NoError(t, narrower.ReconcileLeases(ctx))
	after, err := narrower.ListQueue(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}
