package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	testingclock "k8s.io/utils/clock/testing"

	"github.com/roach88/boarding/internal/coordinator"
	"github.com/roach88/boarding/internal/model"
	"github.com/roach88/boarding/internal/store"
	"github.com/roach88/boarding/internal/testutil"
)

// Epoch is the fake clock's start time for every scenario.
var Epoch = time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)

// Harness executes one scenario. Create a new one per run.
type Harness struct {
	store   *store.Store
	coord   *coordinator.Coordinator
	sweeper *coordinator.Sweeper
	clock   *testingclock.FakeClock
	logger  *slog.Logger
}

// Run executes scenario on a fresh in-memory store and returns the trace,
// final state, and any failed expectations. An error means the scenario
// could not run at all (bad directory, storage failure); business
// rejections are outcomes, not errors.
func Run(scenario *Scenario) (*Result, error) {
	h, err := newHarness(scenario)
	if err != nil {
		return nil, err
	}
	defer h.store.Close()
	return h.run(context.Background(), scenario)
}

func newHarness(scenario *Scenario) (*Harness, error) {
	db, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fc := testingclock.NewFakeClock(Epoch)
	opts := []coordinator.Option{
		coordinator.WithClock(fc),
		coordinator.WithIDGenerator(testutil.NewSequentialIDs("res")),
		coordinator.WithLogger(logger),
	}
	if scenario.Window > 0 {
		opts = append(opts, coordinator.WithWindowSize(scenario.Window))
	}
	if scenario.LeaseTimeout > 0 {
		opts = append(opts, coordinator.WithLeaseTimeout(scenario.LeaseTimeout))
	}
	coord := coordinator.New(db, opts...)

	if err := coord.SyncDirectory(context.Background(), scenario.Resources); err != nil {
		db.Close()
		return nil, err
	}

	return &Harness{
		store:   db,
		coord:   coord,
		sweeper: coordinator.NewSweeper(coord),
		clock:   fc,
		logger:  logger,
	}, nil
}

func (h *Harness) run(ctx context.Context, scenario *Scenario) (*Result, error) {
	result := &Result{Snapshot: Snapshot{Scenario: scenario.Name, Trace: []TraceEvent{}}}

	for i, step := range scenario.Steps {
		event, err := h.execute(ctx, step)
		if err != nil && !model.IsBusinessError(err) {
			return nil, fmt.Errorf("step %d (%s): %w", i+1, step.Op, err)
		}

		event.Seq = i + 1
		event.At = h.elapsed(h.clock.Now())
		event.Op = step.Op
		event.Subject = step.Subject
		event.Resource = step.Resource
		event.Outcome = "ok"
		if err != nil {
			event.Outcome = string(model.CodeOf(err))
		}
		result.Snapshot.Trace = append(result.Snapshot.Trace, event)

		want := step.Expect
		if want == "" {
			want = "ok"
		}
		if event.Outcome != want {
			result.Failures = append(result.Failures,
				fmt.Sprintf("step %d (%s %s): expected %s, got %s", i+1, step.Op, step.Subject, want, event.Outcome))
		}
	}

	final, err := h.finalState(ctx)
	if err != nil {
		return nil, err
	}
	result.Snapshot.Final = final

	failures, err := h.checkAssertions(ctx, scenario.Assertions, final)
	if err != nil {
		return nil, err
	}
	result.Failures = append(result.Failures, failures...)
	return result, nil
}

// execute runs one step. The returned event carries only the
// op-specific fields; run fills in the rest.
func (h *Harness) execute(ctx context.Context, step Step) (TraceEvent, error) {
	var event TraceEvent
	switch step.Op {
	case OpJoin:
		entry, err := h.coord.JoinQueue(ctx, step.Subject)
		event.Position = entry.Position
		return event, err
	case OpLeave:
		return event, h.coord.LeaveQueue(ctx, step.Subject)
	case OpRejoin:
		entry, err := h.coord.MoveToEnd(ctx, step.Subject)
		event.Position = entry.Position
		return event, err
	case OpForceLeave:
		return event, h.coord.ForceLeave(ctx, step.Subject, step.Reason)
	case OpReserve:
		res, err := h.coord.CreateReservation(ctx, step.Subject, step.Resource)
		event.Reservation = res.ReservationID
		return event, err
	case OpChange:
		res, err := h.coord.ChangeReservation(ctx, step.Subject, step.Resource)
		event.Reservation = res.ReservationID
		return event, err
	case OpCancel:
		return event, h.coord.CancelReservation(ctx, step.Subject)
	case OpAdvance:
		h.clock.Step(step.Duration)
		return event, nil
	case OpSweep:
		n, err := h.sweeper.RunOnce(ctx)
		event.Evicted = n
		return event, err
	default:
		return event, fmt.Errorf("unknown op %q", step.Op)
	}
}

func (h *Harness) finalState(ctx context.Context) (FinalState, error) {
	final := FinalState{
		Queue:        []QueueRow{},
		Reservations: []ReservationRow{},
		Resources:    []ResourceRow{},
	}

	entries, err := h.coord.ListQueue(ctx)
	if err != nil {
		return final, err
	}
	for _, e := range entries {
		row := QueueRow{Subject: e.SubjectID, Position: e.Position}
		if e.LeaseExpiresAt != nil {
			row.LeaseExpiresAt = h.elapsed(*e.LeaseExpiresAt)
		}
		final.Queue = append(final.Queue, row)
	}

	statuses, err := h.coord.ListResources(ctx)
	if err != nil {
		return final, err
	}
	for _, st := range statuses {
		final.Resources = append(final.Resources, ResourceRow{
			ID:        st.ResourceID,
			Capacity:  st.Capacity,
			Reserved:  st.ReservedCount,
			Occupancy: string(st.Occupancy),
		})

		passengers, err := h.coord.Passengers(ctx, st.ResourceID)
		if err != nil {
			return final, err
		}
		for _, r := range passengers {
			final.Reservations = append(final.Reservations, ReservationRow{
				ID:        r.ReservationID,
				Subject:   r.SubjectID,
				Resource:  r.ResourceID,
				CreatedAt: h.elapsed(r.CreatedAt),
			})
		}
	}
	return final, nil
}

func (h *Harness) elapsed(t time.Time) string {
	return t.Sub(Epoch).String()
}
