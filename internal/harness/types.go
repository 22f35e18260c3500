package harness

// Snapshot is the golden-file representation of a scenario run. Times are
// offsets from the scenario epoch, rendered with time.Duration.String.
type Snapshot struct {
	Scenario string       `json:"scenario"`
	Trace    []TraceEvent `json:"trace"`
	Final    FinalState   `json:"final"`
}

// TraceEvent records one executed step and its outcome.
type TraceEvent struct {
	Seq         int    `json:"seq"`
	At          string `json:"at"`
	Op          string `json:"op"`
	Subject     string `json:"subject,omitempty"`
	Resource    string `json:"resource,omitempty"`
	Outcome     string `json:"outcome"`
	Position    int    `json:"position,omitempty"`
	Reservation string `json:"reservation,omitempty"`
	Evicted     int    `json:"evicted,omitempty"`
}

// FinalState is the committed state after the last step.
type FinalState struct {
	Queue        []QueueRow       `json:"queue"`
	Reservations []ReservationRow `json:"reservations"`
	Resources    []ResourceRow    `json:"resources"`
}

// QueueRow is one queue entry.
type QueueRow struct {
	Subject        string `json:"subject"`
	Position       int    `json:"position"`
	LeaseExpiresAt string `json:"lease_expires_at,omitempty"`
}

// ReservationRow is one reservation.
type ReservationRow struct {
	ID        string `json:"id"`
	Subject   string `json:"subject"`
	Resource  string `json:"resource"`
	CreatedAt string `json:"created_at"`
}

// ResourceRow is one resource with its occupancy.
type ResourceRow struct {
	ID        string `json:"id"`
	Capacity  int    `json:"capacity"`
	Reserved  int    `json:"reserved"`
	Occupancy string `json:"occupancy"`
}

// Result is the outcome of Run.
type Result struct {
	Snapshot Snapshot

	// Failures lists unmet step expectations and failed assertions.
	Failures []string
}

// OK reports whether every expectation and assertion held.
func (r *Result) OK() bool {
	return len(r.Failures) == 0
}
