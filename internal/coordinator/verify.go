package coordinator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/roach88/boarding/internal/store"
)

// Violation is one broken invariant found by Verify.
type Violation struct {
	Rule   string `json:"rule"`
	Detail string `json:"detail"`
}

// String returns "rule: detail".
func (v Violation) String() string {
	return v.Rule + ": " + v.Detail
}

// Rule names reported in Violation.Rule.
const (
	RuleDensePositions = "dense-positions"
	RuleExclusive      = "queued-or-reserved"
	RuleLeaseWindow    = "lease-iff-window"
	RuleCapacity       = "reserved-within-capacity"
	RuleReservedCount  = "reserved-count-matches"
)

// VerifyError wraps the violations found by Verify.
type VerifyError struct {
	Violations []Violation
}

func (e *VerifyError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return fmt.Sprintf("%d invariant violation(s): %s", len(e.Violations), strings.Join(parts, "; "))
}

// Verify re-checks every invariant against one consistent snapshot of the
// committed state. Returns a *VerifyError listing all violations, or nil.
func (c *Coordinator) Verify(ctx context.Context) error {
	var violations []Violation
	err := c.mutate(ctx, func(tx *store.Tx, _ time.Time) error {
		var err error
		violations, err = c.collectViolations(ctx, tx)
		return err
	})
	if err != nil {
		return fmt.Errorf("verify: %w", err)
	}
	if len(violations) > 0 {
		return &VerifyError{Violations: violations}
	}
	return nil
}

func (c *Coordinator) collectViolations(ctx context.Context, tx *store.Tx) ([]Violation, error) {
	entries, err := tx.ListQueue(ctx)
	if err != nil {
		return nil, err
	}
	reservations, err := tx.ListAllReservations(ctx)
	if err != nil {
		return nil, err
	}
	resources, err := tx.ListResources(ctx)
	if err != nil {
		return nil, err
	}

	var out []Violation
	add := func(rule, format string, args ...any) {
		out = append(out, Violation{Rule: rule, Detail: fmt.Sprintf(format, args...)})
	}

	for i, e := range entries {
		if e.Position != i+1 {
			add(RuleDensePositions, "subject %s at position %d, want %d", e.SubjectID, e.Position, i+1)
		}
		inWindow := c.leases.InWindow(e.Position)
		if inWindow != e.HasLease() {
			add(RuleLeaseWindow, "subject %s at position %d: in window=%t, has lease=%t",
				e.SubjectID, e.Position, inWindow, e.HasLease())
		}
	}

	queued := make(map[string]bool, len(entries))
	for _, e := range entries {
		queued[e.SubjectID] = true
	}
	counts := make(map[string]int, len(resources))
	for _, r := range reservations {
		if queued[r.SubjectID] {
			add(RuleExclusive, "subject %s is queued and holds reservation %s", r.SubjectID, r.ReservationID)
		}
		counts[r.ResourceID]++
	}

	for _, r := range resources {
		if r.ReservedCount > r.Capacity {
			add(RuleCapacity, "resource %s has %d reserved of %d", r.ResourceID, r.ReservedCount, r.Capacity)
		}
		if counts[r.ResourceID] != r.ReservedCount {
			add(RuleReservedCount, "resource %s counts %d but has %d reservations",
				r.ResourceID, r.ReservedCount, counts[r.ResourceID])
		}
	}
	return out, nil
}
