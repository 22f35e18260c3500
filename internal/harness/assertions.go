package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// checkAssertions evaluates every assertion against the final state and
// returns a failure message for each one that does not hold.
func (h *Harness) checkAssertions(ctx context.Context, assertions []Assertion, final FinalState) ([]string, error) {
	var failures []string
	for i, a := range assertions {
		msg, err := h.check(ctx, a, final)
		if err != nil {
			return nil, err
		}
		if msg != "" {
			failures = append(failures, fmt.Sprintf("assertion %d (%s): %s", i+1, a.Type, msg))
		}
	}
	return failures, nil
}

func (h *Harness) check(ctx context.Context, a Assertion, final FinalState) (string, error) {
	switch a.Type {
	case AssertQueueOrder:
		got := make([]string, len(final.Queue))
		for i, row := range final.Queue {
			got[i] = row.Subject
		}
		if !slices.Equal(got, a.Subjects) {
			return fmt.Sprintf("queue is [%s], want [%s]", strings.Join(got, ", "), strings.Join(a.Subjects, ", ")), nil
		}

	case AssertLeased:
		var got []string
		for _, row := range final.Queue {
			if row.LeaseExpiresAt != "" {
				got = append(got, row.Subject)
			}
		}
		want := slices.Clone(a.Subjects)
		slices.Sort(got)
		slices.Sort(want)
		if !slices.Equal(got, want) {
			return fmt.Sprintf("leased [%s], want [%s]", strings.Join(got, ", "), strings.Join(want, ", ")), nil
		}

	case AssertReserved:
		for _, r := range final.Reservations {
			if r.Subject == a.Subject {
				if a.Resource != "" && r.Resource != a.Resource {
					return fmt.Sprintf("%s reserved %s, want %s", a.Subject, r.Resource, a.Resource), nil
				}
				return "", nil
			}
		}
		return fmt.Sprintf("%s holds no reservation", a.Subject), nil

	case AssertNotQueued:
		for _, row := range final.Queue {
			if row.Subject == a.Subject {
				return fmt.Sprintf("%s is queued at position %d", a.Subject, row.Position), nil
			}
		}

	case AssertInvariants:
		if err := h.coord.Verify(ctx); err != nil {
			return err.Error(), nil
		}

	default:
		return "", fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return "", nil
}
