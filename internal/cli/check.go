package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/boarding/internal/coordinator"
)

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Verify queue and reservation invariants",
		Long: `Verify queue and reservation invariants against the committed state.

Checks that positions are dense, no subject is both queued and reserved,
leases are held exactly by the admission window, and reserved counts match
the reservations and stay within capacity.

Exits 1 when any violation is found.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, runCheck)
		},
	}
}

func runCheck(ctx context.Context, s *session) error {
	err := s.coord.Verify(ctx)

	var verr *coordinator.VerifyError
	if errors.As(err, &verr) {
		_ = s.out.Error(ErrCodeInvariant, verr.Error(), verr.Violations)
		return WrapExitError(ExitFailure, "invariant check failed", err)
	}
	if err != nil {
		return s.out.Fail("invariant check failed", err)
	}

	stats, err := s.coord.Stats(ctx)
	if err != nil {
		return s.out.Fail("invariant check failed", err)
	}
	return s.out.Render(stats, func(w io.Writer) {
		fmt.Fprintf(w, "✓ all invariants hold (%d queued, %d admitted)\n", stats.Size, stats.Admitted)
	})
}
