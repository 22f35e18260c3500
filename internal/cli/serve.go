package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/boarding/internal/coordinator"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the lease sweeper against the database",
		Long: `Open the database, install the resource directory and run the
lease sweeper until interrupted.

The sweeper evicts admitted entries whose lease has run out and admits
the entries behind them. One-shot commands may run against the same
database while serve is running.

Example:
  boarding serve --db ./boarding.db --directory ./buses.cue
  boarding serve --config ./boarding.yaml --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				return runServe(ctx, s, cmd)
			})
		},
	}
}

func runServe(parentCtx context.Context, s *session, cmd *cobra.Command) error {
	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan) // Prevent signal handler leak

	go func() {
		select {
		case sig := <-sigChan:
			s.logger.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
			// Parent context cancelled (e.g., from test)
		}
	}()

	sweeper := coordinator.NewSweeper(s.coord,
		coordinator.WithSweepInterval(s.cfg.Admission.SweepInterval),
		coordinator.WithSweeperLogger(s.logger),
	)

	// openSession has already reconciled leases with the window. One pass
	// before the first tick revokes leases that ran out while nothing was
	// serving.
	if n, err := sweeper.RunOnce(ctx); err != nil {
		s.logger.Error("initial sweep failed", "error", err)
	} else if n > 0 {
		s.logger.Info("initial sweep evicted expired leases", "evicted", n)
	}

	if err := sweeper.Start(ctx); err != nil {
		return s.out.Fail("failed to start sweeper", err)
	}
	defer sweeper.Stop()

	s.logger.Info("boarding serving",
		"db", s.cfg.Store.Path,
		"window", s.coord.WindowSize(),
		"lease_timeout", s.coord.LeaseTimeout(),
		"sweep_interval", sweeper.Interval(),
	)
	fmt.Fprintln(cmd.OutOrStdout(), "Sweeper started. Press Ctrl-C to stop.")

	<-ctx.Done()

	s.logger.Info("boarding stopped gracefully")
	return nil
}
