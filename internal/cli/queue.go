package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/boarding/internal/model"
)

// NewJoinCommand creates the join command.
func NewJoinCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "join <subject>",
		Short: "Append a subject to the end of the queue",
		Long: `Append a subject to the end of the queue.

If the new position falls inside the admission window the subject is
granted a lease at once.

Example:
  boarding join alice`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				entry, err := s.coord.JoinQueue(ctx, args[0])
				if err != nil {
					return s.out.Fail("join failed", err)
				}
				now := s.coord.Clock().Now()
				return s.out.Render(entry, func(w io.Writer) {
					fmt.Fprintf(w, "✓ %s joined at position %d (%s)\n",
						entry.SubjectID, entry.Position, leaseSummary(entry, now))
				})
			})
		},
	}
}

// NewLeaveCommand creates the leave command.
func NewLeaveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "leave <subject>",
		Short:         "Remove a subject from the queue",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				subject, err := model.NormalizeID(args[0])
				if err != nil {
					return s.out.Fail("leave failed", err)
				}
				if err := s.coord.LeaveQueue(ctx, subject); err != nil {
					return s.out.Fail("leave failed", err)
				}
				data := map[string]string{"subject_id": subject}
				return s.out.Render(data, func(w io.Writer) {
					fmt.Fprintf(w, "✓ %s left the queue\n", subject)
				})
			})
		},
	}
}

// NewRejoinCommand creates the rejoin command.
func NewRejoinCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rejoin <subject>",
		Short: "Move a queued subject to the end of the queue",
		Long: `Move a queued subject to the end of the queue.

The subject gives up its place and any lease it holds. Entries behind it
move up and any that enter the admission window are leased. The subject
is leased again only if the end of the queue is inside the window.

Example:
  boarding rejoin alice`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				entry, err := s.coord.MoveToEnd(ctx, args[0])
				if err != nil {
					return s.out.Fail("rejoin failed", err)
				}
				now := s.coord.Clock().Now()
				return s.out.Render(entry, func(w io.Writer) {
					fmt.Fprintf(w, "✓ %s moved to position %d (%s)\n",
						entry.SubjectID, entry.Position, leaseSummary(entry, now))
				})
			})
		},
	}
}

// NewPositionCommand creates the position command.
func NewPositionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "position <subject>",
		Short:         "Show a subject's queue position",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				subject, err := model.NormalizeID(args[0])
				if err != nil {
					return s.out.Fail("position lookup failed", err)
				}
				pos, ok, err := s.coord.GetPosition(ctx, subject)
				if err != nil {
					return s.out.Fail("position lookup failed", err)
				}
				if !ok {
					return s.out.Fail("position lookup failed",
						model.Errorf(model.CodeNotInQueue, subject, "subject not in queue"))
				}
				data := map[string]interface{}{
					"subject_id": subject,
					"position":   pos,
					"in_window":  pos <= s.coord.WindowSize(),
				}
				return s.out.Render(data, func(w io.Writer) {
					fmt.Fprintf(w, "%s is at position %d\n", subject, pos)
				})
			})
		},
	}
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List the queue in position order",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				entries, err := s.coord.ListQueue(ctx)
				if err != nil {
					return s.out.Fail("list failed", err)
				}
				stats, err := s.coord.Stats(ctx)
				if err != nil {
					return s.out.Fail("list failed", err)
				}
				data := map[string]interface{}{
					"stats":   stats,
					"entries": entries,
				}
				now := s.coord.Clock().Now()
				return s.out.Render(data, func(w io.Writer) {
					fmt.Fprintf(w, "%d queued, %d admitted (window %d)", stats.Size, stats.Admitted, stats.Window)
					if stats.Full {
						fmt.Fprintf(w, ", full (max %d)", stats.MaxSize)
					}
					fmt.Fprint(w, "\n\n")
					if len(entries) == 0 {
						return
					}
					tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
					fmt.Fprintln(tw, "POSITION\tSUBJECT\tJOINED\tLEASE")
					for _, e := range entries {
						fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n",
							e.Position, e.SubjectID, e.JoinedAt.Format(time.RFC3339), leaseSummary(e, now))
					}
					tw.Flush()
				})
			})
		},
	}
}

// NewTimeoutCommand creates the timeout command.
func NewTimeoutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "timeout [subject]",
		Short: "Show remaining lease time",
		Long: `Show remaining lease time for one subject, or for every queue entry
when no subject is given. Remaining time is computed from the stored lease
deadline on every call.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				if len(args) == 1 {
					info, ok, err := s.coord.GetTimeoutInfo(ctx, args[0])
					if err != nil {
						return s.out.Fail("timeout lookup failed", err)
					}
					if !ok {
						return s.out.Fail("timeout lookup failed",
							model.Errorf(model.CodeNotInQueue, args[0], "subject not in queue"))
					}
					return s.out.Render(info, func(w io.Writer) {
						fmt.Fprintf(w, "%s: %s\n", info.SubjectID, timeoutSummary(info))
					})
				}

				infos, err := s.coord.ListTimeouts(ctx)
				if err != nil {
					return s.out.Fail("timeout listing failed", err)
				}
				return s.out.Render(infos, func(w io.Writer) {
					tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
					fmt.Fprintln(tw, "POSITION\tSUBJECT\tSTATUS")
					for _, info := range infos {
						fmt.Fprintf(tw, "%d\t%s\t%s\n", info.Position, info.SubjectID, timeoutSummary(info))
					}
					tw.Flush()
				})
			})
		},
	}
}

// leaseSummary renders an entry's lease state for text output.
func leaseSummary(e model.QueueEntry, now time.Time) string {
	if !e.HasLease() {
		return "waiting"
	}
	if e.LeaseExpired(now) {
		return "lease expired"
	}
	return "lease " + model.FormatRemaining(e.LeaseExpiresAt.Sub(now)) + " left"
}

func timeoutSummary(info model.TimeoutInfo) string {
	switch {
	case !info.InWindow:
		return "waiting"
	case info.LeaseExpiresAt == nil:
		return "admitted, no lease"
	case info.TimeRemaining <= 0:
		return "lease expired"
	default:
		return model.FormatRemaining(info.TimeRemaining) + " remaining"
	}
}
