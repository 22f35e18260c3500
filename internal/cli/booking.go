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

// NewReserveCommand creates the reserve command.
func NewReserveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reserve <subject> <resource>",
		Short: "Reserve a unit of a resource for an admitted subject",
		Long: `Reserve a unit of a resource for an admitted subject.

The subject must be inside the admission window with an unexpired lease.
On success the subject leaves the queue and the next entry is admitted.

Example:
  boarding reserve alice bus-1`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				res, err := s.coord.CreateReservation(ctx, args[0], args[1])
				if err != nil {
					return s.out.Fail("reservation failed", err)
				}
				return s.out.Render(res, func(w io.Writer) {
					fmt.Fprintf(w, "✓ %s reserved on %s (%s)\n", res.SubjectID, res.ResourceID, res.ReservationID)
				})
			})
		},
	}
}

// NewChangeCommand creates the change command.
func NewChangeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "change <subject> <resource>",
		Short:         "Move a subject's reservation to another resource",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				res, err := s.coord.ChangeReservation(ctx, args[0], args[1])
				if err != nil {
					return s.out.Fail("change failed", err)
				}
				return s.out.Render(res, func(w io.Writer) {
					fmt.Fprintf(w, "✓ %s now reserved on %s\n", res.SubjectID, res.ResourceID)
				})
			})
		},
	}
}

// NewCancelCommand creates the cancel command.
func NewCancelCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "cancel <subject>",
		Short:         "Cancel a subject's reservation",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				subject, err := model.NormalizeID(args[0])
				if err != nil {
					return s.out.Fail("cancel failed", err)
				}
				if err := s.coord.CancelReservation(ctx, subject); err != nil {
					return s.out.Fail("cancel failed", err)
				}
				data := map[string]string{"subject_id": subject}
				return s.out.Render(data, func(w io.Writer) {
					fmt.Fprintf(w, "✓ reservation for %s cancelled\n", subject)
				})
			})
		},
	}
}

// NewReservationCommand creates the reservation command.
func NewReservationCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "reservation <subject>",
		Short:         "Show a subject's reservation",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				res, err := s.coord.GetReservation(ctx, args[0])
				if err != nil {
					return s.out.Fail("reservation lookup failed", err)
				}
				return s.out.Render(res, func(w io.Writer) {
					fmt.Fprintf(w, "%s: %s (reservation %s, since %s)\n",
						res.SubjectID, res.ResourceID, res.ReservationID, res.CreatedAt.Format(time.RFC3339))
				})
			})
		},
	}
}

// NewResourcesCommand creates the resources command.
func NewResourcesCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "resources",
		Short:         "List resources with occupancy",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				statuses, err := s.coord.ListResources(ctx)
				if err != nil {
					return s.out.Fail("resource listing failed", err)
				}
				return s.out.Render(statuses, func(w io.Writer) {
					if len(statuses) == 0 {
						fmt.Fprintln(w, "No resources installed.")
						return
					}
					tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
					fmt.Fprintln(tw, "RESOURCE\tNAME\tRESERVED\tAVAILABLE\tSTATUS")
					for _, st := range statuses {
						fmt.Fprintf(tw, "%s\t%s\t%d/%d\t%d\t%s\n",
							st.ResourceID, st.Name, st.ReservedCount, st.Capacity, st.Available, st.Occupancy)
					}
					tw.Flush()
				})
			})
		},
	}
}

// NewPassengersCommand creates the passengers command.
func NewPassengersCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "passengers <resource>",
		Short:         "List reservations on a resource in booking order",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(rootOpts, cmd, func(ctx context.Context, s *session) error {
				resourceID, err := model.NormalizeID(args[0])
				if err != nil {
					return s.out.Fail("passenger listing failed", err)
				}
				reservations, err := s.coord.Passengers(ctx, resourceID)
				if err != nil {
					return s.out.Fail("passenger listing failed", err)
				}
				return s.out.Render(reservations, func(w io.Writer) {
					fmt.Fprintf(w, "%d passenger(s) on %s\n", len(reservations), resourceID)
					for i, r := range reservations {
						fmt.Fprintf(w, "  %d. %s (%s)\n", i+1, r.SubjectID, r.CreatedAt.Format(time.RFC3339))
					}
				})
			})
		},
	}
}
