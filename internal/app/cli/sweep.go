package cli

import (
	"context"

	"github.com/dalemusser/agentcanvas/internal/app/bootstrap"
	"github.com/dalemusser/agentcanvas/internal/domain/models"
	"github.com/spf13/cobra"
)

// NewSweepCommand creates the sweep command.
func NewSweepCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Reconcile every user's memberships",
		Long: `Fetch every organization and its memberships from the identity
provider and reconcile all users, including users who no longer belong
to any organization.

Example:
  agentcanvas-sync sweep
  agentcanvas-sync sweep --concurrency 8 --verbose`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withServices(cmd, rootOpts, func(ctx context.Context, svc *bootstrap.Services) error {
				res, err := svc.Syncer.SyncEveryone(ctx, models.SyncTypeManual)
				if err != nil {
					return WrapExitError(ExitFailure, "membership sweep failed", err)
				}
				return writeResult(cmd.OutOrStdout(), res)
			})
		},
	}
}
