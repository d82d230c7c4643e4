package cli

import (
	"context"
	"strings"

	"github.com/dalemusser/agentcanvas/internal/app/bootstrap"
	"github.com/dalemusser/agentcanvas/internal/domain/models"
	"github.com/spf13/cobra"
)

// UserOptions holds flags for the user command.
type UserOptions struct {
	*RootOptions
	Forget bool
}

// NewUserCommand creates the user command.
func NewUserCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &UserOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "user <user-id>",
		Short: "Reconcile one user's memberships",
		Long: `Fetch one user's memberships from the identity provider and
reconcile the stored records. With --forget, remove the user's records
without contacting the provider.

Example:
  agentcanvas-sync user user_01H...
  agentcanvas-sync user --forget user_01H...`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			userID := strings.TrimSpace(args[0])
			if userID == "" {
				return NewExitError(ExitCommandError, "user id is required")
			}
			return withServices(cmd, opts.RootOptions, func(ctx context.Context, svc *bootstrap.Services) error {
				if opts.Forget {
					return writeResult(cmd.OutOrStdout(), svc.Syncer.ForgetUser(ctx, models.SyncTypeManual, userID))
				}
				res, err := svc.Syncer.SyncUser(ctx, models.SyncTypeManual, userID)
				if err != nil {
					return WrapExitError(ExitFailure, "membership sync failed", err)
				}
				return writeResult(cmd.OutOrStdout(), res)
			})
		},
	}

	cmd.Flags().BoolVar(&opts.Forget, "forget", false, "remove the user's memberships instead of fetching them")

	return cmd
}
