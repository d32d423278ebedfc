package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/theposch/mainstream-sub002/internal/client"
	"github.com/theposch/mainstream-sub002/internal/validation"
)

// NewLikeCommand creates the like command, or unlike when like is false.
func NewLikeCommand(rootOpts *RootOptions, like bool) *cobra.Command {
	use, short := "like", "Like an asset or comment"
	if !like {
		use, short = "unlike", "Remove your like from an asset or comment"
	}

	return &cobra.Command{
		Use:   use + " <asset|comment> <id>",
		Short: short,
		Long: fmt.Sprintf(`%s. Repeating the call is harmless.

Examples:
  feedctl %s asset 6f1c2a7e-8d3b-4c5a-9e1f-0a2b3c4d5e6f`, short, use),
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := validation.ParseKind(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid kind", err)
			}
			id, err := validation.ParseUUID(args[1])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid id", err)
			}
			if rootOpts.Token == "" {
				return WrapExitError(ExitCommandError, "a token is required", fmt.Errorf("set --token or FEEDCTL_TOKEN"))
			}

			c, err := rootOpts.client()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			if like {
				err = c.Like(ctx, kind, id)
			} else {
				err = c.Unlike(ctx, kind, id)
			}
			if err != nil {
				if client.IsRejected(err) {
					return WrapExitError(ExitFailure, use+" rejected", err)
				}
				return WrapExitError(ExitCommandError, use+" failed", err)
			}

			if rootOpts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{"entity_id": id, "liked": like})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", use+"d", kind, id)
			return nil
		},
	}
}
