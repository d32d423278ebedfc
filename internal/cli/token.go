package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/theposch/mainstream-sub002/internal/service"
	"github.com/theposch/mainstream-sub002/internal/validation"
)

type TokenOptions struct {
	*RootOptions
	Secret   string
	UserID   string
	Username string
	TTL      time.Duration
}

// NewTokenCommand creates the token command, which signs a development access
// token with the server's secret.
func NewTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TokenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Sign an access token for local testing",
		Long: `Sign an access token with the server's JWT secret.

Examples:
  feedctl token --user-id 6f1c2a7e-8d3b-4c5a-9e1f-0a2b3c4d5e6f --secret dev
  export FEEDCTL_TOKEN=$(feedctl token --user-id ... )`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runToken(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Secret, "secret", "", "JWT secret (default $JWT_SECRET)")
	cmd.Flags().StringVar(&opts.UserID, "user-id", "", "viewer uuid (required)")
	cmd.Flags().StringVar(&opts.Username, "username", "", "username claim")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", service.DefaultTokenTTL, "token lifetime")
	_ = cmd.MarkFlagRequired("user-id")

	return cmd
}

func runToken(opts *TokenOptions, cmd *cobra.Command) error {
	secret := opts.Secret
	if secret == "" {
		secret = os.Getenv("JWT_SECRET")
	}
	if secret == "" {
		return WrapExitError(ExitCommandError, "a secret is required", fmt.Errorf("set --secret or JWT_SECRET"))
	}
	userID, err := validation.ParseUUID(opts.UserID)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --user-id", err)
	}

	token, err := service.NewTokenService(secret, opts.TTL).Issue(userID, opts.Username)
	if err != nil {
		return WrapExitError(ExitFailure, "sign token failed", err)
	}

	if opts.Format == "json" {
		return writeJSON(cmd.OutOrStdout(), map[string]string{"token": token})
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
