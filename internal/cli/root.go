// Package cli implements feedctl, a command line client for the feed API.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/theposch/mainstream-sub002/internal/client"
	"github.com/theposch/mainstream-sub002/internal/logging"
	"go.uber.org/zap"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	BaseURL string
	Token   string
	Format  string // "json" | "text"
	Verbose bool
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for feedctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "feedctl",
		Short: "Browse the asset feed and its likes from the terminal",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			if opts.Token == "" {
				opts.Token = os.Getenv("FEEDCTL_TOKEN")
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.BaseURL, "base-url", "http://localhost:8080", "server base URL")
	cmd.PersistentFlags().StringVar(&opts.Token, "token", "", "access token (default $FEEDCTL_TOKEN)")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")

	cmd.AddCommand(NewPageCommand(opts))
	cmd.AddCommand(NewCommentsCommand(opts))
	cmd.AddCommand(NewLikeCommand(opts, true))
	cmd.AddCommand(NewLikeCommand(opts, false))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewTokenCommand(opts))

	return cmd
}

// Execute runs feedctl with os.Args.
func Execute() error {
	return NewRootCommand().Execute()
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func (o *RootOptions) logger() *zap.Logger {
	level := "warn"
	if o.Verbose {
		level = "debug"
	}
	logger, err := logging.New(level, "console")
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func (o *RootOptions) client() (*client.Client, error) {
	c, err := client.New(o.BaseURL, client.WithToken(o.Token), client.WithLogger(o.logger()))
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid --base-url", err)
	}
	return c, nil
}
