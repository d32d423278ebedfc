package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type CommentsOptions struct {
	*RootOptions
	Cursor string
	Limit  int
}

// NewCommentsCommand creates the comments command.
func NewCommentsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CommentsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "comments <asset-id>",
		Short:         "Fetch one page of comments under an asset",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			assetID, err := uuid.Parse(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid asset id", err)
			}
			return runComments(cmd.Context(), opts, assetID, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.Cursor, "cursor", "", "cursor from a previous page")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "page size (server default when 0)")

	return cmd
}

func runComments(ctx context.Context, opts *CommentsOptions, assetID uuid.UUID, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c, err := opts.client()
	if err != nil {
		return err
	}
	page, err := c.FetchComments(ctx, assetID, opts.Cursor, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "fetch comments failed", err)
	}

	if opts.Format == "json" {
		return writeJSON(out, page)
	}
	for _, item := range page.Items {
		fmt.Fprintf(out, "%s %s %4d  %s\n", item.ID, likedMark(item.IsLikedByCurrentViewer), item.LikeCount, item.Body)
	}
	if page.NextCursor != nil {
		fmt.Fprintf(out, "next: %s\n", *page.NextCursor)
	}
	return nil
}
