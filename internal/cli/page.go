package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/theposch/mainstream-sub002/internal/models"
)

// PageOptions holds flags for the page command.
type PageOptions struct {
	*RootOptions
	Cursor   string
	Limit    int
	All      bool
	MaxPages int
}

// NewPageCommand creates the page command.
func NewPageCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PageOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "page",
		Short: "Fetch feed pages",
		Long: `Fetch one page of the asset feed, or follow next cursors until the
feed is exhausted with --all.

Examples:
  feedctl page --limit 10
  feedctl page --all --format json
  feedctl page --cursor 2024-03-09T14:30:15Z::6f1c2a7e-8d3b-4c5a-9e1f-0a2b3c4d5e6f`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPage(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVar(&opts.Cursor, "cursor", "", "cursor from a previous page")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "page size (server default when 0)")
	cmd.Flags().BoolVar(&opts.All, "all", false, "follow next cursors until the feed is exhausted")
	cmd.Flags().IntVar(&opts.MaxPages, "max-pages", 100, "stop --all after this many pages")

	return cmd
}

func runPage(ctx context.Context, opts *PageOptions, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	c, err := opts.client()
	if err != nil {
		return err
	}

	var pages []*models.AssetPage
	cursor := opts.Cursor
	for n := 0; ; n++ {
		page, err := c.FetchPage(ctx, cursor, opts.Limit)
		if err != nil {
			return WrapExitError(ExitCommandError, "fetch page failed", err)
		}
		pages = append(pages, page)
		if opts.Format == "text" {
			printAssetPage(out, page)
		}
		if !opts.All || !page.HasMore || page.NextCursor == nil || n+1 >= opts.MaxPages {
			break
		}
		cursor = *page.NextCursor
	}

	if opts.Format == "json" {
		if len(pages) == 1 {
			return writeJSON(out, pages[0])
		}
		return writeJSON(out, pages)
	}
	return nil
}

func printAssetPage(out io.Writer, page *models.AssetPage) {
	for _, item := range page.Items {
		fmt.Fprintf(out, "%s %s %4d  %s\n", item.ID, likedMark(item.IsLikedByCurrentViewer), item.LikeCount, item.Title)
	}
	if page.NextCursor != nil {
		fmt.Fprintf(out, "next: %s\n", *page.NextCursor)
	}
}
