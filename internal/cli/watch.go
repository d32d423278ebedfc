package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"github.com/theposch/mainstream-sub002/internal/client"
	"github.com/theposch/mainstream-sub002/internal/engagement"
	"github.com/theposch/mainstream-sub002/internal/models"
	"github.com/theposch/mainstream-sub002/internal/realtime"
)

type WatchOptions struct {
	*RootOptions
	Limit    int
	Duration time.Duration
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <scope>",
		Short: "Stream live like counts for a scope",
		Long: `Load the first page of a scope and print every like count change as it
arrives. Scope is "assets" or "comments:<asset-id>".

Examples:
  feedctl watch assets
  feedctl watch comments:6f1c2a7e-8d3b-4c5a-9e1f-0a2b3c4d5e6f --duration 1m`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			scope, err := realtime.ParseScope(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid scope", err)
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
			defer stop()
			if opts.Duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, opts.Duration)
				defer cancel()
			}
			return runWatch(ctx, opts, scope, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "size of the first page to watch")
	cmd.Flags().DurationVar(&opts.Duration, "duration", 0, "stop after this long (0 runs until interrupted)")

	return cmd
}

func runWatch(ctx context.Context, opts *WatchOptions, scope realtime.Scope, out, errOut io.Writer) error {
	c, err := opts.client()
	if err != nil {
		return err
	}

	seed, err := seedRecords(ctx, c, scope, opts.Limit)
	if err != nil {
		return WrapExitError(ExitCommandError, "load scope failed", err)
	}

	session := engagement.NewSession(c, c, c, engagement.WithLogger(opts.logger()))
	defer session.Close()

	var mu sync.Mutex
	emit := func(r engagement.Record) {
		mu.Lock()
		defer mu.Unlock()
		if opts.Format == "json" {
			_ = json.NewEncoder(out).Encode(r)
			return
		}
		fmt.Fprintf(out, "%s %s %4d\n", r.EntityID, likedMark(r.ViewerHasLiked), r.LikeCount)
	}

	handle, err := session.ObserveScope(ctx, scope, seed)
	if err != nil {
		return WrapExitError(ExitCommandError, "subscribe failed", err)
	}
	defer handle.Close()

	for _, r := range seed {
		emit(handle.LikeState(r.EntityID))
	}
	session.Store().OnChange(emit)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-session.Errors():
			mu.Lock()
			fmt.Fprintf(errOut, "warning: %v\n", err)
			mu.Unlock()
		}
	}
}

func seedRecords(ctx context.Context, c *client.Client, scope realtime.Scope, limit int) ([]engagement.Record, error) {
	var records []engagement.Record
	switch scope.Kind {
	case models.KindAsset:
		page, err := c.FetchPage(ctx, "", limit)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			records = append(records, engagement.Record{EntityID: item.ID, LikeCount: item.LikeCount, ViewerHasLiked: item.IsLikedByCurrentViewer})
		}
	case models.KindComment:
		page, err := c.FetchComments(ctx, scope.ParentID, "", limit)
		if err != nil {
			return nil, err
		}
		for _, item := range page.Items {
			records = append(records, engagement.Record{EntityID: item.ID, LikeCount: item.LikeCount, ViewerHasLiked: item.IsLikedByCurrentViewer})
		}
	}
	return records, nil
}
