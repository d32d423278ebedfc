package feed

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/theposch/mainstream-sub002/internal/cursor"
	"golang.org/x/sync/errgroup"
)

// ErrTransientFetch marks backing-store failures during a page fetch. The
// assembler does not retry; that belongs to the caller's transport.
var ErrTransientFetch = errors.New("transient fetch failure")

type FetchError struct {
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch page: %v", e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

func (e *FetchError) Is(target error) bool { return target == ErrTransientFetch }

// Entity is a row that can be paginated and liked.
type Entity interface {
	cursor.Keyed
	EntityID() uuid.UUID
}

// CountSource returns aggregate like counts, independent of the viewer. Ids
// without likes may be absent from the result.
type CountSource interface {
	LikeCounts(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]int64, error)
}

// LikedLookup answers "which of ids has viewer liked" in one round trip.
type LikedLookup interface {
	LikedBy(ctx context.Context, viewer uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]bool, error)
}

type Annotated[T Entity] struct {
	Entity                 T
	LikeCount              int64
	IsLikedByCurrentViewer bool
}

type Page[T Entity] struct {
	Items      []Annotated[T]
	HasMore    bool
	NextCursor *string
}

type Assembler struct {
	Counts CountSource
	Liked  LikedLookup
}

// Assemble annotates rows (already truncated to the page size, in planner
// order) and derives the next cursor. It never reorders.
func Assemble[T Entity](ctx context.Context, a Assembler, rows []T, hasMore bool, viewer *uuid.UUID) (*Page[T], error) {
	page := &Page[T]{Items: make([]Annotated[T], len(rows)), HasMore: hasMore && len(rows) > 0}
	if len(rows) == 0 {
		return page, nil
	}

	ids := make([]uuid.UUID, len(rows))
	for i, row := range rows {
		ids[i] = row.EntityID()
	}

	var (
		counts map[uuid.UUID]int64
		liked  map[uuid.UUID]bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		counts, err = a.Counts.LikeCounts(gctx, ids)
		return err
	})
	if viewer != nil && *viewer != uuid.Nil && a.Liked != nil {
		g.Go(func() error {
			var err error
			liked, err = a.Liked.LikedBy(gctx, *viewer, ids)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, &FetchError{Err: err}
	}

	for i, row := range rows {
		id := ids[i]
		count := counts[id]
		if count < 0 {
			count = 0
		}
		page.Items[i] = Annotated[T]{
			Entity:                 row,
			LikeCount:              count,
			IsLikedByCurrentViewer: liked[id],
		}
	}

	if page.HasMore {
		next := cursor.Encode(rows[len(rows)-1])
		page.NextCursor = &next
	}
	return page, nil
}
