package engagement

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/theposch/mainstream-sub002/internal/models"
	"go.uber.org/zap"
)

// Source is the authoritative side of engagement state: the like endpoints
// and the batched count lookup used to resync after a reconnect. Like and
// Unlike must treat an already-existing or already-missing edge as success.
type Source interface {
	Like(ctx context.Context, kind models.EntityKind, id uuid.UUID) error
	Unlike(ctx context.Context, kind models.EntityKind, id uuid.UUID) error
	Engagement(ctx context.Context, kind models.EntityKind, ids []uuid.UUID) ([]Record, error)
}

// State is the per-entity position in the toggle cycle
// Unliked -> PendingLike -> Liked -> PendingUnlike -> Unliked.
type State int

const (
	StateUnliked State = iota
	StatePendingLike
	StateLiked
	StatePendingUnlike
)

func (s State) String() string {
	switch s {
	case StatePendingLike:
		return "pending_like"
	case StateLiked:
		return "liked"
	case StatePendingUnlike:
		return "pending_unlike"
	default:
		return "unliked"
	}
}

func (s State) Pending() bool {
	return s == StatePendingLike || s == StatePendingUnlike
}

type inflight struct {
	state    State
	snapshot Record
	// applied is the change the optimistic update made to the count, which
	// is zero when an unlike hit the floor.
	applied int64
}

// Coordinator applies toggles to the store before the server call resolves
// and rolls them back when the call fails. At most one toggle per entity is
// in flight; toggles on different entities run concurrently.
type Coordinator struct {
	store  *Store
	source Source
	logger *zap.Logger

	mu      sync.Mutex
	pending map[uuid.UUID]*inflight
	wg      sync.WaitGroup
}

func NewCoordinator(store *Store, source Source, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		store:   store,
		source:  source,
		logger:  logger,
		pending: make(map[uuid.UUID]*inflight),
	}
}

// Toggle flips the viewer's like on id. The store reflects the new state when
// Toggle returns. The channel yields nil on success, a *ToggleError after a
// rollback, or ErrToggleInFlight, and is then closed.
func (c *Coordinator) Toggle(ctx context.Context, kind models.EntityKind, id uuid.UUID) <-chan error {
	result := make(chan error, 1)

	c.mu.Lock()
	if _, busy := c.pending[id]; busy {
		c.mu.Unlock()
		result <- ErrToggleInFlight
		close(result)
		return result
	}

	like := !c.store.Get(id).ViewerHasLiked
	op := &inflight{state: StatePendingUnlike}
	delta := -1
	if like {
		op.state = StatePendingLike
		delta = 1
	}
	c.pending[id] = op
	c.wg.Add(1)
	c.mu.Unlock()

	// The entry in pending keeps other toggles on id out, so the store can be
	// written without holding c.mu. Remote deltas may still land on id, so
	// the snapshot comes from the same write as the optimistic change.
	before, after := c.store.adjust(id, func(r *Record) {
		r.LikeCount += int64(delta)
		r.ViewerHasLiked = like
	})
	op.snapshot = before
	op.applied = after.LikeCount - before.LikeCount

	go func() {
		defer c.wg.Done()
		defer close(result)

		var err error
		if like {
			err = c.source.Like(ctx, kind, id)
		} else {
			err = c.source.Unlike(ctx, kind, id)
		}

		if err != nil {
			// Undo only what was applied so remote deltas that arrived
			// meanwhile survive.
			c.store.Revert(id, -op.applied, op.snapshot.ViewerHasLiked)
		}

		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()

		if err != nil {
			c.logger.Warn("toggle rolled back",
				zap.String("entity_id", id.String()),
				zap.String("from", op.state.String()),
				zap.Bool("liked_before", op.snapshot.ViewerHasLiked),
				zap.Int64("count_before", op.snapshot.LikeCount),
				zap.Error(err),
			)
			result <- &ToggleError{EntityID: id, Like: like, Err: err}
			return
		}
		result <- nil
	}()

	return result
}

// State reports where id is in the toggle cycle.
func (c *Coordinator) State(id uuid.UUID) State {
	c.mu.Lock()
	op, busy := c.pending[id]
	c.mu.Unlock()
	if busy {
		return op.state
	}
	if c.store.Get(id).ViewerHasLiked {
		return StateLiked
	}
	return StateUnliked
}

// InFlight reports whether a toggle on id is unresolved. Resyncs skip those
// ids so a slower fetch does not overwrite the optimistic value.
func (c *Coordinator) InFlight(id uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, busy := c.pending[id]
	return busy
}

// Wait blocks until every in-flight toggle has resolved.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}
