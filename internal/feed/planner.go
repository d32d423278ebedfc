// Package feed turns pagination cursors into bounded range queries and turns
// the resulting rows into annotated pages.
package feed

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/theposch/mainstream-sub002/internal/cursor"
	"go.uber.org/zap"
)

const (
	DefaultLimit = 20
	MaxLimit     = 50
)

// ErrVisibilityUnsupported is returned by a RangeStore when the schema it runs
// against has no visibility column.
var ErrVisibilityUnsupported = errors.New("visibility column not available")

// Query is a planned range fetch. Rows strictly before Before in
// (created_at desc, id desc) order, at most Limit+1 of them.
type Query struct {
	Before      *cursor.Cursor
	Limit       int
	VisibleOnly bool
}

// FetchLimit is one more than the page size so hasMore needs no second query.
func (q Query) FetchLimit() int {
	return q.Limit + 1
}

// Predicate returns the keyset condition and its arguments, or "" for the
// first page.
func (q Query) Predicate() (string, []interface{}) {
	if q.Before == nil {
		return "", nil
	}
	at := q.Before.CreatedAt
	if !q.Before.HasID() {
		return "created_at < ?", []interface{}{at}
	}
	return "(created_at < ? OR (created_at = ? AND id < ?))", []interface{}{at, at, q.Before.ID}
}

// VisibilityPredicate selects public or unset-visibility rows.
func (q Query) VisibilityPredicate() (string, []interface{}) {
	if !q.VisibleOnly {
		return "", nil
	}
	return "(visibility = ? OR visibility IS NULL OR visibility = '')", []interface{}{"public"}
}

// RangeStore executes a planned query in (created_at desc, id desc) order.
type RangeStore[T any] interface {
	FetchRange(ctx context.Context, q Query) ([]T, error)
}

// RangeFunc adapts a function to RangeStore.
type RangeFunc[T any] func(ctx context.Context, q Query) ([]T, error)

func (f RangeFunc[T]) FetchRange(ctx context.Context, q Query) ([]T, error) {
	return f(ctx, q)
}

type Planner struct {
	DefaultLimit int
	MaxLimit     int
	Logger       *zap.Logger
}

func NewPlanner(defaultLimit, maxLimit int, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Planner{DefaultLimit: defaultLimit, MaxLimit: maxLimit, Logger: logger}
	if p.MaxLimit <= 0 || p.MaxLimit > MaxLimit {
		p.MaxLimit = MaxLimit
	}
	if p.DefaultLimit <= 0 || p.DefaultLimit > p.MaxLimit {
		p.DefaultLimit = min(DefaultLimit, p.MaxLimit)
	}
	return p
}

// ClampLimit maps a requested page size into [1, MaxLimit]. Zero means the
// default; negative sizes clamp to the floor.
func (p *Planner) ClampLimit(n int) int {
	if n == 0 {
		return p.DefaultLimit
	}
	if n < 1 {
		return 1
	}
	if n > p.MaxLimit {
		return p.MaxLimit
	}
	return n
}

func (p *Planner) Plan(before *cursor.Cursor, limit int, visibleOnly bool) Query {
	return Query{
		Before:      before,
		Limit:       p.ClampLimit(limit),
		VisibleOnly: visibleOnly,
	}
}

// Execute runs q against store and truncates the result to the page size.
// When the store has no visibility column the query is retried once without
// the visibility predicate.
func Execute[T any](ctx context.Context, p *Planner, store RangeStore[T], q Query) (rows []T, hasMore bool, err error) {
	rows, err = store.FetchRange(ctx, q)
	if err != nil && q.VisibleOnly && errors.Is(err, ErrVisibilityUnsupported) {
		p.Logger.Warn("visibility column missing, retrying range query without it")
		q.VisibleOnly = false
		rows, err = store.FetchRange(ctx, q)
	}
	if err != nil {
		return nil, false, &FetchError{Err: err}
	}
	if len(rows) > q.Limit {
		return rows[:q.Limit], true, nil
	}
	return rows, false, nil
}

// keyBefore reports whether (at, id) sorts strictly after the cursor position,
// i.e. belongs on a later page. In-memory stores use it to mirror Predicate.
func keyBefore(at time.Time, id uuid.UUID, c *cursor.Cursor) bool {
	if c == nil {
		return true
	}
	if at.Before(c.CreatedAt) {
		return true
	}
	if !c.HasID() || !at.Equal(c.CreatedAt) {
		return false
	}
	return CompareIDs(id, c.ID) < 0
}

// Matches reports whether a row with the given key and visibility satisfies q.
func (q Query) Matches(at time.Time, id uuid.UUID, visibility string) bool {
	if q.VisibleOnly && visibility != "" && visibility != "public" {
		return false
	}
	return keyBefore(at, id, q.Before)
}

// CompareIDs orders ids the way the database compares uuid columns.
func CompareIDs(a, b uuid.UUID) int {
	return bytes.Compare(a[:], b[:])
}
