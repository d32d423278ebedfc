package engagement

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/theposch/mainstream-sub002/internal/models"
	"github.com/theposch/mainstream-sub002/internal/realtime"
)

// fakeSource answers like calls from a queue of results. A call with no
// queued result blocks until one is pushed with resolve.
type fakeSource struct {
	mu      sync.Mutex
	results chan error
	calls   []string

	records     map[uuid.UUID]Record
	lookups     int
	lookupErr   error
	lookupBatch []int
}

func newFakeSource() *fakeSource {
	return &fakeSource{results: make(chan error, 16), records: map[uuid.UUID]Record{}}
}

func (f *fakeSource) resolve(err error) { f.results <- err }

func (f *fakeSource) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeSource) Like(ctx context.Context, kind models.EntityKind, id uuid.UUID) error {
	f.record("like")
	select {
	case err := <-f.results:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeSource) Unlike(ctx context.Context, kind models.EntityKind, id uuid.UUID) error {
	f.record("unlike")
	select {
	case err := <-f.results:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeSource) Engagement(ctx context.Context, kind models.EntityKind, ids []uuid.UUID) ([]Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	f.lookupBatch = append(f.lookupBatch, len(ids))
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	out := make([]Record, 0, len(ids))
	for _, id := range ids {
		if r, ok := f.records[id]; ok {
			out = append(out, r)
		}
	}
	return out, nil
}

func (f *fakeSource) setRecord(r Record) {
	f.mu.Lock()
	f.records[r.EntityID] = r
	f.mu.Unlock()
}

func (f *fakeSource) lookupCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookups
}

type fakeSub struct {
	events chan []byte
	once   sync.Once
	closed chan struct{}
}

func (s *fakeSub) Events() <-chan []byte { return s.events }

func (s *fakeSub) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

// drop simulates the connection going away.
func (s *fakeSub) drop() { close(s.events) }

type fakeFeed struct {
	mu      sync.Mutex
	subs    []*fakeSub
	failing bool
	// queued is delivered into the next subscription as soon as it opens.
	queued [][]byte
}

var errFeedDown = errors.New("feed down")

func (f *fakeFeed) Subscribe(ctx context.Context, scope realtime.Scope) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failing {
		return nil, errFeedDown
	}
	sub := &fakeSub{events: make(chan []byte, 16), closed: make(chan struct{})}
	for _, raw := range f.queued {
		sub.events <- raw
	}
	f.queued = nil
	f.subs = append(f.subs, sub)
	return sub, nil
}

func (f *fakeFeed) setFailing(v bool) {
	f.mu.Lock()
	f.failing = v
	f.mu.Unlock()
}

func (f *fakeFeed) queue(raw ...[]byte) {
	f.mu.Lock()
	f.queued = append(f.queued, raw...)
	f.mu.Unlock()
}

func (f *fakeFeed) latest() *fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.subs) == 0 {
		return nil
	}
	return f.subs[len(f.subs)-1]
}

func (f *fakeFeed) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}

type mutableIdentity struct {
	mu sync.Mutex
	id uuid.UUID
}

func (m *mutableIdentity) ViewerID() (uuid.UUID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.id, m.id != uuid.Nil
}

func (m *mutableIdentity) set(id uuid.UUID) {
	m.mu.Lock()
	m.id = id
	m.mu.Unlock()
}

func eventJSON(t realtime.EventType, entity, actor uuid.UUID) []byte {
	raw, err := realtime.EncodeJSON(realtime.ChangeEvent{Type: t, EntityID: entity, ActingUserID: actor})
	if err != nil {
		panic(err)
	}
	return raw
}
