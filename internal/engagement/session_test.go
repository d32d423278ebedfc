package engagement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/theposch/mainstream-sub002/internal/realtime"
)

func fastPolicy() ReconnectPolicy {
	return ReconnectPolicy{InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, ReportAfter: 3}
}

type harness struct {
	viewer  uuid.UUID
	source  *fakeSource
	feed    *fakeFeed
	ident   *mutableIdentity
	session *Session
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{viewer: uuid.New(), source: newFakeSource(), feed: &fakeFeed{}}
	h.ident = &mutableIdentity{id: h.viewer}
	h.session = NewSession(h.source, h.feed, h.ident, WithReconnectPolicy(fastPolicy()))
	t.Cleanup(h.session.Close)
	return h
}

func (h *harness) observe(t *testing.T, scope realtime.Scope, seed ...Record) *ScopeHandle {
	t.Helper()
	handle, err := h.session.ObserveScope(context.Background(), scope, seed)
	require.NoError(t, err)
	return handle
}

func (h *harness) push(t *testing.T, raw []byte) {
	t.Helper()
	sub := h.feed.latest()
	require.NotNil(t, sub)
	sub.events <- raw
}

func eventuallyCount(t *testing.T, handle *ScopeHandle, id uuid.UUID, want int64) {
	t.Helper()
	assert.Eventually(t, func() bool {
		return handle.LikeState(id).LikeCount == want
	}, time.Second, 2*time.Millisecond, "like count of %s", id)
}

func TestObserveScopeSeedsAndSubscribesOnce(t *testing.T) {
	h := newHarness(t)
	asset := uuid.New()
	a, b := uuid.New(), uuid.New()

	handle := h.observe(t, realtime.CommentScope(asset), Record{EntityID: a, LikeCount: 2, ViewerHasLiked: true})
	assert.Equal(t, Record{EntityID: a, LikeCount: 2, ViewerHasLiked: true}, handle.LikeState(a))
	assert.Equal(t, 1, h.feed.count())

	again := h.observe(t, realtime.CommentScope(asset), Record{EntityID: b, LikeCount: 1})
	assert.Same(t, handle, again)
	assert.Equal(t, 1, h.feed.count(), "one subscription per scope")
	assert.True(t, handle.mux.IsTracked(b))
}

func TestEventQueuedAtSubscribeAppliesOnTopOfSeed(t *testing.T) {
	h := newHarness(t)
	x := uuid.New()
	h.feed.queue(eventJSON(realtime.EventInsert, x, uuid.New()))

	handle := h.observe(t, realtime.AssetScope(), Record{EntityID: x, LikeCount: 10})

	eventuallyCount(t, handle, x, 11)
	sub := h.feed.latest()
	assert.Eventually(t, func() bool { return len(sub.events) == 0 }, time.Second, time.Millisecond)
	assert.EqualValues(t, 11, handle.LikeState(x).LikeCount)
}

func TestRemoteEventsApplyToTrackedIDsOnly(t *testing.T) {
	h := newHarness(t)
	tracked, untracked := uuid.New(), uuid.New()
	other := uuid.New()
	handle := h.observe(t, realtime.AssetScope(), Record{EntityID: tracked, LikeCount: 1})

	h.push(t, eventJSON(realtime.EventInsert, untracked, other))
	h.push(t, []byte(`{"event_type":"insert"}`))
	h.push(t, []byte(`garbage`))
	h.push(t, eventJSON(realtime.EventInsert, tracked, other))

	eventuallyCount(t, handle, tracked, 2)
	assert.False(t, handle.LikeState(tracked).ViewerHasLiked, "remote deltas never set the liked flag")
	assert.False(t, h.session.Store().Has(untracked))

	h.push(t, eventJSON(realtime.EventDelete, tracked, other))
	eventuallyCount(t, handle, tracked, 1)
}

func TestOwnEchoIsNotDoubleCounted(t *testing.T) {
	h := newHarness(t)
	x := uuid.New()
	handle := h.observe(t, realtime.AssetScope(), Record{EntityID: x, LikeCount: 0})

	done := handle.Toggle(context.Background(), x)
	assert.Equal(t, Record{EntityID: x, LikeCount: 1, ViewerHasLiked: true}, handle.LikeState(x))
	h.source.resolve(nil)
	require.NoError(t, await(t, done))

	// Echo of the viewer's own like, then a like from somebody else as a
	// marker that both events have been processed.
	h.push(t, eventJSON(realtime.EventInsert, x, h.viewer))
	h.push(t, eventJSON(realtime.EventInsert, x, uuid.New()))
	eventuallyCount(t, handle, x, 2)
	assert.True(t, handle.LikeState(x).ViewerHasLiked)
}

func TestSelfFilterFollowsIdentityChanges(t *testing.T) {
	h := newHarness(t)
	x := uuid.New()
	handle := h.observe(t, realtime.AssetScope(), Record{EntityID: x})

	next := uuid.New()
	h.ident.set(next)

	// The old identity is now just another user.
	h.push(t, eventJSON(realtime.EventInsert, x, h.viewer))
	eventuallyCount(t, handle, x, 1)

	h.push(t, eventJSON(realtime.EventInsert, x, next))
	h.push(t, eventJSON(realtime.EventInsert, x, uuid.New()))
	eventuallyCount(t, handle, x, 2)
}

func TestAnonymousViewerAppliesEveryEvent(t *testing.T) {
	src, feed := newFakeSource(), &fakeFeed{}
	s := NewSession(src, feed, StaticIdentity(uuid.Nil))
	defer s.Close()
	x := uuid.New()
	handle, err := s.ObserveScope(context.Background(), realtime.AssetScope(), []Record{{EntityID: x}})
	require.NoError(t, err)

	feed.latest().events <- eventJSON(realtime.EventInsert, x, uuid.New())
	eventuallyCount(t, handle, x, 1)
}

func TestPaginationHydrateDoesNotClobber(t *testing.T) {
	h := newHarness(t)
	x, y := uuid.New(), uuid.New()
	handle := h.observe(t, realtime.AssetScope(), Record{EntityID: x, LikeCount: 3})

	h.push(t, eventJSON(realtime.EventInsert, x, uuid.New()))
	eventuallyCount(t, handle, x, 4)

	// A slower page arrives with the stale count for x.
	handle.Hydrate([]Record{{EntityID: x, LikeCount: 3}, {EntityID: y, LikeCount: 8}})
	assert.EqualValues(t, 4, handle.LikeState(x).LikeCount)
	assert.EqualValues(t, 8, handle.LikeState(y).LikeCount)

	h.push(t, eventJSON(realtime.EventInsert, y, uuid.New()))
	eventuallyCount(t, handle, y, 9)
}

func TestReconnectResyncsCounts(t *testing.T) {
	h := newHarness(t)
	x, pending := uuid.New(), uuid.New()
	handle := h.observe(t, realtime.AssetScope(),
		Record{EntityID: x, LikeCount: 1},
		Record{EntityID: pending, LikeCount: 5},
	)

	// An unresolved toggle on pending must survive the resync.
	toggled := handle.Toggle(context.Background(), pending)
	assert.EqualValues(t, 6, handle.LikeState(pending).LikeCount)

	h.source.setRecord(Record{EntityID: x, LikeCount: 10, ViewerHasLiked: true})
	h.source.setRecord(Record{EntityID: pending, LikeCount: 5})

	first := h.feed.latest()
	first.drop()

	assert.Eventually(t, func() bool { return h.feed.count() == 2 }, time.Second, time.Millisecond)
	eventuallyCount(t, handle, x, 10)
	assert.True(t, handle.LikeState(x).ViewerHasLiked)
	assert.Equal(t, Record{EntityID: pending, LikeCount: 6, ViewerHasLiked: true}, handle.LikeState(pending))
	select {
	case <-first.closed:
	case <-time.After(time.Second):
		t.Fatal("dropped subscription not closed")
	}

	// The new subscription carries events.
	h.push(t, eventJSON(realtime.EventInsert, x, uuid.New()))
	eventuallyCount(t, handle, x, 11)

	h.source.resolve(nil)
	require.NoError(t, await(t, toggled))
}

func TestEventsQueuedDuringResyncAreNotCountedTwice(t *testing.T) {
	h := newHarness(t)
	x, marker := uuid.New(), uuid.New()
	handle := h.observe(t, realtime.AssetScope(),
		Record{EntityID: x, LikeCount: 1},
		Record{EntityID: marker, LikeCount: 0},
	)

	// The authoritative count already includes the queued insert.
	h.source.setRecord(Record{EntityID: x, LikeCount: 7})
	h.source.setRecord(Record{EntityID: marker, LikeCount: 0})
	h.feed.queue(eventJSON(realtime.EventInsert, x, uuid.New()))
	h.feed.latest().drop()

	assert.Eventually(t, func() bool { return h.feed.count() == 2 }, time.Second, time.Millisecond)
	eventuallyCount(t, handle, x, 7)

	// Events are applied in order, so once marker moves any queued insert
	// for x would already show. Marker events sent before the loop resumes
	// are dropped along with the queue, so keep sending until one lands.
	sub := h.feed.latest()
	assert.Eventually(t, func() bool {
		if handle.LikeState(marker).LikeCount > 0 {
			return true
		}
		select {
		case sub.events <- eventJSON(realtime.EventInsert, marker, uuid.New()):
		default:
		}
		return false
	}, time.Second, 5*time.Millisecond)
	assert.EqualValues(t, 7, handle.LikeState(x).LikeCount)
}

func TestRepeatedReconnectFailureIsReported(t *testing.T) {
	h := newHarness(t)
	x := uuid.New()
	handle := h.observe(t, realtime.AssetScope(), Record{EntityID: x, LikeCount: 1})

	h.feed.setFailing(true)
	h.feed.latest().drop()

	select {
	case err := <-h.session.Errors():
		assert.ErrorIs(t, err, ErrChannelDisconnected)
		assert.ErrorIs(t, err, errFeedDown)
		var de *DisconnectError
		require.True(t, errors.As(err, &de))
		assert.Equal(t, "assets", de.Scope)
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect was not reported")
	}

	// Recovery once the feed is back.
	h.source.setRecord(Record{EntityID: x, LikeCount: 7})
	h.feed.setFailing(false)
	eventuallyCount(t, handle, x, 7)
}

func TestResyncFailureRetries(t *testing.T) {
	h := newHarness(t)
	x := uuid.New()
	handle := h.observe(t, realtime.AssetScope(), Record{EntityID: x, LikeCount: 1})

	h.source.mu.Lock()
	h.source.lookupErr = errors.New("engagement unavailable")
	h.source.mu.Unlock()
	h.feed.latest().drop()

	assert.Eventually(t, func() bool { return h.source.lookupCount() >= 2 }, time.Second, time.Millisecond)

	h.source.mu.Lock()
	h.source.lookupErr = nil
	h.source.records[x] = Record{EntityID: x, LikeCount: 3}
	h.source.mu.Unlock()
	eventuallyCount(t, handle, x, 3)
}

func TestResyncBatchesLookups(t *testing.T) {
	h := newHarness(t)
	seed := make([]Record, 0, 250)
	for i := 0; i < 250; i++ {
		seed = append(seed, Record{EntityID: uuid.New()})
	}
	h.observe(t, realtime.AssetScope(), seed...)

	h.feed.latest().drop()
	assert.Eventually(t, func() bool { return h.source.lookupCount() == 3 }, time.Second, time.Millisecond)
	h.source.mu.Lock()
	defer h.source.mu.Unlock()
	assert.Equal(t, []int{100, 100, 50}, h.source.lookupBatch)
}

func TestScopeCloseUnsubscribes(t *testing.T) {
	h := newHarness(t)
	handle := h.observe(t, realtime.AssetScope())
	sub := h.feed.latest()

	handle.Close()
	handle.Close()
	select {
	case <-sub.closed:
	case <-time.After(time.Second):
		t.Fatal("subscription not closed")
	}

	// Observing again opens a fresh subscription.
	h.observe(t, realtime.AssetScope())
	assert.Equal(t, 2, h.feed.count())
}

func TestObserveAfterCloseFails(t *testing.T) {
	h := newHarness(t)
	h.session.Close()
	_, err := h.session.ObserveScope(context.Background(), realtime.AssetScope(), nil)
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestObserveScopeSubscribeError(t *testing.T) {
	h := newHarness(t)
	h.feed.setFailing(true)
	_, err := h.session.ObserveScope(context.Background(), realtime.AssetScope(), nil)
	assert.ErrorIs(t, err, errFeedDown)
}

func TestSessionsDoNotShareState(t *testing.T) {
	a := newHarness(t)
	b := newHarness(t)
	x := uuid.New()
	ha := a.observe(t, realtime.AssetScope(), Record{EntityID: x, LikeCount: 1})
	hb := b.observe(t, realtime.AssetScope(), Record{EntityID: x, LikeCount: 1})

	ha.Toggle(context.Background(), x)
	assert.True(t, ha.LikeState(x).ViewerHasLiked)
	assert.False(t, hb.LikeState(x).ViewerHasLiked)
	a.source.resolve(nil)
}

func TestReconnectPolicyDelay(t *testing.T) {
	p := ReconnectPolicy{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second}
	assert.Equal(t, 100*time.Millisecond, p.delay(0))
	assert.Equal(t, 400*time.Millisecond, p.delay(2))
	assert.Equal(t, time.Second, p.delay(10))
}
