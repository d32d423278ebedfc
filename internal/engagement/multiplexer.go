package engagement

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/theposch/mainstream-sub002/internal/realtime"
	"go.uber.org/zap"
)

// ChangeFeed opens change subscriptions, one per scope.
type ChangeFeed interface {
	Subscribe(ctx context.Context, scope realtime.Scope) (Subscription, error)
}

// Subscription yields raw change event payloads. Events is closed when the
// underlying connection drops; nothing is replayed after that.
type Subscription interface {
	Events() <-chan []byte
	Close() error
}

// Identity resolves the current viewer. It is consulted for every event, so
// a re-authenticated session filters its own events under the new identity.
type Identity interface {
	ViewerID() (uuid.UUID, bool)
}

// StaticIdentity is a fixed viewer; the zero value is anonymous.
type StaticIdentity uuid.UUID

func (s StaticIdentity) ViewerID() (uuid.UUID, bool) {
	id := uuid.UUID(s)
	return id, id != uuid.Nil
}

// ReconnectPolicy controls resubscription after a dropped channel.
type ReconnectPolicy struct {
	InitialDelay time.Duration
	MaxDelay     time.Duration
	// ReportAfter consecutive failures, ErrChannelDisconnected is reported.
	ReportAfter int
}

func DefaultReconnectPolicy() ReconnectPolicy {
	return ReconnectPolicy{
		InitialDelay: 250 * time.Millisecond,
		MaxDelay:     15 * time.Second,
		ReportAfter:  5,
	}
}

func (p ReconnectPolicy) delay(attempt int) time.Duration {
	d := p.InitialDelay
	for i := 0; i < attempt && d < p.MaxDelay; i++ {
		d *= 2
	}
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// resyncBatch bounds the ids sent in one engagement lookup.
const resyncBatch = 100

// Multiplexer holds one subscription for a scope and routes its events to
// the store for the ids currently tracked.
type Multiplexer struct {
	scope    realtime.Scope
	store    *Store
	feed     ChangeFeed
	source   Source
	identity Identity
	inFlight func(uuid.UUID) bool
	policy   ReconnectPolicy
	report   func(error)
	logger   *zap.Logger

	mu      sync.RWMutex
	tracked map[uuid.UUID]struct{}

	cancel context.CancelFunc
	done   chan struct{}
}

type multiplexerConfig struct {
	scope    realtime.Scope
	store    *Store
	feed     ChangeFeed
	source   Source
	identity Identity
	inFlight func(uuid.UUID) bool
	policy   ReconnectPolicy
	report   func(error)
	logger   *zap.Logger
}

func newMultiplexer(cfg multiplexerConfig) *Multiplexer {
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	if cfg.identity == nil {
		cfg.identity = StaticIdentity(uuid.Nil)
	}
	if cfg.report == nil {
		cfg.report = func(error) {}
	}
	return &Multiplexer{
		scope:    cfg.scope,
		store:    cfg.store,
		feed:     cfg.feed,
		source:   cfg.source,
		identity: cfg.identity,
		inFlight: cfg.inFlight,
		policy:   cfg.policy,
		report:   cfg.report,
		logger:   cfg.logger.With(zap.String("scope", cfg.scope.Key())),
		tracked:  make(map[uuid.UUID]struct{}),
		done:     make(chan struct{}),
	}
}

func (m *Multiplexer) Track(ids ...uuid.UUID) {
	m.mu.Lock()
	for _, id := range ids {
		m.tracked[id] = struct{}{}
	}
	m.mu.Unlock()
}

func (m *Multiplexer) Untrack(ids ...uuid.UUID) {
	m.mu.Lock()
	for _, id := range ids {
		delete(m.tracked, id)
	}
	m.mu.Unlock()
}

func (m *Multiplexer) IsTracked(id uuid.UUID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.tracked[id]
	return ok
}

func (m *Multiplexer) trackedIDs() []uuid.UUID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]uuid.UUID, 0, len(m.tracked))
	for id := range m.tracked {
		ids = append(ids, id)
	}
	return ids
}

// start opens the first subscription and calls seed before any event is
// applied, so buffered events land on top of the seeded records. The run
// loop outlives ctx's deadline but not stop.
func (m *Multiplexer) start(ctx context.Context, seed func()) error {
	sub, err := m.feed.Subscribe(ctx, m.scope)
	if err != nil {
		return err
	}
	if seed != nil {
		seed()
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancel = cancel
	go m.run(runCtx, sub)
	return nil
}

func (m *Multiplexer) stop() {
	if m.cancel == nil {
		return
	}
	m.cancel()
	<-m.done
}

func (m *Multiplexer) run(ctx context.Context, sub Subscription) {
	defer close(m.done)
	for {
		if sub == nil {
			if sub = m.reconnect(ctx); sub == nil {
				return
			}
		}
		select {
		case <-ctx.Done():
			sub.Close()
			return
		case raw, ok := <-sub.Events():
			if !ok {
				m.logger.Info("change channel dropped, resubscribing")
				sub.Close()
				sub = nil
				continue
			}
			m.handle(raw)
		}
	}
}

// handle applies one raw event. It reports whether the store changed.
func (m *Multiplexer) handle(raw []byte) bool {
	ev, err := realtime.DecodeJSON(raw)
	if err != nil {
		m.logger.Debug("dropping malformed change event", zap.Error(err))
		return false
	}
	if !m.IsTracked(ev.EntityID) {
		return false
	}
	if viewer, ok := m.identity.ViewerID(); ok && viewer == ev.ActingUserID {
		return false
	}
	m.store.ApplyDelta(ev.EntityID, ev.Delta(), RemoteDelta)
	return true
}

// reconnect resubscribes with backoff and then re-derives counts, since the
// channel does not replay what was missed. It returns nil once ctx is done.
func (m *Multiplexer) reconnect(ctx context.Context) Subscription {
	failures := 0
	for {
		timer := time.NewTimer(m.policy.delay(failures))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		sub, err := m.feed.Subscribe(ctx, m.scope)
		if err == nil {
			err = m.resync(ctx)
			if err == nil {
				m.discardBuffered(sub)
				return sub
			}
			sub.Close()
		}
		if ctx.Err() != nil {
			return nil
		}

		failures++
		m.logger.Warn("resubscribe failed", zap.Int("failures", failures), zap.Error(err))
		if failures == m.policy.ReportAfter {
			m.report(&DisconnectError{Scope: m.scope.Key(), Failures: failures, Err: err})
		}
	}
}

// discardBuffered drops events that queued up while resync ran. The
// authoritative counts already include them.
func (m *Multiplexer) discardBuffered(sub Subscription) {
	dropped := 0
	for {
		select {
		case _, ok := <-sub.Events():
			if !ok {
				return
			}
			dropped++
		default:
			if dropped > 0 {
				m.logger.Debug("dropped events covered by resync", zap.Int("events", dropped))
			}
			return
		}
	}
}

// resync overwrites tracked records with authoritative state, leaving ids
// with an unresolved toggle alone.
func (m *Multiplexer) resync(ctx context.Context) error {
	ids := m.trackedIDs()
	for start := 0; start < len(ids); start += resyncBatch {
		end := min(start+resyncBatch, len(ids))
		records, err := m.source.Engagement(ctx, m.scope.Kind, ids[start:end])
		if err != nil {
			return err
		}
		n := m.store.Hydrate(records, HydrateAuthoritative, m.inFlight)
		m.logger.Debug("resynced scope", zap.Int("records", n))
	}
	return nil
}
