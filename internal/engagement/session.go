package engagement

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/theposch/mainstream-sub002/internal/realtime"
	"go.uber.org/zap"
)

type Option func(*Session)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithReconnectPolicy(p ReconnectPolicy) Option {
	return func(s *Session) { s.policy = p }
}

// Session owns one viewer's engagement state: a store, the coordinator that
// writes optimistic toggles to it, and one multiplexer per observed scope.
// Sessions never share state.
type Session struct {
	store    *Store
	coord    *Coordinator
	source   Source
	feed     ChangeFeed
	identity Identity
	policy   ReconnectPolicy
	logger   *zap.Logger
	errs     chan error

	mu     sync.Mutex
	scopes map[string]*ScopeHandle
	closed bool
}

func NewSession(source Source, feed ChangeFeed, identity Identity, opts ...Option) *Session {
	s := &Session{
		store:    NewStore(),
		source:   source,
		feed:     feed,
		identity: identity,
		policy:   DefaultReconnectPolicy(),
		logger:   zap.NewNop(),
		errs:     make(chan error, 16),
		scopes:   make(map[string]*ScopeHandle),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.coord = NewCoordinator(s.store, source, s.logger)
	return s
}

func (s *Session) Store() *Store { return s.store }

func (s *Session) Coordinator() *Coordinator { return s.coord }

// Errors delivers non-fatal errors nobody is waiting on, such as
// ErrChannelDisconnected. Errors are dropped when the buffer is full.
func (s *Session) Errors() <-chan error { return s.errs }

func (s *Session) report(err error) {
	select {
	case s.errs <- err:
	default:
		s.logger.Warn("session error dropped", zap.Error(err))
	}
}

// ObserveScope subscribes to scope, then seeds the store with seed. Observing
// a scope twice returns the existing handle with seed added to it.
func (s *Session) ObserveScope(ctx context.Context, scope realtime.Scope, seed []Record) (*ScopeHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}

	if h, ok := s.scopes[scope.Key()]; ok {
		h.Hydrate(seed)
		return h, nil
	}

	mux := newMultiplexer(multiplexerConfig{
		scope:    scope,
		store:    s.store,
		feed:     s.feed,
		source:   s.source,
		identity: s.identity,
		inFlight: s.coord.InFlight,
		policy:   s.policy,
		report:   s.report,
		logger:   s.logger,
	})
	// Subscribe before seeding so no event between fetch and subscribe is
	// lost for good. Events wait in the subscription until the seed is in.
	err := mux.start(ctx, func() {
		s.store.Hydrate(seed, HydrateMissing, nil)
		for _, r := range seed {
			mux.Track(r.EntityID)
		}
	})
	if err != nil {
		return nil, err
	}

	h := &ScopeHandle{session: s, scope: scope, mux: mux}
	s.scopes[scope.Key()] = h
	return h, nil
}

// Close tears down every scope and waits for in-flight toggles to resolve.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	handles := make([]*ScopeHandle, 0, len(s.scopes))
	for _, h := range s.scopes {
		handles = append(handles, h)
	}
	s.scopes = map[string]*ScopeHandle{}
	s.mu.Unlock()

	for _, h := range handles {
		h.mux.stop()
	}
	s.coord.Wait()
}

// ScopeHandle is the caller's view of one observed scope.
type ScopeHandle struct {
	session *Session
	scope   realtime.Scope
	mux     *Multiplexer
	once    sync.Once
}

func (h *ScopeHandle) Scope() realtime.Scope { return h.scope }

func (h *ScopeHandle) LikeState(id uuid.UUID) Record {
	return h.session.store.Get(id)
}

func (h *ScopeHandle) Toggle(ctx context.Context, id uuid.UUID) <-chan error {
	return h.session.coord.Toggle(ctx, h.scope.Kind, id)
}

// Hydrate adds a further page of records to the scope. Ids already in the
// store keep their current state.
func (h *ScopeHandle) Hydrate(records []Record) {
	h.session.store.Hydrate(records, HydrateMissing, nil)
	for _, r := range records {
		h.mux.Track(r.EntityID)
	}
}

// Close unsubscribes the scope. Records stay in the session's store.
func (h *ScopeHandle) Close() {
	h.once.Do(func() {
		s := h.session
		s.mu.Lock()
		if s.scopes[h.scope.Key()] == h {
			delete(s.scopes, h.scope.Key())
		}
		s.mu.Unlock()
		h.mux.stop()
	})
}
