// Package engagement keeps one viewing session's like state consistent while
// the viewer toggles likes optimistically and other viewers' likes stream in
// over a shared change channel.
package engagement

import (
	"sync"

	"github.com/google/uuid"
)

// Record is the like state of one entity as seen by one viewer.
type Record struct {
	EntityID       uuid.UUID `json:"entity_id"`
	LikeCount      int64     `json:"like_count"`
	ViewerHasLiked bool      `json:"viewer_has_liked"`
}

// DeltaSource says where a delta came from. Local deltas are the viewer's own
// toggles and set ViewerHasLiked; remote deltas only move the count.
type DeltaSource int

const (
	LocalDelta DeltaSource = iota
	RemoteDelta
)

func (s DeltaSource) String() string {
	if s == LocalDelta {
		return "local"
	}
	return "remote"
}

type HydrateMode int

const (
	// HydrateMissing only adds ids the store has never seen.
	HydrateMissing HydrateMode = iota
	// HydrateAuthoritative overwrites existing records with fetched state,
	// except for ids the caller asks to skip.
	HydrateAuthoritative
)

// Store is the per-session map from entity id to Record. It is mutated only
// through ApplyDelta, Revert and Hydrate.
type Store struct {
	mu       sync.RWMutex
	records  map[uuid.UUID]Record
	listener func(Record)
}

func NewStore() *Store {
	return &Store{records: make(map[uuid.UUID]Record)}
}

// OnChange registers fn to be called after every change, outside the lock.
func (s *Store) OnChange(fn func(Record)) {
	s.mu.Lock()
	s.listener = fn
	s.mu.Unlock()
}

// Get returns the record for id, or a zero record for unknown ids.
func (s *Store) Get(id uuid.UUID) Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.records[id]; ok {
		return r
	}
	return Record{EntityID: id}
}

func (s *Store) Has(id uuid.UUID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[id]
	return ok
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// ApplyDelta moves the count of id by delta (+1 or -1), never below zero.
func (s *Store) ApplyDelta(id uuid.UUID, delta int, source DeltaSource) Record {
	_, after := s.adjust(id, func(r *Record) {
		r.LikeCount += int64(delta)
		if source == LocalDelta {
			r.ViewerHasLiked = delta > 0
		}
	})
	return after
}

// Revert undoes a local change: the count moves by countDelta, never below
// zero, and the liked flag is set to liked.
func (s *Store) Revert(id uuid.UUID, countDelta int64, liked bool) Record {
	_, after := s.adjust(id, func(r *Record) {
		r.LikeCount += countDelta
		r.ViewerHasLiked = liked
	})
	return after
}

// adjust applies fn to the record for id under the lock and returns the
// record before and after.
func (s *Store) adjust(id uuid.UUID, fn func(*Record)) (Record, Record) {
	s.mu.Lock()
	before, ok := s.records[id]
	if !ok {
		before = Record{EntityID: id}
	}
	r := before
	fn(&r)
	if r.LikeCount < 0 {
		r.LikeCount = 0
	}
	s.records[id] = r
	listener := s.listener
	s.mu.Unlock()

	if listener != nil {
		listener(r)
	}
	return before, r
}

// Hydrate seeds records. skip may be nil; it is consulted for every id
// HydrateAuthoritative would overwrite. Returns the number of records written.
func (s *Store) Hydrate(records []Record, mode HydrateMode, skip func(uuid.UUID) bool) int {
	var changed []Record

	s.mu.Lock()
	for _, r := range records {
		if r.EntityID == uuid.Nil {
			continue
		}
		if _, exists := s.records[r.EntityID]; exists {
			if mode == HydrateMissing {
				continue
			}
			if skip != nil && skip(r.EntityID) {
				continue
			}
		}
		if r.LikeCount < 0 {
			r.LikeCount = 0
		}
		s.records[r.EntityID] = r
		changed = append(changed, r)
	}
	fn := s.listener
	s.mu.Unlock()

	if fn != nil {
		for _, r := range changed {
			fn(r)
		}
	}
	return len(changed)
}
