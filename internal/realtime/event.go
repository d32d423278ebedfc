// Package realtime carries like-edge change events between server instances
// and out to websocket subscribers.
package realtime

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/google/uuid"
)

type EventType string

const (
	EventInsert EventType = "insert"
	EventDelete EventType = "delete"
)

var ErrMalformedEvent = errors.New("malformed change event")

// ChangeEvent is one insert or delete on a like-edge relation.
type ChangeEvent struct {
	Type         EventType `json:"event_type" msgpack:"t"`
	EntityID     uuid.UUID `json:"entity_id" msgpack:"e"`
	ActingUserID uuid.UUID `json:"acting_user_id" msgpack:"u"`
}

// Delta is +1 for an insert and -1 for a delete.
func (e ChangeEvent) Delta() int {
	if e.Type == EventDelete {
		return -1
	}
	return 1
}

func (e ChangeEvent) Validate() error {
	if e.Type != EventInsert && e.Type != EventDelete {
		return ErrMalformedEvent
	}
	if e.EntityID == uuid.Nil || e.ActingUserID == uuid.Nil {
		return ErrMalformedEvent
	}
	return nil
}

// EncodeJSON renders the wire form sent to websocket clients.
func EncodeJSON(e ChangeEvent) ([]byte, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(e)
}

// wireEvent leaves every field optional so partial payloads can be told apart
// from zero values.
type wireEvent struct {
	Type         *string `json:"event_type"`
	EntityID     *string `json:"entity_id"`
	ActingUserID *string `json:"acting_user_id"`
}

// DecodeJSON parses an untrusted payload. Anything that is not a complete
// insert or delete event yields ErrMalformedEvent.
func DecodeJSON(raw []byte) (ChangeEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return ChangeEvent{}, ErrMalformedEvent
	}
	if w.Type == nil || w.EntityID == nil || w.ActingUserID == nil {
		return ChangeEvent{}, ErrMalformedEvent
	}

	ev := ChangeEvent{Type: EventType(strings.ToLower(strings.TrimSpace(*w.Type)))}
	var err error
	if ev.EntityID, err = uuid.Parse(*w.EntityID); err != nil {
		return ChangeEvent{}, ErrMalformedEvent
	}
	if ev.ActingUserID, err = uuid.Parse(*w.ActingUserID); err != nil {
		return ChangeEvent{}, ErrMalformedEvent
	}
	if err := ev.Validate(); err != nil {
		return ChangeEvent{}, err
	}
	return ev, nil
}
