// Package cursor encodes and decodes the opaque pagination tokens handed to
// feed clients. A token carries the ordering key (created_at, id) of the last
// entity of the previous page.
package cursor

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Separator joins the timestamp and id components. RFC 3339 timestamps contain
// single colons, never two in a row.
const Separator = "::"

// maxLen bounds untrusted input before any parsing happens.
const maxLen = 128

var ErrInvalidCursor = errors.New("invalid cursor")

// Cursor is a decoded ordering key. ID is uuid.Nil for legacy timestamp-only
// tokens.
type Cursor struct {
	CreatedAt time.Time
	ID        uuid.UUID
}

// HasID reports whether the id component is known. Without it the tie-break
// on equal timestamps is lost for one page.
func (c Cursor) HasID() bool {
	return c.ID != uuid.Nil
}

// Keyed is implemented by anything that can be paginated.
type Keyed interface {
	CursorKey() (time.Time, uuid.UUID)
}

// Encode serializes the ordering key of k.
func Encode(k Keyed) string {
	createdAt, id := k.CursorKey()
	return EncodeKey(createdAt, id)
}

func EncodeKey(createdAt time.Time, id uuid.UUID) string {
	return createdAt.UTC().Format(time.RFC3339Nano) + Separator + id.String()
}

// Decode parses a token produced by Encode, or a legacy timestamp-only token.
// Anything else is rejected with ErrInvalidCursor.
func Decode(raw string) (Cursor, error) {
	if raw == "" || len(raw) > maxLen {
		return Cursor{}, ErrInvalidCursor
	}

	tsPart, idPart, hasID := strings.Cut(raw, Separator)
	createdAt, err := parseTimestamp(tsPart)
	if err != nil {
		return Cursor{}, ErrInvalidCursor
	}
	if !hasID {
		return Cursor{CreatedAt: createdAt}, nil
	}

	id, err := parseID(idPart)
	if err != nil {
		return Cursor{}, ErrInvalidCursor
	}
	return Cursor{CreatedAt: createdAt, ID: id}, nil
}

// FromQuery turns a raw query value into an optional cursor. Stale or garbage
// tokens are treated as absent; rejected reports that this happened.
func FromQuery(raw string) (c *Cursor, rejected bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}
	decoded, err := Decode(raw)
	if err != nil {
		return nil, true
	}
	return &decoded, false
}

func parseTimestamp(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, ErrInvalidCursor
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// parseID only accepts the canonical 36-character form. uuid.Parse alone also
// accepts urn: and braced variants.
func parseID(s string) (uuid.UUID, error) {
	if len(s) != 36 {
		return uuid.Nil, ErrInvalidCursor
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, err
	}
	if id == uuid.Nil {
		return uuid.Nil, ErrInvalidCursor
	}
	return id, nil
}
