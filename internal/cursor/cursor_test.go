package cursor

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type keyed struct {
	at time.Time
	id uuid.UUID
}

func (k keyed) CursorKey() (time.Time, uuid.UUID) { return k.at, k.id }

func TestEncodeDecodeRoundTrip(t *testing.T) {
	at := time.Date(2024, 3, 9, 14, 30, 15, 123456000, time.UTC)
	id := uuid.MustParse("6f1c2a7e-8d3b-4c5a-9e1f-0a2b3c4d5e6f")

	token := Encode(keyed{at: at, id: id})
	assert.Equal(t, "2024-03-09T14:30:15.123456Z::6f1c2a7e-8d3b-4c5a-9e1f-0a2b3c4d5e6f", token)

	c, err := Decode(token)
	require.NoError(t, err)
	assert.True(t, c.CreatedAt.Equal(at))
	assert.Equal(t, id, c.ID)
	assert.True(t, c.HasID())
}

func TestEncodeNormalizesToUTC(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*60*60)
	at := time.Date(2024, 3, 9, 21, 30, 0, 0, loc)
	id := uuid.New()

	token := EncodeKey(at, id)
	assert.True(t, strings.HasPrefix(token, "2024-03-09T14:30:00Z"+Separator))
}

func TestDecodeRejectsMalformedInput(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"not a cursor", "not-a-cursor"},
		{"bad id", "2020-01-01::not-a-uuid"},
		{"date only timestamp with id", "2020-01-01::6f1c2a7e-8d3b-4c5a-9e1f-0a2b3c4d5e6f"},
		{"valid timestamp bad id", "2020-01-01T00:00:00Z::not-a-uuid"},
		{"urn id", "2020-01-01T00:00:00Z::urn:uuid:6f1c2a7e-8d3b-4c5a-9e1f-0a2b3c4d5e6f"},
		{"nil id", "2020-01-01T00:00:00Z::00000000-0000-0000-0000-000000000000"},
		{"empty id", "2020-01-01T00:00:00Z::"},
		{"empty timestamp", "::6f1c2a7e-8d3b-4c5a-9e1f-0a2b3c4d5e6f"},
		{"extra component", "2020-01-01T00:00:00Z::6f1c2a7e-8d3b-4c5a-9e1f-0a2b3c4d5e6f::x"},
		{"sql injection", "2020-01-01T00:00:00Z' OR 1=1 --"},
		{"oversized", strings.Repeat("9", maxLen+1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.input)
			assert.ErrorIs(t, err, ErrInvalidCursor)
		})
	}
}

func TestDecodeLegacyTimestampOnly(t *testing.T) {
	c, err := Decode("2023-11-02T08:00:00Z")
	require.NoError(t, err)
	assert.False(t, c.HasID())
	assert.Equal(t, time.Date(2023, 11, 2, 8, 0, 0, 0, time.UTC), c.CreatedAt)
}

func TestFromQuery(t *testing.T) {
	c, rejected := FromQuery("")
	assert.Nil(t, c)
	assert.False(t, rejected)

	c, rejected = FromQuery("not-a-cursor")
	assert.Nil(t, c, "invalid cursor must behave like a first page request")
	assert.True(t, rejected)

	token := EncodeKey(time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC), uuid.New())
	c, rejected = FromQuery(token)
	require.NotNil(t, c)
	assert.False(t, rejected)
}
