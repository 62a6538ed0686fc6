package pagination

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	createdAt time.Time
	id        uuid.UUID
}

func rowKey(r row) (time.Time, uuid.UUID) { return r.createdAt, r.id }

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, NormalizeLimit(0))
	assert.Equal(t, DefaultLimit, NormalizeLimit(-3))
	assert.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+1))
	assert.Equal(t, 7, NormalizeLimit(7))
	assert.Equal(t, 8, LimitWithBuffer(7))
}

func TestCursorRoundTripIsURLSafe(t *testing.T) {
	in := Cursor{CreatedAt: time.Date(2026, 3, 2, 9, 0, 0, 123456789, time.FixedZone("x", 3600)), ID: uuid.New()}
	token := EncodeCursor(in)
	assert.NotContains(t, token, "+")
	assert.NotContains(t, token, "/")
	assert.NotContains(t, token, "=")

	out, err := ParseCursor(token)
	require.NoError(t, err)
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
	assert.Equal(t, in.ID, out.ID)
}

func TestParseCursorRejectsGarbage(t *testing.T) {
	got, err := ParseCursor("  ")
	require.NoError(t, err)
	assert.Nil(t, got)

	for _, bad := range []string{
		"not-a-cursor",
		"%%%",
		base64.RawURLEncoding.EncodeToString([]byte("2026-01-01T00:00:00Z|nope")),
		base64.RawURLEncoding.EncodeToString([]byte("yesterday|" + uuid.NewString())),
	} {
		_, err := ParseCursor(bad)
		assert.ErrorIs(t, err, ErrInvalidCursor, bad)
	}
}

func TestPageTrimsBufferedRow(t *testing.T) {
	base := time.Now()
	rows := []row{{base, uuid.New()}, {base.Add(-time.Minute), uuid.New()}, {base.Add(-2 * time.Minute), uuid.New()}}

	page, next := Page(rows, 2, rowKey)
	require.Len(t, page, 2)
	require.NotNil(t, next)
	assert.Equal(t, rows[1].id, next.ID)

	page, next = Page(rows[:2], 2, rowKey)
	assert.Len(t, page, 2)
	assert.Nil(t, next)
}
