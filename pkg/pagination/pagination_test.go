package pagination

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizeLimit(t *testing.T) {
	require.Equal(t, DefaultLimit, NormalizeLimit(0))
	require.Equal(t, DefaultLimit, NormalizeLimit(-4))
	require.Equal(t, 10, NormalizeLimit(10))
	require.Equal(t, MaxLimit, NormalizeLimit(MaxLimit+50))
	require.Equal(t, 11, FetchLimit(10))
}

func TestAfterID(t *testing.T) {
	id, err := AfterID(EncodeCursor(42))
	require.NoError(t, err)
	require.Equal(t, int64(42), id)

	id, err = AfterID("  ")
	require.NoError(t, err)
	require.Zero(t, id)

	legacy := base64.RawURLEncoding.EncodeToString([]byte("seq|42"))
	for _, raw := range []string{"%%%", "bm9wZQ", legacy, EncodeCursor(0), EncodeCursor(-3)} {
		_, err := AfterID(raw)
		require.ErrorIs(t, err, ErrInvalidCursor, raw)
	}
}

func TestTrim(t *testing.T) {
	rows := []int64{1, 2, 3, 4}

	page, next := Trim(rows, 3, func(v int64) int64 { return v })
	require.Equal(t, []int64{1, 2, 3}, page)
	after, err := AfterID(next)
	require.NoError(t, err)
	require.Equal(t, int64(3), after)

	page, next = Trim(rows[:2], 3, func(v int64) int64 { return v })
	require.Len(t, page, 2)
	require.Empty(t, next)
}
