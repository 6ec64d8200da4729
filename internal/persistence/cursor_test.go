package persistence

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/fittrack/internal/domain"
)

func TestCursorRoundTrip(t *testing.T) {
	in := &domain.Cursor{StartedAt: time.Date(2025, time.March, 3, 7, 30, 0, 123, time.UTC), ID: "act-9"}

	out, err := DecodeCursor(EncodeCursor(in))
	require.NoError(t, err)
	require.True(t, in.StartedAt.Equal(out.StartedAt))
	require.Equal(t, in.ID, out.ID)
}

func TestDecodeCursorEdgeCases(t *testing.T) {
	c, err := DecodeCursor("")
	require.NoError(t, err)
	require.Nil(t, c)
	require.Empty(t, EncodeCursor(nil))

	_, err = DecodeCursor("%%%")
	require.Error(t, err)

	_, err = DecodeCursor(base64.RawURLEncoding.EncodeToString([]byte("no-separator")))
	require.Error(t, err)
}

func TestLessCursor(t *testing.T) {
	ts := time.Date(2025, time.March, 3, 7, 0, 0, 0, time.UTC)
	c := domain.Cursor{StartedAt: ts, ID: "m"}

	require.True(t, LessCursor(domain.Activity{ID: "z", StartedAt: ts.Add(-time.Minute)}, c))
	require.True(t, LessCursor(domain.Activity{ID: "a", StartedAt: ts}, c))
	require.False(t, LessCursor(domain.Activity{ID: "m", StartedAt: ts}, c))
	require.False(t, LessCursor(domain.Activity{ID: "a", StartedAt: ts.Add(time.Minute)}, c))
}
