package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTimestamp(t *testing.T) {
	t.Run("channel layout", func(t *testing.T) {
		ts, ok := parseTimestamp("2026-02-01 10:00:00")
		require.True(t, ok)
		assert.Equal(t, time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC), ts)
	})

	t.Run("rfc3339 layout", func(t *testing.T) {
		ts, ok := parseTimestamp("2026-02-01T10:00:00Z")
		require.True(t, ok)
		assert.Equal(t, time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC), ts)
	})

	t.Run("unparseable timestamp yields the zero time", func(t *testing.T) {
		ts, ok := parseTimestamp("not-a-timestamp")
		assert.False(t, ok)
		assert.True(t, ts.IsZero())
	})
}
