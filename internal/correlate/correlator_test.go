package correlate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vehicle-telematics/processing/internal/domain"
)

func coreMsg(vehicleID, ts string, speed float64) *domain.RawChannelMessage {
	return &domain.RawChannelMessage{
		VehicleID: vehicleID,
		Timestamp: ts,
		Kind:      domain.ChannelCoreSensor,
		Core:      &domain.CoreSensorPayload{SpeedKmh: speed},
	}
}

func behaviorMsg(vehicleID, ts string) *domain.RawChannelMessage {
	return &domain.RawChannelMessage{
		VehicleID: vehicleID,
		Timestamp: ts,
		Kind:      domain.ChannelBehavior,
		Behavior:  &domain.BehaviorPayload{HarshBrakingCount: 2},
	}
}

func TestIngest(t *testing.T) {
	t.Run("optional channel alone is not buildable", func(t *testing.T) {
		c := New(time.Minute, nil)

		snap, err := c.Ingest(behaviorMsg("VEH_001", "2026-01-01 10:00:00"))
		require.NoError(t, err)
		assert.Nil(t, snap)
		assert.Equal(t, 1, c.Len())
	})

	t.Run("core sensor payload makes the snapshot buildable", func(t *testing.T) {
		c := New(time.Minute, nil)

		_, err := c.Ingest(behaviorMsg("VEH_001", "2026-01-01 10:00:00"))
		require.NoError(t, err)

		snap, err := c.Ingest(coreMsg("VEH_001", "2026-01-01 10:00:00", 55))
		require.NoError(t, err)
		require.NotNil(t, snap)
		assert.NotNil(t, snap.Core)
		assert.NotNil(t, snap.Behavior)
		assert.Nil(t, snap.Health)
	})

	t.Run("different timestamps stay separate", func(t *testing.T) {
		c := New(time.Minute, nil)

		_, err := c.Ingest(coreMsg("VEH_001", "2026-01-01 10:00:00", 55))
		require.NoError(t, err)
		_, err = c.Ingest(coreMsg("VEH_001", "2026-01-01 10:00:05", 60))
		require.NoError(t, err)

		assert.Equal(t, 2, c.Len())
	})

	t.Run("same channel twice is last write wins", func(t *testing.T) {
		c := New(time.Minute, nil)

		_, err := c.Ingest(coreMsg("VEH_001", "2026-01-01 10:00:00", 55))
		require.NoError(t, err)
		snap, err := c.Ingest(coreMsg("VEH_001", "2026-01-01 10:00:00", 80))
		require.NoError(t, err)

		require.NotNil(t, snap)
		assert.Equal(t, 80.0, snap.Core.SpeedKmh)
		assert.Equal(t, 1, c.Len())
	})

	t.Run("missing vehicle id is rejected without creating a snapshot", func(t *testing.T) {
		c := New(time.Minute, nil)

		snap, err := c.Ingest(coreMsg("", "2026-01-01 10:00:00", 55))
		assert.ErrorIs(t, err, ErrMalformedMessage)
		assert.Nil(t, snap)
		assert.Equal(t, 0, c.Len())
	})

	t.Run("missing timestamp is rejected", func(t *testing.T) {
		c := New(time.Minute, nil)

		_, err := c.Ingest(coreMsg("VEH_001", "", 55))
		assert.ErrorIs(t, err, ErrMalformedMessage)
	})

	t.Run("unknown channel kind is rejected without creating a snapshot", func(t *testing.T) {
		c := New(time.Minute, nil)

		snap, err := c.Ingest(&domain.RawChannelMessage{
			VehicleID: "VEH_001",
			Timestamp: "2026-01-01 10:00:00",
			Kind:      domain.ChannelKind("diagnostics"),
		})
		assert.ErrorIs(t, err, ErrMalformedMessage)
		assert.Nil(t, snap)
		assert.Equal(t, 0, c.Len())
	})
}

func TestRemove(t *testing.T) {
	t.Run("a consumed key yields no second record", func(t *testing.T) {
		c := New(time.Minute, nil)
		key := domain.CorrelationKey{VehicleID: "VEH_001", Timestamp: "2026-01-01 10:00:00"}

		snap, err := c.Ingest(coreMsg(key.VehicleID, key.Timestamp, 55))
		require.NoError(t, err)
		require.NotNil(t, snap)

		c.Remove(key)
		assert.Equal(t, 0, c.Len())

		// A late optional fragment for the consumed key starts a fresh,
		// non-buildable snapshot instead of resurrecting the old one.
		snap, err = c.Ingest(behaviorMsg(key.VehicleID, key.Timestamp))
		require.NoError(t, err)
		assert.Nil(t, snap)
	})
}

func TestEvictStale(t *testing.T) {
	t.Run("unmatched anchors are evicted past the horizon", func(t *testing.T) {
		c := New(time.Minute, nil)
		base := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
		c.now = func() time.Time { return base }

		_, err := c.Ingest(behaviorMsg("VEH_001", "2026-01-01 10:00:00"))
		require.NoError(t, err)
		_, err = c.Ingest(behaviorMsg("VEH_002", "2026-01-01 10:00:30"))
		require.NoError(t, err)

		assert.Equal(t, 0, c.EvictStale(base.Add(30*time.Second)))
		assert.Equal(t, 2, c.Len())

		assert.Equal(t, 2, c.EvictStale(base.Add(2*time.Minute)))
		assert.Equal(t, 0, c.Len())
	})

	t.Run("zero ttl disables eviction", func(t *testing.T) {
		c := New(0, nil)
		_, err := c.Ingest(behaviorMsg("VEH_001", "2026-01-01 10:00:00"))
		require.NoError(t, err)

		assert.Equal(t, 0, c.EvictStale(time.Now().Add(24*time.Hour)))
		assert.Equal(t, 1, c.Len())
	})
}
