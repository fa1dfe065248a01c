// Package correlate groups channel fragments into per-(vehicle, timestamp)
// snapshots. The table has a single writer (the ingestion loop), so no
// locking is needed.
package correlate

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"vehicle-telematics/processing/internal/domain"
)

// ErrMalformedMessage marks a message missing its identity fields or
// carrying an unknown channel kind. Such messages never create a snapshot.
var ErrMalformedMessage = errors.New("malformed channel message")

type Correlator struct {
	inflight map[domain.CorrelationKey]*domain.VehicleSnapshot
	size     atomic.Int64
	ttl      time.Duration
	now      func() time.Time
	log      *zap.Logger
}

func New(ttl time.Duration, log *zap.Logger) *Correlator {
	if log == nil {
		log = zap.NewNop()
	}
	return &Correlator{
		inflight: make(map[domain.CorrelationKey]*domain.VehicleSnapshot),
		ttl:      ttl,
		now:      time.Now,
		log:      log,
	}
}

// Ingest stores the message's payload in the snapshot for its correlation
// key, creating the snapshot if needed. If the same channel arrives twice
// for one key the later payload wins. Returns the snapshot once it holds a
// core-sensor payload, nil otherwise.
func (c *Correlator) Ingest(msg *domain.RawChannelMessage) (*domain.VehicleSnapshot, error) {
	if msg.VehicleID == "" || msg.Timestamp == "" {
		return nil, fmt.Errorf("%w: vehicle_id=%q timestamp=%q", ErrMalformedMessage, msg.VehicleID, msg.Timestamp)
	}

	switch msg.Kind {
	case domain.ChannelCoreSensor, domain.ChannelHealth, domain.ChannelBehavior, domain.ChannelEnvironmental:
	default:
		return nil, fmt.Errorf("%w: unknown channel kind %q", ErrMalformedMessage, msg.Kind)
	}

	key := domain.CorrelationKey{VehicleID: msg.VehicleID, Timestamp: msg.Timestamp}
	snap, ok := c.inflight[key]
	if !ok {
		snap = &domain.VehicleSnapshot{Key: key, FirstSeen: c.now()}
		c.inflight[key] = snap
		c.size.Store(int64(len(c.inflight)))
	}

	switch msg.Kind {
	case domain.ChannelCoreSensor:
		snap.Core = msg.Core
	case domain.ChannelHealth:
		snap.Health = msg.Health
	case domain.ChannelBehavior:
		snap.Behavior = msg.Behavior
	case domain.ChannelEnvironmental:
		snap.Environment = msg.Environment
	}

	if snap.Buildable() {
		return snap, nil
	}
	return nil, nil
}

// Remove drops a snapshot from the in-flight table. Called after the
// snapshot has been consumed into an enriched record, so a key never
// yields a second record.
func (c *Correlator) Remove(key domain.CorrelationKey) {
	delete(c.inflight, key)
	c.size.Store(int64(len(c.inflight)))
}

// EvictStale removes snapshots older than the eviction horizon so an
// anchor that never arrives cannot leak memory. Returns the eviction count.
func (c *Correlator) EvictStale(now time.Time) int {
	if c.ttl <= 0 {
		return 0
	}
	evicted := 0
	for key, snap := range c.inflight {
		if now.Sub(snap.FirstSeen) > c.ttl {
			delete(c.inflight, key)
			evicted++
		}
	}
	c.size.Store(int64(len(c.inflight)))
	if evicted > 0 {
		c.log.Debug("evicted stale snapshots",
			zap.Int("count", evicted),
			zap.Int("inflight", len(c.inflight)))
	}
	return evicted
}

// Len reports the number of in-flight snapshots. Safe to call from other
// goroutines (the status endpoint) while the loop owns the table.
func (c *Correlator) Len() int {
	return int(c.size.Load())
}
