package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vehicle-telematics/processing/internal/broker"
	"vehicle-telematics/processing/internal/config"
	"vehicle-telematics/processing/internal/correlate"
	"vehicle-telematics/processing/internal/domain"
	"vehicle-telematics/processing/internal/metrics"
	"vehicle-telematics/processing/internal/sink"
)

type fakeBroker struct {
	mu        sync.Mutex
	pending   []broker.InboundMessage
	committed int
}

func (f *fakeBroker) Fetch(ctx context.Context, timeout time.Duration) (broker.InboundMessage, bool) {
	f.mu.Lock()
	if len(f.pending) > 0 {
		in := f.pending[0]
		f.pending = f.pending[1:]
		f.mu.Unlock()
		return in, true
	}
	f.mu.Unlock()

	select {
	case <-time.After(timeout):
	case <-ctx.Done():
	}
	return broker.InboundMessage{}, false
}

func (f *fakeBroker) Commit(ctx context.Context, msgs []broker.InboundMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.committed += len(msgs)
	return nil
}

func (f *fakeBroker) committedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.committed
}

type fakeSink struct {
	mu        sync.Mutex
	branch    domain.Branch
	delivered []*domain.EnrichedRecord
	err       error
}

func (f *fakeSink) Branch() domain.Branch { return f.branch }

func (f *fakeSink) Deliver(ctx context.Context, rec *domain.EnrichedRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.delivered = append(f.delivered, rec)
	return nil
}

func (f *fakeSink) Close() error { return nil }

// slowSink honors its context the way the pgx and kafka-go sinks do, so a
// cancelled delivery context aborts the write.
type slowSink struct {
	fakeSink
	delay time.Duration
}

func (f *slowSink) Deliver(ctx context.Context, rec *domain.EnrichedRecord) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(f.delay):
	}
	return f.fakeSink.Deliver(ctx, rec)
}

func (f *fakeSink) deliveredCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.delivered)
}

func testLoopConfig() *config.Config {
	return &config.Config{
		BatchSize:            10,
		BatchMaxWait:         50 * time.Millisecond,
		PollTimeout:          10 * time.Millisecond,
		ErrorBackoff:         10 * time.Millisecond,
		DispatchTimeout:      5 * time.Second,
		SnapshotTTL:          time.Minute,
		MaintenanceThreshold: 0.3,
		HealthScoreThreshold: 0.7,
	}
}

func coreInbound(vehicleID, ts string) broker.InboundMessage {
	return broker.InboundMessage{Msg: &domain.RawChannelMessage{
		VehicleID: vehicleID,
		Timestamp: ts,
		Kind:      domain.ChannelCoreSensor,
		Core: &domain.CoreSensorPayload{
			SpeedKmh:     60,
			EngineTempC:  90,
			FuelLevelPct: 55,
		},
	}}
}

func newTestLoop(b Broker, sinks ...sink.RecordSink) *Loop {
	cfg := testLoopConfig()
	return NewLoop(
		b,
		correlate.New(cfg.SnapshotTTL, nil),
		newTestBuilder(),
		sinks,
		cfg,
		nil,
	)
}

func TestLoopDispatch(t *testing.T) {
	t.Run("nine well formed and one malformed yield nine records", func(t *testing.T) {
		fb := &fakeBroker{}
		for i := 0; i < 5; i++ {
			fb.pending = append(fb.pending, coreInbound(fmt.Sprintf("VEH_%03d", i), "2026-02-01 10:00:00"))
		}
		fb.pending = append(fb.pending, coreInbound("", "2026-02-01 10:00:00")) // missing vehicle_id
		for i := 5; i < 9; i++ {
			fb.pending = append(fb.pending, coreInbound(fmt.Sprintf("VEH_%03d", i), "2026-02-01 10:00:00"))
		}

		storage := &fakeSink{branch: domain.BranchStorage}
		adFeed := &fakeSink{branch: domain.BranchAdFeed}
		maintFeed := &fakeSink{branch: domain.BranchMaintenanceFeed}
		loop := newTestLoop(fb, storage, adFeed, maintFeed)

		malformedBefore := metrics.MalformedMessages.Load()

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			loop.Run(ctx)
			close(done)
		}()

		assert.Eventually(t, func() bool {
			return storage.deliveredCount() == 9 && fb.committedCount() == 10
		}, 2*time.Second, 5*time.Millisecond)

		cancel()
		<-done

		assert.Equal(t, malformedBefore+1, metrics.MalformedMessages.Load())
	})

	t.Run("duplicate key in one batch yields a single record", func(t *testing.T) {
		fb := &fakeBroker{}
		fb.pending = append(fb.pending,
			coreInbound("VEH_001", "2026-02-01 10:00:00"),
			broker.InboundMessage{Msg: &domain.RawChannelMessage{
				VehicleID: "VEH_001",
				Timestamp: "2026-02-01 10:00:00",
				Kind:      domain.ChannelBehavior,
				Behavior:  &domain.BehaviorPayload{HarshBrakingCount: 3},
			}},
		)

		storage := &fakeSink{branch: domain.BranchStorage}
		adFeed := &fakeSink{branch: domain.BranchAdFeed}
		maintFeed := &fakeSink{branch: domain.BranchMaintenanceFeed}
		loop := newTestLoop(fb, storage, adFeed, maintFeed)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			loop.Run(ctx)
			close(done)
		}()

		assert.Eventually(t, func() bool {
			return fb.committedCount() == 2
		}, 2*time.Second, 5*time.Millisecond)

		cancel()
		<-done

		require.Equal(t, 1, storage.deliveredCount())
		// The behavior fragment that arrived after the anchor still lands
		// in the record built from this batch.
		assert.Greater(t, storage.delivered[0].DrivingAggressiveness, 0.0)
	})

	t.Run("sink failure abandons the batch without committing", func(t *testing.T) {
		fb := &fakeBroker{}
		fb.pending = append(fb.pending, coreInbound("VEH_001", "2026-02-01 10:00:00"))

		storage := &fakeSink{branch: domain.BranchStorage, err: errors.New("storage down")}
		adFeed := &fakeSink{branch: domain.BranchAdFeed}
		maintFeed := &fakeSink{branch: domain.BranchMaintenanceFeed}
		loop := newTestLoop(fb, storage, adFeed, maintFeed)

		errorsBefore := metrics.ErrorsEncountered.Load()

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			loop.Run(ctx)
			close(done)
		}()

		assert.Eventually(t, func() bool {
			return metrics.ErrorsEncountered.Load() > errorsBefore
		}, 2*time.Second, 5*time.Millisecond)

		cancel()
		<-done

		assert.Equal(t, 0, fb.committedCount())
	})

	t.Run("cancellation mid dispatch finishes the in-flight batch", func(t *testing.T) {
		fb := &fakeBroker{}
		for i := 0; i < 3; i++ {
			fb.pending = append(fb.pending, coreInbound(fmt.Sprintf("VEH_%03d", i), "2026-02-01 10:00:00"))
		}

		storage := &slowSink{fakeSink: fakeSink{branch: domain.BranchStorage}, delay: 30 * time.Millisecond}
		adFeed := &fakeSink{branch: domain.BranchAdFeed}
		maintFeed := &fakeSink{branch: domain.BranchMaintenanceFeed}
		loop := newTestLoop(fb, storage, adFeed, maintFeed)

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			loop.Run(ctx)
			close(done)
		}()

		// Stop as soon as the batch enters dispatch, while sink writes
		// are still in flight.
		require.Eventually(t, func() bool {
			return loop.State() == StateDispatching
		}, 2*time.Second, time.Millisecond)
		cancel()
		<-done

		assert.Equal(t, 3, storage.deliveredCount())
		assert.Equal(t, 3, fb.committedCount())
	})

	t.Run("run returns promptly on cancellation", func(t *testing.T) {
		fb := &fakeBroker{}
		loop := newTestLoop(fb, &fakeSink{branch: domain.BranchStorage},
			&fakeSink{branch: domain.BranchAdFeed}, &fakeSink{branch: domain.BranchMaintenanceFeed})

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			loop.Run(ctx)
			close(done)
		}()

		cancel()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("loop did not stop after cancellation")
		}
	})
}
