package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"vehicle-telematics/processing/internal/broker"
	"vehicle-telematics/processing/internal/config"
	"vehicle-telematics/processing/internal/correlate"
	"vehicle-telematics/processing/internal/domain"
	"vehicle-telematics/processing/internal/metrics"
	"vehicle-telematics/processing/internal/sink"
)

// Broker is the inbound side of the loop, satisfied by broker.Consumer and
// by test fakes.
type Broker interface {
	Fetch(ctx context.Context, timeout time.Duration) (broker.InboundMessage, bool)
	Commit(ctx context.Context, msgs []broker.InboundMessage) error
}

type LoopState string

const (
	StateIdle        LoopState = "idle"
	StatePolling     LoopState = "polling"
	StateBatching    LoopState = "batching"
	StateDispatching LoopState = "dispatching"
	StateBackoff     LoopState = "backoff"
)

// Loop is the single driver of the pipeline: it polls the broker, batches
// messages, runs correlate -> build -> route -> sinks, and commits offsets
// only after a batch dispatched cleanly. It is the only writer to the
// correlator's snapshot table.
type Loop struct {
	broker     Broker
	correlator *correlate.Correlator
	builder    *Builder
	sinks      map[domain.Branch]sink.RecordSink
	cfg        *config.Config
	log        *zap.Logger

	state atomic.Value // LoopState
}

func NewLoop(
	b Broker,
	correlator *correlate.Correlator,
	builder *Builder,
	sinks []sink.RecordSink,
	cfg *config.Config,
	log *zap.Logger,
) *Loop {
	if log == nil {
		log = zap.NewNop()
	}
	byBranch := make(map[domain.Branch]sink.RecordSink, len(sinks))
	for _, s := range sinks {
		byBranch[s.Branch()] = s
	}
	l := &Loop{
		broker:     b,
		correlator: correlator,
		builder:    builder,
		sinks:      byBranch,
		cfg:        cfg,
		log:        log,
	}
	l.state.Store(StateIdle)
	return l
}

// State reports the loop's current phase for the status endpoint.
func (l *Loop) State() LoopState {
	return l.state.Load().(LoopState)
}

// Run drives the loop until the context is cancelled. Cancellation is
// cooperative: it is checked at the top of every cycle, and a batch in
// dispatch always runs to completion or failure first. Dispatch and the
// offset commit therefore run on their own context, detached from the
// shutdown signal and bounded by the dispatch timeout, so a Stop arriving
// mid-batch cannot cut off sink writes or lose committed offsets.
func (l *Loop) Run(ctx context.Context) {
	defer l.state.Store(StateIdle)

	for {
		if ctx.Err() != nil {
			return
		}

		batch := l.collectBatch(ctx)
		if len(batch) == 0 {
			l.state.Store(StateIdle)
			continue
		}

		l.state.Store(StateDispatching)
		ioCtx, cancelIO := context.WithTimeout(context.Background(), l.cfg.DispatchTimeout)
		err := l.dispatch(ioCtx, batch)
		if err == nil {
			err = l.broker.Commit(ioCtx, batch)
			if err != nil {
				err = fmt.Errorf("offset commit: %w", err)
			}
		}
		cancelIO()

		if err != nil {
			metrics.ErrorsEncountered.Add(1)
			l.log.Error("batch dispatch failed, abandoning batch",
				zap.Int("batch_size", len(batch)),
				zap.Error(err))
			l.backoff(ctx)
			continue
		}
		metrics.BatchesDispatched.Add(1)

		if n := l.correlator.EvictStale(time.Now()); n > 0 {
			metrics.SnapshotsEvicted.Add(int64(n))
		}
	}
}

// collectBatch accumulates messages until the batch is full or the max
// wait elapses. An empty poll returns an empty batch.
func (l *Loop) collectBatch(ctx context.Context) []broker.InboundMessage {
	l.state.Store(StatePolling)

	var batch []broker.InboundMessage
	deadline := time.Now().Add(l.cfg.BatchMaxWait)

	for len(batch) < l.cfg.BatchSize {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			break
		}
		wait := l.cfg.PollTimeout
		if wait > remaining {
			wait = remaining
		}

		in, ok := l.broker.Fetch(ctx, wait)
		if !ok {
			if ctx.Err() != nil || len(batch) > 0 {
				break
			}
			continue
		}
		batch = append(batch, in)
		l.state.Store(StateBatching)
	}

	return batch
}

// dispatch runs one batch through the pipeline. Malformed messages are
// counted and skipped without failing the batch; a failure while building
// one record skips only that record; a sink failure fails the whole batch.
func (l *Loop) dispatch(ctx context.Context, batch []broker.InboundMessage) error {
	ready := make(map[domain.CorrelationKey]*domain.VehicleSnapshot)
	order := make([]domain.CorrelationKey, 0, len(batch))

	for _, in := range batch {
		if in.DecodeErr != nil {
			metrics.MalformedMessages.Add(1)
			l.log.Warn("dropping undecodable message", zap.Error(in.DecodeErr))
			continue
		}

		snap, err := l.correlator.Ingest(in.Msg)
		if err != nil {
			if errors.Is(err, correlate.ErrMalformedMessage) {
				metrics.MalformedMessages.Add(1)
				l.log.Warn("dropping malformed message", zap.Error(err))
				continue
			}
			return fmt.Errorf("ingest: %w", err)
		}
		metrics.MessagesProcessed.Add(1)

		if snap != nil {
			if _, seen := ready[snap.Key]; !seen {
				order = append(order, snap.Key)
			}
			ready[snap.Key] = snap
		}
	}

	records := make([]*domain.EnrichedRecord, 0, len(order))
	for _, key := range order {
		rec, err := l.builder.Build(ready[key])
		l.correlator.Remove(key)
		if err != nil {
			metrics.ErrorsEncountered.Add(1)
			l.log.Error("record build failed, skipping record",
				zap.String("vehicle_id", key.VehicleID),
				zap.String("timestamp", key.Timestamp),
				zap.Error(err))
			continue
		}
		metrics.RecordsBuilt.Add(1)
		if rec.AnomalyDetected {
			metrics.AnomaliesDetected.Add(1)
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil
	}
	return l.deliver(ctx, records)
}

// deliver fans the routed records out to the branch sinks. Branches run
// concurrently; within a branch records deliver in order.
func (l *Loop) deliver(ctx context.Context, records []*domain.EnrichedRecord) error {
	perBranch := make(map[domain.Branch][]*domain.EnrichedRecord)
	for _, rec := range records {
		for _, branch := range Route(rec) {
			perBranch[branch] = append(perBranch[branch], rec)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for branch, recs := range perBranch {
		s, ok := l.sinks[branch]
		if !ok {
			return fmt.Errorf("no sink registered for branch %s", branch)
		}
		recs := recs
		g.Go(func() error {
			for _, rec := range recs {
				if err := s.Deliver(gctx, rec); err != nil {
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}

func (l *Loop) backoff(ctx context.Context) {
	l.state.Store(StateBackoff)
	select {
	case <-time.After(l.cfg.ErrorBackoff):
	case <-ctx.Done():
	}
}
