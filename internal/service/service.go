// Package service owns the processor lifecycle: wiring the broker consumer,
// pipeline and sinks together, starting and stopping them as a unit, and
// answering status queries.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"vehicle-telematics/processing/internal/broker"
	"vehicle-telematics/processing/internal/config"
	"vehicle-telematics/processing/internal/correlate"
	"vehicle-telematics/processing/internal/metrics"
	"vehicle-telematics/processing/internal/pipeline"
	"vehicle-telematics/processing/internal/sink"
	"vehicle-telematics/processing/internal/store"
)

type Status struct {
	Running           bool             `json:"running"`
	KafkaConnected    bool             `json:"kafka_connected"`
	DatabaseConnected bool             `json:"database_connected"`
	ActiveWorkers     int              `json:"active_workers"`
	LoopState         string           `json:"loop_state"`
	InflightSnapshots int              `json:"inflight_snapshots"`
	Statistics        map[string]int64 `json:"statistics"`
}

// Processor is the running service. The database and Redis connections are
// opened once at construction (unreachable storage is the one fatal startup
// condition); the Kafka consumer and feed writers exist only while running,
// so Stop/Start cycles are clean.
type Processor struct {
	cfg   *config.Config
	log   *zap.Logger
	db    *store.PostgresStore
	redis *store.RedisStore

	mu         sync.Mutex
	running    bool
	cancel     context.CancelFunc
	consumer   *broker.Consumer
	correlator *correlate.Correlator
	loop       *pipeline.Loop
	sinks      []sink.RecordSink
	done       chan struct{}
}

func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Processor, error) {
	if log == nil {
		log = zap.NewNop()
	}

	db, err := store.NewPostgresStore(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	redisStore, err := store.NewRedisStore(ctx, cfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	return &Processor{cfg: cfg, log: log, db: db, redis: redisStore}, nil
}

// Redis exposes the shared Redis store for collaborators wired in main,
// such as the control-API authenticator.
func (p *Processor) Redis() *store.RedisStore {
	return p.redis
}

// Start brings up the consumer, sinks and ingestion loop. Idempotent: a
// second Start while running is a no-op.
func (p *Processor) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.running {
		return nil
	}

	dialCtx, cancelDial := context.WithTimeout(context.Background(), 10*time.Second)
	consumer, err := broker.NewConsumer(dialCtx, p.cfg, p.log)
	cancelDial()
	if err != nil {
		return fmt.Errorf("connect kafka: %w", err)
	}

	p.consumer = consumer
	p.correlator = correlate.New(p.cfg.SnapshotTTL, p.log)
	builder := pipeline.NewBuilder(p.cfg.MaintenanceThreshold, p.cfg.HealthScoreThreshold)

	p.sinks = []sink.RecordSink{
		sink.NewStorageSink(p.db, p.redis, p.log),
		sink.NewMaintenanceFeedSink(p.cfg.KafkaBrokers, p.cfg.MaintenanceTopic),
		sink.NewAdFeedSink(p.cfg.KafkaBrokers, p.cfg.AdTopic),
	}

	p.loop = pipeline.NewLoop(p.consumer, p.correlator, builder, p.sinks, p.cfg, p.log)

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})

	go func() {
		defer close(p.done)
		p.loop.Run(ctx)
	}()

	p.running = true
	p.log.Info("processor started",
		zap.Strings("brokers", p.cfg.KafkaBrokers),
		zap.String("group", p.cfg.KafkaGroupID))
	return nil
}

// Stop signals the loop, waits for the in-flight batch to finish, then
// closes the consumer and sinks. Idempotent.
func (p *Processor) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}

	p.cancel()
	<-p.done

	if err := p.consumer.Close(); err != nil {
		p.log.Warn("consumer close failed", zap.Error(err))
	}
	for _, s := range p.sinks {
		if err := s.Close(); err != nil {
			p.log.Warn("sink close failed", zap.String("branch", string(s.Branch())), zap.Error(err))
		}
	}

	p.running = false
	p.log.Info("processor stopped", zap.Any("statistics", metrics.Snapshot()))
}

// Shutdown stops the pipeline and releases the long-lived connections.
func (p *Processor) Shutdown() {
	p.Stop()
	p.db.Close()
	if err := p.redis.Close(); err != nil {
		p.log.Warn("redis close failed", zap.Error(err))
	}
}

func (p *Processor) Status(ctx context.Context) Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := Status{
		Running:           p.running,
		DatabaseConnected: p.db.Ping(ctx) == nil,
		LoopState:         string(pipeline.StateIdle),
		Statistics:        metrics.Snapshot(),
	}
	if p.running {
		st.KafkaConnected = p.consumer.Connected()
		st.LoopState = string(p.loop.State())
		st.InflightSnapshots = p.correlator.Len()
		// One ingestion loop plus one fetch pump per channel topic.
		st.ActiveWorkers = 1 + p.consumer.Pumps()
	}
	return st
}
