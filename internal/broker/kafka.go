// Package broker wraps the Kafka side of ingestion: one reader per channel
// topic, all pumped into a single merged stream so the ingestion loop stays
// a single consumer. Offsets are committed explicitly, only after the loop
// has dispatched a batch.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"vehicle-telematics/processing/internal/config"
	"vehicle-telematics/processing/internal/domain"
)

// InboundMessage pairs a decoded channel message with its Kafka origin so
// the consumer can commit the right offset on the right reader.
type InboundMessage struct {
	Msg       *domain.RawChannelMessage
	DecodeErr error

	reader *kafka.Reader
	raw    kafka.Message
}

// envelope is the common top-level shape of all four channel topics.
type envelope struct {
	VehicleID   string `json:"vehicle_id"`
	Timestamp   string `json:"timestamp"`
	DatasetType string `json:"dataset_type"`
}

type Consumer struct {
	readers map[string]*kafka.Reader // topic -> reader
	kinds   map[string]domain.ChannelKind
	merged  chan InboundMessage
	cancel  context.CancelFunc
	log     *zap.Logger
	alive   atomic.Bool
}

// NewConsumer dials the brokers, then builds one reader per subscribed
// topic in a shared consumer group and starts the fetch pumps. An
// unreachable cluster fails construction so the loop never starts against
// a dead broker. Pumps block when the merged channel is full, which is the
// backpressure path back to the broker.
func NewConsumer(ctx context.Context, cfg *config.Config, log *zap.Logger) (*Consumer, error) {
	if log == nil {
		log = zap.NewNop()
	}

	if err := dialBrokers(ctx, cfg.KafkaBrokers); err != nil {
		return nil, err
	}

	topicKinds := map[string]domain.ChannelKind{
		cfg.CoreSensorTopic:  domain.ChannelCoreSensor,
		cfg.HealthTopic:      domain.ChannelHealth,
		cfg.BehaviorTopic:    domain.ChannelBehavior,
		cfg.EnvironmentTopic: domain.ChannelEnvironmental,
	}

	c := &Consumer{
		readers: make(map[string]*kafka.Reader, len(topicKinds)),
		kinds:   topicKinds,
		merged:  make(chan InboundMessage, 256),
		log:     log,
	}

	c.alive.Store(true)

	pumpCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	for topic := range topicKinds {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:     cfg.KafkaBrokers,
			Topic:       topic,
			GroupID:     cfg.KafkaGroupID,
			MinBytes:    1,
			MaxBytes:    10e6,
			MaxWait:     500 * time.Millisecond,
			ErrorLogger: kafka.LoggerFunc(log.Sugar().Errorf),
		})
		c.readers[topic] = reader
	}

	for topic, reader := range c.readers {
		go c.pump(pumpCtx, topic, reader)
	}

	return c, nil
}

// dialBrokers tries each address in turn, succeeding on the first
// reachable one.
func dialBrokers(ctx context.Context, addrs []string) error {
	var lastErr error
	for _, addr := range addrs {
		conn, err := kafka.DialContext(ctx, "tcp", addr)
		if err == nil {
			conn.Close()
			return nil
		}
		lastErr = err
	}
	return fmt.Errorf("no reachable kafka broker in %v: %w", addrs, lastErr)
}

func (c *Consumer) pump(ctx context.Context, topic string, reader *kafka.Reader) {
	kind := c.kinds[topic]
	for {
		raw, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.alive.Store(false)
			c.log.Warn("fetch failed", zap.String("topic", topic), zap.Error(err))
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		c.alive.Store(true)

		msg, decodeErr := decodeMessage(kind, raw.Value)
		select {
		case c.merged <- InboundMessage{Msg: msg, DecodeErr: decodeErr, reader: reader, raw: raw}:
		case <-ctx.Done():
			return
		}
	}
}

// Fetch returns the next inbound message, or ok=false once the poll
// timeout elapses with nothing pending or the context is cancelled.
func (c *Consumer) Fetch(ctx context.Context, timeout time.Duration) (InboundMessage, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case in := <-c.merged:
		return in, true
	case <-timer.C:
		return InboundMessage{}, false
	case <-ctx.Done():
		return InboundMessage{}, false
	}
}

// Commit acknowledges consumed offsets, each on its source reader. Called
// only after the batch dispatched successfully.
func (c *Consumer) Commit(ctx context.Context, msgs []InboundMessage) error {
	for _, in := range msgs {
		if in.reader == nil {
			continue
		}
		if err := in.reader.CommitMessages(ctx, in.raw); err != nil {
			return fmt.Errorf("commit offset on %s: %w", in.raw.Topic, err)
		}
	}
	return nil
}

// Connected reports broker liveness for the status endpoint: true after
// the startup dial and each successful fetch, false once a fetch fails
// until the pumps recover.
func (c *Consumer) Connected() bool {
	return c.alive.Load()
}

// Pumps reports the number of fetch goroutines feeding the merged stream.
func (c *Consumer) Pumps() int {
	return len(c.readers)
}

func (c *Consumer) Close() error {
	c.cancel()
	var firstErr error
	for topic, reader := range c.readers {
		if err := reader.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close reader %s: %w", topic, err)
		}
	}
	return firstErr
}

// decodeMessage turns raw topic bytes into a typed channel message. The
// identity fields are validated downstream by the correlator; here only
// JSON shape errors are surfaced.
func decodeMessage(kind domain.ChannelKind, value []byte) (*domain.RawChannelMessage, error) {
	var env envelope
	if err := json.Unmarshal(value, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	msg := &domain.RawChannelMessage{
		VehicleID:  env.VehicleID,
		Timestamp:  env.Timestamp,
		Kind:       kind,
		RawPayload: value,
	}

	switch kind {
	case domain.ChannelCoreSensor:
		msg.Core = &domain.CoreSensorPayload{}
		if err := json.Unmarshal(value, msg.Core); err != nil {
			return nil, fmt.Errorf("decode core sensor payload: %w", err)
		}
	case domain.ChannelHealth:
		msg.Health = &domain.HealthPayload{}
		if err := json.Unmarshal(value, msg.Health); err != nil {
			return nil, fmt.Errorf("decode health payload: %w", err)
		}
	case domain.ChannelBehavior:
		msg.Behavior = &domain.BehaviorPayload{}
		if err := json.Unmarshal(value, msg.Behavior); err != nil {
			return nil, fmt.Errorf("decode behavior payload: %w", err)
		}
	case domain.ChannelEnvironmental:
		msg.Environment = &domain.EnvironmentalPayload{}
		if err := json.Unmarshal(value, msg.Environment); err != nil {
			return nil, fmt.Errorf("decode environmental payload: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown channel kind %q", kind)
	}

	return msg, nil
}
