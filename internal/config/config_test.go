package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, "data-processor-group", cfg.KafkaGroupID)
	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, time.Second, cfg.BatchMaxWait)
	assert.Equal(t, 5*time.Second, cfg.ErrorBackoff)
	assert.Equal(t, 5*time.Minute, cfg.SnapshotTTL)
	assert.Equal(t, 0.3, cfg.MaintenanceThreshold)
	assert.Equal(t, 0.7, cfg.HealthScoreThreshold)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("BATCH_SIZE", "50")
	t.Setenv("SNAPSHOT_TTL", "90s")
	t.Setenv("MAINTENANCE_THRESHOLD", "0.5")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092,kafka-2:9092")

	cfg := Load()

	assert.Equal(t, 50, cfg.BatchSize)
	assert.Equal(t, 90*time.Second, cfg.SnapshotTTL)
	assert.Equal(t, 0.5, cfg.MaintenanceThreshold)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.KafkaBrokers)
}

func TestMalformedEnvFallsBack(t *testing.T) {
	t.Setenv("BATCH_SIZE", "not-a-number")
	t.Setenv("ERROR_BACKOFF", "soon")

	cfg := Load()

	assert.Equal(t, 10, cfg.BatchSize)
	assert.Equal(t, 5*time.Second, cfg.ErrorBackoff)
}
