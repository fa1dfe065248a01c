package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"vehicle-telematics/processing/internal/config"
	"vehicle-telematics/processing/internal/domain"
)

type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(ctx context.Context, cfg *config.Config) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DB:           cfg.RedisDB,
		PoolSize:     20,
		MinIdleConns: 5,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client}, nil
}

func (r *RedisStore) Close() error {
	return r.client.Close()
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// LiveStateUpdate mirrors the latest enriched record into the per-vehicle
// state hash and publishes it for dashboard subscribers. Keys expire so a
// vehicle that stops reporting drops off the live view.
func (r *RedisStore) LiveStateUpdate(ctx context.Context, rec *domain.EnrichedRecord) error {
	stateData := map[string]interface{}{
		"vehicle_id":           rec.VehicleID,
		"timestamp":            rec.Timestamp,
		"speed_kmh":            rec.SpeedKmh,
		"engine_temp":          rec.EngineTempC,
		"fuel_pct":             rec.FuelLevelPct,
		"overall_health":       rec.OverallHealthScore,
		"maintenance_urgency":  rec.MaintenanceUrgency,
		"maintenance_required": rec.MaintenanceRequired,
		"anomaly_detected":     rec.AnomalyDetected,
		"lat":                  rec.LocationLat,
		"lng":                  rec.LocationLon,
		"processed_at":         rec.ProcessingTime.Unix(),
	}

	pubPayload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	stateKey := fmt.Sprintf("vehicle:%s:state", rec.VehicleID)

	pipe := r.client.Pipeline()
	pipe.HSet(ctx, stateKey, stateData)
	pipe.Expire(ctx, stateKey, 5*time.Minute)
	pipe.Publish(ctx, "fleet:telemetry", pubPayload)

	_, err = pipe.Exec(ctx)
	if err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}

	return nil
}

// PublishAlert fans a derived health alert out to the alert channel.
func (r *RedisStore) PublishAlert(ctx context.Context, alert domain.HealthAlert) error {
	payload, err := json.Marshal(map[string]interface{}{
		"vehicle_id":   alert.VehicleID,
		"alert_type":   string(alert.Type),
		"severity":     string(alert.Severity),
		"message":      alert.Message,
		"timestamp":    alert.Timestamp,
		"triggered_at": time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal alert: %w", err)
	}
	return r.client.Publish(ctx, "fleet:alerts", payload).Err()
}

// GetAPIKey resolves a control-API key to its owner, empty when unknown.
func (r *RedisStore) GetAPIKey(ctx context.Context, apiKey string) (string, error) {
	key := fmt.Sprintf("control:auth:%s", apiKey)
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("redis get api key failed: %w", err)
	}
	return val, nil
}
