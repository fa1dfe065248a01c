package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"vehicle-telematics/processing/internal/config"
	"vehicle-telematics/processing/internal/domain"
)

type PostgresStore struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func NewPostgresStore(ctx context.Context, cfg *config.Config, log *zap.Logger) (*PostgresStore, error) {
	if log == nil {
		log = zap.NewNop()
	}
	connStr := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?pool_max_conns=%d",
		cfg.DBUser,
		cfg.DBPassword,
		cfg.DBHost,
		cfg.DBPort,
		cfg.DBName,
		cfg.DBMaxConns,
	)

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create db pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	return &PostgresStore{pool: pool, log: log}, nil
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

const insertRecordSQL = `
	INSERT INTO processed_vehicle_data
		(vehicle_id, timestamp, speed_kmh, engine_temp_c, fuel_level_percent,
		 mileage_km, engine_health_score, brake_health_score, tire_health_score,
		 overall_health_score, driving_aggressiveness, eco_driving_score,
		 maintenance_urgency, maintenance_required, anomaly_detected,
		 location_lat, location_lon, weather_condition, terrain_type,
		 processing_time)
	VALUES
		($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
		 $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
`

const insertAlertSQL = `
	INSERT INTO health_alerts
		(vehicle_id, alert_type, severity, message, timestamp, created_at)
	VALUES
		($1, $2, $3, $4, $5, NOW())
`

// InsertRecord persists one enriched record together with its derived
// alerts in a single transaction. Either everything lands or nothing does.
func (s *PostgresStore) InsertRecord(ctx context.Context, rec *domain.EnrichedRecord, alerts []domain.HealthAlert) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	ts, ok := parseTimestamp(rec.Timestamp)
	if !ok {
		s.log.Warn("unparseable record timestamp, storing zero time",
			zap.String("vehicle_id", rec.VehicleID),
			zap.String("timestamp", rec.Timestamp))
	}

	_, err = tx.Exec(ctx, insertRecordSQL,
		rec.VehicleID,
		ts,
		rec.SpeedKmh,
		rec.EngineTempC,
		rec.FuelLevelPct,
		rec.MileageKm,
		rec.EngineHealthScore,
		rec.BrakeHealthScore,
		rec.TireHealthScore,
		rec.OverallHealthScore,
		rec.DrivingAggressiveness,
		rec.EcoDrivingScore,
		rec.MaintenanceUrgency,
		rec.MaintenanceRequired,
		rec.AnomalyDetected,
		rec.LocationLat,
		rec.LocationLon,
		rec.WeatherCondition,
		rec.TerrainType,
		rec.ProcessingTime,
	)
	if err != nil {
		return fmt.Errorf("insert record for %s: %w", rec.VehicleID, err)
	}

	for _, alert := range alerts {
		alertTS, ok := parseTimestamp(alert.Timestamp)
		if !ok {
			s.log.Warn("unparseable alert timestamp, storing zero time",
				zap.String("vehicle_id", alert.VehicleID),
				zap.String("timestamp", alert.Timestamp))
		}
		_, err = tx.Exec(ctx, insertAlertSQL,
			alert.VehicleID,
			string(alert.Type),
			string(alert.Severity),
			alert.Message,
			alertTS,
		)
		if err != nil {
			return fmt.Errorf("insert %s alert for %s: %w", alert.Type, alert.VehicleID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit record tx: %w", err)
	}
	return nil
}

// parseTimestamp converts the raw channel timestamp into a time for the
// TIMESTAMPTZ column. An unparseable timestamp yields the zero time so a
// clock-format quirk never loses the record and never forges a reading
// time; the caller logs the original string.
func parseTimestamp(raw string) (time.Time, bool) {
	for _, layout := range []string{"2006-01-02 15:04:05", time.RFC3339} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
