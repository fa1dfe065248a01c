package sink

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"vehicle-telematics/processing/internal/domain"
	"vehicle-telematics/processing/internal/metrics"
	"vehicle-telematics/processing/internal/store"
)

// StorageSink persists every enriched record and derives health alerts at
// write time. The record row and its alert rows commit in one transaction.
// After a successful write it mirrors the record into the Redis live view;
// a Redis failure is logged but never fails the write.
type StorageSink struct {
	db    *store.PostgresStore
	redis *store.RedisStore
	log   *zap.Logger
}

func NewStorageSink(db *store.PostgresStore, redis *store.RedisStore, log *zap.Logger) *StorageSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &StorageSink{db: db, redis: redis, log: log}
}

func (s *StorageSink) Branch() domain.Branch {
	return domain.BranchStorage
}

func (s *StorageSink) Deliver(ctx context.Context, rec *domain.EnrichedRecord) error {
	alerts := DeriveAlerts(rec)

	if err := s.db.InsertRecord(ctx, rec, alerts); err != nil {
		return fmt.Errorf("storage write for %s@%s: %w", rec.VehicleID, rec.Timestamp, err)
	}
	metrics.RecordsStored.Add(1)

	if s.redis == nil {
		return nil
	}
	if err := s.redis.LiveStateUpdate(ctx, rec); err != nil {
		s.log.Warn("live state update failed", zap.String("vehicle_id", rec.VehicleID), zap.Error(err))
	}
	for _, alert := range alerts {
		if err := s.redis.PublishAlert(ctx, alert); err != nil {
			s.log.Warn("alert publish failed", zap.String("vehicle_id", rec.VehicleID), zap.Error(err))
		}
	}
	return nil
}

func (s *StorageSink) Close() error {
	return nil
}

// DeriveAlerts produces zero, one or two alerts for a record: high-severity
// maintenance when required, medium-severity anomaly when detected.
func DeriveAlerts(rec *domain.EnrichedRecord) []domain.HealthAlert {
	var alerts []domain.HealthAlert
	if rec.MaintenanceRequired {
		alerts = append(alerts, domain.HealthAlert{
			VehicleID: rec.VehicleID,
			Type:      domain.AlertMaintenance,
			Severity:  domain.SeverityHigh,
			Message:   fmt.Sprintf("Maintenance required - urgency score: %.2f", rec.MaintenanceUrgency),
			Timestamp: rec.Timestamp,
		})
	}
	if rec.AnomalyDetected {
		alerts = append(alerts, domain.HealthAlert{
			VehicleID: rec.VehicleID,
			Type:      domain.AlertAnomaly,
			Severity:  domain.SeverityMedium,
			Message:   "Anomaly detected in vehicle data",
			Timestamp: rec.Timestamp,
		})
	}
	return alerts
}
