package sink

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"

	"vehicle-telematics/processing/internal/domain"
	"vehicle-telematics/processing/internal/metrics"
)

// maintenancePayload is the projection the predictive-maintenance consumer
// receives: health breakdown plus the raw metrics and context it needs,
// never the full record.
type maintenancePayload struct {
	VehicleID          string             `json:"vehicle_id"`
	Timestamp          string             `json:"timestamp"`
	HealthScores       healthScores       `json:"health_scores"`
	MaintenanceUrgency float64            `json:"maintenance_urgency"`
	AnomalyDetected    bool               `json:"anomaly_detected"`
	VehicleMetrics     vehicleMetrics     `json:"vehicle_metrics"`
	Context            maintenanceContext `json:"context"`
}

type healthScores struct {
	Engine  float64 `json:"engine"`
	Brake   float64 `json:"brake"`
	Tire    float64 `json:"tire"`
	Overall float64 `json:"overall"`
}

type vehicleMetrics struct {
	Speed      float64 `json:"speed"`
	EngineTemp float64 `json:"engine_temp"`
	Mileage    float64 `json:"mileage"`
	FuelLevel  float64 `json:"fuel_level"`
}

type maintenanceContext struct {
	Location [2]float64 `json:"location"`
	Weather  string     `json:"weather"`
	Terrain  string     `json:"terrain"`
}

// adPayload is the ad-targeting projection: behavior profile, context and a
// slim vehicle profile.
type adPayload struct {
	VehicleID       string          `json:"vehicle_id"`
	Timestamp       string          `json:"timestamp"`
	BehaviorProfile behaviorProfile `json:"behavior_profile"`
	Context         adContext       `json:"context"`
	VehicleProfile  vehicleProfile  `json:"vehicle_profile"`
}

type behaviorProfile struct {
	DrivingAggressiveness float64 `json:"driving_aggressiveness"`
	EcoDrivingScore       float64 `json:"eco_driving_score"`
	MaintenanceNeeds      bool    `json:"maintenance_needs"`
}

type adContext struct {
	Location [2]float64 `json:"location"`
	Weather  string     `json:"weather"`
	Terrain  string     `json:"terrain"`
	Speed    float64    `json:"speed"`
}

type vehicleProfile struct {
	Mileage     float64 `json:"mileage"`
	HealthScore float64 `json:"health_score"`
}

// kafkaWriter is the subset of kafka.Writer the feed sinks use, extracted
// so tests can capture published messages.
type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

func newFeedWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		RequiredAcks: kafka.RequireAll,
	}
}

// MaintenanceFeedSink publishes maintenance projections to the
// predictive-maintenance topic.
type MaintenanceFeedSink struct {
	writer kafkaWriter
}

func NewMaintenanceFeedSink(brokers []string, topic string) *MaintenanceFeedSink {
	return &MaintenanceFeedSink{writer: newFeedWriter(brokers, topic)}
}

func (s *MaintenanceFeedSink) Branch() domain.Branch {
	return domain.BranchMaintenanceFeed
}

func (s *MaintenanceFeedSink) Deliver(ctx context.Context, rec *domain.EnrichedRecord) error {
	payload := maintenancePayload{
		VehicleID: rec.VehicleID,
		Timestamp: rec.Timestamp,
		HealthScores: healthScores{
			Engine:  rec.EngineHealthScore,
			Brake:   rec.BrakeHealthScore,
			Tire:    rec.TireHealthScore,
			Overall: rec.OverallHealthScore,
		},
		MaintenanceUrgency: rec.MaintenanceUrgency,
		AnomalyDetected:    rec.AnomalyDetected,
		VehicleMetrics: vehicleMetrics{
			Speed:      rec.SpeedKmh,
			EngineTemp: rec.EngineTempC,
			Mileage:    rec.MileageKm,
			FuelLevel:  rec.FuelLevelPct,
		},
		Context: maintenanceContext{
			Location: [2]float64{rec.LocationLat, rec.LocationLon},
			Weather:  rec.WeatherCondition,
			Terrain:  rec.TerrainType,
		},
	}

	if err := s.publish(ctx, rec.VehicleID, payload); err != nil {
		return fmt.Errorf("maintenance feed publish for %s: %w", rec.VehicleID, err)
	}
	metrics.MaintenanceSent.Add(1)
	return nil
}

func (s *MaintenanceFeedSink) publish(ctx context.Context, key string, payload any) error {
	value, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return s.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: value})
}

func (s *MaintenanceFeedSink) Close() error {
	return s.writer.Close()
}

// AdFeedSink publishes behavior projections to the ad-recommendation topic.
type AdFeedSink struct {
	writer kafkaWriter
}

func NewAdFeedSink(brokers []string, topic string) *AdFeedSink {
	return &AdFeedSink{writer: newFeedWriter(brokers, topic)}
}

func (s *AdFeedSink) Branch() domain.Branch {
	return domain.BranchAdFeed
}

func (s *AdFeedSink) Deliver(ctx context.Context, rec *domain.EnrichedRecord) error {
	payload := adPayload{
		VehicleID: rec.VehicleID,
		Timestamp: rec.Timestamp,
		BehaviorProfile: behaviorProfile{
			DrivingAggressiveness: rec.DrivingAggressiveness,
			EcoDrivingScore:       rec.EcoDrivingScore,
			MaintenanceNeeds:      rec.MaintenanceRequired,
		},
		Context: adContext{
			Location: [2]float64{rec.LocationLat, rec.LocationLon},
			Weather:  rec.WeatherCondition,
			Terrain:  rec.TerrainType,
			Speed:    rec.SpeedKmh,
		},
		VehicleProfile: vehicleProfile{
			Mileage:     rec.MileageKm,
			HealthScore: rec.OverallHealthScore,
		},
	}

	value, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("ad feed marshal for %s: %w", rec.VehicleID, err)
	}
	err = s.writer.WriteMessages(ctx, kafka.Message{Key: []byte(rec.VehicleID), Value: value})
	if err != nil {
		return fmt.Errorf("ad feed publish for %s: %w", rec.VehicleID, err)
	}
	metrics.AdSent.Add(1)
	return nil
}

func (s *AdFeedSink) Close() error {
	return s.writer.Close()
}
