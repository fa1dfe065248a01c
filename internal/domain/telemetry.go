package domain

import "time"

type ChannelKind string

const (
	ChannelCoreSensor    ChannelKind = "core_sensor_data"
	ChannelHealth        ChannelKind = "vehicle_health_data"
	ChannelBehavior      ChannelKind = "driving_behavior_data"
	ChannelEnvironmental ChannelKind = "environmental_data"
)

// CoreSensorPayload is the anchor channel: a snapshot is only buildable
// once this payload has arrived.
type CoreSensorPayload struct {
	SpeedKmh         float64 `json:"speed_kmh"`
	EngineTempC      float64 `json:"engine_temp_c"`
	FuelLevelPct     float64 `json:"fuel_level_percent"`
	MileageKm        float64 `json:"mileage_km"`
	Latitude         float64 `json:"latitude"`
	Longitude        float64 `json:"longitude"`
	EngineRPM        float64 `json:"engine_rpm"`
	BrakePressurePsi float64 `json:"brake_pressure_psi"`
	ThrottlePct      float64 `json:"throttle_position_percent"`
	GearPosition     int     `json:"gear_position"`
	AccelerationX    float64 `json:"acceleration_x"`
	AccelerationY    float64 `json:"acceleration_y"`
	AccelerationZ    float64 `json:"acceleration_z"`
}

type HealthPayload struct {
	EngineOilTempC  float64 `json:"engine_oil_temp_c"`
	CoolantTempC    float64 `json:"coolant_temp_c"`
	BatteryVoltage  float64 `json:"battery_voltage"`
	EngineLoadPct   float64 `json:"engine_load_percent"`
	TirePressureFL  float64 `json:"tire_pressure_fl"`
	TirePressureFR  float64 `json:"tire_pressure_fr"`
	TirePressureRL  float64 `json:"tire_pressure_rl"`
	TirePressureRR  float64 `json:"tire_pressure_rr"`
	BrakeFluidLevel float64 `json:"brake_fluid_level"`
}

type BehaviorPayload struct {
	HarshBrakingCount      int     `json:"harsh_braking_count"`
	HarshAccelerationCount int     `json:"harsh_acceleration_count"`
	SharpTurnCount         int     `json:"sharp_turn_count"`
	SpeedingIncidents      int     `json:"speeding_incidents"`
	IdleTimeMinutes        float64 `json:"idle_time_minutes"`
	AvgSpeedTrip           float64 `json:"avg_speed_trip"`
	MaxSpeedTrip           float64 `json:"max_speed_trip"`
	DrivingScore           float64 `json:"driving_score"`
	EcoDrivingScore        float64 `json:"eco_driving_score"`
	AggressiveDrivingFlag  bool    `json:"aggressive_driving_flag"`
}

type EnvironmentalPayload struct {
	WeatherCondition     string  `json:"weather_condition"`
	TerrainType          string  `json:"terrain_type"`
	RoadType             string  `json:"road_type"`
	TrafficDensity       string  `json:"traffic_density"`
	TemperatureOutsideC  float64 `json:"temperature_outside_c"`
	AltitudeM            float64 `json:"altitude_m"`
	HumidityPct          float64 `json:"humidity_percent"`
	RoadSurfaceCondition string  `json:"road_surface_condition"`
}

// RawChannelMessage is one decoded message from one channel. Exactly one
// payload pointer is non-nil, matching Kind.
type RawChannelMessage struct {
	VehicleID string
	Timestamp string
	Kind      ChannelKind

	Core        *CoreSensorPayload
	Health      *HealthPayload
	Behavior    *BehaviorPayload
	Environment *EnvironmentalPayload

	RawPayload []byte
}

// CorrelationKey joins channel fragments belonging to the same vehicle at
// the same instant. Timestamps compare as exact strings; there is no
// time-window fuzzing.
type CorrelationKey struct {
	VehicleID string
	Timestamp string
}

// VehicleSnapshot accumulates at most one payload per channel kind for a
// correlation key. Owned exclusively by the correlator until consumed.
type VehicleSnapshot struct {
	Key       CorrelationKey
	FirstSeen time.Time

	Core        *CoreSensorPayload
	Health      *HealthPayload
	Behavior    *BehaviorPayload
	Environment *EnvironmentalPayload
}

// Buildable reports whether the snapshot holds its anchor channel. The
// other three channels are optional and default during scoring.
func (s *VehicleSnapshot) Buildable() bool {
	return s.Core != nil
}

// EnrichedRecord is the canonical per-(vehicle, timestamp) output record.
// Never mutated after construction.
type EnrichedRecord struct {
	VehicleID      string    `json:"vehicle_id"`
	Timestamp      string    `json:"timestamp"`
	ProcessingTime time.Time `json:"processing_time"`

	SpeedKmh     float64 `json:"speed_kmh"`
	EngineTempC  float64 `json:"engine_temp_c"`
	FuelLevelPct float64 `json:"fuel_level_percent"`
	MileageKm    float64 `json:"mileage_km"`

	EngineHealthScore  float64 `json:"engine_health_score"`
	BrakeHealthScore   float64 `json:"brake_health_score"`
	TireHealthScore    float64 `json:"tire_health_score"`
	OverallHealthScore float64 `json:"overall_health_score"`

	DrivingAggressiveness float64 `json:"driving_aggressiveness"`
	EcoDrivingScore       float64 `json:"eco_driving_score"`
	MaintenanceUrgency    float64 `json:"maintenance_urgency"`

	LocationLat      float64 `json:"location_lat"`
	LocationLon      float64 `json:"location_lon"`
	WeatherCondition string  `json:"weather_condition"`
	TerrainType      string  `json:"terrain_type"`

	MaintenanceRequired bool `json:"maintenance_required"`
	AdTargetingEligible bool `json:"ad_targeting_eligible"`
	AnomalyDetected     bool `json:"anomaly_detected"`
}

type AlertType string

const (
	AlertMaintenance AlertType = "maintenance"
	AlertAnomaly     AlertType = "anomaly"
)

type AlertSeverity string

const (
	SeverityHigh   AlertSeverity = "high"
	SeverityMedium AlertSeverity = "medium"
)

// HealthAlert is derived by the storage sink at write time, one per
// triggered condition. Append-only.
type HealthAlert struct {
	VehicleID string
	Type      AlertType
	Severity  AlertSeverity
	Message   string
	Timestamp string
}

type Branch string

const (
	BranchStorage         Branch = "storage"
	BranchMaintenanceFeed Branch = "maintenance_feed"
	BranchAdFeed          Branch = "ad_feed"
)
