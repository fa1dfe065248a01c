package pipeline

import (
	"fmt"
	"time"

	"vehicle-telematics/processing/internal/domain"
	"vehicle-telematics/processing/internal/scoring"
)

// Builder turns a buildable snapshot into one immutable enriched record.
// Deterministic for a given snapshot, thresholds and clock.
type Builder struct {
	MaintenanceThreshold float64
	HealthScoreThreshold float64
	Clock                func() time.Time
}

func NewBuilder(maintenanceThreshold, healthScoreThreshold float64) *Builder {
	return &Builder{
		MaintenanceThreshold: maintenanceThreshold,
		HealthScoreThreshold: healthScoreThreshold,
		Clock:                time.Now,
	}
}

// Build computes the derived scores and flags for a snapshot. Absent
// optional channels fall back to the documented scoring defaults. A panic
// while building is converted to an error so one bad record never aborts
// its batch.
func (b *Builder) Build(snap *domain.VehicleSnapshot) (rec *domain.EnrichedRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			rec = nil
			err = fmt.Errorf("building record for %s@%s: %v", snap.Key.VehicleID, snap.Key.Timestamp, r)
		}
	}()

	if !snap.Buildable() {
		return nil, fmt.Errorf("snapshot %s@%s has no core sensor payload", snap.Key.VehicleID, snap.Key.Timestamp)
	}
	core := snap.Core

	oilTemp := scoring.DefaultOilTempC(core.EngineTempC)
	engineLoad := scoring.DefaultEngineLoadPct
	tireFL, tireFR, tireRL, tireRR := scoring.DefaultTirePressure, scoring.DefaultTirePressure,
		scoring.DefaultTirePressure, scoring.DefaultTirePressure
	if h := snap.Health; h != nil {
		oilTemp = h.EngineOilTempC
		engineLoad = h.EngineLoadPct
		tireFL, tireFR, tireRL, tireRR = h.TirePressureFL, h.TirePressureFR, h.TirePressureRL, h.TirePressureRR
	}

	harshBraking, harshAccel, speeding := 0, 0, 0
	ecoScore := scoring.DefaultEcoScore / 100
	if bh := snap.Behavior; bh != nil {
		harshBraking = bh.HarshBrakingCount
		harshAccel = bh.HarshAccelerationCount
		speeding = bh.SpeedingIncidents
		if bh.EcoDrivingScore > 0 {
			ecoScore = bh.EcoDrivingScore / 100
		}
	}

	weather, terrain := "unknown", "unknown"
	if e := snap.Environment; e != nil {
		weather = e.WeatherCondition
		terrain = e.TerrainType
	}

	engineHealth := scoring.EngineHealth(core.EngineTempC, oilTemp, engineLoad)
	brakeHealth := scoring.BrakeHealth(core.BrakePressurePsi, harshBraking)
	tireHealth := scoring.TireHealth(tireFL, tireFR, tireRL, tireRR)
	overallHealth := (engineHealth + brakeHealth + tireHealth) / 3

	urgency := scoring.MaintenanceUrgency(engineHealth, brakeHealth, tireHealth, core.MileageKm)

	return &domain.EnrichedRecord{
		VehicleID:      snap.Key.VehicleID,
		Timestamp:      snap.Key.Timestamp,
		ProcessingTime: b.Clock(),

		SpeedKmh:     core.SpeedKmh,
		EngineTempC:  core.EngineTempC,
		FuelLevelPct: core.FuelLevelPct,
		MileageKm:    core.MileageKm,

		EngineHealthScore:  engineHealth,
		BrakeHealthScore:   brakeHealth,
		TireHealthScore:    tireHealth,
		OverallHealthScore: overallHealth,

		DrivingAggressiveness: scoring.DrivingAggressiveness(harshBraking, harshAccel, speeding),
		EcoDrivingScore:       ecoScore,
		MaintenanceUrgency:    urgency,

		LocationLat:      core.Latitude,
		LocationLon:      core.Longitude,
		WeatherCondition: weather,
		TerrainType:      terrain,

		MaintenanceRequired: urgency > b.MaintenanceThreshold,
		AdTargetingEligible: overallHealth > b.HealthScoreThreshold,
		AnomalyDetected:     scoring.DetectAnomaly(core.EngineTempC, core.SpeedKmh, core.FuelLevelPct),
	}, nil
}
