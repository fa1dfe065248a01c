// Package scoring holds the pure score functions applied to a correlated
// vehicle snapshot. Every function takes plain values, never the whole
// snapshot, and every score is clamped to [0,1].
package scoring

import "math"

// Defaults substituted when an optional channel payload is absent.
const (
	DefaultEngineLoadPct = 50.0
	DefaultTirePressure  = 32.0
	DefaultEcoScore      = 50.0
)

// DefaultOilTempC derives the oil-temperature fallback from the engine
// temperature when the health channel never arrived.
func DefaultOilTempC(engineTempC float64) float64 {
	return engineTempC * 0.9
}

// EngineHealth averages three penalty sub-scores: engine temperature above
// 95C scaled over a 20C band, oil temperature above 85C over 25C, and
// engine load above 80% over 20%.
func EngineHealth(engineTempC, oilTempC, engineLoadPct float64) float64 {
	tempScore := math.Max(0, 1-math.Max(0, engineTempC-95)/20)
	oilScore := math.Max(0, 1-math.Max(0, oilTempC-85)/25)
	loadScore := math.Max(0, 1-math.Max(0, engineLoadPct-80)/20)
	return clamp01((tempScore + oilScore + loadScore) / 3)
}

// BrakeHealth averages pressure adequacy with a harsh-braking penalty.
// Zero / unreported pressure scores 1 rather than penalising the vehicle.
func BrakeHealth(brakePressurePsi float64, harshBrakingCount int) float64 {
	pressureScore := 1.0
	if brakePressurePsi > 0 {
		pressureScore = math.Min(1, brakePressurePsi/50)
	}
	brakingScore := math.Max(0, 1-float64(harshBrakingCount)/10)
	return clamp01((pressureScore + brakingScore) / 2)
}

// TireHealth scores the four tire pressures against the 32 psi ideal:
// deviation of the average from 32 over a 10 psi band, and cross-tire
// variance over 4.
func TireHealth(fl, fr, rl, rr float64) float64 {
	pressures := [4]float64{fl, fr, rl, rr}

	var sum float64
	for _, p := range pressures {
		sum += p
	}
	avg := sum / 4

	var variance float64
	for _, p := range pressures {
		variance += (p - avg) * (p - avg)
	}
	variance /= 4

	pressureScore := math.Max(0, 1-math.Abs(avg-32)/10)
	varianceScore := math.Max(0, 1-variance/4)
	return clamp01((pressureScore + varianceScore) / 2)
}

// DrivingAggressiveness weights harsh braking, harsh acceleration and
// speeding incidents 0.4/0.4/0.2 over a 10-event scale.
func DrivingAggressiveness(harshBraking, harshAcceleration, speedingIncidents int) float64 {
	raw := (float64(harshBraking)*0.4 + float64(harshAcceleration)*0.4 + float64(speedingIncidents)*0.2) / 10
	return clamp01(raw)
}

// MaintenanceUrgency combines inverted average health (weight 0.6) with a
// mileage factor capped at 200000 km (weight 0.4).
func MaintenanceUrgency(engineHealth, brakeHealth, tireHealth, mileageKm float64) float64 {
	healthComponent := 1 - (engineHealth+brakeHealth+tireHealth)/3
	mileageFactor := math.Min(mileageKm/200000, 1)
	return clamp01(healthComponent*0.6 + mileageFactor*0.4)
}

// DetectAnomaly flags overheating (>120C), excessive speed (>150 km/h) and
// fuel level out of bounds. The fuel bounds catch sensor faults (>105%) as
// well as real depletion (<5%); both conditions fold into the one flag.
func DetectAnomaly(engineTempC, speedKmh, fuelLevelPct float64) bool {
	if engineTempC > 120 {
		return true
	}
	if speedKmh > 150 {
		return true
	}
	if fuelLevelPct < 5 {
		return true
	}
	if fuelLevelPct > 105 {
		return true
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
