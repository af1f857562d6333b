package ingestion

import (
	"fmt"
	"time"
)

// maxObservationAge is how old an observation may be before it is stale.
const maxObservationAge = 2 * time.Hour

type bounds struct {
	min float64
	max float64
}

// Physical plausibility bounds per pollutant (ug/m3, CO in mg/m3).
var pollutantBounds = map[string]bounds{
	"pm25": {0, 1000},
	"pm10": {0, 2000},
	"no2":  {0, 2000},
	"so2":  {0, 2000},
	"co":   {0, 100},
	"o3":   {0, 1000},
}

// ValidationResult reports the outcome of validating an observation.
// Individual out-of-bounds pollutants are dropped with a reason; the whole
// observation is invalid when it is stale, from the future, or left with no
// usable values.
type ValidationResult struct {
	Valid   bool
	Reasons []string
}

func (r *ValidationResult) addError(reason string) {
	r.Reasons = append(r.Reasons, reason)
	r.Valid = false
}

// Validate checks an observation's timestamp and drops physically implausible
// concentrations in place.
func Validate(observation *Observation, now time.Time) ValidationResult {
	result := ValidationResult{Valid: true}
	if observation == nil {
		result.addError("nil observation")
		return result
	}

	if observation.ObservedAt.IsZero() {
		result.addError("missing timestamp")
	} else {
		age := now.Sub(observation.ObservedAt)
		if age > maxObservationAge {
			result.addError(fmt.Sprintf("stale reading: %s old", age.Round(time.Minute)))
		}
		if age < -5*time.Minute {
			result.addError("timestamp in the future")
		}
	}

	for pollutant, value := range observation.Concentrations {
		limits, ok := pollutantBounds[pollutant]
		if !ok {
			delete(observation.Concentrations, pollutant)
			result.Reasons = append(result.Reasons, fmt.Sprintf("%s: unknown pollutant", pollutant))
			continue
		}
		if value < limits.min || value > limits.max {
			delete(observation.Concentrations, pollutant)
			result.Reasons = append(result.Reasons, fmt.Sprintf("%s: %.2f outside [%.0f, %.0f]", pollutant, value, limits.min, limits.max))
		}
	}

	if len(observation.Concentrations) == 0 {
		result.addError("no pollutant values survived validation")
	}
	return result
}
