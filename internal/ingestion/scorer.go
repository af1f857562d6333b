package ingestion

import "math"

// QuarantineThreshold is the confidence score below which a reading is kept
// for the record but withheld from compliance decisions.
const QuarantineThreshold = 60.0

const maxDeviationFactor = 3.0

// ConfidenceResult is the cross-validation outcome for one reading.
type ConfidenceResult struct {
	Score           float64
	NeighborAverage float64
	DeviationRatio  float64
	HasNeighbors    bool
	Quarantined     bool
}

// Score cross-validates an observed value against neighbor-station values for
// the same pollutant. No neighbors means no cross-check: the score is neutral
// and the reading passes.
func Score(observed float64, neighbors []float64) ConfidenceResult {
	if len(neighbors) == 0 {
		return ConfidenceResult{Score: 70.0}
	}

	var sum float64
	for _, v := range neighbors {
		sum += v
	}
	neighborAvg := sum / float64(len(neighbors))

	if neighborAvg == 0 {
		if observed == 0 {
			return ConfidenceResult{Score: 100.0, HasNeighbors: true, DeviationRatio: 1.0}
		}
		// Neighbors read zero but this station does not: very suspicious.
		return ConfidenceResult{
			Score:          20.0,
			HasNeighbors:   true,
			DeviationRatio: math.Inf(1),
			Quarantined:    true,
		}
	}

	ratio := observed / neighborAvg
	var score float64
	switch {
	case ratio >= 0.5 && ratio <= 2.0:
		score = 100.0
	case ratio > 2.0:
		excess := ratio - 2.0
		score = math.Max(0, 100.0-(excess/maxDeviationFactor)*80.0)
	default:
		deficit := 0.5 - ratio
		score = math.Max(0, 100.0-(deficit/0.5)*60.0)
	}

	return ConfidenceResult{
		Score:           score,
		NeighborAverage: neighborAvg,
		DeviationRatio:  ratio,
		HasNeighbors:    true,
		Quarantined:     score < QuarantineThreshold,
	}
}
