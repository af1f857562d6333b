package ingestion

import (
	"context"
	"time"
)

// Pollutants tracked by the feed, in feed order.
var Pollutants = []string{"pm25", "pm10", "no2", "so2", "co", "o3"}

// Observation is one normalized multi-pollutant sample fetched from the feed.
type Observation struct {
	StationID   string
	StationName string
	ObservedAt  time.Time
	// Concentrations maps pollutant kind to concentration. Absent, zero and
	// negative feed values never appear here.
	Concentrations map[string]float64
	AQI            *int
}

// Reading is one persisted (station, pollutant, timestamp) sample. Immutable
// once written.
type Reading struct {
	StationID  string
	Pollutant  string
	ObservedAt time.Time
	Value      float64
	// Confidence is the source-confidence score (0-100) assigned at ingest.
	Confidence  float64
	Quarantined bool
	CreatedAt   time.Time
}

// ReadingStore persists raw readings ahead of aggregation. Inserting an
// already stored (station, pollutant, timestamp) key is a no-op, which makes
// crash replay safe.
type ReadingStore interface {
	Insert(ctx context.Context, readings []Reading) error
}
