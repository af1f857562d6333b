package window

import (
	"log"
	"sort"
	"sync"
	"time"
)

// Horizon is the duration of a rolling average window.
type Horizon time.Duration

// Fixed horizons maintained for every (station, pollutant) key.
const (
	Horizon1h  = Horizon(1 * time.Hour)
	Horizon8h  = Horizon(8 * time.Hour)
	Horizon24h = Horizon(24 * time.Hour)
)

// Horizons lists the maintained horizons in ascending order.
var Horizons = []Horizon{Horizon1h, Horizon8h, Horizon24h}

// Duration returns the horizon as a time.Duration.
func (h Horizon) Duration() time.Duration { return time.Duration(h) }

// Label returns the horizon's regulatory label (1h, 8h, 24h).
func (h Horizon) Label() string {
	switch h {
	case Horizon1h:
		return "1h"
	case Horizon8h:
		return "8h"
	case Horizon24h:
		return "24h"
	default:
		return h.Duration().String()
	}
}

// ParseHorizon maps a regulatory label to a Horizon.
func ParseHorizon(label string) (Horizon, bool) {
	switch label {
	case "1h", "1hr":
		return Horizon1h, true
	case "8h", "8hr":
		return Horizon8h, true
	case "24h", "24hr":
		return Horizon24h, true
	}
	return 0, false
}

type sample struct {
	at    time.Time
	value float64
}

// state holds the sliding samples for one (station, pollutant) key across all
// horizons. Samples are shared: one sorted slice bounded by the largest
// horizon, with per-horizon averages recomputed from it.
type state struct {
	mu      sync.Mutex
	samples []sample
	latest  time.Time
}

// Snapshot is the externally visible aggregate for one (key, horizon).
type Snapshot struct {
	StationID string
	Pollutant string
	Horizon   Horizon
	Sum       float64
	Count     int
	Oldest    time.Time
	Average   float64
	UpdatedAt time.Time
}

// SnapshotSink receives window snapshots after each update. Persistence is
// informative: the aggregator never reads snapshots back.
type SnapshotSink interface {
	Upsert(snapshot Snapshot) error
}

// Aggregator maintains rolling window averages per (station, pollutant).
// Updates for the same key are serialized by a per-key mutex; different keys
// proceed independently.
type Aggregator struct {
	mu     sync.RWMutex
	table  map[string]*state
	sink   SnapshotSink
	logger *log.Logger
}

// Option customizes the aggregator.
type Option func(*Aggregator)

// WithSnapshotSink attaches a snapshot sink.
func WithSnapshotSink(sink SnapshotSink) Option {
	return func(a *Aggregator) {
		a.sink = sink
	}
}

// WithLogger assigns a logger for sink failures.
func WithLogger(logger *log.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logger
	}
}

// NewAggregator constructs an empty aggregator.
func NewAggregator(opts ...Option) *Aggregator {
	agg := &Aggregator{table: make(map[string]*state)}
	for _, opt := range opts {
		opt(agg)
	}
	return agg
}

func key(stationID, pollutant string) string {
	return stationID + "|" + pollutant
}

func (a *Aggregator) stateFor(stationID, pollutant string) *state {
	k := key(stationID, pollutant)
	a.mu.RLock()
	st := a.table[k]
	a.mu.RUnlock()
	if st != nil {
		return st
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if st = a.table[k]; st == nil {
		st = &state{}
		a.table[k] = st
	}
	return st
}

// Add folds a reading into the key's windows and returns the refreshed
// averages per horizon. Replaying a reading with an already seen timestamp is
// a no-op for the math (the stored value is replaced, not duplicated).
// Readings older than the largest horizon relative to the latest timestamp
// seen are dropped silently.
func (a *Aggregator) Add(stationID, pollutant string, at time.Time, value float64) map[Horizon]float64 {
	at = at.UTC()
	st := a.stateFor(stationID, pollutant)

	st.mu.Lock()
	defer st.mu.Unlock()

	if at.After(st.latest) {
		st.latest = at
	}

	maxHorizon := Horizons[len(Horizons)-1].Duration()
	if at.Before(st.latest.Add(-maxHorizon)) {
		// Too old for every horizon: intentional lossy drop, not a fault.
		return averagesLocked(st)
	}

	idx := sort.Search(len(st.samples), func(i int) bool {
		return !st.samples[i].at.Before(at)
	})
	if idx < len(st.samples) && st.samples[idx].at.Equal(at) {
		st.samples[idx].value = value
	} else {
		st.samples = append(st.samples, sample{})
		copy(st.samples[idx+1:], st.samples[idx:])
		st.samples[idx] = sample{at: at, value: value}
	}

	// Evict samples that fell out of the largest horizon.
	cutoff := st.latest.Add(-maxHorizon)
	first := sort.Search(len(st.samples), func(i int) bool {
		return !st.samples[i].at.Before(cutoff)
	})
	if first > 0 {
		st.samples = append(st.samples[:0], st.samples[first:]...)
	}

	if a.sink != nil {
		a.snapshotLocked(st, stationID, pollutant)
	}
	return averagesLocked(st)
}

func averagesLocked(st *state) map[Horizon]float64 {
	averages := make(map[Horizon]float64, len(Horizons))
	for _, horizon := range Horizons {
		sum, count, _ := horizonSumLocked(st, horizon)
		if count == 0 {
			continue
		}
		averages[horizon] = sum / float64(count)
	}
	return averages
}

func horizonSumLocked(st *state, horizon Horizon) (sum float64, count int, oldest time.Time) {
	cutoff := st.latest.Add(-horizon.Duration())
	for _, s := range st.samples {
		if s.at.Before(cutoff) {
			continue
		}
		if count == 0 {
			oldest = s.at
		}
		sum += s.value
		count++
	}
	return sum, count, oldest
}

func (a *Aggregator) snapshotLocked(st *state, stationID, pollutant string) {
	for _, horizon := range Horizons {
		sum, count, oldest := horizonSumLocked(st, horizon)
		if count == 0 {
			continue
		}
		err := a.sink.Upsert(Snapshot{
			StationID: stationID,
			Pollutant: pollutant,
			Horizon:   horizon,
			Sum:       sum,
			Count:     count,
			Oldest:    oldest,
			Average:   sum / float64(count),
			UpdatedAt: st.latest,
		})
		// Snapshots are informative persistence; a sink failure must not
		// block aggregation, but it must not vanish either.
		if err != nil && a.logger != nil {
			a.logger.Printf("window snapshot upsert failed station=%s pollutant=%s horizon=%s: %v",
				stationID, pollutant, horizon.Label(), err)
		}
	}
}

// Average returns the current rolling average for the key and horizon. The
// second return is false when no sample is inside the window: an empty window
// has no average, it is not zero.
func (a *Aggregator) Average(stationID, pollutant string, horizon Horizon) (float64, bool) {
	st := a.stateFor(stationID, pollutant)
	st.mu.Lock()
	defer st.mu.Unlock()
	sum, count, _ := horizonSumLocked(st, horizon)
	if count == 0 {
		return 0, false
	}
	return sum / float64(count), true
}

// Averages returns the current averages for every horizon with data.
func (a *Aggregator) Averages(stationID, pollutant string) map[Horizon]float64 {
	st := a.stateFor(stationID, pollutant)
	st.mu.Lock()
	defer st.mu.Unlock()
	return averagesLocked(st)
}
