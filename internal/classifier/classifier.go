package classifier

import (
	"errors"
	"sync"

	"greenpulse/internal/rules"
	"greenpulse/internal/window"
)

// TierStore retains the last-emitted tier per (station, pollutant). It is the
// hysteresis baseline: a compliance event exists only for transitions away
// from the retained tier. The store is explicit state, not ambient: the
// compliance service owns when it advances.
type TierStore struct {
	mu    sync.RWMutex
	tiers map[string]rules.Tier
}

// NewTierStore constructs an empty store.
func NewTierStore() *TierStore {
	return &TierStore{tiers: make(map[string]rules.Tier)}
}

func tierKey(stationID, pollutant string) string {
	return stationID + "|" + pollutant
}

// Get returns the retained tier for a key.
func (s *TierStore) Get(stationID, pollutant string) (rules.Tier, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tier, ok := s.tiers[tierKey(stationID, pollutant)]
	return tier, ok
}

// Set records the retained tier for a key.
func (s *TierStore) Set(stationID, pollutant string, tier rules.Tier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tiers[tierKey(stationID, pollutant)] = tier
}

// Delete forgets the retained tier for a key.
func (s *TierStore) Delete(stationID, pollutant string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tiers, tierKey(stationID, pollutant))
}

// Classifier evaluates window averages against the limit table.
type Classifier struct {
	table *rules.Table
}

// New constructs a classifier.
func New(table *rules.Table) (*Classifier, error) {
	if table == nil {
		return nil, errors.New("classifier: nil limit table")
	}
	return &Classifier{table: table}, nil
}

// Classify evaluates the pollutant's regulated horizon against its limits.
// The zone adjustment divisor normalizes the average before comparison.
// Returns false when the pollutant is not regulated or the regulated horizon
// has no average yet.
func (c *Classifier) Classify(stationID, pollutant string, averages map[window.Horizon]float64, zoneAdjustment float64) (rules.Result, bool) {
	limit, ok := c.table.Limit(pollutant)
	if !ok {
		return rules.Result{}, false
	}
	average, ok := averages[limit.Horizon]
	if !ok {
		return rules.Result{}, false
	}
	if zoneAdjustment > 0 && zoneAdjustment != 1.0 {
		average = average / zoneAdjustment
	}
	result, err := c.table.Evaluate(pollutant, average)
	if err != nil {
		return rules.Result{}, false
	}
	return result, true
}

// Transition compares a computed tier against the retained baseline.
// A missing baseline initializes silently: there is nothing to compare
// against, so no event is due.
type Transition struct {
	From     rules.Tier
	To       rules.Tier
	Baseline bool
}

// Detect returns the transition for a key given a newly computed tier and
// whether an event is due. The store is not advanced here: the caller commits
// the new tier only after the event has been durably recorded.
func Detect(store *TierStore, stationID, pollutant string, newTier rules.Tier) (Transition, bool) {
	prev, ok := store.Get(stationID, pollutant)
	if !ok {
		store.Set(stationID, pollutant, newTier)
		return Transition{To: newTier}, false
	}
	if prev == newTier {
		return Transition{From: prev, To: newTier, Baseline: true}, false
	}
	return Transition{From: prev, To: newTier, Baseline: true}, true
}
