package memory

import (
	"sync"

	"greenpulse/internal/window"
)

// SnapshotStore keeps the latest window aggregates in memory.
type SnapshotStore struct {
	mu   sync.RWMutex
	data map[string]window.Snapshot
}

// NewSnapshotStore constructs a store.
func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{data: make(map[string]window.Snapshot)}
}

func snapshotKey(s window.Snapshot) string {
	return s.StationID + "|" + s.Pollutant + "|" + s.Horizon.Label()
}

// Upsert stores the latest aggregate for the snapshot's key.
func (s *SnapshotStore) Upsert(snapshot window.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[snapshotKey(snapshot)] = snapshot
	return nil
}

// Get returns the stored aggregate for a key, if any.
func (s *SnapshotStore) Get(stationID, pollutant string, horizon window.Horizon) (window.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snapshot, ok := s.data[stationID+"|"+pollutant+"|"+horizon.Label()]
	return snapshot, ok
}
