package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"greenpulse/internal/ingestion"
)

// ReadingStore is an in-memory ingestion.ReadingStore for demo/testing.
type ReadingStore struct {
	mu   sync.RWMutex
	data map[string]ingestion.Reading
}

// NewReadingStore constructs an empty store.
func NewReadingStore() *ReadingStore {
	return &ReadingStore{data: make(map[string]ingestion.Reading)}
}

func readingKey(r ingestion.Reading) string {
	return r.StationID + "|" + r.Pollutant + "|" + r.ObservedAt.UTC().Format(time.RFC3339Nano)
}

// Insert persists readings; replayed keys are no-ops.
func (s *ReadingStore) Insert(ctx context.Context, readings []ingestion.Reading) error {
	_ = ctx
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, reading := range readings {
		if reading.StationID == "" || reading.Pollutant == "" || reading.ObservedAt.IsZero() {
			return errors.New("reading store: invalid reading")
		}
		key := readingKey(reading)
		if _, exists := s.data[key]; exists {
			continue
		}
		s.data[key] = reading
	}
	return nil
}

// Len returns the number of stored readings.
func (s *ReadingStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
