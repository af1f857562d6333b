package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"greenpulse/internal/compliance"
	"greenpulse/internal/ledger"
	"greenpulse/internal/rules"
)

// EventStore is an in-memory compliance.EventStore for demo/testing. It
// ignores the transaction handle; the caller's append-first ordering keeps
// the ledger ahead of the event on partial failure.
type EventStore struct {
	mu     sync.RWMutex
	events map[string]compliance.Event
}

// NewEventStore constructs a store.
func NewEventStore() *EventStore {
	return &EventStore{events: make(map[string]compliance.Event)}
}

// Insert stores a new event.
func (s *EventStore) Insert(ctx context.Context, tx ledger.DBTX, event *compliance.Event) error {
	_ = ctx
	_ = tx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event.ID] = *event
	return nil
}

// UpdateStatus moves an event's status.
func (s *EventStore) UpdateStatus(ctx context.Context, tx ledger.DBTX, id, status string, at time.Time) error {
	_ = ctx
	_ = tx
	s.mu.Lock()
	defer s.mu.Unlock()
	event, ok := s.events[id]
	if !ok {
		return compliance.ErrNotFound
	}
	event.Status = status
	event.UpdatedAt = at.UTC()
	s.events[id] = event
	return nil
}

// Get returns one event by id.
func (s *EventStore) Get(ctx context.Context, id string) (*compliance.Event, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	event, ok := s.events[id]
	if !ok {
		return nil, compliance.ErrNotFound
	}
	return &event, nil
}

// List returns events matching the filter, newest first.
func (s *EventStore) List(ctx context.Context, filter compliance.ListFilter) ([]compliance.Event, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()

	var events []compliance.Event
	for _, event := range s.events {
		if filter.StationID != "" && event.StationID != filter.StationID {
			continue
		}
		if filter.Tier != "" && string(event.Tier) != filter.Tier {
			continue
		}
		if filter.Status != "" && event.Status != filter.Status {
			continue
		}
		events = append(events, event)
	}
	sort.Slice(events, func(i, j int) bool {
		if !events[i].CreatedAt.Equal(events[j].CreatedAt) {
			return events[i].CreatedAt.After(events[j].CreatedAt)
		}
		return events[i].ID > events[j].ID
	})
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	if len(events) > limit {
		events = events[:limit]
	}
	return events, nil
}

// SummaryByTier returns event counts grouped by tier.
func (s *EventStore) SummaryByTier(ctx context.Context) (map[string]int64, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	summary := make(map[string]int64)
	for _, event := range s.events {
		summary[string(event.Tier)]++
	}
	return summary, nil
}

// CountViolationsSince counts VIOLATION events for the key created at or
// after the cutoff.
func (s *EventStore) CountViolationsSince(ctx context.Context, stationID, pollutant, horizonLabel string, cutoff time.Time) (int64, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	var count int64
	for _, event := range s.events {
		if event.StationID != stationID || event.Pollutant != pollutant {
			continue
		}
		if event.HorizonLabel != horizonLabel || event.Tier != rules.TierViolation {
			continue
		}
		if event.CreatedAt.Before(cutoff) {
			continue
		}
		count++
	}
	return count, nil
}

// Len reports the number of stored events.
func (s *EventStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.events)
}
