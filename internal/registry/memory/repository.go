package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"greenpulse/internal/registry"
)

// StationRepository is an in-memory registry for demo/testing.
type StationRepository struct {
	mu   sync.RWMutex
	data map[string]registry.Station
}

// NewStationRepository constructs a repository.
func NewStationRepository() *StationRepository {
	return &StationRepository{data: make(map[string]registry.Station)}
}

// List returns all stations ordered by id.
func (r *StationRepository) List(ctx context.Context) ([]registry.Station, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()
	stations := make([]registry.Station, 0, len(r.data))
	for _, station := range r.data {
		stations = append(stations, station)
	}
	sort.Slice(stations, func(i, j int) bool { return stations[i].ID < stations[j].ID })
	return stations, nil
}

// Get loads a station by id.
func (r *StationRepository) Get(ctx context.Context, id string) (*registry.Station, error) {
	_ = ctx
	if id == "" {
		return nil, errors.New("station repo: empty id")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	station, ok := r.data[id]
	if !ok {
		return nil, registry.ErrNotFound
	}
	return &station, nil
}

// Save upserts a station.
func (r *StationRepository) Save(ctx context.Context, station *registry.Station) error {
	_ = ctx
	if station == nil {
		return errors.New("station repo: nil station")
	}
	if err := station.Validate(); err != nil {
		return err
	}
	copied := *station
	if copied.Status == "" {
		copied.Status = registry.StatusOnline
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.data[copied.ID] = copied
	return nil
}

// SetStatus updates a station's online/offline status.
func (r *StationRepository) SetStatus(ctx context.Context, id, status string, at time.Time) error {
	_ = ctx
	if status != registry.StatusOnline && status != registry.StatusOffline {
		return errors.New("station repo: invalid status " + status)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	station, ok := r.data[id]
	if !ok {
		return registry.ErrNotFound
	}
	station.Status = status
	station.UpdatedAt = at.UTC()
	r.data[id] = station
	return nil
}
