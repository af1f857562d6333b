package registry

import (
	"context"
	"errors"
	"time"
)

// Station status values.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// Zone classifications recognized by the registry.
const (
	ZoneResidential = "residential"
	ZoneRoadside    = "roadside"
	ZoneIndustrial  = "industrial"
	ZoneBackground  = "background"
)

// ErrNotFound is returned when a station does not exist.
var ErrNotFound = errors.New("registry: station not found")

// Station is a physical monitoring point.
type Station struct {
	ID        string
	Name      string
	Latitude  float64
	Longitude float64
	Zone      string
	// SourceID is the station's identifier at the external feed provider.
	SourceID  string
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks station invariants.
func (s Station) Validate() error {
	if s.ID == "" {
		return errors.New("station: empty id")
	}
	if s.Name == "" {
		return errors.New("station: empty name")
	}
	if s.SourceID == "" {
		return errors.New("station: empty source id")
	}
	switch s.Zone {
	case ZoneResidential, ZoneRoadside, ZoneIndustrial, ZoneBackground:
	default:
		return errors.New("station: unknown zone " + s.Zone)
	}
	return nil
}

// ZoneAdjustment returns the threshold adjustment divisor for the station's
// zone. Roadside and industrial stations tolerate proportionally higher raw
// values before a breach is declared.
func (s Station) ZoneAdjustment() float64 {
	switch s.Zone {
	case ZoneRoadside:
		return 1.2
	case ZoneIndustrial:
		return 1.1
	default:
		return 1.0
	}
}

// Repository manages station persistence. Status is mutated only by the
// orchestrator; stations are never deleted in normal operation.
type Repository interface {
	List(ctx context.Context) ([]Station, error)
	Get(ctx context.Context, id string) (*Station, error)
	Save(ctx context.Context, station *Station) error
	SetStatus(ctx context.Context, id, status string, at time.Time) error
}
