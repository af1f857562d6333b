package registry

import (
	"context"
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type seedFile struct {
	Stations []seedStation `yaml:"stations"`
}

type seedStation struct {
	ID        string  `yaml:"id"`
	Name      string  `yaml:"name"`
	Latitude  float64 `yaml:"latitude"`
	Longitude float64 `yaml:"longitude"`
	Zone      string  `yaml:"zone"`
	SourceID  string  `yaml:"source_id"`
}

// LoadSeed reads the station catalog from a yaml file.
func LoadSeed(path string) ([]Station, error) {
	if path == "" {
		return nil, errors.New("registry: empty seed path")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	if len(file.Stations) == 0 {
		return nil, errors.New("registry: seed file has no stations")
	}

	stations := make([]Station, 0, len(file.Stations))
	for _, entry := range file.Stations {
		station := Station{
			ID:        entry.ID,
			Name:      entry.Name,
			Latitude:  entry.Latitude,
			Longitude: entry.Longitude,
			Zone:      entry.Zone,
			SourceID:  entry.SourceID,
			Status:    StatusOnline,
		}
		if station.Zone == "" {
			station.Zone = ZoneResidential
		}
		if err := station.Validate(); err != nil {
			return nil, err
		}
		stations = append(stations, station)
	}
	return stations, nil
}

// Seed upserts the catalog into the repository. Existing stations keep their
// current status.
func Seed(ctx context.Context, repo Repository, stations []Station) error {
	if repo == nil {
		return errors.New("registry: nil repository")
	}
	now := time.Now().UTC()
	for i := range stations {
		station := stations[i]
		existing, err := repo.Get(ctx, station.ID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		if existing != nil {
			station.Status = existing.Status
			station.CreatedAt = existing.CreatedAt
		}
		if station.CreatedAt.IsZero() {
			station.CreatedAt = now
		}
		station.UpdatedAt = now
		if err := repo.Save(ctx, &station); err != nil {
			return err
		}
	}
	return nil
}
