package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"greenpulse/internal/registry"
)

const defaultStationsTable = "stations"

// StationRepository is a Postgres implementation of registry.Repository.
type StationRepository struct {
	db    *sql.DB
	table string
}

// NewStationRepository constructs a repository.
func NewStationRepository(db *sql.DB, opts ...StationOption) *StationRepository {
	repo := &StationRepository{db: db, table: defaultStationsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// StationOption configures the repository.
type StationOption func(*StationRepository)

// WithStationTable overrides the default table name.
func WithStationTable(table string) StationOption {
	return func(repo *StationRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

// List returns all stations ordered by id.
func (r *StationRepository) List(ctx context.Context) ([]registry.Station, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("station repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, name, latitude, longitude, zone, source_id, status, created_at, updated_at
FROM %s
ORDER BY id`, r.table)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stations []registry.Station
	for rows.Next() {
		var station registry.Station
		if err := rows.Scan(
			&station.ID,
			&station.Name,
			&station.Latitude,
			&station.Longitude,
			&station.Zone,
			&station.SourceID,
			&station.Status,
			&station.CreatedAt,
			&station.UpdatedAt,
		); err != nil {
			return nil, err
		}
		station.CreatedAt = station.CreatedAt.UTC()
		station.UpdatedAt = station.UpdatedAt.UTC()
		stations = append(stations, station)
	}
	return stations, rows.Err()
}

// Get loads a station by id.
func (r *StationRepository) Get(ctx context.Context, id string) (*registry.Station, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("station repo: nil db")
	}
	if id == "" {
		return nil, errors.New("station repo: empty id")
	}

	query := fmt.Sprintf(`
SELECT id, name, latitude, longitude, zone, source_id, status, created_at, updated_at
FROM %s
WHERE id = $1
LIMIT 1`, r.table)

	var station registry.Station
	if err := r.db.QueryRowContext(ctx, query, id).Scan(
		&station.ID,
		&station.Name,
		&station.Latitude,
		&station.Longitude,
		&station.Zone,
		&station.SourceID,
		&station.Status,
		&station.CreatedAt,
		&station.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, registry.ErrNotFound
		}
		return nil, err
	}
	station.CreatedAt = station.CreatedAt.UTC()
	station.UpdatedAt = station.UpdatedAt.UTC()
	return &station, nil
}

// Save upserts a station.
func (r *StationRepository) Save(ctx context.Context, station *registry.Station) error {
	if r == nil || r.db == nil {
		return errors.New("station repo: nil db")
	}
	if station == nil {
		return errors.New("station repo: nil station")
	}
	if err := station.Validate(); err != nil {
		return err
	}
	if station.Status == "" {
		station.Status = registry.StatusOnline
	}
	if station.CreatedAt.IsZero() {
		station.CreatedAt = time.Now().UTC()
	}
	if station.UpdatedAt.IsZero() {
		station.UpdatedAt = station.CreatedAt
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	id, name, latitude, longitude, zone, source_id, status, created_at, updated_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8, $9
)
ON CONFLICT (id)
DO UPDATE SET
	name = EXCLUDED.name,
	latitude = EXCLUDED.latitude,
	longitude = EXCLUDED.longitude,
	zone = EXCLUDED.zone,
	source_id = EXCLUDED.source_id,
	updated_at = EXCLUDED.updated_at`, r.table)

	_, err := r.db.ExecContext(ctx, query,
		station.ID,
		station.Name,
		station.Latitude,
		station.Longitude,
		station.Zone,
		station.SourceID,
		station.Status,
		station.CreatedAt,
		station.UpdatedAt,
	)
	return err
}

// SetStatus updates a station's online/offline status.
func (r *StationRepository) SetStatus(ctx context.Context, id, status string, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("station repo: nil db")
	}
	if id == "" {
		return errors.New("station repo: empty id")
	}
	if status != registry.StatusOnline && status != registry.StatusOffline {
		return errors.New("station repo: invalid status " + status)
	}

	query := fmt.Sprintf(`
UPDATE %s
SET status = $1, updated_at = $2
WHERE id = $3`, r.table)

	result, err := r.db.ExecContext(ctx, query, status, at.UTC(), id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return registry.ErrNotFound
	}
	return nil
}
