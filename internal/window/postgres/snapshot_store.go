package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"greenpulse/internal/window"
)

const defaultSnapshotsTable = "window_states"

// Column names follow the window_states migration.
const snapshotColumns = "station_id, pollutant, horizon, sum, count, oldest, average, updated_at"

const upsertQuery = `
INSERT INTO %s (
	` + snapshotColumns + `
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8
)
ON CONFLICT (station_id, pollutant, horizon)
DO UPDATE SET
	sum = EXCLUDED.sum,
	count = EXCLUDED.count,
	oldest = EXCLUDED.oldest,
	average = EXCLUDED.average,
	updated_at = EXCLUDED.updated_at`

// SnapshotStore persists window aggregates keyed by (station, pollutant, horizon).
type SnapshotStore struct {
	db      *sql.DB
	table   string
	timeout time.Duration
}

// NewSnapshotStore constructs a store.
func NewSnapshotStore(db *sql.DB, opts ...SnapshotOption) *SnapshotStore {
	store := &SnapshotStore{db: db, table: defaultSnapshotsTable, timeout: 5 * time.Second}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// SnapshotOption configures the store.
type SnapshotOption func(*SnapshotStore)

// WithSnapshotTable overrides the default table name.
func WithSnapshotTable(table string) SnapshotOption {
	return func(store *SnapshotStore) {
		if table != "" {
			store.table = table
		}
	}
}

// Upsert writes the latest aggregate for the snapshot's key.
func (s *SnapshotStore) Upsert(snapshot window.Snapshot) error {
	if s == nil || s.db == nil {
		return errors.New("snapshot store: nil db")
	}
	if snapshot.StationID == "" || snapshot.Pollutant == "" {
		return errors.New("snapshot store: missing key fields")
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	query := fmt.Sprintf(upsertQuery, s.table)

	_, err := s.db.ExecContext(ctx, query,
		snapshot.StationID,
		snapshot.Pollutant,
		snapshot.Horizon.Label(),
		snapshot.Sum,
		snapshot.Count,
		snapshot.Oldest,
		snapshot.Average,
		snapshot.UpdatedAt,
	)
	return err
}
