package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"greenpulse/internal/ingestion"
)

const defaultReadingsTable = "pollutant_readings"

// ReadingStore is a Postgres implementation of ingestion.ReadingStore.
type ReadingStore struct {
	db    *sql.DB
	table string
}

// NewReadingStore constructs a store.
func NewReadingStore(db *sql.DB, opts ...ReadingOption) *ReadingStore {
	store := &ReadingStore{db: db, table: defaultReadingsTable}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// ReadingOption configures the store.
type ReadingOption func(*ReadingStore)

// WithReadingsTable overrides the default table name.
func WithReadingsTable(table string) ReadingOption {
	return func(store *ReadingStore) {
		if table != "" {
			store.table = table
		}
	}
}

// Insert persists readings. Replaying an already stored
// (station, pollutant, timestamp) key is a no-op.
func (s *ReadingStore) Insert(ctx context.Context, readings []ingestion.Reading) error {
	if s == nil || s.db == nil {
		return errors.New("reading store: nil db")
	}
	if len(readings) == 0 {
		return nil
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	station_id, pollutant, observed_at, value, confidence, quarantined, created_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7
)
ON CONFLICT (station_id, pollutant, observed_at) DO NOTHING`, s.table)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()

	for _, reading := range readings {
		if reading.StationID == "" || reading.Pollutant == "" || reading.ObservedAt.IsZero() {
			_ = tx.Rollback()
			return errors.New("reading store: invalid reading")
		}
		createdAt := reading.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		if _, err := stmt.ExecContext(ctx,
			reading.StationID,
			reading.Pollutant,
			reading.ObservedAt,
			reading.Value,
			reading.Confidence,
			reading.Quarantined,
			createdAt,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
