package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"greenpulse/internal/ledger"
)

const defaultLedgerTable = "audit_ledger"

// Store is a Postgres implementation of ledger.Store. The table carries a
// unique constraint on sequence_number, so a concurrent writer that lost the
// race surfaces as an insert conflict rather than a forked chain.
type Store struct {
	db    *sql.DB
	table string
}

// NewStore constructs a store.
func NewStore(db *sql.DB, opts ...StoreOption) *Store {
	store := &Store{db: db, table: defaultLedgerTable}
	for _, opt := range opts {
		opt(store)
	}
	return store
}

// StoreOption configures the store.
type StoreOption func(*Store)

// WithTable overrides the default table name.
func WithTable(table string) StoreOption {
	return func(store *Store) {
		if table != "" {
			store.table = table
		}
	}
}

func (s *Store) dbtx(tx ledger.DBTX) ledger.DBTX {
	if tx != nil {
		return tx
	}
	return s.db
}

// Tail returns the highest-sequence entry.
func (s *Store) Tail(ctx context.Context, tx ledger.DBTX) (*ledger.Entry, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("ledger store: nil db")
	}
	query := fmt.Sprintf(`
SELECT sequence_number, event_type, event_id, payload, payload_hash, prev_hash, entry_hash, created_at
FROM %s
ORDER BY sequence_number DESC
LIMIT 1`, s.table)

	var entry ledger.Entry
	err := s.dbtx(tx).QueryRowContext(ctx, query).Scan(
		&entry.Sequence,
		&entry.EventType,
		&entry.EventID,
		&entry.Payload,
		&entry.PayloadHash,
		&entry.PrevHash,
		&entry.EntryHash,
		&entry.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	entry.CreatedAt = entry.CreatedAt.UTC()
	return &entry, nil
}

// Insert writes a new chain entry. Entries are never updated or deleted.
func (s *Store) Insert(ctx context.Context, tx ledger.DBTX, entry *ledger.Entry) error {
	if s == nil || s.db == nil {
		return errors.New("ledger store: nil db")
	}
	if entry == nil {
		return errors.New("ledger store: nil entry")
	}
	if entry.Sequence < 1 || entry.EntryHash == "" || entry.PrevHash == "" {
		return errors.New("ledger store: incomplete entry")
	}

	query := fmt.Sprintf(`
INSERT INTO %s (
	sequence_number, event_type, event_id, payload, payload_hash, prev_hash, entry_hash, created_at
) VALUES (
	$1, $2, $3, $4, $5, $6, $7, $8
)`, s.table)

	_, err := s.dbtx(tx).ExecContext(ctx, query,
		entry.Sequence,
		entry.EventType,
		entry.EventID,
		[]byte(entry.Payload),
		entry.PayloadHash,
		entry.PrevHash,
		entry.EntryHash,
		entry.CreatedAt,
	)
	return err
}

// Walk visits all entries in ascending sequence order.
func (s *Store) Walk(ctx context.Context, fn func(ledger.Entry) error) error {
	if s == nil || s.db == nil {
		return errors.New("ledger store: nil db")
	}
	query := fmt.Sprintf(`
SELECT sequence_number, event_type, event_id, payload, payload_hash, prev_hash, entry_hash, created_at
FROM %s
ORDER BY sequence_number ASC`, s.table)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var entry ledger.Entry
		if err := rows.Scan(
			&entry.Sequence,
			&entry.EventType,
			&entry.EventID,
			&entry.Payload,
			&entry.PayloadHash,
			&entry.PrevHash,
			&entry.EntryHash,
			&entry.CreatedAt,
		); err != nil {
			return err
		}
		entry.CreatedAt = entry.CreatedAt.UTC()
		if err := fn(entry); err != nil {
			return err
		}
	}
	return rows.Err()
}
