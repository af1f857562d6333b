package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

// DBTX is the subset of *sql.DB / *sql.Tx the stores need. A nil DBTX makes
// the store fall back to its own connection; passing the caller's transaction
// makes the insert atomic with the rest of the caller's unit of work.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Store persists chain entries.
type Store interface {
	// Tail returns the highest-sequence entry, or nil for an empty chain.
	Tail(ctx context.Context, tx DBTX) (*Entry, error)
	// Insert writes a new entry. Implementations must reject a sequence
	// number that is already taken so concurrent writers surface as a
	// write conflict instead of a forked chain.
	Insert(ctx context.Context, tx DBTX, entry *Entry) error
	// Walk visits all entries in ascending sequence order.
	Walk(ctx context.Context, fn func(Entry) error) error
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Writer appends entries to the chain. Appends are globally serialized by the
// writer's lock: every entry's hash depends on the previous entry, so even
// unrelated events must be totally ordered.
type Writer struct {
	mu    sync.Mutex
	store Store
	clock Clock
}

// WriterOption customizes the writer.
type WriterOption func(*Writer)

// WithClock assigns a clock.
func WithClock(clock Clock) WriterOption {
	return func(w *Writer) {
		w.clock = clock
	}
}

// NewWriter constructs a writer.
func NewWriter(store Store, opts ...WriterOption) (*Writer, error) {
	if store == nil {
		return nil, errors.New("ledger: nil store")
	}
	writer := &Writer{store: store, clock: systemClock{}}
	for _, opt := range opts {
		opt(writer)
	}
	return writer, nil
}

// Append computes and persists the next chain entry. When tx is non-nil the
// insert joins the caller's transaction; the caller must then also serialize
// the transaction commit (see compliance.Service), because the chain tail
// read here only sees committed entries plus writes on the same tx.
func (w *Writer) Append(ctx context.Context, tx DBTX, eventType, eventID string, payload any) (*Entry, error) {
	if w == nil || w.store == nil {
		return nil, errors.New("ledger: nil writer")
	}
	if eventType == "" || eventID == "" {
		return nil, errors.New("ledger: event type and id required")
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	payloadHash, err := PayloadHash(raw)
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	tail, err := w.store.Tail(ctx, tx)
	if err != nil {
		return nil, err
	}
	prevHash := GenesisHash
	sequence := int64(1)
	if tail != nil {
		prevHash = tail.EntryHash
		sequence = tail.Sequence + 1
	}

	createdAt := w.clock.Now().UTC()
	entry := &Entry{
		Sequence:    sequence,
		EventType:   eventType,
		EventID:     eventID,
		Payload:     raw,
		PayloadHash: payloadHash,
		PrevHash:    prevHash,
		EntryHash:   EntryHash(payloadHash, prevHash, sequence, createdAt),
		CreatedAt:   createdAt,
	}
	if err := w.store.Insert(ctx, tx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}
