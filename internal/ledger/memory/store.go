package memory

import (
	"context"
	"errors"
	"sync"

	"greenpulse/internal/ledger"
)

// ErrSequenceConflict is returned when an insert would reuse a sequence number.
var ErrSequenceConflict = errors.New("ledger store: sequence conflict")

// Store is an in-memory ledger.Store for demo/testing.
type Store struct {
	mu      sync.RWMutex
	entries []ledger.Entry
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{}
}

// Tail returns the highest-sequence entry.
func (s *Store) Tail(ctx context.Context, tx ledger.DBTX) (*ledger.Entry, error) {
	_, _ = ctx, tx
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.entries) == 0 {
		return nil, nil
	}
	tail := s.entries[len(s.entries)-1]
	return &tail, nil
}

// Insert appends a new entry, rejecting non-contiguous sequences.
func (s *Store) Insert(ctx context.Context, tx ledger.DBTX, entry *ledger.Entry) error {
	_, _ = ctx, tx
	if entry == nil {
		return errors.New("ledger store: nil entry")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	expected := int64(len(s.entries)) + 1
	if entry.Sequence != expected {
		return ErrSequenceConflict
	}
	s.entries = append(s.entries, *entry)
	return nil
}

// Walk visits all entries in ascending sequence order.
func (s *Store) Walk(ctx context.Context, fn func(ledger.Entry) error) error {
	_ = ctx
	s.mu.RLock()
	snapshot := make([]ledger.Entry, len(s.entries))
	copy(snapshot, s.entries)
	s.mu.RUnlock()

	for _, entry := range snapshot {
		if err := fn(entry); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of chain entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
