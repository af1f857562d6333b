package memory

import (
	"context"
	"sort"
	"sync"

	"greenpulse/internal/compliance"
	"greenpulse/internal/ledger"
)

// ActionStore is an in-memory compliance.ActionStore for demo/testing.
type ActionStore struct {
	mu      sync.RWMutex
	actions []compliance.Action
}

// NewActionStore constructs a store.
func NewActionStore() *ActionStore {
	return &ActionStore{}
}

// Insert stores a new officer action.
func (s *ActionStore) Insert(ctx context.Context, tx ledger.DBTX, action *compliance.Action) error {
	_ = ctx
	_ = tx
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, *action)
	return nil
}

// ListByEvent returns an event's actions in creation order.
func (s *ActionStore) ListByEvent(ctx context.Context, eventID string) ([]compliance.Action, error) {
	_ = ctx
	s.mu.RLock()
	defer s.mu.RUnlock()
	var actions []compliance.Action
	for _, action := range s.actions {
		if action.EventID == eventID {
			actions = append(actions, action)
		}
	}
	sort.Slice(actions, func(i, j int) bool {
		if !actions[i].CreatedAt.Equal(actions[j].CreatedAt) {
			return actions[i].CreatedAt.Before(actions[j].CreatedAt)
		}
		return actions[i].ID < actions[j].ID
	})
	return actions, nil
}
