package compliance

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"sync"
	"time"

	"greenpulse/internal/classifier"
	"greenpulse/internal/ledger"
	"greenpulse/internal/observability/metrics"
	"greenpulse/internal/rules"
)

const repeatBreachLookback = 48 * time.Hour

// Notifier receives recorded events after they are durably committed.
// Notification is fan-out only: it runs outside the atomic unit and its
// failures never reach the pipeline.
type Notifier interface {
	Notify(ctx context.Context, update Update)
}

// Update is one committed change pushed to notifiers.
type Update struct {
	Type   string  `json:"type"` // "event" or "action"
	Event  Event   `json:"event"`
	Action *Action `json:"action,omitempty"`
}

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Service owns the tier-transition record unit: compliance event creation,
// officer actions, and their ledger entries. The retained-tier baseline is
// advanced only after the event and its ledger entry commit together, so a
// failed append leaves the transition pending and it is re-emitted on retry.
type Service struct {
	// unitMu serializes record units end to end, commit included. The
	// ledger writer's own lock covers the hash computation; this one
	// guarantees total order of transaction commits so concurrent units
	// cannot race for the same chain tail.
	unitMu sync.Mutex

	db       *sql.DB
	events   EventStore
	actions  ActionStore
	writer   *ledger.Writer
	tiers    *classifier.TierStore
	notifier Notifier
	clock    Clock
	logger   *log.Logger
}

// ServiceOption customizes the service.
type ServiceOption func(*Service)

// WithNotifier assigns a notifier.
func WithNotifier(notifier Notifier) ServiceOption {
	return func(s *Service) {
		s.notifier = notifier
	}
}

// WithClock assigns a clock.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		s.clock = clock
	}
}

// WithLogger assigns a logger.
func WithLogger(logger *log.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithDB enables transactional units on the given database. Without it the
// stores are assumed to be in-memory and the unit relies on append-first
// ordering instead of a transaction.
func WithDB(db *sql.DB) ServiceOption {
	return func(s *Service) {
		s.db = db
	}
}

// NewService constructs a compliance service.
func NewService(events EventStore, actions ActionStore, writer *ledger.Writer, tiers *classifier.TierStore, opts ...ServiceOption) (*Service, error) {
	if events == nil || actions == nil {
		return nil, errors.New("compliance: nil store")
	}
	if writer == nil {
		return nil, errors.New("compliance: nil ledger writer")
	}
	if tiers == nil {
		return nil, errors.New("compliance: nil tier store")
	}
	service := &Service{
		events:  events,
		actions: actions,
		writer:  writer,
		tiers:   tiers,
		clock:   systemClock{},
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

func (s *Service) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(format, args...)
	}
}

// RecordTransition applies the hysteresis rule to a freshly classified result
// and, on a tier transition, records the compliance event and its ledger
// entry as one atomic unit. Returns (nil, nil) when no event is due: first
// sight of the key initializes the baseline silently, and an unchanged tier
// is suppressed.
func (s *Service) RecordTransition(ctx context.Context, stationID string, result rules.Result, windowStart, windowEnd time.Time) (*Event, error) {
	if s == nil {
		return nil, errors.New("compliance: nil service")
	}
	if stationID == "" || result.Pollutant == "" {
		return nil, errors.New("compliance: missing station or pollutant")
	}

	s.unitMu.Lock()

	transition, due := classifier.Detect(s.tiers, stationID, result.Pollutant, result.Tier)
	if !due {
		s.unitMu.Unlock()
		return nil, nil
	}

	now := s.clock.Now().UTC()
	event := &Event{
		ID:            NewEventID(),
		StationID:     stationID,
		Pollutant:     result.Pollutant,
		Tier:          result.Tier,
		PreviousTier:  transition.From,
		Status:        StatusOpen,
		Observed:      result.Observed,
		Limit:         result.Limit,
		Escalation:    result.Escalation,
		Horizon:       result.Horizon,
		HorizonLabel:  result.Horizon.Label(),
		RuleRef:       result.RuleRef,
		ExceedancePct: result.ExceedancePct,
		WindowStart:   windowStart.UTC(),
		WindowEnd:     windowEnd.UTC(),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if result.Tier == rules.TierViolation {
		count, err := s.events.CountViolationsSince(ctx, stationID, result.Pollutant, event.HorizonLabel, now.Add(-repeatBreachLookback))
		switch {
		case err != nil:
			// The event still records without the repeat-breach mark.
			s.logf("repeat-breach lookup failed station=%s pollutant=%s: %v", stationID, result.Pollutant, err)
		case count > 0:
			event.RepeatBreach = true
		}
	}

	err := s.withTx(ctx, func(tx ledger.DBTX) error {
		if _, err := s.writer.Append(ctx, tx, ledger.EventTypeComplianceEvent, event.ID, event); err != nil {
			return err
		}
		return s.events.Insert(ctx, tx, event)
	})
	if err != nil {
		// Unit rolled back and the baseline was never advanced, so the
		// next cycle re-detects the same transition.
		s.unitMu.Unlock()
		metrics.IncLedgerAppend("error")
		return nil, err
	}

	s.tiers.Set(stationID, result.Pollutant, result.Tier)
	s.unitMu.Unlock()

	metrics.IncLedgerAppend("success")
	metrics.IncComplianceEvent(string(result.Tier))
	s.notify(ctx, Update{Type: "event", Event: *event})
	return event, nil
}

// ApplyAction records an officer action on an event: the action row, the
// event status change and the ledger entry commit as one unit. History is
// never rewritten; the action is a new fact appended to the chain.
func (s *Service) ApplyAction(ctx context.Context, eventID, actionType, actor, reason, notes string) (*Action, error) {
	if s == nil {
		return nil, errors.New("compliance: nil service")
	}
	if eventID == "" {
		return nil, errors.New("compliance: event id required")
	}
	newStatus, ok := actionStatus[actionType]
	if !ok {
		return nil, ErrInvalidAction
	}
	if actor == "" {
		actor = "officer"
	}

	event, err := s.events.Get(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, ErrNotFound
	}

	action := &Action{
		ID:        NewActionID(),
		EventID:   event.ID,
		Actor:     actor,
		Type:      actionType,
		Reason:    reason,
		Notes:     notes,
		CreatedAt: s.clock.Now().UTC(),
	}

	s.unitMu.Lock()
	err = s.withTx(ctx, func(tx ledger.DBTX) error {
		if _, err := s.writer.Append(ctx, tx, ledger.EventTypeOfficerAction, action.ID, action); err != nil {
			return err
		}
		if err := s.actions.Insert(ctx, tx, action); err != nil {
			return err
		}
		return s.events.UpdateStatus(ctx, tx, event.ID, newStatus, action.CreatedAt)
	})
	s.unitMu.Unlock()
	if err != nil {
		metrics.IncLedgerAppend("error")
		return nil, err
	}

	metrics.IncLedgerAppend("success")
	metrics.IncOfficerAction(actionType)
	event.Status = newStatus
	event.UpdatedAt = action.CreatedAt
	s.notify(ctx, Update{Type: "action", Event: *event, Action: action})
	return action, nil
}

// Get returns one event.
func (s *Service) Get(ctx context.Context, id string) (*Event, error) {
	if id == "" {
		return nil, errors.New("compliance: event id required")
	}
	event, err := s.events.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, ErrNotFound
	}
	return event, nil
}

// List returns events matching the filter, newest first.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Event, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 200
	}
	return s.events.List(ctx, filter)
}

// SummaryByTier returns event counts per tier.
func (s *Service) SummaryByTier(ctx context.Context) (map[string]int64, error) {
	return s.events.SummaryByTier(ctx)
}

// ListActions returns the officer actions recorded for an event.
func (s *Service) ListActions(ctx context.Context, eventID string) ([]Action, error) {
	if eventID == "" {
		return nil, errors.New("compliance: event id required")
	}
	return s.actions.ListByEvent(ctx, eventID)
}

func (s *Service) withTx(ctx context.Context, fn func(tx ledger.DBTX) error) error {
	if s.db == nil {
		return fn(nil)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Service) notify(ctx context.Context, update Update) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, update)
}
