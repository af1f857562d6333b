package compliance

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"greenpulse/internal/ledger"
	"greenpulse/internal/rules"
	"greenpulse/internal/window"
)

// Event statuses. Historical fields of an event never change; only status
// moves, and every move is recorded in the audit ledger.
const (
	StatusOpen      = "OPEN"
	StatusEscalated = "ESCALATED"
	StatusDismissed = "DISMISSED"
	StatusFlagged   = "FLAG"
	StatusResolved  = "RESOLVED"
)

// Officer action types.
const (
	ActionEscalate          = "ESCALATE"
	ActionDismiss           = "DISMISS"
	ActionFlagForMonitoring = "FLAG_FOR_MONITORING"
	ActionResolve           = "RESOLVE"
)

// ErrNotFound is returned when a compliance event does not exist.
var ErrNotFound = errors.New("compliance: event not found")

// ErrInvalidAction is returned for an unrecognized officer action type.
var ErrInvalidAction = errors.New("compliance: invalid action type")

// actionStatus maps an officer action to the resulting event status.
var actionStatus = map[string]string{
	ActionEscalate:          StatusEscalated,
	ActionDismiss:           StatusDismissed,
	ActionFlagForMonitoring: StatusFlagged,
	ActionResolve:           StatusResolved,
}

// Event is one tier classification outcome, the unit of regulatory evidence.
type Event struct {
	ID            string         `json:"id"`
	StationID     string         `json:"station_id"`
	Pollutant     string         `json:"pollutant"`
	Tier          rules.Tier     `json:"tier"`
	PreviousTier  rules.Tier     `json:"previous_tier"`
	Status        string         `json:"status"`
	Observed      float64        `json:"observed_value"`
	Limit         float64        `json:"limit_value"`
	Escalation    float64        `json:"escalation_value"`
	Horizon       window.Horizon `json:"-"`
	HorizonLabel  string         `json:"averaging_period"`
	RuleRef       string         `json:"rule_reference"`
	ExceedancePct float64        `json:"exceedance_percent"`
	WindowStart   time.Time      `json:"window_start"`
	WindowEnd     time.Time      `json:"window_end"`
	RepeatBreach  bool           `json:"repeat_breach"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// Action is one officer decision on a compliance event.
type Action struct {
	ID        string    `json:"id"`
	EventID   string    `json:"compliance_event_id"`
	Actor     string    `json:"actor"`
	Type      string    `json:"action_type"`
	Reason    string    `json:"reason,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ListFilter narrows event queries.
type ListFilter struct {
	StationID string
	Tier      string
	Status    string
	Limit     int
}

// EventStore persists compliance events. Mutating methods accept the caller's
// transaction so the event row and its ledger entry commit together.
type EventStore interface {
	Insert(ctx context.Context, tx ledger.DBTX, event *Event) error
	UpdateStatus(ctx context.Context, tx ledger.DBTX, id, status string, at time.Time) error
	Get(ctx context.Context, id string) (*Event, error)
	List(ctx context.Context, filter ListFilter) ([]Event, error)
	SummaryByTier(ctx context.Context) (map[string]int64, error)
	// CountViolationsSince counts VIOLATION events for the key and averaging
	// period created at or after the cutoff. Used for repeat-breach marking.
	CountViolationsSince(ctx context.Context, stationID, pollutant, horizonLabel string, cutoff time.Time) (int64, error)
}

// ActionStore persists officer actions.
type ActionStore interface {
	Insert(ctx context.Context, tx ledger.DBTX, action *Action) error
	ListByEvent(ctx context.Context, eventID string) ([]Action, error)
}

// NewEventID generates a random compliance event id.
func NewEventID() string {
	return "ce-" + randomHex()
}

// NewActionID generates a random officer action id.
func NewActionID() string {
	return "act-" + randomHex()
}

func randomHex() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}
