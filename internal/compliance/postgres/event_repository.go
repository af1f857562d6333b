package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"greenpulse/internal/compliance"
	"greenpulse/internal/ledger"
	"greenpulse/internal/rules"
	"greenpulse/internal/window"
)

const defaultEventsTable = "compliance_events"

// EventRepository is a Postgres implementation of compliance.EventStore.
type EventRepository struct {
	db    *sql.DB
	table string
}

// NewEventRepository constructs a repository.
func NewEventRepository(db *sql.DB, opts ...EventOption) *EventRepository {
	repo := &EventRepository{db: db, table: defaultEventsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// EventOption configures the repository.
type EventOption func(*EventRepository)

// WithEventsTable overrides the default table name.
func WithEventsTable(table string) EventOption {
	return func(repo *EventRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

func (r *EventRepository) dbtx(tx ledger.DBTX) ledger.DBTX {
	if tx != nil {
		return tx
	}
	return r.db
}

const eventColumns = `id, station_id, pollutant, tier, previous_tier, status, observed_value,
limit_value, escalation_value, averaging_period, rule_reference, exceedance_percent,
window_start, window_end, repeat_breach, created_at, updated_at`

// Insert writes a new compliance event inside the caller's transaction.
func (r *EventRepository) Insert(ctx context.Context, tx ledger.DBTX, event *compliance.Event) error {
	if r == nil || r.db == nil {
		return errors.New("event repo: nil db")
	}
	if event == nil {
		return errors.New("event repo: nil event")
	}

	query := fmt.Sprintf(`
INSERT INTO %s (%s)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		r.table, eventColumns)

	_, err := r.dbtx(tx).ExecContext(ctx, query,
		event.ID,
		event.StationID,
		event.Pollutant,
		string(event.Tier),
		string(event.PreviousTier),
		event.Status,
		event.Observed,
		event.Limit,
		event.Escalation,
		event.HorizonLabel,
		event.RuleRef,
		event.ExceedancePct,
		event.WindowStart,
		event.WindowEnd,
		event.RepeatBreach,
		event.CreatedAt,
		event.UpdatedAt,
	)
	return err
}

// UpdateStatus moves an event's status inside the caller's transaction.
func (r *EventRepository) UpdateStatus(ctx context.Context, tx ledger.DBTX, id, status string, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("event repo: nil db")
	}
	query := fmt.Sprintf(`
UPDATE %s
SET status = $2, updated_at = $3
WHERE id = $1`, r.table)

	result, err := r.dbtx(tx).ExecContext(ctx, query, id, status, at)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return compliance.ErrNotFound
	}
	return nil
}

// Get returns one event by id.
func (r *EventRepository) Get(ctx context.Context, id string) (*compliance.Event, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("event repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT %s
FROM %s
WHERE id = $1`, eventColumns, r.table)

	event, err := scanEvent(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, compliance.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return event, nil
}

// List returns events matching the filter, newest first.
func (r *EventRepository) List(ctx context.Context, filter compliance.ListFilter) ([]compliance.Event, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("event repo: nil db")
	}

	var (
		conditions []string
		args       []any
	)
	if filter.StationID != "" {
		args = append(args, filter.StationID)
		conditions = append(conditions, fmt.Sprintf("station_id = $%d", len(args)))
	}
	if filter.Tier != "" {
		args = append(args, filter.Tier)
		conditions = append(conditions, fmt.Sprintf("tier = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
SELECT %s
FROM %s
%s
ORDER BY created_at DESC, id DESC
LIMIT $%d`, eventColumns, r.table, where, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []compliance.Event
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, *event)
	}
	return events, rows.Err()
}

// SummaryByTier returns event counts grouped by tier.
func (r *EventRepository) SummaryByTier(ctx context.Context) (map[string]int64, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("event repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT tier, COUNT(*)
FROM %s
GROUP BY tier`, r.table)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summary := make(map[string]int64)
	for rows.Next() {
		var (
			tier  string
			count int64
		)
		if err := rows.Scan(&tier, &count); err != nil {
			return nil, err
		}
		summary[tier] = count
	}
	return summary, rows.Err()
}

// CountViolationsSince counts VIOLATION events for the key created at or
// after the cutoff.
func (r *EventRepository) CountViolationsSince(ctx context.Context, stationID, pollutant, horizonLabel string, cutoff time.Time) (int64, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("event repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT COUNT(*)
FROM %s
WHERE station_id = $1
  AND pollutant = $2
  AND averaging_period = $3
  AND tier = 'VIOLATION'
  AND created_at >= $4`, r.table)

	var count int64
	err := r.db.QueryRowContext(ctx, query, stationID, pollutant, horizonLabel, cutoff).Scan(&count)
	if err != nil {
		return 0, err
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*compliance.Event, error) {
	var (
		event        compliance.Event
		tier         string
		previousTier string
	)
	err := row.Scan(
		&event.ID,
		&event.StationID,
		&event.Pollutant,
		&tier,
		&previousTier,
		&event.Status,
		&event.Observed,
		&event.Limit,
		&event.Escalation,
		&event.HorizonLabel,
		&event.RuleRef,
		&event.ExceedancePct,
		&event.WindowStart,
		&event.WindowEnd,
		&event.RepeatBreach,
		&event.CreatedAt,
		&event.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	event.Tier = rules.Tier(tier)
	event.PreviousTier = rules.Tier(previousTier)
	if horizon, ok := window.ParseHorizon(event.HorizonLabel); ok {
		event.Horizon = horizon
	}
	event.WindowStart = event.WindowStart.UTC()
	event.WindowEnd = event.WindowEnd.UTC()
	event.CreatedAt = event.CreatedAt.UTC()
	event.UpdatedAt = event.UpdatedAt.UTC()
	return &event, nil
}
