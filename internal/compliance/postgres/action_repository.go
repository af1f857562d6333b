package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"greenpulse/internal/compliance"
	"greenpulse/internal/ledger"
)

const defaultActionsTable = "officer_actions"

// ActionRepository is a Postgres implementation of compliance.ActionStore.
type ActionRepository struct {
	db    *sql.DB
	table string
}

// NewActionRepository constructs a repository.
func NewActionRepository(db *sql.DB, opts ...ActionOption) *ActionRepository {
	repo := &ActionRepository{db: db, table: defaultActionsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// ActionOption configures the repository.
type ActionOption func(*ActionRepository)

// WithActionsTable overrides the default table name.
func WithActionsTable(table string) ActionOption {
	return func(repo *ActionRepository) {
		if table != "" {
			repo.table = table
		}
	}
}

func (r *ActionRepository) dbtx(tx ledger.DBTX) ledger.DBTX {
	if tx != nil {
		return tx
	}
	return r.db
}

// Insert writes a new officer action inside the caller's transaction.
func (r *ActionRepository) Insert(ctx context.Context, tx ledger.DBTX, action *compliance.Action) error {
	if r == nil || r.db == nil {
		return errors.New("action repo: nil db")
	}
	if action == nil {
		return errors.New("action repo: nil action")
	}

	query := fmt.Sprintf(`
INSERT INTO %s (id, compliance_event_id, actor, action_type, reason, notes, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`, r.table)

	_, err := r.dbtx(tx).ExecContext(ctx, query,
		action.ID,
		action.EventID,
		action.Actor,
		action.Type,
		action.Reason,
		action.Notes,
		action.CreatedAt,
	)
	return err
}

// ListByEvent returns an event's actions in creation order.
func (r *ActionRepository) ListByEvent(ctx context.Context, eventID string) ([]compliance.Action, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("action repo: nil db")
	}
	query := fmt.Sprintf(`
SELECT id, compliance_event_id, actor, action_type, reason, notes, created_at
FROM %s
WHERE compliance_event_id = $1
ORDER BY created_at ASC, id ASC`, r.table)

	rows, err := r.db.QueryContext(ctx, query, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var actions []compliance.Action
	for rows.Next() {
		var (
			action compliance.Action
			reason sql.NullString
			notes  sql.NullString
		)
		if err := rows.Scan(
			&action.ID,
			&action.EventID,
			&action.Actor,
			&action.Type,
			&reason,
			&notes,
			&action.CreatedAt,
		); err != nil {
			return nil, err
		}
		action.Reason = reason.String
		action.Notes = notes.String
		action.CreatedAt = action.CreatedAt.UTC()
		actions = append(actions, action)
	}
	return actions, rows.Err()
}
