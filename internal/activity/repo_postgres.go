package activity

import (
	"context"
	"database/sql"
	"errors"

	"outreach-platform/pkg/utils"
)

// PostgresRepo persists activity events to the activity_events table.
//
// Insert-only: the table should carry a policy (or trigger) preventing
// UPDATE/DELETE so the feed stays trustworthy.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) (*PostgresRepo, error) {
	if db == nil {
		return nil, errors.New("activity: db is required")
	}
	return &PostgresRepo{db: db}, nil
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	return utils.WithTx(ctx, r.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO activity_events
				(id, user_id, level, group_id, target_id, batch_id, message, duration_ms, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			e.ID, e.UserID, string(e.Level), e.GroupID, e.TargetID, e.BatchID,
			e.Message, e.DurationMS, e.CreatedAt,
		)
		return err
	})
}
