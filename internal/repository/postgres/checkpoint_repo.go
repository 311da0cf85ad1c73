package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"bizwatch/internal/domain/checkpoint"
)

var _ checkpoint.Repo = (*CheckpointRepo)(nil)

// CheckpointRepo keeps the single active sync checkpoint (id = 1).
type CheckpointRepo struct {
	db *DB
}

func NewCheckpointRepo(db *DB) *CheckpointRepo { return &CheckpointRepo{db: db} }

const (
	qCheckpointGet = `
SELECT last_success, last_error, cursor, updated_at
FROM sync_checkpoint
WHERE id = 1;
`

	qCheckpointCommit = `
INSERT INTO sync_checkpoint (id, last_success, last_error, cursor, updated_at)
VALUES (1, $1, '', '', now())
ON CONFLICT (id) DO UPDATE
SET last_success = EXCLUDED.last_success,
    last_error   = '',
    cursor       = '',
    updated_at   = now();
`

	qCheckpointFail = `
INSERT INTO sync_checkpoint (id, last_success, last_error, cursor, updated_at)
VALUES (1, NULL, $2, $1, now())
ON CONFLICT (id) DO UPDATE
SET last_error = $2,
    cursor     = $1,
    updated_at = now();
`
)

func (r *CheckpointRepo) Load(ctx context.Context) (*checkpoint.Checkpoint, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	var (
		cp          checkpoint.Checkpoint
		lastSuccess *time.Time
	)
	err := r.db.Pool.QueryRow(ctx, qCheckpointGet).
		Scan(&lastSuccess, &cp.LastError, &cp.Cursor, &cp.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return &checkpoint.Checkpoint{}, nil
		}
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	if lastSuccess != nil {
		cp.LastSuccess = *lastSuccess
	}
	return &cp, nil
}

func (r *CheckpointRepo) Commit(ctx context.Context, at time.Time) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.Pool.Exec(ctx, qCheckpointCommit, at); err != nil {
		return fmt.Errorf("commit checkpoint: %w", err)
	}
	return nil
}

func (r *CheckpointRepo) Fail(ctx context.Context, cursor, lastError string) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if _, err := r.db.Pool.Exec(ctx, qCheckpointFail, cursor, lastError); err != nil {
		return fmt.Errorf("fail checkpoint: %w", err)
	}
	return nil
}
