package checkpoint

import (
	"context"
	"time"
)

type Repo interface {
	// Load returns the checkpoint, or a zero-value one when the worker
	// has never run.
	Load(ctx context.Context) (*Checkpoint, error)
	// Commit records a fully successful cycle and clears cursor and error.
	Commit(ctx context.Context, at time.Time) error
	// Fail records a mid-cycle failure: where to resume and why. The
	// last success timestamp is preserved.
	Fail(ctx context.Context, cursor, lastError string) error
}
