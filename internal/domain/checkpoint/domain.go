package checkpoint

import "time"

// Checkpoint is the single-row sync progress record. A non-empty
// Cursor means the last cycle died mid-stream and the next one should
// resume there instead of starting over.
type Checkpoint struct {
	LastSuccess time.Time
	LastError   string
	Cursor      string
	UpdatedAt   time.Time
}

const (
	StatusHealthy  = "healthy"
	StatusDegraded = "degraded"
)

// Status is the externally visible health payload.
type Status struct {
	Status      string    `json:"status"`
	LastSuccess time.Time `json:"last_success_timestamp"`
	LastError   string    `json:"last_error,omitempty"`
}

// Health derives the status from the checkpoint: healthy while the
// last successful sync is at most twice the poll interval ago.
func Health(cp *Checkpoint, interval time.Duration, now time.Time) Status {
	if cp == nil {
		return Status{Status: StatusDegraded}
	}
	st := Status{
		Status:      StatusDegraded,
		LastSuccess: cp.LastSuccess,
		LastError:   cp.LastError,
	}
	if !cp.LastSuccess.IsZero() && now.Sub(cp.LastSuccess) <= 2*interval {
		st.Status = StatusHealthy
	}
	return st
}
