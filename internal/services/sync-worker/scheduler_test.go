package sync_worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"bizwatch/internal/domain/checkpoint"
)

type blockingCycle struct {
	starts  atomic.Int32
	release chan struct{}
}

func (b *blockingCycle) RunCycle(ctx context.Context) error {
	b.starts.Add(1)
	select {
	case <-b.release:
	case <-ctx.Done():
	}
	return nil
}

func TestRunner_SkipsTicksWhileBusy(t *testing.T) {
	cyc := &blockingCycle{release: make(chan struct{})}
	r := &Runner{
		Log:         zap.NewNop(),
		Engine:      cyc,
		Checkpoints: &memCheckpoints{},
		Interval:    10 * time.Millisecond,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	// The first cycle starts immediately and blocks. Several ticks pass
	// while it runs; none of them may start a second cycle.
	require.Eventually(t, func() bool { return cyc.starts.Load() == 1 },
		time.Second, time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	require.Equal(t, int32(1), cyc.starts.Load())

	// Released, the next tick starts a new cycle.
	close(cyc.release)
	require.Eventually(t, func() bool { return cyc.starts.Load() >= 2 },
		time.Second, time.Millisecond)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestRunner_WaitsForInFlightCycleOnShutdown(t *testing.T) {
	finished := make(chan struct{})
	cyc := cycleFunc(func(ctx context.Context) error {
		<-ctx.Done()
		time.Sleep(30 * time.Millisecond)
		close(finished)
		return ctx.Err()
	})
	r := &Runner{
		Log:         zap.NewNop(),
		Engine:      cyc,
		Checkpoints: &memCheckpoints{},
		Interval:    time.Hour,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	require.ErrorIs(t, <-done, context.Canceled)
	select {
	case <-finished:
	default:
		t.Fatal("Run returned before the in-flight cycle finished")
	}
}

type cycleFunc func(ctx context.Context) error

func (f cycleFunc) RunCycle(ctx context.Context) error { return f(ctx) }

func TestRunner_Health(t *testing.T) {
	now := time.Now().UTC()
	cps := &memCheckpoints{}
	r := &Runner{
		Log:         zap.NewNop(),
		Engine:      cycleFunc(func(context.Context) error { return nil }),
		Checkpoints: cps,
		Interval:    10 * time.Minute,
	}

	t.Run("recent sync is healthy", func(t *testing.T) {
		cps.cp = checkpoint.Checkpoint{LastSuccess: now.Add(-time.Minute)}
		payload, ok := r.Health(context.Background())
		require.True(t, ok)
		st := payload.(checkpoint.Status)
		require.Equal(t, checkpoint.StatusHealthy, st.Status)
	})

	t.Run("stale sync is degraded", func(t *testing.T) {
		cps.cp = checkpoint.Checkpoint{
			LastSuccess: now.Add(-time.Hour),
			LastError:   "fetch page: status 502",
		}
		payload, ok := r.Health(context.Background())
		require.False(t, ok)
		st := payload.(checkpoint.Status)
		require.Equal(t, checkpoint.StatusDegraded, st.Status)
		require.Equal(t, "fetch page: status 502", st.LastError)
	})

	t.Run("never synced is degraded", func(t *testing.T) {
		cps.cp = checkpoint.Checkpoint{}
		_, ok := r.Health(context.Background())
		require.False(t, ok)
	})
}
