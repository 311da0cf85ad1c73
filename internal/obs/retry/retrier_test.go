package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestExpoJitter_GrowsAndCaps(t *testing.T) {
	b := ExpoJitter{Base: 10 * time.Millisecond, Max: 50 * time.Millisecond}

	require.Equal(t, 10*time.Millisecond, b.Next(0))
	require.Equal(t, 20*time.Millisecond, b.Next(1))
	require.Equal(t, 40*time.Millisecond, b.Next(2))
	require.Equal(t, 50*time.Millisecond, b.Next(3))
	require.Equal(t, 50*time.Millisecond, b.Next(10))
	require.Equal(t, 10*time.Millisecond, b.Next(-1))
}

func TestExpoJitter_JitterStaysInBand(t *testing.T) {
	b := ExpoJitter{Base: 100 * time.Millisecond, Max: time.Second, Jitter: 0.2}
	for i := 0; i < 50; i++ {
		d := b.Next(1)
		require.GreaterOrEqual(t, d, 160*time.Millisecond)
		require.LessOrEqual(t, d, 240*time.Millisecond)
	}
}

func TestDo_StopsAfterAttempts(t *testing.T) {
	var exhausted error
	p := Policy{
		Name:      "test_op",
		Attempts:  3,
		Backoff:   ExpoJitter{Base: time.Millisecond, Max: time.Millisecond},
		OnExhaust: func(lastErr error) { exhausted = lastErr },
	}

	calls := 0
	boom := errors.New("boom")
	err := Do(context.Background(), func() error {
		calls++
		return boom
	}, p)
	require.ErrorIs(t, err, boom)
	require.Equal(t, 3, calls)
	require.ErrorIs(t, exhausted, boom)
}

func TestDo_FirstSuccessWins(t *testing.T) {
	p := Policy{
		Name:     "test_op",
		Attempts: 5,
		Backoff:  ExpoJitter{Base: time.Millisecond, Max: time.Millisecond},
	}

	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		if calls < 3 {
			return errors.New("boom")
		}
		return nil
	}, p)
	require.NoError(t, err)
	require.Equal(t, 3, calls)
}

func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	fatal := errors.New("fatal")
	p := Policy{
		Name:      "test_op",
		Attempts:  5,
		Backoff:   ExpoJitter{Base: time.Millisecond, Max: time.Millisecond},
		Retryable: func(err error) bool { return !errors.Is(err, fatal) },
	}

	calls := 0
	err := Do(context.Background(), func() error {
		calls++
		return fatal
	}, p)
	require.ErrorIs(t, err, fatal)
	require.Equal(t, 1, calls)
}

func TestDo_RespectsCancellation(t *testing.T) {
	p := Policy{
		Name:     "test_op",
		Attempts: 100,
		Backoff:  ExpoJitter{Base: time.Hour, Max: time.Hour},
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := Do(ctx, func() error { return errors.New("boom") }, p)
	require.ErrorIs(t, err, context.Canceled)
	require.Less(t, time.Since(start), time.Second)
}
