package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNewInvalidSpec(t *testing.T) {
	for _, spec := range []string{"", "every 6h", "@every nope", "61 * * * *"} {
		_, err := New(spec, quietLogger())
		assert.Error(t, err, "spec %q", spec)
	}
}

func TestNewAcceptsDescriptors(t *testing.T) {
	for _, spec := range []string{"@every 6h", "@daily", "0 */6 * * *"} {
		_, err := New(spec, quietLogger())
		assert.NoError(t, err, "spec %q", spec)
	}
}

func TestScheduleReplacesJob(t *testing.T) {
	s, err := New("@hourly", quietLogger())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Schedule(ctx, func(context.Context) error { return nil }))
	require.NoError(t, s.Schedule(ctx, func(context.Context) error { return nil }))

	assert.Len(t, s.cron.Entries(), 1)
}

func TestNextEmptyWhenNotRunning(t *testing.T) {
	s, err := New("@hourly", quietLogger())
	require.NoError(t, err)
	assert.Equal(t, "", s.Next())
}

func TestRunSkipsWhenContextDone(t *testing.T) {
	s, err := New("@hourly", quietLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var called bool
	s.run(ctx, func(context.Context) error {
		called = true
		return nil
	})
	assert.False(t, called)
}

func TestRunContinuesAfterFailure(t *testing.T) {
	s, err := New("@every 1s", quietLogger())
	require.NoError(t, err)

	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, s.Schedule(ctx, func(context.Context) error {
		if calls.Add(1) >= 2 {
			cancel()
		}
		return errors.New("feed unavailable")
	}))

	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
}
