package scheduler_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alejandrodnm/polyweather/internal/application/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister_RejectsBadSchedule(t *testing.T) {
	s := scheduler.New(context.Background())
	err := s.Register("calibration", "every morning", func(context.Context) error { return nil })
	require.Error(t, err)
	assert.Contains(t, err.Error(), "calibration")
	assert.Empty(t, s.Jobs())
}

func TestRegister_Duplicate(t *testing.T) {
	s := scheduler.New(context.Background())
	job := func(context.Context) error { return nil }
	require.NoError(t, s.Register("calibration", "0 6 * * *", job))
	assert.Error(t, s.Register("calibration", "@hourly", job))
}

func TestRunNow(t *testing.T) {
	var calls atomic.Int32
	boom := errors.New("sidecar down")

	s := scheduler.New(context.Background())
	require.NoError(t, s.Register("ok", "0 6 * * *", func(context.Context) error {
		calls.Add(1)
		return nil
	}))
	require.NoError(t, s.Register("failing", "@daily", func(context.Context) error { return boom }))

	require.NoError(t, s.RunNow("ok"))
	assert.Equal(t, int32(1), calls.Load())
	assert.ErrorIs(t, s.RunNow("failing"), boom)
	assert.Error(t, s.RunNow("missing"))
	assert.Equal(t, []string{"failing", "ok"}, s.Jobs())
}

func TestRunNow_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	s := scheduler.New(ctx)
	require.NoError(t, s.Register("calibration", "@daily", func(context.Context) error {
		calls.Add(1)
		return nil
	}))
	assert.ErrorIs(t, s.RunNow("calibration"), context.Canceled)
	assert.Zero(t, calls.Load())
}

func TestStart_SchedulesAndFires(t *testing.T) {
	var calls atomic.Int32
	s := scheduler.New(context.Background())
	require.NoError(t, s.Register("tick", "@every 1s", func(context.Context) error {
		calls.Add(1)
		return nil
	}))

	s.Start()
	defer s.Stop()

	next := s.Next("tick")
	assert.False(t, next.IsZero())
	assert.WithinDuration(t, time.Now().Add(time.Second), next, 2*time.Second)
	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, 3*time.Second, 50*time.Millisecond)
}
