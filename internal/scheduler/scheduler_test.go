package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached")
}

func TestJobTicksOnInterval(t *testing.T) {
	var ticks atomic.Int64
	r := NewRunner([]Job{{
		Name:     "counter",
		Interval: 5 * time.Millisecond,
		Fn: func(ctx context.Context) error {
			ticks.Add(1)
			return nil
		},
	}}, nil)

	go r.Run(context.Background())
	waitFor(t, r.IsRunning)
	waitFor(t, func() bool { return ticks.Load() >= 3 })

	r.Stop()
	assert.False(t, r.IsRunning())
}

func TestRunOnStart(t *testing.T) {
	var ticks atomic.Int64
	r := NewRunner([]Job{{
		Name:       "eager",
		Interval:   time.Hour,
		RunOnStart: true,
		Fn: func(ctx context.Context) error {
			ticks.Add(1)
			return nil
		},
	}}, nil)

	go r.Run(context.Background())
	waitFor(t, func() bool { return ticks.Load() == 1 })
	r.Stop()
}

func TestFailedTickKeepsLooping(t *testing.T) {
	var ticks atomic.Int64
	r := NewRunner([]Job{{
		Name:     "flaky",
		Interval: 5 * time.Millisecond,
		Fn: func(ctx context.Context) error {
			if ticks.Add(1) == 1 {
				return errors.New("upstream down")
			}
			return nil
		},
	}}, nil)

	go r.Run(context.Background())
	waitFor(t, func() bool { return ticks.Load() >= 3 })
	r.Stop()
}

func TestIndependentIntervals(t *testing.T) {
	var fast, slow atomic.Int64
	r := NewRunner([]Job{
		{
			Name:     "fast",
			Interval: 5 * time.Millisecond,
			Fn: func(ctx context.Context) error {
				fast.Add(1)
				return nil
			},
		},
		{
			Name:     "slow",
			Interval: time.Hour,
			Fn: func(ctx context.Context) error {
				slow.Add(1)
				return nil
			},
		},
	}, nil)

	go r.Run(context.Background())
	waitFor(t, func() bool { return fast.Load() >= 3 })
	r.Stop()
	assert.EqualValues(t, 0, slow.Load())
}

func TestContextCancelStops(t *testing.T) {
	r := NewRunner([]Job{{
		Name:     "idle",
		Interval: time.Hour,
		Fn:       func(ctx context.Context) error { return nil },
	}}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	waitFor(t, r.IsRunning)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("runner did not stop on context cancel")
	}
	assert.False(t, r.IsRunning())
}

func TestZeroIntervalJobSkipped(t *testing.T) {
	var ticks atomic.Int64
	r := NewRunner([]Job{{
		Name: "never",
		Fn: func(ctx context.Context) error {
			ticks.Add(1)
			return nil
		},
	}}, nil)

	go r.Run(context.Background())
	waitFor(t, r.IsRunning)
	r.Stop()
	assert.EqualValues(t, 0, ticks.Load())
}
