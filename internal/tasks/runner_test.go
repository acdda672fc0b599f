package tasks

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunnerExecutesSubmittedTask(t *testing.T) {
	r := NewRunner(8, 3, time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)

	done := make(chan struct{})
	ok := r.Submit("test.task", func(context.Context) error {
		close(done)
		return nil
	})
	require.True(t, ok)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}
}

func TestRunnerRetriesUntilSuccess(t *testing.T) {
	r := NewRunner(8, 3, time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)

	var calls atomic.Int32
	done := make(chan struct{})
	r.Submit("flaky.task", func(context.Context) error {
		if calls.Add(1) < 3 {
			return errors.New("transient")
		}
		close(done)
		return nil
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("task never succeeded")
	}
	assert.Equal(t, int32(3), calls.Load())
}

func TestRunnerGivesUpAfterAttempts(t *testing.T) {
	r := NewRunner(8, 3, time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r.Start(ctx)

	var calls atomic.Int32
	r.Submit("doomed.task", func(context.Context) error {
		calls.Add(1)
		return errors.New("permanent")
	})

	assert.Eventually(t, func() bool {
		return calls.Load() == 3
	}, time.Second, 5*time.Millisecond, "exactly the configured attempts run")

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, int32(3), calls.Load(), "no further attempts after giving up")
}

func TestSubmitDropsWhenQueueFull(t *testing.T) {
	// Runner never started: the queue fills and stays full.
	r := NewRunner(1, 1, time.Millisecond, nil)

	assert.True(t, r.Submit("first", func(context.Context) error { return nil }))
	assert.False(t, r.Submit("second", func(context.Context) error { return nil }),
		"a full queue rejects instead of blocking the caller")
}

func TestRunnerStopsOnContextCancel(t *testing.T) {
	r := NewRunner(8, 3, time.Millisecond, nil)
	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)

	cancel()

	waited := make(chan struct{})
	go func() {
		r.Wait()
		close(waited)
	}()

	select {
	case <-waited:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on cancellation")
	}
}
