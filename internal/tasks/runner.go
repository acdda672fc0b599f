// Package tasks runs queued side effects off the request path. Trade
// responses never wait on history appends or leaderboard refreshes;
// those run here with retries, and exhausted retries are logged and
// counted rather than silently dropped.
package tasks

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/stonkstreet/stonkstreet/internal/metrics"
)

// Submitter accepts background work. The game service depends on this
// rather than on the concrete runner.
type Submitter interface {
	Submit(name string, fn func(ctx context.Context) error) bool
}

type task struct {
	id   string
	name string
	fn   func(ctx context.Context) error
}

// Runner is a bounded single-worker queue. One worker keeps same-user
// journal appends ordered; the queue size bounds memory when the
// substrate is slow.
type Runner struct {
	queue    chan task
	attempts int
	backoff  time.Duration
	mx       *metrics.Metrics
	wg       sync.WaitGroup
}

// NewRunner sizes the queue and retry policy. attempts <= 0 selects 3;
// backoff <= 0 selects 250ms.
func NewRunner(queueSize, attempts int, backoff time.Duration, mx *metrics.Metrics) *Runner {
	if queueSize <= 0 {
		queueSize = 256
	}
	if attempts <= 0 {
		attempts = 3
	}
	if backoff <= 0 {
		backoff = 250 * time.Millisecond
	}
	return &Runner{
		queue:    make(chan task, queueSize),
		attempts: attempts,
		backoff:  backoff,
		mx:       mx,
	}
}

// Start launches the worker; it drains until ctx is done.
func (r *Runner) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-r.queue:
				r.run(ctx, t)
			}
		}
	}()
}

// Wait blocks until the worker exits after ctx cancellation.
func (r *Runner) Wait() {
	r.wg.Wait()
}

// Submit queues fn, reporting false when the queue is full. A full
// queue drops the task loudly: logged and counted, never blocking the
// caller.
func (r *Runner) Submit(name string, fn func(ctx context.Context) error) bool {
	t := task{id: uuid.NewString()[:8], name: name, fn: fn}
	select {
	case r.queue <- t:
		return true
	default:
		log.Error().Str("task", name).Str("id", t.id).Msg("task queue full, dropping task")
		r.mx.TaskDropped()
		return false
	}
}

func (r *Runner) run(ctx context.Context, t task) {
	var err error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		if err = t.fn(ctx); err == nil {
			return
		}
		log.Warn().Err(err).
			Str("task", t.name).
			Str("id", t.id).
			Int("attempt", attempt).
			Msg("task attempt failed")

		if attempt == r.attempts {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(r.backoff * time.Duration(attempt)):
		}
	}

	log.Error().Err(err).Str("task", t.name).Str("id", t.id).Msg("task failed after all retries")
	r.mx.TaskFailed(t.name)
}
