// Package callqueue serializes completion-API calls through one ordered
// queue so the per-minute budget is enforced globally, not per event.
package callqueue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/fairyhunter13/sensor-relay/internal/adapter/observability"
)

// ErrClosed is returned by Schedule after the queue has been closed.
var ErrClosed = errors.New("call queue closed")

// Thunk is a single scheduled call. It runs on the queue's worker
// goroutine with the submitting caller's context.
type Thunk func(ctx context.Context) (string, error)

type task struct {
	ctx  context.Context
	fn   Thunk
	done chan result
}

type result struct {
	value string
	err   error
}

// Queue runs submitted thunks strictly in submission order on one
// dedicated worker, spacing call starts at least minGap apart. A failed
// thunk surfaces only to its own waiter; the queue keeps draining.
type Queue struct {
	minGap time.Duration
	tasks  chan *task
	// stop unblocks senders waiting on a full buffer at close time.
	stop chan struct{}

	mu      sync.Mutex
	closed  bool
	wg      sync.WaitGroup
	senders sync.WaitGroup

	// lastStart is touched only by the worker goroutine.
	lastStart time.Time
	// now and sleep are swappable for tests.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a queue enforcing minGap between call starts and starts its
// worker. buffer bounds how many calls may wait before Schedule blocks.
func New(minGap time.Duration, buffer int) *Queue {
	if buffer <= 0 {
		buffer = 64
	}
	q := &Queue{
		minGap: minGap,
		tasks:  make(chan *task, buffer),
		stop:   make(chan struct{}),
		now:    time.Now,
		sleep:  sleepCtx,
	}
	q.wg.Add(1)
	go q.worker()
	return q
}

// Schedule submits fn and blocks until it has run or ctx is done.
// Abandoning the wait via ctx skips the thunk without consuming a
// rate-limit slot. A caller still waiting for buffer space when the
// queue closes gets ErrClosed.
func (q *Queue) Schedule(ctx context.Context, fn Thunk) (string, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return "", ErrClosed
	}
	// Registered under the lock so Close waits for this send to settle
	// before closing the channel.
	q.senders.Add(1)
	q.mu.Unlock()

	t := &task{ctx: ctx, fn: fn, done: make(chan result, 1)}
	enqueued := q.now()
	select {
	case q.tasks <- t:
		q.senders.Done()
	case <-ctx.Done():
		q.senders.Done()
		return "", ctx.Err()
	case <-q.stop:
		q.senders.Done()
		return "", ErrClosed
	}
	observability.CallQueueDepth.Inc()

	select {
	case res := <-t.done:
		observability.CallQueueWait.Observe(q.now().Sub(enqueued).Seconds())
		return res.value, res.err
	case <-ctx.Done():
		// The worker notices the dead context and skips the thunk.
		return "", ctx.Err()
	}
}

// Close stops intake, drains queued calls, and waits for the worker.
// The tasks channel is closed only after every in-flight send has
// settled; a send racing the stop signal lands in the buffer and is
// drained normally.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()
	close(q.stop)
	q.senders.Wait()
	close(q.tasks)
	q.wg.Wait()
}

func (q *Queue) worker() {
	defer q.wg.Done()
	for t := range q.tasks {
		observability.CallQueueDepth.Dec()
		if t.ctx.Err() != nil {
			t.done <- result{err: t.ctx.Err()}
			continue
		}
		if wait := q.minGap - q.now().Sub(q.lastStart); wait > 0 && !q.lastStart.IsZero() {
			if err := q.sleep(t.ctx, wait); err != nil {
				// Caller gave up during the pacing delay; the slot is
				// not consumed and the next call is not pushed back.
				t.done <- result{err: err}
				continue
			}
		}
		q.lastStart = q.now()
		value, err := t.fn(t.ctx)
		if err != nil {
			slog.Debug("scheduled call failed", slog.Any("error", err))
		}
		t.done <- result{value: value, err: err}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
