// Copyright (c) 2026 Madalin Gabriel Ignisca <hi@madalin.me>
// Copyright (c) 2026 Vlah Software House SRL <contact@vlah.sh>
// All rights reserved. See LICENSE for details.

// Package jobs runs deferred work on a fixed pool of workers. A job that
// fails with a retryable error is re-enqueued with exponential backoff
// until it succeeds or runs out of attempts.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrStopped is returned by Enqueue once the queue has been stopped.
	ErrStopped = errors.New("jobs: queue stopped")

	// ErrFull is returned by Enqueue when the buffer is full.
	ErrFull = errors.New("jobs: queue full")
)

// Job is one unit of deferred work. Run must be safe to call again after
// a failure.
type Job struct {
	Name string
	Run  func(ctx context.Context) error
}

type attempt struct {
	job Job
	n   int
}

// Options configures a Queue. Zero values fall back to defaults.
type Options struct {
	Workers     int
	MaxAttempts int
	Buffer      int
	Backoff     time.Duration // delay before the first retry, doubled each time
	MaxBackoff  time.Duration

	// Retryable decides whether a failed job is tried again. Nil retries
	// every error.
	Retryable func(error) bool
}

// Queue is a bounded in-process job queue.
type Queue struct {
	opts Options
	ch   chan attempt

	mu      sync.Mutex
	stopped bool
	timers  map[*time.Timer]struct{}

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewQueue creates a queue. Call Start to launch the workers.
func NewQueue(opts Options) *Queue {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.Buffer < 1 {
		opts.Buffer = 256
	}
	if opts.Backoff <= 0 {
		opts.Backoff = time.Second
	}
	if opts.MaxBackoff < opts.Backoff {
		opts.MaxBackoff = time.Minute
	}
	return &Queue{
		opts:   opts,
		ch:     make(chan attempt, opts.Buffer),
		timers: make(map[*time.Timer]struct{}),
	}
}

// Start launches the workers. Jobs run with a context derived from ctx,
// cancelled by Stop.
func (q *Queue) Start(ctx context.Context) {
	q.ctx, q.cancel = context.WithCancel(ctx)
	for i := 0; i < q.opts.Workers; i++ {
		q.wg.Add(1)
		go q.work()
	}
	slog.Info("job queue started", "workers", q.opts.Workers)
}

// Enqueue schedules a job. It never blocks.
func (q *Queue) Enqueue(job Job) error {
	return q.push(attempt{job: job, n: 1})
}

func (q *Queue) push(a attempt) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return ErrStopped
	}
	select {
	case q.ch <- a:
		return nil
	default:
		return fmt.Errorf("%w: %s", ErrFull, a.job.Name)
	}
}

// Stop refuses new jobs, drops pending retries and waits for running and
// already queued jobs to finish or for ctx to expire.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return nil
	}
	q.stopped = true
	for t := range q.timers {
		t.Stop()
	}
	q.timers = nil
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if q.cancel != nil {
			q.cancel()
		}
		return nil
	case <-ctx.Done():
		if q.cancel != nil {
			q.cancel()
		}
		<-done
		return ctx.Err()
	}
}

func (q *Queue) work() {
	defer q.wg.Done()
	for a := range q.ch {
		q.run(a)
	}
}

func (q *Queue) run(a attempt) {
	start := time.Now()
	err := q.safeRun(a.job)
	if err == nil {
		slog.Debug("job done", "job", a.job.Name, "attempt", a.n, "duration", time.Since(start))
		return
	}

	if a.n >= q.opts.MaxAttempts || (q.opts.Retryable != nil && !q.opts.Retryable(err)) {
		slog.Error("job failed", "job", a.job.Name, "attempt", a.n, "error", err)
		return
	}

	delay := q.backoff(a.n)
	slog.Warn("job failed, retrying",
		"job", a.job.Name,
		"attempt", a.n,
		"retry_in", delay,
		"error", err,
	)
	q.retryAfter(attempt{job: a.job, n: a.n + 1}, delay)
}

func (q *Queue) safeRun(job Job) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job %s panicked: %v", job.Name, rec)
		}
	}()
	return job.Run(q.ctx)
}

func (q *Queue) backoff(n int) time.Duration {
	d := q.opts.Backoff
	for i := 1; i < n; i++ {
		d *= 2
		if d >= q.opts.MaxBackoff {
			return q.opts.MaxBackoff
		}
	}
	return d
}

func (q *Queue) retryAfter(a attempt, delay time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.stopped {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(delay, func() {
		q.mu.Lock()
		if q.timers != nil {
			delete(q.timers, t)
		}
		q.mu.Unlock()

		if err := q.push(a); err != nil {
			slog.Error("job retry dropped", "job", a.job.Name, "attempt", a.n, "error", err)
		}
	})
	q.timers[t] = struct{}{}
}
