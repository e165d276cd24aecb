// SPDX-FileCopyrightText: 2026 the Meridian authors
//
// SPDX-License-Identifier: Apache-2.0

// Package worker drains the operation queue and advances the instance
// state machine. The pool wakes on LISTEN/NOTIFY and falls back to a
// poll ticker, so lost notifications only delay work, never drop it.
package worker

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/meridian-cloud/meridian/pkg/metrics"
	"github.com/meridian-cloud/meridian/pkg/operation"
	"github.com/meridian-cloud/meridian/pkg/store"
)

// DefaultPollInterval is the fallback wake-up cadence of the pool.
const DefaultPollInterval = time.Second

// Config tunes a Pool.
type Config struct {
	// Concurrency is the number of draining goroutines.
	Concurrency int
	// PollInterval is the fallback ticker period. Zero means
	// DefaultPollInterval.
	PollInterval time.Duration
}

// Pool claims operations and runs them through the dispatcher until its
// context is cancelled.
type Pool struct {
	queue      *operation.Queue
	dispatcher *operation.Dispatcher
	listener   *store.Listener
	store      *store.Store
	metrics    *metrics.Metrics
	log        logr.Logger
	cfg        Config

	wake chan struct{}
}

// NewPool assembles a pool. The listener may be nil, in which case the
// pool runs on the poll ticker alone.
func NewPool(queue *operation.Queue, dispatcher *operation.Dispatcher, listener *store.Listener, st *store.Store, m *metrics.Metrics, log logr.Logger, cfg Config) *Pool {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	return &Pool{
		queue:      queue,
		dispatcher: dispatcher,
		listener:   listener,
		store:      st,
		metrics:    m,
		log:        log.WithName("worker"),
		cfg:        cfg,
		wake:       make(chan struct{}, 1),
	}
}

// Run blocks until ctx is cancelled. Workers finish their in-flight
// operation before returning; abandoned rows are recovered by other
// workers after the staleness horizon.
func (p *Pool) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if p.listener != nil {
		g.Go(func() error { return p.listen(ctx) })
	}
	g.Go(func() error { return p.observeQueue(ctx) })
	for i := 0; i < p.cfg.Concurrency; i++ {
		g.Go(func() error { return p.work(ctx) })
	}

	p.log.Info("worker pool started", "concurrency", p.cfg.Concurrency, "pollInterval", p.cfg.PollInterval)
	err := g.Wait()
	if err != nil && ctx.Err() != nil {
		err = nil
	}
	p.log.Info("worker pool stopped")
	return err
}

func (p *Pool) listen(ctx context.Context) error {
	for {
		if _, err := p.listener.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		select {
		case p.wake <- struct{}{}:
		default:
		}
	}
}

func (p *Pool) work(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		p.drain(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-p.wake:
		case <-ticker.C:
		}
	}
}

// drain claims and executes operations until the queue is empty or ctx is
// done.
func (p *Pool) drain(ctx context.Context) {
	for ctx.Err() == nil {
		op, err := p.queue.Claim(ctx)
		if err != nil {
			if ctx.Err() == nil {
				p.log.Error(err, "could not claim operation")
			}
			return
		}
		if op == nil {
			return
		}
		p.process(ctx, op)
	}
}

func (p *Pool) process(ctx context.Context, op *operation.Operation) {
	log := p.log.WithValues("operation", op.Name(), "opType", op.OpType, "attempt", op.AttemptCount)
	start := time.Now()
	output, err := p.dispatcher.Dispatch(ctx, op)
	p.metrics.OperationDuration.WithLabelValues(string(op.OpType)).Observe(time.Since(start).Seconds())

	if err == nil {
		if err := p.queue.MarkSucceeded(ctx, op.ID, output); err != nil {
			log.Error(err, "could not record success")
			return
		}
		p.metrics.OperationResults.WithLabelValues(string(op.OpType), "succeeded").Inc()
		log.V(1).Info("operation succeeded")
		return
	}

	ee := operation.Classify(err)
	if ee.Kind.Retryable() && op.AttemptCount < op.MaxAttempts {
		delay := operation.BackoffFor(op.OpType).Delay(op.AttemptCount)
		if err := p.queue.ScheduleRetry(ctx, op.ID, delay, string(ee.Kind), ee.Message); err != nil {
			log.Error(err, "could not schedule retry")
			return
		}
		p.metrics.OperationResults.WithLabelValues(string(op.OpType), "retried").Inc()
		log.Info("operation will retry", "kind", ee.Kind, "delay", delay, "error", ee.Message)
		return
	}

	code := string(ee.Kind)
	message := ee.Message
	if ee.Kind.Retryable() {
		// Retryable failure with no budget left.
		code = operation.ErrCodeExhaustedRetries
	}
	if err := p.queue.MarkFailed(ctx, op.ID, code, message); err != nil {
		log.Error(err, "could not record failure")
		return
	}
	p.metrics.OperationResults.WithLabelValues(string(op.OpType), "failed").Inc()
	log.Info("operation failed", "code", code, "error", message)
}

// observeQueue refreshes the queue depth gauge.
func (p *Pool) observeQueue(ctx context.Context) error {
	ticker := time.NewTicker(10 * p.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		var rows []struct {
			Status string `db:"status"`
			Count  int    `db:"count"`
		}
		err := p.store.DB().SelectContext(ctx, &rows,
			`SELECT status, count(*) AS count FROM operations GROUP BY status`)
		if err != nil {
			if ctx.Err() == nil {
				p.log.Error(err, "could not read queue depth")
			}
			continue
		}
		p.metrics.QueueDepth.Reset()
		for _, r := range rows {
			p.metrics.QueueDepth.WithLabelValues(r.Status).Set(float64(r.Count))
		}
	}
}
