package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"queuemigrate/internal/metrics"
	"queuemigrate/internal/queue"
	"queuemigrate/internal/storage"

	"go.uber.org/zap"
)

// Pool drains a shared queue with a fixed number of workers
type Pool struct {
	size      int
	config    Config
	queue     queue.Queue
	srcClient storage.Source
	dstClient storage.Destination
	metrics   *metrics.Collector
	logger    *zap.Logger
}

type runStats struct {
	migrated atomic.Int64
	requeued atomic.Int64
	alive    atomic.Int64
}

// NewPool creates a new worker pool
func NewPool(
	size int,
	config Config,
	q queue.Queue,
	srcClient storage.Source,
	dstClient storage.Destination,
	metricsCollector *metrics.Collector,
	logger *zap.Logger,
) *Pool {
	return &Pool{
		size:      size,
		config:    config,
		queue:     q,
		srcClient: srcClient,
		dstClient: dstClient,
		metrics:   metricsCollector,
		logger:    logger,
	}
}

// Run starts the workers and blocks until every one of them has reached a
// terminal state. Cancelling ctx raises stop; workers finish the transfer in
// hand and exit at their next loop check. Transfer failures never fail Run;
// only queue failures are returned.
func (p *Pool) Run(ctx context.Context, stop *StopSignal) (Summary, error) {
	if p.config.AccessKey == "" || p.config.SecretKey == "" {
		p.logger.Error("Need to provide destination credentials")
		return Summary{}, ErrMissingCredentials
	}
	if p.size <= 0 {
		return Summary{}, fmt.Errorf("worker count must be positive, got %d", p.size)
	}

	// In-flight transfers and requeues must outlive the interrupt
	work := context.WithoutCancel(ctx)

	var (
		stats  runStats
		wg     sync.WaitGroup
		states = make([]State, p.size)
		errs   = make([]error, p.size)
		done   = make(chan struct{})
	)

	p.logger.Info("Start workers", zap.Int("workers", p.size))
	for i := 0; i < p.size; i++ {
		wg.Add(1)
		stats.alive.Add(1)
		go func(id int) {
			defer wg.Done()
			defer stats.alive.Add(-1)
			states[id], errs[id] = p.worker(work, id, stop, &stats)
		}(i)
	}

	go func() {
		wg.Wait()
		close(done)
	}()

	var tick <-chan time.Time
	if p.config.StatusInterval > 0 {
		ticker := time.NewTicker(p.config.StatusInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	interrupted := ctx.Done()
	for {
		select {
		case <-done:
			summary := Summary{
				States:   states,
				Migrated: stats.migrated.Load(),
				Requeued: stats.requeued.Load(),
			}
			p.report(work, &stats)
			p.logger.Info("All workers finished",
				zap.Int("done", summary.Count(StateDone)),
				zap.Int("stopped", summary.Count(StateStopped)),
				zap.Int("failed", summary.Count(StateFailed)),
				zap.Int64("migrated", summary.Migrated),
				zap.Int64("requeued", summary.Requeued),
			)
			return summary, errors.Join(errs...)

		case <-interrupted:
			interrupted = nil
			if stop.Set() {
				p.logger.Info("Sending stop signal")
			}

		case <-tick:
			p.report(work, &stats)
		}
	}
}

func (p *Pool) report(ctx context.Context, stats *runStats) {
	fields := []zap.Field{
		zap.Int64("alive", stats.alive.Load()),
		zap.Int64("migrated", stats.migrated.Load()),
		zap.Int64("requeued", stats.requeued.Load()),
	}

	n, err := p.queue.Len(ctx)
	if err != nil {
		p.logger.Warn("Failed to read queue length", zap.Error(err))
	} else {
		p.metrics.SetQueueLength(n)
		fields = append(fields, zap.Int64("queued", n))
	}

	p.logger.Info("Migration status", fields...)
}

func (p *Pool) worker(ctx context.Context, id int, stop *StopSignal, stats *runStats) (State, error) {
	logger := p.logger.With(zap.Int("worker_id", id))
	logger.Debug("Worker started")

	p.metrics.WorkerStarted()
	defer p.metrics.WorkerStopped()

	processor := &TaskProcessor{
		config:    p.config,
		srcClient: p.srcClient,
		dstClient: p.dstClient,
	}

	for {
		if stop.IsSet() {
			logger.Info("Worker stopped - stop signal")
			return StateStopped, nil
		}

		key, ok, err := p.queue.Pop(ctx)
		if err != nil {
			logger.Error("Failed to pop from queue", zap.Error(err))
			return StateFailed, fmt.Errorf("worker %d: %w", id, err)
		}
		if !ok {
			logger.Info("Worker finished - queue is empty")
			return StateDone, nil
		}

		start := time.Now()
		size, err := processor.Process(ctx, key)
		if err != nil {
			logger.Warn("Transfer failed, requeueing",
				zap.String("key", key),
				zap.Error(err),
			)

			if pushErr := p.queue.Push(ctx, key); pushErr != nil {
				// The identifier now exists nowhere but this log line
				logger.Error("Failed to requeue identifier",
					zap.String("key", key),
					zap.Error(pushErr),
				)
				return StateFailed, fmt.Errorf("worker %d: requeue %s: %w", id, key, pushErr)
			}

			stats.requeued.Add(1)
			p.metrics.IncRequeued()

			if p.config.RetryDelay > 0 {
				time.Sleep(p.config.RetryDelay)
			}
			continue
		}

		stats.migrated.Add(1)
		p.metrics.IncMigrated(size, time.Since(start))
		logger.Info("Uploaded",
			zap.String("key", key),
			zap.Int64("size", size),
			zap.Duration("duration", time.Since(start)),
		)
	}
}
