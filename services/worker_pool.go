// Package services holds the infrastructure services behind the payment
// domain: background jobs, notification delivery, health and rate limits.
package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/NomadCrew/nomad-crew-payments/config"
	"github.com/NomadCrew/nomad-crew-payments/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// jobTimeout bounds a single attempt; processor and email calls finish well within it.
const jobTimeout = 30 * time.Second

const (
	baseRetryDelay = 200 * time.Millisecond
	maxRetryDelay  = 5 * time.Second
)

// Job is a unit of background work, e.g. an email or an automatic refund.
type Job struct {
	// Name identifies the job in logs, e.g. "refund:<id>".
	Name    string
	Execute func(ctx context.Context) error
	// MaxAttempts overrides the pool default when positive. Jobs that are
	// retried must be idempotent.
	MaxAttempts int
}

// WorkerPool runs jobs on a fixed number of goroutines fed by a bounded
// queue. Submitting never blocks: a full queue drops the job.
type WorkerPool struct {
	jobQueue chan Job
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *zap.SugaredLogger
	metrics  *workerPoolMetrics
	config   config.WorkerPoolConfig

	// mu guards running and the queue's closed state.
	mu      sync.RWMutex
	running bool
	closed  bool
}

type workerPoolMetrics struct {
	queueDepth    prometheus.Gauge
	activeWorkers prometheus.Gauge
	completedJobs prometheus.Counter
	droppedJobs   prometheus.Counter
	retriedJobs   prometheus.Counter
	errorCount    prometheus.Counter
	jobDuration   prometheus.Histogram
}

func newWorkerPoolMetrics(reg prometheus.Registerer) *workerPoolMetrics {
	factory := promauto.With(reg)
	return &workerPoolMetrics{
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "payment_worker_pool_queue_depth",
			Help: "Jobs waiting in the background queue",
		}),
		activeWorkers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "payment_worker_pool_active_workers",
			Help: "Workers currently running a job",
		}),
		completedJobs: factory.NewCounter(prometheus.CounterOpts{
			Name: "payment_worker_pool_completed_jobs_total",
			Help: "Jobs that ran to completion, successful or not",
		}),
		droppedJobs: factory.NewCounter(prometheus.CounterOpts{
			Name: "payment_worker_pool_dropped_jobs_total",
			Help: "Jobs dropped because the queue was full or closed",
		}),
		retriedJobs: factory.NewCounter(prometheus.CounterOpts{
			Name: "payment_worker_pool_retries_total",
			Help: "Failed attempts that were retried",
		}),
		errorCount: factory.NewCounter(prometheus.CounterOpts{
			Name: "payment_worker_pool_errors_total",
			Help: "Jobs that failed on their last attempt",
		}),
		jobDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "payment_worker_pool_job_duration_seconds",
			Help:    "Time taken to execute jobs, retries included",
			Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}),
	}
}

// PoolOption configures a WorkerPool.
type PoolOption func(*poolOptions)

type poolOptions struct {
	registerer prometheus.Registerer
}

// WithRegisterer registers the pool metrics on reg instead of the default
// registry. Each pool needs its own registry.
func WithRegisterer(reg prometheus.Registerer) PoolOption {
	return func(o *poolOptions) { o.registerer = reg }
}

// NewWorkerPool creates a pool. Jobs are accepted once Start has been called.
func NewWorkerPool(cfg config.WorkerPoolConfig, opts ...PoolOption) *WorkerPool {
	o := poolOptions{registerer: prometheus.DefaultRegisterer}
	for _, opt := range opts {
		opt(&o)
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &WorkerPool{
		jobQueue: make(chan Job, cfg.QueueSize),
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger.Named("worker-pool"),
		metrics:  newWorkerPoolMetrics(o.registerer),
		config:   cfg,
	}
}

// Start launches the workers. Later calls are no-ops.
func (wp *WorkerPool) Start() {
	wp.mu.Lock()
	defer wp.mu.Unlock()

	if wp.running || wp.closed {
		wp.logger.Warn("Worker pool already started")
		return
	}
	wp.running = true

	wp.logger.Infow("Starting worker pool",
		"maxWorkers", wp.config.MaxWorkers,
		"queueSize", wp.config.QueueSize)

	for i := 0; i < wp.config.MaxWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// worker drains the queue until it is closed.
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()
	for job := range wp.jobQueue {
		wp.executeJob(id, job)
	}
	wp.logger.Debugw("Worker stopped", "workerId", id)
}

func (wp *WorkerPool) executeJob(workerID int, job Job) {
	wp.metrics.activeWorkers.Inc()
	wp.metrics.queueDepth.Dec()
	defer wp.metrics.activeWorkers.Dec()

	attempts := job.MaxAttempts
	if attempts <= 0 {
		attempts = wp.config.MaxAttempts
	}

	start := time.Now()
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = wp.runAttempt(job); err == nil {
			break
		}
		if attempt == attempts || wp.ctx.Err() != nil {
			break
		}

		delay := retryDelay(attempt)
		wp.logger.Warnw("Job attempt failed, retrying",
			"job", job.Name,
			"workerId", workerID,
			"attempt", attempt,
			"retryIn", delay,
			"error", err)
		wp.metrics.retriedJobs.Inc()

		select {
		case <-time.After(delay):
		case <-wp.ctx.Done():
		}
	}

	if err != nil {
		wp.logger.Errorw("Job execution failed",
			"job", job.Name,
			"workerId", workerID,
			"error", err,
			"duration", time.Since(start))
		wp.metrics.errorCount.Inc()
	} else {
		wp.logger.Debugw("Job completed", "job", job.Name, "workerId", workerID, "duration", time.Since(start))
	}

	wp.metrics.jobDuration.Observe(time.Since(start).Seconds())
	wp.metrics.completedJobs.Inc()
}

// runAttempt runs the job once. A panic becomes an error.
func (wp *WorkerPool) runAttempt(job Job) (err error) {
	ctx, cancel := context.WithTimeout(wp.ctx, jobTimeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panicked: %v", r)
		}
	}()
	return job.Execute(ctx)
}

func retryDelay(attempt int) time.Duration {
	delay := baseRetryDelay << (attempt - 1)
	if delay <= 0 || delay > maxRetryDelay {
		return maxRetryDelay
	}
	return delay
}

// Submit queues a job without blocking. It returns false when the job was
// dropped because the queue is full or the pool is shut down.
func (wp *WorkerPool) Submit(job Job) bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()

	if wp.closed {
		wp.metrics.droppedJobs.Inc()
		wp.logger.Warnw("Job dropped, pool is shut down", "job", job.Name)
		return false
	}

	select {
	case wp.jobQueue <- job:
		wp.metrics.queueDepth.Inc()
		wp.logger.Debugw("Job submitted", "job", job.Name)
		return true
	default:
		wp.metrics.droppedJobs.Inc()
		wp.logger.Warnw("Job dropped, queue full", "job", job.Name, "queueSize", wp.config.QueueSize)
		return false
	}
}

// Enqueue adapts Submit to the job queue the payment services depend on.
// Payment work runs once; a failure is left for an explicit retry.
func (wp *WorkerPool) Enqueue(name string, fn func(ctx context.Context) error) bool {
	return wp.Submit(Job{Name: name, Execute: fn, MaxAttempts: 1})
}

// EnqueueDelivery queues a notification delivery, retried up to the
// configured attempts.
func (wp *WorkerPool) EnqueueDelivery(name string, fn func(ctx context.Context) error) bool {
	return wp.Submit(Job{Name: name, Execute: fn})
}

// Shutdown stops accepting jobs and waits for queued and running ones. When
// ctx expires first, running jobs see their context cancelled and ctx.Err()
// is returned.
func (wp *WorkerPool) Shutdown(ctx context.Context) error {
	wp.mu.Lock()
	if wp.closed {
		wp.mu.Unlock()
		return nil
	}
	wp.closed = true
	wasRunning := wp.running
	wp.running = false
	close(wp.jobQueue)
	wp.mu.Unlock()

	if !wasRunning {
		wp.cancel()
		return nil
	}

	wp.logger.Infow("Shutting down worker pool", "queued", len(wp.jobQueue))

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		wp.cancel()
		wp.logger.Info("Worker pool shutdown complete")
		return nil
	case <-ctx.Done():
		wp.cancel()
		wp.logger.Warn("Worker pool shutdown timed out, cancelling running jobs")
		return ctx.Err()
	}
}

// QueueDepth returns the number of jobs waiting in the queue.
func (wp *WorkerPool) QueueDepth() int {
	return len(wp.jobQueue)
}

func (wp *WorkerPool) IsRunning() bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	return wp.running
}

// QueueCapacity returns the maximum number of queued jobs.
func (wp *WorkerPool) QueueCapacity() int {
	return cap(wp.jobQueue)
}
