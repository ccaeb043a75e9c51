package sensor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/koios/sensor-bridge/pkg/models"
)

// ErrPoolShuttingDown is returned by Submit once Stop has been called.
var ErrPoolShuttingDown = errors.New("worker pool is shutting down")

// ObserveFunc produces the result for a single observe request.
type ObserveFunc func(ctx context.Context, req *models.ObserveRequest) (*models.ObserveResult, error)

// ObserveJob represents an observe request to be processed by a worker
type ObserveJob struct {
	Ctx     context.Context
	Request *models.ObserveRequest
	Result  chan *JobResult
}

// JobResult contains the result of an observe job
type JobResult struct {
	Result *models.ObserveResult
	Error  error
}

// WorkerPool manages a pool of observe workers for concurrent processing
type WorkerPool struct {
	workers  int
	jobQueue chan *ObserveJob
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	logger   *zap.Logger
	observe  ObserveFunc
	timeout  time.Duration
	running  atomic.Bool
	stopOnce sync.Once
}

// NewWorkerPool creates a new worker pool with the specified number of workers.
// A zero timeout disables the per-job deadline.
func NewWorkerPool(workers int, logger *zap.Logger, observe ObserveFunc, timeout time.Duration) *WorkerPool {
	if workers <= 0 {
		workers = 4
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &WorkerPool{
		workers:  workers,
		jobQueue: make(chan *ObserveJob, workers*2),
		ctx:      ctx,
		cancel:   cancel,
		logger:   logger,
		observe:  observe,
		timeout:  timeout,
	}
}

// Start launches all worker goroutines
func (wp *WorkerPool) Start() {
	if !wp.running.CompareAndSwap(false, true) {
		return
	}

	wp.logger.Info("Starting observe worker pool",
		zap.Int("workers", wp.workers),
		zap.Int("queue_size", cap(wp.jobQueue)))

	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Running reports whether workers are accepting jobs.
func (wp *WorkerPool) Running() bool {
	return wp.running.Load()
}

// Stop shuts down the worker pool and waits for in-flight jobs to finish
func (wp *WorkerPool) Stop() {
	wp.stopOnce.Do(func() {
		wp.logger.Info("Stopping observe worker pool")
		wp.running.Store(false)
		wp.cancel()
		wp.wg.Wait()
		wp.logger.Info("Observe worker pool stopped")
	})
}

// Submit queues a request and waits for its result
func (wp *WorkerPool) Submit(ctx context.Context, req *models.ObserveRequest) (*models.ObserveResult, error) {
	job := &ObserveJob{
		Ctx:     ctx,
		Request: req,
		Result:  make(chan *JobResult, 1),
	}

	select {
	case wp.jobQueue <- job:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-wp.ctx.Done():
		return nil, ErrPoolShuttingDown
	}

	select {
	case result := <-job.Result:
		return result.Result, result.Error
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-wp.ctx.Done():
		return nil, ErrPoolShuttingDown
	}
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	wp.logger.Debug("Observe worker started", zap.Int("worker_id", id))

	for {
		select {
		case job := <-wp.jobQueue:
			wp.processJob(id, job)
		case <-wp.ctx.Done():
			wp.logger.Debug("Observe worker stopping", zap.Int("worker_id", id))
			return
		}
	}
}

func (wp *WorkerPool) processJob(workerID int, job *ObserveJob) {
	// the submitter may already have given up
	if err := job.Ctx.Err(); err != nil {
		job.Result <- &JobResult{Error: err}
		return
	}

	ctx := job.Ctx
	if wp.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, wp.timeout)
		defer cancel()
	}

	wp.logger.Debug("Worker processing job",
		zap.Int("worker_id", workerID),
		zap.String("sensor_id", job.Request.SensorID),
		zap.String("agent_id", job.Request.AgentID))

	result, err := wp.observe(ctx, job.Request)
	job.Result <- &JobResult{Result: result, Error: err}

	if err != nil {
		wp.logger.Debug("Worker completed job with error",
			zap.Int("worker_id", workerID),
			zap.String("sensor_id", job.Request.SensorID),
			zap.Error(err))
	} else {
		wp.logger.Debug("Worker completed job successfully",
			zap.Int("worker_id", workerID),
			zap.String("sensor_id", job.Request.SensorID))
	}
}
