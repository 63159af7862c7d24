// Package workers provides the bounded goroutine pool the orchestrator
// uses for every fan-out point in the pipeline: running universes in
// parallel and, when subprocess batching is enabled (RunConfig.
// SubprocessBatch), waiting on subprocess-isolated strategy-grid shards
// (see shard.go). The pool itself doesn't know which kind of Task it is
// running — universe work and shard supervision are both just
// TaskFuncs submitted through the same bounded worker set.
package workers

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Task represents a unit of work to be processed by the pool.
type Task interface {
	Execute() error
}

// TaskFunc adapts a plain function to Task.
type TaskFunc func() error

func (f TaskFunc) Execute() error { return f() }

// PoolConfig configures a Pool.
type PoolConfig struct {
	Name            string        // pool name, attached to every log line
	NumWorkers      int           // number of worker goroutines
	QueueSize       int           // size of the task queue
	TaskTimeout     time.Duration // timeout for an individual task
	ShutdownTimeout time.Duration // timeout for graceful shutdown
	PanicRecovery   bool          // recover a panicking task instead of crashing the pool

	// OnActiveChange, if set, is called with +1 when a worker picks up a
	// task and -1 when it finishes, letting a caller mirror the pool's
	// concurrency into an external gauge (the orchestrator wires this to
	// telemetry.Registry.ActiveWorkers).
	OnActiveChange func(delta int)
}

// DefaultPoolConfig sizes the pool for the orchestrator's fan-out: one
// universe (or one strategy shard) per worker, bounded by NumWorkers from
// RunConfig rather than raw CPU count, since the bottleneck here is
// subprocess/IO concurrency, not in-process compute.
func DefaultPoolConfig(name string) *PoolConfig {
	return &PoolConfig{
		Name:            name,
		NumWorkers:      4,
		QueueSize:       64,
		TaskTimeout:     10 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
		PanicRecovery:   true,
	}
}

// Pool runs Tasks across a fixed number of worker goroutines.
type Pool struct {
	logger *zap.Logger
	config *PoolConfig

	taskQueue chan Task
	wg        sync.WaitGroup

	running atomic.Bool
	done    chan struct{}

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
}

// NewPool creates a Pool. Start must be called before Submit/SubmitWait.
func NewPool(logger *zap.Logger, config *PoolConfig) *Pool {
	if config == nil {
		config = DefaultPoolConfig("default")
	}
	return &Pool{
		logger:    logger,
		config:    config,
		taskQueue: make(chan Task, config.QueueSize),
		done:      make(chan struct{}),
	}
}

// Start launches the worker goroutines.
func (p *Pool) Start() {
	if p.running.Swap(true) {
		return
	}
	p.logger.Info("starting worker pool",
		zap.String("name", p.config.Name),
		zap.Int("workers", p.config.NumWorkers),
		zap.Int("queueSize", p.config.QueueSize),
	)
	for i := 0; i < p.config.NumWorkers; i++ {
		p.wg.Add(1)
		go p.runWorker(i)
	}
}

func (p *Pool) runWorker(id int) {
	defer p.wg.Done()
	log := p.logger.With(zap.Int("workerId", id))
	for {
		select {
		case <-p.done:
			return
		case task, ok := <-p.taskQueue:
			if !ok {
				return
			}
			p.executeTask(log, task)
		}
	}
}

func (p *Pool) executeTask(log *zap.Logger, task Task) {
	if p.config.OnActiveChange != nil {
		p.config.OnActiveChange(1)
		defer p.config.OnActiveChange(-1)
	}

	done := make(chan error, 1)
	go func() {
		if p.config.PanicRecovery {
			defer func() {
				if r := recover(); r != nil {
					log.Error("task panicked, recovered", zap.Any("panic", r))
					done <- &PanicError{Recovered: r}
				}
			}()
		}
		done <- task.Execute()
	}()

	timeout := p.config.TaskTimeout
	if timeout <= 0 {
		timeout = 10 * time.Minute
	}
	select {
	case err := <-done:
		if err != nil {
			p.failed.Add(1)
			log.Debug("task failed", zap.Error(err))
		} else {
			p.completed.Add(1)
		}
	case <-time.After(timeout):
		p.failed.Add(1)
		log.Warn("task timed out", zap.Duration("timeout", timeout))
	}
}

// Submit enqueues task without waiting for completion.
func (p *Pool) Submit(task Task) error {
	if !p.running.Load() {
		return ErrPoolStopped
	}
	select {
	case p.taskQueue <- task:
		p.submitted.Add(1)
		return nil
	default:
		return ErrQueueFull
	}
}

// SubmitWait enqueues task and blocks until it completes, returning its error.
func (p *Pool) SubmitWait(task Task) error {
	if !p.running.Load() {
		return ErrPoolStopped
	}
	result := make(chan error, 1)
	wrapper := TaskFunc(func() error {
		err := task.Execute()
		result <- err
		return err
	})
	if err := p.Submit(wrapper); err != nil {
		return err
	}
	return <-result
}

// Stop signals every worker to exit and waits up to ShutdownTimeout.
func (p *Pool) Stop() error {
	if !p.running.Swap(false) {
		return nil
	}
	p.logger.Info("stopping worker pool", zap.String("name", p.config.Name))
	close(p.done)

	stopped := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(stopped)
	}()

	select {
	case <-stopped:
		return nil
	case <-time.After(p.config.ShutdownTimeout):
		p.logger.Warn("worker pool shutdown timed out", zap.String("name", p.config.Name))
		return ErrShutdownTimeout
	}
}

// Stats reports the pool's cumulative task counts.
type Stats struct {
	Submitted int64
	Completed int64
	Failed    int64
}

// Stats returns a snapshot of the pool's cumulative counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
	}
}

var (
	ErrPoolStopped     = &PoolError{Message: "pool is stopped"}
	ErrQueueFull       = &PoolError{Message: "task queue is full"}
	ErrShutdownTimeout = &PoolError{Message: "shutdown timed out"}
)

// PoolError is a sentinel pool-level error.
type PoolError struct{ Message string }

func (e *PoolError) Error() string { return e.Message }

// PanicError wraps a value recovered from a panicking task.
type PanicError struct{ Recovered interface{} }

func (e *PanicError) Error() string { return "task panicked" }
