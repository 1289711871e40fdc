package notification

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"notify-delivery-backend/config"
)

var (
	// ErrQueueFull is returned when the worker queue cannot accept a task.
	ErrQueueFull = errors.New("notification: worker queue is full")
	// ErrPoolClosed is returned after Stop.
	ErrPoolClosed = errors.New("notification: worker pool is stopped")
)

// Task is a unit of work executed by the pool.
type Task func(ctx context.Context)

// Submitter accepts tasks without blocking.
type Submitter interface {
	Submit(t Task) error
}

// WorkerPool runs tasks on a bounded set of goroutines fed by a bounded
// queue. Core workers live until Stop; extra workers up to the max size are
// spawned while the queue is backed up and exit after being idle.
type WorkerPool struct {
	coreSize  int
	maxSize   int
	keepAlive time.Duration
	tasks     chan Task
	log       *zap.Logger

	mu      sync.RWMutex
	closed  bool
	started bool
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	workers atomic.Int32
	idle    atomic.Int32
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(cfg config.WorkerPoolConfig, log *zap.Logger) *WorkerPool {
	if log == nil {
		log = zap.NewNop()
	}
	core := cfg.CoreSize
	if core <= 0 {
		core = 1
	}
	maxSize := cfg.MaxSize
	if maxSize < core {
		maxSize = core
	}
	queue := cfg.QueueSize
	if queue < 0 {
		queue = 0
	}
	keepAlive := cfg.KeepAlive
	if keepAlive <= 0 {
		keepAlive = time.Minute
	}

	return &WorkerPool{
		coreSize:  core,
		maxSize:   maxSize,
		keepAlive: keepAlive,
		tasks:     make(chan Task, queue),
		log:       log,
	}
}

// Start launches the core worker goroutines. Tasks receive a context that
// is cancelled when ctx is done or Stop gives up waiting.
func (wp *WorkerPool) Start(ctx context.Context) {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	if wp.started || wp.closed {
		return
	}
	wp.started = true
	wp.ctx, wp.cancel = context.WithCancel(ctx)

	for i := 0; i < wp.coreSize; i++ {
		wp.spawn(true)
	}
	wp.log.Info("worker pool started",
		zap.Int("core", wp.coreSize),
		zap.Int("max", wp.maxSize),
		zap.Int("queue", cap(wp.tasks)))
}

// Submit enqueues a task. It never blocks: a saturated queue returns
// ErrQueueFull.
func (wp *WorkerPool) Submit(t Task) error {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.closed {
		return ErrPoolClosed
	}

	select {
	case wp.tasks <- t:
	default:
		return ErrQueueFull
	}

	// Idle workers will pick the queued tasks up; grow only for the excess.
	if wp.started && len(wp.tasks) > int(wp.idle.Load()) {
		wp.grow()
	}
	return nil
}

// grow adds one extra worker if the pool is below its max size.
func (wp *WorkerPool) grow() {
	for {
		n := wp.workers.Load()
		if int(n) >= wp.maxSize {
			return
		}
		if wp.workers.CompareAndSwap(n, n+1) {
			wp.wg.Add(1)
			go wp.worker(false)
			return
		}
	}
}

func (wp *WorkerPool) spawn(core bool) {
	wp.workers.Add(1)
	wp.wg.Add(1)
	go wp.worker(core)
}

// worker is the actual worker goroutine.
func (wp *WorkerPool) worker(core bool) {
	defer wp.wg.Done()
	defer wp.workers.Add(-1)

	var idle <-chan time.Time
	var timer *time.Timer
	if !core {
		timer = time.NewTimer(wp.keepAlive)
		defer timer.Stop()
		idle = timer.C
	}

	for {
		wp.idle.Add(1)
		select {
		case t, ok := <-wp.tasks:
			wp.idle.Add(-1)
			if !ok {
				return
			}
			wp.run(t)
			if timer != nil {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(wp.keepAlive)
			}
		case <-idle:
			wp.idle.Add(-1)
			return
		case <-wp.ctx.Done():
			wp.idle.Add(-1)
			return
		}
	}
}

func (wp *WorkerPool) run(t Task) {
	defer func() {
		if r := recover(); r != nil {
			wp.log.Error("delivery task panicked", zap.Any("panic", r))
		}
	}()
	t(wp.ctx)
}

// Workers returns the number of live worker goroutines.
func (wp *WorkerPool) Workers() int {
	return int(wp.workers.Load())
}

// Idle returns the number of workers waiting for a task.
func (wp *WorkerPool) Idle() int {
	return int(wp.idle.Load())
}

// QueueLen returns the number of queued tasks.
func (wp *WorkerPool) QueueLen() int {
	return len(wp.tasks)
}

// Stop refuses new tasks and waits for queued ones to drain. If ctx ends
// first, running tasks are cancelled and ctx.Err is returned.
func (wp *WorkerPool) Stop(ctx context.Context) error {
	wp.mu.Lock()
	if wp.closed {
		wp.mu.Unlock()
		return nil
	}
	wp.closed = true
	close(wp.tasks)
	started := wp.started
	wp.mu.Unlock()

	if !started {
		return nil
	}

	done := make(chan struct{})
	go func() {
		wp.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		wp.cancel()
		wp.log.Info("worker pool drained")
		return nil
	case <-ctx.Done():
		wp.cancel()
		<-done
		return ctx.Err()
	}
}
