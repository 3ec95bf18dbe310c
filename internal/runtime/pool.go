package runtime

import (
	"fmt"
	"sync"
	"time"

	errspkg "github.com/nsqlink/nsqlink/internal/runtime/errors"
	loggingpkg "github.com/nsqlink/nsqlink/internal/runtime/logging"
)

const poolQueueDepth = 256

// WorkerPool is a bounded pool of goroutines that runs consumer handlers and
// connection-closure notifications off the socket-handling paths. Its size is
// fixed at construction; the Client enforces the create-once contract around
// it.
type WorkerPool struct {
	log   loggingpkg.ServiceLogger
	size  int
	tasks chan func()
	done  chan struct{}
	wg    sync.WaitGroup

	// mu guards intake: Shutdown flips stopped under the write lock, so a
	// submit holding the read lock either fails fast or enqueues before the
	// workers begin their final drain. A task accepted by Submit or TrySubmit
	// always runs.
	mu      sync.RWMutex
	stopped bool

	shutdownOnce sync.Once
}

// NewWorkerPool starts size workers. A non-positive size falls back to one
// worker.
func NewWorkerPool(size int, log loggingpkg.ServiceLogger) *WorkerPool {
	if log == nil {
		panic("nsqlink: worker pool logger cannot be nil")
	}
	if size <= 0 {
		size = 1
	}
	p := &WorkerPool{
		log:   log,
		size:  size,
		tasks: make(chan func(), poolQueueDepth),
		done:  make(chan struct{}),
	}
	for i := 0; i < size; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	return p
}

// Size reports the number of workers.
func (p *WorkerPool) Size() int { return p.size }

// Submit queues task for execution, blocking while the queue is full. Fails
// with ErrPoolStopped once Shutdown has begun; tasks already queued still run.
func (p *WorkerPool) Submit(task func()) error {
	if task == nil {
		return &errspkg.StateError{Op: "submit", Reason: "task cannot be nil"}
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return errspkg.ErrPoolStopped
	}
	// Intake cannot close while the read lock is held, and workers keep
	// consuming until it does, so this send always completes.
	p.tasks <- task
	return nil
}

// TrySubmit queues task without ever blocking the caller: it fails with
// ErrPoolSaturated when the queue is full and ErrPoolStopped once Shutdown has
// begun. For callers on paths that must not stall behind the pool, such as
// connection teardown.
func (p *WorkerPool) TrySubmit(task func()) error {
	if task == nil {
		return &errspkg.StateError{Op: "submit", Reason: "task cannot be nil"}
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return errspkg.ErrPoolStopped
	}
	select {
	case p.tasks <- task:
		return nil
	default:
		return errspkg.ErrPoolSaturated
	}
}

// Shutdown stops intake, lets workers drain the queue, and waits up to wait
// for them to exit. Reports whether the pool terminated within the budget.
// Safe to call more than once.
func (p *WorkerPool) Shutdown(wait time.Duration) bool {
	p.shutdownOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()
		close(p.done)
	})

	finished := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return true
	case <-time.After(wait):
		return false
	}
}

func (p *WorkerPool) worker() {
	defer p.wg.Done()
	for {
		select {
		case task := <-p.tasks:
			p.run(task)
		case <-p.done:
			// Intake is closed; finish whatever is still queued.
			for {
				select {
				case task := <-p.tasks:
					p.run(task)
				default:
					return
				}
			}
		}
	}
}

// run isolates task failures so one panicking handler never kills a worker.
func (p *WorkerPool) run(task func()) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Error("worker task failed", fmt.Errorf("panic: %v", r), nil)
		}
	}()
	task()
}
