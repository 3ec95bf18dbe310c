package runtime

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	errspkg "github.com/nsqlink/nsqlink/internal/runtime/errors"
	loggingpkg "github.com/nsqlink/nsqlink/internal/runtime/logging"
)

// Scheduler is the shared timer facility for the client: run-once and
// repeating tasks with an optional jittered initial delay. Every task body
// runs inside a recover guard, so a failing task is logged and never takes a
// timer down with it.
type Scheduler struct {
	log loggingpkg.ServiceLogger

	mu   sync.Mutex
	done bool
	stop chan struct{}
	wg   sync.WaitGroup
}

// NewScheduler constructs a Scheduler. Timers run on their own goroutines,
// tracked so Shutdown can wait for in-flight task bodies.
func NewScheduler(log loggingpkg.ServiceLogger) *Scheduler {
	if log == nil {
		panic("nsqlink: scheduler logger cannot be nil")
	}
	return &Scheduler{log: log, stop: make(chan struct{})}
}

// ScheduledTask is a cancellable handle to a pending or recurring timer
// registration.
type ScheduledTask struct {
	cancelOnce sync.Once
	cancel     chan struct{}
}

// Cancel stops the registration. Safe to call more than once; a task body
// already running is not interrupted.
func (t *ScheduledTask) Cancel() {
	t.cancelOnce.Do(func() { close(t.cancel) })
}

// ScheduleOnce runs task once after delay.
func (s *Scheduler) ScheduleOnce(delay time.Duration, task func()) (*ScheduledTask, error) {
	return s.launch(func(t *ScheduledTask) {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
			s.runGuarded(task)
		case <-t.cancel:
		case <-s.stop:
		}
	})
}

// ScheduleRepeating runs task after an initial delay and then every period.
// When jitter is requested the effective initial delay is randomised into
// [0.1*initial, initial) so per-connection timers started together spread out
// instead of hitting the broker as a herd.
func (s *Scheduler) ScheduleRepeating(initial, period time.Duration, jitter bool, task func()) (*ScheduledTask, error) {
	delay := initial
	if jitter {
		delay = jitterDelay(initial)
	}
	return s.launch(func(t *ScheduledTask) {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
			s.runGuarded(task)
		case <-t.cancel:
			return
		case <-s.stop:
			return
		}

		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.runGuarded(task)
			case <-t.cancel:
				return
			case <-s.stop:
				return
			}
		}
	})
}

// Shutdown cancels every registration and waits up to wait for running task
// bodies to return. Reports whether everything terminated within the budget.
func (s *Scheduler) Shutdown(wait time.Duration) bool {
	s.mu.Lock()
	if !s.done {
		s.done = true
		close(s.stop)
	}
	s.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return true
	case <-time.After(wait):
		return false
	}
}

func (s *Scheduler) launch(run func(*ScheduledTask)) (*ScheduledTask, error) {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return nil, errspkg.ErrSchedulerStopped
	}
	s.wg.Add(1)
	s.mu.Unlock()

	t := &ScheduledTask{cancel: make(chan struct{})}
	go func() {
		defer s.wg.Done()
		run(t)
	}()
	return t, nil
}

// runGuarded isolates task failures: a panicking task is logged and the timer
// keeps firing.
func (s *Scheduler) runGuarded(task func()) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scheduled task failed", fmt.Errorf("panic: %v", r), nil)
		}
	}()
	task()
}

// jitterDelay maps initial into [0.1*initial, initial).
func jitterDelay(initial time.Duration) time.Duration {
	return time.Duration(0.1*float64(initial) + rand.Float64()*0.9*float64(initial))
}
