// Package executor provides the single serialized execution queue on which
// all shader and texture work of one pipeline runs.
package executor

import (
	"context"
	"log/slog"
	"sync"

	"github.com/smazurov/videofx/internal/types"
)

// Task is a unit of work run on the executor goroutine.
type Task func() error

// ErrorListener receives the first error returned by a task.
type ErrorListener func(err error)

// Options configures a TaskExecutor.
type Options struct {
	// ErrorListener is notified once when a task fails (optional).
	ErrorListener ErrorListener

	// ErrorRunner runs ErrorListener. Defaults to Goroutine.
	ErrorRunner Runner

	// Logger for executor diagnostics. If nil, uses slog.Default().
	Logger *slog.Logger
}

// TaskExecutor runs tasks one at a time on a dedicated goroutine. High
// priority tasks run before normal ones that are not yet started. After a
// task fails, pending and future tasks are dropped.
type TaskExecutor struct {
	opts   Options
	logger *slog.Logger

	mu           sync.Mutex
	tasks        []Task
	highPriority []Task
	cancelled    bool
	released     bool
	wake         chan struct{}
	cancelCh     chan struct{}
	done         chan struct{}
}

// New creates a TaskExecutor and starts its goroutine.
func New(opts Options) *TaskExecutor {
	if opts.ErrorRunner == nil {
		opts.ErrorRunner = Goroutine
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	e := &TaskExecutor{
		opts:   opts,
		logger: logger,
		wake:     make(chan struct{}, 1),
		cancelCh: make(chan struct{}),
		done:     make(chan struct{}),
	}
	go e.loop()
	return e
}

// Submit queues a task. It never blocks.
func (e *TaskExecutor) Submit(task Task) {
	e.enqueue(task, false)
}

// SubmitWithHighPriority queues a task ahead of all normal tasks not yet started.
func (e *TaskExecutor) SubmitWithHighPriority(task Task) {
	e.enqueue(task, true)
}

// Invoke runs task on the executor and waits for it. The task's error is
// returned to the caller and does not cancel the executor. Invoke must not
// be called from a task.
func (e *TaskExecutor) Invoke(ctx context.Context, task Task) error {
	result := make(chan error, 1)
	if !e.enqueue(func() error {
		result <- task()
		return nil
	}, false) {
		return types.NewProcessingError(types.ErrCodeReleased, "executor no longer accepts tasks", nil)
	}

	select {
	case err := <-result:
		return err
	case <-e.cancelCh:
		return e.dropped(result)
	case <-e.done:
		return e.dropped(result)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// dropped reports the result of an invoked task whose executor stopped.
func (e *TaskExecutor) dropped(result <-chan error) error {
	select {
	case err := <-result:
		return err
	default:
		return types.NewProcessingError(types.ErrCodeReleased, "executor stopped before task ran", nil)
	}
}

// WaitIdle blocks until no task is queued or running.
func (e *TaskExecutor) WaitIdle(ctx context.Context) error {
	for {
		var pending int
		if err := e.Invoke(ctx, func() error {
			pending = e.Pending()
			return nil
		}); err != nil {
			return err
		}
		if pending == 0 {
			return nil
		}
	}
}

// Pending returns the number of queued tasks.
func (e *TaskExecutor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.tasks) + len(e.highPriority)
}

// Release cancels pending tasks, runs releaseTask on the executor and stops
// the goroutine. It waits until releaseTask completed or ctx is done.
func (e *TaskExecutor) Release(ctx context.Context, releaseTask Task) error {
	result := make(chan error, 1)

	e.mu.Lock()
	if e.released {
		e.mu.Unlock()
		return nil
	}
	e.released = true
	e.tasks = nil
	e.highPriority = []Task{func() error {
		if releaseTask == nil {
			result <- nil
			return nil
		}
		err := releaseTask()
		result <- err
		return nil
	}}
	e.mu.Unlock()
	e.signal()

	select {
	case err := <-result:
		<-e.done
		return err
	case <-ctx.Done():
		e.logger.Warn("Timeout waiting for executor release")
		return ctx.Err()
	}
}

func (e *TaskExecutor) enqueue(task Task, highPriority bool) bool {
	e.mu.Lock()
	if e.cancelled || e.released {
		e.mu.Unlock()
		e.logger.Debug("Dropping task submitted after cancellation or release")
		return false
	}
	if highPriority {
		e.highPriority = append(e.highPriority, task)
	} else {
		e.tasks = append(e.tasks, task)
	}
	e.mu.Unlock()
	e.signal()
	return true
}

func (e *TaskExecutor) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

// next pops the next task. The second result is false when the queue is
// empty; the third is true once the executor was released and drained.
func (e *TaskExecutor) next() (Task, bool, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.highPriority) > 0 {
		task := e.highPriority[0]
		e.highPriority = e.highPriority[1:]
		return task, true, false
	}
	if len(e.tasks) > 0 {
		task := e.tasks[0]
		e.tasks = e.tasks[1:]
		return task, true, false
	}
	return nil, false, e.released
}

func (e *TaskExecutor) loop() {
	defer close(e.done)

	for {
		task, ok, finished := e.next()
		if finished {
			return
		}
		if !ok {
			<-e.wake
			continue
		}
		if err := task(); err != nil {
			e.handleError(err)
		}
	}
}

// handleError cancels the queue and reports err once.
func (e *TaskExecutor) handleError(err error) {
	e.mu.Lock()
	if e.cancelled || e.released {
		e.mu.Unlock()
		return
	}
	e.cancelled = true
	e.tasks = nil
	e.highPriority = nil
	close(e.cancelCh)
	e.mu.Unlock()

	e.logger.Error("Frame processing task failed", "error", err)

	wrapped := err
	if !types.IsCode(err, types.ErrCodeProcessingFailed) {
		wrapped = types.NewProcessingError(types.ErrCodeProcessingFailed, "frame processing task failed", err)
	}
	if e.opts.ErrorListener != nil {
		listener := e.opts.ErrorListener
		e.opts.ErrorRunner.Run(func() { listener(wrapped) })
	}
}
