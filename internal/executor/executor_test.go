package executor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/smazurov/videofx/internal/types"
)

func newTestExecutor(t *testing.T, listener ErrorListener) *TaskExecutor {
	t.Helper()
	e := New(Options{ErrorListener: listener, ErrorRunner: Goroutine})
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = e.Release(ctx, nil)
	})
	return e
}

func TestExecutor_RunsTasksInOrder(t *testing.T) {
	e := newTestExecutor(t, nil)

	var mu sync.Mutex
	var order []int
	for i := 0; i < 50; i++ {
		e.Submit(func() error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		})
	}
	if err := e.WaitIdle(context.Background()); err != nil {
		t.Fatalf("WaitIdle failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 50 {
		t.Fatalf("Expected 50 tasks, got %d", len(order))
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("Task %d ran at position %d", v, i)
		}
	}
}

func TestExecutor_HighPriorityRunsFirst(t *testing.T) {
	e := newTestExecutor(t, nil)

	gate := make(chan struct{})
	var order []string
	e.Submit(func() error {
		<-gate
		return nil
	})
	e.Submit(func() error {
		order = append(order, "normal")
		return nil
	})
	e.SubmitWithHighPriority(func() error {
		order = append(order, "high")
		return nil
	})
	close(gate)

	if err := e.WaitIdle(context.Background()); err != nil {
		t.Fatalf("WaitIdle failed: %v", err)
	}
	if len(order) != 2 || order[0] != "high" {
		t.Errorf("Expected high priority task first, got %v", order)
	}
}

func TestExecutor_TasksCanSubmitTasks(t *testing.T) {
	e := newTestExecutor(t, nil)

	count := 0
	var step func() error
	step = func() error {
		count++
		if count < 10 {
			e.Submit(step)
		}
		return nil
	}
	e.Submit(step)

	if err := e.WaitIdle(context.Background()); err != nil {
		t.Fatalf("WaitIdle failed: %v", err)
	}
	if count != 10 {
		t.Errorf("Expected 10 chained tasks, got %d", count)
	}
}

func TestExecutor_InvokeReturnsTaskError(t *testing.T) {
	errs := make(chan error, 1)
	e := newTestExecutor(t, func(err error) { errs <- err })

	want := errors.New("bad input")
	if got := e.Invoke(context.Background(), func() error { return want }); !errors.Is(got, want) {
		t.Fatalf("Expected %v, got %v", want, got)
	}

	// The executor keeps running after a synchronous failure.
	if err := e.Invoke(context.Background(), func() error { return nil }); err != nil {
		t.Errorf("Expected executor to keep running, got %v", err)
	}
	select {
	case err := <-errs:
		t.Errorf("Error listener should not see invoked errors, got %v", err)
	case <-time.After(10 * time.Millisecond):
	}
}

func TestExecutor_FailedTaskCancelsAndReportsOnce(t *testing.T) {
	errs := make(chan error, 4)
	e := newTestExecutor(t, func(err error) { errs <- err })

	gate := make(chan struct{})
	ran := false
	e.Submit(func() error {
		<-gate
		return errors.New("gl failure")
	})
	e.Submit(func() error {
		ran = true
		return nil
	})
	e.Submit(func() error { return errors.New("second failure") })
	close(gate)

	select {
	case err := <-errs:
		if !types.IsCode(err, types.ErrCodeProcessingFailed) {
			t.Errorf("Expected PROCESSING_FAILED, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Error listener was not called")
	}

	if err := e.Invoke(context.Background(), func() error { return nil }); !types.IsCode(err, types.ErrCodeReleased) {
		t.Errorf("Expected RELEASED after cancellation, got %v", err)
	}
	if ran {
		t.Error("Task queued after the failing one should have been dropped")
	}
	select {
	case err := <-errs:
		t.Errorf("Error listener called twice: %v", err)
	case <-time.After(10 * time.Millisecond):
	}
}

func TestExecutor_ReleaseRunsReleaseTaskAndStops(t *testing.T) {
	e := New(Options{})

	released := false
	if err := e.Release(context.Background(), func() error {
		released = true
		return nil
	}); err != nil {
		t.Fatalf("Release failed: %v", err)
	}
	if !released {
		t.Error("Release task did not run")
	}

	if err := e.Invoke(context.Background(), func() error { return nil }); !types.IsCode(err, types.ErrCodeReleased) {
		t.Errorf("Expected RELEASED after release, got %v", err)
	}
	if err := e.Release(context.Background(), nil); err != nil {
		t.Errorf("Second release should be a no-op, got %v", err)
	}
}

func TestExecutor_ReleaseReturnsTaskError(t *testing.T) {
	e := New(Options{})
	want := errors.New("release failed")
	if got := e.Release(context.Background(), func() error { return want }); !errors.Is(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}
