package workers

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestPool_RunsSubmittedTasks(t *testing.T) {
	p := NewPool(4, 16)

	var count int64
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		ok := p.Submit(func(ctx context.Context) {
			defer wg.Done()
			atomic.AddInt64(&count, 1)
		})
		if !ok {
			t.Fatal("submit rejected with free queue space")
		}
	}
	wg.Wait()
	p.Stop()

	if got := atomic.LoadInt64(&count); got != 10 {
		t.Errorf("expected 10 tasks run, got %d", got)
	}
}

func TestPool_DropsWhenQueueFull(t *testing.T) {
	p := NewPool(1, 1)
	defer p.Stop()

	block := make(chan struct{})
	release := make(chan struct{})

	// Occupy the single worker.
	p.Submit(func(ctx context.Context) {
		close(block)
		<-release
	})
	<-block

	// Fill the single queue slot.
	if !p.Submit(func(ctx context.Context) {}) {
		t.Fatal("expected queue slot to accept task")
	}

	// Everything is full now.
	if p.Submit(func(ctx context.Context) {}) {
		t.Error("expected submit to report a drop on a full queue")
	}

	close(release)
}

func TestPool_StopDrainsQueueWithLiveContext(t *testing.T) {
	p := NewPool(1, 8)

	var canceled int64
	for i := 0; i < 6; i++ {
		p.Submit(func(ctx context.Context) {
			time.Sleep(time.Millisecond)
			if ctx.Err() != nil {
				atomic.AddInt64(&canceled, 1)
			}
		})
	}
	p.Stop()

	if got := atomic.LoadInt64(&canceled); got != 0 {
		t.Errorf("expected queued tasks to drain before cancellation, %d saw a dead context", got)
	}
}

func TestPool_StopCancelsAfterGraceWindow(t *testing.T) {
	p := NewPool(1, 1)
	p.grace = 10 * time.Millisecond

	sawCancel := make(chan struct{})
	started := make(chan struct{})
	p.Submit(func(ctx context.Context) {
		close(started)
		<-ctx.Done()
		close(sawCancel)
	})
	<-started
	p.Stop()

	select {
	case <-sawCancel:
	default:
		t.Error("expected a stuck task to be canceled after the grace window")
	}
}

func TestPool_StopWaitsForInFlightTasks(t *testing.T) {
	p := NewPool(2, 4)

	var done int64
	for i := 0; i < 4; i++ {
		p.Submit(func(ctx context.Context) {
			time.Sleep(10 * time.Millisecond)
			atomic.AddInt64(&done, 1)
		})
	}
	p.Stop()

	if got := atomic.LoadInt64(&done); got != 4 {
		t.Errorf("expected all tasks finished before Stop returned, got %d", got)
	}
}
