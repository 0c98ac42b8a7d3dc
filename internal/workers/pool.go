package workers

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/alertdeck/alertdeck/internal/metrics"
)

// Pool runs ingestion tasks on a fixed set of workers behind a bounded
// queue. Webhook handlers submit and return immediately; when the queue
// is full the task is dropped and counted rather than blocking ingestion.
// drainGrace is how long Stop lets queued work finish before canceling
// the task context.
const drainGrace = 10 * time.Second

type Pool struct {
	tasks chan func(ctx context.Context)
	wg    sync.WaitGroup

	cancel context.CancelFunc
	grace  time.Duration
	once   sync.Once
}

// NewPool starts a pool with the given worker count and queue depth.
func NewPool(workerCount, queueDepth int) *Pool {
	if workerCount < 1 {
		workerCount = 1
	}
	if queueDepth < 1 {
		queueDepth = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pool{
		tasks:  make(chan func(ctx context.Context), queueDepth),
		cancel: cancel,
		grace:  drainGrace,
	}

	for i := 0; i < workerCount; i++ {
		p.wg.Add(1)
		go p.run(ctx)
	}
	return p
}

func (p *Pool) run(ctx context.Context) {
	defer p.wg.Done()
	for task := range p.tasks {
		task(ctx)
	}
}

// Submit enqueues a task. It reports false when the queue is full and the
// task was dropped.
func (p *Pool) Submit(task func(ctx context.Context)) bool {
	select {
	case p.tasks <- task:
		return true
	default:
		metrics.IngestDropped.Inc()
		log.Printf("workers: queue full, dropping task")
		return false
	}
}

// Stop drains queued tasks and waits for the workers to finish. Work
// still running past the grace window sees a canceled context.
func (p *Pool) Stop() {
	p.once.Do(func() {
		close(p.tasks)
		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(p.grace):
			log.Printf("workers: drain exceeded %v, canceling in-flight tasks", p.grace)
			p.cancel()
			<-done
		}
		p.cancel()
	})
	p.wg.Wait()
}
