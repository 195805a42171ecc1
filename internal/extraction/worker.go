package extraction

import (
	"context"
	"log"
	"sync"
	"time"
)

const defaultQueueSize = 16

// Worker runs the pipeline asynchronously behind a job channel so the reply
// path never waits on extraction.
type Worker struct {
	pipeline *Pipeline
	jobs     chan Job
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewWorker creates a worker around the pipeline. Start must be called
// before Enqueue.
func NewWorker(pipeline *Pipeline) *Worker {
	return &Worker{
		pipeline: pipeline,
		jobs:     make(chan Job, defaultQueueSize),
	}
}

// Start launches the worker goroutine.
func (w *Worker) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for job := range w.jobs {
			w.pipeline.Run(ctx, job)
		}
	}()
}

// Enqueue submits a job without blocking. When the queue is full the job is
// dropped: losing one extraction pass is cheaper than stalling the reply.
func (w *Worker) Enqueue(job Job) {
	select {
	case w.jobs <- job:
	default:
		log.Printf("extraction: queue full, dropping job")
	}
}

// QueueSize returns the number of jobs waiting in the queue.
func (w *Worker) QueueSize() int {
	return len(w.jobs)
}

// Stop closes the queue and waits for in-flight work to drain, up to the
// timeout.
func (w *Worker) Stop(timeout time.Duration) {
	w.stopOnce.Do(func() {
		close(w.jobs)
	})

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		log.Printf("extraction: shutdown timeout, in-flight work may be dropped")
	}
}
