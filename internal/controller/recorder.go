package controller

import (
	"context"
	"log"
)

const recorderQueueSize = 64

// recorder runs journal and telemetry writes on its own goroutine so that slow
// I/O never holds up a dispense tick.
type recorder struct {
	jobs chan func(ctx context.Context)
}

func newRecorder(size int) *recorder {
	return &recorder{jobs: make(chan func(ctx context.Context), size)}
}

// submit queues a write. When the queue is full the write is dropped.
func (r *recorder) submit(name string, job func(ctx context.Context)) {
	select {
	case r.jobs <- job:
	default:
		log.Printf("controller: recorder queue full, dropped %s write", name)
	}
}

// run executes queued writes until ctx is done.
func (r *recorder) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-r.jobs:
			job(ctx)
		}
	}
}

// drain executes every queued write on the calling goroutine.
func (r *recorder) drain(ctx context.Context) {
	for {
		select {
		case job := <-r.jobs:
			job(ctx)
		default:
			return
		}
	}
}
