package events

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Publisher delivers one event to the outside world.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// WorkerPool publishes events from a bounded queue on a fixed number of
// workers.
type WorkerPool struct {
	size      int
	jobs      chan Event
	publisher Publisher
	log       *zap.Logger
	wg        sync.WaitGroup
}

// NewWorkerPool creates a pool of size workers whose queue holds up to
// capacity pending events.
func NewWorkerPool(size, capacity int, publisher Publisher, log *zap.Logger) *WorkerPool {
	if size < 1 {
		size = 1
	}
	if capacity < 1 {
		capacity = size
	}
	return &WorkerPool{
		size:      size,
		jobs:      make(chan Event, capacity),
		publisher: publisher,
		log:       log,
	}
}

// Start launches the worker goroutines. They exit when ctx is done.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

// Wait blocks until every worker has exited.
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()
	wp.log.Debug("event worker started", zap.Int("worker", id))
	for {
		select {
		case e := <-wp.jobs:
			if err := wp.publisher.Publish(ctx, e); err != nil {
				wp.log.Warn("failed to publish event",
					zap.Int("worker", id),
					zap.String("type", string(e.Type)),
					zap.Int64("reservation_id", e.ReservationID),
					zap.Error(err))
			}
		case <-ctx.Done():
			wp.log.Debug("event worker shutting down", zap.Int("worker", id))
			return
		}
	}
}

// Dispatch queues e without blocking. It reports false when the queue is
// full and the event was dropped.
func (wp *WorkerPool) Dispatch(e Event) bool {
	select {
	case wp.jobs <- e:
		return true
	default:
		wp.log.Warn("event queue full, dropping event",
			zap.String("type", string(e.Type)),
			zap.Int64("reservation_id", e.ReservationID))
		return false
	}
}

// Emit implements Sink.
func (wp *WorkerPool) Emit(e Event) {
	wp.Dispatch(e)
}
