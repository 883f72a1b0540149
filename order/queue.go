package order

import (
	"time"

	"go.uber.org/zap"
)

// Task is one unit of mutating work executed by the queue worker.
type Task struct {
	Name string
	// Entry marks entry-order placements, which are spaced out so bursts of
	// stale signals do not all price against the same captured quote.
	Entry bool
	Run   func() error
}

// Queue serializes all mutation of one ticker's position and executor onto a
// single worker goroutine. Producers only ever enqueue.
type Queue struct {
	tasks        chan Task
	stopChan     chan struct{}
	doneChan     chan struct{}
	entrySpacing time.Duration
	log          *zap.Logger
}

// NewQueue creates a queue with the given spacing between consecutive entry
// placements. A zero spacing disables the rate limit.
func NewQueue(entrySpacing time.Duration, log *zap.Logger) *Queue {
	if log == nil {
		log = zap.NewNop()
	}
	return &Queue{
		tasks:        make(chan Task, 256),
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
		entrySpacing: entrySpacing,
		log:          log,
	}
}

// Start launches the worker goroutine.
func (q *Queue) Start() {
	go q.worker()
}

// Stop signals the worker and waits for it to drain out.
func (q *Queue) Stop() {
	close(q.stopChan)
	<-q.doneChan
}

// Enqueue hands a task to the worker. Tasks enqueued after Stop, or while the
// buffer is full, are dropped with a warning rather than blocking a producer.
func (q *Queue) Enqueue(t Task) {
	select {
	case <-q.stopChan:
		return
	default:
	}
	select {
	case q.tasks <- t:
	default:
		q.log.Warn("order queue full, dropping task", zap.String("task", t.Name))
	}
}

func (q *Queue) worker() {
	defer close(q.doneChan)

	var lastEntry time.Time
	for {
		select {
		case <-q.stopChan:
			return
		case t := <-q.tasks:
			// Spacing is skipped for the very first entry on a cold ticker.
			if t.Entry && q.entrySpacing > 0 && !lastEntry.IsZero() {
				if wait := q.entrySpacing - time.Since(lastEntry); wait > 0 {
					select {
					case <-q.stopChan:
						return
					case <-time.After(wait):
					}
				}
			}
			q.run(t)
			if t.Entry {
				lastEntry = time.Now()
			}
		}
	}
}

// run executes one task. Domain errors are local, recoverable faults: they
// are logged and the worker moves on to the next item.
func (q *Queue) run(t Task) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("panic in queued task", zap.String("task", t.Name), zap.Any("panic", r))
		}
	}()
	if err := t.Run(); err != nil {
		q.log.Warn("queued task failed", zap.String("task", t.Name), zap.Error(err))
	}
}
