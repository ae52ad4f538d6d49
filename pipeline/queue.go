// Package pipeline coordinates the console, the command parser and the
// synthesis worker.
//
// Three goroutines cooperate through two queues:
//
//	console (InputLoop) --lines--> ParseStage --jobs--> Worker --> Synthesizer
//
// Each queue is closed with a stop sentinel. Closing the line queue lets the
// parse stage finish every line already handed to it before it closes the job
// queue, and the worker drains every job queued before that sentinel, so no
// accepted command is dropped on a normal exit.
package pipeline

import (
	"errors"
	"sync"
)

// ErrQueueClosed is returned by Put once the stop sentinel has been queued.
var ErrQueueClosed = errors.New("pipeline: queue closed")

type entry[T any] struct {
	value T
	stop  bool
}

// Queue is an unbounded FIFO with a blocking Get. It supports any number of
// producers and consumers, though the pipeline uses one of each.
type Queue[T any] struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []entry[T]
	closed  bool // stop sentinel queued
	drained bool // stop sentinel dequeued
}

func NewQueue[T any]() *Queue[T] {
	q := &Queue[T]{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Put appends v. It never blocks.
func (q *Queue[T]) Put(v T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return ErrQueueClosed
	}
	q.items = append(q.items, entry[T]{value: v})
	q.cond.Signal()
	return nil
}

// Close queues the stop sentinel behind every value already put. Calling
// Close more than once has no further effect.
func (q *Queue[T]) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	q.items = append(q.items, entry[T]{stop: true})
	q.cond.Broadcast()
}

// Get blocks until a value is available and returns it with true. It
// returns false when the stop sentinel is reached, and keeps returning false
// on every later call.
func (q *Queue[T]) Get() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.drained {
		q.cond.Wait()
	}

	var zero T
	if q.drained {
		return zero, false
	}

	e := q.items[0]
	q.items[0] = entry[T]{}
	q.items = q.items[1:]
	if e.stop {
		q.drained = true
		q.cond.Broadcast()
		return zero, false
	}
	return e.value, true
}

// Len reports the number of values waiting, not counting the sentinel.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	if q.closed && !q.drained {
		n--
	}
	return n
}
