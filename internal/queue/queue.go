// Package queue implements the bounded, blocking job queue shared by
// the manager's dispatcher (producer) and its worker pool (consumers).
package queue

import (
	"container/list"
	"context"
	"sync"
)

// Job is the minimal interface the queue needs from a unit of work:
// nothing. The queue is untyped over `any`, so it carries transfer.Job
// values without importing the transfer package; callers type-assert
// on Dequeue.
type Job = any

// Queue is a capacity-bounded FIFO with blocking enqueue/dequeue and
// a monotone shutdown flag, matching the bounded-producer/consumer
// contract in the component design.
type Queue struct {
	mu       sync.Mutex
	notFull  *sync.Cond
	notEmpty *sync.Cond

	items    *list.List
	capacity int
	shutdown bool
}

// New returns a queue with the given capacity. Capacity must be > 0.
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	q := &Queue{
		items:    list.New(),
		capacity: capacity,
	}
	q.notFull = sync.NewCond(&q.mu)
	q.notEmpty = sync.NewCond(&q.mu)
	return q
}

// Enqueue appends job to the tail, blocking while the queue is full.
// It returns false if shutdown was signaled (either already, or while
// waiting for room) instead of admitting the job.
func (q *Queue) Enqueue(job Job) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.items.Len() >= q.capacity && !q.shutdown {
		q.notFull.Wait()
	}
	if q.shutdown {
		return false
	}
	q.items.PushBack(job)
	q.notEmpty.Signal()
	return true
}

// Dequeue removes and returns the head job, blocking while the queue
// is empty. It returns ok=false as soon as shutdown has been signaled,
// even if jobs are still resident — shutdown must bound on the
// longest in-flight transfer, not on queue depth, so workers abandon
// whatever is left rather than draining it. Whatever remains resident
// at that point is freed by DrainOnDestroy, not by further Dequeue
// calls.
func (q *Queue) Dequeue() (job Job, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for q.items.Len() == 0 && !q.shutdown {
		q.notEmpty.Wait()
	}
	if q.shutdown {
		return nil, false
	}
	front := q.items.Front()
	q.items.Remove(front)
	q.notFull.Signal()
	return front.Value, true
}

// SignalShutdown sets the monotone shutdown flag and wakes every
// blocked producer and consumer. Safe to call more than once.
func (q *Queue) SignalShutdown() {
	q.mu.Lock()
	q.shutdown = true
	q.mu.Unlock()
	q.notFull.Broadcast()
	q.notEmpty.Broadcast()
}

// ShuttingDown reports whether shutdown has been signaled.
func (q *Queue) ShuttingDown() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.shutdown
}

// Len returns the current number of resident jobs.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Len()
}

// Cap returns the queue's capacity.
func (q *Queue) Cap() int {
	return q.capacity
}

// DrainOnDestroy frees whatever jobs are still resident — there will
// be some only if shutdown happened mid-flight — and returns them in
// FIFO order. Call only after every consumer has stopped dequeuing.
func (q *Queue) DrainOnDestroy() []Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	drained := make([]Job, 0, q.items.Len())
	for e := q.items.Front(); e != nil; e = e.Next() {
		drained = append(drained, e.Value)
	}
	q.items.Init()
	return drained
}

// WatchContext starts a goroutine that calls SignalShutdown exactly
// once when ctx is canceled. This is the context-based replacement
// for a raw process-global shutdown flag: a signal handler cancels
// ctx, and every blocked Enqueue/Dequeue wakes up from that single
// edge.
func (q *Queue) WatchContext(ctx context.Context) {
	go func() {
		<-ctx.Done()
		q.SignalShutdown()
	}()
}
