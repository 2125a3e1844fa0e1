// Package memq provides the in-process job queue and its single worker loop.
package memq

import (
	"context"
	"sync"
)

// Queue is an unbounded in-memory FIFO of job ids. Enqueue never blocks;
// Dequeue blocks until an id is available or the context is cancelled.
// Exactly one consumer is expected; enqueuers may be many.
type Queue struct {
	mu       sync.Mutex
	items    []string
	nonEmpty chan struct{}
}

// New constructs an empty queue.
func New() *Queue {
	return &Queue{nonEmpty: make(chan struct{}, 1)}
}

// Enqueue appends a job id. It never blocks and never fails.
func (q *Queue) Enqueue(jobID string) {
	q.mu.Lock()
	q.items = append(q.items, jobID)
	q.mu.Unlock()
	select {
	case q.nonEmpty <- struct{}{}:
	default:
	}
}

// Dequeue removes and returns the oldest id, waiting as needed.
func (q *Queue) Dequeue(ctx context.Context) (string, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			id := q.items[0]
			q.items = q.items[1:]
			if len(q.items) > 0 {
				// Keep the signal armed for the remaining items.
				select {
				case q.nonEmpty <- struct{}{}:
				default:
				}
			}
			q.mu.Unlock()
			return id, nil
		}
		q.mu.Unlock()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-q.nonEmpty:
		}
	}
}

// Len reports the number of queued ids.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
