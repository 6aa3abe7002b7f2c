package scheduler

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

var _ workQueue = (*MemoryQueue)(nil)

// MemoryQueue is an in-process work queue with the same at-most-once
// admission contract as ExecutionQueue, keyed by tracker id. It exists
// for development runs without a worker fleet and for tests.
type MemoryQueue struct {
	mu       sync.RWMutex
	requests map[uuid.UUID]ExecutionRequest
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{
		requests: make(map[uuid.UUID]ExecutionRequest),
	}
}

// Enqueue admits the request unless one with the same tracker id is
// already held, and reports whether this call admitted it.
func (q *MemoryQueue) Enqueue(_ context.Context, req ExecutionRequest) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.requests[req.TrackerID]; ok {
		return false, nil
	}

	q.requests[req.TrackerID] = req

	return true, nil
}

// Take removes and returns the request for the tracker, the way a worker
// claims it.
func (q *MemoryQueue) Take(trackerID uuid.UUID) (ExecutionRequest, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	req, ok := q.requests[trackerID]
	if ok {
		delete(q.requests, trackerID)
	}

	return req, ok
}

func (q *MemoryQueue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return len(q.requests)
}

// Range visits every queued request until fn returns false.
func (q *MemoryQueue) Range(fn func(req ExecutionRequest) bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	for _, req := range q.requests {
		if !fn(req) {
			break
		}
	}
}
