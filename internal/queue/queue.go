// Package queue implements the Offload Queue (C6): a bounded FIFO of offload
// jobs with a drop-new-on-full backpressure policy (spec §4.2, I6).
//
// original_source/app/offload_queue.py drops the OLDEST job on overflow
// (popleft then always append); spec §4.2/§8 literally requires the
// opposite — the incoming job is dropped and the queue is left unchanged.
// This is a deliberate divergence from the original, documented in
// DESIGN.md, in favor of spec's literal semantics.
package queue

import (
	"sync"
	"sync/atomic"

	"github.com/elevend0g/vicw/internal/model"
)

// Queue is a bounded, mutex-guarded FIFO safe for concurrent producers and a single consumer.
type Queue struct {
	mu       sync.Mutex
	items    []model.OffloadJob
	capacity int

	dropped atomic.Int64
	enqueued atomic.Int64
}

// New constructs a queue with the given capacity (Q_max).
func New(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 100
	}
	return &Queue{capacity: capacity}
}

// Enqueue appends job unless the queue is at capacity, in which case the job is dropped and the
// drop counter increments. Never blocks (spec: "queue enqueue never suspends").
func (q *Queue) Enqueue(job model.OffloadJob) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= q.capacity {
		q.dropped.Add(1)
		return false
	}
	q.items = append(q.items, job)
	q.enqueued.Add(1)
	return true
}

// DrainBatch removes and returns up to n jobs from the front of the queue, in FIFO order.
func (q *Queue) DrainBatch(n int) []model.OffloadJob {
	q.mu.Lock()
	defer q.mu.Unlock()

	if n <= 0 || len(q.items) == 0 {
		return nil
	}
	if n > len(q.items) {
		n = len(q.items)
	}
	batch := make([]model.OffloadJob, n)
	copy(batch, q.items[:n])
	q.items = q.items[n:]
	return batch
}

// Len returns the current queue size.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Capacity returns Q_max.
func (q *Queue) Capacity() int { return q.capacity }

// Stats is the §6 /stats "queue" payload shape.
type Stats struct {
	CurrentSize    int
	MaxSize        int
	EnqueuedTotal  int64
	ProcessedTotal int64
	DroppedTotal   int64
}

// DroppedTotal returns the running drop counter.
func (q *Queue) DroppedTotal() int64 { return q.dropped.Load() }

// EnqueuedTotal returns the running enqueue counter (includes both drained and pending jobs).
func (q *Queue) EnqueuedTotal() int64 { return q.enqueued.Load() }
