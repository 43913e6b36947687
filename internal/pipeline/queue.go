package pipeline

import (
	"sync"

	"github.com/open-beagle/ndiview/internal/transport"
)

// BoundedFrameQueue is the fixed-capacity handoff buffer between the ingest
// loop (producer) and the consumption scheduler (consumer). Capacity is fixed
// at construction and never resized, which bounds worst-case memory to
// capacity x max frame size regardless of producer/consumer speed mismatch.
//
// All operations are non-blocking and go through one mutex; the backing
// storage is never exposed. Frames come out in insertion order.
type BoundedFrameQueue struct {
	mu       sync.Mutex
	frames   []*transport.Frame
	head     int
	length   int
	capacity int
}

// NewBoundedFrameQueue creates a queue with the given fixed capacity.
// Capacity below 1 is clamped to 1.
func NewBoundedFrameQueue(capacity int) *BoundedFrameQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &BoundedFrameQueue{
		frames:   make([]*transport.Frame, capacity),
		capacity: capacity,
	}
}

// TryEnqueue offers a frame to the queue. It never blocks; if the queue is
// full the frame is rejected, existing contents are untouched, and false is
// returned. The caller owns rejected frames.
func (q *BoundedFrameQueue) TryEnqueue(frame *transport.Frame) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.length == q.capacity {
		return false
	}

	q.frames[(q.head+q.length)%q.capacity] = frame
	q.length++
	return true
}

// TryDequeue removes and returns the oldest frame. It never blocks; the
// second return value is false when the queue is empty.
func (q *BoundedFrameQueue) TryDequeue() (*transport.Frame, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.length == 0 {
		return nil, false
	}

	frame := q.frames[q.head]
	q.frames[q.head] = nil
	q.head = (q.head + 1) % q.capacity
	q.length--
	return frame, true
}

// Clear discards all queued frames and returns how many were discarded.
// It runs under the same mutex as enqueue/dequeue, so a frame from before
// the clear can never be dequeued after it.
func (q *BoundedFrameQueue) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	discarded := q.length
	for i := range q.frames {
		q.frames[i] = nil
	}
	q.head = 0
	q.length = 0
	return discarded
}

// Len returns the current queue depth.
func (q *BoundedFrameQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.length
}

// Cap returns the fixed capacity.
func (q *BoundedFrameQueue) Cap() int {
	return q.capacity
}
