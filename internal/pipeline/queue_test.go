package pipeline

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-beagle/ndiview/internal/transport"
)

func testVideoFrame(id int) *transport.Frame {
	return transport.NewVideoFrame([]byte{byte(id)}, 2, 2, "UYVY", int64(id))
}

func TestBoundedFrameQueue_FIFOOrder(t *testing.T) {
	q := NewBoundedFrameQueue(3)

	for i := 1; i <= 3; i++ {
		assert.True(t, q.TryEnqueue(testVideoFrame(i)))
	}

	for i := 1; i <= 3; i++ {
		frame, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, int64(i), frame.Timecode)
	}

	_, ok := q.TryDequeue()
	assert.False(t, ok)
}

func TestBoundedFrameQueue_RejectsWhenFull(t *testing.T) {
	q := NewBoundedFrameQueue(2)

	assert.True(t, q.TryEnqueue(testVideoFrame(1)))
	assert.True(t, q.TryEnqueue(testVideoFrame(2)))
	assert.False(t, q.TryEnqueue(testVideoFrame(3)))
	assert.Equal(t, 2, q.Len())

	// Existing contents survive the rejected offer.
	frame, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, int64(1), frame.Timecode)

	// After a dequeue the slot is available again.
	assert.True(t, q.TryEnqueue(testVideoFrame(4)))

	frame, ok = q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, int64(2), frame.Timecode)
	frame, ok = q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, int64(4), frame.Timecode)
}

func TestBoundedFrameQueue_Clear(t *testing.T) {
	q := NewBoundedFrameQueue(2)
	q.TryEnqueue(testVideoFrame(1))
	q.TryEnqueue(testVideoFrame(2))

	assert.Equal(t, 2, q.Clear())
	assert.Equal(t, 0, q.Len())

	_, ok := q.TryDequeue()
	assert.False(t, ok)

	// Clearing an empty queue is a no-op.
	assert.Equal(t, 0, q.Clear())
}

func TestBoundedFrameQueue_CapacityClamp(t *testing.T) {
	tests := []struct {
		requested int
		expected  int
	}{
		{requested: -1, expected: 1},
		{requested: 0, expected: 1},
		{requested: 1, expected: 1},
		{requested: 8, expected: 8},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("cap_%d", tt.requested), func(t *testing.T) {
			q := NewBoundedFrameQueue(tt.requested)
			assert.Equal(t, tt.expected, q.Cap())
		})
	}
}

func TestBoundedFrameQueue_ConcurrentProducerConsumer(t *testing.T) {
	q := NewBoundedFrameQueue(2)

	const offers = 1000
	var wg sync.WaitGroup
	var dequeued int

	done := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			if _, ok := q.TryDequeue(); ok {
				dequeued++
			}
			select {
			case <-done:
				// Drain what the producer left behind.
				for {
					if _, ok := q.TryDequeue(); !ok {
						return
					}
					dequeued++
				}
			default:
			}
		}
	}()

	accepted := 0
	for i := 0; i < offers; i++ {
		if q.TryEnqueue(testVideoFrame(i)) {
			accepted++
		}
	}
	close(done)
	wg.Wait()

	// Every accepted frame comes out exactly once; rejected offers vanish.
	assert.Equal(t, accepted, dequeued)
	assert.Equal(t, 0, q.Len())
}
