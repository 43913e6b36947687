package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-beagle/ndiview/internal/config"
	"github.com/open-beagle/ndiview/internal/transport"
)

func fastPipelineConfig() *config.PipelineConfig {
	cfg := config.DefaultPipelineConfig()
	cfg.IdleBackoff = time.Millisecond
	cfg.FailureBackoff = time.Millisecond
	cfg.ReceiveTimeout = time.Millisecond
	return cfg
}

func newTestIngest(cfg *config.PipelineConfig, connector *fakeConnector) (*FrameIngestLoop, *BoundedFrameQueue, *StatsTracker, *atomic.Pointer[transport.Source]) {
	stats := NewStatsTracker(nil)
	queue := NewBoundedFrameQueue(cfg.QueueSize)
	conn := NewConnectionManager(connector, stats, nil)
	var selected atomic.Pointer[transport.Source]
	loop := NewFrameIngestLoop(cfg, conn, queue, stats, &selected, nil)
	return loop, queue, stats, &selected
}

func TestFrameIngestLoop_SkipAndDropPolicy(t *testing.T) {
	cfg := fastPipelineConfig()
	require.Equal(t, 2, cfg.FrameSkip)
	require.Equal(t, 2, cfg.QueueSize)

	loop, queue, stats, _ := newTestIngest(cfg, &fakeConnector{})

	// Ten video frames with skip 1-of-2: offers at 0,2,4,6,8. The queue
	// holds two, so three of the five offers drop.
	for i := 0; i < 10; i++ {
		loop.handleFrame(testVideoFrame(i))
	}

	snap := stats.Snapshot()
	assert.Equal(t, int64(10), snap.FrameCount)
	assert.Equal(t, int64(5), snap.SkippedFrames)
	assert.Equal(t, int64(3), snap.DropCount)
	assert.Equal(t, 2, queue.Len())

	// The two queued frames are the first two offers, in order.
	frame, ok := queue.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, int64(0), frame.Timecode)
	frame, ok = queue.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, int64(2), frame.Timecode)
}

func TestFrameIngestLoop_NonVideoFramesCountedOnly(t *testing.T) {
	cfg := fastPipelineConfig()
	loop, queue, stats, _ := newTestIngest(cfg, &fakeConnector{})

	loop.handleFrame(transport.NewAudioFrame(make([]byte, 4), 48000, 2, 1, 0))
	loop.handleFrame(transport.NewMetadataFrame("<x/>", 0))
	loop.handleFrame(&transport.Frame{Type: transport.FrameTypeError})
	loop.handleFrame(&transport.Frame{Type: transport.FrameTypeNone})

	snap := stats.Snapshot()
	assert.Equal(t, int64(0), snap.FrameCount)
	assert.Equal(t, int64(1), snap.AudioFrames)
	assert.Equal(t, int64(1), snap.MetadataFrames)
	assert.Equal(t, int64(1), snap.ErrorFrames)
	assert.Equal(t, int64(1), snap.EmptyReceives)
	assert.Equal(t, 0, queue.Len())
}

func TestFrameIngestLoop_SelectionChangeClearsQueue(t *testing.T) {
	cfg := fastPipelineConfig()
	loop, queue, _, _ := newTestIngest(cfg, &fakeConnector{})

	loop.observeSelection(&transport.Source{Name: "CAM-1"})
	loop.handleFrame(testVideoFrame(1))
	loop.handleFrame(testVideoFrame(2))
	loop.handleFrame(testVideoFrame(3))
	require.Equal(t, 2, queue.Len())

	// Changing the selection discards queued frames and restarts the skip
	// counter, so the next frame from the new source is offered.
	loop.observeSelection(&transport.Source{Name: "CAM-2"})
	assert.Equal(t, 0, queue.Len())

	loop.handleFrame(testVideoFrame(10))
	assert.Equal(t, 1, queue.Len())

	// Same selection again is a no-op.
	loop.observeSelection(&transport.Source{Name: "CAM-2"})
	assert.Equal(t, 1, queue.Len())
}

func TestFrameIngestLoop_RunConnectsAndIngests(t *testing.T) {
	cfg := fastPipelineConfig()
	connector := &fakeConnector{
		nextScript: []receiveResult{
			{frame: testVideoFrame(1)},
			{frame: testVideoFrame(2)},
			{frame: testVideoFrame(3)},
		},
	}
	loop, queue, stats, selected := newTestIngest(cfg, connector)
	selected.Store(&transport.Source{Name: "CAM-1"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	require.Eventually(t, func() bool {
		return stats.Snapshot().FrameCount >= 3
	}, time.Second, time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	snap := stats.Snapshot()
	assert.Equal(t, int64(3), snap.FrameCount)
	assert.Equal(t, int64(1), snap.SkippedFrames)
	assert.GreaterOrEqual(t, queue.Len(), 1)
}

func TestFrameIngestLoop_ReceiveFailureRecovers(t *testing.T) {
	cfg := fastPipelineConfig()
	connector := &fakeConnector{
		nextScript: []receiveResult{
			{frame: testVideoFrame(1)},
			{err: fmt.Errorf("stream reset")},
		},
	}
	loop, _, stats, selected := newTestIngest(cfg, connector)
	selected.Store(&transport.Source{Name: "CAM-1"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	// The loop survives the transport error and reconnects on its own.
	require.Eventually(t, func() bool {
		return connector.connectCount() >= 2
	}, time.Second, time.Millisecond)

	snap := stats.Snapshot()
	assert.GreaterOrEqual(t, snap.TransportErrors, int64(1))

	cancel()
	require.NoError(t, <-done)
}
