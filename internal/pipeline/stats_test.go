package pipeline

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/open-beagle/ndiview/internal/transport"
)

func TestStatsTracker_FrameKindCounters(t *testing.T) {
	st := NewStatsTracker(nil)

	st.RecordFrame(transport.FrameTypeVideo)
	st.RecordFrame(transport.FrameTypeVideo)
	st.RecordFrame(transport.FrameTypeAudio)
	st.RecordFrame(transport.FrameTypeMetadata)
	st.RecordFrame(transport.FrameTypeError)
	st.RecordFrame(transport.FrameTypeNone)

	snap := st.Snapshot()
	assert.Equal(t, int64(2), snap.FrameCount)
	assert.Equal(t, int64(1), snap.AudioFrames)
	assert.Equal(t, int64(1), snap.MetadataFrames)
	assert.Equal(t, int64(1), snap.ErrorFrames)
	assert.Equal(t, int64(1), snap.EmptyReceives)
	assert.NotZero(t, snap.LastFrameTime)
}

func TestStatsTracker_AverageFrameTime(t *testing.T) {
	st := NewStatsTracker(nil)

	// Four deliveries 20ms apart give three 20ms intervals.
	base := time.Now()
	for i := 0; i < 4; i++ {
		st.RecordDelivered(base.Add(time.Duration(i) * 20 * time.Millisecond))
	}

	snap := st.Snapshot()
	assert.Equal(t, int64(4), snap.DeliveredFrames)
	assert.InDelta(t, 20.0, snap.AvgFrameTimeMs, 0.01)
}

func TestStatsTracker_TimingRingWraps(t *testing.T) {
	st := NewStatsTracker(nil)

	base := time.Now()
	// More deliveries than the ring holds; the average covers only the
	// retained tail.
	for i := 0; i < frameTimeBufferSize+50; i++ {
		st.RecordDelivered(base.Add(time.Duration(i) * 10 * time.Millisecond))
	}

	snap := st.Snapshot()
	assert.InDelta(t, 10.0, snap.AvgFrameTimeMs, 0.01)
}

func TestStatsTracker_ResetClearsRates(t *testing.T) {
	st := NewStatsTracker(nil)

	st.RecordFrame(transport.FrameTypeVideo)
	st.RecordSkipped()
	st.RecordDelivered(time.Now())
	st.RecordDrop()
	st.RecordTransportError("receive")
	st.RecordDiscoveryPoll(fmt.Errorf("boom"))

	st.Reset()
	snap := st.Snapshot()

	assert.Equal(t, int64(0), snap.FrameCount)
	assert.Equal(t, int64(0), snap.SkippedFrames)
	assert.Equal(t, int64(0), snap.DeliveredFrames)
	assert.Zero(t, snap.CurrentFPS)
	assert.Zero(t, snap.AvgFrameTimeMs)
	assert.Zero(t, snap.LastFrameTime)

	// Daemon-lifetime counters survive a per-source reset.
	assert.Equal(t, int64(1), snap.DropCount)
	assert.Equal(t, int64(1), snap.TransportErrors)
	assert.Equal(t, int64(1), snap.DiscoveryPolls)
	assert.Equal(t, int64(1), snap.DiscoveryErrors)
}

func TestStatsTracker_CurrentFPS(t *testing.T) {
	st := NewStatsTracker(nil)

	for i := 0; i < 10; i++ {
		st.RecordFrame(transport.FrameTypeVideo)
	}

	snap := st.Snapshot()
	// Ten frames recorded back to back: the windowed rate is high but the
	// exact value depends on scheduling, so only sanity-check it.
	assert.Greater(t, snap.CurrentFPS, 0.0)
	assert.Greater(t, snap.AverageFPS, 0.0)
}
