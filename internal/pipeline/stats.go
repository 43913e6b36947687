package pipeline

import (
	"sync"
	"time"

	"github.com/open-beagle/ndiview/internal/metrics"
	"github.com/open-beagle/ndiview/internal/transport"
)

const (
	// frameTimeBufferSize keeps the last N delivery intervals for the
	// average frame time calculation.
	frameTimeBufferSize = 100

	// fpsWindowSize is the number of received frames in the sliding FPS window.
	fpsWindowSize = 60
)

// Snapshot is a read-only view of the pipeline statistics, safe to serialize
// and hand to observers.
type Snapshot struct {
	// FrameCount counts video frames received from the transport since start
	// or the last selection change.
	FrameCount int64 `json:"frame_count"`

	// AudioFrames, MetadataFrames, ErrorFrames and EmptyReceives count the
	// non-video receive results.
	AudioFrames    int64 `json:"audio_frames"`
	MetadataFrames int64 `json:"metadata_frames"`
	ErrorFrames    int64 `json:"error_frames"`
	EmptyReceives  int64 `json:"empty_receives"`

	// SkippedFrames counts video frames rejected by the skip policy.
	SkippedFrames int64 `json:"skipped_frames"`

	// DropCount counts video frames discarded because the queue was full.
	DropCount int64 `json:"drop_count"`

	// DeliveredFrames counts frames handed to the renderer.
	DeliveredFrames int64 `json:"delivered_frames"`

	// TransportErrors counts connect and receive failures.
	TransportErrors int64 `json:"transport_errors"`

	// DiscoveryPolls and DiscoveryErrors count discovery activity.
	DiscoveryPolls  int64 `json:"discovery_polls"`
	DiscoveryErrors int64 `json:"discovery_errors"`

	// CurrentFPS is the receive rate over the sliding window; AverageFPS is
	// the rate since start.
	CurrentFPS float64 `json:"current_fps"`
	AverageFPS float64 `json:"average_fps"`

	// AvgFrameTimeMs is the mean interval between deliveries over the last
	// 100 deliveries, in milliseconds.
	AvgFrameTimeMs float64 `json:"avg_frame_time_ms"`

	// StartTime and LastFrameTime are unix milliseconds.
	StartTime     int64 `json:"start_time"`
	LastFrameTime int64 `json:"last_frame_time"`

	// UptimeSeconds is the time since start or the last selection change.
	UptimeSeconds float64 `json:"uptime_seconds"`

	// ConnectionState is the textual connection state.
	ConnectionState string `json:"connection_state"`

	// ConnectedSource is the name of the currently connected source, if any.
	ConnectedSource string `json:"connected_source,omitempty"`
}

// StatsTracker accumulates counters from the registry, ingest loop and
// scheduler. All methods are safe for concurrent use. A nil metrics set
// disables Prometheus updates without branching at the call sites.
type StatsTracker struct {
	mu sync.RWMutex

	frameCount     int64
	audioFrames    int64
	metadataFrames int64
	errorFrames    int64
	emptyReceives  int64

	skippedFrames   int64
	dropCount       int64
	deliveredFrames int64

	transportErrors int64
	discoveryPolls  int64
	discoveryErrors int64

	startTime     time.Time
	lastFrameTime time.Time

	fpsWindow  []time.Time
	currentFPS float64

	frameTimes   []time.Duration
	timingIndex  int
	timingCount  int
	lastDelivery time.Time

	prom *metrics.PipelineMetrics
}

// NewStatsTracker creates a tracker. prom may be nil.
func NewStatsTracker(prom *metrics.PipelineMetrics) *StatsTracker {
	return &StatsTracker{
		startTime:  time.Now(),
		fpsWindow:  make([]time.Time, 0, fpsWindowSize),
		frameTimes: make([]time.Duration, frameTimeBufferSize),
		prom:       prom,
	}
}

// RecordFrame records one receive result by kind. Video frames feed the FPS
// window; other kinds are counted only.
func (st *StatsTracker) RecordFrame(kind transport.FrameType) {
	st.mu.Lock()
	defer st.mu.Unlock()

	switch kind {
	case transport.FrameTypeVideo:
		now := time.Now()
		st.frameCount++
		st.lastFrameTime = now

		st.fpsWindow = append(st.fpsWindow, now)
		if len(st.fpsWindow) > fpsWindowSize {
			st.fpsWindow = st.fpsWindow[1:]
		}
		if len(st.fpsWindow) > 1 {
			windowDuration := st.fpsWindow[len(st.fpsWindow)-1].Sub(st.fpsWindow[0]).Seconds()
			if windowDuration > 0 {
				st.currentFPS = float64(len(st.fpsWindow)-1) / windowDuration
			}
		}
	case transport.FrameTypeAudio:
		st.audioFrames++
	case transport.FrameTypeMetadata:
		st.metadataFrames++
	case transport.FrameTypeError:
		st.errorFrames++
	case transport.FrameTypeNone:
		st.emptyReceives++
	}

	st.prom.RecordFrame(kind.String())
}

// RecordSkipped records a video frame rejected by the skip policy.
func (st *StatsTracker) RecordSkipped() {
	st.mu.Lock()
	st.skippedFrames++
	st.mu.Unlock()

	st.prom.RecordSkipped()
}

// RecordDrop records a video frame discarded on queue overflow.
func (st *StatsTracker) RecordDrop() {
	st.mu.Lock()
	st.dropCount++
	st.mu.Unlock()

	st.prom.RecordDrop()
}

// RecordDelivered records a frame handed to the renderer and updates the
// delivery interval ring.
func (st *StatsTracker) RecordDelivered(now time.Time) {
	st.mu.Lock()
	st.deliveredFrames++
	if !st.lastDelivery.IsZero() {
		st.frameTimes[st.timingIndex] = now.Sub(st.lastDelivery)
		st.timingIndex = (st.timingIndex + 1) % len(st.frameTimes)
		if st.timingCount < len(st.frameTimes) {
			st.timingCount++
		}
	}
	st.lastDelivery = now
	st.mu.Unlock()

	st.prom.RecordDelivered()
}

// RecordTransportError records a connect or receive failure.
func (st *StatsTracker) RecordTransportError(stage string) {
	st.mu.Lock()
	st.transportErrors++
	st.mu.Unlock()

	st.prom.RecordTransportError(stage)
}

// RecordDiscoveryPoll records one completed discovery poll.
func (st *StatsTracker) RecordDiscoveryPoll(err error) {
	st.mu.Lock()
	st.discoveryPolls++
	if err != nil {
		st.discoveryErrors++
	}
	st.mu.Unlock()

	st.prom.RecordDiscoveryPoll(err != nil)
}

// Reset clears the rate counters and windows. Called on selection change so
// FPS reflects the newly selected source.
func (st *StatsTracker) Reset() {
	st.mu.Lock()
	defer st.mu.Unlock()

	st.frameCount = 0
	st.audioFrames = 0
	st.metadataFrames = 0
	st.errorFrames = 0
	st.emptyReceives = 0
	st.skippedFrames = 0
	st.deliveredFrames = 0
	st.startTime = time.Now()
	st.lastFrameTime = time.Time{}
	st.lastDelivery = time.Time{}
	st.currentFPS = 0
	st.fpsWindow = st.fpsWindow[:0]
	st.timingIndex = 0
	st.timingCount = 0
	for i := range st.frameTimes {
		st.frameTimes[i] = 0
	}
}

// Snapshot returns the current statistics. Connection fields are filled in
// by the caller.
func (st *StatsTracker) Snapshot() Snapshot {
	st.mu.RLock()
	defer st.mu.RUnlock()

	now := time.Now()
	elapsed := now.Sub(st.startTime).Seconds()

	snap := Snapshot{
		FrameCount:      st.frameCount,
		AudioFrames:     st.audioFrames,
		MetadataFrames:  st.metadataFrames,
		ErrorFrames:     st.errorFrames,
		EmptyReceives:   st.emptyReceives,
		SkippedFrames:   st.skippedFrames,
		DropCount:       st.dropCount,
		DeliveredFrames: st.deliveredFrames,
		TransportErrors: st.transportErrors,
		DiscoveryPolls:  st.discoveryPolls,
		DiscoveryErrors: st.discoveryErrors,
		CurrentFPS:      st.currentFPS,
		StartTime:       st.startTime.UnixMilli(),
		UptimeSeconds:   elapsed,
	}

	if !st.lastFrameTime.IsZero() {
		snap.LastFrameTime = st.lastFrameTime.UnixMilli()
	}

	if elapsed > 0 {
		snap.AverageFPS = float64(st.frameCount) / elapsed
	}

	if st.timingCount > 0 {
		var sum time.Duration
		for i := 0; i < st.timingCount; i++ {
			sum += st.frameTimes[i]
		}
		snap.AvgFrameTimeMs = sum.Seconds() * 1000 / float64(st.timingCount)
	}

	return snap
}
