package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PipelineMetrics is the Prometheus instrument set for the stream pipeline.
// A nil *PipelineMetrics is valid and turns every method into a no-op, so the
// pipeline can run without a metrics manager (tests, embedded use).
type PipelineMetrics struct {
	framesReceived  *prometheus.CounterVec
	framesSkipped   prometheus.Counter
	framesDropped   prometheus.Counter
	framesDelivered prometheus.Counter
	transportErrors *prometheus.CounterVec
	discoveryPolls  *prometheus.CounterVec
	queueDepth      prometheus.Gauge
	currentFPS      prometheus.Gauge
	connectionState prometheus.Gauge
}

// NewPipelineMetrics creates and registers the pipeline instruments on the
// given registry.
func NewPipelineMetrics(registry *prometheus.Registry) (*PipelineMetrics, error) {
	pm := &PipelineMetrics{
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ndiview_frames_received_total",
			Help: "Frames received from the transport, by kind",
		}, []string{"kind"}),
		framesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ndiview_frames_skipped_total",
			Help: "Video frames rejected by the skip policy",
		}),
		framesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ndiview_frames_dropped_total",
			Help: "Video frames discarded on queue overflow",
		}),
		framesDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ndiview_frames_delivered_total",
			Help: "Frames handed to the renderer",
		}),
		transportErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ndiview_transport_errors_total",
			Help: "Transport connect/receive failures, by stage",
		}, []string{"stage"}),
		discoveryPolls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ndiview_discovery_polls_total",
			Help: "Discovery polls, by result",
		}, []string{"result"}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ndiview_queue_depth",
			Help: "Current frame queue depth",
		}),
		currentFPS: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ndiview_receive_fps",
			Help: "Video receive rate over the sliding window",
		}),
		connectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ndiview_connection_state",
			Help: "Connection state (0=disconnected 1=connecting 2=connected 3=failed)",
		}),
	}

	collectors := []prometheus.Collector{
		pm.framesReceived, pm.framesSkipped, pm.framesDropped, pm.framesDelivered,
		pm.transportErrors, pm.discoveryPolls, pm.queueDepth, pm.currentFPS,
		pm.connectionState,
	}
	for _, c := range collectors {
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}

	return pm, nil
}

// RecordFrame counts one received frame of the given kind.
func (pm *PipelineMetrics) RecordFrame(kind string) {
	if pm == nil {
		return
	}
	pm.framesReceived.WithLabelValues(kind).Inc()
}

// RecordSkipped counts one skipped video frame.
func (pm *PipelineMetrics) RecordSkipped() {
	if pm == nil {
		return
	}
	pm.framesSkipped.Inc()
}

// RecordDrop counts one dropped video frame.
func (pm *PipelineMetrics) RecordDrop() {
	if pm == nil {
		return
	}
	pm.framesDropped.Inc()
}

// RecordDelivered counts one delivered frame.
func (pm *PipelineMetrics) RecordDelivered() {
	if pm == nil {
		return
	}
	pm.framesDelivered.Inc()
}

// RecordTransportError counts one transport failure for the given stage
// ("connect" or "receive").
func (pm *PipelineMetrics) RecordTransportError(stage string) {
	if pm == nil {
		return
	}
	pm.transportErrors.WithLabelValues(stage).Inc()
}

// RecordDiscoveryPoll counts one discovery poll.
func (pm *PipelineMetrics) RecordDiscoveryPoll(failed bool) {
	if pm == nil {
		return
	}
	result := "ok"
	if failed {
		result = "error"
	}
	pm.discoveryPolls.WithLabelValues(result).Inc()
}

// SetQueueDepth sets the queue depth gauge.
func (pm *PipelineMetrics) SetQueueDepth(depth int) {
	if pm == nil {
		return
	}
	pm.queueDepth.Set(float64(depth))
}

// SetCurrentFPS sets the receive FPS gauge.
func (pm *PipelineMetrics) SetCurrentFPS(fps float64) {
	if pm == nil {
		return
	}
	pm.currentFPS.Set(fps)
}

// SetConnectionState sets the connection state gauge.
func (pm *PipelineMetrics) SetConnectionState(state int) {
	if pm == nil {
		return
	}
	pm.connectionState.Set(float64(state))
}
