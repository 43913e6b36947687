package pipeline

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/open-beagle/ndiview/internal/config"
	"github.com/open-beagle/ndiview/internal/metrics"
	"github.com/open-beagle/ndiview/internal/transport"
)

// Renderer consumes accepted video frames. It is responsible for color
// conversion, scaling and display; the pipeline only guarantees rate and
// ordering, never pixel semantics.
type Renderer interface {
	Render(frame *transport.Frame) error
}

// RendererFunc adapts a function to the Renderer interface.
type RendererFunc func(frame *transport.Frame) error

// Render implements Renderer.
func (f RendererFunc) Render(frame *transport.Frame) error {
	return f(frame)
}

// ConsumptionScheduler drains the queue at a bounded rate. On each tick it
// delivers at most one frame, and never before 1/MaxFPS has elapsed since the
// last delivery: bursts are smoothed by the ceiling, gaps are tolerated by
// the non-blocking dequeue. The delivery path never blocks and never gates on
// the slower stats tick.
type ConsumptionScheduler struct {
	cfg      *config.PipelineConfig
	queue    *BoundedFrameQueue
	stats    *StatsTracker
	renderer Renderer
	prom     *metrics.PipelineMetrics
	logger   *logrus.Entry

	minInterval  time.Duration
	lastDelivery time.Time
}

// NewConsumptionScheduler creates the scheduler. prom may be nil.
func NewConsumptionScheduler(cfg *config.PipelineConfig, queue *BoundedFrameQueue, stats *StatsTracker,
	renderer Renderer, prom *metrics.PipelineMetrics, logger *logrus.Entry) *ConsumptionScheduler {
	if logger == nil {
		logger = logrus.WithField("component", "scheduler")
	}
	return &ConsumptionScheduler{
		cfg:         cfg,
		queue:       queue,
		stats:       stats,
		renderer:    renderer,
		prom:        prom,
		logger:      logger,
		minInterval: time.Second / time.Duration(cfg.MaxFPS),
	}
}

// SetRenderer replaces the delivery target. Must be called before Run.
func (s *ConsumptionScheduler) SetRenderer(r Renderer) {
	s.renderer = r
}

// Run drives the tick loop until ctx is cancelled. Delivery ticks run at
// TickInterval; stats observation runs on a separate slower tick.
func (s *ConsumptionScheduler) Run(ctx context.Context) error {
	s.logger.Info("Consumption scheduler started")
	defer s.logger.Info("Consumption scheduler stopped")

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	statsTicker := time.NewTicker(s.cfg.StatsInterval)
	defer statsTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			s.Tick(now)
		case <-statsTicker.C:
			s.observeStats()
		}
	}
}

// Tick runs one scheduler tick at the given time. It delivers at most one
// frame and reports whether a delivery happened. Exported so the tick policy
// is testable without real time.
func (s *ConsumptionScheduler) Tick(now time.Time) bool {
	if !s.lastDelivery.IsZero() && now.Sub(s.lastDelivery) < s.minInterval {
		return false
	}

	frame, ok := s.queue.TryDequeue()
	if !ok {
		return false
	}

	s.lastDelivery = now

	if err := s.renderer.Render(frame); err != nil {
		// Renderer trouble is an observability concern, not a pipeline
		// fault: the frame is consumed either way.
		s.logger.Warnf("Renderer error: %v", err)
	}

	s.stats.RecordDelivered(now)
	return true
}

// observeStats publishes the periodic observability snapshot. This never
// gates the delivery path.
func (s *ConsumptionScheduler) observeStats() {
	snap := s.stats.Snapshot()
	s.prom.SetQueueDepth(s.queue.Len())
	s.prom.SetCurrentFPS(snap.CurrentFPS)

	s.logger.Debugf("Stats: %d frames, %.2f fps, %d dropped, %d skipped, avg frame time %.2fms",
		snap.FrameCount, snap.CurrentFPS, snap.DropCount, snap.SkippedFrames, snap.AvgFrameTimeMs)
}
