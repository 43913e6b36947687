// Package pipeline implements the stream acquisition and delivery pipeline:
// source discovery polling, connection lifecycle, a bounded producer/consumer
// frame queue with drop/skip policy, and a rate-limited consumption loop with
// liveness statistics.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/open-beagle/ndiview/internal/config"
	"github.com/open-beagle/ndiview/internal/metrics"
	"github.com/open-beagle/ndiview/internal/transport"
)

// ManagerConfig carries the dependencies for a pipeline Manager.
type ManagerConfig struct {
	Config    *config.PipelineConfig
	Discovery transport.Discovery
	Connector transport.Connector
	Renderer  Renderer
	Metrics   *metrics.PipelineMetrics
	Logger    *logrus.Entry

	// StopJoinTimeout bounds how long Stop waits for the background loops.
	// Zero means 5s.
	StopJoinTimeout time.Duration
}

// Manager composes the pipeline components and owns their lifecycle. It is
// the single outward surface: source selection, manual refresh, stats
// snapshots and shutdown all go through here.
type Manager struct {
	config *config.PipelineConfig
	logger *logrus.Entry

	registry  *SourceRegistry
	conn      *ConnectionManager
	queue     *BoundedFrameQueue
	ingest    *FrameIngestLoop
	scheduler *ConsumptionScheduler
	stats     *StatsTracker
	prom      *metrics.PipelineMetrics
	renderer  Renderer

	// selected is written by the control plane and read by the ingest loop;
	// stale reads for up to one loop iteration are acceptable.
	selected atomic.Pointer[transport.Source]

	stopJoinTimeout time.Duration

	running   bool
	startTime time.Time
	mutex     sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group
	done   chan struct{}
}

// NewManager creates a pipeline manager.
func NewManager(ctx context.Context, cfg *ManagerConfig) (*Manager, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}
	if cfg == nil {
		return nil, fmt.Errorf("manager config is required")
	}
	if cfg.Config == nil {
		return nil, fmt.Errorf("pipeline config is required")
	}
	if cfg.Discovery == nil {
		return nil, fmt.Errorf("discovery service is required")
	}
	if cfg.Connector == nil {
		return nil, fmt.Errorf("connector is required")
	}
	if err := cfg.Config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline config: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logrus.WithField("component", "pipeline")
	}

	stopJoin := cfg.StopJoinTimeout
	if stopJoin <= 0 {
		stopJoin = 5 * time.Second
	}

	childCtx, cancel := context.WithCancel(ctx)

	m := &Manager{
		config:          cfg.Config,
		logger:          logger,
		prom:            cfg.Metrics,
		stopJoinTimeout: stopJoin,
		ctx:             childCtx,
		cancel:          cancel,
	}

	m.stats = NewStatsTracker(cfg.Metrics)
	m.queue = NewBoundedFrameQueue(cfg.Config.QueueSize)
	m.registry = NewSourceRegistry(cfg.Discovery, cfg.Config, m.stats, logger.WithField("component", "registry"))
	m.conn = NewConnectionManager(cfg.Connector, m.stats, logger.WithField("component", "connection"))
	m.ingest = NewFrameIngestLoop(cfg.Config, m.conn, m.queue, m.stats, &m.selected, logger.WithField("component", "ingest"))
	m.renderer = cfg.Renderer
	m.scheduler = NewConsumptionScheduler(cfg.Config, m.queue, m.stats, cfg.Renderer, cfg.Metrics, logger.WithField("component", "scheduler"))

	m.conn.SetStateChangeCallback(func(_, newState ConnectionState) {
		m.prom.SetConnectionState(int(newState))
	})

	return m, nil
}

// SetRenderer installs the delivery target. The renderer may arrive after
// construction because the preview hub needs the manager first; it must be
// set before Start.
func (m *Manager) SetRenderer(r Renderer) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.renderer = r
	m.scheduler.SetRenderer(r)
}

// Start launches the discovery, ingest and scheduler loops.
func (m *Manager) Start(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.running {
		return fmt.Errorf("pipeline manager already running")
	}
	if m.renderer == nil {
		return fmt.Errorf("renderer is required before start")
	}

	m.logger.Info("Starting pipeline manager...")
	m.startTime = time.Now()

	group, groupCtx := errgroup.WithContext(m.ctx)
	m.group = group
	m.done = make(chan struct{})

	group.Go(func() error { return m.registry.Run(groupCtx) })
	group.Go(func() error { return m.ingest.Run(groupCtx) })
	group.Go(func() error { return m.scheduler.Run(groupCtx) })

	go func() {
		if err := group.Wait(); err != nil {
			m.logger.Errorf("Pipeline loop exited with error: %v", err)
		}
		close(m.done)
	}()

	m.running = true
	m.logger.Info("Pipeline manager started successfully")
	return nil
}

// Stop cancels the background loops, waits for them with a bounded timeout,
// and releases transport resources unconditionally, regardless of whether
// the loops exited cleanly.
func (m *Manager) Stop(ctx context.Context) error {
	m.mutex.Lock()
	if !m.running {
		m.mutex.Unlock()
		return nil
	}
	m.running = false
	done := m.done
	m.mutex.Unlock()

	m.logger.Info("Stopping pipeline manager...")
	m.cancel()

	joined := true
	if done != nil {
		timer := time.NewTimer(m.stopJoinTimeout)
		defer timer.Stop()

		select {
		case <-done:
		case <-timer.C:
			joined = false
			m.logger.Warnf("Pipeline loops did not exit within %v, releasing resources anyway", m.stopJoinTimeout)
		case <-ctx.Done():
			joined = false
			m.logger.Warn("Stop context cancelled before pipeline loops exited, releasing resources anyway")
		}
	}

	// Resource release must not depend on the join succeeding.
	m.conn.Close()
	if err := m.registry.Close(); err != nil {
		m.logger.Warnf("Error closing discovery: %v", err)
	}

	if discarded := m.queue.Clear(); discarded > 0 {
		m.logger.Debugf("Discarded %d queued frames on shutdown", discarded)
	}

	if !joined {
		return fmt.Errorf("pipeline loops did not exit before timeout")
	}

	m.logger.Info("Pipeline manager stopped successfully")
	return nil
}

// SelectSource selects the named source for viewing. An empty name clears
// the selection. The ingest loop observes the change asynchronously within
// one loop iteration; rate statistics restart for the new source.
func (m *Manager) SelectSource(name string) {
	if name == "" {
		m.selected.Store(nil)
		m.stats.Reset()
		m.logger.Info("Source selection cleared")
		return
	}

	current := m.selected.Load()
	if current != nil && current.Name == name {
		return
	}

	// Selecting a source that discovery has not reported yet is allowed:
	// the connect will fail and retry until the source appears.
	source := transport.Source{Name: name}
	if cached, ok := m.registry.Lookup(name); ok {
		source = cached
	}

	m.selected.Store(&source)
	m.stats.Reset()
	m.logger.Infof("Selected source %q", name)
}

// SelectedSource returns the currently selected source name, or "".
func (m *Manager) SelectedSource() string {
	if sel := m.selected.Load(); sel != nil {
		return sel.Name
	}
	return ""
}

// Sources returns the cached discovery results.
func (m *Manager) Sources() []transport.Source {
	return m.registry.Sources()
}

// RefreshSources performs an out-of-cadence discovery poll with the given
// timeout (zero uses the configured refresh timeout).
func (m *Manager) RefreshSources(timeout time.Duration) ([]transport.Source, error) {
	return m.registry.Refresh(timeout)
}

// ConnectionState returns the current connection state.
func (m *Manager) ConnectionState() ConnectionState {
	return m.conn.State()
}

// Stats returns a point-in-time snapshot of the pipeline statistics.
func (m *Manager) Stats() Snapshot {
	snap := m.stats.Snapshot()
	snap.ConnectionState = m.conn.State().String()
	snap.ConnectedSource = m.conn.ConnectedName()
	return snap
}

// QueueDepth returns the current frame queue depth.
func (m *Manager) QueueDepth() int {
	return m.queue.Len()
}

// IsRunning reports whether the manager is running.
func (m *Manager) IsRunning() bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.running
}

// IsEnabled reports whether the component is enabled. The pipeline is the
// core component and is always enabled.
func (m *Manager) IsEnabled() bool {
	return true
}

// GetStats returns manager statistics for the component status API.
func (m *Manager) GetStats() map[string]interface{} {
	m.mutex.RLock()
	running := m.running
	startTime := m.startTime
	m.mutex.RUnlock()

	stats := map[string]interface{}{
		"running":    running,
		"start_time": startTime,
		"uptime":     time.Since(startTime).Seconds(),
	}

	if running {
		snap := m.Stats()
		stats["pipeline"] = snap
		stats["queue_depth"] = m.QueueDepth()
		stats["selected_source"] = m.SelectedSource()
	}

	return stats
}
