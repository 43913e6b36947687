// Package metrics manages Prometheus metrics collection and exposure for the
// ndiview daemon.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/open-beagle/ndiview/internal/config"
)

// Manager owns the Prometheus registry, the pipeline instrument set, and the
// optional external /metrics listener.
type Manager struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry
	pipeline *PipelineMetrics

	externalServer  *http.Server
	externalRunning bool

	logger    *logrus.Entry
	running   bool
	startTime time.Time
	mutex     sync.RWMutex

	ctx    context.Context
	cancel context.CancelFunc
}

// NewManager creates a metrics manager with a private registry carrying the
// standard Go and process collectors plus the pipeline instruments.
func NewManager(ctx context.Context, cfg *config.MetricsConfig, logger *logrus.Entry) (*Manager, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}
	if cfg == nil {
		return nil, fmt.Errorf("metrics config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid metrics config: %w", err)
	}

	if logger == nil {
		logger = logrus.WithField("component", "metrics")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	pipeline, err := NewPipelineMetrics(registry)
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline metrics: %w", err)
	}

	childCtx, cancel := context.WithCancel(ctx)

	return &Manager{
		config:   cfg,
		registry: registry,
		pipeline: pipeline,
		logger:   logger,
		ctx:      childCtx,
		cancel:   cancel,
	}, nil
}

// Start starts the metrics manager and, when enabled, the external listener.
func (m *Manager) Start(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.running {
		return fmt.Errorf("metrics manager already running")
	}

	m.logger.Info("Starting metrics manager...")
	m.startTime = time.Now()

	if m.config.External.Enabled {
		if err := m.startExternalServer(); err != nil {
			// External exposure failing must not take the daemon down.
			m.logger.Errorf("Failed to start external metrics server: %v", err)
		}
	} else {
		m.logger.Info("External metrics listener disabled")
	}

	m.running = true
	m.logger.Info("Metrics manager started successfully")
	return nil
}

// startExternalServer starts the standalone /metrics HTTP listener.
func (m *Manager) startExternalServer() error {
	serveMux := http.NewServeMux()
	serveMux.Handle(m.config.External.Path, promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	addr := fmt.Sprintf("%s:%d", m.config.External.Host, m.config.External.Port)
	m.externalServer = &http.Server{
		Addr:    addr,
		Handler: serveMux,
	}

	go func() {
		m.logger.Infof("External metrics server listening on %s%s", addr, m.config.External.Path)
		if err := m.externalServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			m.logger.Errorf("External metrics server error: %v", err)
		}
	}()

	m.externalRunning = true
	return nil
}

// Stop stops the metrics manager.
func (m *Manager) Stop(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if !m.running {
		return nil
	}

	m.logger.Info("Stopping metrics manager...")
	m.cancel()

	if m.externalRunning && m.externalServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := m.externalServer.Shutdown(shutdownCtx); err != nil {
			m.logger.Warnf("Failed to stop external metrics server: %v", err)
		}
		m.externalRunning = false
	}

	m.running = false
	m.logger.Info("Metrics manager stopped successfully")
	return nil
}

// IsRunning reports whether the manager is running.
func (m *Manager) IsRunning() bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.running
}

// IsEnabled reports whether the component is enabled. Internal collection is
// always on; only external exposure is optional.
func (m *Manager) IsEnabled() bool {
	return true
}

// GetRegistry returns the Prometheus registry.
func (m *Manager) GetRegistry() *prometheus.Registry {
	return m.registry
}

// GetPipelineMetrics returns the pipeline instrument set.
func (m *Manager) GetPipelineMetrics() *PipelineMetrics {
	return m.pipeline
}

// GetStats returns manager statistics for the component status API.
func (m *Manager) GetStats() map[string]interface{} {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	stats := map[string]interface{}{
		"running":          m.running,
		"external_running": m.externalRunning,
		"external_enabled": m.config.External.Enabled,
		"start_time":       m.startTime.Unix(),
		"uptime":           time.Since(m.startTime).Seconds(),
	}

	if m.externalRunning {
		stats["external_endpoint"] = m.config.GetExternalEndpoint()
	}

	return stats
}

// SetupRoutes exposes /metrics on the control-plane router so scrapers can
// use the main port when the external listener is disabled.
func (m *Manager) SetupRoutes(router *mux.Router) error {
	router.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})).Methods("GET")
	m.logger.Info("Metrics routes registered")
	return nil
}
