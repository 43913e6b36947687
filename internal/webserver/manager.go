package webserver

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/open-beagle/ndiview/internal/config"
	"github.com/open-beagle/ndiview/internal/pipeline"
)

// Manager owns the control-plane server and the preview hub. It wires the
// pipeline into both and drives their lifecycle together.
type Manager struct {
	config    *config.WebServerConfig
	webServer *WebServer
	preview   *PreviewHub
	pipeline  PipelineController
	logger    *logrus.Entry

	running   bool
	startTime time.Time
	mutex     sync.RWMutex
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// NewManager creates the webserver manager. The preview hub is created here
// so the caller can pass it to the pipeline as its renderer via PreviewHub().
func NewManager(ctx context.Context, cfg *config.WebServerConfig, ctrl PipelineController, logger *logrus.Entry) (*Manager, error) {
	if ctx == nil {
		return nil, fmt.Errorf("context is required")
	}
	if cfg == nil {
		return nil, fmt.Errorf("webserver config cannot be nil")
	}
	if ctrl == nil {
		return nil, fmt.Errorf("pipeline controller is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid webserver config: %w", err)
	}
	if logger == nil {
		logger = config.GetLoggerWithPrefix("webserver")
	}

	preview := NewPreviewHub(ctrl.Stats, cfg.MaxPreviewClients, logger.WithField("component", "preview"))

	webServer, err := NewWebServer(cfg, ctrl, preview, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create webserver: %w", err)
	}

	childCtx, cancel := context.WithCancel(ctx)

	return &Manager{
		config:    cfg,
		webServer: webServer,
		preview:   preview,
		pipeline:  ctrl,
		logger:    logger,
		ctx:       childCtx,
		cancel:    cancel,
	}, nil
}

// RegisterComponent lets another component expose routes on the control-plane
// router. Must be called before Start.
func (m *Manager) RegisterComponent(name string, component RouteSetup) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.running {
		return fmt.Errorf("cannot register component %s while webserver is running", name)
	}
	if err := component.SetupRoutes(m.webServer.GetRouter()); err != nil {
		return fmt.Errorf("failed to setup routes for %s: %w", name, err)
	}

	m.logger.Infof("Registered component routes: %s", name)
	return nil
}

// Start launches the HTTP server and the preview stats pusher.
func (m *Manager) Start(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.running {
		return fmt.Errorf("webserver manager already running")
	}

	m.logger.Info("Starting webserver manager...")

	if err := m.webServer.Start(); err != nil {
		return fmt.Errorf("failed to start webserver: %w", err)
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		if err := m.preview.Run(m.ctx); err != nil {
			m.logger.Warnf("Preview hub exited with error: %v", err)
		}
	}()

	m.running = true
	m.startTime = time.Now()

	m.logger.Infof("Webserver manager started on %s", m.GetAddress())
	return nil
}

// Stop shuts down the HTTP server and the preview hub.
func (m *Manager) Stop(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if !m.running {
		return nil
	}

	m.logger.Info("Stopping webserver manager...")

	if m.cancel != nil {
		m.cancel()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := m.webServer.Stop(shutdownCtx); err != nil {
		m.logger.Warnf("Error during webserver shutdown: %v", err)
	}

	m.wg.Wait()

	m.running = false
	m.logger.Info("Webserver manager stopped")
	return nil
}

// IsEnabled reports whether the webserver component is enabled. The control
// plane is a core component and is always on.
func (m *Manager) IsEnabled() bool {
	return true
}

// IsRunning reports whether the manager is running.
func (m *Manager) IsRunning() bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.running
}

// PreviewHub returns the preview hub so the pipeline can use it as its
// renderer.
func (m *Manager) PreviewHub() *PreviewHub {
	return m.preview
}

// Renderer returns the preview hub as a pipeline renderer.
func (m *Manager) Renderer() pipeline.Renderer {
	return m.preview
}

// GetAddress returns the server address including the protocol.
func (m *Manager) GetAddress() string {
	protocol := "http"
	if m.config.EnableTLS {
		protocol = "https"
	}
	return fmt.Sprintf("%s://%s:%d", protocol, m.config.Host, m.config.Port)
}

// GetStats returns webserver statistics.
func (m *Manager) GetStats() map[string]interface{} {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return map[string]interface{}{
		"running":         m.running,
		"start_time":      m.startTime.Unix(),
		"uptime":          time.Since(m.startTime).Seconds(),
		"address":         fmt.Sprintf("%s:%d", m.config.Host, m.config.Port),
		"tls_enabled":     m.config.EnableTLS,
		"cors_enabled":    m.config.EnableCORS,
		"preview_clients": m.preview.ClientCount(),
		"preview_drops":   m.preview.FrameDrops(),
	}
}
