package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/open-beagle/ndiview/internal/config"
	"github.com/open-beagle/ndiview/internal/metrics"
	"github.com/open-beagle/ndiview/internal/pipeline"
	"github.com/open-beagle/ndiview/internal/transport/sim"
	"github.com/open-beagle/ndiview/internal/webserver"
)

// ViewerApp composes the daemon's managers and owns their lifecycle.
type ViewerApp struct {
	config       *config.Config
	metricsMgr   *metrics.Manager
	pipelineMgr  *pipeline.Manager
	webserverMgr *webserver.Manager
	logger       *logrus.Entry
	startTime    time.Time

	rootCtx    context.Context
	cancelFunc context.CancelFunc
}

// NewViewerApp creates the application and wires its components together.
func NewViewerApp(cfg *config.Config, logger *logrus.Entry) (*ViewerApp, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		logger = config.GetLoggerWithPrefix("app")
	}

	rootCtx, cancelFunc := context.WithCancel(context.Background())

	transportBackend, err := buildTransport(cfg.Transport)
	if err != nil {
		cancelFunc()
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	metricsMgr, err := metrics.NewManager(rootCtx, cfg.Metrics, config.GetLoggerWithPrefix("metrics"))
	if err != nil {
		cancelFunc()
		return nil, fmt.Errorf("failed to create metrics manager: %w", err)
	}

	pipelineMgr, err := pipeline.NewManager(rootCtx, &pipeline.ManagerConfig{
		Config:          cfg.Pipeline,
		Discovery:       transportBackend,
		Connector:       transportBackend,
		Metrics:         metricsMgr.GetPipelineMetrics(),
		Logger:          config.GetLoggerWithPrefix("pipeline"),
		StopJoinTimeout: cfg.Lifecycle.StopJoinTimeout,
	})
	if err != nil {
		cancelFunc()
		return nil, fmt.Errorf("failed to create pipeline manager: %w", err)
	}

	webserverMgr, err := webserver.NewManager(rootCtx, cfg.WebServer, pipelineMgr, config.GetLoggerWithPrefix("webserver"))
	if err != nil {
		cancelFunc()
		return nil, fmt.Errorf("failed to create webserver manager: %w", err)
	}

	// The preview hub is both the pipeline's delivery target and a WebSocket
	// endpoint, so it is created by the webserver and handed back here.
	pipelineMgr.SetRenderer(webserverMgr.Renderer())

	if err := webserverMgr.RegisterComponent("metrics", metricsMgr); err != nil {
		cancelFunc()
		return nil, fmt.Errorf("failed to register metrics routes: %w", err)
	}

	return &ViewerApp{
		config:       cfg,
		metricsMgr:   metricsMgr,
		pipelineMgr:  pipelineMgr,
		webserverMgr: webserverMgr,
		logger:       logger,
		startTime:    time.Now(),
		rootCtx:      rootCtx,
		cancelFunc:   cancelFunc,
	}, nil
}

// buildTransport instantiates the configured transport backend.
func buildTransport(cfg *config.TransportConfig) (*sim.Transport, error) {
	if cfg == nil {
		cfg = config.DefaultTransportConfig()
	}
	switch cfg.Kind {
	case config.TransportKindSim:
		return sim.New(cfg.Sim, config.GetLoggerWithPrefix("sim"))
	default:
		return nil, fmt.Errorf("unknown transport kind %q", cfg.Kind)
	}
}

type appManager interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	IsRunning() bool
}

// Start brings the components up in dependency order: metrics, pipeline,
// webserver. A failure rolls back already started components.
func (app *ViewerApp) Start() error {
	app.logger.Infof("Starting %s v%s", AppName, AppVersion)

	managers := []struct {
		name    string
		manager appManager
	}{
		{"metrics", app.metricsMgr},
		{"pipeline", app.pipelineMgr},
		{"webserver", app.webserverMgr},
	}

	for i, mgr := range managers {
		app.logger.Infof("Starting %s manager...", mgr.name)

		if err := mgr.manager.Start(app.rootCtx); err != nil {
			app.logger.Errorf("Failed to start %s manager: %v", mgr.name, err)

			for j := i - 1; j >= 0; j-- {
				app.logger.Infof("Rolling back: stopping %s manager...", managers[j].name)
				if stopErr := managers[j].manager.Stop(app.rootCtx); stopErr != nil {
					app.logger.Warnf("Failed to stop %s during rollback: %v", managers[j].name, stopErr)
				}
			}

			return fmt.Errorf("failed to start %s manager: %w", mgr.name, err)
		}
	}

	app.logger.Info("Application started successfully")
	return nil
}

// Stop shuts the components down in reverse startup order. Errors are
// collected so every component gets its shutdown attempt.
func (app *ViewerApp) Stop(ctx context.Context) error {
	app.logger.Info("Stopping application...")

	app.cancelFunc()

	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), app.config.Lifecycle.ShutdownTimeout)
		defer cancel()
	}

	managers := []struct {
		name    string
		manager appManager
	}{
		{"webserver", app.webserverMgr},
		{"pipeline", app.pipelineMgr},
		{"metrics", app.metricsMgr},
	}

	var errs []error
	for _, mgr := range managers {
		app.logger.Infof("Stopping %s manager...", mgr.name)
		if err := mgr.manager.Stop(ctx); err != nil {
			app.logger.Warnf("Failed to stop %s manager: %v", mgr.name, err)
			errs = append(errs, fmt.Errorf("failed to stop %s: %w", mgr.name, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during shutdown: %v", errs)
	}

	app.logger.Info("Application stopped successfully")
	return nil
}

// SelectSource forwards a startup source selection to the pipeline.
func (app *ViewerApp) SelectSource(name string) {
	app.pipelineMgr.SelectSource(name)
}

// GetPipelineManager exposes the pipeline manager.
func (app *ViewerApp) GetPipelineManager() *pipeline.Manager {
	return app.pipelineMgr
}

// GetMetricsManager exposes the metrics manager.
func (app *ViewerApp) GetMetricsManager() *metrics.Manager {
	return app.metricsMgr
}

// GetWebServerManager exposes the webserver manager.
func (app *ViewerApp) GetWebServerManager() *webserver.Manager {
	return app.webserverMgr
}
