// Package webserver implements the HTTP control plane for the ndiview
// daemon: source listing and selection, stats snapshots, health checks, and
// the WebSocket preview channel.
package webserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/open-beagle/ndiview/internal/config"
	"github.com/open-beagle/ndiview/internal/pipeline"
	"github.com/open-beagle/ndiview/internal/transport"
)

// PipelineController is the subset of the pipeline manager the web server
// uses. Accepting an interface keeps the handlers testable with stubs.
type PipelineController interface {
	Sources() []transport.Source
	RefreshSources(timeout time.Duration) ([]transport.Source, error)
	SelectSource(name string)
	SelectedSource() string
	Stats() pipeline.Snapshot
	ConnectionState() pipeline.ConnectionState
	IsRunning() bool
}

// RouteSetup is implemented by components that expose HTTP routes on the
// control-plane router.
type RouteSetup interface {
	SetupRoutes(router *mux.Router) error
}

// WebServer serves the control-plane API.
type WebServer struct {
	config   *config.WebServerConfig
	pipeline PipelineController
	preview  *PreviewHub
	logger   *logrus.Entry

	router *mux.Router
	server *http.Server

	running   bool
	startTime time.Time
	mutex     sync.RWMutex
}

// NewWebServer creates the control-plane server over the given pipeline.
func NewWebServer(cfg *config.WebServerConfig, ctrl PipelineController, preview *PreviewHub, logger *logrus.Entry) (*WebServer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("webserver config is required")
	}
	if ctrl == nil {
		return nil, fmt.Errorf("pipeline controller is required")
	}
	if logger == nil {
		logger = logrus.WithField("component", "webserver")
	}

	ws := &WebServer{
		config:   cfg,
		pipeline: ctrl,
		preview:  preview,
		logger:   logger,
		router:   mux.NewRouter(),
	}

	ws.setupRoutes()
	return ws, nil
}

// GetRouter returns the router so other components can register routes.
func (ws *WebServer) GetRouter() *mux.Router {
	return ws.router
}

func (ws *WebServer) setupRoutes() {
	// With CORS enabled the routes also admit OPTIONS so the middleware can
	// answer browser preflights; the matched handler is never reached.
	get := []string{"GET"}
	post := []string{"POST"}
	if ws.config.EnableCORS {
		get = append(get, "OPTIONS")
		post = append(post, "OPTIONS")
	}

	ws.router.HandleFunc("/health", ws.handleHealth).Methods(get...)

	api := ws.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", ws.handleStatus).Methods(get...)
	api.HandleFunc("/sources", ws.handleSources).Methods(get...)
	api.HandleFunc("/sources/refresh", ws.handleRefreshSources).Methods(post...)
	api.HandleFunc("/source/select", ws.handleSelectSource).Methods(post...)
	api.HandleFunc("/stats", ws.handleStats).Methods(get...)

	if ws.preview != nil {
		ws.router.HandleFunc("/ws/preview", ws.preview.HandleWebSocket).Methods("GET")
	}

	if ws.config.EnableCORS {
		ws.router.Use(corsMiddleware)
	}
}

func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if !ws.pipeline.IsRunning() {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	w.WriteHeader(code)
	ws.writeJSON(w, map[string]interface{}{
		"status": status,
		"uptime": time.Since(ws.startTime).Seconds(),
	})
}

func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	ws.writeJSON(w, map[string]interface{}{
		"running":          ws.pipeline.IsRunning(),
		"connection_state": ws.pipeline.ConnectionState().String(),
		"selected_source":  ws.pipeline.SelectedSource(),
		"preview_clients":  ws.previewClientCount(),
	})
}

func (ws *WebServer) handleSources(w http.ResponseWriter, r *http.Request) {
	sources := ws.pipeline.Sources()
	ws.writeJSON(w, map[string]interface{}{
		"sources": sources,
		"count":   len(sources),
	})
}

func (ws *WebServer) handleRefreshSources(w http.ResponseWriter, r *http.Request) {
	var timeout time.Duration
	if raw := r.URL.Query().Get("timeout_ms"); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms < 0 {
			ws.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid timeout_ms: %q", raw))
			return
		}
		timeout = time.Duration(ms) * time.Millisecond
	}

	sources, err := ws.pipeline.RefreshSources(timeout)
	if err != nil {
		// Discovery failures are transient; report them without a 5xx so
		// clients keep their cached list.
		ws.writeJSON(w, map[string]interface{}{
			"sources": ws.pipeline.Sources(),
			"error":   err.Error(),
		})
		return
	}

	ws.writeJSON(w, map[string]interface{}{
		"sources": sources,
		"count":   len(sources),
	})
}

func (ws *WebServer) handleSelectSource(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		ws.writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	ws.pipeline.SelectSource(req.Name)
	ws.writeJSON(w, map[string]interface{}{
		"selected_source": ws.pipeline.SelectedSource(),
	})
}

func (ws *WebServer) handleStats(w http.ResponseWriter, r *http.Request) {
	ws.writeJSON(w, ws.pipeline.Stats())
}

func (ws *WebServer) previewClientCount() int {
	if ws.preview == nil {
		return 0
	}
	return ws.preview.ClientCount()
}

func (ws *WebServer) writeJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		ws.logger.Warnf("Failed to encode JSON response: %v", err)
	}
}

func (ws *WebServer) writeError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// corsMiddleware adds permissive CORS headers for browser clients.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Start starts the HTTP listener.
func (ws *WebServer) Start() error {
	ws.mutex.Lock()
	defer ws.mutex.Unlock()

	if ws.running {
		return fmt.Errorf("web server already running")
	}

	addr := fmt.Sprintf("%s:%d", ws.config.Host, ws.config.Port)
	ws.server = &http.Server{
		Addr:         addr,
		Handler:      ws.router,
		ReadTimeout:  ws.config.ReadTimeout,
		WriteTimeout: ws.config.WriteTimeout,
	}

	go func() {
		var err error
		if ws.config.EnableTLS {
			ws.logger.Infof("Web server listening on https://%s", addr)
			err = ws.server.ListenAndServeTLS(ws.config.TLS.CertFile, ws.config.TLS.KeyFile)
		} else {
			ws.logger.Infof("Web server listening on http://%s", addr)
			err = ws.server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			ws.logger.Errorf("Web server error: %v", err)
		}
	}()

	ws.running = true
	ws.startTime = time.Now()
	return nil
}

// Stop shuts the HTTP listener down gracefully.
func (ws *WebServer) Stop(ctx context.Context) error {
	ws.mutex.Lock()
	defer ws.mutex.Unlock()

	if !ws.running {
		return nil
	}

	ws.running = false
	if ws.server != nil {
		return ws.server.Shutdown(ctx)
	}
	return nil
}

// IsRunning reports whether the listener is up.
func (ws *WebServer) IsRunning() bool {
	ws.mutex.RLock()
	defer ws.mutex.RUnlock()
	return ws.running
}
