package webserver

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-beagle/ndiview/internal/config"
	"github.com/open-beagle/ndiview/internal/pipeline"
	"github.com/open-beagle/ndiview/internal/transport"
)

// stubController fakes the pipeline for handler tests.
type stubController struct {
	sources       []transport.Source
	refreshErr    error
	selected      string
	refreshCalls  int
	lastTimeout   time.Duration
	running       bool
	connState     pipeline.ConnectionState
	statsSnapshot pipeline.Snapshot
}

func (s *stubController) Sources() []transport.Source { return s.sources }

func (s *stubController) RefreshSources(timeout time.Duration) ([]transport.Source, error) {
	s.refreshCalls++
	s.lastTimeout = timeout
	if s.refreshErr != nil {
		return nil, s.refreshErr
	}
	return s.sources, nil
}

func (s *stubController) SelectSource(name string) { s.selected = name }

func (s *stubController) SelectedSource() string { return s.selected }

func (s *stubController) Stats() pipeline.Snapshot { return s.statsSnapshot }

func (s *stubController) ConnectionState() pipeline.ConnectionState { return s.connState }

func (s *stubController) IsRunning() bool { return s.running }

func newTestServer(t *testing.T, ctrl *stubController) *WebServer {
	t.Helper()
	ws, err := NewWebServer(config.DefaultWebServerConfig(), ctrl, nil, nil)
	require.NoError(t, err)
	return ws
}

func doRequest(ws *WebServer, method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	ws.GetRouter().ServeHTTP(rec, req)
	return rec
}

func TestWebServer_Health(t *testing.T) {
	ctrl := &stubController{running: true}
	ws := newTestServer(t, ctrl)

	rec := doRequest(ws, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])

	ctrl.running = false
	rec = doRequest(ws, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestWebServer_Status(t *testing.T) {
	ctrl := &stubController{
		running:   true,
		selected:  "CAM-1",
		connState: pipeline.StateConnected,
	}
	ws := newTestServer(t, ctrl)

	rec := doRequest(ws, http.MethodGet, "/api/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["running"])
	assert.Equal(t, "connected", body["connection_state"])
	assert.Equal(t, "CAM-1", body["selected_source"])
}

func TestWebServer_Sources(t *testing.T) {
	ctrl := &stubController{
		sources: []transport.Source{{Name: "CAM-1"}, {Name: "CAM-2"}},
	}
	ws := newTestServer(t, ctrl)

	rec := doRequest(ws, http.MethodGet, "/api/sources", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Sources []transport.Source `json:"sources"`
		Count   int                `json:"count"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Count)
	assert.Equal(t, ctrl.sources, body.Sources)
}

func TestWebServer_RefreshSources(t *testing.T) {
	ctrl := &stubController{
		sources: []transport.Source{{Name: "CAM-1"}},
	}
	ws := newTestServer(t, ctrl)

	rec := doRequest(ws, http.MethodPost, "/api/sources/refresh?timeout_ms=500", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, ctrl.refreshCalls)
	assert.Equal(t, 500*time.Millisecond, ctrl.lastTimeout)

	// A broken timeout parameter never reaches the pipeline.
	rec = doRequest(ws, http.MethodPost, "/api/sources/refresh?timeout_ms=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, 1, ctrl.refreshCalls)
}

func TestWebServer_RefreshFailureKeepsCachedList(t *testing.T) {
	ctrl := &stubController{
		sources:    []transport.Source{{Name: "CAM-1"}},
		refreshErr: fmt.Errorf("network unreachable"),
	}
	ws := newTestServer(t, ctrl)

	rec := doRequest(ws, http.MethodPost, "/api/sources/refresh", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Sources []transport.Source `json:"sources"`
		Error   string             `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, ctrl.sources, body.Sources)
	assert.Contains(t, body.Error, "network unreachable")
}

func TestWebServer_SelectSource(t *testing.T) {
	ctrl := &stubController{}
	ws := newTestServer(t, ctrl)

	rec := doRequest(ws, http.MethodPost, "/api/source/select", []byte(`{"name":"CAM-2"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "CAM-2", ctrl.selected)

	// Empty name clears the selection.
	rec = doRequest(ws, http.MethodPost, "/api/source/select", []byte(`{"name":""}`))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "", ctrl.selected)

	rec = doRequest(ws, http.MethodPost, "/api/source/select", []byte(`not json`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebServer_Stats(t *testing.T) {
	ctrl := &stubController{
		statsSnapshot: pipeline.Snapshot{
			FrameCount:      42,
			DropCount:       3,
			ConnectionState: "connected",
		},
	}
	ws := newTestServer(t, ctrl)

	rec := doRequest(ws, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var snap pipeline.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snap))
	assert.Equal(t, int64(42), snap.FrameCount)
	assert.Equal(t, int64(3), snap.DropCount)
	assert.Equal(t, "connected", snap.ConnectionState)
}

func TestWebServer_CORSHeaders(t *testing.T) {
	ctrl := &stubController{running: true}
	ws := newTestServer(t, ctrl)

	rec := doRequest(ws, http.MethodGet, "/api/status", nil)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = doRequest(ws, http.MethodOptions, "/api/status", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestWebServer_MethodRestrictions(t *testing.T) {
	ws := newTestServer(t, &stubController{})

	rec := doRequest(ws, http.MethodPost, "/api/sources", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = doRequest(ws, http.MethodGet, "/api/source/select", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
