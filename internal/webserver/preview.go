package webserver

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/open-beagle/ndiview/internal/pipeline"
	"github.com/open-beagle/ndiview/internal/transport"
)

const (
	// previewSendBuffer is the per-client outbound queue. Slow clients get
	// frames dropped, mirroring the pipeline's drop-over-block policy.
	previewSendBuffer = 4

	previewWriteWait = 5 * time.Second
	previewPongWait  = 60 * time.Second
	previewPingEvery = 30 * time.Second
)

// frameHeader precedes the pixel payload in a binary preview message.
type frameHeader struct {
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	FourCC   string `json:"four_cc"`
	Timecode int64  `json:"timecode"`
	Size     int    `json:"size"`
}

// statsMessage is the periodic JSON push to preview clients.
type statsMessage struct {
	Type string            `json:"type"`
	Data pipeline.Snapshot `json:"data"`
}

// previewClient is one connected WebSocket viewer.
type previewClient struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// PreviewHub fans accepted video frames and periodic stats out to WebSocket
// viewers. It implements pipeline.Renderer: the consumption scheduler hands
// it frames at the rate ceiling, and it forwards the raw payload plus format
// tag verbatim; pixel conversion is the browser's problem.
type PreviewHub struct {
	stats      func() pipeline.Snapshot
	maxClients int
	logger     *logrus.Entry
	upgrader   websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]*previewClient

	frameDrops atomic.Int64
}

// NewPreviewHub creates the hub. stats provides the snapshot for the
// periodic push.
func NewPreviewHub(stats func() pipeline.Snapshot, maxClients int, logger *logrus.Entry) *PreviewHub {
	if logger == nil {
		logger = logrus.WithField("component", "preview")
	}
	return &PreviewHub{
		stats:      stats,
		maxClients: maxClients,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		clients: make(map[string]*previewClient),
	}
}

// Run pushes stats to all clients every second until ctx is cancelled.
func (h *PreviewHub) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return nil
		case <-ticker.C:
			h.broadcastStats()
		}
	}
}

// HandleWebSocket upgrades the request and registers a new preview client.
func (h *PreviewHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	full := len(h.clients) >= h.maxClients
	h.mu.RUnlock()

	if full {
		http.Error(w, "too many preview clients", http.StatusServiceUnavailable)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warnf("WebSocket upgrade failed: %v", err)
		return
	}

	client := &previewClient{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, previewSendBuffer),
	}

	h.mu.Lock()
	h.clients[client.id] = client
	count := len(h.clients)
	h.mu.Unlock()

	h.logger.Infof("Preview client %s connected (%d active)", client.id, count)

	go h.writePump(client)
	go h.readPump(client)
}

// Render implements pipeline.Renderer by broadcasting the frame to all
// connected clients. Clients whose send queue is full miss the frame.
func (h *PreviewHub) Render(frame *transport.Frame) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if len(h.clients) == 0 {
		return nil
	}

	msg, err := encodeFrameMessage(frame)
	if err != nil {
		return err
	}

	for _, client := range h.clients {
		select {
		case client.send <- msg:
		default:
			h.frameDrops.Add(1)
		}
	}
	return nil
}

// encodeFrameMessage lays out a binary preview message: a big-endian uint32
// header length, the JSON header, then the raw payload.
func encodeFrameMessage(frame *transport.Frame) ([]byte, error) {
	header, err := json.Marshal(frameHeader{
		Width:    frame.Width,
		Height:   frame.Height,
		FourCC:   frame.FourCC,
		Timecode: frame.Timecode,
		Size:     frame.Size(),
	})
	if err != nil {
		return nil, err
	}

	msg := make([]byte, 4+len(header)+len(frame.Data))
	binary.BigEndian.PutUint32(msg[:4], uint32(len(header)))
	copy(msg[4:], header)
	copy(msg[4+len(header):], frame.Data)
	return msg, nil
}

func (h *PreviewHub) broadcastStats() {
	h.mu.RLock()
	empty := len(h.clients) == 0
	h.mu.RUnlock()
	if empty {
		return
	}

	payload, err := json.Marshal(statsMessage{Type: "stats", Data: h.stats()})
	if err != nil {
		h.logger.Warnf("Failed to marshal stats message: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		select {
		case client.send <- append([]byte(nil), payload...):
		default:
		}
	}
}

// writePump serializes all writes for one client. Binary messages carry
// frames; text messages carry stats JSON.
func (h *PreviewHub) writePump(client *previewClient) {
	ping := time.NewTicker(previewPingEvery)
	defer func() {
		ping.Stop()
		client.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-client.send:
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			client.conn.SetWriteDeadline(time.Now().Add(previewWriteWait))
			messageType := websocket.BinaryMessage
			if len(msg) > 0 && msg[0] == '{' {
				messageType = websocket.TextMessage
			}
			if err := client.conn.WriteMessage(messageType, msg); err != nil {
				h.logger.Debugf("Preview client %s write failed: %v", client.id, err)
				h.removeClient(client.id)
				return
			}

		case <-ping.C:
			client.conn.SetWriteDeadline(time.Now().Add(previewWriteWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				h.removeClient(client.id)
				return
			}
		}
	}
}

// readPump drains and discards client messages to keep pong handling alive.
func (h *PreviewHub) readPump(client *previewClient) {
	defer func() {
		h.removeClient(client.id)
		client.conn.Close()
	}()

	client.conn.SetReadLimit(1024)
	client.conn.SetReadDeadline(time.Now().Add(previewPongWait))
	client.conn.SetPongHandler(func(string) error {
		client.conn.SetReadDeadline(time.Now().Add(previewPongWait))
		return nil
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *PreviewHub) removeClient(id string) {
	h.mu.Lock()
	client, ok := h.clients[id]
	if ok {
		delete(h.clients, id)
		close(client.send)
	}
	count := len(h.clients)
	h.mu.Unlock()

	if ok {
		h.logger.Infof("Preview client %s disconnected (%d active)", id, count)
	}
}

func (h *PreviewHub) closeAll() {
	h.mu.Lock()
	clients := make([]*previewClient, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.clients = make(map[string]*previewClient)
	h.mu.Unlock()

	for _, c := range clients {
		close(c.send)
		c.conn.Close()
	}
}

// ClientCount returns the number of connected preview clients.
func (h *PreviewHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// FrameDrops returns how many frames were dropped to slow clients.
func (h *PreviewHub) FrameDrops() int64 {
	return h.frameDrops.Load()
}
