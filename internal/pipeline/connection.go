package pipeline

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/open-beagle/ndiview/internal/transport"
)

// ConnectionState is the lifecycle state of the single active connection.
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateFailed
)

// String returns the string representation of ConnectionState
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// StateChangeCallback is notified on every connection state transition.
type StateChangeCallback func(oldState, newState ConnectionState)

// ConnectionManager owns the lifecycle of the single active connection to one
// selected source. The receiver handle is owned exclusively by the ingest
// goroutine: EnsureConnected, Receive and MarkFailed must only be called from
// there. State and the connected name are published atomically so other
// goroutines can observe them.
//
// Collapsing reconnect logic into one state machine queried every loop
// iteration makes "source changed while receiving" and "receive failed
// mid-stream" converge to the same recovery path.
type ConnectionManager struct {
	connector transport.Connector
	logger    *logrus.Entry
	stats     *StatsTracker

	state atomic.Int32

	// receiver and pending name are touched only by the ingest goroutine.
	receiver    transport.Receiver
	pendingName string

	// connectedName is readable from other goroutines.
	nameMu        sync.RWMutex
	connectedName string

	callbackMu sync.RWMutex
	onChange   StateChangeCallback
}

// NewConnectionManager creates a connection manager for the given connector.
func NewConnectionManager(connector transport.Connector, stats *StatsTracker, logger *logrus.Entry) *ConnectionManager {
	if logger == nil {
		logger = logrus.WithField("component", "connection")
	}
	return &ConnectionManager{
		connector: connector,
		stats:     stats,
		logger:    logger,
	}
}

// SetStateChangeCallback registers a callback invoked on every transition.
func (cm *ConnectionManager) SetStateChangeCallback(cb StateChangeCallback) {
	cm.callbackMu.Lock()
	cm.onChange = cb
	cm.callbackMu.Unlock()
}

// State returns the current connection state.
func (cm *ConnectionManager) State() ConnectionState {
	return ConnectionState(cm.state.Load())
}

// ConnectedName returns the name of the currently connected source, or ""
// when not connected.
func (cm *ConnectionManager) ConnectedName() string {
	cm.nameMu.RLock()
	defer cm.nameMu.RUnlock()
	return cm.connectedName
}

func (cm *ConnectionManager) setState(newState ConnectionState) {
	oldState := ConnectionState(cm.state.Swap(int32(newState)))
	if oldState == newState {
		return
	}

	cm.logger.Debugf("Connection state changed: %s -> %s", oldState, newState)

	cm.callbackMu.RLock()
	cb := cm.onChange
	cm.callbackMu.RUnlock()
	if cb != nil {
		cb(oldState, newState)
	}
}

func (cm *ConnectionManager) setConnectedName(name string) {
	cm.nameMu.Lock()
	cm.connectedName = name
	cm.nameMu.Unlock()
}

// teardown releases the receiver handle if present and returns to
// Disconnected. Safe to call in any state.
func (cm *ConnectionManager) teardown() {
	if cm.receiver != nil {
		if err := cm.receiver.Close(); err != nil {
			cm.logger.Warnf("Error closing receiver: %v", err)
		}
		cm.receiver = nil
	}
	cm.setConnectedName("")
	cm.pendingName = ""
	cm.setState(StateDisconnected)
}

// EnsureConnected drives the state machine toward a live connection to the
// selected source. It performs at most one state transition per call and is
// meant to be called repeatedly from the ingest loop; the old handle is
// always closed before a connect to a new source is issued (on a later call),
// so two connections never exist concurrently.
func (cm *ConnectionManager) EnsureConnected(selected *transport.Source) {
	state := cm.State()

	if selected == nil {
		if state != StateDisconnected {
			cm.teardown()
		}
		return
	}

	switch state {
	case StateConnected:
		if cm.ConnectedName() != selected.Name {
			cm.logger.Infof("Selected source changed to %q, closing current connection", selected.Name)
			cm.teardown()
		}

	case StateFailed:
		cm.teardown()

	case StateDisconnected:
		cm.pendingName = selected.Name
		cm.setState(StateConnecting)

	case StateConnecting:
		if cm.pendingName != selected.Name {
			// Selection changed before the connect was issued.
			cm.pendingName = selected.Name
			return
		}

		receiver, err := cm.connector.Connect(selected.Name)
		if err != nil {
			cm.logger.Errorf("Failed to connect to source %q: %v", selected.Name, err)
			cm.stats.RecordTransportError("connect")
			cm.setState(StateFailed)
			return
		}

		cm.receiver = receiver
		cm.setConnectedName(selected.Name)
		cm.setState(StateConnected)
		cm.logger.Infof("Connected to source %q", selected.Name)
	}
}

// Receive waits up to timeout for the next frame on the active connection.
// On a transport error the handle is released, the state transitions to
// Failed, and the error is returned for logging only; the next
// EnsureConnected call retries from Disconnected.
func (cm *ConnectionManager) Receive(timeout time.Duration) (*transport.Frame, error) {
	if cm.State() != StateConnected || cm.receiver == nil {
		return &transport.Frame{Type: transport.FrameTypeNone}, nil
	}

	frame, err := cm.receiver.Receive(timeout)
	if err != nil {
		cm.MarkFailed(err)
		return nil, err
	}

	if frame == nil {
		frame = &transport.Frame{Type: transport.FrameTypeNone}
	}
	return frame, nil
}

// MarkFailed releases the connection handle and transitions to Failed.
// Called by the ingest loop when a receive fails.
func (cm *ConnectionManager) MarkFailed(err error) {
	cm.logger.Errorf("Connection to %q failed: %v", cm.ConnectedName(), err)

	if cm.receiver != nil {
		if closeErr := cm.receiver.Close(); closeErr != nil {
			cm.logger.Warnf("Error closing failed receiver: %v", closeErr)
		}
		cm.receiver = nil
	}
	cm.setConnectedName("")
	cm.pendingName = ""
	cm.setState(StateFailed)
}

// Close performs terminal teardown. Idempotent: safe to call when already
// disconnected, and safe to call from the shutdown path after the ingest
// goroutine has exited.
func (cm *ConnectionManager) Close() {
	if cm.State() == StateDisconnected && cm.receiver == nil {
		return
	}
	cm.teardown()
}
