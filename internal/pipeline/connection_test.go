package pipeline

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/open-beagle/ndiview/internal/transport"
)

func newTestConnection(connector *fakeConnector) (*ConnectionManager, *StatsTracker) {
	stats := NewStatsTracker(nil)
	return NewConnectionManager(connector, stats, nil), stats
}

func TestConnectionManager_ConnectSequence(t *testing.T) {
	connector := &fakeConnector{}
	cm, _ := newTestConnection(connector)
	source := &transport.Source{Name: "CAM-1"}

	var transitions []ConnectionState
	cm.SetStateChangeCallback(func(_, newState ConnectionState) {
		transitions = append(transitions, newState)
	})

	assert.Equal(t, StateDisconnected, cm.State())

	// One transition per call: first the intent, then the connect.
	cm.EnsureConnected(source)
	assert.Equal(t, StateConnecting, cm.State())
	assert.Equal(t, 0, connector.connectCount())

	cm.EnsureConnected(source)
	assert.Equal(t, StateConnected, cm.State())
	assert.Equal(t, "CAM-1", cm.ConnectedName())
	assert.Equal(t, 1, connector.connectCount())

	// Steady state: no further transitions, no further connects.
	cm.EnsureConnected(source)
	assert.Equal(t, StateConnected, cm.State())
	assert.Equal(t, 1, connector.connectCount())

	assert.Equal(t, []ConnectionState{StateConnecting, StateConnected}, transitions)
}

func TestConnectionManager_NilSelectionTearsDown(t *testing.T) {
	connector := &fakeConnector{}
	cm, _ := newTestConnection(connector)
	source := &transport.Source{Name: "CAM-1"}

	cm.EnsureConnected(source)
	cm.EnsureConnected(source)
	require.Equal(t, StateConnected, cm.State())

	cm.EnsureConnected(nil)
	assert.Equal(t, StateDisconnected, cm.State())
	assert.Equal(t, "", cm.ConnectedName())
	assert.True(t, connector.receivers[0].closed())

	// Repeated nil selection stays put.
	cm.EnsureConnected(nil)
	assert.Equal(t, StateDisconnected, cm.State())
}

func TestConnectionManager_SelectionChangeReconnects(t *testing.T) {
	connector := &fakeConnector{}
	cm, _ := newTestConnection(connector)

	first := &transport.Source{Name: "CAM-1"}
	second := &transport.Source{Name: "CAM-2"}

	cm.EnsureConnected(first)
	cm.EnsureConnected(first)
	require.Equal(t, StateConnected, cm.State())

	// The old handle closes before any connect to the new source.
	cm.EnsureConnected(second)
	assert.Equal(t, StateDisconnected, cm.State())
	assert.True(t, connector.receivers[0].closed())
	assert.Equal(t, 1, connector.connectCount())

	cm.EnsureConnected(second)
	assert.Equal(t, StateConnecting, cm.State())
	cm.EnsureConnected(second)
	assert.Equal(t, StateConnected, cm.State())
	assert.Equal(t, "CAM-2", cm.ConnectedName())

	assert.Equal(t, 1, connector.maxOpen, "two receiver handles must never be open at once")
}

func TestConnectionManager_ConnectFailureRetries(t *testing.T) {
	connector := &fakeConnector{failConnect: 1}
	cm, stats := newTestConnection(connector)
	source := &transport.Source{Name: "CAM-1"}

	cm.EnsureConnected(source) // -> Connecting
	cm.EnsureConnected(source) // connect fails -> Failed
	assert.Equal(t, StateFailed, cm.State())
	assert.Equal(t, int64(1), stats.Snapshot().TransportErrors)

	cm.EnsureConnected(source) // -> Disconnected
	assert.Equal(t, StateDisconnected, cm.State())
	cm.EnsureConnected(source) // -> Connecting
	cm.EnsureConnected(source) // connect succeeds -> Connected
	assert.Equal(t, StateConnected, cm.State())
	assert.Equal(t, 2, connector.connectCount())
}

func TestConnectionManager_SelectionChangeWhileConnecting(t *testing.T) {
	connector := &fakeConnector{}
	cm, _ := newTestConnection(connector)

	cm.EnsureConnected(&transport.Source{Name: "CAM-1"})
	require.Equal(t, StateConnecting, cm.State())

	// The pending name is updated without issuing a connect to the old one.
	cm.EnsureConnected(&transport.Source{Name: "CAM-2"})
	assert.Equal(t, StateConnecting, cm.State())
	assert.Equal(t, 0, connector.connectCount())

	cm.EnsureConnected(&transport.Source{Name: "CAM-2"})
	assert.Equal(t, StateConnected, cm.State())
	assert.Equal(t, "CAM-2", cm.ConnectedName())
	assert.Equal(t, 1, connector.connectCount())
}

func TestConnectionManager_ReceiveErrorMarksFailed(t *testing.T) {
	connector := &fakeConnector{
		nextScript: []receiveResult{
			{frame: testVideoFrame(1)},
			{err: fmt.Errorf("stream reset")},
		},
	}
	cm, _ := newTestConnection(connector)
	source := &transport.Source{Name: "CAM-1"}

	cm.EnsureConnected(source)
	cm.EnsureConnected(source)
	require.Equal(t, StateConnected, cm.State())

	frame, err := cm.Receive(10 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, transport.FrameTypeVideo, frame.Type)

	_, err = cm.Receive(10 * time.Millisecond)
	require.Error(t, err)
	assert.Equal(t, StateFailed, cm.State())
	assert.Equal(t, "", cm.ConnectedName())
	assert.True(t, connector.receivers[0].closed())
}

func TestConnectionManager_ReceiveWhenNotConnected(t *testing.T) {
	cm, _ := newTestConnection(&fakeConnector{})

	frame, err := cm.Receive(10 * time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, transport.FrameTypeNone, frame.Type)
}

func TestConnectionManager_CloseIdempotent(t *testing.T) {
	connector := &fakeConnector{}
	cm, _ := newTestConnection(connector)
	source := &transport.Source{Name: "CAM-1"}

	cm.EnsureConnected(source)
	cm.EnsureConnected(source)
	require.Equal(t, StateConnected, cm.State())

	cm.Close()
	assert.Equal(t, StateDisconnected, cm.State())
	assert.Equal(t, 1, connector.receivers[0].closeCount)

	cm.Close()
	assert.Equal(t, 1, connector.receivers[0].closeCount)
}
