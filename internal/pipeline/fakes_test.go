package pipeline

import (
	"fmt"
	"sync"
	"time"

	"github.com/open-beagle/ndiview/internal/transport"
)

// receiveResult scripts one Receive call on a fake receiver.
type receiveResult struct {
	frame *transport.Frame
	err   error
}

// fakeReceiver pops scripted results. When the script runs out it returns
// empty receives, matching a quiet but healthy connection.
type fakeReceiver struct {
	mu         sync.Mutex
	script     []receiveResult
	closeCount int
}

func (r *fakeReceiver) Receive(timeout time.Duration) (*transport.Frame, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.script) == 0 {
		return &transport.Frame{Type: transport.FrameTypeNone}, nil
	}
	result := r.script[0]
	r.script = r.script[1:]
	return result.frame, result.err
}

func (r *fakeReceiver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeCount++
	return nil
}

func (r *fakeReceiver) closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closeCount > 0
}

// fakeConnector hands out fake receivers and tracks how many handles are
// open at once, so tests can assert the single-connection invariant.
type fakeConnector struct {
	mu          sync.Mutex
	connectErr  error
	receivers   []*fakeReceiver
	nextScript  []receiveResult
	connects    int
	maxOpen     int
	failConnect int // fail this many connects, then succeed
}

func (c *fakeConnector) Connect(name string) (transport.Receiver, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.connects++
	if c.failConnect > 0 {
		c.failConnect--
		return nil, fmt.Errorf("connect to %q refused", name)
	}
	if c.connectErr != nil {
		return nil, c.connectErr
	}

	receiver := &fakeReceiver{script: c.nextScript}
	c.nextScript = nil
	c.receivers = append(c.receivers, receiver)

	if open := c.openCountLocked(); open > c.maxOpen {
		c.maxOpen = open
	}
	return receiver, nil
}

func (c *fakeConnector) openCountLocked() int {
	open := 0
	for _, r := range c.receivers {
		if !r.closed() {
			open++
		}
	}
	return open
}

func (c *fakeConnector) connectCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connects
}

// fakeDiscovery replays scripted poll results. When the script runs out it
// repeats the last entry.
type fakeDiscovery struct {
	mu         sync.Mutex
	script     []discoveryResult
	polls      int
	closeCount int
}

type discoveryResult struct {
	sources []transport.Source
	err     error
}

func (d *fakeDiscovery) FindSources(timeout time.Duration) ([]transport.Source, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.polls++
	if len(d.script) == 0 {
		return nil, nil
	}
	result := d.script[0]
	if len(d.script) > 1 {
		d.script = d.script[1:]
	}
	return result.sources, result.err
}

func (d *fakeDiscovery) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeCount++
	return nil
}

func (d *fakeDiscovery) pollCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.polls
}

// collectingRenderer records delivered frames.
type collectingRenderer struct {
	mu     sync.Mutex
	frames []*transport.Frame
}

func (r *collectingRenderer) Render(frame *transport.Frame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, frame)
	return nil
}

func (r *collectingRenderer) delivered() []*transport.Frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*transport.Frame, len(r.frames))
	copy(out, r.frames)
	return out
}
