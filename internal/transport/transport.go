// Package transport defines the contracts between the viewer pipeline and the
// media transport library that performs network discovery and frame delivery.
// The pipeline only ever talks to these interfaces; concrete bindings (NDI SDK,
// simulators, test doubles) live behind them.
package transport

import "time"

// Source identifies one advertised stream producer on the network.
// Equality is by name; descriptors are replaced wholesale on every discovery
// poll and never mutated.
type Source struct {
	Name string `json:"name"`
}

// Discovery locates sources on the network.
type Discovery interface {
	// FindSources blocks up to timeout while the transport performs network
	// discovery and returns the set of currently advertised sources. An empty
	// result is not an error. Implementations may return an error on
	// transport-level faults; callers treat such faults as transient.
	FindSources(timeout time.Duration) ([]Source, error)

	// Close releases discovery resources. Idempotent.
	Close() error
}

// Connector establishes receive connections to named sources.
type Connector interface {
	// Connect opens a connection to the named source. The call is synchronous
	// and may block while the transport negotiates.
	Connect(name string) (Receiver, error)
}

// Receiver is a live connection to one source. A Receiver is owned by a
// single goroutine; implementations are not required to be safe for
// concurrent use.
type Receiver interface {
	// Receive waits up to timeout for the next frame. A frame of type
	// FrameTypeNone signals that no data arrived within the timeout, which is
	// not an error. Errors indicate transport-level faults and the connection
	// should be considered dead.
	Receive(timeout time.Duration) (*Frame, error)

	// Close tears the connection down. Idempotent.
	Close() error
}
