package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/open-beagle/ndiview/internal/config"
	"github.com/open-beagle/ndiview/internal/transport"
)

// FrameIngestLoop pulls frames from the active connection at a bounded
// cadence, classifies them, and applies the skip policy before offering
// accepted video frames to the queue. It is the only goroutine that touches
// the connection handle.
type FrameIngestLoop struct {
	cfg      *config.PipelineConfig
	conn     *ConnectionManager
	queue    *BoundedFrameQueue
	stats    *StatsTracker
	selected *atomic.Pointer[transport.Source]
	logger   *logrus.Entry

	// acceptedVideo is the modulo counter for the skip policy. Reset on
	// selection change so the first frame of a new source is shown promptly.
	acceptedVideo uint64

	// lastSelectedName detects selection changes for the queue clear.
	lastSelectedName string
}

// NewFrameIngestLoop creates the ingest loop.
func NewFrameIngestLoop(cfg *config.PipelineConfig, conn *ConnectionManager, queue *BoundedFrameQueue,
	stats *StatsTracker, selected *atomic.Pointer[transport.Source], logger *logrus.Entry) *FrameIngestLoop {
	if logger == nil {
		logger = logrus.WithField("component", "ingest")
	}
	return &FrameIngestLoop{
		cfg:      cfg,
		conn:     conn,
		queue:    queue,
		stats:    stats,
		selected: selected,
		logger:   logger,
	}
}

// Run is the ingest loop. It blocks until ctx is cancelled. Transport
// failures never escape this loop: they are converted into connection state
// transitions plus a backoff.
func (l *FrameIngestLoop) Run(ctx context.Context) error {
	l.logger.Info("Frame ingest loop started")
	defer l.logger.Info("Frame ingest loop stopped")

	for {
		if ctx.Err() != nil {
			return nil
		}

		sel := l.selected.Load()
		l.observeSelection(sel)

		l.conn.EnsureConnected(sel)

		if l.conn.State() != StateConnected {
			if !sleepCtx(ctx, l.cfg.IdleBackoff) {
				return nil
			}
			continue
		}

		frame, err := l.conn.Receive(l.cfg.ReceiveTimeout)
		if err != nil {
			// Receive already moved the connection to Failed and released
			// the handle; back off before the reconnect attempt.
			l.stats.RecordTransportError("receive")
			if !sleepCtx(ctx, l.cfg.FailureBackoff) {
				return nil
			}
			continue
		}

		l.handleFrame(frame)
	}
}

// observeSelection clears the queue when the selected source changes, so
// stale frames from the previous source are never delivered. The clear runs
// on the producer goroutine before any frame from the new source can be
// enqueued.
func (l *FrameIngestLoop) observeSelection(sel *transport.Source) {
	name := ""
	if sel != nil {
		name = sel.Name
	}

	if name == l.lastSelectedName {
		return
	}

	discarded := l.queue.Clear()
	l.acceptedVideo = 0
	if discarded > 0 {
		l.logger.Debugf("Selection changed to %q, discarded %d stale frames", name, discarded)
	}
	l.lastSelectedName = name
}

// handleFrame classifies one receive result and applies the skip and
// enqueue policies. Only video frames participate; everything else is
// counted and discarded.
func (l *FrameIngestLoop) handleFrame(frame *transport.Frame) {
	l.stats.RecordFrame(frame.Type)

	switch frame.Type {
	case transport.FrameTypeVideo:
		offer := l.acceptedVideo%uint64(l.cfg.FrameSkip) == 0
		l.acceptedVideo++

		if !offer {
			l.stats.RecordSkipped()
			return
		}

		if !l.queue.TryEnqueue(frame) {
			// Producer-side backpressure: drop, never block. Display
			// freshness wins over completeness.
			l.stats.RecordDrop()
		}

	case transport.FrameTypeError:
		l.logger.Warn("Transport reported an error frame")

	case transport.FrameTypeAudio, transport.FrameTypeMetadata, transport.FrameTypeNone:
		// Counted in stats only; the display consumer needs video.
	}
}

// sleepCtx sleeps for d or until ctx is cancelled. Returns false on
// cancellation.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
