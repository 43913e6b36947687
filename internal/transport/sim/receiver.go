package sim

import (
	"fmt"
	"math"
	"time"

	"github.com/open-beagle/ndiview/internal/transport"
)

const (
	simAudioSampleRate = 48000
	simAudioChannels   = 2
	simToneHz          = 440.0
)

// receiver generates test-pattern frames at the configured rate. It honors
// the Receive timeout contract: when no frame is due within the timeout it
// returns a FrameTypeNone frame instead of blocking.
type receiver struct {
	cfg  *Config
	name string

	interval   time.Duration
	nextDue    time.Time
	frameIndex int
	audioPhase float64
	closed     bool
}

func newReceiver(cfg *Config, name string) *receiver {
	return &receiver{
		cfg:      cfg,
		name:     name,
		interval: time.Second / time.Duration(cfg.FrameRate),
		nextDue:  time.Now(),
	}
}

// Receive implements transport.Receiver.
func (r *receiver) Receive(timeout time.Duration) (*transport.Frame, error) {
	if r.closed {
		return nil, fmt.Errorf("receiver for %s is closed", r.name)
	}

	now := time.Now()
	if wait := r.nextDue.Sub(now); wait > 0 {
		if wait > timeout {
			time.Sleep(timeout)
			return &transport.Frame{Type: transport.FrameTypeNone}, nil
		}
		time.Sleep(wait)
	}

	timecode := time.Now().UnixNano() / 100
	r.nextDue = r.nextDue.Add(r.interval)
	// Catch up after long stalls instead of bursting a backlog.
	if time.Until(r.nextDue) < -r.interval {
		r.nextDue = time.Now().Add(r.interval)
	}

	r.frameIndex++
	if r.cfg.AudioEvery > 0 && r.frameIndex%(r.cfg.AudioEvery+1) == 0 {
		return r.audioFrame(timecode), nil
	}
	return r.videoFrame(timecode), nil
}

// videoFrame renders scrolling UYVY color bars.
func (r *receiver) videoFrame(timecode int64) *transport.Frame {
	w, h := r.cfg.Width, r.cfg.Height
	data := make([]byte, w*h*2)

	// Eight SMPTE-ish bars, shifted by the frame index so motion is visible.
	bars := [8][3]byte{
		{235, 128, 128}, // white
		{210, 16, 146},  // yellow
		{170, 166, 16},  // cyan
		{145, 54, 34},   // green
		{106, 202, 222}, // magenta
		{81, 90, 240},   // red
		{41, 240, 110},  // blue
		{16, 128, 128},  // black
	}
	shift := r.frameIndex % w

	for y := 0; y < h; y++ {
		row := y * w * 2
		for x := 0; x < w; x += 2 {
			bar := bars[((x+shift)*8/w)%8]
			off := row + x*2
			data[off] = bar[1]   // U
			data[off+1] = bar[0] // Y0
			data[off+2] = bar[2] // V
			data[off+3] = bar[0] // Y1
		}
	}

	return transport.NewVideoFrame(data, w, h, "UYVY", timecode)
}

// audioFrame renders one interval worth of a stereo sine tone as s16le.
func (r *receiver) audioFrame(timecode int64) *transport.Frame {
	samples := simAudioSampleRate / r.cfg.FrameRate
	data := make([]byte, samples*simAudioChannels*2)

	step := 2 * math.Pi * simToneHz / simAudioSampleRate
	for i := 0; i < samples; i++ {
		v := int16(math.Sin(r.audioPhase) * 0.25 * math.MaxInt16)
		r.audioPhase += step
		for ch := 0; ch < simAudioChannels; ch++ {
			off := (i*simAudioChannels + ch) * 2
			data[off] = byte(v)
			data[off+1] = byte(v >> 8)
		}
	}
	if r.audioPhase > 2*math.Pi {
		r.audioPhase -= 2 * math.Pi * math.Floor(r.audioPhase/(2*math.Pi))
	}

	return transport.NewAudioFrame(data, simAudioSampleRate, simAudioChannels, samples, timecode)
}

// Close implements transport.Receiver.
func (r *receiver) Close() error {
	r.closed = true
	return nil
}
