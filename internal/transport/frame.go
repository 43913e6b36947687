package transport

// FrameType identifies the variant carried by a Frame. The numeric values
// match the NDI receive API so a transport binding can convert without a
// translation table.
type FrameType int

const (
	FrameTypeNone FrameType = iota
	FrameTypeVideo
	FrameTypeAudio
	FrameTypeMetadata
	FrameTypeError
)

// String returns the string representation of FrameType
func (ft FrameType) String() string {
	switch ft {
	case FrameTypeNone:
		return "none"
	case FrameTypeVideo:
		return "video"
	case FrameTypeAudio:
		return "audio"
	case FrameTypeMetadata:
		return "metadata"
	case FrameTypeError:
		return "error"
	default:
		return "unknown"
	}
}

// Frame is one unit of media received from a source. It is a tagged variant:
// Type selects which of the field groups below is meaningful. A Frame is
// exclusively owned by whoever currently holds it; it is handed off producer
// to queue to consumer and never shared between goroutines.
type Frame struct {
	// Type selects the variant.
	Type FrameType

	// Data contains the raw payload bytes (pixel data for video, PCM for
	// audio). Nil for metadata and error frames.
	Data []byte

	// Timecode is the source-assigned timestamp in 100ns units.
	Timecode int64

	// Video fields
	Width      int
	Height     int
	FrameRateN int
	FrameRateD int
	FourCC     string

	// Audio fields
	SampleRate int
	Channels   int
	Samples    int

	// Metadata fields
	XML string
}

// IsVideo reports whether this is a video frame.
func (f *Frame) IsVideo() bool {
	return f.Type == FrameTypeVideo
}

// IsAudio reports whether this is an audio frame.
func (f *Frame) IsAudio() bool {
	return f.Type == FrameTypeAudio
}

// Size returns the payload size in bytes.
func (f *Frame) Size() int {
	return len(f.Data)
}

// NewVideoFrame creates a video frame with the given payload and dimensions.
func NewVideoFrame(data []byte, width, height int, fourCC string, timecode int64) *Frame {
	return &Frame{
		Type:     FrameTypeVideo,
		Data:     data,
		Width:    width,
		Height:   height,
		FourCC:   fourCC,
		Timecode: timecode,
	}
}

// NewAudioFrame creates an audio frame with the given payload and sample layout.
func NewAudioFrame(data []byte, sampleRate, channels, samples int, timecode int64) *Frame {
	return &Frame{
		Type:       FrameTypeAudio,
		Data:       data,
		SampleRate: sampleRate,
		Channels:   channels,
		Samples:    samples,
		Timecode:   timecode,
	}
}

// NewMetadataFrame creates a metadata frame carrying an XML document.
func NewMetadataFrame(xml string, timecode int64) *Frame {
	return &Frame{
		Type:     FrameTypeMetadata,
		XML:      xml,
		Timecode: timecode,
	}
}
