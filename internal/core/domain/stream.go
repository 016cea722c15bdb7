package domain

type StreamID string

// MediaKind distinguishes audio from video streams.
type MediaKind int

const (
	KindAudio MediaKind = iota
	KindVideo
)

func (k MediaKind) String() string {
	if k == KindVideo {
		return "video"
	}
	return "audio"
}

// StreamState is the lifecycle of a unidirectional media flow.
type StreamState int

const (
	StreamInitializing StreamState = iota
	StreamActive
	StreamPaused
	StreamStopped
	StreamError
)

func (s StreamState) String() string {
	switch s {
	case StreamInitializing:
		return "initializing"
	case StreamActive:
		return "active"
	case StreamPaused:
		return "paused"
	case StreamStopped:
		return "stopped"
	case StreamError:
		return "error"
	default:
		return "unknown"
	}
}

// ValidTransition reports whether a stream may move from one state to
// another. Error is terminal and reachable from anywhere.
func ValidTransition(from, to StreamState) bool {
	if to == StreamError {
		return from != StreamError
	}
	switch from {
	case StreamInitializing:
		return to == StreamActive || to == StreamStopped
	case StreamActive:
		return to == StreamPaused || to == StreamStopped
	case StreamPaused:
		return to == StreamActive || to == StreamStopped
	default:
		return false
	}
}

// Stream describes a unidirectional media flow owned by a session. The
// SSRC is unique within the session; the stream ID is unique process-wide.
type Stream struct {
	ID            StreamID
	SessionID     SessionID
	Kind          MediaKind
	SSRC          uint32
	PayloadType   uint8
	Codec         string
	ClockRate     uint32
	TargetBitrate int
	Width         int
	Height        int
	Framerate     int
	Encrypted     bool
	State         StreamState
}
