package signaling

import (
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrParse        = errors.New("signaling: parse error")
	ErrUnknownType  = errors.New("signaling: unknown message type")
	ErrMissingField = errors.New("signaling: missing required field")
)

// IsParseError reports whether err is a frame-level decode failure the
// receiver should discard rather than treat as a channel fault.
func IsParseError(err error) bool {
	return errors.Is(err, ErrParse) || errors.Is(err, ErrUnknownType) || errors.Is(err, ErrMissingField)
}

// Decode parses one signaling frame. Unknown tags and frames missing
// required fields are rejected as parse errors.
func Decode(data []byte) (Message, error) {
	var envelope struct {
		Type Type `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	var msg Message
	switch envelope.Type {
	case TypeConnect:
		msg = &Connect{}
	case TypeConnectAck:
		msg = &ConnectAck{}
	case TypeStreamStart:
		msg = &StreamStart{}
	case TypeStreamStop:
		msg = &StreamStop{}
	case TypeQualityAdapt:
		msg = &QualityAdapt{}
	case TypeHeartbeat:
		msg = &Heartbeat{}
	case TypeHeartbeatAck:
		msg = &HeartbeatAck{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, envelope.Type)
	}

	if err := json.Unmarshal(data, msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}
	if err := Validate(msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// Encode serializes a signaling message, stamping the type tag.
func Encode(msg Message) ([]byte, error) {
	setType(msg)
	if err := Validate(msg); err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}

func setType(msg Message) {
	switch m := msg.(type) {
	case *Connect:
		m.Type = TypeConnect
	case *ConnectAck:
		m.Type = TypeConnectAck
	case *StreamStart:
		m.Type = TypeStreamStart
	case *StreamStop:
		m.Type = TypeStreamStop
	case *QualityAdapt:
		m.Type = TypeQualityAdapt
	case *Heartbeat:
		m.Type = TypeHeartbeat
	case *HeartbeatAck:
		m.Type = TypeHeartbeatAck
	}
}

// Validate checks the required fields of the wire protocol for the
// concrete message type.
func Validate(msg Message) error {
	switch m := msg.(type) {
	case *Connect:
		if m.Version == "" {
			return fmt.Errorf("%w: version", ErrMissingField)
		}
		if m.SessionID == "" {
			return fmt.Errorf("%w: session_id", ErrMissingField)
		}
		if m.PeerID == "" {
			return fmt.Errorf("%w: peer_id", ErrMissingField)
		}
		if len(m.Capabilities.Codecs) == 0 {
			return fmt.Errorf("%w: capabilities.codecs", ErrMissingField)
		}
		if m.Timestamp == 0 {
			return fmt.Errorf("%w: timestamp", ErrMissingField)
		}
	case *ConnectAck:
		if m.SessionID == "" {
			return fmt.Errorf("%w: session_id", ErrMissingField)
		}
		if m.PeerID == "" {
			return fmt.Errorf("%w: peer_id", ErrMissingField)
		}
		if m.Timestamp == 0 {
			return fmt.Errorf("%w: timestamp", ErrMissingField)
		}
	case *StreamStart:
		if m.SessionID == "" {
			return fmt.Errorf("%w: session_id", ErrMissingField)
		}
		if m.StreamID == "" {
			return fmt.Errorf("%w: stream_id", ErrMissingField)
		}
		switch m.StreamType {
		case "audio", "video", "both":
		default:
			return fmt.Errorf("signaling: invalid stream_type %q", m.StreamType)
		}
		if m.Codec.Name == "" {
			return fmt.Errorf("%w: codec.name", ErrMissingField)
		}
		if m.SSRC == 0 {
			return fmt.Errorf("%w: ssrc", ErrMissingField)
		}
		if m.Timestamp == 0 {
			return fmt.Errorf("%w: timestamp", ErrMissingField)
		}
	case *StreamStop:
		if m.SessionID == "" {
			return fmt.Errorf("%w: session_id", ErrMissingField)
		}
		if m.StreamID == "" {
			return fmt.Errorf("%w: stream_id", ErrMissingField)
		}
		switch m.Reason {
		case "user_request", "error", "timeout":
		default:
			return fmt.Errorf("signaling: invalid reason %q", m.Reason)
		}
		if m.Timestamp == 0 {
			return fmt.Errorf("%w: timestamp", ErrMissingField)
		}
	case *QualityAdapt:
		if m.SessionID == "" {
			return fmt.Errorf("%w: session_id", ErrMissingField)
		}
		if m.StreamID == "" {
			return fmt.Errorf("%w: stream_id", ErrMissingField)
		}
		switch m.Reason {
		case "bandwidth", "cpu", "network", "keyframe":
		default:
			return fmt.Errorf("signaling: invalid reason %q", m.Reason)
		}
		if m.Timestamp == 0 {
			return fmt.Errorf("%w: timestamp", ErrMissingField)
		}
	case *Heartbeat:
		if m.SessionID == "" {
			return fmt.Errorf("%w: session_id", ErrMissingField)
		}
		if m.Timestamp == 0 {
			return fmt.Errorf("%w: timestamp", ErrMissingField)
		}
	case *HeartbeatAck:
		if m.SessionID == "" {
			return fmt.Errorf("%w: session_id", ErrMissingField)
		}
		if m.OriginalTimestamp == 0 {
			return fmt.Errorf("%w: original_timestamp", ErrMissingField)
		}
		if m.ResponseTimestamp == 0 {
			return fmt.Errorf("%w: response_timestamp", ErrMissingField)
		}
	default:
		return ErrUnknownType
	}
	return nil
}
