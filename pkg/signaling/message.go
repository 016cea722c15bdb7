// Package signaling defines the ArcSignaling wire messages: a closed,
// JSON-framed tagged union discriminated by the "type" field.
package signaling

// Type discriminates the signaling message union.
type Type string

const (
	TypeConnect      Type = "CONNECT"
	TypeConnectAck   Type = "CONNECT_ACK"
	TypeStreamStart  Type = "STREAM_START"
	TypeStreamStop   Type = "STREAM_STOP"
	TypeQualityAdapt Type = "QUALITY_ADAPT"
	TypeHeartbeat    Type = "HEARTBEAT"
	TypeHeartbeatAck Type = "HEARTBEAT_ACK"
)

// Message is implemented by every signaling payload.
type Message interface {
	MessageType() Type
}

// Capabilities advertises what a peer can send and receive.
type Capabilities struct {
	Codecs      []string `json:"codecs"`
	Resolutions []string `json:"resolutions"`
	// Encryption lists supported suites and the offerer's ephemeral key
	// exchange material as "x25519:<hex public key>" entries.
	Encryption []string `json:"encryption"`
	Transport  []string `json:"transport"`
}

// NetworkInfo describes the sender's observed network position.
type NetworkInfo struct {
	PublicIP   string `json:"public_ip"`
	PublicPort int    `json:"public_port"`
	NATType    string `json:"nat_type"`
}

// Connect opens a session.
type Connect struct {
	Type         Type         `json:"type"`
	Version      string       `json:"version"`
	SessionID    string       `json:"session_id"`
	PeerID       string       `json:"peer_id"`
	Capabilities Capabilities `json:"capabilities"`
	NetworkInfo  NetworkInfo  `json:"network_info"`
	Timestamp    int64        `json:"timestamp"`
}

func (*Connect) MessageType() Type { return TypeConnect }

// SelectedCodecs is the negotiated codec per media kind.
type SelectedCodecs struct {
	Audio string `json:"audio"`
	Video string `json:"video"`
}

// AckNetworkInfo carries the responder's relay candidates.
type AckNetworkInfo struct {
	RelayServers []string `json:"relay_servers"`
}

// EncryptionParams is the negotiated crypto configuration.
type EncryptionParams struct {
	Algorithm string `json:"algorithm"`
	// KeyExchange carries the responder's ephemeral public key as
	// "x25519:<hex public key>".
	KeyExchange string `json:"key_exchange"`
}

// ConnectAck accepts or rejects a Connect.
type ConnectAck struct {
	Type           Type             `json:"type"`
	SessionID      string           `json:"session_id"`
	PeerID         string           `json:"peer_id"`
	Accepted       bool             `json:"accepted"`
	SelectedCodecs SelectedCodecs   `json:"selected_codecs"`
	NetworkInfo    AckNetworkInfo   `json:"network_info"`
	Encryption     EncryptionParams `json:"encryption"`
	Timestamp      int64            `json:"timestamp"`
}

func (*ConnectAck) MessageType() Type { return TypeConnectAck }

// CodecParams describes the codec of a starting stream.
type CodecParams struct {
	Name        string `json:"name"`
	ClockRate   uint32 `json:"clock_rate"`
	Channels    uint8  `json:"channels,omitempty"`
	PayloadType uint8  `json:"payload_type"`
}

// StreamEncryption names the key material for a stream.
type StreamEncryption struct {
	KeyID     string `json:"key_id"`
	Algorithm string `json:"algorithm"`
}

// StreamStart announces a new media stream.
type StreamStart struct {
	Type       Type             `json:"type"`
	SessionID  string           `json:"session_id"`
	StreamID   string           `json:"stream_id"`
	StreamType string           `json:"stream_type"` // audio, video or both
	Codec      CodecParams      `json:"codec"`
	SSRC       uint32           `json:"ssrc"`
	Encryption StreamEncryption `json:"encryption"`
	Timestamp  int64            `json:"timestamp"`
}

func (*StreamStart) MessageType() Type { return TypeStreamStart }

// StreamStop ends a stream.
type StreamStop struct {
	Type      Type   `json:"type"`
	SessionID string `json:"session_id"`
	StreamID  string `json:"stream_id"`
	Reason    string `json:"reason"` // user_request, error or timeout
	Timestamp int64  `json:"timestamp"`
}

func (*StreamStop) MessageType() Type { return TypeStreamStop }

// QualitySpec is the target quality of a QualityAdapt.
type QualitySpec struct {
	Bitrate    int    `json:"bitrate"`
	Resolution string `json:"resolution"`
	FPS        int    `json:"fps"`
}

// QualityAdapt asks the peer to change stream quality.
type QualityAdapt struct {
	Type      Type        `json:"type"`
	SessionID string      `json:"session_id"`
	StreamID  string      `json:"stream_id"`
	Quality   QualitySpec `json:"quality"`
	Reason    string      `json:"reason"` // bandwidth, cpu, network or keyframe
	Timestamp int64       `json:"timestamp"`
}

func (*QualityAdapt) MessageType() Type { return TypeQualityAdapt }

// Heartbeat probes session liveness and measures RTT.
type Heartbeat struct {
	Type      Type   `json:"type"`
	SessionID string `json:"session_id"`
	Sequence  uint64 `json:"sequence"`
	Timestamp int64  `json:"timestamp"`
}

func (*Heartbeat) MessageType() Type { return TypeHeartbeat }

// HeartbeatAck answers a Heartbeat, echoing the original send timestamp.
type HeartbeatAck struct {
	Type              Type   `json:"type"`
	SessionID         string `json:"session_id"`
	Sequence          uint64 `json:"sequence"`
	OriginalTimestamp int64  `json:"original_timestamp"`
	ResponseTimestamp int64  `json:"response_timestamp"`
	LatencyMS         int64  `json:"latency_ms"`
}

func (*HeartbeatAck) MessageType() Type { return TypeHeartbeatAck }
