package domain

import "time"

// HealthSample is one observation of stream network quality.
type HealthSample struct {
	LossRate     float64 // [0, 1]
	JitterMS     float64
	RTTMS        float64
	BandwidthBPS float64
	Timestamp    time.Time
}

// Stats is a snapshot of a stream's counters, read without locks from the
// packet fast path.
type Stats struct {
	StreamID        StreamID
	State           StreamState
	PacketsSent     uint64
	PacketsReceived uint64
	PacketsLost     uint64
	PacketsDropped  uint64 // inbound queue tail-drops
	Replayed        uint64
	AuthFailures    uint64
	ParseErrors     uint64
	Concealed       uint64
	LateDrops       uint64
	BytesSent       uint64
	BytesReceived   uint64
	Health          HealthSample
}
