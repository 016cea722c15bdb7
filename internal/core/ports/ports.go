// Package ports declares the capability interfaces injected into the core.
// The core never owns the resources behind them.
package ports

import (
	"context"

	"arcrtc/internal/core/domain"
	"arcrtc/pkg/signaling"
)

// KeyProvider supplies master keys and salts for sessions. Implementations
// are read-mostly; updates serialize through the provider's own locking
// with per-key versioning.
type KeyProvider interface {
	Get(id domain.KeyID) ([]byte, error)
	// Put stores a new key; an existing id yields domain.ErrKeyConflict.
	Put(id domain.KeyID, key []byte) error
	// Rotate replaces an existing key; a missing id yields
	// domain.ErrKeyNotFound.
	Rotate(id domain.KeyID, key []byte) error
}

// TransportSink pushes datagrams to the network. Writes to the same
// endpoint are delivered in order.
type TransportSink interface {
	WriteTo(ctx context.Context, b []byte, endpoint string) error
	Close() error
}

// DatagramHandler receives inbound datagrams from a transport. The buffer
// is only valid for the duration of the call.
type DatagramHandler func(b []byte, from string)

// SignalChannel is an ordered, bidirectional signaling message stream for
// one session. Receive returns an error when the peer closes the channel.
type SignalChannel interface {
	Send(ctx context.Context, msg signaling.Message) error
	Receive(ctx context.Context) (signaling.Message, error)
	Close() error
}

// EncoderControl is the local encoder interface quality decisions are
// applied to.
type EncoderControl interface {
	SetTarget(streamID domain.StreamID, bitrate, width, height, framerate int) error
	RequestKeyframe(streamID domain.StreamID) error
}

// FrameHandler consumes decoded, ordered media payloads. Concealed frames
// are flagged.
type FrameHandler func(streamID domain.StreamID, payload []byte, concealed bool)

// MetricsCollector receives stream lifecycle events and periodic stats
// snapshots for the operator view.
type MetricsCollector interface {
	RecordStreamCreated(streamID domain.StreamID, kind domain.MediaKind)
	RecordStreamClosed(streamID domain.StreamID)
	RecordSessionOpened(sessionID domain.SessionID)
	RecordSessionClosed(sessionID domain.SessionID)
	UpdateStreamStats(stats domain.Stats)
}
