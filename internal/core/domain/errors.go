package domain

import "errors"

var (
	ErrDuplicateSSRC        = errors.New("duplicate ssrc")
	ErrUnsupportedCodec     = errors.New("unsupported codec")
	ErrInvalidTransition    = errors.New("invalid stream state transition")
	ErrUnknownStream        = errors.New("unknown stream")
	ErrUnknownSSRC          = errors.New("unknown ssrc")
	ErrUnknownSession       = errors.New("unknown session")
	ErrSessionClosed        = errors.New("session closed")
	ErrPrematureStreamStart = errors.New("stream start before connect ack")
	ErrKeyNotFound          = errors.New("key not found")
	ErrKeyConflict          = errors.New("key already exists")
	ErrMalformedPacket      = errors.New("malformed packet")
)
