package rtp

import (
	"encoding/binary"
	"errors"
	"fmt"

	pionrtp "github.com/pion/rtp"
)

const (
	fixedHeaderLen = 12

	// ExtensionProfile identifies the one-word profile-specific header
	// extension (RFC 3550 §5.3.1) carrying the in-band quality indicator
	// and priority bits.
	ExtensionProfile uint16 = 0xA7C0
)

var (
	ErrHeaderTooShort     = errors.New("rtp: header too short")
	ErrUnsupportedVersion = errors.New("rtp: unsupported version")
	ErrBadPadding         = errors.New("rtp: bad padding")
	ErrTruncatedExtension = errors.New("rtp: truncated extension")
)

// Quality is the 2-bit in-band quality indicator.
type Quality uint8

const (
	QualityExcellent Quality = iota
	QualityGood
	QualityFair
	QualityPoor
)

// Priority is the 2-bit in-band priority level.
type Priority uint8

const (
	PriorityCritical Priority = iota
	PriorityHigh
	PriorityMedium
	PriorityLow
)

// Packet is a parsed RTP packet. The embedded pion packet carries the
// RFC 3550 header fields, payload and padding; the profile extension is
// kept in wire form so serialization reproduces the input bytes exactly.
type Packet struct {
	pionrtp.Packet
}

// Parse decodes an RTP datagram. The original byte ranges for extension
// and payload are referenced, not copied.
func Parse(buf []byte) (*Packet, error) {
	if err := validate(buf); err != nil {
		return nil, err
	}
	p := &Packet{}
	if err := p.Unmarshal(buf); err != nil {
		return nil, fmt.Errorf("rtp: %w", err)
	}
	return p, nil
}

// validate performs the header checks Parse guarantees before handing
// the buffer to the wire codec.
func validate(buf []byte) error {
	if len(buf) < fixedHeaderLen {
		return ErrHeaderTooShort
	}
	if version := buf[0] >> 6; version != 2 {
		return ErrUnsupportedVersion
	}

	csrcCount := int(buf[0] & 0x0F)
	offset := fixedHeaderLen + csrcCount*4
	if len(buf) < offset {
		return ErrHeaderTooShort
	}

	if buf[0]&0x10 != 0 { // extension bit
		if len(buf) < offset+4 {
			return ErrTruncatedExtension
		}
		words := int(binary.BigEndian.Uint16(buf[offset+2 : offset+4]))
		offset += 4 + words*4
		if len(buf) < offset {
			return ErrTruncatedExtension
		}
	}

	if buf[0]&0x20 != 0 { // padding bit
		padLen := int(buf[len(buf)-1])
		if padLen == 0 || offset+padLen > len(buf) {
			return ErrBadPadding
		}
		// Padding fill must be zero so the serialized form is canonical.
		for _, b := range buf[len(buf)-padLen : len(buf)-1] {
			if b != 0 {
				return ErrBadPadding
			}
		}
	}

	return nil
}

// QualityBits returns the in-band quality indicator and priority when the
// profile extension is present.
func (p *Packet) QualityBits() (Quality, Priority, bool) {
	if !p.Header.Extension || p.Header.ExtensionProfile != ExtensionProfile {
		return 0, 0, false
	}
	ext := p.Header.GetExtension(0)
	if len(ext) < 1 {
		return 0, 0, false
	}
	return Quality(ext[0]>>2) & 0x03, Priority(ext[0]) & 0x03, true
}

// SetQualityBits attaches (or replaces) the profile extension carrying the
// quality indicator and priority in the low 4 bits of the first extension
// byte. Remaining bits are reserved zero.
func (p *Packet) SetQualityBits(q Quality, pr Priority) error {
	p.Header.Extension = true
	p.Header.ExtensionProfile = ExtensionProfile
	word := []byte{byte(q&0x03)<<2 | byte(pr&0x03), 0, 0, 0}
	return p.Header.SetExtension(0, word)
}

// SSRCOf extracts the SSRC from a raw datagram without a full parse, for
// routing lookups on the hot path.
func SSRCOf(buf []byte) (uint32, error) {
	if len(buf) < fixedHeaderLen {
		return 0, ErrHeaderTooShort
	}
	return binary.BigEndian.Uint32(buf[8:12]), nil
}

// ParseHeader decodes only the header portion of a datagram, returning the
// header and the number of bytes it occupies.
func ParseHeader(buf []byte) (*pionrtp.Header, int, error) {
	if len(buf) < fixedHeaderLen {
		return nil, 0, ErrHeaderTooShort
	}
	if version := buf[0] >> 6; version != 2 {
		return nil, 0, ErrUnsupportedVersion
	}
	h := &pionrtp.Header{}
	n, err := h.Unmarshal(buf)
	if err != nil {
		return nil, 0, fmt.Errorf("rtp: %w", err)
	}
	return h, n, nil
}
