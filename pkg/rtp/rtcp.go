package rtp

import (
	"fmt"

	"github.com/pion/rtcp"
)

// ParseCompound decodes a compound RTCP datagram into its constituent
// packets (SR, RR, SDES, BYE, ...). Parsing stops when the accumulated
// lengths reach the datagram end.
func ParseCompound(buf []byte) ([]rtcp.Packet, error) {
	if len(buf) < 4 {
		return nil, ErrHeaderTooShort
	}
	pkts, err := rtcp.Unmarshal(buf)
	if err != nil {
		return nil, fmt.Errorf("rtcp: %w", err)
	}
	return pkts, nil
}

// MarshalCompound serializes RTCP packets into one compound datagram.
func MarshalCompound(pkts []rtcp.Packet) ([]byte, error) {
	return rtcp.Marshal(pkts)
}
