package rtp

import (
	"testing"

	"github.com/pion/rtcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRTCPCompoundRoundTrip(t *testing.T) {
	pkts := []rtcp.Packet{
		&rtcp.SenderReport{
			SSRC:        12345,
			NTPTime:     0x0102030405060708,
			RTPTime:     160000,
			PacketCount: 100,
			OctetCount:  16000,
		},
		&rtcp.ReceiverReport{
			SSRC: 12345,
			Reports: []rtcp.ReceptionReport{{
				SSRC:               54321,
				FractionLost:       12,
				TotalLost:          3,
				LastSequenceNumber: 1099,
				Jitter:             7,
				LastSenderReport:   0x11223344,
				Delay:              6553,
			}},
		},
		&rtcp.SourceDescription{
			Chunks: []rtcp.SourceDescriptionChunk{{
				Source: 12345,
				Items:  []rtcp.SourceDescriptionItem{{Type: rtcp.SDESCNAME, Text: "alice@arcrtc"}},
			}},
		},
		&rtcp.Goodbye{Sources: []uint32{12345}, Reason: "done"},
	}

	wire, err := MarshalCompound(pkts)
	require.NoError(t, err)

	parsed, err := ParseCompound(wire)
	require.NoError(t, err)
	require.Len(t, parsed, len(pkts))

	rewire, err := MarshalCompound(parsed)
	require.NoError(t, err)
	assert.Equal(t, wire, rewire)

	sr, ok := parsed[0].(*rtcp.SenderReport)
	require.True(t, ok)
	assert.Equal(t, uint32(12345), sr.SSRC)

	rr, ok := parsed[1].(*rtcp.ReceiverReport)
	require.True(t, ok)
	require.Len(t, rr.Reports, 1)
	assert.Equal(t, uint32(0x11223344), rr.Reports[0].LastSenderReport)
}

func TestRTCPParseErrors(t *testing.T) {
	_, err := ParseCompound(nil)
	assert.ErrorIs(t, err, ErrHeaderTooShort)

	_, err = ParseCompound([]byte{0x00, 0x01, 0x02, 0x03})
	assert.Error(t, err)
}
