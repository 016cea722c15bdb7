package integration

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"arcrtc/internal/core/domain"
	"arcrtc/internal/core/services"
	"arcrtc/pkg/rtp"
	"arcrtc/pkg/srtp"
)

// wireTee is a TransportSink that forwards sealed datagrams into the
// receiving manager while keeping a copy for replay scenarios.
type wireTee struct {
	mu      sync.Mutex
	wires   [][]byte
	deliver func([]byte)
}

func (w *wireTee) WriteTo(ctx context.Context, b []byte, endpoint string) error {
	cp := append([]byte(nil), b...)
	w.mu.Lock()
	w.wires = append(w.wires, cp)
	w.mu.Unlock()
	if w.deliver != nil {
		w.deliver(cp)
	}
	return nil
}

func (w *wireTee) Close() error { return nil }

func (w *wireTee) all() [][]byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([][]byte, len(w.wires))
	copy(out, w.wires)
	return out
}

type sink struct{}

func (sink) WriteTo(ctx context.Context, b []byte, endpoint string) error { return nil }
func (sink) Close() error                                                 { return nil }

type frameRecorder struct {
	mu     sync.Mutex
	frames []frame
}

type frame struct {
	payload   []byte
	concealed bool
}

func (r *frameRecorder) handle(streamID domain.StreamID, payload []byte, concealed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, frame{append([]byte(nil), payload...), concealed})
}

func (r *frameRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func (r *frameRecorder) all() []frame {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]frame, len(r.frames))
	copy(out, r.frames)
	return out
}

type loopback struct {
	sender     *services.StreamManager
	receiver   *services.StreamManager
	senderID   domain.StreamID
	receiverID domain.StreamID
	tee        *wireTee
	rec        *frameRecorder
}

const loopSSRC = 12345

// newLoopback wires a sending manager into a receiving one over an
// in-memory transport, with one encrypted opus stream on each side
// sharing master key material.
func newLoopback(t *testing.T, jitterInitial time.Duration) *loopback {
	t.Helper()
	log := zaptest.NewLogger(t).Sugar()

	rec := &frameRecorder{}
	recvCfg := services.DefaultManagerConfig()
	if jitterInitial > 0 {
		recvCfg.Jitter.InitialDepth = jitterInitial
	}
	receiver := services.NewStreamManager(recvCfg, sink{}, rec.handle, nil, log)
	t.Cleanup(receiver.Close)

	tee := &wireTee{deliver: func(b []byte) {
		_ = receiver.RouteInbound(b)
	}}
	sender := services.NewStreamManager(services.DefaultManagerConfig(), tee, nil, nil, log)
	t.Cleanup(sender.Close)

	masterKey := bytes.Repeat([]byte{0x42}, 16)
	masterSalt := bytes.Repeat([]byte{0x17}, 14)
	streamCfg := services.StreamConfig{
		Kind:           domain.KindAudio,
		SSRC:           loopSSRC,
		PayloadType:    111,
		Codec:          "opus",
		TargetBitrate:  64_000,
		Encrypted:      true,
		MasterKey:      masterKey,
		MasterSalt:     masterSalt,
		Suite:          srtp.SuiteAES128GCM,
		Endpoint:       "peer:5004",
		InitialQuality: domain.QualityHigh,
	}

	senderID, err := sender.CreateStream(streamCfg)
	require.NoError(t, err)
	require.NoError(t, sender.UpdateState(senderID, domain.StreamActive))

	receiverID, err := receiver.CreateStream(streamCfg)
	require.NoError(t, err)
	require.NoError(t, receiver.UpdateState(receiverID, domain.StreamActive))

	return &loopback{
		sender:     sender,
		receiver:   receiver,
		senderID:   senderID,
		receiverID: receiverID,
		tee:        tee,
		rec:        rec,
	}
}

func (l *loopback) send(t *testing.T, seq uint16, payload []byte) {
	t.Helper()
	p := &rtp.Packet{}
	p.Header.Version = 2
	p.Header.PayloadType = 111
	p.Header.SequenceNumber = seq
	p.Header.Timestamp = uint32(seq) * 960
	p.Header.SSRC = loopSSRC
	p.Payload = payload
	require.NoError(t, l.sender.RouteOutbound(context.Background(), l.senderID, p))
}

// seqPayload is 160 bytes of 0xAA with the sequence stamped in front so
// delivery order is observable.
func seqPayload(seq uint16) []byte {
	payload := bytes.Repeat([]byte{0xAA}, 160)
	payload[0] = byte(seq >> 8)
	payload[1] = byte(seq)
	return payload
}

func waitFrames(t *testing.T, rec *frameRecorder, n int) []frame {
	t.Helper()
	require.Eventually(t, func() bool {
		return rec.count() >= n
	}, 5*time.Second, 10*time.Millisecond)
	return rec.all()
}

// Clean loopback: 100 sequential packets arrive complete and in order.
func TestCleanLoopback(t *testing.T) {
	l := newLoopback(t, 0)

	for seq := uint16(1000); seq < 1100; seq++ {
		l.send(t, seq, seqPayload(seq))
	}

	frames := waitFrames(t, l.rec, 100)
	require.Len(t, frames, 100)
	for i, f := range frames {
		seq := uint16(1000 + i)
		assert.Equal(t, seqPayload(seq), f.payload, "order preserved at %d", i)
		assert.False(t, f.concealed)
	}

	stats, err := l.receiver.GetStats(l.receiverID)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), stats.PacketsReceived)
	assert.Equal(t, uint64(0), stats.PacketsLost)
	assert.Equal(t, uint64(0), stats.Concealed)
}

// Reorder within depth: 1000, 1001, 1003, 1002, 1004 comes out sorted.
func TestReorderWithinDepth(t *testing.T) {
	// A deeper initial target so 20ms reordering is absorbed rather than
	// concealed.
	l := newLoopback(t, 45*time.Millisecond)

	for _, seq := range []uint16{1000, 1001, 1003, 1002, 1004} {
		l.send(t, seq, seqPayload(seq))
		time.Sleep(20 * time.Millisecond)
	}

	frames := waitFrames(t, l.rec, 5)
	for i, f := range frames[:5] {
		assert.Equal(t, seqPayload(uint16(1000+i)), f.payload)
		assert.False(t, f.concealed)
	}
}

// Loss with PLC: the hole at 1005 is concealed, everything else delivered.
func TestLossConcealment(t *testing.T) {
	l := newLoopback(t, 0)

	for seq := uint16(1000); seq < 1010; seq++ {
		if seq == 1005 {
			continue // lost on the wire
		}
		l.send(t, seq, seqPayload(seq))
	}

	frames := waitFrames(t, l.rec, 10)
	require.Len(t, frames, 10)
	for i, f := range frames {
		if i == 5 {
			assert.True(t, f.concealed, "position 5 is the concealed 1005")
			continue
		}
		assert.False(t, f.concealed, "position %d", i)
	}

	stats, err := l.receiver.GetStats(l.receiverID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), stats.PacketsLost)
	assert.Equal(t, uint64(1), stats.Concealed)
}

// Replay: the identical SRTP datagram is accepted once and rejected once.
func TestReplayRejected(t *testing.T) {
	l := newLoopback(t, 0)

	l.send(t, 2000, seqPayload(2000))
	wires := l.tee.all()
	require.Len(t, wires, 1)

	// Resend the identical bytes.
	require.NoError(t, l.receiver.RouteInbound(append([]byte(nil), wires[0]...)))

	require.Eventually(t, func() bool {
		stats, err := l.receiver.GetStats(l.receiverID)
		return err == nil && stats.Replayed == 1
	}, 5*time.Second, 10*time.Millisecond)

	frames := waitFrames(t, l.rec, 1)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, 1, l.rec.count(), "seq 2000 delivered exactly once")
	assert.Equal(t, seqPayload(2000), frames[0].payload)
}

// Sequence wrap: 65534, 65535, 0, 1, 2 all arrive in order across the ROC
// increment.
func TestSequenceWrap(t *testing.T) {
	l := newLoopback(t, 0)

	seqs := []uint16{65534, 65535, 0, 1, 2}
	for _, seq := range seqs {
		l.send(t, seq, seqPayload(seq))
	}

	frames := waitFrames(t, l.rec, 5)
	require.Len(t, frames, 5)
	for i, f := range frames {
		assert.Equal(t, seqPayload(seqs[i]), f.payload)
		assert.False(t, f.concealed)
	}

	stats, err := l.receiver.GetStats(l.receiverID)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), stats.PacketsReceived)
	assert.Equal(t, uint64(0), stats.PacketsLost)
}
