package services

import (
	"context"
	"fmt"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/rtcp"
	"go.uber.org/zap"

	"arcrtc/internal/core/domain"
	"arcrtc/internal/core/ports"
	"arcrtc/pkg/circuitbreaker"
	"arcrtc/pkg/jitter"
	"arcrtc/pkg/logger"
	"arcrtc/pkg/plc"
	"arcrtc/pkg/retry"
	"arcrtc/pkg/rtp"
	"arcrtc/pkg/srtp"
	"arcrtc/pkg/utils"
)

// supportedCodecs maps codec tags onto their RTP clock rates.
var supportedCodecs = map[string]uint32{
	"opus": 48000,
	"g722": 8000,
	"pcmu": 8000,
	"vp8":  90000,
	"h264": 90000,
}

// rotationGrace is how long a rotated-out crypto context keeps absorbing
// reordered packets.
const rotationGrace = time.Second

// StreamConfig describes one stream to create.
type StreamConfig struct {
	ID            domain.StreamID
	SessionID     domain.SessionID
	Kind          domain.MediaKind
	SSRC          uint32
	PayloadType   uint8
	Codec         string
	ClockRate     uint32
	TargetBitrate int
	Encrypted     bool
	MasterKey     []byte
	MasterSalt    []byte
	Suite         srtp.Suite
	// Endpoint is the remote datagram address outbound packets go to.
	Endpoint       string
	InitialQuality domain.QualityLevel
}

// ManagerConfig tunes the per-stream pipelines.
type ManagerConfig struct {
	Jitter          jitter.Config
	PLCAudio        plc.AudioConfig
	PLCVideo        plc.VideoConfig
	Adapt           AdaptConfig
	ReplayWindow    uint
	RotationPackets uint64
	// InboundQueue is the per-stream channel capacity; at least the
	// jitter capacity so backpressure drops are the exception.
	InboundQueue int
	// AuthFailureLimit is the per-second authentication failure budget
	// before a stream is torn down.
	AuthFailureLimit int
	PopInterval      time.Duration
	TeardownTimeout  time.Duration
	Now              func() time.Time
}

// DefaultManagerConfig mirrors the engine defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Jitter:           jitter.DefaultConfig(),
		PLCAudio:         plc.DefaultAudioConfig(),
		PLCVideo:         plc.DefaultVideoConfig(),
		Adapt:            DefaultAdaptConfig(),
		ReplayWindow:     srtp.DefaultReplayWindow,
		RotationPackets:  srtp.DefaultRotationPackets,
		InboundQueue:     256,
		AuthFailureLimit: 100,
		PopInterval:      5 * time.Millisecond,
		TeardownTimeout:  200 * time.Millisecond,
	}
}

type managedStream struct {
	cfg StreamConfig

	stateMu sync.Mutex
	state   domain.StreamState

	// crypto contexts swap atomically on rotation; all other pipeline
	// state is touched only by the stream task
	crypto     atomic.Pointer[srtp.Context]
	prevCrypto atomic.Pointer[srtp.Context]
	prevUntil  atomic.Int64 // unix nanos; previous context grace deadline

	extender   seqExtender
	jb         *jitter.Buffer
	audioPLC   *plc.Audio
	videoPLC   *plc.Video
	health     *HealthMonitor
	adapt      *AdaptController
	keyframeUp bool

	inbound chan []byte
	cancel  context.CancelFunc
	done    chan struct{}

	outQuality    atomic.Uint32
	targetBitrate atomic.Int64
	lastSample    atomic.Value // domain.HealthSample
	// pendingRTT hands heartbeat RTT samples to the pipeline task without
	// breaking the single-writer invariant on the health monitor.
	pendingRTT atomic.Uint64 // math.Float64bits, 0 = none
	lastExtSeq atomic.Uint64

	packetsSent     atomic.Uint64
	packetsReceived atomic.Uint64
	packetsLost     atomic.Uint64
	packetsDropped  atomic.Uint64
	replayed        atomic.Uint64
	authFailures    atomic.Uint64
	parseErrors     atomic.Uint64
	concealed       atomic.Uint64
	lateDrops       atomic.Uint64
	bytesSent       atomic.Uint64
	bytesReceived   atomic.Uint64

	// auth failure rate accounting, pipeline-task local
	authWindowStart time.Time
	authWindowCount int
}

// StreamManager owns all live streams, routes packets between the
// transport and per-stream pipelines, and enforces the stream state
// machine. Inbound lookup is a lock-free sync.Map keyed by SSRC; each
// stream's pipeline runs on a single task, preserving the single-writer
// invariant inside the jitter buffer, crypto context and health monitor.
type StreamManager struct {
	cfg       ManagerConfig
	transport ports.TransportSink
	frames    ports.FrameHandler
	collector ports.MetricsCollector
	logger    *zap.SugaredLogger
	fastLog   *logger.Limited
	breaker   *circuitbreaker.CircuitBreaker
	now       func() time.Time

	bySSRC sync.Map // uint32 -> *managedStream

	mu   sync.Mutex
	byID map[domain.StreamID]*managedStream

	// OnDecision receives quality changes from the per-stream adapt
	// controllers.
	OnDecision func(Decision)
	// OnStreamError fires when a stream transitions to Error.
	OnStreamError func(streamID domain.StreamID, reason string)
	// OnTransportDown fires when the write circuit opens.
	OnTransportDown func()
}

// NewStreamManager creates a manager over the given transport.
func NewStreamManager(cfg ManagerConfig, transport ports.TransportSink, frames ports.FrameHandler, collector ports.MetricsCollector, log *zap.SugaredLogger) *StreamManager {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	m := &StreamManager{
		cfg:       cfg,
		transport: transport,
		frames:    frames,
		collector: collector,
		logger:    log,
		fastLog:   logger.NewLimited(log, 10, 20),
		breaker:   circuitbreaker.New(circuitbreaker.DefaultConfig()),
		now:       now,
		byID:      make(map[domain.StreamID]*managedStream),
	}
	m.breaker.OnOpen = func() {
		log.Errorw("transport write circuit opened")
		if m.OnTransportDown != nil {
			m.OnTransportDown()
		}
	}
	return m
}

// CreateStream registers a stream and starts its pipeline task. The
// stream begins in Initializing.
func (m *StreamManager) CreateStream(cfg StreamConfig) (domain.StreamID, error) {
	clockRate, ok := supportedCodecs[cfg.Codec]
	if !ok {
		return "", fmt.Errorf("%w: %q", domain.ErrUnsupportedCodec, cfg.Codec)
	}
	if cfg.ClockRate == 0 {
		cfg.ClockRate = clockRate
	}
	if cfg.ID == "" {
		cfg.ID = domain.StreamID(utils.GenerateStreamID())
	}

	ms := &managedStream{
		cfg:     cfg,
		state:   domain.StreamInitializing,
		inbound: make(chan []byte, m.cfg.InboundQueue),
		done:    make(chan struct{}),
	}
	ms.targetBitrate.Store(int64(cfg.TargetBitrate))

	if cfg.Encrypted {
		ctx, err := srtp.Derive(srtp.Config{
			MasterKey:       cfg.MasterKey,
			MasterSalt:      cfg.MasterSalt,
			SSRC:            cfg.SSRC,
			Suite:           cfg.Suite,
			ReplayWindow:    m.cfg.ReplayWindow,
			RotationPackets: m.cfg.RotationPackets,
		})
		if err != nil {
			return "", err
		}
		ms.crypto.Store(ctx)
	}

	jcfg := m.cfg.Jitter
	jcfg.Now = m.now
	ms.jb = jitter.New(jcfg)
	if cfg.Kind == domain.KindAudio {
		ms.audioPLC = plc.NewAudio(m.cfg.PLCAudio)
	} else {
		ms.videoPLC = plc.NewVideo(m.cfg.PLCVideo)
	}

	hcfg := DefaultHealthConfig(cfg.ClockRate)
	hcfg.Now = m.now
	ms.health = NewHealthMonitor(hcfg)

	acfg := m.cfg.Adapt
	acfg.Now = m.now
	ms.adapt = NewAdaptController(acfg, cfg.ID, cfg.InitialQuality, m.logger)
	ms.adapt.OnDecision = func(d Decision) {
		ms.outQuality.Store(uint32(qualityBitsFor(d.Level)))
		if d.StreamID != "" && !d.Keyframe {
			if ms.cfg.Kind == domain.KindVideo {
				ms.targetBitrate.Store(int64(d.Profile.VideoBitrate))
			} else {
				ms.targetBitrate.Store(int64(d.Profile.AudioBitrate))
			}
		}
		if m.OnDecision != nil {
			m.OnDecision(d)
		}
	}
	ms.outQuality.Store(uint32(qualityBitsFor(cfg.InitialQuality)))

	if _, loaded := m.bySSRC.LoadOrStore(cfg.SSRC, ms); loaded {
		return "", fmt.Errorf("%w: %d", domain.ErrDuplicateSSRC, cfg.SSRC)
	}

	m.mu.Lock()
	m.byID[cfg.ID] = ms
	m.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	ms.cancel = cancel
	go m.run(ctx, ms)

	if m.collector != nil {
		m.collector.RecordStreamCreated(cfg.ID, cfg.Kind)
	}
	m.logger.Infow("stream created",
		"stream_id", cfg.ID,
		"session_id", cfg.SessionID,
		"kind", cfg.Kind.String(),
		"ssrc", cfg.SSRC,
		"codec", cfg.Codec,
	)
	return cfg.ID, nil
}

// UpdateState moves a stream through its state machine. Stopped and Error
// terminate the pipeline task.
func (m *StreamManager) UpdateState(streamID domain.StreamID, next domain.StreamState) error {
	ms, err := m.lookup(streamID)
	if err != nil {
		return err
	}

	ms.stateMu.Lock()
	from := ms.state
	if !domain.ValidTransition(from, next) {
		ms.stateMu.Unlock()
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, next)
	}
	ms.state = next
	ms.stateMu.Unlock()

	m.logger.Infow("stream state",
		"stream_id", streamID,
		"from", from.String(),
		"to", next.String(),
	)

	if next == domain.StreamStopped || next == domain.StreamError {
		m.teardown(ms)
		if next == domain.StreamError && m.OnStreamError != nil {
			m.OnStreamError(streamID, "error")
		}
	}
	return nil
}

// RouteInbound dispatches one datagram to the owning stream's pipeline.
// The buffer is copied; the caller may reuse it. When the stream's queue
// is full the oldest packet is dropped to preserve latency.
func (m *StreamManager) RouteInbound(buf []byte) error {
	ssrc, err := rtp.SSRCOf(buf)
	if err != nil {
		m.fastLog.Warnw("malformed datagram", "error", err)
		return domain.ErrMalformedPacket
	}
	v, ok := m.bySSRC.Load(ssrc)
	if !ok {
		return fmt.Errorf("%w: %d", domain.ErrUnknownSSRC, ssrc)
	}
	ms := v.(*managedStream)

	b := append([]byte(nil), buf...)
	select {
	case ms.inbound <- b:
		return nil
	default:
	}

	// Tail-drop the oldest queued packet and retry once.
	select {
	case <-ms.inbound:
		ms.packetsDropped.Add(1)
		ms.packetsLost.Add(1)
	default:
	}
	select {
	case ms.inbound <- b:
	default:
		ms.packetsDropped.Add(1)
		ms.packetsLost.Add(1)
	}
	return nil
}

// RouteOutbound seals a packet (stamping the in-band quality bits) and
// hands the bytes to the transport. Writes are retried once; repeated
// failures open the circuit and surface as a transport teardown.
func (m *StreamManager) RouteOutbound(ctx context.Context, streamID domain.StreamID, pkt *rtp.Packet) error {
	ms, err := m.lookup(streamID)
	if err != nil {
		return err
	}
	ms.stateMu.Lock()
	state := ms.state
	ms.stateMu.Unlock()
	if state != domain.StreamActive {
		return fmt.Errorf("%w: %s is %s", domain.ErrInvalidTransition, streamID, state)
	}

	if err := pkt.SetQualityBits(rtp.Quality(ms.outQuality.Load()), priorityFor(ms.cfg.Kind, pkt)); err != nil {
		return err
	}

	var wire []byte
	if cc := ms.crypto.Load(); cc != nil {
		wire, err = cc.Seal(pkt)
	} else {
		wire, err = pkt.Marshal()
	}
	if err != nil {
		return err
	}

	err = m.breaker.Call(func() error {
		return retry.Retry(ctx, retry.TransportConfig(), func() error {
			return m.transport.WriteTo(ctx, wire, ms.cfg.Endpoint)
		})
	})
	if err != nil {
		m.fastLog.Errorw("outbound write failed",
			"stream_id", streamID,
			"endpoint", ms.cfg.Endpoint,
			"error", err,
		)
		return err
	}

	ms.packetsSent.Add(1)
	ms.bytesSent.Add(uint64(len(wire)))
	return nil
}

// RotateStreamKey re-derives the stream's crypto context from a new master
// key. The previous context stays valid for a grace window to absorb
// reordered packets.
func (m *StreamManager) RotateStreamKey(streamID domain.StreamID, newMasterKey []byte) error {
	ms, err := m.lookup(streamID)
	if err != nil {
		return err
	}
	current := ms.crypto.Load()
	if current == nil {
		return fmt.Errorf("stream %s is not encrypted", streamID)
	}
	next, err := current.Rotate(newMasterKey)
	if err != nil {
		return err
	}
	ms.prevCrypto.Store(current)
	ms.prevUntil.Store(m.now().Add(rotationGrace).UnixNano())
	ms.crypto.Store(next)
	m.logger.Infow("stream key rotated", "stream_id", streamID)
	return nil
}

// GetStats returns a snapshot of the stream's counters.
func (m *StreamManager) GetStats(streamID domain.StreamID) (domain.Stats, error) {
	ms, err := m.lookup(streamID)
	if err != nil {
		return domain.Stats{}, err
	}
	return m.snapshot(ms), nil
}

// SnapshotStats walks all streams and copies their counters; no locks are
// taken on the packet fast path.
func (m *StreamManager) SnapshotStats() []domain.Stats {
	m.mu.Lock()
	streams := make([]*managedStream, 0, len(m.byID))
	for _, ms := range m.byID {
		streams = append(streams, ms)
	}
	m.mu.Unlock()

	out := make([]domain.Stats, 0, len(streams))
	for _, ms := range streams {
		out = append(out, m.snapshot(ms))
	}
	return out
}

// BuildReceiverReport assembles an RTCP receiver report for a receiving
// stream from its counters, for the control path back to the sender.
func (m *StreamManager) BuildReceiverReport(streamID domain.StreamID, lastSenderReport, delay uint32) (*rtcp.ReceiverReport, error) {
	ms, err := m.lookup(streamID)
	if err != nil {
		return nil, err
	}
	stats := m.snapshot(ms)

	fraction := stats.Health.LossRate * 256
	if fraction > 255 {
		fraction = 255
	}
	jitterUnits := stats.Health.JitterMS / 1000 * float64(ms.cfg.ClockRate)

	return &rtcp.ReceiverReport{
		SSRC: ms.cfg.SSRC,
		Reports: []rtcp.ReceptionReport{{
			SSRC:               ms.cfg.SSRC,
			FractionLost:       uint8(fraction),
			TotalLost:          uint32(stats.PacketsLost),
			LastSequenceNumber: uint32(ms.lastExtSeq.Load()),
			Jitter:             uint32(jitterUnits),
			LastSenderReport:   lastSenderReport,
			Delay:              delay,
		}},
	}, nil
}

// ProcessReceiverReport folds a peer's reception report for one of our
// sending streams into its health metrics: the LSR/DLSR fields yield an
// RTT sample.
func (m *StreamManager) ProcessReceiverReport(streamID domain.StreamID, rr *rtcp.ReceiverReport) error {
	ms, err := m.lookup(streamID)
	if err != nil {
		return err
	}
	for _, report := range rr.Reports {
		if report.LastSenderReport == 0 {
			continue
		}
		if rtt := RTTFromReport(report.LastSenderReport, report.Delay, m.now()); rtt > 0 {
			ms.pendingRTT.Store(math.Float64bits(rtt))
		}
	}
	return nil
}

// ObserveSessionRTT feeds a round-trip measurement to every stream of the
// session. The sample is picked up by each stream's pipeline task on its
// next adapt tick.
func (m *StreamManager) ObserveSessionRTT(sessionID domain.SessionID, rttMS float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ms := range m.byID {
		if ms.cfg.SessionID == sessionID {
			ms.pendingRTT.Store(math.Float64bits(rttMS))
		}
	}
}

// StreamsOf lists the stream IDs owned by a session.
func (m *StreamManager) StreamsOf(sessionID domain.SessionID) []domain.StreamID {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.StreamID
	for id, ms := range m.byID {
		if ms.cfg.SessionID == sessionID {
			out = append(out, id)
		}
	}
	return out
}

// CloseSession tears down every stream owned by a session within the
// teardown deadline. Queued packets are dropped, not flushed.
func (m *StreamManager) CloseSession(sessionID domain.SessionID) {
	for _, id := range m.StreamsOf(sessionID) {
		if ms, err := m.lookup(id); err == nil {
			ms.stateMu.Lock()
			if ms.state != domain.StreamStopped && ms.state != domain.StreamError {
				ms.state = domain.StreamStopped
			}
			ms.stateMu.Unlock()
			m.teardown(ms)
		}
	}
}

// Close tears down all streams.
func (m *StreamManager) Close() {
	m.mu.Lock()
	streams := make([]*managedStream, 0, len(m.byID))
	for _, ms := range m.byID {
		streams = append(streams, ms)
	}
	m.mu.Unlock()
	for _, ms := range streams {
		m.teardown(ms)
	}
}

func (m *StreamManager) lookup(streamID domain.StreamID) (*managedStream, error) {
	m.mu.Lock()
	ms, ok := m.byID[streamID]
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownStream, streamID)
	}
	return ms, nil
}

func (m *StreamManager) snapshot(ms *managedStream) domain.Stats {
	ms.stateMu.Lock()
	state := ms.state
	ms.stateMu.Unlock()

	stats := domain.Stats{
		StreamID:        ms.cfg.ID,
		State:           state,
		PacketsSent:     ms.packetsSent.Load(),
		PacketsReceived: ms.packetsReceived.Load(),
		PacketsLost:     ms.packetsLost.Load(),
		PacketsDropped:  ms.packetsDropped.Load(),
		Replayed:        ms.replayed.Load(),
		AuthFailures:    ms.authFailures.Load(),
		ParseErrors:     ms.parseErrors.Load(),
		Concealed:       ms.concealed.Load(),
		LateDrops:       ms.lateDrops.Load(),
		BytesSent:       ms.bytesSent.Load(),
		BytesReceived:   ms.bytesReceived.Load(),
	}
	if s, ok := ms.lastSample.Load().(domain.HealthSample); ok {
		stats.Health = s
	}
	return stats
}

func (m *StreamManager) teardown(ms *managedStream) {
	if ms.cancel != nil {
		ms.cancel()
	}
	timeout := m.cfg.TeardownTimeout
	if timeout <= 0 {
		timeout = 200 * time.Millisecond
	}
	select {
	case <-ms.done:
	case <-time.After(timeout):
		m.logger.Warnw("stream teardown deadline exceeded", "stream_id", ms.cfg.ID)
	}

	m.bySSRC.Delete(ms.cfg.SSRC)
	m.mu.Lock()
	delete(m.byID, ms.cfg.ID)
	m.mu.Unlock()

	if m.collector != nil {
		m.collector.RecordStreamClosed(ms.cfg.ID)
	}
}

// run is the per-stream pipeline task: the single writer for the jitter
// buffer, crypto context and health monitor.
func (m *StreamManager) run(ctx context.Context, ms *managedStream) {
	defer close(ms.done)

	pop := time.NewTicker(m.cfg.PopInterval)
	defer pop.Stop()
	adapt := time.NewTicker(m.cfg.Jitter.AdaptInterval)
	defer adapt.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case buf := <-ms.inbound:
			m.processInbound(ms, buf)
		case <-pop.C:
			m.drain(ms)
		case <-adapt.C:
			m.adaptTick(ms)
		}
	}
}

func (m *StreamManager) processInbound(ms *managedStream, buf []byte) {
	ms.stateMu.Lock()
	state := ms.state
	ms.stateMu.Unlock()
	if state != domain.StreamActive && state != domain.StreamInitializing {
		return
	}

	var (
		pkt    *rtp.Packet
		extSeq uint64
		err    error
	)
	if cc := ms.crypto.Load(); cc != nil {
		pkt, extSeq, err = cc.Open(buf)
		if err == srtp.ErrAuthFailed {
			if prev := ms.prevCrypto.Load(); prev != nil {
				if m.now().UnixNano() < ms.prevUntil.Load() {
					pkt, extSeq, err = prev.Open(buf)
				} else {
					ms.prevCrypto.Store(nil)
				}
			}
		}
	} else {
		pkt, err = rtp.Parse(buf)
		if err == nil {
			extSeq = ms.extender.extend(pkt.Header.SequenceNumber)
		}
	}

	if err != nil {
		switch err {
		case srtp.ErrReplayDetected:
			ms.replayed.Add(1)
		case srtp.ErrAuthFailed:
			ms.authFailures.Add(1)
			if m.authFailureBurst(ms) {
				m.failStream(ms, "auth failure threshold exceeded")
			}
		case srtp.ErrRotationRequired:
			ms.packetsLost.Add(1)
			m.fastLog.Errorw("crypto rotation required", "stream_id", ms.cfg.ID)
		default:
			ms.parseErrors.Add(1)
			ms.packetsLost.Add(1)
		}
		m.fastLog.Warnw("inbound packet rejected", "stream_id", ms.cfg.ID, "error", err)
		return
	}

	ms.packetsReceived.Add(1)
	ms.bytesReceived.Add(uint64(len(buf)))
	ms.lastExtSeq.Store(extSeq)
	ms.health.ObserveArrival(extSeq, pkt.Header.Timestamp)

	// In-band quality indicator: retune the jitter target without waiting
	// for a signaling round trip.
	if q, _, ok := pkt.QualityBits(); ok {
		ms.jb.SetTarget(jitterTargetFor(q, m.cfg.Jitter))
	}

	if err := ms.jb.Push(pkt, extSeq); err == jitter.ErrLate {
		ms.lateDrops.Add(1)
	}
}

func (m *StreamManager) drain(ms *managedStream) {
	for {
		r := ms.jb.Pop()
		switch r.Kind {
		case jitter.PopPacket:
			payload := r.Packet.Payload
			if ms.audioPLC != nil {
				ms.audioPLC.Observe(payload)
			}
			if ms.videoPLC != nil {
				_, pr, hasExt := r.Packet.QualityBits()
				keyframe := hasExt && pr <= rtp.PriorityHigh
				ms.videoPLC.Observe(payload, keyframe)
				if keyframe {
					ms.keyframeUp = false
				}
			}
			if m.frames != nil {
				m.frames(ms.cfg.ID, payload, false)
			}
		case jitter.PopGap:
			ms.packetsLost.Add(1)
			ms.concealed.Add(1)
			var payload []byte
			if ms.audioPLC != nil {
				payload = ms.audioPLC.Conceal(r.Seq)
			}
			if ms.videoPLC != nil {
				payload = ms.videoPLC.Conceal(r.Seq)
				if ms.videoPLC.NeedsKeyframe() && !ms.keyframeUp {
					ms.keyframeUp = true
					ms.adapt.RequestKeyframe()
				}
			}
			if m.frames != nil {
				m.frames(ms.cfg.ID, payload, true)
			}
		default:
			return
		}
	}
}

func (m *StreamManager) adaptTick(ms *managedStream) {
	if bits := ms.pendingRTT.Swap(0); bits != 0 {
		ms.health.ObserveRTT(math.Float64frombits(bits))
	}
	sample := ms.health.Sample()
	ms.lastSample.Store(sample)
	ms.jb.Adapt(sample.JitterMS, sample.LossRate)
	ms.adapt.Evaluate(sample, int(ms.targetBitrate.Load()))
}

// authFailureBurst tracks authentication failures per second against the
// configured budget, resisting forged-packet floods.
func (m *StreamManager) authFailureBurst(ms *managedStream) bool {
	limit := m.cfg.AuthFailureLimit
	if limit <= 0 {
		return false
	}
	now := m.now()
	if ms.authWindowStart.IsZero() || now.Sub(ms.authWindowStart) >= time.Second {
		ms.authWindowStart = now
		ms.authWindowCount = 0
	}
	ms.authWindowCount++
	return ms.authWindowCount > limit
}

func (m *StreamManager) failStream(ms *managedStream, reason string) {
	ms.stateMu.Lock()
	already := ms.state == domain.StreamError
	if !already {
		ms.state = domain.StreamError
	}
	ms.stateMu.Unlock()
	if already {
		return
	}
	m.logger.Errorw("stream error", "stream_id", ms.cfg.ID, "reason", reason)
	if m.OnStreamError != nil {
		m.OnStreamError(ms.cfg.ID, reason)
	}
	// Teardown must not block the pipeline task waiting on itself.
	go m.teardown(ms)
}

// seqExtender tracks the rollover counter for unencrypted streams, where
// no crypto context maintains the extended sequence.
type seqExtender struct {
	roc     uint32
	highest uint16
	seen    bool
}

func (e *seqExtender) extend(seq uint16) uint64 {
	roc := e.roc
	if e.seen {
		delta := int32(seq) - int32(e.highest)
		switch {
		case delta > 0x8000:
			if roc > 0 {
				roc--
			}
		case delta < -0x8000:
			roc++
		}
	}
	idx := uint64(roc)<<16 | uint64(seq)
	if !e.seen || idx > uint64(e.roc)<<16|uint64(e.highest) {
		e.roc = roc
		e.highest = seq
		e.seen = true
	}
	return idx
}

func qualityBitsFor(level domain.QualityLevel) rtp.Quality {
	switch level {
	case domain.QualityUltra:
		return rtp.QualityExcellent
	case domain.QualityHigh:
		return rtp.QualityGood
	case domain.QualityMedium:
		return rtp.QualityFair
	default:
		return rtp.QualityPoor
	}
}

func priorityFor(kind domain.MediaKind, pkt *rtp.Packet) rtp.Priority {
	if kind == domain.KindAudio {
		return rtp.PriorityCritical
	}
	if pkt.Header.Marker {
		return rtp.PriorityHigh
	}
	return rtp.PriorityMedium
}

func jitterTargetFor(q rtp.Quality, cfg jitter.Config) time.Duration {
	switch q {
	case rtp.QualityExcellent:
		return cfg.MinDepth
	case rtp.QualityGood:
		return cfg.InitialDepth
	case rtp.QualityFair:
		return (cfg.InitialDepth + cfg.MaxDepth) / 2
	default:
		return cfg.MaxDepth
	}
}
