package services

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/crypto/hkdf"

	"arcrtc/internal/core/domain"
	"arcrtc/internal/core/ports"
	"arcrtc/pkg/signaling"
	"arcrtc/pkg/srtp"
	"arcrtc/pkg/tracing"
	"arcrtc/pkg/utils"
)

const (
	protocolVersion = "1.0"
	keyExchangeTag  = "x25519:"

	masterKeyLabel  = "arcrtc-master-key"
	masterSaltLabel = "arcrtc-master-salt"
)

// Codec preference order for capability intersection.
var (
	audioPreference = []string{"opus", "g722", "pcmu"}
	videoPreference = []string{"vp8", "h264"}
)

// SignalingConfig tunes the session state machine.
type SignalingConfig struct {
	LocalPeer         domain.PeerID
	HeartbeatInterval time.Duration
	TimeoutMultiplier int
	ReplyTimeout      time.Duration
	Suite             srtp.Suite
	RelayServers      []string
	// Codecs and Resolutions advertise the local capabilities.
	Codecs      []string
	Resolutions []string
	Now         func() time.Time
}

// DefaultSignalingConfig mirrors the engine defaults.
func DefaultSignalingConfig(localPeer domain.PeerID) SignalingConfig {
	return SignalingConfig{
		LocalPeer:         localPeer,
		HeartbeatInterval: 5 * time.Second,
		TimeoutMultiplier: 3,
		ReplyTimeout:      3 * time.Second,
		Suite:             srtp.SuiteAES128GCM,
		Codecs:            []string{"opus", "g722", "vp8", "h264"},
		Resolutions:       []string{"1920x1080", "1280x720", "854x480"},
	}
}

type sessionEntry struct {
	session *domain.Session
	channel ports.SignalChannel
	priv    *ecdh.PrivateKey

	// mediaEndpoint is the peer's datagram address from its network info.
	mediaEndpoint string

	hbSeq   uint64
	lastAck atomic.Int64 // unix millis of the last heartbeat ack
	cancel  context.CancelFunc
}

// SignalingEngine drives session and stream setup through the
// message-driven state machine Idle → Negotiating → Established → Closing
// → Closed. Each engine instance owns its session registry; there is no
// process-wide state.
type SignalingEngine struct {
	cfg     SignalingConfig
	streams *StreamManager
	keys    ports.KeyProvider
	encoder ports.EncoderControl
	logger  *zap.SugaredLogger
	tracer  trace.Tracer
	now     func() time.Time

	mu          sync.Mutex
	sessions    map[domain.SessionID]*sessionEntry
	streamOwner map[domain.StreamID]domain.SessionID
}

// NewSignalingEngine wires the engine to its collaborators. Quality
// decisions from the stream manager are forwarded to the peer and the
// local encoder.
func NewSignalingEngine(cfg SignalingConfig, streams *StreamManager, keys ports.KeyProvider, encoder ports.EncoderControl, log *zap.SugaredLogger) *SignalingEngine {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	e := &SignalingEngine{
		cfg:         cfg,
		streams:     streams,
		keys:        keys,
		encoder:     encoder,
		logger:      log,
		tracer:      otel.Tracer("arcrtc"),
		now:         now,
		sessions:    make(map[domain.SessionID]*sessionEntry),
		streamOwner: make(map[domain.StreamID]domain.SessionID),
	}
	streams.OnDecision = e.onDecision
	streams.OnStreamError = e.onStreamError
	// An open write breaker tears every session down with reason
	// "transport": all of them share the one datagram transport.
	streams.OnTransportDown = func() {
		e.mu.Lock()
		ids := make([]domain.SessionID, 0, len(e.sessions))
		for id := range e.sessions {
			ids = append(ids, id)
		}
		e.mu.Unlock()
		go func() {
			for _, id := range ids {
				e.CloseSession(id, "transport")
			}
		}()
	}
	return e
}

// Connect initiates a session over the channel: an ephemeral X25519 key is
// generated and sent with the local capabilities. The session stays in
// Negotiating until the peer's ConnectAck installs the shared keys.
func (e *SignalingEngine) Connect(ctx context.Context, ch ports.SignalChannel, remotePeer domain.PeerID) (domain.SessionID, error) {
	priv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return "", err
	}

	sessionID := domain.SessionID(utils.GenerateSessionID())
	msg := &signaling.Connect{
		Version:   protocolVersion,
		SessionID: string(sessionID),
		PeerID:    string(e.cfg.LocalPeer),
		Capabilities: signaling.Capabilities{
			Codecs:      e.cfg.Codecs,
			Resolutions: e.cfg.Resolutions,
			Encryption:  []string{e.cfg.Suite.String(), keyExchangeTag + hex.EncodeToString(priv.PublicKey().Bytes())},
			Transport:   []string{"udp"},
		},
		NetworkInfo: signaling.NetworkInfo{NATType: "unknown"},
		Timestamp:   e.now().UnixMilli(),
	}

	sendCtx, cancel := context.WithTimeout(ctx, e.cfg.ReplyTimeout)
	defer cancel()
	if err := ch.Send(sendCtx, msg); err != nil {
		return "", err
	}

	e.mu.Lock()
	e.sessions[sessionID] = &sessionEntry{
		session: &domain.Session{
			ID:         sessionID,
			LocalPeer:  e.cfg.LocalPeer,
			RemotePeer: remotePeer,
			Suite:      e.cfg.Suite.String(),
			CreatedAt:  e.now(),
			State:      domain.SessionNegotiating,
		},
		channel: ch,
		priv:    priv,
	}
	e.sessions[sessionID].lastAck.Store(e.now().UnixMilli())
	e.mu.Unlock()
	return sessionID, nil
}

// Run consumes the channel until it closes or ctx is cancelled. A channel
// close counts as a peer close: every session bound to it is torn down.
func (e *SignalingEngine) Run(ctx context.Context, ch ports.SignalChannel) error {
	for {
		msg, err := ch.Receive(ctx)
		if err != nil {
			if signaling.IsParseError(err) {
				e.logger.Warnw("signaling frame rejected", "error", err)
				continue
			}
			e.closeChannelSessions(ch, "transport")
			return err
		}
		reply, err := e.HandleMessage(ctx, ch, msg)
		if err != nil {
			e.logger.Warnw("signaling message rejected",
				"type", msg.MessageType(),
				"error", err,
			)
			continue
		}
		if reply != nil {
			sendCtx, cancel := context.WithTimeout(ctx, e.cfg.ReplyTimeout)
			err := ch.Send(sendCtx, reply)
			cancel()
			if err != nil {
				e.closeChannelSessions(ch, "transport")
				return err
			}
		}
	}
}

// HandleMessage applies one signaling message to the state machine and
// returns the reply to send, if any. Messages on a session channel are
// processed in arrival order.
func (e *SignalingEngine) HandleMessage(ctx context.Context, ch ports.SignalChannel, msg signaling.Message) (signaling.Message, error) {
	ctx, span := e.tracer.Start(ctx, "signaling.handle",
		trace.WithAttributes(tracing.MessageTypeKey.String(string(msg.MessageType()))))
	defer span.End()

	var (
		reply signaling.Message
		err   error
	)
	switch m := msg.(type) {
	case *signaling.Connect:
		reply, err = e.handleConnect(ch, m)
	case *signaling.ConnectAck:
		err = e.handleConnectAck(m)
	case *signaling.StreamStart:
		err = e.handleStreamStart(m)
	case *signaling.StreamStop:
		err = e.handleStreamStop(m)
	case *signaling.QualityAdapt:
		err = e.handleQualityAdapt(m)
	case *signaling.Heartbeat:
		reply = e.handleHeartbeat(m)
	case *signaling.HeartbeatAck:
		err = e.handleHeartbeatAck(m)
	default:
		err = signaling.ErrUnknownType
	}
	if err != nil {
		tracing.RecordError(ctx, err)
	}
	return reply, err
}

func (e *SignalingEngine) handleConnect(ch ports.SignalChannel, m *signaling.Connect) (signaling.Message, error) {
	if m.Version != protocolVersion {
		return nil, fmt.Errorf("unsupported protocol version %q", m.Version)
	}
	sessionID := domain.SessionID(m.SessionID)

	e.mu.Lock()
	if _, exists := e.sessions[sessionID]; exists {
		e.mu.Unlock()
		return nil, fmt.Errorf("session %s already exists", sessionID)
	}
	e.mu.Unlock()

	audio := selectCodec(m.Capabilities.Codecs, audioPreference)
	video := selectCodec(m.Capabilities.Codecs, videoPreference)
	if audio == "" && video == "" {
		e.logger.Warnw("connect rejected, no codec intersection",
			"session_id", sessionID,
			"peer_id", m.PeerID,
			"offered", m.Capabilities.Codecs,
		)
		return &signaling.ConnectAck{
			SessionID:   m.SessionID,
			PeerID:      string(e.cfg.LocalPeer),
			Accepted:    false,
			NetworkInfo: signaling.AckNetworkInfo{RelayServers: e.cfg.RelayServers},
			Timestamp:   e.now().UnixMilli(),
		}, nil
	}

	priv, err := ecdh.X25519().GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	peerPub, err := parseKeyExchange(m.Capabilities.Encryption)
	if err != nil {
		return nil, err
	}
	secret, err := priv.ECDH(peerPub)
	if err != nil {
		return nil, err
	}
	if err := e.installKeys(sessionID, secret); err != nil {
		return nil, err
	}

	entry := &sessionEntry{
		session: &domain.Session{
			ID:         sessionID,
			LocalPeer:  e.cfg.LocalPeer,
			RemotePeer: domain.PeerID(m.PeerID),
			Suite:      e.cfg.Suite.String(),
			AudioCodec: audio,
			VideoCodec: video,
			CreatedAt:  e.now(),
			State:      domain.SessionEstablished,
		},
		channel: ch,
		priv:    priv,
	}
	entry.lastAck.Store(e.now().UnixMilli())
	if m.NetworkInfo.PublicIP != "" {
		entry.mediaEndpoint = fmt.Sprintf("%s:%d", m.NetworkInfo.PublicIP, m.NetworkInfo.PublicPort)
	}

	e.mu.Lock()
	e.sessions[sessionID] = entry
	e.mu.Unlock()
	e.startHeartbeat(entry)

	e.logger.Infow("session established",
		"session_id", sessionID,
		"peer_id", m.PeerID,
		"audio_codec", audio,
		"video_codec", video,
	)

	return &signaling.ConnectAck{
		SessionID:      m.SessionID,
		PeerID:         string(e.cfg.LocalPeer),
		Accepted:       true,
		SelectedCodecs: signaling.SelectedCodecs{Audio: audio, Video: video},
		NetworkInfo:    signaling.AckNetworkInfo{RelayServers: e.cfg.RelayServers},
		Encryption: signaling.EncryptionParams{
			Algorithm:   e.cfg.Suite.String(),
			KeyExchange: keyExchangeTag + hex.EncodeToString(priv.PublicKey().Bytes()),
		},
		Timestamp: e.now().UnixMilli(),
	}, nil
}

func (e *SignalingEngine) handleConnectAck(m *signaling.ConnectAck) error {
	sessionID := domain.SessionID(m.SessionID)
	entry, err := e.entry(sessionID)
	if err != nil {
		return err
	}
	if entry.session.State != domain.SessionNegotiating {
		return fmt.Errorf("connect ack in state %s", entry.session.State)
	}
	if !m.Accepted {
		e.CloseSession(sessionID, "rejected")
		return nil
	}

	peerPub, err := parseKeyExchangeOne(m.Encryption.KeyExchange)
	if err != nil {
		return err
	}
	secret, err := entry.priv.ECDH(peerPub)
	if err != nil {
		return err
	}
	if err := e.installKeys(sessionID, secret); err != nil {
		return err
	}

	entry.session.AudioCodec = m.SelectedCodecs.Audio
	entry.session.VideoCodec = m.SelectedCodecs.Video
	entry.session.State = domain.SessionEstablished
	entry.lastAck.Store(e.now().UnixMilli())
	e.startHeartbeat(entry)

	e.logger.Infow("session established", "session_id", sessionID, "peer_id", m.PeerID)
	return nil
}

func (e *SignalingEngine) handleStreamStart(m *signaling.StreamStart) error {
	sessionID := domain.SessionID(m.SessionID)
	entry, err := e.entry(sessionID)
	if err != nil {
		return err
	}
	if entry.session.State != domain.SessionEstablished {
		return domain.ErrPrematureStreamStart
	}

	masterKey, err := e.keys.Get(domain.KeyID(utils.MasterKeyID(m.SessionID)))
	if err != nil {
		return err
	}
	masterSalt, err := e.keys.Get(domain.KeyID(utils.MasterSaltID(m.SessionID)))
	if err != nil {
		return err
	}

	kind := domain.KindAudio
	if m.StreamType != "audio" {
		kind = domain.KindVideo
	}

	streamID, err := e.streams.CreateStream(StreamConfig{
		ID:             domain.StreamID(m.StreamID),
		SessionID:      sessionID,
		Kind:           kind,
		SSRC:           m.SSRC,
		PayloadType:    m.Codec.PayloadType,
		Codec:          m.Codec.Name,
		ClockRate:      m.Codec.ClockRate,
		Encrypted:      m.Encryption.Algorithm != "",
		MasterKey:      masterKey,
		MasterSalt:     masterSalt,
		Suite:          e.cfg.Suite,
		Endpoint:       entry.mediaEndpoint,
		InitialQuality: domain.QualityHigh,
	})
	if err != nil {
		return err
	}
	if err := e.streams.UpdateState(streamID, domain.StreamActive); err != nil {
		return err
	}

	e.mu.Lock()
	e.streamOwner[streamID] = sessionID
	e.mu.Unlock()
	return nil
}

func (e *SignalingEngine) handleStreamStop(m *signaling.StreamStop) error {
	if _, err := e.entry(domain.SessionID(m.SessionID)); err != nil {
		return err
	}
	streamID := domain.StreamID(m.StreamID)
	if err := e.streams.UpdateState(streamID, domain.StreamStopped); err != nil {
		return err
	}
	e.mu.Lock()
	delete(e.streamOwner, streamID)
	e.mu.Unlock()
	return nil
}

func (e *SignalingEngine) handleQualityAdapt(m *signaling.QualityAdapt) error {
	if _, err := e.entry(domain.SessionID(m.SessionID)); err != nil {
		return err
	}
	streamID := domain.StreamID(m.StreamID)
	if m.Reason == "keyframe" {
		if e.encoder != nil {
			return e.encoder.RequestKeyframe(streamID)
		}
		return nil
	}
	if e.encoder != nil {
		w, h := parseResolution(m.Quality.Resolution)
		return e.encoder.SetTarget(streamID, m.Quality.Bitrate, w, h, m.Quality.FPS)
	}
	return nil
}

func (e *SignalingEngine) handleHeartbeat(m *signaling.Heartbeat) signaling.Message {
	nowMS := e.now().UnixMilli()
	return &signaling.HeartbeatAck{
		SessionID:         m.SessionID,
		Sequence:          m.Sequence,
		OriginalTimestamp: m.Timestamp,
		ResponseTimestamp: nowMS,
		LatencyMS:         nowMS - m.Timestamp,
	}
}

func (e *SignalingEngine) handleHeartbeatAck(m *signaling.HeartbeatAck) error {
	sessionID := domain.SessionID(m.SessionID)
	entry, err := e.entry(sessionID)
	if err != nil {
		return err
	}
	entry.lastAck.Store(e.now().UnixMilli())

	rttMS := float64(e.now().UnixMilli() - m.OriginalTimestamp)
	e.streams.ObserveSessionRTT(sessionID, rttMS)
	return nil
}

// StartStream provisions a local outbound stream and announces it to the
// peer.
func (e *SignalingEngine) StartStream(ctx context.Context, sessionID domain.SessionID, kind domain.MediaKind, codec string, ssrc uint32, payloadType uint8) (domain.StreamID, error) {
	entry, err := e.entry(sessionID)
	if err != nil {
		return "", err
	}
	if entry.session.State != domain.SessionEstablished {
		return "", domain.ErrPrematureStreamStart
	}

	masterKey, err := e.keys.Get(domain.KeyID(utils.MasterKeyID(string(sessionID))))
	if err != nil {
		return "", err
	}
	masterSalt, err := e.keys.Get(domain.KeyID(utils.MasterSaltID(string(sessionID))))
	if err != nil {
		return "", err
	}

	streamID, err := e.streams.CreateStream(StreamConfig{
		SessionID:      sessionID,
		Kind:           kind,
		SSRC:           ssrc,
		PayloadType:    payloadType,
		Codec:          codec,
		Encrypted:      true,
		MasterKey:      masterKey,
		MasterSalt:     masterSalt,
		Suite:          e.cfg.Suite,
		Endpoint:       entry.mediaEndpoint,
		InitialQuality: domain.QualityHigh,
	})
	if err != nil {
		return "", err
	}
	if err := e.streams.UpdateState(streamID, domain.StreamActive); err != nil {
		return "", err
	}

	e.mu.Lock()
	e.streamOwner[streamID] = sessionID
	e.mu.Unlock()

	msg := &signaling.StreamStart{
		SessionID:  string(sessionID),
		StreamID:   string(streamID),
		StreamType: kind.String(),
		Codec: signaling.CodecParams{
			Name:        codec,
			ClockRate:   supportedCodecs[codec],
			PayloadType: payloadType,
		},
		SSRC: ssrc,
		Encryption: signaling.StreamEncryption{
			KeyID:     utils.MasterKeyID(string(sessionID)),
			Algorithm: e.cfg.Suite.String(),
		},
		Timestamp: e.now().UnixMilli(),
	}
	sendCtx, cancel := context.WithTimeout(ctx, e.cfg.ReplyTimeout)
	defer cancel()
	if err := entry.channel.Send(sendCtx, msg); err != nil {
		return "", err
	}
	return streamID, nil
}

// StopStream stops a local stream and notifies the peer. The session
// remains Established so future streams may start.
func (e *SignalingEngine) StopStream(ctx context.Context, sessionID domain.SessionID, streamID domain.StreamID, reason string) error {
	entry, err := e.entry(sessionID)
	if err != nil {
		return err
	}
	if err := e.streams.UpdateState(streamID, domain.StreamStopped); err != nil {
		return err
	}
	e.mu.Lock()
	delete(e.streamOwner, streamID)
	e.mu.Unlock()

	msg := &signaling.StreamStop{
		SessionID: string(sessionID),
		StreamID:  string(streamID),
		Reason:    reason,
		Timestamp: e.now().UnixMilli(),
	}
	sendCtx, cancel := context.WithTimeout(ctx, e.cfg.ReplyTimeout)
	defer cancel()
	return entry.channel.Send(sendCtx, msg)
}

// CloseSession tears the session down: all streams are cancelled, key
// material is released and the state ends at Closed.
func (e *SignalingEngine) CloseSession(sessionID domain.SessionID, reason string) {
	e.mu.Lock()
	entry, ok := e.sessions[sessionID]
	if !ok {
		e.mu.Unlock()
		return
	}
	delete(e.sessions, sessionID)
	for id, owner := range e.streamOwner {
		if owner == sessionID {
			delete(e.streamOwner, id)
		}
	}
	e.mu.Unlock()

	entry.session.State = domain.SessionClosing
	if entry.cancel != nil {
		entry.cancel()
	}
	e.streams.CloseSession(sessionID)
	entry.session.State = domain.SessionClosed

	e.logger.Infow("session closed", "session_id", sessionID, "reason", reason)
}

// SessionState reports the lifecycle state of a session. Closed sessions
// are forgotten and report SessionClosed.
func (e *SignalingEngine) SessionState(sessionID domain.SessionID) domain.SessionState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if entry, ok := e.sessions[sessionID]; ok {
		return entry.session.State
	}
	return domain.SessionClosed
}

func (e *SignalingEngine) entry(sessionID domain.SessionID) (*sessionEntry, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	entry, ok := e.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownSession, sessionID)
	}
	return entry, nil
}

// startHeartbeat launches the per-session heartbeat task: one probe every
// interval, teardown after TimeoutMultiplier missed acks.
func (e *SignalingEngine) startHeartbeat(entry *sessionEntry) {
	ctx, cancel := context.WithCancel(context.Background())
	entry.cancel = cancel

	interval := e.cfg.HeartbeatInterval
	timeout := time.Duration(e.cfg.TimeoutMultiplier) * interval

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if e.now().UnixMilli()-entry.lastAck.Load() > timeout.Milliseconds() {
					e.logger.Warnw("heartbeat timeout", "session_id", entry.session.ID)
					e.CloseSession(entry.session.ID, "timeout")
					return
				}
				entry.hbSeq++
				hb := &signaling.Heartbeat{
					SessionID: string(entry.session.ID),
					Sequence:  entry.hbSeq,
					Timestamp: e.now().UnixMilli(),
				}
				sendCtx, sendCancel := context.WithTimeout(ctx, e.cfg.ReplyTimeout)
				err := entry.channel.Send(sendCtx, hb)
				sendCancel()
				if err != nil {
					e.logger.Warnw("heartbeat send failed", "session_id", entry.session.ID, "error", err)
				}
			}
		}
	}()
}

func (e *SignalingEngine) closeChannelSessions(ch ports.SignalChannel, reason string) {
	e.mu.Lock()
	var ids []domain.SessionID
	for id, entry := range e.sessions {
		if entry.channel == ch {
			ids = append(ids, id)
		}
	}
	e.mu.Unlock()
	for _, id := range ids {
		e.CloseSession(id, reason)
	}
}

// onDecision applies a local quality decision: the encoder is retargeted
// and the peer told via QUALITY_ADAPT.
func (e *SignalingEngine) onDecision(d Decision) {
	e.mu.Lock()
	sessionID, ok := e.streamOwner[d.StreamID]
	var entry *sessionEntry
	if ok {
		entry = e.sessions[sessionID]
	}
	e.mu.Unlock()
	if entry == nil {
		return
	}

	if e.encoder != nil {
		if d.Keyframe {
			_ = e.encoder.RequestKeyframe(d.StreamID)
		} else {
			_ = e.encoder.SetTarget(d.StreamID, d.Profile.VideoBitrate, d.Profile.Width, d.Profile.Height, d.Profile.Framerate)
		}
	}

	msg := &signaling.QualityAdapt{
		SessionID: string(sessionID),
		StreamID:  string(d.StreamID),
		Quality: signaling.QualitySpec{
			Bitrate:    d.Profile.VideoBitrate,
			Resolution: d.Level.Resolution(),
			FPS:        d.Profile.Framerate,
		},
		Reason:    d.Reason,
		Timestamp: e.now().UnixMilli(),
	}
	sendCtx, cancel := context.WithTimeout(context.Background(), e.cfg.ReplyTimeout)
	defer cancel()
	if err := entry.channel.Send(sendCtx, msg); err != nil {
		e.logger.Warnw("quality adapt send failed", "stream_id", d.StreamID, "error", err)
	}
}

// onStreamError notifies the peer that a stream died.
func (e *SignalingEngine) onStreamError(streamID domain.StreamID, reason string) {
	e.mu.Lock()
	sessionID, ok := e.streamOwner[streamID]
	var entry *sessionEntry
	if ok {
		entry = e.sessions[sessionID]
		delete(e.streamOwner, streamID)
	}
	e.mu.Unlock()
	if entry == nil {
		return
	}

	msg := &signaling.StreamStop{
		SessionID: string(sessionID),
		StreamID:  string(streamID),
		Reason:    "error",
		Timestamp: e.now().UnixMilli(),
	}
	sendCtx, cancel := context.WithTimeout(context.Background(), e.cfg.ReplyTimeout)
	defer cancel()
	if err := entry.channel.Send(sendCtx, msg); err != nil {
		e.logger.Warnw("stream stop send failed", "stream_id", streamID, "error", err)
	}
}

// installKeys derives the session master key and salt from the ECDH shared
// secret and stores them in the key provider. Derivation is deterministic,
// so both peers converge on the same material.
func (e *SignalingEngine) installKeys(sessionID domain.SessionID, secret []byte) error {
	keyLen := 16
	if e.cfg.Suite == srtp.SuiteAES256GCM {
		keyLen = 32
	}
	masterKey, err := expandSecret(secret, string(sessionID), masterKeyLabel, keyLen)
	if err != nil {
		return err
	}
	masterSalt, err := expandSecret(secret, string(sessionID), masterSaltLabel, 14)
	if err != nil {
		return err
	}

	keyID := domain.KeyID(utils.MasterKeyID(string(sessionID)))
	saltID := domain.KeyID(utils.MasterSaltID(string(sessionID)))
	if err := e.keys.Put(keyID, masterKey); err != nil {
		return err
	}
	return e.keys.Put(saltID, masterSalt)
}

func expandSecret(secret []byte, salt, label string, n int) ([]byte, error) {
	r := hkdf.New(sha256.New, secret, []byte(salt), []byte(label))
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, err
	}
	return out, nil
}

func parseKeyExchange(entries []string) (*ecdh.PublicKey, error) {
	for _, entry := range entries {
		if strings.HasPrefix(entry, keyExchangeTag) {
			return parseKeyExchangeOne(entry)
		}
	}
	return nil, fmt.Errorf("no key exchange material in capabilities")
}

func parseKeyExchangeOne(entry string) (*ecdh.PublicKey, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(entry, keyExchangeTag))
	if err != nil {
		return nil, fmt.Errorf("bad key exchange material: %w", err)
	}
	pub, err := ecdh.X25519().NewPublicKey(raw)
	if err != nil {
		return nil, fmt.Errorf("bad key exchange material: %w", err)
	}
	return pub, nil
}

func selectCodec(offered, preference []string) string {
	seen := make(map[string]bool, len(offered))
	for _, c := range offered {
		seen[strings.ToLower(c)] = true
	}
	for _, c := range preference {
		if seen[c] {
			return c
		}
	}
	return ""
}

func parseResolution(res string) (int, int) {
	var w, h int
	if _, err := fmt.Sscanf(res, "%dx%d", &w, &h); err != nil {
		return 0, 0
	}
	return w, h
}
