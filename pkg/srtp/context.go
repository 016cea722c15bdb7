package srtp

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/pion/transport/v2/replaydetector"
	"golang.org/x/crypto/hkdf"

	"arcrtc/pkg/rtp"
)

const (
	labelEncryption = "arcrtc-enc"
	labelAuth       = "arcrtc-auth"
	labelSalt       = "arcrtc-salt"

	masterSaltLen = 14
	authKeyLen    = 16
	gcmTagLen     = 16
	ivLen         = 12

	// DefaultReplayWindow is the replay window size in packets.
	DefaultReplayWindow = 64

	// DefaultRotationPackets is the per-context packet budget before a key
	// rotation is required.
	DefaultRotationPackets = 1 << 31

	maxExtendedSeq = uint64(1)<<48 - 1
)

var (
	ErrAuthFailed       = errors.New("srtp: authentication failed")
	ErrReplayDetected   = errors.New("srtp: replay detected")
	ErrRotationRequired = errors.New("srtp: key rotation required")
	ErrShortPacket      = errors.New("srtp: packet too short")
	ErrSSRCMismatch     = errors.New("srtp: ssrc does not match context")
)

// Suite selects the AEAD cipher for a context.
type Suite int

const (
	SuiteAES128GCM Suite = iota
	SuiteAES256GCM
)

func (s Suite) String() string {
	if s == SuiteAES256GCM {
		return "aes256_gcm"
	}
	return "aes128_gcm"
}

// ParseSuite maps a configuration string onto a Suite.
func ParseSuite(name string) (Suite, error) {
	switch name {
	case "aes128_gcm":
		return SuiteAES128GCM, nil
	case "aes256_gcm":
		return SuiteAES256GCM, nil
	}
	return 0, fmt.Errorf("srtp: unknown suite %q", name)
}

func (s Suite) keyLen() int {
	if s == SuiteAES256GCM {
		return 32
	}
	return 16
}

// Config carries the inputs for key derivation.
type Config struct {
	MasterKey  []byte
	MasterSalt []byte
	SSRC       uint32
	Suite      Suite
	// ReplayWindow is the replay window size in packets. Zero selects
	// DefaultReplayWindow.
	ReplayWindow uint
	// RotationPackets is the packet budget before ErrRotationRequired.
	// Zero selects DefaultRotationPackets.
	RotationPackets uint64
}

// Context holds per-stream SRTP state: derived keys, rollover counter,
// highest received sequence and the replay window.
type Context struct {
	cfg    Config
	encKey []byte
	// authKey is derived alongside the encryption key; GCM subsumes its
	// role but the derivation keeps rotation deterministic across suites.
	authKey []byte
	salt    []byte
	aead    cipher.AEAD

	// receive side
	roc        uint32
	highestSeq uint16
	seen       bool
	replay     replaydetector.ReplayDetector
	opened     uint64

	// send side
	sendROC  uint32
	lastSent uint16
	sentAny  bool
	sealed   uint64
}

// Derive builds a Context from master key material using HKDF-SHA256.
// The result is deterministic in its inputs.
func Derive(cfg Config) (*Context, error) {
	if len(cfg.MasterKey) != cfg.Suite.keyLen() {
		return nil, fmt.Errorf("srtp: master key must be %d bytes, got %d", cfg.Suite.keyLen(), len(cfg.MasterKey))
	}
	if len(cfg.MasterSalt) != masterSaltLen {
		return nil, fmt.Errorf("srtp: master salt must be %d bytes, got %d", masterSaltLen, len(cfg.MasterSalt))
	}
	if cfg.ReplayWindow == 0 {
		cfg.ReplayWindow = DefaultReplayWindow
	}
	if cfg.RotationPackets == 0 {
		cfg.RotationPackets = DefaultRotationPackets
	}

	encKey, err := expand(cfg.MasterKey, cfg.MasterSalt, labelEncryption, cfg.Suite.keyLen())
	if err != nil {
		return nil, err
	}
	authKey, err := expand(cfg.MasterKey, cfg.MasterSalt, labelAuth, authKeyLen)
	if err != nil {
		return nil, err
	}
	salt, err := expand(cfg.MasterKey, cfg.MasterSalt, labelSalt, masterSaltLen)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(encKey)
	if err != nil {
		return nil, fmt.Errorf("srtp: cipher init: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("srtp: gcm init: %w", err)
	}

	return &Context{
		cfg:     cfg,
		encKey:  encKey,
		authKey: authKey,
		salt:    salt,
		aead:    aead,
		replay:  replaydetector.New(cfg.ReplayWindow, maxExtendedSeq),
	}, nil
}

func expand(secret, salt []byte, label string, n int) ([]byte, error) {
	r := hkdf.New(sha256.New, secret, salt, []byte(label))
	out := make([]byte, n)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("srtp: hkdf expand %s: %w", label, err)
	}
	return out, nil
}

// Seal encrypts an RTP packet into SRTP wire form: the header is
// authenticated as AAD, the payload encrypted, and the 16-byte GCM tag
// appended. The rollover counter advances on 16-bit sequence wrap.
func (c *Context) Seal(p *rtp.Packet) ([]byte, error) {
	if p.Header.SSRC != c.cfg.SSRC {
		return nil, ErrSSRCMismatch
	}
	if c.sealed >= c.cfg.RotationPackets {
		return nil, ErrRotationRequired
	}

	seq := p.Header.SequenceNumber
	if c.sentAny && seq < c.lastSent && c.lastSent-seq > 0x8000 {
		c.sendROC++
	}

	wire, err := p.Marshal()
	if err != nil {
		return nil, fmt.Errorf("srtp: marshal: %w", err)
	}
	headerLen := p.Header.MarshalSize()
	header, payload := wire[:headerLen], wire[headerLen:]

	iv := c.ivFor(seq, c.sendROC)
	out := make([]byte, 0, len(wire)+gcmTagLen)
	out = append(out, header...)
	out = c.aead.Seal(out, iv, payload, header)

	c.lastSent = seq
	c.sentAny = true
	c.sealed++
	return out, nil
}

// Open authenticates and decrypts an SRTP datagram. It returns the packet
// and the 48-bit extended sequence number that was accepted. A given
// (SSRC, extended sequence) is accepted at most once.
func (c *Context) Open(buf []byte) (*rtp.Packet, uint64, error) {
	if c.opened >= c.cfg.RotationPackets {
		return nil, 0, ErrRotationRequired
	}

	header, headerLen, err := rtp.ParseHeader(buf)
	if err != nil {
		return nil, 0, err
	}
	if header.SSRC != c.cfg.SSRC {
		return nil, 0, ErrSSRCMismatch
	}
	if len(buf)-headerLen < gcmTagLen {
		return nil, 0, ErrShortPacket
	}

	seq := header.SequenceNumber
	roc, index := c.estimateIndex(seq)

	accept, ok := c.replay.Check(index)
	if !ok {
		return nil, 0, ErrReplayDetected
	}

	iv := c.ivFor(seq, roc)
	plain, err := c.aead.Open(nil, iv, buf[headerLen:], buf[:headerLen])
	if err != nil {
		return nil, 0, ErrAuthFailed
	}
	accept()

	if !c.seen || index > c.currentIndex() {
		c.highestSeq = seq
		c.roc = roc
		c.seen = true
	}
	c.opened++

	wire := make([]byte, 0, headerLen+len(plain))
	wire = append(wire, buf[:headerLen]...)
	wire = append(wire, plain...)
	pkt, err := rtp.Parse(wire)
	if err != nil {
		return nil, 0, err
	}
	return pkt, index, nil
}

// Rotate re-derives keys from a new master key, preserving sequence state
// so the extended sequence keeps advancing across the switch. The caller
// retains the previous context for a grace window to absorb reordering.
func (c *Context) Rotate(newMasterKey []byte) (*Context, error) {
	cfg := c.cfg
	cfg.MasterKey = newMasterKey
	next, err := Derive(cfg)
	if err != nil {
		return nil, err
	}
	next.roc = c.roc
	next.highestSeq = c.highestSeq
	next.seen = c.seen
	next.sendROC = c.sendROC
	next.lastSent = c.lastSent
	next.sentAny = c.sentAny
	return next, nil
}

// ROC returns the current receive rollover counter.
func (c *Context) ROC() uint32 {
	return c.roc
}

// HighestSequence returns the highest accepted 16-bit sequence number.
func (c *Context) HighestSequence() uint16 {
	return c.highestSeq
}

// ExtendedIndex maps a 16-bit sequence onto the 48-bit extended sequence
// using the current rollover estimate without mutating state.
func (c *Context) ExtendedIndex(seq uint16) uint64 {
	_, index := c.estimateIndex(seq)
	return index
}

func (c *Context) currentIndex() uint64 {
	return uint64(c.roc)<<16 | uint64(c.highestSeq)
}

// estimateIndex applies the signed-delta rule of RFC 3711 §3.3.1: a
// sequence within ±2^15 of the highest received uses the current ROC,
// otherwise the neighbouring rollover is probed.
func (c *Context) estimateIndex(seq uint16) (uint32, uint64) {
	roc := c.roc
	if c.seen {
		delta := int32(seq) - int32(c.highestSeq)
		switch {
		case delta > 0x8000:
			if roc > 0 {
				roc--
			}
		case delta < -0x8000:
			roc++
		}
	}
	return roc, uint64(roc)<<16 | uint64(seq)
}

// ivFor builds the 12-byte GCM IV: session salt XOR (SSRC ∥ ROC ∥ seq ∥ 0x00).
func (c *Context) ivFor(seq uint16, roc uint32) []byte {
	iv := make([]byte, ivLen)
	iv[0] = byte(c.cfg.SSRC >> 24)
	iv[1] = byte(c.cfg.SSRC >> 16)
	iv[2] = byte(c.cfg.SSRC >> 8)
	iv[3] = byte(c.cfg.SSRC)
	iv[4] = byte(roc >> 24)
	iv[5] = byte(roc >> 16)
	iv[6] = byte(roc >> 8)
	iv[7] = byte(roc)
	iv[8] = byte(seq >> 8)
	iv[9] = byte(seq)
	for i := 0; i < ivLen; i++ {
		iv[i] ^= c.salt[i]
	}
	return iv
}
