package jitter

import (
	"errors"
	"math"
	"time"

	"arcrtc/pkg/rtp"
)

var (
	ErrLate      = errors.New("jitter: packet older than buffer head")
	ErrDuplicate = errors.New("jitter: slot already occupied")
)

// Config controls buffer depth and adaptation.
type Config struct {
	MinDepth      time.Duration
	MaxDepth      time.Duration
	InitialDepth  time.Duration
	AdaptInterval time.Duration
	// Capacity bounds the ring in slots; older entries are evicted when the
	// span between head and the newest insert exceeds it.
	Capacity int
	// Now is the clock source; nil selects time.Now.
	Now func() time.Time
}

// DefaultConfig mirrors the engine defaults.
func DefaultConfig() Config {
	return Config{
		MinDepth:      5 * time.Millisecond,
		MaxDepth:      50 * time.Millisecond,
		InitialDepth:  10 * time.Millisecond,
		AdaptInterval: 500 * time.Millisecond,
		Capacity:      512,
	}
}

// PopKind discriminates the outcome of a Pop call.
type PopKind int

const (
	// PopPacket delivers the next packet in extended-sequence order.
	PopPacket PopKind = iota
	// PopGap reports that the head slot is overdue; the caller conceals it.
	PopGap
	// PopNotYet means nothing is due.
	PopNotYet
)

// Pop is the result of one Pop call.
type Pop struct {
	Kind   PopKind
	Packet *rtp.Packet
	// Seq is the extended sequence of the delivered packet or gap.
	Seq uint64
}

type entry struct {
	pkt     *rtp.Packet
	arrived time.Time
}

// Buffer reorders packets by extended sequence number and absorbs network
// jitter up to an adaptive target depth. It is single-writer: one stream
// task pushes and pops, so no locking is required.
type Buffer struct {
	cfg     Config
	now     func() time.Time
	slots   map[uint64]entry
	head    uint64
	started bool
	target  time.Duration

	lastAdapt time.Time

	lateDrops uint64
	evicted   uint64
}

// New creates a buffer with the given configuration.
func New(cfg Config) *Buffer {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 512
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Buffer{
		cfg:    cfg,
		now:    now,
		slots:  make(map[uint64]entry),
		target: cfg.InitialDepth,
	}
}

// Push inserts a packet at its extended sequence. Packets older than the
// head are rejected with ErrLate; inserts far ahead of the head evict the
// oldest entries rather than grow past capacity.
func (b *Buffer) Push(pkt *rtp.Packet, extSeq uint64) error {
	if !b.started {
		b.head = extSeq
		b.started = true
	}
	if extSeq < b.head {
		b.lateDrops++
		return ErrLate
	}
	if _, ok := b.slots[extSeq]; ok {
		return ErrDuplicate
	}

	if span := extSeq - b.head; span >= uint64(b.cfg.Capacity) {
		newHead := extSeq - uint64(b.cfg.Capacity) + 1
		for b.head < newHead {
			if _, ok := b.slots[b.head]; ok {
				delete(b.slots, b.head)
				b.evicted++
			}
			b.head++
		}
	}

	b.slots[extSeq] = entry{pkt: pkt, arrived: b.now()}
	return nil
}

// Pop returns the next packet in strictly ascending extended-sequence
// order. When the head slot is missing but a later packet has been waiting
// longer than the target depth, the head is declared a gap and skipped.
func (b *Buffer) Pop() Pop {
	if !b.started || len(b.slots) == 0 {
		return Pop{Kind: PopNotYet}
	}

	if e, ok := b.slots[b.head]; ok {
		delete(b.slots, b.head)
		seq := b.head
		b.head++
		return Pop{Kind: PopPacket, Packet: e.pkt, Seq: seq}
	}

	// Head is missing; find the next occupied slot and check how long it
	// has been waiting.
	for seq := b.head + 1; seq < b.head+uint64(b.cfg.Capacity); seq++ {
		e, ok := b.slots[seq]
		if !ok {
			continue
		}
		if b.now().Sub(e.arrived) >= b.target {
			gap := b.head
			b.head++
			return Pop{Kind: PopGap, Seq: gap}
		}
		return Pop{Kind: PopNotYet}
	}
	return Pop{Kind: PopNotYet}
}

// Adapt recomputes the target depth from the current jitter estimate and
// loss rate. Calls within the adapt interval are no-ops.
func (b *Buffer) Adapt(jitterMS, lossRate float64) {
	now := b.now()
	if !b.lastAdapt.IsZero() && now.Sub(b.lastAdapt) < b.cfg.AdaptInterval {
		return
	}
	b.lastAdapt = now

	maxMS := float64(b.cfg.MaxDepth / time.Millisecond)
	targetMS := math.Round(2*jitterMS + 5*lossRate*maxMS)
	target := time.Duration(targetMS) * time.Millisecond
	if target < b.cfg.MinDepth {
		target = b.cfg.MinDepth
	}
	if target > b.cfg.MaxDepth {
		target = b.cfg.MaxDepth
	}
	b.target = target
}

// Target returns the current adaptive depth.
func (b *Buffer) Target() time.Duration {
	return b.target
}

// SetTarget overrides the adaptive depth, clamped to [min, max]. Used by
// receivers reacting to the in-band quality indicator.
func (b *Buffer) SetTarget(target time.Duration) {
	if target < b.cfg.MinDepth {
		target = b.cfg.MinDepth
	}
	if target > b.cfg.MaxDepth {
		target = b.cfg.MaxDepth
	}
	b.target = target
}

// Len returns the number of buffered packets.
func (b *Buffer) Len() int {
	return len(b.slots)
}

// LateDrops returns the count of packets rejected as late.
func (b *Buffer) LateDrops() uint64 {
	return b.lateDrops
}

// Evicted returns the count of packets evicted by capacity pressure.
func (b *Buffer) Evicted() uint64 {
	return b.evicted
}
