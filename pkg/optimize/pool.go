package optimize

import (
	"sync"
)

// BytePool is a pool of byte slices to reduce allocations on the datagram
// read path.
type BytePool struct {
	pool sync.Pool
	size int
}

// NewBytePool creates a new byte pool with specified slice size.
func NewBytePool(size int) *BytePool {
	return &BytePool{
		size: size,
		pool: sync.Pool{
			New: func() interface{} {
				return make([]byte, size)
			},
		},
	}
}

// Get gets a byte slice from the pool
func (p *BytePool) Get() []byte {
	return p.pool.Get().([]byte)
}

// Put returns a byte slice to the pool
func (p *BytePool) Put(b []byte) {
	// Only put back if it's the right size
	if cap(b) >= p.size {
		p.pool.Put(b[:p.size])
	}
}

// DatagramPool pools MTU-sized buffers for socket reads. Buffers handed to
// the per-stream pipeline must be copied before Put.
var DatagramPool = NewBytePool(1500)
