// Package bufpool recycles fixed-size byte buffers for network reads.
//
// The RADIUS reader receives every datagram into a pooled buffer and copies
// only the bytes it keeps, so steady-state reception allocates once per
// packet instead of once per maximum-size buffer.
//
// Usage:
//
//	buf := bufpool.GetDatagram()
//	defer bufpool.PutDatagram(buf)
//	n, addr, err := conn.ReadFrom(buf)
package bufpool

import (
	"sync"
	"sync/atomic"
)

// DatagramSize is the largest RADIUS packet (RFC 2865 section 3).
const DatagramSize = 4096

// Pool hands out buffers of a single size.
type Pool struct {
	size int
	pool sync.Pool

	allocated atomic.Int64
}

// New creates a pool of buffers of the given size.
func New(size int) *Pool {
	if size <= 0 {
		panic("bufpool: size must be positive")
	}
	p := &Pool{size: size}
	p.pool.New = func() any {
		p.allocated.Add(1)
		buf := make([]byte, size)
		return &buf
	}
	return p
}

// Size returns the length of the buffers handed out by the pool.
func (p *Pool) Size() int { return p.size }

// Allocated returns how many buffers the pool had to allocate so far.
func (p *Pool) Allocated() int64 { return p.allocated.Load() }

// Get returns a buffer of length Size. Its content is unspecified.
//
// The caller must call Put when finished with the buffer.
func (p *Pool) Get() []byte {
	return *p.pool.Get().(*[]byte)
}

// Put returns buf to the pool. Buffers that did not come from the pool
// (different capacity) are left to the garbage collector.
func (p *Pool) Put(buf []byte) {
	if cap(buf) != p.size {
		return
	}
	buf = buf[:p.size]
	p.pool.Put(&buf)
}

var datagrams = New(DatagramSize)

// GetDatagram returns a DatagramSize buffer from the shared pool.
func GetDatagram() []byte { return datagrams.Get() }

// PutDatagram returns a buffer obtained from GetDatagram.
func PutDatagram(buf []byte) { datagrams.Put(buf) }
