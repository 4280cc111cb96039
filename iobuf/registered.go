// File: iobuf/registered.go
// Author: momentics <momentics@gmail.com>
//
// RegisteredBuffer is a zero-copy buffer pinned for the lifetime of one or
// more in-flight I/O operations, obtained from a NUMA-segmented pool rather
// than the Go allocator directly. No backend in this module registers the
// region with the kernel (io_uring fixed buffers are not used); every
// backend uses it as an ordinary scatter/gather buffer. The NUMA-local sync.Pool-of-pools pattern itself, and the actual
// per-node allocator, are the pack's own pool.NUMAPool.

package iobuf

import (
	"os"
	"sync"

	"github.com/2217936322/llfio/ioerr"
	"github.com/2217936322/llfio/pool"
)

// RegisteredBuffer is a pool-owned byte region plus the NUMA node it was
// allocated from. Release must be called exactly once, after every I/O
// operation referencing it has completed.
type RegisteredBuffer struct {
	owner *pool.NUMAPool
	data  []byte
	numa  int
}

func (b *RegisteredBuffer) Bytes() []byte { return b.data }
func (b *RegisteredBuffer) NUMANode() int { return b.numa }

// Slice narrows the buffer to [from:to) without copying. The returned
// RegisteredBuffer shares storage with b and must not be Release'd
// independently; only the original is returned to the pool.
func (b *RegisteredBuffer) Slice(from, to int) Buffer {
	return Buffer(b.data[from:to])
}

// Release returns the region to the per-(node,size) NUMAPool it came from.
// After Release the buffer must not be read, written, or passed to any I/O
// call.
func (b *RegisteredBuffer) Release() {
	b.owner.Put(b.data)
}

// RegisteredBufferPool hands out page-rounded, NUMA-local registered
// buffers. Per the page-size rounding decision for
// allocate_registered_buffer, every allocation is rounded up to the
// system's page size unless a caller-supplied slotSize overrides it. Each
// distinct (node, rounded size) pair gets
// its own pool.NUMAPool, since NUMAPool itself is fixed-size.
type RegisteredBufferPool struct {
	mu       sync.Mutex
	byKey    map[numaSizeKey]*pool.NUMAPool
	pageSize int
	slotSize int // 0 means "round to pageSize"
}

type numaSizeKey struct {
	node int
	size int
}

// NewRegisteredBufferPool constructs a pool. slotSize, if non-zero,
// overrides page-size rounding with that allocation granularity.
func NewRegisteredBufferPool(slotSize int) *RegisteredBufferPool {
	return &RegisteredBufferPool{
		byKey:    make(map[numaSizeKey]*pool.NUMAPool),
		pageSize: os.Getpagesize(),
		slotSize: slotSize,
	}
}

func (p *RegisteredBufferPool) roundedSize(n int) int {
	granule := p.pageSize
	if p.slotSize > 0 {
		granule = p.slotSize
	}
	if n <= 0 {
		n = granule
	}
	rem := n % granule
	if rem != 0 {
		n += granule - rem
	}
	return n
}

func (p *RegisteredBufferPool) poolFor(node, size int) *pool.NUMAPool {
	key := numaSizeKey{node: node, size: size}
	p.mu.Lock()
	defer p.mu.Unlock()
	np, ok := p.byKey[key]
	if !ok {
		np = pool.NewNUMAPool(node, size, node >= 0)
		p.byKey[key] = np
	}
	return np
}

// Allocate returns a registered buffer of at least n bytes, NUMA-preferred
// to node (-1 for no preference), rounded per the pool's granularity.
func (p *RegisteredBufferPool) Allocate(n int, node int) (*RegisteredBuffer, error) {
	if n < 0 {
		return nil, ioerr.New(ioerr.InvalidArgument, "negative buffer size")
	}
	size := p.roundedSize(n)
	np := p.poolFor(node, size)
	return &RegisteredBuffer{owner: np, data: np.Get(), numa: node}, nil
}
