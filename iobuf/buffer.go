// File: iobuf/buffer.go
// Author: momentics <momentics@gmail.com>
//
// Scatter/gather buffer and request/result shapes shared by every IoHandle
// implementation. Buffer and ConstBuffer are plain byte slices, mirroring
// the underlying kernel readv/writev iovec shape; RegisteredBuffer is the
// zero-copy variant backed by a pinned, pool-owned region.

package iobuf

// Buffer is a mutable scatter target: the destination of a read.
type Buffer []byte

// ConstBuffer is an immutable gather source: the source of a write.
type ConstBuffer []byte

// IoRequest describes a scatter/gather operation against an IoHandle: the
// buffer list (in kernel iovec order) plus the starting file offset. Offset
// is ignored by handles over unseekable kinds (pipes, sockets).
type IoRequest[T any] struct {
	Buffers []T
	Offset  int64
}

// IoResult reports what actually happened: Buffers may be a subset or
// resliced view of the request's buffers (short read/write), and
// Transferred is the total byte count moved, which callers should trust
// over summing Buffers' lengths when only a partial transfer occurred.
type IoResult[T any] struct {
	Buffers     []T
	Transferred int64
}

// Len returns the sum of lengths of the input buffers.
func Len[T ~[]byte](bufs []T) int64 {
	var n int64
	for _, b := range bufs {
		n += int64(len(b))
	}
	return n
}

// Truncate reslices bufs so their total length is at most n bytes,
// implementing the short-read/short-write truncation rule: later buffers
// are dropped entirely, and the buffer straddling the boundary is
// reslices down to its contribution.
func Truncate[T ~[]byte](bufs []T, n int64) []T {
	if n < 0 {
		n = 0
	}
	out := make([]T, 0, len(bufs))
	for _, b := range bufs {
		if n <= 0 {
			break
		}
		take := int64(len(b))
		if take > n {
			take = n
		}
		out = append(out, b[:take])
		n -= take
	}
	return out
}
