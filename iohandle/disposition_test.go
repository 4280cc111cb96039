//go:build linux || darwin

package iohandle_test

import (
	"context"
	"testing"

	"github.com/2217936322/llfio/deadline"
	"github.com/2217936322/llfio/handle"
	"github.com/2217936322/llfio/iobuf"
	"github.com/2217936322/llfio/ioerr"
	"github.com/2217936322/llfio/iohandle"
)

func TestWriteOnReadOnlyHandleIsNotPermitted(t *testing.T) {
	h := iohandle.New(handle.New(99, handle.DispositionPipe|handle.DispositionReadable), 64, nil)

	_, err := h.Write(context.Background(), iobuf.IoRequest[iobuf.ConstBuffer]{Buffers: []iobuf.ConstBuffer{[]byte("x")}}, deadline.None)
	if !ioerr.IsCode(err, ioerr.NotPermitted) {
		t.Fatalf("Write() on a read-only handle = %v, want NotPermitted", err)
	}
}

func TestReadOnWriteOnlyHandleIsNotPermitted(t *testing.T) {
	h := iohandle.New(handle.New(99, handle.DispositionPipe|handle.DispositionWritable), 64, nil)

	_, err := h.Read(context.Background(), iobuf.IoRequest[iobuf.Buffer]{Buffers: []iobuf.Buffer{make(iobuf.Buffer, 1)}}, deadline.None)
	if !ioerr.IsCode(err, ioerr.NotPermitted) {
		t.Fatalf("Read() on a write-only handle = %v, want NotPermitted", err)
	}
}

func TestWriteRejectsMisalignedOffsetOnAlignedHandle(t *testing.T) {
	nh := handle.NewAligned(99, handle.DispositionFile|handle.DispositionWritable, 512)
	h := iohandle.New(nh, 64, nil)

	buf := make(iobuf.ConstBuffer, 512)
	_, err := h.Write(context.Background(), iobuf.IoRequest[iobuf.ConstBuffer]{Buffers: []iobuf.ConstBuffer{buf}, Offset: 1}, deadline.None)
	if !ioerr.IsCode(err, ioerr.InvalidArgument) {
		t.Fatalf("Write() at a misaligned offset = %v, want InvalidArgument", err)
	}
}

func TestReadRejectsMisalignedBufferLengthOnAlignedHandle(t *testing.T) {
	nh := handle.NewAligned(99, handle.DispositionFile|handle.DispositionReadable, 512)
	h := iohandle.New(nh, 64, nil)

	buf := make(iobuf.Buffer, 511)
	_, err := h.Read(context.Background(), iobuf.IoRequest[iobuf.Buffer]{Buffers: []iobuf.Buffer{buf}}, deadline.None)
	if !ioerr.IsCode(err, ioerr.InvalidArgument) {
		t.Fatalf("Read() with a misaligned buffer length = %v, want InvalidArgument", err)
	}
}

func TestReadAcceptsAlignedRequestOnAlignedHandle(t *testing.T) {
	nh := handle.NewAligned(99, handle.DispositionPipe|handle.DispositionReadable, 512)
	h := iohandle.New(nh, 64, nil)
	h.SetMultiplexer(&fakeMux{readResult: iobuf.IoResult[iobuf.Buffer]{Transferred: 512}})

	buf := make(iobuf.Buffer, 512)
	res, err := h.Read(context.Background(), iobuf.IoRequest[iobuf.Buffer]{Buffers: []iobuf.Buffer{buf}, Offset: 512}, deadline.None)
	if err != nil {
		t.Fatalf("Read() with an aligned request = %v, want nil error", err)
	}
	if res.Transferred != 512 {
		t.Fatalf("Transferred = %d, want 512", res.Transferred)
	}
}
