//go:build linux || darwin

package iohandle_test

import (
	"context"
	"testing"

	"github.com/2217936322/llfio/deadline"
	"github.com/2217936322/llfio/iobuf"
	"github.com/2217936322/llfio/ioerr"
	"github.com/2217936322/llfio/iohandle"
)

func TestPipeRoundTripSynchronous(t *testing.T) {
	r, w, err := iohandle.NewPipePair()
	if err != nil {
		t.Fatalf("NewPipePair() error: %v", err)
	}
	defer r.Close()
	defer w.Close()

	payload := iobuf.ConstBuffer("hello, pipe")
	ctx := context.Background()
	if _, err := w.Write(ctx, iobuf.IoRequest[iobuf.ConstBuffer]{Buffers: []iobuf.ConstBuffer{payload}}, deadline.None); err != nil {
		t.Fatalf("Write() error: %v", err)
	}

	dst := make(iobuf.Buffer, len(payload))
	res, err := r.Read(ctx, iobuf.IoRequest[iobuf.Buffer]{Buffers: []iobuf.Buffer{dst}}, deadline.None)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if res.Transferred != int64(len(payload)) {
		t.Fatalf("Transferred = %d, want %d", res.Transferred, len(payload))
	}
	if string(dst) != string(payload) {
		t.Fatalf("Read() got %q, want %q", dst, payload)
	}
}

func TestPipeTryReadReportsNotReadyWhenEmpty(t *testing.T) {
	r, w, err := iohandle.NewPipePair()
	if err != nil {
		t.Fatalf("NewPipePair() error: %v", err)
	}
	defer r.Close()
	defer w.Close()

	if err := r.SetNonBlocking(true); err != nil {
		t.Fatalf("SetNonBlocking() error: %v", err)
	}

	dst := make(iobuf.Buffer, 16)
	_, err = r.TryRead(context.Background(), iobuf.IoRequest[iobuf.Buffer]{Buffers: []iobuf.Buffer{dst}})
	if !ioerr.IsCode(err, ioerr.NotReady) {
		t.Fatalf("TryRead() on an empty non-blocking pipe = %v, want NotReady", err)
	}
}

func TestCheckBufferCountRejectsOversizedScatterGather(t *testing.T) {
	r, w, err := iohandle.NewPipePair()
	if err != nil {
		t.Fatalf("NewPipePair() error: %v", err)
	}
	defer r.Close()
	defer w.Close()

	bufs := make([]iobuf.Buffer, r.MaxBuffers()+1)
	for i := range bufs {
		bufs[i] = make(iobuf.Buffer, 1)
	}

	_, err = r.Read(context.Background(), iobuf.IoRequest[iobuf.Buffer]{Buffers: bufs}, deadline.Poll)
	if !ioerr.IsCode(err, ioerr.InvalidArgument) {
		t.Fatalf("Read() over MaxBuffers() = %v, want InvalidArgument", err)
	}
}

func TestAllocateRegisteredBufferWithoutPoolIsNotSupported(t *testing.T) {
	r, w, err := iohandle.NewPipePair()
	if err != nil {
		t.Fatalf("NewPipePair() error: %v", err)
	}
	defer r.Close()
	defer w.Close()

	if _, err := r.AllocateRegisteredBuffer(64); !ioerr.IsCode(err, ioerr.NotSupported) {
		t.Fatalf("AllocateRegisteredBuffer() without a pool = %v, want NotSupported", err)
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	r, w, err := iohandle.NewPipePair()
	if err != nil {
		t.Fatalf("NewPipePair() error: %v", err)
	}
	defer w.Close()

	if err := r.Close(); err != nil {
		t.Fatalf("first Close() error: %v", err)
	}
	if err := r.Close(); err != nil {
		t.Fatalf("second Close() should be a no-op, got error: %v", err)
	}
}
