//go:build linux || darwin

package iohandle_test

import (
	"context"
	"testing"
	"time"

	"github.com/2217936322/llfio/deadline"
	"github.com/2217936322/llfio/handle"
	"github.com/2217936322/llfio/iobuf"
	"github.com/2217936322/llfio/ioerr"
	"github.com/2217936322/llfio/iohandle"
)

type fakeMux struct {
	readResult iobuf.IoResult[iobuf.Buffer]
	readErr    error
	blockRead  bool
}

func (f *fakeMux) StartRead(h *iohandle.Handle, req iobuf.IoRequest[iobuf.Buffer], dl deadline.Deadline, recv iohandle.ReadReceiver) error {
	if f.blockRead {
		return nil // never calls recv, so the caller must time out via ctx
	}
	recv(f.readResult, f.readErr)
	return nil
}

func (f *fakeMux) StartWrite(h *iohandle.Handle, req iobuf.IoRequest[iobuf.ConstBuffer], dl deadline.Deadline, recv iohandle.WriteReceiver) error {
	recv(iobuf.IoResult[iobuf.ConstBuffer]{Buffers: req.Buffers, Transferred: iobuf.Len(req.Buffers)}, nil)
	return nil
}

func (f *fakeMux) StartBarrier(h *iohandle.Handle, req iobuf.IoRequest[iobuf.ConstBuffer], kind iohandle.BarrierKind, dl deadline.Deadline, recv iohandle.WriteReceiver) error {
	recv(iobuf.IoResult[iobuf.ConstBuffer]{}, nil)
	return nil
}

func TestReadDispatchesToAttachedMultiplexer(t *testing.T) {
	h := iohandle.New(handle.New(99, handle.DispositionPipe|handle.DispositionReadable), 64, nil)
	want := iobuf.IoResult[iobuf.Buffer]{Transferred: 5}
	h.SetMultiplexer(&fakeMux{readResult: want})

	res, err := h.Read(context.Background(), iobuf.IoRequest[iobuf.Buffer]{Buffers: []iobuf.Buffer{make(iobuf.Buffer, 5)}}, deadline.None)
	if err != nil {
		t.Fatalf("Read() error: %v", err)
	}
	if res.Transferred != 5 {
		t.Fatalf("Transferred = %d, want 5", res.Transferred)
	}
}

func TestReadHonorsContextCancellation(t *testing.T) {
	h := iohandle.New(handle.New(99, handle.DispositionPipe|handle.DispositionReadable), 64, nil)
	h.SetMultiplexer(&fakeMux{blockRead: true})

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := h.Read(ctx, iobuf.IoRequest[iobuf.Buffer]{Buffers: []iobuf.Buffer{make(iobuf.Buffer, 1)}}, deadline.None)
	if !ioerr.IsCode(err, ioerr.OperationCanceled) {
		t.Fatalf("Read() on a never-completing multiplexer = %v, want OperationCanceled", err)
	}
}

func TestSetMultiplexerNilDetaches(t *testing.T) {
	r, w, err := iohandle.NewPipePair()
	if err != nil {
		t.Fatalf("NewPipePair() error: %v", err)
	}
	defer r.Close()
	defer w.Close()

	r.SetMultiplexer(&fakeMux{readResult: iobuf.IoResult[iobuf.Buffer]{Transferred: 42}})
	r.SetMultiplexer(nil)

	if err := r.SetNonBlocking(true); err != nil {
		t.Fatalf("SetNonBlocking() error: %v", err)
	}
	_, err = r.TryRead(context.Background(), iobuf.IoRequest[iobuf.Buffer]{Buffers: []iobuf.Buffer{make(iobuf.Buffer, 1)}})
	if !ioerr.IsCode(err, ioerr.NotReady) {
		t.Fatalf("after detaching the multiplexer, TryRead() on an empty pipe = %v, want NotReady (sync fallback)", err)
	}
}
