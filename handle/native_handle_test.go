package handle_test

import (
	"testing"

	"github.com/2217936322/llfio/handle"
)

func TestNewHandleIsValidUntilClosed(t *testing.T) {
	h := handle.New(3, handle.DispositionFile|handle.DispositionReadable)
	if !h.IsValid() {
		t.Fatal("freshly constructed handle should be valid")
	}
	if h.IsClosed() {
		t.Fatal("freshly constructed handle should not be closed")
	}
	if h.FD() != 3 {
		t.Fatalf("FD() = %d, want 3", h.FD())
	}
}

func TestMarkClosedIsOnceOnly(t *testing.T) {
	h := handle.New(4, handle.DispositionPipe)

	if !h.MarkClosed() {
		t.Fatal("first MarkClosed() should report true")
	}
	if h.MarkClosed() {
		t.Fatal("second MarkClosed() should report false")
	}
	if h.IsValid() {
		t.Fatal("closed handle should not be valid")
	}
}

func TestInvalidHandle(t *testing.T) {
	h := handle.Invalid()
	if h.IsValid() {
		t.Fatal("Invalid() handle should never be valid")
	}
	if h.FD() != handle.InvalidFD {
		t.Fatalf("FD() = %v, want InvalidFD", h.FD())
	}
}

func TestDispositionHasAndAny(t *testing.T) {
	d := handle.DispositionFile | handle.DispositionReadable | handle.DispositionSeekable

	if !d.Has(handle.DispositionReadable | handle.DispositionSeekable) {
		t.Fatal("Has() should report true when all mask bits are set")
	}
	if d.Has(handle.DispositionWritable) {
		t.Fatal("Has() should report false when a mask bit is missing")
	}
	if !d.Any(handle.DispositionWritable | handle.DispositionSeekable) {
		t.Fatal("Any() should report true when at least one mask bit is set")
	}
	if d.Any(handle.DispositionWritable | handle.DispositionSocket) {
		t.Fatal("Any() should report false when no mask bit is set")
	}
}

func TestAlignmentBytesZeroWithoutAlignedIO(t *testing.T) {
	h := handle.New(5, handle.DispositionFile|handle.DispositionReadable)
	if got := h.AlignmentBytes(); got != 0 {
		t.Fatalf("AlignmentBytes() = %d, want 0 for a handle without DispositionAlignedIO", got)
	}
}

func TestNewAlignedDefaultsTo512(t *testing.T) {
	h := handle.NewAligned(5, handle.DispositionFile, 0)
	if !h.Disposition().Has(handle.DispositionAlignedIO) {
		t.Fatal("NewAligned() should set DispositionAlignedIO")
	}
	if got := h.AlignmentBytes(); got != 512 {
		t.Fatalf("AlignmentBytes() = %d, want default 512", got)
	}
}

func TestNewAlignedHonorsExplicitAlignment(t *testing.T) {
	h := handle.NewAligned(5, handle.DispositionFile, 4096)
	if got := h.AlignmentBytes(); got != 4096 {
		t.Fatalf("AlignmentBytes() = %d, want 4096", got)
	}
}
