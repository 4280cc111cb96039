package iobuf_test

import (
	"os"
	"testing"

	"github.com/2217936322/llfio/iobuf"
)

func TestAllocateRoundsToPageSize(t *testing.T) {
	pool := iobuf.NewRegisteredBufferPool(0)

	buf, err := pool.Allocate(1, -1)
	if err != nil {
		t.Fatalf("Allocate() error: %v", err)
	}
	if got := len(buf.Bytes()); got != os.Getpagesize() {
		t.Fatalf("len(Bytes()) = %d, want page size %d", got, os.Getpagesize())
	}
}

func TestAllocateRespectsSlotSizeOverride(t *testing.T) {
	pool := iobuf.NewRegisteredBufferPool(4096)

	buf, err := pool.Allocate(100, 0)
	if err != nil {
		t.Fatalf("Allocate() error: %v", err)
	}
	if got := len(buf.Bytes()); got != 4096 {
		t.Fatalf("len(Bytes()) = %d, want slot size 4096", got)
	}
}

func TestAllocateRejectsNegativeSize(t *testing.T) {
	pool := iobuf.NewRegisteredBufferPool(0)
	if _, err := pool.Allocate(-1, -1); err == nil {
		t.Fatal("Allocate() with negative size should return an error")
	}
}

func TestAllocateReportsRequestedNUMANode(t *testing.T) {
	pool := iobuf.NewRegisteredBufferPool(0)

	a, err := pool.Allocate(10, 2)
	if err != nil {
		t.Fatalf("Allocate() error: %v", err)
	}
	if a.NUMANode() != 2 {
		t.Fatalf("NUMANode() = %d, want 2", a.NUMANode())
	}
	a.Release() // must not panic; returns the region to its per-node pool
}

func TestSliceSharesStorage(t *testing.T) {
	pool := iobuf.NewRegisteredBufferPool(0)
	buf, _ := pool.Allocate(16, -1)

	view := buf.Slice(0, 4)
	view[0] = 0xAB
	if buf.Bytes()[0] != 0xAB {
		t.Fatal("Slice() should share storage with the underlying buffer")
	}
}
