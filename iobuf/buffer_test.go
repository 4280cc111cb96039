package iobuf_test

import (
	"reflect"
	"testing"

	"github.com/2217936322/llfio/iobuf"
)

func TestLenSumsBufferLengths(t *testing.T) {
	bufs := []iobuf.Buffer{make(iobuf.Buffer, 4), make(iobuf.Buffer, 10), make(iobuf.Buffer, 0)}
	if got := iobuf.Len(bufs); got != 14 {
		t.Fatalf("Len() = %d, want 14", got)
	}
}

func TestTruncateDropsAndReslices(t *testing.T) {
	bufs := []iobuf.Buffer{
		iobuf.Buffer("aaaa"),
		iobuf.Buffer("bbbbbbbb"),
		iobuf.Buffer("cccc"),
	}

	got := iobuf.Truncate(bufs, 6)
	want := []iobuf.Buffer{iobuf.Buffer("aaaa"), iobuf.Buffer("bb")}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Truncate() = %v, want %v", got, want)
	}
}

func TestTruncateNegativeYieldsEmpty(t *testing.T) {
	bufs := []iobuf.Buffer{iobuf.Buffer("xyz")}
	got := iobuf.Truncate(bufs, -5)
	if len(got) != 0 {
		t.Fatalf("Truncate() with negative n = %v, want empty", got)
	}
}

func TestTruncateExactBoundary(t *testing.T) {
	bufs := []iobuf.Buffer{iobuf.Buffer("ab"), iobuf.Buffer("cd")}
	got := iobuf.Truncate(bufs, 4)
	want := []iobuf.Buffer{iobuf.Buffer("ab"), iobuf.Buffer("cd")}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Truncate() at exact boundary = %v, want %v", got, want)
	}
}
