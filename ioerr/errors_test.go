package ioerr_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/2217936322/llfio/ioerr"
)

func TestNewAndError(t *testing.T) {
	e := ioerr.New(ioerr.InvalidArgument, "bad buffer count")
	if e.Code != ioerr.InvalidArgument {
		t.Fatalf("Code = %v, want InvalidArgument", e.Code)
	}
	want := "invalid_argument: bad buffer count"
	if e.Error() != want {
		t.Fatalf("Error() = %q, want %q", e.Error(), want)
	}
}

func TestWrapUnwrap(t *testing.T) {
	cause := fmt.Errorf("errno 11")
	e := ioerr.Wrap(ioerr.TimedOut, "read deadline", cause)

	if !errors.Is(e, cause) {
		t.Fatal("Wrap should chain Unwrap to cause")
	}
	if e.Unwrap() != cause {
		t.Fatalf("Unwrap() = %v, want %v", e.Unwrap(), cause)
	}
}

func TestIsCode(t *testing.T) {
	e := ioerr.Wrap(ioerr.NotReady, "poll empty", nil)
	if !ioerr.IsCode(e, ioerr.NotReady) {
		t.Fatal("IsCode should report true for matching code")
	}
	if ioerr.IsCode(e, ioerr.TimedOut) {
		t.Fatal("IsCode should report false for mismatched code")
	}
}

func TestErrorIsMatchesSameCodeOnly(t *testing.T) {
	a := ioerr.New(ioerr.ResourceExhausted, "no buffers")
	b := ioerr.New(ioerr.ResourceExhausted, "different message, same code")
	c := ioerr.New(ioerr.NotPermitted, "different code")

	if !errors.Is(a, b) {
		t.Fatal("errors of the same Code should satisfy errors.Is")
	}
	if errors.Is(a, c) {
		t.Fatal("errors of different Code should not satisfy errors.Is")
	}
}

func TestSentinelsAreCode(t *testing.T) {
	cases := []struct {
		err  error
		code ioerr.Code
	}{
		{ioerr.ErrTimedOut, ioerr.TimedOut},
		{ioerr.ErrOperationCanceled, ioerr.OperationCanceled},
		{ioerr.ErrNotReady, ioerr.NotReady},
		{ioerr.ErrResourceExhausted, ioerr.ResourceExhausted},
		{ioerr.ErrNotSupported, ioerr.NotSupported},
		{ioerr.ErrNotPermitted, ioerr.NotPermitted},
	}
	for _, c := range cases {
		if !ioerr.IsCode(c.err, c.code) {
			t.Errorf("sentinel %v does not carry code %v", c.err, c.code)
		}
	}
}

func TestCodeString(t *testing.T) {
	if ioerr.CodeOK.String() != "ok" {
		t.Fatalf("CodeOK.String() = %q, want ok", ioerr.CodeOK.String())
	}
	if ioerr.PlatformError.String() != "platform_error" {
		t.Fatalf("PlatformError.String() = %q, want platform_error", ioerr.PlatformError.String())
	}
}
