//go:build linux || darwin

// File: iohandle/pipe.go
// Author: momentics <momentics@gmail.com>
//
// PipeHandle wraps an anonymous pipe fd pair as a pair of IoHandles. Both
// ends are created blocking; SetNonBlocking toggles O_NONBLOCK afterwards,
// for the synchronous pipe-handle round-trip and non-blocking-poll
// scenarios.

package iohandle

import (
	"golang.org/x/sys/unix"

	"github.com/2217936322/llfio/handle"
)

// PipeHandle is one end of an os.Pipe()-style fd pair, read or write.
type PipeHandle struct {
	*Handle
	fd int
}

// NewPipePair creates a connected pipe and wraps both ends as Handles.
func NewPipePair() (read, write *PipeHandle, err error) {
	var fds [2]int
	if err = unix.Pipe2(fds[:], 0); err != nil {
		return nil, nil, err
	}
	readDisp := handle.DispositionPipe | handle.DispositionReadable | handle.DispositionMultiplexable
	writeDisp := handle.DispositionPipe | handle.DispositionWritable | handle.DispositionMultiplexable
	read = &PipeHandle{Handle: New(handle.New(handle.FD(fds[0]), readDisp), 64, nil), fd: fds[0]}
	write = &PipeHandle{Handle: New(handle.New(handle.FD(fds[1]), writeDisp), 64, nil), fd: fds[1]}
	return read, write, nil
}

// SetNonBlocking toggles O_NONBLOCK on the underlying fd, mirroring the
// pipe_handle's construction-time non-blocking flag.
func (p *PipeHandle) SetNonBlocking(nonBlocking bool) error {
	return unix.SetNonblock(p.fd, nonBlocking)
}

// Close closes the underlying fd.
func (p *PipeHandle) Close() error {
	if !p.native.MarkClosed() {
		return nil
	}
	return unix.Close(p.fd)
}
