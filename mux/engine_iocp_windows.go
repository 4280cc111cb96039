//go:build windows

// File: mux/engine_iocp_windows.go
// Author: momentics <momentics@gmail.com>
//
// Completion-based engine over Windows I/O completion ports. Unlike the
// readiness engines, submit issues the real ReadFile/WriteFile call
// immediately with an OVERLAPPED that carries the OperationConnection's
// address as its identity; poll's GetQueuedCompletionStatus call reports
// the finished transfer directly, no separate syscall needed once it
// returns. Wake uses a zero-key PostQueuedCompletionStatus packet.

package mux

import (
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/2217936322/llfio/handle"
	"github.com/2217936322/llfio/ioerr"
)

// platformEngineFactories offers the alertable ReadFileEx/WriteFileEx engine
// for single-thread mode, where APCs delivered to the one dedicated run loop
// thread are sufficient, and falls back to the completion port engine
// otherwise, since IOCP is the only one of the two safe to drive from
// multiple threads concurrently.
func platformEngineFactories(cfg Config) []engineFactory {
	if cfg.Threads <= 1 {
		return []engineFactory{
			{engineName: "alertable", new: func(cfg Config) (ioEngine, error) { return newAlertableEngine(cfg) }},
			{engineName: "iocp", new: func(cfg Config) (ioEngine, error) { return newIOCPEngine(cfg) }},
		}
	}
	return []engineFactory{
		{engineName: "iocp", new: func(cfg Config) (ioEngine, error) { return newIOCPEngine(cfg) }},
	}
}

type overlappedState struct {
	ov   windows.Overlapped
	conn *OperationConnection
}

type iocpEngine struct {
	port windows.Handle
}

func newIOCPEngine(cfg Config) (ioEngine, error) {
	port, err := windows.CreateIoCompletionPort(windows.InvalidHandle, 0, 0, 0)
	if err != nil {
		return nil, ioerr.Wrap(ioerr.PlatformError, "CreateIoCompletionPort", err)
	}
	return &iocpEngine{port: port}, nil
}

func (e *iocpEngine) open() error  { return nil }
func (e *iocpEngine) close() error { return windows.CloseHandle(e.port) }
func (e *iocpEngine) name() string { return "iocp" }

func (e *iocpEngine) isReadinessBased() bool { return false }

func (e *iocpEngine) registerFD(fd handle.FD) error {
	_, err := windows.CreateIoCompletionPort(windows.Handle(fd), e.port, 0, 0)
	return err
}

func (e *iocpEngine) deregisterFD(fd handle.FD) error { return nil }

func (e *iocpEngine) submit(conn *OperationConnection) error {
	st := &overlappedState{conn: conn}
	conn.engineState = st
	h := windows.Handle(conn.Handle().NativeHandle().FD())

	switch conn.kind {
	case OpRead:
		if len(conn.readReq.Buffers) == 0 {
			return ioerr.New(ioerr.InvalidArgument, "empty read request")
		}
		buf := conn.readReq.Buffers[0]
		st.ov.Offset = uint32(conn.readReq.Offset)
		st.ov.OffsetHigh = uint32(conn.readReq.Offset >> 32)
		var n uint32
		err := windows.ReadFile(h, buf, &n, &st.ov)
		if err != nil && err != windows.ERROR_IO_PENDING {
			return ioerr.Wrap(ioerr.PlatformError, "ReadFile", err)
		}
		return nil
	case OpWrite, OpBarrier:
		if conn.kind == OpBarrier {
			err := windows.FlushFileBuffers(h)
			if err != nil {
				return ioerr.Wrap(ioerr.PlatformError, "FlushFileBuffers", err)
			}
			return nil
		}
		if len(conn.writeReq.Buffers) == 0 {
			return ioerr.New(ioerr.InvalidArgument, "empty write request")
		}
		buf := conn.writeReq.Buffers[0]
		st.ov.Offset = uint32(conn.writeReq.Offset)
		st.ov.OffsetHigh = uint32(conn.writeReq.Offset >> 32)
		var n uint32
		err := windows.WriteFile(h, buf, &n, &st.ov)
		if err != nil && err != windows.ERROR_IO_PENDING {
			return ioerr.Wrap(ioerr.PlatformError, "WriteFile", err)
		}
		return nil
	}
	return ioerr.New(ioerr.InvalidArgument, "unknown operation kind")
}

// cancel asks the kernel to abandon conn's outstanding ReadFile/WriteFile
// call. poll still reports a completion for it, with ERROR_OPERATION_ABORTED
// if cancellation actually won the race, so conn is recycled through the
// normal completion path rather than here.
func (e *iocpEngine) cancel(conn *OperationConnection) error {
	st, ok := conn.engineState.(*overlappedState)
	if !ok {
		return nil
	}
	h := windows.Handle(conn.Handle().NativeHandle().FD())
	err := windows.CancelIoEx(h, &st.ov)
	if err != nil && err != windows.ERROR_NOT_FOUND {
		return ioerr.Wrap(ioerr.PlatformError, "CancelIoEx", err)
	}
	return nil
}

func (e *iocpEngine) wake() error {
	return windows.PostQueuedCompletionStatus(e.port, 0, 0, nil)
}

func (e *iocpEngine) poll(timeout time.Duration, out []engineCompletion) (int, error) {
	ms := uint32(windows.INFINITE)
	if timeout >= 0 {
		ms = uint32(timeout / time.Millisecond)
	}
	var bytes uint32
	var key uintptr
	var ov *windows.Overlapped
	err := windows.GetQueuedCompletionStatus(e.port, &bytes, &key, &ov, ms)
	if ov == nil {
		// wake packet or timeout; timeout is not an error for poll's caller.
		if err == windows.WAIT_TIMEOUT {
			return 0, nil
		}
		return 0, nil
	}
	st := (*overlappedState)(unsafe.Pointer(ov))
	comp := engineCompletion{conn: st.conn, transferred: int64(bytes)}
	if err != nil {
		code := ioerr.PlatformError
		if err == windows.ERROR_OPERATION_ABORTED {
			code = ioerr.OperationCanceled
		}
		comp.err = ioerr.Wrap(code, "GetQueuedCompletionStatus", err)
	}
	if len(out) > 0 {
		out[0] = comp
	} else {
		out = append(out, comp)
	}
	return 1, nil
}
