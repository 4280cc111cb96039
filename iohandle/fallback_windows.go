//go:build windows

// File: iohandle/fallback_windows.go
// Author: momentics <momentics@gmail.com>
//
// Windows synchronous fallback, using ReadFile/WriteFile with an explicit
// OVERLAPPED offset for seekable handles and FlushFileBuffers for barriers.

package iohandle

import (
	"golang.org/x/sys/windows"

	"github.com/2217936322/llfio/handle"
	"github.com/2217936322/llfio/iobuf"
	"github.com/2217936322/llfio/ioerr"
)

type windowsSyncOps struct {
	h        windows.Handle
	seekable bool
}

func newPlatformSyncOps(nh handle.NativeHandle) syncOps {
	return &windowsSyncOps{
		h:        windows.Handle(nh.FD()),
		seekable: nh.Disposition().Has(handle.DispositionSeekable),
	}
}

func (o *windowsSyncOps) read(req iobuf.IoRequest[iobuf.Buffer]) (iobuf.IoResult[iobuf.Buffer], error) {
	var total int64
	off := req.Offset
	for _, b := range req.Buffers {
		var ov *windows.Overlapped
		if o.seekable {
			ov = &windows.Overlapped{Offset: uint32(off), OffsetHigh: uint32(off >> 32)}
		}
		var n uint32
		err := windows.ReadFile(o.h, b, &n, ov)
		if n > 0 {
			total += int64(n)
			off += int64(n)
		}
		if err != nil {
			return iobuf.IoResult[iobuf.Buffer]{
				Buffers:     iobuf.Truncate(req.Buffers, total),
				Transferred: total,
			}, translateWinErr(err)
		}
		if int(n) < len(b) {
			return iobuf.IoResult[iobuf.Buffer]{
				Buffers:     iobuf.Truncate(req.Buffers, total),
				Transferred: total,
			}, nil
		}
	}
	return iobuf.IoResult[iobuf.Buffer]{Buffers: req.Buffers, Transferred: total}, nil
}

func (o *windowsSyncOps) write(req iobuf.IoRequest[iobuf.ConstBuffer]) (iobuf.IoResult[iobuf.ConstBuffer], error) {
	var total int64
	off := req.Offset
	for _, b := range req.Buffers {
		var ov *windows.Overlapped
		if o.seekable {
			ov = &windows.Overlapped{Offset: uint32(off), OffsetHigh: uint32(off >> 32)}
		}
		var n uint32
		err := windows.WriteFile(o.h, b, &n, ov)
		if n > 0 {
			total += int64(n)
			off += int64(n)
		}
		if err != nil {
			return iobuf.IoResult[iobuf.ConstBuffer]{
				Buffers:     iobuf.Truncate(req.Buffers, total),
				Transferred: total,
			}, translateWinErr(err)
		}
		if int(n) < len(b) {
			return iobuf.IoResult[iobuf.ConstBuffer]{
				Buffers:     iobuf.Truncate(req.Buffers, total),
				Transferred: total,
			}, nil
		}
	}
	return iobuf.IoResult[iobuf.ConstBuffer]{Buffers: req.Buffers, Transferred: total}, nil
}

func (o *windowsSyncOps) barrier(req iobuf.IoRequest[iobuf.ConstBuffer], kind BarrierKind) (iobuf.IoResult[iobuf.ConstBuffer], error) {
	if err := windows.FlushFileBuffers(o.h); err != nil {
		return iobuf.IoResult[iobuf.ConstBuffer]{}, translateWinErr(err)
	}
	return iobuf.IoResult[iobuf.ConstBuffer]{Buffers: req.Buffers, Transferred: iobuf.Len(req.Buffers)}, nil
}

func translateWinErr(err error) error {
	switch err {
	case windows.ERROR_INVALID_PARAMETER:
		return ioerr.Wrap(ioerr.InvalidArgument, "invalid argument", err)
	case windows.ERROR_ACCESS_DENIED, windows.ERROR_INVALID_HANDLE:
		return ioerr.Wrap(ioerr.NotPermitted, "not permitted", err)
	case windows.ERROR_NOT_SUPPORTED:
		return ioerr.Wrap(ioerr.NotSupported, "not supported", err)
	case windows.ERROR_OPERATION_ABORTED:
		return ioerr.Wrap(ioerr.OperationCanceled, "canceled", err)
	default:
		return ioerr.Wrap(ioerr.PlatformError, "platform error", err)
	}
}
