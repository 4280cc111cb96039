//go:build linux || darwin

// File: iohandle/fallback_unix.go
// Author: momentics <momentics@gmail.com>
//
// POSIX synchronous fallback: pread/pwrite in a loop over the scatter/
// gather list, honoring short-read/short-write semantics directly.

package iohandle

import (
	"golang.org/x/sys/unix"

	"github.com/2217936322/llfio/handle"
	"github.com/2217936322/llfio/iobuf"
	"github.com/2217936322/llfio/ioerr"
)

type unixSyncOps struct {
	fd       int
	seekable bool
}

func newPlatformSyncOps(nh handle.NativeHandle) syncOps {
	return &unixSyncOps{
		fd:       int(nh.FD()),
		seekable: nh.Disposition().Has(handle.DispositionSeekable),
	}
}

func (o *unixSyncOps) read(req iobuf.IoRequest[iobuf.Buffer]) (iobuf.IoResult[iobuf.Buffer], error) {
	var total int64
	off := req.Offset
	for i, b := range req.Buffers {
		var n int
		var err error
		if o.seekable {
			n, err = unix.Pread(o.fd, b, off)
		} else {
			n, err = unix.Read(o.fd, b)
		}
		if n > 0 {
			total += int64(n)
			off += int64(n)
		}
		if err != nil {
			return iobuf.IoResult[iobuf.Buffer]{
				Buffers:     iobuf.Truncate(req.Buffers, total),
				Transferred: total,
			}, translateErrno(err)
		}
		if n < len(b) {
			// short read: stop scattering into further buffers.
			return iobuf.IoResult[iobuf.Buffer]{
				Buffers:     iobuf.Truncate(req.Buffers, total),
				Transferred: total,
			}, nil
		}
		_ = i
	}
	return iobuf.IoResult[iobuf.Buffer]{Buffers: req.Buffers, Transferred: total}, nil
}

func (o *unixSyncOps) write(req iobuf.IoRequest[iobuf.ConstBuffer]) (iobuf.IoResult[iobuf.ConstBuffer], error) {
	var total int64
	off := req.Offset
	for _, b := range req.Buffers {
		var n int
		var err error
		if o.seekable {
			n, err = unix.Pwrite(o.fd, b, off)
		} else {
			n, err = unix.Write(o.fd, b)
		}
		if n > 0 {
			total += int64(n)
			off += int64(n)
		}
		if err != nil {
			return iobuf.IoResult[iobuf.ConstBuffer]{
				Buffers:     iobuf.Truncate(req.Buffers, total),
				Transferred: total,
			}, translateErrno(err)
		}
		if n < len(b) {
			return iobuf.IoResult[iobuf.ConstBuffer]{
				Buffers:     iobuf.Truncate(req.Buffers, total),
				Transferred: total,
			}, nil
		}
	}
	return iobuf.IoResult[iobuf.ConstBuffer]{Buffers: req.Buffers, Transferred: total}, nil
}

func (o *unixSyncOps) barrier(req iobuf.IoRequest[iobuf.ConstBuffer], kind BarrierKind) (iobuf.IoResult[iobuf.ConstBuffer], error) {
	var err error
	switch kind {
	case BarrierNoWaitDataOnly, BarrierWaitDataOnly:
		err = unix.Fdatasync(o.fd)
	default:
		err = unix.Fsync(o.fd)
	}
	if err != nil {
		return iobuf.IoResult[iobuf.ConstBuffer]{}, translateErrno(err)
	}
	return iobuf.IoResult[iobuf.ConstBuffer]{Buffers: req.Buffers, Transferred: iobuf.Len(req.Buffers)}, nil
}

func translateErrno(err error) error {
	switch err {
	case unix.EAGAIN:
		return ioerr.Wrap(ioerr.NotReady, "would block", err)
	case unix.EINVAL:
		return ioerr.Wrap(ioerr.InvalidArgument, "invalid argument", err)
	case unix.EPERM, unix.EACCES, unix.EBADF:
		return ioerr.Wrap(ioerr.NotPermitted, "not permitted", err)
	case unix.ENOSYS, unix.EOPNOTSUPP:
		return ioerr.Wrap(ioerr.NotSupported, "not supported", err)
	case unix.ECANCELED:
		return ioerr.Wrap(ioerr.OperationCanceled, "canceled", err)
	default:
		return ioerr.Wrap(ioerr.PlatformError, "platform error", err)
	}
}
