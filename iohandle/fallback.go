// File: iohandle/fallback.go
// Author: momentics <momentics@gmail.com>
//
// syncOps is the synchronous fallback used by a Handle with no attached
// multiplexer. Platform-specific implementations live in fallback_unix.go
// and fallback_windows.go.

package iohandle

import (
	"github.com/2217936322/llfio/handle"
	"github.com/2217936322/llfio/iobuf"
)

type syncOps interface {
	read(req iobuf.IoRequest[iobuf.Buffer]) (iobuf.IoResult[iobuf.Buffer], error)
	write(req iobuf.IoRequest[iobuf.ConstBuffer]) (iobuf.IoResult[iobuf.ConstBuffer], error)
	barrier(req iobuf.IoRequest[iobuf.ConstBuffer], kind BarrierKind) (iobuf.IoResult[iobuf.ConstBuffer], error)
}

// syncOpsFor is implemented per-platform; see fallback_unix.go /
// fallback_windows.go.
func syncOpsFor(nh handle.NativeHandle) syncOps {
	return newPlatformSyncOps(nh)
}
