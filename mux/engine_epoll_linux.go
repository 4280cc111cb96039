//go:build linux

// File: mux/engine_epoll_linux.go
// Author: momentics <momentics@gmail.com>
//
// Readiness-based engine over Linux epoll(7). Wake uses an eventfd, the
// same primitive the pack's eventloop poller uses for its wake socket.

package mux

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/2217936322/llfio/handle"
	"github.com/2217936322/llfio/ioerr"
)

// platformEngineFactories offers io_uring only for single-thread mode: its
// submission/completion rings are not safe to share across OS threads
// without additional locking this engine does not implement. Multi-thread
// configurations only see epoll.
func platformEngineFactories(cfg Config) []engineFactory {
	if cfg.Threads <= 1 {
		return []engineFactory{
			{engineName: "io_uring", new: func(cfg Config) (ioEngine, error) { return newIOUringEngine(cfg) }},
			{engineName: "epoll", new: func(cfg Config) (ioEngine, error) { return newEpollEngine(cfg) }},
		}
	}
	return []engineFactory{
		{engineName: "epoll", new: func(cfg Config) (ioEngine, error) { return newEpollEngine(cfg) }},
	}
}

type epollEngine struct {
	epfd   int
	wakeFD int
}

func newEpollEngine(cfg Config) (ioEngine, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, ioerr.Wrap(ioerr.PlatformError, "epoll_create1", err)
	}
	wfd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		unix.Close(epfd)
		return nil, ioerr.Wrap(ioerr.PlatformError, "eventfd", err)
	}
	ev := &epollEngine{epfd: epfd, wakeFD: wfd}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wfd, &unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wfd)}); err != nil {
		unix.Close(epfd)
		unix.Close(wfd)
		return nil, ioerr.Wrap(ioerr.PlatformError, "epoll_ctl(wake)", err)
	}
	return ev, nil
}

func (e *epollEngine) open() error  { return nil }
func (e *epollEngine) close() error { unix.Close(e.wakeFD); return unix.Close(e.epfd) }
func (e *epollEngine) name() string { return "epoll" }

func (e *epollEngine) isReadinessBased() bool { return true }

func (e *epollEngine) registerFD(fd handle.FD) error {
	ev := &unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLOUT, Fd: int32(fd)}
	return unix.EpollCtl(e.epfd, unix.EPOLL_CTL_ADD, int(fd), ev)
}

func (e *epollEngine) deregisterFD(fd handle.FD) error {
	return unix.EpollCtl(e.epfd, unix.EPOLL_CTL_DEL, int(fd), nil)
}

// submit arms no new interest beyond registerFD's level-triggered watch;
// readiness engines rely on repeated wait() calls to notice the fd is
// still ready until the backend has drained it.
func (e *epollEngine) submit(conn *OperationConnection) error { return nil }

// cancel is a no-op: epoll only ever tracks readiness interest, never a
// real in-flight syscall, so there is nothing to ask the kernel to abandon.
func (e *epollEngine) cancel(conn *OperationConnection) error { return nil }

func (e *epollEngine) wake() error {
	buf := [8]byte{1, 0, 0, 0, 0, 0, 0, 0}
	_, err := unix.Write(e.wakeFD, buf[:])
	return err
}

func (e *epollEngine) poll(timeout time.Duration, out []engineCompletion) (int, error) {
	ms := -1
	if timeout >= 0 {
		ms = int(timeout / time.Millisecond)
	}
	raw := make([]unix.EpollEvent, cap(out))
	if len(raw) == 0 {
		raw = make([]unix.EpollEvent, 64)
	}
	n, err := unix.EpollWait(e.epfd, raw, ms)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, ioerr.Wrap(ioerr.PlatformError, "epoll_wait", err)
	}
	count := 0
	for i := 0; i < n; i++ {
		fd := handle.FD(raw[i].Fd)
		if int(fd) == e.wakeFD {
			var buf [8]byte
			unix.Read(e.wakeFD, buf[:])
			continue
		}
		comp := engineCompletion{
			fd:       fd,
			readable: raw[i].Events&(unix.EPOLLIN|unix.EPOLLHUP|unix.EPOLLERR) != 0,
			writable: raw[i].Events&(unix.EPOLLOUT|unix.EPOLLHUP|unix.EPOLLERR) != 0,
		}
		if count < len(out) {
			out[count] = comp
		} else {
			out = append(out, comp)
		}
		count++
	}
	return count, nil
}
