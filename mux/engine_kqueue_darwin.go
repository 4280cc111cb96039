//go:build darwin

// File: mux/engine_kqueue_darwin.go
// Author: momentics <momentics@gmail.com>
//
// Readiness-based engine over BSD kqueue(2). Wake uses a dedicated
// EVFILT_USER trigger, the kqueue analogue of the epoll engine's eventfd.

package mux

import (
	"time"

	"golang.org/x/sys/unix"

	"github.com/2217936322/llfio/handle"
	"github.com/2217936322/llfio/ioerr"
)

func platformEngineFactories(cfg Config) []engineFactory {
	return []engineFactory{
		{engineName: "kqueue", new: func(cfg Config) (ioEngine, error) { return newKqueueEngine(cfg) }},
	}
}

const wakeIdent = 1

type kqueueEngine struct {
	kq int
}

func newKqueueEngine(cfg Config) (ioEngine, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, ioerr.Wrap(ioerr.PlatformError, "kqueue", err)
	}
	e := &kqueueEngine{kq: kq}
	wakeEvents := []unix.Kevent_t{{
		Ident:  wakeIdent,
		Filter: unix.EVFILT_USER,
		Flags:  unix.EV_ADD | unix.EV_CLEAR,
	}}
	if _, err := unix.Kevent(kq, wakeEvents, nil, nil); err != nil {
		unix.Close(kq)
		return nil, ioerr.Wrap(ioerr.PlatformError, "kevent(wake add)", err)
	}
	return e, nil
}

func (e *kqueueEngine) open() error        { return nil }
func (e *kqueueEngine) close() error       { return unix.Close(e.kq) }
func (e *kqueueEngine) name() string       { return "kqueue" }
func (e *kqueueEngine) isReadinessBased() bool { return true }

func (e *kqueueEngine) registerFD(fd handle.FD) error {
	changes := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_ADD | unix.EV_CLEAR},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_ADD | unix.EV_CLEAR},
	}
	_, err := unix.Kevent(e.kq, changes, nil, nil)
	return err
}

func (e *kqueueEngine) deregisterFD(fd handle.FD) error {
	changes := []unix.Kevent_t{
		{Ident: uint64(fd), Filter: unix.EVFILT_READ, Flags: unix.EV_DELETE},
		{Ident: uint64(fd), Filter: unix.EVFILT_WRITE, Flags: unix.EV_DELETE},
	}
	_, err := unix.Kevent(e.kq, changes, nil, nil)
	return err
}

func (e *kqueueEngine) submit(conn *OperationConnection) error { return nil }

// cancel is a no-op: kqueue only ever tracks readiness interest, never a
// real in-flight syscall, so there is nothing to ask the kernel to abandon.
func (e *kqueueEngine) cancel(conn *OperationConnection) error { return nil }

func (e *kqueueEngine) wake() error {
	trigger := []unix.Kevent_t{{Ident: wakeIdent, Filter: unix.EVFILT_USER, Fflags: unix.NOTE_TRIGGER}}
	_, err := unix.Kevent(e.kq, trigger, nil, nil)
	return err
}

func (e *kqueueEngine) poll(timeout time.Duration, out []engineCompletion) (int, error) {
	raw := make([]unix.Kevent_t, cap(out))
	if len(raw) == 0 {
		raw = make([]unix.Kevent_t, 64)
	}
	var ts *unix.Timespec
	if timeout >= 0 {
		t := unix.NsecToTimespec(int64(timeout))
		ts = &t
	}
	n, err := unix.Kevent(e.kq, nil, raw, ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, ioerr.Wrap(ioerr.PlatformError, "kevent(wait)", err)
	}
	count := 0
	for i := 0; i < n; i++ {
		kv := raw[i]
		if kv.Filter == unix.EVFILT_USER && kv.Ident == wakeIdent {
			continue
		}
		comp := engineCompletion{
			fd:       handle.FD(kv.Ident),
			readable: kv.Filter == unix.EVFILT_READ,
			writable: kv.Filter == unix.EVFILT_WRITE,
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
