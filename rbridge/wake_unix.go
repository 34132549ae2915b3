// © Copyright 2026, RBCFTools Authors
// SPDX-License-Identifier: MIT

//go:build unix

package rbridge

import (
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// PipeWaker signals readiness through a self-pipe. The write end is
// non-blocking so producers are never stalled by a full pipe (a full pipe
// already guarantees readability, which is all the contract requires), and
// the read end is non-blocking so Drain can discard every pending byte
// without stalling the owning goroutine.
//
// ReadFD exposes the read end for registration with the host environment's
// native idle loop (the R input-handler mechanism, in the original
// deployment): when the descriptor polls readable, the loop's callback
// should invoke Dispatcher.ProcessPending.
type PipeWaker struct {
	readFD  int
	writeFD int
	closed  atomic.Bool
}

// NewPipeWaker creates the pipe pair. Failure here is the one unrecoverable
// setup error in the package; it is surfaced at initialization, never
// per-call.
func NewPipeWaker() (*PipeWaker, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return nil, err
	}
	for _, fd := range fds {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			unix.Close(fds[0])
			unix.Close(fds[1])
			return nil, err
		}
	}
	return &PipeWaker{readFD: fds[0], writeFD: fds[1]}, nil
}

// ReadFD returns the readable descriptor to register with an event loop.
func (w *PipeWaker) ReadFD() int { return w.readFD }

// Notify writes one byte to the pipe. Errors (full pipe, closed pipe during
// shutdown) are deliberately ignored: the signal is advisory.
func (w *PipeWaker) Notify() {
	if w.closed.Load() {
		return
	}
	buf := [1]byte{'M'}
	_, _ = unix.Write(w.writeFD, buf[:])
}

// Drain reads and discards all currently-available bytes from the read end.
func (w *PipeWaker) Drain() {
	if w.closed.Load() {
		return
	}
	var buf [64]byte
	for {
		n, err := unix.Read(w.readFD, buf[:])
		if n <= 0 || err != nil {
			return
		}
	}
}

// Close closes both descriptors. Idempotent.
func (w *PipeWaker) Close() error {
	if !w.closed.CompareAndSwap(false, true) {
		return nil
	}
	err1 := unix.Close(w.readFD)
	err2 := unix.Close(w.writeFD)
	if err1 != nil {
		return err1
	}
	return err2
}
