// © Copyright 2026, RBCFTools Authors
// SPDX-License-Identifier: MIT

package rbridge

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	defaultPollInterval  = 50 * time.Millisecond
	defaultSubmitTimeout = 30 * time.Second
)

// Dispatcher connects producer goroutines to the single goroutine owning the
// embedded runtime. Construct it with [New] on the owning goroutine; that
// goroutine is the only one permitted to execute payloads, whether through
// [Dispatcher.ProcessPending], [Dispatcher.Run], or the direct path of
// [Dispatcher.Submit].
type Dispatcher struct {
	runtime Runtime
	ch      *Channel
	waker   Waker
	hook    DispatchHook

	name     string
	ownerGID uint64

	// inCall is the reentrance guard: set for the duration of every
	// protected call. Only ever written by the owning goroutine.
	inCall atomic.Bool
	closed atomic.Bool

	pollInterval  time.Duration
	submitTimeout time.Duration
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithWaker installs the readiness signal used to nudge an external event
// loop. Defaults to [NoopWaker]; use [NewPipeWaker] when the owning
// goroutine idles in a descriptor-driven loop.
func WithWaker(w Waker) Option {
	return func(d *Dispatcher) { d.waker = w }
}

// WithName sets a dispatcher name surfaced through DispatchInfo, for
// processes hosting more than one interpreter.
func WithName(name string) Option {
	return func(d *Dispatcher) { d.name = name }
}

// WithDispatchHook registers a hook called around each payload execution.
func WithDispatchHook(hook DispatchHook) Option {
	return func(d *Dispatcher) { d.hook = hook }
}

// WithSubmitTimeout bounds how long a producer waits for its result before
// Submit reports TimedOut. Zero or negative means wait forever.
func WithSubmitTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) { d.submitTimeout = timeout }
}

// WithPollInterval sets the slice length of the producer's poll-and-recheck
// completion wait.
func WithPollInterval(interval time.Duration) Option {
	return func(d *Dispatcher) { d.pollInterval = interval }
}

// New creates a Dispatcher bound to the calling goroutine, which must be the
// goroutine that owns the embedded runtime (and should have called
// runtime.LockOSThread if the runtime is thread-affine). This is the only
// place owning identity is recorded.
//
// New never fails for per-call reasons; the only error is a broken waker
// supplied via WithWaker being nil-checked here rather than at first use.
func New(rt Runtime, opts ...Option) (*Dispatcher, error) {
	if rt == nil {
		return nil, errors.New("rbridge: runtime must not be nil")
	}
	d := &Dispatcher{
		runtime:       rt,
		ownerGID:      gid(),
		pollInterval:  defaultPollInterval,
		submitTimeout: defaultSubmitTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.waker == nil {
		d.waker = NoopWaker{}
	}
	d.ch = NewChannel(d.waker)
	return d, nil
}

// SetDispatchHook registers a hook that is called around each payload
// execution. Install hooks before producers start submitting.
func (d *Dispatcher) SetDispatchHook(hook DispatchHook) {
	d.hook = hook
}

// Name returns the dispatcher name, or empty string if not set.
func (d *Dispatcher) Name() string { return d.name }

// IsOwner reports whether the current goroutine is the owning goroutine.
// Cheap enough to call on every Submit.
func (d *Dispatcher) IsOwner() bool { return gid() == d.ownerGID }

// fdWaker is implemented by wakers that expose a pollable descriptor.
type fdWaker interface {
	ReadFD() int
}

// WakeFD returns the readable descriptor to register with the host event
// loop, or -1 if the configured waker has none.
func (d *Dispatcher) WakeFD() int {
	if fw, ok := d.waker.(fdWaker); ok {
		return fw.ReadFD()
	}
	return -1
}

// Submit executes a payload on the owning goroutine and returns its typed
// result. Callable from any goroutine:
//
//   - From the owning goroutine it first drains any backlog left by other
//     producers (so self-service never starves them), then executes the
//     payload synchronously.
//   - From any other goroutine it enqueues the request, wakes the owner,
//     and blocks on the request's completion up to the submit timeout.
//
// All failures — shutdown, timeout, reentrance, runtime aborts, parse and
// evaluation errors, shape mismatches — come back as an Error-kinded
// result; Submit never panics across the producer boundary.
func (d *Dispatcher) Submit(ctx context.Context, p Payload) TypedResult {
	if d == nil || d.runtime == nil {
		return ErrorResult(CodeNotInitialized, "dispatcher not initialized")
	}
	if d.closed.Load() {
		return ErrorResult(CodeClosed, "dispatcher is shut down")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	id := uuid.NewString()

	if d.IsOwner() {
		// Reentrant self-dispatch (a payload calling Submit from inside the
		// runtime) must be refused before touching the backlog: draining
		// here would bounce innocent queued requests off the guard.
		if d.inCall.Load() {
			return ErrorResult(CodeReentrance, "reentrant interpreter call not allowed")
		}
		d.processBatch(d.ch.drain())
		info := DispatchInfo{
			Name:      d.name,
			RequestID: id,
			Origin:    DispatchDirect,
			Expect:    p.Expect,
			SourceLen: len(p.Source),
		}
		return d.execute(ctx, info, p, &CallStatistics{})
	}

	req := newRequest(p, id)
	if err := d.ch.Send(req); err != nil {
		return ErrorResult(CodeClosed, "dispatcher is shut down")
	}
	res, err := req.await(ctx, d.pollInterval, d.submitTimeout)
	if err != nil {
		if errors.Is(err, ErrTimedOut) {
			return ErrorResult(CodeTimedOut,
				"no response from interpreter after %s", d.submitTimeout)
		}
		// Context cancellation: the producer withdrew; the request was
		// abandoned and will be skipped by the dispatcher.
		return ErrorResult(CodeTimedOut, "submission canceled: %v", err)
	}
	return res
}

// ProcessPending drains the wake signal and then the whole backlog,
// executing every pending request. It is the entry point for the host event
// loop's readiness callback and must run on the owning goroutine. Returns
// the number of requests processed.
func (d *Dispatcher) ProcessPending() int {
	if d == nil {
		return 0
	}
	// Discard stale readiness first so bytes written for the requests we
	// are about to drain do not trigger a spurious wake cycle later.
	d.waker.Drain()
	n := 0
	for {
		batch := d.ch.drain()
		if len(batch) == 0 {
			return n
		}
		n += d.processBatch(batch)
	}
}

// Run services the channel with blocking receives until ctx is canceled or
// the dispatcher is closed. It is the serving mode for owners that have no
// native event loop to register the waker with, and must run on the owning
// goroutine.
func (d *Dispatcher) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	for {
		req, err := d.ch.Receive(d.pollInterval)
		switch {
		case err == nil:
			d.processOne(req, d.ch.Len()+1)
		case errors.Is(err, ErrClosed):
			return nil
		case errors.Is(err, ErrTimedOut), errors.Is(err, ErrWouldBlock):
			// fall through to the ctx check
		default:
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// Close shuts the bridge down: no further sends succeed, blocked receivers
// wake with ErrClosed, and every still-queued request is completed with a
// Closed error so no producer has to wait out its full submit timeout.
// Idempotent.
func (d *Dispatcher) Close() error {
	if d == nil {
		return nil
	}
	if !d.closed.CompareAndSwap(false, true) {
		return nil
	}
	d.ch.Close()
	for _, req := range d.ch.drain() {
		if req.claim() {
			req.complete(ErrorResult(CodeClosed, "dispatcher shut down"))
		}
	}
	return d.waker.Close()
}

// processBatch executes a drained backlog in FIFO order.
func (d *Dispatcher) processBatch(batch []*Request) int {
	n := 0
	for i, req := range batch {
		if d.processOne(req, len(batch)-i) {
			n++
		}
	}
	return n
}

// processOne claims, executes, and completes one queued request on the
// owning goroutine. Abandoned requests are skipped without execution.
func (d *Dispatcher) processOne(req *Request, depth int) bool {
	if !req.claim() {
		slog.Debug("rbridge: skipping abandoned request", "request_id", req.id)
		return false
	}
	stats := &CallStatistics{
		QueueDepth: depth,
		QueueWait:  time.Since(req.enqueued),
	}
	info := DispatchInfo{
		Name:      d.name,
		RequestID: req.id,
		Origin:    DispatchQueued,
		Expect:    req.payload.Expect,
		SourceLen: len(req.payload.Source),
	}
	res := d.execute(context.Background(), info, req.payload, stats)
	req.complete(res)
	return true
}

// execute wraps one protected call with hook callpoints and timing.
func (d *Dispatcher) execute(ctx context.Context, info DispatchInfo, p Payload, stats *CallStatistics) TypedResult {
	var hookToken HookToken
	var hookActive bool
	if d.hook != nil {
		func() {
			defer func() {
				if rv := recover(); rv != nil {
					slog.Error("dispatch hook start panic", "err", rv)
				}
			}()
			var hookCtx context.Context
			hookCtx, hookToken = d.hook.OnDispatchStart(ctx, info)
			if hookCtx != nil {
				ctx = hookCtx
			}
			hookActive = true
		}()
	}

	start := time.Now()
	res := d.runProtected(ctx, p)
	stats.ExecDuration = time.Since(start)
	stats.ResultKind = res.Kind
	stats.ResultLen = res.Len()

	if hookActive {
		func() {
			defer func() {
				if rv := recover(); rv != nil {
					slog.Error("dispatch hook end panic", "err", rv)
				}
			}()
			d.hook.OnDispatchEnd(ctx, hookToken, info, stats, res.AsError())
		}()
	}
	return res
}

// runProtected sets the reentrance guard, enters the runtime's crash-safe
// entry point, and converts the outcome to the expected shape. A panic out
// of the runtime (which its contract forbids, but the bridge survives
// anyway) is reported as ProtectedCallAborted.
func (d *Dispatcher) runProtected(ctx context.Context, p Payload) (res TypedResult) {
	if !d.inCall.CompareAndSwap(false, true) {
		return ErrorResult(CodeReentrance, "reentrant interpreter call not allowed")
	}
	defer d.inCall.Store(false)
	defer func() {
		if rv := recover(); rv != nil {
			slog.Error("rbridge: protected call panicked", "err", rv)
			res = ErrorResult(CodeProtectedCallAborted, "protected call aborted: %v", rv)
		}
	}()

	v, err := d.runtime.ProtectedEval(ctx, p.Source)
	if err != nil {
		return errResult(CodeEvaluation, err)
	}
	return Convert(v, p.Expect)
}

// gid returns the current goroutine's id, parsed from the stack header
// ("goroutine 123 [running]:"). The standard library deliberately hides
// goroutine identity, but owning-goroutine detection needs nothing more
// than an equality check, and the header format has been stable since Go 1.
func gid() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	const prefix = len("goroutine ")
	var id uint64
	for _, c := range buf[prefix:n] {
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + uint64(c-'0')
	}
	return id
}
