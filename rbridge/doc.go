// © Copyright 2026, RBCFTools Authors
// SPDX-License-Identifier: MIT

// Package rbridge implements the thread-safe call bridge between the worker
// threads of a host analytical engine and a single-threaded, non-reentrant
// embedded interpreter.
//
// The embedded interpreter (an R session, in the original deployment) may
// only be entered from the one goroutine that owns it, while the host engine
// evaluates queries on an arbitrary number of worker threads. rbridge
// provides the rendezvous: workers build a [Payload], hand it to
// [Dispatcher.Submit], and block until the owning goroutine has executed it
// and produced a [TypedResult]. The owning goroutine itself may be idle
// inside the interpreter's native event loop; an advisory [Waker] (a
// non-blocking pipe pair on Unix) lets that loop discover pending work
// without polling.
//
// # Dispatch paths
//
// Two paths exist, selected automatically by [Dispatcher.Submit]:
//
//   - Producer path: the caller is not the owning goroutine. The request is
//     enqueued on the hand-off [Channel] (never blocking), the waker is
//     notified, and the caller waits on the request's completion with a
//     bounded poll-and-recheck loop so a wedged interpreter surfaces as a
//     TimedOut error instead of a hang.
//   - Direct path: the caller is the owning goroutine. Any backlog left by
//     other producers is drained first, then the payload executes
//     synchronously. No completion primitive is involved.
//
// Payload execution is strictly serialized. A reentrance guard rejects
// nested entry into the interpreter (a payload that calls Submit again on
// the owning goroutine receives a Reentrance error result rather than a
// recursive interpreter entry).
//
// # Results
//
// A [TypedResult] is a tagged union over the scalar and vector shapes the
// interpreter can produce, plus an error state. Missing values ("NA") are
// orthogonal to the tag: a result can be present-but-missing without being
// Null. Conversion from the runtime's native value is parameterized by the
// expected [Kind]; a shape mismatch is reported as a TypeMismatch error,
// never coerced.
//
// The engine-facing surface is columnar: [ColumnOf] and [AppendResult]
// materialize results into Arrow arrays with NA mapped to null validity, and
// [MarshalIPC] encodes a single result as a one-row Arrow IPC batch with
// rbridge.* custom metadata.
//
// # Errors
//
// Dispatch and payload failures are always returned to the submitting
// caller as an Error-kinded TypedResult; they never cross the
// producer/consumer boundary as panics, so one bad payload cannot take down
// an unrelated worker. Only waker construction failure is fatal, and it is
// reported by [NewPipeWaker] at initialization time.
package rbridge
