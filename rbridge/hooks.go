// © Copyright 2026, RBCFTools Authors
// SPDX-License-Identifier: MIT

package rbridge

import (
	"context"
	"time"
)

// Dispatch origin string constants for DispatchInfo.Origin.
const (
	// DispatchQueued marks a request that crossed the hand-off channel from
	// a producer goroutine.
	DispatchQueued = "queued"
	// DispatchDirect marks a self-dispatched call executed synchronously on
	// the owning goroutine.
	DispatchDirect = "direct"
)

// DispatchHook provides observability callpoints around payload execution.
// OnDispatchStart runs on the owning goroutine immediately before the
// protected call; OnDispatchEnd runs after the result is built, before the
// producer is signalled. Implementations are never invoked concurrently
// (execution is serialized by construction) but must not call back into
// Submit.
type DispatchHook interface {
	OnDispatchStart(ctx context.Context, info DispatchInfo) (context.Context, HookToken)
	OnDispatchEnd(ctx context.Context, token HookToken, info DispatchInfo, stats *CallStatistics, err error)
}

// HookToken is an opaque value returned by OnDispatchStart and passed back
// to OnDispatchEnd. Only meaningful to the DispatchHook that created it.
type HookToken interface{}

// DispatchInfo carries per-dispatch metadata passed to hooks.
type DispatchInfo struct {
	Name      string // dispatcher name, for multi-interpreter processes
	RequestID string // identifier assigned at submission
	Origin    string // DispatchQueued or DispatchDirect
	Expect    Kind   // result shape requested by the caller
	SourceLen int    // payload source length in bytes
}

// CallStatistics holds per-dispatch measurements.
type CallStatistics struct {
	// QueueDepth is the backlog length observed when the dispatch cycle
	// picked the request up (0 for direct dispatch).
	QueueDepth int
	// QueueWait is the time the request spent enqueued (0 for direct).
	QueueWait time.Duration
	// ExecDuration is the time spent inside the protected call.
	ExecDuration time.Duration
	// ResultKind is the kind of the produced result.
	ResultKind Kind
	// ResultLen is the element count of the produced result.
	ResultLen int
}
