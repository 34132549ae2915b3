// © Copyright 2026, RBCFTools Authors
// SPDX-License-Identifier: MIT

package rbridge

import "context"

// Runtime is the embedded interpreter boundary. The bridge consumes exactly
// one entry point: a protected call that parses and evaluates a payload's
// source on the calling goroutine.
//
// The contract mirrors the interpreter's own crash-safe wrapper
// (R_ToplevelExec, for an embedded R session): ProtectedEval must return
// control to the caller even when evaluation aborts internally, reporting
// the abort as an error rather than unwinding through the dispatcher. The
// dispatcher additionally recovers panics and reports them as
// ProtectedCallAborted, so a misbehaving runtime still cannot take the
// owning goroutine down.
//
// ProtectedEval is only ever invoked on the owning goroutine, never
// concurrently, and never reentrantly.
//
// Returned values are converted by [Convert]; see its documentation for
// the recognized native shapes. Errors should be classified with
// [ParseErrorf] or [EvalErrorf] where the distinction is known; any other
// error is reported as an EvaluationError.
type Runtime interface {
	ProtectedEval(ctx context.Context, source string) (any, error)
}

// ParseErrorf builds the error a Runtime should return when the payload
// source fails to parse.
func ParseErrorf(format string, args ...any) error {
	return evalErrorf(CodeParse, format, args...)
}

// EvalErrorf builds the error a Runtime should return when evaluation fails.
func EvalErrorf(format string, args ...any) error {
	return evalErrorf(CodeEvaluation, format, args...)
}

// RuntimeFunc adapts a function to the Runtime interface.
type RuntimeFunc func(ctx context.Context, source string) (any, error)

func (f RuntimeFunc) ProtectedEval(ctx context.Context, source string) (any, error) {
	return f(ctx, source)
}
