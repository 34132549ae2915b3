// © Copyright 2026, RBCFTools Authors
// SPDX-License-Identifier: MIT

package rbridge

import "fmt"

// Kind identifies the shape of a [TypedResult].
type Kind int

const (
	// KindNull indicates the payload produced no value at all.
	KindNull Kind = iota
	KindBool
	KindInt
	KindFloat
	KindString
	KindBytes
	KindBoolVector
	KindIntVector
	KindFloatVector
	KindStringVector
	// KindError indicates a dispatch or evaluation failure; Err is set.
	KindError

	// KindAny is only valid as an expected kind passed to [Convert] and
	// [Payload.Expect]: it accepts whatever shape the runtime produced.
	// A stored TypedResult never carries KindAny.
	KindAny Kind = -1
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindBool:
		return "bool"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindBytes:
		return "bytes"
	case KindBoolVector:
		return "bool_vector"
	case KindIntVector:
		return "int_vector"
	case KindFloatVector:
		return "float_vector"
	case KindStringVector:
		return "string_vector"
	case KindError:
		return "error"
	case KindAny:
		return "any"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// IsVector reports whether k is one of the vector kinds.
func (k Kind) IsVector() bool {
	switch k {
	case KindBoolVector, KindIntVector, KindFloatVector, KindStringVector:
		return true
	}
	return false
}

// NAValue marks a present-but-missing scalar produced by the runtime. It is
// distinct from a nil native value (which converts to KindNull): an NAValue
// converts to a result with the declared kind and IsNA set.
type NAValue struct {
	Kind Kind
}

// TypedResult is the tagged-union outcome of a dispatched payload. Exactly
// the field selected by Kind is meaningful; IsNA is orthogonal to the tag
// (a scalar can be present-but-missing without being Null).
//
// Vector payloads are exclusively owned by the result: [Convert] copies
// source slices, so a result never aliases runtime-owned memory.
type TypedResult struct {
	Kind Kind
	IsNA bool

	Bool  bool
	Int   int64
	Float float64
	Str   string
	Bytes []byte

	Bools  []bool
	Ints   []int64
	Floats []float64
	Strs   []string
	// Valid is an optional per-element validity mask for vector kinds;
	// nil means every element is present. Valid[i] == false marks element
	// i as NA.
	Valid []bool

	Err *EvalError
}

// Len returns the element count of a vector result, or 1 for scalars and 0
// for Null/Error.
func (r *TypedResult) Len() int {
	switch r.Kind {
	case KindBoolVector:
		return len(r.Bools)
	case KindIntVector:
		return len(r.Ints)
	case KindFloatVector:
		return len(r.Floats)
	case KindStringVector:
		return len(r.Strs)
	case KindNull, KindError:
		return 0
	default:
		return 1
	}
}

// IsError reports whether the result carries an error.
func (r *TypedResult) IsError() bool { return r.Kind == KindError }

// AsError returns the result's error, or nil for non-error results.
func (r *TypedResult) AsError() error {
	if r.Kind != KindError || r.Err == nil {
		return nil
	}
	return r.Err
}

// NullResult returns a result indicating the payload produced no value.
func NullResult() TypedResult { return TypedResult{Kind: KindNull} }

// NAResult returns a present-but-missing scalar of the given kind.
func NAResult(kind Kind) TypedResult { return TypedResult{Kind: kind, IsNA: true} }

// BoolResult returns a scalar boolean result.
func BoolResult(v bool) TypedResult { return TypedResult{Kind: KindBool, Bool: v} }

// IntResult returns a scalar integer result.
func IntResult(v int64) TypedResult { return TypedResult{Kind: KindInt, Int: v} }

// FloatResult returns a scalar floating-point result.
func FloatResult(v float64) TypedResult { return TypedResult{Kind: KindFloat, Float: v} }

// StringResult returns a scalar string result.
func StringResult(v string) TypedResult { return TypedResult{Kind: KindString, Str: v} }

// BytesResult returns a raw-bytes result. The slice is copied.
func BytesResult(v []byte) TypedResult {
	return TypedResult{Kind: KindBytes, Bytes: append([]byte(nil), v...)}
}

// ErrorResult returns an Error-kinded result with the given code and message.
func ErrorResult(code ErrorCode, format string, args ...any) TypedResult {
	return TypedResult{Kind: KindError, Err: evalErrorf(code, format, args...)}
}

// errResult wraps an existing error into an Error-kinded result, preserving
// an *EvalError's code when the chain carries one.
func errResult(fallback ErrorCode, err error) TypedResult {
	if ee, ok := err.(*EvalError); ok {
		return TypedResult{Kind: KindError, Err: ee}
	}
	return ErrorResult(fallback, "%v", err)
}

// Convert turns a native value produced by the embedded runtime into a
// TypedResult of the expected kind. The call site knows what shape it wants;
// if the produced value's actual shape does not match, the conversion yields
// a TypeMismatch error rather than silently coercing. KindAny accepts the
// actual shape.
//
// Recognized native values: nil (Null), bool, int/int32/int64, float32/
// float64, string, []byte, []bool, []int/[]int32/[]int64, []float64,
// []string, [NAValue] (missing scalar), and TypedResult/*TypedResult
// (passed through, for runtimes that build results directly, e.g. to carry
// per-element validity). Vector slices are copied.
func Convert(v any, want Kind) TypedResult {
	r, err := convertNative(v)
	if err != nil {
		return errResult(CodeTypeMismatch, err)
	}
	if want == KindAny || r.Kind == KindError || r.Kind == KindNull {
		return r
	}
	if r.Kind != want {
		return ErrorResult(CodeTypeMismatch,
			"expected %s result, runtime produced %s", want, r.Kind)
	}
	return r
}

// convertNative maps a native value onto the tagged union without regard to
// the expected kind.
func convertNative(v any) (TypedResult, error) {
	switch val := v.(type) {
	case nil:
		return NullResult(), nil
	case TypedResult:
		return copyResult(val), nil
	case *TypedResult:
		if val == nil {
			return NullResult(), nil
		}
		return copyResult(*val), nil
	case NAValue:
		if val.Kind == KindNull || val.Kind == KindError || val.Kind == KindAny {
			return TypedResult{}, evalErrorf(CodeTypeMismatch, "NA value with invalid kind %s", val.Kind)
		}
		return NAResult(val.Kind), nil
	case bool:
		return BoolResult(val), nil
	case int:
		return IntResult(int64(val)), nil
	case int32:
		return IntResult(int64(val)), nil
	case int64:
		return IntResult(val), nil
	case float32:
		return FloatResult(float64(val)), nil
	case float64:
		return FloatResult(val), nil
	case string:
		return StringResult(val), nil
	case []byte:
		return BytesResult(val), nil
	case []bool:
		return TypedResult{Kind: KindBoolVector, Bools: append([]bool(nil), val...)}, nil
	case []int:
		out := make([]int64, len(val))
		for i, x := range val {
			out[i] = int64(x)
		}
		return TypedResult{Kind: KindIntVector, Ints: out}, nil
	case []int32:
		out := make([]int64, len(val))
		for i, x := range val {
			out[i] = int64(x)
		}
		return TypedResult{Kind: KindIntVector, Ints: out}, nil
	case []int64:
		return TypedResult{Kind: KindIntVector, Ints: append([]int64(nil), val...)}, nil
	case []float64:
		return TypedResult{Kind: KindFloatVector, Floats: append([]float64(nil), val...)}, nil
	case []string:
		return TypedResult{Kind: KindStringVector, Strs: append([]string(nil), val...)}, nil
	case error:
		return TypedResult{}, evalErrorf(CodeEvaluation, "%v", val)
	default:
		return TypedResult{}, evalErrorf(CodeTypeMismatch, "unsupported runtime value type %T", v)
	}
}

// copyResult deep-copies any slice payloads so the caller owns the result.
func copyResult(r TypedResult) TypedResult {
	out := r
	if r.Bytes != nil {
		out.Bytes = append([]byte(nil), r.Bytes...)
	}
	if r.Bools != nil {
		out.Bools = append([]bool(nil), r.Bools...)
	}
	if r.Ints != nil {
		out.Ints = append([]int64(nil), r.Ints...)
	}
	if r.Floats != nil {
		out.Floats = append([]float64(nil), r.Floats...)
	}
	if r.Strs != nil {
		out.Strs = append([]string(nil), r.Strs...)
	}
	if r.Valid != nil {
		out.Valid = append([]bool(nil), r.Valid...)
	}
	return out
}
