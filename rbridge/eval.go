// © Copyright 2026, RBCFTools Authors
// SPDX-License-Identifier: MIT

package rbridge

import "context"

// Eval submits source with no shape expectation and returns the raw typed
// result, including Error results. The typed helpers below are thin wrappers
// for call sites that want one specific shape.
func (d *Dispatcher) Eval(ctx context.Context, source string) TypedResult {
	return d.Submit(ctx, Payload{Source: source, Expect: KindAny})
}

// EvalBool evaluates source expecting a boolean scalar. The second return is
// true when the value is NA or null.
func (d *Dispatcher) EvalBool(ctx context.Context, source string) (bool, bool, error) {
	res := d.Submit(ctx, Payload{Source: source, Expect: KindBool})
	if err := res.AsError(); err != nil {
		return false, false, err
	}
	if res.IsNA || res.Kind == KindNull {
		return false, true, nil
	}
	return res.Bool, false, nil
}

// EvalInt evaluates source expecting an integer scalar.
func (d *Dispatcher) EvalInt(ctx context.Context, source string) (int64, bool, error) {
	res := d.Submit(ctx, Payload{Source: source, Expect: KindInt})
	if err := res.AsError(); err != nil {
		return 0, false, err
	}
	if res.IsNA || res.Kind == KindNull {
		return 0, true, nil
	}
	return res.Int, false, nil
}

// EvalFloat evaluates source expecting a floating-point scalar.
func (d *Dispatcher) EvalFloat(ctx context.Context, source string) (float64, bool, error) {
	res := d.Submit(ctx, Payload{Source: source, Expect: KindFloat})
	if err := res.AsError(); err != nil {
		return 0, false, err
	}
	if res.IsNA || res.Kind == KindNull {
		return 0, true, nil
	}
	return res.Float, false, nil
}

// EvalString evaluates source expecting a string scalar.
func (d *Dispatcher) EvalString(ctx context.Context, source string) (string, bool, error) {
	res := d.Submit(ctx, Payload{Source: source, Expect: KindString})
	if err := res.AsError(); err != nil {
		return "", false, err
	}
	if res.IsNA || res.Kind == KindNull {
		return "", true, nil
	}
	return res.Str, false, nil
}

// EvalBytes evaluates source expecting a raw byte blob. NA and null both
// come back as a nil slice with na set.
func (d *Dispatcher) EvalBytes(ctx context.Context, source string) ([]byte, bool, error) {
	res := d.Submit(ctx, Payload{Source: source, Expect: KindBytes})
	if err := res.AsError(); err != nil {
		return nil, false, err
	}
	if res.IsNA || res.Kind == KindNull {
		return nil, true, nil
	}
	return res.Bytes, false, nil
}

// EvalBoolVector evaluates source expecting a boolean vector. The validity
// mask is nil when every element is present.
func (d *Dispatcher) EvalBoolVector(ctx context.Context, source string) ([]bool, []bool, error) {
	res := d.Submit(ctx, Payload{Source: source, Expect: KindBoolVector})
	if err := res.AsError(); err != nil {
		return nil, nil, err
	}
	return res.Bools, res.Valid, nil
}

// EvalIntVector evaluates source expecting an integer vector.
func (d *Dispatcher) EvalIntVector(ctx context.Context, source string) ([]int64, []bool, error) {
	res := d.Submit(ctx, Payload{Source: source, Expect: KindIntVector})
	if err := res.AsError(); err != nil {
		return nil, nil, err
	}
	return res.Ints, res.Valid, nil
}

// EvalFloatVector evaluates source expecting a floating-point vector.
func (d *Dispatcher) EvalFloatVector(ctx context.Context, source string) ([]float64, []bool, error) {
	res := d.Submit(ctx, Payload{Source: source, Expect: KindFloatVector})
	if err := res.AsError(); err != nil {
		return nil, nil, err
	}
	return res.Floats, res.Valid, nil
}

// EvalStringVector evaluates source expecting a string vector.
func (d *Dispatcher) EvalStringVector(ctx context.Context, source string) ([]string, []bool, error) {
	res := d.Submit(ctx, Payload{Source: source, Expect: KindStringVector})
	if err := res.AsError(); err != nil {
		return nil, nil, err
	}
	return res.Strs, res.Valid, nil
}
