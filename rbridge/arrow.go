// © Copyright 2026, RBCFTools Authors
// SPDX-License-Identifier: MIT

package rbridge

import (
	"bytes"
	"fmt"
	"io"
	"strconv"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
)

// Metadata keys attached to interchange batches.
const (
	MetaKind         = "rbridge.kind"
	MetaIsNA         = "rbridge.is_na"
	MetaRequestID    = "rbridge.request_id"
	MetaErrorCode    = "rbridge.error_code"
	MetaErrorMessage = "rbridge.error_message"
)

// ArrowType maps a result kind to the Arrow type its column uses. Null,
// Error, and Any have no column representation and return nil.
func ArrowType(k Kind) arrow.DataType {
	switch k {
	case KindBool:
		return arrow.FixedWidthTypes.Boolean
	case KindInt:
		return arrow.PrimitiveTypes.Int64
	case KindFloat:
		return arrow.PrimitiveTypes.Float64
	case KindString:
		return arrow.BinaryTypes.String
	case KindBytes:
		return arrow.BinaryTypes.Binary
	case KindBoolVector:
		return arrow.ListOf(arrow.FixedWidthTypes.Boolean)
	case KindIntVector:
		return arrow.ListOf(arrow.PrimitiveTypes.Int64)
	case KindFloatVector:
		return arrow.ListOf(arrow.PrimitiveTypes.Float64)
	case KindStringVector:
		return arrow.ListOf(arrow.BinaryTypes.String)
	default:
		return nil
	}
}

// AppendResult appends one result to a builder of the matching Arrow type.
// NA, Null, and Error results all become a null slot; the distinction
// travels in batch metadata, not in the column.
func AppendResult(b array.Builder, res TypedResult) error {
	if res.IsNA || res.Kind == KindNull || res.Kind == KindError {
		b.AppendNull()
		return nil
	}
	switch res.Kind {
	case KindBool:
		b.(*array.BooleanBuilder).Append(res.Bool)
	case KindInt:
		b.(*array.Int64Builder).Append(res.Int)
	case KindFloat:
		b.(*array.Float64Builder).Append(res.Float)
	case KindString:
		b.(*array.StringBuilder).Append(res.Str)
	case KindBytes:
		b.(*array.BinaryBuilder).Append(res.Bytes)
	case KindBoolVector:
		lb := b.(*array.ListBuilder)
		lb.Append(true)
		vb := lb.ValueBuilder().(*array.BooleanBuilder)
		for i, v := range res.Bools {
			if !validAt(res.Valid, i) {
				vb.AppendNull()
				continue
			}
			vb.Append(v)
		}
	case KindIntVector:
		lb := b.(*array.ListBuilder)
		lb.Append(true)
		vb := lb.ValueBuilder().(*array.Int64Builder)
		for i, v := range res.Ints {
			if !validAt(res.Valid, i) {
				vb.AppendNull()
				continue
			}
			vb.Append(v)
		}
	case KindFloatVector:
		lb := b.(*array.ListBuilder)
		lb.Append(true)
		vb := lb.ValueBuilder().(*array.Float64Builder)
		for i, v := range res.Floats {
			if !validAt(res.Valid, i) {
				vb.AppendNull()
				continue
			}
			vb.Append(v)
		}
	case KindStringVector:
		lb := b.(*array.ListBuilder)
		lb.Append(true)
		vb := lb.ValueBuilder().(*array.StringBuilder)
		for i, v := range res.Strs {
			if !validAt(res.Valid, i) {
				vb.AppendNull()
				continue
			}
			vb.Append(v)
		}
	default:
		return fmt.Errorf("rbridge: no Arrow representation for kind %s", res.Kind)
	}
	return nil
}

// validAt treats a nil mask as all-present.
func validAt(valid []bool, i int) bool {
	return valid == nil || (i < len(valid) && valid[i])
}

// ColumnOf builds a column from per-row results, one slot per result. This
// is the output path of a vectorized caller: submit a payload per row,
// collect the results, emit one Arrow array. Error results become null
// slots; callers that need per-row error detail should inspect the results
// before building.
func ColumnOf(mem memory.Allocator, results []TypedResult, expect Kind) (arrow.Array, error) {
	dt := ArrowType(expect)
	if dt == nil {
		return nil, fmt.Errorf("rbridge: no Arrow representation for kind %s", expect)
	}
	b := array.NewBuilder(mem, dt)
	defer b.Release()
	for i, res := range results {
		if err := AppendResult(b, res); err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
	}
	return b.NewArray(), nil
}

// MarshalIPC encodes a single result as a one-row Arrow IPC stream. The
// kind, NA flag, request id, and any error travel in the batch custom
// metadata; the value travels in a single column named "value". Error and
// Null results produce a zero-field schema. The payload is zstd-compressed.
func MarshalIPC(res TypedResult, requestID string) ([]byte, error) {
	mem := memory.NewGoAllocator()

	keys := []string{MetaKind, MetaIsNA}
	vals := []string{res.Kind.String(), strconv.FormatBool(res.IsNA)}
	if requestID != "" {
		keys = append(keys, MetaRequestID)
		vals = append(vals, requestID)
	}
	if res.Kind == KindError {
		ev := res.Err
		keys = append(keys, MetaErrorCode, MetaErrorMessage)
		vals = append(vals, string(ev.Code), ev.Message)
	}
	meta := arrow.NewMetadata(keys, vals)

	var schema *arrow.Schema
	var cols []arrow.Array
	if dt := ArrowType(res.Kind); dt != nil && !res.IsNA {
		schema = arrow.NewSchema([]arrow.Field{{Name: "value", Type: dt}}, nil)
		b := array.NewBuilder(mem, dt)
		if err := AppendResult(b, res); err != nil {
			b.Release()
			return nil, err
		}
		arr := b.NewArray()
		b.Release()
		defer arr.Release()
		cols = []arrow.Array{arr}
	} else {
		schema = arrow.NewSchema(nil, nil)
	}

	numRows := int64(0)
	if len(cols) > 0 {
		numRows = 1
	}
	batch := array.NewRecordBatchWithMetadata(schema, cols, numRows, meta)
	defer batch.Release()

	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(schema), ipc.WithZstd())
	if err := w.Write(batch); err != nil {
		return nil, fmt.Errorf("writing result batch: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalIPC decodes a stream produced by MarshalIPC. The returned string
// is the request id carried in the batch metadata, if any. An Error-kinded
// result decodes back into an Error-kinded result, not into the second
// error return, which is reserved for malformed streams.
func UnmarshalIPC(data []byte) (TypedResult, string, error) {
	reader, err := ipc.NewReader(bytes.NewReader(data))
	if err != nil {
		return TypedResult{}, "", fmt.Errorf("reading result IPC stream: %w", err)
	}
	defer reader.Release()

	if !reader.Next() {
		if err := reader.Err(); err != nil {
			return TypedResult{}, "", fmt.Errorf("reading result batch: %w", err)
		}
		return TypedResult{}, "", io.EOF
	}
	batch := reader.RecordBatch()

	var meta arrow.Metadata
	if rb, ok := batch.(arrow.RecordBatchWithMetadata); ok {
		meta = rb.Metadata()
	}
	kindName, ok := meta.GetValue(MetaKind)
	if !ok {
		return TypedResult{}, "", fmt.Errorf("missing %q in result batch custom_metadata", MetaKind)
	}
	requestID, _ := meta.GetValue(MetaRequestID)

	kind, err := kindFromString(kindName)
	if err != nil {
		return TypedResult{}, requestID, err
	}

	if kind == KindError {
		code, _ := meta.GetValue(MetaErrorCode)
		msg, _ := meta.GetValue(MetaErrorMessage)
		return ErrorResult(ErrorCode(code), "%s", msg), requestID, nil
	}
	if na, _ := meta.GetValue(MetaIsNA); na == "true" {
		return NAResult(kind), requestID, nil
	}
	if kind == KindNull {
		return NullResult(), requestID, nil
	}

	if batch.Schema().NumFields() != 1 || batch.NumRows() != 1 {
		return TypedResult{}, requestID, fmt.Errorf(
			"expected 1 column x 1 row in result batch, got %d x %d",
			batch.Schema().NumFields(), batch.NumRows())
	}
	res, err := resultFromColumn(batch.Column(0), kind)
	return res, requestID, err
}

func kindFromString(s string) (Kind, error) {
	for k := KindNull; k <= KindError; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return KindNull, fmt.Errorf("unknown result kind %q", s)
}

// resultFromColumn rebuilds a result from the single value slot of a
// one-row column.
func resultFromColumn(col arrow.Array, kind Kind) (TypedResult, error) {
	if col.IsNull(0) {
		return NAResult(kind), nil
	}
	switch kind {
	case KindBool:
		return BoolResult(col.(*array.Boolean).Value(0)), nil
	case KindInt:
		return IntResult(col.(*array.Int64).Value(0)), nil
	case KindFloat:
		return FloatResult(col.(*array.Float64).Value(0)), nil
	case KindString:
		return StringResult(col.(*array.String).Value(0)), nil
	case KindBytes:
		return BytesResult(col.(*array.Binary).Value(0)), nil
	case KindBoolVector, KindIntVector, KindFloatVector, KindStringVector:
		return vectorFromList(col.(*array.List), kind)
	default:
		return TypedResult{}, fmt.Errorf("kind %s has no column representation", kind)
	}
}

func vectorFromList(list *array.List, kind Kind) (TypedResult, error) {
	start, end := list.ValueOffsets(0)
	values := list.ListValues()
	n := int(end - start)

	valid := make([]bool, n)
	allValid := true
	for i := range n {
		valid[i] = values.IsValid(int(start) + i)
		if !valid[i] {
			allValid = false
		}
	}
	if allValid {
		valid = nil
	}

	res := TypedResult{Kind: kind, Valid: valid}
	switch kind {
	case KindBoolVector:
		vs := values.(*array.Boolean)
		res.Bools = make([]bool, n)
		for i := range n {
			if validAt(valid, i) {
				res.Bools[i] = vs.Value(int(start) + i)
			}
		}
	case KindIntVector:
		vs := values.(*array.Int64)
		res.Ints = make([]int64, n)
		for i := range n {
			if validAt(valid, i) {
				res.Ints[i] = vs.Value(int(start) + i)
			}
		}
	case KindFloatVector:
		vs := values.(*array.Float64)
		res.Floats = make([]float64, n)
		for i := range n {
			if validAt(valid, i) {
				res.Floats[i] = vs.Value(int(start) + i)
			}
		}
	case KindStringVector:
		vs := values.(*array.String)
		res.Strs = make([]string, n)
		for i := range n {
			if validAt(valid, i) {
				res.Strs[i] = vs.Value(int(start) + i)
			}
		}
	}
	return res, nil
}
