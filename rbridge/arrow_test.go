// © Copyright 2026, RBCFTools Authors
// SPDX-License-Identifier: MIT

package rbridge

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArrowTypeMapping(t *testing.T) {
	assert.Equal(t, arrow.PrimitiveTypes.Int64, ArrowType(KindInt))
	assert.Equal(t, arrow.BinaryTypes.String, ArrowType(KindString))
	assert.True(t, arrow.TypeEqual(arrow.ListOf(arrow.PrimitiveTypes.Float64), ArrowType(KindFloatVector)))
	assert.Nil(t, ArrowType(KindNull))
	assert.Nil(t, ArrowType(KindError))
	assert.Nil(t, ArrowType(KindAny))
}

func TestColumnOfScalarsWithNulls(t *testing.T) {
	mem := memory.NewGoAllocator()
	results := []TypedResult{
		FloatResult(1.5),
		NAResult(KindFloat),
		NullResult(),
		ErrorResult(CodeEvaluation, "row failed"),
		FloatResult(4.5),
	}
	arr, err := ColumnOf(mem, results, KindFloat)
	require.NoError(t, err)
	defer arr.Release()

	col := arr.(*array.Float64)
	require.Equal(t, 5, col.Len())
	assert.Equal(t, 1.5, col.Value(0))
	assert.True(t, col.IsNull(1), "NA result must be a null slot")
	assert.True(t, col.IsNull(2), "Null result must be a null slot")
	assert.True(t, col.IsNull(3), "Error result must be a null slot")
	assert.Equal(t, 4.5, col.Value(4))
}

func TestColumnOfVectors(t *testing.T) {
	mem := memory.NewGoAllocator()
	results := []TypedResult{
		{Kind: KindIntVector, Ints: []int64{1, 0, 3}, Valid: []bool{true, false, true}},
		NAResult(KindIntVector),
	}
	arr, err := ColumnOf(mem, results, KindIntVector)
	require.NoError(t, err)
	defer arr.Release()

	list := arr.(*array.List)
	require.Equal(t, 2, list.Len())
	assert.True(t, list.IsNull(1))

	start, end := list.ValueOffsets(0)
	require.Equal(t, int64(3), end-start)
	values := list.ListValues().(*array.Int64)
	assert.Equal(t, int64(1), values.Value(int(start)))
	assert.True(t, values.IsNull(int(start)+1), "per-element validity must survive")
	assert.Equal(t, int64(3), values.Value(int(start)+2))
}

func TestIPCRoundTrip(t *testing.T) {
	t.Run("scalar", func(t *testing.T) {
		data, err := MarshalIPC(FloatResult(2.25), "req-1")
		require.NoError(t, err)

		res, id, err := UnmarshalIPC(data)
		require.NoError(t, err)
		assert.Equal(t, "req-1", id)
		require.Equal(t, KindFloat, res.Kind)
		assert.Equal(t, 2.25, res.Float)
	})

	t.Run("vector with validity", func(t *testing.T) {
		in := TypedResult{
			Kind:  KindStringVector,
			Strs:  []string{"a", "", "c"},
			Valid: []bool{true, false, true},
		}
		data, err := MarshalIPC(in, "")
		require.NoError(t, err)

		res, _, err := UnmarshalIPC(data)
		require.NoError(t, err)
		require.Equal(t, KindStringVector, res.Kind)
		assert.Equal(t, in.Strs, res.Strs)
		assert.Equal(t, in.Valid, res.Valid)
	})

	t.Run("error travels in metadata", func(t *testing.T) {
		data, err := MarshalIPC(ErrorResult(CodeParse, "unexpected token"), "req-2")
		require.NoError(t, err)

		res, id, err := UnmarshalIPC(data)
		require.NoError(t, err)
		assert.Equal(t, "req-2", id)
		require.Equal(t, KindError, res.Kind)
		require.NotNil(t, res.Err)
		assert.Equal(t, CodeParse, res.Err.Code)
		assert.Equal(t, "unexpected token", res.Err.Message)
	})

	t.Run("na scalar", func(t *testing.T) {
		data, err := MarshalIPC(NAResult(KindInt), "")
		require.NoError(t, err)

		res, _, err := UnmarshalIPC(data)
		require.NoError(t, err)
		assert.Equal(t, KindInt, res.Kind)
		assert.True(t, res.IsNA)
	})
}

func TestUnmarshalIPCRejectsGarbage(t *testing.T) {
	_, _, err := UnmarshalIPC([]byte("not an arrow stream"))
	require.Error(t, err)
}
