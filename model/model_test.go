package model

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSqueezeDropsLeadingSingletonDims(t *testing.T) {
	data := []float32{1, 2, 3, 4, 5, 6}

	squeezed := Tensor{Data: data, Dims: []int{1, 1, 2, 3}}.Squeeze()
	require.Equal(t, []int{2, 3}, squeezed.Dims)
	require.Equal(t, data, squeezed.Data)

	unchanged := Tensor{Data: data, Dims: []int{2, 3}}.Squeeze()
	require.Equal(t, []int{2, 3}, unchanged.Dims)

	// A fully singleton tensor keeps its last dimension.
	scalar := Tensor{Data: []float32{7}, Dims: []int{1, 1}}.Squeeze()
	require.Equal(t, []int{1}, scalar.Dims)
}

func TestGenErrorCapturesStack(t *testing.T) {
	inner := errors.New("boom")
	custom := GenError("engine_driver", inner, map[string]interface{}{"batch": 3}, "error on batch %d", 3)

	require.Equal(t, "engine_driver", custom.Processor)
	require.Equal(t, inner, custom.Inner)
	require.Equal(t, "error on batch 3", custom.Message)
	require.NotEmpty(t, custom.StackTrace)
	require.Equal(t, 3, custom.Misc["batch"])
}
