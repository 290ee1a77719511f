package packing

import (
	"testing"

	preprocessing "github.com/gomlx/go-preprocessing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartEndPacker(t *testing.T) {
	p, err := New(6, WithStartValue(2), WithEndValue(3), WithPadValue(0))
	require.NoError(t, err)
	assert.Equal(t, 6, p.SequenceLength())
	assert.Equal(t, 2, p.FramingWidth())
	assert.Equal(t, 4, p.MaxContentLength())

	testCases := []struct {
		input    []int
		framed   []int
		expected []int
	}{
		{nil, []int{2, 3}, []int{2, 3, 0, 0, 0, 0}},
		{[]int{7}, []int{2, 7, 3}, []int{2, 7, 3, 0, 0, 0}},
		{[]int{7, 8, 9, 10}, []int{2, 7, 8, 9, 10, 3}, []int{2, 7, 8, 9, 10, 3}},
		// Truncated so the end token still fits.
		{[]int{7, 8, 9, 10, 11, 12}, []int{2, 7, 8, 9, 10, 3}, []int{2, 7, 8, 9, 10, 3}},
	}
	for _, tc := range testCases {
		assert.Equal(t, tc.framed, p.Frame(tc.input), "Frame(%v)", tc.input)
		assert.Equal(t, tc.expected, p.Pack(tc.input), "Pack(%v)", tc.input)
	}

	// Inputs are never modified.
	input := []int{7, 8, 9, 10, 11}
	_ = p.Pack(input)
	assert.Equal(t, []int{7, 8, 9, 10, 11}, input)
}

func TestPadValue(t *testing.T) {
	p, err := New(4, WithPadValue(-1))
	require.NoError(t, err)
	assert.Equal(t, 0, p.FramingWidth())
	assert.Equal(t, []int{5, 6, -1, -1}, p.Pack([]int{5, 6}))
	assert.Equal(t, []int{5, 6, 7, 8}, p.Pad([]int{5, 6, 7, 8, 9}))

	p, err = New(3, WithEndValue(1))
	require.NoError(t, err)
	assert.Equal(t, []int{5, 6, 1}, p.Pack([]int{5, 6, 7}))
}

func TestNewErrors(t *testing.T) {
	_, err := New(0)
	require.ErrorIs(t, err, preprocessing.ErrInvalidConfig)
	_, err = New(1, WithStartValue(2), WithEndValue(3))
	require.ErrorIs(t, err, preprocessing.ErrInvalidConfig)

	// Exactly the framing tokens is valid.
	p, err := New(2, WithStartValue(2), WithEndValue(3))
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, p.Pack([]int{7, 8}))
}
