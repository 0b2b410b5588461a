package buffer

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/mpiflow/internal/engine"
)

func TestOfSingleValue(t *testing.T) {
	v := int32(42)
	b := Of(&v)

	assert.Equal(t, 1, b.Len())
	assert.Equal(t, engine.Int32, b.Datatype())
	assert.Equal(t, unsafe.Pointer(&v), b.Addr())
	assert.False(t, b.Dynamic())

	b.Data()[0] = 7
	assert.Equal(t, int32(7), v, "the buffer aliases the value")
}

func TestSliceSizeInt(t *testing.T) {
	b := Slice([]float64{1, 2, 3})
	n, err := b.SizeInt()
	require.NoError(t, err)
	assert.Equal(t, int32(3), n)

	empty := Slice[uint8](nil)
	n, err = empty.SizeInt()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestErasePreservesShape(t *testing.T) {
	data := []uint16{1, 2, 3, 4}
	d, err := Erase(Slice(data))
	require.NoError(t, err)

	assert.True(t, d.Dynamic())
	assert.Equal(t, 4, d.Len())
	assert.Equal(t, engine.Uint16, d.Datatype())
	assert.Equal(t, unsafe.Pointer(&data[0]), d.Addr())
	assert.Equal(t, 8, d.Bytes())
}

func TestCompatible(t *testing.T) {
	ints := Slice([]int32{1})
	floats := Slice([]float32{1})
	moreInts := Slice([]int32{2, 3})
	dynFloat, err := Erase(floats)
	require.NoError(t, err)

	tests := []struct {
		name       string
		send, recv View
		compatible bool
		matches    bool
	}{
		{"same static type", ints, moreInts, true, true},
		{"different static types", ints, floats, false, false},
		{"dynamic recv widens", ints, dynFloat, true, false},
		{"dynamic send widens", dynFloat, ints, true, false},
		{"dynamic same tag", dynFloat, floats, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.compatible, Compatible(tt.send, tt.recv))
			assert.Equal(t, tt.matches, Matches(tt.send, tt.recv))
		})
	}
}

func TestNewDyn(t *testing.T) {
	var raw [16]byte
	d := NewDyn(unsafe.Pointer(&raw[0]), 2, engine.Float64)
	n, err := d.SizeInt()
	require.NoError(t, err)
	assert.Equal(t, int32(2), n)
	assert.Equal(t, 16, d.Bytes())
}
