package datatype

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/drblury/mpiflow/internal/engine"
)

type rank int32

func TestOf(t *testing.T) {
	wordInt := engine.Int64
	wordUint := engine.Uint64
	if strconv.IntSize == 32 {
		wordInt, wordUint = engine.Int32, engine.Uint32
	}

	tests := []struct {
		name string
		got  engine.Datatype
		want engine.Datatype
	}{
		{"bool", Of[bool](), engine.Bool},
		{"int8", Of[int8](), engine.Int8},
		{"int16", Of[int16](), engine.Int16},
		{"int32", Of[int32](), engine.Int32},
		{"int64", Of[int64](), engine.Int64},
		{"int", Of[int](), wordInt},
		{"byte", Of[byte](), engine.Uint8},
		{"uint16", Of[uint16](), engine.Uint16},
		{"uint32", Of[uint32](), engine.Uint32},
		{"uint64", Of[uint64](), engine.Uint64},
		{"uint", Of[uint](), wordUint},
		{"float32", Of[float32](), engine.Float32},
		{"float64", Of[float64](), engine.Float64},
		{"named", Of[rank](), engine.Int32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestLookup(t *testing.T) {
	tr, ok := Lookup(engine.Float64)
	assert.True(t, ok)
	assert.Equal(t, Traits{Name: "float64", Size: 8, IsFloat: true}, tr)

	tr, ok = Lookup(engine.Bool)
	assert.True(t, ok)
	assert.True(t, tr.IsLogical)
	assert.False(t, tr.IsInteger)

	_, ok = Lookup(engine.DatatypeNull)
	assert.False(t, ok)
}

func TestSizeAndName(t *testing.T) {
	assert.Equal(t, 2, Size(engine.Int16))
	assert.Equal(t, 0, Size(engine.DatatypeNull))
	assert.Equal(t, "uint32", Name(engine.Uint32))
	assert.Equal(t, "unknown", Name(engine.Datatype(99)))
}
