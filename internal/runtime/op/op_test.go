package op

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drblury/mpiflow/internal/engine"
	errspkg "github.com/drblury/mpiflow/internal/runtime/errors"
	"github.com/drblury/mpiflow/internal/runtime/handle"
)

func TestMain(m *testing.M) {
	restore := errspkg.SetViolationHandler(errspkg.PanicOnViolation)
	code := m.Run()
	restore()
	os.Exit(code)
}

func TestConstructorsPickBuiltins(t *testing.T) {
	tests := []struct {
		name   string
		raw    engine.Op
		want   engine.Op
		family Family
	}{
		{"max", Max[float64]().Raw(), engine.OpMax, Comparison},
		{"min", Min[int8]().Raw(), engine.OpMin, Comparison},
		{"sum", Sum[int]().Raw(), engine.OpSum, Accumulate},
		{"product", Product[float32]().Raw(), engine.OpProd, Accumulate},
		{"land", LogicalAnd[bool]().Raw(), engine.OpLAnd, LogicalFamily},
		{"lor", LogicalOr[int32]().Raw(), engine.OpLOr, LogicalFamily},
		{"lxor", LogicalXor[bool]().Raw(), engine.OpLXor, LogicalFamily},
		{"band", BitwiseAnd[uint8]().Raw(), engine.OpBAnd, Bitwise},
		{"bor", BitwiseOr[uint64]().Raw(), engine.OpBOr, Bitwise},
		{"bxor", BitwiseXor[int16]().Raw(), engine.OpBXor, Bitwise},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.raw)
			assert.Equal(t, tt.family, FamilyOf(tt.raw))
		})
	}
}

func TestApplicable(t *testing.T) {
	tests := []struct {
		op   engine.Op
		dt   engine.Datatype
		want bool
	}{
		{engine.OpSum, engine.Float64, true},
		{engine.OpSum, engine.Bool, false},
		{engine.OpMax, engine.Int8, true},
		{engine.OpLAnd, engine.Bool, true},
		{engine.OpLAnd, engine.Int32, true},
		{engine.OpLOr, engine.Float32, false},
		{engine.OpBAnd, engine.Uint16, true},
		{engine.OpBXor, engine.Float64, false},
		{engine.OpBOr, engine.Bool, false},
		{engine.OpNull, engine.Int32, false},
		{engine.OpSum, engine.DatatypeNull, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Applicable(tt.op, tt.dt), "%v on %v", tt.op, tt.dt)
	}
}

func TestEraseKeepsOperator(t *testing.T) {
	d := BitwiseAnd[int64]().Erase()
	assert.Equal(t, engine.OpBAnd, d.Raw())
	assert.Equal(t, Bitwise, d.Family())
	assert.True(t, d.ApplicableTo(engine.Int64))
	assert.False(t, d.ApplicableTo(engine.Float64))
	assert.Equal(t, "bitwise", d.Family().String())
}

func TestBuiltinsAreSystemHandles(t *testing.T) {
	owned := handle.Own(Kind{}, engine.OpSum)
	var v *errspkg.ContractViolation
	func() {
		defer func() {
			var ok bool
			v, ok = errspkg.AsViolation(recover())
			require.True(t, ok)
		}()
		_ = owned.Close()
	}()
	assert.Equal(t, "op", v.Op)
	assert.Equal(t, engine.OpSum, owned.Raw(), "built-ins are never freed")
}
