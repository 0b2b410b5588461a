// Package op exposes the engine's built-in reduction operators. Each
// constructor is constrained to the element types its family applies to, so
// pairing a bitwise operator with float data does not compile.
package op

import (
	"github.com/drblury/mpiflow/internal/engine"
	"github.com/drblury/mpiflow/internal/runtime/datatype"
	errspkg "github.com/drblury/mpiflow/internal/runtime/errors"
	"github.com/drblury/mpiflow/internal/runtime/handle"
)

// Family groups operators by the element types they accept.
type Family int

const (
	Comparison Family = iota + 1
	Accumulate
	LogicalFamily
	Bitwise
)

func (f Family) String() string {
	switch f {
	case Comparison:
		return "comparison"
	case Accumulate:
		return "accumulate"
	case LogicalFamily:
		return "logical"
	case Bitwise:
		return "bitwise"
	}
	return "unknown"
}

// FamilyOf returns the family of a built-in operator, or 0.
func FamilyOf(raw engine.Op) Family {
	switch raw {
	case engine.OpMax, engine.OpMin:
		return Comparison
	case engine.OpSum, engine.OpProd:
		return Accumulate
	case engine.OpLAnd, engine.OpLOr, engine.OpLXor:
		return LogicalFamily
	case engine.OpBAnd, engine.OpBOr, engine.OpBXor:
		return Bitwise
	}
	return 0
}

// Applicable reports whether raw may reduce elements tagged dt.
func Applicable(raw engine.Op, dt engine.Datatype) bool {
	t, ok := datatype.Lookup(dt)
	if !ok {
		return false
	}
	switch FamilyOf(raw) {
	case Comparison, Accumulate:
		return t.IsInteger || t.IsFloat
	case LogicalFamily:
		return t.IsInteger || t.IsLogical
	case Bitwise:
		return t.IsInteger
	}
	return false
}

// Kind is the handle policy for operators. Built-ins belong to the engine.
type Kind struct {
	Eng engine.Ops
}

func (Kind) Null() engine.Op             { return engine.OpNull }
func (Kind) IsSystem(raw engine.Op) bool { return engine.IsBuiltinOp(raw) }
func (Kind) Name() string                { return "op" }

func (k Kind) Destroy(h *engine.Op) error {
	return errspkg.Check("op free", k.Eng.OpFree(h), nil)
}

// Op is a built-in operator usable on T.
type Op[T datatype.Element] struct {
	ref handle.Ref[engine.Op, Kind]
}

func builtin[T datatype.Element](raw engine.Op) Op[T] {
	return Op[T]{ref: handle.Borrow(Kind{}, raw)}
}

func Max[T datatype.Numeric]() Op[T]        { return builtin[T](engine.OpMax) }
func Min[T datatype.Numeric]() Op[T]        { return builtin[T](engine.OpMin) }
func Sum[T datatype.Numeric]() Op[T]        { return builtin[T](engine.OpSum) }
func Product[T datatype.Numeric]() Op[T]    { return builtin[T](engine.OpProd) }
func LogicalAnd[T datatype.Logical]() Op[T] { return builtin[T](engine.OpLAnd) }
func LogicalOr[T datatype.Logical]() Op[T]  { return builtin[T](engine.OpLOr) }
func LogicalXor[T datatype.Logical]() Op[T] { return builtin[T](engine.OpLXor) }
func BitwiseAnd[T datatype.Integer]() Op[T] { return builtin[T](engine.OpBAnd) }
func BitwiseOr[T datatype.Integer]() Op[T]  { return builtin[T](engine.OpBOr) }
func BitwiseXor[T datatype.Integer]() Op[T] { return builtin[T](engine.OpBXor) }

func (o Op[T]) Raw() engine.Op { return o.ref.Raw() }
func (o Op[T]) Family() Family { return FamilyOf(o.Raw()) }

// Erase drops the element type so the operator can be used with dynamic buffers.
func (o Op[T]) Erase() Dyn {
	return Dyn{raw: o.Raw()}
}

// Dyn is an operator whose applicability is checked at dispatch.
type Dyn struct {
	raw engine.Op
}

// DynOf wraps a raw built-in operator.
func DynOf(raw engine.Op) Dyn { return Dyn{raw: raw} }

func (d Dyn) Raw() engine.Op                       { return d.raw }
func (d Dyn) Family() Family                       { return FamilyOf(d.raw) }
func (d Dyn) ApplicableTo(dt engine.Datatype) bool { return Applicable(d.raw, dt) }
