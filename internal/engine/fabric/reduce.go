package fabric

import (
	"unsafe"

	"github.com/drblury/mpiflow/internal/engine"
	"github.com/drblury/mpiflow/internal/runtime/datatype"
)

// view reinterprets b as a slice of T. b must be suitably aligned.
func view[T any](b []byte) []T {
	var zero T
	if len(b) == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(b))), len(b)/int(unsafe.Sizeof(zero)))
}

// fold combines in into acc element-wise: acc[i] = acc[i] op in[i].
func fold(o engine.Op, dt engine.Datatype, acc, in []byte) engine.Code {
	switch dt {
	case engine.Bool:
		return foldBool(o, view[bool](acc), view[bool](in))
	case engine.Int8:
		return foldInteger(o, view[int8](acc), view[int8](in))
	case engine.Int16:
		return foldInteger(o, view[int16](acc), view[int16](in))
	case engine.Int32:
		return foldInteger(o, view[int32](acc), view[int32](in))
	case engine.Int64:
		return foldInteger(o, view[int64](acc), view[int64](in))
	case engine.Uint8:
		return foldInteger(o, view[uint8](acc), view[uint8](in))
	case engine.Uint16:
		return foldInteger(o, view[uint16](acc), view[uint16](in))
	case engine.Uint32:
		return foldInteger(o, view[uint32](acc), view[uint32](in))
	case engine.Uint64:
		return foldInteger(o, view[uint64](acc), view[uint64](in))
	case engine.Float32:
		return foldFloat(o, view[float32](acc), view[float32](in))
	case engine.Float64:
		return foldFloat(o, view[float64](acc), view[float64](in))
	}
	return engine.ErrType
}

func truth[T datatype.Integer](b bool) T {
	if b {
		return 1
	}
	return 0
}

func foldInteger[T datatype.Integer](o engine.Op, acc, in []T) engine.Code {
	for i := range acc {
		a, b := acc[i], in[i]
		switch o {
		case engine.OpMax:
			acc[i] = max(a, b)
		case engine.OpMin:
			acc[i] = min(a, b)
		case engine.OpSum:
			acc[i] = a + b
		case engine.OpProd:
			acc[i] = a * b
		case engine.OpLAnd:
			acc[i] = truth[T](a != 0 && b != 0)
		case engine.OpLOr:
			acc[i] = truth[T](a != 0 || b != 0)
		case engine.OpLXor:
			acc[i] = truth[T]((a != 0) != (b != 0))
		case engine.OpBAnd:
			acc[i] = a & b
		case engine.OpBOr:
			acc[i] = a | b
		case engine.OpBXor:
			acc[i] = a ^ b
		default:
			return engine.ErrOp
		}
	}
	return engine.Success
}

func foldFloat[T datatype.Float](o engine.Op, acc, in []T) engine.Code {
	for i := range acc {
		a, b := acc[i], in[i]
		switch o {
		case engine.OpMax:
			acc[i] = max(a, b)
		case engine.OpMin:
			acc[i] = min(a, b)
		case engine.OpSum:
			acc[i] = a + b
		case engine.OpProd:
			acc[i] = a * b
		default:
			return engine.ErrOp
		}
	}
	return engine.Success
}

func foldBool(o engine.Op, acc, in []bool) engine.Code {
	for i := range acc {
		switch o {
		case engine.OpLAnd:
			acc[i] = acc[i] && in[i]
		case engine.OpLOr:
			acc[i] = acc[i] || in[i]
		case engine.OpLXor:
			acc[i] = acc[i] != in[i]
		default:
			return engine.ErrOp
		}
	}
	return engine.Success
}
