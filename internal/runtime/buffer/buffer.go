// Package buffer describes the memory handed to the engine: a statically
// typed view over a Go slice and a type-erased view carrying a runtime tag.
package buffer

import (
	"unsafe"

	"github.com/drblury/mpiflow/internal/engine"
	"github.com/drblury/mpiflow/internal/runtime/datatype"
	errspkg "github.com/drblury/mpiflow/internal/runtime/errors"
)

// View is what every dispatch site needs from a buffer.
type View interface {
	Addr() unsafe.Pointer
	Len() int
	Datatype() engine.Datatype
	// Dynamic reports whether the element type was erased.
	Dynamic() bool
}

// Buffer is a contiguous run of T.
type Buffer[T datatype.Element] struct {
	data []T
}

// Of views a single value.
func Of[T datatype.Element](v *T) Buffer[T] {
	return Buffer[T]{data: unsafe.Slice(v, 1)}
}

// Slice views s.
func Slice[T datatype.Element](s []T) Buffer[T] {
	return Buffer[T]{data: s}
}

func (b Buffer[T]) Data() []T     { return b.data }
func (b Buffer[T]) Len() int      { return len(b.data) }
func (b Buffer[T]) Dynamic() bool { return false }

func (b Buffer[T]) Datatype() engine.Datatype {
	return datatype.Of[T]()
}

func (b Buffer[T]) Addr() unsafe.Pointer {
	return unsafe.Pointer(unsafe.SliceData(b.data))
}

// SizeInt narrows the element count to the native integer width.
func (b Buffer[T]) SizeInt() (int32, error) {
	return errspkg.CheckCount("buffer size", len(b.data))
}

// Dyn is a type-erased buffer.
type Dyn struct {
	addr  unsafe.Pointer
	count int32
	dt    engine.Datatype
}

// NewDyn describes count elements of dt starting at addr.
func NewDyn(addr unsafe.Pointer, count int32, dt engine.Datatype) Dyn {
	return Dyn{addr: addr, count: count, dt: dt}
}

// Erase drops the static element type from b.
func Erase[T datatype.Element](b Buffer[T]) (Dyn, error) {
	n, err := b.SizeInt()
	if err != nil {
		return Dyn{}, err
	}
	return Dyn{addr: b.Addr(), count: n, dt: b.Datatype()}, nil
}

func (d Dyn) Addr() unsafe.Pointer      { return d.addr }
func (d Dyn) Len() int                  { return int(d.count) }
func (d Dyn) SizeInt() (int32, error)   { return d.count, nil }
func (d Dyn) Datatype() engine.Datatype { return d.dt }
func (d Dyn) Dynamic() bool             { return true }

// Bytes is the size of the viewed memory.
func (d Dyn) Bytes() int {
	return int(d.count) * datatype.Size(d.dt)
}

// Compatible reports whether send and recv may be paired. Erasing either
// side defers the check to Matches at dispatch.
func Compatible(send, recv View) bool {
	if send.Dynamic() || recv.Dynamic() {
		return true
	}
	return send.Datatype() == recv.Datatype()
}

// Matches reports whether the resolved element types are identical.
func Matches(send, recv View) bool {
	return send.Datatype() == recv.Datatype()
}
