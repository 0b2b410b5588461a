// Package datatype maps Go element types onto the engine's semantic type tags.
package datatype

import (
	"reflect"

	"github.com/drblury/mpiflow/internal/engine"
)

// Signed covers the signed integer kinds.
type Signed interface {
	~int8 | ~int16 | ~int32 | ~int64 | ~int
}

// Unsigned covers the unsigned integer kinds. byte is uint8.
type Unsigned interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uint
}

type Integer interface {
	Signed | Unsigned
}

type Float interface {
	~float32 | ~float64
}

type Numeric interface {
	Integer | Float
}

// Logical covers the types logical operators accept: integers are treated as
// C truth values.
type Logical interface {
	Integer | ~bool
}

// Element is every type with a semantic mapping.
type Element interface {
	Numeric | ~bool
}

// Traits describes one engine datatype.
type Traits struct {
	Name      string
	Size      int
	IsInteger bool
	IsFloat   bool
	IsLogical bool
}

var traits = map[engine.Datatype]Traits{
	engine.Bool:    {Name: "bool", Size: 1, IsLogical: true},
	engine.Int8:    {Name: "int8", Size: 1, IsInteger: true},
	engine.Int16:   {Name: "int16", Size: 2, IsInteger: true},
	engine.Int32:   {Name: "int32", Size: 4, IsInteger: true},
	engine.Int64:   {Name: "int64", Size: 8, IsInteger: true},
	engine.Uint8:   {Name: "uint8", Size: 1, IsInteger: true},
	engine.Uint16:  {Name: "uint16", Size: 2, IsInteger: true},
	engine.Uint32:  {Name: "uint32", Size: 4, IsInteger: true},
	engine.Uint64:  {Name: "uint64", Size: 8, IsInteger: true},
	engine.Float32: {Name: "float32", Size: 4, IsFloat: true},
	engine.Float64: {Name: "float64", Size: 8, IsFloat: true},
}

// Lookup returns the traits of dt.
func Lookup(dt engine.Datatype) (Traits, bool) {
	t, ok := traits[dt]
	return t, ok
}

// Size returns the element size of dt in bytes, or 0 for unknown tags.
func Size(dt engine.Datatype) int {
	return traits[dt].Size
}

// Name returns a readable name for dt.
func Name(dt engine.Datatype) string {
	if t, ok := traits[dt]; ok {
		return t.Name
	}
	return "unknown"
}

// Of returns the engine tag for T. int and uint follow the platform width.
func Of[T Element]() engine.Datatype {
	switch reflect.TypeFor[T]().Kind() {
	case reflect.Bool:
		return engine.Bool
	case reflect.Int8:
		return engine.Int8
	case reflect.Int16:
		return engine.Int16
	case reflect.Int32:
		return engine.Int32
	case reflect.Int64:
		return engine.Int64
	case reflect.Int:
		if reflect.TypeFor[T]().Size() == 8 {
			return engine.Int64
		}
		return engine.Int32
	case reflect.Uint8:
		return engine.Uint8
	case reflect.Uint16:
		return engine.Uint16
	case reflect.Uint32:
		return engine.Uint32
	case reflect.Uint64:
		return engine.Uint64
	case reflect.Uint:
		if reflect.TypeFor[T]().Size() == 8 {
			return engine.Uint64
		}
		return engine.Uint32
	case reflect.Float32:
		return engine.Float32
	case reflect.Float64:
		return engine.Float64
	}
	return engine.DatatypeNull
}
