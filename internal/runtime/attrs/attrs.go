// Package attrs stores typed values on engine handles under engine-issued
// keys. Values are boxed on the Go heap and handed to the engine as opaque
// pointers; the engine calls back into this package when a handle carrying
// an attribute is duplicated or released.
package attrs

import (
	"sync"
	"unsafe"

	"github.com/drblury/mpiflow/internal/engine"
	errspkg "github.com/drblury/mpiflow/internal/runtime/errors"
	"github.com/drblury/mpiflow/internal/runtime/handle"
)

// Family binds the attribute calls of one resource kind.
type Family[H ~int32] interface {
	Name() string
	CreateKeyval(copyFn engine.CopyAttrFunc, deleteFn engine.DeleteAttrFunc, key *engine.Keyval, extra any) engine.Code
	FreeKeyval(key *engine.Keyval) engine.Code
	SetAttr(h H, key engine.Keyval, value unsafe.Pointer) engine.Code
	GetAttr(h H, key engine.Keyval, value *unsafe.Pointer, found *bool) engine.Code
	DeleteAttr(h H, key engine.Keyval) engine.Code
	ErrorString(code engine.Code) string
}

// CommFamily routes attribute calls to communicators.
type CommFamily struct {
	Eng engine.Engine
}

func (CommFamily) Name() string { return "comm" }

func (f CommFamily) CreateKeyval(copyFn engine.CopyAttrFunc, deleteFn engine.DeleteAttrFunc, key *engine.Keyval, extra any) engine.Code {
	return f.Eng.CommCreateKeyval(copyFn, deleteFn, key, extra)
}

func (f CommFamily) FreeKeyval(key *engine.Keyval) engine.Code { return f.Eng.CommFreeKeyval(key) }

func (f CommFamily) SetAttr(c engine.Comm, key engine.Keyval, value unsafe.Pointer) engine.Code {
	return f.Eng.CommSetAttr(c, key, value)
}

func (f CommFamily) GetAttr(c engine.Comm, key engine.Keyval, value *unsafe.Pointer, found *bool) engine.Code {
	return f.Eng.CommGetAttr(c, key, value, found)
}

func (f CommFamily) DeleteAttr(c engine.Comm, key engine.Keyval) engine.Code {
	return f.Eng.CommDeleteAttr(c, key)
}

func (f CommFamily) ErrorString(code engine.Code) string { return f.Eng.ErrorString(code) }

// WinFamily routes attribute calls to RMA windows.
type WinFamily struct {
	Eng engine.Engine
}

func (WinFamily) Name() string { return "win" }

func (f WinFamily) CreateKeyval(copyFn engine.CopyAttrFunc, deleteFn engine.DeleteAttrFunc, key *engine.Keyval, extra any) engine.Code {
	return f.Eng.WinCreateKeyval(copyFn, deleteFn, key, extra)
}

func (f WinFamily) FreeKeyval(key *engine.Keyval) engine.Code { return f.Eng.WinFreeKeyval(key) }

func (f WinFamily) SetAttr(w engine.Win, key engine.Keyval, value unsafe.Pointer) engine.Code {
	return f.Eng.WinSetAttr(w, key, value)
}

func (f WinFamily) GetAttr(w engine.Win, key engine.Keyval, value *unsafe.Pointer, found *bool) engine.Code {
	return f.Eng.WinGetAttr(w, key, value, found)
}

func (f WinFamily) DeleteAttr(w engine.Win, key engine.Keyval) engine.Code {
	return f.Eng.WinDeleteAttr(w, key)
}

func (f WinFamily) ErrorString(code engine.Code) string { return f.Eng.ErrorString(code) }

type keyFreer interface {
	Name() string
	FreeKeyval(key *engine.Keyval) engine.Code
	ErrorString(code engine.Code) string
}

// Kind is the handle policy for keyvals. The predefined keys belong to the engine.
type Kind struct {
	fam keyFreer
}

func (Kind) Null() engine.Keyval { return engine.KeyvalInvalid }
func (Kind) Name() string        { return "keyval" }

func (Kind) IsSystem(k engine.Keyval) bool {
	return k >= engine.KeyTagUB && k <= engine.KeyWinDispUnit
}

func (k Kind) Destroy(key *engine.Keyval) error {
	return errspkg.Check(k.fam.Name()+" free keyval", k.fam.FreeKeyval(key), k.fam.ErrorString)
}

// Slot is anything that names an attribute key for values of type T.
type Slot[T any] interface {
	Deref() KeyVal[T]
}

// KeyVal is a borrowed key for values of type T.
type KeyVal[T any] struct {
	ref handle.Ref[engine.Keyval, Kind]
}

// Predefined borrows one of the engine's own keys.
func Predefined[T any](key engine.Keyval) KeyVal[T] {
	return KeyVal[T]{ref: handle.Borrow(Kind{}, key)}
}

func (k KeyVal[T]) Raw() engine.Keyval { return k.ref.Raw() }
func (k KeyVal[T]) IsNull() bool       { return k.ref.IsNull() }
func (k KeyVal[T]) Deref() KeyVal[T]   { return k }

// UniqueKeyVal owns a key. Close releases it; values already attached to
// live handles stay until those handles are freed.
type UniqueKeyVal[T any] struct {
	owned handle.Owned[engine.Keyval, Kind]
}

func (k UniqueKeyVal[T]) Raw() engine.Keyval { return k.owned.Raw() }
func (k UniqueKeyVal[T]) IsNull() bool       { return k.owned.IsNull() }
func (k UniqueKeyVal[T]) Take() UniqueKeyVal[T] {
	return UniqueKeyVal[T]{owned: k.owned.Take()}
}
func (k UniqueKeyVal[T]) Close() error { return k.owned.Close() }

func (k UniqueKeyVal[T]) Deref() KeyVal[T] {
	return KeyVal[T]{ref: k.owned.Borrow()}
}

// NoDup marks a type whose attribute values must not follow a handle through
// duplication. Embed it by value.
type NoDup struct{}

func (*NoDup) noDup() {}

type noDupper interface{ noDup() }

// Cloner is implemented by values that need a deep copy on duplication.
type Cloner[T any] interface {
	Clone() T
}

// Releaser is called when the engine drops an attribute value.
type Releaser interface {
	Release()
}

// Duplicable reports whether values of T are copied onto duplicated handles.
func Duplicable[T any]() bool {
	p := any((*T)(nil))
	if _, ok := p.(noDupper); ok {
		return false
	}
	if _, ok := p.(sync.Locker); ok {
		return false
	}
	return true
}

func copyFunc[T any]() engine.CopyAttrFunc {
	if !Duplicable[T]() {
		return engine.NullCopyFn
	}
	return func(_ int32, _ engine.Keyval, _ any, in unsafe.Pointer, out *unsafe.Pointer, flag *bool) engine.Code {
		src := (*T)(in)
		dst := new(T)
		if c, ok := any(src).(Cloner[T]); ok {
			*dst = c.Clone()
		} else {
			*dst = *src
		}
		*out = unsafe.Pointer(dst)
		*flag = true
		return engine.Success
	}
}

func deleteFunc[T any]() engine.DeleteAttrFunc {
	if _, ok := any((*T)(nil)).(Releaser); !ok {
		return engine.NullDeleteFn
	}
	return func(_ int32, _ engine.Keyval, value unsafe.Pointer, _ any) engine.Code {
		any((*T)(value)).(Releaser).Release()
		return engine.Success
	}
}

// CreateKeyval registers a new key whose callbacks are derived from T.
func CreateKeyval[T any, H ~int32](fam Family[H]) (UniqueKeyVal[T], error) {
	key := engine.KeyvalInvalid
	code := fam.CreateKeyval(copyFunc[T](), deleteFunc[T](), &key, nil)
	if err := errspkg.Check(fam.Name()+" create keyval", code, fam.ErrorString); err != nil {
		return UniqueKeyVal[T]{}, err
	}
	return UniqueKeyVal[T]{owned: handle.Own(Kind{fam: fam}, key)}, nil
}

// Get returns the value stored under slot on h without copying it. The
// pointer is only valid while h carries the attribute.
func Get[T any, H ~int32](fam Family[H], h H, slot Slot[T]) (*T, bool, error) {
	var (
		p     unsafe.Pointer
		found bool
	)
	code := fam.GetAttr(h, slot.Deref().Raw(), &p, &found)
	if err := errspkg.Check(fam.Name()+" get attr", code, fam.ErrorString); err != nil {
		return nil, false, err
	}
	if !found {
		return nil, false, nil
	}
	return (*T)(p), true, nil
}

// Create boxes value and stores it under slot on h, replacing and releasing
// any previous value. The returned pointer is the stored box.
func Create[T any, H ~int32](fam Family[H], h H, slot Slot[T], value T) (*T, error) {
	box := new(T)
	*box = value
	code := fam.SetAttr(h, slot.Deref().Raw(), unsafe.Pointer(box))
	if err := errspkg.Check(fam.Name()+" set attr", code, fam.ErrorString); err != nil {
		return nil, err
	}
	return box, nil
}

// Delete releases the value stored under slot on h.
func Delete[T any, H ~int32](fam Family[H], h H, slot Slot[T]) error {
	code := fam.DeleteAttr(h, slot.Deref().Raw())
	return errspkg.Check(fam.Name()+" delete attr", code, fam.ErrorString)
}
