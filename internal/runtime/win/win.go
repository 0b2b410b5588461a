// Package win exposes one-sided access to memory windows allocated across
// a communicator.
package win

import (
	"unsafe"

	"github.com/drblury/mpiflow/internal/engine"
	"github.com/drblury/mpiflow/internal/runtime/attrs"
	"github.com/drblury/mpiflow/internal/runtime/buffer"
	"github.com/drblury/mpiflow/internal/runtime/comm"
	"github.com/drblury/mpiflow/internal/runtime/datatype"
	errspkg "github.com/drblury/mpiflow/internal/runtime/errors"
	"github.com/drblury/mpiflow/internal/runtime/handle"
)

const (
	LockExclusive = engine.LockExclusive
	LockShared    = engine.LockShared
	ModeNoCheck   = engine.ModeNoCheck
)

// Kind is the handle policy for windows.
type Kind struct {
	Eng engine.Engine
}

func (Kind) Null() engine.Win         { return engine.WinNull }
func (Kind) IsSystem(engine.Win) bool { return false }
func (Kind) Name() string             { return "win" }

func (k Kind) Destroy(w *engine.Win) error {
	return errspkg.Check("win free", k.Eng.WinFree(w), k.Eng.ErrorString)
}

// Handle is what the attribute helpers need from a window.
type Handle interface {
	Raw() engine.Win
	Engine() engine.Engine
}

// Win borrows a window whose local memory holds T.
type Win[T datatype.Element] struct {
	ref handle.Ref[engine.Win, Kind]
}

// Borrow wraps raw without taking ownership.
func Borrow[T datatype.Element](eng engine.Engine, raw engine.Win) Win[T] {
	return Win[T]{ref: handle.Borrow(Kind{Eng: eng}, raw)}
}

func (w Win[T]) Raw() engine.Win       { return w.ref.Raw() }
func (w Win[T]) IsNull() bool          { return w.ref.IsNull() }
func (w Win[T]) Engine() engine.Engine { return w.ref.Kind().Eng }
func (w Win[T]) Deref() Win[T]         { return w }

func (w Win[T]) check(op string, code engine.Code) error {
	return errspkg.Check(op, code, w.Engine().ErrorString)
}

// Base returns the calling rank's part of the window.
func (w Win[T]) Base() ([]T, error) {
	var (
		p     unsafe.Pointer
		found bool
	)
	fam := attrs.WinFamily{Eng: w.Engine()}
	if err := w.check("win base", fam.GetAttr(w.Raw(), engine.KeyWinBase, &p, &found)); err != nil {
		return nil, err
	}
	if !found {
		return nil, w.check("win base", engine.ErrKeyval)
	}
	size, err := w.Size()
	if err != nil {
		return nil, err
	}
	n := int(size) / datatype.Size(datatype.Of[T]())
	if n == 0 || p == nil {
		return []T{}, nil
	}
	return unsafe.Slice((*T)(p), n), nil
}

// Size is the local part of the window in bytes.
func (w Win[T]) Size() (int64, error) {
	v, found, err := attrs.Get[int64](attrs.WinFamily{Eng: w.Engine()}, w.Raw(), attrs.Predefined[int64](engine.KeyWinSize))
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, w.check("win size", engine.ErrKeyval)
	}
	return *v, nil
}

// DispUnit is the displacement unit in bytes.
func (w Win[T]) DispUnit() (int32, error) {
	v, found, err := attrs.Get[int32](attrs.WinFamily{Eng: w.Engine()}, w.Raw(), attrs.Predefined[int32](engine.KeyWinDispUnit))
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, w.check("win disp unit", engine.ErrKeyval)
	}
	return *v, nil
}

// Lock starts an access epoch to rank's window memory.
func (w Win[T]) Lock(lockType, rank, assert int32) error {
	if lockType != LockExclusive && lockType != LockShared {
		errspkg.Violatef("win lock", rank, "unknown lock type %d", lockType)
	}
	return w.check("win lock", w.Engine().WinLock(lockType, rank, assert, w.Raw()))
}

func (w Win[T]) Unlock(rank int32) error {
	return w.check("win unlock", w.Engine().WinUnlock(rank, w.Raw()))
}

// LockAll starts a shared access epoch to every rank's window memory.
func (w Win[T]) LockAll(assert int32) error {
	return w.check("win lock all", w.Engine().WinLockAll(assert, w.Raw()))
}

func (w Win[T]) UnlockAll() error {
	return w.check("win unlock all", w.Engine().WinUnlockAll(w.Raw()))
}

// FlushAll completes every outstanding operation issued by the caller.
func (w Win[T]) FlushAll() error {
	return w.check("win flush all", w.Engine().WinFlushAll(w.Raw()))
}

// Get reads len(recv) elements from target starting at element disp.
func (w Win[T]) Get(recv []T, target int32, disp int64) error {
	buf := buffer.Slice(recv)
	n, err := buf.SizeInt()
	if err != nil {
		return err
	}
	dt := buf.Datatype()
	return w.check("get", w.Engine().Get(buf.Addr(), n, dt, target, disp, n, dt, w.Raw()))
}

// Put writes send to target starting at element disp.
func (w Win[T]) Put(send []T, target int32, disp int64) error {
	buf := buffer.Slice(send)
	n, err := buf.SizeInt()
	if err != nil {
		return err
	}
	dt := buf.Datatype()
	return w.check("put", w.Engine().Put(buf.Addr(), n, dt, target, disp, n, dt, w.Raw()))
}

// Unique owns a window.
type Unique[T datatype.Element] struct {
	owned handle.Owned[engine.Win, Kind]
}

// Allocate collectively creates a window with count elements of T on every
// rank of c.
func Allocate[T datatype.Element](c comm.Communicator, count int) (Unique[T], error) {
	cm := c.Deref()
	if _, err := errspkg.CheckCount("win allocate", count); err != nil {
		return Unique[T]{}, err
	}
	unit := datatype.Size(datatype.Of[T]())
	out := Unique[T]{owned: handle.Empty[engine.Win](Kind{Eng: cm.Engine()})}
	var base unsafe.Pointer
	code := cm.Engine().WinAllocate(int64(count)*int64(unit), int32(unit), cm.Raw(), &base, out.owned.Addr())
	if err := errspkg.Check("win allocate", code, cm.Engine().ErrorString); err != nil {
		return Unique[T]{}, err
	}
	return out, nil
}

func (u Unique[T]) Raw() engine.Win       { return u.owned.Raw() }
func (u Unique[T]) IsNull() bool          { return u.owned.IsNull() }
func (u Unique[T]) Engine() engine.Engine { return u.owned.Kind().Eng }
func (u Unique[T]) Take() Unique[T]       { return Unique[T]{owned: u.owned.Take()} }

// Close frees the window. It is collective over the allocating communicator.
func (u Unique[T]) Close() error { return u.owned.Close() }

func (u Unique[T]) Deref() Win[T] {
	return Win[T]{ref: u.owned.Borrow()}
}

func (u Unique[T]) Base() ([]T, error)                           { return u.Deref().Base() }
func (u Unique[T]) Size() (int64, error)                         { return u.Deref().Size() }
func (u Unique[T]) Lock(lockType, rank, assert int32) error      { return u.Deref().Lock(lockType, rank, assert) }
func (u Unique[T]) Unlock(rank int32) error                      { return u.Deref().Unlock(rank) }
func (u Unique[T]) LockAll(assert int32) error                   { return u.Deref().LockAll(assert) }
func (u Unique[T]) UnlockAll() error                             { return u.Deref().UnlockAll() }
func (u Unique[T]) FlushAll() error                              { return u.Deref().FlushAll() }
func (u Unique[T]) Get(recv []T, target int32, disp int64) error { return u.Deref().Get(recv, target, disp) }
func (u Unique[T]) Put(send []T, target int32, disp int64) error { return u.Deref().Put(send, target, disp) }

// CreateKeyval registers a window attribute key for values of type V.
func CreateKeyval[V any](eng engine.Engine) (attrs.UniqueKeyVal[V], error) {
	return attrs.CreateKeyval[V, engine.Win](attrs.WinFamily{Eng: eng})
}

// GetAttr returns the value stored under slot on w without copying it.
func GetAttr[V any](w Handle, slot attrs.Slot[V]) (*V, bool, error) {
	return attrs.Get[V](attrs.WinFamily{Eng: w.Engine()}, w.Raw(), slot)
}

// CreateAttr stores value under slot on w and returns the stored box.
func CreateAttr[V any](w Handle, slot attrs.Slot[V], value V) (*V, error) {
	return attrs.Create[V](attrs.WinFamily{Eng: w.Engine()}, w.Raw(), slot, value)
}

// DeleteAttr releases the value stored under slot on w.
func DeleteAttr[V any](w Handle, slot attrs.Slot[V]) error {
	return attrs.Delete[V](attrs.WinFamily{Eng: w.Engine()}, w.Raw(), slot)
}
