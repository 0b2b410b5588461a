// Package request tracks asynchronous engine operations to completion.
package request

import (
	"github.com/drblury/mpiflow/internal/engine"
	errspkg "github.com/drblury/mpiflow/internal/runtime/errors"
	"github.com/drblury/mpiflow/internal/runtime/handle"
)

// Kind is the handle policy for requests.
type Kind struct {
	Eng engine.Engine
}

func (Kind) Null() engine.Request         { return engine.RequestNull }
func (Kind) IsSystem(engine.Request) bool { return false }
func (Kind) Name() string                 { return "request" }

func (k Kind) Destroy(h *engine.Request) error {
	return k.check("request free", k.Eng.RequestFree(h))
}

func (k Kind) check(op string, code engine.Code) error {
	return errspkg.Check(op, code, k.Eng.ErrorString)
}

func wait(k Kind, h *engine.Request) (Status, error) {
	if *h == engine.RequestNull {
		return Empty(), nil
	}
	var st engine.Status
	if err := k.check("wait", k.Eng.Wait(h, &st)); err != nil {
		return Status{}, err
	}
	return FromRaw(st), nil
}

func test(k Kind, h *engine.Request) (Status, bool, error) {
	if *h == engine.RequestNull {
		return Empty(), true, nil
	}
	var (
		st   engine.Status
		flag bool
	)
	if err := k.check("test", k.Eng.Test(h, &flag, &st)); err != nil {
		return Status{}, false, err
	}
	if !flag {
		return Status{}, false, nil
	}
	return FromRaw(st), true, nil
}

// Request borrows a request owned elsewhere. Completing it through the
// borrow releases the engine request but cannot reset the owner's copy.
type Request struct {
	ref handle.Ref[engine.Request, Kind]
}

// Borrow wraps raw without taking ownership.
func Borrow(eng engine.Engine, raw engine.Request) Request {
	return Request{ref: handle.Borrow(Kind{Eng: eng}, raw)}
}

func (r Request) Raw() engine.Request { return r.ref.Raw() }
func (r Request) IsNull() bool        { return r.ref.IsNull() }

func (r Request) Wait() error {
	h := r.ref.Raw()
	_, err := wait(r.ref.Kind(), &h)
	return err
}

func (r Request) WaitWithStatus() (Status, error) {
	h := r.ref.Raw()
	return wait(r.ref.Kind(), &h)
}

func (r Request) Test() (bool, error) {
	h := r.ref.Raw()
	_, done, err := test(r.ref.Kind(), &h)
	return done, err
}

func (r Request) TestWithStatus() (Status, bool, error) {
	h := r.ref.Raw()
	return test(r.ref.Kind(), &h)
}

// Unique owns a request. It must be completed or freed before Close.
type Unique struct {
	owned handle.Owned[engine.Request, Kind]
}

// New returns a null owner whose Addr can be handed to the engine.
func New(eng engine.Engine) Unique {
	return Unique{owned: handle.Empty[engine.Request](Kind{Eng: eng})}
}

// Own takes ownership of raw.
func Own(eng engine.Engine, raw engine.Request) Unique {
	return Unique{owned: handle.Own(Kind{Eng: eng}, raw)}
}

func (u Unique) Raw() engine.Request   { return u.owned.Raw() }
func (u Unique) IsNull() bool          { return u.owned.IsNull() }
func (u Unique) Addr() *engine.Request { return u.owned.Addr() }
func (u Unique) Deref() Request        { return Request{ref: u.owned.Borrow()} }

// Take moves the request into a new owner.
func (u Unique) Take() Unique { return Unique{owned: u.owned.Take()} }

// IntoRaw gives up ownership of the request.
func (u Unique) IntoRaw() engine.Request { return u.owned.IntoRaw() }

// Wait blocks until the operation completes and resets the handle to null.
func (u Unique) Wait() error {
	_, err := u.WaitWithStatus()
	return err
}

func (u Unique) WaitWithStatus() (Status, error) {
	if u.IsNull() {
		return Empty(), nil
	}
	return wait(u.owned.Kind(), u.owned.Addr())
}

// Test polls for completion; on completion the handle is reset to null.
func (u Unique) Test() (bool, error) {
	_, done, err := u.TestWithStatus()
	return done, err
}

func (u Unique) TestWithStatus() (Status, bool, error) {
	if u.IsNull() {
		return Empty(), true, nil
	}
	return test(u.owned.Kind(), u.owned.Addr())
}

// Free releases a still-active request. Only non-blocking collectives
// should need this.
func (u Unique) Free() error {
	return u.owned.Close()
}

// Close checks that the request was completed. Dropping an active request
// is a contract violation.
func (u Unique) Close() error {
	if !u.IsNull() {
		errspkg.Violatef("request", -1, "request %d dropped while still active", u.Raw())
	}
	return nil
}

// Replace drops the current request, which must be complete, and takes other's.
func (u Unique) Replace(other Unique) error {
	if err := u.Close(); err != nil {
		return err
	}
	*u.owned.Addr() = other.IntoRaw()
	return nil
}

func (u Unique) eng() engine.Engine {
	return u.owned.Kind().Eng
}

// store writes back a raw value updated by a multi-request engine call.
func (u Unique) store(raw engine.Request) {
	if raw == engine.RequestNull && u.IsNull() {
		return
	}
	*u.owned.Addr() = raw
}
