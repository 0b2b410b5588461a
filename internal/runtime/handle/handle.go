// Package handle gives raw engine handles an ownership shape. A Ref borrows
// a resource someone else owns. An Owned destroys it exactly once.
package handle

import (
	errspkg "github.com/drblury/mpiflow/internal/runtime/errors"
)

// Kind is the per-resource policy: which value means "no resource", how a
// resource is destroyed, and which handles belong to the engine itself.
type Kind[H comparable] interface {
	Null() H
	// Destroy releases the resource and must reset *h to Null on success.
	Destroy(h *H) error
	IsSystem(h H) bool
	Name() string
}

// Ref is a borrowed handle. It is freely copyable and never destroys anything.
type Ref[H comparable, K Kind[H]] struct {
	raw  H
	kind K
}

// Borrow wraps raw without taking ownership.
func Borrow[H comparable, K Kind[H]](kind K, raw H) Ref[H, K] {
	return Ref[H, K]{raw: raw, kind: kind}
}

func (r Ref[H, K]) Raw() H       { return r.raw }
func (r Ref[H, K]) Kind() K      { return r.kind }
func (r Ref[H, K]) IsNull() bool { return r.raw == r.kind.Null() }

type cell[H comparable] struct {
	raw H
}

// Owned is an owning handle. Copies of an Owned share one ownership cell, so
// copying the Go value never creates a second owner; Take moves ownership
// into a fresh cell.
type Owned[H comparable, K Kind[H]] struct {
	c    *cell[H]
	kind K
}

// Own takes ownership of raw.
func Own[H comparable, K Kind[H]](kind K, raw H) Owned[H, K] {
	return Owned[H, K]{c: &cell[H]{raw: raw}, kind: kind}
}

// Empty returns an owner holding the null handle, ready to be filled through Addr.
func Empty[H comparable, K Kind[H]](kind K) Owned[H, K] {
	return Own(kind, kind.Null())
}

func (o Owned[H, K]) Kind() K { return o.kind }

func (o Owned[H, K]) Raw() H {
	if o.c == nil {
		return o.kind.Null()
	}
	return o.c.raw
}

func (o Owned[H, K]) IsNull() bool {
	return o.c == nil || o.c.raw == o.kind.Null()
}

// Addr exposes the cell for engine out-parameters.
func (o Owned[H, K]) Addr() *H {
	if o.c == nil {
		panic("mpiflow: " + o.kind.Name() + ": Addr on an unconstructed handle")
	}
	return &o.c.raw
}

// Borrow returns a non-owning view of the current value.
func (o Owned[H, K]) Borrow() Ref[H, K] {
	return Borrow(o.kind, o.Raw())
}

// IntoRaw gives up ownership. The caller becomes responsible for the resource.
func (o Owned[H, K]) IntoRaw() H {
	raw := o.Raw()
	if o.c != nil {
		o.c.raw = o.kind.Null()
	}
	return raw
}

// Take moves the resource into a new owner and leaves o null.
func (o Owned[H, K]) Take() Owned[H, K] {
	return Own(o.kind, o.IntoRaw())
}

// Replace destroys the current resource, then takes over other's.
func (o Owned[H, K]) Replace(other Owned[H, K]) error {
	if o.c == nil {
		panic("mpiflow: " + o.kind.Name() + ": Replace on an unconstructed handle")
	}
	if err := o.Close(); err != nil {
		return err
	}
	o.c.raw = other.IntoRaw()
	return nil
}

// Close destroys the resource unless the handle is null. Closing a system
// handle is a contract violation.
func (o Owned[H, K]) Close() error {
	if o.c == nil {
		return nil
	}
	if o.kind.IsSystem(o.c.raw) {
		errspkg.Violatef(o.kind.Name(), -1, "refusing to destroy a system handle")
	}
	if o.c.raw == o.kind.Null() {
		return nil
	}
	if err := o.kind.Destroy(&o.c.raw); err != nil {
		return err
	}
	if o.c.raw != o.kind.Null() {
		errspkg.Violatef(o.kind.Name(), -1, "destroy left the handle non-null")
	}
	return nil
}
