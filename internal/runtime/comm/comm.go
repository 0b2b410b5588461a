// Package comm is the communicator surface: handle ownership, point-to-point
// messaging and collectives. Every call checks its preconditions before the
// engine sees it; a failed check aborts the job.
package comm

import (
	"fmt"

	"github.com/drblury/mpiflow/internal/engine"
	"github.com/drblury/mpiflow/internal/runtime/attrs"
	errspkg "github.com/drblury/mpiflow/internal/runtime/errors"
	"github.com/drblury/mpiflow/internal/runtime/group"
	"github.com/drblury/mpiflow/internal/runtime/handle"
	"github.com/drblury/mpiflow/internal/runtime/request"
)

// Kind is the handle policy for communicators. World and Self belong to the engine.
type Kind struct {
	Eng engine.Engine
}

func (Kind) Null() engine.Comm { return engine.CommNull }
func (Kind) Name() string      { return "comm" }

func (Kind) IsSystem(c engine.Comm) bool {
	return c == engine.CommWorld || c == engine.CommSelf
}

func (k Kind) Destroy(c *engine.Comm) error {
	return errspkg.Check("comm free", k.Eng.CommFree(c), k.Eng.ErrorString)
}

// Communicator is anything that can lend out a Comm.
type Communicator interface {
	Deref() Comm
}

// Comm borrows a communicator.
type Comm struct {
	ref handle.Ref[engine.Comm, Kind]
}

// Borrow wraps raw without taking ownership.
func Borrow(eng engine.Engine, raw engine.Comm) Comm {
	return Comm{ref: handle.Borrow(Kind{Eng: eng}, raw)}
}

// World is the communicator spanning every rank of the job.
func World(eng engine.Engine) Comm { return Borrow(eng, engine.CommWorld) }

// Self is the communicator holding only the calling rank.
func Self(eng engine.Engine) Comm { return Borrow(eng, engine.CommSelf) }

func (c Comm) Raw() engine.Comm      { return c.ref.Raw() }
func (c Comm) IsNull() bool          { return c.ref.IsNull() }
func (c Comm) Deref() Comm           { return c }
func (c Comm) Engine() engine.Engine { return c.ref.Kind().Eng }

func (c Comm) check(op string, code engine.Code) error {
	return errspkg.Check(op, code, c.Engine().ErrorString)
}

func (c Comm) Rank() (int32, error) {
	var r int32
	if err := c.check("comm rank", c.Engine().CommRank(c.Raw(), &r)); err != nil {
		return 0, err
	}
	return r, nil
}

func (c Comm) Size() (int32, error) {
	var n int32
	if err := c.check("comm size", c.Engine().CommSize(c.Raw(), &n)); err != nil {
		return 0, err
	}
	return n, nil
}

// Group returns the group of ranks in c.
func (c Comm) Group() (group.Unique, error) {
	out := group.New(c.Engine())
	if err := c.check("comm group", c.Engine().CommGroup(c.Raw(), out.Addr())); err != nil {
		return group.Unique{}, err
	}
	return out, nil
}

// Dup creates a communicator with the same ranks and a fresh matching
// context. Attributes follow according to their keyval's copy policy.
func (c Comm) Dup() (Unique, error) {
	out := New(c.Engine())
	if err := c.check("comm dup", c.Engine().CommDup(c.Raw(), out.Addr())); err != nil {
		return Unique{}, err
	}
	return out, nil
}

// Create builds a communicator over g. It is collective over c; ranks
// outside g receive a null handle.
func (c Comm) Create(g group.Group) (Unique, error) {
	out := New(c.Engine())
	if err := c.check("comm create", c.Engine().CommCreate(c.Raw(), g.Raw(), out.Addr())); err != nil {
		return Unique{}, err
	}
	return out, nil
}

// Abort asks the engine to terminate every rank of c.
func (c Comm) Abort(code int32) error {
	return c.check("abort", c.Engine().Abort(c.Raw(), code))
}

// TagUB is the largest tag value the engine accepts.
func (c Comm) TagUB() (int32, error) {
	v, found, err := attrs.Get[int32](attrs.CommFamily{Eng: c.Engine()}, c.Raw(), attrs.Predefined[int32](engine.KeyTagUB))
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, errspkg.Check("tag ub", engine.ErrKeyval, c.Engine().ErrorString)
	}
	return *v, nil
}

// ImmediateProbe reports whether a message from source with tag is waiting.
func (c Comm) ImmediateProbe(source, tag int32) (request.Status, bool, error) {
	var (
		st   engine.Status
		flag bool
	)
	if err := c.check("iprobe", c.Engine().Iprobe(source, tag, c.Raw(), &flag, &st)); err != nil {
		return request.Status{}, false, err
	}
	if !flag {
		return request.Status{}, false, nil
	}
	return request.FromRaw(st), true, nil
}

// ImmediateProbeAny probes for a message with tag from any rank.
func (c Comm) ImmediateProbeAny(tag int32) (request.Status, bool, error) {
	return c.ImmediateProbe(engine.AnySource, tag)
}

// Probe blocks until a matching message is waiting, without receiving it.
func (c Comm) Probe(source, tag int32) (request.Status, error) {
	var st engine.Status
	if err := c.check("probe", c.Engine().Probe(source, tag, c.Raw(), &st)); err != nil {
		return request.Status{}, err
	}
	return request.FromRaw(st), nil
}

// violate aborts the job through the engine and hands the violation to the
// installed handler, which owns reporting it.
func (c Comm) violate(op string, rank int32, format string, args ...any) {
	v := &errspkg.ContractViolation{Op: op, Rank: rank, Detail: fmt.Sprintf(format, args...)}
	if eng := c.Engine(); eng != nil {
		_ = eng.Abort(engine.CommWorld, 1)
	}
	errspkg.Violate(v)
}

// Unique owns a communicator created by Dup or Create.
type Unique struct {
	owned handle.Owned[engine.Comm, Kind]
}

// New returns a null owner for use as an out-parameter.
func New(eng engine.Engine) Unique {
	return Unique{owned: handle.Empty[engine.Comm](Kind{Eng: eng})}
}

// Own takes ownership of raw.
func Own(eng engine.Engine, raw engine.Comm) Unique {
	return Unique{owned: handle.Own(Kind{Eng: eng}, raw)}
}

func (u Unique) Raw() engine.Comm   { return u.owned.Raw() }
func (u Unique) IsNull() bool       { return u.owned.IsNull() }
func (u Unique) Addr() *engine.Comm { return u.owned.Addr() }
func (u Unique) Take() Unique       { return Unique{owned: u.owned.Take()} }
func (u Unique) Close() error       { return u.owned.Close() }

func (u Unique) IntoRaw() engine.Comm { return u.owned.IntoRaw() }

func (u Unique) Deref() Comm {
	return Comm{ref: u.owned.Borrow()}
}
