// Package group wraps ordered sets of ranks used to carve sub-communicators.
package group

import (
	"github.com/drblury/mpiflow/internal/engine"
	errspkg "github.com/drblury/mpiflow/internal/runtime/errors"
	"github.com/drblury/mpiflow/internal/runtime/handle"
)

// Kind is the handle policy for groups. GroupEmpty belongs to the engine.
type Kind struct {
	Eng engine.Engine
}

func (Kind) Null() engine.Group           { return engine.GroupNull }
func (Kind) IsSystem(g engine.Group) bool { return g == engine.GroupEmpty }
func (Kind) Name() string                 { return "group" }

func (k Kind) Destroy(g *engine.Group) error {
	return errspkg.Check("group free", k.Eng.GroupFree(g), k.Eng.ErrorString)
}

// Range selects ranks First, First+Stride, ... up to and including Last.
type Range struct {
	First, Last, Stride int32
}

// UnitStride selects every rank from first to last.
func UnitStride(first, last int32) Range {
	return Range{First: first, Last: last, Stride: 1}
}

func triples(ranges []Range) ([][3]int32, error) {
	if _, err := errspkg.CheckCount("group ranges", len(ranges)); err != nil {
		return nil, err
	}
	out := make([][3]int32, len(ranges))
	for i, r := range ranges {
		if r.Stride == 0 {
			errspkg.Violatef("group range", -1, "range %d has zero stride", i)
		}
		out[i] = [3]int32{r.First, r.Last, r.Stride}
	}
	return out, nil
}

// Group borrows a group owned elsewhere.
type Group struct {
	ref handle.Ref[engine.Group, Kind]
}

// Borrow wraps raw without taking ownership.
func Borrow(eng engine.Engine, raw engine.Group) Group {
	return Group{ref: handle.Borrow(Kind{Eng: eng}, raw)}
}

// Empty is the engine's group with no members.
func Empty(eng engine.Engine) Group {
	return Borrow(eng, engine.GroupEmpty)
}

func (g Group) Raw() engine.Group { return g.ref.Raw() }
func (g Group) IsNull() bool      { return g.ref.IsNull() }
func (g Group) Deref() Group      { return g }

func (g Group) eng() engine.Engine { return g.ref.Kind().Eng }

func (g Group) check(op string, code engine.Code) error {
	return errspkg.Check(op, code, g.eng().ErrorString)
}

func (g Group) Size() (int32, error) {
	var n int32
	if err := g.check("group size", g.eng().GroupSize(g.Raw(), &n)); err != nil {
		return 0, err
	}
	return n, nil
}

// Rank is the caller's rank in g, or engine.Undefined when it is not a member.
func (g Group) Rank() (int32, error) {
	var r int32
	if err := g.check("group rank", g.eng().GroupRank(g.Raw(), &r)); err != nil {
		return 0, err
	}
	return r, nil
}

// RangeIncl builds a new group from the ranks selected by ranges, in order.
func (g Group) RangeIncl(ranges []Range) (Unique, error) {
	return g.derive("group range incl", ranges, g.eng().GroupRangeIncl)
}

// RangeExcl builds a new group from the ranks not selected by ranges.
func (g Group) RangeExcl(ranges []Range) (Unique, error) {
	return g.derive("group range excl", ranges, g.eng().GroupRangeExcl)
}

func (g Group) derive(op string, ranges []Range, call func(engine.Group, [][3]int32, *engine.Group) engine.Code) (Unique, error) {
	t, err := triples(ranges)
	if err != nil {
		return Unique{}, err
	}
	out := New(g.eng())
	if err := g.check(op, call(g.Raw(), t, out.Addr())); err != nil {
		return Unique{}, err
	}
	return out, nil
}

// Unique owns a group.
type Unique struct {
	owned handle.Owned[engine.Group, Kind]
}

// New returns a null owner for use as an out-parameter.
func New(eng engine.Engine) Unique {
	return Unique{owned: handle.Empty[engine.Group](Kind{Eng: eng})}
}

// Own takes ownership of raw.
func Own(eng engine.Engine, raw engine.Group) Unique {
	return Unique{owned: handle.Own(Kind{Eng: eng}, raw)}
}

func (u Unique) Raw() engine.Group   { return u.owned.Raw() }
func (u Unique) IsNull() bool        { return u.owned.IsNull() }
func (u Unique) Addr() *engine.Group { return u.owned.Addr() }
func (u Unique) Take() Unique        { return Unique{owned: u.owned.Take()} }
func (u Unique) IntoRaw() engine.Group {
	return u.owned.IntoRaw()
}
func (u Unique) Close() error { return u.owned.Close() }

func (u Unique) Deref() Group {
	return Group{ref: u.owned.Borrow()}
}

func (u Unique) Size() (int32, error) { return u.Deref().Size() }
func (u Unique) Rank() (int32, error) { return u.Deref().Rank() }

func (u Unique) RangeIncl(ranges []Range) (Unique, error) { return u.Deref().RangeIncl(ranges) }
func (u Unique) RangeExcl(ranges []Range) (Unique, error) { return u.Deref().RangeExcl(ranges) }
