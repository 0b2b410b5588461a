package fabric

import (
	"fmt"
	"unsafe"

	"github.com/drblury/mpiflow/internal/engine"
)

type attrTable map[engine.Keyval]unsafe.Pointer

// commState is one rank's view of a communicator. ranks maps communicator
// ranks to world ranks.
type commState struct {
	ctx      string
	ranks    []int32
	index    map[int32]int32
	me       int32
	children uint64
	windows  uint64
	collSeq  uint64
	attrs    attrTable
}

func newCommState(ctx string, ranks []int32, world int32) *commState {
	cs := &commState{
		ctx:   ctx,
		ranks: ranks,
		index: make(map[int32]int32, len(ranks)),
		me:    engine.Undefined,
		attrs: attrTable{},
	}
	for i, r := range ranks {
		cs.index[r] = int32(i)
		if r == world {
			cs.me = int32(i)
		}
	}
	return cs
}

func (cs *commState) size() int32 { return int32(len(cs.ranks)) }

// childCtx derives the context id of the next communicator created from cs.
// Every rank derives the same id as long as creations happen in the same order.
func (cs *commState) childCtx() string {
	cs.children++
	return fmt.Sprintf("%s.%d", cs.ctx, cs.children)
}

func (cs *commState) validRank(r int32) bool { return r >= 0 && r < cs.size() }

type groupState struct {
	ranks []int32
}

func (p *Proc) commLocked(c engine.Comm) (*commState, engine.Code) {
	if code := p.usableLocked(); code != engine.Success {
		return nil, code
	}
	cs, ok := p.comms[c]
	if !ok {
		return nil, engine.ErrComm
	}
	return cs, engine.Success
}

func (p *Proc) groupLocked(g engine.Group) (*groupState, engine.Code) {
	if code := p.usableLocked(); code != engine.Success {
		return nil, code
	}
	gs, ok := p.groups[g]
	if !ok {
		return nil, engine.ErrGroup
	}
	return gs, engine.Success
}

func (p *Proc) addCommLocked(cs *commState) engine.Comm {
	p.nextComm++
	p.comms[p.nextComm] = cs
	return p.nextComm
}

func (p *Proc) addGroupLocked(ranks []int32) engine.Group {
	p.nextGroup++
	p.groups[p.nextGroup] = &groupState{ranks: ranks}
	return p.nextGroup
}

func (p *Proc) CommRank(c engine.Comm, rank *int32) engine.Code {
	p.mu.Lock()
	defer p.mu.Unlock()
	cs, code := p.commLocked(c)
	if code != engine.Success {
		return code
	}
	*rank = cs.me
	return engine.Success
}

func (p *Proc) CommSize(c engine.Comm, size *int32) engine.Code {
	p.mu.Lock()
	defer p.mu.Unlock()
	cs, code := p.commLocked(c)
	if code != engine.Success {
		return code
	}
	*size = cs.size()
	return engine.Success
}

// CommDup copies c with a fresh context. Attribute copy callbacks run
// without the engine lock held. A failed copy leaves the context counter
// untouched, so a retried duplicate still lines up with the other ranks.
func (p *Proc) CommDup(c engine.Comm, out *engine.Comm) engine.Code {
	p.mu.Lock()
	cs, code := p.commLocked(c)
	if code != engine.Success {
		p.mu.Unlock()
		return code
	}
	snapshot := p.snapshotAttrsLocked(cs.attrs)
	p.mu.Unlock()

	copied, code := copyAttrs(int32(c), snapshot)
	if code != engine.Success {
		return code
	}

	p.mu.Lock()
	child := newCommState(cs.childCtx(), append([]int32(nil), cs.ranks...), p.rank)
	child.attrs = copied
	*out = p.addCommLocked(child)
	p.mu.Unlock()
	return engine.Success
}

// CommCreate builds a communicator over g. Ranks outside g still advance
// the parent's context counter so ids stay aligned across the job.
func (p *Proc) CommCreate(c engine.Comm, g engine.Group, out *engine.Comm) engine.Code {
	p.mu.Lock()
	defer p.mu.Unlock()
	cs, code := p.commLocked(c)
	if code != engine.Success {
		return code
	}
	gs, ok := p.groups[g]
	if !ok {
		return engine.ErrGroup
	}
	member := false
	for _, r := range gs.ranks {
		if _, ok := cs.index[r]; !ok {
			return engine.ErrGroup
		}
		member = member || r == p.rank
	}
	ctx := cs.childCtx()
	if !member {
		*out = engine.CommNull
		return engine.Success
	}
	*out = p.addCommLocked(newCommState(ctx, append([]int32(nil), gs.ranks...), p.rank))
	return engine.Success
}

func (p *Proc) CommGroup(c engine.Comm, out *engine.Group) engine.Code {
	p.mu.Lock()
	defer p.mu.Unlock()
	cs, code := p.commLocked(c)
	if code != engine.Success {
		return code
	}
	*out = p.addGroupLocked(append([]int32(nil), cs.ranks...))
	return engine.Success
}

func (p *Proc) CommFree(c *engine.Comm) engine.Code {
	if *c == engine.CommWorld || *c == engine.CommSelf {
		return engine.ErrComm
	}
	p.mu.Lock()
	cs, code := p.commLocked(*c)
	if code != engine.Success {
		p.mu.Unlock()
		return code
	}
	delete(p.comms, *c)
	snapshot := p.snapshotAttrsLocked(cs.attrs)
	cs.attrs = attrTable{}
	p.mu.Unlock()

	code = deleteAttrs(int32(*c), snapshot)
	*c = engine.CommNull
	return code
}

func (p *Proc) GroupSize(g engine.Group, size *int32) engine.Code {
	p.mu.Lock()
	defer p.mu.Unlock()
	gs, code := p.groupLocked(g)
	if code != engine.Success {
		return code
	}
	*size = int32(len(gs.ranks))
	return engine.Success
}

func (p *Proc) GroupRank(g engine.Group, rank *int32) engine.Code {
	p.mu.Lock()
	defer p.mu.Unlock()
	gs, code := p.groupLocked(g)
	if code != engine.Success {
		return code
	}
	*rank = engine.Undefined
	for i, r := range gs.ranks {
		if r == p.rank {
			*rank = int32(i)
			break
		}
	}
	return engine.Success
}

// expandRanges resolves (first, last, stride) triples into group positions.
func expandRanges(n int, ranges [][3]int32) ([]int, engine.Code) {
	var (
		out  []int
		seen = map[int]bool{}
	)
	for _, t := range ranges {
		first, last, stride := t[0], t[1], t[2]
		if stride == 0 {
			return nil, engine.ErrArg
		}
		for i := first; (stride > 0 && i <= last) || (stride < 0 && i >= last); i += stride {
			if i < 0 || int(i) >= n || seen[int(i)] {
				return nil, engine.ErrRank
			}
			seen[int(i)] = true
			out = append(out, int(i))
		}
	}
	return out, engine.Success
}

func (p *Proc) GroupRangeIncl(g engine.Group, ranges [][3]int32, out *engine.Group) engine.Code {
	p.mu.Lock()
	defer p.mu.Unlock()
	gs, code := p.groupLocked(g)
	if code != engine.Success {
		return code
	}
	positions, code := expandRanges(len(gs.ranks), ranges)
	if code != engine.Success {
		return code
	}
	ranks := make([]int32, len(positions))
	for i, pos := range positions {
		ranks[i] = gs.ranks[pos]
	}
	*out = p.addGroupLocked(ranks)
	return engine.Success
}

func (p *Proc) GroupRangeExcl(g engine.Group, ranges [][3]int32, out *engine.Group) engine.Code {
	p.mu.Lock()
	defer p.mu.Unlock()
	gs, code := p.groupLocked(g)
	if code != engine.Success {
		return code
	}
	positions, code := expandRanges(len(gs.ranks), ranges)
	if code != engine.Success {
		return code
	}
	excluded := make(map[int]bool, len(positions))
	for _, pos := range positions {
		excluded[pos] = true
	}
	ranks := make([]int32, 0, len(gs.ranks)-len(positions))
	for i, r := range gs.ranks {
		if !excluded[i] {
			ranks = append(ranks, r)
		}
	}
	*out = p.addGroupLocked(ranks)
	return engine.Success
}

func (p *Proc) GroupFree(g *engine.Group) engine.Code {
	if *g == engine.GroupEmpty {
		return engine.ErrGroup
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, code := p.groupLocked(*g); code != engine.Success {
		return code
	}
	delete(p.groups, *g)
	*g = engine.GroupNull
	return engine.Success
}

// OpFree rejects every handle: the fabric only knows built-in operators.
func (p *Proc) OpFree(op *engine.Op) engine.Code {
	return engine.ErrOp
}
