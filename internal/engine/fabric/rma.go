package fabric

import (
	"fmt"
	"unsafe"

	"github.com/drblury/mpiflow/internal/engine"
	"github.com/drblury/mpiflow/internal/runtime/datatype"
	"github.com/drblury/mpiflow/internal/runtime/logging"
)

// winState is one rank's share of a window plus the lock table it keeps as
// a target and the epochs it holds as an origin.
type winState struct {
	id       string
	comm     *commState
	mem      []byte
	base     unsafe.Pointer
	size     int64
	dispUnit int32
	attrs    attrTable

	// target side, keyed by world rank
	exclusive int32
	shared    map[int32]int
	queue     []lockReq

	// origin side, keyed by communicator rank
	epochs  map[int32]bool
	noCheck map[int32]bool
}

type lockReq struct {
	src  int32
	lock int32
	opID uint64
}

// rmaWait is an origin call waiting for its reply.
type rmaWait struct {
	done bool
	code engine.Code
	data []byte
}

func (p *Proc) winLocked(w engine.Win) (*winState, engine.Code) {
	if code := p.usableLocked(); code != engine.Success {
		return nil, code
	}
	ws, ok := p.wins[w]
	if !ok {
		return nil, engine.ErrWin
	}
	return ws, engine.Success
}

// WinAllocate is collective over c. It returns after every member has
// registered the window, so remote calls never reach an unknown id.
func (p *Proc) WinAllocate(size int64, dispUnit int32, c engine.Comm, base *unsafe.Pointer, w *engine.Win) engine.Code {
	if size < 0 || dispUnit <= 0 {
		return engine.ErrArg
	}
	p.mu.Lock()
	cs, code := p.commLocked(c)
	if code != engine.Success {
		p.mu.Unlock()
		return code
	}
	cs.windows++
	ws := &winState{
		id:        fmt.Sprintf("%s/w%d", cs.ctx, cs.windows),
		comm:      cs,
		mem:       aligned(int(size)),
		size:      size,
		dispUnit:  dispUnit,
		attrs:     attrTable{},
		exclusive: -1,
		shared:    map[int32]int{},
		epochs:    map[int32]bool{},
		noCheck:   map[int32]bool{},
	}
	if len(ws.mem) > 0 {
		ws.base = unsafe.Pointer(unsafe.SliceData(ws.mem))
	}
	p.nextWin++
	handle := p.nextWin
	p.wins[handle] = ws
	p.winsByID[ws.id] = ws
	k := p.collectiveLocked("win_allocate", cs)
	p.mu.Unlock()

	if code := k.end(k.barrier()); code != engine.Success {
		return code
	}
	*base = ws.base
	*w = handle
	return engine.Success
}

// WinFree is collective. Open epochs make it fail with ErrRMASync.
func (p *Proc) WinFree(w *engine.Win) engine.Code {
	p.mu.Lock()
	ws, code := p.winLocked(*w)
	if code != engine.Success {
		p.mu.Unlock()
		return code
	}
	if len(ws.epochs) > 0 {
		p.mu.Unlock()
		return engine.ErrRMASync
	}
	k := p.collectiveLocked("win_free", ws.comm)
	p.mu.Unlock()

	if code := k.end(k.barrier()); code != engine.Success {
		return code
	}

	p.mu.Lock()
	delete(p.wins, *w)
	delete(p.winsByID, ws.id)
	snapshot := p.snapshotAttrsLocked(ws.attrs)
	ws.attrs = attrTable{}
	p.mu.Unlock()

	code = deleteAttrs(int32(*w), snapshot)
	*w = engine.WinNull
	return code
}

// rmaCall sends env to target and blocks until the reply arrives.
func (p *Proc) rmaCall(ws *winState, target int32, env *envelope) ([]byte, engine.Code) {
	p.mu.Lock()
	p.nextOpID++
	wait := &rmaWait{}
	p.pending[p.nextOpID] = wait
	env.OpID = p.nextOpID
	env.Ctx = ws.id
	out := p.stampLocked(ws.comm.ranks[target], env)
	p.mu.Unlock()

	if code := p.publish(out); code != engine.Success {
		p.mu.Lock()
		delete(p.pending, env.OpID)
		p.mu.Unlock()
		return nil, code
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	code := p.waitLocked(func() bool { return wait.done })
	delete(p.pending, env.OpID)
	if code != engine.Success {
		return nil, code
	}
	p.metrics.RMAOperation(p.rank, env.Kind.String())
	return wait.data, wait.code
}

func (p *Proc) replyLocked(to *envelope, k kind, code engine.Code, data []byte) []outgoing {
	reply := &envelope{Kind: k, Ctx: to.Ctx, OpID: to.OpID, Code: code, Data: data}
	return []outgoing{p.stampLocked(to.Src, reply)}
}

// span resolves a target displacement into window memory.
func (ws *winState) span(disp int64, n int) ([]byte, engine.Code) {
	off := disp * int64(ws.dispUnit)
	if disp < 0 || off+int64(n) > ws.size {
		return nil, engine.ErrArg
	}
	return ws.mem[off : off+int64(n)], engine.Success
}

func (p *Proc) handlePutLocked(env *envelope) []outgoing {
	ws, ok := p.winsByID[env.Ctx]
	if !ok {
		return p.replyLocked(env, kindRMAReply, engine.ErrWin, nil)
	}
	dst, code := ws.span(env.Disp, len(env.Data))
	if code == engine.Success {
		copy(dst, env.Data)
	}
	return p.replyLocked(env, kindRMAReply, code, nil)
}

func (p *Proc) handleGetLocked(env *envelope) []outgoing {
	ws, ok := p.winsByID[env.Ctx]
	if !ok {
		return p.replyLocked(env, kindRMAReply, engine.ErrWin, nil)
	}
	src, code := ws.span(env.Disp, int(env.Count)*datatype.Size(env.Dtype))
	if code != engine.Success {
		return p.replyLocked(env, kindRMAReply, code, nil)
	}
	return p.replyLocked(env, kindRMAReply, engine.Success, append([]byte(nil), src...))
}

func (ws *winState) grantable(lock int32) bool {
	if lock == engine.LockExclusive {
		return ws.exclusive < 0 && len(ws.shared) == 0
	}
	return ws.exclusive < 0
}

func (ws *winState) grant(req lockReq) {
	if req.lock == engine.LockExclusive {
		ws.exclusive = req.src
		return
	}
	ws.shared[req.src]++
}

// handleLockLocked grants locks in arrival order. A request that cannot be
// granted waits, and so does everything queued behind it.
func (p *Proc) handleLockLocked(env *envelope) []outgoing {
	ws, ok := p.winsByID[env.Ctx]
	if !ok {
		return p.replyLocked(env, kindLockGrant, engine.ErrWin, nil)
	}
	req := lockReq{src: env.Src, lock: env.Lock, opID: env.OpID}
	if len(ws.queue) == 0 && ws.grantable(req.lock) {
		ws.grant(req)
		return p.replyLocked(env, kindLockGrant, engine.Success, nil)
	}
	ws.queue = append(ws.queue, req)
	p.log.Trace("lock queued", logging.LogFields{"window": ws.id, "from": env.Src, "queued": len(ws.queue)})
	return nil
}

func (p *Proc) handleUnlockLocked(env *envelope) []outgoing {
	ws, ok := p.winsByID[env.Ctx]
	if !ok {
		return p.replyLocked(env, kindUnlockAck, engine.ErrWin, nil)
	}
	switch {
	case ws.exclusive == env.Src:
		ws.exclusive = -1
	case ws.shared[env.Src] > 0:
		ws.shared[env.Src]--
		if ws.shared[env.Src] == 0 {
			delete(ws.shared, env.Src)
		}
	default:
		return p.replyLocked(env, kindUnlockAck, engine.ErrRMASync, nil)
	}
	out := p.replyLocked(env, kindUnlockAck, engine.Success, nil)
	for len(ws.queue) > 0 && ws.grantable(ws.queue[0].lock) {
		next := ws.queue[0]
		ws.queue = ws.queue[1:]
		ws.grant(next)
		grant := &envelope{Src: next.src, Ctx: ws.id, OpID: next.opID}
		out = append(out, p.replyLocked(grant, kindLockGrant, engine.Success, nil)...)
	}
	return out
}

func (p *Proc) WinLock(lockType, rank, assert int32, w engine.Win) engine.Code {
	p.mu.Lock()
	ws, code := p.winLocked(w)
	if code != engine.Success {
		p.mu.Unlock()
		return code
	}
	switch {
	case lockType != engine.LockExclusive && lockType != engine.LockShared:
		p.mu.Unlock()
		return engine.ErrArg
	case !ws.comm.validRank(rank):
		p.mu.Unlock()
		return engine.ErrRank
	case ws.epochs[rank]:
		p.mu.Unlock()
		return engine.ErrRMASync
	case assert&engine.ModeNoCheck != 0:
		ws.epochs[rank] = true
		ws.noCheck[rank] = true
		p.mu.Unlock()
		return engine.Success
	}
	p.mu.Unlock()

	if _, code := p.rmaCall(ws, rank, &envelope{Kind: kindLock, Lock: lockType}); code != engine.Success {
		return code
	}
	p.mu.Lock()
	ws.epochs[rank] = true
	p.mu.Unlock()
	return engine.Success
}

func (p *Proc) WinUnlock(rank int32, w engine.Win) engine.Code {
	p.mu.Lock()
	ws, code := p.winLocked(w)
	if code != engine.Success {
		p.mu.Unlock()
		return code
	}
	if !ws.comm.validRank(rank) {
		p.mu.Unlock()
		return engine.ErrRank
	}
	if !ws.epochs[rank] {
		p.mu.Unlock()
		return engine.ErrRMASync
	}
	if ws.noCheck[rank] {
		delete(ws.epochs, rank)
		delete(ws.noCheck, rank)
		p.mu.Unlock()
		return engine.Success
	}
	p.mu.Unlock()

	_, code = p.rmaCall(ws, rank, &envelope{Kind: kindUnlock})
	p.mu.Lock()
	delete(ws.epochs, rank)
	p.mu.Unlock()
	return code
}

// WinLockAll takes a shared lock on every member in rank order.
func (p *Proc) WinLockAll(assert int32, w engine.Win) engine.Code {
	p.mu.Lock()
	ws, code := p.winLocked(w)
	if code != engine.Success {
		p.mu.Unlock()
		return code
	}
	if len(ws.epochs) > 0 {
		p.mu.Unlock()
		return engine.ErrRMASync
	}
	size := ws.comm.size()
	p.mu.Unlock()

	for r := int32(0); r < size; r++ {
		if code := p.WinLock(engine.LockShared, r, assert, w); code != engine.Success {
			return code
		}
	}
	return engine.Success
}

func (p *Proc) WinUnlockAll(w engine.Win) engine.Code {
	p.mu.Lock()
	ws, code := p.winLocked(w)
	if code != engine.Success {
		p.mu.Unlock()
		return code
	}
	size := ws.comm.size()
	if len(ws.epochs) == 0 {
		p.mu.Unlock()
		return engine.ErrRMASync
	}
	p.mu.Unlock()

	first := engine.Success
	for r := int32(0); r < size; r++ {
		p.mu.Lock()
		open := ws.epochs[r]
		p.mu.Unlock()
		if !open {
			continue
		}
		if code := p.WinUnlock(r, w); code != engine.Success && first == engine.Success {
			first = code
		}
	}
	return first
}

// WinFlushAll has nothing to do: every put and get is acknowledged by its
// target before it returns.
func (p *Proc) WinFlushAll(w engine.Win) engine.Code {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, code := p.winLocked(w)
	return code
}

// rmaArgsLocked validates an origin call and requires an open epoch on target.
func (p *Proc) rmaArgsLocked(originBuf unsafe.Pointer, originCount int32, originType engine.Datatype, target int32, targetDisp int64, targetCount int32, targetType engine.Datatype, w engine.Win) (*winState, engine.Code) {
	ws, code := p.winLocked(w)
	if code != engine.Success {
		return nil, code
	}
	if code := checkBuffer(originBuf, originCount, originType); code != engine.Success {
		return nil, code
	}
	switch {
	case !ws.comm.validRank(target):
		return nil, engine.ErrRank
	case originType != targetType:
		return nil, engine.ErrType
	case originCount != targetCount:
		return nil, engine.ErrCount
	case targetDisp < 0:
		return nil, engine.ErrArg
	case !ws.epochs[target]:
		return nil, engine.ErrRMASync
	}
	return ws, engine.Success
}

func (p *Proc) Put(originBuf unsafe.Pointer, originCount int32, originType engine.Datatype, target int32, targetDisp int64, targetCount int32, targetType engine.Datatype, w engine.Win) engine.Code {
	p.mu.Lock()
	ws, code := p.rmaArgsLocked(originBuf, originCount, originType, target, targetDisp, targetCount, targetType, w)
	p.mu.Unlock()
	if code != engine.Success {
		return code
	}
	env := &envelope{
		Kind:  kindPut,
		Dtype: targetType,
		Count: targetCount,
		Disp:  targetDisp,
		Data:  bytesAt(originBuf, int(originCount)*datatype.Size(originType)),
	}
	_, code = p.rmaCall(ws, target, env)
	return code
}

func (p *Proc) Get(originBuf unsafe.Pointer, originCount int32, originType engine.Datatype, target int32, targetDisp int64, targetCount int32, targetType engine.Datatype, w engine.Win) engine.Code {
	p.mu.Lock()
	ws, code := p.rmaArgsLocked(originBuf, originCount, originType, target, targetDisp, targetCount, targetType, w)
	p.mu.Unlock()
	if code != engine.Success {
		return code
	}
	env := &envelope{Kind: kindGet, Dtype: targetType, Count: targetCount, Disp: targetDisp}
	data, code := p.rmaCall(ws, target, env)
	if code != engine.Success {
		return code
	}
	copy(bytesAt(originBuf, int(originCount)*datatype.Size(originType)), data)
	return engine.Success
}
