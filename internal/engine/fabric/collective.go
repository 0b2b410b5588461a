package fabric

import (
	"time"
	"unsafe"

	"github.com/drblury/mpiflow/internal/engine"
	"github.com/drblury/mpiflow/internal/runtime/datatype"
	"github.com/drblury/mpiflow/internal/runtime/logging"
	"github.com/drblury/mpiflow/internal/runtime/op"
)

// collective is one collective call on one rank. Its traffic lives in a
// context of its own so user wildcards never match it, and every call on a
// communicator gets the next sequence number, which is folded into the tag.
type collective struct {
	p     *Proc
	cs    *commState
	ctx   string
	seq   uint64
	name  string
	began time.Time
}

func (p *Proc) beginCollective(name string, c engine.Comm) (*collective, engine.Code) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cs, code := p.commLocked(c)
	if code != engine.Success {
		return nil, code
	}
	return p.collectiveLocked(name, cs), engine.Success
}

func (p *Proc) collectiveLocked(name string, cs *commState) *collective {
	k := &collective{p: p, cs: cs, ctx: cs.ctx + "#c", seq: cs.collSeq, name: name, began: time.Now()}
	cs.collSeq++
	return k
}

func (k *collective) end(code engine.Code) engine.Code {
	k.p.metrics.CollectiveDone(k.p.rank, k.name, time.Since(k.began))
	if code != engine.Success {
		k.p.log.Debug("collective failed", logging.LogFields{"op": k.name, "seq": k.seq, "code": code.String()})
	}
	return code
}

func (k *collective) tag(phase uint64) int32 {
	return int32((k.seq<<2 | phase) & 0x7fffffff)
}

func (k *collective) me() int32   { return k.cs.me }
func (k *collective) size() int32 { return k.cs.size() }

func (k *collective) send(dst int32, phase uint64, buf unsafe.Pointer, count int32, dt engine.Datatype) engine.Code {
	env := &envelope{
		Kind:  kindP2P,
		Ctx:   k.ctx,
		Tag:   k.tag(phase),
		Dtype: dt,
		Count: count,
		Data:  bytesAt(buf, int(count)*datatype.Size(dt)),
	}
	return k.p.post(k.cs.ranks[dst], env)
}

func (k *collective) recv(src int32, phase uint64, buf unsafe.Pointer, count int32, dt engine.Datatype) engine.Code {
	p := k.p
	p.mu.Lock()
	defer p.mu.Unlock()
	r := &recvOp{ctx: k.ctx, src: k.cs.ranks[src], tag: k.tag(phase), buf: buf, count: count, dt: dt, comm: k.cs}
	p.postRecvLocked(r)
	if code := p.waitLocked(func() bool { return r.done }); code != engine.Success {
		p.removePostedLocked(r)
		return code
	}
	return r.code
}

func (k *collective) barrier() engine.Code {
	if k.me() == 0 {
		for r := int32(1); r < k.size(); r++ {
			if code := k.recv(r, 0, nil, 0, engine.Uint8); code != engine.Success {
				return code
			}
		}
		for r := int32(1); r < k.size(); r++ {
			if code := k.send(r, 1, nil, 0, engine.Uint8); code != engine.Success {
				return code
			}
		}
		return engine.Success
	}
	if code := k.send(0, 0, nil, 0, engine.Uint8); code != engine.Success {
		return code
	}
	return k.recv(0, 1, nil, 0, engine.Uint8)
}

func (k *collective) bcast(phase uint64, root int32, buf unsafe.Pointer, count int32, dt engine.Datatype) engine.Code {
	if k.me() != root {
		return k.recv(root, phase, buf, count, dt)
	}
	for r := int32(0); r < k.size(); r++ {
		if r == root {
			continue
		}
		if code := k.send(r, phase, buf, count, dt); code != engine.Success {
			return code
		}
	}
	return engine.Success
}

func (k *collective) gather(phase uint64, root int32, sendBuf unsafe.Pointer, sendCount int32, sendType engine.Datatype, recvBuf unsafe.Pointer, recvCount int32, recvType engine.Datatype) engine.Code {
	if k.me() != root {
		return k.send(root, phase, sendBuf, sendCount, sendType)
	}
	if code := checkBuffer(recvBuf, recvCount, recvType); code != engine.Success {
		return code
	}
	switch {
	case sendType != recvType:
		return engine.ErrType
	case sendCount > recvCount:
		return engine.ErrTruncate
	}
	chunk := int(recvCount) * datatype.Size(recvType)
	for r := int32(0); r < k.size(); r++ {
		slot := unsafe.Add(recvBuf, int(r)*chunk)
		if r == root {
			copy(bytesAt(slot, chunk), bytesAt(sendBuf, int(sendCount)*datatype.Size(sendType)))
			continue
		}
		if code := k.recv(r, phase, slot, recvCount, recvType); code != engine.Success {
			return code
		}
	}
	return engine.Success
}

func (k *collective) reduce(phase uint64, root int32, sendBuf, recvBuf unsafe.Pointer, count int32, dt engine.Datatype, o engine.Op) engine.Code {
	if k.me() != root {
		return k.send(root, phase, sendBuf, count, dt)
	}
	n := int(count) * datatype.Size(dt)
	acc := aligned(n)
	in := aligned(n)
	for r := int32(0); r < k.size(); r++ {
		dst := in
		if r == 0 {
			dst = acc
		}
		if r == root {
			copy(dst, bytesAt(sendBuf, n))
		} else if code := k.recv(r, phase, unsafe.Pointer(unsafe.SliceData(dst)), count, dt); code != engine.Success {
			return code
		}
		if r > 0 {
			if code := fold(o, dt, acc, in); code != engine.Success {
				return code
			}
		}
	}
	copy(bytesAt(recvBuf, n), acc)
	return engine.Success
}

func (p *Proc) Barrier(c engine.Comm) engine.Code {
	k, code := p.beginCollective("barrier", c)
	if code != engine.Success {
		return code
	}
	return k.end(k.barrier())
}

// Ibarrier claims its sequence number at once and completes in the
// background.
func (p *Proc) Ibarrier(c engine.Comm, req *engine.Request) engine.Code {
	k, code := p.beginCollective("ibarrier", c)
	if code != engine.Success {
		return code
	}
	p.mu.Lock()
	rs := &requestState{status: emptyStatus()}
	*req = p.newRequestLocked(rs)
	p.mu.Unlock()

	go func() {
		code := k.end(k.barrier())
		p.mu.Lock()
		rs.finishLocked(code)
		p.cond.Broadcast()
		p.mu.Unlock()
	}()
	return engine.Success
}

func (p *Proc) Bcast(buf unsafe.Pointer, count int32, dt engine.Datatype, root int32, c engine.Comm) engine.Code {
	k, code := p.beginCollective("bcast", c)
	if code != engine.Success {
		return code
	}
	if !k.cs.validRank(root) {
		return k.end(engine.ErrRoot)
	}
	if code := checkBuffer(buf, count, dt); code != engine.Success {
		return k.end(code)
	}
	return k.end(k.bcast(0, root, buf, count, dt))
}

func (p *Proc) Gather(sendBuf unsafe.Pointer, sendCount int32, sendType engine.Datatype, recvBuf unsafe.Pointer, recvCount int32, recvType engine.Datatype, root int32, c engine.Comm) engine.Code {
	k, code := p.beginCollective("gather", c)
	if code != engine.Success {
		return code
	}
	if !k.cs.validRank(root) {
		return k.end(engine.ErrRoot)
	}
	if code := checkBuffer(sendBuf, sendCount, sendType); code != engine.Success {
		return k.end(code)
	}
	return k.end(k.gather(0, root, sendBuf, sendCount, sendType, recvBuf, recvCount, recvType))
}

// Allgather gathers to rank 0 and broadcasts the assembled buffer.
func (p *Proc) Allgather(sendBuf unsafe.Pointer, sendCount int32, sendType engine.Datatype, recvBuf unsafe.Pointer, recvCount int32, recvType engine.Datatype, c engine.Comm) engine.Code {
	k, code := p.beginCollective("allgather", c)
	if code != engine.Success {
		return code
	}
	if code := checkBuffer(sendBuf, sendCount, sendType); code != engine.Success {
		return k.end(code)
	}
	if code := checkBuffer(recvBuf, recvCount, recvType); code != engine.Success {
		return k.end(code)
	}
	if code := k.gather(0, 0, sendBuf, sendCount, sendType, recvBuf, recvCount, recvType); code != engine.Success {
		return k.end(code)
	}
	return k.end(k.bcast(1, 0, recvBuf, recvCount*k.size(), recvType))
}

func (p *Proc) Alltoall(sendBuf unsafe.Pointer, sendCount int32, sendType engine.Datatype, recvBuf unsafe.Pointer, recvCount int32, recvType engine.Datatype, c engine.Comm) engine.Code {
	k, code := p.beginCollective("alltoall", c)
	if code != engine.Success {
		return code
	}
	if code := checkBuffer(sendBuf, sendCount, sendType); code != engine.Success {
		return k.end(code)
	}
	if code := checkBuffer(recvBuf, recvCount, recvType); code != engine.Success {
		return k.end(code)
	}
	switch {
	case sendType != recvType:
		return k.end(engine.ErrType)
	case sendCount > recvCount:
		return k.end(engine.ErrTruncate)
	}
	sendChunk := int(sendCount) * datatype.Size(sendType)
	recvChunk := int(recvCount) * datatype.Size(recvType)
	for r := int32(0); r < k.size(); r++ {
		if r == k.me() {
			continue
		}
		if code := k.send(r, 0, unsafe.Add(sendBuf, int(r)*sendChunk), sendCount, sendType); code != engine.Success {
			return k.end(code)
		}
	}
	for r := int32(0); r < k.size(); r++ {
		slot := unsafe.Add(recvBuf, int(r)*recvChunk)
		if r == k.me() {
			copy(bytesAt(slot, recvChunk), bytesAt(unsafe.Add(sendBuf, int(r)*sendChunk), sendChunk))
			continue
		}
		if code := k.recv(r, 0, slot, recvCount, recvType); code != engine.Success {
			return k.end(code)
		}
	}
	return k.end(engine.Success)
}

func checkReduce(sendBuf unsafe.Pointer, count int32, dt engine.Datatype, o engine.Op) engine.Code {
	if code := checkBuffer(sendBuf, count, dt); code != engine.Success {
		return code
	}
	if !op.Applicable(o, dt) {
		return engine.ErrOp
	}
	return engine.Success
}

// Reduce folds contributions in rank order, so floating point results are
// the same on every run.
func (p *Proc) Reduce(sendBuf, recvBuf unsafe.Pointer, count int32, dt engine.Datatype, o engine.Op, root int32, c engine.Comm) engine.Code {
	k, code := p.beginCollective("reduce", c)
	if code != engine.Success {
		return code
	}
	if !k.cs.validRank(root) {
		return k.end(engine.ErrRoot)
	}
	if code := checkReduce(sendBuf, count, dt, o); code != engine.Success {
		return k.end(code)
	}
	if k.me() == root && recvBuf == nil && count > 0 {
		return k.end(engine.ErrBuffer)
	}
	return k.end(k.reduce(0, root, sendBuf, recvBuf, count, dt, o))
}

func (p *Proc) Allreduce(sendBuf, recvBuf unsafe.Pointer, count int32, dt engine.Datatype, o engine.Op, c engine.Comm) engine.Code {
	k, code := p.beginCollective("allreduce", c)
	if code != engine.Success {
		return code
	}
	if code := checkReduce(sendBuf, count, dt, o); code != engine.Success {
		return k.end(code)
	}
	if recvBuf == nil && count > 0 {
		return k.end(engine.ErrBuffer)
	}
	if code := k.reduce(0, 0, sendBuf, recvBuf, count, dt, o); code != engine.Success {
		return k.end(code)
	}
	return k.end(k.bcast(1, 0, recvBuf, count, dt))
}
