package fabric

import (
	"slices"
	"unsafe"

	"github.com/drblury/mpiflow/internal/engine"
	"github.com/drblury/mpiflow/internal/runtime/datatype"
)

// recvOp is a posted receive. src is a world rank or AnySource.
type recvOp struct {
	ctx   string
	src   int32
	tag   int32
	buf   unsafe.Pointer
	count int32
	dt    engine.Datatype
	comm  *commState

	done   bool
	status engine.Status
	code   engine.Code
}

func (r *recvOp) matches(e *envelope) bool {
	return e.Ctx == r.ctx &&
		(r.src == engine.AnySource || r.src == e.Src) &&
		(r.tag == engine.AnyTag || r.tag == e.Tag)
}

// complete copies e into the receive buffer. Oversized payloads fill the
// buffer and report ErrTruncate.
func (r *recvOp) complete(e *envelope) {
	r.done = true
	r.status = engine.Status{Source: r.comm.index[e.Src], Tag: e.Tag}
	if e.Dtype != r.dt {
		r.code = engine.ErrType
		r.status.Error = r.code
		return
	}
	capacity := int(r.count) * datatype.Size(r.dt)
	n := len(e.Data)
	if n > capacity {
		n = capacity
		r.code = engine.ErrTruncate
	}
	copy(bytesAt(r.buf, n), e.Data[:n])
	r.status.Count = int32(n)
	r.status.Error = r.code
}

// matchLocked hands e to the oldest matching posted receive, or queues it.
func (p *Proc) matchLocked(e *envelope) {
	for i, r := range p.posted {
		if r.matches(e) {
			p.posted = slices.Delete(p.posted, i, i+1)
			r.complete(e)
			return
		}
	}
	p.unexpected = append(p.unexpected, e)
}

// postRecvLocked completes r from the unexpected queue or posts it.
func (p *Proc) postRecvLocked(r *recvOp) {
	for i, e := range p.unexpected {
		if r.matches(e) {
			p.unexpected = slices.Delete(p.unexpected, i, i+1)
			r.complete(e)
			return
		}
	}
	p.posted = append(p.posted, r)
}

func (p *Proc) removePostedLocked(r *recvOp) {
	if i := slices.Index(p.posted, r); i >= 0 {
		p.posted = slices.Delete(p.posted, i, i+1)
	}
}

func checkBuffer(buf unsafe.Pointer, count int32, dt engine.Datatype) engine.Code {
	switch {
	case count < 0:
		return engine.ErrCount
	case datatype.Size(dt) == 0:
		return engine.ErrType
	case buf == nil && count > 0:
		return engine.ErrBuffer
	}
	return engine.Success
}

// sendLocked validates a send and stamps its envelope.
func (p *Proc) sendLocked(buf unsafe.Pointer, count int32, dt engine.Datatype, dest, tag int32, c engine.Comm) (outgoing, engine.Code) {
	cs, code := p.commLocked(c)
	if code != engine.Success {
		return outgoing{}, code
	}
	if code := checkBuffer(buf, count, dt); code != engine.Success {
		return outgoing{}, code
	}
	if !cs.validRank(dest) {
		return outgoing{}, engine.ErrRank
	}
	if tag < 0 || tag > p.tagUB {
		return outgoing{}, engine.ErrTag
	}
	env := &envelope{
		Kind:  kindP2P,
		Ctx:   cs.ctx,
		Tag:   tag,
		Dtype: dt,
		Count: count,
		Data:  bytesAt(buf, int(count)*datatype.Size(dt)),
	}
	return p.stampLocked(cs.ranks[dest], env), engine.Success
}

// Send is eager: it returns once the envelope is handed to the publisher.
func (p *Proc) Send(buf unsafe.Pointer, count int32, dt engine.Datatype, dest, tag int32, c engine.Comm) engine.Code {
	p.mu.Lock()
	out, code := p.sendLocked(buf, count, dt, dest, tag, c)
	p.mu.Unlock()
	if code != engine.Success {
		return code
	}
	return p.publish(out)
}

func (p *Proc) Isend(buf unsafe.Pointer, count int32, dt engine.Datatype, dest, tag int32, c engine.Comm, req *engine.Request) engine.Code {
	p.mu.Lock()
	out, code := p.sendLocked(buf, count, dt, dest, tag, c)
	if code != engine.Success {
		p.mu.Unlock()
		return code
	}
	rs := &requestState{status: emptyStatus()}
	*req = p.newRequestLocked(rs)
	p.mu.Unlock()

	sent := p.publish(out)
	p.mu.Lock()
	rs.finishLocked(sent)
	p.cond.Broadcast()
	p.mu.Unlock()
	return engine.Success
}

func (p *Proc) recvLocked(buf unsafe.Pointer, count int32, dt engine.Datatype, source, tag int32, c engine.Comm) (*recvOp, engine.Code) {
	cs, code := p.commLocked(c)
	if code != engine.Success {
		return nil, code
	}
	if code := checkBuffer(buf, count, dt); code != engine.Success {
		return nil, code
	}
	src, code := p.sourceLocked(cs, source)
	if code != engine.Success {
		return nil, code
	}
	if tag < engine.AnyTag || tag > p.tagUB {
		return nil, engine.ErrTag
	}
	r := &recvOp{ctx: cs.ctx, src: src, tag: tag, buf: buf, count: count, dt: dt, comm: cs}
	p.postRecvLocked(r)
	return r, engine.Success
}

// sourceLocked maps a communicator rank to a world rank.
func (p *Proc) sourceLocked(cs *commState, source int32) (int32, engine.Code) {
	if source == engine.AnySource {
		return engine.AnySource, engine.Success
	}
	if !cs.validRank(source) {
		return 0, engine.ErrRank
	}
	return cs.ranks[source], engine.Success
}

func (p *Proc) Irecv(buf unsafe.Pointer, count int32, dt engine.Datatype, source, tag int32, c engine.Comm, req *engine.Request) engine.Code {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, code := p.recvLocked(buf, count, dt, source, tag, c)
	if code != engine.Success {
		return code
	}
	*req = p.newRequestLocked(&requestState{recv: r})
	return engine.Success
}

func (p *Proc) Recv(buf unsafe.Pointer, count int32, dt engine.Datatype, source, tag int32, c engine.Comm, status *engine.Status) engine.Code {
	p.mu.Lock()
	defer p.mu.Unlock()
	r, code := p.recvLocked(buf, count, dt, source, tag, c)
	if code != engine.Success {
		return code
	}
	if code := p.waitLocked(func() bool { return r.done }); code != engine.Success {
		p.removePostedLocked(r)
		return code
	}
	if status != nil {
		*status = r.status
	}
	return r.code
}

// probeLocked looks for a queued envelope without consuming it.
func (p *Proc) probeLocked(cs *commState, src, tag int32) (*envelope, bool) {
	probe := recvOp{ctx: cs.ctx, src: src, tag: tag}
	for _, e := range p.unexpected {
		if probe.matches(e) {
			return e, true
		}
	}
	return nil, false
}

func probeStatus(cs *commState, e *envelope) engine.Status {
	return engine.Status{Source: cs.index[e.Src], Tag: e.Tag, Count: int32(len(e.Data))}
}

func (p *Proc) probeArgsLocked(source, tag int32, c engine.Comm) (*commState, int32, engine.Code) {
	cs, code := p.commLocked(c)
	if code != engine.Success {
		return nil, 0, code
	}
	src, code := p.sourceLocked(cs, source)
	if code != engine.Success {
		return nil, 0, code
	}
	if tag < engine.AnyTag {
		return nil, 0, engine.ErrTag
	}
	return cs, src, engine.Success
}

func (p *Proc) Iprobe(source, tag int32, c engine.Comm, flag *bool, status *engine.Status) engine.Code {
	p.mu.Lock()
	defer p.mu.Unlock()
	cs, src, code := p.probeArgsLocked(source, tag, c)
	if code != engine.Success {
		return code
	}
	e, ok := p.probeLocked(cs, src, tag)
	*flag = ok
	if ok && status != nil {
		*status = probeStatus(cs, e)
	}
	return engine.Success
}

func (p *Proc) Probe(source, tag int32, c engine.Comm, status *engine.Status) engine.Code {
	p.mu.Lock()
	defer p.mu.Unlock()
	cs, src, code := p.probeArgsLocked(source, tag, c)
	if code != engine.Success {
		return code
	}
	var found *envelope
	code = p.waitLocked(func() bool {
		e, ok := p.probeLocked(cs, src, tag)
		found = e
		return ok
	})
	if code != engine.Success {
		return code
	}
	if status != nil {
		*status = probeStatus(cs, found)
	}
	return engine.Success
}
