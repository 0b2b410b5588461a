package fabric

import (
	"github.com/drblury/mpiflow/internal/engine"
)

// requestState backs a request handle. Receives complete through recv;
// everything else is finished explicitly.
type requestState struct {
	recv *recvOp

	done   bool
	status engine.Status
	code   engine.Code
}

func emptyStatus() engine.Status {
	return engine.Status{Source: engine.AnySource, Tag: engine.AnyTag}
}

func (rs *requestState) ready() bool {
	if rs.recv != nil {
		return rs.recv.done
	}
	return rs.done
}

func (rs *requestState) result() (engine.Status, engine.Code) {
	if rs.recv != nil {
		return rs.recv.status, rs.recv.code
	}
	return rs.status, rs.code
}

func (rs *requestState) finishLocked(code engine.Code) {
	rs.done = true
	rs.code = code
	rs.status.Error = code
}

func (p *Proc) newRequestLocked(rs *requestState) engine.Request {
	p.nextReq++
	p.requests[p.nextReq] = rs
	p.metrics.RequestStarted(p.rank)
	return p.nextReq
}

func (p *Proc) retireLocked(req *engine.Request) {
	delete(p.requests, *req)
	*req = engine.RequestNull
	p.metrics.RequestRetired(p.rank)
}

func (p *Proc) requestLocked(req engine.Request) (*requestState, engine.Code) {
	if code := p.usableLocked(); code != engine.Success {
		return nil, code
	}
	rs, ok := p.requests[req]
	if !ok {
		return nil, engine.ErrRequest
	}
	return rs, engine.Success
}

// activeLocked resolves every non-null handle in reqs. Null entries are nil.
func (p *Proc) activeLocked(reqs []engine.Request) ([]*requestState, int, engine.Code) {
	if code := p.usableLocked(); code != engine.Success {
		return nil, 0, code
	}
	states := make([]*requestState, len(reqs))
	active := 0
	for i, req := range reqs {
		if req == engine.RequestNull {
			continue
		}
		rs, ok := p.requests[req]
		if !ok {
			return nil, 0, engine.ErrRequest
		}
		states[i] = rs
		active++
	}
	return states, active, engine.Success
}

// Wait blocks until req completes, then frees it. A null request completes
// at once with an empty status.
func (p *Proc) Wait(req *engine.Request, status *engine.Status) engine.Code {
	p.mu.Lock()
	defer p.mu.Unlock()
	if *req == engine.RequestNull {
		if status != nil {
			*status = emptyStatus()
		}
		return engine.Success
	}
	rs, code := p.requestLocked(*req)
	if code != engine.Success {
		return code
	}
	if code := p.waitLocked(rs.ready); code != engine.Success {
		return code
	}
	st, code := rs.result()
	p.retireLocked(req)
	if status != nil {
		*status = st
	}
	return code
}

func (p *Proc) Test(req *engine.Request, flag *bool, status *engine.Status) engine.Code {
	p.mu.Lock()
	defer p.mu.Unlock()
	if *req == engine.RequestNull {
		*flag = true
		if status != nil {
			*status = emptyStatus()
		}
		return engine.Success
	}
	rs, code := p.requestLocked(*req)
	if code != engine.Success {
		return code
	}
	*flag = rs.ready()
	if !*flag {
		return engine.Success
	}
	st, code := rs.result()
	p.retireLocked(req)
	if status != nil {
		*status = st
	}
	return code
}

func (p *Proc) Waitany(reqs []engine.Request, index *int32, status *engine.Status) engine.Code {
	p.mu.Lock()
	defer p.mu.Unlock()
	states, active, code := p.activeLocked(reqs)
	if code != engine.Success {
		return code
	}
	if active == 0 {
		*index = engine.Undefined
		if status != nil {
			*status = emptyStatus()
		}
		return engine.Success
	}
	found := -1
	code = p.waitLocked(func() bool {
		for i, rs := range states {
			if rs != nil && rs.ready() {
				found = i
				return true
			}
		}
		return false
	})
	if code != engine.Success {
		return code
	}
	st, code := states[found].result()
	p.retireLocked(&reqs[found])
	*index = int32(found)
	if status != nil {
		*status = st
	}
	return code
}

// Waitall completes every request and reports the first failure.
func (p *Proc) Waitall(reqs []engine.Request, statuses []engine.Status) engine.Code {
	if statuses != nil && len(statuses) < len(reqs) {
		return engine.ErrArg
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	states, _, code := p.activeLocked(reqs)
	if code != engine.Success {
		return code
	}
	code = p.waitLocked(func() bool {
		for _, rs := range states {
			if rs != nil && !rs.ready() {
				return false
			}
		}
		return true
	})
	if code != engine.Success {
		return code
	}
	first := engine.Success
	for i, rs := range states {
		st := emptyStatus()
		if rs != nil {
			var c engine.Code
			st, c = rs.result()
			p.retireLocked(&reqs[i])
			if c != engine.Success && first == engine.Success {
				first = c
			}
		}
		if statuses != nil {
			statuses[i] = st
		}
	}
	return first
}

func (p *Proc) Waitsome(reqs []engine.Request, outCount *int32, indices []int32, statuses []engine.Status) engine.Code {
	if len(indices) < len(reqs) || (statuses != nil && len(statuses) < len(reqs)) {
		return engine.ErrArg
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	states, active, code := p.activeLocked(reqs)
	if code != engine.Success {
		return code
	}
	if active == 0 {
		*outCount = engine.Undefined
		return engine.Success
	}
	code = p.waitLocked(func() bool {
		for _, rs := range states {
			if rs != nil && rs.ready() {
				return true
			}
		}
		return false
	})
	if code != engine.Success {
		return code
	}
	first := engine.Success
	n := int32(0)
	for i, rs := range states {
		if rs == nil || !rs.ready() {
			continue
		}
		st, c := rs.result()
		p.retireLocked(&reqs[i])
		indices[n] = int32(i)
		if statuses != nil {
			statuses[n] = st
		}
		if c != engine.Success && first == engine.Success {
			first = c
		}
		n++
	}
	*outCount = n
	return first
}

// RequestFree releases req. A pending receive is withdrawn.
func (p *Proc) RequestFree(req *engine.Request) engine.Code {
	p.mu.Lock()
	defer p.mu.Unlock()
	rs, code := p.requestLocked(*req)
	if code != engine.Success {
		return code
	}
	if rs.recv != nil && !rs.recv.done {
		p.removePostedLocked(rs.recv)
	}
	p.retireLocked(req)
	return engine.Success
}
