package fabric

import (
	"sort"
	"unsafe"

	"github.com/drblury/mpiflow/internal/engine"
)

type keyvalState struct {
	copyFn   engine.CopyAttrFunc
	deleteFn engine.DeleteAttrFunc
	extra    any
	win      bool
	freed    bool
}

type attrEntry struct {
	key   engine.Keyval
	kv    *keyvalState
	value unsafe.Pointer
}

func predefinedKey(k engine.Keyval) bool {
	return k >= engine.KeyTagUB && k <= engine.KeyWinDispUnit
}

func (p *Proc) snapshotAttrsLocked(table attrTable) []attrEntry {
	out := make([]attrEntry, 0, len(table))
	for key, v := range table {
		out = append(out, attrEntry{key: key, kv: p.keyvals[key], value: v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key < out[j].key })
	return out
}

// copyAttrs runs the copy callbacks for a duplicated handle in key order.
// When a callback fails, the values copied before it are handed to their
// delete callbacks and nothing is returned.
func copyAttrs(handle int32, entries []attrEntry) (attrTable, engine.Code) {
	out := attrTable{}
	var done []attrEntry
	for _, e := range entries {
		if e.kv == nil || e.kv.copyFn == nil {
			continue
		}
		var (
			v    unsafe.Pointer
			flag bool
		)
		if code := e.kv.copyFn(handle, e.key, e.kv.extra, e.value, &v, &flag); code != engine.Success {
			_ = deleteAttrs(handle, done)
			return nil, code
		}
		if flag {
			out[e.key] = v
			done = append(done, attrEntry{key: e.key, kv: e.kv, value: v})
		}
	}
	return out, engine.Success
}

// deleteAttrs runs the delete callbacks for a released handle.
func deleteAttrs(handle int32, entries []attrEntry) engine.Code {
	code := engine.Success
	for _, e := range entries {
		if e.kv == nil || e.kv.deleteFn == nil {
			continue
		}
		if c := e.kv.deleteFn(handle, e.key, e.value, e.kv.extra); c != engine.Success && code == engine.Success {
			code = c
		}
	}
	return code
}

func (p *Proc) createKeyval(win bool, copyFn engine.CopyAttrFunc, deleteFn engine.DeleteAttrFunc, key *engine.Keyval, extra any) engine.Code {
	p.mu.Lock()
	defer p.mu.Unlock()
	if code := p.usableLocked(); code != engine.Success {
		return code
	}
	p.nextKeyval++
	p.keyvals[p.nextKeyval] = &keyvalState{copyFn: copyFn, deleteFn: deleteFn, extra: extra, win: win}
	*key = p.nextKeyval
	return engine.Success
}

// freeKeyval retires key. Values still attached keep their callbacks.
func (p *Proc) freeKeyval(win bool, key *engine.Keyval) engine.Code {
	p.mu.Lock()
	defer p.mu.Unlock()
	if code := p.usableLocked(); code != engine.Success {
		return code
	}
	kv, ok := p.keyvals[*key]
	if !ok || kv.win != win || kv.freed {
		return engine.ErrKeyval
	}
	kv.freed = true
	*key = engine.KeyvalInvalid
	return engine.Success
}

func (p *Proc) userKeyLocked(win bool, key engine.Keyval) (*keyvalState, engine.Code) {
	kv, ok := p.keyvals[key]
	if !ok || kv.win != win {
		return nil, engine.ErrKeyval
	}
	return kv, engine.Success
}

// setAttrLocked stores value and returns the entry it displaced, whose
// delete callback the caller runs after unlocking.
func (p *Proc) setAttrLocked(win bool, table attrTable, key engine.Keyval, value unsafe.Pointer) ([]attrEntry, engine.Code) {
	if predefinedKey(key) {
		return nil, engine.ErrKeyval
	}
	kv, code := p.userKeyLocked(win, key)
	if code != engine.Success {
		return nil, code
	}
	if kv.freed {
		return nil, engine.ErrKeyval
	}
	old, had := table[key]
	table[key] = value
	if !had {
		return nil, engine.Success
	}
	return []attrEntry{{key: key, kv: kv, value: old}}, engine.Success
}

func (p *Proc) getAttrLocked(win bool, table attrTable, key engine.Keyval, value *unsafe.Pointer, found *bool) engine.Code {
	if _, code := p.userKeyLocked(win, key); code != engine.Success {
		return code
	}
	*value, *found = table[key]
	return engine.Success
}

func (p *Proc) deleteAttrLocked(win bool, table attrTable, key engine.Keyval) ([]attrEntry, engine.Code) {
	kv, code := p.userKeyLocked(win, key)
	if code != engine.Success {
		return nil, code
	}
	old, had := table[key]
	if !had {
		return nil, engine.ErrKeyval
	}
	delete(table, key)
	return []attrEntry{{key: key, kv: kv, value: old}}, engine.Success
}

func (p *Proc) CommCreateKeyval(copyFn engine.CopyAttrFunc, deleteFn engine.DeleteAttrFunc, key *engine.Keyval, extra any) engine.Code {
	return p.createKeyval(false, copyFn, deleteFn, key, extra)
}

func (p *Proc) CommFreeKeyval(key *engine.Keyval) engine.Code {
	return p.freeKeyval(false, key)
}

func (p *Proc) CommSetAttr(c engine.Comm, key engine.Keyval, value unsafe.Pointer) engine.Code {
	p.mu.Lock()
	cs, code := p.commLocked(c)
	if code != engine.Success {
		p.mu.Unlock()
		return code
	}
	displaced, code := p.setAttrLocked(false, cs.attrs, key, value)
	p.mu.Unlock()
	if code != engine.Success {
		return code
	}
	return deleteAttrs(int32(c), displaced)
}

func (p *Proc) CommGetAttr(c engine.Comm, key engine.Keyval, value *unsafe.Pointer, found *bool) engine.Code {
	p.mu.Lock()
	defer p.mu.Unlock()
	cs, code := p.commLocked(c)
	if code != engine.Success {
		return code
	}
	if key == engine.KeyTagUB {
		*value, *found = unsafe.Pointer(&p.tagUB), true
		return engine.Success
	}
	return p.getAttrLocked(false, cs.attrs, key, value, found)
}

func (p *Proc) CommDeleteAttr(c engine.Comm, key engine.Keyval) engine.Code {
	p.mu.Lock()
	cs, code := p.commLocked(c)
	if code != engine.Success {
		p.mu.Unlock()
		return code
	}
	removed, code := p.deleteAttrLocked(false, cs.attrs, key)
	p.mu.Unlock()
	if code != engine.Success {
		return code
	}
	return deleteAttrs(int32(c), removed)
}

func (p *Proc) WinCreateKeyval(copyFn engine.CopyAttrFunc, deleteFn engine.DeleteAttrFunc, key *engine.Keyval, extra any) engine.Code {
	return p.createKeyval(true, copyFn, deleteFn, key, extra)
}

func (p *Proc) WinFreeKeyval(key *engine.Keyval) engine.Code {
	return p.freeKeyval(true, key)
}

func (p *Proc) WinSetAttr(w engine.Win, key engine.Keyval, value unsafe.Pointer) engine.Code {
	p.mu.Lock()
	ws, code := p.winLocked(w)
	if code != engine.Success {
		p.mu.Unlock()
		return code
	}
	displaced, code := p.setAttrLocked(true, ws.attrs, key, value)
	p.mu.Unlock()
	if code != engine.Success {
		return code
	}
	return deleteAttrs(int32(w), displaced)
}

func (p *Proc) WinGetAttr(w engine.Win, key engine.Keyval, value *unsafe.Pointer, found *bool) engine.Code {
	p.mu.Lock()
	defer p.mu.Unlock()
	ws, code := p.winLocked(w)
	if code != engine.Success {
		return code
	}
	switch key {
	case engine.KeyWinBase:
		*value, *found = ws.base, true
		return engine.Success
	case engine.KeyWinSize:
		*value, *found = unsafe.Pointer(&ws.size), true
		return engine.Success
	case engine.KeyWinDispUnit:
		*value, *found = unsafe.Pointer(&ws.dispUnit), true
		return engine.Success
	}
	return p.getAttrLocked(true, ws.attrs, key, value, found)
}

func (p *Proc) WinDeleteAttr(w engine.Win, key engine.Keyval) engine.Code {
	p.mu.Lock()
	ws, code := p.winLocked(w)
	if code != engine.Success {
		p.mu.Unlock()
		return code
	}
	removed, code := p.deleteAttrLocked(true, ws.attrs, key)
	p.mu.Unlock()
	if code != engine.Success {
		return code
	}
	return deleteAttrs(int32(w), removed)
}
