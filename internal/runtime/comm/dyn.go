package comm

import (
	"github.com/drblury/mpiflow/internal/runtime/buffer"
	"github.com/drblury/mpiflow/internal/runtime/op"
)

// Gather is the dynamic-buffer form of the package-level Gather. recv must
// be non-nil at root and nil elsewhere; its element type must match send's.
func (c Comm) Gather(root int32, send buffer.Dyn, recv *buffer.Dyn) error {
	var rv buffer.View
	if recv != nil {
		rv = *recv
	}
	return c.gather("GatherDyn", root, send, rv, false)
}

// AllToAllDyn is the dynamic-buffer form of AllToAll.
func (c Comm) AllToAllDyn(send, recv buffer.Dyn) error {
	return c.allToAll(send, recv)
}

// AllReduceDyn is the dynamic-buffer form of AllReduce. The operator must
// apply to the buffers' element type.
func (c Comm) AllReduceDyn(o op.Dyn, send, recv buffer.Dyn) error {
	return c.allReduce(o.Raw(), send, recv)
}

// BcastDyn is the dynamic-buffer form of Bcast.
func (c Comm) BcastDyn(root int32, data buffer.Dyn) error {
	return c.bcast(root, data)
}
