package comm

import (
	"unsafe"

	"github.com/drblury/mpiflow/internal/engine"
	"github.com/drblury/mpiflow/internal/runtime/buffer"
	"github.com/drblury/mpiflow/internal/runtime/datatype"
	errspkg "github.com/drblury/mpiflow/internal/runtime/errors"
	"github.com/drblury/mpiflow/internal/runtime/op"
	"github.com/drblury/mpiflow/internal/runtime/request"
)

// The collectives below work on buffer views so the typed functions and the
// dynamic-buffer methods share one dispatch path. A nil recv view means the
// caller supplied no receive buffer.

func addr(v buffer.View) unsafe.Pointer {
	if v == nil {
		return nil
	}
	return v.Addr()
}

func length(v buffer.View) int {
	if v == nil {
		return 0
	}
	return v.Len()
}

func counts(name string, views ...buffer.View) ([]int32, error) {
	out := make([]int32, len(views))
	for i, v := range views {
		n, err := errspkg.CheckCount(name, length(v))
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

func (c Comm) requireMatch(name string, rank int32, send, recv buffer.View) {
	if recv == nil || buffer.Matches(send, recv) {
		return
	}
	c.violate(name, rank, "send buffer holds %s but receive buffer holds %s",
		datatype.Name(send.Datatype()), datatype.Name(recv.Datatype()))
}

func (c Comm) requireApplicable(name string, rank int32, o engine.Op, dt engine.Datatype) {
	if op.Applicable(o, dt) {
		return
	}
	c.violate(name, rank, "operator %s does not apply to %s", op.FamilyOf(o), datatype.Name(dt))
}

// rootRecv checks the receive buffer rules shared by gather and reduce.
func (c Comm) rootRecv(name string, rank, root int32, recv buffer.View, need int64) {
	if rank != root {
		if recv != nil {
			c.violate(name, rank, "rank %d is not the root (%d) and must not supply a receive buffer", rank, root)
		}
		return
	}
	if recv == nil {
		c.violate(name, rank, "root must supply a receive buffer")
	}
	if int64(recv.Len()) < need {
		c.violate(name, rank, "receive buffer holds %d elements, need %d", recv.Len(), need)
	}
}

func (c Comm) requireRoot(name string, rank, root int32) {
	if rank != root {
		c.violate(name, rank, "rank %d called a root-only operation for root %d", rank, root)
	}
}

// Barrier blocks until every rank of c has entered it.
func (c Comm) Barrier() error {
	return c.traced("Barrier", 0, func(int32, int32) error {
		return c.check("barrier", c.Engine().Barrier(c.Raw()))
	})
}

// ImmediateBarrier starts a barrier and returns its request.
func (c Comm) ImmediateBarrier() (request.Unique, error) {
	req := request.New(c.Engine())
	err := c.traced("ImmediateBarrier", 0, func(int32, int32) error {
		return c.check("ibarrier", c.Engine().Ibarrier(c.Raw(), req.Addr()))
	})
	if err != nil {
		return request.Unique{}, err
	}
	return req, nil
}

func (c Comm) bcast(root int32, data buffer.View) error {
	return c.traced("Bcast", data.Len(), func(int32, int32) error {
		n, err := counts("bcast", data)
		if err != nil {
			return err
		}
		return c.check("bcast", c.Engine().Bcast(data.Addr(), n[0], data.Datatype(), root, c.Raw()))
	})
}

func (c Comm) gather(name string, root int32, send, recv buffer.View, rootOnly bool) error {
	return c.traced(name, send.Len(), func(rank, size int32) error {
		if rootOnly {
			c.requireRoot("gather", rank, root)
		}
		c.rootRecv("gather", rank, root, recv, int64(size)*int64(send.Len()))
		c.requireMatch("gather", rank, send, recv)

		n, err := counts("gather", send, recv)
		if err != nil {
			return err
		}
		recvType := send.Datatype()
		if recv != nil {
			recvType = recv.Datatype()
		}
		// the per-rank chunk is always the send count
		return c.check("gather", c.Engine().Gather(send.Addr(), n[0], send.Datatype(), addr(recv), n[0], recvType, root, c.Raw()))
	})
}

func (c Comm) allGather(send, recv buffer.View) error {
	return c.traced("AllGather", send.Len(), func(rank, size int32) error {
		if need := int64(size) * int64(send.Len()); int64(recv.Len()) < need {
			c.violate("all_gather", rank, "receive buffer holds %d elements, need %d", recv.Len(), need)
		}
		c.requireMatch("all_gather", rank, send, recv)

		n, err := counts("all_gather", send, recv)
		if err != nil {
			return err
		}
		return c.check("all_gather", c.Engine().Allgather(send.Addr(), n[0], send.Datatype(), recv.Addr(), n[0], recv.Datatype(), c.Raw()))
	})
}

func (c Comm) allToAll(send, recv buffer.View) error {
	return c.traced("AllToAll", send.Len(), func(rank, size int32) error {
		chunk := send.Len() / int(size)
		if chunk < 1 {
			c.violate("all_to_all", rank, "send buffer of %d elements cannot hold a chunk for each of %d ranks", send.Len(), size)
		}
		if need := int64(chunk) * int64(size); int64(recv.Len()) < need {
			c.violate("all_to_all", rank, "receive buffer holds %d elements, need %d", recv.Len(), need)
		}
		c.requireMatch("all_to_all", rank, send, recv)

		if _, err := counts("all_to_all", send, recv); err != nil {
			return err
		}
		n := int32(chunk)
		return c.check("all_to_all", c.Engine().Alltoall(send.Addr(), n, send.Datatype(), recv.Addr(), n, recv.Datatype(), c.Raw()))
	})
}

func (c Comm) reduce(name string, o engine.Op, root int32, send, recv buffer.View, rootOnly bool) error {
	return c.traced(name, send.Len(), func(rank, _ int32) error {
		if rootOnly {
			c.requireRoot("reduce", rank, root)
		}
		c.rootRecv("reduce", rank, root, recv, int64(send.Len()))
		c.requireMatch("reduce", rank, send, recv)
		c.requireApplicable("reduce", rank, o, send.Datatype())

		n, err := counts("reduce", send, recv)
		if err != nil {
			return err
		}
		return c.check("reduce", c.Engine().Reduce(send.Addr(), addr(recv), n[0], send.Datatype(), o, root, c.Raw()))
	})
}

func (c Comm) allReduce(o engine.Op, send, recv buffer.View) error {
	return c.traced("AllReduce", send.Len(), func(rank, _ int32) error {
		if recv.Len() < send.Len() {
			c.violate("all_reduce", rank, "receive buffer holds %d elements, need %d", recv.Len(), send.Len())
		}
		c.requireMatch("all_reduce", rank, send, recv)
		c.requireApplicable("all_reduce", rank, o, send.Datatype())

		n, err := counts("all_reduce", send, recv)
		if err != nil {
			return err
		}
		return c.check("all_reduce", c.Engine().Allreduce(send.Addr(), recv.Addr(), n[0], send.Datatype(), o, c.Raw()))
	})
}
