package comm

import (
	"github.com/drblury/mpiflow/internal/runtime/buffer"
	"github.com/drblury/mpiflow/internal/runtime/datatype"
	"github.com/drblury/mpiflow/internal/runtime/op"
)

func optional[T datatype.Element](s []T) buffer.View {
	if s == nil {
		return nil
	}
	return buffer.Slice(s)
}

// Bcast copies data from root into data on every other rank.
func Bcast[T datatype.Element](c Communicator, root int32, data []T) error {
	return c.Deref().bcast(root, buffer.Slice(data))
}

// Gather concatenates send from every rank, in rank order, into recv at
// root. recv is required at root and must be nil on every other rank.
func Gather[T datatype.Element](c Communicator, root int32, send, recv []T) error {
	return c.Deref().gather("Gather", root, buffer.Slice(send), optional(recv), false)
}

// GatherValue contributes v to a gather from a rank other than root.
func GatherValue[T datatype.Element](c Communicator, root int32, v T) error {
	return Gather(c, root, []T{v}, nil)
}

// GatherIntoRoot is the root's side of Gather.
func GatherIntoRoot[T datatype.Element](c Communicator, root int32, send, recv []T) error {
	return c.Deref().gather("GatherIntoRoot", root, buffer.Slice(send), optional(recv), true)
}

// GatherValueIntoRoot collects one value per rank at root.
func GatherValueIntoRoot[T datatype.Element](c Communicator, root int32, v T) ([]T, error) {
	size, err := c.Deref().Size()
	if err != nil {
		return nil, err
	}
	out := make([]T, size)
	if err := GatherIntoRoot(c, root, []T{v}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// AllGather collects one value per rank on every rank.
func AllGather[T datatype.Element](c Communicator, v T) ([]T, error) {
	size, err := c.Deref().Size()
	if err != nil {
		return nil, err
	}
	out := make([]T, size)
	if err := AllGatherInto(c, []T{v}, out); err != nil {
		return nil, err
	}
	return out, nil
}

// AllGatherInto concatenates send from every rank into recv on every rank.
func AllGatherInto[T datatype.Element](c Communicator, send, recv []T) error {
	return c.Deref().allGather(buffer.Slice(send), buffer.Slice(recv))
}

// AllToAll sends chunk i of send to rank i and stores the chunk received
// from rank i at chunk i of recv. The chunk length is len(send)/size.
func AllToAll[T datatype.Element](c Communicator, send, recv []T) error {
	return c.Deref().allToAll(buffer.Slice(send), buffer.Slice(recv))
}

// AllToAllValues is AllToAll into a freshly allocated buffer.
func AllToAllValues[T datatype.Element](c Communicator, send []T) ([]T, error) {
	size, err := c.Deref().Size()
	if err != nil {
		return nil, err
	}
	recv := make([]T, len(send)/int(size)*int(size))
	if err := AllToAll(c, send, recv); err != nil {
		return nil, err
	}
	return recv, nil
}

// Reduce combines send element-wise across ranks into recv at root. recv
// is required at root and must be nil elsewhere.
func Reduce[T datatype.Element](c Communicator, o op.Op[T], root int32, send, recv []T) error {
	return c.Deref().reduce("Reduce", o.Raw(), root, buffer.Slice(send), optional(recv), false)
}

// ReduceValue contributes v to a reduction from a rank other than root.
func ReduceValue[T datatype.Element](c Communicator, o op.Op[T], root int32, v T) error {
	return Reduce(c, o, root, []T{v}, nil)
}

// ReduceIntoRoot is the root's side of Reduce.
func ReduceIntoRoot[T datatype.Element](c Communicator, o op.Op[T], root int32, send, recv []T) error {
	return c.Deref().reduce("ReduceIntoRoot", o.Raw(), root, buffer.Slice(send), optional(recv), true)
}

// ReduceValueIntoRoot reduces one value per rank and returns the result at root.
func ReduceValueIntoRoot[T datatype.Element](c Communicator, o op.Op[T], root int32, v T) (T, error) {
	out := make([]T, 1)
	if err := ReduceIntoRoot(c, o, root, []T{v}, out); err != nil {
		var zero T
		return zero, err
	}
	return out[0], nil
}

// AllReduce combines send element-wise across ranks into recv on every rank.
func AllReduce[T datatype.Element](c Communicator, o op.Op[T], send, recv []T) error {
	return c.Deref().allReduce(o.Raw(), buffer.Slice(send), buffer.Slice(recv))
}

// AllReduceValue reduces one value per rank onto every rank.
func AllReduceValue[T datatype.Element](c Communicator, o op.Op[T], v T) (T, error) {
	out := make([]T, 1)
	if err := AllReduce(c, o, []T{v}, out); err != nil {
		var zero T
		return zero, err
	}
	return out[0], nil
}

// AllReduceSlice is AllReduce into a freshly allocated buffer.
func AllReduceSlice[T datatype.Element](c Communicator, o op.Op[T], send []T) ([]T, error) {
	out := make([]T, len(send))
	if err := AllReduce(c, o, send, out); err != nil {
		return nil, err
	}
	return out, nil
}
