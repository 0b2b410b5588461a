package comm

import (
	"github.com/drblury/mpiflow/internal/engine"
	"github.com/drblury/mpiflow/internal/runtime/buffer"
	"github.com/drblury/mpiflow/internal/runtime/datatype"
	errspkg "github.com/drblury/mpiflow/internal/runtime/errors"
	"github.com/drblury/mpiflow/internal/runtime/request"
)

// ImmediateSend starts sending send to dest. send must not be modified
// until the request completes.
func ImmediateSend[T datatype.Element](c Communicator, send []T, dest, tag int32) (request.Unique, error) {
	cm := c.Deref()
	buf := buffer.Slice(send)
	n, err := buf.SizeInt()
	if err != nil {
		return request.Unique{}, err
	}
	req := request.New(cm.Engine())
	code := cm.Engine().Isend(buf.Addr(), n, buf.Datatype(), dest, tag, cm.Raw(), req.Addr())
	if err := cm.check("isend", code); err != nil {
		return request.Unique{}, err
	}
	return req, nil
}

// ImmediateRecv starts receiving into recv. recv must not be touched until
// the request completes.
func ImmediateRecv[T datatype.Element](c Communicator, recv []T, source, tag int32) (request.Unique, error) {
	cm := c.Deref()
	buf := buffer.Slice(recv)
	n, err := buf.SizeInt()
	if err != nil {
		return request.Unique{}, err
	}
	req := request.New(cm.Engine())
	code := cm.Engine().Irecv(buf.Addr(), n, buf.Datatype(), source, tag, cm.Raw(), req.Addr())
	if err := cm.check("irecv", code); err != nil {
		return request.Unique{}, err
	}
	return req, nil
}

// Send blocks until send has been handed off to the engine.
func Send[T datatype.Element](c Communicator, send []T, dest, tag int32) error {
	cm := c.Deref()
	buf := buffer.Slice(send)
	n, err := buf.SizeInt()
	if err != nil {
		return err
	}
	return cm.check("send", cm.Engine().Send(buf.Addr(), n, buf.Datatype(), dest, tag, cm.Raw()))
}

// Recv blocks until a matching message has been received into recv.
func Recv[T datatype.Element](c Communicator, recv []T, source, tag int32) error {
	_, err := recvInto(c.Deref(), buffer.Slice(recv), source, tag, request.Ignore)
	return err
}

// RecvWithStatus is Recv that also reports who sent the message and how
// much of recv it filled.
func RecvWithStatus[T datatype.Element](c Communicator, recv []T, source, tag int32) (request.Status, error) {
	var st engine.Status
	return recvInto(c.Deref(), buffer.Slice(recv), source, tag, &st)
}

func recvInto(cm Comm, buf buffer.View, source, tag int32, st *engine.Status) (request.Status, error) {
	n, err := errspkg.CheckCount("recv", buf.Len())
	if err != nil {
		return request.Status{}, err
	}
	code := cm.Engine().Recv(buf.Addr(), n, buf.Datatype(), source, tag, cm.Raw(), st)
	if err := cm.check("recv", code); err != nil {
		return request.Status{}, err
	}
	if st == nil {
		return request.Status{}, nil
	}
	return request.FromRaw(*st), nil
}
