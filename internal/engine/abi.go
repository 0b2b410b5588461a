// Package engine declares the C-style ABI of the native message-passing
// engine. Every call returns a Code and writes results through
// out-parameters. Handles are plain int32 values and buffers are raw
// addresses, so nothing in this package knows about Go element types or
// ownership.
package engine

import (
	"math"
	"unsafe"
)

type (
	Comm     int32
	Group    int32
	Request  int32
	Win      int32
	Op       int32
	Keyval   int32
	Datatype int32
	Code     int32
)

// Predefined handles. Handles below the first user value are owned by the
// engine itself.
const (
	CommNull  Comm = 0
	CommWorld Comm = 1
	CommSelf  Comm = 2

	GroupNull  Group = 0
	GroupEmpty Group = 1

	RequestNull Request = 0
	WinNull     Win     = 0

	KeyvalInvalid  Keyval = -1
	KeyTagUB       Keyval = 1
	KeyWinBase     Keyval = 2
	KeyWinSize     Keyval = 3
	KeyWinDispUnit Keyval = 4
)

const (
	OpNull Op = iota
	OpMax
	OpMin
	OpSum
	OpProd
	OpLAnd
	OpLOr
	OpLXor
	OpBAnd
	OpBOr
	OpBXor
)

const (
	DatatypeNull Datatype = iota
	Bool
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Float32
	Float64
)

const (
	AnySource int32 = -1
	AnyTag    int32 = -1
	Undefined int32 = -32766

	// MaxCount is the largest element count the native integer width can carry.
	MaxCount = math.MaxInt32
)

// Window lock types and assertion flags.
const (
	LockExclusive int32 = 234
	LockShared    int32 = 235

	ModeNoCheck int32 = 1024
)

// Status is the completion record written by receive and completion calls.
// A nil *Status passed to the engine means the caller ignores it.
type Status struct {
	Source int32
	Tag    int32
	Error  Code
	// Count is the received payload size in bytes.
	Count int32
}

// CopyAttrFunc is invoked when a handle carrying an attribute is duplicated.
// Setting *flag to false leaves the attribute off the new handle.
type CopyAttrFunc func(handle int32, key Keyval, extra any, in unsafe.Pointer, out *unsafe.Pointer, flag *bool) Code

// DeleteAttrFunc is invoked when an attribute value is released.
type DeleteAttrFunc func(handle int32, key Keyval, value unsafe.Pointer, extra any) Code

// NullCopyFn declines to copy an attribute.
func NullCopyFn(int32, Keyval, any, unsafe.Pointer, *unsafe.Pointer, *bool) Code {
	return Success
}

// DupFn copies the attribute pointer as is.
func DupFn(_ int32, _ Keyval, _ any, in unsafe.Pointer, out *unsafe.Pointer, flag *bool) Code {
	*out = in
	*flag = true
	return Success
}

// NullDeleteFn does nothing.
func NullDeleteFn(int32, Keyval, unsafe.Pointer, any) Code {
	return Success
}

// Engine is the full surface the typed layer is built on.
type Engine interface {
	Lifecycle
	Comms
	Groups
	Attributes
	PointToPoint
	Collectives
	Completion
	Windows
	Ops
}

type Lifecycle interface {
	Init() Code
	Finalize() Code
	Initialized(flag *bool) Code
	Finalized(flag *bool) Code
	Abort(c Comm, errorCode int32) Code
	ErrorString(code Code) string
	Wtime() float64
	Wtick() float64
}

type Comms interface {
	CommRank(c Comm, rank *int32) Code
	CommSize(c Comm, size *int32) Code
	CommDup(c Comm, out *Comm) Code
	CommCreate(c Comm, g Group, out *Comm) Code
	CommGroup(c Comm, out *Group) Code
	CommFree(c *Comm) Code
}

type Groups interface {
	GroupSize(g Group, size *int32) Code
	GroupRank(g Group, rank *int32) Code
	GroupRangeIncl(g Group, ranges [][3]int32, out *Group) Code
	GroupRangeExcl(g Group, ranges [][3]int32, out *Group) Code
	GroupFree(g *Group) Code
}

type Attributes interface {
	CommCreateKeyval(copyFn CopyAttrFunc, deleteFn DeleteAttrFunc, key *Keyval, extra any) Code
	CommFreeKeyval(key *Keyval) Code
	CommSetAttr(c Comm, key Keyval, value unsafe.Pointer) Code
	CommGetAttr(c Comm, key Keyval, value *unsafe.Pointer, found *bool) Code
	CommDeleteAttr(c Comm, key Keyval) Code

	WinCreateKeyval(copyFn CopyAttrFunc, deleteFn DeleteAttrFunc, key *Keyval, extra any) Code
	WinFreeKeyval(key *Keyval) Code
	WinSetAttr(w Win, key Keyval, value unsafe.Pointer) Code
	WinGetAttr(w Win, key Keyval, value *unsafe.Pointer, found *bool) Code
	WinDeleteAttr(w Win, key Keyval) Code
}

type PointToPoint interface {
	Send(buf unsafe.Pointer, count int32, dt Datatype, dest, tag int32, c Comm) Code
	Isend(buf unsafe.Pointer, count int32, dt Datatype, dest, tag int32, c Comm, req *Request) Code
	Irecv(buf unsafe.Pointer, count int32, dt Datatype, source, tag int32, c Comm, req *Request) Code
	Recv(buf unsafe.Pointer, count int32, dt Datatype, source, tag int32, c Comm, status *Status) Code
	Iprobe(source, tag int32, c Comm, flag *bool, status *Status) Code
	Probe(source, tag int32, c Comm, status *Status) Code
}

type Collectives interface {
	Barrier(c Comm) Code
	Ibarrier(c Comm, req *Request) Code
	Bcast(buf unsafe.Pointer, count int32, dt Datatype, root int32, c Comm) Code
	Gather(sendBuf unsafe.Pointer, sendCount int32, sendType Datatype, recvBuf unsafe.Pointer, recvCount int32, recvType Datatype, root int32, c Comm) Code
	Allgather(sendBuf unsafe.Pointer, sendCount int32, sendType Datatype, recvBuf unsafe.Pointer, recvCount int32, recvType Datatype, c Comm) Code
	Alltoall(sendBuf unsafe.Pointer, sendCount int32, sendType Datatype, recvBuf unsafe.Pointer, recvCount int32, recvType Datatype, c Comm) Code
	Reduce(sendBuf, recvBuf unsafe.Pointer, count int32, dt Datatype, op Op, root int32, c Comm) Code
	Allreduce(sendBuf, recvBuf unsafe.Pointer, count int32, dt Datatype, op Op, c Comm) Code
}

type Completion interface {
	Wait(req *Request, status *Status) Code
	Test(req *Request, flag *bool, status *Status) Code
	Waitany(reqs []Request, index *int32, status *Status) Code
	// Waitall writes one status per request unless statuses is nil.
	Waitall(reqs []Request, statuses []Status) Code
	Waitsome(reqs []Request, outCount *int32, indices []int32, statuses []Status) Code
	RequestFree(req *Request) Code
}

type Windows interface {
	WinAllocate(size int64, dispUnit int32, c Comm, base *unsafe.Pointer, w *Win) Code
	WinFree(w *Win) Code
	WinLock(lockType, rank, assert int32, w Win) Code
	WinUnlock(rank int32, w Win) Code
	WinLockAll(assert int32, w Win) Code
	WinUnlockAll(w Win) Code
	WinFlushAll(w Win) Code
	Get(originBuf unsafe.Pointer, originCount int32, originType Datatype, target int32, targetDisp int64, targetCount int32, targetType Datatype, w Win) Code
	Put(originBuf unsafe.Pointer, originCount int32, originType Datatype, target int32, targetDisp int64, targetCount int32, targetType Datatype, w Win) Code
}

type Ops interface {
	OpFree(op *Op) Code
}

// IsBuiltinOp reports whether op is one of the engine's predefined operators.
func IsBuiltinOp(op Op) bool {
	return op >= OpMax && op <= OpBXor
}
