package mpiflow

import (
	"github.com/drblury/mpiflow/internal/engine"
	runtimepkg "github.com/drblury/mpiflow/internal/runtime"
	"github.com/drblury/mpiflow/internal/runtime/attrs"
	"github.com/drblury/mpiflow/internal/runtime/buffer"
	"github.com/drblury/mpiflow/internal/runtime/clock"
	"github.com/drblury/mpiflow/internal/runtime/comm"
	configpkg "github.com/drblury/mpiflow/internal/runtime/config"
	"github.com/drblury/mpiflow/internal/runtime/datatype"
	errspkg "github.com/drblury/mpiflow/internal/runtime/errors"
	"github.com/drblury/mpiflow/internal/runtime/group"
	idspkg "github.com/drblury/mpiflow/internal/runtime/ids"
	"github.com/drblury/mpiflow/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/mpiflow/internal/runtime/logging"
	"github.com/drblury/mpiflow/internal/runtime/metrics"
	"github.com/drblury/mpiflow/internal/runtime/op"
	"github.com/drblury/mpiflow/internal/runtime/request"
	"github.com/drblury/mpiflow/internal/runtime/win"
	newtransport "github.com/drblury/mpiflow/transport"
)

type (
	Runtime       = runtimepkg.Runtime
	Option        = runtimepkg.Option
	MetricsServer = runtimepkg.MetricsServer
	Config        = configpkg.Config

	Engine   = engine.Engine
	Datatype = engine.Datatype

	Comm         = comm.Comm
	UniqueComm   = comm.Unique
	Communicator = comm.Communicator
	Group        = group.Group
	UniqueGroup  = group.Unique
	Range        = group.Range

	Request       = request.Request
	UniqueRequest = request.Unique
	Status        = request.Status

	Op[T datatype.Element]        = op.Op[T]
	DynOp                         = op.Dyn
	Win[T datatype.Element]       = win.Win[T]
	UniqueWin[T datatype.Element] = win.Unique[T]

	Buffer[T datatype.Element] = buffer.Buffer[T]
	DynBuffer                  = buffer.Dyn
	Element                    = datatype.Element

	KeyVal[T any]       = attrs.KeyVal[T]
	UniqueKeyVal[T any] = attrs.UniqueKeyVal[T]
	NoDup               = attrs.NoDup

	Clock = clock.Clock
	Time  = clock.Time

	EngineError           = errspkg.EngineError
	RangeError            = errspkg.RangeError
	ContractViolation     = errspkg.ContractViolation
	ViolationHandler      = errspkg.ViolationHandler
	ConfigValidationError = errspkg.ConfigValidationError

	LogFields     = loggingpkg.LogFields
	ServiceLogger = loggingpkg.ServiceLogger
	EngineMetrics = metrics.EngineMetrics

	// Modular transport types
	TransportBuilder      = newtransport.Builder
	TransportConfig       = newtransport.Config
	TransportRegistry     = newtransport.Registry
	TransportCapabilities = newtransport.Capabilities
)

var (
	Init         = runtimepkg.Init
	RunLocal     = runtimepkg.RunLocal
	Connect      = runtimepkg.Connect
	ServeMetrics = runtimepkg.ServeMetrics

	WithLogger       = runtimepkg.WithLogger
	WithMetrics      = runtimepkg.WithMetrics
	WithJobID        = runtimepkg.WithJobID
	WithOutputBuffer = runtimepkg.WithOutputBuffer

	LoadConfig     = configpkg.Load
	ValidateConfig = configpkg.ValidateConfig

	UnitStride = group.UnitStride

	WaitAny         = request.WaitAny
	WaitAll         = request.WaitAll
	WaitAllStatuses = request.WaitAllStatuses
	WaitSome        = request.WaitSome
	WaitSomeInto    = request.WaitSomeInto

	SetViolationHandler = errspkg.SetViolationHandler
	PanicOnViolation    = errspkg.PanicOnViolation
	AsViolation         = errspkg.AsViolation

	ErrConfigRequired    = errspkg.ErrConfigRequired
	ErrTransportRequired = errspkg.ErrTransportRequired
	ErrLoggerRequired    = errspkg.ErrLoggerRequired
	ErrEngineRequired    = errspkg.ErrEngineRequired
	ErrNotInitialized    = errspkg.ErrNotInitialized
	ErrAlreadyFinalized  = errspkg.ErrAlreadyFinalized

	NewSlogServiceLogger = loggingpkg.NewSlogServiceLogger
	NewTextServiceLogger = loggingpkg.NewTextServiceLogger
	NewEngineMetrics     = metrics.NewEngineMetrics

	// Import individual transports via: _ "github.com/drblury/mpiflow/transport/kafka"
	DefaultTransportRegistry = newtransport.DefaultRegistry
	RegisterTransport        = newtransport.Register
	BuildTransport           = newtransport.Build
	GetCapabilities          = newtransport.GetCapabilities

	Marshal   = jsoncodec.Marshal
	Unmarshal = jsoncodec.Unmarshal

	NewJobID   = idspkg.NewJobID
	CreateULID = idspkg.CreateULID
)

// Lock types and assertions for window epochs.
const (
	LockExclusive = win.LockExclusive
	LockShared    = win.LockShared
	ModeNoCheck   = win.ModeNoCheck

	AnySource = engine.AnySource
	AnyTag    = engine.AnyTag
)

func Send[T Element](c Communicator, send []T, dest, tag int32) error {
	return comm.Send(c, send, dest, tag)
}

func Recv[T Element](c Communicator, recv []T, source, tag int32) error {
	return comm.Recv(c, recv, source, tag)
}

func RecvWithStatus[T Element](c Communicator, recv []T, source, tag int32) (Status, error) {
	return comm.RecvWithStatus(c, recv, source, tag)
}

func ImmediateSend[T Element](c Communicator, send []T, dest, tag int32) (UniqueRequest, error) {
	return comm.ImmediateSend(c, send, dest, tag)
}

func ImmediateRecv[T Element](c Communicator, recv []T, source, tag int32) (UniqueRequest, error) {
	return comm.ImmediateRecv(c, recv, source, tag)
}

func Bcast[T Element](c Communicator, root int32, data []T) error {
	return comm.Bcast(c, root, data)
}

func Gather[T Element](c Communicator, root int32, send, recv []T) error {
	return comm.Gather(c, root, send, recv)
}

func GatherValue[T Element](c Communicator, root int32, v T) error {
	return comm.GatherValue(c, root, v)
}

func GatherValueIntoRoot[T Element](c Communicator, root int32, v T) ([]T, error) {
	return comm.GatherValueIntoRoot(c, root, v)
}

func AllGather[T Element](c Communicator, v T) ([]T, error) {
	return comm.AllGather(c, v)
}

func AllToAll[T Element](c Communicator, send, recv []T) error {
	return comm.AllToAll(c, send, recv)
}

func Reduce[T Element](c Communicator, o Op[T], root int32, send, recv []T) error {
	return comm.Reduce(c, o, root, send, recv)
}

func ReduceValueIntoRoot[T Element](c Communicator, o Op[T], root int32, v T) (T, error) {
	return comm.ReduceValueIntoRoot(c, o, root, v)
}

func AllReduce[T Element](c Communicator, o Op[T], send, recv []T) error {
	return comm.AllReduce(c, o, send, recv)
}

func AllReduceValue[T Element](c Communicator, o Op[T], v T) (T, error) {
	return comm.AllReduceValue(c, o, v)
}

// AllocateWin collectively creates a window of count elements on every rank of c.
func AllocateWin[T Element](c Communicator, count int) (UniqueWin[T], error) {
	return win.Allocate[T](c, count)
}

func CreateCommKeyval[T any](c Communicator) (UniqueKeyVal[T], error) {
	return comm.CreateKeyval[T](c)
}

func SetCommAttr[T any](c Communicator, slot attrs.Slot[T], value T) (*T, error) {
	return comm.CreateAttr(c, slot, value)
}

func GetCommAttr[T any](c Communicator, slot attrs.Slot[T]) (*T, bool, error) {
	return comm.GetAttr(c, slot)
}

func Sum[T datatype.Numeric]() Op[T] { return op.Sum[T]() }
func Max[T datatype.Numeric]() Op[T] { return op.Max[T]() }
func Min[T datatype.Numeric]() Op[T] { return op.Min[T]() }
