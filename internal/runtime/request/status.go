package request

import (
	"github.com/drblury/mpiflow/internal/engine"
	"github.com/drblury/mpiflow/internal/runtime/datatype"
)

// Ignore is the out-parameter value telling the engine the caller does not
// want a status record.
var Ignore *engine.Status

// Status is a snapshot of a completed operation.
type Status struct {
	raw engine.Status
}

// FromRaw wraps a status record written by the engine.
func FromRaw(raw engine.Status) Status {
	return Status{raw: raw}
}

// Empty is the status reported for operations on a null request.
func Empty() Status {
	return Status{raw: engine.Status{Source: engine.AnySource, Tag: engine.AnyTag, Error: engine.Success}}
}

func (s Status) Source() int32      { return s.raw.Source }
func (s Status) Tag() int32         { return s.raw.Tag }
func (s Status) Error() engine.Code { return s.raw.Error }
func (s Status) Success() bool      { return s.raw.Error == engine.Success }
func (s Status) Raw() engine.Status { return s.raw }
func (s Status) ByteCount() int     { return int(s.raw.Count) }

// Count returns the number of dt elements received. It reports false when the
// byte count is not a whole number of elements.
func (s Status) Count(dt engine.Datatype) (int, bool) {
	size := datatype.Size(dt)
	if size == 0 || int(s.raw.Count)%size != 0 {
		return 0, false
	}
	return int(s.raw.Count) / size, true
}
