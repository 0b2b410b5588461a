package errors

import (
	sterrors "errors"
	"fmt"
	"os"
	"sync"

	"github.com/drblury/mpiflow/internal/engine"
	"github.com/drblury/mpiflow/internal/runtime/logging"
)

var (
	ErrConfigRequired    = sterrors.New("mpiflow: config is required")
	ErrTransportRequired = sterrors.New("mpiflow: transport is required")
	ErrLoggerRequired    = sterrors.New("mpiflow: logger is required")
	ErrEngineRequired    = sterrors.New("mpiflow: engine is required")
	ErrNotInitialized    = sterrors.New("mpiflow: engine is not initialized")
	ErrAlreadyFinalized  = sterrors.New("mpiflow: engine is already finalized")
)

// ConfigValidationError wraps the joined field errors reported by Config.Validate.
type ConfigValidationError struct {
	Err error
}

func (e *ConfigValidationError) Error() string {
	return fmt.Sprintf("mpiflow: invalid configuration: %v", e.Err)
}

func (e *ConfigValidationError) Unwrap() error {
	return e.Err
}

// EngineError reports a non-success status returned by the native engine.
// It is recoverable.
type EngineError struct {
	Op      string
	Code    engine.Code
	Message string
}

func (e *EngineError) Error() string {
	return fmt.Sprintf("mpiflow: %s: %s (code %d)", e.Op, e.Message, int32(e.Code))
}

// Is matches another EngineError carrying the same code, so callers can
// compare against a template such as &EngineError{Code: engine.ErrTruncate}.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Check converts an engine status code into an error. describe looks up the
// engine's own description and may be nil.
func Check(op string, code engine.Code, describe func(engine.Code) string) error {
	if code == engine.Success {
		return nil
	}
	if describe == nil {
		describe = engine.DescribeCode
	}
	return &EngineError{Op: op, Code: code, Message: describe(code)}
}

// RangeError reports a count that does not fit the native integer width.
// It never reaches the engine.
type RangeError struct {
	Op    string
	Value uint64
	Limit uint64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("mpiflow: %s: count %d exceeds native limit %d", e.Op, e.Value, e.Limit)
}

// CheckCount narrows n to the native count width.
func CheckCount(op string, n int) (int32, error) {
	if n < 0 || uint64(n) > engine.MaxCount {
		return 0, &RangeError{Op: op, Value: uint64(n), Limit: engine.MaxCount}
	}
	return int32(n), nil
}

// ContractViolation is a caller-side precondition failure. It is never
// returned as an error value; Violate hands it to the installed handler.
type ContractViolation struct {
	Op     string
	Rank   int32
	Detail string
}

func (v *ContractViolation) Error() string {
	if v.Rank < 0 {
		return fmt.Sprintf("mpiflow: %s: contract violation: %s", v.Op, v.Detail)
	}
	return fmt.Sprintf("mpiflow: rank %d: %s: contract violation: %s", v.Rank, v.Op, v.Detail)
}

// ViolationHandler decides what happens to the process after a contract violation.
type ViolationHandler func(v *ContractViolation)

var (
	handlerMu sync.RWMutex
	handler   ViolationHandler = exitOnViolation
)

func exitOnViolation(v *ContractViolation) {
	logging.Default().Error("contract violation, terminating", v, logging.LogFields{
		"op":   v.Op,
		"rank": v.Rank,
	})
	os.Exit(1)
}

// PanicOnViolation panics with the violation instead of exiting. Used by
// tests and by embedders that run several ranks in one process.
func PanicOnViolation(v *ContractViolation) {
	panic(v)
}

// SetViolationHandler installs h and returns a function restoring the previous handler.
func SetViolationHandler(h ViolationHandler) (restore func()) {
	if h == nil {
		h = exitOnViolation
	}
	handlerMu.Lock()
	prev := handler
	handler = h
	handlerMu.Unlock()
	return func() {
		handlerMu.Lock()
		handler = prev
		handlerMu.Unlock()
	}
}

// Violate reports v to the installed handler. It does not return.
func Violate(v *ContractViolation) {
	handlerMu.RLock()
	h := handler
	handlerMu.RUnlock()
	h(v)
	panic(v)
}

// Violatef builds a ContractViolation and reports it.
func Violatef(op string, rank int32, format string, args ...any) {
	Violate(&ContractViolation{Op: op, Rank: rank, Detail: fmt.Sprintf(format, args...)})
}

// AsViolation extracts a ContractViolation from err or from a recovered panic value.
func AsViolation(v any) (*ContractViolation, bool) {
	switch x := v.(type) {
	case *ContractViolation:
		return x, true
	case error:
		var cv *ContractViolation
		if sterrors.As(x, &cv) {
			return cv, true
		}
	}
	return nil, false
}
