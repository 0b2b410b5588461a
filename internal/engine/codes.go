package engine

import "fmt"

const (
	Success Code = iota
	ErrBuffer
	ErrCount
	ErrType
	ErrTag
	ErrComm
	ErrRank
	ErrRequest
	ErrRoot
	ErrGroup
	ErrOp
	ErrArg
	ErrTruncate
	ErrKeyval
	ErrWin
	ErrRMASync
	ErrPending
	ErrNotInitialized
	ErrFinalized
	ErrAborted
	ErrTransport
	ErrIntern
	ErrOther
)

var codeText = map[Code]string{
	Success:           "no error",
	ErrBuffer:         "invalid buffer pointer",
	ErrCount:          "invalid count argument",
	ErrType:           "invalid datatype",
	ErrTag:            "invalid tag",
	ErrComm:           "invalid communicator",
	ErrRank:           "invalid rank",
	ErrRequest:        "invalid request",
	ErrRoot:           "invalid root",
	ErrGroup:          "invalid group",
	ErrOp:             "invalid reduce operation",
	ErrArg:            "invalid argument",
	ErrTruncate:       "message truncated",
	ErrKeyval:         "invalid keyval",
	ErrWin:            "invalid window",
	ErrRMASync:        "wrong synchronization of RMA calls",
	ErrPending:        "operation pending",
	ErrNotInitialized: "engine not initialized",
	ErrFinalized:      "engine already finalized",
	ErrAborted:        "job aborted",
	ErrTransport:      "transport failure",
	ErrIntern:         "internal error",
	ErrOther:          "unknown error",
}

// DescribeCode returns the engine's text for code.
func DescribeCode(code Code) string {
	if text, ok := codeText[code]; ok {
		return text
	}
	return fmt.Sprintf("unknown error code %d", int32(code))
}

func (c Code) String() string {
	return DescribeCode(c)
}
