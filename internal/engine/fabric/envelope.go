package fabric

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/drblury/mpiflow/internal/engine"
)

type kind uint8

const (
	kindP2P kind = iota + 1
	kindAbort
	kindPut
	kindGet
	kindRMAReply
	kindLock
	kindLockGrant
	kindUnlock
	kindUnlockAck
)

func (k kind) String() string {
	switch k {
	case kindP2P:
		return "p2p"
	case kindAbort:
		return "abort"
	case kindPut:
		return "put"
	case kindGet:
		return "get"
	case kindRMAReply:
		return "rma_reply"
	case kindLock:
		return "lock"
	case kindLockGrant:
		return "lock_grant"
	case kindUnlock:
		return "unlock"
	case kindUnlockAck:
		return "unlock_ack"
	}
	return "unknown"
}

// envelope is one fabric message. Src is always a world rank.
type envelope struct {
	Kind  kind
	Ctx   string
	Src   int32
	Tag   int32
	Dtype engine.Datatype
	Count int32
	Seq   uint64
	OpID  uint64
	Disp  int64
	Lock  int32
	Code  engine.Code
	Data  []byte
}

const (
	fieldKind protowire.Number = iota + 1
	fieldCtx
	fieldSrc
	fieldTag
	fieldDtype
	fieldCount
	fieldSeq
	fieldOpID
	fieldDisp
	fieldLock
	fieldCode
	fieldData
)

func appendInt(b []byte, num protowire.Number, v int64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeZigZag(v))
}

func appendUint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func (e *envelope) marshal() []byte {
	b := make([]byte, 0, 48+len(e.Ctx)+len(e.Data))
	b = appendUint(b, fieldKind, uint64(e.Kind))
	if e.Ctx != "" {
		b = protowire.AppendTag(b, fieldCtx, protowire.BytesType)
		b = protowire.AppendString(b, e.Ctx)
	}
	b = appendInt(b, fieldSrc, int64(e.Src))
	b = appendInt(b, fieldTag, int64(e.Tag))
	b = appendInt(b, fieldDtype, int64(e.Dtype))
	b = appendInt(b, fieldCount, int64(e.Count))
	b = appendUint(b, fieldSeq, e.Seq)
	b = appendUint(b, fieldOpID, e.OpID)
	b = appendInt(b, fieldDisp, e.Disp)
	b = appendInt(b, fieldLock, int64(e.Lock))
	b = appendInt(b, fieldCode, int64(e.Code))
	if len(e.Data) > 0 {
		b = protowire.AppendTag(b, fieldData, protowire.BytesType)
		b = protowire.AppendBytes(b, e.Data)
	}
	return b
}

func unmarshalEnvelope(b []byte) (*envelope, error) {
	e := &envelope{}
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, fmt.Errorf("envelope tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch typ {
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return nil, fmt.Errorf("envelope field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			e.setVarint(num, v)
		case protowire.BytesType:
			v, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return nil, fmt.Errorf("envelope field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
			switch num {
			case fieldCtx:
				e.Ctx = string(v)
			case fieldData:
				e.Data = append([]byte(nil), v...)
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, fmt.Errorf("envelope field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}
	if e.Kind == 0 {
		return nil, fmt.Errorf("envelope has no kind")
	}
	return e, nil
}

func (e *envelope) setVarint(num protowire.Number, v uint64) {
	signed := protowire.DecodeZigZag(v)
	switch num {
	case fieldKind:
		e.Kind = kind(v)
	case fieldSrc:
		e.Src = int32(signed)
	case fieldTag:
		e.Tag = int32(signed)
	case fieldDtype:
		e.Dtype = engine.Datatype(signed)
	case fieldCount:
		e.Count = int32(signed)
	case fieldSeq:
		e.Seq = v
	case fieldOpID:
		e.OpID = v
	case fieldDisp:
		e.Disp = signed
	case fieldLock:
		e.Lock = int32(signed)
	case fieldCode:
		e.Code = engine.Code(signed)
	}
}
