package msg

import (
	"errors"
	"fmt"
)

var ErrUnimplemented = errors.New("unimplemented")

type RejectCode int

const (
	REJECT_MALFORMED     RejectCode = 0x01
	REJECT_INVALID       RejectCode = 0x10
	REJECT_UNIMPLEMENTED RejectCode = 0x50
)

// Reject answers a request the receiver will not serve.
// It is also the error a client sees for that request.
type Reject struct {
	Code   RejectCode
	Reason string
}

func (m Reject) CodeName() string {
	switch m.Code {
	case REJECT_MALFORMED:
		return "malformed"
	case REJECT_INVALID:
		return "invalid"
	case REJECT_UNIMPLEMENTED:
		return "unimplemented"
	default:
		return "unknown"
	}
}

func (m Reject) Error() string {
	return fmt.Sprintf("rejected (%s): %s", m.CodeName(), m.Reason)
}

func (m Reject) Is(target error) bool {
	return target == ErrUnimplemented && m.Code == REJECT_UNIMPLEMENTED
}

func (m Reject) Encode() []byte {
	e := Encode(2 + len(m.Reason))
	e.uint8(uint8(m.Code))
	e.var_string(m.Reason)
	return e.Result()
}

func DecodeReject(payload []byte) (rej Reject, err error) {
	d := Decode(payload)
	rej.Code = RejectCode(d.uint8())
	rej.Reason = d.var_string()
	return rej, d.finish("Reject")
}
