package msg

import (
	"encoding/binary"
	"errors"
	"fmt"

	"code.dogecoin.org/kadchain/internal/spec"
)

var errShort = errors.New("message too short")

// Decode

type Decoder struct {
	buf []byte
	pos uint64
	err error // sticky: first decode error
}

func Decode(b []byte) *Decoder {
	return &Decoder{buf: b, pos: 0}
}

func (d *Decoder) remaining() uint64 {
	return uint64(len(d.buf)) - d.pos
}

func (d *Decoder) fail(err error) {
	if d.err == nil {
		d.err = err
	}
}

// finish reports the first error, or any bytes left over.
func (d *Decoder) finish(what string) error {
	if d.err != nil {
		return fmt.Errorf("%s: %w", what, d.err)
	}
	if d.remaining() != 0 {
		return fmt.Errorf("%s: %d trailing bytes", what, d.remaining())
	}
	return nil
}

func (d *Decoder) bytes(num uint64) []byte {
	if d.err != nil || num > d.remaining() {
		d.fail(errShort)
		return nil
	}
	p := d.pos
	d.pos += num
	return d.buf[p : p+num]
}

func (d *Decoder) bool() bool {
	b := d.bytes(1)
	return b != nil && b[0] != 0
}

func (d *Decoder) uint8() uint8 {
	b := d.bytes(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *Decoder) uint16le() uint16 {
	b := d.bytes(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (d *Decoder) uint32le() uint32 {
	b := d.bytes(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (d *Decoder) uint64le() uint64 {
	b := d.bytes(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (d *Decoder) var_uint() uint64 {
	val := d.uint8()
	if val < 253 {
		return uint64(val)
	}
	if val == 253 {
		return uint64(d.uint16le())
	}
	if val == 254 {
		return uint64(d.uint32le())
	}
	return d.uint64le()
}

func (d *Decoder) var_bytes() []byte {
	len := d.var_uint()
	data := d.bytes(len)
	if data == nil {
		return nil
	}
	return append([]byte(nil), data...)
}

func (d *Decoder) var_string() string {
	len := d.var_uint()
	return string(d.bytes(len))
}

// count reads a list length; each element takes at least min bytes.
func (d *Decoder) count(min uint64) int {
	n := d.var_uint()
	if min > 0 && n > d.remaining()/min {
		d.fail(fmt.Errorf("list of %d exceeds message", n))
		return 0
	}
	return int(n)
}

func (d *Decoder) node_id() spec.NodeID {
	s := d.var_string()
	if d.err == nil && !spec.NodeID(s).IsValid() {
		d.fail(fmt.Errorf("invalid node id %q", s))
	}
	return spec.NodeID(s)
}

// Encode

type Encoder struct {
	buf []byte
}

func Encode(size_hint int) *Encoder {
	return &Encoder{buf: make([]byte, 0, size_hint)}
}

func (e *Encoder) Result() []byte {
	return e.buf
}

func (e *Encoder) bool(b bool) {
	var v byte = 0
	if b {
		v = 1
	}
	e.buf = append(e.buf, v)
}

func (e *Encoder) uint8(v uint8) {
	e.buf = append(e.buf, v)
}

func (e *Encoder) uint16le(v uint16) {
	e.buf = binary.LittleEndian.AppendUint16(e.buf, v)
}

func (e *Encoder) uint32le(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

func (e *Encoder) uint64le(v uint64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
}

func (e *Encoder) var_uint(val uint64) {
	if val < 0xFD {
		e.buf = append(e.buf, byte(val))
	} else if val <= 0xFFFF {
		e.buf = append(e.buf, 0xFD)
		e.buf = binary.LittleEndian.AppendUint16(e.buf, uint16(val))
	} else if val <= 0xFFFFFFFF {
		e.buf = append(e.buf, 0xFE)
		e.buf = binary.LittleEndian.AppendUint32(e.buf, uint32(val))
	} else {
		e.buf = append(e.buf, 0xFF)
		e.buf = binary.LittleEndian.AppendUint64(e.buf, val)
	}
}

func (e *Encoder) var_bytes(b []byte) {
	e.var_uint(uint64(len(b)))
	e.buf = append(e.buf, b...)
}

func (e *Encoder) var_string(v string) {
	e.var_uint(uint64(len(v)))
	e.buf = append(e.buf, v...)
}
