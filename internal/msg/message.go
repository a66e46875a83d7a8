package msg

import (
	"bytes"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"

	"code.dogecoin.org/gossip/dnet"
)

// Frame magic: "KADC"
const MagicBytes = 0x4344414b

const HeaderSize = 16

// MaxMsgSize bounds a frame payload (chains grow without limit otherwise).
const MaxMsgSize = 4 * 1024 * 1024

// MessageHeader precedes every payload on the wire.
type MessageHeader struct {
	Magic    uint32
	Tag      dnet.Tag4CC
	Length   uint32
	Checksum [4]byte
}

func DecodeHeader(buf [HeaderSize]byte) (hdr MessageHeader) {
	hdr.Magic = binary.LittleEndian.Uint32(buf[:4])
	hdr.Tag = dnet.Tag4CC(binary.LittleEndian.Uint32(buf[4:8]))
	hdr.Length = binary.LittleEndian.Uint32(buf[8:12])
	copy(hdr.Checksum[:], buf[12:16])
	return
}

func DoubleSHA256(data []byte) [32]byte {
	hash := sha256.Sum256(data)
	return sha256.Sum256(hash[:])
}

func EncodeMessage(tag dnet.Tag4CC, payload []byte) []byte {
	msg := make([]byte, HeaderSize+len(payload))
	binary.LittleEndian.PutUint32(msg[:4], MagicBytes)
	binary.LittleEndian.PutUint32(msg[4:8], uint32(tag))
	binary.LittleEndian.PutUint32(msg[8:12], uint32(len(payload)))
	hash := DoubleSHA256(payload)
	copy(msg[12:16], hash[:4])
	copy(msg[HeaderSize:], payload)
	return msg
}

func WriteMessage(w io.Writer, tag dnet.Tag4CC, payload []byte) error {
	_, err := w.Write(EncodeMessage(tag, payload))
	return err
}

// ReadMessage reads one frame. io.EOF is returned unwrapped when the
// peer closed the connection before sending anything.
func ReadMessage(reader io.Reader) (tag dnet.Tag4CC, payload []byte, err error) {
	buf := [HeaderSize]byte{}
	n, err := io.ReadFull(reader, buf[:])
	if err != nil {
		if n == 0 && err == io.EOF {
			return 0, nil, io.EOF
		}
		return 0, nil, fmt.Errorf("short header: received %d bytes: %w", n, err)
	}
	hdr := DecodeHeader(buf)
	if hdr.Magic != MagicBytes {
		return 0, nil, fmt.Errorf("invalid magic bytes: %08x", hdr.Magic)
	}
	if hdr.Length > MaxMsgSize {
		return 0, nil, fmt.Errorf("message too large: %d bytes", hdr.Length)
	}
	payload = make([]byte, hdr.Length)
	n, err = io.ReadFull(reader, payload)
	if err != nil {
		return 0, nil, fmt.Errorf("short payload: received %d bytes: %w", n, err)
	}
	hash := DoubleSHA256(payload)
	if !bytes.Equal(hdr.Checksum[:], hash[:4]) {
		return 0, nil, fmt.Errorf("checksum mismatch: %x vs %x", hdr.Checksum, hash[:4])
	}
	return hdr.Tag, payload, nil
}
