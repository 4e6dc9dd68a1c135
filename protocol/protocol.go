// Package protocol frames JSON-RPC envelopes on a byte stream.
//
// TCP has no message boundaries, so every envelope travels behind a fixed
// 13-byte header carrying its length. The receiver reads the header, then
// exactly that many body bytes.
//
//	0      3  4  5         9         13
//	┌──────┬──┬──┬─────────┬─────────┬───────────────┐
//	│magic │v │mt│   seq   │ bodyLen │    body ...    │
//	│ jrp  │01│  │ uint32  │ uint32  │ JSON envelope  │
//	└──────┴──┴──┴─────────┴─────────┴───────────────┘
//
// Seq lets one connection carry many calls at once: the server echoes the
// request's seq on its response frame.
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	MagicByte1 byte = 0x6a // 'j'
	MagicByte2 byte = 0x72 // 'r'
	MagicByte3 byte = 0x70 // 'p'
	Version    byte = 0x01
	HeaderSize int  = 13 // 3 (magic) + 1 (version) + 1 (msgType) + 4 (seq) + 4 (bodyLen)

	// MaxBodySize bounds a single frame so a corrupt length cannot make the
	// reader allocate gigabytes.
	MaxBodySize uint32 = 16 << 20
)

// MsgType distinguishes request, response, and heartbeat frames.
type MsgType byte

const (
	MsgTypeRequest   MsgType = 0
	MsgTypeResponse  MsgType = 1
	MsgTypeHeartbeat MsgType = 2 // keepalive, no body
)

// Header is the fixed frame header.
type Header struct {
	MsgType MsgType
	Seq     uint32
	BodyLen uint32
}

// Encode writes a complete frame to w. Concurrent writers sharing w must
// serialize calls, otherwise frames interleave.
func Encode(w io.Writer, h *Header, body []byte) error {
	if uint32(len(body)) != h.BodyLen {
		return fmt.Errorf("body length %d does not match header %d", len(body), h.BodyLen)
	}
	if h.BodyLen > MaxBodySize {
		return fmt.Errorf("body of %d bytes exceeds limit %d", h.BodyLen, MaxBodySize)
	}

	buf := make([]byte, HeaderSize, HeaderSize+len(body))
	copy(buf[0:3], []byte{MagicByte1, MagicByte2, MagicByte3})
	buf[3] = Version
	buf[4] = byte(h.MsgType)
	binary.BigEndian.PutUint32(buf[5:9], h.Seq)
	binary.BigEndian.PutUint32(buf[9:13], h.BodyLen)

	// one write per frame
	_, err := w.Write(append(buf, body...))
	return err
}

// Decode reads one complete frame from r.
func Decode(r io.Reader) (*Header, []byte, error) {
	headerBuf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(r, headerBuf); err != nil {
		return nil, nil, err
	}

	if headerBuf[0] != MagicByte1 || headerBuf[1] != MagicByte2 || headerBuf[2] != MagicByte3 {
		return nil, nil, fmt.Errorf("invalid magic number: %x", headerBuf[0:3])
	}
	if headerBuf[3] != Version {
		return nil, nil, fmt.Errorf("unsupported version: %d", headerBuf[3])
	}
	msgType := MsgType(headerBuf[4])
	if msgType != MsgTypeRequest && msgType != MsgTypeResponse && msgType != MsgTypeHeartbeat {
		return nil, nil, fmt.Errorf("unsupported message type: %d", msgType)
	}

	h := &Header{
		MsgType: msgType,
		Seq:     binary.BigEndian.Uint32(headerBuf[5:9]),
		BodyLen: binary.BigEndian.Uint32(headerBuf[9:13]),
	}
	if h.BodyLen > MaxBodySize {
		return nil, nil, fmt.Errorf("body of %d bytes exceeds limit %d", h.BodyLen, MaxBodySize)
	}

	body := make([]byte, h.BodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, nil, err
	}
	return h, body, nil
}
