// Copyright (C) 2026 The mbus Authors. All Rights Reserved.

package mbus

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// MaxPayload is the largest frame payload, in bytes, that a reader will
// accept. Longer frames are rejected without reading their payload.
const MaxPayload = 16 << 20

// headerLen is the size of the fixed frame header: 2 magic, 1 version, 1
// type, 4 payload length.
const headerLen = 8

// Frame is the parsed format of a wire frame. Each frame carries at most one
// encoded message.
type Frame struct {
	Version byte
	Type    FrameType
	Payload []byte
}

// Encode encodes f in binary format.
func (f Frame) Encode() []byte {
	buf := bytes.NewBuffer(make([]byte, 0, headerLen+len(f.Payload)))
	if _, err := f.WriteTo(buf); err != nil {
		panic(fmt.Errorf("encoding frame: %w", err))
	}
	return buf.Bytes()
}

// WriteTo writes the frame to w in binary format. It satisfies io.WriterTo.
func (f *Frame) WriteTo(w io.Writer) (int64, error) {
	if len(f.Payload) > MaxPayload {
		return 0, fmt.Errorf("frame payload too long (%d > %d bytes)", len(f.Payload), MaxPayload)
	}
	buf := [headerLen]byte{'M', 'B', f.Version, byte(f.Type)}
	binary.BigEndian.PutUint32(buf[4:], uint32(len(f.Payload)))
	nw, err := w.Write(buf[:])
	if err == nil && len(f.Payload) != 0 {
		var np int
		np, err = w.Write(f.Payload)
		nw += np
	}
	return int64(nw), err
}

// ReadFrom reads a frame from r in binary format. It satisfies io.ReaderFrom.
//
// If r is exhausted before any header byte is read, the error wraps io.EOF.
// A malformed header or an oversized payload reports an error of concrete
// type *Error with kind KindDecode.
func (f *Frame) ReadFrom(r io.Reader) (int64, error) {
	var buf [headerLen]byte
	nr, err := io.ReadFull(r, buf[:])
	if err != nil {
		return int64(nr), fmt.Errorf("short frame header: %w", err)
	}
	if m := string(buf[:3]); m != "MB\x00" {
		return int64(nr), &Error{Kind: KindDecode, Op: "read", Err: fmt.Errorf("invalid frame header %q", m)}
	}

	f.Version = buf[2]
	f.Type = FrameType(buf[3])
	f.Payload = nil

	psize := binary.BigEndian.Uint32(buf[4:])
	if psize > MaxPayload {
		return int64(nr), &Error{Kind: KindDecode, Op: "read", Err: fmt.Errorf("frame payload too long (%d > %d bytes)", psize, MaxPayload)}
	}
	if psize > 0 {
		f.Payload = make([]byte, int(psize))
		var np int
		np, err = io.ReadFull(r, f.Payload)
		nr += np
		if err != nil {
			err = fmt.Errorf("short payload: %w", err)
		}
	}
	return int64(nr), err
}

// String returns a human-friendly rendering of the frame.
func (f *Frame) String() string {
	if len(f.Payload) > 16 {
		return fmt.Sprintf("Frame(MB%v, %v, %+v ...)", f.Version, f.Type, f.Payload[:16])
	}
	return fmt.Sprintf("Frame(MB%v, %v, %+v)", f.Version, f.Type, f.Payload)
}

// FrameType describes the content of a frame. Readers silently discard frames
// whose type they do not recognize.
type FrameType byte

const (
	FrameData FrameType = 1 // One encoded message
	FrameEnd  FrameType = 2 // The sender will send no further frames
)

func (t FrameType) String() string {
	switch t {
	case FrameData:
		return "DATA"
	case FrameEnd:
		return "END"
	default:
		return fmt.Sprintf("TYPE:%d", byte(t))
	}
}

// DataFrame returns a data frame carrying payload.
func DataFrame(payload []byte) *Frame { return &Frame{Type: FrameData, Payload: payload} }
