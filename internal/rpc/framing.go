package rpc

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxMessageBytes is the largest JSON body ReadFrame accepts. Oversize
// messages close the connection rather than desynchronize the stream.
const MaxMessageBytes = 64 * 1024 * 1024

// ErrOversizeMessage is returned by ReadFrame when the frame's declared
// length exceeds MaxMessageBytes.
var ErrOversizeMessage = errors.New("rpc: oversize message")

// ReadFrame reads one [uint32 big-endian length][body] frame from r.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxMessageBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds the %d byte limit", ErrOversizeMessage, n, MaxMessageBytes)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

// WriteFrame writes payload to w as one [uint32 big-endian length][body]
// frame.
func WriteFrame(w io.Writer, payload []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}
