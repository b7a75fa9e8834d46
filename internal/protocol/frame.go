package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	// HeaderSize is the length prefix size.
	HeaderSize = 4
	// DefaultMaxFrame bounds a frame body unless configured otherwise.
	DefaultMaxFrame = 64 << 20
)

// AppendFrame appends the length-prefixed encoding of m to b.
func AppendFrame(b []byte, serial uint32, m Message) []byte {
	body := Marshal(serial, m)
	b = binary.BigEndian.AppendUint32(b, uint32(len(body)))
	return append(b, body...)
}

// WriteFrame writes one framed message to w and flushes it if w buffers.
func WriteFrame(w io.Writer, serial uint32, m Message) error {
	data := AppendFrame(make([]byte, 0, HeaderSize+64), serial, m)
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("failed to write %v frame: %w", m.Kind(), err)
	}
	if f, ok := w.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("failed to flush %v frame: %w", m.Kind(), err)
		}
	}
	return nil
}

// ReadFrame reads one framed message from r. A clean close before any
// header byte returns io.EOF. A zero or oversized length, a short body or
// an undecodable body returns an error wrapping ErrProtocol.
func ReadFrame(r io.Reader, maxFrame int) (uint32, Message, error) {
	if maxFrame <= 0 {
		maxFrame = DefaultMaxFrame
	}
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, nil, fmt.Errorf("%w: truncated frame header", ErrProtocol)
		}
		return 0, nil, err
	}
	length := binary.BigEndian.Uint32(hdr[:])
	if length == 0 || uint64(length) > uint64(maxFrame) {
		return 0, nil, fmt.Errorf("%w: invalid frame length %d", ErrProtocol, length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, nil, fmt.Errorf("%w: truncated frame body", ErrProtocol)
		}
		return 0, nil, fmt.Errorf("failed to read frame body: %w", err)
	}
	return Unmarshal(body)
}
