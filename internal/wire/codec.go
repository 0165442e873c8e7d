package wire

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// MaxFrameSize bounds the payload length a peer may announce.
const MaxFrameSize = 16 << 20

var (
	// ErrTruncatedFrame reports a connection that closed mid-frame.
	ErrTruncatedFrame = errors.New("wire: truncated frame")

	// ErrFrameTooLarge reports a length prefix above MaxFrameSize.
	ErrFrameTooLarge = errors.New("wire: frame exceeds size limit")

	// ErrBadFrame reports a payload that is not a valid message object.
	ErrBadFrame = errors.New("wire: malformed frame")
)

// Encode writes msg as one frame: a 4-byte big-endian payload length followed
// by the UTF-8 JSON payload.
func Encode(w io.Writer, msg *Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	if len(payload) > MaxFrameSize {
		return ErrFrameTooLarge
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(payload)))

	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("wire: write header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("wire: write payload: %w", err)
	}
	return nil
}

// Decode reads exactly one frame from r. A clean close before the first
// header byte surfaces as io.EOF; a close anywhere else is ErrTruncatedFrame.
func Decode(r io.Reader) (*Message, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, fmt.Errorf("%w: %v", ErrTruncatedFrame, err)
	}

	length := binary.BigEndian.Uint32(header[:])
	if length > MaxFrameSize {
		return nil, ErrFrameTooLarge
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTruncatedFrame, err)
	}

	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	return &msg, nil
}
