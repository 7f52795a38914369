// Package wire implements the engine's message framing and the typed
// request/response/notification envelopes carried over it (§6).
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// DefaultMaxMsgSize is MAX_MSG_SIZE's default (§6): a frame larger than
// this is rejected before its payload is even read.
const DefaultMaxMsgSize = 262144

// ErrMessageTooLarge is returned by ReadFrame when a frame's declared
// length exceeds maxSize.
var ErrMessageTooLarge = errors.New("wire: message exceeds MAX_MSG_SIZE")

// ReadFrame reads one `[4-byte big-endian length][payload]` frame, grounded
// on the Oculo ingestion daemon's length-prefixed `handleConnection` loop —
// adapted to drop that format's extra 1-byte type tag, since this wire
// format carries the message kind inside the JSON payload instead (§6).
func ReadFrame(r io.Reader, maxSize uint32) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	size := binary.BigEndian.Uint32(lenBuf[:])
	if size > maxSize {
		return nil, ErrMessageTooLarge
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("wire: read payload: %w", err)
	}
	return payload, nil
}

// WriteFrame writes payload as one length-prefixed frame. Returns
// ErrMessageTooLarge rather than silently truncating or wrapping the
// length, the way payload is prevented from ever exceeding maxSize on the
// encode side too.
func WriteFrame(w io.Writer, payload []byte, maxSize uint32) error {
	if uint32(len(payload)) > maxSize {
		return ErrMessageTooLarge
	}

	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return fmt.Errorf("wire: write length prefix: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("wire: write payload: %w", err)
	}
	return nil
}
