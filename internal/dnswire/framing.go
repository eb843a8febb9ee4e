//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package dnswire

import (
	"encoding/binary"
	"errors"
	"io"
)

// ErrFrameTooLarge means a message does not fit the two-octet TCP
// length prefix.
var ErrFrameTooLarge = errors.New("dnswire: message too large for TCP frame")

// WriteFramed writes one message with the two-octet length prefix DNS
// uses over TCP (RFC 1035 section 4.2.2).
func WriteFramed(w io.Writer, msg []byte) error {
	if len(msg) > 0xFFFF {
		return ErrFrameTooLarge
	}
	frame := make([]byte, 2, 2+len(msg))
	binary.BigEndian.PutUint16(frame, uint16(len(msg)))
	_, err := w.Write(append(frame, msg...))
	return err
}

// ReadFramed reads one length-prefixed message. It returns io.EOF
// unwrapped when the stream ends cleanly between messages.
func ReadFramed(r io.Reader) ([]byte, error) {
	var prefix [2]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}
	msg := make([]byte, binary.BigEndian.Uint16(prefix[:]))
	if _, err := io.ReadFull(r, msg); err != nil {
		return nil, err
	}
	return msg, nil
}
