//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package dnswire

import "errors"

// ErrTrailingBytes means the datagram had bytes left over after every
// section announced by the header was decoded.
var ErrTrailingBytes = errors.New("dnswire: trailing bytes after message")

// Message is a complete DNS message.
type Message struct {
	Header     Header
	Questions  []Question
	Answers    []Resource
	Authority  []Resource
	Additional []Resource
}

// Encode packs the message into wire format. The header counts are
// written as stored; run [*Message.FixMetadata] first after mutating any
// section.
func (m *Message) Encode() ([]byte, error) {
	buf := make([]byte, 0, 512)
	buf, err := m.Header.appendTo(buf)
	if err != nil {
		return nil, err
	}
	for _, q := range m.Questions {
		if buf, err = q.appendTo(buf); err != nil {
			return nil, err
		}
	}
	for _, section := range [][]Resource{m.Answers, m.Authority, m.Additional} {
		for i := range section {
			if buf, err = section[i].appendTo(buf); err != nil {
				return nil, err
			}
		}
	}
	return buf, nil
}

// Decode unpacks a whole datagram. The buffer must contain exactly one
// message: trailing bytes are an error. Compression pointers anywhere in
// the message resolve against the full buffer.
func Decode(buf []byte) (*Message, error) {
	header, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}
	m := &Message{Header: header}

	off := HeaderSize
	for i := uint16(0); i < header.QDCount; i++ {
		q, next, err := decodeQuestion(buf, off)
		if err != nil {
			return nil, err
		}
		m.Questions = append(m.Questions, q)
		off = next
	}
	if m.Answers, off, err = decodeResources(buf, off, header.ANCount); err != nil {
		return nil, err
	}
	if m.Authority, off, err = decodeResources(buf, off, header.NSCount); err != nil {
		return nil, err
	}
	if m.Additional, off, err = decodeResources(buf, off, header.ARCount); err != nil {
		return nil, err
	}
	if off != len(buf) {
		return nil, ErrTrailingBytes
	}
	return m, nil
}

// FixMetadata re-derives the header section counts and every resource's
// RDLength from the current contents. It is idempotent.
func (m *Message) FixMetadata() error {
	m.Header.QDCount = uint16(len(m.Questions))
	m.Header.ANCount = uint16(len(m.Answers))
	m.Header.NSCount = uint16(len(m.Authority))
	m.Header.ARCount = uint16(len(m.Additional))
	for _, section := range [][]Resource{m.Answers, m.Authority, m.Additional} {
		for i := range section {
			rdata, err := section[i].Data.appendTo(nil)
			if err != nil {
				return err
			}
			section[i].RDLength = uint16(len(rdata))
		}
	}
	return nil
}
