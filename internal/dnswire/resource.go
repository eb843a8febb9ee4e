//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package dnswire

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrTruncatedMessage means the datagram ended inside a fixed-layout field.
var ErrTruncatedMessage = errors.New("dnswire: truncated message")

// Resource is one resource record.
type Resource struct {
	Name  Name
	Type  Type
	Class Class
	TTL   int32

	// RDLength is the encoded length of Data in octets. It is stamped
	// from the actual encoding by [*Message.FixMetadata]; the encoder
	// always writes the recomputed value, never a stale one.
	RDLength uint16

	Data RData
}

// Implemented reports whether the record's type has a native rdata
// representation. The resolution pipeline refuses unimplemented records.
func (r *Resource) Implemented() bool {
	return r.Type.Implemented()
}

// EncodeData returns the record's rdata in wire form.
func (r *Resource) EncodeData() ([]byte, error) {
	return r.Data.appendTo(nil)
}

// Key returns the record's identity as used for cache storage and for
// response deduplication: class, type, case-folded name and raw rdata.
func (r *Resource) Key() (string, error) {
	rdata, err := r.EncodeData()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d/%d/%s/%x", r.Class, r.Type, r.Name.Canonical(), rdata), nil
}

func (r *Resource) appendTo(buf []byte) ([]byte, error) {
	buf, err := appendName(buf, r.Name)
	if err != nil {
		return nil, err
	}
	buf = binary.BigEndian.AppendUint16(buf, uint16(r.Type))
	buf = binary.BigEndian.AppendUint16(buf, uint16(r.Class))
	buf = binary.BigEndian.AppendUint32(buf, uint32(r.TTL))

	rdata, err := r.Data.appendTo(nil)
	if err != nil {
		return nil, err
	}
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(rdata)))
	return append(buf, rdata...), nil
}

func decodeResource(msg []byte, off int) (Resource, int, error) {
	name, off, err := decodeName(msg, off)
	if err != nil {
		return Resource{}, 0, err
	}
	if off+10 > len(msg) {
		return Resource{}, 0, ErrTruncatedMessage
	}
	r := Resource{
		Name:     name,
		Type:     Type(binary.BigEndian.Uint16(msg[off : off+2])),
		Class:    Class(binary.BigEndian.Uint16(msg[off+2 : off+4])),
		TTL:      int32(binary.BigEndian.Uint32(msg[off+4 : off+8])),
		RDLength: binary.BigEndian.Uint16(msg[off+8 : off+10]),
	}
	off += 10
	if off+int(r.RDLength) > len(msg) {
		return Resource{}, 0, ErrTruncatedMessage
	}
	r.Data, err = decodeRData(msg, off, r.Type, int(r.RDLength))
	if err != nil {
		return Resource{}, 0, err
	}
	return r, off + int(r.RDLength), nil
}

// decodeResources reads exactly n consecutive records starting at off,
// threading the whole datagram through for pointer resolution.
func decodeResources(msg []byte, off int, n uint16) ([]Resource, int, error) {
	var out []Resource
	for i := uint16(0); i < n; i++ {
		r, next, err := decodeResource(msg, off)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, r)
		off = next
	}
	return out, off, nil
}
