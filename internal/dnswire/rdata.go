//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package dnswire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net/netip"
)

// Errors emitted by the rdata codecs.
var (
	// ErrRDataLength means the rdata did not consume exactly RDLENGTH
	// octets.
	ErrRDataLength = errors.New("dnswire: rdata length mismatch")

	// ErrUnexpectedIPv6 means an A record carried an IPv6 address.
	ErrUnexpectedIPv6 = errors.New("dnswire: unexpected IPv6 address in A record")
)

// RData is the type-specific payload of a resource record.
//
// The concrete variants are value types so two resources with equal
// payloads compare equal through reflection.
type RData interface {
	appendTo(buf []byte) ([]byte, error)
}

// RDataA is an IPv4 address, stored in dotted-quad form.
type RDataA struct {
	Addr string
}

func (d RDataA) appendTo(buf []byte) ([]byte, error) {
	addr, err := netip.ParseAddr(d.Addr)
	if err != nil {
		return nil, fmt.Errorf("dnswire: bad A record address %q: %w", d.Addr, err)
	}
	if !addr.Is4() {
		return nil, ErrUnexpectedIPv6
	}
	v4 := addr.As4()
	return append(buf, v4[:]...), nil
}

// RDataName is a single domain name payload, shared by NS, MD, MF,
// CNAME, MB, MG, MR and PTR records.
type RDataName struct {
	Target Name
}

func (d RDataName) appendTo(buf []byte) ([]byte, error) {
	return appendName(buf, d.Target)
}

// RDataSOA is the start-of-authority payload.
type RDataSOA struct {
	MName   Name
	RName   Name
	Serial  uint32
	Refresh int32
	Retry   int32
	Expire  int32
	Minimum uint32
}

func (d RDataSOA) appendTo(buf []byte) ([]byte, error) {
	buf, err := appendName(buf, d.MName)
	if err != nil {
		return nil, err
	}
	buf, err = appendName(buf, d.RName)
	if err != nil {
		return nil, err
	}
	buf = binary.BigEndian.AppendUint32(buf, d.Serial)
	buf = binary.BigEndian.AppendUint32(buf, uint32(d.Refresh))
	buf = binary.BigEndian.AppendUint32(buf, uint32(d.Retry))
	buf = binary.BigEndian.AppendUint32(buf, uint32(d.Expire))
	return binary.BigEndian.AppendUint32(buf, d.Minimum), nil
}

// RDataWKS is the well-known-services payload.
type RDataWKS struct {
	Addr     string
	Protocol uint8
	Bitmap   []byte
}

func (d RDataWKS) appendTo(buf []byte) ([]byte, error) {
	buf, err := RDataA{Addr: d.Addr}.appendTo(buf)
	if err != nil {
		return nil, err
	}
	buf = append(buf, d.Protocol)
	return append(buf, d.Bitmap...), nil
}

// RDataHINFO is the host-information payload.
type RDataHINFO struct {
	CPU string
	OS  string
}

func (d RDataHINFO) appendTo(buf []byte) ([]byte, error) {
	buf, err := appendCharstring(buf, d.CPU)
	if err != nil {
		return nil, err
	}
	return appendCharstring(buf, d.OS)
}

// RDataMINFO is the mailbox-information payload.
type RDataMINFO struct {
	RMailbox Name
	EMailbox Name
}

func (d RDataMINFO) appendTo(buf []byte) ([]byte, error) {
	buf, err := appendName(buf, d.RMailbox)
	if err != nil {
		return nil, err
	}
	return appendName(buf, d.EMailbox)
}

// RDataMX is the mail-exchange payload.
type RDataMX struct {
	Preference uint16
	Exchange   Name
}

func (d RDataMX) appendTo(buf []byte) ([]byte, error) {
	buf = binary.BigEndian.AppendUint16(buf, d.Preference)
	return appendName(buf, d.Exchange)
}

// RDataTXT is a list of character strings.
type RDataTXT struct {
	Texts []string
}

func (d RDataTXT) appendTo(buf []byte) ([]byte, error) {
	var err error
	for _, s := range d.Texts {
		if buf, err = appendCharstring(buf, s); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

// RDataRaw is an opaque payload. It backs NULL records and records whose
// type the codec does not implement.
type RDataRaw struct {
	Data []byte
}

func (d RDataRaw) appendTo(buf []byte) ([]byte, error) {
	return append(buf, d.Data...), nil
}

// decodeRData decodes exactly rdlength octets starting at off. The whole
// datagram is threaded through so names embedded in rdata can resolve
// compression pointers.
func decodeRData(msg []byte, off int, t Type, rdlength int) (RData, error) {
	end := off + rdlength
	switch t {
	case TypeA:
		if rdlength != 4 {
			return nil, ErrRDataLength
		}
		return RDataA{Addr: netip.AddrFrom4([4]byte(msg[off:end])).String()}, nil

	case TypeNS, TypeMD, TypeMF, TypeCNAME, TypeMB, TypeMG, TypeMR, TypePTR:
		name, n, err := decodeName(msg, off)
		if err != nil {
			return nil, err
		}
		if n != end {
			return nil, ErrRDataLength
		}
		return RDataName{Target: name}, nil

	case TypeSOA:
		mname, n, err := decodeName(msg, off)
		if err != nil {
			return nil, err
		}
		rname, n, err := decodeName(msg, n)
		if err != nil {
			return nil, err
		}
		if n+20 != end {
			return nil, ErrRDataLength
		}
		return RDataSOA{
			MName:   mname,
			RName:   rname,
			Serial:  binary.BigEndian.Uint32(msg[n : n+4]),
			Refresh: int32(binary.BigEndian.Uint32(msg[n+4 : n+8])),
			Retry:   int32(binary.BigEndian.Uint32(msg[n+8 : n+12])),
			Expire:  int32(binary.BigEndian.Uint32(msg[n+12 : n+16])),
			Minimum: binary.BigEndian.Uint32(msg[n+16 : n+20]),
		}, nil

	case TypeWKS:
		if rdlength < 5 {
			return nil, ErrRDataLength
		}
		return RDataWKS{
			Addr:     netip.AddrFrom4([4]byte(msg[off : off+4])).String(),
			Protocol: msg[off+4],
			Bitmap:   append([]byte(nil), msg[off+5:end]...),
		}, nil

	case TypeHINFO:
		cpu, n, err := decodeCharstring(msg[:end], off)
		if err != nil {
			return nil, err
		}
		os, n, err := decodeCharstring(msg[:end], n)
		if err != nil {
			return nil, err
		}
		if n != end {
			return nil, ErrRDataLength
		}
		return RDataHINFO{CPU: cpu, OS: os}, nil

	case TypeMINFO:
		rmail, n, err := decodeName(msg, off)
		if err != nil {
			return nil, err
		}
		email, n, err := decodeName(msg, n)
		if err != nil {
			return nil, err
		}
		if n != end {
			return nil, ErrRDataLength
		}
		return RDataMINFO{RMailbox: rmail, EMailbox: email}, nil

	case TypeMX:
		if rdlength < 2 {
			return nil, ErrRDataLength
		}
		pref := binary.BigEndian.Uint16(msg[off : off+2])
		name, n, err := decodeName(msg, off+2)
		if err != nil {
			return nil, err
		}
		if n != end {
			return nil, ErrRDataLength
		}
		return RDataMX{Preference: pref, Exchange: name}, nil

	case TypeTXT:
		var texts []string
		for n := off; n != end; {
			s, next, err := decodeCharstring(msg[:end], n)
			if err != nil {
				return nil, err
			}
			texts = append(texts, s)
			n = next
		}
		return RDataTXT{Texts: texts}, nil

	default:
		// NULL and unknown types both carry opaque bytes; unknown types
		// additionally report themselves unimplemented via [Type].
		return RDataRaw{Data: append([]byte(nil), msg[off:end]...)}, nil
	}
}
