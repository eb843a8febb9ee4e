//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package dnswire

import (
	"encoding/binary"
	"fmt"
)

// Type is a resource record type code. Question sections admit a few
// additional query-only values ([TypeAXFR] through [TypeANY]).
type Type uint16

// Record types from RFC 1035 section 3.2.2, plus the query-only values
// from section 3.2.3.
const (
	TypeA     Type = 1
	TypeNS    Type = 2
	TypeMD    Type = 3
	TypeMF    Type = 4
	TypeCNAME Type = 5
	TypeSOA   Type = 6
	TypeMB    Type = 7
	TypeMG    Type = 8
	TypeMR    Type = 9
	TypeNULL  Type = 10
	TypeWKS   Type = 11
	TypePTR   Type = 12
	TypeHINFO Type = 13
	TypeMINFO Type = 14
	TypeMX    Type = 15
	TypeTXT   Type = 16

	TypeAXFR  Type = 252
	TypeMAILB Type = 253
	TypeMAILA Type = 254
	TypeANY   Type = 255 // "*" in RFC 1035
)

// Implemented reports whether the codec has a native rdata representation
// for the type. Records of other types carry opaque bytes and are refused
// by the resolution pipeline.
func (t Type) Implemented() bool {
	return t >= TypeA && t <= TypeTXT
}

var typeNames = map[Type]string{
	TypeA: "A", TypeNS: "NS", TypeMD: "MD", TypeMF: "MF", TypeCNAME: "CNAME",
	TypeSOA: "SOA", TypeMB: "MB", TypeMG: "MG", TypeMR: "MR", TypeNULL: "NULL",
	TypeWKS: "WKS", TypePTR: "PTR", TypeHINFO: "HINFO", TypeMINFO: "MINFO",
	TypeMX: "MX", TypeTXT: "TXT", TypeAXFR: "AXFR", TypeMAILB: "MAILB",
	TypeMAILA: "MAILA", TypeANY: "*",
}

func (t Type) String() string {
	if s, ok := typeNames[t]; ok {
		return s
	}
	return fmt.Sprintf("TYPE%d", uint16(t))
}

// ParseType maps a textual type name back to its code.
func ParseType(s string) (Type, bool) {
	for t, name := range typeNames {
		if name == s {
			return t, true
		}
	}
	return 0, false
}

// Class is a resource record class code.
type Class uint16

// Classes from RFC 1035 section 3.2.4, plus the query-only wildcard.
const (
	ClassIN  Class = 1
	ClassCS  Class = 2
	ClassCH  Class = 3
	ClassHS  Class = 4
	ClassANY Class = 255 // "*" in RFC 1035
)

// Implemented reports whether the class is one the resolver understands.
func (c Class) Implemented() bool {
	return c >= ClassIN && c <= ClassHS
}

func (c Class) String() string {
	switch c {
	case ClassIN:
		return "IN"
	case ClassCS:
		return "CS"
	case ClassCH:
		return "CH"
	case ClassHS:
		return "HS"
	case ClassANY:
		return "*"
	}
	return fmt.Sprintf("CLASS%d", uint16(c))
}

// Question is one entry of the question section.
type Question struct {
	Name  Name
	Type  Type
	Class Class
}

// Implemented reports whether the resolver can act on the question at
// all. The wildcards and the obsolete mail queries are forwarded verbatim
// to upstreams; AXFR is a zone-transfer request, which this server does
// not serve.
func (q Question) Implemented() bool {
	typeOK := q.Type.Implemented() ||
		q.Type == TypeMAILB || q.Type == TypeMAILA || q.Type == TypeANY
	classOK := q.Class.Implemented() || q.Class == ClassANY
	return typeOK && classOK
}

func (q Question) appendTo(buf []byte) ([]byte, error) {
	buf, err := appendName(buf, q.Name)
	if err != nil {
		return nil, err
	}
	buf = binary.BigEndian.AppendUint16(buf, uint16(q.Type))
	return binary.BigEndian.AppendUint16(buf, uint16(q.Class)), nil
}

func decodeQuestion(msg []byte, off int) (Question, int, error) {
	name, off, err := decodeName(msg, off)
	if err != nil {
		return Question{}, 0, err
	}
	if off+4 > len(msg) {
		return Question{}, 0, ErrTruncatedMessage
	}
	q := Question{
		Name:  name,
		Type:  Type(binary.BigEndian.Uint16(msg[off : off+2])),
		Class: Class(binary.BigEndian.Uint16(msg[off+2 : off+4])),
	}
	return q, off + 4, nil
}
