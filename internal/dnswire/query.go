//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package dnswire

import (
	"github.com/miekg/dns"
	"golang.org/x/net/idna"
)

// NewQuery constructs a recursion-desired query message for a
// human-supplied domain name.
//
// The name is IDNA-encoded first, so internationalized names work; a
// trailing dot is accepted and ignored. The query uses a randomized
// transaction ID and class IN.
func NewQuery(name string, qtype Type) (*Message, error) {
	punyName := name
	if name != "" && name != "." {
		var err error
		if punyName, err = idna.Lookup.ToASCII(name); err != nil {
			return nil, err
		}
	}

	question := Question{
		Name:  ParseName(punyName),
		Type:  qtype,
		Class: ClassIN,
	}
	msg := &Message{
		Header: Header{
			ID:               dns.Id(),
			OpCode:           OpCodeQuery,
			RecursionDesired: true,
			RCode:            RCodeNoError,
		},
		Questions: []Question{question},
	}
	if err := msg.FixMetadata(); err != nil {
		return nil, err
	}

	// Reject invalid labels now rather than at send time.
	if _, err := appendName(nil, question.Name); err != nil {
		return nil, err
	}
	return msg, nil
}
