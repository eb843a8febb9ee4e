// SPDX-License-Identifier: GPL-3.0-or-later

// Package dnswire is a bit-accurate RFC 1035 DNS message codec.
//
// [Decode] unpacks a raw datagram into a [*Message], resolving name
// compression pointers against the whole datagram. [*Message.Encode] packs
// a message back into wire format; the encoder never emits compression
// pointers, which is still a legal encoding of the same logical message.
//
// [*Message.FixMetadata] restamps the header section counts and every
// resource's RDLENGTH from the current message contents. Callers that
// mutate a message must run it before encoding.
//
// [NewQuery] constructs a recursion-desired query message for a
// human-supplied domain name.
package dnswire
