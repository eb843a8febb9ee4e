//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package server

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/polymorfiq/dns-server/internal/dnswire"
	"github.com/polymorfiq/dns-server/internal/metrics"
	"github.com/polymorfiq/dns-server/internal/resolver"
)

// DefaultUDPTruncateLength is the largest UDP reply sent before
// truncation kicks in, per RFC 1035.
const DefaultUDPTruncateLength = 512

// Request handles one client conversation: raw bytes in, raw bytes out.
type Request struct {
	transport        string // "udp" or "tcp"
	udpTruncateLen   int
	processor        *resolver.Processor
	log              *slog.Logger
	metrics          *metrics.Metrics
}

// NewRequest returns a façade for one conversation over the given
// transport. A truncate length of zero or less selects
// [DefaultUDPTruncateLength].
func NewRequest(transport string, udpTruncateLen int, p *resolver.Processor, log *slog.Logger, m *metrics.Metrics) *Request {
	if udpTruncateLen <= 0 {
		udpTruncateLen = DefaultUDPTruncateLength
	}
	return &Request{
		transport:      transport,
		udpTruncateLen: udpTruncateLen,
		processor:      p,
		log:            log.With("component", "server.Request"),
		metrics:        m,
	}
}

// Handle parses one client message, runs it through a processor and
// returns the serialized reply. A nil reply means the input was not
// even a DNS header and must be dropped silently.
func (r *Request) Handle(ctx context.Context, raw []byte) []byte {
	startedAt := time.Now()
	r.metrics.QueriesTotal.WithLabelValues(r.transport).Inc()

	req, err := dnswire.Decode(raw)
	if err != nil {
		r.metrics.ParseFailuresTotal.Inc()
		return r.formatError(raw, err)
	}

	resp := r.processor.Process(ctx, req, startedAt)
	out, err := resp.Encode()
	if err != nil {
		r.log.Error("cannot encode response", "error", err)
		return nil
	}

	if r.transport == "udp" && len(out) > r.udpTruncateLen {
		out = r.truncate(resp)
	}

	r.metrics.QueryDuration.Observe(time.Since(startedAt).Seconds())
	return out
}

// formatError answers FORMERR when at least the query ID was readable.
// A header carrying an unknown opcode is readable enough: the reply
// echoes it rather than dropping the datagram.
func (r *Request) formatError(raw []byte, cause error) []byte {
	header, err := dnswire.DecodeHeader(raw)
	if err != nil && !errors.Is(err, dnswire.ErrBadOpcode) {
		r.log.Debug("dropping undecodable datagram", "error", err)
		return nil
	}
	r.log.Debug("answering FORMERR", "id", header.ID, "error", cause)

	resp := &dnswire.Message{
		Header: dnswire.Header{
			ID:                 header.ID,
			Response:           true,
			OpCode:             header.OpCode,
			RecursionDesired:   header.RecursionDesired,
			RecursionAvailable: true,
			RCode:              dnswire.RCodeFormatError,
		},
	}
	out, err := resp.Encode()
	if err != nil {
		return nil
	}
	return out
}

// truncate replaces an oversized UDP reply with an empty message that
// only signals TC, prompting the client to retry over TCP. Length is
// measured in octets of the encoding, never in characters.
func (r *Request) truncate(resp *dnswire.Message) []byte {
	r.metrics.TruncatedReplies.Inc()

	empty := &dnswire.Message{Header: resp.Header}
	empty.Header.Truncated = true
	if err := empty.FixMetadata(); err != nil {
		return nil
	}
	out, err := empty.Encode()
	if err != nil {
		r.log.Error("cannot encode truncated response", "error", err)
		return nil
	}
	return out
}
