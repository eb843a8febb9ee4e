//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package resolver

import (
	"context"
	"log/slog"
	"net"
	"net/netip"

	"github.com/polymorfiq/dns-server/internal/dnswire"
	"github.com/polymorfiq/dns-server/internal/metrics"
)

// maxUDPReply is the read buffer size for upstream UDP replies.
const maxUDPReply = 4096

// Delegator forwards a client request to every configured foreign name
// server in parallel and hands each delegate response to its processor.
type Delegator struct {
	upstreams []netip.AddrPort
	log       *slog.Logger
	metrics   *metrics.Metrics
}

// NewDelegator returns a delegator probing the given upstreams.
func NewDelegator(upstreams []netip.AddrPort, log *slog.Logger, m *metrics.Metrics) *Delegator {
	return &Delegator{
		upstreams: upstreams,
		log:       log.With("component", "resolver.Delegator"),
		metrics:   m,
	}
}

// Delegate serializes the request once and starts one probe per
// upstream. Delegate responses arrive on out; probes stop delivering
// when ctx is cancelled, so the caller controls the overall deadline.
func (d *Delegator) Delegate(ctx context.Context, req *dnswire.Message, out chan<- *dnswire.Message) error {
	raw, err := req.Encode()
	if err != nil {
		return err
	}
	for _, upstream := range d.upstreams {
		go d.probe(ctx, raw, upstream, out)
	}
	return nil
}

// probe runs one upstream conversation: an ephemeral UDP socket, one
// request, and at most one delegate response. A truncated UDP reply
// escalates to TCP before anything is delivered.
func (d *Delegator) probe(ctx context.Context, raw []byte, upstream netip.AddrPort, out chan<- *dnswire.Message) {
	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		d.log.Warn("cannot open upstream socket", "upstream", upstream, "error", err)
		return
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if _, err := conn.WriteToUDPAddrPort(raw, upstream); err != nil {
		d.log.Warn("cannot send to upstream", "upstream", upstream, "error", err)
		return
	}

	buf := make([]byte, maxUDPReply)
	for {
		n, from, err := conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			// Cancelled or socket error; the processor's deadline
			// decides the query's fate.
			return
		}
		if !d.isUpstream(from) {
			d.log.Warn("dropping reply from unknown source", "source", from)
			continue
		}

		msg, err := dnswire.Decode(buf[:n])
		if err != nil {
			d.metrics.UpstreamParseFailures.Inc()
			d.log.Warn("dropping unparseable upstream reply", "upstream", upstream, "error", err)
			continue
		}
		d.metrics.UpstreamRepliesTotal.WithLabelValues(upstream.String()).Inc()

		if msg.Header.Truncated {
			d.log.Debug("upstream reply truncated, retrying over TCP", "upstream", upstream)
			msg, err = d.retryTCP(ctx, raw, upstream)
			if err != nil {
				d.log.Warn("TCP retry failed", "upstream", upstream, "error", err)
				return
			}
		}

		select {
		case out <- msg:
		case <-ctx.Done():
		}
		return
	}
}

// retryTCP resends the already-serialized request over a TCP connection
// with the RFC 1035 two-octet framing and waits for the reply.
func (d *Delegator) retryTCP(ctx context.Context, raw []byte, upstream netip.AddrPort) (*dnswire.Message, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", upstream.String())
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	if err := dnswire.WriteFramed(conn, raw); err != nil {
		return nil, err
	}
	reply, err := dnswire.ReadFramed(conn)
	if err != nil {
		return nil, err
	}
	msg, err := dnswire.Decode(reply)
	if err != nil {
		d.metrics.UpstreamParseFailures.Inc()
		return nil, err
	}
	return msg, nil
}

func (d *Delegator) isUpstream(from netip.AddrPort) bool {
	addr := from.Addr().Unmap()
	for _, upstream := range d.upstreams {
		if upstream.Addr().Unmap() == addr && upstream.Port() == from.Port() {
			return true
		}
	}
	return false
}
