//
// SPDX-License-Identifier: GPL-3.0-or-later
//

package resolver

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/polymorfiq/dns-server/internal/dnswire"
	"github.com/polymorfiq/dns-server/internal/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testMetrics() *metrics.Metrics {
	return metrics.New(prometheus.NewRegistry())
}

func testRequest(t *testing.T, name string) *dnswire.Message {
	t.Helper()
	req, err := dnswire.NewQuery(name, dnswire.TypeA)
	require.NoError(t, err)
	return req
}

// noErrorReply builds an upstream answer echoing the request's question.
func noErrorReply(req *dnswire.Message, answers ...dnswire.Resource) *dnswire.Message {
	resp := &dnswire.Message{
		Header: dnswire.Header{
			ID:       req.Header.ID,
			Response: true,
			RCode:    dnswire.RCodeNoError,
		},
		Questions: req.Questions,
		Answers:   answers,
	}
	if err := resp.FixMetadata(); err != nil {
		panic(err)
	}
	return resp
}

func aRecord(name dnswire.Name, addr string) dnswire.Resource {
	return dnswire.Resource{
		Name:  name,
		Type:  dnswire.TypeA,
		Class: dnswire.ClassIN,
		TTL:   60,
		Data:  dnswire.RDataA{Addr: addr},
	}
}

// startUDPUpstream runs a fake foreign name server on the loopback.
// The handler may return nil to swallow the request; raw overrides the
// handler to send arbitrary bytes.
func startUDPUpstream(t *testing.T, handler func(*dnswire.Message) *dnswire.Message, raw []byte) netip.AddrPort {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, 4096)
		for {
			n, from, err := conn.ReadFromUDPAddrPort(buf)
			if err != nil {
				return
			}
			if raw != nil {
				conn.WriteToUDPAddrPort(raw, from)
				continue
			}
			req, err := dnswire.Decode(buf[:n])
			if err != nil {
				continue
			}
			resp := handler(req)
			if resp == nil {
				continue
			}
			out, err := resp.Encode()
			if err != nil {
				continue
			}
			conn.WriteToUDPAddrPort(out, from)
		}
	}()
	return conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

// startTCPUpstream serves one framed exchange on the given address,
// which a UDP upstream on the same port has typically advertised via
// the truncation bit.
func startTCPUpstream(t *testing.T, addr netip.AddrPort, handler func(*dnswire.Message) *dnswire.Message) {
	t.Helper()
	ln, err := net.Listen("tcp", addr.String())
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				raw, err := dnswire.ReadFramed(conn)
				if err != nil {
					return
				}
				req, err := dnswire.Decode(raw)
				if err != nil {
					return
				}
				out, err := handler(req).Encode()
				if err != nil {
					return
				}
				dnswire.WriteFramed(conn, out)
			}()
		}
	}()
}

func TestDelegatorDeliversReply(t *testing.T) {
	upstream := startUDPUpstream(t, func(req *dnswire.Message) *dnswire.Message {
		return noErrorReply(req, aRecord(req.Questions[0].Name, "192.0.2.1"))
	}, nil)

	d := NewDelegator([]netip.AddrPort{upstream}, testLogger(), testMetrics())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out := make(chan *dnswire.Message, 1)
	require.NoError(t, d.Delegate(ctx, testRequest(t, "example.com"), out))

	select {
	case msg := <-out:
		require.Equal(t, dnswire.RCodeNoError, msg.Header.RCode)
		require.Len(t, msg.Answers, 1)
		require.Equal(t, dnswire.RDataA{Addr: "192.0.2.1"}, msg.Answers[0].Data)
	case <-ctx.Done():
		t.Fatal("no delegate response")
	}
}

func TestDelegatorFansOutToAllUpstreams(t *testing.T) {
	mk := func(addr string) netip.AddrPort {
		return startUDPUpstream(t, func(req *dnswire.Message) *dnswire.Message {
			return noErrorReply(req, aRecord(req.Questions[0].Name, addr))
		}, nil)
	}
	upstreams := []netip.AddrPort{mk("192.0.2.1"), mk("192.0.2.2")}

	d := NewDelegator(upstreams, testLogger(), testMetrics())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out := make(chan *dnswire.Message, 2)
	require.NoError(t, d.Delegate(ctx, testRequest(t, "example.com"), out))

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case msg := <-out:
			addr := msg.Answers[0].Data.(dnswire.RDataA).Addr
			got[addr] = true
		case <-ctx.Done():
			t.Fatal("missing delegate responses")
		}
	}
	require.True(t, got["192.0.2.1"])
	require.True(t, got["192.0.2.2"])
}

func TestDelegatorEscalatesToTCPOnTruncation(t *testing.T) {
	// The UDP side only ever answers with the truncation bit set; the
	// real answer is served over TCP on the same port.
	upstream := startUDPUpstream(t, func(req *dnswire.Message) *dnswire.Message {
		resp := &dnswire.Message{
			Header: dnswire.Header{
				ID:        req.Header.ID,
				Response:  true,
				Truncated: true,
				RCode:     dnswire.RCodeNoError,
			},
		}
		if err := resp.FixMetadata(); err != nil {
			panic(err)
		}
		return resp
	}, nil)
	startTCPUpstream(t, upstream, func(req *dnswire.Message) *dnswire.Message {
		return noErrorReply(req, aRecord(req.Questions[0].Name, "198.51.100.7"))
	})

	d := NewDelegator([]netip.AddrPort{upstream}, testLogger(), testMetrics())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	out := make(chan *dnswire.Message, 1)
	require.NoError(t, d.Delegate(ctx, testRequest(t, "example.com"), out))

	select {
	case msg := <-out:
		require.False(t, msg.Header.Truncated)
		require.Len(t, msg.Answers, 1)
		require.Equal(t, dnswire.RDataA{Addr: "198.51.100.7"}, msg.Answers[0].Data)
	case <-ctx.Done():
		t.Fatal("no delegate response after TCP escalation")
	}
}

func TestDelegatorDropsUnparseableReply(t *testing.T) {
	upstream := startUDPUpstream(t, nil, []byte{0x01, 0x02, 0x03})

	d := NewDelegator([]netip.AddrPort{upstream}, testLogger(), testMetrics())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := make(chan *dnswire.Message, 1)
	require.NoError(t, d.Delegate(ctx, testRequest(t, "example.com"), out))

	select {
	case <-out:
		t.Fatal("unparseable reply must be dropped")
	case <-time.After(250 * time.Millisecond):
	}
}

func TestDelegatorSourceCheck(t *testing.T) {
	d := NewDelegator([]netip.AddrPort{
		netip.MustParseAddrPort("192.0.2.53:53"),
	}, testLogger(), testMetrics())

	require.True(t, d.isUpstream(netip.MustParseAddrPort("192.0.2.53:53")))
	// IPv4-mapped form of the same address still matches.
	require.True(t, d.isUpstream(netip.MustParseAddrPort("[::ffff:192.0.2.53]:53")))
	require.False(t, d.isUpstream(netip.MustParseAddrPort("192.0.2.54:53")))
	require.False(t, d.isUpstream(netip.MustParseAddrPort("192.0.2.53:5353")))
}
