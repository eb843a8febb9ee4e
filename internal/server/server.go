//
// SPDX-License-Identifier: GPL-3.0-or-later
//

// Package server owns the listening sockets. Each datagram or framed
// TCP message is handed to a fresh [Request], which drives one query
// through the resolution pipeline.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"

	"github.com/polymorfiq/dns-server/internal/dnswire"
	"github.com/polymorfiq/dns-server/internal/metrics"
	"github.com/polymorfiq/dns-server/internal/resolver"
)

// Server runs the UDP and TCP listeners for one listen address.
type Server struct {
	addr           string
	udpTruncateLen int
	processor      *resolver.Processor
	log            *slog.Logger
	metrics        *metrics.Metrics

	udpConn *net.UDPConn
	tcpLn   net.Listener
	wg      sync.WaitGroup
}

// New returns an unstarted server.
func New(addr string, udpTruncateLen int, p *resolver.Processor, log *slog.Logger, m *metrics.Metrics) *Server {
	return &Server{
		addr:           addr,
		udpTruncateLen: udpTruncateLen,
		processor:      p,
		log:            log.With("component", "server.Server"),
		metrics:        m,
	}
}

// Start binds both transports and begins serving. It returns once the
// sockets are bound; serving continues until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	udpAddr, err := net.ResolveUDPAddr("udp", s.addr)
	if err != nil {
		return err
	}
	if s.udpConn, err = net.ListenUDP("udp", udpAddr); err != nil {
		return err
	}
	if s.tcpLn, err = net.Listen("tcp", s.addr); err != nil {
		s.udpConn.Close()
		return err
	}
	s.log.Info("listening", "addr", s.addr)

	go func() {
		<-ctx.Done()
		s.udpConn.Close()
		s.tcpLn.Close()
	}()

	s.wg.Add(2)
	go s.serveUDP(ctx)
	go s.serveTCP(ctx)
	return nil
}

// Wait blocks until both listener loops have exited.
func (s *Server) Wait() {
	s.wg.Wait()
}

// UDPAddr returns the bound UDP address. Only valid after Start.
func (s *Server) UDPAddr() net.Addr {
	return s.udpConn.LocalAddr()
}

// TCPAddr returns the bound TCP address. Only valid after Start.
func (s *Server) TCPAddr() net.Addr {
	return s.tcpLn.Addr()
}

func (s *Server) serveUDP(ctx context.Context) {
	defer s.wg.Done()
	buf := make([]byte, 64*1024)
	for {
		n, client, err := s.udpConn.ReadFromUDPAddrPort(buf)
		if err != nil {
			if ctx.Err() == nil {
				s.log.Error("udp read", "error", err)
			}
			return
		}
		raw := append([]byte(nil), buf[:n]...)
		go func() {
			req := NewRequest("udp", s.udpTruncateLen, s.processor, s.log, s.metrics)
			if out := req.Handle(ctx, raw); out != nil {
				if _, err := s.udpConn.WriteToUDPAddrPort(out, client); err != nil {
					s.log.Warn("udp write", "client", client, "error", err)
				}
			}
		}()
	}
}

func (s *Server) serveTCP(ctx context.Context) {
	defer s.wg.Done()
	for {
		conn, err := s.tcpLn.Accept()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, net.ErrClosed) {
				s.log.Error("tcp accept", "error", err)
			}
			return
		}
		go s.serveTCPConn(ctx, conn)
	}
}

// serveTCPConn reads framed messages off one connection until the peer
// closes it or a transport error occurs. There is no retry at this
// layer.
func (s *Server) serveTCPConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		raw, err := dnswire.ReadFramed(conn)
		if err != nil {
			return
		}
		req := NewRequest("tcp", s.udpTruncateLen, s.processor, s.log, s.metrics)
		out := req.Handle(ctx, raw)
		if out == nil {
			return
		}
		if err := dnswire.WriteFramed(conn, out); err != nil {
			s.log.Warn("tcp write", "client", conn.RemoteAddr(), "error", err)
			return
		}
	}
}
