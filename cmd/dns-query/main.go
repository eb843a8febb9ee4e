//
// SPDX-License-Identifier: GPL-3.0-or-later
//

// Command dns-query sends a single DNS query to a server and prints
// the decoded response. It retries over TCP when the server answers
// with the truncation bit set.
package main

import (
	"fmt"
	"net"
	"os"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/polymorfiq/dns-server/internal/dnswire"
)

type options struct {
	Server  string        `short:"s" long:"server" default:"127.0.0.1:5353" description:"DNS server as host:port"`
	Type    string        `short:"t" long:"type" default:"A" description:"Query type (A, NS, CNAME, MX, TXT, ...)"`
	TCP     bool          `long:"tcp" description:"Query over TCP instead of UDP"`
	Timeout time.Duration `long:"timeout" default:"5s" description:"Overall query timeout"`
	Args    struct {
		Name string `positional-arg-name:"name" required:"yes" description:"Domain name to resolve"`
	} `positional-args:"yes"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var opts options
	if _, err := flags.Parse(&opts); err != nil {
		if flags.WroteHelp(err) {
			return nil
		}
		return err
	}

	qtype, ok := dnswire.ParseType(opts.Type)
	if !ok {
		return fmt.Errorf("unknown query type %q", opts.Type)
	}

	query, err := dnswire.NewQuery(opts.Args.Name, qtype)
	if err != nil {
		return err
	}
	raw, err := query.Encode()
	if err != nil {
		return err
	}

	deadline := time.Now().Add(opts.Timeout)
	var resp *dnswire.Message
	if opts.TCP {
		resp, err = exchangeTCP(opts.Server, raw, deadline)
	} else {
		resp, err = exchangeUDP(opts.Server, raw, deadline)
		if err == nil && resp.Header.Truncated {
			fmt.Fprintln(os.Stderr, ";; truncated, retrying over TCP")
			resp, err = exchangeTCP(opts.Server, raw, deadline)
		}
	}
	if err != nil {
		return err
	}

	printResponse(resp)
	return nil
}

func exchangeUDP(server string, raw []byte, deadline time.Time) (*dnswire.Message, error) {
	conn, err := net.Dial("udp", server)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, err
	}
	if _, err := conn.Write(raw); err != nil {
		return nil, err
	}
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, err
	}
	return dnswire.Decode(buf[:n])
}

func exchangeTCP(server string, raw []byte, deadline time.Time) (*dnswire.Message, error) {
	conn, err := net.Dial("tcp", server)
	if err != nil {
		return nil, err
	}
	defer conn.Close()
	if err := conn.SetDeadline(deadline); err != nil {
		return nil, err
	}
	if err := dnswire.WriteFramed(conn, raw); err != nil {
		return nil, err
	}
	reply, err := dnswire.ReadFramed(conn)
	if err != nil {
		return nil, err
	}
	return dnswire.Decode(reply)
}

func printResponse(resp *dnswire.Message) {
	h := resp.Header
	fmt.Printf(";; id=%d opcode=%s rcode=%s aa=%v tc=%v rd=%v ra=%v\n",
		h.ID, h.OpCode, h.RCode, h.Authoritative, h.Truncated,
		h.RecursionDesired, h.RecursionAvailable)

	for _, q := range resp.Questions {
		fmt.Printf(";; question: %s %s %s\n", q.Name, q.Class, q.Type)
	}
	printSection("answer", resp.Answers)
	printSection("authority", resp.Authority)
	printSection("additional", resp.Additional)
}

func printSection(title string, records []dnswire.Resource) {
	for i := range records {
		r := &records[i]
		fmt.Printf("%s: %s %d %s %s %s\n",
			title, r.Name, r.TTL, r.Class, r.Type, formatRData(r))
	}
}

func formatRData(r *dnswire.Resource) string {
	switch d := r.Data.(type) {
	case dnswire.RDataA:
		return d.Addr
	case dnswire.RDataName:
		return d.Target.String()
	case dnswire.RDataMX:
		return fmt.Sprintf("%d %s", d.Preference, d.Exchange)
	case dnswire.RDataTXT:
		return fmt.Sprintf("%q", d.Texts)
	case dnswire.RDataHINFO:
		return fmt.Sprintf("%q %q", d.CPU, d.OS)
	case dnswire.RDataSOA:
		return fmt.Sprintf("%s %s %d %d %d %d %d",
			d.MName, d.RName, d.Serial, d.Refresh, d.Retry, d.Expire, d.Minimum)
	case dnswire.RDataMINFO:
		return fmt.Sprintf("%s %s", d.RMailbox, d.EMailbox)
	case dnswire.RDataWKS:
		return fmt.Sprintf("%s proto=%d", d.Addr, d.Protocol)
	case dnswire.RDataRaw:
		return fmt.Sprintf("%x", d.Data)
	}
	return "?"
}
