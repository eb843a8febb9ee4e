//
// SPDX-License-Identifier: GPL-3.0-or-later
//

// Package resolver is the per-query resolution pipeline: a processor
// drives each query through cache lookup, parallel delegation to the
// configured foreign name servers, response assembly and cache store.
package resolver

import (
	"context"
	"log/slog"
	"time"

	"github.com/polymorfiq/dns-server/internal/cache"
	"github.com/polymorfiq/dns-server/internal/dnswire"
	"github.com/polymorfiq/dns-server/internal/metrics"
)

// DefaultQueryTimeout bounds how long a processor waits for an
// adoptable delegate response before answering SERVFAIL.
const DefaultQueryTimeout = 5 * time.Second

// Processor runs the per-query state machine. It holds no per-query
// state: one processor is shared by all requests, and each call to
// [Processor.Process] drives one query.
type Processor struct {
	cache     *cache.Cache
	delegator *Delegator
	timeout   time.Duration
	log       *slog.Logger
	metrics   *metrics.Metrics
}

// NewProcessor wires a processor to its collaborators. A timeout of
// zero or less selects [DefaultQueryTimeout].
func NewProcessor(c *cache.Cache, d *Delegator, timeout time.Duration, log *slog.Logger, m *metrics.Metrics) *Processor {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	return &Processor{
		cache:     c,
		delegator: d,
		timeout:   timeout,
		log:       log.With("component", "resolver.Processor"),
		metrics:   m,
	}
}

// Process resolves one request and always returns a reply message.
// startedAt anchors all TTL arithmetic for the query.
func (p *Processor) Process(ctx context.Context, req *dnswire.Message, startedAt time.Time) *dnswire.Message {
	resp := &dnswire.Message{
		Header: dnswire.Header{
			ID:                 req.Header.ID,
			Response:           true,
			OpCode:             req.Header.OpCode,
			RecursionDesired:   req.Header.RecursionDesired,
			RecursionAvailable: true,
			RCode:              dnswire.RCodeUnset,
		},
	}

	if !p.preprocess(req) {
		resp.Header.RCode = dnswire.RCodeNotImplemented
		return p.reply(resp, startedAt)
	}

	if p.answerFromCache(req, resp, startedAt) {
		resp.Header.RCode = dnswire.RCodeNoError
		resp.Questions = append([]dnswire.Question(nil), req.Questions...)
		return p.reply(resp, startedAt)
	}

	p.delegate(ctx, req, resp)
	return p.reply(resp, startedAt)
}

// preprocess rejects queries the resolver does not serve: inverse and
// status queries, unknown question types or classes, zone transfers,
// and requests carrying records of unknown type or class.
func (p *Processor) preprocess(req *dnswire.Message) bool {
	if req.Header.OpCode != dnswire.OpCodeQuery {
		p.log.Debug("refusing opcode", "opcode", req.Header.OpCode)
		return false
	}
	for _, q := range req.Questions {
		if !q.Implemented() {
			p.log.Debug("refusing question", "qtype", q.Type, "qclass", q.Class)
			return false
		}
	}
	for _, section := range [][]dnswire.Resource{req.Answers, req.Authority, req.Additional} {
		for i := range section {
			if !section[i].Implemented() || !section[i].Class.Implemented() {
				p.log.Debug("refusing record", "type", section[i].Type, "class", section[i].Class)
				return false
			}
		}
	}
	return true
}

// answerFromCache accumulates cached answers for every question and
// reports whether each question was answered at least once. Partial
// answers stay in the response for the delegation phase to top up.
func (p *Processor) answerFromCache(req *dnswire.Message, resp *dnswire.Message, startedAt time.Time) bool {
	answered := 0
	for _, q := range req.Questions {
		records := p.cache.Lookup(startedAt, q)
		p.log.Debug("cache lookup", "name", q.Name.Canonical(), "qtype", q.Type, "hits", len(records))
		if len(records) > 0 {
			answered++
			p.metrics.CacheHitsTotal.Inc()
		} else {
			p.metrics.CacheMissesTotal.Inc()
		}
		resp.Answers = append(resp.Answers, records...)
	}
	return answered == len(req.Questions)
}

// delegate fans the request out and folds delegate responses into resp
// until one completes it or the deadline passes, in which case the
// reply is SERVFAIL.
func (p *Processor) delegate(ctx context.Context, req *dnswire.Message, resp *dnswire.Message) {
	dctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	delegates := make(chan *dnswire.Message, 1)
	if err := p.delegator.Delegate(dctx, req, delegates); err != nil {
		p.log.Error("cannot delegate", "error", err)
		resp.Header.RCode = dnswire.RCodeServerFailure
		return
	}

	seen := newSeenSet(resp)
	for resp.Header.RCode == dnswire.RCodeUnset {
		select {
		case msg := <-delegates:
			p.assemble(req, resp, msg, seen)
		case <-dctx.Done():
			p.log.Warn("no adoptable upstream response", "id", req.Header.ID)
			resp.Header.RCode = dnswire.RCodeServerFailure
		}
	}
}

// assemble folds one delegate response into resp. Contributions from
// delegates that themselves failed are discarded whole; within an
// adopted contribution, unimplemented records are rejected and records
// already present in a section are dropped.
func (p *Processor) assemble(req *dnswire.Message, resp *dnswire.Message, delegate *dnswire.Message, seen *seenSet) {
	if delegate.Header.RCode != dnswire.RCodeNoError {
		p.log.Debug("discarding delegate response", "rcode", delegate.Header.RCode)
		return
	}

	resp.Questions = append(resp.Questions, delegate.Questions...)
	resp.Answers = p.merge(resp.Answers, delegate.Answers, seen.answers)
	resp.Authority = p.merge(resp.Authority, delegate.Authority, seen.authority)
	resp.Additional = p.merge(resp.Additional, delegate.Additional, seen.additional)

	if len(resp.Questions) >= len(req.Questions) {
		resp.Header.RCode = dnswire.RCodeNoError
	}
	if err := resp.FixMetadata(); err != nil {
		p.log.Error("cannot fix metadata", "error", err)
	}
}

func (p *Processor) merge(dst, src []dnswire.Resource, seen map[string]bool) []dnswire.Resource {
	for i := range src {
		if !src[i].Implemented() {
			p.log.Debug("rejecting unimplemented record", "type", src[i].Type)
			continue
		}
		key, err := src[i].Key()
		if err != nil {
			p.log.Warn("cannot key record", "error", err)
			continue
		}
		if seen[key] {
			continue
		}
		seen[key] = true
		dst = append(dst, src[i])
	}
	return dst
}

// reply finalizes the response: metadata restamped, every answer stored
// in the cache with the query's start instant as the TTL anchor.
func (p *Processor) reply(resp *dnswire.Message, startedAt time.Time) *dnswire.Message {
	if err := resp.FixMetadata(); err != nil {
		p.log.Error("cannot fix metadata", "error", err)
	}
	for i := range resp.Answers {
		if err := p.cache.Store(startedAt, resp.Answers[i]); err != nil {
			p.log.Warn("cannot cache answer", "error", err)
		}
	}
	p.metrics.ResponsesTotal.WithLabelValues(resp.Header.RCode.String()).Inc()
	return resp
}

// seenSet tracks per-section record identities for deduplication.
type seenSet struct {
	answers    map[string]bool
	authority  map[string]bool
	additional map[string]bool
}

// newSeenSet seeds the answer set with records already accumulated from
// the cache phase so delegates cannot duplicate them.
func newSeenSet(resp *dnswire.Message) *seenSet {
	s := &seenSet{
		answers:    make(map[string]bool),
		authority:  make(map[string]bool),
		additional: make(map[string]bool),
	}
	for i := range resp.Answers {
		if key, err := resp.Answers[i].Key(); err == nil {
			s.answers[key] = true
		}
	}
	return s
}
