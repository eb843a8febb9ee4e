//
// SPDX-License-Identifier: GPL-3.0-or-later
//

// Package metrics holds the prometheus instrumentation shared by the
// listeners and the resolution pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles every collector the server updates.
type Metrics struct {
	QueriesTotal          *prometheus.CounterVec
	ResponsesTotal        *prometheus.CounterVec
	QueryDuration         prometheus.Histogram
	CacheHitsTotal        prometheus.Counter
	CacheMissesTotal      prometheus.Counter
	UpstreamRepliesTotal  *prometheus.CounterVec
	UpstreamParseFailures prometheus.Counter
	TruncatedReplies      prometheus.Counter
	ParseFailuresTotal    prometheus.Counter
}

// New registers every collector with reg and returns the bundle.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		QueriesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dnsd_queries_total",
			Help: "Client queries received, by transport.",
		}, []string{"transport"}),
		ResponsesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dnsd_responses_total",
			Help: "Responses sent to clients, by response code.",
		}, []string{"rcode"}),
		QueryDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "dnsd_query_duration_seconds",
			Help:    "Wall time from query receipt to reply.",
			Buckets: prometheus.DefBuckets,
		}),
		CacheHitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "dnsd_cache_hits_total",
			Help: "Questions answered from the record cache.",
		}),
		CacheMissesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "dnsd_cache_misses_total",
			Help: "Questions that had to be delegated upstream.",
		}),
		UpstreamRepliesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "dnsd_upstream_replies_total",
			Help: "Replies received from foreign name servers, by upstream.",
		}, []string{"upstream"}),
		UpstreamParseFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "dnsd_upstream_parse_failures_total",
			Help: "Upstream replies dropped because they did not parse.",
		}),
		TruncatedReplies: factory.NewCounter(prometheus.CounterOpts{
			Name: "dnsd_truncated_replies_total",
			Help: "UDP replies replaced by an empty truncated message.",
		}),
		ParseFailuresTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "dnsd_parse_failures_total",
			Help: "Client datagrams that did not parse as DNS messages.",
		}),
	}
}

// Handler returns the exporter endpoint for the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
