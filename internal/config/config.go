//
// SPDX-License-Identifier: GPL-3.0-or-later
//

// Package config loads the daemon configuration: defaults first, then
// an optional YAML file, then environment variable overrides.
package config

import (
	"fmt"
	"io"
	"net/netip"
	"time"

	"github.com/caarlos0/env/v9"
	"gopkg.in/yaml.v3"
)

// Config is the daemon configuration.
type Config struct {
	// Listen is the host:port both transports bind.
	Listen string `yaml:"listen" env:"DNSD_LISTEN"`

	// UDPTruncateLength is the largest UDP reply in octets; anything
	// bigger is answered with an empty truncated message.
	UDPTruncateLength int `yaml:"udp_truncate_length" env:"DNSD_UDP_TRUNCATE_LENGTH"`

	// ForeignNameServers are the upstream resolvers queried in
	// parallel, as ipv4:port strings.
	ForeignNameServers []string `yaml:"foreign_name_servers" env:"DNSD_FOREIGN_NAME_SERVERS" envSeparator:","`

	// QueryTimeout bounds how long a query may wait for upstreams
	// before it is answered SERVFAIL.
	QueryTimeout time.Duration `yaml:"query_timeout" env:"DNSD_QUERY_TIMEOUT"`

	// CacheMaxBuckets bounds the number of distinct (class, type, name)
	// keys the record cache holds.
	CacheMaxBuckets int `yaml:"cache_max_buckets" env:"DNSD_CACHE_MAX_BUCKETS"`

	// MetricsListen is the host:port of the prometheus exporter;
	// empty disables it.
	MetricsListen string `yaml:"metrics_listen" env:"DNSD_METRICS_LISTEN"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" env:"DNSD_LOG_LEVEL"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen:             ":5353",
		UDPTruncateLength:  512,
		ForeignNameServers: []string{"8.8.8.8:53", "1.1.1.1:53"},
		QueryTimeout:       5 * time.Second,
		CacheMaxBuckets:    4096,
		LogLevel:           "info",
	}
}

// Load reads the YAML configuration from file (which may be nil) on
// top of the defaults and then applies environment overrides.
func Load(file io.Reader) (*Config, error) {
	cfg := Default()
	if file != nil {
		buf, err := io.ReadAll(file)
		if err != nil {
			return nil, fmt.Errorf("reading YAML configuration: %w", err)
		}
		if err := yaml.Unmarshal(buf, cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML configuration: %w", err)
		}
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("reading env vars: %w", err)
	}
	if _, err := cfg.Upstreams(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Upstreams parses ForeignNameServers into address-port pairs.
func (c *Config) Upstreams() ([]netip.AddrPort, error) {
	out := make([]netip.AddrPort, 0, len(c.ForeignNameServers))
	for _, s := range c.ForeignNameServers {
		ap, err := netip.ParseAddrPort(s)
		if err != nil {
			return nil, fmt.Errorf("bad foreign name server %q: %w", s, err)
		}
		if !ap.Addr().Unmap().Is4() {
			return nil, fmt.Errorf("foreign name server %q is not IPv4", s)
		}
		out = append(out, ap)
	}
	return out, nil
}
