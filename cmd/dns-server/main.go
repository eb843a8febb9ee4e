//
// SPDX-License-Identifier: GPL-3.0-or-later
//

// Command dns-server is a recursive DNS resolver. It answers client
// queries over UDP and TCP, delegating unanswered questions to the
// configured foreign name servers and caching the results.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/polymorfiq/dns-server/internal/cache"
	"github.com/polymorfiq/dns-server/internal/config"
	"github.com/polymorfiq/dns-server/internal/metrics"
	"github.com/polymorfiq/dns-server/internal/resolver"
	"github.com/polymorfiq/dns-server/internal/server"
)

type options struct {
	Config   string   `short:"c" long:"config" description:"Path to the YAML configuration file"`
	Listen   string   `short:"l" long:"listen" description:"Listen address for both transports (overrides config)"`
	Upstream []string `short:"u" long:"upstream" description:"Foreign name server as ipv4:port, repeatable (overrides config)"`
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

	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}

	log := newLogger(cfg.LogLevel)
	upstreams, err := cfg.Upstreams()
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	m := metrics.New(prometheus.DefaultRegisterer)
	if cfg.MetricsListen != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			log.Info("metrics exporter listening", "addr", cfg.MetricsListen)
			if err := http.ListenAndServe(cfg.MetricsListen, mux); err != nil {
				log.Error("metrics exporter", "error", err)
			}
		}()
	}

	recordCache := cache.New(cfg.CacheMaxBuckets)
	delegator := resolver.NewDelegator(upstreams, log, m)
	processor := resolver.NewProcessor(recordCache, delegator, cfg.QueryTimeout, log, m)

	srv := server.New(cfg.Listen, cfg.UDPTruncateLength, processor, log, m)
	if err := srv.Start(ctx); err != nil {
		return err
	}
	log.Info("resolver started", "upstreams", cfg.ForeignNameServers)

	<-ctx.Done()
	log.Info("shutting down")
	srv.Wait()
	return nil
}

func loadConfig(opts options) (*config.Config, error) {
	var file *os.File
	if opts.Config != "" {
		var err error
		if file, err = os.Open(opts.Config); err != nil {
			return nil, err
		}
		defer file.Close()
	}

	var cfg *config.Config
	var err error
	if file != nil {
		cfg, err = config.Load(file)
	} else {
		cfg, err = config.Load(nil)
	}
	if err != nil {
		return nil, err
	}

	if opts.Listen != "" {
		cfg.Listen = opts.Listen
	}
	if len(opts.Upstream) > 0 {
		cfg.ForeignNameServers = opts.Upstream
	}
	return cfg, nil
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
