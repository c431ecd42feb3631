// chainsignald is the real-time intelligence distribution broker: it
// polls the configured source feeds, accepts publisher submissions,
// and fans accepted alerts out to live subscriber streams with
// per-delivery charging.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	_ "go.uber.org/automaxprocs"

	"github.com/chainsignal/chainsignal/internal/alert"
	"github.com/chainsignal/chainsignal/internal/api"
	"github.com/chainsignal/chainsignal/internal/busmirror"
	"github.com/chainsignal/chainsignal/internal/chain"
	"github.com/chainsignal/chainsignal/internal/config"
	"github.com/chainsignal/chainsignal/internal/fabric"
	"github.com/chainsignal/chainsignal/internal/ingest"
	"github.com/chainsignal/chainsignal/internal/monitoring"
	"github.com/chainsignal/chainsignal/internal/registry"
	"github.com/chainsignal/chainsignal/internal/sources"
	"github.com/chainsignal/chainsignal/internal/store"
)

const shutdownGrace = 10 * time.Second

func main() {
	debug := flag.Bool("debug", false, "enable debug logging (overrides LOG_LEVEL)")
	flag.Parse()

	cfg, err := config.Load(nil)
	if err != nil {
		os.Stderr.WriteString("failed to load configuration: " + err.Error() + "\n")
		os.Exit(1)
	}
	if *debug {
		cfg.LogLevel = "debug"
	}

	logger := monitoring.NewLogger(monitoring.LoggerConfig{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})
	logger.Info().Int("gomaxprocs", runtime.GOMAXPROCS(0)).Msg("Runtime configured")
	cfg.LogConfig(logger)

	price, err := cfg.Price()
	if err != nil {
		logger.Fatal().Err(err).Msg("Invalid price configuration")
	}

	// External authoritative balance state is optional; without it
	// subscribers run on local balances only.
	var state chain.StateReader
	if cfg.ChainStateURL != "" {
		state = chain.NewHTTPReader(cfg.ChainStateURL, cfg.ChainStateTimeout)
		logger.Info().Str("url", cfg.ChainStateURL).Msg("Chain state mirror enabled")
	}

	st := store.New(store.Options{
		MaxAlerts: cfg.StoreMaxAlerts,
		HashTTL:   cfg.DedupeHashTTL,
		Logger:    logger,
	})
	subscribers := registry.NewSubscribers(state, logger)
	publishers := registry.NewPublishers(logger)
	fab := fabric.New(subscribers, fabric.Options{
		Price:                price,
		BufferFrames:         cfg.StreamBufferFrames,
		BackpressureInterval: cfg.BackpressureInterval,
		MaxStreams:           cfg.MaxStreams,
		Logger:               logger,
	})

	var mirror *busmirror.Mirror
	if cfg.NATSURL != "" {
		mirror, err = busmirror.Connect(cfg.NATSURL, logger)
		if err != nil {
			logger.Warn().Err(err).Msg("Bus mirror unavailable, continuing without it")
			mirror = nil
		}
	}

	orchestrator := ingest.New(adapterEntries(cfg), st, fab, mirror, logger)
	ingress := ingest.NewIngress(publishers, st, fab, mirror, logger)

	ctx, cancel := context.WithCancel(context.Background())
	orchestrator.Start(ctx)

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.New(cfg, st, subscribers, publishers, fab, ingress, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info().Str("addr", cfg.Addr).Msg("Broker listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh
	logger.Info().Msg("Shutting down")

	cancel()
	shutdownCtx, release := context.WithTimeout(context.Background(), shutdownGrace)
	defer release()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("HTTP shutdown incomplete")
	}
	orchestrator.Wait()
	fab.Shutdown()
	mirror.Close()
	logger.Info().Msg("Shutdown complete")
}

// adapterEntries builds the adapter table from config. CS_SOURCES
// narrows the enabled set; empty enables everything.
func adapterEntries(cfg *config.Config) []ingest.Entry {
	fetcher := sources.NewFetcher(cfg.FetchTimeout, cfg.UserAgent)

	enabled := func(key string) bool {
		if strings.TrimSpace(cfg.SourcesConfig) == "" {
			return true
		}
		for _, want := range strings.Split(cfg.SourcesConfig, ",") {
			if strings.TrimSpace(want) == key {
				return true
			}
		}
		return false
	}

	entries := []ingest.Entry{
		{
			Adapter: sources.NewRegulatoryAdapter(fetcher, cfg.RegulatoryFeedURL, cfg.MockSources),
			Cadence: cfg.CadenceRegulatory,
		},
		{
			Adapter: sources.NewNewsAdapter(fetcher, cfg.NewsFeedURL, cfg.MockSources),
			Cadence: cfg.CadenceNews,
		},
		{
			Adapter: sources.NewYieldsAdapter(fetcher, cfg.YieldsFeedURL, sources.DefaultYieldChangeThreshold, cfg.MockSources),
			Cadence: cfg.CadenceYields,
		},
		{
			Adapter: sources.NewBlogAdapter("solana-blog", alert.ChannelSolana, fetcher, cfg.SolanaBlogURL, cfg.MockSources),
			Cadence: cfg.CadenceChainBlogs,
		},
		{
			Adapter: sources.NewBlogAdapter("ethereum-blog", alert.ChannelEthereum, fetcher, cfg.EthereumBlogURL, cfg.MockSources),
			Cadence: cfg.CadenceChainBlogs,
		},
	}
	for i := range entries {
		entries[i].Enabled = enabled(entries[i].Adapter.Key())
	}
	return entries
}
