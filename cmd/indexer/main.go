package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/medledger/indexer-go/api"
	"github.com/medledger/indexer-go/chain"
	"github.com/medledger/indexer-go/events"
	"github.com/medledger/indexer-go/internal/config"
	"github.com/medledger/indexer-go/internal/constants"
	"github.com/medledger/indexer-go/internal/logger"
	"github.com/medledger/indexer-go/internal/supervisor"
	"github.com/medledger/indexer-go/notify"
	"github.com/medledger/indexer-go/storage"
)

var (
	// Version information (injected at build time)
	version = "dev"
	commit  = "none"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configFile  = flag.String("config", "", "Path to configuration file (YAML)")
		showVersion = flag.Bool("version", false, "Show version information and exit")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("medledger-indexer version %s (commit %s)\n", version, commit)
		return 0
	}

	// Best effort; the environment may carry the settings directly.
	_ = godotenv.Load()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	log.Info("starting medledger indexer",
		zap.String("version", version),
		zap.String("ws_endpoint", cfg.Chain.WSEndpoint),
		zap.String("contract", cfg.Chain.ContractAddress),
		zap.String("db_path", cfg.Store.Path),
		zap.Int("workers", cfg.Indexer.Workers))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup := supervisor.New(log)

	// Document store
	storeConfig := storage.DefaultConfig(cfg.Store.Path)
	storeConfig.Cache = cfg.Store.CacheMB
	storeConfig.WriteBuffer = cfg.Store.WriteBufferMB
	storeConfig.ReadOnly = cfg.Store.ReadOnly
	store, err := storage.NewPebbleStore(storeConfig)
	if err != nil {
		log.Error("failed to open document store", zap.Error(err))
		return 1
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn("failed to close document store", zap.Error(err))
		}
	}()
	store.SetLogger(log)

	// Read-only chain client
	readClient, err := chain.NewReadClient(ctx, &chain.ReadConfig{
		Endpoint: cfg.Chain.RPCEndpoint,
		Contract: cfg.ContractAddr(),
		Timeout:  cfg.Chain.ReadTimeout,
		Rate:     cfg.Chain.ReadRate,
		Burst:    cfg.Chain.ReadBurst,
		Logger:   log,
	})
	if err != nil {
		log.Error("failed to create chain read client", zap.Error(err))
		return 1
	}
	defer readClient.Close()

	// Metrics registry shared by dispatch and subscription
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	dispatchMetrics := events.NewMetrics(registry, "indexer", "dispatch")
	chainMetrics := chain.NewMetrics(registry, "indexer", "chain")

	// Update bus for downstream consumers
	bus := notify.NewBus(constants.DefaultUpdateBufferSize)
	defer bus.Close()

	// Projection pipeline
	projector := events.NewProjector(store, readClient, bus, log)
	dispatcher, err := events.NewDispatcher(projector, events.DispatcherConfig{
		Workers:   cfg.Indexer.Workers,
		QueueSize: cfg.Indexer.QueueSize,
	}, dispatchMetrics, log)
	if err != nil {
		log.Error("failed to create dispatcher", zap.Error(err))
		return 1
	}
	defer dispatcher.Stop()

	// Persistent log subscription
	manager, err := chain.NewConnectionManager(
		&chain.WSDialer{Endpoint: cfg.Chain.WSEndpoint},
		dispatcher,
		&chain.SubscriptionConfig{
			Contract:         cfg.ContractAddr(),
			ReconnectBackoff: cfg.Indexer.ReconnectBackoff,
		},
		chainMetrics,
		log,
	)
	if err != nil {
		log.Error("failed to create connection manager", zap.Error(err))
		return 1
	}
	go manager.Run(ctx)
	defer manager.Stop()

	// Ops server
	if cfg.Ops.Enabled {
		opsConfig := api.DefaultConfig()
		opsConfig.Host = cfg.Ops.Host
		opsConfig.Port = cfg.Ops.Port
		opsConfig.RateLimitPerSecond = float64(cfg.Ops.RateLimitPerSecond)

		opsServer, err := api.NewServer(opsConfig, log, registry, bus, func() bool {
			return manager.State() == chain.StateSubscribed
		})
		if err != nil {
			log.Error("failed to create ops server", zap.Error(err))
			return 1
		}
		go func() {
			if err := opsServer.Start(); err != nil {
				sup.Fatal(err)
			}
		}()
		defer func() {
			if err := opsServer.Stop(context.Background()); err != nil {
				log.Warn("ops server shutdown failed", zap.Error(err))
			}
		}()
	}

	log.Info("indexer running")

	if err := sup.Wait(ctx); err != nil {
		log.Error("fatal error, shutting down", zap.Error(err))
		return 1
	}

	log.Info("shutting down")
	return 0
}
