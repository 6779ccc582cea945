package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tokend/audit"
	"tokend/config"
	"tokend/core"
	"tokend/core/events"
	"tokend/native/recovery"
	"tokend/observability/logging"
	oteltrace "tokend/observability/otel"
	"tokend/rpc"
	"tokend/storage"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("TOKEND_ENV"))

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.SetupWithOptions("tokend", env, logging.Options{
		File:      cfg.LogFile,
		MaxSizeMB: cfg.LogMaxSizeMB,
	})
	if err := cfg.Validate(); err != nil {
		logger.Error("Invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := oteltrace.Init(ctx, oteltrace.Config{
		ServiceName: "tokend",
		Environment: env,
		Endpoint:    cfg.Telemetry.Endpoint,
		Insecure:    cfg.Telemetry.Insecure,
	})
	if err != nil {
		logger.Error("Failed to initialise tracing", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("Tracing shutdown", slog.Any("error", err))
		}
	}()

	db, err := openDatabase(cfg)
	if err != nil {
		logger.Error("Failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	node, err := core.NewNode(db, core.NodeConfig{
		Owner:         config.Address(cfg.Token.Owner),
		TokenName:     cfg.Token.Name,
		TokenVersion:  "1",
		ChainID:       cfg.ChainID,
		ModuleAddress: config.Address(cfg.Token.ModuleAddress),
		Recovery: recovery.Config{
			Receiver:        config.Address(cfg.Recovery.Receiver),
			LimitBps:        cfg.Recovery.LimitBps,
			TimelockSeconds: cfg.Recovery.TimelockSeconds,
		},
	})
	if err != nil {
		logger.Error("Failed to construct node", slog.Any("error", err))
		os.Exit(1)
	}

	broadcaster := events.NewBroadcaster()
	sinks := []events.Emitter{broadcaster}
	if strings.TrimSpace(cfg.Audit.DSN) != "" {
		store, err := audit.Open(cfg.Audit.DSN, logger)
		if err != nil {
			logger.Error("Failed to open audit store", slog.Any("error", err))
			os.Exit(1)
		}
		sinks = append(sinks, store)
	}
	node.SetEmitter(events.Multi(sinks...))

	supply, err := cfg.GenesisSupply()
	if err != nil {
		logger.Error("Invalid genesis supply", slog.Any("error", err))
		os.Exit(1)
	}
	if supply.Sign() > 0 {
		if err := node.InitGenesis(config.Address(cfg.Token.Treasury), supply); err != nil {
			logger.Error("Genesis mint failed", slog.Any("error", err))
			os.Exit(1)
		}
	}

	rpcServer := rpc.NewServer(node, broadcaster, rpc.ServerConfig{
		AuthToken: cfg.RPCAuthToken,
		JWTSecret: cfg.RPCJWTSecret,
	})
	httpServer := &http.Server{
		Addr:              cfg.RPCAddress,
		Handler:           rpcServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	opsRouter := chi.NewRouter()
	opsRouter.Handle("/metrics", promhttp.Handler())
	opsRouter.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	opsServer := &http.Server{
		Addr:              cfg.MetricsAddress,
		Handler:           opsRouter,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("RPC listening", slog.String("address", cfg.RPCAddress))
		errCh <- httpServer.ListenAndServe()
	}()
	go func() {
		logger.Info("Metrics listening", slog.String("address", cfg.MetricsAddress))
		errCh <- opsServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("Server failure", slog.Any("error", err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpServer.Shutdown(shutdownCtx)
	_ = opsServer.Shutdown(shutdownCtx)
}

func openDatabase(cfg *config.Config) (storage.Database, error) {
	switch cfg.DBBackend {
	case "leveldb":
		return storage.NewLevelDB(cfg.DataDir)
	case "bolt":
		if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
			return nil, err
		}
		return storage.NewBoltDB(filepath.Join(cfg.DataDir, "tokend.db"))
	case "memory":
		return storage.NewMemDB(), nil
	default:
		return nil, fmt.Errorf("unsupported DBBackend %q", cfg.DBBackend)
	}
}
