package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"margind/config"
	"margind/gateway"
	"margind/native/margin"
	"margind/native/marginpool"
	"margind/native/oracle"
	"margind/observability/logging"
	telemetry "margind/observability/otel"
	"margind/storage"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./margind.toml", "path to daemon configuration")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logging.Setup("margind", "").Error("load config", "error", err)
		os.Exit(1)
	}

	logger := logging.SetupWithRotation("margind", cfg.Environment, logging.Rotation{
		File:       cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	if cfg.Telemetry.Endpoint != "" {
		shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
			ServiceName: "margind",
			Environment: cfg.Environment,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
			Metrics:     true,
			Traces:      true,
		})
		if err != nil {
			logger.Error("initialise telemetry", "error", err)
			os.Exit(1)
		}
		defer func() {
			_ = shutdownTelemetry(context.Background())
		}()
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("create data directory", "error", err)
		os.Exit(1)
	}
	store, err := storage.NewStore(filepath.Join(cfg.DataDir, "margind.db"), nil)
	if err != nil {
		logger.Error("open store", "error", err)
		os.Exit(1)
	}
	defer func() {
		_ = store.Close()
	}()

	registry, err := loadRegistry(cfg.RegistryFile)
	if err != nil {
		logger.Error("load registry", "error", err)
		os.Exit(1)
	}
	if err := seedPools(store, registry); err != nil {
		logger.Error("seed pools", "error", err)
		os.Exit(1)
	}

	invoker := margin.NewInvoker(store, registry, logger)
	for _, adapter := range registry.Adapters {
		invoker.RegisterAdapter(adapter)
		invoker.AddKnownExternalProgram(adapter.AdapterProgram)
	}

	server := gateway.NewServer(gateway.Options{
		Store:             store,
		Registry:          registry,
		Invoker:           invoker,
		Logger:            logger,
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		Burst:             cfg.RateLimit.Burst,
	})

	httpServer := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      server.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("listening", "address", cfg.ListenAddress, "airspace", registry.Airspace.Short())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("listen and serve", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("graceful shutdown failed", "error", err)
	}
}

func loadRegistry(path string) (*config.Registry, error) {
	if path == "" {
		return config.ParseRegistry(nil)
	}
	return config.LoadRegistry(path)
}

// seedPools creates any registry pools that do not exist yet. Existing pools
// keep their accounting state; only missing pools are initialized.
func seedPools(store *storage.Store, registry *config.Registry) error {
	now := time.Now().Unix()
	for _, seed := range registry.Pools {
		_, err := store.GetPool(seed.TokenMint)
		if err == nil {
			continue
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		var orc oracle.TokenPriceOracle
		if token, ok := registry.TokenConfig(registry.Airspace, seed.TokenMint); ok {
			orc = token.Admin.Oracle
		}
		pool := marginpool.NewPool(registry.Airspace, seed.TokenMint, seed.FeeDestination, seed.Config, orc, now)
		if err := store.PutPool(pool); err != nil {
			return err
		}
	}
	return nil
}
