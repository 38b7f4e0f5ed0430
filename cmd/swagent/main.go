package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/linkfabric/swagent/internal/config"
	redislog "github.com/linkfabric/swagent/pkg/adapters/changelog/redis"
	halmemory "github.com/linkfabric/swagent/pkg/adapters/hal/memory"
	"github.com/linkfabric/swagent/pkg/adapters/metrics/prometheus"
	redispub "github.com/linkfabric/swagent/pkg/adapters/publisher/redis"
	"github.com/linkfabric/swagent/pkg/api/http"
	"github.com/linkfabric/swagent/pkg/orch"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Version is set by build flags
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("starting switch agent",
		zap.String("version", Version),
		zap.String("build_time", BuildTime))

	// Initialize Redis client
	redisClient := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})

	// Test Redis connection
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect to Redis", zap.Error(err))
	}
	logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))

	// Initialize adapters
	hal := halmemory.New()
	metricsCollector := prometheus.NewCollector()
	publisher := redispub.New(redisClient, logger)

	refs := orch.NewRefMap(func(table, name string, handle orch.Handle) {
		if err := hal.Remove(ctx, table, handle); err != nil {
			logger.Error("failed to remove object",
				zap.String("table", table),
				zap.String("name", name),
				zap.Error(err))
		}
	}, logger)

	var recorder orch.Recorder
	if cfg.RecordFile != "" {
		recordLogger, err := newRecordLogger(cfg.RecordFile)
		if err != nil {
			logger.Fatal("failed to open record file", zap.Error(err))
		}
		defer recordLogger.Sync()
		recorder = orch.NewZapRecorder(recordLogger)
	}

	// Ring buffer serializing the buffered tables
	ring := orch.NewRingBuffer(cfg.Ring.Size)
	go ring.Run(ctx)

	o := orch.NewOrch(orch.Options{
		Publisher: publisher,
		Recorder:  recorder,
		Metrics:   metricsCollector,
		Logger:    logger,
	})

	refSpecs, err := cfg.RefFieldSpecs()
	if err != nil {
		logger.Fatal("failed to parse reference fields", zap.Error(err))
	}

	tables, err := cfg.ParseTables()
	if err != nil {
		logger.Fatal("failed to parse tables", zap.Error(err))
	}

	sources := make([]*redislog.StreamSource, 0, len(tables))
	for _, spec := range tables {
		source, err := redislog.NewStreamSource(ctx, redisClient, spec.Name, cfg.ConsumerGroup, logger)
		if err != nil {
			logger.Fatal("failed to create change source",
				zap.String("table", spec.Name),
				zap.Error(err))
		}
		sources = append(sources, source)

		handler := orch.NewApplyHandler(applyConfig(spec.Name, refSpecs), hal, refs, logger)
		if _, err := o.RegisterConsumer(source, spec.Priority, ring, cfg.IsRingTable(spec.Name), handler); err != nil {
			logger.Fatal("failed to register consumer",
				zap.String("table", spec.Name),
				zap.Error(err))
		}
	}

	// Warm restart: replay durable state before serving events
	if cfg.WarmRestart {
		provider := redislog.NewSnapshotProvider(redisClient, logger)
		loaded, err := o.Bake(ctx, provider)
		if err != nil {
			logger.Fatal("failed to bake existing state", zap.Error(err))
		}
		logger.Info("warm restart bake complete", zap.Bool("loaded", loaded))
	}

	dispatcher := orch.NewDispatcher([]*orch.Orch{o}, ring, metricsCollector, cfg.Timeouts.DrainInterval, logger)

	// Initialize diagnostics server
	httpServer := http.NewServer(&http.Config{
		Port:   cfg.HTTPPort,
		Orchs:  []*orch.Orch{o},
		Refs:   refs,
		Logger: logger,
	})

	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	dispatcherDone := make(chan error, 1)
	go func() {
		dispatcherDone <- dispatcher.Run(ctx)
	}()

	logger.Info("switch agent started",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("tables", len(tables)),
		zap.Int("ring_size", cfg.Ring.Size))

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")

	// Graceful shutdown
	cancel()
	<-dispatcherDone

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Timeouts.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	for _, source := range sources {
		source.Close()
	}

	if err := o.FlushResponses(shutdownCtx); err != nil {
		logger.Error("response flush error", zap.Error(err))
	}

	if err := redisClient.Close(); err != nil {
		logger.Error("Redis close error", zap.Error(err))
	}

	logger.Info("switch agent shut down complete")
}

// applyConfig builds the handler configuration for one table from the
// parsed reference-field specs.
func applyConfig(table string, specs []config.RefFieldSpec) orch.ApplyConfig {
	cfg := orch.ApplyConfig{
		Table:      table,
		RefFields:  make(map[string]string),
		ListFields: make(map[string]bool),
	}
	for _, s := range specs {
		if s.Table != table {
			continue
		}
		cfg.RefFields[s.Field] = s.RefTable
		if s.List {
			cfg.ListFields[s.Field] = true
		}
	}
	return cfg
}

// initLogger initializes the logger based on log level
func initLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	return logger
}

// newRecordLogger builds the file-backed logger used for task recording.
func newRecordLogger(path string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	config.OutputPaths = []string{path}
	config.ErrorOutputPaths = []string{path}
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build record logger: %w", err)
	}

	return logger, nil
}
