// voyagent runs the travel-planning agent system: registry, coordinator,
// extractor, presenter, weather, and the chat bridge, all on the in-process
// broker, with the Prometheus endpoint and the bridge's chat API exposed
// over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/voyagent/voyagent/agent"
	"github.com/voyagent/voyagent/config"
	"github.com/voyagent/voyagent/internal/telemetry"
	"github.com/voyagent/voyagent/kb"
	"github.com/voyagent/voyagent/llm"
	"github.com/voyagent/voyagent/metrics"
	"github.com/voyagent/voyagent/transport"
)

func main() {
	fs := flag.NewFlagSet("voyagent", flag.ExitOnError)
	configPath := fs.String("config", "voyagent.yaml", "path to the configuration file")
	_ = fs.Parse(os.Args[1:])

	cfg, err := config.NewLoader().WithConfigPath(*configPath).Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("voyagent exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	providers, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown", zap.Error(err))
		}
	}()

	store, err := kb.Open(cfg.KB, logger)
	if err != nil {
		return fmt.Errorf("open knowledge base: %w", err)
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer func() { _ = rdb.Close() }()
	}

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)
	broker := transport.NewBroker(256, logger)

	var generator llm.Generator
	client := llm.NewOpenAIClient(cfg.LLM, logger)
	if client.Enabled() {
		generator = client
	} else {
		logger.Info("no model configured, using deterministic replies")
	}

	opts := agent.Options{
		Broker:    broker,
		Collector: collector,
		Events:    store,
		Pipeline:  cfg.Pipeline,
		Logger:    logger,
	}

	dcfg := cfg.Discovery
	if dcfg.RegistryAddr == "" {
		dcfg.RegistryAddr = cfg.Agents.Registry
	}

	registryAgent := agent.NewRegistry(cfg.Agents.Registry, opts)
	coordinator := agent.NewCoordinator(cfg.Agents.Coordinator, store, rdb, dcfg, opts)
	extractor := agent.NewExtractor(cfg.Agents.Extractor, generator, opts)
	presenter := agent.NewPresenter(cfg.Agents.Presenter, cfg.Agents.Coordinator, cfg.Agents.Extractor, generator, opts)
	weather := agent.NewWeather(cfg.Agents.Weather, nil, opts)
	bridge := agent.NewBridge(cfg.Agents.Bridge, cfg.Agents.Presenter, opts)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return registryAgent.Runtime().Run(gctx) })
	g.Go(func() error { return coordinator.Runtime().Run(gctx) })
	g.Go(func() error { return extractor.Runtime().Run(gctx) })
	g.Go(func() error { return presenter.Runtime().Run(gctx) })
	g.Go(func() error { return weather.Runtime().Run(gctx) })

	// Providers introduce themselves once the loops are up.
	extractor.Announce(gctx, cfg.Agents.Registry)
	weather.Announce(gctx, cfg.Agents.Registry)

	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		mux.Handle("/chat", bridge.ChatHandler())
		srv := &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		g.Go(func() error {
			logger.Info("http endpoint up", zap.String("addr", cfg.Metrics.Addr))
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	logger.Info("voyagent running",
		zap.String("bridge", cfg.Agents.Bridge),
		zap.String("kb_driver", cfg.KB.Driver))
	return g.Wait()
}

func initLogger(cfg config.LogConfig) *zap.Logger {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var encoderConfig zapcore.EncoderConfig
	if cfg.Format == "console" {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         "json",
		EncoderConfig:    encoderConfig,
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	if cfg.Format == "console" {
		zapConfig.Encoding = "console"
	}

	logger, err := zapConfig.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}
