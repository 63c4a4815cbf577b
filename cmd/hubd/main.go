// Package main is the entry point for the Krypin hub daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jacobsoderblom/krypin/internal/automation"
	"github.com/jacobsoderblom/krypin/internal/bus"
	"github.com/jacobsoderblom/krypin/internal/config"
	"github.com/jacobsoderblom/krypin/internal/hub"
	"github.com/jacobsoderblom/krypin/internal/metrics"
	"github.com/jacobsoderblom/krypin/internal/storage"
	"github.com/jacobsoderblom/krypin/internal/web"
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to config file")
	mockAdapter := flag.Bool("mock-adapter", false, "run an in-process mock switch adapter")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if flag.NArg() > 0 {
		switch flag.Arg(0) {
		case "serve":
			runServe(logger, *configPath, *mockAdapter)
		case "version":
			fmt.Println("hubd " + version)
		default:
			fmt.Fprintf(os.Stderr, "unknown command: %s\n", flag.Arg(0))
			os.Exit(1)
		}
		return
	}

	fmt.Println("hubd - Krypin smart home hub")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve    Start the hub")
	fmt.Println("  version  Show version")
	fmt.Println()
	fmt.Println("Flags:")
	flag.PrintDefaults()
}

func runServe(logger *slog.Logger, configPath string, mockAdapter bool) {
	cfgPath, err := config.FindConfig(configPath)
	if err != nil {
		logger.Error("config", "error", err)
		os.Exit(1)
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Error("failed to load config", "path", cfgPath, "error", err)
		os.Exit(1)
	}
	if cfg.LogLevel != "" {
		logger, err = config.NewLogger(cfg.LogLevel)
		if err != nil {
			logger = slog.Default()
			logger.Error("log level", "error", err)
			os.Exit(1)
		}
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	var hubBus bus.Bus
	switch cfg.Bus {
	case config.BusMQTT:
		mqttBus, err := bus.ConnectMQTT(ctx, bus.MQTTConfig{
			Host:     cfg.MQTT.Host,
			Port:     cfg.MQTT.Port,
			ClientID: cfg.MQTT.ClientID,
		}, m, logger)
		if err != nil {
			logger.Error("mqtt bus", "error", err)
			os.Exit(1)
		}
		hubBus = mqttBus
	default:
		hubBus = bus.NewInMemory(m)
	}
	defer hubBus.Close()

	var store storage.Storage
	switch cfg.Storage.Kind {
	case config.StoragePostgres:
		pg, err := storage.NewPostgres(ctx, cfg.Storage.URL)
		if err != nil {
			logger.Error("postgres storage", "error", err)
			os.Exit(1)
		}
		store = pg
	default:
		store = storage.NewMemory()
	}
	defer store.Close()

	engine := automation.NewEngine(automation.NewMemoryStore(), store, hubBus, m, logger)
	h := hub.New(hubBus, store, engine, m, logger)

	h.StartHeartbeat(ctx, cfg.HeartbeatInterval())
	if err := h.StartSubscribers(ctx); err != nil {
		logger.Error("subscribers", "error", err)
		os.Exit(1)
	}

	if mockAdapter {
		if err := startMockAdapter(ctx, hubBus, logger); err != nil {
			logger.Error("mock adapter", "error", err)
			os.Exit(1)
		}
	}

	server := web.NewServer(cfg.Bind, h, web.NewAuth(cfg.AuthTokens), logger)
	logger.Info("hub starting",
		"bind", cfg.Bind, "bus", cfg.Bus, "storage", cfg.Storage.Kind, "version", version)
	if err := server.ListenAndServe(ctx); err != nil {
		logger.Error("http server", "error", err)
		os.Exit(1)
	}
	logger.Info("hub stopped")
}
