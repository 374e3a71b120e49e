// Package main implements kinect-logger, the capture server. It acquires
// every enabled modality from the device, encodes it and streams framed
// messages to one consumer over the configured output.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/usc-rasc/kinect-bridge2/capture"
	"github.com/usc-rasc/kinect-bridge2/config"
	"github.com/usc-rasc/kinect-bridge2/device"
	"github.com/usc-rasc/kinect-bridge2/device/sim"
	"github.com/usc-rasc/kinect-bridge2/health"
	"github.com/usc-rasc/kinect-bridge2/metric"
	"github.com/usc-rasc/kinect-bridge2/natsclient"
	outfile "github.com/usc-rasc/kinect-bridge2/output/file"
	outnats "github.com/usc-rasc/kinect-bridge2/output/nats"
	outtcp "github.com/usc-rasc/kinect-bridge2/output/tcp"
	outws "github.com/usc-rasc/kinect-bridge2/output/websocket"
	"github.com/usc-rasc/kinect-bridge2/pipeline"
	"github.com/usc-rasc/kinect-bridge2/protocol"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "kinect-logger"
)

const healthInterval = time.Second

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	switch {
	case cliCfg.ShowVersion:
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	case cliCfg.ShowHelp:
		printDetailedHelp()
		return nil
	case cliCfg.PrintSchema:
		_, err := os.Stdout.Write(config.Schema())
		return err
	}

	cfg, err := loadConfig(cliCfg)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	if cliCfg.Validate {
		logger.Info("Configuration is valid", "config_path", cliCfg.ConfigPath)
		return nil
	}

	logger.Info("Starting kinect-logger",
		"build_time", BuildTime,
		"config_path", cliCfg.ConfigPath,
		"output", cfg.Output.Type)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := metric.NewMetricsRegistry()
	monitor := health.NewMonitor()

	if cfg.Metrics.Enabled {
		server := metric.NewServer(cfg.Metrics.Address, cfg.Metrics.Path, registry,
			metric.WithHealthHandler(monitor.Handler(appName)),
			metric.WithLogger(logger))
		if err := server.Start(); err != nil {
			return fmt.Errorf("start metrics server: %w", err)
		}
		defer func() {
			if err := server.Stop(5 * time.Second); err != nil {
				logger.Warn("Metrics server shutdown failed", "error", err)
			}
		}()
	}

	dev, err := openDevice(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := dev.Close(); err != nil {
			logger.Warn("Device close failed", "error", err)
		}
	}()

	session := uuid.NewString()
	sink, cleanup, err := openSink(ctx, cfg, registry, logger, session)
	if err != nil {
		return err
	}
	defer cleanup()

	p, err := capture.NewPipeline(cfg.Pipeline, cfg.Capture, dev, sink,
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(registry),
		pipeline.WithSession(session))
	if err != nil {
		_ = sink.Close()
		return fmt.Errorf("create pipeline: %w", err)
	}

	if err := p.Start(ctx); err != nil {
		_ = sink.Close()
		return fmt.Errorf("start pipeline: %w", err)
	}
	logger.Info("kinect-logger started", "session", p.Session())

	reportHealth(ctx, monitor, p)
	logger.Info("Received shutdown signal")

	if err := p.Stop(cliCfg.ShutdownTimeout); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	monitor.Update("pipeline", p.Health())

	st := p.Stats()
	logger.Info("kinect-logger shutdown complete",
		"session", st.Session,
		"messages", st.Messages,
		"mbytes", st.MBytes(),
		"dropped", st.Dropped)
	return nil
}

// loadConfig layers the config file (if any) over defaults, then applies
// command-line overrides and validates the result.
func loadConfig(cliCfg *CLIConfig) (*config.Config, error) {
	loader := config.NewLoader()
	if cliCfg.ConfigPath != "" {
		loader.AddLayer(cliCfg.ConfigPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	if cliCfg.LogLevel != "" {
		cfg.Log.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Log.Format = cliCfg.LogFormat
	}
	if cliCfg.Output != "" {
		cfg.Output.Type = cliCfg.Output
	}
	if cliCfg.Address != "" {
		cfg.Output.TCP.Address = cliCfg.Address
		cfg.Output.WebSocket.Address = cliCfg.Address
	}
	if cliCfg.File != "" {
		cfg.Output.File.Path = cliCfg.File
	}
	switch cliCfg.MetricsAddress {
	case "":
	case "off":
		cfg.Metrics.Enabled = false
	default:
		cfg.Metrics.Address = cliCfg.MetricsAddress
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func openDevice(ctx context.Context, cfg *config.Config, logger *slog.Logger) (device.Device, error) {
	dev, err := sim.New(cfg.Device.Sim)
	if err != nil {
		return nil, fmt.Errorf("create %s device: %w", cfg.Device.Driver, err)
	}
	logger.Info("Opening device", "driver", cfg.Device.Driver)
	if err := device.OpenWithRetry(ctx, dev, cfg.Device.RetryDelay, logger); err != nil {
		return nil, fmt.Errorf("open device: %w", err)
	}
	return dev, nil
}

// openSink builds the configured output. The pipeline closes the sink on
// Stop; cleanup releases what the sink depends on.
func openSink(
	ctx context.Context,
	cfg *config.Config,
	registry *metric.MetricsRegistry,
	logger *slog.Logger,
	session string,
) (protocol.Sink, func(), error) {
	noop := func() {}
	m := registry.CoreMetrics()

	switch cfg.Output.Type {
	case config.TransportFile:
		out, err := outfile.New(cfg.Output.File, outfile.WithLogger(logger), outfile.WithMetrics(m))
		if err != nil {
			return nil, noop, fmt.Errorf("open file output: %w", err)
		}
		return out, noop, nil

	case config.TransportTCP:
		out, err := outtcp.New(cfg.Output.TCP, outtcp.WithLogger(logger), outtcp.WithMetrics(m))
		if err != nil {
			return nil, noop, fmt.Errorf("create tcp output: %w", err)
		}
		if err := out.Listen(ctx); err != nil {
			return nil, noop, fmt.Errorf("listen tcp output: %w", err)
		}
		return out, noop, nil

	case config.TransportWebSocket:
		out, err := outws.New(cfg.Output.WebSocket, outws.WithLogger(logger), outws.WithMetrics(m))
		if err != nil {
			return nil, noop, fmt.Errorf("create websocket output: %w", err)
		}
		if err := out.Start(ctx); err != nil {
			return nil, noop, fmt.Errorf("start websocket output: %w", err)
		}
		return out, noop, nil

	case config.TransportNATS:
		client, err := connectNATS(ctx, cfg, registry, logger)
		if err != nil {
			return nil, noop, err
		}
		cleanup := func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := client.Close(closeCtx); err != nil {
				logger.Warn("NATS close failed", "error", err)
			}
		}
		out, err := outnats.New(client, cfg.Output.NATS,
			outnats.WithLogger(logger),
			outnats.WithMetrics(m),
			outnats.WithSessionID(session))
		if err != nil {
			cleanup()
			return nil, noop, fmt.Errorf("create nats output: %w", err)
		}
		return out, cleanup, nil
	}
	return nil, noop, fmt.Errorf("unknown output type %q", cfg.Output.Type)
}

func connectNATS(
	ctx context.Context,
	cfg *config.Config,
	registry *metric.MetricsRegistry,
	logger *slog.Logger,
) (*natsclient.Client, error) {
	opts := []natsclient.ClientOption{
		natsclient.WithName(cfg.NATS.Name),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithReconnectWait(cfg.NATS.ReconnectWait),
		natsclient.WithLogger(logger),
		natsclient.WithMetrics(registry, 30*time.Second),
	}
	if cfg.NATS.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.NATS.Username, cfg.NATS.Password))
	}
	if cfg.NATS.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.NATS.Token))
	}

	client, err := natsclient.NewClient(cfg.NATS.URL(), opts...)
	if err != nil {
		return nil, fmt.Errorf("create NATS client: %w", err)
	}
	logger.Info("Connecting to NATS", "urls", cfg.NATS.URLs)
	if err := client.Connect(ctx); err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return client, nil
}

// reportHealth publishes the pipeline status to the monitor until ctx ends.
func reportHealth(ctx context.Context, monitor *health.Monitor, p *pipeline.Pipeline) {
	ticker := time.NewTicker(healthInterval)
	defer ticker.Stop()

	monitor.Update("pipeline", p.Health())
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			monitor.Update("pipeline", p.Health())
		}
	}
}
