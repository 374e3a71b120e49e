// Package main implements kinect-client, which reads a framed message stream
// from a capture server, a recorded file or a NATS session and reports what
// it decoded.
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

	"github.com/usc-rasc/kinect-bridge2/config"
	infile "github.com/usc-rasc/kinect-bridge2/input/file"
	innats "github.com/usc-rasc/kinect-bridge2/input/nats"
	intcp "github.com/usc-rasc/kinect-bridge2/input/tcp"
	inws "github.com/usc-rasc/kinect-bridge2/input/websocket"
	"github.com/usc-rasc/kinect-bridge2/metric"
	"github.com/usc-rasc/kinect-bridge2/natsclient"
	"github.com/usc-rasc/kinect-bridge2/protocol"
)

// Build information constants
const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "kinect-client"
)

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
	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	cfg, err := loadConfig(cliCfg)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)
	logger.Info("Starting kinect-client", "input", cfg.Input.Type)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := metric.NewMetricsRegistry()
	src, cleanup, err := openSource(ctx, cfg, registry, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	r := newReader(src, logger, readOptions{
		Limit:          cliCfg.Limit,
		StatusInterval: cliCfg.StatusInterval,
		Redial:         cfg.Input.Type == config.TransportTCP || cfg.Input.Type == config.TransportWebSocket,
	})
	runErr := r.run(ctx)

	// A blocked Pull holds the connection, so the run has to end before Close.
	if err := src.Close(); err != nil {
		logger.Warn("Input close failed", "error", err)
	}

	st, invalid := r.Stats()
	elapsed := time.Since(st.Started).Seconds()
	var rate float64
	if elapsed > 0 {
		rate = st.MBytes() / elapsed
	}
	args := []any{"messages", st.Messages, "invalid", invalid}
	for name, n := range st.PerType {
		args = append(args, slog.Int64(name, n))
	}
	logger.Info("Stream finished: "+statusSummary(st.MBytes(), rate), args...)
	return runErr
}

func statusSummary(mbytes, rate float64) string {
	return fmt.Sprintf("Input MBytes: %.2f (%.2f MB/sec)", mbytes, rate)
}

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
	if cliCfg.Input != "" {
		cfg.Input.Type = cliCfg.Input
	}
	if cliCfg.Address != "" {
		cfg.Input.TCP.Address = cliCfg.Address
		cfg.Input.WebSocket.URL = cliCfg.Address
	}
	if cliCfg.File != "" {
		cfg.Input.File.Path = cliCfg.File
	}
	if cliCfg.Session != "" {
		cfg.Input.NATS.Session = cliCfg.Session
	}

	if err := cfg.Input.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func openSource(
	ctx context.Context,
	cfg *config.Config,
	registry *metric.MetricsRegistry,
	logger *slog.Logger,
) (protocol.Source, func(), error) {
	noop := func() {}
	m := registry.CoreMetrics()

	switch cfg.Input.Type {
	case config.TransportFile:
		in, err := infile.Open(cfg.Input.File, infile.WithLogger(logger), infile.WithMetrics(m))
		if err != nil {
			return nil, noop, fmt.Errorf("open file input: %w", err)
		}
		return in, noop, nil

	case config.TransportTCP:
		in, err := intcp.New(cfg.Input.TCP, intcp.WithLogger(logger), intcp.WithMetrics(m))
		if err != nil {
			return nil, noop, fmt.Errorf("create tcp input: %w", err)
		}
		return in, noop, nil

	case config.TransportWebSocket:
		in, err := inws.New(cfg.Input.WebSocket, inws.WithLogger(logger), inws.WithMetrics(m))
		if err != nil {
			return nil, noop, fmt.Errorf("create websocket input: %w", err)
		}
		return in, noop, nil

	case config.TransportNATS:
		opts := []natsclient.ClientOption{
			natsclient.WithName(cfg.NATS.Name),
			natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
			natsclient.WithReconnectWait(cfg.NATS.ReconnectWait),
			natsclient.WithLogger(logger),
		}
		if cfg.NATS.Username != "" {
			opts = append(opts, natsclient.WithCredentials(cfg.NATS.Username, cfg.NATS.Password))
		}
		if cfg.NATS.Token != "" {
			opts = append(opts, natsclient.WithToken(cfg.NATS.Token))
		}
		client, err := natsclient.NewClient(cfg.NATS.URL(), opts...)
		if err != nil {
			return nil, noop, fmt.Errorf("create NATS client: %w", err)
		}
		if err := client.Connect(ctx); err != nil {
			return nil, noop, fmt.Errorf("connect to NATS: %w", err)
		}
		cleanup := func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := client.Close(closeCtx); err != nil {
				logger.Warn("NATS close failed", "error", err)
			}
		}
		in, err := innats.New(client, cfg.Input.NATS, innats.WithLogger(logger), innats.WithMetrics(m))
		if err != nil {
			cleanup()
			return nil, noop, fmt.Errorf("create nats input: %w", err)
		}
		return in, cleanup, nil
	}
	return nil, noop, fmt.Errorf("unknown input type %q", cfg.Input.Type)
}
