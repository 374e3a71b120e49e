package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath      string
	LogLevel        string
	LogFormat       string
	Output          string
	Address         string
	File            string
	ShutdownTimeout time.Duration
	MetricsAddress  string
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool
	PrintSchema     bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("KINECT_LOGGER_CONFIG", ""),
		"Path to a YAML or JSON configuration file; empty uses defaults (env: KINECT_LOGGER_CONFIG)")
	flag.StringVar(&cfg.ConfigPath, "c",
		getEnv("KINECT_LOGGER_CONFIG", ""),
		"Path to configuration file (env: KINECT_LOGGER_CONFIG)")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("KINECT_LOGGER_LOG_LEVEL", ""),
		"Log level: debug, info, warn, error; overrides the config file (env: KINECT_LOGGER_LOG_LEVEL)")
	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("KINECT_LOGGER_LOG_FORMAT", ""),
		"Log format: json, text; overrides the config file (env: KINECT_LOGGER_LOG_FORMAT)")

	flag.StringVar(&cfg.Output, "output",
		getEnv("KINECT_LOGGER_OUTPUT", ""),
		"Output transport: file, tcp, websocket, nats (env: KINECT_LOGGER_OUTPUT)")
	flag.StringVar(&cfg.Address, "address",
		getEnv("KINECT_LOGGER_ADDRESS", ""),
		"Listen address for the tcp or websocket output (env: KINECT_LOGGER_ADDRESS)")
	flag.StringVar(&cfg.File, "file",
		getEnv("KINECT_LOGGER_FILE", ""),
		"Stream file path for the file output (env: KINECT_LOGGER_FILE)")

	flag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("KINECT_LOGGER_SHUTDOWN_TIMEOUT", 30*time.Second),
		"Graceful shutdown timeout (env: KINECT_LOGGER_SHUTDOWN_TIMEOUT)")
	flag.StringVar(&cfg.MetricsAddress, "metrics-address",
		getEnv("KINECT_LOGGER_METRICS_ADDRESS", ""),
		"Metrics and health listen address, \"off\" to disable (env: KINECT_LOGGER_METRICS_ADDRESS)")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	flag.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	flag.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")
	flag.BoolVar(&cfg.PrintSchema, "print-schema", false, "Print the configuration JSON Schema and exit")

	flag.Usage = printDetailedHelp
	flag.Parse()
	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp || cfg.PrintSchema {
		return nil
	}
	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
		}
	}
	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid shutdown timeout: %s", cfg.ShutdownTimeout)
	}
	return nil
}

func printDetailedHelp() {
	_, _ = fmt.Fprintf(os.Stderr, `%s - Kinect capture server

Captures color, depth, infrared, audio, body and speech data, encodes it and
streams the framed messages to one consumer.

Usage: %s [options]

Options:
`, appName, os.Args[0])
	flag.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # Serve the stream on TCP port 9000
  %s --address=:9000

  # Record to a file with a site config
  %s --config=configs/site.yaml --output=file --file=session.stream

  # Validate configuration only
  %s --config=configs/site.yaml --validate

Version: %s
Build: %s
`, os.Args[0], os.Args[0], os.Args[0], Version, BuildTime)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
		if secs, err := strconv.Atoi(value); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultValue
}
