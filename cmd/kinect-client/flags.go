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
	ConfigPath     string
	LogLevel       string
	LogFormat      string
	Input          string
	Address        string
	File           string
	Session        string
	Limit          int64
	StatusInterval time.Duration
	ShowVersion    bool
	ShowHelp       bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("KINECT_CLIENT_CONFIG", ""),
		"Path to a YAML or JSON configuration file; empty uses defaults (env: KINECT_CLIENT_CONFIG)")
	flag.StringVar(&cfg.ConfigPath, "c",
		getEnv("KINECT_CLIENT_CONFIG", ""),
		"Path to configuration file (env: KINECT_CLIENT_CONFIG)")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("KINECT_CLIENT_LOG_LEVEL", ""),
		"Log level: debug, info, warn, error (env: KINECT_CLIENT_LOG_LEVEL)")
	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("KINECT_CLIENT_LOG_FORMAT", ""),
		"Log format: json, text (env: KINECT_CLIENT_LOG_FORMAT)")

	flag.StringVar(&cfg.Input, "input",
		getEnv("KINECT_CLIENT_INPUT", ""),
		"Input transport: file, tcp, websocket, nats (env: KINECT_CLIENT_INPUT)")
	flag.StringVar(&cfg.Address, "address",
		getEnv("KINECT_CLIENT_ADDRESS", ""),
		"Server host:port for tcp, or ws:// URL for websocket (env: KINECT_CLIENT_ADDRESS)")
	flag.StringVar(&cfg.File, "file",
		getEnv("KINECT_CLIENT_FILE", ""),
		"Stream file to read for the file input (env: KINECT_CLIENT_FILE)")
	flag.StringVar(&cfg.Session, "session",
		getEnv("KINECT_CLIENT_SESSION", ""),
		"Capture session to replay from NATS; empty is the latest (env: KINECT_CLIENT_SESSION)")

	flag.Int64Var(&cfg.Limit, "limit", getEnvInt("KINECT_CLIENT_LIMIT", 0),
		"Stop after this many messages, 0 for no limit (env: KINECT_CLIENT_LIMIT)")
	flag.DurationVar(&cfg.StatusInterval, "status-interval", 5*time.Second,
		"Interval between throughput reports, 0 to disable")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	flag.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")

	flag.Usage = printDetailedHelp
	flag.Parse()
	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}
	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
		}
	}
	if cfg.Limit < 0 {
		return fmt.Errorf("invalid limit: %d", cfg.Limit)
	}
	return nil
}

func printDetailedHelp() {
	_, _ = fmt.Fprintf(os.Stderr, `%s - Kinect stream reader

Reads a framed message stream, decodes every message and reports what it saw.

Usage: %s [options]

Options:
`, appName, os.Args[0])
	flag.PrintDefaults()
	_, _ = fmt.Fprintf(os.Stderr, `
Examples:
  # Follow a live capture server
  %s --address=kinect-host:9000

  # Verify a recorded session
  %s --input=file --file=session.stream

Version: %s
Build: %s
`, os.Args[0], os.Args[0], Version, BuildTime)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}
