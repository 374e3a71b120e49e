package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/usc-rasc/kinect-bridge2/errors"
)

const (
	maxConfigSize = 1 << 20 // 1MB is far beyond any real bridge config
	maxNesting    = 32
	maxEnvVarLen  = 4096
	maxPathLen    = 4096
)

type format int

const (
	formatJSON format = iota
	formatYAML
)

// formatOf picks the decoder from the file extension.
func formatOf(path string) (format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return formatJSON, nil
	case ".yaml", ".yml":
		return formatYAML, nil
	}
	return 0, fmt.Errorf("unsupported config extension %q (want .json, .yaml or .yml)", filepath.Ext(path))
}

func validateConfigPath(path string) error {
	if path == "" {
		return errors.New("empty config path")
	}
	if len(path) > maxPathLen {
		return fmt.Errorf("path too long: %d > %d", len(path), maxPathLen)
	}

	// Relative paths must stay under the working directory once resolved.
	if !filepath.IsAbs(path) {
		cwd, err := os.Getwd()
		if err != nil {
			return fmt.Errorf("cannot get working directory: %w", err)
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("cannot resolve absolute path: %w", err)
		}
		rel, err := filepath.Rel(cwd, abs)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return fmt.Errorf("path traversal not allowed: %s resolves outside working directory", path)
		}
	}

	_, err := formatOf(path)
	return err
}

func safeReadFile(path string) ([]byte, error) {
	if err := validateConfigPath(path); err != nil {
		return nil, errors.WrapInvalid(err, "config", "safeReadFile", "validate path")
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "config", "safeReadFile", "stat "+path)
	}
	if !info.Mode().IsRegular() {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "config", "safeReadFile", "not a regular file: "+path)
	}
	if info.Size() > maxConfigSize {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig, "config", "safeReadFile",
			fmt.Sprintf("config file too large: %d bytes", info.Size()))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapInvalid(err, "config", "safeReadFile", "read "+path)
	}
	return data, nil
}

func safeWriteFile(path string, data []byte) error {
	if err := validateConfigPath(path); err != nil {
		return errors.WrapInvalid(err, "config", "safeWriteFile", "validate path")
	}
	if len(data) > maxConfigSize {
		return errors.WrapInvalid(errors.ErrInvalidConfig, "config", "safeWriteFile",
			fmt.Sprintf("config data too large: %d bytes", len(data)))
	}
	// Config may carry NATS credentials.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return errors.WrapTransient(err, "config", "safeWriteFile", "write "+path)
	}
	return nil
}

func validateEnvVar(key, value string) error {
	if len(value) > maxEnvVarLen {
		return fmt.Errorf("environment variable %s too long: %d > %d", key, len(value), maxEnvVarLen)
	}
	if strings.ContainsRune(value, 0) {
		return fmt.Errorf("null byte in environment variable %s", key)
	}
	return nil
}

// checkNesting bounds the depth of a decoded document. It runs on the
// decoded tree so JSON and YAML (including anchors) get the same limit.
func checkNesting(v any, depth int) error {
	if depth > maxNesting {
		return fmt.Errorf("config nesting too deep: > %d", maxNesting)
	}
	switch t := v.(type) {
	case map[string]any:
		for _, child := range t {
			if err := checkNesting(child, depth+1); err != nil {
				return err
			}
		}
	case []any:
		for _, child := range t {
			if err := checkNesting(child, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}
