// Package config loads the kinect-bridge configuration.
//
// A Config is built in layers: DefaultConfig, then each file added with
// Loader.AddLayer deep-merged over it in order, then KINECT_* environment
// variables. Files may be JSON (.json) or YAML (.yaml, .yml). Every layer is
// checked against the embedded JSON Schema (see Schema) before merging, so
// unknown keys and bad enum values are reported with their field path.
//
// Durations may be written as integers (nanoseconds) or as strings accepted
// by time.ParseDuration, plus a whole-day form such as "7d".
//
// # Basic Usage
//
//	loader := config.NewLoader()
//	loader.AddLayer("configs/logger.yaml")
//	loader.AddLayer("configs/site.yaml") // overrides logger.yaml
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//	if err != nil {
//	    return err
//	}
//
// # Environment Overrides
//
//	KINECT_LOG_LEVEL, KINECT_LOG_FORMAT
//	KINECT_OUTPUT_TYPE, KINECT_OUTPUT_FILE
//	KINECT_INPUT_TYPE, KINECT_INPUT_FILE
//	KINECT_NATS_URLS (comma separated), KINECT_NATS_USERNAME,
//	KINECT_NATS_PASSWORD, KINECT_NATS_TOKEN
//	KINECT_METRICS_ADDRESS
//
// SafeConfig wraps a Config for concurrent readers; Get returns a deep copy.
package config
