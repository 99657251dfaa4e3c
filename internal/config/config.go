// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New returns a Config with defaults; Load layers file and env on top.
// - External errors are wrapped with this package's sentinel kinds.
package config

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata" // device_timezone must resolve on hosts without zoneinfo
)

// Store drivers.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// StoreDriver selects the session store: memory or sqlite.
	StoreDriver string `koanf:"store_driver"`

	// SQLitePath is the database file used by the sqlite driver.
	SQLitePath string `koanf:"sqlite_path"`

	// BlobCodec encodes sample arrays at rest: json or columnar.
	BlobCodec string `koanf:"blob_codec"`

	// MaxMergeRetries bounds optimistic re-merges after a write conflict.
	MaxMergeRetries int `koanf:"max_merge_retries"`

	// DedupeSize caps the batch-sequence dedupe cache.
	DedupeSize int `koanf:"dedupe_size"`

	// DeviceTimezone interprets zone-less device wall clocks.
	DeviceTimezone string `koanf:"device_timezone"`

	// MaxBodyBytes caps an ingest request body.
	MaxBodyBytes int64 `koanf:"max_body_bytes"`

	// MQTTBroker enables the MQTT ingest transport when set, e.g. tcp://host:1883.
	MQTTBroker   string `koanf:"mqtt_broker"`
	MQTTTopic    string `koanf:"mqtt_topic"`
	MQTTClientID string `koanf:"mqtt_client_id"`

	// MQTTWorkers ingest queued MQTT batches; MQTTQueueSize bounds the backlog.
	MQTTWorkers   int `koanf:"mqtt_workers"`
	MQTTQueueSize int `koanf:"mqtt_queue_size"`

	// AnalysisPieces and AnalysisPoints shape the averaged step curve.
	AnalysisPieces int `koanf:"analysis_pieces"`
	AnalysisPoints int `koanf:"analysis_points"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:        "info",
		LogFormat:       "text",
		Addr:            ":9080",
		StoreDriver:     DriverMemory,
		SQLitePath:      "gaitlog.db",
		BlobCodec:       "columnar",
		MaxMergeRetries: 5,
		DedupeSize:      50_000,
		DeviceTimezone:  "UTC",
		MaxBodyBytes:    4 << 20,
		MQTTTopic:       "gaitlog/items",
		MQTTClientID:    "gaitlog-server",
		MQTTWorkers:     4,
		MQTTQueueSize:   256,
		AnalysisPieces:  20,
		AnalysisPoints:  500,
	}
}

// Location resolves DeviceTimezone. Validate has already checked it.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DeviceTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	switch strings.ToLower(c.StoreDriver) {
	case DriverMemory:
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("%w: sqlite_path must not be empty", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	}
	switch strings.ToLower(c.BlobCodec) {
	case "", "json", "columnar":
	default:
		return fmt.Errorf("%w: unknown blob_codec %q", ErrInvalidConfig, c.BlobCodec)
	}
	if _, err := time.LoadLocation(c.DeviceTimezone); err != nil {
		return fmt.Errorf("%w: device_timezone: %v", ErrInvalidConfig, err)
	}
	if c.MaxMergeRetries < 0 {
		return fmt.Errorf("%w: max_merge_retries must be >= 0", ErrInvalidConfig)
	}
	if c.MaxBodyBytes <= 0 {
		return fmt.Errorf("%w: max_body_bytes must be > 0", ErrInvalidConfig)
	}
	if c.MQTTWorkers < 1 || c.MQTTQueueSize < 1 {
		return fmt.Errorf("%w: mqtt_workers and mqtt_queue_size must be >= 1", ErrInvalidConfig)
	}
	if c.AnalysisPieces < 4 || c.AnalysisPoints < 2 {
		return fmt.Errorf("%w: analysis_pieces must be >= 4 and analysis_points >= 2", ErrInvalidConfig)
	}
	return nil
}
