// Package config loads the core's configuration options from TOML.
package config

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// Default values for the optional settings.
const (
	DefaultMaxLogMessageBytes = 65536
	DefaultBundleMaxBytes     = 5242880
	DefaultShardCount         = 64
)

// macKeyBytes is the required length of mac_key in bytes (32-byte hex).
const macKeyBytes = 32

// raw mirrors the TOML document's field names directly; Load converts
// it into a validated Config.
type raw struct {
	MACKeyHex          string `toml:"mac_key"`
	WindowDurationS    int64  `toml:"window_duration_s"`
	WindowCapacity     int64  `toml:"window_capacity"`
	MaxLogMessageBytes int64  `toml:"max_log_message_bytes"`
	BundleMaxBytes     int64  `toml:"bundle_max_bytes"`
	ShardCount         int64  `toml:"shard_count"`
}

// Config is the core's fully-validated configuration.
type Config struct {
	MACKey             []byte
	WindowDuration     int64
	WindowCapacity     int64
	MaxLogMessageBytes int64
	BundleMaxBytes     int64
	ShardCount         int64
}

// Load reads and validates a Config from the TOML document at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse validates a Config from an in-memory TOML document, applying
// defaults for the optional settings.
func Parse(data []byte) (Config, error) {
	var r raw
	if err := toml.Unmarshal(data, &r); err != nil {
		return Config{}, fmt.Errorf("config: parse: %w", err)
	}

	if r.MaxLogMessageBytes == 0 {
		r.MaxLogMessageBytes = DefaultMaxLogMessageBytes
	}
	if r.BundleMaxBytes == 0 {
		r.BundleMaxBytes = DefaultBundleMaxBytes
	}
	if r.ShardCount == 0 {
		r.ShardCount = DefaultShardCount
	}

	key, err := hex.DecodeString(r.MACKeyHex)
	if err != nil {
		return Config{}, fmt.Errorf("config: mac_key is not valid hex: %w", err)
	}
	if len(key) != macKeyBytes {
		return Config{}, fmt.Errorf("config: mac_key must decode to %d bytes, got %d", macKeyBytes, len(key))
	}
	if r.WindowDurationS <= 0 {
		return Config{}, fmt.Errorf("config: window_duration_s must be positive, got %d", r.WindowDurationS)
	}
	if r.WindowCapacity <= 0 {
		return Config{}, fmt.Errorf("config: window_capacity must be positive, got %d", r.WindowCapacity)
	}

	return Config{
		MACKey:             key,
		WindowDuration:     r.WindowDurationS,
		WindowCapacity:     r.WindowCapacity,
		MaxLogMessageBytes: r.MaxLogMessageBytes,
		BundleMaxBytes:     r.BundleMaxBytes,
		ShardCount:         r.ShardCount,
	}, nil
}
