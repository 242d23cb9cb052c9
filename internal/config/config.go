// Package config loads the YAML configuration file read by every
// vaultbridge command (C16): repository location, chunker tuning,
// checkpoint thresholds, and identity key paths.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds the settings shared by the send, receive, and serve
// commands. Zero-value fields are replaced by Default's values in
// Load, so a config file only needs to override what it changes.
type Config struct {
	// RepositoryURL is where the daemon or in-process client connects
	// (e.g. "quic://repo.example.com:4433" or "file:///var/lib/vaultbridge").
	RepositoryURL string `yaml:"repository_url"`

	// ChunkMinBytes, ChunkAvgBytes, ChunkMaxBytes are loaded from the
	// file but not applied: the send pipeline's chunker always uses the
	// send package's fixed DataChunkMinSize, DataChunkMaxSize and
	// DataChunkMask.
	ChunkMinBytes uint64 `yaml:"chunk_min_bytes"`
	ChunkAvgBytes uint64 `yaml:"chunk_avg_bytes"`
	ChunkMaxBytes uint64 `yaml:"chunk_max_bytes"`

	// CheckpointBytes is the dirty-byte threshold that forces a
	// TSendSync barrier and send-log checkpoint (spec §4.8 step 6).
	CheckpointBytes uint64 `yaml:"checkpoint_bytes"`

	// StatCacheEnabled toggles the stat-cache fast path (spec §4.6);
	// disabling it forces full re-chunking of every file.
	StatCacheEnabled bool `yaml:"stat_cache_enabled"`

	// SendLogPath and KeysDirectory locate the local send-log database
	// and the identity/keystore files (C8, C15).
	SendLogPath   string `yaml:"send_log_path"`
	KeysDirectory string `yaml:"keys_directory"`

	// QUICAddress is the listen address for vaultbridge-serve.
	QUICAddress string `yaml:"quic_address"`

	// MaxConcurrentSends is loaded from the file but not enforced:
	// vaultbridge-serve does not limit how many sessions it services at
	// once.
	MaxConcurrentSends int `yaml:"max_concurrent_sends"`

	// LogLevel names a zerolog level ("debug", "info", "warn", "error");
	// it is loaded but not applied by the command binaries.
	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when no file is present or a
// field is left unset.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	base := filepath.Join(homeDir, ".local", "share", "vaultbridge")

	return &Config{
		RepositoryURL:       "file://" + filepath.Join(base, "repository"),
		ChunkMinBytes:       2 * 1024,
		ChunkAvgBytes:       8 * 1024,
		ChunkMaxBytes:       64 * 1024,
		CheckpointBytes:     16 * 1024 * 1024,
		StatCacheEnabled:    true,
		SendLogPath:         filepath.Join(base, "sendlog.db"),
		KeysDirectory:       filepath.Join(base, "keys"),
		QUICAddress:         ":4433",
		MaxConcurrentSends:  8,
		LogLevel:            "info",
	}
}

// Load reads and parses a YAML config file at path, filling any field
// left zero in the file from Default. A missing file is not an error;
// Load returns Default() unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var raw struct {
		RepositoryURL      string `yaml:"repository_url"`
		ChunkMinBytes      uint64 `yaml:"chunk_min_bytes"`
		ChunkAvgBytes      uint64 `yaml:"chunk_avg_bytes"`
		ChunkMaxBytes      uint64 `yaml:"chunk_max_bytes"`
		CheckpointBytes    uint64 `yaml:"checkpoint_bytes"`
		StatCacheEnabled   *bool  `yaml:"stat_cache_enabled"`
		SendLogPath        string `yaml:"send_log_path"`
		KeysDirectory      string `yaml:"keys_directory"`
		QUICAddress        string `yaml:"quic_address"`
		MaxConcurrentSends int    `yaml:"max_concurrent_sends"`
		LogLevel           string `yaml:"log_level"`
	}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	mergeNonZero(cfg, &Config{
		RepositoryURL:      raw.RepositoryURL,
		ChunkMinBytes:      raw.ChunkMinBytes,
		ChunkAvgBytes:      raw.ChunkAvgBytes,
		ChunkMaxBytes:      raw.ChunkMaxBytes,
		CheckpointBytes:    raw.CheckpointBytes,
		SendLogPath:        raw.SendLogPath,
		KeysDirectory:      raw.KeysDirectory,
		QUICAddress:        raw.QUICAddress,
		MaxConcurrentSends: raw.MaxConcurrentSends,
		LogLevel:           raw.LogLevel,
	})
	if raw.StatCacheEnabled != nil {
		cfg.StatCacheEnabled = *raw.StatCacheEnabled
	}
	return cfg, nil
}

func mergeNonZero(dst, src *Config) {
	if src.RepositoryURL != "" {
		dst.RepositoryURL = src.RepositoryURL
	}
	if src.ChunkMinBytes != 0 {
		dst.ChunkMinBytes = src.ChunkMinBytes
	}
	if src.ChunkAvgBytes != 0 {
		dst.ChunkAvgBytes = src.ChunkAvgBytes
	}
	if src.ChunkMaxBytes != 0 {
		dst.ChunkMaxBytes = src.ChunkMaxBytes
	}
	if src.CheckpointBytes != 0 {
		dst.CheckpointBytes = src.CheckpointBytes
	}
	if src.SendLogPath != "" {
		dst.SendLogPath = src.SendLogPath
	}
	if src.KeysDirectory != "" {
		dst.KeysDirectory = src.KeysDirectory
	}
	if src.QUICAddress != "" {
		dst.QUICAddress = src.QUICAddress
	}
	if src.MaxConcurrentSends != 0 {
		dst.MaxConcurrentSends = src.MaxConcurrentSends
	}
	if src.LogLevel != "" {
		dst.LogLevel = src.LogLevel
	}
}
