package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/KevoDB/combiner/pkg/common/log"
	"github.com/KevoDB/combiner/pkg/telemetry"
)

const (
	DefaultConfigFileName = "combiner.json"
	CurrentConfigVersion  = 1
)

var (
	ErrInvalidConfig  = errors.New("invalid configuration")
	ErrConfigNotFound = errors.New("configuration not found")
)

// Backend names the storage the shell reads records from
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendPebble Backend = "pebble"
)

type Config struct {
	Version int `json:"version"`

	// Storage configuration
	Backend Backend `json:"backend"`
	DataDir string  `json:"data_dir"`
	Sync    bool    `json:"sync"`

	// Combiner configuration
	Reducer        string            `json:"reducer"`
	ReducerOptions map[string]string `json:"reducer_options,omitempty"`

	// Scan configuration
	ScanConcurrency int `json:"scan_concurrency"`

	LogLevel string `json:"log_level"`

	Telemetry telemetry.Config `json:"telemetry"`

	mu sync.RWMutex
}

// NewDefaultConfig creates a Config with recommended default values. An
// empty dataDir selects the in-memory backend.
func NewDefaultConfig(dataDir string) *Config {
	backend := BackendPebble
	if dataDir == "" {
		backend = BackendMemory
	}

	return &Config{
		Version: CurrentConfigVersion,

		Backend: backend,
		DataDir: dataDir,
		Sync:    false,

		Reducer: "sum",

		ScanConcurrency: 8,

		LogLevel: "info",

		Telemetry: telemetry.DefaultConfig(),
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.validate()
}

func (c *Config) validate() error {
	if c.Version <= 0 {
		return fmt.Errorf("%w: invalid version %d", ErrInvalidConfig, c.Version)
	}

	switch c.Backend {
	case BackendMemory:
	case BackendPebble:
		if c.DataDir == "" {
			return fmt.Errorf("%w: pebble backend requires a data directory", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalidConfig, c.Backend)
	}

	if c.Reducer == "" {
		return fmt.Errorf("%w: reducer not specified", ErrInvalidConfig)
	}

	if c.ScanConcurrency <= 0 {
		return fmt.Errorf("%w: scan concurrency must be positive", ErrInvalidConfig)
	}

	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if c.Telemetry.Enabled {
		if err := c.Telemetry.Validate(); err != nil {
			return fmt.Errorf("%w: telemetry: %v", ErrInvalidConfig, err)
		}
	}

	return nil
}

// LoadConfig reads a configuration file. Fields missing from the file keep
// their defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrConfigNotFound
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := NewDefaultConfig("")
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to path, replacing any existing file
func (c *Config) Save(path string) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := c.validate(); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		return fmt.Errorf("failed to rename config: %w", err)
	}

	return nil
}

// Update applies the given function to modify the configuration
func (c *Config) Update(fn func(*Config)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(c)
}
