package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds every runtime option of the indexer and query service.
// Values come from an optional yaml file, overridden by environment
// variables of the same name in upper snake case.
type Config struct {
	DatabaseURL      string `yaml:"database_url"`
	RPCEndpoint      string `yaml:"rpc_endpoint"`
	ChainID          string `yaml:"chain_id"`
	FactoryAddress   string `yaml:"factory_address"`
	StartBlockHeight uint64 `yaml:"start_block_height"`
	BatchSize        int    `yaml:"batch_size"`
	PollIntervalMs   int    `yaml:"poll_interval_ms"`
	APIPort          int    `yaml:"api_port"`
	LogLevel         string `yaml:"log_level"`
	AdminJWTSecret   string `yaml:"admin_jwt_secret"`
	SchemaPath       string `yaml:"schema_path"`
}

// Default returns a Config with every defaulted option filled in.
func Default() *Config {
	return &Config{
		StartBlockHeight: 1,
		BatchSize:        100,
		PollIntervalMs:   1000,
		APIPort:          4000,
		LogLevel:         "info",
		SchemaPath:       "schema.sql",
	}
}

// Load reads the yaml file at path (skipped when path is empty or the file
// does not exist), applies environment overrides, and validates.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.DatabaseURL = getEnv("DATABASE_URL", c.DatabaseURL)
	c.RPCEndpoint = getEnv("RPC_ENDPOINT", c.RPCEndpoint)
	c.ChainID = getEnv("CHAIN_ID", c.ChainID)
	c.FactoryAddress = getEnv("FACTORY_ADDRESS", c.FactoryAddress)
	c.StartBlockHeight = getEnvUint64("START_BLOCK_HEIGHT", c.StartBlockHeight)
	c.BatchSize = getEnvInt("BATCH_SIZE", c.BatchSize)
	c.PollIntervalMs = getEnvInt("POLL_INTERVAL_MS", c.PollIntervalMs)
	c.APIPort = getEnvInt("API_PORT", c.APIPort)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.AdminJWTSecret = getEnv("ADMIN_JWT_SECRET", c.AdminJWTSecret)
	c.SchemaPath = getEnv("SCHEMA_PATH", c.SchemaPath)
}

// Validate reports the first missing required option.
func (c *Config) Validate() error {
	switch {
	case c.DatabaseURL == "":
		return fmt.Errorf("config: database_url is required")
	case c.RPCEndpoint == "":
		return fmt.Errorf("config: rpc_endpoint is required")
	case c.ChainID == "":
		return fmt.Errorf("config: chain_id is required")
	case c.FactoryAddress == "":
		return fmt.Errorf("config: factory_address is required")
	}
	if c.StartBlockHeight == 0 {
		return fmt.Errorf("config: start_block_height must be >= 1")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("config: batch_size must be positive")
	}
	if c.PollIntervalMs <= 0 {
		return fmt.Errorf("config: poll_interval_ms must be positive")
	}
	return nil
}

// PollInterval is poll_interval_ms as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// DebugEnabled reports whether log_level asks for debug verbosity.
func (c *Config) DebugEnabled() bool {
	return strings.EqualFold(c.LogLevel, "debug")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvUint64(key string, fallback uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}
