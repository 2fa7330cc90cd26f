package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfigFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesFileAndDefaults(t *testing.T) {
	path := writeConfigFile(t, `
database_url: postgres://localhost/lendscan
rpc_endpoint: http://localhost:26657
chain_id: testchain-1
factory_address: factory1
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.DatabaseURL != "postgres://localhost/lendscan" {
		t.Fatalf("database_url=%q", cfg.DatabaseURL)
	}
	if cfg.StartBlockHeight != 1 {
		t.Fatalf("start_block_height=%d, want default 1", cfg.StartBlockHeight)
	}
	if cfg.BatchSize != 100 {
		t.Fatalf("batch_size=%d, want default 100", cfg.BatchSize)
	}
	if cfg.PollInterval() != time.Second {
		t.Fatalf("poll interval=%v, want 1s", cfg.PollInterval())
	}
	if cfg.APIPort != 4000 {
		t.Fatalf("api_port=%d, want default 4000", cfg.APIPort)
	}
	if cfg.LogLevel != "info" {
		t.Fatalf("log_level=%q, want default info", cfg.LogLevel)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfigFile(t, `
database_url: postgres://localhost/lendscan
rpc_endpoint: http://localhost:26657
chain_id: testchain-1
factory_address: factory1
batch_size: 25
`)

	t.Setenv("BATCH_SIZE", "7")
	t.Setenv("RPC_ENDPOINT", "http://other:26657")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.BatchSize != 7 {
		t.Fatalf("batch_size=%d, want env override 7", cfg.BatchSize)
	}
	if cfg.RPCEndpoint != "http://other:26657" {
		t.Fatalf("rpc_endpoint=%q, want env override", cfg.RPCEndpoint)
	}
	if !cfg.DebugEnabled() {
		t.Fatalf("DebugEnabled()=false with LOG_LEVEL=debug")
	}
}

func TestLoadMissingFileUsesEnvOnly(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/lendscan")
	t.Setenv("RPC_ENDPOINT", "http://localhost:26657")
	t.Setenv("CHAIN_ID", "testchain-1")
	t.Setenv("FACTORY_ADDRESS", "factory1")

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.ChainID != "testchain-1" {
		t.Fatalf("chain_id=%q", cfg.ChainID)
	}
}

func TestValidateRejectsMissingRequired(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"database_url", func(c *Config) { c.DatabaseURL = "" }},
		{"rpc_endpoint", func(c *Config) { c.RPCEndpoint = "" }},
		{"chain_id", func(c *Config) { c.ChainID = "" }},
		{"factory_address", func(c *Config) { c.FactoryAddress = "" }},
		{"batch_size", func(c *Config) { c.BatchSize = 0 }},
		{"poll_interval_ms", func(c *Config) { c.PollIntervalMs = -5 }},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			cfg.DatabaseURL = "postgres://localhost/x"
			cfg.RPCEndpoint = "http://localhost:26657"
			cfg.ChainID = "testchain-1"
			cfg.FactoryAddress = "factory1"
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("Validate accepted config missing %s", tc.name)
			}
		})
	}
}
