// Package config handles Quorum configuration loading and management.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Default returns the default configuration: a single local backend, a
// modest cloud budget, and stock routing thresholds.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	dataDir := filepath.Join(homeDir, ".quorum")

	return &Config{
		Budget: BudgetConfig{
			MonthlyUSD: 10.0,
		},
		Routing: RoutingConfig{
			CallTimeoutSecs:      30,
			ConsensusTimeoutSecs: 45,
			ConsensusSize:        3,
			BreakerThreshold:     3,
			BreakerCooldownSecs:  60,
		},
		Backends: []BackendConfig{
			{
				Name:             "local",
				Kind:             "local",
				ModelID:          "qwen2.5:7b",
				BaseURL:          "http://localhost:11434",
				MaxContextTokens: 8192,
				Capabilities:     []string{"code", "reasoning"},
			},
		},
		Paths: PathsConfig{
			DataDir:  dataDir,
			LedgerDB: filepath.Join(dataDir, "ledger.db"),
			MemoryDB: filepath.Join(dataDir, "memory.db"),
		},
	}
}

// Load loads the configuration from the given path.
// If the file doesn't exist, returns defaults.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	resolveKeys(cfg)
	return cfg, nil
}

// Save saves the configuration to the given path.
func (c *Config) Save(configPath string) error {
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	file, err := os.Create(configPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := toml.NewEncoder(file)
	return encoder.Encode(c)
}

// Validate checks cross-field constraints the TOML decoder cannot.
func (c *Config) Validate() error {
	if c.Budget.MonthlyUSD < 0 {
		return fmt.Errorf("budget.monthly_usd must be >= 0")
	}
	seen := make(map[string]bool)
	for i, b := range c.Backends {
		if b.Name == "" {
			return fmt.Errorf("backends[%d]: name is required", i)
		}
		if seen[b.Name] {
			return fmt.Errorf("backends[%d]: duplicate name %q", i, b.Name)
		}
		seen[b.Name] = true
		if b.Kind != "local" && b.Kind != "remote" {
			return fmt.Errorf("backend %q: kind must be local or remote", b.Name)
		}
		if b.MaxContextTokens <= 0 {
			return fmt.Errorf("backend %q: max_context_tokens must be > 0", b.Name)
		}
		if b.Kind == "local" && (b.CostPerKInput != 0 || b.CostPerKOutput != 0) {
			return fmt.Errorf("backend %q: local backends must have zero cost", b.Name)
		}
		if b.CostPerKInput < 0 || b.CostPerKOutput < 0 {
			return fmt.Errorf("backend %q: pricing must be >= 0", b.Name)
		}
	}
	return nil
}

// resolveKeys fills APIKey from APIKeyEnv where set.
func resolveKeys(cfg *Config) {
	for i := range cfg.Backends {
		b := &cfg.Backends[i]
		if b.APIKeyEnv != "" {
			if v := os.Getenv(b.APIKeyEnv); v != "" {
				b.APIKey = v
			}
		}
	}
}
