// Package config provides configuration types for Quorum.
package config

// Config represents the main Quorum configuration.
type Config struct {
	Budget     BudgetConfig     `toml:"budget"`
	Routing    RoutingConfig    `toml:"routing"`
	Classifier ClassifierConfig `toml:"classifier"`
	Backends   []BackendConfig  `toml:"backends"`
	Paths      PathsConfig      `toml:"paths"`
}

// BudgetConfig caps monthly cloud spend.
type BudgetConfig struct {
	MonthlyUSD float64 `toml:"monthly_usd"`
}

// RoutingConfig contains dispatch and circuit-breaker settings.
type RoutingConfig struct {
	CallTimeoutSecs      int `toml:"call_timeout_secs"`      // per backend call, default 30
	ConsensusTimeoutSecs int `toml:"consensus_timeout_secs"` // fan-out barrier, default 45
	ConsensusSize        int `toml:"consensus_size"`         // fan-out width, default 3
	BreakerThreshold     int `toml:"breaker_threshold"`      // consecutive failures, default 3
	BreakerCooldownSecs  int `toml:"breaker_cooldown_secs"`  // first-trip cooldown, default 60
}

// ClassifierConfig overrides the complexity keyword sets.
type ClassifierConfig struct {
	CriticalKeywords []string `toml:"critical_keywords"`
	ComplexKeywords  []string `toml:"complex_keywords"`
	SimpleKeywords   []string `toml:"simple_keywords"`
}

// BackendConfig describes one backend to register at startup.
type BackendConfig struct {
	Name             string   `toml:"name"`
	Kind             string   `toml:"kind"` // local, remote
	ModelID          string   `toml:"model_id"`
	BaseURL          string   `toml:"base_url"`
	APIKey           string   `toml:"api_key"`
	APIKeyEnv        string   `toml:"api_key_env"` // env var holding the key; wins over api_key
	CostPerKInput    float64  `toml:"cost_per_k_input"`
	CostPerKOutput   float64  `toml:"cost_per_k_output"`
	MaxContextTokens int      `toml:"max_context_tokens"`
	Capabilities     []string `toml:"capabilities"`
	RequestsPerMin   int      `toml:"requests_per_min"` // remote only, client-side throttle
}

// PathsConfig contains file path settings.
type PathsConfig struct {
	DataDir  string `toml:"data_dir"`
	LedgerDB string `toml:"ledger_db"`
	MemoryDB string `toml:"memory_db"`
}
