package engine

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/quorum-ai/quorum/internal/backend"
	"github.com/quorum-ai/quorum/internal/classifier"
	"github.com/quorum-ai/quorum/internal/config"
	"github.com/quorum-ai/quorum/internal/dispatch"
	"github.com/quorum-ai/quorum/internal/errors"
	"github.com/quorum-ai/quorum/internal/ledger"
	"github.com/quorum-ai/quorum/internal/memory"
	"github.com/quorum-ai/quorum/internal/policy"
	"github.com/quorum-ai/quorum/internal/registry"
	"github.com/quorum-ai/quorum/internal/stats"
	"github.com/quorum-ai/quorum/internal/synthesis"
)

// Build assembles a ready-to-use engine from a loaded configuration.
// The returned cleanup closes the underlying stores.
func Build(cfg *config.Config, logger *slog.Logger) (*Engine, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}
	if len(cfg.Backends) == 0 {
		return nil, nil, errors.NoBackend("no backends configured")
	}

	reg := registry.New(registry.BreakerConfig{
		FailureThreshold: cfg.Routing.BreakerThreshold,
		Cooldown:         time.Duration(cfg.Routing.BreakerCooldownSecs) * time.Second,
	})
	for _, bc := range cfg.Backends {
		adapter, err := buildAdapter(bc)
		if err != nil {
			return nil, nil, err
		}
		if err := reg.Register(adapter); err != nil {
			return nil, nil, err
		}
	}

	var closers []func()
	cleanup := func() {
		for _, c := range closers {
			c()
		}
	}

	var store ledger.Store
	if cfg.Paths.LedgerDB != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Paths.LedgerDB), 0755); err != nil {
			return nil, nil, err
		}
		sqlStore, err := ledger.OpenSQLite(cfg.Paths.LedgerDB)
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, func() { sqlStore.Close() })
		store = sqlStore
	}

	led, err := ledger.New(ledger.Config{
		MonthlyBudgetUSD: cfg.Budget.MonthlyUSD,
		Store:            store,
	})
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	var recall memory.Recall = memory.Noop{}
	if cfg.Paths.MemoryDB != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Paths.MemoryDB), 0755); err != nil {
			cleanup()
			return nil, nil, err
		}
		memStore, err := memory.OpenStore(cfg.Paths.MemoryDB, 0)
		if err != nil {
			cleanup()
			return nil, nil, err
		}
		closers = append(closers, func() { memStore.Close() })
		recall = memStore
	}

	collector := stats.NewCollector()
	cls := classifier.New(classifier.Keywords{
		Critical: cfg.Classifier.CriticalKeywords,
		Complex:  cfg.Classifier.ComplexKeywords,
		Simple:   cfg.Classifier.SimpleKeywords,
	})
	pol := policy.New(reg, led, policy.Config{
		ConsensusSize: cfg.Routing.ConsensusSize,
	}, logger)
	disp := dispatch.New(reg, led, collector, dispatch.Config{
		CallTimeout:      time.Duration(cfg.Routing.CallTimeoutSecs) * time.Second,
		ConsensusTimeout: time.Duration(cfg.Routing.ConsensusTimeoutSecs) * time.Second,
	}, logger)
	synth := synthesis.New(reg, led, synthesis.Config{
		CallTimeout: time.Duration(cfg.Routing.CallTimeoutSecs) * time.Second,
	}, logger)

	eng := New(Config{
		Registry:   reg,
		Ledger:     led,
		Classifier: cls,
		Policy:     pol,
		Dispatcher: disp,
		Synth:      synth,
		Recall:     recall,
		Stats:      collector,
		Logger:     logger,
	})
	return eng, cleanup, nil
}

// buildAdapter constructs the adapter for one configured backend.
func buildAdapter(bc config.BackendConfig) (backend.Adapter, error) {
	desc := backend.Descriptor{
		Name:             bc.Name,
		Kind:             backend.Kind(bc.Kind),
		ModelID:          bc.ModelID,
		CostPerKInput:    bc.CostPerKInput,
		CostPerKOutput:   bc.CostPerKOutput,
		MaxContextTokens: bc.MaxContextTokens,
		Capabilities:     bc.Capabilities,
	}

	switch desc.Kind {
	case backend.KindLocal:
		lcfg := backend.DefaultLocalConfig()
		if bc.BaseURL != "" {
			lcfg.BaseURL = bc.BaseURL
		}
		if bc.ModelID != "" {
			lcfg.Model = bc.ModelID
		}
		return backend.NewLocalClient(desc, lcfg), nil
	case backend.KindRemote:
		rcfg := backend.DefaultOpenAIConfig(bc.APIKey)
		if bc.BaseURL != "" {
			rcfg.BaseURL = bc.BaseURL
		}
		if bc.RequestsPerMin > 0 {
			rcfg.RequestsPerMinute = bc.RequestsPerMin
		}
		return backend.NewOpenAIClient(desc, rcfg), nil
	default:
		return nil, fmt.Errorf("backend %q: unknown kind %q", bc.Name, bc.Kind)
	}
}
