// Package dispatch executes routing plans against backend adapters.
//
// Two modes: a single call with fallback retry across the plan's candidates,
// and a concurrent consensus fan-out. In both, the ledger reservation
// happens-before the backend call and the commit/release happens-after it
// completes, including under fallback retries and cancellation.
package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/quorum-ai/quorum/internal/backend"
	"github.com/quorum-ai/quorum/internal/errors"
	"github.com/quorum-ai/quorum/internal/policy"
	"github.com/quorum-ai/quorum/internal/stats"
)

// Registry is the adapter-lookup and outcome-reporting view the dispatcher
// needs.
type Registry interface {
	Get(name string) (backend.Adapter, bool)
	ReportOutcome(name string, success bool)
}

// Ledger is the budget protocol the dispatcher drives around each call.
type Ledger interface {
	TryReserve(amountUSD float64) (string, bool)
	Commit(reservationID string, actualUSD float64)
	Release(reservationID string)
}

// Config configures dispatch behavior.
type Config struct {
	// CallTimeout bounds every individual backend call. Default 30s.
	CallTimeout time.Duration

	// ConsensusTimeout bounds the whole fan-out barrier. Default 45s.
	ConsensusTimeout time.Duration

	// MaxAttempts caps fallback retries in single mode. 0 means one attempt
	// per plan participant.
	MaxAttempts int
}

func (c Config) withDefaults() Config {
	if c.CallTimeout <= 0 {
		c.CallTimeout = 30 * time.Second
	}
	if c.ConsensusTimeout <= 0 {
		c.ConsensusTimeout = 45 * time.Second
	}
	return c
}

// Dispatcher executes plans.
type Dispatcher struct {
	reg    Registry
	ledger Ledger
	stats  *stats.Collector
	cfg    Config
	log    *slog.Logger
}

// New creates a dispatcher. stats and logger may be nil.
func New(reg Registry, ledger Ledger, collector *stats.Collector, cfg Config, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		reg:    reg,
		ledger: ledger,
		stats:  collector,
		cfg:    cfg.withDefaults(),
		log:    logger,
	}
}

// Outcome is what plan execution produced.
type Outcome struct {
	// Successes holds the successful call results, in completion order for
	// consensus plans and length one for single plans.
	Successes []backend.CallResult

	// Attempts counts every backend call made, including failures.
	Attempts int

	// TotalCostUSD is the committed spend across all calls.
	TotalCostUSD float64

	// Consensus reports whether the plan fanned out.
	Consensus bool
}

// Complete executes the plan.
func (d *Dispatcher) Complete(ctx context.Context, spec policy.RequestSpec, plan *policy.Plan) (*Outcome, error) {
	if plan.Consensus {
		return d.runConsensus(ctx, spec, plan)
	}
	return d.runSingle(ctx, spec, plan)
}

// attemptOutcome is one step of the single-mode state machine.
type attemptOutcome int

const (
	attemptSucceeded attemptOutcome = iota
	attemptRetry                    // transient failure, advance to next candidate
	attemptGiveUp                   // fatal, propagate immediately
)

// runSingle walks the plan's candidates: call the primary, and on a
// rate-limit or transient failure release its reservation and advance to the
// next candidate with a fresh reservation. Invalid-request errors are never
// retried.
func (d *Dispatcher) runSingle(ctx context.Context, spec policy.RequestSpec, plan *policy.Plan) (*Outcome, error) {
	maxAttempts := d.cfg.MaxAttempts
	if maxAttempts <= 0 || maxAttempts > len(plan.Participants) {
		maxAttempts = len(plan.Participants)
	}

	out := &Outcome{}
	var lastErr error

	for i := 0; i < maxAttempts; i++ {
		part := plan.Participants[i]

		resID := part.ReservationID
		if resID == "" {
			// Fallback slot: reserve now, skipping candidates the budget
			// no longer covers.
			id, ok := d.ledger.TryReserve(part.EstimatedCostUSD)
			if !ok {
				d.log.Debug("fallback skipped, reservation failed",
					"backend", part.Backend.Name)
				continue
			}
			resID = id
		}

		// Reservation held but the caller is gone: release and stop.
		if ctx.Err() != nil {
			d.ledger.Release(resID)
			return out, errors.Wrap(ctx.Err(), errors.CodeBackendUnavailable,
				"request canceled", errors.KindUnavailable)
		}

		result := d.invoke(ctx, part, spec)
		out.Attempts++

		step := d.settle(part, resID, result)
		switch step {
		case attemptSucceeded:
			out.Successes = append(out.Successes, result)
			out.TotalCostUSD += result.CostUSD
			return out, nil
		case attemptGiveUp:
			return out, result.Err
		case attemptRetry:
			lastErr = result.Err
			d.log.Info("backend failed, trying fallback",
				"backend", part.Backend.Name,
				"kind", errors.GetKind(result.Err).String(),
				"attempt", i+1)
		}
	}

	if lastErr == nil {
		lastErr = errors.NoBackend("no plan participant could be attempted")
	}
	return out, lastErr
}

// settle reports the outcome to the registry, commits or releases the
// reservation, records stats, and decides the next state-machine step.
// Runs for every completed call regardless of the overall request outcome.
func (d *Dispatcher) settle(part policy.Participant, resID string, result backend.CallResult) attemptOutcome {
	success := result.OK()
	d.reg.ReportOutcome(part.Backend.Name, success)

	if success {
		d.ledger.Commit(resID, result.CostUSD)
	} else {
		d.ledger.Release(resID)
	}

	if d.stats != nil {
		d.stats.RecordCall(part.Backend.Name, part.Backend.IsLocal(),
			result.TokensIn, result.TokensOut, result.CostUSD, result.Latency, !success)
	}

	if success {
		return attemptSucceeded
	}
	if errors.IsRetryable(result.Err) {
		return attemptRetry
	}
	return attemptGiveUp
}

// invoke runs one backend call under the per-call timeout. A timeout counts
// as Unavailable.
func (d *Dispatcher) invoke(ctx context.Context, part policy.Participant, spec policy.RequestSpec) backend.CallResult {
	result := backend.CallResult{Backend: part.Backend}

	adapter, ok := d.reg.Get(part.Backend.Name)
	if !ok {
		result.Err = errors.Unavailable(part.Backend.Name, nil)
		return result
	}

	callCtx, cancel := context.WithTimeout(ctx, d.cfg.CallTimeout)
	defer cancel()

	start := time.Now()
	inv, err := adapter.Invoke(callCtx, spec.Prompt, backend.Params{
		Temperature:     spec.Temperature,
		MaxOutputTokens: spec.MaxOutputTokens,
	})
	result.Latency = time.Since(start)

	if err != nil {
		if callCtx.Err() == context.DeadlineExceeded {
			err = errors.Unavailable(part.Backend.Name, context.DeadlineExceeded)
		}
		result.Err = err
		return result
	}

	result.Content = inv.Text
	result.TokensIn = inv.TokensIn
	result.TokensOut = inv.TokensOut
	result.CostUSD = part.Backend.CostUSD(inv.TokensIn, inv.TokensOut)
	return result
}
