package dispatch

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/quorum-ai/quorum/internal/backend"
	"github.com/quorum-ai/quorum/internal/errors"
	"github.com/quorum-ai/quorum/internal/policy"
)

// runConsensus invokes every plan participant concurrently, each under its
// own per-call timeout, and waits for all of them or the global consensus
// timeout, whichever comes first. Partial results are fine as long as at
// least one participant succeeded.
//
// Every completed call settles its reservation and reports its outcome even
// when the overall fan-out fails; caller cancellation aborts the barrier and
// releases the reservations of calls that never started.
func (d *Dispatcher) runConsensus(ctx context.Context, spec policy.RequestSpec, plan *policy.Plan) (*Outcome, error) {
	fanCtx, cancel := context.WithTimeout(ctx, d.cfg.ConsensusTimeout)
	defer cancel()

	results := make([]backend.CallResult, len(plan.Participants))
	started := make([]bool, len(plan.Participants))

	var g errgroup.Group
	for i, part := range plan.Participants {
		if fanCtx.Err() != nil {
			break
		}
		started[i] = true

		i, part := i, part
		g.Go(func() error {
			result := d.invoke(fanCtx, part, spec)
			d.settle(part, part.ReservationID, result)
			results[i] = result
			return nil
		})
	}
	_ = g.Wait()

	// Participants that never started still hold their plan-time
	// reservations.
	for i, part := range plan.Participants {
		if !started[i] {
			d.ledger.Release(part.ReservationID)
		}
	}

	out := &Outcome{Consensus: true}
	var lastErr error
	for i := range plan.Participants {
		if !started[i] {
			continue
		}
		out.Attempts++
		r := results[i]
		if r.OK() {
			out.Successes = append(out.Successes, r)
			out.TotalCostUSD += r.CostUSD
		} else {
			lastErr = r.Err
			d.log.Info("consensus participant failed",
				"backend", r.Backend.Name,
				"kind", errors.GetKind(r.Err).String())
		}
	}

	if len(out.Successes) == 0 {
		if lastErr == nil {
			lastErr = ctx.Err()
		}
		return out, errors.ConsensusAllFailed(lastErr)
	}
	return out, nil
}
