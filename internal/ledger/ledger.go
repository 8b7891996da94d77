// Package ledger enforces the rolling monthly spend budget.
//
// Paid calls follow a reserve-then-commit-or-release protocol: the estimated
// cost is reserved before the wire call, then reconciled against the actual
// token-based cost on commit, or released if the call never happened. The
// budget check covers committed spend plus all outstanding reservations, so
// concurrent callers cannot jointly overshoot by more than a single
// reservation's reconciliation delta.
package ledger

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quorum-ai/quorum/internal/errors"
)

// Ledger tracks spend against the monthly budget.
type Ledger struct {
	mu sync.Mutex

	budgetUSD   float64
	spentUSD    float64
	periodStart time.Time

	reservations map[string]float64

	store Store
	now   func() time.Time // overridable for tests
}

// Config configures the ledger.
type Config struct {
	// MonthlyBudgetUSD is the hard spend cap per billing period.
	MonthlyBudgetUSD float64

	// Store persists {periodStart, spentUSD}. Nil means in-memory only.
	Store Store
}

// New creates a ledger, restoring persisted state when a store is configured.
func New(cfg Config) (*Ledger, error) {
	l := &Ledger{
		budgetUSD:    cfg.MonthlyBudgetUSD,
		periodStart:  startOfMonth(time.Now()),
		reservations: make(map[string]float64),
		store:        cfg.Store,
		now:          time.Now,
	}

	if l.store != nil {
		state, found, err := l.store.Load()
		if err != nil {
			return nil, errors.Wrap(err, errors.CodeLedgerStore, "load ledger state", errors.KindInternal)
		}
		if found {
			l.periodStart = state.PeriodStart
			l.spentUSD = state.SpentUSD
		}
	}

	return l, nil
}

// TryReserve attempts to reserve amountUSD against the remaining budget.
// Returns the reservation ID and true on success. Free (zero-cost) amounts
// always succeed.
func (l *Ledger) TryReserve(amountUSD float64) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.rolloverLocked()

	if amountUSD < 0 {
		amountUSD = 0
	}
	if amountUSD > 0 && l.spentUSD+l.outstandingLocked()+amountUSD > l.budgetUSD {
		return "", false
	}

	id := uuid.NewString()
	l.reservations[id] = amountUSD
	return id, true
}

// Commit reconciles a reservation with the actual cost of the completed
// call. The delta between estimate and actual may be negative. Committing an
// unknown or already-settled reservation is a no-op.
func (l *Ledger) Commit(reservationID string, actualUSD float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.reservations[reservationID]; !ok {
		return
	}
	delete(l.reservations, reservationID)

	l.rolloverLocked()

	if actualUSD < 0 {
		actualUSD = 0
	}
	l.spentUSD += actualUSD
	l.persistLocked()
}

// Release drops a reservation that was never used. Idempotent: releasing
// twice, or after a commit, has no additional effect.
func (l *Ledger) Release(reservationID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.reservations, reservationID)
}

// Spent returns the committed spend in the current period.
func (l *Ledger) Spent() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rolloverLocked()
	return l.spentUSD
}

// Remaining returns the budget left after committed spend and outstanding
// reservations.
func (l *Ledger) Remaining() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rolloverLocked()

	rem := l.budgetUSD - l.spentUSD - l.outstandingLocked()
	if rem < 0 {
		rem = 0
	}
	return rem
}

// Budget returns the configured monthly budget.
func (l *Ledger) Budget() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.budgetUSD
}

// SetBudget updates the monthly budget, for config hot-reload. Does not
// touch committed spend or outstanding reservations.
func (l *Ledger) SetBudget(amountUSD float64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if amountUSD < 0 {
		amountUSD = 0
	}
	l.budgetUSD = amountUSD
}

// PeriodStart returns the start of the current billing period.
func (l *Ledger) PeriodStart() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rolloverLocked()
	return l.periodStart
}

// outstandingLocked sums all in-flight reservations. Caller holds mu.
func (l *Ledger) outstandingLocked() float64 {
	var sum float64
	for _, amt := range l.reservations {
		sum += amt
	}
	return sum
}

// rolloverLocked resets spend when the clock has crossed into a new billing
// period. Caller holds mu.
func (l *Ledger) rolloverLocked() {
	now := l.now()
	next := l.periodStart.AddDate(0, 1, 0)
	if now.Before(next) {
		return
	}

	for !now.Before(next) {
		l.periodStart = next
		next = l.periodStart.AddDate(0, 1, 0)
	}
	l.spentUSD = 0
	l.persistLocked()
}

// persistLocked writes current state to the store, if any. Caller holds mu.
// Persistence failures do not block request flow; the caller sees the
// in-memory state regardless.
func (l *Ledger) persistLocked() {
	if l.store == nil {
		return
	}
	_ = l.store.Save(State{PeriodStart: l.periodStart, SpentUSD: l.spentUSD})
}

func startOfMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
