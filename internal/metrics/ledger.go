package metrics

import (
	"time"

	"github.com/danielpatrickdp/response-guard/internal/evalbus"
)

// #region caps

// dailyCaps bound how much penalty each stage may absorb per calendar
// day, preventing feedback runaway from any single subsystem.
var dailyCaps = map[evalbus.Stage]float64{
	evalbus.StageTool:   5,
	evalbus.StageRouter: 8,
	evalbus.StagePrism:  15,
	evalbus.StageGuard:  10,
	evalbus.StageUser:   20,
}

// DailyCap returns the configured cap for a stage (0 for unknown stages).
func DailyCap(stage evalbus.Stage) float64 {
	return dailyCaps[stage]
}

// #endregion caps

// #region ledger

const ledgerDateLayout = "2006-01-02"

// PenaltyLedger tracks per-stage penalties for the current calendar day.
// Rollover is lazy: every access compares the stored date with today and
// zeroes all counters on mismatch before proceeding. Construct one per
// process (or per test); never a package-level singleton.
type PenaltyLedger struct {
	date      string
	penalties map[evalbus.Stage]float64
	now       func() time.Time
}

// NewPenaltyLedger creates a ledger anchored to the real clock.
func NewPenaltyLedger() *PenaltyLedger {
	return NewPenaltyLedgerWithClock(time.Now)
}

// NewPenaltyLedgerWithClock injects a clock for rollover tests.
func NewPenaltyLedgerWithClock(now func() time.Time) *PenaltyLedger {
	l := &PenaltyLedger{now: now}
	l.rollover()
	return l
}

// rollover resets all counters when the stored date is not today.
func (l *PenaltyLedger) rollover() {
	today := l.now().Format(ledgerDateLayout)
	if l.date != today {
		l.date = today
		l.penalties = make(map[evalbus.Stage]float64, len(dailyCaps))
	}
}

// #endregion ledger

// #region operations

// CanApply reports whether amount fits under the stage's remaining daily
// budget. A false result is a signal, not an error.
func (l *PenaltyLedger) CanApply(stage evalbus.Stage, amount float64) bool {
	l.rollover()
	return l.penalties[stage]+amount <= dailyCaps[stage]
}

// Record adds amount to the stage's spent penalty for today.
func (l *PenaltyLedger) Record(stage evalbus.Stage, amount float64) {
	l.rollover()
	l.penalties[stage] += amount
}

// Remaining returns the unspent budget for the stage today, floored at 0.
func (l *PenaltyLedger) Remaining(stage evalbus.Stage) float64 {
	l.rollover()
	remaining := dailyCaps[stage] - l.penalties[stage]
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Spent returns today's recorded penalty for the stage.
func (l *PenaltyLedger) Spent(stage evalbus.Stage) float64 {
	l.rollover()
	return l.penalties[stage]
}

// Date returns the ledger's current calendar day.
func (l *PenaltyLedger) Date() string {
	l.rollover()
	return l.date
}

// #endregion operations
