package metrics

import (
	"github.com/danielpatrickdp/response-guard/internal/evalbus"
)

// #region snapshot

// StageBudget pairs spent and remaining penalty for one stage.
type StageBudget struct {
	Spent     float64 `json:"spent"`
	Remaining float64 `json:"remaining"`
	Cap       float64 `json:"cap"`
}

// Snapshot is the read-only telemetry view consumed by UI collaborators.
type Snapshot struct {
	Trust      TrustIndexResult              `json:"trust"`
	GuardStats evalbus.GuardStats            `json:"guardStats"`
	Date       string                        `json:"date"`
	Budgets    map[evalbus.Stage]StageBudget `json:"budgets"`
	Issues     []Issue                       `json:"issues"`
}

// #endregion snapshot

// #region dashboard

// Dashboard assembles the full telemetry snapshot. Side-effect-free
// apart from the ledger's lazy rollover.
func Dashboard(bus *evalbus.Bus, ledger *PenaltyLedger, issues *IssueLog) Snapshot {
	budgets := make(map[evalbus.Stage]StageBudget, len(dailyCaps))
	for stage := range dailyCaps {
		budgets[stage] = StageBudget{
			Spent:     ledger.Spent(stage),
			Remaining: ledger.Remaining(stage),
			Cap:       DailyCap(stage),
		}
	}

	return Snapshot{
		Trust:      TrustIndex(bus),
		GuardStats: bus.GuardStats(),
		Date:       ledger.Date(),
		Budgets:    budgets,
		Issues:     issues.Recent(10),
	}
}

// #endregion dashboard
