// Package metrics derives the trust index from bus metrics, enforces
// per-stage daily penalty budgets, and retains the architecture-issue
// ring buffer for human review.
package metrics

import (
	"github.com/danielpatrickdp/response-guard/internal/evalbus"
)

// #region trust-result

// TrustIndexResult is the on-demand summary of recent fact and persona
// fidelity. No history is stored beyond what the bus retains.
type TrustIndexResult struct {
	Index            float64 `json:"index"`
	FactMutationRate float64 `json:"factMutationRate"`
	SoftFailRate     float64 `json:"softFailRate"`
	RetryRate        float64 `json:"retryRate"`
	IdentityLeakRate float64 `json:"identityLeakRate"`
	TotalEvents      int     `json:"totalEvents"`
}

// #endregion trust-result

// #region penalty-weights

// Penalty weights per failure class. Fact mutation is the cardinal sin.
const (
	mutationWeight     = 1.0
	softFailWeight     = 0.5
	retryWeight        = 0.3
	identityLeakWeight = 0.8
)

// #endregion penalty-weights

// #region trust-index

// TrustIndex computes the 0..1 trust scalar from current bus metrics.
// With zero events the index is 1.0: absence of evidence is not
// evidence of failure.
func TrustIndex(bus *evalbus.Bus) TrustIndexResult {
	m := bus.Metrics()
	stats := bus.GuardStats()

	result := TrustIndexResult{
		Index:       1.0,
		TotalEvents: m.TotalEvents,
	}
	if m.TotalEvents == 0 {
		return result
	}

	result.FactMutationRate = stats.FactMutationRate
	result.SoftFailRate = stats.SoftFailRate
	result.RetryRate = stats.RetryRate
	result.IdentityLeakRate = float64(m.ByTag[evalbus.TagIdentityLeak]) / float64(m.TotalEvents)

	penalty := result.FactMutationRate*mutationWeight +
		result.SoftFailRate*softFailWeight +
		result.RetryRate*retryWeight +
		result.IdentityLeakRate*identityLeakWeight

	index := 1.0 - penalty
	if index < 0 {
		index = 0
	}
	if index > 1 {
		index = 1
	}
	result.Index = index
	return result
}

// #endregion trust-index
