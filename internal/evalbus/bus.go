// Package evalbus is the process-wide append-only evaluation event log:
// bounded history, synchronous pub/sub, running-average metrics, and the
// time-windowed signal aggregation the chemistry bridge reads. The bus
// knows nothing about what produced an event.
package evalbus

import (
	"log"
	"time"
)

// #region constants

const (
	historyCap = 500
	// DefaultWindow is the aggregation window used by polling readers.
	DefaultWindow = 5 * time.Second
	// DopamineScale converts the mean signed signal into a delta in
	// neurochemistry units.
	DopamineScale = 50.0
)

// #endregion constants

// #region bus-struct

type subscriber struct {
	id int
	fn func(Event)
}

// Bus holds the bounded event history and running totals. Construct one
// per agent session; a process-wide instance is just the default session.
// All operations are synchronous and single-threaded by design.
type Bus struct {
	history []Event
	subs    []subscriber
	nextSub int

	total         int
	positiveCount int
	negativeCount int
	avgSeverity   float64
	avgConfidence float64
	bySource      map[Source]int
	byStage       map[Stage]int
	byTag         map[Tag]int

	guardPasses    int
	guardRetries   int
	guardSoftFails int

	now func() time.Time // injectable for window tests
}

// New creates an empty bus.
func New() *Bus {
	b := &Bus{now: time.Now}
	b.resetCounters()
	return b
}

func (b *Bus) resetCounters() {
	b.total = 0
	b.positiveCount = 0
	b.negativeCount = 0
	b.avgSeverity = 0
	b.avgConfidence = 0
	b.bySource = make(map[Source]int)
	b.byStage = make(map[Stage]int)
	b.byTag = make(map[Tag]int)
	b.guardPasses = 0
	b.guardRetries = 0
	b.guardSoftFails = 0
}

// #endregion bus-struct

// #region emit

// Emit appends the event, updates running totals in O(1), and fans out
// synchronously to subscribers. A panicking subscriber is isolated so it
// cannot drop delivery to the others.
func (b *Bus) Emit(event Event) {
	b.history = append(b.history, event)
	if len(b.history) > historyCap {
		b.history = b.history[len(b.history)-historyCap:]
	}

	b.total++
	if event.Valence == ValencePositive {
		b.positiveCount++
	} else {
		b.negativeCount++
	}

	// Incremental mean: avg += (x - avg) / n. Stays O(1) per event.
	n := float64(b.total)
	b.avgSeverity += (event.Severity - b.avgSeverity) / n
	b.avgConfidence += (event.Confidence - b.avgConfidence) / n

	b.bySource[event.Source]++
	b.byStage[event.Stage]++
	for _, tag := range event.Tags {
		b.byTag[tag]++
		if event.Source == SourceGuard {
			switch tag {
			case TagPass:
				b.guardPasses++
			case TagRetry:
				b.guardRetries++
			case TagSoftFail:
				b.guardSoftFails++
			}
		}
	}

	// Fan out over a snapshot: a handler that unsubscribes (itself or a
	// neighbor) mid-delivery must not shift the list under this loop.
	subs := make([]subscriber, len(b.subs))
	copy(subs, b.subs)
	for _, sub := range subs {
		b.deliver(sub, event)
	}
}

func (b *Bus) deliver(sub subscriber, event Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[BUS] subscriber %d panicked: %v", sub.id, r)
		}
	}()
	sub.fn(event)
}

// #endregion emit

// #region subscribe

// Subscribe registers a synchronous handler. The returned closure
// unsubscribes it. No backpressure: a slow handler blocks Emit, which is
// acceptable at tens of events per turn.
func (b *Bus) Subscribe(fn func(Event)) func() {
	id := b.nextSub
	b.nextSub++
	b.subs = append(b.subs, subscriber{id: id, fn: fn})

	return func() {
		for i, sub := range b.subs {
			if sub.id == id {
				b.subs = append(b.subs[:i], b.subs[i+1:]...)
				return
			}
		}
	}
}

// #endregion subscribe

// #region recent

// RecentEvents returns events newer than now minus window.
func (b *Bus) RecentEvents(window time.Duration) []Event {
	cutoff := b.now().Add(-window)
	var recent []Event
	for _, e := range b.history {
		if e.Timestamp.After(cutoff) {
			recent = append(recent, e)
		}
	}
	return recent
}

// #endregion recent

// #region aggregated-signal

// AggregatedSignal folds the recent window into one signed signal.
// Empty window returns {0, 0}; callers must treat Confidence == 0 as
// "no signal" rather than a neutral reading.
func (b *Bus) AggregatedSignal() AggregatedSignal {
	recent := b.RecentEvents(DefaultWindow)
	if len(recent) == 0 {
		return AggregatedSignal{}
	}

	var signedSum, confidenceSum float64
	for _, e := range recent {
		sign := 1.0
		if e.Valence == ValenceNegative {
			sign = -1.0
		}
		signedSum += sign * e.Severity * e.Confidence * StageWeights[e.Stage]
		confidenceSum += e.Confidence
	}

	n := float64(len(recent))
	return AggregatedSignal{
		DopamineDelta: signedSum / n * DopamineScale,
		Confidence:    confidenceSum / n,
	}
}

// #endregion aggregated-signal

// #region guard-stats

// GuardStats reports guard outcome rates. See the GuardStats type for
// the two-denominator convention.
func (b *Bus) GuardStats() GuardStats {
	stats := GuardStats{TotalEvents: b.total}

	outcomes := b.guardPasses + b.guardRetries + b.guardSoftFails
	if outcomes > 0 {
		stats.PassRate = float64(b.guardPasses) / float64(outcomes)
		stats.RetryRate = float64(b.guardRetries) / float64(outcomes)
		stats.SoftFailRate = float64(b.guardSoftFails) / float64(outcomes)
	}

	if b.total > 0 {
		stats.FactMutationRate = float64(b.byTag[TagFactMutation]) / float64(b.total)
		stats.PersonaDriftRate = float64(b.byTag[TagPersonaDrift]) / float64(b.total)
	}

	return stats
}

// #endregion guard-stats

// #region metrics

// Metrics returns a copy of the running totals.
func (b *Bus) Metrics() Metrics {
	m := Metrics{
		TotalEvents:   b.total,
		PositiveCount: b.positiveCount,
		NegativeCount: b.negativeCount,
		AvgSeverity:   b.avgSeverity,
		AvgConfidence: b.avgConfidence,
		BySource:      make(map[Source]int, len(b.bySource)),
		ByStage:       make(map[Stage]int, len(b.byStage)),
		ByTag:         make(map[Tag]int, len(b.byTag)),
	}
	for k, v := range b.bySource {
		m.BySource[k] = v
	}
	for k, v := range b.byStage {
		m.ByStage[k] = v
	}
	for k, v := range b.byTag {
		m.ByTag[k] = v
	}
	return m
}

// #endregion metrics

// #region reset

// Clear drops history and counters. Used at session boundaries.
func (b *Bus) Clear() {
	b.history = nil
	b.resetCounters()
}

// ResetMetrics zeroes counters but keeps history and subscribers.
func (b *Bus) ResetMetrics() {
	b.resetCounters()
}

// #endregion reset
