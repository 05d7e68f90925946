// Package chemistry maps evaluation signals onto bounded deltas of the
// simulated 3-channel neurochemistry vector. Pure computation only; the
// caller owns persisting the resulting levels.
package chemistry

import (
	"errors"
	"math"
	"os"

	"github.com/danielpatrickdp/response-guard/internal/evalbus"
)

// #region levels

// Levels is the internal-state vector, each channel in [0, 100].
type Levels struct {
	Dopamine       float64 `json:"dopamine"`
	Serotonin      float64 `json:"serotonin"`
	Norepinephrine float64 `json:"norepinephrine"`
}

// Baseline returns the neutral midpoint state.
func Baseline() Levels {
	return Levels{Dopamine: 50, Serotonin: 50, Norepinephrine: 30}
}

// #endregion levels

// #region delta

// DeltaSource discriminates why a delta was (or was not) produced, so
// callers can tell "nothing happened" apart from "bridge is off".
type DeltaSource string

const (
	SourceAggregated DeltaSource = "aggregated"
	SourceEvent      DeltaSource = "event"
	SourceDisabled   DeltaSource = "disabled"
	SourceNoEvents   DeltaSource = "no_events"
)

// Delta is an ephemeral bounded adjustment. Recomputed every call,
// never persisted by this package.
type Delta struct {
	Dopamine       float64     `json:"dopamine"`
	Serotonin      float64     `json:"serotonin"`
	Norepinephrine float64     `json:"norepinephrine"`
	Confidence     float64     `json:"confidence"`
	Source         DeltaSource `json:"source"`
}

// #endregion delta

// #region config

// Config bounds per-call deltas for each channel.
type Config struct {
	Enabled                bool
	MaxDopamineDelta       float64
	MaxSerotoninDelta      float64
	MaxNorepinephrineDelta float64
}

// DefaultConfig returns bridge defaults. Kill switch:
// CHEMISTRY_BRIDGE_ENABLED=false disables delta production.
func DefaultConfig() Config {
	enabled := true
	if v := os.Getenv("CHEMISTRY_BRIDGE_ENABLED"); v == "false" {
		enabled = false
	}
	return Config{
		Enabled:                enabled,
		MaxDopamineDelta:       5,
		MaxSerotoninDelta:      3,
		MaxNorepinephrineDelta: 2,
	}
}

// #endregion config

// #region bridge

// ErrSubscriptionHeld is returned when a push subscription is already
// active. The previous subscriber is never silently evicted.
var ErrSubscriptionHeld = errors.New("chemistry: push subscription already held")

// Bridge reads aggregated signals from the bus and converts them into
// bounded deltas.
type Bridge struct {
	bus    *evalbus.Bus
	config Config
	active *Subscription
}

// NewBridge creates a bridge over the given bus.
func NewBridge(bus *evalbus.Bus, config Config) *Bridge {
	return &Bridge{bus: bus, config: config}
}

// #endregion bridge

// #region calculate

// CalculateDelta folds the recent signal window into one bounded delta.
func (b *Bridge) CalculateDelta() Delta {
	if !b.config.Enabled {
		return Delta{Source: SourceDisabled}
	}

	sig := b.bus.AggregatedSignal()
	if sig.Confidence == 0 {
		return Delta{Source: SourceNoEvents}
	}

	d := b.deltaFromSignal(sig.DopamineDelta)
	d.Confidence = sig.Confidence
	d.Source = SourceAggregated
	return d
}

// deltaFromSignal applies the shared formula shape: serotonin trails
// dopamine at 30% magnitude, and only negative signals raise
// norepinephrine — positive ones never lower it through this path.
func (b *Bridge) deltaFromSignal(signal float64) Delta {
	d := Delta{
		Dopamine:  clampAbs(signal, b.config.MaxDopamineDelta),
		Serotonin: clampAbs(signal*0.3, b.config.MaxSerotoninDelta),
	}
	if signal < 0 {
		d.Norepinephrine = math.Min(b.config.MaxNorepinephrineDelta, math.Abs(signal)*0.2)
	}
	return d
}

// #endregion calculate

// #region apply

// ApplyDelta returns current adjusted by d, each channel clamped to
// [0, 100]. Pure: current is never mutated.
func ApplyDelta(current Levels, d Delta) Levels {
	return Levels{
		Dopamine:       clampLevel(current.Dopamine + d.Dopamine),
		Serotonin:      clampLevel(current.Serotonin + d.Serotonin),
		Norepinephrine: clampLevel(current.Norepinephrine + d.Norepinephrine),
	}
}

// #endregion apply

// #region subscription

// Subscription is the handle for push-mode per-event deltas.
type Subscription struct {
	bridge *Bridge
	unsub  func()
}

// Release unsubscribes from the bus and frees the exclusive slot.
func (s *Subscription) Release() {
	if s.unsub != nil {
		s.unsub()
		s.unsub = nil
	}
	if s.bridge != nil && s.bridge.active == s {
		s.bridge.active = nil
	}
}

// AcquireSubscription registers handler to receive a per-event delta for
// every bus emission. At most one subscription may be active; a second
// acquire fails loudly with ErrSubscriptionHeld.
func (b *Bridge) AcquireSubscription(handler func(Delta)) (*Subscription, error) {
	if b.active != nil {
		return nil, ErrSubscriptionHeld
	}

	sub := &Subscription{bridge: b}
	sub.unsub = b.bus.Subscribe(func(e evalbus.Event) {
		handler(b.eventDelta(e))
	})
	b.active = sub
	return sub, nil
}

// eventDelta computes an immediate delta from a single event using the
// same formula shape as the windowed path.
func (b *Bridge) eventDelta(e evalbus.Event) Delta {
	if !b.config.Enabled {
		return Delta{Source: SourceDisabled}
	}

	sign := 1.0
	if e.Valence == evalbus.ValenceNegative {
		sign = -1.0
	}
	signal := sign * e.Severity * e.Confidence * evalbus.StageWeights[e.Stage] * evalbus.DopamineScale

	d := b.deltaFromSignal(signal)
	d.Confidence = e.Confidence
	d.Source = SourceEvent
	return d
}

// #endregion subscription

// #region helpers

func clampAbs(v, bound float64) float64 {
	if v > bound {
		return bound
	}
	if v < -bound {
		return -bound
	}
	return v
}

func clampLevel(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

// #endregion helpers
