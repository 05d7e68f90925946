package chemistry

import (
	"testing"

	"github.com/danielpatrickdp/response-guard/internal/evalbus"
)

func enabledConfig() Config {
	return Config{
		Enabled:                true,
		MaxDopamineDelta:       5,
		MaxSerotoninDelta:      3,
		MaxNorepinephrineDelta: 2,
	}
}

func TestCalculateDelta_Disabled(t *testing.T) {
	cfg := enabledConfig()
	cfg.Enabled = false
	bridge := NewBridge(evalbus.New(), cfg)

	d := bridge.CalculateDelta()

	if d.Source != SourceDisabled {
		t.Fatalf("source = %s, want disabled", d.Source)
	}
	if d.Dopamine != 0 || d.Serotonin != 0 || d.Norepinephrine != 0 {
		t.Fatalf("disabled bridge must return all-zero delta: %+v", d)
	}
}

func TestCalculateDelta_EmptyBus(t *testing.T) {
	bridge := NewBridge(evalbus.New(), enabledConfig())

	d := bridge.CalculateDelta()

	if d.Source != SourceNoEvents {
		t.Fatalf("source = %s, want no_events", d.Source)
	}
}

func TestCalculateDelta_NegativeSignal(t *testing.T) {
	bus := evalbus.New()
	bus.Emit(evalbus.NewEvent(evalbus.SourceUser, evalbus.StageUser, 1.0, evalbus.ValenceNegative, nil, 1.0))
	bridge := NewBridge(bus, enabledConfig())

	d := bridge.CalculateDelta()

	if d.Source != SourceAggregated {
		t.Fatalf("source = %s, want aggregated", d.Source)
	}
	if d.Dopamine >= 0 {
		t.Fatalf("negative signal must lower dopamine, got %.4f", d.Dopamine)
	}
	if d.Serotonin >= 0 {
		t.Fatalf("serotonin must trail dopamine, got %.4f", d.Serotonin)
	}
	if d.Norepinephrine <= 0 {
		t.Fatalf("negative signal must raise norepinephrine, got %.4f", d.Norepinephrine)
	}
}

func TestCalculateDelta_PositiveNeverRaisesNorepinephrine(t *testing.T) {
	bus := evalbus.New()
	bus.Emit(evalbus.NewEvent(evalbus.SourceUser, evalbus.StageUser, 1.0, evalbus.ValencePositive, nil, 1.0))
	bridge := NewBridge(bus, enabledConfig())

	d := bridge.CalculateDelta()

	if d.Norepinephrine != 0 {
		t.Fatalf("positive signal must leave norepinephrine at 0, got %.4f", d.Norepinephrine)
	}
	if d.Dopamine <= 0 {
		t.Fatalf("positive signal must raise dopamine, got %.4f", d.Dopamine)
	}
}

func TestCalculateDelta_Bounds(t *testing.T) {
	bus := evalbus.New()
	// Saturate the window with maximal negative user events.
	for i := 0; i < 20; i++ {
		bus.Emit(evalbus.NewEvent(evalbus.SourceUser, evalbus.StageUser, 1.0, evalbus.ValenceNegative, nil, 1.0))
	}
	bridge := NewBridge(bus, enabledConfig())

	d := bridge.CalculateDelta()

	if d.Dopamine < -5 {
		t.Fatalf("dopamine delta below bound: %.4f", d.Dopamine)
	}
	if d.Serotonin < -3 {
		t.Fatalf("serotonin delta below bound: %.4f", d.Serotonin)
	}
	if d.Norepinephrine > 2 {
		t.Fatalf("norepinephrine delta above bound: %.4f", d.Norepinephrine)
	}
}

func TestApplyDelta_PureAndClamped(t *testing.T) {
	current := Levels{Dopamine: 98, Serotonin: 1, Norepinephrine: 50}
	d := Delta{Dopamine: 10, Serotonin: -10, Norepinephrine: 0.5}

	next := ApplyDelta(current, d)

	if current.Dopamine != 98 || current.Serotonin != 1 {
		t.Fatal("ApplyDelta must not mutate its input")
	}
	if next.Dopamine != 100 {
		t.Fatalf("dopamine should clamp to 100, got %.2f", next.Dopamine)
	}
	if next.Serotonin != 0 {
		t.Fatalf("serotonin should clamp to 0, got %.2f", next.Serotonin)
	}
	if next.Norepinephrine != 50.5 {
		t.Fatalf("norepinephrine = %.2f, want 50.5", next.Norepinephrine)
	}
}

func TestAcquireSubscription_Exclusive(t *testing.T) {
	bus := evalbus.New()
	bridge := NewBridge(bus, enabledConfig())

	var deltas []Delta
	sub, err := bridge.AcquireSubscription(func(d Delta) { deltas = append(deltas, d) })
	if err != nil {
		t.Fatalf("first acquire failed: %v", err)
	}

	if _, err := bridge.AcquireSubscription(func(Delta) {}); err != ErrSubscriptionHeld {
		t.Fatalf("second acquire should fail loudly, got %v", err)
	}

	bus.Emit(evalbus.NewEvent(evalbus.SourceGuard, evalbus.StageGuard, 0.8, evalbus.ValenceNegative, nil, 1.0))
	if len(deltas) != 1 {
		t.Fatalf("expected 1 pushed delta, got %d", len(deltas))
	}
	if deltas[0].Source != SourceEvent {
		t.Fatalf("push delta source = %s, want event", deltas[0].Source)
	}

	sub.Release()
	if _, err := bridge.AcquireSubscription(func(Delta) {}); err != nil {
		t.Fatalf("acquire after release should succeed, got %v", err)
	}
}
