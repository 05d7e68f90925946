package facts

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// #region value

// Kind discriminates the scalar type of a fact value.
type Kind int

const (
	KindString Kind = iota
	KindNumber
)

// Value is a number-or-string fact scalar. Marshals as a bare JSON
// number or string so telemetry consumers see plain scalars.
type Value struct {
	Kind Kind
	Str  string
	Num  float64
}

// String wraps a string fact value.
func String(s string) Value {
	return Value{Kind: KindString, Str: s}
}

// Number wraps a numeric fact value.
func Number(n float64) Value {
	return Value{Kind: KindNumber, Num: n}
}

// AsNumber returns the numeric interpretation of the value.
// String values holding a parseable number coerce ("23" ≡ 23).
func (v Value) AsNumber() (float64, bool) {
	if v.Kind == KindNumber {
		return v.Num, true
	}
	n, err := strconv.ParseFloat(v.Str, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

// MarshalJSON emits a bare number or string.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.Kind == KindNumber {
		return json.Marshal(v.Num)
	}
	return json.Marshal(v.Str)
}

// UnmarshalJSON accepts a bare number or string.
func (v *Value) UnmarshalJSON(data []byte) error {
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*v = Number(n)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = String(s)
		return nil
	}
	return fmt.Errorf("fact value must be number or string: %s", data)
}

// Format renders the value for log lines and retry prompts.
func (v Value) Format() string {
	if v.Kind == KindNumber {
		return strconv.FormatFloat(v.Num, 'f', -1, 64)
	}
	return v.Str
}

// #endregion value

// #region snapshot

// TimeKey is always present in a built snapshot and is the only
// required fact for strict guard checks.
const TimeKey = "time"

// Snapshot maps fact keys to authoritative values. Treated as immutable
// after Build; the guard only ever compares against it.
type Snapshot map[string]Value

// Keys returns the fact keys in unspecified order.
func (s Snapshot) Keys() []string {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, k)
	}
	return keys
}

// #endregion snapshot

// #region builder

// Builder assembles a fact snapshot from caller-supplied state sources.
// Zero value is usable; Build never fails.
type Builder struct {
	Clock func() time.Time // nil → time.Now

	Energy         *float64
	Dopamine       *float64
	Serotonin      *float64
	Norepinephrine *float64

	WorldFacts map[string]Value
}

// Build produces an immutable snapshot. The wall-clock time is always
// stamped; absent sources are omitted entirely rather than emitted empty.
func (b Builder) Build() Snapshot {
	clock := b.Clock
	if clock == nil {
		clock = time.Now
	}

	snap := Snapshot{
		TimeKey: String(clock().Format("15:04")),
	}

	numerics := map[string]*float64{
		"energy":         b.Energy,
		"dopamine":       b.Dopamine,
		"serotonin":      b.Serotonin,
		"norepinephrine": b.Norepinephrine,
	}
	for k, v := range numerics {
		if v != nil {
			snap[k] = Number(*v)
		}
	}

	for k, v := range b.WorldFacts {
		snap[k] = v
	}

	return snap
}

// #endregion builder
