package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/danielpatrickdp/response-guard/internal/facts"
	"github.com/danielpatrickdp/response-guard/internal/guard"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a recorded conversation.
type Fixture struct {
	Description     string                  `json:"description"`
	PersonaName     string                  `json:"persona_name,omitempty"`
	Config          FixtureConfig           `json:"config"`
	Turns           []FixtureTurn           `json:"turns"`
	ExpectedResults []FixtureExpectedResult `json:"expected_results,omitempty"`
}

// FixtureTurn is one recorded generation. Facts use the bare-scalar
// encoding, e.g. {"energy": 23, "time": "14:30"}.
type FixtureTurn struct {
	TurnID       string         `json:"turn_id"`
	ResponseText string         `json:"response_text"`
	Facts        facts.Snapshot `json:"facts,omitempty"`
}

// FixtureExpectedResult captures the expected verdict per turn.
type FixtureExpectedResult struct {
	TurnID string `json:"turn_id"`
	Action string `json:"action"`
}

// FixtureConfig mirrors guard.Config with JSON tags. Zero values fall
// back to guard defaults field by field.
type FixtureConfig struct {
	MaxRetries   int     `json:"max_retries,omitempty"`
	StrictFacts  bool    `json:"strict_facts,omitempty"`
	BaseTemp     float32 `json:"base_temp,omitempty"`
	MinTemp      float32 `json:"min_temp,omitempty"`
	RelTolerance float64 `json:"rel_tolerance,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	return &f, nil
}

// ToGuardConfig converts a FixtureConfig to a domain guard.Config,
// defaulting unset fields.
func (fc *FixtureConfig) ToGuardConfig() guard.Config {
	cfg := guard.DefaultConfig()
	if fc.MaxRetries > 0 {
		cfg.MaxRetries = fc.MaxRetries
	}
	cfg.StrictFacts = fc.StrictFacts
	if fc.BaseTemp > 0 {
		cfg.BaseTemp = fc.BaseTemp
	}
	if fc.MinTemp > 0 {
		cfg.MinTemp = fc.MinTemp
	}
	if fc.RelTolerance > 0 {
		cfg.RelTolerance = fc.RelTolerance
	}
	return cfg
}

// #endregion fixture-loader
